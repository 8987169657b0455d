package recognition

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yoockh/voxaura/internal/models"
	"github.com/yoockh/voxaura/internal/providers/stt"
	"github.com/yoockh/voxaura/internal/session"
	"github.com/yoockh/voxaura/internal/utils"
)

const DefaultConnectTimeout = 10 * time.Second

const (
	StatusStarted = "started"
	StatusStopped = "stopped"
	StatusError   = "error"
)

// Guidance sent to the client when the backend drops the stream.
const reconnectGuidance = "Speech recognition connection lost. Please restart transcription."

// Handlers receive recognition output for one session. They run on the
// backend reader goroutine and must not block for long.
type Handlers struct {
	OnPartial func(ev models.TranscriptEvent)
	OnFinal   func(ev models.TranscriptEvent)
	OnStatus  func(status, message string)
}

// Manager owns at most one live recognition stream per session.
type Manager struct {
	reg            *session.Registry
	recognizer     stt.Recognizer
	connectTimeout time.Duration
	log            *logrus.Logger
}

func NewManager(reg *session.Registry, recognizer stt.Recognizer, connectTimeout time.Duration, log *logrus.Logger) *Manager {
	if connectTimeout <= 0 {
		connectTimeout = DefaultConnectTimeout
	}
	return &Manager{reg: reg, recognizer: recognizer, connectTimeout: connectTimeout, log: log}
}

// Start opens a recognition stream for connID, closing any existing one first.
func (m *Manager) Start(ctx context.Context, connID string, h Handlers) error {
	const op = "recognition.Manager.Start"

	e, ok := m.reg.Get(connID)
	if !ok {
		return utils.E(utils.CodeNotFound, op, "session not registered", utils.ErrNotFound)
	}

	if m.recognizer == nil || !m.recognizer.Configured() {
		if prev := e.TakeRecognition(); prev != nil {
			_ = prev.Close()
		}
		e.Update(func(s *models.Session) { s.RecognitionActive = false })
		return utils.E(utils.CodeConfiguration, op, "speech recognition is not configured", nil)
	}

	// ready is closed once the stream is installed, so a close that races
	// the handshake still compares against the right stream.
	ready := make(chan struct{})
	var current session.RecognitionStream

	cb := stt.Callbacks{
		OnTranscript: func(ev models.TranscriptEvent) {
			<-ready
			if !e.IsCurrentRecognition(current) {
				return
			}
			switch ev.Kind {
			case models.TranscriptFinal:
				if h.OnFinal != nil {
					h.OnFinal(ev)
				}
			default:
				if h.OnPartial != nil {
					h.OnPartial(ev)
				}
			}
		},
		OnClose: func(err error) {
			<-ready
			m.onClosed(e, current, err, h)
		},
	}

	stream, err := e.ReplaceRecognition(func() (session.RecognitionStream, error) {
		dialCtx, cancel := context.WithTimeout(ctx, m.connectTimeout)
		defer cancel()
		return m.recognizer.Open(dialCtx, cb)
	})
	current = stream
	close(ready)

	if err != nil {
		e.Update(func(s *models.Session) {
			s.RecognitionActive = false
			if s.State == models.StateRecognizing {
				s.State = models.StateIdle
			}
		})
		if errors.Is(err, session.ErrClosed) {
			return utils.E(utils.CodeUnavailable, op, "recognition cancelled", err)
		}
		m.log.WithFields(logrus.Fields{
			"conn_id": connID,
			"stage":   "recognition",
			"code":    utils.CodeOf(err),
		}).WithError(err).Warn("recognition stream failed to open")
		return utils.FromDial(op, err)
	}

	e.Update(func(s *models.Session) {
		s.RecognitionActive = true
		if s.State == models.StateIdle || s.State == models.StateError {
			s.State = models.StateRecognizing
		}
	})
	m.log.WithFields(logrus.Fields{"conn_id": connID, "stage": "recognition"}).Info("recognition stream started")
	return nil
}

func (m *Manager) onClosed(e *session.Entry, stream session.RecognitionStream, err error, h Handlers) {
	if stream == nil || !e.IsCurrentRecognition(stream) {
		return
	}
	_ = e.TakeRecognition()
	if err == nil {
		e.Update(func(s *models.Session) { s.RecognitionActive = false })
		return
	}

	m.log.WithFields(logrus.Fields{
		"conn_id":    e.ConnectionID(),
		"session_id": e.SessionID(),
		"stage":      "recognition",
	}).WithError(err).Warn("recognition backend closed the stream")

	e.Update(func(s *models.Session) {
		s.RecognitionActive = false
		s.State = models.StateError
	})
	if h.OnStatus != nil {
		h.OnStatus(StatusError, reconnectGuidance)
	}
}

// SendAudio forwards audio to the open stream; it is dropped when none is open.
func (m *Manager) SendAudio(connID string, audio []byte) {
	e, ok := m.reg.Get(connID)
	if !ok || len(audio) == 0 {
		return
	}
	s := e.Recognition()
	if s == nil {
		return
	}
	if err := s.SendAudio(audio); err != nil {
		m.log.WithFields(logrus.Fields{"conn_id": connID, "stage": "recognition"}).
			WithError(err).Debug("audio frame dropped")
	}
}

// Stop closes the stream for connID. Stopping twice is a no-op.
func (m *Manager) Stop(connID string) {
	e, ok := m.reg.Get(connID)
	if !ok {
		return
	}
	s := e.TakeRecognition()
	e.Update(func(st *models.Session) {
		st.RecognitionActive = false
		if st.State == models.StateRecognizing {
			st.State = models.StateIdle
		}
	})
	if s == nil {
		return
	}
	if err := s.Close(); err != nil {
		m.log.WithFields(logrus.Fields{"conn_id": connID, "stage": "recognition"}).
			WithError(err).Debug("recognition stream close")
	}
	m.log.WithFields(logrus.Fields{"conn_id": connID, "stage": "recognition"}).Info("recognition stream stopped")
}

func (m *Manager) Active(connID string) bool {
	e, ok := m.reg.Get(connID)
	return ok && e.Recognition() != nil
}
