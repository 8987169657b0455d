// Package orchestrator drives the per-connection voice pipeline:
// recognition, turn detection, generation and paced audio delivery.
package orchestrator

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/yoockh/voxaura/internal/broadcast"
	"github.com/yoockh/voxaura/internal/generation"
	"github.com/yoockh/voxaura/internal/metrics"
	"github.com/yoockh/voxaura/internal/models"
	"github.com/yoockh/voxaura/internal/persona"
	"github.com/yoockh/voxaura/internal/recognition"
	"github.com/yoockh/voxaura/internal/services"
	"github.com/yoockh/voxaura/internal/session"
	"github.com/yoockh/voxaura/internal/synthesis"
	"github.com/yoockh/voxaura/internal/utils"
)

const (
	DefaultPersistTimeout = 5 * time.Second

	generationBuffer = 16
	turnMessage      = "User stopped talking"
	unknownSessionID = "unknown"

	TestAudioStreaming = "test_audio_streaming"
	TestPlayback       = "test_playback"
)

var testSentences = map[string]string{
	TestAudioStreaming: "This is a test of streaming audio data to the client. " +
		"The audio is being sent in chunks for real-time playback.",
	TestPlayback: "This is a test of seamless audio playback. " +
		"The audio should start playing as chunks arrive for a real-time streaming experience.",
}

type Options struct {
	// SynthesisAutoStart synthesizes every reply even when the client never
	// sent start_murf_websocket.
	SynthesisAutoStart bool
	PersistTimeout     time.Duration

	Metrics       *metrics.Metrics
	Audit         services.SessionAudit
	Conversations services.ConversationService
	Publisher     broadcast.Publisher
}

type Orchestrator struct {
	reg         *session.Registry
	recognition *recognition.Manager
	generator   *generation.Generator
	streamer    *synthesis.Streamer
	opts        Options
	log         *logrus.Logger
}

func New(reg *session.Registry, rec *recognition.Manager, gen *generation.Generator, streamer *synthesis.Streamer, opts Options, log *logrus.Logger) *Orchestrator {
	if opts.PersistTimeout <= 0 {
		opts.PersistTimeout = DefaultPersistTimeout
	}
	return &Orchestrator{
		reg:         reg,
		recognition: rec,
		generator:   gen,
		streamer:    streamer,
		opts:        opts,
		log:         log,
	}
}

// Connect registers a provisional session keyed by the connection id and
// greets the client with the current session count.
func (o *Orchestrator) Connect(connID string, sender session.Sender) {
	out := broadcast.Mirror(sender, o.opts.Publisher, func() string {
		if e, ok := o.reg.Get(connID); ok {
			return e.SessionID()
		}
		return connID
	}, o.log)

	e := o.reg.Register(connID, connID, out)
	o.startWorker(e)
	o.opts.Metrics.SessionOpened()
	o.audit(e, func(ctx context.Context, a services.SessionAudit) error {
		return a.Started(ctx, e.Snapshot())
	})

	o.log.WithFields(logrus.Fields{"conn_id": connID}).Info("client connected")
	_ = out.Send(models.EventStatus, models.StatusPayload{
		Connected:      true,
		ActiveSessions: o.reg.Count(),
	})
}

// Disconnect stops every stage of the session and forgets it.
func (o *Orchestrator) Disconnect(connID string) {
	e, ok := o.reg.Get(connID)
	if !ok {
		return
	}
	snap := e.Snapshot()
	if !o.reg.Unregister(connID) {
		return
	}
	o.opts.Metrics.SessionClosed("disconnect")
	o.endAudit(snap)

	o.log.WithFields(logrus.Fields{
		"conn_id":       connID,
		"session_id":    snap.SessionID,
		"message_count": snap.MessageCount,
	}).Info("client disconnected")
}

// Shutdown closes every live session and returns how many were closed.
func (o *Orchestrator) Shutdown() int {
	snaps := o.reg.Snapshots()
	n := o.reg.CloseAll()
	for _, s := range snaps {
		o.opts.Metrics.SessionClosed("shutdown")
		o.endAudit(s)
	}
	return n
}

func (o *Orchestrator) ActiveSessions() int { return o.reg.Count() }

func (o *Orchestrator) Sessions() []models.Session { return o.reg.Snapshots() }

// Handle dispatches one client event. Payload problems are reported to the
// client; the returned error is reserved for an unknown connection.
func (o *Orchestrator) Handle(connID string, env models.Envelope) error {
	const op = "orchestrator.Handle"

	e, ok := o.reg.Get(connID)
	if !ok {
		return utils.E(utils.CodeNotFound, op, "session not registered", utils.ErrNotFound)
	}
	log := o.log.WithFields(logrus.Fields{"conn_id": connID, "event": env.Type})

	switch env.Type {
	case models.EventRegisterSession:
		var d models.RegisterSessionData
		if !o.decode(e, env, &d) {
			return nil
		}
		o.registerSession(e, d.SessionID)

	case models.EventStartTranscription:
		o.startTranscription(e)

	case models.EventStopTranscription:
		o.recognition.Stop(connID)
		o.send(e, models.EventTranscriptionStatus, models.TranscriptionStatusPayload{
			Status:  recognition.StatusStopped,
			Message: "Transcription stopped",
		})

	case models.EventAudioChunk:
		var d models.AudioChunkData
		if !o.decode(e, env, &d) {
			return nil
		}
		audio, err := base64.StdEncoding.DecodeString(d.AudioData)
		if err != nil || len(audio) == 0 {
			o.sendError(e, utils.E(utils.CodeTransport, op, "Invalid audio data format", err))
			return nil
		}
		o.opts.Metrics.RecordAudioIn(len(audio))
		o.recognition.SendAudio(connID, audio)

	case models.EventChatMessage:
		var d models.ChatMessageData
		if !o.decode(e, env, &d) {
			return nil
		}
		o.chatMessage(e, d)

	case models.EventStartSynthesis:
		e.Update(func(s *models.Session) { s.SynthesisEnabled = true })
		msg := "Synthesis session started"
		if !o.streamer.Configured() {
			msg = "Synthesis backend not configured, streaming mock audio"
		}
		o.send(e, models.EventSynthesisStatus, models.SynthesisStatusPayload{Status: "connected", Message: msg})

	case models.EventStopSynthesis:
		e.Update(func(s *models.Session) { s.SynthesisEnabled = false })
		o.send(e, models.EventSynthesisStatus, models.SynthesisStatusPayload{
			Status:  "disconnected",
			Message: "Synthesis session stopped",
		})

	case models.EventTestRequest:
		var d models.TestRequestData
		if !o.decode(e, env, &d) {
			return nil
		}
		o.testRequest(e, d.Action)

	default:
		log.Debug("unknown event")
		o.sendError(e, utils.E(utils.CodeInvalidArgument, op, fmt.Sprintf("unknown event type %q", env.Type), nil))
	}
	return nil
}

// registerSession replaces the provisional session. The previous entry's
// recognition stream and tasks are stopped before the new one is visible.
func (o *Orchestrator) registerSession(prev *session.Entry, sessionID string) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		sessionID = unknownSessionID
	}
	connID := prev.ConnectionID()
	carried := prev.Snapshot()

	e := o.reg.Register(sessionID, connID, prev.Sender())
	e.Update(func(s *models.Session) {
		s.SynthesisEnabled = carried.SynthesisEnabled
		s.Persona = carried.Persona
	})
	o.startWorker(e)
	o.audit(e, func(ctx context.Context, a services.SessionAudit) error {
		return a.Renamed(ctx, connID, sessionID)
	})
	o.log.WithFields(logrus.Fields{"conn_id": connID, "session_id": sessionID}).Info("session registered")
}

func (o *Orchestrator) startTranscription(e *session.Entry) {
	connID := e.ConnectionID()
	h := recognition.Handlers{
		OnPartial: func(ev models.TranscriptEvent) {
			o.send(e, models.EventTranscription, transcriptionPayload(ev))
		},
		OnFinal: func(ev models.TranscriptEvent) {
			o.send(e, models.EventTranscription, transcriptionPayload(ev))
			o.onFinal(e, ev)
		},
		OnStatus: func(status, message string) {
			o.send(e, models.EventTranscriptionStatus, models.TranscriptionStatusPayload{Status: status, Message: message})
		},
	}

	// The dial may take up to the connect timeout; run it off the reader.
	e.Go(func(ctx context.Context) {
		err := o.recognition.Start(ctx, connID, h)
		if err != nil {
			// a stop or re-register won the race with the dial
			if ctx.Err() != nil || errors.Is(err, session.ErrClosed) {
				return
			}
			o.opts.Metrics.RecordRecognitionStart(strings.ToLower(string(utils.CodeOf(err))))
			o.send(e, models.EventTranscriptionStatus, models.TranscriptionStatusPayload{
				Status:  recognition.StatusError,
				Message: recognitionErrorMessage(err),
			})
			return
		}
		o.opts.Metrics.RecordRecognitionStart("ok")
		o.send(e, models.EventTranscriptionStatus, models.TranscriptionStatusPayload{
			Status:  recognition.StatusStarted,
			Message: "Real-time transcription started with turn detection",
		})
	})
}

func (o *Orchestrator) onFinal(e *session.Entry, ev models.TranscriptEvent) {
	t, ok := e.Detector().Feed(ev)
	if !ok {
		return
	}
	t.Persona = e.Snapshot().Persona

	o.send(e, models.EventTurnDetected, models.TurnDetectedPayload{
		Message:    turnMessage,
		Transcript: t.Text,
		Confidence: t.Confidence,
		Timestamp:  t.DetectedAt.UTC().Format(time.RFC3339Nano),
	})
	o.enqueue(e, t)
}

func (o *Orchestrator) chatMessage(e *session.Entry, d models.ChatMessageData) {
	const op = "orchestrator.chatMessage"

	text := strings.TrimSpace(d.Message)
	if text == "" {
		o.sendError(e, utils.E(utils.CodeInvalidArgument, op, "Empty message", nil))
		return
	}
	p := persona.Parse(d.Persona)
	e.Update(func(s *models.Session) { s.Persona = string(p) })

	o.enqueue(e, models.Turn{
		Text:       text,
		Confidence: 1,
		DetectedAt: time.Now(),
		Source:     models.TurnFromText,
		Persona:    string(p),
	})
}

func (o *Orchestrator) testRequest(e *session.Entry, action string) {
	text, ok := testSentences[action]
	if !ok {
		o.send(e, models.EventStatus, models.StatusPayload{
			Connected:      true,
			ActiveSessions: o.reg.Count(),
			Error:          fmt.Sprintf("Unknown test action: %s", action),
		})
		return
	}
	if !o.enqueue(e, models.Turn{Text: text, DetectedAt: time.Now(), Source: models.TurnFromTest}) {
		return
	}
	o.send(e, models.EventStatus, models.StatusPayload{
		Connected:      true,
		ActiveSessions: o.reg.Count(),
		Message:        "Audio streaming test started",
	})
}

func (o *Orchestrator) enqueue(e *session.Entry, t models.Turn) bool {
	const op = "orchestrator.enqueue"

	if e.Enqueue(t) {
		return true
	}
	if e.Closed() {
		return false
	}
	o.opts.Metrics.RecordTurn(string(t.Source), "dropped")
	o.log.WithFields(logrus.Fields{"conn_id": e.ConnectionID(), "source": t.Source}).Warn("turn queue full, turn dropped")
	o.sendError(e, utils.E(utils.CodeUnavailable, op, "Still working on your previous message, please try again", nil))
	return false
}

// startWorker consumes the session's turns one at a time, so the stages of
// a session never overlap while audio capture continues.
func (o *Orchestrator) startWorker(e *session.Entry) {
	e.Go(func(ctx context.Context) {
		for {
			select {
			case <-ctx.Done():
				return
			case t := <-e.Turns():
				o.runTurn(ctx, e, t)
			}
		}
	})
}

func (o *Orchestrator) decode(e *session.Entry, env models.Envelope, dst any) bool {
	const op = "orchestrator.decode"

	if len(env.Data) == 0 {
		return true
	}
	if err := json.Unmarshal(env.Data, dst); err != nil {
		o.sendError(e, utils.E(utils.CodeInvalidArgument, op, "malformed "+env.Type+" payload", err))
		return false
	}
	return true
}

func (o *Orchestrator) send(e *session.Entry, eventType string, payload any) {
	if err := e.Sender().Send(eventType, payload); err != nil {
		o.log.WithFields(logrus.Fields{"conn_id": e.ConnectionID(), "event": eventType}).
			WithError(err).Debug("event not delivered")
	}
}

func (o *Orchestrator) sendError(e *session.Entry, err error) {
	o.send(e, models.EventError, models.ErrorPayload{
		Message: utils.Message(err),
		Code:    string(utils.CodeOf(err)),
	})
}

func (o *Orchestrator) audit(e *session.Entry, fn func(ctx context.Context, a services.SessionAudit) error) {
	if o.opts.Audit == nil {
		return
	}
	e.Go(func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.opts.PersistTimeout)
		defer cancel()
		if err := fn(ctx, o.opts.Audit); err != nil {
			o.log.WithFields(logrus.Fields{"conn_id": e.ConnectionID(), "stage": "audit"}).WithError(err).Warn("session audit failed")
		}
	})
}

func (o *Orchestrator) endAudit(s models.Session) {
	if o.opts.Audit == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), o.opts.PersistTimeout)
	defer cancel()
	if err := o.opts.Audit.Ended(ctx, s); err != nil {
		o.log.WithFields(logrus.Fields{"conn_id": s.ConnectionID, "stage": "audit"}).WithError(err).Warn("session audit failed")
	}
}

func transcriptionPayload(ev models.TranscriptEvent) models.TranscriptionPayload {
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return models.TranscriptionPayload{
		Text:      ev.Text,
		Final:     ev.Kind == models.TranscriptFinal,
		Timestamp: ts.UTC().Format(time.RFC3339Nano),
	}
}

func recognitionErrorMessage(err error) string {
	switch utils.CodeOf(err) {
	case utils.CodeConfiguration:
		return "Speech recognition is not configured. Set ASSEMBLYAI_API_KEY or enable Google Speech."
	case utils.CodeTimeout:
		return "Speech recognition connection timed out. Please try again."
	case utils.CodeConnection:
		return "Failed to connect to speech recognition. Check your API key and internet connection."
	default:
		return "Transcription start failed: " + utils.Message(err)
	}
}

func characterCount(s string) int { return utf8.RuneCountInString(s) }
