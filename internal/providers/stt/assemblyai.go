package stt

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/yoockh/voxaura/internal/models"
	"github.com/yoockh/voxaura/internal/utils"
)

const DefaultAssemblyAIURL = "wss://api.assemblyai.com/v2/realtime/ws"

var ErrSessionTerminated = errors.New("recognition session terminated by backend")

// AssemblyAI streams base64 PCM frames to the AssemblyAI realtime websocket.
type AssemblyAI struct {
	apiKey  string
	baseURL string
	dialer  *websocket.Dialer
	now     func() time.Time
}

func NewAssemblyAI(apiKey, baseURL string) *AssemblyAI {
	if baseURL == "" {
		baseURL = DefaultAssemblyAIURL
	}
	return &AssemblyAI{
		apiKey:  strings.TrimSpace(apiKey),
		baseURL: baseURL,
		dialer:  websocket.DefaultDialer,
		now:     time.Now,
	}
}

func (a *AssemblyAI) Configured() bool { return a.apiKey != "" }

type assemblyMessage struct {
	MessageType string   `json:"message_type"`
	Text        string   `json:"text"`
	Confidence  *float64 `json:"confidence"`
	Error       string   `json:"error"`
}

func (a *AssemblyAI) Open(ctx context.Context, cb Callbacks) (Stream, error) {
	const op = "stt.AssemblyAI.Open"
	if !a.Configured() {
		return nil, utils.E(utils.CodeConfiguration, op, "ASSEMBLYAI_API_KEY is not set", nil)
	}

	u, err := url.Parse(a.baseURL)
	if err != nil {
		return nil, utils.E(utils.CodeConfiguration, op, "invalid recognition url", err)
	}
	q := u.Query()
	q.Set("sample_rate", strconv.Itoa(SampleRateHz))
	u.RawQuery = q.Encode()

	conn, _, err := a.dialer.DialContext(ctx, u.String(), http.Header{"Authorization": {a.apiKey}})
	if err != nil {
		return nil, utils.FromDial(op, err)
	}

	if err := awaitSessionBegins(ctx, conn); err != nil {
		_ = conn.Close()
		if ctx.Err() != nil {
			return nil, utils.FromDial(op, ctx.Err())
		}
		return nil, utils.FromDial(op, err)
	}

	s := &assemblyStream{conn: conn, cb: cb, now: a.now}
	go s.readLoop()
	return s, nil
}

// awaitSessionBegins blocks until the backend acknowledges the session.
func awaitSessionBegins(ctx context.Context, conn *websocket.Conn) (err error) {
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer func() {
		// stop reports false once the close has run; the socket is gone then
		if !stop() && err == nil {
			err = ctx.Err()
		}
	}()

	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(dl)
		defer conn.SetReadDeadline(time.Time{})
	}

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var msg assemblyMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		if msg.Error != "" {
			return fmt.Errorf("assemblyai: %s", msg.Error)
		}
		switch msg.MessageType {
		case "SessionBegins":
			return nil
		case "SessionTerminated":
			return ErrSessionTerminated
		}
	}
}

type assemblyStream struct {
	conn   *websocket.Conn
	connMu sync.Mutex
	cb     Callbacks
	now    func() time.Time

	closing atomic.Bool
	once    sync.Once
}

func (s *assemblyStream) SendAudio(audio []byte) error {
	if s.closing.Load() {
		return ErrStreamClosed
	}
	s.connMu.Lock()
	defer s.connMu.Unlock()

	frame := struct {
		AudioData string `json:"audio_data"`
	}{AudioData: base64.StdEncoding.EncodeToString(audio)}
	if err := s.conn.WriteJSON(frame); err != nil {
		return fmt.Errorf("failed to write to assemblyai: %w", err)
	}
	return nil
}

func (s *assemblyStream) Close() error {
	if !s.closing.CompareAndSwap(false, true) {
		return nil
	}
	s.connMu.Lock()
	_ = s.conn.WriteJSON(map[string]bool{"terminate_session": true})
	_ = s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	s.connMu.Unlock()
	return s.conn.Close()
}

func (s *assemblyStream) finish(err error) {
	s.once.Do(func() {
		_ = s.conn.Close()
		if s.closing.Load() {
			s.cb.closed(nil)
			return
		}
		s.cb.closed(err)
	})
}

func (s *assemblyStream) readLoop() {
	for {
		msgType, raw, err := s.conn.ReadMessage()
		if err != nil {
			s.finish(fmt.Errorf("assemblyai connection lost: %w", err))
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var msg assemblyMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		if msg.Error != "" {
			s.finish(fmt.Errorf("assemblyai: %s", msg.Error))
			return
		}

		switch msg.MessageType {
		case "PartialTranscript", "FinalTranscript":
			text := strings.TrimSpace(msg.Text)
			if text == "" {
				continue
			}
			ev := models.TranscriptEvent{Kind: models.TranscriptPartial, Text: text, Timestamp: s.now().UTC()}
			if msg.MessageType == "FinalTranscript" {
				ev.Kind = models.TranscriptFinal
				ev.Confidence = msg.Confidence
			}
			s.cb.transcript(ev)
		case "SessionTerminated":
			s.finish(ErrSessionTerminated)
			return
		}
	}
}
