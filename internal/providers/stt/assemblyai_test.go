package stt

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yoockh/voxaura/internal/models"
	"github.com/yoockh/voxaura/internal/utils"
)

func newAssemblyServer(t *testing.T, handler func(conn *websocket.Conn, r *http.Request)) (string, func()) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		handler(conn, r)
	}))
	return "ws" + strings.TrimPrefix(srv.URL, "http"), srv.Close
}

type recorder struct {
	mu     sync.Mutex
	events []models.TranscriptEvent
	closed chan error
}

func newRecorder() *recorder { return &recorder{closed: make(chan error, 1)} }

func (r *recorder) callbacks() Callbacks {
	return Callbacks{
		OnTranscript: func(ev models.TranscriptEvent) {
			r.mu.Lock()
			r.events = append(r.events, ev)
			r.mu.Unlock()
		},
		OnClose: func(err error) { r.closed <- err },
	}
}

func (r *recorder) snapshot() []models.TranscriptEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.TranscriptEvent(nil), r.events...)
}

func TestAssemblyAI_NotConfiguredNeverDials(t *testing.T) {
	a := NewAssemblyAI("  ", "ws://127.0.0.1:1")
	assert.False(t, a.Configured())

	_, err := a.Open(context.Background(), Callbacks{})
	require.Error(t, err)
	assert.True(t, utils.IsCode(err, utils.CodeConfiguration))
}

func TestAssemblyAI_DialFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer srv.Close()

	a := NewAssemblyAI("key", "ws"+strings.TrimPrefix(srv.URL, "http"))
	_, err := a.Open(context.Background(), Callbacks{})
	require.Error(t, err)
	assert.True(t, utils.IsCode(err, utils.CodeConnection))
}

func TestAssemblyAI_HandshakeTimeout(t *testing.T) {
	url, stop := newAssemblyServer(t, func(conn *websocket.Conn, _ *http.Request) {
		// never sends SessionBegins
		_, _, _ = conn.ReadMessage()
	})
	defer stop()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := NewAssemblyAI("key", url).Open(ctx, Callbacks{})
	require.Error(t, err)
	assert.True(t, utils.IsCode(err, utils.CodeTimeout))
}

func TestAssemblyAI_StreamsTranscripts(t *testing.T) {
	gotAudio := make(chan []byte, 1)
	url, stop := newAssemblyServer(t, func(conn *websocket.Conn, r *http.Request) {
		if r.Header.Get("Authorization") != "key" || r.URL.Query().Get("sample_rate") != "16000" {
			return
		}
		_ = conn.WriteJSON(map[string]any{"message_type": "SessionBegins"})

		var frame struct {
			AudioData string `json:"audio_data"`
		}
		if err := conn.ReadJSON(&frame); err != nil {
			return
		}
		raw, _ := base64.StdEncoding.DecodeString(frame.AudioData)
		gotAudio <- raw

		_ = conn.WriteJSON(map[string]any{"message_type": "PartialTranscript", "text": "hello"})
		_ = conn.WriteJSON(map[string]any{"message_type": "PartialTranscript", "text": "   "})
		_ = conn.WriteJSON(map[string]any{"message_type": "FinalTranscript", "text": " hello there ", "confidence": 0.87})

		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var ctl map[string]any
			if json.Unmarshal(msg, &ctl) == nil && ctl["terminate_session"] == true {
				return
			}
		}
	})
	defer stop()

	rec := newRecorder()
	s, err := NewAssemblyAI("key", url).Open(context.Background(), rec.callbacks())
	require.NoError(t, err)

	require.NoError(t, s.SendAudio([]byte{1, 2, 3, 4}))
	assert.Equal(t, []byte{1, 2, 3, 4}, <-gotAudio)

	require.Eventually(t, func() bool { return len(rec.snapshot()) == 2 }, 2*time.Second, 10*time.Millisecond)
	events := rec.snapshot()
	assert.Equal(t, models.TranscriptPartial, events[0].Kind)
	assert.Equal(t, "hello", events[0].Text)
	assert.Equal(t, models.TranscriptFinal, events[1].Kind)
	assert.Equal(t, "hello there", events[1].Text)
	require.NotNil(t, events[1].Confidence)
	assert.InDelta(t, 0.87, *events[1].Confidence, 1e-9)

	require.NoError(t, s.Close())
	select {
	case err := <-rec.closed:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("OnClose not called")
	}
	assert.ErrorIs(t, s.SendAudio([]byte{5}), ErrStreamClosed)
}

func TestAssemblyAI_BackendDisconnectReportsError(t *testing.T) {
	url, stop := newAssemblyServer(t, func(conn *websocket.Conn, _ *http.Request) {
		_ = conn.WriteJSON(map[string]any{"message_type": "SessionBegins"})
		_ = conn.WriteJSON(map[string]any{"message_type": "SessionTerminated"})
	})
	defer stop()

	rec := newRecorder()
	_, err := NewAssemblyAI("key", url).Open(context.Background(), rec.callbacks())
	require.NoError(t, err)

	select {
	case err := <-rec.closed:
		assert.ErrorIs(t, err, ErrSessionTerminated)
	case <-time.After(2 * time.Second):
		t.Fatal("OnClose not called")
	}
}

func TestAssemblyAI_StreamSurvivesDialContextCancel(t *testing.T) {
	gotAudio := make(chan struct{}, 1)
	url, stop := newAssemblyServer(t, func(conn *websocket.Conn, r *http.Request) {
		_ = conn.WriteJSON(map[string]any{"message_type": "SessionBegins"})
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if strings.Contains(string(msg), "audio_data") {
				gotAudio <- struct{}{}
			}
		}
	})
	defer stop()

	a := NewAssemblyAI("key", url)
	for i := 0; i < 20; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		rec := newRecorder()
		s, err := a.Open(ctx, rec.callbacks())
		cancel()
		require.NoError(t, err)

		require.NoError(t, s.SendAudio([]byte{1, 2}))
		select {
		case <-gotAudio:
		case err := <-rec.closed:
			t.Fatalf("stream closed after dial context cancel: %v", err)
		case <-time.After(2 * time.Second):
			t.Fatal("audio never reached the backend")
		}
		require.NoError(t, s.Close())
	}
}
