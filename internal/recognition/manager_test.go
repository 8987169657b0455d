package recognition

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yoockh/voxaura/internal/logger"
	"github.com/yoockh/voxaura/internal/models"
	"github.com/yoockh/voxaura/internal/providers/stt"
	"github.com/yoockh/voxaura/internal/session"
	"github.com/yoockh/voxaura/internal/utils"
)

type nopSender struct{}

func (nopSender) Send(string, any) error { return nil }

type fakeStream struct {
	cb     stt.Callbacks
	mu     sync.Mutex
	audio  [][]byte
	closed atomic.Bool
}

func (f *fakeStream) SendAudio(b []byte) error {
	if f.closed.Load() {
		return stt.ErrStreamClosed
	}
	f.mu.Lock()
	f.audio = append(f.audio, b)
	f.mu.Unlock()
	return nil
}

func (f *fakeStream) Close() error {
	if f.closed.CompareAndSwap(false, true) {
		f.cb.OnClose(nil)
	}
	return nil
}

func (f *fakeStream) frames() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.audio)
}

type fakeRecognizer struct {
	configured bool
	openErr    error
	dials      atomic.Int32

	mu      sync.Mutex
	streams []*fakeStream
}

func (f *fakeRecognizer) Configured() bool { return f.configured }

func (f *fakeRecognizer) Open(_ context.Context, cb stt.Callbacks) (stt.Stream, error) {
	f.dials.Add(1)
	if f.openErr != nil {
		return nil, f.openErr
	}
	s := &fakeStream{cb: cb}
	f.mu.Lock()
	f.streams = append(f.streams, s)
	f.mu.Unlock()
	return s, nil
}

func (f *fakeRecognizer) stream(i int) *fakeStream {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.streams[i]
}

func setup(rec stt.Recognizer) (*Manager, *session.Registry, *session.Entry) {
	reg := session.NewRegistry(session.Options{})
	e := reg.Register("s-1", "c-1", nopSender{})
	return NewManager(reg, rec, time.Second, logger.Discard()), reg, e
}

func TestStart_NotConfiguredMakesNoNetworkAttempt(t *testing.T) {
	rec := &fakeRecognizer{configured: false}
	m, _, e := setup(rec)

	err := m.Start(context.Background(), "c-1", Handlers{})
	require.Error(t, err)
	assert.True(t, utils.IsCode(err, utils.CodeConfiguration))
	assert.EqualValues(t, 0, rec.dials.Load())
	assert.False(t, e.Snapshot().RecognitionActive)
	assert.False(t, m.Active("c-1"))
}

func TestStart_UnknownSession(t *testing.T) {
	m, _, _ := setup(&fakeRecognizer{configured: true})
	err := m.Start(context.Background(), "missing", Handlers{})
	assert.True(t, utils.IsCode(err, utils.CodeNotFound))
}

func TestStart_DialFailureIsConnectionError(t *testing.T) {
	rec := &fakeRecognizer{configured: true, openErr: errors.New("connection refused")}
	m, _, e := setup(rec)

	err := m.Start(context.Background(), "c-1", Handlers{})
	assert.True(t, utils.IsCode(err, utils.CodeConnection))
	assert.False(t, e.Snapshot().RecognitionActive)
}

func TestStart_ReplacesExistingStream(t *testing.T) {
	rec := &fakeRecognizer{configured: true}
	m, _, e := setup(rec)

	require.NoError(t, m.Start(context.Background(), "c-1", Handlers{}))
	require.NoError(t, m.Start(context.Background(), "c-1", Handlers{}))

	assert.True(t, rec.stream(0).closed.Load())
	assert.False(t, rec.stream(1).closed.Load())

	snap := e.Snapshot()
	assert.True(t, snap.RecognitionActive)
	assert.Equal(t, models.StateRecognizing, snap.State)
}

func TestSendAudio_ForwardsOnlyWhileOpen(t *testing.T) {
	rec := &fakeRecognizer{configured: true}
	m, _, _ := setup(rec)

	m.SendAudio("c-1", []byte{1})

	require.NoError(t, m.Start(context.Background(), "c-1", Handlers{}))
	m.SendAudio("c-1", []byte{1, 2})
	assert.Equal(t, 1, rec.stream(0).frames())

	m.Stop("c-1")
	m.Stop("c-1")
	m.SendAudio("c-1", []byte{3})
	assert.Equal(t, 1, rec.stream(0).frames())
	assert.False(t, m.Active("c-1"))
}

func TestTranscriptsRoutedByKind(t *testing.T) {
	rec := &fakeRecognizer{configured: true}
	m, _, _ := setup(rec)

	var partials, finals atomic.Int32
	require.NoError(t, m.Start(context.Background(), "c-1", Handlers{
		OnPartial: func(models.TranscriptEvent) { partials.Add(1) },
		OnFinal:   func(models.TranscriptEvent) { finals.Add(1) },
	}))

	cb := rec.stream(0).cb
	cb.OnTranscript(models.TranscriptEvent{Kind: models.TranscriptPartial, Text: "hel"})
	cb.OnTranscript(models.TranscriptEvent{Kind: models.TranscriptFinal, Text: "hello"})

	assert.EqualValues(t, 1, partials.Load())
	assert.EqualValues(t, 1, finals.Load())
}

func TestBackendDisconnectSetsErrorState(t *testing.T) {
	rec := &fakeRecognizer{configured: true}
	m, _, e := setup(rec)

	var status, message string
	require.NoError(t, m.Start(context.Background(), "c-1", Handlers{
		OnStatus: func(s, msg string) { status, message = s, msg },
	}))

	rec.stream(0).cb.OnClose(errors.New("socket reset"))

	snap := e.Snapshot()
	assert.Equal(t, models.StateError, snap.State)
	assert.False(t, snap.RecognitionActive)
	assert.Equal(t, StatusError, status)
	assert.NotEmpty(t, message)
	assert.False(t, m.Active("c-1"))
}

func TestStaleStreamCallbacksIgnored(t *testing.T) {
	rec := &fakeRecognizer{configured: true}
	m, _, e := setup(rec)

	var finals atomic.Int32
	h := Handlers{OnFinal: func(models.TranscriptEvent) { finals.Add(1) }}
	require.NoError(t, m.Start(context.Background(), "c-1", h))
	require.NoError(t, m.Start(context.Background(), "c-1", h))

	old := rec.stream(0).cb
	old.OnTranscript(models.TranscriptEvent{Kind: models.TranscriptFinal, Text: "late words"})
	old.OnClose(errors.New("late failure"))

	assert.EqualValues(t, 0, finals.Load())
	assert.Equal(t, models.StateRecognizing, e.Snapshot().State)
	assert.True(t, m.Active("c-1"))
}
