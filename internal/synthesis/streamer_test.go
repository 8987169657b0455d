package synthesis

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yoockh/voxaura/internal/cache"
	"github.com/yoockh/voxaura/internal/logger"
	"github.com/yoockh/voxaura/internal/models"
	"github.com/yoockh/voxaura/internal/persona"
	"github.com/yoockh/voxaura/internal/utils"
)

type recordingEmitter struct {
	mu          sync.Mutex
	chunks      []models.AudioChunk
	completed   bool
	totalChunks int
	totalSize   int
	errs        []error
	failAt      int
}

func (r *recordingEmitter) EmitChunk(c models.AudioChunk) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failAt > 0 && c.Sequence == r.failAt {
		return errors.New("client went away")
	}
	r.chunks = append(r.chunks, c)
	return nil
}

func (r *recordingEmitter) EmitComplete(totalChunks, totalSize int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed = true
	r.totalChunks = totalChunks
	r.totalSize = totalSize
	return nil
}

func (r *recordingEmitter) EmitError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

type fakeSynth struct {
	configured bool
	payload    models.AudioPayload
	err        error
	calls      int
}

func (f *fakeSynth) Configured() bool { return f.configured }
func (f *fakeSynth) Name() string     { return "fake" }
func (f *fakeSynth) Synthesize(context.Context, string, persona.Profile) (models.AudioPayload, error) {
	f.calls++
	return f.payload, f.err
}

func noDelay() Options { return Options{ChunkSize: 1024} }

func TestSplit_SequencesAndSizes(t *testing.T) {
	for _, n := range []int{0, 1, 1023, 1024, 1025, 5000} {
		p := models.NewAudioPayload(bytes.Repeat([]byte("x"), n), "mp3", false)
		chunks := Split(p, 1024)

		want := (n + 1023) / 1024
		require.Len(t, chunks, want, "n=%d", n)
		sum := 0
		for i, c := range chunks {
			assert.Equal(t, i+1, c.Sequence)
			assert.Equal(t, want, c.TotalChunks)
			assert.Equal(t, len(c.Fragment), c.FragmentSize)
			assert.LessOrEqual(t, c.FragmentSize, 1024)
			sum += c.FragmentSize
		}
		assert.Equal(t, n, sum)
	}
}

func TestMockPayload_Deterministic(t *testing.T) {
	a := MockPayload("Hello world")
	b := MockPayload("Hello world")
	c := MockPayload("Hello there")

	assert.Equal(t, a.Encoded, b.Encoded)
	assert.NotEqual(t, a.Encoded, c.Encoded)
	assert.True(t, a.Mock)
	assert.Zero(t, a.TotalLength%200)

	// 33 bytes of the marker encode to exactly 44 characters
	prefix := base64.StdEncoding.EncodeToString([]byte("MOCK_AUDIO_DATA_FOR_TEXT_11_CHARS_"))[:44]
	assert.True(t, strings.HasPrefix(string(a.Encoded), prefix))
}

func TestStream_BackendFailureStillCompletes(t *testing.T) {
	synth := &fakeSynth{configured: true, err: utils.E(utils.CodeConnection, "op", "down", nil)}
	s := NewStreamer(synth, noDelay(), logger.Discard())
	em := &recordingEmitter{}

	require.NoError(t, s.SynthesizeAndStream(context.Background(), "c-1", "Hello world", persona.Default, em))

	mock := MockPayload("Hello world")
	assert.True(t, em.completed)
	assert.Equal(t, (mock.TotalLength+1023)/1024, em.totalChunks)
	assert.Equal(t, mock.TotalLength, em.totalSize)
	assert.Len(t, em.chunks, em.totalChunks)
	assert.Empty(t, em.errs)
}

func TestStream_UnconfiguredNeverCallsBackend(t *testing.T) {
	synth := &fakeSynth{configured: false}
	s := NewStreamer(synth, noDelay(), logger.Discard())
	em := &recordingEmitter{}

	require.NoError(t, s.SynthesizeAndStream(context.Background(), "c-1", "Hello world", persona.Default, em))
	assert.Zero(t, synth.calls)
	assert.True(t, em.completed)
}

func TestStream_RealPayload(t *testing.T) {
	enc := []byte(strings.Repeat("Q", 2500))
	synth := &fakeSynth{configured: true, payload: models.NewAudioPayload(enc, "mp3", false)}
	s := NewStreamer(synth, noDelay(), logger.Discard())
	em := &recordingEmitter{}

	require.NoError(t, s.SynthesizeAndStream(context.Background(), "c-1", "hi", persona.Pirate, em))
	require.Len(t, em.chunks, 3)
	assert.Equal(t, 3, em.totalChunks)
	assert.Equal(t, 2500, em.totalSize)
	assert.Equal(t, 452, em.chunks[2].FragmentSize)
}

func TestStream_EmitFailureAborts(t *testing.T) {
	enc := []byte(strings.Repeat("Q", 4096))
	synth := &fakeSynth{configured: true, payload: models.NewAudioPayload(enc, "mp3", false)}
	s := NewStreamer(synth, noDelay(), logger.Discard())
	em := &recordingEmitter{failAt: 2}

	err := s.SynthesizeAndStream(context.Background(), "c-1", "hi", persona.Default, em)
	require.Error(t, err)
	assert.Len(t, em.chunks, 1)
	assert.False(t, em.completed)
	assert.Len(t, em.errs, 1)
}

func TestStream_CancelStopsPacing(t *testing.T) {
	enc := []byte(strings.Repeat("Q", 4096))
	synth := &fakeSynth{configured: true, payload: models.NewAudioPayload(enc, "mp3", false)}
	s := NewStreamer(synth, Options{ChunkSize: 1024, ChunkDelay: time.Hour}, logger.Discard())
	em := &recordingEmitter{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.SynthesizeAndStream(ctx, "c-1", "hi", persona.Default, em) }()

	require.Eventually(t, func() bool {
		em.mu.Lock()
		defer em.mu.Unlock()
		return len(em.chunks) == 1
	}, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("stream did not stop on cancel")
	}
	assert.False(t, em.completed)
	assert.Empty(t, em.errs)
}

func TestSynthesize_UsesCache(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	synth := &fakeSynth{configured: true, payload: models.NewAudioPayload([]byte("QUJD"), "mp3", false)}
	s := NewStreamer(synth, noDelay(), logger.Discard()).
		WithCache(cache.NewAudioCache(cache.NewRedisCache(rdb, cache.DefaultPrefix), time.Hour))

	prof := persona.Lookup(persona.Default)
	first := s.Synthesize(context.Background(), "hello", prof)
	second := s.Synthesize(context.Background(), "hello", prof)

	assert.Equal(t, 1, synth.calls)
	assert.Equal(t, first.Encoded, second.Encoded)
	assert.False(t, second.Mock)
}

type memArchive struct {
	names []string
	data  [][]byte
}

func (m *memArchive) Archive(_ context.Context, name, _ string, r io.Reader) (string, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	m.names = append(m.names, name)
	m.data = append(m.data, b)
	return "mem://" + name, nil
}

func TestStream_ArchivesRealAudioOnly(t *testing.T) {
	enc := []byte(base64.StdEncoding.EncodeToString([]byte("mp3-bytes")))
	synth := &fakeSynth{configured: true, payload: models.NewAudioPayload(enc, "mp3", false)}
	arch := &memArchive{}
	s := NewStreamer(synth, noDelay(), logger.Discard()).WithArchive(arch)

	require.NoError(t, s.SynthesizeAndStream(context.Background(), "c-9", "hi", persona.Default, &recordingEmitter{}))
	require.Len(t, arch.names, 1)
	assert.True(t, strings.HasPrefix(arch.names[0], "audio/c-9/"))
	assert.Equal(t, []byte("mp3-bytes"), arch.data[0])

	synth.configured = false
	require.NoError(t, s.SynthesizeAndStream(context.Background(), "c-9", "hi", persona.Default, &recordingEmitter{}))
	assert.Len(t, arch.names, 1)
}
