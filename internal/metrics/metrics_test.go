package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	m := New("test")

	m.SessionOpened()
	m.SessionOpened()
	m.SessionClosed("disconnect")
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SessionsActive))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SessionsTotal.WithLabelValues("disconnect")))

	m.RecordTurn("voice", "completed")
	m.RecordGeneration("fallback", false, 20*time.Millisecond)
	m.RecordAudioChunk(1024)
	m.RecordAudioChunk(10)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.TurnsTotal.WithLabelValues("voice", "completed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.GenerationsTotal.WithLabelValues("fallback", "fallback")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.AudioChunksTotal))
	assert.Equal(t, float64(1034), testutil.ToFloat64(m.AudioBytesTotal.WithLabelValues("out")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.SessionOpened()
		m.SessionClosed("x")
		m.RecordTurn("text", "completed")
		m.RecordAudioChunk(1)
		m.RecordAudioIn(1)
		m.RecordGeneration("m", true, time.Second)
		m.RecordRecognitionStart("ok")
	})
}

func TestMetrics_Handler(t *testing.T) {
	m := New("")
	m.RecordAudioChunk(5)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "voxaura_audio_chunks_sent_total 1"))
}
