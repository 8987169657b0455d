package turn

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yoockh/voxaura/internal/models"
)

func final(text string) models.TranscriptEvent {
	return models.TranscriptEvent{Kind: models.TranscriptFinal, Text: text, Timestamp: time.Now()}
}

func partial(text string) models.TranscriptEvent {
	return models.TranscriptEvent{Kind: models.TranscriptPartial, Text: text, Timestamp: time.Now()}
}

func TestPartialEventsNeverProduceTurns(t *testing.T) {
	d := NewDetector(0)
	for _, text := range []string{"hel", "hello", "hello there", "hello there how are you"} {
		_, ok := d.Feed(partial(text))
		assert.False(t, ok)
		assert.Equal(t, Listening, d.State())
	}
}

func TestFinalEventProducesTurnAndReturnsToListening(t *testing.T) {
	d := NewDetector(0)
	conf := 0.92
	ev := final("  what is the weather  ")
	ev.Confidence = &conf

	turn, ok := d.Feed(ev)
	require.True(t, ok)
	assert.Equal(t, "what is the weather", turn.Text)
	assert.InDelta(t, 0.92, turn.Confidence, 1e-9)
	assert.Equal(t, models.TurnFromVoice, turn.Source)
	assert.False(t, turn.DetectedAt.IsZero())
	assert.Equal(t, Listening, d.State())
}

func TestShortFinalsAreIgnored(t *testing.T) {
	d := NewDetector(0)
	for _, text := range []string{"", "   ", "ok", "yes", " hi  "} {
		_, ok := d.Feed(final(text))
		assert.False(t, ok, "text %q", text)
	}
	_, ok := d.Feed(final("okay"))
	assert.True(t, ok)
}

func TestRapidFinalsAreNotDebounced(t *testing.T) {
	d := NewDetector(0)
	var turns []models.Turn
	for _, text := range []string{"first sentence", "second sentence", "third sentence"} {
		if turn, ok := d.Feed(final(text)); ok {
			turns = append(turns, turn)
		}
	}
	require.Len(t, turns, 3)
	assert.Equal(t, "second sentence", turns[1].Text)
}
