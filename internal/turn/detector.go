package turn

import (
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/yoockh/voxaura/internal/models"
)

type State string

const (
	Listening State = "listening"
	TurnReady State = "turn_ready"
)

// DefaultMinChars is the trimmed transcript length a final event must exceed.
const DefaultMinChars = 3

// Detector turns final transcript events into Turns. Partial events never
// produce a Turn and every qualifying final produces its own Turn.
type Detector struct {
	mu       sync.Mutex
	state    State
	minChars int
	now      func() time.Time
}

func NewDetector(minChars int) *Detector {
	if minChars <= 0 {
		minChars = DefaultMinChars
	}
	return &Detector{state: Listening, minChars: minChars, now: time.Now}
}

func (d *Detector) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Feed consumes one transcript event.
func (d *Detector) Feed(ev models.TranscriptEvent) (models.Turn, bool) {
	if ev.Kind != models.TranscriptFinal {
		return models.Turn{}, false
	}
	text := strings.TrimSpace(ev.Text)
	if utf8.RuneCountInString(text) <= d.minChars {
		return models.Turn{}, false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.state = TurnReady
	t := models.Turn{
		Text:       text,
		DetectedAt: d.now(),
		Source:     models.TurnFromVoice,
	}
	if ev.Confidence != nil {
		t.Confidence = *ev.Confidence
	}
	d.state = Listening
	return t, true
}
