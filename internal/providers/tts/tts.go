package tts

import (
	"context"

	"github.com/yoockh/voxaura/internal/models"
	"github.com/yoockh/voxaura/internal/persona"
)

const FormatMP3 = "mp3"

// Synthesizer turns a reply into base64 encoded audio for a persona's voice.
type Synthesizer interface {
	Configured() bool
	Name() string
	Synthesize(ctx context.Context, text string, voice persona.Profile) (models.AudioPayload, error)
}
