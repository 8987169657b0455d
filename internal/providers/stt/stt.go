package stt

import (
	"context"
	"errors"

	"github.com/yoockh/voxaura/internal/models"
)

// Audio contract shared by every recognizer: mono, 16-bit PCM, 16 kHz.
const (
	SampleRateHz  = 16000
	Channels      = 1
	BitsPerSample = 16
)

var ErrStreamClosed = errors.New("recognition stream closed")

// Callbacks are invoked from the stream's reader goroutine.
// OnClose fires exactly once; err is nil when the stream was closed locally.
type Callbacks struct {
	OnTranscript func(ev models.TranscriptEvent)
	OnClose      func(err error)
}

type Stream interface {
	SendAudio(audio []byte) error
	Close() error
}

// Recognizer opens live recognition streams. Open must return a
// CodeConfiguration error without any network attempt when Configured is false.
type Recognizer interface {
	Configured() bool
	Open(ctx context.Context, cb Callbacks) (Stream, error)
}

func (cb Callbacks) transcript(ev models.TranscriptEvent) {
	if cb.OnTranscript != nil {
		cb.OnTranscript(ev)
	}
}

func (cb Callbacks) closed(err error) {
	if cb.OnClose != nil {
		cb.OnClose(err)
	}
}
