package stt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"

	"github.com/yoockh/voxaura/internal/models"
	"github.com/yoockh/voxaura/internal/utils"
)

// GoogleSpeech runs StreamingRecognize with interim results. The client is
// created on first use so an unconfigured deployment never dials.
type GoogleSpeech struct {
	enabled  bool
	language string

	Encoding     speechpb.RecognitionConfig_AudioEncoding
	SampleRateHz int32

	mu sync.Mutex
	c  *speech.Client
}

// language example: "en-US", "id-ID"
func NewGoogleSpeech(enabled bool, language string) *GoogleSpeech {
	if language == "" {
		language = "en-US"
	}
	return &GoogleSpeech{
		enabled:      enabled,
		language:     language,
		Encoding:     speechpb.RecognitionConfig_LINEAR16,
		SampleRateHz: SampleRateHz,
	}
}

func (g *GoogleSpeech) Configured() bool { return g.enabled }

func (g *GoogleSpeech) client(ctx context.Context) (*speech.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.c != nil {
		return g.c, nil
	}
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	g.c = c
	return c, nil
}

func (g *GoogleSpeech) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.c == nil {
		return nil
	}
	err := g.c.Close()
	g.c = nil
	return err
}

func (g *GoogleSpeech) Open(ctx context.Context, cb Callbacks) (Stream, error) {
	const op = "stt.GoogleSpeech.Open"
	if !g.Configured() {
		return nil, utils.E(utils.CodeConfiguration, op, "google speech is not enabled", nil)
	}

	c, err := g.client(ctx)
	if err != nil {
		return nil, utils.FromDial(op, err)
	}

	// the stream outlives the connect deadline carried by ctx
	streamCtx, cancel := context.WithCancel(context.Background())
	rs, err := c.StreamingRecognize(streamCtx)
	if err != nil {
		cancel()
		return nil, utils.FromDial(op, err)
	}

	err = rs.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Encoding:                   g.Encoding,
					SampleRateHertz:            g.SampleRateHz,
					AudioChannelCount:          Channels,
					LanguageCode:               g.language,
					EnableAutomaticPunctuation: true,
				},
				InterimResults: true,
			},
		},
	})
	if err != nil {
		cancel()
		return nil, utils.FromDial(op, err)
	}
	if ctx.Err() != nil {
		cancel()
		return nil, utils.FromDial(op, ctx.Err())
	}

	s := &googleStream{rs: rs, cancel: cancel, cb: cb}
	go s.readLoop()
	return s, nil
}

type googleStream struct {
	rs     speechpb.Speech_StreamingRecognizeClient
	cancel context.CancelFunc
	cb     Callbacks

	sendMu  sync.Mutex
	closing atomic.Bool
}

func (s *googleStream) SendAudio(audio []byte) error {
	if s.closing.Load() {
		return ErrStreamClosed
	}
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	return s.rs.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{AudioContent: audio},
	})
}

func (s *googleStream) Close() error {
	if !s.closing.CompareAndSwap(false, true) {
		return nil
	}
	s.sendMu.Lock()
	err := s.rs.CloseSend()
	s.sendMu.Unlock()
	s.cancel()
	return err
}

func (s *googleStream) readLoop() {
	defer s.cancel()
	for {
		resp, err := s.rs.Recv()
		if err != nil {
			if s.closing.Load() {
				s.cb.closed(nil)
				return
			}
			if errors.Is(err, io.EOF) {
				err = ErrSessionTerminated
			}
			s.cb.closed(fmt.Errorf("google speech stream: %w", err))
			return
		}
		if st := resp.GetError(); st != nil {
			if s.closing.Load() {
				s.cb.closed(nil)
			} else {
				s.cb.closed(fmt.Errorf("google speech: %s", st.GetMessage()))
			}
			return
		}

		for _, r := range resp.GetResults() {
			alts := r.GetAlternatives()
			if len(alts) == 0 {
				continue
			}
			text := strings.TrimSpace(alts[0].GetTranscript())
			if text == "" {
				continue
			}
			ev := models.TranscriptEvent{Kind: models.TranscriptPartial, Text: text, Timestamp: time.Now().UTC()}
			if r.GetIsFinal() {
				conf := float64(alts[0].GetConfidence())
				ev.Kind = models.TranscriptFinal
				ev.Confidence = &conf
			}
			s.cb.transcript(ev)
		}
	}
}
