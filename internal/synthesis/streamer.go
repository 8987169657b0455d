package synthesis

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"hash/fnv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/yoockh/voxaura/internal/cache"
	"github.com/yoockh/voxaura/internal/models"
	"github.com/yoockh/voxaura/internal/persona"
	"github.com/yoockh/voxaura/internal/providers/tts"
	"github.com/yoockh/voxaura/internal/storage"
)

const (
	DefaultChunkSize  = 1024
	DefaultChunkDelay = 200 * time.Millisecond
	DefaultTimeout    = 30 * time.Second

	mockBlock     = 200
	archiveBudget = 10 * time.Second
)

// Emitter receives one stream of audio chunks. EmitComplete follows the last
// chunk; after a failed emit only EmitError is called.
type Emitter interface {
	EmitChunk(c models.AudioChunk) error
	EmitComplete(totalChunks, totalSize int) error
	EmitError(err error)
}

type Options struct {
	ChunkSize  int
	ChunkDelay time.Duration
	Timeout    time.Duration
}

type Streamer struct {
	synth   tts.Synthesizer
	cache   *cache.AudioCache
	archive storage.Archiver
	opts    Options
	log     *logrus.Logger
}

// NewStreamer accepts a nil synthesizer, which streams mock audio only.
func NewStreamer(synth tts.Synthesizer, opts Options, log *logrus.Logger) *Streamer {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.ChunkDelay < 0 {
		opts.ChunkDelay = 0
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Streamer{synth: synth, opts: opts, log: log}
}

// WithCache serves repeated replies from c.
func (s *Streamer) WithCache(c *cache.AudioCache) *Streamer {
	s.cache = c
	return s
}

// WithArchive stores every real clip in a after it has been streamed.
func (s *Streamer) WithArchive(a storage.Archiver) *Streamer {
	s.archive = a
	return s
}

func (s *Streamer) Configured() bool { return s.synth != nil && s.synth.Configured() }

// Synthesize never fails: any backend problem yields the mock payload.
func (s *Streamer) Synthesize(ctx context.Context, text string, prof persona.Profile) models.AudioPayload {
	log := s.log.WithFields(logrus.Fields{"stage": "synthesis", "voice": prof.VoiceID})
	if !s.Configured() {
		return MockPayload(text)
	}
	backend := s.synth.Name()

	if s.cache != nil {
		e, hit, err := s.cache.Get(ctx, backend+":"+prof.VoiceID, text)
		if err != nil {
			log.WithError(err).Debug("audio cache read failed")
		}
		if hit {
			return models.NewAudioPayload([]byte(e.Encoded), e.Format, false)
		}
	}

	sctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()
	p, err := s.synth.Synthesize(sctx, text, prof)
	if err != nil || p.TotalLength == 0 {
		if err != nil {
			log.WithField("backend", backend).WithError(err).Warn("synthesis failed, using mock audio")
		}
		return MockPayload(text)
	}

	if s.cache != nil {
		entry := cache.AudioEntry{Encoded: string(p.Encoded), Format: p.Format, Backend: backend}
		if err := s.cache.Put(ctx, backend+":"+prof.VoiceID, text, entry); err != nil {
			log.WithError(err).Debug("audio cache write failed")
		}
	}
	return p
}

// SynthesizeAndStream synthesizes text and delivers it as paced chunks.
// Cancellation of ctx stops delivery without further events.
func (s *Streamer) SynthesizeAndStream(ctx context.Context, connID, text string, p persona.Persona, em Emitter) error {
	prof := persona.Lookup(p)
	payload := s.Synthesize(ctx, text, prof)
	if err := ctx.Err(); err != nil {
		return err
	}

	chunks := Split(payload, s.opts.ChunkSize)
	log := s.log.WithFields(logrus.Fields{
		"conn_id": connID,
		"stage":   "synthesis",
		"chunks":  len(chunks),
		"size":    payload.TotalLength,
		"mock":    payload.Mock,
	})
	log.Info("audio stream started")

	for i, c := range chunks {
		if i > 0 && s.opts.ChunkDelay > 0 {
			if err := sleep(ctx, s.opts.ChunkDelay); err != nil {
				return err
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}
		if err := em.EmitChunk(c); err != nil {
			log.WithError(err).Warn("audio chunk delivery failed")
			em.EmitError(err)
			return err
		}
	}
	if err := em.EmitComplete(len(chunks), payload.TotalLength); err != nil {
		em.EmitError(err)
		return err
	}
	log.Info("audio stream complete")

	if s.archive != nil && !payload.Mock {
		s.archiveClip(ctx, connID, text, prof, payload, log)
	}
	return nil
}

func (s *Streamer) archiveClip(ctx context.Context, connID, text string, prof persona.Profile, p models.AudioPayload, log *logrus.Entry) {
	raw, err := base64.StdEncoding.DecodeString(string(p.Encoded))
	if err != nil {
		log.WithError(err).Debug("skip archive: payload is not valid base64")
		return
	}
	actx, cancel := context.WithTimeout(ctx, archiveBudget)
	defer cancel()

	name := fmt.Sprintf("audio/%s/%d-%08x.%s", connID, time.Now().UTC().UnixMilli(), fnvHash(prof.VoiceID+"|"+text), p.Format)
	path, err := s.archive.Archive(actx, name, "audio/mpeg", bytes.NewReader(raw))
	if err != nil {
		log.WithError(err).Warn("audio archive failed")
		return
	}
	log.WithField("path", path).Debug("audio archived")
}

// MockPayload builds the stand-in clip used when no backend audio is
// available. The same text always yields the same payload.
func MockPayload(text string) models.AudioPayload {
	marker := fmt.Sprintf("MOCK_AUDIO_DATA_FOR_TEXT_%d_CHARS_%08x", utf8.RuneCountInString(text), fnvHash(text))
	enc := base64.StdEncoding.EncodeToString([]byte(marker))
	enc += strings.Repeat("A", mockBlock-len(enc)%mockBlock)
	return models.NewAudioPayload([]byte(enc), tts.FormatMP3, true)
}

// Split cuts the encoded payload into fragments of at most size bytes,
// numbered from 1, each carrying the total count.
func Split(p models.AudioPayload, size int) []models.AudioChunk {
	if size <= 0 {
		size = DefaultChunkSize
	}
	n := len(p.Encoded)
	total := (n + size - 1) / size
	out := make([]models.AudioChunk, 0, total)
	for i := 0; i < total; i++ {
		start := i * size
		end := start + size
		if end > n {
			end = n
		}
		out = append(out, models.AudioChunk{
			Sequence:     i + 1,
			Fragment:     string(p.Encoded[start:end]),
			FragmentSize: end - start,
			TotalChunks:  total,
		})
	}
	return out
}

func fnvHash(s string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return h.Sum32()
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
