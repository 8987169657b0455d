package orchestrator

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yoockh/voxaura/internal/generation"
	"github.com/yoockh/voxaura/internal/models"
	"github.com/yoockh/voxaura/internal/persona"
	"github.com/yoockh/voxaura/internal/session"
	"github.com/yoockh/voxaura/internal/utils"
)

const historyWindow = 10

// runTurn takes one turn through generation and, when enabled, synthesis.
// A panic is reported to the client and the session stays registered.
func (o *Orchestrator) runTurn(ctx context.Context, e *session.Entry, t models.Turn) {
	const op = "orchestrator.runTurn"

	log := o.log.WithFields(logrus.Fields{
		"conn_id":    e.ConnectionID(),
		"session_id": e.SessionID(),
		"source":     t.Source,
	})
	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Error("turn processing panicked")
			e.Update(func(s *models.Session) {
				s.GenerationActive = false
				s.SynthesisActive = false
				s.State = s.IdleState()
			})
			o.sendError(e, utils.E(utils.CodeInternal, op, "Internal error while processing your message", nil))
		}
	}()

	e.Update(func(s *models.Session) { s.MessageCount++ })
	p := persona.Parse(t.Persona)

	if t.Source == models.TurnFromTest {
		o.synthesize(ctx, e, t.Text, p)
		return
	}

	res, ok := o.generate(ctx, e, t, p, log)
	if !ok {
		return
	}
	o.opts.Metrics.RecordTurn(string(t.Source), "completed")

	e.AppendHistory(models.RoleUser, t.Text)
	e.AppendHistory(models.RoleAssistant, res.FullText)
	o.persistExchange(e, t, p, res)

	snap := e.Snapshot()
	if res.FullText != "" && (snap.SynthesisEnabled || o.opts.SynthesisAutoStart) {
		o.synthesize(ctx, e, res.FullText, p)
	}
}

// generate forwards generation chunks to the client as they arrive and
// reports the outcome. ok is false when the session went away meanwhile.
func (o *Orchestrator) generate(ctx context.Context, e *session.Entry, t models.Turn, p persona.Persona, log *logrus.Entry) (generation.Result, bool) {
	req := generation.Request{
		Text:    t.Text,
		Persona: p,
		History: e.History(historyWindow),
	}

	e.Update(func(s *models.Session) {
		s.GenerationActive = true
		s.State = models.StateGenerating
	})
	defer e.Update(func(s *models.Session) {
		s.GenerationActive = false
		if s.State == models.StateGenerating {
			s.State = s.IdleState()
		}
	})

	type outcome struct {
		res   generation.Result
		panic any
	}

	started := time.Now()
	chunks := make(chan models.GenerationChunk, generationBuffer)
	done := make(chan outcome, 1)
	go func() {
		defer close(chunks)
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{panic: r}
			}
		}()
		done <- outcome{res: o.generator.Generate(ctx, req, chunks)}
	}()

	for c := range chunks {
		o.send(e, models.EventLLMChunk, models.LLMChunkPayload{
			Chunk:       c.Text,
			ChunkNumber: c.Sequence,
			Transcript:  t.Text,
		})
	}
	out := <-done
	if out.panic != nil {
		// re-raised on the worker so runTurn reports it
		panic(out.panic)
	}
	res := out.res
	if ctx.Err() != nil {
		return res, false
	}

	o.opts.Metrics.RecordGeneration(res.ModelUsed, res.Success, time.Since(started))
	if res.Success {
		o.send(e, models.EventLLMComplete, models.LLMCompletePayload{
			FinalResponse:  res.FullText,
			ChunkCount:     res.ChunkCount,
			CharacterCount: characterCount(res.FullText),
			ModelUsed:      res.ModelUsed,
		})
	} else {
		log.WithError(res.Err).Warn("generation fell back")
		o.send(e, models.EventLLMError, models.LLMErrorPayload{
			Error:            utils.Message(res.Err),
			FallbackResponse: res.FullText,
			Transcript:       t.Text,
		})
	}
	return res, true
}

func (o *Orchestrator) synthesize(ctx context.Context, e *session.Entry, text string, p persona.Persona) {
	e.Update(func(s *models.Session) {
		s.SynthesisActive = true
		s.State = models.StateSynthesizing
		s.StreamsStarted++
	})
	defer e.Update(func(s *models.Session) {
		s.SynthesisActive = false
		s.State = s.IdleState()
	})

	em := &clientEmitter{o: o, e: e}
	if err := o.streamer.SynthesizeAndStream(ctx, e.ConnectionID(), text, p, em); err != nil && ctx.Err() == nil {
		o.log.WithFields(logrus.Fields{"conn_id": e.ConnectionID(), "stage": "synthesis"}).
			WithError(err).Warn("audio stream aborted")
	}
}

// persistExchange writes both sides of a turn to the conversation log.
func (o *Orchestrator) persistExchange(e *session.Entry, t models.Turn, p persona.Persona, res generation.Result) {
	if o.opts.Conversations == nil {
		return
	}
	sessionID := e.SessionID()
	e.Go(func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.opts.PersistTimeout)
		defer cancel()

		log := o.log.WithFields(logrus.Fields{"session_id": sessionID, "stage": "history"})
		md := map[string]any{"source": string(t.Source), "confidence": t.Confidence}
		if _, err := o.opts.Conversations.Append(ctx, sessionID, models.RoleUser, t.Text, "", md); err != nil {
			log.WithError(err).Warn("conversation log failed")
			return
		}
		md = map[string]any{"persona": string(p), "fallback": res.Fallback}
		if _, err := o.opts.Conversations.Append(ctx, sessionID, models.RoleAssistant, res.FullText, res.ModelUsed, md); err != nil {
			log.WithError(err).Warn("conversation log failed")
		}
	})
}

// clientEmitter delivers audio chunks to the session's client and keeps the
// session's streaming counters.
type clientEmitter struct {
	o       *Orchestrator
	e       *session.Entry
	started bool
}

func (c *clientEmitter) EmitChunk(ch models.AudioChunk) error {
	if !c.started {
		c.started = true
		c.e.Update(func(s *models.Session) { s.State = models.StateStreaming })
	}
	if err := c.e.Sender().Send(models.EventAudioChunkStreamed, ch); err != nil {
		return err
	}
	c.e.Update(func(s *models.Session) {
		s.ChunksSent++
		s.BytesStreamed += int64(ch.FragmentSize)
	})
	c.o.opts.Metrics.RecordAudioChunk(ch.FragmentSize)
	return nil
}

func (c *clientEmitter) EmitComplete(totalChunks, totalSize int) error {
	return c.e.Sender().Send(models.EventAudioStreamComplete, models.AudioStreamCompletePayload{
		TotalChunks: totalChunks,
		TotalSize:   totalSize,
	})
}

func (c *clientEmitter) EmitError(err error) {
	c.o.send(c.e, models.EventAudioStreamError, models.AudioStreamErrorPayload{Error: utils.Message(err)})
}
