package generation

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/yoockh/voxaura/internal/models"
	"github.com/yoockh/voxaura/internal/persona"
	"github.com/yoockh/voxaura/internal/providers/llm"
	"github.com/yoockh/voxaura/internal/skills"
	"github.com/yoockh/voxaura/internal/utils"
)

const (
	DefaultMaxResponseChars = 3000
	// a truncated reply keeps maxChars-truncationMargin runes plus "..."
	truncationMargin = 100
	historyWindow    = 10
	wordsPerChunk    = 3

	ModelFallback = "fallback"

	emptyResultReply = "I apologize, but I couldn't generate a response to your query."
)

type Request struct {
	Text    string
	Persona persona.Persona
	History []models.ChatMessage
}

type Result struct {
	Success    bool
	FullText   string
	ModelUsed  string
	ChunkCount int
	// Fallback is true when FullText is a canned reply rather than model output.
	Fallback bool
	Err      error
}

// Generator answers one turn, first offering it to the skill interceptors
// and then to the language model.
type Generator struct {
	provider     llm.Provider
	interceptors []skills.Interceptor
	maxChars     int
	log          *logrus.Logger
}

// NewGenerator keeps interceptors in the order given. A nil provider means
// the language model is not configured.
func NewGenerator(provider llm.Provider, interceptors []skills.Interceptor, maxChars int, log *logrus.Logger) *Generator {
	if maxChars <= 0 {
		maxChars = DefaultMaxResponseChars
	}
	return &Generator{provider: provider, interceptors: interceptors, maxChars: maxChars, log: log}
}

func (g *Generator) Configured() bool { return g.provider != nil }

// Generate pushes reply fragments into chunks with sequence numbers from 1.
// Generate does not close chunks; the caller owns it. Sends block while the
// consumer is behind and give up when ctx is done.
func (g *Generator) Generate(ctx context.Context, req Request, chunks chan<- models.GenerationChunk) Result {
	log := g.log.WithFields(logrus.Fields{"stage": "generation", "persona": req.Persona.String()})

	for _, ic := range g.interceptors {
		reply, ok := ic.TryHandle(ctx, req.Text, req.Persona)
		if !ok {
			continue
		}
		log.WithField("skill", ic.Name()).Info("turn claimed by skill")
		n, err := emitWords(ctx, reply, chunks)
		return Result{Success: err == nil, FullText: reply, ModelUsed: ic.Name(), ChunkCount: n, Err: err}
	}

	if g.provider == nil {
		reply := fmt.Sprintf("Hello! You said: '%s'. The language model is not configured, so this is a scripted reply. "+
			"With a configured model you would get a detailed answer here.", req.Text)
		n, err := emitWords(ctx, reply, chunks)
		return Result{Success: err == nil, FullText: reply, ModelUsed: ModelFallback, ChunkCount: n, Fallback: true, Err: err}
	}

	return g.stream(ctx, req, chunks, log)
}

func (g *Generator) stream(ctx context.Context, req Request, chunks chan<- models.GenerationChunk, log *logrus.Entry) Result {
	const op = "generation.Generator.Generate"

	frags, errs := g.provider.StreamAnswer(ctx, BuildPrompt(req))

	var b strings.Builder
	seq := 0
	for frags != nil || errs != nil {
		select {
		case f, ok := <-frags:
			if !ok {
				frags = nil
				continue
			}
			if f == "" {
				continue
			}
			b.WriteString(f)
			seq++
			if err := send(ctx, chunks, models.GenerationChunk{Text: f, Sequence: seq}); err != nil {
				return Result{FullText: b.String(), ModelUsed: g.provider.Model(), ChunkCount: seq - 1, Err: err}
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err != nil {
				log.WithError(err).Warn("language model stream failed")
				return Result{
					FullText:   FallbackReply(req.Text),
					ModelUsed:  g.provider.Model(),
					ChunkCount: seq,
					Fallback:   true,
					Err:        utils.E(utils.CodeUnavailable, op, "language model stream failed", err),
				}
			}
		}
	}

	full := b.String()
	if strings.TrimSpace(full) == "" {
		return Result{
			FullText:  emptyResultReply,
			ModelUsed: g.provider.Model(),
			Fallback:  true,
			Err:       utils.E(utils.CodeEmptyResult, op, "empty response from language model", nil),
		}
	}
	if utf8.RuneCountInString(full) > g.maxChars {
		cut := g.maxChars - truncationMargin
		if cut <= 0 {
			cut = g.maxChars
		}
		full = string([]rune(full)[:cut]) + "..."
		log.Info("response truncated")
	}
	return Result{Success: true, FullText: full, ModelUsed: g.provider.Model(), ChunkCount: seq}
}

// BuildPrompt renders the persona prompt, recent history and the new turn.
func BuildPrompt(req Request) string {
	prof := persona.Lookup(req.Persona)

	var b strings.Builder
	b.WriteString(prof.Prompt)
	b.WriteString("\n\nProvide concise, conversational responses under 3000 characters.\n\n")

	hist := req.History
	if len(hist) > historyWindow {
		hist = hist[len(hist)-historyWindow:]
	}
	if len(hist) > 0 {
		b.WriteString("Conversation history:\n")
		for _, m := range hist {
			label := prof.AssistantLabel
			if m.Role == models.RoleUser {
				label = prof.UserLabel
			}
			fmt.Fprintf(&b, "%s: %s\n", label, m.Content)
		}
	}
	fmt.Fprintf(&b, "%s: %s\n\n%s:", prof.UserLabel, req.Text, prof.AssistantLabel)
	return b.String()
}

// FallbackReply picks a canned answer from keywords in the user's text.
func FallbackReply(text string) string {
	lower := strings.ToLower(text)
	has := func(ws ...string) bool {
		for _, w := range ws {
			if strings.Contains(lower, w) {
				return true
			}
		}
		return false
	}
	switch {
	case has("hello", "hi", "hey"):
		return "Hello! I'm having some technical difficulties with my AI services right now, but I'm still here to chat with you."
	case has("trouble", "problem", "issue"):
		return "I understand you're having some trouble. I'm also experiencing some technical difficulties right now, but I'm here to help as best I can."
	case has("help", "assist"):
		return "I'd love to help you, but I'm experiencing some connectivity issues with my AI services. Please try again in a moment."
	default:
		return "I'm having trouble connecting to my AI services right now. Please try again in a moment, and I'll do my best to assist you."
	}
}

// emitWords delivers text in groups of three words, each followed by a space.
func emitWords(ctx context.Context, text string, chunks chan<- models.GenerationChunk) (int, error) {
	ws := strings.Split(text, " ")
	seq := 0
	for i := 0; i < len(ws); i += wordsPerChunk {
		end := i + wordsPerChunk
		if end > len(ws) {
			end = len(ws)
		}
		seq++
		if err := send(ctx, chunks, models.GenerationChunk{Text: strings.Join(ws[i:end], " ") + " ", Sequence: seq}); err != nil {
			return seq - 1, err
		}
	}
	return seq, nil
}

func send(ctx context.Context, chunks chan<- models.GenerationChunk, c models.GenerationChunk) error {
	select {
	case chunks <- c:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
