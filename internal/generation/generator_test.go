package generation

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yoockh/voxaura/internal/logger"
	"github.com/yoockh/voxaura/internal/models"
	"github.com/yoockh/voxaura/internal/persona"
	"github.com/yoockh/voxaura/internal/skills"
	"github.com/yoockh/voxaura/internal/utils"
)

type fakeProvider struct {
	frags   []string
	err     error
	calls   atomic.Int32
	prompts []string
}

func (f *fakeProvider) StreamAnswer(_ context.Context, prompt string) (<-chan string, <-chan error) {
	f.calls.Add(1)
	f.prompts = append(f.prompts, prompt)
	out := make(chan string, len(f.frags))
	errs := make(chan error, 1)
	for _, s := range f.frags {
		out <- s
	}
	close(out)
	if f.err != nil {
		errs <- f.err
	}
	close(errs)
	return out, errs
}

func (f *fakeProvider) Model() string { return "fake-model" }
func (f *fakeProvider) Close() error  { return nil }

type fakeWeather struct{}

func (fakeWeather) Configured() bool { return true }
func (fakeWeather) Current(_ context.Context, city string) (skills.WeatherReport, error) {
	return skills.WeatherReport{City: city, Temperature: 20, FeelsLike: 19, Description: "clear sky"}, nil
}

func collect(t *testing.T, g *Generator, req Request) (Result, []models.GenerationChunk) {
	t.Helper()
	ch := make(chan models.GenerationChunk, 4)
	done := make(chan Result, 1)
	go func() {
		defer close(ch)
		done <- g.Generate(context.Background(), req, ch)
	}()
	var got []models.GenerationChunk
	for c := range ch {
		got = append(got, c)
	}
	return <-done, got
}

func defaultInterceptors() []skills.Interceptor {
	log := logger.Discard()
	return []skills.Interceptor{
		skills.NewWeather(fakeWeather{}, log),
		skills.NewSearch(nil, log),
		skills.NewStudy(nil, log),
		skills.NewDocument(),
	}
}

func assertSequential(t *testing.T, chunks []models.GenerationChunk) {
	t.Helper()
	for i, c := range chunks {
		assert.Equal(t, i+1, c.Sequence)
	}
}

func TestGenerate_WeatherSkillBypassesModel(t *testing.T) {
	p := &fakeProvider{frags: []string{"should not be used"}}
	g := NewGenerator(p, defaultInterceptors(), 0, logger.Discard())

	res, chunks := collect(t, g, Request{Text: "weather in Paris", Persona: persona.Default})

	assert.EqualValues(t, 0, p.calls.Load())
	assert.True(t, res.Success)
	assert.Equal(t, "weather-skill", res.ModelUsed)
	assert.Contains(t, res.FullText, "Paris")
	require.NotEmpty(t, chunks)
	assert.Equal(t, res.ChunkCount, len(chunks))
	assertSequential(t, chunks)
	for _, c := range chunks {
		assert.True(t, strings.HasSuffix(c.Text, " "))
		assert.LessOrEqual(t, len(strings.Fields(c.Text)), 3)
	}
}

func TestGenerate_StudySkillAsksForContent(t *testing.T) {
	p := &fakeProvider{}
	g := NewGenerator(p, defaultInterceptors(), 0, logger.Discard())

	res, _ := collect(t, g, Request{Text: "xyz12 please summarize abc"})

	assert.EqualValues(t, 0, p.calls.Load())
	assert.True(t, res.Success)
	assert.Equal(t, "study-assistant-skill", res.ModelUsed)
	assert.Contains(t, res.FullText, "Please provide a document, article URL, or text content")
}

func TestGenerate_UnconfiguredUsesScriptedReply(t *testing.T) {
	g := NewGenerator(nil, nil, 0, logger.Discard())

	res, chunks := collect(t, g, Request{Text: "good morning"})

	assert.True(t, res.Success)
	assert.True(t, res.Fallback)
	assert.Equal(t, ModelFallback, res.ModelUsed)
	assert.Contains(t, res.FullText, "You said: 'good morning'")
	assertSequential(t, chunks)

	var joined strings.Builder
	for _, c := range chunks {
		joined.WriteString(c.Text)
	}
	assert.Equal(t, res.FullText+" ", joined.String())
}

func TestGenerate_StreamsModelOutput(t *testing.T) {
	p := &fakeProvider{frags: []string{"Gravity ", "pulls ", "", "things down."}}
	g := NewGenerator(p, nil, 0, logger.Discard())

	history := []models.ChatMessage{{Role: models.RoleUser, Content: "earlier question"}, {Role: models.RoleAssistant, Content: "earlier answer"}}
	res, chunks := collect(t, g, Request{Text: "what keeps us on the ground", History: history})

	assert.True(t, res.Success)
	assert.False(t, res.Fallback)
	assert.Equal(t, "fake-model", res.ModelUsed)
	assert.Equal(t, "Gravity pulls things down.", res.FullText)
	assert.Equal(t, 3, res.ChunkCount)
	require.Len(t, chunks, 3)
	assertSequential(t, chunks)

	require.Len(t, p.prompts, 1)
	assert.Contains(t, p.prompts[0], "User: earlier question\nVoxAura: earlier answer\n")
	assert.True(t, strings.HasSuffix(p.prompts[0], "User: what keeps us on the ground\n\nVoxAura:"))
}

func TestGenerate_EmptyModelOutput(t *testing.T) {
	g := NewGenerator(&fakeProvider{frags: []string{"  "}}, nil, 0, logger.Discard())

	res, _ := collect(t, g, Request{Text: "anything"})

	assert.False(t, res.Success)
	assert.True(t, utils.IsCode(res.Err, utils.CodeEmptyResult))
	assert.Equal(t, "I apologize, but I couldn't generate a response to your query.", res.FullText)
}

func TestGenerate_TruncatesLongOutput(t *testing.T) {
	long := strings.Repeat("a", 3500)
	g := NewGenerator(&fakeProvider{frags: []string{long}}, nil, 0, logger.Discard())

	res, _ := collect(t, g, Request{Text: "tell a long story"})

	assert.True(t, res.Success)
	assert.Equal(t, 2903, len([]rune(res.FullText)))
	assert.True(t, strings.HasSuffix(res.FullText, "..."))
}

func TestGenerate_TruncatesToConfiguredLimit(t *testing.T) {
	g := NewGenerator(&fakeProvider{frags: []string{strings.Repeat("a", 1500)}}, nil, 1000, logger.Discard())

	res, _ := collect(t, g, Request{Text: "tell a long story"})

	assert.True(t, res.Success)
	assert.Equal(t, 903, len([]rune(res.FullText)))

	g = NewGenerator(&fakeProvider{frags: []string{strings.Repeat("b", 80)}}, nil, 50, logger.Discard())
	res, _ = collect(t, g, Request{Text: "tell a long story"})

	assert.True(t, res.Success)
	assert.Equal(t, 53, len([]rune(res.FullText)))
}

func TestGenerate_BackendErrorUsesKeywordFallback(t *testing.T) {
	g := NewGenerator(&fakeProvider{err: errors.New("quota exceeded")}, nil, 0, logger.Discard())

	res, _ := collect(t, g, Request{Text: "hey there"})

	assert.False(t, res.Success)
	assert.True(t, res.Fallback)
	require.Error(t, res.Err)
	assert.True(t, strings.HasPrefix(res.FullText, "Hello! I'm having some technical difficulties"))
}

func TestFallbackReply(t *testing.T) {
	assert.Contains(t, FallbackReply("I have a problem"), "having some trouble")
	assert.Contains(t, FallbackReply("can you assist"), "I'd love to help you")
	assert.Contains(t, FallbackReply("quantum"), "Please try again in a moment, and I'll do my best")
}

func TestGenerate_CancelledConsumer(t *testing.T) {
	g := NewGenerator(nil, nil, 0, logger.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := g.Generate(ctx, Request{Text: "hello"}, make(chan models.GenerationChunk))
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.False(t, res.Success)
}
