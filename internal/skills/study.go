package skills

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"github.com/yoockh/voxaura/internal/persona"
)

type StudyTask string

const (
	TaskSummarize StudyTask = "summarize"
	TaskExplain   StudyTask = "explain"
	TaskQuiz      StudyTask = "quiz"
)

// Fetcher downloads the readable text of a web page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

var studyKeywords = []string{"summarize", "summary", "explain", "concept", "flashcard", "quiz", "study", "learn", "document", "article"}

var taskKeywords = []struct {
	task  StudyTask
	words []string
}{
	{TaskSummarize, []string{"summarize", "summary", "sum up", "brief", "overview"}},
	{TaskExplain, []string{"explain", "what is", "define", "concept", "meaning"}},
	{TaskQuiz, []string{"quiz", "test", "flashcard", "practice", "question"}},
}

var studyTriggers = func() []*regexp.Regexp {
	var out []*regexp.Regexp
	for _, t := range []string{"summarize", "explain", "quiz me on", "study", "analyze"} {
		out = append(out, regexp.MustCompile(`(?is)`+regexp.QuoteMeta(t)+`(.*)`))
	}
	return out
}()

var urlPattern = regexp.MustCompile(`https?://\S+`)

const (
	minTriggerContent = 20
	minInlineContent  = 100
	maxFetchedContent = 5000
)

// DetectTask picks the study task a message asks for; summarize by default.
func DetectTask(text string) StudyTask {
	n := words(text)
	for _, tk := range taskKeywords {
		if hasPhrase(n, tk.words...) {
			return tk.task
		}
	}
	return TaskSummarize
}

// ExtractStudyContent returns a URL, the text after a study trigger, or the
// whole message when it is long enough to study on its own.
func ExtractStudyContent(text string) string {
	if u := urlPattern.FindString(text); u != "" {
		return u
	}
	for _, re := range studyTriggers {
		if m := re.FindStringSubmatch(text); m != nil {
			rest := strings.TrimSpace(m[1])
			if utf8.RuneCountInString(rest) > minTriggerContent {
				return rest
			}
		}
	}
	if utf8.RuneCountInString(text) > minInlineContent {
		return text
	}
	return ""
}

type Study struct {
	fetcher Fetcher
	log     *logrus.Logger
}

func NewStudy(fetcher Fetcher, log *logrus.Logger) *Study {
	return &Study{fetcher: fetcher, log: log}
}

func (s *Study) Name() string { return "study-assistant-skill" }

func (s *Study) TryHandle(ctx context.Context, text string, p persona.Persona) (string, bool) {
	if !hasPhrase(words(text), studyKeywords...) {
		return "", false
	}

	task := DetectTask(text)
	content := ExtractStudyContent(text)
	if content == "" {
		return say(p,
			fmt.Sprintf("I'm ready to help you study! Please provide a document, article URL, or text content you'd like me to %s.", task),
			fmt.Sprintf("Arrr! I be ready to help ye study, matey! But I need some content to work with. Share a document, article URL, or paste some text ye want me to %s!", task)), true
	}

	source := "text"
	if urlPattern.MatchString(content) {
		source = "article"
		if s.fetcher == nil {
			return studyFailure("I can't read web pages right now", p), true
		}
		page, err := s.fetcher.Fetch(ctx, content)
		if err != nil {
			s.log.WithFields(logrus.Fields{"skill": s.Name(), "url": content}).WithError(err).Warn("study fetch failed")
			return studyFailure("I couldn't open that article", p), true
		}
		content = page
	}

	var body string
	switch task {
	case TaskExplain:
		body = explainContent(content, p)
	case TaskQuiz:
		body = quizContent(content, p)
	default:
		body = summarizeContent(content, p)
	}
	if body == "" {
		return studyFailure("I couldn't find enough material in that "+source+" to work with", p), true
	}

	intro := say(p,
		fmt.Sprintf("I've analyzed your %s. ", source),
		fmt.Sprintf("Ahoy! I've sailed through yer %s. ", source))
	outro := say(p,
		" Would you like me to analyze more content or help with a different study task?",
		" What else can this old sea dog help ye study?")
	return intro + body + outro, true
}

func studyFailure(reason string, p persona.Persona) string {
	return say(p, "I'm sorry, "+reason+".", "Arrr! "+reason+". The scholarly seas be rough today, matey!")
}

var sentenceSplit = regexp.MustCompile(`[.!?]+`)

func sentences(content string) []string {
	var out []string
	for _, s := range sentenceSplit.Split(content, -1) {
		s = strings.Join(strings.Fields(s), " ")
		if len(s) > 20 {
			out = append(out, s)
		}
	}
	return out
}

var importantWords = []string{"important", "key", "main", "significant", "crucial", "essential", "therefore", "conclusion", "summary"}

func summarizeContent(content string, p persona.Persona) string {
	ss := sentences(content)
	if len(ss) == 0 {
		return ""
	}

	var picked []string
	if len(ss[0]) > 30 {
		picked = append(picked, ss[0])
	}
	for _, s := range ss[1:] {
		if len(picked) >= 5 {
			break
		}
		if hasPhrase(words(s), importantWords...) {
			picked = append(picked, s)
		}
	}
	if len(picked) < 3 && len(ss) > 2 {
		mid := ss[len(ss)/3 : 2*len(ss)/3]
		for _, s := range mid {
			if len(picked) >= 3 {
				break
			}
			picked = append(picked, s)
		}
	}
	if len(picked) == 0 {
		picked = ss[:1]
	}

	summary := strings.Join(picked, ". ") + "."
	ratio := fmt.Sprintf("%d/%d words", len(strings.Fields(summary)), len(strings.Fields(content)))
	return say(p,
		"Summary: "+summary+" Condensed from "+ratio+" for easier studying.",
		"Here be the treasure: "+summary+" That be "+ratio+", much easier to digest, me hearty!")
}

var (
	capitalizedTerm = regexp.MustCompile(`\b[A-Z][a-z]+(?:\s+[A-Z][a-z]+)*\b`)
	quotedTerm      = regexp.MustCompile(`"([^"]*)"`)
)

func explainContent(content string, p persona.Persona) string {
	var concepts []string
	seen := map[string]bool{}
	add := func(t string) {
		t = strings.TrimSpace(t)
		if len(t) > 2 && len(t) < 50 && !seen[t] {
			seen[t] = true
			concepts = append(concepts, t)
		}
	}
	for _, t := range capitalizedTerm.FindAllString(content, -1) {
		add(t)
	}
	for _, m := range quotedTerm.FindAllStringSubmatch(content, -1) {
		add(m[1])
	}
	if len(concepts) > 5 {
		concepts = concepts[:5]
	}

	ss := sentences(content)
	if len(concepts) == 0 && len(ss) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(say(p, "Here are the key concepts. ", "Let me explain these concepts, matey. "))
	for _, c := range concepts {
		ctx := contextFor(ss, c)
		if ctx == "" {
			fmt.Fprintf(&b, "%s is an important concept here. ", c)
			continue
		}
		fmt.Fprintf(&b, "%s: %s. ", c, truncateRunes(ctx, 120))
	}
	if len(ss) > 0 {
		fmt.Fprintf(&b, "In simple terms, this is about: %s.", truncateRunes(ss[0], 150))
	}
	return strings.TrimSpace(b.String())
}

func contextFor(ss []string, term string) string {
	lt := strings.ToLower(term)
	for _, s := range ss {
		if strings.Contains(strings.ToLower(s), lt) {
			return s
		}
	}
	return ""
}

var definitionSplit = regexp.MustCompile(`\s+(?:is|are|was|were|means|defined as)\s+`)

func quizContent(content string, p persona.Persona) string {
	ss := sentences(content)
	if len(ss) > 10 {
		ss = ss[:10]
	}

	var cards []string
	for _, s := range ss {
		parts := definitionSplit.Split(s, 2)
		if len(parts) != 2 {
			continue
		}
		cards = append(cards, fmt.Sprintf("Q: What is %s? A: %s.", strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])))
		if len(cards) == 3 {
			break
		}
	}

	var blanks []string
	for _, s := range ss {
		fields := strings.Fields(s)
		if len(fields) <= 8 {
			continue
		}
		for i, w := range fields {
			if len(w) > 4 {
				answer := strings.Trim(w, ",;:")
				fields[i] = "______"
				blanks = append(blanks, fmt.Sprintf("Fill in the blank: %s (answer: %s).", strings.Join(fields, " "), answer))
				break
			}
		}
		if len(blanks) == 2 {
			break
		}
	}

	if len(cards) == 0 && len(blanks) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(say(p, "Here are your study materials. ", "Shiver me timbers, here be yer study treasures! "))
	for i, c := range cards {
		fmt.Fprintf(&b, "Flashcard %d. %s ", i+1, c)
	}
	for i, q := range blanks {
		fmt.Fprintf(&b, "Question %d. %s ", i+1, q)
	}
	return strings.TrimSpace(b.String())
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

var (
	scriptOrStyle = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
	htmlTag       = regexp.MustCompile(`(?s)<[^>]+>`)
)

// HTTPFetcher reads a page and strips its markup down to plain text.
type HTTPFetcher struct {
	client *http.Client
}

func NewHTTPFetcher() *HTTPFetcher { return &HTTPFetcher{client: newHTTPClient()} }

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; VoxAura/1.0)")
	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to fetch page: status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	text := scriptOrStyle.ReplaceAllString(string(raw), " ")
	text = htmlTag.ReplaceAllString(text, " ")
	text = strings.Join(strings.Fields(html.UnescapeString(text)), " ")
	if text == "" {
		return "", errors.New("page has no readable text")
	}
	return truncateRunes(text, maxFetchedContent), nil
}
