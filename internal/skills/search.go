package skills

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/yoockh/voxaura/internal/persona"
)

type SearchResult struct {
	Query         string
	Answer        string
	Abstract      string
	Definition    string
	RelatedTopics []string
	Source        string
}

// Best returns the most direct piece of information in the result.
func (r SearchResult) Best() string {
	for _, s := range []string{r.Answer, r.Abstract, r.Definition} {
		if s != "" {
			return s
		}
	}
	if len(r.RelatedTopics) > 0 {
		return r.RelatedTopics[0]
	}
	return ""
}

type SearchSource interface {
	Search(ctx context.Context, query string) (SearchResult, error)
}

var searchKeywords = []string{"search for", "look up", "find information", "google", "what is", "who is", "tell me about"}

var queryPatterns = []*regexp.Regexp{
	regexp.MustCompile(`search for (.+)`),
	regexp.MustCompile(`look up (.+)`),
	regexp.MustCompile(`find information about (.+)`),
	regexp.MustCompile(`google (.+)`),
	regexp.MustCompile(`what is (.+)`),
	regexp.MustCompile(`who is (.+)`),
	regexp.MustCompile(`tell me about (.+)`),
	regexp.MustCompile(`search (.+)`),
	regexp.MustCompile(`find (.+) online`),
	regexp.MustCompile(`lookup (.+)`),
}

var queryNoise = regexp.MustCompile(`\b(please|for me|online|on the web|on internet)\b`)

// ExtractQuery returns what the user asked to search for, or "".
func ExtractQuery(text string) string {
	lower := strings.ToLower(strings.TrimSpace(text))
	for _, re := range queryPatterns {
		m := re.FindStringSubmatch(lower)
		if m == nil {
			continue
		}
		q := queryNoise.ReplaceAllString(m[1], "")
		q = strings.Join(strings.Fields(q), " ")
		q = strings.TrimRight(q, "?.!, ")
		if q != "" {
			return q
		}
	}
	return ""
}

type Search struct {
	source SearchSource
	log    *logrus.Logger
}

func NewSearch(source SearchSource, log *logrus.Logger) *Search {
	return &Search{source: source, log: log}
}

func (s *Search) Name() string { return "web-search-skill" }

func (s *Search) TryHandle(ctx context.Context, text string, p persona.Persona) (string, bool) {
	if !hasPhrase(words(text), searchKeywords...) {
		return "", false
	}

	query := ExtractQuery(text)
	if query == "" {
		return say(p,
			"I can search the web for you! What would you like me to search for?",
			"Arrr! I can search the digital seas for ye, but I need to know what treasure ye be lookin' for! What should I search for, matey?"), true
	}

	if s.source == nil {
		return unavailableSearch(query, p), true
	}
	res, err := s.source.Search(ctx, query)
	if err != nil {
		s.log.WithFields(logrus.Fields{"skill": s.Name(), "query": query}).WithError(err).Warn("web search failed")
		return unavailableSearch(query, p), true
	}
	return formatSearch(res, p), true
}

func unavailableSearch(query string, p persona.Persona) string {
	msg := fmt.Sprintf("I'm unable to search for '%s' right now due to connectivity issues.", query)
	return say(p, msg, "Arrr! "+msg+" The digital seas be rough today, matey!")
}

func formatSearch(r SearchResult, p persona.Persona) string {
	var b strings.Builder
	best := r.Best()
	if p.IsAlternate() {
		fmt.Fprintf(&b, "Ahoy! I've sailed the digital seas searchin' for '%s', and here's what I found, me hearty. ", r.Query)
		if best == "" {
			b.WriteString("I searched the seven seas but couldn't find much treasure about that topic, matey! ")
		} else {
			b.WriteString(best + " ")
		}
		b.WriteString("Anything else ye want me to search for, me trusted crew member?")
		return b.String()
	}

	fmt.Fprintf(&b, "I searched for '%s' and here's what I found. ", r.Query)
	if best == "" {
		b.WriteString("I couldn't find a direct answer to that. ")
	} else {
		b.WriteString(best + " ")
	}
	if len(r.RelatedTopics) > 1 && r.Answer+r.Abstract+r.Definition != "" {
		b.WriteString("Related: " + r.RelatedTopics[0] + " ")
	}
	if r.Source != "" {
		b.WriteString("Source: " + r.Source + ".")
	}
	return strings.TrimSpace(b.String())
}

const duckDuckGoURL = "https://api.duckduckgo.com/"

// DuckDuckGo uses the keyless Instant Answer API.
type DuckDuckGo struct {
	BaseURL string
	client  *http.Client
}

func NewDuckDuckGo(baseURL string) *DuckDuckGo {
	if baseURL == "" {
		baseURL = duckDuckGoURL
	}
	return &DuckDuckGo{BaseURL: baseURL, client: newHTTPClient()}
}

func (d *DuckDuckGo) Search(ctx context.Context, query string) (SearchResult, error) {
	var data struct {
		Abstract       string `json:"Abstract"`
		AbstractSource string `json:"AbstractSource"`
		Answer         string `json:"Answer"`
		Definition     string `json:"Definition"`
		RelatedTopics  []struct {
			Text string `json:"Text"`
		} `json:"RelatedTopics"`
	}
	q := url.Values{"q": {query}, "format": {"json"}, "no_html": {"1"}, "skip_disambig": {"1"}}
	if err := getJSON(ctx, d.client, d.BaseURL+"?"+q.Encode(), &data); err != nil {
		return SearchResult{}, err
	}

	res := SearchResult{
		Query:      query,
		Answer:     data.Answer,
		Abstract:   data.Abstract,
		Definition: data.Definition,
		Source:     data.AbstractSource,
	}
	if res.Source == "" {
		res.Source = "DuckDuckGo"
	}
	for _, t := range data.RelatedTopics {
		if t.Text == "" {
			continue
		}
		res.RelatedTopics = append(res.RelatedTopics, t.Text)
		if len(res.RelatedTopics) == 3 {
			break
		}
	}
	return res, nil
}
