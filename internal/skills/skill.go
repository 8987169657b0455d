// Package skills holds the interceptors that may answer a turn before the
// language model is consulted.
package skills

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/yoockh/voxaura/internal/persona"
)

// Interceptor claims a turn by returning ok=true with a complete reply.
// Name is reported as the model that produced the reply.
type Interceptor interface {
	Name() string
	TryHandle(ctx context.Context, text string, p persona.Persona) (reply string, ok bool)
}

const defaultHTTPTimeout = 10 * time.Second

func newHTTPClient() *http.Client { return &http.Client{Timeout: defaultHTTPTimeout} }

// words lowercases text and rejoins its words with single spaces, padded on
// both ends so phrase lookups match whole words only.
func words(text string) string {
	f := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
	return " " + strings.Join(f, " ") + " "
}

func hasPhrase(normalized string, phrases ...string) bool {
	for _, p := range phrases {
		if strings.Contains(normalized, " "+p+" ") {
			return true
		}
	}
	return false
}

// say picks the phrasing for the persona.
func say(p persona.Persona, plain, pirate string) string {
	if p.IsAlternate() {
		return pirate
	}
	return plain
}

func titleCase(s string) string {
	parts := strings.Fields(s)
	for i, w := range parts {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		parts[i] = string(r)
	}
	return strings.Join(parts, " ")
}

func getJSON(ctx context.Context, c *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("GET %s: status %d", req.URL.Host, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
