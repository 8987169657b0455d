package llm

import "context"

type Provider interface {
	// StreamAnswer returns a stream of text fragments (incremental). Both
	// channels are closed when the stream ends.
	StreamAnswer(ctx context.Context, prompt string) (chunks <-chan string, errs <-chan error)
	// Model names the backend model for reporting.
	Model() string
	Close() error
}
