package session

import (
	"context"
	"errors"
	"sync"

	"github.com/yoockh/voxaura/internal/models"
	"github.com/yoockh/voxaura/internal/turn"
)

var ErrClosed = errors.New("session closed")

const maxHistory = 20

// Sender delivers one server event to the client of a connection.
type Sender interface {
	Send(eventType string, payload any) error
}

// RecognitionStream is the part of a live recognition connection the session owns.
type RecognitionStream interface {
	SendAudio(audio []byte) error
	Close() error
}

// Entry is the registry slot of one connection. All mutation of the session
// goes through it, serialized per connection.
type Entry struct {
	mu     sync.Mutex
	state  models.Session
	sender Sender
	closed bool

	recMu       sync.Mutex // serializes recognition replacement
	recognition RecognitionStream
	recEpoch    uint64

	detector *turn.Detector
	queue    chan models.Turn
	history  []models.ChatMessage

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

func newEntry(s models.Session, sender Sender, minTurnChars, queueSize int) *Entry {
	ctx, cancel := context.WithCancel(context.Background())
	return &Entry{
		state:    s,
		sender:   sender,
		detector: turn.NewDetector(minTurnChars),
		queue:    make(chan models.Turn, queueSize),
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (e *Entry) ConnectionID() string { return e.state.ConnectionID }

func (e *Entry) SessionID() string { return e.state.SessionID }

// Context is cancelled when the entry is unregistered or replaced.
func (e *Entry) Context() context.Context { return e.ctx }

func (e *Entry) Sender() Sender { return e.sender }

func (e *Entry) Detector() *turn.Detector { return e.detector }

func (e *Entry) Snapshot() models.Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Update applies fn to the session state and returns the result.
func (e *Entry) Update(fn func(s *models.Session)) models.Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(&e.state)
	return e.state
}

func (e *Entry) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// Go runs fn as a task owned by the entry. Tasks are cancelled and joined
// when the entry closes. Go must not be called from a task to close its own entry.
func (e *Entry) Go(fn func(ctx context.Context)) bool {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return false
	}
	e.wg.Add(1)
	e.mu.Unlock()

	go func() {
		defer e.wg.Done()
		fn(e.ctx)
	}()
	return true
}

// Enqueue hands a turn to the session worker without blocking.
func (e *Entry) Enqueue(t models.Turn) bool {
	if e.Closed() {
		return false
	}
	select {
	case e.queue <- t:
		return true
	default:
		return false
	}
}

func (e *Entry) Turns() <-chan models.Turn { return e.queue }

// AppendHistory records one conversation message, keeping the newest maxHistory.
func (e *Entry) AppendHistory(role, content string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history = append(e.history, models.ChatMessage{Role: role, Content: content})
	if n := len(e.history); n > maxHistory {
		e.history = append([]models.ChatMessage(nil), e.history[n-maxHistory:]...)
	}
}

// History returns up to the last n messages, oldest first.
func (e *Entry) History(n int) []models.ChatMessage {
	e.mu.Lock()
	defer e.mu.Unlock()
	h := e.history
	if n > 0 && len(h) > n {
		h = h[len(h)-n:]
	}
	return append([]models.ChatMessage(nil), h...)
}

// Recognition returns the open recognition stream, if any.
func (e *Entry) Recognition() RecognitionStream {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.recognition
}

// IsCurrentRecognition reports whether s is still the session's active stream.
func (e *Entry) IsCurrentRecognition(s RecognitionStream) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return s != nil && e.recognition == s
}

// ReplaceRecognition closes the active stream, if any, and installs the one
// returned by open. A Stop or close racing with open wins: the new stream is
// closed instead of installed.
func (e *Entry) ReplaceRecognition(open func() (RecognitionStream, error)) (RecognitionStream, error) {
	e.recMu.Lock()
	defer e.recMu.Unlock()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrClosed
	}
	prev := e.recognition
	e.recognition = nil
	e.recEpoch++
	epoch := e.recEpoch
	e.mu.Unlock()

	if prev != nil {
		_ = prev.Close()
	}

	next, err := open()
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	if e.closed || e.recEpoch != epoch {
		e.mu.Unlock()
		_ = next.Close()
		return nil, ErrClosed
	}
	e.recognition = next
	e.mu.Unlock()
	return next, nil
}

// TakeRecognition detaches the active stream and returns it for closing.
func (e *Entry) TakeRecognition() RecognitionStream {
	e.mu.Lock()
	defer e.mu.Unlock()
	prev := e.recognition
	e.recognition = nil
	e.recEpoch++
	return prev
}

// close stops the recognition stream, cancels tasks and waits for them.
func (e *Entry) close() {
	e.once.Do(func() {
		e.mu.Lock()
		e.closed = true
		rec := e.recognition
		e.recognition = nil
		e.recEpoch++
		e.state.RecognitionActive = false
		e.state.SynthesisEnabled = false
		e.mu.Unlock()

		if rec != nil {
			_ = rec.Close()
		}
		e.cancel()
		e.wg.Wait()
	})
}
