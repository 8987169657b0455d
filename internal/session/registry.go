package session

import (
	"sort"
	"sync"
	"time"

	"github.com/yoockh/voxaura/internal/models"
)

type Options struct {
	MinTurnChars  int
	TurnQueueSize int
	Now           func() time.Time
}

// Registry maps connection ids to live sessions. The map lock only guards
// lookup, insert and delete; per-session state lives behind each Entry.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	opts    Options
}

func NewRegistry(opts Options) *Registry {
	if opts.TurnQueueSize <= 0 {
		opts.TurnQueueSize = 8
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Registry{entries: make(map[string]*Entry), opts: opts}
}

// Register creates the session for connID. An existing session on the same
// connection is closed (recognition stopped, tasks joined) before the new
// one is installed.
func (r *Registry) Register(sessionID, connID string, sender Sender) *Entry {
	e := newEntry(models.Session{
		ConnectionID: connID,
		SessionID:    sessionID,
		CreatedAt:    r.opts.Now().UTC(),
		State:        models.StateIdle,
	}, sender, r.opts.MinTurnChars, r.opts.TurnQueueSize)

	for {
		r.mu.Lock()
		old := r.entries[connID]
		if old == nil || old.Closed() {
			r.entries[connID] = e
			r.mu.Unlock()
			return e
		}
		r.mu.Unlock()
		old.close()
	}
}

// Unregister stops every stage of the session and removes it.
func (r *Registry) Unregister(connID string) bool {
	r.mu.Lock()
	e, ok := r.entries[connID]
	if ok {
		delete(r.entries, connID)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}
	e.close()
	return true
}

func (r *Registry) Get(connID string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[connID]
	if !ok || e.Closed() {
		return nil, false
	}
	return e, true
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Snapshots returns a copy of every session, oldest first.
func (r *Registry) Snapshots() []models.Session {
	r.mu.RLock()
	entries := make([]*Entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	out := make([]models.Session, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ConnectionID < out[j].ConnectionID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// CloseAll unregisters every session, used on shutdown.
func (r *Registry) CloseAll() int {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]*Entry)
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, e := range entries {
		wg.Add(1)
		go func(e *Entry) {
			defer wg.Done()
			e.close()
		}(e)
	}
	wg.Wait()
	return len(entries)
}
