package frontier

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/nao1215/sitemirror/internal/model"
)

var (
	// ErrUnknownURL is returned when a state change names a URL that was never enqueued.
	ErrUnknownURL = errors.New("url was never enqueued")

	// ErrInvalidTransition is returned when a state change would not move
	// an in-flight entry to a terminal state.
	ErrInvalidTransition = errors.New("invalid state transition")
)

// Frontier is the deduplicated work queue of a crawl.
//
// It is the single owner of the visited set: Enqueue is the only place a
// URL becomes known, and it is known at most once for the lifetime of the
// frontier. Entries are never removed, only moved forward through
// pending -> in-flight -> done | failed.
//
// All methods are safe for concurrent use.
type Frontier struct {
	mu sync.Mutex

	// entries holds every URL ever accepted, keyed by normalized URL.
	entries map[string]*model.Entry

	// queue is the FIFO of pending keys.
	queue []string

	// inFlight counts entries handed out by Dequeue and not yet finished.
	inFlight int

	// closed stops Dequeue from handing out more work.
	closed bool

	// changed is closed and replaced whenever the queue or in-flight count
	// changes, waking every blocked Dequeue.
	changed chan struct{}

	// pageLimit caps the number of page entries. Zero means unlimited.
	pageLimit int
	pages     int

	// skipped counts page references dropped by the page limit.
	skipped int
}

// Option configures a Frontier.
type Option func(*Frontier)

// WithPageLimit caps how many distinct pages are accepted.
// Assets referenced by accepted pages are always accepted.
func WithPageLimit(n int) Option {
	return func(f *Frontier) {
		f.pageLimit = n
	}
}

// New creates an empty Frontier.
func New(opts ...Option) *Frontier {
	f := &Frontier{
		entries: make(map[string]*model.Entry),
		queue:   make([]string, 0),
		changed: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Enqueue adds ref as a pending entry if its normalized URL is unseen.
// It returns true if the reference was accepted and false if it was
// already known, refused by the page limit, or the frontier is closed.
func (f *Frontier) Enqueue(ref model.Reference) bool {
	key := ref.Key()
	if key == "" {
		return false
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return false
	}
	if _, seen := f.entries[key]; seen {
		return false
	}
	if ref.Kind == model.KindPage && f.pageLimit > 0 {
		if f.pages >= f.pageLimit {
			f.skipped++
			return false
		}
		f.pages++
	}

	f.entries[key] = &model.Entry{Ref: ref, State: model.StatePending}
	f.queue = append(f.queue, key)
	f.broadcastLocked()
	return true
}

// Dequeue returns the next pending reference and marks it in-flight.
//
// It blocks while the queue is empty but other entries are still in flight,
// since those may discover more work. It returns false once the crawl has
// drained (nothing pending, nothing in flight), when the frontier is
// closed, or when ctx is done.
func (f *Frontier) Dequeue(ctx context.Context) (model.Reference, bool) {
	for {
		f.mu.Lock()
		if f.closed {
			f.mu.Unlock()
			return model.Reference{}, false
		}
		if err := ctx.Err(); err != nil {
			f.mu.Unlock()
			return model.Reference{}, false
		}
		if len(f.queue) > 0 {
			key := f.queue[0]
			f.queue[0] = ""
			f.queue = f.queue[1:]
			entry := f.entries[key]
			entry.State = model.StateInFlight
			f.inFlight++
			ref := entry.Ref
			f.mu.Unlock()
			return ref, true
		}
		if f.inFlight == 0 {
			f.mu.Unlock()
			return model.Reference{}, false
		}
		wait := f.changed
		f.mu.Unlock()

		select {
		case <-ctx.Done():
			return model.Reference{}, false
		case <-wait:
		}
	}
}

// MarkDone moves an in-flight entry to done and records its outcome.
func (f *Frontier) MarkDone(key string, outcome model.Outcome) error {
	return f.finish(key, func(e *model.Entry) {
		e.State = model.StateDone
		e.Outcome = outcome
		e.Ref.Kind = outcome.Kind
	})
}

// MarkFailed moves an in-flight entry to failed and records the cause.
func (f *Frontier) MarkFailed(key string, cause error) error {
	return f.finish(key, func(e *model.Entry) {
		e.State = model.StateFailed
		e.Err = cause
	})
}

func (f *Frontier) finish(key string, apply func(*model.Entry)) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	entry, ok := f.entries[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownURL, key)
	}
	if entry.State != model.StateInFlight {
		return fmt.Errorf("%w: %s is %s", ErrInvalidTransition, key, entry.State)
	}
	apply(entry)
	f.inFlight--
	f.broadcastLocked()
	return nil
}

// Close stops the frontier from handing out or accepting work.
// Pending entries stay pending and are reported as not attempted.
func (f *Frontier) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	f.broadcastLocked()
}

// Lookup returns a copy of the entry for key.
func (f *Frontier) Lookup(key string) (model.Entry, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry, ok := f.entries[key]
	if !ok {
		return model.Entry{}, false
	}
	return *entry, true
}

// Entries returns a snapshot of every entry, sorted by URL.
func (f *Frontier) Entries() []model.Entry {
	f.mu.Lock()
	out := make([]model.Entry, 0, len(f.entries))
	for _, entry := range f.entries {
		out = append(out, *entry)
	}
	f.mu.Unlock()

	slices.SortFunc(out, func(a, b model.Entry) int {
		return strings.Compare(a.Ref.Key(), b.Ref.Key())
	})
	return out
}

// Stats is a point-in-time count of entries per state.
type Stats struct {
	Pending  int
	InFlight int
	Done     int
	Failed   int
	Skipped  int
}

// Total returns the number of unique URLs the frontier has accepted.
func (s Stats) Total() int {
	return s.Pending + s.InFlight + s.Done + s.Failed
}

// Stats returns the current counts.
func (f *Frontier) Stats() Stats {
	f.mu.Lock()
	defer f.mu.Unlock()

	s := Stats{Skipped: f.skipped}
	for _, entry := range f.entries {
		switch entry.State {
		case model.StatePending:
			s.Pending++
		case model.StateInFlight:
			s.InFlight++
		case model.StateDone:
			s.Done++
		case model.StateFailed:
			s.Failed++
		}
	}
	return s
}

// broadcastLocked wakes every goroutine blocked in Dequeue.
// The caller must hold f.mu.
func (f *Frontier) broadcastLocked() {
	close(f.changed)
	f.changed = make(chan struct{})
}
