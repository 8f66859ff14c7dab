// Package catalog loads paginated server lists into an observable state with
// de-duplication, refresh and staleness checks against the server binding.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/mikey-austin/sonic_utopia/internal/observe"
)

var (
	// ErrInvalidTransition is returned when an operation is not valid in the
	// current phase.
	ErrInvalidTransition = errors.New("invalid catalog transition")
	// ErrFetch wraps page fetch failures stored in State.Err.
	ErrFetch = errors.New("catalog fetch failed")
)

// Phase is the loader phase.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseInitialLoading
	PhaseContent
	PhaseError
	PhaseRefreshing
	PhaseLoadingMore
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseInitialLoading:
		return "initial-loading"
	case PhaseContent:
		return "content"
	case PhaseError:
		return "error"
	case PhaseRefreshing:
		return "refreshing"
	case PhaseLoadingMore:
		return "loading-more"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Cursor points at the next page. The zero value is the first page.
type Cursor struct {
	offset    int
	exhausted bool
}

// Start is the cursor of the first page.
func Start() Cursor {
	return Cursor{}
}

// At is a cursor at offset.
func At(offset int) Cursor {
	if offset < 0 {
		offset = 0
	}
	return Cursor{offset: offset}
}

// End is the cursor after the last page.
func End() Cursor {
	return Cursor{exhausted: true}
}

// Offset returns the item offset of the page.
func (c Cursor) Offset() int {
	return c.offset
}

// Exhausted reports whether there are no more pages.
func (c Cursor) Exhausted() bool {
	return c.exhausted
}

// Page is one fetched page and the cursor of the page after it.
type Page[T any] struct {
	Items []T
	Next  Cursor
}

// State is a snapshot of a loader.
type State[T any] struct {
	Items []T
	Phase Phase
	Next  Cursor
	Err   error
}

// FetchFunc fetches the page at cursor.
type FetchFunc[T any] func(ctx context.Context, cursor Cursor) (Page[T], error)

// Generation reports the current server binding generation.
type Generation interface {
	Generation() uint64
}

// Loader drives one paginated list. At most one fetch is in flight; calls
// made while one is running are ignored.
type Loader[T any] struct {
	log   *zap.Logger
	gen   Generation
	key   func(T) string
	fetch FetchFunc[T]

	mu       sync.Mutex
	state    State[T]
	seen     map[string]struct{}
	boundGen uint64
	epoch    uint64
	inflight bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	watch *observe.Holder[State[T]]
}

// NewLoader creates an idle loader. key identifies items for de-duplication.
func NewLoader[T any](log *zap.Logger, gen Generation, key func(T) string, fetch FetchFunc[T]) (*Loader[T], error) {
	if gen == nil {
		return nil, errors.New("generation source required")
	}
	if key == nil {
		return nil, errors.New("key func required")
	}
	if fetch == nil {
		return nil, errors.New("fetch func required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	l := &Loader[T]{
		log:      log,
		gen:      gen,
		key:      key,
		fetch:    fetch,
		seen:     map[string]struct{}{},
		boundGen: gen.Generation(),
	}
	l.watch = observe.NewHolder(l.snapshotLocked())
	return l, nil
}

// State returns the current state.
func (l *Loader[T]) State() State[T] {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.syncLocked()
	return l.snapshotLocked()
}

// Watch returns the state holder.
func (l *Loader[T]) Watch() *observe.Holder[State[T]] {
	return l.watch
}

// Wait blocks until no fetch is running.
func (l *Loader[T]) Wait() {
	l.wg.Wait()
}

// Sync resets the loader if the server binding changed since it last looked.
// Every operation syncs first; callers watching the registry call it to drop
// stale content and cancel a running fetch promptly.
func (l *Loader[T]) Sync() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.syncLocked()
}

// Reset drops all items and returns to idle, cancelling any running fetch.
func (l *Loader[T]) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resetLocked()
	l.boundGen = l.gen.Generation()
	l.publish()
}

// InitialLoad fetches the first page. Valid from idle.
func (l *Loader[T]) InitialLoad(ctx context.Context) error {
	return l.begin(ctx, "initial load", PhaseIdle)
}

// Retry repeats the initial load after an error.
func (l *Loader[T]) Retry(ctx context.Context) error {
	return l.begin(ctx, "retry", PhaseError)
}

func (l *Loader[T]) begin(ctx context.Context, op string, from Phase) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.syncLocked()
	if l.inflight {
		return nil
	}
	if l.state.Phase != from {
		return fmt.Errorf("%w: %s from %s", ErrInvalidTransition, op, l.state.Phase)
	}
	l.state = State[T]{Phase: PhaseInitialLoading}
	l.seen = map[string]struct{}{}
	l.publish()

	l.start(ctx, Start(), func(page Page[T], err error) {
		if err != nil {
			l.state = State[T]{Phase: PhaseError, Err: fmt.Errorf("%w: %w", ErrFetch, err)}
			return
		}
		l.state = State[T]{Phase: PhaseContent, Next: page.Next}
		l.appendLocked(page.Items)
	})
	return nil
}

// Refresh reloads the first page while keeping current items visible. On
// failure the previous phase and items are restored.
func (l *Loader[T]) Refresh(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.syncLocked()
	if l.inflight {
		return nil
	}
	prior := l.state.Phase
	if prior != PhaseContent && prior != PhaseError {
		return fmt.Errorf("%w: refresh from %s", ErrInvalidTransition, prior)
	}
	l.state.Phase = PhaseRefreshing
	l.publish()

	l.start(ctx, Start(), func(page Page[T], err error) {
		if err != nil {
			l.state.Phase = prior
			l.state.Err = fmt.Errorf("%w: %w", ErrFetch, err)
			return
		}
		l.state = State[T]{Phase: PhaseContent, Next: page.Next}
		l.seen = map[string]struct{}{}
		l.appendLocked(page.Items)
	})
	return nil
}

// LoadMore fetches the next page. It does nothing unless there is content
// and more pages remain.
func (l *Loader[T]) LoadMore(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.syncLocked()
	if l.inflight || l.state.Phase != PhaseContent || l.state.Next.Exhausted() {
		return nil
	}
	l.state.Phase = PhaseLoadingMore
	l.publish()

	l.start(ctx, l.state.Next, func(page Page[T], err error) {
		l.state.Phase = PhaseContent
		if err != nil {
			l.log.Debug("load more failed", zap.Error(err))
			return
		}
		l.state.Next = page.Next
		l.state.Err = nil
		l.appendLocked(page.Items)
	})
	return nil
}

// start runs fetch on a goroutine. apply runs under the lock, and only if the
// binding and loader epoch are unchanged.
func (l *Loader[T]) start(parent context.Context, cursor Cursor, apply func(Page[T], error)) {
	ctx, cancel := context.WithCancel(parent)
	l.inflight = true
	l.cancel = cancel
	epoch := l.epoch
	generation := l.boundGen

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer cancel()

		page, err := l.fetch(ctx, cursor)

		l.mu.Lock()
		defer l.mu.Unlock()
		if epoch != l.epoch || generation != l.gen.Generation() {
			l.log.Debug("discarding stale page",
				zap.Uint64("generation", generation),
				zap.Int("offset", cursor.Offset()))
			l.syncLocked()
			return
		}
		l.inflight = false
		l.cancel = nil
		apply(page, err)
		l.publish()
	}()
}

// syncLocked hard-resets the loader when the server binding changed.
func (l *Loader[T]) syncLocked() {
	current := l.gen.Generation()
	if current == l.boundGen {
		return
	}
	l.log.Debug("server binding changed, resetting",
		zap.Uint64("from", l.boundGen),
		zap.Uint64("to", current))
	l.boundGen = current
	l.resetLocked()
	l.publish()
}

func (l *Loader[T]) resetLocked() {
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
	l.inflight = false
	l.epoch++
	l.state = State[T]{}
	l.seen = map[string]struct{}{}
}

func (l *Loader[T]) appendLocked(items []T) {
	for _, item := range items {
		k := l.key(item)
		if _, ok := l.seen[k]; ok {
			continue
		}
		l.seen[k] = struct{}{}
		l.state.Items = append(l.state.Items, item)
	}
}

func (l *Loader[T]) publish() {
	l.watch.Set(l.snapshotLocked())
}

func (l *Loader[T]) snapshotLocked() State[T] {
	s := l.state
	s.Items = append([]T(nil), l.state.Items...)
	return s
}
