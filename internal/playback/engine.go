// Package playback owns the play queue state machine and mirrors every
// mutation to an external audio session.
package playback

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/mikey-austin/sonic_utopia/internal/observe"
	"github.com/mikey-austin/sonic_utopia/internal/playable"
)

var (
	// ErrEmptyQueue is returned when an operation needs a current item and there is none.
	ErrEmptyQueue = errors.New("queue empty")
	// ErrIndexOutOfRange is returned for indexes outside the queue.
	ErrIndexOutOfRange = errors.New("index out of range")
	// ErrPlaybackFailed marks a playback failure, either reported by the
	// session or raised while mirroring to it.
	ErrPlaybackFailed = errors.New("playback failed")
)

// Status is the engine status.
type Status int

const (
	StatusIdle Status = iota
	StatusReady
	StatusPlaying
	StatusPaused
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusReady:
		return "ready"
	case StatusPlaying:
		return "playing"
	case StatusPaused:
		return "paused"
	case StatusError:
		return "error"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Session is the external audio session the queue is mirrored to. Calls
// arrive in the order the engine applied them.
type Session interface {
	// Load replaces the session queue and selects index without starting playback.
	Load(items []playable.Item, index int) error
	Insert(items []playable.Item, at int) error
	Remove(index int) error
	Move(from, to int) error
	// Seek selects index, keeping the session's play or pause state.
	Seek(index int) error
	Play() error
	Pause() error
	Stop() error
}

// Snapshot is a copy of the engine state.
type Snapshot struct {
	Items        []playable.Item
	Index        int
	Status       Status
	FailedItemID string
	FailErr      error
	Revision     int64
}

// Current returns the current item.
func (s Snapshot) Current() (playable.Item, bool) {
	if s.Index < 0 || s.Index >= len(s.Items) {
		return playable.Item{}, false
	}
	return s.Items[s.Index], true
}

// Engine is the playback queue. The mutex is held across mutation and mirror
// so the session sees operations in call order.
type Engine struct {
	log     *zap.Logger
	session Session

	mu       sync.Mutex
	items    []playable.Item
	index    int
	status   Status
	failedID string
	failErr  error
	revision int64

	watch *observe.Holder[Snapshot]
}

// NewEngine creates an idle engine. A nil session is replaced by one that
// accepts every call.
func NewEngine(log *zap.Logger, session Session) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	if session == nil {
		session = NopSession{}
	}
	e := &Engine{log: log, session: session, index: -1, status: StatusIdle}
	e.watch = observe.NewHolder(e.snapshotLocked())
	return e
}

// Snapshot returns the current state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// Watch returns the state holder, updated after every change.
func (e *Engine) Watch() *observe.Holder[Snapshot] {
	return e.watch
}

// SetQueue replaces the queue. A non-empty queue becomes Ready at start; an
// empty one leaves the engine Idle.
func (e *Engine) SetQueue(items []playable.Item, start int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(items) == 0 {
		e.items = nil
		e.index = -1
		e.status = StatusIdle
		e.clearFailure()
		return e.commit("set", func() error { return e.session.Load(nil, -1) })
	}
	if start < 0 || start >= len(items) {
		return ErrIndexOutOfRange
	}
	e.items = append([]playable.Item(nil), items...)
	e.index = start
	e.status = StatusReady
	e.clearFailure()
	return e.commit("set", func() error { return e.session.Load(e.items, start) })
}

// Play starts or resumes the current item.
func (e *Engine) Play() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.status {
	case StatusPlaying:
		return nil
	case StatusError:
		return fmt.Errorf("%w: item %s", ErrPlaybackFailed, e.failedID)
	}
	if e.index < 0 {
		return ErrEmptyQueue
	}
	e.status = StatusPlaying
	return e.commit("play", e.session.Play)
}

// Pause pauses playback. It does nothing unless playing.
func (e *Engine) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.status != StatusPlaying {
		return nil
	}
	e.status = StatusPaused
	return e.commit("pause", e.session.Pause)
}

// Next advances one item. At the last item the index stays put and playback
// pauses.
func (e *Engine) Next() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.nextLocked(true)
}

// Previous steps back one item. At the first item it does nothing.
func (e *Engine) Previous() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.index < 0 {
		return ErrEmptyQueue
	}
	if e.index == 0 || e.status == StatusError {
		return nil
	}
	e.index--
	idx := e.index
	return e.commit("previous", func() error { return e.session.Seek(idx) })
}

// SeekTo jumps to index. Playing, paused and ready are preserved; an error
// state becomes ready.
func (e *Engine) SeekTo(index int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if index < 0 || index >= len(e.items) {
		return ErrIndexOutOfRange
	}
	e.index = index
	if e.status == StatusError {
		e.status = StatusReady
		e.clearFailure()
	}
	return e.commit("seek", func() error { return e.session.Seek(index) })
}

// Insert places items before position at, 0 <= at <= len.
func (e *Engine) Insert(items []playable.Item, at int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if at < 0 || at > len(e.items) {
		return ErrIndexOutOfRange
	}
	if len(items) == 0 {
		return nil
	}
	e.items = insertItems(e.items, items, at)
	switch {
	case e.index < 0:
		e.index = 0
		e.status = StatusReady
	case at <= e.index:
		e.index += len(items)
	}
	inserted := append([]playable.Item(nil), items...)
	return e.commit("insert", func() error { return e.session.Insert(inserted, at) })
}

// Remove deletes the item at index. Removing the current item moves to the
// one that takes its slot; removing the last remaining item leaves the
// engine idle and stops the session. An engine in error stays in error.
func (e *Engine) Remove(index int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if index < 0 || index >= len(e.items) {
		return ErrIndexOutOfRange
	}
	e.items = append(e.items[:index:index], e.items[index+1:]...)

	if len(e.items) == 0 {
		e.items = nil
		e.index = -1
		e.status = StatusIdle
		e.clearFailure()
		return e.commit("remove", func() error {
			if err := e.session.Remove(index); err != nil {
				return err
			}
			return e.session.Stop()
		})
	}

	switch {
	case index < e.index:
		e.index--
		return e.commit("remove", func() error { return e.session.Remove(index) })
	case index > e.index:
		return e.commit("remove", func() error { return e.session.Remove(index) })
	}

	pause := false
	if e.index >= len(e.items) {
		e.index = len(e.items) - 1
		if e.status != StatusError {
			pause = e.status == StatusPlaying
			e.status = StatusPaused
		}
	}
	idx := e.index
	return e.commit("remove", func() error {
		if err := e.session.Remove(index); err != nil {
			return err
		}
		if err := e.session.Seek(idx); err != nil {
			return err
		}
		if pause {
			return e.session.Pause()
		}
		return nil
	})
}

// Move relocates the item at from to position to, tracking the current item.
func (e *Engine) Move(from, to int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if from < 0 || from >= len(e.items) || to < 0 || to >= len(e.items) {
		return ErrIndexOutOfRange
	}
	if from == to {
		return nil
	}
	item := e.items[from]
	e.items = append(e.items[:from:from], e.items[from+1:]...)
	e.items = insertItems(e.items, []playable.Item{item}, to)

	switch {
	case e.index == from:
		e.index = to
	case from < e.index && to >= e.index:
		e.index--
	case from > e.index && to <= e.index:
		e.index++
	}
	return e.commit("move", func() error { return e.session.Move(from, to) })
}

// Fail records a playback failure reported by the session. Reports for items
// no longer queued are ignored.
func (e *Engine) Fail(itemID string, cause error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.containsLocked(itemID) {
		e.log.Debug("ignoring failure for unqueued item", zap.String("item", itemID), zap.Error(cause))
		return
	}
	e.log.Warn("playback failed", zap.String("item", itemID), zap.Error(cause))
	e.status = StatusError
	e.failedID = itemID
	e.failErr = cause
	e.revision++
	e.publish()
}

// Completed records that the session finished the current item on its own.
// It advances like Next without mirroring, since the session already moved.
// Reports for anything but the current item are ignored.
func (e *Engine) Completed(itemID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.index < 0 || e.items[e.index].MediaID != itemID {
		return
	}
	_ = e.nextLocked(false)
}

func (e *Engine) nextLocked(mirror bool) error {
	if e.index < 0 {
		return ErrEmptyQueue
	}
	if e.status == StatusError {
		return nil
	}
	if e.index == len(e.items)-1 {
		wasPlaying := e.status == StatusPlaying
		e.status = StatusPaused
		if !mirror || !wasPlaying {
			e.revision++
			e.publish()
			return nil
		}
		return e.commit("next", e.session.Pause)
	}
	e.index++
	if !mirror {
		e.revision++
		e.publish()
		return nil
	}
	idx := e.index
	return e.commit("next", func() error { return e.session.Seek(idx) })
}

// commit mirrors the applied mutation and publishes the new state. A mirror
// failure puts the engine in the error state against the current item.
func (e *Engine) commit(op string, mirror func() error) error {
	e.revision++
	err := mirror()
	if err != nil {
		e.log.Warn("session mirror failed", zap.String("op", op), zap.Error(err))
		e.status = StatusError
		e.failedID = ""
		if e.index >= 0 && e.index < len(e.items) {
			e.failedID = e.items[e.index].MediaID
		}
		e.failErr = err
		err = fmt.Errorf("%w: %s: %w", ErrPlaybackFailed, op, err)
	}
	e.publish()
	return err
}

func (e *Engine) publish() {
	e.watch.Set(e.snapshotLocked())
}

func (e *Engine) clearFailure() {
	e.failedID = ""
	e.failErr = nil
}

func (e *Engine) containsLocked(itemID string) bool {
	for _, item := range e.items {
		if item.MediaID == itemID {
			return true
		}
	}
	return false
}

func (e *Engine) snapshotLocked() Snapshot {
	return Snapshot{
		Items:        append([]playable.Item(nil), e.items...),
		Index:        e.index,
		Status:       e.status,
		FailedItemID: e.failedID,
		FailErr:      e.failErr,
		Revision:     e.revision,
	}
}

func insertItems(items []playable.Item, insert []playable.Item, index int) []playable.Item {
	result := make([]playable.Item, 0, len(items)+len(insert))
	result = append(result, items[:index]...)
	result = append(result, insert...)
	result = append(result, items[index:]...)
	return result
}

// NopSession accepts every call.
type NopSession struct{}

func (NopSession) Load([]playable.Item, int) error   { return nil }
func (NopSession) Insert([]playable.Item, int) error { return nil }
func (NopSession) Remove(int) error                  { return nil }
func (NopSession) Move(int, int) error               { return nil }
func (NopSession) Seek(int) error                    { return nil }
func (NopSession) Play() error                       { return nil }
func (NopSession) Pause() error                      { return nil }
func (NopSession) Stop() error                       { return nil }
