package playback

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/mikey-austin/sonic_utopia/internal/playable"
)

type fakeSession struct {
	ops    []string
	failOn string
}

func (s *fakeSession) record(op string) error {
	s.ops = append(s.ops, op)
	if s.failOn != "" && strings.HasPrefix(op, s.failOn) {
		return errors.New("session down")
	}
	return nil
}

func (s *fakeSession) Load(items []playable.Item, index int) error {
	return s.record(fmt.Sprintf("load %d@%d", len(items), index))
}
func (s *fakeSession) Insert(items []playable.Item, at int) error {
	return s.record(fmt.Sprintf("insert %d@%d", len(items), at))
}
func (s *fakeSession) Remove(index int) error { return s.record(fmt.Sprintf("remove %d", index)) }
func (s *fakeSession) Move(from, to int) error {
	return s.record(fmt.Sprintf("move %d>%d", from, to))
}
func (s *fakeSession) Seek(index int) error { return s.record(fmt.Sprintf("seek %d", index)) }
func (s *fakeSession) Play() error          { return s.record("play") }
func (s *fakeSession) Pause() error         { return s.record("pause") }
func (s *fakeSession) Stop() error          { return s.record("stop") }

func items(ids ...string) []playable.Item {
	out := make([]playable.Item, 0, len(ids))
	for _, id := range ids {
		out = append(out, playable.Item{MediaID: id, Title: id})
	}
	return out
}

func ids(snap Snapshot) string {
	parts := make([]string, 0, len(snap.Items))
	for _, item := range snap.Items {
		parts = append(parts, item.MediaID)
	}
	return strings.Join(parts, ",")
}

func expectState(t *testing.T, e *Engine, index int, status Status) Snapshot {
	t.Helper()
	snap := e.Snapshot()
	if snap.Index != index || snap.Status != status {
		t.Fatalf("expected index %d %s, got %d %s", index, status, snap.Index, snap.Status)
	}
	return snap
}

func TestEngineStartsIdle(t *testing.T) {
	e := NewEngine(nil, nil)
	expectState(t, e, -1, StatusIdle)
	if err := e.Play(); !errors.Is(err, ErrEmptyQueue) {
		t.Fatalf("expected empty queue, got %v", err)
	}
	if err := e.Next(); !errors.Is(err, ErrEmptyQueue) {
		t.Fatalf("expected empty queue, got %v", err)
	}
}

func TestEngineNextAtEndPauses(t *testing.T) {
	session := &fakeSession{}
	e := NewEngine(nil, session)

	if err := e.SetQueue(items("s1", "s2", "s3"), 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	expectState(t, e, 0, StatusReady)
	if err := e.Play(); err != nil {
		t.Fatalf("play: %v", err)
	}
	_ = e.Next()
	_ = e.Next()
	expectState(t, e, 2, StatusPlaying)
	if err := e.Next(); err != nil {
		t.Fatalf("next at end: %v", err)
	}
	expectState(t, e, 2, StatusPaused)

	want := "load 3@0 play seek 1 seek 2 pause"
	if got := strings.Join(session.ops, " "); got != want {
		t.Fatalf("expected ops %q, got %q", want, got)
	}
}

func TestEngineSetQueueOutOfRange(t *testing.T) {
	e := NewEngine(nil, nil)
	_ = e.SetQueue(items("a"), 0)
	if err := e.SetQueue(items("x", "y"), 5); !errors.Is(err, ErrIndexOutOfRange) {
		t.Fatalf("expected out of range, got %v", err)
	}
	snap := expectState(t, e, 0, StatusReady)
	if ids(snap) != "a" {
		t.Fatalf("expected queue unchanged, got %s", ids(snap))
	}
}

func TestEngineSetQueueEmptyIsIdle(t *testing.T) {
	e := NewEngine(nil, nil)
	_ = e.SetQueue(items("a"), 0)
	_ = e.SetQueue(nil, 0)
	expectState(t, e, -1, StatusIdle)
}

func TestEnginePauseAndPrevious(t *testing.T) {
	session := &fakeSession{}
	e := NewEngine(nil, session)
	_ = e.SetQueue(items("a", "b"), 0)

	_ = e.Pause()
	expectState(t, e, 0, StatusReady)
	_ = e.Previous()
	expectState(t, e, 0, StatusReady)

	_ = e.Play()
	_ = e.Pause()
	expectState(t, e, 0, StatusPaused)
	_ = e.Pause()
	if got := strings.Join(session.ops, " "); got != "load 2@0 play pause" {
		t.Fatalf("unexpected ops %q", got)
	}
}

func TestEngineRemoveCurrentAdvances(t *testing.T) {
	session := &fakeSession{}
	e := NewEngine(nil, session)
	_ = e.SetQueue(items("a", "b", "c"), 1)
	_ = e.Play()

	if err := e.Remove(1); err != nil {
		t.Fatalf("remove: %v", err)
	}
	snap := expectState(t, e, 1, StatusPlaying)
	if current, _ := snap.Current(); current.MediaID != "c" {
		t.Fatalf("expected c current, got %s", current.MediaID)
	}

	if err := e.Remove(1); err != nil {
		t.Fatalf("remove last: %v", err)
	}
	snap = expectState(t, e, 0, StatusPaused)
	if ids(snap) != "a" {
		t.Fatalf("unexpected items %s", ids(snap))
	}

	_ = e.Remove(0)
	expectState(t, e, -1, StatusIdle)

	want := "load 3@1 play remove 1 seek 1 remove 1 seek 0 pause remove 0 stop"
	if got := strings.Join(session.ops, " "); got != want {
		t.Fatalf("expected ops %q, got %q", want, got)
	}
}

func TestEngineRemoveBeforeCurrentTracks(t *testing.T) {
	e := NewEngine(nil, nil)
	_ = e.SetQueue(items("a", "b", "c"), 2)
	_ = e.Remove(0)
	snap := expectState(t, e, 1, StatusReady)
	if current, _ := snap.Current(); current.MediaID != "c" {
		t.Fatalf("expected current c, got %s", current.MediaID)
	}
	if err := e.Remove(7); !errors.Is(err, ErrIndexOutOfRange) {
		t.Fatalf("expected out of range, got %v", err)
	}
}

func TestEngineInsertAndMoveTrackCurrent(t *testing.T) {
	e := NewEngine(nil, nil)
	_ = e.SetQueue(items("a", "b", "c"), 1)

	_ = e.Insert(items("x", "y"), 0)
	snap := expectState(t, e, 3, StatusReady)
	if ids(snap) != "x,y,a,b,c" {
		t.Fatalf("unexpected order %s", ids(snap))
	}

	_ = e.Insert(items("z"), 5)
	expectState(t, e, 3, StatusReady)

	_ = e.Move(3, 0)
	snap = expectState(t, e, 0, StatusReady)
	if ids(snap) != "b,x,y,a,c,z" {
		t.Fatalf("unexpected order %s", ids(snap))
	}

	_ = e.Move(5, 0)
	snap = expectState(t, e, 1, StatusReady)
	if current, _ := snap.Current(); current.MediaID != "b" {
		t.Fatalf("expected b current, got %s", current.MediaID)
	}

	_ = e.Move(0, 4)
	snap = expectState(t, e, 0, StatusReady)
	if current, _ := snap.Current(); current.MediaID != "b" {
		t.Fatalf("expected b current, got %s", current.MediaID)
	}

	if err := e.Insert(items("q"), 99); !errors.Is(err, ErrIndexOutOfRange) {
		t.Fatalf("expected out of range, got %v", err)
	}
}

func TestEngineInsertIntoEmptyIsReady(t *testing.T) {
	e := NewEngine(nil, nil)
	_ = e.Insert(items("a"), 0)
	expectState(t, e, 0, StatusReady)
}

func TestEngineFailAndRecover(t *testing.T) {
	e := NewEngine(nil, nil)
	_ = e.SetQueue(items("a", "b"), 0)
	_ = e.Play()

	e.Fail("gone", errors.New("ignored"))
	expectState(t, e, 0, StatusPlaying)

	e.Fail("a", errors.New("decode error"))
	snap := expectState(t, e, 0, StatusError)
	if snap.FailedItemID != "a" {
		t.Fatalf("expected failed a, got %q", snap.FailedItemID)
	}
	if err := e.Play(); !errors.Is(err, ErrPlaybackFailed) {
		t.Fatalf("expected playback failed, got %v", err)
	}

	if err := e.SeekTo(1); err != nil {
		t.Fatalf("seek: %v", err)
	}
	snap = expectState(t, e, 1, StatusReady)
	if snap.FailedItemID != "" {
		t.Fatalf("expected failure cleared")
	}
	if err := e.SeekTo(2); !errors.Is(err, ErrIndexOutOfRange) {
		t.Fatalf("expected out of range, got %v", err)
	}
	expectState(t, e, 1, StatusReady)
}

func TestEngineRemoveKeepsError(t *testing.T) {
	session := &fakeSession{}
	e := NewEngine(nil, session)
	_ = e.SetQueue(items("a", "b", "c"), 0)
	_ = e.Play()
	e.Fail("a", errors.New("decode error"))

	if err := e.Remove(0); err != nil {
		t.Fatalf("remove: %v", err)
	}
	snap := expectState(t, e, 0, StatusError)
	if snap.FailedItemID != "a" {
		t.Fatalf("expected failure kept, got %q", snap.FailedItemID)
	}
	if current, _ := snap.Current(); current.MediaID != "b" {
		t.Fatalf("expected b in the slot, got %s", current.MediaID)
	}

	if err := e.Next(); err != nil {
		t.Fatalf("next: %v", err)
	}
	expectState(t, e, 0, StatusError)

	_ = e.Remove(1)
	if err := e.Remove(0); err != nil {
		t.Fatalf("remove last current: %v", err)
	}
	expectState(t, e, -1, StatusIdle)

	want := "load 3@0 play remove 0 seek 0 remove 1 remove 0 stop"
	if got := strings.Join(session.ops, " "); got != want {
		t.Fatalf("expected ops %q, got %q", want, got)
	}
}

func TestEngineRevisionBumpsOnUnmirroredChanges(t *testing.T) {
	e := NewEngine(nil, nil)
	_ = e.SetQueue(items("a", "b"), 0)
	_ = e.Play()
	rev := e.Snapshot().Revision

	e.Completed("a")
	snap := expectState(t, e, 1, StatusPlaying)
	if snap.Revision <= rev {
		t.Fatalf("expected revision past %d after completion, got %d", rev, snap.Revision)
	}
	rev = snap.Revision

	e.Fail("b", errors.New("decode error"))
	snap = expectState(t, e, 1, StatusError)
	if snap.Revision <= rev {
		t.Fatalf("expected revision past %d after failure, got %d", rev, snap.Revision)
	}
}

func TestEngineSeekPreservesStatus(t *testing.T) {
	e := NewEngine(nil, nil)
	_ = e.SetQueue(items("a", "b", "c"), 0)
	_ = e.Play()
	_ = e.SeekTo(2)
	expectState(t, e, 2, StatusPlaying)
	_ = e.Pause()
	_ = e.SeekTo(0)
	expectState(t, e, 0, StatusPaused)
}

func TestEngineMirrorFailureIsError(t *testing.T) {
	session := &fakeSession{failOn: "play"}
	e := NewEngine(nil, session)
	_ = e.SetQueue(items("a"), 0)

	err := e.Play()
	if !errors.Is(err, ErrPlaybackFailed) {
		t.Fatalf("expected playback failed, got %v", err)
	}
	snap := expectState(t, e, 0, StatusError)
	if snap.FailedItemID != "a" {
		t.Fatalf("expected failed item a, got %q", snap.FailedItemID)
	}
}

func TestEngineCompletedAdvancesWithoutMirror(t *testing.T) {
	session := &fakeSession{}
	e := NewEngine(nil, session)
	_ = e.SetQueue(items("a", "b"), 0)
	_ = e.Play()

	e.Completed("b")
	expectState(t, e, 0, StatusPlaying)
	e.Completed("a")
	expectState(t, e, 1, StatusPlaying)
	e.Completed("b")
	expectState(t, e, 1, StatusPaused)

	if got := strings.Join(session.ops, " "); got != "load 2@0 play" {
		t.Fatalf("unexpected ops %q", got)
	}
}

func TestEngineWatchPublishes(t *testing.T) {
	e := NewEngine(nil, nil)
	ch, cancel := e.Watch().Subscribe()
	defer cancel()

	<-ch
	_ = e.SetQueue(items("a"), 0)
	snap := <-ch
	if snap.Status != StatusReady || snap.Revision != 1 {
		t.Fatalf("unexpected published state %+v", snap)
	}
}
