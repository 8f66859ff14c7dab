package mpd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fhs/gompd/v2/mpd"

	"github.com/mikey-austin/sonic_utopia/internal/playable"
	"github.com/mikey-austin/sonic_utopia/internal/playback"
)

type fakeConn struct {
	mu       sync.Mutex
	cmds     []string
	playlist []string
	status   mpd.Attrs
}

func (c *fakeConn) rec(cmd string) {
	c.cmds = append(c.cmds, cmd)
}

func (c *fakeConn) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rec("clear")
	c.playlist = nil
	return nil
}

func (c *fakeConn) Add(uri string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rec("add " + uri)
	c.playlist = append(c.playlist, uri)
	return nil
}

func (c *fakeConn) AddID(uri string, pos int) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rec(fmt.Sprintf("addid %s %d", uri, pos))
	c.playlist = append(c.playlist[:pos], append([]string{uri}, c.playlist[pos:]...)...)
	return len(c.playlist), nil
}

func (c *fakeConn) Delete(start, end int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rec(fmt.Sprintf("delete %d", start))
	c.playlist = append(c.playlist[:start], c.playlist[end:]...)
	return nil
}

func (c *fakeConn) Move(start, end, position int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rec(fmt.Sprintf("move %d %d", start, position))
	return nil
}

func (c *fakeConn) Play(pos int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rec(fmt.Sprintf("play %d", pos))
	return nil
}

func (c *fakeConn) Pause(pause bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rec(fmt.Sprintf("pause %t", pause))
	return nil
}

func (c *fakeConn) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rec("stop")
	return nil
}

func (c *fakeConn) Status() (mpd.Attrs, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status, nil
}

func (c *fakeConn) Close() error { return nil }

func (c *fakeConn) setStatus(attrs mpd.Attrs) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = attrs
}

func (c *fakeConn) commands() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return strings.Join(c.cmds, "; ")
}

func queue(ids ...string) []playable.Item {
	items := make([]playable.Item, 0, len(ids))
	for _, id := range ids {
		items = append(items, playable.Item{MediaID: id, StreamURI: "http://s/" + id})
	}
	return items
}

func TestSessionMirrorsEngine(t *testing.T) {
	conn := &fakeConn{}
	engine := playback.NewEngine(nil, New(nil, conn))

	_ = engine.SetQueue(queue("a", "b"), 0)
	_ = engine.Play()
	_ = engine.Pause()
	_ = engine.Play()
	_ = engine.Insert(queue("c"), 1)
	_ = engine.Next()
	_ = engine.Remove(0)

	want := "clear; add http://s/a; add http://s/b; play 0; pause true; pause false; addid http://s/c 1; play 1; delete 0"
	if got := conn.commands(); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestSessionSeekWhilePausedStaysPaused(t *testing.T) {
	conn := &fakeConn{}
	s := New(nil, conn)
	_ = s.Load(queue("a", "b"), 0)
	_ = s.Play()
	_ = s.Pause()
	_ = s.Seek(1)

	if got := conn.commands(); !strings.HasSuffix(got, "play 1; pause true") {
		t.Fatalf("expected paused seek, got %q", got)
	}
}

type fakeReporter struct {
	mu        sync.Mutex
	failed    []string
	completed []string
	reported  chan string
}

func newFakeReporter() *fakeReporter {
	return &fakeReporter{reported: make(chan string, 8)}
}

func (r *fakeReporter) Fail(itemID string, _ error) {
	r.mu.Lock()
	r.failed = append(r.failed, itemID)
	r.mu.Unlock()
	r.reported <- "failed " + itemID
}

func (r *fakeReporter) Completed(itemID string) {
	r.mu.Lock()
	r.completed = append(r.completed, itemID)
	r.mu.Unlock()
	r.reported <- "completed " + itemID
}

func (r *fakeReporter) await(t *testing.T, want string) {
	t.Helper()
	select {
	case got := <-r.reported:
		if got != want {
			t.Fatalf("expected %q, got %q", want, got)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for %q", want)
	}
}

func TestWatchReportsCompletionAndFailure(t *testing.T) {
	conn := &fakeConn{}
	s := New(nil, conn)
	_ = s.Load(queue("a", "b"), 0)
	_ = s.Play()

	reporter := newFakeReporter()
	events := make(chan string)
	done := make(chan struct{})
	go func() {
		s.Watch(context.Background(), events, reporter)
		close(done)
	}()

	conn.setStatus(mpd.Attrs{"state": "play", "song": "1"})
	events <- "mixer"
	events <- "player"
	reporter.await(t, "completed a")

	conn.setStatus(mpd.Attrs{"state": "stop", "error": "decode failed"})
	events <- "player"
	reporter.await(t, "failed b")
	close(events)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("watch did not stop")
	}

	reporter.mu.Lock()
	defer reporter.mu.Unlock()
	if strings.Join(reporter.completed, ",") != "a" {
		t.Fatalf("expected a completed, got %v", reporter.completed)
	}
	if strings.Join(reporter.failed, ",") != "b" {
		t.Fatalf("expected b failed, got %v", reporter.failed)
	}
}

func TestWatchDrivesEngine(t *testing.T) {
	conn := &fakeConn{}
	session := New(nil, conn)
	engine := playback.NewEngine(nil, session)
	_ = engine.SetQueue(queue("a", "b"), 0)
	_ = engine.Play()

	conn.setStatus(mpd.Attrs{"state": "play", "song": "1"})
	session.handlePlayer(engine)
	if snap := engine.Snapshot(); snap.Index != 1 || snap.Status != playback.StatusPlaying {
		t.Fatalf("expected engine advanced, got %d %s", snap.Index, snap.Status)
	}

	conn.setStatus(mpd.Attrs{"state": "stop"})
	session.handlePlayer(engine)
	if snap := engine.Snapshot(); snap.Index != 1 || snap.Status != playback.StatusPaused {
		t.Fatalf("expected engine paused at end, got %d %s", snap.Index, snap.Status)
	}
}

func TestDialRequiresAddress(t *testing.T) {
	if _, err := Dial(nil, Config{}); err == nil || errors.Is(err, context.Canceled) {
		t.Fatalf("expected address error, got %v", err)
	}
}
