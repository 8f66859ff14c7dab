// Package mpd plays the queue through an MPD server. The engine queue is
// mirrored into the MPD playlist using each item's stream URI, and MPD player
// events are reported back as completions and failures.
package mpd

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/fhs/gompd/v2/mpd"
	"go.uber.org/zap"

	"github.com/mikey-austin/sonic_utopia/internal/playable"
)

// Conn is the subset of *mpd.Client the session uses.
type Conn interface {
	Clear() error
	Add(uri string) error
	AddID(uri string, pos int) (int, error)
	Delete(start, end int) error
	Move(start, end, position int) error
	Play(pos int) error
	Pause(pause bool) error
	Stop() error
	Status() (mpd.Attrs, error)
	Close() error
}

// Reporter receives playback outcomes detected from MPD.
type Reporter interface {
	Fail(itemID string, err error)
	Completed(itemID string)
}

// Config configures the MPD connection.
type Config struct {
	Address  string
	Password string
}

type playState int

const (
	stateStopped playState = iota
	statePlaying
	statePaused
)

// Session mirrors the engine queue into MPD.
type Session struct {
	log  *zap.Logger
	conn Conn

	mu       sync.Mutex
	ids      []string
	selected int
	state    playState
}

// Dial connects to MPD. The MPD playlist is left alone until the first Load.
func Dial(log *zap.Logger, cfg Config) (*Session, error) {
	if cfg.Address == "" {
		return nil, errors.New("mpd address required")
	}
	client, err := mpd.DialAuthenticated("tcp", cfg.Address, cfg.Password)
	if err != nil {
		return nil, fmt.Errorf("connect to mpd: %w", err)
	}
	return New(log, client), nil
}

// New wraps an existing connection.
func New(log *zap.Logger, conn Conn) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{log: log, conn: conn, selected: -1}
}

// Close closes the MPD connection.
func (s *Session) Close() error {
	return s.conn.Close()
}

func (s *Session) Load(items []playable.Item, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.conn.Clear(); err != nil {
		return err
	}
	s.ids = s.ids[:0]
	s.state = stateStopped
	s.selected = index
	for _, item := range items {
		if err := s.conn.Add(item.StreamURI); err != nil {
			return fmt.Errorf("add %s: %w", item.MediaID, err)
		}
		s.ids = append(s.ids, item.MediaID)
	}
	return nil
}

func (s *Session) Insert(items []playable.Item, at int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, item := range items {
		if _, err := s.conn.AddID(item.StreamURI, at+i); err != nil {
			return fmt.Errorf("add %s: %w", item.MediaID, err)
		}
		s.ids = insertID(s.ids, item.MediaID, at+i)
	}
	switch {
	case s.selected < 0:
		s.selected = 0
	case at <= s.selected:
		s.selected += len(items)
	}
	return nil
}

func (s *Session) Remove(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.conn.Delete(index, index+1); err != nil {
		return err
	}
	if index >= 0 && index < len(s.ids) {
		s.ids = append(s.ids[:index], s.ids[index+1:]...)
	}
	if index < s.selected {
		s.selected--
	}
	if len(s.ids) == 0 {
		s.selected = -1
	}
	return nil
}

func (s *Session) Move(from, to int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.conn.Move(from, from+1, to); err != nil {
		return err
	}
	id := s.ids[from]
	s.ids = append(s.ids[:from], s.ids[from+1:]...)
	s.ids = insertID(s.ids, id, to)
	switch {
	case s.selected == from:
		s.selected = to
	case from < s.selected && to >= s.selected:
		s.selected--
	case from > s.selected && to <= s.selected:
		s.selected++
	}
	return nil
}

func (s *Session) Seek(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.selected = index
	switch s.state {
	case statePlaying:
		return s.conn.Play(index)
	case statePaused:
		if err := s.conn.Play(index); err != nil {
			return err
		}
		return s.conn.Pause(true)
	}
	return nil
}

func (s *Session) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == statePaused {
		if err := s.conn.Pause(false); err != nil {
			return err
		}
	} else if err := s.conn.Play(s.selected); err != nil {
		return err
	}
	s.state = statePlaying
	return nil
}

func (s *Session) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != statePlaying {
		return nil
	}
	if err := s.conn.Pause(true); err != nil {
		return err
	}
	s.state = statePaused
	return nil
}

func (s *Session) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.conn.Stop(); err != nil {
		return err
	}
	s.state = stateStopped
	return nil
}

// Watch consumes MPD idle events until ctx is done or events closes, and
// reports track completions and player errors.
func (s *Session) Watch(ctx context.Context, events <-chan string, reporter Reporter) {
	for {
		select {
		case <-ctx.Done():
			return
		case subsystem, ok := <-events:
			if !ok {
				return
			}
			if subsystem != "player" {
				continue
			}
			s.handlePlayer(reporter)
		}
	}
}

// WatchAddress opens an MPD idle watcher on the player subsystem and feeds it
// to Watch.
func (s *Session) WatchAddress(ctx context.Context, cfg Config, reporter Reporter) error {
	watcher, err := mpd.NewWatcher("tcp", cfg.Address, cfg.Password, "player")
	if err != nil {
		return fmt.Errorf("mpd watcher: %w", err)
	}
	defer watcher.Close()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case err, ok := <-watcher.Error:
				if !ok {
					return
				}
				s.log.Warn("mpd watcher error", zap.Error(err))
			}
		}
	}()

	s.Watch(ctx, watcher.Event, reporter)
	return nil
}

// handlePlayer compares MPD status with the session view. Reporter calls are
// made without holding the session lock, since the engine may be calling in.
func (s *Session) handlePlayer(reporter Reporter) {
	status, err := s.conn.Status()
	if err != nil {
		s.log.Warn("mpd status failed", zap.Error(err))
		return
	}

	var failed, completed string
	var failure error

	s.mu.Lock()
	if msg := status["error"]; msg != "" && s.selected >= 0 && s.selected < len(s.ids) {
		failed = s.ids[s.selected]
		failure = errors.New(msg)
		s.state = stateStopped
	} else if s.state == statePlaying && s.selected >= 0 && s.selected < len(s.ids) {
		pos := -1
		if v, ok := status["song"]; ok {
			if n, err := strconv.Atoi(v); err == nil {
				pos = n
			}
		}
		switch {
		case status["state"] == "stop":
			completed = s.ids[s.selected]
			s.state = stateStopped
		case pos == s.selected+1:
			completed = s.ids[s.selected]
			s.selected = pos
		}
	}
	s.mu.Unlock()

	if failed != "" {
		reporter.Fail(failed, failure)
	}
	if completed != "" {
		reporter.Completed(completed)
	}
}

func insertID(ids []string, id string, at int) []string {
	if at < 0 {
		at = 0
	}
	if at > len(ids) {
		at = len(ids)
	}
	ids = append(ids, "")
	copy(ids[at+1:], ids[at:])
	ids[at] = id
	return ids
}
