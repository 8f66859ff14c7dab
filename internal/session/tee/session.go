// Package tee fans queue session operations out to a primary audio session
// and any number of observers. Only primary failures are reported back to
// the engine; observer failures are logged.
package tee

import (
	"go.uber.org/zap"

	"github.com/mikey-austin/sonic_utopia/internal/playable"
	"github.com/mikey-austin/sonic_utopia/internal/playback"
)

// Session is a fan-out session.
type Session struct {
	log       *zap.Logger
	primary   playback.Session
	observers []playback.Session
}

// New creates a tee. A nil primary accepts every call.
func New(log *zap.Logger, primary playback.Session, observers ...playback.Session) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	if primary == nil {
		primary = playback.NopSession{}
	}
	return &Session{log: log, primary: primary, observers: observers}
}

func (s *Session) Load(items []playable.Item, index int) error {
	return s.each("load", func(t playback.Session) error { return t.Load(items, index) })
}

func (s *Session) Insert(items []playable.Item, at int) error {
	return s.each("insert", func(t playback.Session) error { return t.Insert(items, at) })
}

func (s *Session) Remove(index int) error {
	return s.each("remove", func(t playback.Session) error { return t.Remove(index) })
}

func (s *Session) Move(from, to int) error {
	return s.each("move", func(t playback.Session) error { return t.Move(from, to) })
}

func (s *Session) Seek(index int) error {
	return s.each("seek", func(t playback.Session) error { return t.Seek(index) })
}

func (s *Session) Play() error {
	return s.each("play", playback.Session.Play)
}

func (s *Session) Pause() error {
	return s.each("pause", playback.Session.Pause)
}

func (s *Session) Stop() error {
	return s.each("stop", playback.Session.Stop)
}

// each calls the primary first. Observers only see operations the primary
// accepted.
func (s *Session) each(op string, call func(playback.Session) error) error {
	if err := call(s.primary); err != nil {
		return err
	}
	for _, observer := range s.observers {
		if err := call(observer); err != nil {
			s.log.Warn("session observer failed", zap.String("op", op), zap.Error(err))
		}
	}
	return nil
}
