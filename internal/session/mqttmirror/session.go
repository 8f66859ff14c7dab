// Package mqttmirror publishes every queue session operation as an event on
// the player node's event topic, so remote controllers can follow the queue.
package mqttmirror

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mikey-austin/sonic_utopia/internal/playable"
	"github.com/mikey-austin/sonic_utopia/pkg/sonic"
)

// EventPublisher puts session events on the node's event topic.
// mqttserver.Node implements it.
type EventPublisher interface {
	PublishEvent(event sonic.SessionEvent) error
}

// Session mirrors operations to MQTT.
type Session struct {
	log       *zap.Logger
	publisher EventPublisher
	now       func() time.Time

	mu  sync.Mutex
	seq int64
}

// New creates a mirror session.
func New(log *zap.Logger, publisher EventPublisher) (*Session, error) {
	if publisher == nil {
		return nil, errors.New("publisher required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{log: log, publisher: publisher, now: time.Now}, nil
}

func (s *Session) Load(items []playable.Item, index int) error {
	return s.emit(sonic.SessionEvent{Op: "load", Index: index, MediaIDs: mediaIDs(items)})
}

func (s *Session) Insert(items []playable.Item, at int) error {
	return s.emit(sonic.SessionEvent{Op: "insert", Index: at, MediaIDs: mediaIDs(items)})
}

func (s *Session) Remove(index int) error {
	return s.emit(sonic.SessionEvent{Op: "remove", Index: index})
}

func (s *Session) Move(from, to int) error {
	return s.emit(sonic.SessionEvent{Op: "move", Index: from, To: to})
}

func (s *Session) Seek(index int) error {
	return s.emit(sonic.SessionEvent{Op: "seek", Index: index})
}

func (s *Session) Play() error  { return s.emit(sonic.SessionEvent{Op: "play", Index: -1}) }
func (s *Session) Pause() error { return s.emit(sonic.SessionEvent{Op: "pause", Index: -1}) }
func (s *Session) Stop() error  { return s.emit(sonic.SessionEvent{Op: "stop", Index: -1}) }

func (s *Session) emit(event sonic.SessionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	event.Seq = s.seq
	event.TS = s.now().Unix()
	if err := s.publisher.PublishEvent(event); err != nil {
		s.log.Warn("mirror publish failed", zap.String("op", event.Op), zap.Error(err))
		return err
	}
	return nil
}

func mediaIDs(items []playable.Item) []string {
	if len(items) == 0 {
		return nil
	}
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.MediaID)
	}
	return ids
}
