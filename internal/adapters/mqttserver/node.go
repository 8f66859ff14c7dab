// Package mqttserver puts a player node on the MQTT bus: it owns the node's
// retained presence and state, its session event stream and the command
// subscription that turns requests into replies.
package mqttserver

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mikey-austin/sonic_utopia/pkg/sonic"
)

// Transport is the raw MQTT surface a Node speaks over. Conn and the embedded
// broker's inline client both satisfy it.
type Transport interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error
	Unsubscribe(topic string) error
}

// Node is one player node's endpoint on the bus.
type Node struct {
	tr  Transport
	log *zap.Logger
	id  string
	now func() time.Time

	presence string
	state    string
	commands string
	events   string
}

// NewNode binds nodeID under topicBase to a transport.
func NewNode(log *zap.Logger, tr Transport, topicBase, nodeID string) (*Node, error) {
	if tr == nil {
		return nil, errors.New("transport required")
	}
	if strings.TrimSpace(nodeID) == "" {
		return nil, errors.New("node_id required")
	}
	if strings.TrimSpace(topicBase) == "" {
		topicBase = sonic.BaseTopic
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Node{
		tr:       tr,
		log:      log.With(zap.String("node", nodeID)),
		id:       nodeID,
		now:      time.Now,
		presence: sonic.TopicPresence(topicBase, nodeID),
		state:    sonic.TopicState(topicBase, nodeID),
		commands: sonic.TopicCommands(topicBase, nodeID),
		events:   sonic.TopicEvents(topicBase, nodeID),
	}, nil
}

// PresenceTopic is where the node announces itself; Options.Will takes it.
func PresenceTopic(topicBase, nodeID string) string {
	if strings.TrimSpace(topicBase) == "" {
		topicBase = sonic.BaseTopic
	}
	return sonic.TopicPresence(topicBase, nodeID)
}

// ID returns the node id.
func (n *Node) ID() string {
	return n.id
}

// Announce publishes retained presence for the node.
func (n *Node) Announce(name string) error {
	return n.publishJSON(n.presence, true, sonic.Presence{
		NodeID: n.id,
		Kind:   "player",
		Name:   name,
		TS:     n.now().Unix(),
	})
}

// Withdraw clears the retained presence so controllers stop listing the node.
func (n *Node) Withdraw() error {
	return n.tr.Publish(n.presence, 1, true, nil)
}

// PublishState replaces the retained player state.
func (n *Node) PublishState(state sonic.PlayerState) error {
	return n.publishJSON(n.state, true, state)
}

// PublishEvent publishes one session event.
func (n *Node) PublishEvent(event sonic.SessionEvent) error {
	return n.publishJSON(n.events, false, event)
}

// Serve subscribes to the node's commands and answers each on its reply
// topic with the handler's reply. Malformed payloads are dropped; envelopes
// missing required fields get an INVALID reply without reaching handler.
// The returned func unsubscribes.
func (n *Node) Serve(handler func(sonic.CommandEnvelope) sonic.ReplyEnvelope) (func(), error) {
	err := n.tr.Subscribe(n.commands, 1, func(_ string, payload []byte) {
		var cmd sonic.CommandEnvelope
		if err := json.Unmarshal(payload, &cmd); err != nil {
			n.log.Warn("undecodable command", zap.Int("bytes", len(payload)), zap.Error(err))
			return
		}
		var reply sonic.ReplyEnvelope
		if err := sonic.ValidateCommandEnvelope(cmd); err != nil {
			n.log.Warn("invalid command", zap.String("id", cmd.ID), zap.Error(err))
			reply = sonic.NewErrorReply(cmd.ID, sonic.CodeInvalid, err.Error(), n.now().Unix())
		} else {
			reply = handler(cmd)
		}
		if cmd.ReplyTo == "" {
			return
		}
		if err := n.publishJSON(cmd.ReplyTo, false, reply); err != nil {
			n.log.Error("publish reply", zap.String("id", cmd.ID), zap.Error(err))
		}
	})
	if err != nil {
		return nil, err
	}
	return func() {
		if err := n.tr.Unsubscribe(n.commands); err != nil {
			n.log.Warn("unsubscribe commands", zap.Error(err))
		}
	}, nil
}

func (n *Node) publishJSON(topic string, retained bool, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	n.log.Debug("publish", zap.String("topic", topic), zap.Int("bytes", len(payload)))
	return n.tr.Publish(topic, 1, retained, payload)
}
