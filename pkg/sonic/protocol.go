package sonic

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// BaseTopic is the default MQTT topic prefix for the protocol.
const BaseTopic = "sonic/v1"

// Command types understood by the player node.
const (
	CmdQueueGet      = "queue.get"
	CmdQueueSet      = "queue.set"
	CmdQueueInsert   = "queue.insert"
	CmdQueueRemove   = "queue.remove"
	CmdQueueMove     = "queue.move"
	CmdQueueSeek     = "queue.seek"
	CmdPlaybackPlay  = "playback.play"
	CmdPlaybackPause = "playback.pause"
	CmdPlaybackNext  = "playback.next"
	CmdPlaybackPrev  = "playback.prev"
	CmdServerUse     = "server.use"
)

// Error codes carried in ReplyError.
const (
	CodeInvalid     = "INVALID"
	CodeNoServer    = "NO_SERVER"
	CodeNotFound    = "NOT_FOUND"
	CodeOutOfRange  = "OUT_OF_RANGE"
	CodeEmptyQueue  = "EMPTY_QUEUE"
	CodePlayback    = "PLAYBACK_FAILED"
	CodeUpstream    = "UPSTREAM"
	CodeUnsupported = "UNSUPPORTED"
)

// CommandEnvelope is the common controller command envelope for MQTT.
type CommandEnvelope struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	TS      int64           `json:"ts"`
	From    string          `json:"from"`
	ReplyTo string          `json:"replyTo,omitempty"`
	Body    json.RawMessage `json:"body"`
}

// ReplyEnvelope is the response envelope for commands.
type ReplyEnvelope struct {
	ID   string          `json:"id"`
	Type string          `json:"type"`
	OK   bool            `json:"ok"`
	TS   int64           `json:"ts"`
	Body json.RawMessage `json:"body,omitempty"`
	Err  *ReplyError     `json:"err,omitempty"`
}

// ReplyError describes an error response.
type ReplyError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *ReplyError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewErrorReply builds the failed reply to command id.
func NewErrorReply(id, code, message string, ts int64) ReplyEnvelope {
	return ReplyEnvelope{
		ID:   id,
		Type: "error",
		TS:   ts,
		Err:  &ReplyError{Code: code, Message: message},
	}
}

// Presence describes a node presence payload.
type Presence struct {
	NodeID string `json:"nodeId"`
	Kind   string `json:"kind"`
	Name   string `json:"name"`
	TS     int64  `json:"ts"`
}

// NewCommand builds a command envelope with a JSON body.
func NewCommand(cmdType string, body any) (CommandEnvelope, error) {
	if body == nil {
		body = struct{}{}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return CommandEnvelope{}, fmt.Errorf("marshal body: %w", err)
	}

	return CommandEnvelope{
		Type: cmdType,
		Body: payload,
	}, nil
}

// ValidateCommandEnvelope validates required fields.
func ValidateCommandEnvelope(cmd CommandEnvelope) error {
	if strings.TrimSpace(cmd.ID) == "" {
		return errors.New("id is required")
	}
	if strings.TrimSpace(cmd.Type) == "" {
		return errors.New("type is required")
	}
	if cmd.TS <= 0 {
		return errors.New("ts must be a positive unix timestamp")
	}
	if strings.TrimSpace(cmd.From) == "" {
		return errors.New("from is required")
	}
	if len(cmd.Body) == 0 {
		return errors.New("body is required")
	}
	return nil
}

// CommandMutates reports whether a command changes the player queue or
// playback.
func CommandMutates(cmdType string) bool {
	switch cmdType {
	case CmdQueueSet, CmdQueueInsert, CmdQueueRemove, CmdQueueMove, CmdQueueSeek:
		return true
	case CmdPlaybackPlay, CmdPlaybackPause, CmdPlaybackNext, CmdPlaybackPrev:
		return true
	case CmdServerUse:
		return true
	default:
		return false
	}
}

// TopicPresence builds the presence topic for a node.
func TopicPresence(topicBase, nodeID string) string {
	return fmt.Sprintf("%s/node/%s/presence", topicBase, nodeID)
}

// TopicState builds the state topic for a node.
func TopicState(topicBase, nodeID string) string {
	return fmt.Sprintf("%s/node/%s/state", topicBase, nodeID)
}

// TopicCommands builds the command topic for a node.
func TopicCommands(topicBase, nodeID string) string {
	return fmt.Sprintf("%s/node/%s/cmd", topicBase, nodeID)
}

// TopicEvents builds the events topic for a node.
func TopicEvents(topicBase, nodeID string) string {
	return fmt.Sprintf("%s/node/%s/evt", topicBase, nodeID)
}

// TopicReply builds the reply topic for a controller instance.
func TopicReply(topicBase, controllerID string) string {
	return fmt.Sprintf("%s/reply/%s", topicBase, controllerID)
}
