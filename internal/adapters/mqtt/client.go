package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/mikey-austin/sonic_utopia/internal/adapters/mqtttls"
	"github.com/mikey-austin/sonic_utopia/pkg/sonic"
)

// ErrReplyTimeout is returned when a player does not answer in time.
var ErrReplyTimeout = errors.New("timeout waiting for reply")

// Options configures the MQTT client.
type Options struct {
	BrokerURL string
	ClientID  string
	Username  string
	Password  string
	TLSCA     string
	TLSCert   string
	TLSKey    string
	TopicBase string
	Timeout   time.Duration
}

// Client is the controller side of the player protocol. It implements the
// Broker port.
type Client struct {
	client    paho.Client
	topicBase string
	timeout   time.Duration
	replies   *pending
}

// NewClient connects and subscribes to the controller's reply topic.
func NewClient(opts Options) (*Client, error) {
	if opts.BrokerURL == "" {
		return nil, errors.New("broker url required")
	}
	if opts.ClientID == "" {
		return nil, errors.New("client id required")
	}
	if opts.TopicBase == "" {
		opts.TopicBase = sonic.BaseTopic
	}
	if opts.Timeout == 0 {
		opts.Timeout = 2 * time.Second
	}

	tlsConfig, err := mqtttls.ClientConfig(opts.TLSCA, opts.TLSCert, opts.TLSKey)
	if err != nil {
		return nil, err
	}

	c := &Client{
		topicBase: opts.TopicBase,
		timeout:   opts.Timeout,
		replies:   newPending(sonic.TopicReply(opts.TopicBase, opts.ClientID)),
	}

	clientOpts := paho.NewClientOptions().
		AddBroker(opts.BrokerURL).
		SetClientID(opts.ClientID).
		SetConnectTimeout(opts.Timeout).
		SetAutoReconnect(true).
		SetOnConnectHandler(func(client paho.Client) {
			// Resubscribe after a reconnect drops the session.
			client.Subscribe(c.replies.topic, 1, jsonHandler(c.replies.resolve))
		})
	if opts.Username != "" {
		clientOpts.SetUsername(opts.Username).SetPassword(opts.Password)
	}
	if tlsConfig != nil {
		clientOpts.SetTLSConfig(tlsConfig)
	}

	c.client = paho.NewClient(clientOpts)
	if token := c.client.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	if token := c.client.Subscribe(c.replies.topic, 1, jsonHandler(c.replies.resolve)); token.Wait() && token.Error() != nil {
		c.client.Disconnect(0)
		return nil, token.Error()
	}
	return c, nil
}

// Close disconnects from the broker.
func (c *Client) Close() {
	c.client.Disconnect(250)
}

// Call sends cmd to a player and waits for its reply. The client owns the
// reply topic, so cmd.ReplyTo is overwritten. A failed reply is returned as
// *sonic.ReplyError; otherwise the reply body is decoded into out unless out
// is nil.
func (c *Client) Call(ctx context.Context, nodeID string, cmd sonic.CommandEnvelope, out any) error {
	if cmd.ID == "" {
		return errors.New("command id required")
	}
	cmd.ReplyTo = c.replies.topic
	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}

	replyCh, done := c.replies.await(cmd.ID)
	defer done()

	topic := sonic.TopicCommands(c.topicBase, nodeID)
	if token := c.client.Publish(topic, 1, false, payload); token.Wait() && token.Error() != nil {
		return token.Error()
	}

	var reply sonic.ReplyEnvelope
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.timeout):
		return fmt.Errorf("%s to %s: %w", cmd.Type, nodeID, ErrReplyTimeout)
	case reply = <-replyCh:
	}
	return decodeReply(cmd.Type, reply, out)
}

func decodeReply(cmdType string, reply sonic.ReplyEnvelope, out any) error {
	if reply.Err != nil {
		return reply.Err
	}
	if !reply.OK {
		return fmt.Errorf("%s rejected without an error", cmdType)
	}
	if out == nil || len(reply.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(reply.Body, out); err != nil {
		return fmt.Errorf("decode %s reply: %w", cmdType, err)
	}
	return nil
}

// pending routes replies to the calls waiting on their command ids.
type pending struct {
	topic string

	mu    sync.Mutex
	calls map[string]chan sonic.ReplyEnvelope
}

func newPending(topic string) *pending {
	return &pending{topic: topic, calls: map[string]chan sonic.ReplyEnvelope{}}
}

func (p *pending) await(id string) (<-chan sonic.ReplyEnvelope, func()) {
	ch := make(chan sonic.ReplyEnvelope, 1)
	p.mu.Lock()
	p.calls[id] = ch
	p.mu.Unlock()
	return ch, func() {
		p.mu.Lock()
		delete(p.calls, id)
		p.mu.Unlock()
	}
}

// resolve drops replies nobody waits for, and duplicates.
func (p *pending) resolve(reply sonic.ReplyEnvelope) {
	p.mu.Lock()
	ch, ok := p.calls[reply.ID]
	p.mu.Unlock()
	if ok {
		offer(ch, reply)
	}
}
