package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/mikey-austin/sonic_utopia/pkg/sonic"
)

// presenceWindow is how long ListPresence collects retained presence.
const presenceWindow = 250 * time.Millisecond

// ListPresence collects retained presence for every node, sorted by node id.
// Cleared presence has an empty payload and is skipped.
func (c *Client) ListPresence(ctx context.Context) ([]sonic.Presence, error) {
	var mu sync.Mutex
	seen := map[string]sonic.Presence{}
	unsubscribe, err := c.subscribe(sonic.TopicPresence(c.topicBase, "+"), jsonHandler(func(p sonic.Presence) {
		if p.NodeID == "" {
			return
		}
		mu.Lock()
		seen[p.NodeID] = p
		mu.Unlock()
	}))
	if err != nil {
		return nil, err
	}
	defer unsubscribe()

	wait := time.NewTimer(presenceWindow)
	defer wait.Stop()
	select {
	case <-ctx.Done():
	case <-wait.C:
	}

	mu.Lock()
	defer mu.Unlock()
	nodes := make([]sonic.Presence, 0, len(seen))
	for _, p := range seen {
		nodes = append(nodes, p)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].NodeID < nodes[j].NodeID })
	return nodes, nil
}

// GetPlayerState returns a player's retained state.
func (c *Client) GetPlayerState(ctx context.Context, nodeID string) (sonic.PlayerState, error) {
	states := make(chan sonic.PlayerState, 1)
	unsubscribe, err := c.subscribe(sonic.TopicState(c.topicBase, nodeID), jsonHandler(func(s sonic.PlayerState) {
		offer(states, s)
	}))
	if err != nil {
		return sonic.PlayerState{}, err
	}
	defer unsubscribe()

	select {
	case <-ctx.Done():
		return sonic.PlayerState{}, ctx.Err()
	case state := <-states:
		return state, nil
	case <-time.After(c.timeout):
		return sonic.PlayerState{}, errors.New("timeout waiting for state")
	}
}

// WatchPlayer streams a player's state and mirrored session events until ctx
// is done. Slow readers miss updates rather than stall the client.
func (c *Client) WatchPlayer(ctx context.Context, nodeID string) (<-chan sonic.PlayerState, <-chan sonic.SessionEvent, <-chan error) {
	states := make(chan sonic.PlayerState, 8)
	events := make(chan sonic.SessionEvent, 8)
	errs := make(chan error, 1)

	stopStates, err := c.subscribe(sonic.TopicState(c.topicBase, nodeID), jsonHandler(func(s sonic.PlayerState) {
		offer(states, s)
	}))
	if err != nil {
		errs <- err
		return states, events, errs
	}
	stopEvents, err := c.subscribe(sonic.TopicEvents(c.topicBase, nodeID), jsonHandler(func(e sonic.SessionEvent) {
		offer(events, e)
	}))
	if err != nil {
		stopStates()
		errs <- err
		return states, events, errs
	}

	go func() {
		<-ctx.Done()
		stopStates()
		stopEvents()
		close(states)
		close(events)
		close(errs)
	}()
	return states, events, errs
}

func (c *Client) subscribe(topic string, handler paho.MessageHandler) (func(), error) {
	if token := c.client.Subscribe(topic, 1, handler); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return func() { c.client.Unsubscribe(topic).Wait() }, nil
}

// jsonHandler decodes each payload as T; payloads that do not decode are
// dropped.
func jsonHandler[T any](fn func(T)) paho.MessageHandler {
	return func(_ paho.Client, msg paho.Message) {
		var v T
		if err := json.Unmarshal(msg.Payload(), &v); err != nil {
			return
		}
		fn(v)
	}
}

func offer[T any](ch chan T, v T) {
	select {
	case ch <- v:
	default:
	}
}
