package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strconv"
	"testing"
	"time"

	embeddedmqtt "github.com/mikey-austin/sonic_utopia/internal/modules/embedded_mqtt"
	"github.com/mikey-austin/sonic_utopia/pkg/sonic"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().(*net.TCPAddr)
	_ = ln.Close()
	return "127.0.0.1:" + strconv.Itoa(addr.Port)
}

func startBroker(t *testing.T) (*embeddedmqtt.Module, string) {
	t.Helper()
	addr := freeAddr(t)
	broker, err := embeddedmqtt.NewModule(nil, embeddedmqtt.Config{Listen: addr, AllowAnonymous: true})
	if err != nil {
		t.Fatalf("broker: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = broker.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	deadline := time.Now().Add(2 * time.Second)
	for {
		conn, err := net.Dial("tcp", addr)
		if err == nil {
			_ = conn.Close()
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("broker not listening: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	return broker, broker.BrokerURL()
}

func TestClientRequiresBrokerAndID(t *testing.T) {
	if _, err := NewClient(Options{ClientID: "x"}); err == nil {
		t.Fatalf("expected broker url error")
	}
	if _, err := NewClient(Options{BrokerURL: "tcp://127.0.0.1:1"}); err == nil {
		t.Fatalf("expected client id error")
	}
}

func TestClientCallStateAndPresence(t *testing.T) {
	broker, url := startBroker(t)
	inline := broker.Inline()
	const node = "sonic:player:test"

	presence, _ := json.Marshal(sonic.Presence{NodeID: node, Kind: "player", Name: "Test", TS: 1})
	if err := inline.Publish(sonic.TopicPresence(sonic.BaseTopic, node), 1, true, presence); err != nil {
		t.Fatalf("publish presence: %v", err)
	}
	state, _ := json.Marshal(sonic.PlayerState{Status: "paused", Index: 1, Length: 2})
	if err := inline.Publish(sonic.TopicState(sonic.BaseTopic, node), 1, true, state); err != nil {
		t.Fatalf("publish state: %v", err)
	}
	replyTopics := make(chan string, 4)
	err := inline.Subscribe(sonic.TopicCommands(sonic.BaseTopic, node), 1, func(_ string, payload []byte) {
		var cmd sonic.CommandEnvelope
		if err := json.Unmarshal(payload, &cmd); err != nil {
			return
		}
		replyTopics <- cmd.ReplyTo
		var reply sonic.ReplyEnvelope
		switch cmd.Type {
		case sonic.CmdQueueGet:
			body, _ := json.Marshal(sonic.QueueGetReply{Revision: 7, Index: 1, Length: 2, Items: []sonic.QueueItem{{MediaID: "a"}, {MediaID: "b"}}})
			reply = sonic.ReplyEnvelope{ID: cmd.ID, Type: "ack", OK: true, TS: 2, Body: body}
		default:
			reply = sonic.NewErrorReply(cmd.ID, sonic.CodeEmptyQueue, "queue is empty", 2)
		}
		payload, _ = json.Marshal(reply)
		_ = inline.Publish(cmd.ReplyTo, 1, false, payload)
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	client, err := NewClient(Options{BrokerURL: url, ClientID: "cli-test", Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	get, _ := sonic.NewCommand(sonic.CmdQueueGet, sonic.QueueGetBody{})
	get.ID, get.TS, get.From = "cmd-1", 1, "tester"
	get.ReplyTo = "somewhere/else"
	var queue sonic.QueueGetReply
	if err := client.Call(ctx, node, get, &queue); err != nil {
		t.Fatalf("call: %v", err)
	}
	if queue.Revision != 7 || len(queue.Items) != 2 || queue.Items[1].MediaID != "b" {
		t.Fatalf("unexpected queue %+v", queue)
	}
	if topic := <-replyTopics; topic != sonic.TopicReply(sonic.BaseTopic, "cli-test") {
		t.Fatalf("expected client reply topic, got %q", topic)
	}

	play, _ := sonic.NewCommand(sonic.CmdPlaybackPlay, nil)
	play.ID, play.TS, play.From = "cmd-2", 1, "tester"
	err = client.Call(ctx, node, play, nil)
	var replyErr *sonic.ReplyError
	if !errors.As(err, &replyErr) || replyErr.Code != sonic.CodeEmptyQueue {
		t.Fatalf("expected empty queue reply error, got %v", err)
	}

	if err := client.Call(ctx, node, sonic.CommandEnvelope{Type: sonic.CmdPlaybackPlay}, nil); err == nil {
		t.Fatalf("expected error for command without id")
	}

	got, err := client.GetPlayerState(ctx, node)
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if got.Status != "paused" || got.Index != 1 {
		t.Fatalf("unexpected state %+v", got)
	}

	nodes, err := client.ListPresence(ctx)
	if err != nil {
		t.Fatalf("presence: %v", err)
	}
	if len(nodes) != 1 || nodes[0].NodeID != node {
		t.Fatalf("unexpected presence %+v", nodes)
	}

	if err := inline.Publish(sonic.TopicPresence(sonic.BaseTopic, node), 1, true, nil); err != nil {
		t.Fatalf("clear presence: %v", err)
	}
	nodes, err = client.ListPresence(ctx)
	if err != nil {
		t.Fatalf("presence: %v", err)
	}
	if len(nodes) != 0 {
		t.Fatalf("expected withdrawn node to be gone, got %+v", nodes)
	}
}

func TestDecodeReply(t *testing.T) {
	if err := decodeReply("queue.get", sonic.ReplyEnvelope{OK: false}, nil); err == nil {
		t.Fatalf("expected error for a failed reply without detail")
	}
	var out sonic.ServerReply
	if err := decodeReply("server.use", sonic.ReplyEnvelope{OK: true, Body: []byte("{bad")}, &out); err == nil {
		t.Fatalf("expected decode error")
	}
	if err := decodeReply("playback.play", sonic.ReplyEnvelope{OK: true, Body: []byte(`{"serverId":"x"}`)}, nil); err != nil {
		t.Fatalf("expected nil out to skip decoding, got %v", err)
	}
}
