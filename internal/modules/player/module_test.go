package player

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/mikey-austin/sonic_utopia/internal/adapters/mqttserver"
	"github.com/mikey-austin/sonic_utopia/internal/playback"
	"github.com/mikey-austin/sonic_utopia/internal/servers"
	"github.com/mikey-austin/sonic_utopia/internal/subsonic"
	"github.com/mikey-austin/sonic_utopia/pkg/sonic"
)

type published struct {
	topic    string
	retained bool
	payload  []byte
}

type fakeTransport struct {
	mu       sync.Mutex
	handlers map[string]func(string, []byte)
	topics   map[string]chan published
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{handlers: map[string]func(string, []byte){}, topics: map[string]chan published{}}
}

func (f *fakeTransport) topic(topic string) chan published {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.topics[topic]
	if !ok {
		ch = make(chan published, 64)
		f.topics[topic] = ch
	}
	return ch
}

func (f *fakeTransport) Publish(topic string, _ byte, retained bool, payload []byte) error {
	f.topic(topic) <- published{topic: topic, retained: retained, payload: payload}
	return nil
}

func (f *fakeTransport) Subscribe(topic string, _ byte, handler func(string, []byte)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[topic] = handler
	return nil
}

func (f *fakeTransport) Unsubscribe(topic string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handlers, topic)
	return nil
}

func (f *fakeTransport) handler(topic string) func(string, []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handlers[topic]
}

func (f *fakeTransport) next(t *testing.T, topic string) published {
	t.Helper()
	select {
	case msg := <-f.topic(topic):
		return msg
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for %s", topic)
		return published{}
	}
}

func writeOK(w http.ResponseWriter, fields map[string]any) {
	body := map[string]any{"status": "ok", "version": subsonic.DefaultAPIVersion}
	for k, v := range fields {
		body[k] = v
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"subsonic-response": body})
}

func subsonicServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("id")
		switch r.URL.Path {
		case "/rest/getSong":
			if id == "missing" {
				w.Header().Set("Content-Type", "application/json")
				_ = json.NewEncoder(w).Encode(map[string]any{"subsonic-response": map[string]any{
					"status": "failed", "error": map[string]any{"code": 70, "message": "not found"},
				}})
				return
			}
			writeOK(w, map[string]any{"song": map[string]any{"id": id, "title": "Song " + id, "duration": 60, "userRating": 4}})
		case "/rest/getAlbum":
			writeOK(w, map[string]any{"album": map[string]any{"id": id, "song": []map[string]any{
				{"id": "t1", "title": "One"}, {"id": "t2", "title": "Two"}, {"id": "t3", "title": "Three"},
			}}})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestModule(t *testing.T) (*Module, *fakeTransport, *servers.Registry) {
	t.Helper()
	srv := subsonicServer(t)
	reg, err := servers.NewRegistry(
		servers.Connection{ID: "home", BaseURL: srv.URL, Username: "alice", Password: "pw"},
		servers.Connection{ID: "work", BaseURL: srv.URL, Username: "bob", Password: "pw"},
	)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	_ = reg.SetActive("home")

	transport := newFakeTransport()
	module, err := NewModule(nil, newNode(t, transport), Deps{
		Registry: reg,
		Provider: subsonic.NewProvider(reg, subsonic.Options{}),
		Engine:   playback.NewEngine(nil, nil),
	}, Config{})
	if err != nil {
		t.Fatalf("module: %v", err)
	}
	return module, transport, reg
}

func newNode(t *testing.T, transport *fakeTransport) *mqttserver.Node {
	t.Helper()
	node, err := mqttserver.NewNode(nil, transport, "", "den")
	if err != nil {
		t.Fatalf("node: %v", err)
	}
	return node
}

func command(t *testing.T, cmdType string, body any) sonic.CommandEnvelope {
	t.Helper()
	cmd, err := sonic.NewCommand(cmdType, body)
	if err != nil {
		t.Fatalf("command: %v", err)
	}
	cmd.ID = "c-" + cmdType
	cmd.TS = time.Now().Unix()
	cmd.From = "tester"
	return cmd
}

func TestNewModuleValidates(t *testing.T) {
	if _, err := NewModule(nil, nil, Deps{}, Config{}); err == nil {
		t.Fatalf("expected bus error")
	}
	if _, err := NewModule(nil, newNode(t, newFakeTransport()), Deps{}, Config{}); err == nil {
		t.Fatalf("expected deps error")
	}
}

func TestQueueSetFromAlbumAndPlay(t *testing.T) {
	module, _, _ := newTestModule(t)

	reply := module.dispatch(command(t, sonic.CmdQueueSet, sonic.QueueSetBody{
		SongSource: sonic.SongSource{AlbumID: "al1"},
		StartIndex: 1,
		Play:       true,
	}))
	if !reply.OK {
		t.Fatalf("expected ok, got %+v", reply.Err)
	}

	snap := module.engine.Snapshot()
	if len(snap.Items) != 3 || snap.Index != 1 || snap.Status != playback.StatusPlaying {
		t.Fatalf("unexpected engine state %+v", snap)
	}

	reply = module.dispatch(command(t, sonic.CmdQueueGet, sonic.QueueGetBody{From: 1, Count: 1}))
	var body sonic.QueueGetReply
	if err := json.Unmarshal(reply.Body, &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Length != 3 || len(body.Items) != 1 || body.Items[0].MediaID != "t2" || body.Status != "playing" {
		t.Fatalf("unexpected queue reply %+v", body)
	}
}

func TestQueueInsertSongsAndErrors(t *testing.T) {
	module, _, _ := newTestModule(t)

	reply := module.dispatch(command(t, sonic.CmdQueueInsert, sonic.QueueInsertBody{
		SongSource: sonic.SongSource{SongIDs: []string{"s1", "s2"}},
	}))
	if !reply.OK {
		t.Fatalf("expected ok, got %+v", reply.Err)
	}
	snap := module.engine.Snapshot()
	if len(snap.Items) != 2 || !snap.Items[0].Overall.Rated() || snap.Items[0].Duration != time.Minute {
		t.Fatalf("unexpected items %+v", snap.Items)
	}

	reply = module.dispatch(command(t, sonic.CmdQueueInsert, sonic.QueueInsertBody{
		SongSource: sonic.SongSource{SongIDs: []string{"missing"}},
	}))
	if reply.OK || reply.Err.Code != sonic.CodeNotFound {
		t.Fatalf("expected not found, got %+v", reply)
	}

	reply = module.dispatch(command(t, sonic.CmdQueueSeek, sonic.QueueSeekBody{Index: 9}))
	if reply.OK || reply.Err.Code != sonic.CodeOutOfRange {
		t.Fatalf("expected out of range, got %+v", reply)
	}

	reply = module.dispatch(command(t, "queue.shuffle", nil))
	if reply.OK || reply.Err.Code != sonic.CodeUnsupported {
		t.Fatalf("expected unsupported, got %+v", reply)
	}
}

func TestPlaybackCommands(t *testing.T) {
	module, _, _ := newTestModule(t)

	reply := module.dispatch(command(t, sonic.CmdPlaybackPlay, nil))
	if reply.OK || reply.Err.Code != sonic.CodeEmptyQueue {
		t.Fatalf("expected empty queue, got %+v", reply)
	}

	module.dispatch(command(t, sonic.CmdQueueSet, sonic.QueueSetBody{SongSource: sonic.SongSource{SongIDs: []string{"a", "b"}}}))
	for _, cmdType := range []string{sonic.CmdPlaybackPlay, sonic.CmdPlaybackNext, sonic.CmdPlaybackNext, sonic.CmdPlaybackPrev, sonic.CmdPlaybackPause} {
		if reply := module.dispatch(command(t, cmdType, nil)); !reply.OK {
			t.Fatalf("%s failed: %+v", cmdType, reply.Err)
		}
	}
	if snap := module.engine.Snapshot(); snap.Index != 0 || snap.Status != playback.StatusPaused {
		t.Fatalf("unexpected state %d %s", snap.Index, snap.Status)
	}
}

func TestServerUse(t *testing.T) {
	module, _, reg := newTestModule(t)

	reply := module.dispatch(command(t, sonic.CmdServerUse, sonic.ServerUseBody{ServerID: "nope"}))
	if reply.OK || reply.Err.Code != sonic.CodeNotFound {
		t.Fatalf("expected not found, got %+v", reply)
	}

	before := reg.Generation()
	reply = module.dispatch(command(t, sonic.CmdServerUse, sonic.ServerUseBody{ServerID: "work"}))
	if !reply.OK {
		t.Fatalf("expected ok, got %+v", reply.Err)
	}
	var body sonic.ServerReply
	_ = json.Unmarshal(reply.Body, &body)
	if body.ServerID != "work" || body.Generation <= before {
		t.Fatalf("unexpected server reply %+v", body)
	}
}

func TestRunPublishesStateAndReplies(t *testing.T) {
	module, transport, reg := newTestModule(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- module.Run(ctx) }()

	presence := transport.next(t, sonic.TopicPresence(sonic.BaseTopic, "den"))
	var announced sonic.Presence
	if err := json.Unmarshal(presence.payload, &announced); err != nil || !presence.retained {
		t.Fatalf("expected retained presence, got %+v (%v)", presence, err)
	}
	if announced.NodeID != "den" || announced.Name != "den" || announced.Kind != "player" {
		t.Fatalf("unexpected presence %+v", announced)
	}
	transport.next(t, sonic.TopicState(sonic.BaseTopic, "den"))

	cmdTopic := sonic.TopicCommands(sonic.BaseTopic, "den")
	var handler func(string, []byte)
	for i := 0; i < 100 && handler == nil; i++ {
		handler = transport.handler(cmdTopic)
		time.Sleep(5 * time.Millisecond)
	}
	if handler == nil {
		t.Fatalf("expected command subscription")
	}

	cmd := command(t, sonic.CmdQueueSet, sonic.QueueSetBody{SongSource: sonic.SongSource{SongIDs: []string{"a"}}})
	cmd.ReplyTo = sonic.TopicReply(sonic.BaseTopic, "tester")
	payload, _ := json.Marshal(cmd)
	handler(cmdTopic, payload)

	var reply sonic.ReplyEnvelope
	if err := json.Unmarshal(transport.next(t, cmd.ReplyTo).payload, &reply); err != nil || !reply.OK {
		t.Fatalf("unexpected reply %+v (%v)", reply, err)
	}

	var state sonic.PlayerState
	for state.Status != "ready" {
		if err := json.Unmarshal(transport.next(t, sonic.TopicState(sonic.BaseTopic, "den")).payload, &state); err != nil {
			t.Fatalf("decode state: %v", err)
		}
	}
	if state.Current == nil || state.Current.MediaID != "a" || state.ServerID != "home" {
		t.Fatalf("unexpected state %+v", state)
	}

	_ = reg.SetActive("work")
	for state.Status != "idle" {
		if err := json.Unmarshal(transport.next(t, sonic.TopicState(sonic.BaseTopic, "den")).payload, &state); err != nil {
			t.Fatalf("decode state: %v", err)
		}
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
	if withdrawn := transport.next(t, sonic.TopicPresence(sonic.BaseTopic, "den")); !withdrawn.retained || len(withdrawn.payload) != 0 {
		t.Fatalf("expected presence withdrawn on shutdown, got %+v", withdrawn)
	}
	if transport.handler(cmdTopic) != nil {
		t.Fatalf("expected command subscription dropped on shutdown")
	}
}

func TestBindingEditRebindsQueue(t *testing.T) {
	module, _, reg := newTestModule(t)
	module.dispatch(command(t, sonic.CmdQueueSet, sonic.QueueSetBody{SongSource: sonic.SongSource{SongIDs: []string{"a", "b"}}, StartIndex: 1}))
	prev := reg.Binding()

	conn, _ := reg.Get("home")
	conn.Password = "changed"
	if err := reg.Add(conn); err != nil {
		t.Fatalf("edit: %v", err)
	}
	module.onBindingChange(prev, reg.Binding())

	snap := module.engine.Snapshot()
	if len(snap.Items) != 2 || snap.Index != 1 || snap.Items[0].Stale(reg.Generation()) {
		t.Fatalf("expected rebound queue, got %+v", snap)
	}
}
