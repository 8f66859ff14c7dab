package player

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mikey-austin/sonic_utopia/internal/library"
	"github.com/mikey-austin/sonic_utopia/internal/playable"
	"github.com/mikey-austin/sonic_utopia/internal/playback"
	"github.com/mikey-austin/sonic_utopia/internal/resource"
	"github.com/mikey-austin/sonic_utopia/internal/servers"
	"github.com/mikey-austin/sonic_utopia/internal/subsonic"
	"github.com/mikey-austin/sonic_utopia/pkg/sonic"
)

// Bus is the node's endpoint on MQTT. mqttserver.Node implements it.
type Bus interface {
	ID() string
	Announce(name string) error
	Withdraw() error
	PublishState(state sonic.PlayerState) error
	Serve(handler func(sonic.CommandEnvelope) sonic.ReplyEnvelope) (func(), error)
}

// Config configures the player node.
type Config struct {
	Name    string
	Timeout time.Duration
}

// Deps are the domain components the module drives.
type Deps struct {
	Registry *servers.Registry
	Provider *subsonic.Provider
	Engine   *playback.Engine
}

// Module exposes a playback engine as an MQTT player node.
type Module struct {
	log      *zap.Logger
	bus      Bus
	registry *servers.Registry
	provider *subsonic.Provider
	factory  *playable.Factory
	engine   *playback.Engine
	config   Config
	now      func() time.Time
}

// NewModule creates a player module.
func NewModule(log *zap.Logger, bus Bus, deps Deps, cfg Config) (*Module, error) {
	if bus == nil {
		return nil, errors.New("bus required")
	}
	if deps.Registry == nil || deps.Provider == nil || deps.Engine == nil {
		return nil, errors.New("registry, provider and engine required")
	}
	if strings.TrimSpace(cfg.Name) == "" {
		cfg.Name = bus.ID()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Module{
		log:      log,
		bus:      bus,
		registry: deps.Registry,
		provider: deps.Provider,
		factory:  playable.NewFactory(resource.NewResolver(deps.Provider)),
		engine:   deps.Engine,
		config:   cfg,
		now:      time.Now,
	}, nil
}

// Run serves commands and publishes state until ctx is done, then withdraws
// the node's presence.
func (m *Module) Run(ctx context.Context) error {
	if err := m.bus.Announce(m.config.Name); err != nil {
		return err
	}
	defer func() {
		if err := m.bus.Withdraw(); err != nil {
			m.log.Warn("withdraw presence", zap.Error(err))
		}
	}()

	states, cancelStates := m.engine.Watch().Subscribe()
	defer cancelStates()
	bindings, cancelBindings := m.registry.Watch().Subscribe()
	defer cancelBindings()

	stop, err := m.bus.Serve(m.dispatch)
	if err != nil {
		return err
	}
	defer stop()

	bound := m.registry.Binding()
	for {
		select {
		case <-ctx.Done():
			return nil
		case snap := <-states:
			m.publishState(snap)
		case binding := <-bindings:
			if binding.Generation == bound.Generation {
				continue
			}
			m.onBindingChange(bound, binding)
			bound = binding
		}
	}
}

// onBindingChange keeps the queue usable across binding changes. An edit of
// the same server re-resolves item URIs; a different server has different
// song ids, so the queue is dropped.
func (m *Module) onBindingChange(prev, next servers.Binding) {
	snap := m.engine.Snapshot()
	if len(snap.Items) == 0 {
		return
	}
	if !next.Active() || prev.Connection.ID != next.Connection.ID {
		m.log.Info("server changed, clearing queue", zap.String("server", next.Connection.ID))
		if err := m.engine.SetQueue(nil, 0); err != nil {
			m.log.Warn("clear queue", zap.Error(err))
		}
		return
	}

	items, err := m.factory.Rebind(snap.Items)
	if err != nil {
		m.log.Warn("rebind queue", zap.Error(err))
		return
	}
	if err := m.engine.SetQueue(items, max(snap.Index, 0)); err != nil {
		m.log.Warn("reload queue", zap.Error(err))
		return
	}
	if snap.Status == playback.StatusPlaying {
		_ = m.engine.Play()
	}
}

func (m *Module) publishState(snap playback.Snapshot) {
	binding := m.registry.Binding()
	state := sonic.PlayerState{
		Status:       snap.Status.String(),
		Index:        snap.Index,
		Length:       len(snap.Items),
		Revision:     snap.Revision,
		FailedItemID: snap.FailedItemID,
		ServerID:     binding.Connection.ID,
		Generation:   binding.Generation,
		TS:           m.now().Unix(),
	}
	if current, ok := snap.Current(); ok {
		item := queueItem(current)
		state.Current = &item
	}
	if snap.FailErr != nil {
		state.Error = snap.FailErr.Error()
	}
	if err := m.bus.PublishState(state); err != nil {
		m.log.Warn("publish state", zap.Error(err))
	}
}

func (m *Module) dispatch(cmd sonic.CommandEnvelope) sonic.ReplyEnvelope {
	reply := sonic.ReplyEnvelope{
		ID:   cmd.ID,
		Type: "ack",
		OK:   true,
		TS:   m.now().Unix(),
	}
	m.log.Debug("command", zap.String("type", cmd.Type), zap.String("from", cmd.From))

	switch cmd.Type {
	case sonic.CmdQueueGet:
		return m.queueGet(cmd, reply)
	case sonic.CmdQueueSet:
		return m.queueSet(cmd, reply)
	case sonic.CmdQueueInsert:
		return m.queueInsert(cmd, reply)
	case sonic.CmdQueueRemove:
		var body sonic.QueueRemoveBody
		return m.withBody(cmd, reply, &body, func() error { return m.engine.Remove(body.Index) })
	case sonic.CmdQueueMove:
		var body sonic.QueueMoveBody
		return m.withBody(cmd, reply, &body, func() error { return m.engine.Move(body.From, body.To) })
	case sonic.CmdQueueSeek:
		var body sonic.QueueSeekBody
		return m.withBody(cmd, reply, &body, func() error { return m.engine.SeekTo(body.Index) })
	case sonic.CmdPlaybackPlay:
		return m.result(cmd, reply, m.engine.Play())
	case sonic.CmdPlaybackPause:
		return m.result(cmd, reply, m.engine.Pause())
	case sonic.CmdPlaybackNext:
		return m.result(cmd, reply, m.engine.Next())
	case sonic.CmdPlaybackPrev:
		return m.result(cmd, reply, m.engine.Previous())
	case sonic.CmdServerUse:
		return m.serverUse(cmd, reply)
	default:
		return errorReply(cmd, sonic.CodeUnsupported, "unsupported command")
	}
}

func (m *Module) queueGet(cmd sonic.CommandEnvelope, reply sonic.ReplyEnvelope) sonic.ReplyEnvelope {
	var body sonic.QueueGetBody
	if len(cmd.Body) > 0 {
		if err := json.Unmarshal(cmd.Body, &body); err != nil {
			return errorReply(cmd, sonic.CodeInvalid, "invalid body")
		}
	}
	snap := m.engine.Snapshot()
	start := min(max(body.From, 0), len(snap.Items))
	end := len(snap.Items)
	if body.Count > 0 {
		end = min(start+body.Count, end)
	}
	items := make([]sonic.QueueItem, 0, end-start)
	for _, item := range snap.Items[start:end] {
		items = append(items, queueItem(item))
	}
	return withPayload(reply, sonic.QueueGetReply{
		Revision:     snap.Revision,
		Index:        snap.Index,
		Status:       snap.Status.String(),
		FailedItemID: snap.FailedItemID,
		Length:       len(snap.Items),
		Items:        items,
	})
}

func (m *Module) queueSet(cmd sonic.CommandEnvelope, reply sonic.ReplyEnvelope) sonic.ReplyEnvelope {
	var body sonic.QueueSetBody
	if err := json.Unmarshal(cmd.Body, &body); err != nil {
		return errorReply(cmd, sonic.CodeInvalid, "invalid body")
	}
	items, err := m.resolve(body.SongSource)
	if err != nil {
		return m.result(cmd, reply, err)
	}
	if err := m.engine.SetQueue(items, body.StartIndex); err != nil {
		return m.result(cmd, reply, err)
	}
	if body.Play && len(items) > 0 {
		return m.result(cmd, reply, m.engine.Play())
	}
	return reply
}

func (m *Module) queueInsert(cmd sonic.CommandEnvelope, reply sonic.ReplyEnvelope) sonic.ReplyEnvelope {
	var body sonic.QueueInsertBody
	if err := json.Unmarshal(cmd.Body, &body); err != nil {
		return errorReply(cmd, sonic.CodeInvalid, "invalid body")
	}
	items, err := m.resolve(body.SongSource)
	if err != nil {
		return m.result(cmd, reply, err)
	}
	at := len(m.engine.Snapshot().Items)
	if body.At != nil {
		at = *body.At
	}
	return m.result(cmd, reply, m.engine.Insert(items, at))
}

func (m *Module) serverUse(cmd sonic.CommandEnvelope, reply sonic.ReplyEnvelope) sonic.ReplyEnvelope {
	var body sonic.ServerUseBody
	if err := json.Unmarshal(cmd.Body, &body); err != nil || strings.TrimSpace(body.ServerID) == "" {
		return errorReply(cmd, sonic.CodeInvalid, "serverId required")
	}
	if err := m.registry.SetActive(body.ServerID); err != nil {
		return m.result(cmd, reply, err)
	}
	binding := m.registry.Binding()
	return withPayload(reply, sonic.ServerReply{
		ServerID:   binding.Connection.ID,
		Name:       binding.Connection.Name,
		Generation: binding.Generation,
	})
}

// resolve fetches the songs named by src from the active server and builds
// playable items under a single binding.
func (m *Module) resolve(src sonic.SongSource) ([]playable.Item, error) {
	ctx, cancel := context.WithTimeout(context.Background(), m.config.Timeout)
	defer cancel()

	var songs []subsonic.Song
	var err error
	switch {
	case src.AlbumID != "":
		songs, err = library.AlbumSongs(ctx, m.provider, src.AlbumID)
	case src.PlaylistID != "":
		songs, err = library.PlaylistSongs(ctx, m.provider, src.PlaylistID)
	default:
		songs, err = m.songs(ctx, src.SongIDs)
	}
	if err != nil {
		return nil, err
	}
	return m.factory.Items(songs)
}

func (m *Module) songs(ctx context.Context, ids []string) ([]subsonic.Song, error) {
	api, err := m.provider.API()
	if err != nil {
		return nil, err
	}
	songs := make([]subsonic.Song, 0, len(ids))
	for _, id := range ids {
		song, err := api.Song(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("song %s: %w", id, err)
		}
		songs = append(songs, song)
	}
	return songs, nil
}

func (m *Module) withBody(cmd sonic.CommandEnvelope, reply sonic.ReplyEnvelope, body any, apply func() error) sonic.ReplyEnvelope {
	if err := json.Unmarshal(cmd.Body, body); err != nil {
		return errorReply(cmd, sonic.CodeInvalid, "invalid body")
	}
	return m.result(cmd, reply, apply())
}

func (m *Module) result(cmd sonic.CommandEnvelope, reply sonic.ReplyEnvelope, err error) sonic.ReplyEnvelope {
	if err == nil {
		return reply
	}
	m.log.Debug("command failed", zap.String("type", cmd.Type), zap.Error(err))
	return errorReply(cmd, errorCode(err), err.Error())
}

func errorCode(err error) string {
	var apiErr *subsonic.APIError
	switch {
	case errors.Is(err, servers.ErrNoActiveServer):
		return sonic.CodeNoServer
	case errors.Is(err, servers.ErrUnknownServer):
		return sonic.CodeNotFound
	case errors.Is(err, playback.ErrIndexOutOfRange):
		return sonic.CodeOutOfRange
	case errors.Is(err, playback.ErrEmptyQueue):
		return sonic.CodeEmptyQueue
	case errors.Is(err, playback.ErrPlaybackFailed):
		return sonic.CodePlayback
	case errors.As(err, &apiErr):
		if apiErr.Code == subsonic.ErrCodeNotFound {
			return sonic.CodeNotFound
		}
		return sonic.CodeUpstream
	default:
		return sonic.CodeUpstream
	}
}

func queueItem(item playable.Item) sonic.QueueItem {
	return sonic.QueueItem{
		MediaID:    item.MediaID,
		Title:      item.Title,
		Artist:     item.Artist,
		AlbumID:    item.AlbumID,
		DurationMS: item.Duration.Milliseconds(),
		Rating:     item.Overall.Value(),
		Rated:      item.Overall.Rated(),
		Liked:      item.Liked.Liked,
	}
}

func withPayload(reply sonic.ReplyEnvelope, body any) sonic.ReplyEnvelope {
	payload, _ := json.Marshal(body)
	reply.Body = payload
	return reply
}

func errorReply(cmd sonic.CommandEnvelope, code string, message string) sonic.ReplyEnvelope {
	return sonic.NewErrorReply(cmd.ID, code, message, time.Now().Unix())
}
