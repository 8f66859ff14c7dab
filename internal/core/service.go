package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/mikey-austin/sonic_utopia/internal/catalog"
	"github.com/mikey-austin/sonic_utopia/internal/library"
	"github.com/mikey-austin/sonic_utopia/internal/playable"
	"github.com/mikey-austin/sonic_utopia/internal/ports"
	"github.com/mikey-austin/sonic_utopia/internal/rating"
	"github.com/mikey-austin/sonic_utopia/internal/resource"
	"github.com/mikey-austin/sonic_utopia/internal/servers"
	"github.com/mikey-austin/sonic_utopia/internal/subsonic"
	"github.com/mikey-austin/sonic_utopia/pkg/sonic"
)

// Service orchestrates sonic CLI use cases. Catalog commands talk to the
// active server directly; player commands go through the broker.
type Service struct {
	Broker   ports.Broker
	Resolver Resolver
	Clock    ports.Clock
	IDGen    ports.IDGen
	State    ports.StateStore
	Config   Config
	Registry *servers.Registry
	Provider *subsonic.Provider
}

// BindServers builds a registry from the configured servers and activates
// the stored choice, falling back to the configured default.
func BindServers(cfg Config, state ports.StateStore) (*servers.Registry, error) {
	registry, err := servers.NewRegistry(cfg.Servers...)
	if err != nil {
		return nil, WrapError(ExitUsage, "load servers", err)
	}
	if len(cfg.Servers) == 0 {
		return registry, nil
	}

	if state != nil {
		id, ok, err := state.ActiveServer()
		if err != nil {
			return nil, WrapError(ExitRuntime, "read state", err)
		}
		if ok {
			if err := registry.SetActive(id); err == nil {
				return registry, nil
			}
		}
	}

	conn, err := Resolver{Config: cfg}.ResolveServer("")
	if err != nil {
		// Several servers and no default: nothing active until one is chosen.
		return registry, nil
	}
	if err := registry.SetActive(conn.ID); err != nil {
		return nil, ClassifyError("activate server", err)
	}
	return registry, nil
}

// Servers lists configured servers.
func (s Service) Servers() ServersResult {
	active := s.Registry.Binding()
	rows := make([]ServerRow, 0)
	for _, conn := range s.Registry.List() {
		rows = append(rows, ServerRow{Connection: conn, Active: active.Connection.ID == conn.ID})
	}
	return ServersResult{Servers: rows}
}

// UseServer makes a server active, checks it answers and remembers the
// choice.
func (s Service) UseServer(ctx context.Context, selector string) (ServerUseResult, error) {
	conn, err := s.Resolver.ResolveServer(selector)
	if err != nil {
		return ServerUseResult{}, err
	}
	if err := s.Registry.SetActive(conn.ID); err != nil {
		return ServerUseResult{}, ClassifyError("use server", err)
	}
	result, err := s.Ping(ctx)
	if err != nil {
		return ServerUseResult{}, err
	}
	if err := s.State.SetActiveServer(conn.ID); err != nil {
		return ServerUseResult{}, WrapError(ExitRuntime, "save state", err)
	}
	return result, nil
}

// Ping checks the active server answers.
func (s Service) Ping(ctx context.Context) (ServerUseResult, error) {
	api, err := s.Provider.API()
	if err != nil {
		return ServerUseResult{}, ClassifyError("ping", err)
	}
	start := s.Clock.Now()
	if err := api.Ping(ctx); err != nil {
		return ServerUseResult{}, ClassifyError("ping", err)
	}
	return ServerUseResult{
		Server:     api.Connection(),
		Generation: api.Generation(),
		Latency:    s.Clock.Now().Sub(start),
	}, nil
}

// Albums lists albums of listType, up to limit (0 loads every page).
func (s Service) Albums(ctx context.Context, listType string, limit int) (AlbumsResult, error) {
	albums, complete, err := loadPages(ctx, s.Registry, library.AlbumKey, library.Albums(s.Provider, listType, s.pageSize()), limit)
	if err != nil {
		return AlbumsResult{}, ClassifyError("list albums", err)
	}
	return AlbumsResult{Albums: albums, Complete: complete}, nil
}

// Artists lists artists, up to limit.
func (s Service) Artists(ctx context.Context, limit int) (ArtistsResult, error) {
	artists, complete, err := loadPages(ctx, s.Registry, library.ArtistKey, library.Artists(s.Provider, s.pageSize()), limit)
	if err != nil {
		return ArtistsResult{}, ClassifyError("list artists", err)
	}
	return ArtistsResult{Artists: artists, Complete: complete}, nil
}

// Playlists lists playlists, up to limit.
func (s Service) Playlists(ctx context.Context, limit int) (PlaylistsResult, error) {
	playlists, complete, err := loadPages(ctx, s.Registry, library.PlaylistKey, library.Playlists(s.Provider, s.pageSize()), limit)
	if err != nil {
		return PlaylistsResult{}, ClassifyError("list playlists", err)
	}
	return PlaylistsResult{Playlists: playlists, Complete: complete}, nil
}

// Search runs search3 for artists, albums and songs, up to limit of each.
func (s Service) Search(ctx context.Context, query string, limit int) (SearchResult, error) {
	if limit <= 0 {
		limit = s.pageSize()
	}
	artists, _, err := loadPages(ctx, s.Registry, library.ArtistKey, library.SearchArtists(s.Provider, query, limit), limit)
	if err != nil {
		return SearchResult{}, ClassifyError("search artists", err)
	}
	albums, _, err := loadPages(ctx, s.Registry, library.AlbumKey, library.SearchAlbums(s.Provider, query, limit), limit)
	if err != nil {
		return SearchResult{}, ClassifyError("search albums", err)
	}
	songs, _, err := loadPages(ctx, s.Registry, library.SongKey, library.SearchSongs(s.Provider, query, limit), limit)
	if err != nil {
		return SearchResult{}, ClassifyError("search songs", err)
	}
	rows, err := s.songRows(songs)
	if err != nil {
		return SearchResult{}, err
	}
	return SearchResult{Query: query, Artists: artists, Albums: albums, Songs: rows}, nil
}

// Album lists the songs of an album.
func (s Service) Album(ctx context.Context, albumID string) (SongsResult, error) {
	songs, err := library.AlbumSongs(ctx, s.Provider, albumID)
	if err != nil {
		return SongsResult{}, ClassifyError("get album", err)
	}
	rows, err := s.songRows(songs)
	if err != nil {
		return SongsResult{}, err
	}
	return SongsResult{Title: albumID, Songs: rows, Complete: true}, nil
}

// Artist returns an artist, its albums and its artwork URL.
func (s Service) Artist(ctx context.Context, artistID string) (ArtistResult, error) {
	api, err := s.Provider.API()
	if err != nil {
		return ArtistResult{}, ClassifyError("get artist", err)
	}
	artist, err := api.Artist(ctx, artistID)
	if err != nil {
		return ArtistResult{}, ClassifyError("get artist", err)
	}
	artwork, err := resource.NewResolver(s.Provider).CoverArtURL(artist.CoverArt)
	if err != nil {
		return ArtistResult{}, ClassifyError("resolve artwork", err)
	}
	return ArtistResult{Artist: artist, ArtworkURL: artwork}, nil
}

// Playlist lists the songs of a playlist. Rows matching the current item of
// player are marked; with no selector the default player is consulted if
// one is configured, and any failure to reach it is ignored.
func (s Service) Playlist(ctx context.Context, playlistID string, player string) (SongsResult, error) {
	songs, err := library.PlaylistSongs(ctx, s.Provider, playlistID)
	if err != nil {
		return SongsResult{}, ClassifyError("get playlist", err)
	}
	rows, err := s.songRows(songs)
	if err != nil {
		return SongsResult{}, err
	}
	result := SongsResult{Title: playlistID, Songs: rows, Complete: true}

	if player == "" && s.Config.Defaults.Player == "" {
		return result, nil
	}
	status, err := s.Status(ctx, player)
	if err != nil {
		if player == "" {
			return result, nil
		}
		return SongsResult{}, err
	}
	if current := status.State.Current; current != nil {
		result.CurrentID = current.MediaID
		result.Playing = status.State.Status == "playing"
	}
	return result, nil
}

// Song returns one song with its stream, download and artwork URLs.
func (s Service) Song(ctx context.Context, songID string) (SongResult, error) {
	api, err := s.Provider.API()
	if err != nil {
		return SongResult{}, ClassifyError("get song", err)
	}
	song, err := api.Song(ctx, songID)
	if err != nil {
		return SongResult{}, ClassifyError("get song", err)
	}
	item, err := s.factory().Item(song)
	if err != nil {
		return SongResult{}, ClassifyError("resolve song", err)
	}
	return SongResult{
		Song:        songRow(item),
		StreamURL:   item.StreamURI,
		DownloadURL: item.DownloadURI,
		ArtworkURL:  item.ArtworkURI,
	}, nil
}

// Rate sets a song's star rating. Zero clears it.
func (s Service) Rate(ctx context.Context, songID string, stars float64) error {
	if stars < 0 || stars > rating.MaxStars {
		return &CLIError{Code: ExitUsage, Msg: fmt.Sprintf("rating must be 0-%d", rating.MaxStars)}
	}
	api, err := s.Provider.API()
	if err != nil {
		return ClassifyError("rate", err)
	}
	if err := api.SetRating(ctx, songID, rating.ToServer(rating.NewStars(stars))); err != nil {
		return ClassifyError("rate", err)
	}
	return nil
}

// SetLiked stars or unstars a song.
func (s Service) SetLiked(ctx context.Context, songID string, liked bool) error {
	api, err := s.Provider.API()
	if err != nil {
		return ClassifyError("star", err)
	}
	if rating.ToStarred(rating.Heart{Liked: liked}) {
		err = api.Star(ctx, songID)
	} else {
		err = api.Unstar(ctx, songID)
	}
	if err != nil {
		return ClassifyError("star", err)
	}
	return nil
}

// ListPlayers returns player presence entries.
func (s Service) ListPlayers(ctx context.Context) (NodesResult, error) {
	nodes, err := s.Broker.ListPresence(ctx)
	if err != nil {
		return NodesResult{}, ClassifyError("list nodes", err)
	}
	return NodesResult{Nodes: filterPresenceByKind(nodes, "player")}, nil
}

// Status returns player state.
func (s Service) Status(ctx context.Context, selector string) (StatusResult, error) {
	player, err := s.Resolver.ResolvePlayer(ctx, selector)
	if err != nil {
		return StatusResult{}, err
	}
	state, err := s.Broker.GetPlayerState(ctx, player.NodeID)
	if err != nil {
		return StatusResult{}, ClassifyError("get player state", err)
	}
	return StatusResult{Player: player, State: state}, nil
}

// WatchStatus streams state and session events for a player.
func (s Service) WatchStatus(ctx context.Context, selector string) (<-chan sonic.PlayerState, <-chan sonic.SessionEvent, <-chan error, error) {
	player, err := s.Resolver.ResolvePlayer(ctx, selector)
	if err != nil {
		return nil, nil, nil, err
	}
	states, events, errs := s.Broker.WatchPlayer(ctx, player.NodeID)
	return states, events, errs, nil
}

// QueueList returns count queue entries starting at from (0 means all).
func (s Service) QueueList(ctx context.Context, selector string, from, count int) (QueueResult, error) {
	player, err := s.Resolver.ResolvePlayer(ctx, selector)
	if err != nil {
		return QueueResult{}, err
	}
	var body sonic.QueueGetReply
	if err := s.call(ctx, player.NodeID, sonic.CmdQueueGet, sonic.QueueGetBody{From: from, Count: count}, &body); err != nil {
		return QueueResult{}, err
	}
	return QueueResult{PlayerID: player.NodeID, Queue: body}, nil
}

// QueueSet replaces a player's queue with the songs of source.
func (s Service) QueueSet(ctx context.Context, selector string, source sonic.SongSource, start int, play bool) error {
	if err := validateSource(source); err != nil {
		return err
	}
	return s.simplePlayer(ctx, selector, sonic.CmdQueueSet, sonic.QueueSetBody{SongSource: source, StartIndex: start, Play: play})
}

// QueueAdd inserts the songs of source before at, or appends when at is nil.
func (s Service) QueueAdd(ctx context.Context, selector string, source sonic.SongSource, at *int) error {
	if err := validateSource(source); err != nil {
		return err
	}
	return s.simplePlayer(ctx, selector, sonic.CmdQueueInsert, sonic.QueueInsertBody{SongSource: source, At: at})
}

// QueueRemove removes the entry at index.
func (s Service) QueueRemove(ctx context.Context, selector string, index int) error {
	return s.simplePlayer(ctx, selector, sonic.CmdQueueRemove, sonic.QueueRemoveBody{Index: index})
}

// QueueMove moves an entry.
func (s Service) QueueMove(ctx context.Context, selector string, from, to int) error {
	return s.simplePlayer(ctx, selector, sonic.CmdQueueMove, sonic.QueueMoveBody{From: from, To: to})
}

// QueueJump makes index the current entry.
func (s Service) QueueJump(ctx context.Context, selector string, index int) error {
	return s.simplePlayer(ctx, selector, sonic.CmdQueueSeek, sonic.QueueSeekBody{Index: index})
}

// PlaybackPlay sends playback.play.
func (s Service) PlaybackPlay(ctx context.Context, selector string) error {
	return s.simplePlayer(ctx, selector, sonic.CmdPlaybackPlay, nil)
}

// PlaybackPause sends playback.pause.
func (s Service) PlaybackPause(ctx context.Context, selector string) error {
	return s.simplePlayer(ctx, selector, sonic.CmdPlaybackPause, nil)
}

// PlaybackNext sends playback.next.
func (s Service) PlaybackNext(ctx context.Context, selector string) error {
	return s.simplePlayer(ctx, selector, sonic.CmdPlaybackNext, nil)
}

// PlaybackPrev sends playback.prev.
func (s Service) PlaybackPrev(ctx context.Context, selector string) error {
	return s.simplePlayer(ctx, selector, sonic.CmdPlaybackPrev, nil)
}

// PlaybackToggle toggles playback based on current state.
func (s Service) PlaybackToggle(ctx context.Context, selector string) error {
	status, err := s.Status(ctx, selector)
	if err != nil {
		return err
	}
	cmdType := sonic.CmdPlaybackPlay
	if status.State.Status == "playing" {
		cmdType = sonic.CmdPlaybackPause
	}
	return s.call(ctx, status.Player.NodeID, cmdType, nil, nil)
}

// PlayerUseServer switches a player to one of the configured servers. The
// player must know the server under the same id.
func (s Service) PlayerUseServer(ctx context.Context, selector string, serverSelector string) (PlayerServerResult, error) {
	conn, err := s.Resolver.ResolveServer(serverSelector)
	if err != nil {
		return PlayerServerResult{}, err
	}
	player, err := s.Resolver.ResolvePlayer(ctx, selector)
	if err != nil {
		return PlayerServerResult{}, err
	}
	var body sonic.ServerReply
	if err := s.call(ctx, player.NodeID, sonic.CmdServerUse, sonic.ServerUseBody{ServerID: conn.ID}, &body); err != nil {
		return PlayerServerResult{}, err
	}
	return PlayerServerResult{PlayerID: player.NodeID, Server: body}, nil
}

func (s Service) simplePlayer(ctx context.Context, selector string, cmdType string, body any) error {
	player, err := s.Resolver.ResolvePlayer(ctx, selector)
	if err != nil {
		return err
	}
	return s.call(ctx, player.NodeID, cmdType, body, nil)
}

// call sends a command stamped with a fresh id, the time and this
// controller's identity, and decodes the reply into out.
func (s Service) call(ctx context.Context, nodeID string, cmdType string, body any, out any) error {
	cmd, err := sonic.NewCommand(cmdType, body)
	if err != nil {
		return WrapError(ExitRuntime, "build command", err)
	}
	cmd.ID = s.IDGen.NewID()
	cmd.TS = s.Clock.NowUnix()
	cmd.From = s.Config.Identity
	if err := s.Broker.Call(ctx, nodeID, cmd, out); err != nil {
		var replyErr *sonic.ReplyError
		if errors.As(err, &replyErr) {
			return ErrorForReplyCode(replyErr.Code, replyErr.Message)
		}
		return ClassifyError(cmdType, err)
	}
	return nil
}

func (s Service) factory() *playable.Factory {
	return playable.NewFactory(resource.NewResolver(s.Provider))
}

func (s Service) songRows(songs []subsonic.Song) ([]sonic.QueueItem, error) {
	items, err := s.factory().Items(songs)
	if err != nil {
		return nil, ClassifyError("resolve songs", err)
	}
	rows := make([]sonic.QueueItem, 0, len(items))
	for _, item := range items {
		rows = append(rows, songRow(item))
	}
	return rows, nil
}

func (s Service) pageSize() int {
	if s.Config.PageSize > 0 {
		return s.Config.PageSize
	}
	return library.DefaultPageSize
}

func songRow(item playable.Item) sonic.QueueItem {
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

func validateSource(source sonic.SongSource) error {
	set := 0
	if len(source.SongIDs) > 0 {
		set++
	}
	if source.AlbumID != "" {
		set++
	}
	if source.PlaylistID != "" {
		set++
	}
	if set != 1 {
		return &CLIError{Code: ExitUsage, Msg: "exactly one of songs, --album or --playlist required"}
	}
	return nil
}

// errBindingChanged is returned when the active server changes while pages
// are still loading.
var errBindingChanged = errors.New("server changed while loading")

// loadPages drives a catalog loader until limit items are loaded (0 means
// every page) or the server reports no more. A failed follow-up page stops
// loading and reports an incomplete result.
func loadPages[T any](ctx context.Context, gen catalog.Generation, key func(T) string, fetch catalog.FetchFunc[T], limit int) ([]T, bool, error) {
	loader, err := catalog.NewLoader(nil, gen, key, fetch)
	if err != nil {
		return nil, false, err
	}
	if err := loader.InitialLoad(ctx); err != nil {
		return nil, false, err
	}
	loader.Wait()

	state := loader.State()
	if state.Phase == catalog.PhaseError {
		return nil, false, state.Err
	}
	for !state.Next.Exhausted() && (limit <= 0 || len(state.Items) < limit) {
		count, offset := len(state.Items), state.Next.Offset()
		if err := loader.LoadMore(ctx); err != nil {
			return nil, false, err
		}
		loader.Wait()
		state = loader.State()
		if state.Phase == catalog.PhaseIdle {
			return nil, false, errBindingChanged
		}
		if len(state.Items) == count && state.Next.Offset() == offset && !state.Next.Exhausted() {
			break
		}
	}

	items := state.Items
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, state.Next.Exhausted(), nil
}
