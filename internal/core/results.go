package core

import (
	"time"

	"github.com/mikey-austin/sonic_utopia/internal/servers"
	"github.com/mikey-austin/sonic_utopia/internal/subsonic"
	"github.com/mikey-austin/sonic_utopia/pkg/sonic"
)

// ServerRow is a configured server and whether it is active.
type ServerRow struct {
	servers.Connection
	Active bool `json:"active"`
}

// ServersResult lists configured servers.
type ServersResult struct {
	Servers []ServerRow
}

// ServerUseResult reports a server switch or ping.
type ServerUseResult struct {
	Server     servers.Connection
	Generation uint64
	Latency    time.Duration
}

// AlbumsResult holds an album listing. Complete is false when more pages
// remain on the server.
type AlbumsResult struct {
	Albums   []subsonic.Album
	Complete bool
}

// ArtistsResult holds an artist listing.
type ArtistsResult struct {
	Artists  []subsonic.Artist
	Complete bool
}

// PlaylistsResult holds playlist summaries.
type PlaylistsResult struct {
	Playlists []subsonic.Playlist
	Complete  bool
}

// SongsResult holds songs of an album, playlist or search. CurrentID is the
// song a player is on, when a player was consulted.
type SongsResult struct {
	Title     string
	Songs     []sonic.QueueItem
	Complete  bool
	CurrentID string `json:",omitempty"`
	Playing   bool   `json:",omitempty"`
}

// ArtistResult holds an artist with its albums.
type ArtistResult struct {
	Artist     subsonic.Artist
	ArtworkURL string
}

// SearchResult holds search3 matches of every kind.
type SearchResult struct {
	Query   string
	Artists []subsonic.Artist
	Albums  []subsonic.Album
	Songs   []sonic.QueueItem
}

// SongResult holds one song with its resolved URLs.
type SongResult struct {
	Song        sonic.QueueItem
	StreamURL   string
	DownloadURL string
	ArtworkURL  string
}

// NodesResult holds a list of presence records.
type NodesResult struct {
	Nodes []sonic.Presence
}

// StatusResult holds player presence and state.
type StatusResult struct {
	Player sonic.Presence
	State  sonic.PlayerState
}

// QueueResult holds a queue listing.
type QueueResult struct {
	PlayerID string
	Queue    sonic.QueueGetReply
}

// PlayerServerResult reports the server a player switched to.
type PlayerServerResult struct {
	PlayerID string
	Server   sonic.ServerReply
}
