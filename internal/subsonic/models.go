package subsonic

import "time"

// Song is a track record as returned by the server. Fields not listed here are
// ignored.
type Song struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Artist   string `json:"artist"`
	Album    string `json:"album,omitempty"`
	AlbumID  string `json:"albumId"`
	Duration int    `json:"duration"` // seconds
	CoverArt string `json:"coverArt,omitempty"`
	// UserRating is 1-5 when rated. The server omits the field when unrated,
	// so absent and zero are the same thing.
	UserRating int        `json:"userRating,omitempty"`
	Starred    *time.Time `json:"starred,omitempty"`
}

// Album is an ID3 album record.
type Album struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Artist    string     `json:"artist"`
	ArtistID  string     `json:"artistId"`
	CoverArt  string     `json:"coverArt,omitempty"`
	SongCount int        `json:"songCount"`
	Duration  int        `json:"duration"`
	Year      int        `json:"year,omitempty"`
	Starred   *time.Time `json:"starred,omitempty"`
	Songs     []Song     `json:"song,omitempty"`
}

// Artist is an ID3 artist record. Albums is only filled by getArtist.
type Artist struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	CoverArt   string     `json:"coverArt,omitempty"`
	AlbumCount int        `json:"albumCount"`
	Starred    *time.Time `json:"starred,omitempty"`
	Albums     []Album    `json:"album,omitempty"`
}

// Playlist is a playlist summary, with entries when fetched individually.
type Playlist struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Owner     string `json:"owner,omitempty"`
	Public    bool   `json:"public"`
	SongCount int    `json:"songCount"`
	Duration  int    `json:"duration"`
	CoverArt  string `json:"coverArt,omitempty"`
	Entries   []Song `json:"entry,omitempty"`
}

// SearchResult3 holds the three result kinds of search3.
type SearchResult3 struct {
	Artists []Artist `json:"artist,omitempty"`
	Albums  []Album  `json:"album,omitempty"`
	Songs   []Song   `json:"song,omitempty"`
}

// SearchOptions selects how many of each kind search3 returns.
type SearchOptions struct {
	ArtistCount  int
	ArtistOffset int
	AlbumCount   int
	AlbumOffset  int
	SongCount    int
	SongOffset   int
}

type envelope struct {
	Response response `json:"subsonic-response"`
}

type response struct {
	Status        string         `json:"status"`
	Version       string         `json:"version"`
	Error         *APIError      `json:"error,omitempty"`
	AlbumList2    *albumList     `json:"albumList2,omitempty"`
	SearchResult3 *SearchResult3 `json:"searchResult3,omitempty"`
	Playlists     *playlistList  `json:"playlists,omitempty"`
	Playlist      *Playlist      `json:"playlist,omitempty"`
	Album         *Album         `json:"album,omitempty"`
	Artist        *Artist        `json:"artist,omitempty"`
	Song          *Song          `json:"song,omitempty"`
}

type albumList struct {
	Albums []Album `json:"album"`
}

type playlistList struct {
	Playlists []Playlist `json:"playlist"`
}
