// Package subsonic is a minimal client for the Subsonic REST API, bound to a
// single server connection and binding generation.
package subsonic

import (
	"context"
	"crypto/md5"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"time"

	"github.com/mikey-austin/sonic_utopia/internal/servers"
)

const (
	// DefaultClientName is sent as the c parameter.
	DefaultClientName = "sonic"
	// DefaultAPIVersion is sent as the v parameter.
	DefaultAPIVersion = "1.16.1"
)

// Error codes defined by the Subsonic API.
const (
	ErrCodeGeneric       = 0
	ErrCodeMissingParam  = 10
	ErrCodeWrongAuth     = 40
	ErrCodeNotAuthorized = 50
	ErrCodeNotFound      = 70
)

// APIError is an error reported inside a subsonic-response envelope.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("subsonic error %d: %s", e.Code, e.Message)
}

// Options configures clients created by a Provider.
type Options struct {
	HTTP       *http.Client
	ClientName string
	APIVersion string
	Timeout    time.Duration
}

func (o Options) withDefaults() Options {
	if o.ClientName == "" {
		o.ClientName = DefaultClientName
	}
	if o.APIVersion == "" {
		o.APIVersion = DefaultAPIVersion
	}
	if o.Timeout == 0 {
		o.Timeout = 10 * time.Second
	}
	if o.HTTP == nil {
		o.HTTP = &http.Client{Timeout: o.Timeout}
	}
	return o
}

// Client is bound to one connection at one generation. Its auth salt is fixed
// for its lifetime, so every URL it builds for the same input is identical.
type Client struct {
	conn       servers.Connection
	generation uint64
	http       *http.Client
	clientName string
	apiVersion string
	salt       string
	token      string
}

// NewClient binds a client to conn.
func NewClient(conn servers.Connection, generation uint64, opts Options) *Client {
	opts = opts.withDefaults()
	salt := newSalt()
	return &Client{
		conn:       conn,
		generation: generation,
		http:       opts.HTTP,
		clientName: opts.ClientName,
		apiVersion: opts.APIVersion,
		salt:       salt,
		token:      authToken(conn.Password, salt),
	}
}

// Connection returns the bound connection.
func (c *Client) Connection() servers.Connection {
	return c.conn
}

// Generation returns the binding generation this client was created for.
func (c *Client) Generation() uint64 {
	return c.generation
}

// Ping checks connectivity and credentials.
func (c *Client) Ping(ctx context.Context) error {
	var resp response
	return c.doJSON(ctx, "ping", nil, &resp)
}

// AlbumList2 returns one page of albums for a list type such as
// "alphabeticalByName" or "newest".
func (c *Client) AlbumList2(ctx context.Context, listType string, size int, offset int) ([]Album, error) {
	params := url.Values{}
	params.Set("type", listType)
	params.Set("size", strconv.Itoa(size))
	params.Set("offset", strconv.Itoa(offset))

	var resp response
	if err := c.doJSON(ctx, "getAlbumList2", params, &resp); err != nil {
		return nil, err
	}
	if resp.AlbumList2 == nil {
		return nil, nil
	}
	return resp.AlbumList2.Albums, nil
}

// Search3 runs a search. An empty query lists everything on servers that
// support it.
func (c *Client) Search3(ctx context.Context, query string, opts SearchOptions) (SearchResult3, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("artistCount", strconv.Itoa(opts.ArtistCount))
	params.Set("artistOffset", strconv.Itoa(opts.ArtistOffset))
	params.Set("albumCount", strconv.Itoa(opts.AlbumCount))
	params.Set("albumOffset", strconv.Itoa(opts.AlbumOffset))
	params.Set("songCount", strconv.Itoa(opts.SongCount))
	params.Set("songOffset", strconv.Itoa(opts.SongOffset))

	var resp response
	if err := c.doJSON(ctx, "search3", params, &resp); err != nil {
		return SearchResult3{}, err
	}
	if resp.SearchResult3 == nil {
		return SearchResult3{}, nil
	}
	return *resp.SearchResult3, nil
}

// Playlists returns every playlist visible to the user.
func (c *Client) Playlists(ctx context.Context) ([]Playlist, error) {
	var resp response
	if err := c.doJSON(ctx, "getPlaylists", nil, &resp); err != nil {
		return nil, err
	}
	if resp.Playlists == nil {
		return nil, nil
	}
	return resp.Playlists.Playlists, nil
}

// Playlist returns a playlist with its entries.
func (c *Client) Playlist(ctx context.Context, id string) (Playlist, error) {
	var resp response
	if err := c.doJSON(ctx, "getPlaylist", idParams(id), &resp); err != nil {
		return Playlist{}, err
	}
	if resp.Playlist == nil {
		return Playlist{}, fmt.Errorf("playlist %s missing from response", id)
	}
	return *resp.Playlist, nil
}

// Album returns an album with its songs.
func (c *Client) Album(ctx context.Context, id string) (Album, error) {
	var resp response
	if err := c.doJSON(ctx, "getAlbum", idParams(id), &resp); err != nil {
		return Album{}, err
	}
	if resp.Album == nil {
		return Album{}, fmt.Errorf("album %s missing from response", id)
	}
	return *resp.Album, nil
}

// Artist returns an artist with its albums.
func (c *Client) Artist(ctx context.Context, id string) (Artist, error) {
	var resp response
	if err := c.doJSON(ctx, "getArtist", idParams(id), &resp); err != nil {
		return Artist{}, err
	}
	if resp.Artist == nil {
		return Artist{}, fmt.Errorf("artist %s missing from response", id)
	}
	return *resp.Artist, nil
}

// Song returns a single song.
func (c *Client) Song(ctx context.Context, id string) (Song, error) {
	var resp response
	if err := c.doJSON(ctx, "getSong", idParams(id), &resp); err != nil {
		return Song{}, err
	}
	if resp.Song == nil {
		return Song{}, fmt.Errorf("song %s missing from response", id)
	}
	return *resp.Song, nil
}

// SetRating sets a 1-5 rating, or clears it with 0.
func (c *Client) SetRating(ctx context.Context, id string, rating int) error {
	if rating < 0 || rating > 5 {
		return fmt.Errorf("rating %d out of range", rating)
	}
	params := idParams(id)
	params.Set("rating", strconv.Itoa(rating))
	var resp response
	return c.doJSON(ctx, "setRating", params, &resp)
}

// Star marks an item as starred.
func (c *Client) Star(ctx context.Context, id string) error {
	var resp response
	return c.doJSON(ctx, "star", idParams(id), &resp)
}

// Unstar removes the star from an item.
func (c *Client) Unstar(ctx context.Context, id string) error {
	var resp response
	return c.doJSON(ctx, "unstar", idParams(id), &resp)
}

// StreamURL builds the authenticated stream URL for a song.
func (c *Client) StreamURL(songID string) string {
	return c.endpointURL("stream", idParams(songID))
}

// DownloadURL builds the authenticated download URL for a song.
func (c *Client) DownloadURL(songID string) string {
	return c.endpointURL("download", idParams(songID))
}

// CoverArtURL builds the authenticated cover art URL.
func (c *Client) CoverArtURL(coverArtID string) string {
	return c.endpointURL("getCoverArt", idParams(coverArtID))
}

func (c *Client) endpointURL(view string, params url.Values) string {
	u, err := url.Parse(c.conn.BaseURL)
	if err != nil {
		u = &url.URL{Path: c.conn.BaseURL}
	}
	u.Path = path.Join(u.Path, "/rest/", view)
	q := c.authParams()
	for key, values := range params {
		for _, v := range values {
			q.Add(key, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func (c *Client) authParams() url.Values {
	q := url.Values{}
	q.Set("u", c.conn.Username)
	q.Set("t", c.token)
	q.Set("s", c.salt)
	q.Set("v", c.apiVersion)
	q.Set("c", c.clientName)
	q.Set("f", "json")
	return q
}

func (c *Client) doJSON(ctx context.Context, view string, params url.Values, out *response) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpointURL(view, params), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("subsonic %s: %s", view, resp.Status)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode %s: %w", view, err)
	}
	if env.Response.Status != "ok" {
		if env.Response.Error != nil {
			return env.Response.Error
		}
		return fmt.Errorf("subsonic %s: status %q", view, env.Response.Status)
	}
	*out = env.Response
	return nil
}

func idParams(id string) url.Values {
	params := url.Values{}
	params.Set("id", id)
	return params
}

func authToken(password string, salt string) string {
	sum := md5.Sum([]byte(password + salt))
	return hex.EncodeToString(sum[:])
}

func newSalt() string {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "sonicsalt"
	}
	return hex.EncodeToString(buf[:])
}
