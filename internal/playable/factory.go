// Package playable turns server song records into items the playback engine
// can queue: metadata, resolved URIs and player ratings.
package playable

import (
	"time"

	"github.com/mikey-austin/sonic_utopia/internal/rating"
	"github.com/mikey-austin/sonic_utopia/internal/resource"
	"github.com/mikey-austin/sonic_utopia/internal/subsonic"
)

// Item is a song resolved under one server binding. Its URIs embed that
// binding's auth and are invalid once the binding generation changes.
type Item struct {
	MediaID     string
	Title       string
	Artist      string
	AlbumID     string
	Duration    time.Duration
	StreamURI   string
	DownloadURI string
	ArtworkURI  string
	Overall     rating.Stars
	Liked       rating.Heart
	Generation  uint64

	song subsonic.Song
}

// Song returns the source record the item was built from.
func (i Item) Song() subsonic.Song {
	return i.song
}

// Stale reports whether the item was resolved under a different generation.
func (i Item) Stale(generation uint64) bool {
	return i.Generation != generation
}

// Factory builds Items.
type Factory struct {
	resolver *resource.Resolver
}

// NewFactory creates a factory over resolver.
func NewFactory(resolver *resource.Resolver) *Factory {
	return &Factory{resolver: resolver}
}

// Item resolves a single song. Resolution is string composition only; for a
// fixed binding the same song always yields the same URIs.
func (f *Factory) Item(song subsonic.Song) (Item, error) {
	api, err := f.resolver.Binding()
	if err != nil {
		return Item{}, err
	}
	return build(api, song), nil
}

// Items resolves songs in order under a single binding.
func (f *Factory) Items(songs []subsonic.Song) ([]Item, error) {
	api, err := f.resolver.Binding()
	if err != nil {
		return nil, err
	}
	items := make([]Item, 0, len(songs))
	for _, song := range songs {
		items = append(items, build(api, song))
	}
	return items, nil
}

// Rebind re-resolves every item that is stale for the current binding and
// returns the rest untouched.
func (f *Factory) Rebind(items []Item) ([]Item, error) {
	api, err := f.resolver.Binding()
	if err != nil {
		return nil, err
	}
	out := make([]Item, len(items))
	for i, item := range items {
		if !item.Stale(api.Generation()) {
			out[i] = item
			continue
		}
		out[i] = build(api, item.song)
	}
	return out, nil
}

func build(api *subsonic.Client, song subsonic.Song) Item {
	overall, liked := rating.FromServer(song.UserRating, song.Starred)

	artwork := ""
	if song.CoverArt != "" {
		artwork = api.CoverArtURL(song.CoverArt)
	}
	duration := time.Duration(0)
	if song.Duration > 0 {
		duration = time.Duration(song.Duration) * time.Second
	}

	return Item{
		MediaID:     song.ID,
		Title:       song.Title,
		Artist:      song.Artist,
		AlbumID:     song.AlbumID,
		Duration:    duration,
		StreamURI:   api.StreamURL(song.ID),
		DownloadURI: api.DownloadURL(song.ID),
		ArtworkURI:  artwork,
		Overall:     overall,
		Liked:       liked,
		Generation:  api.Generation(),
		song:        song,
	}
}
