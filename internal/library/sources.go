// Package library provides page fetchers for the server's catalog lists. Each
// fetcher resolves the API client when it runs, so a fetch always targets the
// binding that is active at that moment.
package library

import (
	"context"

	"github.com/mikey-austin/sonic_utopia/internal/catalog"
	"github.com/mikey-austin/sonic_utopia/internal/subsonic"
)

// DefaultPageSize is used when a fetcher is given a size below 1.
const DefaultPageSize = 50

// Album list types understood by getAlbumList2.
const (
	ListAlphabetical = "alphabeticalByName"
	ListNewest       = "newest"
	ListRecent       = "recent"
	ListFrequent     = "frequent"
	ListRandom       = "random"
	ListStarred      = "starred"
)

// APIProvider returns the client for the active server.
type APIProvider interface {
	API() (*subsonic.Client, error)
}

// AlbumKey identifies an album.
func AlbumKey(a subsonic.Album) string { return a.ID }

// ArtistKey identifies an artist.
func ArtistKey(a subsonic.Artist) string { return a.ID }

// PlaylistKey identifies a playlist.
func PlaylistKey(p subsonic.Playlist) string { return p.ID }

// SongKey identifies a song.
func SongKey(s subsonic.Song) string { return s.ID }

// Albums pages through getAlbumList2.
func Albums(provider APIProvider, listType string, size int) catalog.FetchFunc[subsonic.Album] {
	size = pageSize(size)
	if listType == "" {
		listType = ListAlphabetical
	}
	return func(ctx context.Context, cursor catalog.Cursor) (catalog.Page[subsonic.Album], error) {
		api, err := provider.API()
		if err != nil {
			return catalog.Page[subsonic.Album]{}, err
		}
		albums, err := api.AlbumList2(ctx, listType, size, cursor.Offset())
		if err != nil {
			return catalog.Page[subsonic.Album]{}, err
		}
		return page(albums, cursor, size), nil
	}
}

// Artists pages through every artist using search3 with an empty query.
func Artists(provider APIProvider, size int) catalog.FetchFunc[subsonic.Artist] {
	return SearchArtists(provider, "", size)
}

// Playlists lists playlists. The server returns them all at once, so pages
// are sliced locally.
func Playlists(provider APIProvider, size int) catalog.FetchFunc[subsonic.Playlist] {
	size = pageSize(size)
	return func(ctx context.Context, cursor catalog.Cursor) (catalog.Page[subsonic.Playlist], error) {
		api, err := provider.API()
		if err != nil {
			return catalog.Page[subsonic.Playlist]{}, err
		}
		all, err := api.Playlists(ctx)
		if err != nil {
			return catalog.Page[subsonic.Playlist]{}, err
		}
		start := min(cursor.Offset(), len(all))
		end := min(start+size, len(all))
		next := catalog.At(end)
		if end >= len(all) {
			next = catalog.End()
		}
		return catalog.Page[subsonic.Playlist]{Items: all[start:end], Next: next}, nil
	}
}

// SearchSongs pages through song matches for query.
func SearchSongs(provider APIProvider, query string, size int) catalog.FetchFunc[subsonic.Song] {
	size = pageSize(size)
	return func(ctx context.Context, cursor catalog.Cursor) (catalog.Page[subsonic.Song], error) {
		result, err := search(ctx, provider, query, subsonic.SearchOptions{SongCount: size, SongOffset: cursor.Offset()})
		if err != nil {
			return catalog.Page[subsonic.Song]{}, err
		}
		return page(result.Songs, cursor, size), nil
	}
}

// SearchAlbums pages through album matches for query.
func SearchAlbums(provider APIProvider, query string, size int) catalog.FetchFunc[subsonic.Album] {
	size = pageSize(size)
	return func(ctx context.Context, cursor catalog.Cursor) (catalog.Page[subsonic.Album], error) {
		result, err := search(ctx, provider, query, subsonic.SearchOptions{AlbumCount: size, AlbumOffset: cursor.Offset()})
		if err != nil {
			return catalog.Page[subsonic.Album]{}, err
		}
		return page(result.Albums, cursor, size), nil
	}
}

// SearchArtists pages through artist matches for query.
func SearchArtists(provider APIProvider, query string, size int) catalog.FetchFunc[subsonic.Artist] {
	size = pageSize(size)
	return func(ctx context.Context, cursor catalog.Cursor) (catalog.Page[subsonic.Artist], error) {
		result, err := search(ctx, provider, query, subsonic.SearchOptions{ArtistCount: size, ArtistOffset: cursor.Offset()})
		if err != nil {
			return catalog.Page[subsonic.Artist]{}, err
		}
		return page(result.Artists, cursor, size), nil
	}
}

// AlbumSongs returns the songs of an album in track order.
func AlbumSongs(ctx context.Context, provider APIProvider, albumID string) ([]subsonic.Song, error) {
	api, err := provider.API()
	if err != nil {
		return nil, err
	}
	album, err := api.Album(ctx, albumID)
	if err != nil {
		return nil, err
	}
	return album.Songs, nil
}

// PlaylistSongs returns the entries of a playlist.
func PlaylistSongs(ctx context.Context, provider APIProvider, playlistID string) ([]subsonic.Song, error) {
	api, err := provider.API()
	if err != nil {
		return nil, err
	}
	playlist, err := api.Playlist(ctx, playlistID)
	if err != nil {
		return nil, err
	}
	return playlist.Entries, nil
}

func search(ctx context.Context, provider APIProvider, query string, opts subsonic.SearchOptions) (subsonic.SearchResult3, error) {
	api, err := provider.API()
	if err != nil {
		return subsonic.SearchResult3{}, err
	}
	return api.Search3(ctx, query, opts)
}

// page builds a page; a short page means the list is exhausted.
func page[T any](items []T, cursor catalog.Cursor, size int) catalog.Page[T] {
	if len(items) < size {
		return catalog.Page[T]{Items: items, Next: catalog.End()}
	}
	return catalog.Page[T]{Items: items, Next: catalog.At(cursor.Offset() + len(items))}
}

func pageSize(size int) int {
	if size < 1 {
		return DefaultPageSize
	}
	return size
}
