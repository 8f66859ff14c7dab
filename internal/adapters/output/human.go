package output

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pterm/pterm"

	"github.com/mikey-austin/sonic_utopia/internal/core"
	"github.com/mikey-austin/sonic_utopia/pkg/sonic"
)

// HumanPrinter prints human-readable output.
type HumanPrinter struct {
	// Out defaults to stdout.
	Out io.Writer
}

// Print renders human output.
func (p HumanPrinter) Print(v any) error {
	switch data := v.(type) {
	case core.ServersResult:
		return p.printServers(data)
	case core.ServerUseResult:
		return p.line("%s (%s) generation %d, %s", data.Server.Name, data.Server.ID, data.Generation, data.Latency.Round(time.Millisecond))
	case core.AlbumsResult:
		return p.printAlbums(data)
	case core.ArtistsResult:
		return p.printArtists(data)
	case core.ArtistResult:
		return p.printArtist(data)
	case core.PlaylistsResult:
		return p.printPlaylists(data)
	case core.SongsResult:
		return p.printSongs(data)
	case core.SearchResult:
		return p.printSearch(data)
	case core.SongResult:
		return p.printSong(data)
	case core.NodesResult:
		return p.printNodes(data)
	case core.StatusResult:
		return p.printStatus(data.Player.Name, data.State)
	case core.QueueResult:
		return p.printQueue(data)
	case core.PlayerServerResult:
		return p.line("%s now on %s (generation %d)", data.PlayerID, data.Server.ServerID, data.Server.Generation)
	case sonic.PlayerState:
		return p.printStatus("", data)
	case sonic.SessionEvent:
		return p.line("#%d %s %d %s", data.Seq, data.Op, data.Index, strings.Join(data.MediaIDs, ","))
	default:
		return p.line("ok")
	}
}

func (p HumanPrinter) out() io.Writer {
	if p.Out != nil {
		return p.Out
	}
	return os.Stdout
}

func (p HumanPrinter) line(format string, args ...any) error {
	_, err := fmt.Fprintf(p.out(), format+"\n", args...)
	return err
}

func (p HumanPrinter) table(data pterm.TableData) error {
	return pterm.DefaultTable.WithHasHeader().WithWriter(p.out()).WithData(data).Render()
}

func (p HumanPrinter) more(complete bool) error {
	if complete {
		return nil
	}
	return p.line("(more available, raise --limit)")
}

func (p HumanPrinter) printServers(result core.ServersResult) error {
	data := pterm.TableData{{"", "ID", "NAME", "URL", "USER"}}
	for _, row := range result.Servers {
		marker := ""
		if row.Active {
			marker = "*"
		}
		data = append(data, []string{marker, row.ID, row.Name, row.BaseURL, row.Username})
	}
	return p.table(data)
}

func (p HumanPrinter) printAlbums(result core.AlbumsResult) error {
	data := pterm.TableData{{"NAME", "ARTIST", "YEAR", "SONGS", "ALBUM_ID"}}
	for _, album := range result.Albums {
		data = append(data, []string{album.Name, album.Artist, year(album.Year), strconv.Itoa(album.SongCount), album.ID})
	}
	if err := p.table(data); err != nil {
		return err
	}
	return p.more(result.Complete)
}

func (p HumanPrinter) printArtists(result core.ArtistsResult) error {
	data := pterm.TableData{{"NAME", "ALBUMS", "ARTIST_ID"}}
	for _, artist := range result.Artists {
		data = append(data, []string{artist.Name, strconv.Itoa(artist.AlbumCount), artist.ID})
	}
	if err := p.table(data); err != nil {
		return err
	}
	return p.more(result.Complete)
}

func (p HumanPrinter) printPlaylists(result core.PlaylistsResult) error {
	data := pterm.TableData{{"NAME", "OWNER", "SONGS", "LEN", "PLAYLIST_ID"}}
	for _, pl := range result.Playlists {
		data = append(data, []string{pl.Name, pl.Owner, strconv.Itoa(pl.SongCount), formatMS(int64(pl.Duration) * 1000), pl.ID})
	}
	if err := p.table(data); err != nil {
		return err
	}
	return p.more(result.Complete)
}

func (p HumanPrinter) printArtist(result core.ArtistResult) error {
	if err := p.line("%s  (%d albums)  %s", result.Artist.Name, result.Artist.AlbumCount, result.Artist.ID); err != nil {
		return err
	}
	if result.ArtworkURL != "" {
		if err := p.line("artwork: %s", result.ArtworkURL); err != nil {
			return err
		}
	}
	if len(result.Artist.Albums) == 0 {
		return nil
	}
	return p.printAlbums(core.AlbumsResult{Albums: result.Artist.Albums, Complete: true})
}

func (p HumanPrinter) printSongs(result core.SongsResult) error {
	data := songTable(result.Songs)
	if result.CurrentID != "" {
		marker := "*"
		if result.Playing {
			marker = ">"
		}
		data = markRows(data, func(i int) bool { return result.Songs[i].MediaID == result.CurrentID }, marker)
	}
	if err := p.table(data); err != nil {
		return err
	}
	return p.more(result.Complete)
}

func (p HumanPrinter) printSearch(result core.SearchResult) error {
	if len(result.Artists) > 0 {
		if err := p.printArtists(core.ArtistsResult{Artists: result.Artists, Complete: true}); err != nil {
			return err
		}
	}
	if len(result.Albums) > 0 {
		if err := p.printAlbums(core.AlbumsResult{Albums: result.Albums, Complete: true}); err != nil {
			return err
		}
	}
	if len(result.Songs) > 0 {
		return p.table(songTable(result.Songs))
	}
	if len(result.Artists) == 0 && len(result.Albums) == 0 {
		return p.line("no matches for %q", result.Query)
	}
	return nil
}

func (p HumanPrinter) printSong(result core.SongResult) error {
	if err := p.line("%s  %s  %s", formatItem(&result.Song), formatMS(result.Song.DurationMS), formatRating(result.Song)); err != nil {
		return err
	}
	if err := p.line("stream:   %s", result.StreamURL); err != nil {
		return err
	}
	if err := p.line("download: %s", result.DownloadURL); err != nil {
		return err
	}
	if result.ArtworkURL != "" {
		return p.line("artwork:  %s", result.ArtworkURL)
	}
	return nil
}

func (p HumanPrinter) printNodes(result core.NodesResult) error {
	data := pterm.TableData{{"NAME", "KIND", "NODE_ID"}}
	for _, node := range result.Nodes {
		data = append(data, []string{node.Name, node.Kind, node.NodeID})
	}
	return p.table(data)
}

func (p HumanPrinter) printStatus(name string, state sonic.PlayerState) error {
	item := ""
	if state.Current != nil {
		item = fmt.Sprintf("%s  %s", formatItem(state.Current), formatMS(state.Current.DurationMS))
	}
	line := strings.TrimSpace(fmt.Sprintf("%s  [%s]  %s", name, state.Status, item))
	if err := p.line("%s", line); err != nil {
		return err
	}
	if err := p.line("Queue: %d tracks (index %d) rev %d  server %s", state.Length, state.Index, state.Revision, state.ServerID); err != nil {
		return err
	}
	if state.Error != "" {
		return p.line("error: %s (item %s)", state.Error, state.FailedItemID)
	}
	return nil
}

func (p HumanPrinter) printQueue(result core.QueueResult) error {
	data := markRows(songTable(result.Queue.Items), func(i int) bool { return i == result.Queue.Index }, ">")
	if err := p.table(data); err != nil {
		return err
	}
	return p.line("%s  rev %d", result.Queue.Status, result.Queue.Revision)
}

func songTable(songs []sonic.QueueItem) pterm.TableData {
	data := pterm.TableData{{"#", "TITLE", "ARTIST", "LEN", "RATING", "SONG_ID"}}
	for idx, song := range songs {
		data = append(data, []string{strconv.Itoa(idx), song.Title, song.Artist, formatMS(song.DurationMS), formatRating(song), song.MediaID})
	}
	return data
}

// markRows prepends a marker column to a song table.
func markRows(data pterm.TableData, marked func(int) bool, marker string) pterm.TableData {
	data[0] = append([]string{""}, data[0]...)
	for i := 1; i < len(data); i++ {
		cell := ""
		if marked(i - 1) {
			cell = marker
		}
		data[i] = append([]string{cell}, data[i]...)
	}
	return data
}

func formatItem(item *sonic.QueueItem) string {
	if item.Title != "" && item.Artist != "" {
		return fmt.Sprintf("%s - %s", item.Artist, item.Title)
	}
	if item.Title != "" {
		return item.Title
	}
	return item.MediaID
}

func formatRating(item sonic.QueueItem) string {
	stars := ""
	if item.Rated {
		stars = strings.Repeat("*", int(item.Rating+0.5))
	}
	if item.Liked {
		stars += " <3"
	}
	return strings.TrimSpace(stars)
}

func formatMS(ms int64) string {
	if ms <= 0 {
		return "0:00"
	}
	secs := ms / 1000
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}

func year(y int) string {
	if y == 0 {
		return ""
	}
	return strconv.Itoa(y)
}
