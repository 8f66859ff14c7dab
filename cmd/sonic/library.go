package main

import (
	"context"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mikey-austin/sonic_utopia/internal/core"
	"github.com/mikey-austin/sonic_utopia/internal/library"
)

func albumsCommand() *cobra.Command {
	var (
		listType string
		limit    int
	)

	cmd := &cobra.Command{
		Use:   "albums",
		Short: "List albums",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()

			result, err := app.service.Albums(ctx, listType, limit)
			if err != nil {
				return err
			}
			return app.printer.Print(result)
		},
	}

	cmd.Flags().StringVar(&listType, "type", library.ListAlphabetical, "list type (alphabeticalByName|newest|recent|frequent|random|starred)")
	cmd.Flags().IntVarP(&limit, "limit", "n", library.DefaultPageSize, "maximum albums, 0 for all")
	return cmd
}

func artistsCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "artists",
		Short: "List artists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()

			result, err := app.service.Artists(ctx, limit)
			if err != nil {
				return err
			}
			return app.printer.Print(result)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", library.DefaultPageSize, "maximum artists, 0 for all")
	return cmd
}

func playlistsCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "playlists",
		Short: "List playlists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()

			result, err := app.service.Playlists(ctx, limit)
			if err != nil {
				return err
			}
			return app.printer.Print(result)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum playlists, 0 for all")
	return cmd
}

func searchCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "search <query...>",
		Short: "Search artists, albums and songs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()

			result, err := app.service.Search(ctx, strings.Join(args, " "), limit)
			if err != nil {
				return err
			}
			return app.printer.Print(result)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum results of each kind")
	return cmd
}

func albumCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "album <album-id>",
		Short: "List the songs of an album",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()

			result, err := app.service.Album(ctx, args[0])
			if err != nil {
				return err
			}
			return app.printer.Print(result)
		},
	}
}

func artistCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "artist <artist-id>",
		Short: "Show an artist and its albums",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()

			result, err := app.service.Artist(ctx, args[0])
			if err != nil {
				return err
			}
			return app.printer.Print(result)
		},
	}
}

func playlistCommand() *cobra.Command {
	var player string
	cmd := &cobra.Command{
		Use:   "playlist <playlist-id>",
		Short: "List the songs of a playlist, marking what a player has current",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()

			result, err := app.service.Playlist(ctx, args[0], player)
			if err != nil {
				return err
			}
			return app.printer.Print(result)
		},
	}
	cmd.Flags().StringVarP(&player, "player", "p", "", "player selector")
	return cmd
}

func songCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "song <song-id>",
		Short: "Show a song with its stream and artwork URLs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()

			result, err := app.service.Song(ctx, args[0])
			if err != nil {
				return err
			}
			return app.printer.Print(result)
		},
	}
}

func rateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rate <song-id> <0-5>",
		Short: "Rate a song; 0 clears the rating",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()

			stars, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return core.WrapError(core.ExitUsage, "invalid rating", err)
			}
			if err := app.service.Rate(ctx, args[0], stars); err != nil {
				return err
			}
			return app.printer.Print(struct{}{})
		},
	}
}

func starCommand(liked bool) *cobra.Command {
	use, short := "star <song-id>", "Star a song"
	if !liked {
		use, short = "unstar <song-id>", "Remove the star from a song"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()

			if err := app.service.SetLiked(ctx, args[0], liked); err != nil {
				return err
			}
			return app.printer.Print(struct{}{})
		},
	}
}
