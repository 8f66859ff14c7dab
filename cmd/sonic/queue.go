package main

import (
	"context"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mikey-austin/sonic_utopia/internal/core"
	"github.com/mikey-austin/sonic_utopia/pkg/sonic"
)

func queueCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Queue commands",
	}

	cmd.AddCommand(queueListCommand())
	cmd.AddCommand(queueSetCommand())
	cmd.AddCommand(queueAddCommand())
	cmd.AddCommand(queueRemoveCommand())
	cmd.AddCommand(queueMoveCommand())
	cmd.AddCommand(queueJumpCommand())

	return cmd
}

type sourceFlags struct {
	album    string
	playlist string
	player   string
}

func (f *sourceFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.album, "album", "", "queue every song of an album")
	cmd.Flags().StringVar(&f.playlist, "playlist", "", "queue every song of a playlist")
	cmd.Flags().StringVarP(&f.player, "player", "p", "", "player selector")
}

func (f *sourceFlags) source(songIDs []string) sonic.SongSource {
	return sonic.SongSource{SongIDs: songIDs, AlbumID: f.album, PlaylistID: f.playlist}
}

func queueListCommand() *cobra.Command {
	var from, count int

	cmd := &cobra.Command{
		Use:   "list [player]",
		Short: "List queue entries",
		Args:  cobra.RangeArgs(0, 1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()

			result, err := app.service.QueueList(ctx, selectorArg(args), from, count)
			if err != nil {
				return err
			}
			return app.printer.Print(result)
		},
	}

	cmd.Flags().IntVar(&from, "from", 0, "start index")
	cmd.Flags().IntVar(&count, "count", 0, "number of entries, 0 for all")
	return cmd
}

func queueSetCommand() *cobra.Command {
	var (
		flags sourceFlags
		start int
		play  bool
	)

	cmd := &cobra.Command{
		Use:   "set [song-id...]",
		Short: "Replace the queue with songs, an album or a playlist",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()

			if err := app.service.QueueSet(ctx, flags.player, flags.source(args), start, play); err != nil {
				return err
			}
			return app.printer.Print(struct{}{})
		},
	}

	flags.register(cmd)
	cmd.Flags().IntVar(&start, "start", 0, "index to start from")
	cmd.Flags().BoolVar(&play, "play", false, "start playing")
	return cmd
}

func queueAddCommand() *cobra.Command {
	var (
		flags sourceFlags
		at    int
	)

	cmd := &cobra.Command{
		Use:   "add [song-id...]",
		Short: "Add songs, an album or a playlist to the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()

			var atPtr *int
			if cmd.Flags().Changed("at") {
				atPtr = &at
			}
			if err := app.service.QueueAdd(ctx, flags.player, flags.source(args), atPtr); err != nil {
				return err
			}
			return app.printer.Print(struct{}{})
		},
	}

	flags.register(cmd)
	cmd.Flags().IntVar(&at, "at", 0, "insert before this index (default appends)")
	return cmd
}

func queueRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <index> [player]",
		Short: "Remove a queue entry",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()

			index, err := parseIndex(args[0])
			if err != nil {
				return err
			}
			return app.service.QueueRemove(ctx, selectorArg(args[1:]), index)
		},
	}
}

func queueMoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "mv <from> <to> [player]",
		Short: "Move a queue entry",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()

			from, err := parseIndex(args[0])
			if err != nil {
				return err
			}
			to, err := parseIndex(args[1])
			if err != nil {
				return err
			}
			return app.service.QueueMove(ctx, selectorArg(args[2:]), from, to)
		},
	}
}

func queueJumpCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "jump <index> [player]",
		Short: "Jump to a queue entry",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()

			index, err := parseIndex(args[0])
			if err != nil {
				return err
			}
			return app.service.QueueJump(ctx, selectorArg(args[1:]), index)
		},
	}
}

func parseIndex(arg string) (int, error) {
	index, err := strconv.Atoi(arg)
	if err != nil || index < 0 {
		return 0, &core.CLIError{Code: core.ExitUsage, Msg: "index must be a non-negative integer"}
	}
	return index, nil
}
