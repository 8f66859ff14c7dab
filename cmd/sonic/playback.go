package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/mikey-austin/sonic_utopia/internal/core"
)

type playerAction func(s core.Service, ctx context.Context, selector string) error

func playbackCommand(use string, short string, action playerAction) *cobra.Command {
	return &cobra.Command{
		Use:   use + " [player]",
		Short: short,
		Args:  cobra.RangeArgs(0, 1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()

			return action(app.service, ctx, selectorArg(args))
		},
	}
}

func playCommand() *cobra.Command {
	return playbackCommand("play", "Start playback", core.Service.PlaybackPlay)
}

func pauseCommand() *cobra.Command {
	return playbackCommand("pause", "Pause playback", core.Service.PlaybackPause)
}

func toggleCommand() *cobra.Command {
	return playbackCommand("toggle", "Toggle playback", core.Service.PlaybackToggle)
}

func nextCommand() *cobra.Command {
	return playbackCommand("next", "Skip to the next song", core.Service.PlaybackNext)
}

func prevCommand() *cobra.Command {
	return playbackCommand("prev", "Go back to the previous song", core.Service.PlaybackPrev)
}
