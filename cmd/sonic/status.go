package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/mikey-austin/sonic_utopia/internal/core"
)

func statusCommand() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "status [player]",
		Short: "Show player status",
		Args:  cobra.RangeArgs(0, 1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			selector := selectorArg(args)
			if watch {
				return watchStatus(app, selector)
			}
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()
			result, err := app.service.Status(ctx, selector)
			if err != nil {
				return err
			}
			return app.printer.Print(result)
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "watch status updates")

	return cmd
}

func watchStatus(app *app, selector string) error {
	ctx, cancel := interruptible()
	defer cancel()

	initCtx, initCancel := withTimeout(ctx, app.timeout)
	initial, err := app.service.Status(initCtx, selector)
	initCancel()
	if err != nil {
		return err
	}
	if err := app.printer.Print(initial); err != nil {
		return err
	}

	states, events, errs, err := app.service.WatchStatus(ctx, selector)
	if err != nil {
		return err
	}

	for {
		select {
		case state, ok := <-states:
			if !ok {
				return nil
			}
			if err := app.printer.Print(core.StatusResult{Player: initial.Player, State: state}); err != nil {
				return err
			}
		case evt, ok := <-events:
			if !ok {
				return nil
			}
			if err := app.printer.Print(evt); err != nil {
				return err
			}
		case err := <-errs:
			if err != nil {
				return err
			}
		}
	}
}

func playersCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "players",
		Short: "List player nodes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()

			result, err := app.service.ListPlayers(ctx)
			if err != nil {
				return err
			}
			return app.printer.Print(result)
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "use-server <server> [player]",
		Short: "Switch a player to another configured server",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()

			result, err := app.service.PlayerUseServer(ctx, selectorArg(args[1:]), args[0])
			if err != nil {
				return err
			}
			return app.printer.Print(result)
		},
	})

	return cmd
}
