package main

import (
	"context"

	"github.com/spf13/cobra"
)

func serversCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "servers",
		Short: "List configured servers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			return app.printer.Print(app.service.Servers())
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "use <server>",
		Short: "Make a server active for later commands",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()

			result, err := app.service.UseServer(ctx, args[0])
			if err != nil {
				return err
			}
			return app.printer.Print(result)
		},
	})

	return cmd
}

func pingCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check the active server answers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			ctx, cancel := withTimeout(context.Background(), app.timeout)
			defer cancel()

			result, err := app.service.Ping(ctx)
			if err != nil {
				return err
			}
			return app.printer.Print(result)
		},
	}
}
