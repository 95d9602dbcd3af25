package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/turtacn/ShiftScope/internal/bootstrap"
	"github.com/turtacn/ShiftScope/pkg/client"
	"github.com/turtacn/ShiftScope/pkg/errors"
)

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the prediction cache",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove every cached prediction",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), cliCtx.Timeout)
			defer cancel()

			n, err := clearCache(ctx, cliCtx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "OK: removed %d cached predictions\n", n)
			return nil
		},
	})
	return cmd
}

func clearCache(ctx context.Context, cliCtx *CLIContext) (int64, error) {
	if cliCtx.ServerAddr != "" {
		c, err := client.NewClient(cliCtx.ServerAddr, client.WithTimeout(cliCtx.Timeout))
		if err != nil {
			return 0, err
		}
		return c.InvalidateCache(ctx)
	}
	if !cliCtx.Config.Redis.Enabled {
		return 0, errors.InvalidParam("prediction cache is not enabled (redis.enabled=false)")
	}
	app, err := bootstrap.New(ctx, cliCtx.Config, cliCtx.Logger)
	if err != nil {
		return 0, err
	}
	defer app.Close()
	return app.Service.Invalidate(ctx)
}
