package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/turtacn/ShiftScope/internal/intelligence/shift_stats"
	"github.com/turtacn/ShiftScope/pkg/errors"
)

func newSeedDBCmd() *cobra.Command {
	var (
		path string
		from string
	)

	cmd := &cobra.Command{
		Use:   "seed-db",
		Short: "Write shift statistics into a SQLite database for the local stage",
		Long: "Create or replace the local shift-statistics database. Records come from\n" +
			"--from (a YAML dataset) or, by default, the built-in seed dataset.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			if path == "" {
				path = cliCtx.Config.LocalDB.Path
			}
			if path == "" {
				return errors.InvalidParam("--path is required when local_db.path is not configured")
			}

			ds, err := loadSeedSource(from)
			if err != nil {
				return err
			}

			store, err := shift_stats.OpenStore(cmd.Context(), path, cliCtx.Logger)
			if err != nil {
				return err
			}
			defer store.Close()

			n, err := store.WriteDataset(cmd.Context(), ds)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "OK: wrote %d records to %s\n", n, path)
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "path", "", "database file (default: local_db.path)")
	cmd.Flags().StringVar(&from, "from", "", "YAML dataset to import instead of the built-in seed")
	return cmd
}

func loadSeedSource(from string) (*shift_stats.Dataset, error) {
	if from == "" {
		return shift_stats.SeedDataset()
	}
	data, err := os.ReadFile(from)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidParam, "cannot read dataset file").WithDetail(from)
	}
	return shift_stats.ParseDataset(data)
}
