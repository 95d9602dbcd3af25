package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/turtacn/ShiftScope/internal/application/prediction"
	"github.com/turtacn/ShiftScope/internal/bootstrap"
	"github.com/turtacn/ShiftScope/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ShiftScope/pkg/client"
	types "github.com/turtacn/ShiftScope/pkg/types/nmr"
)

func newPredictCmd() *cobra.Command {
	var bypassCache bool

	cmd := &cobra.Command{
		Use:   "predict <structure>",
		Short: "Predict NMR chemical shifts for a structure",
		Long: "Run the prediction cascade for a SMILES string. Without --server the\n" +
			"cascade runs in-process using the configured back-ends.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), cliCtx.Timeout)
			defer cancel()

			p, err := runPredict(ctx, cliCtx, args[0], bypassCache)
			if err != nil {
				return err
			}
			if cliCtx.OutputFormat == "json" {
				return printJSON(cmd, p)
			}
			fmt.Fprint(cmd.OutOrStdout(), formatPrediction(p))
			return nil
		},
	}
	cmd.Flags().BoolVar(&bypassCache, "bypass-cache", false, "ignore cached predictions")
	return cmd
}

func runPredict(ctx context.Context, cliCtx *CLIContext, structure string, bypassCache bool) (*types.Prediction, error) {
	if cliCtx.ServerAddr != "" {
		c, err := client.NewClient(cliCtx.ServerAddr, client.WithTimeout(cliCtx.Timeout))
		if err != nil {
			return nil, err
		}
		return c.PredictWithOptions(ctx, &client.PredictRequest{Structure: structure, BypassCache: bypassCache})
	}

	app, err := bootstrap.New(ctx, cliCtx.Config, cliCtx.Logger)
	if err != nil {
		return nil, err
	}
	defer app.Close()

	p, err := app.Service.Predict(ctx, &prediction.PredictInput{Structure: structure, BypassCache: bypassCache})
	if err != nil {
		return nil, err
	}
	cliCtx.Logger.Debug("prediction finished", logging.RunID(p.RunID), logging.Stage(string(p.Stage)))
	return p, nil
}

func formatPrediction(p *types.Prediction) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Structure: %s\n", p.Structure)
	stage := string(p.Stage)
	if p.Cached {
		stage += " (cached)"
	}
	fmt.Fprintf(&sb, "Stage:     %s\n", stageColor(p.Stage)(stage))
	fmt.Fprintf(&sb, "Run:       %s\n\n", p.RunID)

	var rows [][]string
	for _, k := range types.AllNuclei() {
		for _, s := range p.Result[k] {
			rows = append(rows, []string{string(k), strconv.FormatFloat(s.Delta, 'f', 2, 64), strconv.Itoa(s.Count), joinInts(s.AtomIDs)})
		}
	}
	if len(rows) == 0 {
		sb.WriteString("No signals predicted.\n")
	} else {
		sb.WriteString(FormatTable([]string{"Nucleus", "Shift (ppm)", "Count", "Atoms"}, rows))
	}

	if len(p.Diagnostics) > 0 {
		sb.WriteString("\n")
		diag := make([][]string, 0, len(p.Diagnostics))
		for _, d := range p.Diagnostics {
			diag = append(diag, []string{string(d.Stage), statusColor(d.Status)(string(d.Status)), d.Duration.String(), d.Reason})
		}
		sb.WriteString(FormatTable([]string{"Stage", "Status", "Duration", "Reason"}, diag))
	}
	return sb.String()
}

func stageColor(s types.Stage) func(format string, a ...interface{}) string {
	if s == types.StageNone {
		return color.RedString
	}
	return color.GreenString
}

func statusColor(s types.StageStatus) func(format string, a ...interface{}) string {
	switch s {
	case types.StatusSucceeded:
		return color.GreenString
	case types.StatusFailed:
		return color.RedString
	case types.StatusCancelled:
		return color.MagentaString
	default:
		return color.YellowString
	}
}

func joinInts(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ",")
}
