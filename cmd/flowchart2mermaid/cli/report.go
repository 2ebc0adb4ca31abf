package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"flowchart-mermaid/internal/domain"
)

func NewReportCommand(load configLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report <run-id>",
		Short: "Show a stored batch run",
		Long:  `Print the summary and per-image outcomes of a batch run recorded in the DynamoDB ledger.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load(cmd)
			if err != nil {
				return err
			}
			return runReport(cmd, cfg, args[0])
		},
	}

	return cmd
}

func runReport(cmd *cobra.Command, cfg *Config, runID string) error {
	ctx := context.Background()

	ledger, err := newDependencies(cfg).ledger(ctx)
	if errors.Is(err, errNoLedger) {
		return errors.New("report needs a ledger: set state_table or --state-table")
	}
	if err != nil {
		return err
	}

	summary, found, err := ledger.GetRunSummary(ctx, runID)
	if err != nil {
		return err
	}
	records, err := ledger.ListConversions(ctx, runID)
	if err != nil {
		return err
	}
	if !found && len(records) == 0 {
		return fmt.Errorf("run %s not found", runID)
	}

	printReport(cmd.OutOrStdout(), runID, summary, found, records)
	return nil
}

func printReport(out io.Writer, runID string, summary domain.BatchResult, found bool, records []domain.ConversionRecord) {
	fmt.Fprintf(out, "Run %s\n", runID)
	if found {
		fmt.Fprintf(out, "   Images: %d  Succeeded: %d  Failed: %d  Moderated: %d  Success: %.1f%%\n",
			summary.Attempted, summary.Succeeded, summary.Failed, summary.Moderated, summary.SuccessRate())
	} else {
		fmt.Fprintln(out, "   Summary missing (run interrupted?)")
	}
	for _, rec := range records {
		line := fmt.Sprintf("   %-9s %s", rec.Status, rec.Stem)
		if rec.Reason != domain.ReasonNone {
			line += " (" + string(rec.Reason) + ")"
		}
		fmt.Fprintln(out, line)
	}
}
