package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/steveyegge/triage/internal/types"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Show recent triage runs",
	Long: `Show the run audit: one record per processed event, newest first.

Examples:
  # Last 50 runs
  triage runs

  # Every run for one issue
  triage runs --issue 3f2a9c1e-...

  # Only failures
  triage runs --outcome failed --limit 20`,
	RunE: func(cmd *cobra.Command, args []string) error {
		issueID, _ := cmd.Flags().GetString("issue")
		outcome, _ := cmd.Flags().GetString("outcome")
		limit, _ := cmd.Flags().GetInt("limit")

		ctx := cmd.Context()
		db, err := openStorage(ctx, cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		runs, err := db.GetRuns(ctx, types.RunFilter{
			IssueID: issueID,
			Outcome: types.Outcome(outcome),
			Limit:   limit,
		})
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("No runs recorded")
			return nil
		}
		for _, r := range runs {
			printRun(os.Stdout, r)
		}

		if issueID != "" {
			state, err := db.GetIssueState(ctx, issueID)
			if err == nil && state != nil {
				fmt.Printf("\nCurrent state: %s (since %s)\n", state.State, state.UpdatedAt.Local().Format(time.DateTime))
			}
		}
		return nil
	},
}

func printRun(w io.Writer, r *types.Run) {
	gray := color.New(color.FgHiBlack).SprintFunc()
	fmt.Fprintf(w, "%s %-13s %-14s %s %s\n",
		gray(r.StartedAt.Local().Format(time.DateTime)),
		outcomeColor(r.Outcome)(string(r.Outcome)),
		r.EventType,
		r.IssueID,
		gray(r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond)),
	)
	if r.Reason != "" {
		fmt.Fprintf(w, "    reason: %s\n", r.Reason)
	}
	if r.Error != "" {
		fmt.Fprintf(w, "    error: %s\n", color.RedString("%s", firstLine(r.Error)))
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " ..."
	}
	return s
}

func init() {
	runsCmd.Flags().String("issue", "", "Only runs for this issue ID")
	runsCmd.Flags().String("outcome", "", "Only runs with this outcome (ignored, clarification, triaged, failed)")
	runsCmd.Flags().IntP("limit", "n", 50, "Maximum runs to show")
	rootCmd.AddCommand(runsCmd)
}
