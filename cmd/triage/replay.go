package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/steveyegge/triage/internal/events"
	"github.com/steveyegge/triage/internal/triage"
	"github.com/steveyegge/triage/internal/types"
)

var replayCmd = &cobra.Command{
	Use:   "replay <event.json>",
	Short: "Process one webhook payload synchronously",
	Long: `Run a saved webhook payload through the triage pipeline and print the result.

The payload is processed exactly as the server would, against the configured
tracker and model, and is recorded in the run audit. Use "-" to read stdin.

Examples:
  # Re-triage from a captured delivery
  triage replay testdata/issue_created.json

  # Pipe a payload and print the result as JSON
  cat event.json | triage replay - --json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		ev, err := readEvent(args[0])
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		a, err := newApp(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		orch, err := a.orchestrator(ctx, nil)
		if err != nil {
			return err
		}

		res, handleErr := orch.HandleEvent(ctx, ev)
		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(res); err != nil {
				return err
			}
		} else {
			printResult(os.Stdout, res)
		}
		return handleErr
	},
}

func readEvent(path string) (*events.Event, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read event: %w", err)
	}
	return events.Decode(data)
}

func printResult(w io.Writer, res *triage.Result) {
	if res == nil {
		return
	}
	cyan := color.New(color.FgCyan).SprintFunc()

	fmt.Fprintf(w, "%s %s", outcomeColor(res.Outcome)(string(res.Outcome)), res.EventKind)
	if res.IssueID != "" {
		fmt.Fprintf(w, " for %s", cyan(res.IssueID))
	}
	fmt.Fprintln(w)

	if res.Reason != "" {
		fmt.Fprintf(w, "  Reason: %s\n", res.Reason)
	}
	if res.State != "" {
		fmt.Fprintf(w, "  State: %s\n", res.State)
	}
	if u := res.Update; u != nil {
		if u.TeamID != nil {
			fmt.Fprintf(w, "  Team: %s\n", *u.TeamID)
		}
		if u.Priority != nil {
			fmt.Fprintf(w, "  Priority: %d\n", *u.Priority)
		}
		if u.Estimate != nil {
			fmt.Fprintf(w, "  Estimate: %d\n", *u.Estimate)
		}
		if u.LabelIDs != nil {
			fmt.Fprintf(w, "  Labels: %v\n", u.LabelIDs)
		}
	}
	for _, st := range res.Subtasks {
		if st.Err != nil {
			fmt.Fprintf(w, "  Subtask %q: %s\n", st.Title, color.RedString("failed: %v", st.Err))
			continue
		}
		fmt.Fprintf(w, "  Subtask %q: %s\n", st.Title, st.ID)
	}
	if res.CommentID != "" {
		fmt.Fprintf(w, "  Comment: %s\n", res.CommentID)
	}
	if res.Error != "" {
		fmt.Fprintf(w, "  Error: %s\n", color.RedString("%s", res.Error))
	}
	fmt.Fprintf(w, "  Run: %s (%s)\n", res.RunID, res.FinishedAt.Sub(res.StartedAt).Round(time.Millisecond))
}

func outcomeColor(o types.Outcome) func(a ...interface{}) string {
	switch o {
	case types.OutcomeTriaged:
		return color.New(color.FgGreen).SprintFunc()
	case types.OutcomeClarification:
		return color.New(color.FgYellow).SprintFunc()
	case types.OutcomeFailed:
		return color.New(color.FgRed).SprintFunc()
	default:
		return color.New(color.FgHiBlack).SprintFunc()
	}
}

func init() {
	replayCmd.Flags().Bool("json", false, "Print the result as JSON")
	rootCmd.AddCommand(replayCmd)
}
