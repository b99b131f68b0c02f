package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/steveyegge/triage/internal/config"
)

var (
	cfgFile string
	cfg     *config.Config
	logger  *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "triage",
	Short: "Automated issue triage for Linear",
	Long: `triage receives Linear webhooks and triages new issues with a language model.

A created issue is routed to a team, labelled, prioritized, estimated and split
into subtasks, or the reporter is asked for more information. A reply to that
question re-runs triage with the conversation as context.

Configuration is read from ./triage.yaml (or --config), a .env file and
TRIAGE_* environment variables, e.g. TRIAGE_TRACKER_API_KEY.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		l, err := loaded.Log.NewLogger(os.Stderr)
		if err != nil {
			return err
		}
		cfg, logger = loaded, l
		slog.SetDefault(l)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Config file (default: ./triage.yaml if present)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
