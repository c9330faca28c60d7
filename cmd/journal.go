package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentic-research/stencil/internal/journal"
)

var passID int64

func init() {
	journalCmd.Flags().Int64Var(&passID, "pass", 0, "Show the events of one pass")
	rootCmd.AddCommand(journalCmd)
}

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "List journaled propagation passes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Journal == "" {
			return fmt.Errorf("no journal configured; set journal in stencil.yaml or STENCIL_JOURNAL")
		}
		j, err := journal.Open(cfg.Journal)
		if err != nil {
			return err
		}
		defer func() { _ = j.Close() }()

		out := cmd.OutOrStdout()
		if passID != 0 {
			events, err := j.Events(cmd.Context(), passID)
			if err != nil {
				return err
			}
			for _, ev := range events {
				fmt.Fprintf(out, "%-13s %s %s\n", ev.Kind, ev.Node, ev.Detail)
			}
			return nil
		}
		passes, err := j.List(cmd.Context())
		if err != nil {
			return err
		}
		for _, p := range passes {
			fmt.Fprintf(out, "%4d  %s  %-24s %d event(s)\n", p.ID, p.At.Format(time.RFC3339), p.Label, p.Events)
		}
		return nil
	},
}
