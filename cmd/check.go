package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentic-research/stencil/internal/document"
)

var strict bool

func init() {
	checkCmd.Flags().BoolVar(&strict, "strict", false, "Fail when any error-level diagnostic remains")
	rootCmd.AddCommand(checkCmd)
}

var checkCmd = &cobra.Command{
	Use:   "check [scene.yaml]",
	Short: "Load a scene, run a repair pass and verify every invariant",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		defer func() { _ = s.Close() }()

		st, err := s.Check(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%d template(s), %d instance(s) synced, %d created, %d deleted\n",
			st.Templates, st.Synced, st.Created, st.Deleted)

		failed := 0
		_ = s.View(func(doc *document.Document) error {
			for _, d := range doc.Diagnostics().All() {
				fmt.Fprintln(out, d)
				if d.Level == document.LevelError {
					failed++
				}
			}
			return nil
		})
		if strict && failed > 0 {
			return fmt.Errorf("%d error diagnostic(s)", failed)
		}
		return nil
	},
}
