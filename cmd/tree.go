package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentic-research/stencil/internal/document"
	"github.com/agentic-research/stencil/internal/view"
)

var treeOpts view.TreeOptions

func init() {
	treeCmd.Flags().BoolVar(&treeOpts.Props, "props", false, "Show property values")
	treeCmd.Flags().BoolVar(&treeOpts.IDs, "ids", false, "Show node IDs")
	treeCmd.Flags().BoolVar(&treeOpts.Diagnostics, "diagnostics", true, "Show diagnostics")
	rootCmd.AddCommand(treeCmd)
}

var treeCmd = &cobra.Command{
	Use:   "tree [scene.yaml]",
	Short: "Print the settled node tree of a scene",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		defer func() { _ = s.Close() }()
		return s.View(func(doc *document.Document) error {
			_, err := fmt.Fprint(cmd.OutOrStdout(), view.Tree(doc, treeOpts))
			return err
		})
	},
}
