package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/agentic-research/stencil/internal/document"
	"github.com/agentic-research/stencil/internal/view"
)

func init() {
	rootCmd.AddCommand(queryCmd)
}

var queryCmd = &cobra.Command{
	Use:   "query [scene.yaml] [jsonpath]",
	Short: "Evaluate a JSONPath expression against the settled document",
	Example: `  stencil query scene.yaml '$.nodes[?(@.kind == "instance")].name'
  stencil query scene.yaml '$.links[?(@.valid == false)]'`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		defer func() { _ = s.Close() }()
		return s.View(func(doc *document.Document) error {
			res, err := view.Query(doc, args[1])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		})
	},
}
