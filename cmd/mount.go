package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentic-research/stencil/internal/document"
	"github.com/agentic-research/stencil/internal/nfsmount"
	"github.com/agentic-research/stencil/internal/session"
)

var (
	nfsAddr string
	noMount bool
)

func init() {
	mountCmd.Flags().StringVar(&nfsAddr, "addr", "127.0.0.1:0", "NFS listen address")
	mountCmd.Flags().BoolVar(&noMount, "no-mount", false, "Only serve NFS; do not call mount")
	rootCmd.AddCommand(mountCmd)
}

var mountCmd = &cobra.Command{
	Use:   "mount [scene.yaml] [mountpoint]",
	Short: "Expose the settled document as a read-only NFS filesystem",
	Long: `Serves every node as a directory holding node.json and props.json, plus
_document.json at the root. The view is refreshed whenever an asset file
changes and the scene has been propagated again.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) < 2 && !noMount {
			return fmt.Errorf("a mountpoint is required unless --no-mount is set")
		}
		ctx, cancel := signalContext(cmd.Context())
		defer cancel()

		s, err := openSession(ctx, args[0])
		if err != nil {
			return err
		}
		defer func() { _ = s.Close() }()

		snap, err := snapshot(s)
		if err != nil {
			return err
		}
		fs := nfsmount.NewDocFS(snap)
		srv, err := nfsmount.NewServer(fs, nfsAddr, logger.Named("nfs"))
		if err != nil {
			return err
		}
		defer func() { _ = srv.Close() }()

		if !noMount {
			mountPoint := args[1]
			if err := nfsmount.Mount(srv.Port(), mountPoint); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Mounted %s at %s (NFS port %d)\n", s.Path(), mountPoint, srv.Port())
			defer func() {
				if err := nfsmount.Unmount(mountPoint); err != nil {
					logger.Error("unmount failed", "mountpoint", mountPoint, "error", err)
				}
			}()
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "Serving %s on NFS port %d\n", s.Path(), srv.Port())
		}

		return followAssets(ctx, s, func() {
			next, err := snapshot(s)
			if err != nil {
				logger.Error("snapshot failed", "error", err)
				return
			}
			fs.Swap(next)
		})
	},
}

func snapshot(s *session.Session) (*nfsmount.Snapshot, error) {
	var snap *nfsmount.Snapshot
	err := s.View(func(doc *document.Document) error {
		var err error
		snap, err = nfsmount.Build(doc)
		return err
	})
	return snap, err
}
