package cmd

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/agentic-research/stencil/internal/assets"
	"github.com/agentic-research/stencil/internal/session"
)

func init() {
	rootCmd.AddCommand(watchCmd)
}

var watchCmd = &cobra.Command{
	Use:   "watch [scene.yaml]",
	Short: "Keep a scene settled while its asset files change",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext(cmd.Context())
		defer cancel()

		s, err := openSession(ctx, args[0])
		if err != nil {
			return err
		}
		defer func() { _ = s.Close() }()
		return followAssets(ctx, s, nil)
	},
}

// followAssets reloads and propagates on every debounced batch of asset
// changes until ctx is done. after runs once each batch is settled.
func followAssets(ctx context.Context, s *session.Session, after func()) error {
	log := logger.Named("watch")
	w, err := assets.NewWatcher(cfg.WatchDebounce, log)
	if err != nil {
		return err
	}
	defer func() { _ = w.Close() }()

	track := func() {
		for _, f := range s.Files().Files() {
			if err := w.Add(f); err != nil {
				log.Warn("cannot watch file", "path", f, "error", err)
			}
		}
	}
	track()

	runErr := make(chan error, 1)
	go func() { runErr <- w.Run(ctx) }()
	log.Info("watching assets", "files", len(s.Files().Files()))

	for batch := range w.Batches() {
		st, err := s.FilesChanged(ctx, batch)
		if err != nil {
			log.Error("reload failed", "files", batch, "error", err)
			continue
		}
		log.Info("assets reloaded", "files", len(batch), "synced", st.Synced, "created", st.Created, "deleted", st.Deleted)
		track()
		if after != nil {
			after()
		}
	}
	if err := <-runErr; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
