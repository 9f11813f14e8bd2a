package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/vault/internal/httpapi"
)

func newServeCmd(a *app) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: "Serve the contribution API, the uploaded images and the metrics endpoint.\n" +
			"The server shuts down gracefully on SIGINT or SIGTERM.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			s, err := a.openStack(ctx)
			if err != nil {
				return err
			}
			defer s.close()

			if _, err := sweep(ctx, s, a); err != nil {
				return err
			}

			if addr == "" {
				addr = a.cfg.ListenAddr
			}
			srv := httpapi.New(httpapi.Options{
				Service:      s.service,
				Images:       s.images,
				Lister:       s.backend,
				Metrics:      s.metrics,
				Logger:       a.log,
				MaxImageSize: a.cfg.ImagesMaxSize,
				LatestLimit:  a.cfg.LatestLimit,
			})
			a.log.Debug("vault configured", "data_dir", a.dataDir, "images", a.cfg.ImagesBackend, "integrity", a.cfg.Integrity)
			if err := srv.Run(ctx, addr, a.cfg.ShutdownTimeout); err != nil {
				return systemError(err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default: listen_addr from config)")
	return cmd
}

// sweep removes records left without a lineage root and releases their images.
func sweep(ctx context.Context, s *stack, a *app) (int, error) {
	refs, err := s.backend.SweepPending(ctx)
	if err != nil {
		return 0, systemError(fmt.Errorf("sweep pending contributions: %w", err))
	}
	for _, ref := range refs {
		if err := s.images.Release(ctx, ref); err != nil {
			a.log.Warn("release swept image failed", "image", ref, "error", err)
		}
	}
	if len(refs) > 0 {
		a.log.Info("swept pending contributions", "count", len(refs))
	}
	return len(refs), nil
}
