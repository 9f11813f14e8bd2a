package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize vault storage",
		Long:  "Create the configuration and data directories, then initialize the contribution store and image store.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, err := a.attach()
			if err != nil {
				return err
			}
			n, err := backend.Count(cmd.Context())
			if err != nil {
				backend.Detach()
				return systemError(fmt.Errorf("count contributions: %w", err))
			}
			if err := backend.Detach(); err != nil {
				return systemError(fmt.Errorf("detach store: %w", err))
			}
			if _, err := a.openImages(cmd.Context()); err != nil {
				return err
			}
			if a.flags.jsonMode {
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"data_dir":      a.dataDir,
					"database":      backend.Path(),
					"contributions": n,
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Initialized vault in %s (%d contributions)\n", a.dataDir, n)
			return nil
		},
	}
}
