package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/vault/internal/sqlite"
)

const defaultExportFile = "contributions.jsonl"

func newExportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "export [file]",
		Short: "Export all contributions as JSON Lines",
		Long:  "Write every contribution to file, " + defaultExportFile + " by default. The file is replaced atomically.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := defaultExportFile
			if len(args) == 1 {
				path = args[0]
			}
			backend, err := a.attach()
			if err != nil {
				return err
			}
			defer backend.Detach()

			n, err := backend.Export(cmd.Context(), path)
			if err != nil {
				return classify(err)
			}
			return report(cmd, a, "exported", n, path)
		},
	}
}

func newImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Import contributions from JSON Lines into an empty store",
		Long: "Load contributions written by export. The store must be empty. Malformed\n" +
			"lines are skipped; broken lineage links abort the whole import.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, err := a.attach()
			if err != nil {
				return err
			}
			defer backend.Detach()

			n, err := backend.Import(cmd.Context(), args[0])
			if errors.Is(err, sqlite.ErrStoreNotEmpty) {
				return err
			}
			if err != nil {
				return classify(err)
			}
			return report(cmd, a, "imported", n, args[0])
		},
	}
}

func newSweepCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Remove contributions left without a lineage root",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := a.openStack(ctx)
			if err != nil {
				return err
			}
			defer s.close()

			n, err := sweep(ctx, s, a)
			if err != nil {
				return err
			}
			if a.flags.jsonMode {
				return writeJSON(cmd.OutOrStdout(), map[string]int{"swept": n})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Swept %d pending contributions\n", n)
			return nil
		},
	}
}

func report(cmd *cobra.Command, a *app, verb string, n int, path string) error {
	if a.flags.jsonMode {
		return writeJSON(cmd.OutOrStdout(), map[string]any{verb: n, "file": path})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %d contributions (%s)\n", verb, n, path)
	return nil
}
