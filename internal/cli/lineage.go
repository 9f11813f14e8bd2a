package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newLineageCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "lineage <share-token>",
		Short: "Show the lineage of a contribution",
		Long:  "Resolve a share token to the chain of contributions from its lineage root, with the root's prompt and questions.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := a.openStack(ctx)
			if err != nil {
				return err
			}
			defer s.close()

			l, err := s.service.Lineage(ctx, args[0])
			if err != nil {
				return classify(err)
			}
			if a.flags.jsonMode {
				return writeJSON(cmd.OutOrStdout(), l)
			}
			printLineage(cmd.OutOrStdout(), l)
			return nil
		},
	}
}

func newLatestCmd(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "latest",
		Short: "List the latest contributions with a location",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("limit") {
				limit = a.cfg.LatestLimit
			}
			backend, err := a.attach()
			if err != nil {
				return err
			}
			defer backend.Detach()

			list, err := backend.LatestWithLocation(cmd.Context(), limit)
			if err != nil {
				return classify(err)
			}
			if a.flags.jsonMode {
				return writeJSON(cmd.OutOrStdout(), list)
			}
			if len(list) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No contributions with a location.")
				return nil
			}
			for _, c := range list {
				printContribution(cmd.OutOrStdout(), c)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of contributions (default: map.latest_limit from config; 0 lists all)")
	return cmd
}
