package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/vault/internal/images"
	"github.com/mesh-intelligence/vault/internal/service"
	"github.com/mesh-intelligence/vault/pkg/types"
)

const cliAgent = "vault-cli"

type contributeFlags struct {
	image       string
	parent      string
	description string
	prompt      string
	questions   []string
	answers     []string
	agent       string
	lat         float64
	lon         float64
}

func newContributeCmd(a *app) *cobra.Command {
	var f contributeFlags

	cmd := &cobra.Command{
		Use:   "contribute",
		Short: "Add a contribution",
		Long: "Store an image as a new contribution. Without --parent it starts a new lineage\n" +
			"and may define the prompt and up to three questions; with --parent it answers\n" +
			"the lineage the parent belongs to.",
		Example: `  vault contribute --image harbour.png --prompt "Draw the harbour" --question "What is missing?"
  vault contribute --image boats.jpg --parent 3f2a... --answer "The boats"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := f.request(cmd)
			if err != nil {
				return err
			}

			file, err := os.Open(f.image)
			if err != nil {
				return fmt.Errorf("open image: %w", err)
			}
			defer file.Close()

			ctx := cmd.Context()
			s, err := a.openStack(ctx)
			if err != nil {
				return err
			}
			defer s.close()

			ref, err := images.Accept(ctx, s.images, filepath.Base(f.image), file, a.cfg.ImagesMaxSize)
			if err != nil {
				return classify(err)
			}
			req.ImageRef = ref

			c, err := s.service.Contribute(ctx, req)
			if err != nil {
				return classify(err)
			}
			if a.flags.jsonMode {
				return writeJSON(cmd.OutOrStdout(), c)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Share token: %s\n", c.ShareToken)
			printContribution(cmd.OutOrStdout(), c)
			return nil
		},
	}

	cmd.Flags().StringVar(&f.image, "image", "", "path to the image file (required)")
	cmd.Flags().StringVar(&f.parent, "parent", "", "share token of the contribution being answered")
	cmd.Flags().StringVar(&f.description, "description", "", "image description")
	cmd.Flags().StringVar(&f.prompt, "prompt", "", "lineage prompt (new lineages only)")
	cmd.Flags().StringArrayVar(&f.questions, "question", nil, "survey question, repeatable up to 3 times (new lineages only)")
	cmd.Flags().StringArrayVar(&f.answers, "answer", nil, "answer, repeatable up to 3 times")
	cmd.Flags().StringVar(&f.agent, "agent", cliAgent, "contributor agent recorded with the contribution")
	cmd.Flags().Float64Var(&f.lat, "lat", 0, "latitude of the contribution")
	cmd.Flags().Float64Var(&f.lon, "lon", 0, "longitude of the contribution")
	_ = cmd.MarkFlagRequired("image")
	cmd.MarkFlagsRequiredTogether("lat", "lon")
	return cmd
}

func (f *contributeFlags) request(cmd *cobra.Command) (service.Request, error) {
	if len(f.questions) > 3 {
		return service.Request{}, fmt.Errorf("at most 3 questions, got %d", len(f.questions))
	}
	if len(f.answers) > 3 {
		return service.Request{}, fmt.Errorf("at most 3 answers, got %d", len(f.answers))
	}

	req := service.Request{
		ParentToken:      f.parent,
		Description:      f.description,
		Prompt:           f.prompt,
		ContributorAgent: f.agent,
	}
	copy(req.Questions[:], f.questions)
	copy(req.Answers[:], f.answers)
	if cmd.Flags().Changed("lat") {
		req.Location = &types.Location{Latitude: f.lat, Longitude: f.lon}
	}
	return req, nil
}
