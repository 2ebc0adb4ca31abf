package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"flowchart-mermaid/internal/imagefile"
	"flowchart-mermaid/internal/output"
	"flowchart-mermaid/internal/usecase"
)

func NewConvertCommand(load configLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "convert [image...]",
		Short: "Convert flowchart images to Mermaid markdown files",
		Long: `Convert every supported image in --input-dir (or the images given as arguments)
and write <output-dir>/<name>.md for each one. Images that cannot be converted get a
default two-node flowchart so that every input has an output file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load(cmd)
			if err != nil {
				return err
			}
			return runConvert(cmd, cfg, args)
		},
	}

	cmd.Flags().String("input-dir", "", "Directory containing flowchart images")
	cmd.Flags().String("output-dir", "", "Directory for generated markdown files (default submit)")
	cmd.Flags().Bool("skip-model-selection", false, "Use the configured model without querying the model list")

	return cmd
}

func runConvert(cmd *cobra.Command, cfg *Config, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	paths, err := collectImages(cfg.InputDir, args)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		log.Warn().Str("input_dir", cfg.InputDir).Msg("No images found")
		return nil
	}

	deps := newDependencies(cfg)
	client, err := deps.inferenceClient(ctx)
	if err != nil {
		return fmt.Errorf("create inference client: %w", err)
	}
	writer, err := output.NewWriter(cfg.OutputDir)
	if err != nil {
		return err
	}

	svcDeps := usecase.Dependencies{
		Encoder: imagefile.Encoder{},
		LLM:     client,
		Writer:  writer,
	}
	ledger, err := deps.ledger(ctx)
	switch {
	case err == nil:
		svcDeps.Ledger = ledger
	case !errors.Is(err, errNoLedger):
		return fmt.Errorf("create ledger: %w", err)
	}

	svc, err := usecase.NewService(usecase.Config{
		Model:        selectModel(ctx, client, cfg),
		RequestDelay: cfg.RequestDelay,
	}, svcDeps)
	if err != nil {
		return err
	}

	res := svc.RunBatch(ctx, paths)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Run %s\n", res.RunID)
	fmt.Fprintf(out, "   Images:    %d\n", res.Attempted)
	fmt.Fprintf(out, "   Succeeded: %d\n", res.Succeeded)
	fmt.Fprintf(out, "   Failed:    %d\n", res.Failed)
	fmt.Fprintf(out, "   Moderated: %d\n", res.Moderated)
	fmt.Fprintf(out, "   Success:   %.1f%%\n", res.SuccessRate())
	fmt.Fprintf(out, "   Output:    %s\n", cfg.OutputDir)
	return ctx.Err()
}

// collectImages returns the explicit arguments, or the images under dir when
// none were given.
func collectImages(dir string, args []string) ([]string, error) {
	if len(args) > 0 {
		return args, nil
	}
	if dir == "" {
		return nil, errors.New("no images given: pass image paths or set --input-dir")
	}
	paths, err := imagefile.List(dir)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	return paths, nil
}
