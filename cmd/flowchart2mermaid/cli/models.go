package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"flowchart-mermaid/internal/integrations/openai"
)

func NewModelsCommand(load configLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List the models served by the endpoint",
		Long:  `List the models served by the inference endpoint and mark the one convert would pick.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load(cmd)
			if err != nil {
				return err
			}
			return runModels(cmd, cfg)
		},
	}

	return cmd
}

func runModels(cmd *cobra.Command, cfg *Config) error {
	ctx := context.Background()

	client, err := newDependencies(cfg).inferenceClient(ctx)
	if err != nil {
		return fmt.Errorf("create inference client: %w", err)
	}
	available, err := client.ListModels(ctx)
	if err != nil {
		return err
	}
	selected := openai.SelectModel(available, openai.PreferredModels, cfg.Model)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Models (%d):\n", len(available))
	for _, id := range available {
		marker := " "
		if id == selected {
			marker = "*"
		}
		fmt.Fprintf(out, " %s %s\n", marker, id)
	}
	fmt.Fprintf(out, "Selected: %s\n", selected)
	return nil
}
