package cli

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func NewRootCommand() *cobra.Command {
	var (
		configFile string
		debug      bool
	)

	rootCmd := &cobra.Command{
		Use:   "flowchart2mermaid",
		Short: "Convert flowchart images to Mermaid code",
		Long: `flowchart2mermaid sends flowchart images to a multimodal chat-completions endpoint
and writes the recovered Mermaid code as one markdown file per image.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := zerolog.InfoLevel
			if debug {
				level = zerolog.DebugLevel
			}
			zerolog.SetGlobalLevel(level)
		},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to a config file (default ./flowchart2mermaid.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().String("api-url", "", "Override the inference API base URL")
	rootCmd.PersistentFlags().String("model", "", "Model to use when model selection is skipped or fails")
	rootCmd.PersistentFlags().String("state-table", "", "DynamoDB table for the conversion ledger")

	load := func(cmd *cobra.Command) (*Config, error) {
		return LoadConfig(configFile, cmd.Flags())
	}

	rootCmd.AddCommand(NewConvertCommand(load))
	rootCmd.AddCommand(NewModelsCommand(load))
	rootCmd.AddCommand(NewReportCommand(load))

	return rootCmd
}

// Execute runs the root command
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type configLoader func(cmd *cobra.Command) (*Config, error)
