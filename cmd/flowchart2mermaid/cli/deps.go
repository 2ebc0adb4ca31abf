package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"

	"flowchart-mermaid/internal/integrations/openai"
	"flowchart-mermaid/internal/integrations/paramstore"
	"flowchart-mermaid/internal/repository"
)

var errNoLedger = errors.New("no state_table configured")

// dependencies lazily builds the collaborators a command needs. AWS config is
// only loaded when SSM or DynamoDB is actually used.
type dependencies struct {
	cfg    *Config
	awsCfg *aws.Config
}

func newDependencies(cfg *Config) *dependencies {
	return &dependencies{cfg: cfg}
}

func (d *dependencies) awsConfig(ctx context.Context) (aws.Config, error) {
	if d.awsCfg != nil {
		return *d.awsCfg, nil
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load AWS config: %w", err)
	}
	d.awsCfg = &cfg
	return cfg, nil
}

func (d *dependencies) keySource(ctx context.Context) (openai.KeySource, error) {
	if key := strings.TrimSpace(d.cfg.APIKey); key != "" {
		return openai.StaticKey(key), nil
	}
	if strings.TrimSpace(d.cfg.ParamPrefix) == "" {
		return nil, errors.New("no API key: set api_key or param_prefix")
	}
	awsCfg, err := d.awsConfig(ctx)
	if err != nil {
		return nil, err
	}
	ssmClient, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
	if err != nil {
		return nil, err
	}
	log.Debug().Str("param_prefix", d.cfg.ParamPrefix).Msg("Reading API token from parameter store")
	return paramstore.NewTokenSource(ssmClient, d.cfg.ParamPrefix)
}

func (d *dependencies) inferenceClient(ctx context.Context) (*openai.Client, error) {
	keys, err := d.keySource(ctx)
	if err != nil {
		return nil, err
	}
	return openai.NewClient(keys,
		openai.WithBaseURL(d.cfg.APIBaseURL),
		openai.WithTimeout(d.cfg.RequestTimeout),
		openai.WithGeneration(d.cfg.MaxTokens, d.cfg.Temperature),
		openai.WithRetry(d.cfg.MaxAttempts, d.cfg.RetryBackoff),
	)
}

// ledger returns errNoLedger when no table is configured.
func (d *dependencies) ledger(ctx context.Context) (*repository.Client, error) {
	if strings.TrimSpace(d.cfg.StateTable) == "" {
		return nil, errNoLedger
	}
	awsCfg, err := d.awsConfig(ctx)
	if err != nil {
		return nil, err
	}
	return repository.New(awsdynamodb.NewFromConfig(awsCfg), d.cfg.StateTable)
}

// selectModel asks the endpoint for its models and picks the best vision
// model. Listing failures fall back to the configured model.
func selectModel(ctx context.Context, client *openai.Client, cfg *Config) string {
	if cfg.SkipModelSelection {
		return cfg.Model
	}
	available, err := client.ListModels(ctx)
	if err != nil {
		log.Warn().Err(err).Str("model", cfg.Model).Msg("Failed to list models, using configured model")
		return cfg.Model
	}
	model := openai.SelectModel(available, openai.PreferredModels, cfg.Model)
	log.Info().Int("available", len(available)).Str("model", model).Msg("Model selected")
	return model
}
