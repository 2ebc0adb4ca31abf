package main

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"flowchart-mermaid/handler"
	"flowchart-mermaid/internal/integrations/openai"
	"flowchart-mermaid/internal/integrations/paramstore"
	"flowchart-mermaid/internal/repository"
	"flowchart-mermaid/internal/usecase"
)

func main() {
	ctx := context.Background()
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs

	// ---- Configuration (read only here) ----
	paramPrefix := mustEnv("PARAM_PREFIX")
	stateTable := os.Getenv("STATE_TABLE")
	baseURL := envString("API_BASE_URL", openai.DefaultBaseURL)
	model := envString("MODEL", openai.DefaultModel)
	maxAttempts := envInt("MAX_ATTEMPTS", openai.DefaultMaxAttempts)
	timeout := envDuration("REQUEST_TIMEOUT", openai.DefaultTimeout)
	backoff := envDuration("RETRY_BACKOFF", openai.DefaultBackoff)

	// ---- AWS SDK config ----
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load AWS config")
	}

	// ---- Clients ----
	ssmClient, err := paramstore.New(awsssm.NewFromConfig(cfg))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create SSM client")
	}
	tokens, err := paramstore.NewTokenSource(ssmClient, paramPrefix)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create token source")
	}

	inferenceClient, err := openai.NewClient(tokens,
		openai.WithBaseURL(baseURL),
		openai.WithTimeout(timeout),
		openai.WithRetry(maxAttempts, backoff),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create inference client")
	}

	deps := usecase.Dependencies{LLM: inferenceClient}
	if stateTable != "" {
		stateClient, err := repository.New(awsdynamodb.NewFromConfig(cfg), stateTable)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create state client")
		}
		deps.Ledger = stateClient
	}

	// ---- Handler ----
	convertService, err := usecase.NewService(usecase.Config{Model: model}, deps)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create convert service")
	}

	h, err := handler.NewHandler(convertService)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create handler")
	}

	lambda.Start(h.Handle)
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatal().Str("key", key).Msg("required environment variable is not set")
	}
	return v
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
