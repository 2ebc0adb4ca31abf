package openai

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"flowchart-mermaid/internal/domain"
)

const (
	DefaultMaxAttempts = 3
	DefaultBackoff     = 5 * time.Second
)

// moderationMarkers appear in the error body when the provider's content
// review rejects an image. Such rejections are deterministic.
var moderationMarkers = []string{"法律 法规", "10040"}

// Result is the outcome of Infer. Text is set only when Reason is empty.
type Result struct {
	Text     string
	Reason   domain.FailureReason
	Attempts int
}

func (r Result) OK() bool {
	return r.Reason == domain.ReasonNone
}

// Infer sends the messages with bounded retries. Transport errors and non-2xx
// answers are retried after a fixed backoff; moderation rejections and
// malformed 200 responses end the sequence at once. Infer never returns an
// error: every failure is folded into Result.Reason.
func (c *Client) Infer(ctx context.Context, model string, messages []domain.ChatMessage) Result {
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		logger := log.With().Int("attempt", attempt).Int("max_attempts", c.maxAttempts).Str("model", model).Logger()

		text, err := c.Chat(ctx, model, messages)
		if err == nil {
			logger.Debug().Int("content_len", len(text)).Msg("completion received")
			return Result{Text: text, Attempts: attempt}
		}

		var statusErr *HTTPStatusError
		if errors.As(err, &statusErr) {
			logger = logger.With().Int("status", statusErr.StatusCode).Int("body_len", len(statusErr.Body)).Logger()
		}

		switch {
		case errors.Is(err, ErrMalformedResponse):
			logger.Error().Err(err).Msg("malformed completion, not retrying")
			return Result{Reason: domain.ReasonMalformed, Attempts: attempt}
		case IsModerationRejection(err):
			logger.Warn().Err(err).Msg("content moderation rejected the image, not retrying")
			return Result{Reason: domain.ReasonModerated, Attempts: attempt}
		case errors.Is(err, ErrNotConfigured):
			logger.Error().Err(err).Msg("inference request cannot be built")
			return Result{Reason: domain.ReasonInvalidInput, Attempts: attempt}
		}

		if attempt == c.maxAttempts {
			logger.Error().Err(err).Msg("inference failed, attempts exhausted")
			break
		}
		logger.Warn().Err(err).Dur("backoff", c.backoff).Msg("inference failed, retrying")
		if sleepErr := c.sleep(ctx, c.backoff); sleepErr != nil {
			return Result{Reason: domain.ReasonRetriesExhausted, Attempts: attempt}
		}
	}
	return Result{Reason: domain.ReasonRetriesExhausted, Attempts: c.maxAttempts}
}

// IsModerationRejection reports whether err is an upstream rejection whose
// body carries a content-moderation marker.
func IsModerationRejection(err error) bool {
	var statusErr *HTTPStatusError
	if !errors.As(err, &statusErr) {
		return false
	}
	for _, marker := range moderationMarkers {
		if strings.Contains(statusErr.Body, marker) {
			return true
		}
	}
	return false
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
