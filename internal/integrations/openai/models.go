package openai

import (
	"context"
	"fmt"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"
)

// DefaultModel is used when the model list is unavailable or has no vision model.
const DefaultModel = "qwen2.5-vl-72b-instruct"

// PreferredModels lists vision models best first.
var PreferredModels = []string{
	"qwen2.5-vl-72b-instruct",
	"qwen2.5-vl-32b-instruct",
	"qwen2.5-vl-7b-instruct",
	"qwen-vl-max",
	"qwen-vl-plus",
	"qwen-vl-chat",
}

var visionMarkers = []string{"vl", "vision"}

// ListModels returns the model identifiers served by the endpoint.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	apiKey, err := c.resolveAPIKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotConfigured, err)
	}

	cfg := goopenai.DefaultConfig(apiKey)
	cfg.BaseURL = apiBase(c.baseURL)
	cfg.HTTPClient = c.resolvedHTTPClient()

	list, err := goopenai.NewClientWithConfig(cfg).ListModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("openai: list models: %w", err)
	}
	ids := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		ids = append(ids, m.ID)
	}
	return ids, nil
}

// SelectModel picks the first preferred model that is available, then any
// available model whose id looks vision-capable, then fallback.
func SelectModel(available, preferred []string, fallback string) string {
	have := make(map[string]struct{}, len(available))
	for _, id := range available {
		have[id] = struct{}{}
	}
	for _, want := range preferred {
		if _, ok := have[want]; ok {
			return want
		}
	}
	for _, id := range available {
		lower := strings.ToLower(id)
		for _, marker := range visionMarkers {
			if strings.Contains(lower, marker) {
				return id
			}
		}
	}
	return fallback
}
