// Package extract recovers a mermaid flowchart fragment from free-form model
// output. Strategies run strictly in order and the first hit wins; when all of
// them miss, domain.DefaultFragment is returned.
package extract

import (
	"strings"

	"github.com/rs/zerolog/log"

	"flowchart-mermaid/internal/domain"
)

// DefaultStrategies returns the standard ladder, strictest first.
func DefaultStrategies() []Strategy {
	return []Strategy{FencedBlock{}, KeywordScan{}, LoosePattern{}}
}

type Extractor struct {
	strategies []Strategy
}

// New returns an Extractor running the given strategies in order, or the
// default ladder when none are given.
func New(strategies ...Strategy) *Extractor {
	if len(strategies) == 0 {
		strategies = DefaultStrategies()
	}
	return &Extractor{strategies: strategies}
}

// Extract never fails.
func (e *Extractor) Extract(raw string) string {
	in := Input{Raw: raw, Corrected: Correct(raw)}
	for _, s := range e.strategies {
		if fragment, ok := s.Attempt(in); ok && strings.TrimSpace(fragment) != "" {
			log.Debug().
				Str("strategy", s.Name()).
				Int("raw_len", len(raw)).
				Int("fragment_len", len(fragment)).
				Msg("mermaid fragment extracted")
			return fragment
		}
	}
	log.Debug().Int("raw_len", len(raw)).Msg("no strategy matched, using default fragment")
	return domain.DefaultFragment
}

var defaultExtractor = New()

// Extract runs the default ladder over raw.
func Extract(raw string) string {
	return defaultExtractor.Extract(raw)
}
