package usecase

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"flowchart-mermaid/internal/domain"
	"flowchart-mermaid/internal/extract"
	"flowchart-mermaid/internal/imagefile"
	"flowchart-mermaid/internal/integrations/openai"
)

const (
	defaultRequestDelay  = time.Second
	defaultProgressEvery = 10
)

type ImageEncoder interface {
	Encode(path string) (imagefile.Encoded, error)
}

type InferenceClient interface {
	Infer(ctx context.Context, model string, messages []domain.ChatMessage) openai.Result
}

type FragmentExtractor interface {
	Extract(raw string) string
}

type FragmentWriter interface {
	Write(stem, fragment string) (string, error)
}

// Ledger records conversion outcomes. It is optional.
type Ledger interface {
	SaveConversion(ctx context.Context, rec domain.ConversionRecord) error
	SaveRunSummary(ctx context.Context, res domain.BatchResult) error
}

// Config is read once at startup and passed in explicitly.
type Config struct {
	Model         string
	RequestDelay  time.Duration
	ProgressEvery int
}

type Dependencies struct {
	Encoder   ImageEncoder
	LLM       InferenceClient
	Writer    FragmentWriter
	Extractor FragmentExtractor
	Ledger    Ledger
	Sleep     func(ctx context.Context, d time.Duration) error
}

// Service converts flowchart images into mermaid fragments, one at a time.
type Service struct {
	cfg       Config
	encoder   ImageEncoder
	llm       InferenceClient
	writer    FragmentWriter
	extractor FragmentExtractor
	ledger    Ledger
	sleep     func(ctx context.Context, d time.Duration) error
	prompt    string
}

func NewService(cfg Config, deps Dependencies) (*Service, error) {
	if deps.LLM == nil {
		return nil, errors.New("usecase: inference client must not be nil")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, errors.New("usecase: model must not be empty")
	}
	if cfg.RequestDelay < 0 {
		cfg.RequestDelay = defaultRequestDelay
	}
	if cfg.ProgressEvery <= 0 {
		cfg.ProgressEvery = defaultProgressEvery
	}
	if deps.Encoder == nil {
		deps.Encoder = imagefile.Encoder{}
	}
	if deps.Extractor == nil {
		deps.Extractor = extract.New()
	}
	if deps.Sleep == nil {
		deps.Sleep = sleepContext
	}
	prompt := BuildPrompt()
	log.Debug().Int("prompt_len", len(prompt)).Str("model", cfg.Model).Msg("conversion service ready")
	return &Service{
		cfg:       cfg,
		encoder:   deps.Encoder,
		llm:       deps.LLM,
		writer:    deps.Writer,
		extractor: deps.Extractor,
		ledger:    deps.Ledger,
		sleep:     deps.Sleep,
		prompt:    prompt,
	}, nil
}

// Outcome is the result of processing one image. Fragment is empty unless
// the model produced a real, non-default diagram.
type Outcome struct {
	Fragment string
	Reason   domain.FailureReason
}

func (o Outcome) OK() bool {
	return o.Fragment != ""
}

// ProcessImage encodes, infers and extracts a single image. A fragment equal
// to the default counts as no usable result.
func (s *Service) ProcessImage(ctx context.Context, path string) Outcome {
	logger := log.With().Str("image", path).Logger()

	enc, err := s.encoder.Encode(path)
	if err != nil {
		logger.Warn().Err(err).Msg("image skipped")
		return Outcome{Reason: domain.ReasonInvalidInput}
	}
	logger.Debug().Int64("size", enc.Size).Int("base64_len", len(enc.Base64)).Msg("image encoded")

	res := s.llm.Infer(ctx, s.cfg.Model, buildImageMessages(s.prompt, enc.MIME, enc.Base64))
	if !res.OK() {
		logger.Warn().Str("reason", string(res.Reason)).Int("attempts", res.Attempts).Msg("inference produced no response")
		return Outcome{Reason: res.Reason}
	}

	fragment := s.extractor.Extract(res.Text)
	if strings.TrimSpace(fragment) == "" || domain.IsDefault(fragment) {
		logger.Warn().Int("content_len", len(res.Text)).Msg("no diagram could be extracted")
		return Outcome{Reason: domain.ReasonNoDiagram}
	}
	return Outcome{Fragment: fragment}
}

// RunBatch processes images sequentially and writes one output per image,
// falling back to the default fragment when no usable result was produced.
// Ledger writes outlive cancellation of ctx so an interrupted run keeps its
// summary.
func (s *Service) RunBatch(ctx context.Context, paths []string) domain.BatchResult {
	res := domain.BatchResult{RunID: newUUID()}
	total := len(paths)
	log.Info().Str("run_id", res.RunID).Int("images", total).Str("model", s.cfg.Model).Msg("batch started")
	warnDuplicateStems(res.RunID, paths)

	for i, path := range paths {
		idx := i + 1
		stem := imagefile.Stem(path)
		logger := log.With().Str("run_id", res.RunID).Int("index", idx).Int("total", total).Str("image", stem).Logger()

		out := s.ProcessImage(ctx, path)
		fragment := out.Fragment
		if !out.OK() {
			fragment = domain.DefaultFragment
		}
		s.persist(res.RunID, path, stem, fragment)

		res.Attempted++
		status := domain.StatusSucceeded
		switch {
		case out.OK():
			res.Succeeded++
			logger.Info().Msg("mermaid code generated")
		case out.Reason == domain.ReasonModerated:
			res.Failed++
			res.Moderated++
			status = domain.StatusFailed
			logger.Warn().Msg("content moderation rejected, default written")
		default:
			res.Failed++
			status = domain.StatusFailed
			logger.Warn().Str("reason", string(out.Reason)).Msg("generation failed, default written")
		}
		s.record(ctx, domain.ConversionRecord{
			RunID:    res.RunID,
			Image:    path,
			Stem:     stem,
			Status:   status,
			Reason:   out.Reason,
			Fragment: fragment,
			Model:    s.cfg.Model,
		})

		if idx%s.cfg.ProgressEvery == 0 || idx == total {
			log.Info().
				Str("run_id", res.RunID).
				Int("processed", idx).
				Int("total", total).
				Int("succeeded", res.Succeeded).
				Int("failed", res.Failed).
				Int("moderated", res.Moderated).
				Str("success_rate", formatRate(res.SuccessRate())).
				Msg("progress")
		}

		if idx < total {
			if err := s.sleep(ctx, s.cfg.RequestDelay); err != nil {
				log.Warn().Err(err).Str("run_id", res.RunID).Int("remaining", total-idx).Msg("batch interrupted")
				break
			}
		}
	}

	if s.ledger != nil {
		if err := s.ledger.SaveRunSummary(context.WithoutCancel(ctx), res); err != nil {
			log.Error().Err(err).Str("run_id", res.RunID).Msg("failed to store run summary")
		}
	}
	log.Info().
		Str("run_id", res.RunID).
		Int("succeeded", res.Succeeded).
		Int("failed", res.Failed).
		Int("moderated", res.Moderated).
		Msg("batch finished")
	return res
}

func (s *Service) persist(runID, path, stem, fragment string) {
	if s.writer == nil {
		return
	}
	written, err := s.writer.Write(stem, fragment)
	if err != nil {
		log.Error().Err(err).Str("run_id", runID).Str("image", path).Msg("failed to write result")
		return
	}
	log.Debug().Str("path", written).Msg("result saved")
}

func (s *Service) record(ctx context.Context, rec domain.ConversionRecord) {
	if s.ledger == nil {
		return
	}
	if err := s.ledger.SaveConversion(context.WithoutCancel(ctx), rec); err != nil {
		log.Error().Err(err).Str("run_id", rec.RunID).Str("image", rec.Stem).Msg("failed to record conversion")
	}
}

// warnDuplicateStems flags images whose outputs and ledger rows would collide,
// e.g. a.png and a.jpg. The later image overwrites the earlier one.
func warnDuplicateStems(runID string, paths []string) int {
	seen := make(map[string]string, len(paths))
	dups := 0
	for _, path := range paths {
		stem := imagefile.Stem(path)
		if prev, ok := seen[stem]; ok {
			dups++
			log.Warn().
				Str("run_id", runID).
				Str("stem", stem).
				Str("image", path).
				Str("previous", prev).
				Msg("duplicate image name, output will be overwritten")
			continue
		}
		seen[stem] = path
	}
	return dups
}

func formatRate(pct float64) string {
	return strconv.FormatFloat(pct, 'f', 1, 64) + "%"
}

var newUUID = func() string {
	return uuid.NewString()
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
