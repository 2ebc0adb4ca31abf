package usecase

import (
	"context"
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"flowchart-mermaid/internal/domain"
	"flowchart-mermaid/internal/imagefile"
	"flowchart-mermaid/internal/output"
)

type ConvertInput struct {
	ImageBase64 string
	MIME        string
	RequestID   string
}

type ConvertOutput struct {
	Fragment string
	Markdown string
	Fallback bool
}

// Convert turns one inline image into a mermaid fragment. A response with no
// extractable diagram is not an error: the default fragment is returned with
// Fallback set.
func (s *Service) Convert(ctx context.Context, in ConvertInput) (ConvertOutput, error) {
	payload := strings.TrimSpace(in.ImageBase64)
	if i := strings.Index(payload, ";base64,"); strings.HasPrefix(payload, "data:") && i >= 0 {
		if in.MIME == "" {
			in.MIME = strings.TrimPrefix(payload[:i], "data:")
		}
		payload = payload[i+len(";base64,"):]
	}
	if payload == "" {
		return ConvertOutput{}, newError(ErrorInvalidInput, "empty_image", nil)
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return ConvertOutput{}, newError(ErrorInvalidInput, "invalid_base64", err)
	}
	if len(raw) == 0 {
		return ConvertOutput{}, newError(ErrorInvalidInput, "empty_image", nil)
	}
	if len(raw) > imagefile.MaxSize {
		return ConvertOutput{}, newError(ErrorInvalidInput, "image_too_large", nil)
	}
	mime := strings.ToLower(strings.TrimSpace(in.MIME))
	if mime == "" {
		mime = http.DetectContentType(raw)
	}
	if !imagefile.SupportedMIME(mime) {
		return ConvertOutput{}, newError(ErrorInvalidInput, "unsupported_mime", nil)
	}

	logger := log.With().Str("request_id", in.RequestID).Str("mime", mime).Int("size", len(raw)).Logger()
	res := s.llm.Infer(ctx, s.cfg.Model, buildImageMessages(s.prompt, mime, payload))
	if !res.OK() {
		logger.Warn().Str("reason", string(res.Reason)).Int("attempts", res.Attempts).Msg("inference produced no response")
		s.record(ctx, s.requestRecord(in.RequestID, domain.StatusFailed, res.Reason, ""))
		return ConvertOutput{}, reasonError(res.Reason)
	}

	fragment := s.extractor.Extract(res.Text)
	if strings.TrimSpace(fragment) == "" {
		fragment = domain.DefaultFragment
	}
	fallback := domain.IsDefault(fragment)
	if fallback {
		logger.Warn().Msg("no diagram could be extracted")
		s.record(ctx, s.requestRecord(in.RequestID, domain.StatusFailed, domain.ReasonNoDiagram, fragment))
	} else {
		s.record(ctx, s.requestRecord(in.RequestID, domain.StatusSucceeded, domain.ReasonNone, fragment))
	}
	return ConvertOutput{
		Fragment: fragment,
		Markdown: output.Render(fragment),
		Fallback: fallback,
	}, nil
}

func reasonError(reason domain.FailureReason) *Error {
	switch reason {
	case domain.ReasonModerated:
		return newError(ErrorContentRejected, "content_moderated", nil)
	case domain.ReasonMalformed:
		return newError(ErrorUpstream, "malformed_response", nil)
	case domain.ReasonRetriesExhausted:
		return newError(ErrorUpstream, "retries_exhausted", nil)
	default:
		return newError(ErrorInternal, "inference_not_configured", nil)
	}
}

// requestRecord files a single conversion under its request id.
func (s *Service) requestRecord(requestID, status string, reason domain.FailureReason, fragment string) domain.ConversionRecord {
	if requestID == "" {
		requestID = newUUID()
	}
	return domain.ConversionRecord{
		RunID:    requestID,
		Image:    "inline",
		Stem:     "inline",
		Status:   status,
		Reason:   reason,
		Fragment: fragment,
		Model:    s.cfg.Model,
	}
}
