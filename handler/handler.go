package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"flowchart-mermaid/internal/usecase"
)

const correlationHeader = "X-Correlation-Id"

type ConvertUseCase interface {
	Convert(ctx context.Context, in usecase.ConvertInput) (usecase.ConvertOutput, error)
}

type Handler struct {
	uc ConvertUseCase
}

type convertRequest struct {
	ImageBase64 string `json:"image_base64"`
	MIME        string `json:"mime"`
}

type convertResponse struct {
	Mermaid  string `json:"mermaid"`
	Markdown string `json:"markdown"`
	Fallback bool   `json:"fallback"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

func NewHandler(uc ConvertUseCase) (*Handler, error) {
	if uc == nil {
		return nil, errors.New("handler: use case must not be nil")
	}
	return &Handler{uc: uc}, nil
}

// Handle serves POST /convert behind API Gateway.
func (h *Handler) Handle(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	correlationID := headerValue(event.Headers, correlationHeader)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	logger := log.With().Str("correlation_id", correlationID).Str("path", event.Path).Logger()

	var req convertRequest
	if err := json.Unmarshal([]byte(event.Body), &req); err != nil {
		logger.Warn().Err(err).Msg("invalid request body")
		return jsonResponse(http.StatusBadRequest, correlationID, errorResponse{Error: string(usecase.ErrorInvalidInput), Reason: "invalid_body"}), nil
	}

	out, err := h.uc.Convert(ctx, usecase.ConvertInput{
		ImageBase64: req.ImageBase64,
		MIME:        req.MIME,
		RequestID:   correlationID,
	})
	if err != nil {
		status, body := mapError(err)
		logger.Warn().Err(err).Int("status", status).Msg("conversion failed")
		return jsonResponse(status, correlationID, body), nil
	}

	logger.Info().Bool("fallback", out.Fallback).Msg("conversion complete")
	return jsonResponse(http.StatusOK, correlationID, convertResponse{
		Mermaid:  out.Fragment,
		Markdown: out.Markdown,
		Fallback: out.Fallback,
	}), nil
}

func mapError(err error) (int, errorResponse) {
	var ucErr *usecase.Error
	if !errors.As(err, &ucErr) {
		return http.StatusInternalServerError, errorResponse{Error: string(usecase.ErrorInternal)}
	}
	body := errorResponse{Error: string(ucErr.Code), Reason: ucErr.Reason}
	switch ucErr.Code {
	case usecase.ErrorInvalidInput:
		return http.StatusBadRequest, body
	case usecase.ErrorContentRejected:
		return http.StatusUnprocessableEntity, body
	case usecase.ErrorUpstream:
		return http.StatusBadGateway, body
	default:
		return http.StatusInternalServerError, errorResponse{Error: string(usecase.ErrorInternal), Reason: ucErr.Reason}
	}
}

func headerValue(headers map[string]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func jsonResponse(status int, correlationID string, body any) events.APIGatewayProxyResponse {
	payload, err := json.Marshal(body)
	if err != nil {
		status = http.StatusInternalServerError
		payload = []byte(`{"error":"INTERNAL_ERROR"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":    "application/json",
			correlationHeader: correlationID,
		},
		Body: string(payload),
	}
}
