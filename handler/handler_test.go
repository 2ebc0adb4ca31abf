package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/require"

	"flowchart-mermaid/internal/usecase"
)

type stubUseCase struct {
	out usecase.ConvertOutput
	err error
	in  usecase.ConvertInput
}

func (s *stubUseCase) Convert(_ context.Context, in usecase.ConvertInput) (usecase.ConvertOutput, error) {
	s.in = in
	return s.out, s.err
}

func makeEvent(body string) events.APIGatewayProxyRequest {
	return events.APIGatewayProxyRequest{
		HTTPMethod: http.MethodPost,
		Path:       "/convert",
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       body,
	}
}

func parseBody[T any](t *testing.T, body string) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(body), &v))
	return v
}

func TestNewHandler_ValidatesDependency(t *testing.T) {
	_, err := NewHandler(nil)
	require.Error(t, err)
}

func TestHandle_HappyPath(t *testing.T) {
	uc := &stubUseCase{out: usecase.ConvertOutput{
		Fragment: "flowchart TD\n    A --> B",
		Markdown: "```mermaid\nflowchart TD\n    A --> B\n```\n",
	}}
	h, err := NewHandler(uc)
	require.NoError(t, err)

	resp, err := h.Handle(context.Background(), makeEvent(`{"image_base64":"iVBORw0K","mime":"image/png"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "iVBORw0K", uc.in.ImageBase64)
	require.Equal(t, "image/png", uc.in.MIME)
	require.NotEmpty(t, uc.in.RequestID)

	out := parseBody[convertResponse](t, resp.Body)
	require.Equal(t, "flowchart TD\n    A --> B", out.Mermaid)
	require.Equal(t, uc.out.Markdown, out.Markdown)
	require.False(t, out.Fallback)
	require.Equal(t, uc.in.RequestID, resp.Headers["X-Correlation-Id"])
	require.Equal(t, "application/json", resp.Headers["Content-Type"])
}

func TestHandle_ReportsFallback(t *testing.T) {
	uc := &stubUseCase{out: usecase.ConvertOutput{Fragment: "flowchart TD\n    A[start] --> B[end]", Fallback: true}}
	h, err := NewHandler(uc)
	require.NoError(t, err)

	resp, err := h.Handle(context.Background(), makeEvent(`{"image_base64":"iVBORw0K"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, parseBody[convertResponse](t, resp.Body).Fallback)
}

func TestHandle_InvalidBody(t *testing.T) {
	uc := &stubUseCase{}
	h, err := NewHandler(uc)
	require.NoError(t, err)

	resp, err := h.Handle(context.Background(), makeEvent(`not-json`))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	out := parseBody[errorResponse](t, resp.Body)
	require.Equal(t, string(usecase.ErrorInvalidInput), out.Error)
	require.Equal(t, "invalid_body", out.Reason)
}

func TestHandle_MapsUseCaseErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "invalid input", err: &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "empty_image"}, status: http.StatusBadRequest, code: string(usecase.ErrorInvalidInput)},
		{name: "moderated", err: &usecase.Error{Code: usecase.ErrorContentRejected, Reason: "content_moderated"}, status: http.StatusUnprocessableEntity, code: string(usecase.ErrorContentRejected)},
		{name: "upstream", err: &usecase.Error{Code: usecase.ErrorUpstream, Reason: "retries_exhausted"}, status: http.StatusBadGateway, code: string(usecase.ErrorUpstream)},
		{name: "internal", err: &usecase.Error{Code: usecase.ErrorInternal, Reason: "inference_not_configured"}, status: http.StatusInternalServerError, code: string(usecase.ErrorInternal)},
		{name: "unexpected", err: errors.New("boom"), status: http.StatusInternalServerError, code: string(usecase.ErrorInternal)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			uc := &stubUseCase{err: tc.err}
			h, err := NewHandler(uc)
			require.NoError(t, err)

			resp, err := h.Handle(context.Background(), makeEvent(`{"image_base64":"iVBORw0K"}`))
			require.NoError(t, err)
			require.Equal(t, tc.status, resp.StatusCode)

			out := parseBody[errorResponse](t, resp.Body)
			require.Equal(t, tc.code, out.Error)
		})
	}
}

func TestHandle_UsesProvidedCorrelationID_CaseInsensitive(t *testing.T) {
	uc := &stubUseCase{out: usecase.ConvertOutput{Fragment: "flowchart TD\n    A --> B"}}
	h, err := NewHandler(uc)
	require.NoError(t, err)

	event := makeEvent(`{"image_base64":"iVBORw0K"}`)
	event.Headers["x-correlation-id"] = "corr-123"
	resp, err := h.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Equal(t, "corr-123", resp.Headers["X-Correlation-Id"])
	require.Equal(t, "corr-123", uc.in.RequestID)
}
