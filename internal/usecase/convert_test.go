package usecase

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"flowchart-mermaid/internal/domain"
	"flowchart-mermaid/internal/imagefile"
	"flowchart-mermaid/internal/integrations/openai"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

func pngBase64() string {
	return base64.StdEncoding.EncodeToString(pngHeader)
}

func requireUseCaseError(t *testing.T, err error, code ErrorCode, reason string) {
	t.Helper()
	var ucErr *Error
	require.True(t, errors.As(err, &ucErr))
	require.Equal(t, code, ucErr.Code)
	require.Equal(t, reason, ucErr.Reason)
}

func TestConvert_HappyPath(t *testing.T) {
	f := newFixture(t, ok(fencedReply))

	out, err := f.svc.Convert(context.Background(), ConvertInput{ImageBase64: pngBase64(), MIME: "image/png", RequestID: "req-1"})
	require.NoError(t, err)
	require.False(t, out.Fallback)
	require.Equal(t, "flowchart LR\n    A[load] --> B[save]", out.Fragment)
	require.Equal(t, "```mermaid\nflowchart LR\n    A[load] --> B[save]\n```\n", out.Markdown)

	require.Len(t, f.llm.captured, 1)
	require.Equal(t, "data:image/png;base64,"+pngBase64(), f.llm.captured[0][0].Content[1].ImageURL.URL)
	require.Empty(t, f.writer.written)
	require.Len(t, f.ledger.records, 1)
	require.Equal(t, "req-1", f.ledger.records[0].RunID)
	require.Equal(t, domain.StatusSucceeded, f.ledger.records[0].Status)
	require.Equal(t, out.Fragment, f.ledger.records[0].Fragment)
}

func TestConvert_SniffsMIMEWhenMissing(t *testing.T) {
	f := newFixture(t, ok(fencedReply))

	_, err := f.svc.Convert(context.Background(), ConvertInput{ImageBase64: pngBase64()})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(f.llm.captured[0][0].Content[1].ImageURL.URL, "data:image/png;base64,"))
}

func TestConvert_AcceptsDataURL(t *testing.T) {
	f := newFixture(t, ok(fencedReply))

	_, err := f.svc.Convert(context.Background(), ConvertInput{ImageBase64: "data:image/jpeg;base64," + pngBase64()})
	require.NoError(t, err)
	require.Equal(t, "data:image/jpeg;base64,"+pngBase64(), f.llm.captured[0][0].Content[1].ImageURL.URL)
}

func TestConvert_FallbackIsNotAnError(t *testing.T) {
	f := newFixture(t, ok("Sorry, the image could not be read."))

	out, err := f.svc.Convert(context.Background(), ConvertInput{ImageBase64: pngBase64(), MIME: "image/png"})
	require.NoError(t, err)
	require.True(t, out.Fallback)
	require.Equal(t, domain.DefaultFragment, out.Fragment)
	require.Len(t, f.ledger.records, 1)
	require.Equal(t, domain.ReasonNoDiagram, f.ledger.records[0].Reason)
}

func TestConvert_ValidatesInput(t *testing.T) {
	tooLarge := base64.StdEncoding.EncodeToString(make([]byte, imagefile.MaxSize+1))
	cases := []struct {
		name   string
		in     ConvertInput
		reason string
	}{
		{name: "empty", in: ConvertInput{ImageBase64: "  "}, reason: "empty_image"},
		{name: "empty data url", in: ConvertInput{ImageBase64: "data:image/png;base64,"}, reason: "empty_image"},
		{name: "not base64", in: ConvertInput{ImageBase64: "%%%"}, reason: "invalid_base64"},
		{name: "too large", in: ConvertInput{ImageBase64: tooLarge, MIME: "image/png"}, reason: "image_too_large"},
		{name: "unsupported mime", in: ConvertInput{ImageBase64: pngBase64(), MIME: "application/pdf"}, reason: "unsupported_mime"},
		{name: "sniffed text", in: ConvertInput{ImageBase64: base64.StdEncoding.EncodeToString([]byte("hello"))}, reason: "unsupported_mime"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, ok(fencedReply))
			_, err := f.svc.Convert(context.Background(), tc.in)
			requireUseCaseError(t, err, ErrorInvalidInput, tc.reason)
			require.Empty(t, f.llm.captured)
			require.Empty(t, f.ledger.records)
		})
	}
}

func TestConvert_MapsInferenceFailures(t *testing.T) {
	cases := []struct {
		reason domain.FailureReason
		code   ErrorCode
		detail string
	}{
		{reason: domain.ReasonModerated, code: ErrorContentRejected, detail: "content_moderated"},
		{reason: domain.ReasonMalformed, code: ErrorUpstream, detail: "malformed_response"},
		{reason: domain.ReasonRetriesExhausted, code: ErrorUpstream, detail: "retries_exhausted"},
		{reason: domain.ReasonInvalidInput, code: ErrorInternal, detail: "inference_not_configured"},
	}
	for _, tc := range cases {
		t.Run(string(tc.reason), func(t *testing.T) {
			f := newFixture(t, failed(tc.reason))
			_, err := f.svc.Convert(context.Background(), ConvertInput{ImageBase64: pngBase64(), MIME: "image/png"})
			requireUseCaseError(t, err, tc.code, tc.detail)
			require.Len(t, f.ledger.records, 1)
			require.Equal(t, tc.reason, f.ledger.records[0].Reason)
		})
	}
}

func TestError_Format(t *testing.T) {
	err := newError(ErrorUpstream, "retries_exhausted", errors.New("boom"))
	require.Equal(t, "usecase: UPSTREAM_ERROR (retries_exhausted): boom", err.Error())
	require.EqualError(t, errors.Unwrap(err), "boom")

	require.Equal(t, "usecase: INVALID_INPUT (empty_image)", newError(ErrorInvalidInput, "empty_image", nil).Error())
}

func TestConvert_EmptyFenceFallsBack(t *testing.T) {
	f := newFixture(t, ok("```mermaid\n   \n```"))

	out, err := f.svc.Convert(context.Background(), ConvertInput{ImageBase64: pngBase64(), MIME: "image/png"})
	require.NoError(t, err)
	require.True(t, out.Fallback)
	require.Equal(t, domain.DefaultFragment, out.Fragment)
	require.Equal(t, "```mermaid\n"+domain.DefaultFragment+"\n```\n", out.Markdown)
	require.Equal(t, domain.ReasonNoDiagram, f.ledger.records[0].Reason)
}

type emptyExtractor struct{}

func (emptyExtractor) Extract(string) string { return "" }

func TestConvert_EmptyExtractionFallsBack(t *testing.T) {
	svc, err := NewService(Config{Model: "m"}, Dependencies{
		Encoder:   &mockEncoder{},
		LLM:       &mockLLM{results: []openai.Result{ok(fencedReply)}},
		Extractor: emptyExtractor{},
	})
	require.NoError(t, err)

	out, err := svc.Convert(context.Background(), ConvertInput{ImageBase64: pngBase64(), MIME: "image/png"})
	require.NoError(t, err)
	require.True(t, out.Fallback)
	require.Equal(t, domain.DefaultFragment, out.Fragment)

	require.Equal(t, domain.ReasonNoDiagram, svc.ProcessImage(context.Background(), "in/a.png").Reason)
}
