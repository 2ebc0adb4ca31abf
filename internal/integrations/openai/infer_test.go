package openai

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/require"

	"flowchart-mermaid/internal/domain"
)

type sleepRecorder struct {
	calls []time.Duration
	err   error
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.calls = append(s.calls, d)
	return s.err
}

// scriptedServer answers with the given handlers in order, repeating the last.
func scriptedServer(t *testing.T, steps ...http.HandlerFunc) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(atomic.AddInt32(&hits, 1)) - 1
		if n >= len(steps) {
			n = len(steps) - 1
		}
		steps[n](w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func status(code int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(code)
		_, _ = w.Write([]byte(body))
	}
}

func completion(content string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeCompletion(w, content)
	}
}

func TestInfer_SuccessFirstAttempt(t *testing.T) {
	srv, hits := scriptedServer(t, completion("flowchart TD\nA-->B"))
	rec := &sleepRecorder{}
	c := newTestClient(t, srv, WithSleep(rec.sleep))

	res := c.Infer(context.Background(), "m", imageMessages())
	require.True(t, res.OK())
	require.Equal(t, "flowchart TD\nA-->B", res.Text)
	require.Equal(t, 1, res.Attempts)
	require.EqualValues(t, 1, atomic.LoadInt32(hits))
	require.Empty(t, rec.calls)
}

func TestInfer_RetriesTransientFailuresThenSucceeds(t *testing.T) {
	srv, hits := scriptedServer(t,
		status(http.StatusInternalServerError, `{"error":"boom"}`),
		status(http.StatusServiceUnavailable, `{"error":"busy"}`),
		completion("ok"),
	)
	rec := &sleepRecorder{}
	c := newTestClient(t, srv, WithSleep(rec.sleep))

	res := c.Infer(context.Background(), "m", imageMessages())
	require.True(t, res.OK())
	require.Equal(t, "ok", res.Text)
	require.Equal(t, 3, res.Attempts)
	require.EqualValues(t, 3, atomic.LoadInt32(hits))
	require.Equal(t, []time.Duration{DefaultBackoff, DefaultBackoff}, rec.calls)
}

func TestInfer_ExhaustsAttempts(t *testing.T) {
	srv, hits := scriptedServer(t, status(http.StatusBadGateway, `upstream down`))
	rec := &sleepRecorder{}
	c := newTestClient(t, srv, WithSleep(rec.sleep), WithRetry(3, 5*time.Second))

	res := c.Infer(context.Background(), "m", imageMessages())
	require.False(t, res.OK())
	require.Equal(t, domain.ReasonRetriesExhausted, res.Reason)
	require.Empty(t, res.Text)
	require.Equal(t, 3, res.Attempts)
	require.EqualValues(t, 3, atomic.LoadInt32(hits))
	require.Len(t, rec.calls, 2, "no sleep after the final attempt")
}

func TestInfer_ModerationIsNotRetried(t *testing.T) {
	for name, body := range map[string]string{
		"phrase": `{"error":{"message":"内容不符合法律 法规要求"}}`,
		"code":   `{"error":{"code":"10040","message":"rejected"}}`,
	} {
		t.Run(name, func(t *testing.T) {
			srv, hits := scriptedServer(t, status(http.StatusBadRequest, body), completion("never"))
			rec := &sleepRecorder{}
			c := newTestClient(t, srv, WithSleep(rec.sleep))

			res := c.Infer(context.Background(), "m", imageMessages())
			require.Equal(t, domain.ReasonModerated, res.Reason)
			require.Equal(t, 1, res.Attempts)
			require.EqualValues(t, 1, atomic.LoadInt32(hits))
			require.Empty(t, rec.calls)
		})
	}
}

func TestInfer_MalformedIsNotRetried(t *testing.T) {
	srv, hits := scriptedServer(t, status(http.StatusOK, `{"choices":[]}`), completion("never"))
	rec := &sleepRecorder{}
	c := newTestClient(t, srv, WithSleep(rec.sleep))

	res := c.Infer(context.Background(), "m", imageMessages())
	require.Equal(t, domain.ReasonMalformed, res.Reason)
	require.EqualValues(t, 1, atomic.LoadInt32(hits))
	require.Empty(t, rec.calls)
}

func TestInfer_NetworkErrorIsRetried(t *testing.T) {
	rec := &sleepRecorder{}
	c, err := NewClient(StaticKey("sk"),
		WithBaseURL("http://127.0.0.1:1"),
		WithTimeout(100*time.Millisecond),
		WithSleep(rec.sleep),
	)
	require.NoError(t, err)

	res := c.Infer(context.Background(), "m", imageMessages())
	require.Equal(t, domain.ReasonRetriesExhausted, res.Reason)
	require.Equal(t, 3, res.Attempts)
	require.Len(t, rec.calls, 2)
}

func TestInfer_NotConfigured(t *testing.T) {
	rec := &sleepRecorder{}
	c, err := NewClient(StaticKey(""), WithSleep(rec.sleep))
	require.NoError(t, err)

	res := c.Infer(context.Background(), "m", imageMessages())
	require.Equal(t, domain.ReasonInvalidInput, res.Reason)
	require.Equal(t, 1, res.Attempts)
	require.Empty(t, rec.calls)
}

func TestInfer_CancelledDuringBackoff(t *testing.T) {
	srv, hits := scriptedServer(t, status(http.StatusInternalServerError, `boom`))
	rec := &sleepRecorder{err: context.Canceled}
	c := newTestClient(t, srv, WithSleep(rec.sleep))

	res := c.Infer(context.Background(), "m", imageMessages())
	require.Equal(t, domain.ReasonRetriesExhausted, res.Reason)
	require.Equal(t, 1, res.Attempts)
	require.EqualValues(t, 1, atomic.LoadInt32(hits))
}

func TestIsModerationRejection(t *testing.T) {
	require.True(t, IsModerationRejection(&HTTPStatusError{StatusCode: 400, Body: "code 10040"}))
	require.False(t, IsModerationRejection(&HTTPStatusError{StatusCode: 500, Body: "boom"}))
	require.False(t, IsModerationRejection(errors.New("10040")))
}

func TestSleepContext(t *testing.T) {
	require.NoError(t, sleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
}

func TestInfer_LogsStatusPerAttempt(t *testing.T) {
	var buf bytes.Buffer
	orig := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = orig })

	srv, _ := scriptedServer(t, status(http.StatusServiceUnavailable, `busy`))
	c := newTestClient(t, srv, WithSleep((&sleepRecorder{}).sleep), WithRetry(2, time.Second))

	res := c.Infer(context.Background(), "m", imageMessages())
	require.Equal(t, domain.ReasonRetriesExhausted, res.Reason)
	require.Contains(t, buf.String(), `"status":503`)
	require.Contains(t, buf.String(), `"body_len":4`)
	require.Contains(t, buf.String(), `"attempt":2`)
}
