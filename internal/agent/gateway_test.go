package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prassanna-ravishankar/torale/internal/task"
)

func newTestGateway(t *testing.T, handler http.HandlerFunc) *HTTPGateway {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	g, err := NewHTTPGateway(Config{BaseURL: server.URL, Token: "test-token", Timeout: 2 * time.Second})
	require.NoError(t, err)
	return g
}

func TestCheckSuccess(t *testing.T) {
	var gotReq task.CheckRequest
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/check", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"answer":        "the product launched this morning",
			"condition_met": true,
			"evidence":      "press release dated today",
			"sources": []map[string]string{
				{"uri": "https://example.com/news", "title": "Launch news"},
			},
			"change_summary":        "launch date announced",
			"next_run_hint_seconds": 600,
		})
	})

	prior := []byte(`{"answer":"not yet"}`)
	result, err := g.Check(context.Background(), task.CheckRequest{
		Query:      "product launch date for the new model",
		Condition:  "the product has launched",
		PriorState: prior,
	})
	require.NoError(t, err)

	assert.Equal(t, "product launch date for the new model", gotReq.Query)
	assert.Equal(t, prior, []byte(gotReq.PriorState))

	assert.Equal(t, "the product launched this morning", result.Answer)
	assert.True(t, result.ConditionMet)
	assert.Len(t, result.Sources, 1)
	assert.Equal(t, "launch date announced", result.ChangeSummary)
	assert.Equal(t, 10*time.Minute, result.NextRunHint)
}

func TestCheckNoHint(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"answer":        "nothing new",
			"condition_met": false,
		})
	})

	result, err := g.Check(context.Background(), task.CheckRequest{Query: "q", Condition: "c"})
	require.NoError(t, err)
	assert.Zero(t, result.NextRunHint)
	assert.False(t, result.ConditionMet)
}

func TestCheckRateLimited(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := g.Check(context.Background(), task.CheckRequest{Query: "q", Condition: "c"})
	assert.ErrorIs(t, err, ErrRateLimited)
}

func TestCheckServerError(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := g.Check(context.Background(), task.CheckRequest{Query: "q", Condition: "c"})
	assert.ErrorIs(t, err, ErrTransport)
}

func TestCheckMalformedJSON(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("{not json"))
	})

	_, err := g.Check(context.Background(), task.CheckRequest{Query: "q", Condition: "c"})
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestCheckMissingFieldsIsMalformed(t *testing.T) {
	// A response without condition_met is never coerced into a
	// best-effort success
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"answer": "partial"})
	})

	_, err := g.Check(context.Background(), task.CheckRequest{Query: "q", Condition: "c"})
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestCheckTimeout(t *testing.T) {
	g := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	})
	g.timeout = 50 * time.Millisecond
	g.client.Timeout = 50 * time.Millisecond

	_, err := g.Check(context.Background(), task.CheckRequest{Query: "q", Condition: "c"})
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestNewHTTPGatewayRequiresURL(t *testing.T) {
	_, err := NewHTTPGateway(Config{})
	assert.Error(t, err)
}
