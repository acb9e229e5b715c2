package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prassanna-ravishankar/torale/internal/task"
)

// Config holds HTTP gateway settings
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// HTTPGateway calls the reasoning service over JSON/HTTP
type HTTPGateway struct {
	baseURL string
	token   string
	timeout time.Duration
	client  *http.Client
}

// checkResponse is the wire shape of a successful agent response.
// Pointer fields distinguish missing from zero-valued.
type checkResponse struct {
	Answer        *string       `json:"answer"`
	ConditionMet  *bool         `json:"condition_met"`
	Evidence      string        `json:"evidence"`
	Sources       []task.Source `json:"sources"`
	ChangeSummary string        `json:"change_summary"`
	NextRunHintS  float64       `json:"next_run_hint_seconds"`
}

// NewHTTPGateway creates a gateway client
func NewHTTPGateway(cfg Config) (*HTTPGateway, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("agent base URL is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}

	return &HTTPGateway{
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
		timeout: cfg.Timeout,
		client:  &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Check performs one check call. The context bounds the call; on deadline
// the error is ErrTimeout so the caller can record a timeout failure.
func (g *HTTPGateway) Check(ctx context.Context, req task.CheckRequest) (*task.CheckResult, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal check request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/check", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if g.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.token)
	}

	resp, err := g.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %v", ErrTimeout, g.timeout)
		}
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w (status %d)", ErrRateLimited, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: unexpected status %d", ErrTransport, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	var wire checkResponse
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if wire.Answer == nil || *wire.Answer == "" || wire.ConditionMet == nil {
		return nil, fmt.Errorf("%w: missing answer or condition_met", ErrMalformed)
	}

	result := &task.CheckResult{
		Answer:        *wire.Answer,
		ConditionMet:  *wire.ConditionMet,
		Evidence:      wire.Evidence,
		Sources:       wire.Sources,
		ChangeSummary: wire.ChangeSummary,
	}
	if wire.NextRunHintS > 0 {
		result.NextRunHint = time.Duration(wire.NextRunHintS * float64(time.Second))
	}
	return result, nil
}
