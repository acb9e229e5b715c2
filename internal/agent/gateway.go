// Package agent adapts the external reasoning/search collaborator. The
// gateway is stateless and carries no business logic: a call either
// returns a complete result or fails with a typed error, and retry policy
// belongs to the caller.
package agent

import (
	"context"
	"errors"

	"github.com/prassanna-ravishankar/torale/internal/task"
)

// Typed gateway errors. A malformed response is never coerced into a
// best-effort success.
var (
	ErrTimeout     = errors.New("agent call timed out")
	ErrRateLimited = errors.New("agent rate limited the request")
	ErrMalformed   = errors.New("agent returned a malformed response")
	ErrTransport   = errors.New("agent transport error")
)

// Gateway performs one check against the external reasoning service
type Gateway interface {
	Check(ctx context.Context, req task.CheckRequest) (*task.CheckResult, error)
}
