package inspect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cordonlabs/cordon/internal/config"
	"github.com/cordonlabs/cordon/internal/envelope"
)

// ErrServiceUnreachable marks a gateway call that exhausted its retry
// budget on retryable failures. Callers resolve it through the surface's
// fail-open policy; it never reaches agent code.
var ErrServiceUnreachable = errors.New("inspect: gateway unreachable after retries")

// gatewayErrorBody is the structured error the gateway returns on a block.
type gatewayErrorBody struct {
	Error struct {
		Message         string   `json:"message"`
		Classifications []string `json:"classifications"`
	} `json:"error"`
}

// DecisionFromStatus derives a Decision from an inspecting gateway's HTTP
// response status. 2xx means the gateway inspected and forwarded the call
// (allow with passthrough content); 4xx means it blocked, with
// classifications parsed from the structured error body.
//
// Retryable 5xx statuses are not mapped here; Caller.Do retries them and
// surfaces ErrServiceUnreachable when the budget is exhausted.
func DecisionFromStatus(status int, body []byte) envelope.Decision {
	if status >= 200 && status < 300 {
		return envelope.Allow()
	}

	var geb gatewayErrorBody
	if err := json.Unmarshal(body, &geb); err == nil && len(geb.Error.Classifications) > 0 {
		return envelope.Block(geb.Error.Classifications...)
	}
	return envelope.Block()
}

// Caller executes gateway calls with bounded exponential retry. Retries are
// transparent to transport adapters; only the final response (or
// ErrServiceUnreachable) is surfaced.
type Caller struct {
	retry   config.RetryConfig
	logger  *slog.Logger
	onRetry func()

	// sleep is replaceable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// OnRetry registers a hook invoked before each retried attempt.
func (c *Caller) OnRetry(fn func()) { c.onRetry = fn }

// NewCaller creates a gateway caller with the given retry policy.
func NewCaller(retry config.RetryConfig, logger *slog.Logger) *Caller {
	if logger == nil {
		logger = slog.Default()
	}
	if retry.Total < 1 {
		retry.Total = 1
	}
	if retry.Multiplier < 1 {
		retry.Multiplier = 2.0
	}
	return &Caller{retry: retry, logger: logger, sleep: sleepBackoff}
}

// sleepBackoff waits out one backoff delay, aborting when ctx ends.
func sleepBackoff(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// AttemptFunc issues one gateway attempt. Each attempt gets its own
// context; timeouts apply per attempt, not cumulatively.
type AttemptFunc func(ctx context.Context) (*http.Response, error)

// Do runs the attempt up to the configured total, retrying transport
// errors and retryable status codes with exponential backoff. On success
// the response body is owned by the caller. Retried responses are closed
// here.
func (c *Caller) Do(ctx context.Context, attempt AttemptFunc) (*http.Response, error) {
	delay := c.retry.Backoff
	var lastErr error

	for n := 0; n < c.retry.Total; n++ {
		if n > 0 {
			if delay > 0 {
				if err := c.sleep(ctx, delay); err != nil {
					return nil, fmt.Errorf("%w: %w", ErrServiceUnreachable, err)
				}
				delay = time.Duration(float64(delay) * c.retry.Multiplier)
				if c.retry.MaxDelay > 0 && delay > c.retry.MaxDelay {
					delay = c.retry.MaxDelay
				}
			}
			if c.onRetry != nil {
				c.onRetry()
			}
			c.logger.Debug("inspect: retrying gateway call", "attempt", n+1, "total", c.retry.Total)
		}

		resp, err := attempt(ctx)
		if err != nil {
			lastErr = err
			continue
		}
		if c.retry.Retryable(resp.StatusCode) {
			lastErr = fmt.Errorf("gateway status %d", resp.StatusCode)
			resp.Body.Close()
			continue
		}
		return resp, nil
	}

	if lastErr != nil {
		return nil, fmt.Errorf("%w (after %d attempts): %w", ErrServiceUnreachable, c.retry.Total, lastErr)
	}
	return nil, ErrServiceUnreachable
}
