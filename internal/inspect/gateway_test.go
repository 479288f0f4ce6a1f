package inspect

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cordonlabs/cordon/internal/config"
	"github.com/cordonlabs/cordon/internal/envelope"
)

func testRetry(total int) config.RetryConfig {
	return config.RetryConfig{
		Total:       total,
		Backoff:     time.Millisecond,
		Multiplier:  2.0,
		MaxDelay:    10 * time.Millisecond,
		StatusCodes: []int{429, 500, 502, 503, 504},
	}
}

func noSleepCaller(total int) (*Caller, *int) {
	c := NewCaller(testRetry(total), nil)
	slept := 0
	c.sleep = func(context.Context, time.Duration) error { slept++; return nil }
	return c, &slept
}

func TestDoRetriesThenSucceeds(t *testing.T) {
	statuses := []int{500, 500, 200}
	var served int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(statuses[served])
		if statuses[served] == 200 {
			w.Write([]byte(`{"ok":true}`))
		}
		served++
	}))
	defer srv.Close()

	c, _ := noSleepCaller(3)
	resp, err := c.Do(context.Background(), func(ctx context.Context) (*http.Response, error) {
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
		return http.DefaultClient.Do(req)
	})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	defer resp.Body.Close()

	if served != 3 {
		t.Errorf("expected 3 attempts (2 retries), got %d", served)
	}
	body, _ := io.ReadAll(resp.Body)
	d := DecisionFromStatus(resp.StatusCode, body)
	if d.Verdict != envelope.VerdictAllow {
		t.Errorf("2xx gateway response must map to allow, got %s", d.Verdict)
	}
}

func TestDoExhaustsRetryBudget(t *testing.T) {
	var served int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		served++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, _ := noSleepCaller(3)
	_, err := c.Do(context.Background(), func(ctx context.Context) (*http.Response, error) {
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
		return http.DefaultClient.Do(req)
	})
	if !errors.Is(err, ErrServiceUnreachable) {
		t.Fatalf("expected ErrServiceUnreachable, got %v", err)
	}
	if served != 3 {
		t.Errorf("expected exactly 3 total attempts, got %d", served)
	}
}

func TestDoDoesNotRetryNonRetryableStatus(t *testing.T) {
	var served int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		served++
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"error":{"message":"blocked","classifications":["SECURITY_VIOLATION"]}}`))
	}))
	defer srv.Close()

	c, _ := noSleepCaller(3)
	resp, err := c.Do(context.Background(), func(ctx context.Context) (*http.Response, error) {
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
		return http.DefaultClient.Do(req)
	})
	if err != nil {
		t.Fatalf("4xx is a final answer, not a retry: %v", err)
	}
	defer resp.Body.Close()
	if served != 1 {
		t.Errorf("expected a single attempt, got %d", served)
	}

	body, _ := io.ReadAll(resp.Body)
	d := DecisionFromStatus(resp.StatusCode, body)
	if d.Verdict != envelope.VerdictBlock {
		t.Errorf("4xx must map to block, got %s", d.Verdict)
	}
	if len(d.Classifications) != 1 || d.Classifications[0] != "SECURITY_VIOLATION" {
		t.Errorf("classifications not derived from body: %v", d.Classifications)
	}
}

func TestDoRetriesTransportErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // every attempt fails to connect

	c, _ := noSleepCaller(2)
	var attempts int
	_, err := c.Do(context.Background(), func(ctx context.Context) (*http.Response, error) {
		attempts++
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
		return http.DefaultClient.Do(req)
	})
	if !errors.Is(err, ErrServiceUnreachable) {
		t.Fatalf("expected ErrServiceUnreachable, got %v", err)
	}
	if attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", attempts)
	}
}

func TestDoBackoffGrowsAndCaps(t *testing.T) {
	var delays []time.Duration
	c := NewCaller(config.RetryConfig{
		Total:       5,
		Backoff:     100 * time.Millisecond,
		Multiplier:  2.0,
		MaxDelay:    300 * time.Millisecond,
		StatusCodes: []int{500},
	}, nil)
	c.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}

	_, err := c.Do(context.Background(), func(ctx context.Context) (*http.Response, error) {
		return nil, errors.New("down")
	})
	if !errors.Is(err, ErrServiceUnreachable) {
		t.Fatalf("expected unreachable, got %v", err)
	}

	want := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		300 * time.Millisecond, // capped
		300 * time.Millisecond,
	}
	if len(delays) != len(want) {
		t.Fatalf("delays = %v, want %v", delays, want)
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Errorf("delay[%d] = %v, want %v", i, delays[i], want[i])
		}
	}
}

func TestDoAbortsBackoffOnCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := NewCaller(config.RetryConfig{
		Total:      3,
		Backoff:    time.Hour, // must never be waited out
		Multiplier: 2.0,
	}, nil)

	attempts := 0
	start := time.Now()
	_, err := c.Do(ctx, func(ctx context.Context) (*http.Response, error) {
		attempts++
		cancel()
		return nil, errors.New("down")
	})
	if !errors.Is(err, ErrServiceUnreachable) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected unreachable wrapping context.Canceled, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("cancelled backoff must return promptly, took %v", elapsed)
	}
}

func TestDecisionFromStatusUnparsableBody(t *testing.T) {
	d := DecisionFromStatus(422, []byte("not json"))
	if d.Verdict != envelope.VerdictBlock {
		t.Errorf("4xx with opaque body still blocks, got %s", d.Verdict)
	}
	if len(d.Classifications) != 0 {
		t.Errorf("no classifications derivable, got %v", d.Classifications)
	}
}
