package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Session states.
const (
	StateIdle        = "idle"
	StateConnected   = "connected"
	StateUnsupported = "unsupported"
	StateClosed      = "closed"
)

// StatusError reports an HTTP status returned while dialing a stream.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("stream: dial returned status %d", e.Code)
}

// Unsupported reports whether the status means the server does not accept
// reconnection at all, as opposed to a transient failure.
func (e *StatusError) Unsupported() bool {
	return e.Code == http.StatusMethodNotAllowed || e.Code == http.StatusNotImplemented
}

// DialFunc opens one connection attempt and returns its body.
type DialFunc func(ctx context.Context) (io.ReadCloser, error)

// HandleFunc consumes an open connection until it ends. A nil return means
// the stream completed cleanly; an error triggers a reconnect attempt.
type HandleFunc func(ctx context.Context, r io.Reader) error

// Session maintains a long-lived notification stream, reconnecting after
// transient disconnects. A server that answers reconnection with 405 or
// 501 is permanently marked unsupported: that is an expected environment,
// not a fault, so it is logged at debug level and never retried.
type Session struct {
	dial   DialFunc
	handle HandleFunc
	logger *slog.Logger

	maxReconnects int
	delay         time.Duration
	sleep         func(time.Duration)
	onEvent       func(event string)

	state string
}

// OnEvent registers a hook invoked with "retry" before each reconnect
// attempt and with the terminal outcome ("unsupported", "exhausted") when
// the session gives up.
func (s *Session) OnEvent(fn func(event string)) { s.onEvent = fn }

func (s *Session) event(name string) {
	if s.onEvent != nil {
		s.onEvent(name)
	}
}

// NewSession builds a session over dial/handle. maxReconnects bounds the
// consecutive failed attempts before the session gives up.
func NewSession(dial DialFunc, handle HandleFunc, maxReconnects int, delay time.Duration, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		dial:          dial,
		handle:        handle,
		logger:        logger,
		maxReconnects: maxReconnects,
		delay:         delay,
		sleep:         func(d time.Duration) { time.Sleep(d) },
		state:         StateIdle,
	}
}

// State returns the session's current lifecycle state.
func (s *Session) State() string { return s.state }

// Run drives the connect/consume/reconnect loop until the stream completes,
// reconnection is unsupported, or the reconnect budget is exhausted. The
// last two are terminal but non-fatal: Run returns nil and the state
// records what happened. Only context cancellation returns an error.
func (s *Session) Run(ctx context.Context) error {
	failures := 0
	for {
		if err := ctx.Err(); err != nil {
			s.state = StateClosed
			return err
		}

		rc, err := s.dial(ctx)
		if err != nil {
			var se *StatusError
			if errors.As(err, &se) && se.Unsupported() {
				s.state = StateUnsupported
				s.event("unsupported")
				s.logger.Debug("stream: server does not support reconnection", "status", se.Code)
				return nil
			}
			if ctx.Err() != nil {
				s.state = StateClosed
				return ctx.Err()
			}
			failures++
			if failures > s.maxReconnects {
				s.state = StateClosed
				s.event("exhausted")
				s.logger.Info("stream: reconnect attempts exhausted", "attempts", failures-1)
				return nil
			}
			s.event("retry")
			s.logger.Debug("stream: dial failed, will retry", "attempt", failures, "error", err)
			s.sleep(s.delay)
			continue
		}

		s.state = StateConnected
		failures = 0
		err = s.handle(ctx, rc)
		rc.Close()

		if err == nil {
			s.state = StateClosed
			return nil
		}
		if ctx.Err() != nil {
			s.state = StateClosed
			return ctx.Err()
		}

		failures++
		if failures > s.maxReconnects {
			s.state = StateClosed
			s.event("exhausted")
			s.logger.Info("stream: reconnect attempts exhausted", "attempts", failures-1)
			return nil
		}
		s.event("retry")
		s.logger.Debug("stream: connection lost, reconnecting", "attempt", failures, "error", err)
		s.sleep(s.delay)
	}
}
