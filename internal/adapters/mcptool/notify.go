package mcptool

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cordonlabs/cordon/internal/stream"
)

// NotificationSession maintains the server notification stream of a
// streamable HTTP MCP endpoint. Servers that answer the standing GET with
// 405 or 501 do not offer notifications; the session records that and
// stops without error.
func NotificationSession(client *http.Client, endpoint string, handle func(event string), maxReconnects int, delay time.Duration, logger *slog.Logger) *stream.Session {
	if client == nil {
		client = http.DefaultClient
	}

	dial := func(ctx context.Context) (io.ReadCloser, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "text/event-stream")
		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			resp.Body.Close()
			return nil, &stream.StatusError{Code: resp.StatusCode}
		}
		return resp.Body, nil
	}

	consume := func(ctx context.Context, r io.Reader) error {
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			line := scanner.Text()
			if strings.HasPrefix(line, "data: ") {
				handle(strings.TrimPrefix(line, "data: "))
			}
		}
		return scanner.Err()
	}

	return stream.NewSession(dial, consume, maxReconnects, delay, logger)
}
