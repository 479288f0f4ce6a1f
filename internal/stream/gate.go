// Package stream carries streaming responses through per-chunk policy
// decisions and manages reconnecting notification sessions.
package stream

import (
	"context"
	"io"
)

// Source yields the next chunk of a streaming response. It returns io.EOF
// when the stream ends normally.
type Source func(ctx context.Context) (string, error)

// ChunkFunc evaluates one chunk and returns the content the consumer may
// see. A blocked chunk returns an error; sanitization returns substituted
// content.
type ChunkFunc func(ctx context.Context, content string) (string, error)

// Gate is a lazy transform over a chunk source. Chunks are pulled and
// evaluated one at a time as the consumer asks for them; a block decision
// terminates the stream and no further chunks are read from the source.
type Gate struct {
	next  Source
	check ChunkFunc

	done bool
	err  error
}

// NewGate wraps source so that every chunk passes through check before it
// reaches the consumer.
func NewGate(source Source, check ChunkFunc) *Gate {
	return &Gate{next: source, check: check}
}

// Next returns the next permitted chunk. After a block it returns the same
// error on every call, and after io.EOF it keeps returning io.EOF. The
// underlying source is never read past the blocking chunk.
func (g *Gate) Next(ctx context.Context) (string, error) {
	if g.err != nil {
		return "", g.err
	}
	if g.done {
		return "", io.EOF
	}

	chunk, err := g.next(ctx)
	if err == io.EOF {
		g.done = true
		return "", io.EOF
	}
	if err != nil {
		g.err = err
		return "", err
	}

	out, err := g.check(ctx, chunk)
	if err != nil {
		g.err = err
		return "", err
	}
	return out, nil
}

// Collect drains the gate and concatenates every permitted chunk. It is
// the non-streaming view of a gated stream: the first block surfaces as
// the returned error alongside whatever content was already released.
func (g *Gate) Collect(ctx context.Context) (string, error) {
	var buf []byte
	for {
		chunk, err := g.Next(ctx)
		if err == io.EOF {
			return string(buf), nil
		}
		if err != nil {
			return string(buf), err
		}
		buf = append(buf, chunk...)
	}
}
