package stream

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

func sliceSource(chunks ...string) (Source, *int) {
	i := 0
	reads := 0
	return func(ctx context.Context) (string, error) {
		if i >= len(chunks) {
			return "", io.EOF
		}
		reads++
		c := chunks[i]
		i++
		return c, nil
	}, &reads
}

func passAll(ctx context.Context, content string) (string, error) { return content, nil }

func TestGatePassesChunksLazily(t *testing.T) {
	src, reads := sliceSource("a", "b", "c")
	checked := 0
	g := NewGate(src, func(ctx context.Context, content string) (string, error) {
		checked++
		return content, nil
	})

	first, err := g.Next(context.Background())
	if err != nil || first != "a" {
		t.Fatalf("Next = %q, %v", first, err)
	}
	if *reads != 1 || checked != 1 {
		t.Errorf("one pull must read and check exactly one chunk, reads=%d checked=%d", *reads, checked)
	}

	out, err := g.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if out != "bc" {
		t.Errorf("Collect = %q, want bc", out)
	}
}

func TestGateBlockTerminatesStream(t *testing.T) {
	src, reads := sliceSource("ok", "bad", "never")
	blocked := errors.New("blocked by security policy")
	g := NewGate(src, func(ctx context.Context, content string) (string, error) {
		if content == "bad" {
			return "", blocked
		}
		return content, nil
	})

	if c, err := g.Next(context.Background()); err != nil || c != "ok" {
		t.Fatalf("first chunk: %q, %v", c, err)
	}
	if _, err := g.Next(context.Background()); !errors.Is(err, blocked) {
		t.Fatalf("blocked chunk must surface the policy error, got %v", err)
	}
	// error is sticky and the source is never read past the block
	if _, err := g.Next(context.Background()); !errors.Is(err, blocked) {
		t.Error("gate must keep returning the block error")
	}
	if *reads != 2 {
		t.Errorf("source read %d chunks, want 2 (nothing past the block)", *reads)
	}
}

func TestGateSanitizesChunk(t *testing.T) {
	src, _ := sliceSource("my ssn is 123", "tail")
	g := NewGate(src, func(ctx context.Context, content string) (string, error) {
		if strings.Contains(content, "ssn") {
			return "[redacted]", nil
		}
		return content, nil
	})

	out, err := g.Collect(context.Background())
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if out != "[redacted]tail" {
		t.Errorf("Collect = %q", out)
	}
}

func TestGateSourceErrorPropagates(t *testing.T) {
	srcErr := errors.New("connection reset")
	g := NewGate(func(ctx context.Context) (string, error) {
		return "", srcErr
	}, passAll)

	if _, err := g.Next(context.Background()); !errors.Is(err, srcErr) {
		t.Fatalf("source error must propagate, got %v", err)
	}
	if _, err := g.Next(context.Background()); !errors.Is(err, srcErr) {
		t.Error("source error is sticky")
	}
}

func TestGateEOFIsSticky(t *testing.T) {
	src, _ := sliceSource()
	g := NewGate(src, passAll)
	for i := 0; i < 2; i++ {
		if _, err := g.Next(context.Background()); err != io.EOF {
			t.Fatalf("call %d: want io.EOF, got %v", i, err)
		}
	}
}

func TestCollectReturnsReleasedContentOnBlock(t *testing.T) {
	src, _ := sliceSource("released ", "bad")
	blocked := errors.New("blocked")
	g := NewGate(src, func(ctx context.Context, content string) (string, error) {
		if content == "bad" {
			return "", blocked
		}
		return content, nil
	})

	out, err := g.Collect(context.Background())
	if !errors.Is(err, blocked) {
		t.Fatalf("expected block error, got %v", err)
	}
	if out != "released " {
		t.Errorf("Collect must return already-released content, got %q", out)
	}
}
