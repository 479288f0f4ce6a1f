package audit

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestFollowReportsNewRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "decisions.jsonl")
	l, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	l.Append(record("op-before", "llm_chat", "allow"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan Record, 4)
	done := make(chan error, 1)
	go func() {
		done <- Follow(ctx, path, func(r Record) { got <- r })
	}()

	// give the watcher time to register before appending
	time.Sleep(100 * time.Millisecond)
	l.Append(record("op-after", "mcp_tool", "block"))

	select {
	case r := <-got:
		if r.OperationID != "op-after" {
			t.Errorf("operation = %s, want op-after (pre-existing records skipped)", r.OperationID)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no record reported within 5s")
	}

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Follow returned %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Follow did not stop on cancel")
	}
}
