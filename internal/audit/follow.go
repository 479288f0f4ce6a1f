package audit

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/fsnotify/fsnotify"
)

// Follow tails the decision log, invoking fn for every record appended
// after the call starts. It blocks until ctx is cancelled.
func Follow(ctx context.Context, path string, fn func(Record)) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("audit: open log for follow: %w", err)
	}
	defer f.Close()

	// Start at the end: only new records are reported.
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("audit: seek: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("audit: create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return fmt.Errorf("audit: watch log: %w", err)
	}

	t := &tail{reader: bufio.NewReader(f), fn: fn}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Write) {
				continue
			}
			t.drain()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("audit: watch: %w", err)
		}
	}
}

// tail accumulates partial lines across write events: Sync can land
// mid-record, so a line is only parsed once its newline arrives.
type tail struct {
	reader  *bufio.Reader
	partial bytes.Buffer
	fn      func(Record)
}

func (t *tail) drain() {
	for {
		chunk, err := t.reader.ReadBytes('\n')
		t.partial.Write(chunk)
		if err != nil {
			return
		}
		line := t.partial.Bytes()
		var rec Record
		if jsonErr := json.Unmarshal(line, &rec); jsonErr == nil {
			t.fn(rec)
		}
		t.partial.Reset()
	}
}
