// Package observe appends assistant interaction records to an on-disk
// journal for later review. Recording is fire-and-forget: the request path
// never blocks on or fails because of the journal.
package observe

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Record is one journaled interaction.
type Record struct {
	At           time.Time `json:"at"`
	UserID       string    `json:"userId"`
	Source       string    `json:"source,omitempty"`
	ResponseType string    `json:"responseType"`
	Iterations   int       `json:"iterations,omitempty"`
	ToolCalls    []string  `json:"toolCalls,omitempty"`
	Mutated      bool      `json:"mutated,omitempty"`
	DurationMS   int64     `json:"durationMs"`
}

// Journal buffers records on a channel; a single goroutine owns the open
// file and appends JSON lines to a per-day file under the journal root.
type Journal struct {
	root   string
	ch     chan Record
	logger *slog.Logger
}

// New creates a journal rooted at dir, creating it if needed. An empty dir
// disables journaling; Add becomes a no-op.
func New(dir string, logger *slog.Logger) (*Journal, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dir == "" {
		return &Journal{logger: logger}, nil
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("observe: resolve root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("observe: mkdir: %w", err)
	}
	return &Journal{root: abs, ch: make(chan Record, 256), logger: logger}, nil
}

// Add enqueues a record. When the buffer is full the record is dropped;
// journaling never applies backpressure to the request path.
func (j *Journal) Add(r Record) {
	if j.ch == nil {
		return
	}
	if r.At.IsZero() {
		r.At = time.Now()
	}
	select {
	case j.ch <- r:
	default:
		j.logger.Warn("observe: journal buffer full, record dropped")
	}
}

// Run drains the channel until ctx is cancelled, then flushes what remains.
func (j *Journal) Run(ctx context.Context) error {
	if j.ch == nil {
		<-ctx.Done()
		return nil
	}
	var (
		f   *os.File
		day string
	)
	defer func() {
		if f != nil {
			_ = f.Close()
		}
	}()

	write := func(r Record) {
		d := r.At.Format("2006-01-02")
		if f == nil || d != day {
			if f != nil {
				_ = f.Close()
			}
			path := filepath.Join(j.root, d+".jsonl")
			var err error
			f, err = os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				j.logger.Error("observe: open journal file", slog.String("error", err.Error()))
				f = nil
				return
			}
			day = d
		}
		line, err := json.Marshal(r)
		if err != nil {
			return
		}
		if _, err := f.Write(append(line, '\n')); err != nil {
			j.logger.Error("observe: append failed", slog.String("error", err.Error()))
		}
	}

	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case r := <-j.ch:
					write(r)
				default:
					return nil
				}
			}
		case r := <-j.ch:
			write(r)
		}
	}
}
