// Package logging provides leveled logging and round tracing for bucketsim.
// It offers two complementary outputs:
//   - A leveled slog.Logger for stderr (operational output)
//   - A RoundLogger for per-round JSONL traces (<data dir>/rounds.jsonl)
package logging

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// LevelTrace is a custom slog level below Debug. At this level every
// experiment label and tally is logged to stderr as well.
const LevelTrace = slog.LevelDebug - 4

// RoundsFile is the name of the round trace file.
const RoundsFile = "rounds.jsonl"

// ParseLevel maps a string level name to a slog.Level.
// Supported values: "info", "debug", "trace" (case-insensitive).
// Unknown values default to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "trace":
		return LevelTrace
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a leveled slog.Logger writing to w.
func NewLogger(level string, w io.Writer) *slog.Logger {
	lvl := ParseLevel(level)
	opts := &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelTrace {
					a.Value = slog.StringValue("TRACE")
				}
			}
			return a
		},
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// RoundEvent is one line of the round trace.
type RoundEvent struct {
	RunID    string                    `json:"run_id"`
	Seq      int                       `json:"seq"`
	Label    string                    `json:"label"`
	Tallies  map[string]map[string]int `json:"tallies"`
	Duration time.Duration             `json:"duration_ns"`
}

// RoundLogger appends round events to a JSONL file.
// It is safe for concurrent use. A nil RoundLogger is safe to use;
// all methods are no-ops on nil receiver.
type RoundLogger struct {
	mu   sync.Mutex
	file *os.File
}

// NewRoundLogger creates a round logger writing to dir/rounds.jsonl.
// At "info" level (the default), returns nil and no file is created.
// At "debug" or "trace" level, the file is opened for append.
// Returns nil if the file cannot be opened.
func NewRoundLogger(dir string, level string) *RoundLogger {
	if ParseLevel(level) == slog.LevelInfo {
		return nil
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil
	}

	f, err := os.OpenFile(filepath.Join(dir, RoundsFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil
	}

	return &RoundLogger{file: f}
}

// LogRound writes a round event as a single JSONL line with a "time" field.
func (rl *RoundLogger) LogRound(ev RoundEvent) {
	if rl == nil {
		return
	}
	rl.Log(map[string]any{
		"event":       "round",
		"run_id":      ev.RunID,
		"seq":         ev.Seq,
		"label":       ev.Label,
		"tallies":     ev.Tallies,
		"duration_ns": ev.Duration.Nanoseconds(),
	})
}

// Log writes an arbitrary event as a single JSONL line.
// A "time" field is added automatically. The caller's map is not mutated.
func (rl *RoundLogger) Log(event map[string]any) {
	if rl == nil || rl.file == nil {
		return
	}

	entry := make(map[string]any, len(event)+1)
	for k, v := range event {
		entry[k] = v
	}
	entry["time"] = time.Now().UTC().Format(time.RFC3339Nano)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if rl.file == nil {
		return
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	data = append(data, '\n')
	_, _ = rl.file.Write(data)
}

// Close closes the underlying file.
func (rl *RoundLogger) Close() {
	if rl == nil {
		return
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if rl.file == nil {
		return
	}
	rl.file.Close()
	rl.file = nil
}
