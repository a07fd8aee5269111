package surfmatch

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
)

// Logger wraps slog.Logger with surfmatch-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.DiscardHandler),
	}
}

// WithModel adds the model id to the logger.
func (l *Logger) WithModel(id uuid.UUID) *Logger {
	return &Logger{
		Logger: l.Logger.With("model", id.String()),
	}
}

// TrainStats summarizes a training run for logging and metrics.
type TrainStats struct {
	InputPoints   int
	SampledPoints int
	Pairs         int
	Degenerate    int
	Keys          int
	Duration      time.Duration
}

// MatchStats summarizes a matching run for logging and metrics.
type MatchStats struct {
	ScenePoints   int
	SampledPoints int
	KeyPoints     int
	Pairs         int
	Degenerate    int
	Votes         int
	Candidates    int
	Clusters      int
	Scored        int
	Refined       int
	Matches       int
	Duration      time.Duration
}

// LogTrain logs a training run.
func (l *Logger) LogTrain(ctx context.Context, s TrainStats, err error) {
	if err != nil {
		l.ErrorContext(ctx, "train failed",
			"input_points", s.InputPoints,
			"error", err,
		)
		return
	}
	if s.Degenerate > 0 {
		l.DebugContext(ctx, "degenerate pairs skipped",
			"degenerate", s.Degenerate,
		)
	}
	l.InfoContext(ctx, "train completed",
		"input_points", s.InputPoints,
		"sampled_points", s.SampledPoints,
		"pairs", s.Pairs,
		"keys", s.Keys,
		"duration", s.Duration,
	)
}

// LogMatch logs a matching run.
func (l *Logger) LogMatch(ctx context.Context, s MatchStats, err error) {
	if err != nil {
		l.ErrorContext(ctx, "match failed",
			"scene_points", s.ScenePoints,
			"error", err,
		)
		return
	}
	if s.Degenerate > 0 {
		l.DebugContext(ctx, "degenerate pairs skipped",
			"degenerate", s.Degenerate,
		)
	}
	l.DebugContext(ctx, "match completed",
		"scene_points", s.ScenePoints,
		"sampled_points", s.SampledPoints,
		"key_points", s.KeyPoints,
		"votes", s.Votes,
		"candidates", s.Candidates,
		"clusters", s.Clusters,
		"scored", s.Scored,
		"refined", s.Refined,
		"matches", s.Matches,
		"duration", s.Duration,
	)
}

// LogSave logs a model save.
func (l *Logger) LogSave(ctx context.Context, filename string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "model save failed",
			"filename", filename,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "model saved",
			"filename", filename,
		)
	}
}

// LogLoad logs a model load.
func (l *Logger) LogLoad(ctx context.Context, filename string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "model load failed",
			"filename", filename,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "model loaded",
			"filename", filename,
		)
	}
}
