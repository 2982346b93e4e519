// Package obs carries the logging conventions shared by the mint, signer
// and indexer processes.
package obs

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"runtime"
	"time"
)

// NewLogger builds the mint's standard slog.Logger: a text handler writing
// to w, trimming source file paths down to their base name.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	replacer := func(groups []string, a slog.Attr) slog.Attr {
		if a.Key == slog.SourceKey {
			if source, ok := a.Value.Any().(*slog.Source); ok {
				source.File = filepath.Base(source.File)
			}
		}
		return a
	}

	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       level,
		AddSource:   true,
		ReplaceAttr: replacer,
	})
	return slog.New(handler)
}

// Logger wraps a *slog.Logger with call-site-preserving helpers, so a log
// line reports the caller's source position rather than this wrapper's.
type Logger struct {
	base *slog.Logger
}

func Wrap(base *slog.Logger) Logger {
	return Logger{base: base}
}

func (l Logger) log(level slog.Level, format string, args ...any) {
	if !l.base.Enabled(context.Background(), level) {
		return
	}
	var pcs [1]uintptr
	runtime.Callers(3, pcs[:])
	r := slog.NewRecord(time.Now(), level, fmt.Sprintf(format, args...), pcs[0])
	_ = l.base.Handler().Handle(context.Background(), r)
}

func (l Logger) Infof(format string, args ...any)  { l.log(slog.LevelInfo, format, args...) }
func (l Logger) Errorf(format string, args ...any) { l.log(slog.LevelError, format, args...) }
func (l Logger) Debugf(format string, args ...any) { l.log(slog.LevelDebug, format, args...) }
func (l Logger) Warnf(format string, args ...any)  { l.log(slog.LevelWarn, format, args...) }

func (l Logger) With(args ...any) Logger {
	return Logger{base: l.base.With(args...)}
}

func (l Logger) Slog() *slog.Logger { return l.base }
