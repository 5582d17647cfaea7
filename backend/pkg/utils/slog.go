package utils

import (
	"bytes"
	"log/slog"
	"time"
)

// ErrAttr returns a slog attribute for an error under the "error" key.
func ErrAttr(err error) slog.Attr {
	return slog.Any("error", err)
}

// SlogReplacer renders time and duration attributes as human readable strings.
func SlogReplacer(_ []string, a slog.Attr) slog.Attr {
	switch a.Value.Kind() {
	case slog.KindTime:
		return slog.String(a.Key, a.Value.Time().Format(time.DateTime))
	case slog.KindDuration:
		return slog.String(a.Key, a.Value.Duration().String())
	default:
		return a
	}
}

// LogOnError runs fn and logs msg if it returns an error. Meant for deferred closes.
func LogOnError(l *slog.Logger, fn func() error, msg string) {
	if err := fn(); err != nil {
		l.Error(msg, ErrAttr(err))
	}
}

// LogWriter adapts an io.Writer consumer to a slog.Logger, one record per line.
type LogWriter struct {
	logger *slog.Logger
}

// NewSlogWriter creates a writer that logs every non-empty line at info level.
func NewSlogWriter(l *slog.Logger) *LogWriter {
	return &LogWriter{logger: l}
}

func (w *LogWriter) Write(p []byte) (int, error) {
	for line := range bytes.SplitSeq(p, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		w.logger.Info(string(line))
	}

	return len(p), nil
}
