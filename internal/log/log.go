// Package log holds the structured logger shared by the flatcore packages.
package log

import (
	"context"
	"log/slog"
	"time"
)

// Base returns the default logger tagged with the flatcore realm. It is
// resolved on every call so that slog.SetDefault takes effect.
func Base() *slog.Logger {
	return slog.Default().With(slog.String("realm", "flatcore"))
}

// Op times one operation. Its completion record describes the buffer the
// operation produced or read, if one was noted.
type Op struct {
	ctx    context.Context
	logger *slog.Logger
	start  time.Time
	buf    []byte
	noted  bool
}

// Operation logs the start of name at debug level and returns the Op that
// logs its outcome.
func Operation(ctx context.Context, name string, attrs ...slog.Attr) *Op {
	h := Base().Handler().WithAttrs(append([]slog.Attr{slog.String("operation", name)}, attrs...))
	op := &Op{ctx: ctx, logger: slog.New(h), start: time.Now()}
	op.logger.LogAttrs(ctx, slog.LevelDebug, "starting operation")
	return op
}

// Buffer notes buf for the completion record.
func (o *Op) Buffer(buf []byte) {
	o.buf, o.noted = buf, true
}

// Done logs the outcome: failures at error level, success at debug.
func (o *Op) Done(err error) {
	attrs := []slog.Attr{slog.Duration("duration", time.Since(o.start))}
	if o.noted {
		attrs = append(attrs, BufferAttr(o.buf))
	}
	if err != nil {
		o.logger.LogAttrs(o.ctx, slog.LevelError, "operation failed", append(attrs, slog.Any("error", err))...)
		return
	}
	o.logger.LogAttrs(o.ctx, slog.LevelDebug, "operation completed", attrs...)
}

// BufferAttr describes a serialized buffer: its size and, when bytes 4-7
// are printable, the file identifier they would hold.
func BufferAttr(buf []byte) slog.Attr {
	attrs := []any{slog.Int("size", len(buf))}
	if id, ok := identifier(buf); ok {
		attrs = append(attrs, slog.String("identifier", id))
	}
	return slog.Group("buffer", attrs...)
}

func identifier(buf []byte) (string, bool) {
	if len(buf) < 8 {
		return "", false
	}
	for _, c := range buf[4:8] {
		if c < 0x21 || c > 0x7E {
			return "", false
		}
	}
	return string(buf[4:8]), true
}
