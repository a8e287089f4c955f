package logger

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey struct{}

// logContextKey is the key for LogContext in context.Context
var logContextKey = contextKey{}

// LogContext holds connection- and operation-scoped logging context.
type LogContext struct {
	ConnID     int       // Accepted connection fd
	OpName     string    // Operation name (GETATTR, READ, WRITE, etc.)
	ClientAddr string    // Remote address of the connected socket
	UID        uint32    // Credentials presented with the current operation
	GID        uint32
	StartTime  time.Time // For duration calculation
}

// WithContext returns a new context with the given LogContext
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from context, or nil if not present
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext creates a new LogContext for a freshly accepted connection.
func NewLogContext(connID int, clientAddr string) *LogContext {
	return &LogContext{
		ConnID:     connID,
		ClientAddr: clientAddr,
		StartTime:  time.Now(),
	}
}

// Clone creates a copy of the LogContext
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	return &LogContext{
		ConnID:     lc.ConnID,
		OpName:     lc.OpName,
		ClientAddr: lc.ClientAddr,
		UID:        lc.UID,
		GID:        lc.GID,
		StartTime:  lc.StartTime,
	}
}

// WithOp returns a copy with the operation name set and StartTime reset,
// for per-operation duration measurement within one long-lived connection.
func (lc *LogContext) WithOp(opName string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.OpName = opName
		clone.StartTime = time.Now()
	}
	return clone
}

// WithCredentials returns a copy with the caller's UID/GID set.
func (lc *LogContext) WithCredentials(uid, gid uint32) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.UID = uid
		clone.GID = gid
	}
	return clone
}

// DurationMs returns the duration since StartTime in milliseconds
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(lc.StartTime).Microseconds()) / 1000.0
}
