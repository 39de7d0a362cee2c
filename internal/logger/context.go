package logger

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey struct{}

// logContextKey is the key for LogContext in context.Context
var logContextKey = contextKey{}

// LogContext holds request-scoped logging context for one credential
// refresh, wrap, or unwrap operation.
type LogContext struct {
	TraceID   string // OpenTelemetry trace ID
	SpanID    string // OpenTelemetry span ID
	UID       uint32 // RPC user id the operation is for
	Principal string // requested acceptor principal, if any
	Service   string // none | integrity | privacy
	Mech      string // mechanism name (e.g. krb5)
	StartTime time.Time
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

// NewLogContext creates a new LogContext for a credential identified by uid.
func NewLogContext(uid uint32) *LogContext {
	return &LogContext{
		UID:       uid,
		StartTime: time.Now(),
	}
}

// Clone creates a copy of the LogContext
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	return &LogContext{
		TraceID:   lc.TraceID,
		SpanID:    lc.SpanID,
		UID:       lc.UID,
		Principal: lc.Principal,
		Service:   lc.Service,
		Mech:      lc.Mech,
		StartTime: lc.StartTime,
	}
}

// WithMech returns a copy with the mechanism name set
func (lc *LogContext) WithMech(mech string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Mech = mech
	}
	return clone
}

// WithService returns a copy with the service mode set
func (lc *LogContext) WithService(service string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Service = service
	}
	return clone
}

// WithPrincipal returns a copy with the requested principal set
func (lc *LogContext) WithPrincipal(principal string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Principal = principal
	}
	return clone
}

// WithTrace returns a copy with trace info set
func (lc *LogContext) WithTrace(traceID, spanID string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.TraceID = traceID
		clone.SpanID = spanID
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
