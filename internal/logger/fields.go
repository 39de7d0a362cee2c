package logger

import (
	"log/slog"
)

// Standard field keys for structured logging across the credential/context
// engine. Use these keys consistently so log lines from the upcall pipe,
// the credential cache, and the wrap/unwrap engine can be correlated and
// queried together.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID = "trace_id"
	KeySpanID  = "span_id"

	// ========================================================================
	// Identity / Auth
	// ========================================================================
	KeyUID       = "uid"       // RPC user id the credential is for
	KeyPrincipal = "principal" // requested acceptor principal, if any
	KeyFlavor    = "pseudoflavor"
	KeyService   = "service" // none | integrity | privacy
	KeyTarget    = "target"  // target hostname/service name, if any
	KeyMech      = "mech"    // mechanism name (e.g. krb5)

	// ========================================================================
	// Pipe / Upcall
	// ========================================================================
	KeyPipe      = "pipe"       // pipe name (mech name or "gssd")
	KeyPipeVers  = "pipe_vers"  // negotiated pipe version (0 or 1)
	KeyUpcallID  = "upcall_id"  // diagnostic correlation id for one upcall
	KeyDowncall  = "downcall"   // downcall outcome: ok, error
	KeyErrorCode = "error_code" // numeric error code from a downcall error frame

	// ========================================================================
	// Context / Sequence
	// ========================================================================
	KeySeqNum   = "seqno"
	KeyWindow   = "window_size"
	KeyExpiry   = "expiry"
	KeyAcceptor = "acceptor"

	// ========================================================================
	// Cache / Registry
	// ========================================================================
	KeyCacheHit = "cache_hit"
	KeyEvicted  = "evicted"
	KeyRefcount = "refcount"

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyDurationMs = "duration_ms"
	KeyError      = "error"
	KeyOperation  = "operation"
)

// UID returns a slog.Attr for the RPC user id.
func UID(uid uint32) slog.Attr {
	return slog.Any(KeyUID, uid)
}

// Principal returns a slog.Attr for an acceptor principal name.
func Principal(name string) slog.Attr {
	return slog.String(KeyPrincipal, name)
}

// Flavor returns a slog.Attr for an RPCSEC_GSS pseudoflavor.
func Flavor(flavor uint32) slog.Attr {
	return slog.Any(KeyFlavor, flavor)
}

// Service returns a slog.Attr for a service mode name.
func Service(svc string) slog.Attr {
	return slog.String(KeyService, svc)
}

// Target returns a slog.Attr for a target host/service name.
func Target(t string) slog.Attr {
	return slog.String(KeyTarget, t)
}

// Mech returns a slog.Attr for a mechanism name.
func Mech(name string) slog.Attr {
	return slog.String(KeyMech, name)
}

// Pipe returns a slog.Attr for a pipe name.
func Pipe(name string) slog.Attr {
	return slog.String(KeyPipe, name)
}

// PipeVers returns a slog.Attr for a negotiated pipe version.
func PipeVers(v int) slog.Attr {
	return slog.Int(KeyPipeVers, v)
}

// UpcallID returns a slog.Attr for a diagnostic upcall correlation id.
func UpcallID(id string) slog.Attr {
	return slog.String(KeyUpcallID, id)
}

// Downcall returns a slog.Attr summarizing a downcall outcome.
func Downcall(outcome string) slog.Attr {
	return slog.String(KeyDowncall, outcome)
}

// ErrorCode returns a slog.Attr for a numeric error code.
func ErrorCode(code int32) slog.Attr {
	return slog.Int(KeyErrorCode, int(code))
}

// SeqNum returns a slog.Attr for a GSS sequence number.
func SeqNum(n uint32) slog.Attr {
	return slog.Any(KeySeqNum, n)
}

// Window returns a slog.Attr for a sequence window size.
func Window(n uint32) slog.Attr {
	return slog.Any(KeyWindow, n)
}

// Acceptor returns a slog.Attr for an acceptor display name.
func Acceptor(name string) slog.Attr {
	return slog.String(KeyAcceptor, name)
}

// CacheHit returns a slog.Attr for a cache hit/miss indicator.
func CacheHit(hit bool) slog.Attr {
	return slog.Bool(KeyCacheHit, hit)
}

// Evicted returns a slog.Attr for a count of evicted entries.
func Evicted(n int) slog.Attr {
	return slog.Int(KeyEvicted, n)
}

// Refcount returns a slog.Attr for a reference count.
func Refcount(n int32) slog.Attr {
	return slog.Int(KeyRefcount, int(n))
}

// DurationMs returns a slog.Attr for a duration in milliseconds.
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error, or a no-op attr for a nil error.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// Operation returns a slog.Attr for a sub-operation name.
func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}
