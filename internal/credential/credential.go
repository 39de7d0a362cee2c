// Package credential implements the per-user Credential state machine
// and its cache: the object an Auth consults before every call to
// decide whether a fresh Context must be negotiated.
package credential

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/gssauth/internal/gsscontext"
	"github.com/marmos91/gssauth/internal/gsserrors"
	"github.com/marmos91/gssauth/internal/wireauth"
)

// State is the Credential's position in its renewal state machine.
type State int

const (
	// StateNew means no Context has ever been attached, or the last one
	// expired and must be renewed before the Credential can be used.
	StateNew State = iota
	// StateUpToDate means the attached Context is current.
	StateUpToDate
	// StateNegative means the last upcall reported the user's key as
	// expired; the Credential refuses renewal attempts until Cooldown
	// elapses.
	StateNegative
)

// defaultKeyTimeout is the look-ahead window KeyTimeout uses to report
// a Context as "about to expire".
const defaultKeyTimeout = 240 * time.Second

// Credential is one user's RPCSEC_GSS authentication state: an
// identity (uid, optional target principal, service level) plus the
// Context currently backing it. Safe for concurrent use; Wrap/Unwrap
// and renewal race freely against each other.
type Credential struct {
	UID       uint32
	Principal string // acceptor principal requested, if any
	Service   uint32 // wireauth.Service{None,Integrity,Privacy}

	slot *gsscontext.ContextSlot

	mu            sync.Mutex
	state         State
	negativeUntil time.Time

	lastAccess atomic.Int64 // unix nanos, read by the cache's eviction sweep
	refcount   atomic.Int32
}

// New returns a fresh, NEW-state Credential for the given identity.
func New(uid uint32, principal string, service uint32) *Credential {
	c := &Credential{
		UID:       uid,
		Principal: principal,
		Service:   service,
		slot:      gsscontext.NewContextSlot(),
		state:     StateNew,
	}
	c.touch()
	return c
}

func (c *Credential) touch() {
	c.lastAccess.Store(time.Now().UnixNano())
}

// LastAccess reports when this Credential was last touched, for the
// cache's LRU eviction sweep.
func (c *Credential) LastAccess() time.Time {
	return time.Unix(0, c.lastAccess.Load())
}

// Acquire takes a reference, keeping the Credential alive against
// concurrent eviction. Callers must call Release when done.
func (c *Credential) Acquire() {
	c.refcount.Add(1)
	c.touch()
}

// Release drops a reference taken by Acquire.
func (c *Credential) Release() {
	c.refcount.Add(-1)
}

// Refcount reports the current reference count; the cache's eviction
// sweep only reclaims entries at zero.
func (c *Credential) Refcount() int32 {
	return c.refcount.Load()
}

// State returns the Credential's current state.
func (c *Credential) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// AttachContext installs a freshly negotiated Context and transitions
// the Credential to UPTODATE. It is a no-op (but still returns success)
// if a concurrent renewal already cleared the NEW state, matching the
// "don't let last-writer-wins clobber a newer publish" requirement.
func (c *Credential) AttachContext(ctx *gsscontext.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateNew {
		return
	}
	c.slot.Store(ctx)
	c.state = StateUpToDate
}

// MarkNegative transitions the Credential to NEGATIVE with the given
// cooldown, called after an upcall reports the user's key as expired.
func (c *Credential) MarkNegative(cooldown time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateNegative
	c.negativeUntil = time.Now().Add(cooldown)
}

// NeedsRenewal reports whether the Credential must go through the
// Upcall Coordinator before it can be used: true when NEW, or when
// NEGATIVE and the cooldown has elapsed (clearing back to NEW).
func (c *Credential) NeedsRenewal() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateNew:
		return true
	case StateNegative:
		if time.Now().After(c.negativeUntil) {
			c.state = StateNew
			return true
		}
		return false
	default:
		return c.expired()
	}
}

// expired reports whether the attached Context's key has passed its
// expiry. Must be called with mu held.
func (c *Credential) expired() bool {
	ctx := c.slot.Current()
	if ctx == nil {
		return true
	}
	return ctx.HasExpiry && time.Now().After(ctx.Expiry)
}

// Invalidate clears UPTODATE back to NEW, called on a server
// CONTEXT_EXPIRED indication or a local expiry observation.
func (c *Credential) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateUpToDate {
		c.state = StateNew
	}
}

// destroy releases the Context this Credential held, called once the
// cache's eviction sweep has confirmed zero references remain. Issuing
// the best-effort DESTROY RPC itself (processing code DESTROY, body
// unwrapped) is the RPC layer's job: it must call WrapRequest with
// ProcDestroy and send it before evicting, since this engine never
// performs network I/O on its own.
func (c *Credential) destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slot.Store(nil)
}

// Match reports whether this Credential can serve a request for uid
// and (optionally) a requested acceptor principal, rejecting on
// expiry.
func (c *Credential) Match(uid uint32, principal string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.UID != uid {
		return false
	}
	if principal != "" && c.Principal != principal {
		return false
	}
	return !c.expired()
}

// KeyTimeout reports whether the attached Context's key is within
// window of expiring (defaultKeyTimeout if window is zero), prompting
// early re-authentication.
func (c *Credential) KeyTimeout(window time.Duration) bool {
	if window == 0 {
		window = defaultKeyTimeout
	}
	ctx := c.slot.Current()
	if ctx == nil || !ctx.HasExpiry {
		return false
	}
	return time.Now().Add(window).After(ctx.Expiry)
}

// WrapRequest seals an encoded call body for this Credential's service
// level, using whichever Context is currently attached. A DESTROY call
// (proc == ProcDestroy) carries body unwrapped whatever the service
// level. Returns a ContextExpired error if no Context is attached yet.
func (c *Credential) WrapRequest(proc uint32, handle []byte, callBytes, body []byte) (credBytes []byte, verifier wireauth.Verifier, wrapped []byte, seq uint32, err error) {
	ctx, release, ok := c.slot.Acquire()
	if !ok {
		return nil, wireauth.Verifier{}, nil, 0, gsserrors.New(gsserrors.ContextExpired, "no context attached")
	}
	defer release()

	credBytes, verifier, seq, err = wireauth.MarshalCall(ctx, proc, c.Service, handle, callBytes)
	if err != nil {
		return nil, wireauth.Verifier{}, nil, 0, err
	}

	if proc == wireauth.ProcDestroy {
		return credBytes, verifier, body, seq, nil
	}

	wrapped, err = wireauth.WrapRequest(ctx, c.Service, seq, body)
	if err != nil {
		return nil, wireauth.Verifier{}, nil, 0, err
	}
	return credBytes, verifier, wrapped, seq, nil
}

// UnwrapResponse validates a reply verifier and unseals its body,
// using this Credential's currently attached Context.
func (c *Credential) UnwrapResponse(seq uint32, verifier wireauth.Verifier, reply []byte) ([]byte, error) {
	ctx, release, ok := c.slot.Acquire()
	if !ok {
		return nil, gsserrors.New(gsserrors.ContextExpired, "no context attached")
	}
	defer release()

	if err := wireauth.ValidateReply(ctx, seq, verifier); err != nil {
		return nil, err
	}
	return wireauth.UnwrapResponse(ctx, c.Service, seq, reply)
}
