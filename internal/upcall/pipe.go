package upcall

import (
	"io"
	"sync"

	"github.com/marmos91/gssauth/internal/gsserrors"
	"github.com/marmos91/gssauth/internal/logger"
	"github.com/marmos91/gssauth/internal/netscope"
)

// Transport is the half-duplex byte stream a Pipe writes upcalls to and
// reads downcalls from. In production this is the named pipe the kernel
// client mounts under rpc_pipefs; in tests it is a net.Pipe() end or any
// other io.ReadWriteCloser.
type Transport = io.ReadWriteCloser

// Pipe is one upcall channel: either the legacy binary pipe (named after
// the mechanism) or the v1 text pipe (always named "gssd"). Multiple
// Auths in the same process can share a Pipe if they agree on mechanism
// and network scope; Pipe tracks how many have it open so the
// underlying transport is only released once the last one lets go.
type Pipe struct {
	Name    string
	Version Version
	scope   *netscope.Scope

	transport Transport

	mu      sync.Mutex
	opens   int
	pending map[pendingKey]*Upcall
}

// pendingKey identifies one in-flight upcall. Pipes are shared across
// Auths of different services on the same mechanism, so uid alone
// isn't enough: dedup is per (user id, service), per spec section 3's
// "at most one Upcall exists per (pipe, user id, service)" invariant.
type pendingKey struct {
	uid     uint32
	service string
}

// NewPipe wraps transport as a Pipe of the given name/version, bound to
// scope for pipe-version negotiation.
func NewPipe(name string, version Version, scope *netscope.Scope, transport Transport) *Pipe {
	return &Pipe{
		Name:      name,
		Version:   version,
		scope:     scope,
		transport: transport,
		pending:   make(map[pendingKey]*Upcall),
	}
}

// Open records one more user of this Pipe and commits its version into
// the shared scope, the way the kernel's gss_pipe_open does on first
// open (later opens of the same version are idempotent).
func (p *Pipe) Open() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.scope.Open(int(p.Version)); err != nil {
		return gsserrors.Wrap(gsserrors.Internal, "pipe version conflict", err)
	}
	// Hold a scope reference for as long as this pipe stays open, the
	// way the kernel pairs gss_pipe_open with a get_pipe_version.
	if _, ok := p.scope.Version(); !ok {
		return gsserrors.New(gsserrors.Internal, "pipe version vanished immediately after open")
	}
	p.opens++
	return nil
}

// Release drops one use of this Pipe. Once the last user releases, the
// underlying transport is closed and any still-pending upcalls are
// failed with Interrupted so their waiters don't hang forever.
func (p *Pipe) Release() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.opens--
	if p.opens > 0 {
		return nil
	}

	for key, u := range p.pending {
		u.Resolve(nil, gsserrors.New(gsserrors.Interrupted, "pipe released while upcall pending"))
		delete(p.pending, key)
	}

	p.scope.Release()
	return p.transport.Close()
}

// lookupOrInstall returns the existing pending Upcall for candidate's
// (uid, service) if one is already in flight, or installs candidate and
// returns it. The second return value reports whether candidate was the
// one actually installed (false means the caller should discard
// candidate and join the existing one instead).
func (p *Pipe) lookupOrInstall(candidate *Upcall) (*Upcall, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := pendingKey{uid: candidate.UID, service: candidate.Service}
	if existing, ok := p.pending[key]; ok {
		return existing, false
	}
	p.pending[key] = candidate
	return candidate, true
}

// Enqueue writes an already-encoded upcall message to the transport and
// registers it in the pending list under u's (uid, service) so a later
// DeliverDowncall can find it. Returns the Upcall actually tracking this
// request: either u itself, or a pre-existing one a concurrent caller
// already installed for the same (uid, service).
func (p *Pipe) Enqueue(u *Upcall, message []byte) (*Upcall, error) {
	tracked, installed := p.lookupOrInstall(u)
	if !installed {
		return tracked, nil
	}

	if _, err := p.transport.Write(message); err != nil {
		p.mu.Lock()
		delete(p.pending, pendingKey{uid: u.UID, service: u.Service})
		p.mu.Unlock()
		u.Resolve(nil, gsserrors.Wrap(gsserrors.Retryable, "upcall write failed", err))
		return u, nil
	}
	return u, nil
}

// DeliverDowncall parses a raw downcall payload, finds its matching
// pending Upcall, and resolves it. The downcall wire format carries no
// service field (spec section 6), so matching is by uid alone, the way
// the kernel's gss_find_downcall ignores service and takes whichever
// in-flight entry for that uid it finds first; dedup on enqueue still
// keeps separate services as separate entries. It is an error for a
// downcall to arrive with no matching pending upcall (a stray or
// duplicate delivery); that is logged and otherwise ignored, matching
// the kernel's "ignore unmatched downcalls" behavior.
func (p *Pipe) DeliverDowncall(raw []byte) error {
	uid, err := extractUID(raw)
	if err != nil {
		return err
	}

	p.mu.Lock()
	var u *Upcall
	var key pendingKey
	for k, candidate := range p.pending {
		if k.uid == uid {
			key, u = k, candidate
			break
		}
	}
	ok := u != nil
	if ok {
		delete(p.pending, key)
	}
	p.mu.Unlock()

	if !ok {
		logger.Warn("downcall with no matching pending upcall", "uid", uid, "pipe", p.Name)
		return nil
	}

	downcall, err := DecodeDowncall(raw)
	if err != nil {
		u.Resolve(nil, err)
		return err
	}
	u.Resolve(downcall, nil)
	return nil
}

// ReadLoop continuously reads downcall frames off the transport and
// delivers them until the transport is closed. Callers run it in its
// own goroutine for the lifetime of the Pipe.
func (p *Pipe) ReadLoop() {
	buf := make([]byte, maxDowncallLen)
	for {
		n, err := p.transport.Read(buf)
		if n > 0 {
			frame := make([]byte, n)
			copy(frame, buf[:n])
			if derr := p.DeliverDowncall(frame); derr != nil {
				logger.Warn("failed to deliver downcall", "error", derr, "pipe", p.Name)
			}
		}
		if err != nil {
			return
		}
	}
}
