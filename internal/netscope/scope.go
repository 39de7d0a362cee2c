// Package netscope models the per-network-namespace state the kernel
// client keeps globally (pipe_version, pipe_users in
// net/sunrpc/auth_gss/auth_gss.c) as an explicit, injectable value
// instead of a package-level global.
//
// A Scope is created once per network namespace the embedding
// application cares about (typically one, for processes with no network
// namespace support) and passed explicitly into Auth construction. Tests
// create isolated Scopes so concurrent test cases never share pipe
// version state.
package netscope

import (
	"context"
	"sync"
	"time"
)

// unset is the sentinel pipe_version value meaning "no daemon has ever
// opened a pipe in this scope yet".
const unset = -1

// Scope holds the pipe-version negotiation state for one network
// namespace. The zero value is not usable; use New.
type Scope struct {
	mu      sync.Mutex
	version int
	users   int
	ready   chan struct{} // closed when version transitions from unset to set
}

// New returns a Scope with no pipe version negotiated yet.
func New() *Scope {
	return &Scope{version: unset, ready: make(chan struct{})}
}

// Version returns the negotiated pipe version and true, or (0, false)
// if no daemon has opened a pipe in this scope yet. On success it
// increments the scope's user count the way get_pipe_version() does;
// callers must pair a successful Version() with Release().
func (s *Scope) Version() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.version < 0 {
		return 0, false
	}
	s.users++
	return s.version, true
}

// Release drops one reference taken by a successful Version() call (or
// by WaitForVersion). When the last reference drops, the pipe version
// is cleared so the next opener can renegotiate it (put_pipe_version()).
func (s *Scope) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.users--
	if s.users <= 0 {
		s.users = 0
		s.version = unset
		s.ready = make(chan struct{})
	}
}

// Open commits newVersion as the pipe version for this scope. It is
// called by whichever pipe (v0 or v1) the daemon opens first. Returns
// an error if a different version was already committed by a previous
// opener, matching the spec's "if already set to a different value fail
// with a conflict error" contract.
func (s *Scope) Open(newVersion int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.version < 0 {
		s.version = newVersion
		close(s.ready)
		return nil
	}
	if s.version != newVersion {
		return errConflict(s.version, newVersion)
	}
	return nil
}

// WaitForVersion blocks until a pipe version is negotiated, ctx is done,
// or timeout elapses, whichever comes first. On success it returns the
// version with a reference already taken (the caller must Release it),
// mirroring Version()'s contract. The Upcall Coordinator uses this with
// a 15-second timeout per spec.md section 5.
func (s *Scope) WaitForVersion(ctx context.Context, timeout time.Duration) (int, bool) {
	s.mu.Lock()
	if s.version >= 0 {
		s.users++
		v := s.version
		s.mu.Unlock()
		return v, true
	}
	ready := s.ready
	s.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ready:
		return s.Version()
	case <-timer.C:
		return 0, false
	case <-ctx.Done():
		return 0, false
	}
}

type conflictError struct {
	have, want int
}

func (e *conflictError) Error() string {
	return "pipe version already negotiated"
}

func errConflict(have, want int) error {
	return &conflictError{have: have, want: want}
}
