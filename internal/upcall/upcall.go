package upcall

import (
	"sync"

	"github.com/google/uuid"
)

// Upcall is one in-flight request to the daemon: a candidate message
// waiting in a Pipe's pending list for a matching downcall. Multiple
// Refresh callers racing for the same (uid, service) share a single
// Upcall instead of each issuing their own.
type Upcall struct {
	// ID is a diagnostic correlation identifier; it never appears on the
	// wire, only in logs, so concurrent refreshes can be told apart.
	ID uuid.UUID

	UID     uint32
	Service string

	mu       sync.Mutex
	done     bool
	result   *Downcall
	err      error
	waiters  int
	finished chan struct{}
}

// NewUpcall creates a pending Upcall for the given uid/service pair.
func NewUpcall(uid uint32, service string) *Upcall {
	return &Upcall{
		ID:       uuid.New(),
		UID:      uid,
		Service:  service,
		finished: make(chan struct{}),
	}
}

// Join registers the caller as an additional waiter on this Upcall,
// returning a channel that closes once the result is ready.
func (u *Upcall) Join() <-chan struct{} {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.waiters++
	return u.finished
}

// Waiters reports how many callers are currently sharing this Upcall.
func (u *Upcall) Waiters() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.waiters
}

// Resolve records the downcall result (or error) and wakes every waiter
// exactly once. Later calls are no-ops.
func (u *Upcall) Resolve(result *Downcall, err error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.done {
		return
	}
	u.done = true
	u.result = result
	u.err = err
	close(u.finished)
}

// Result returns the resolved downcall and error. Must only be called
// after the channel returned by Join has closed.
func (u *Upcall) Result() (*Downcall, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.result, u.err
}
