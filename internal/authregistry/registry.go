// Package authregistry implements the process-wide lookup table that
// lets unrelated RPC call sites sharing the same transport and target
// reuse one Auth instead of each negotiating its own.
package authregistry

import (
	"sync"

	"github.com/marmos91/gssauth/internal/credential"
)

// Client is the minimal shape of an RPC client the registry needs: its
// identity for keying, and a way to walk up to the outermost
// same-transport ancestor the way cl_parent chasing does in the
// original client stack.
type Client interface {
	// TransportID identifies the underlying transport (e.g. a dialed
	// connection); two clients sharing a transport return equal IDs.
	TransportID() uintptr
	// Parent returns the client this one was cloned from, or nil if it
	// is already the root.
	Parent() Client
}

// Auth is one negotiated authentication context: the mechanism and
// target this registry entry binds to, plus the Credential cache that
// backs it.
type Auth struct {
	Pseudoflavor uint32
	TargetName   string
	Credentials  *credential.Cache

	mu        sync.Mutex
	refcount  int32
	destroyed bool
}

func newAuth(pseudoflavor uint32, targetName string) *Auth {
	return &Auth{
		Pseudoflavor: pseudoflavor,
		TargetName:   targetName,
		Credentials:  credential.NewCache(),
		refcount:     1,
	}
}

// tryAcquire attempts to take a strong reference, failing if the Auth
// is already mid-destruction.
func (a *Auth) tryAcquire() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.destroyed {
		return false
	}
	a.refcount++
	return true
}

// Release drops a reference. Once it reaches zero the Auth is marked
// destroyed and removed from the registry on the next lookup/insert
// that observes it; the registry itself performs the removal.
func (a *Auth) Release() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.refcount--
	if a.refcount <= 0 {
		a.destroyed = true
	}
}

// key identifies one registry entry: the outermost same-transport
// ancestor plus the requested pseudoflavor/target.
type key struct {
	transport    uintptr
	pseudoflavor uint32
	targetName   string
}

// Registry is the process-wide Auth table.
type Registry struct {
	mu      sync.Mutex
	entries map[key]*Auth
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[key]*Auth)}
}

// rootTransport walks a client's cl_parent chain to the outermost
// ancestor sharing the same transport.
func rootTransport(client Client) Client {
	root := client
	for {
		parent := root.Parent()
		if parent == nil || parent.TransportID() != root.TransportID() {
			return root
		}
		root = parent
	}
}

// LookupOrCreate returns the Auth for (rootClient's transport,
// pseudoflavor, targetName), creating one if none exists. The lookup and
// the insert happen under one registry lock, so concurrent callers with
// the same key all get the same Auth, per spec.md section 4.5.
func (r *Registry) LookupOrCreate(client Client, pseudoflavor uint32, targetName string) *Auth {
	k := key{
		transport:    rootTransport(client).TransportID(),
		pseudoflavor: pseudoflavor,
		targetName:   targetName,
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.entries[k]; ok {
		if existing.tryAcquire() {
			return existing
		}
		delete(r.entries, k)
	}

	auth := newAuth(pseudoflavor, targetName)
	r.entries[k] = auth
	return auth
}

// Len reports how many Auths are currently registered.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
