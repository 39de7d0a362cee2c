// Package mech defines the polymorphic GSS-API mechanism interface the
// credential/context engine drives: import a security context from the
// bytes the keying daemon handed back, produce and verify MICs, wrap and
// unwrap RPC call bodies, and tear the context down. A concrete mechanism
// (krb5.go) fulfils this against a real cryptographic backend; the engine
// itself never imports a mechanism's crypto library directly.
package mech

import (
	"fmt"
	"strings"
	"sync"
)

// SecContext is an established, mechanism-opaque security context. The
// engine holds one per Context object and only ever passes it back to the
// Mechanism that created it.
type SecContext interface {
	// Expiry returns the time the context's session key becomes invalid,
	// in Unix seconds, with ok=false if the mechanism imposes no expiry.
	Expiry() (t int64, ok bool)
}

// Mechanism is the vtable every GSS-API mechanism implementation must
// satisfy. Names and semantics mirror gss_import_sec_context,
// gss_get_mic, gss_verify_mic, gss_wrap, gss_unwrap, and
// gss_delete_sec_context.
type Mechanism interface {
	// Name returns the mechanism's registered name (e.g. "krb5"), used
	// in the v1 upcall's mech= field.
	Name() string

	// Enctypes returns the comma-separated enctype list advertised to
	// the daemon in the v1 upcall, or "" if the mechanism does not
	// restrict enctypes.
	Enctypes() string

	// PseudoflavorToService maps an RPCSEC_GSS pseudoflavor to the
	// service level (none/integrity/privacy) it implies, and reports
	// whether the mechanism recognizes the flavor at all.
	PseudoflavorToService(pseudoflavor uint32) (service int, ok bool)

	// ImportSecContext decodes the mechanism-opaque sec_context bytes
	// the daemon returned in a downcall into a usable SecContext.
	ImportSecContext(data []byte) (SecContext, error)

	// GetMIC computes a message integrity code over message under ctx,
	// for the given QOP (always 0 in this engine).
	GetMIC(ctx SecContext, qop uint32, message []byte) ([]byte, error)

	// VerifyMIC checks that mic is a valid MIC over message under ctx.
	VerifyMIC(ctx SecContext, message, mic []byte) error

	// Wrap seals message for confidentiality (conf=true) or integrity
	// only (conf=false) under ctx.
	Wrap(ctx SecContext, conf bool, message []byte) ([]byte, error)

	// Unwrap reverses Wrap, reporting whether the token was
	// confidentiality-sealed.
	Unwrap(ctx SecContext, token []byte) (message []byte, wasConf bool, err error)

	// DeleteSecContext releases any mechanism-internal state associated
	// with ctx. Idempotent.
	DeleteSecContext(ctx SecContext) error
}

// Factory constructs a fresh Mechanism instance. Callers register a
// Factory with a Registry explicitly; no mechanism registers itself at
// package init.
type Factory func() Mechanism

// Registry is a process-wide, concurrency-safe name-to-factory table.
// The engine looks mechanisms up by the name string carried end to end
// in pseudoflavor tables and upcall encodings.
type Registry struct {
	mu    sync.RWMutex
	facts map[string]Factory
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{facts: make(map[string]Factory)}
}

// Register adds a mechanism factory under name (case-insensitive). It
// panics on a duplicate name, the same as a conflicting mech-glue
// registration would be a build-time error.
func (r *Registry) Register(name string, f Factory) {
	name = strings.ToLower(name)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.facts[name]; ok {
		panic("mech: duplicate registration for " + name)
	}
	r.facts[name] = f
}

// New constructs a fresh Mechanism instance by name, or returns an error
// if no factory is registered under that name.
func (r *Registry) New(name string) (Mechanism, error) {
	name = strings.ToLower(name)

	r.mu.RLock()
	f, ok := r.facts[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("mech: no mechanism registered as %q", name)
	}
	return f(), nil
}

// Names returns the registered mechanism names, in no particular order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.facts))
	for n := range r.facts {
		names = append(names, n)
	}
	return names
}
