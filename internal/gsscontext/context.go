// Package gsscontext implements the established GSS security context: the
// sequence-numbered, mechanism-backed object that wraps and unwraps RPC
// call bodies once a Credential has negotiated it with the daemon.
package gsscontext

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/marmos91/gssauth/internal/gsserrors"
	"github.com/marmos91/gssauth/internal/mech"
)

// Context is one established GSS security context. It is immutable after
// construction except for its monotonic sequence counter; callers obtain
// one via ImportFromDowncall and then use it until the Credential that
// owns it decides to renew.
type Context struct {
	mechanism mech.Mechanism
	sec       mech.SecContext

	// WireHandle is the opaque context handle the server returned; it is
	// echoed back verbatim in every subsequent RPCSEC_GSS credential.
	WireHandle []byte

	// Service is the negotiated protection level (none/integrity/privacy).
	Service int

	// Expiry is the session key's expiry time, when the mechanism
	// reports one.
	Expiry    time.Time
	HasExpiry bool

	seq atomic.Uint32
}

// New constructs a Context around an already-imported SecContext. The
// sequence counter starts such that the first NextSeq() call returns 1.
func New(mechanism mech.Mechanism, sec mech.SecContext, wireHandle []byte, service int) *Context {
	c := &Context{
		mechanism:  mechanism,
		sec:        sec,
		WireHandle: wireHandle,
		Service:    service,
	}
	if exp, ok := sec.Expiry(); ok {
		c.Expiry = time.Unix(exp, 0)
		c.HasExpiry = true
	}
	return c
}

// ImportFromDowncall decodes the mechanism-opaque sec_context bytes a
// downcall carried and builds the resulting Context.
func ImportFromDowncall(m mech.Mechanism, wireHandle, secContextBytes []byte, service int) (*Context, error) {
	sec, err := m.ImportSecContext(secContextBytes)
	if err != nil {
		return nil, fmt.Errorf("gsscontext: import sec_context: %w", err)
	}
	return New(m, sec, wireHandle, service), nil
}

// NextSeq returns the next sequence number to stamp onto an outgoing
// call, starting at 1 and incrementing monotonically for the life of the
// Context.
func (c *Context) NextSeq() uint32 {
	return c.seq.Add(1)
}

// GetMIC computes a message integrity code over message.
func (c *Context) GetMIC(message []byte) ([]byte, error) {
	mic, err := c.mechanism.GetMIC(c.sec, 0, message)
	if err != nil {
		return nil, gsserrors.Wrap(gsserrors.ContextExpired, "get_mic failed", err)
	}
	return mic, nil
}

// VerifyMIC checks a MIC the server produced over message.
func (c *Context) VerifyMIC(message, mic []byte) error {
	if err := c.mechanism.VerifyMIC(c.sec, message, mic); err != nil {
		return gsserrors.Wrap(gsserrors.ContextExpired, "verify_mic failed", err)
	}
	return nil
}

// Wrap seals message for the negotiated service level. conf selects
// confidentiality (privacy) sealing over integrity-only sealing.
func (c *Context) Wrap(conf bool, message []byte) ([]byte, error) {
	token, err := c.mechanism.Wrap(c.sec, conf, message)
	if err != nil {
		return nil, gsserrors.Wrap(gsserrors.ContextExpired, "wrap failed", err)
	}
	return token, nil
}

// Unwrap reverses a Wrap token the server produced.
func (c *Context) Unwrap(token []byte) ([]byte, bool, error) {
	message, wasConf, err := c.mechanism.Unwrap(c.sec, token)
	if err != nil {
		return nil, false, gsserrors.Wrap(gsserrors.ContextExpired, "unwrap failed", err)
	}
	return message, wasConf, nil
}

// destroy releases the mechanism-internal state backing this Context.
// Called by ContextSlot once the Context has no remaining holders.
func (c *Context) destroy() {
	_ = c.mechanism.DeleteSecContext(c.sec)
}
