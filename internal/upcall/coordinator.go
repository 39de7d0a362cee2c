package upcall

import (
	"context"
	"time"

	"github.com/marmos91/gssauth/internal/gsserrors"
	"github.com/marmos91/gssauth/internal/gsscontext"
	"github.com/marmos91/gssauth/internal/mech"
)

// pipeVersionTimeout is how long Refresh waits for a daemon to open the
// pipe and negotiate a version before giving up.
const pipeVersionTimeout = 15 * time.Second

// defaultNegativeCooldown is how long a credential that hit KeyExpired
// stays NEGATIVE before the caller is allowed to retry it.
const defaultNegativeCooldown = 5 * time.Second

// RefreshRequest describes one candidate renewal: who is asking, for
// which mechanism/target/service, and whether the daemon is known to
// have ever registered at all (checked before anything else).
type RefreshRequest struct {
	UID              uint32
	Mechanism        mech.Mechanism
	Target           string
	Service          string
	DaemonRegistered bool
}

// RefreshResult is what a successful Refresh hands back: an established
// Context plus however long the caller should wait before the next
// refresh if this one reported a negative credential.
type RefreshResult struct {
	Context          *gsscontext.Context
	Negative         bool
	NegativeCooldown time.Duration
}

// Coordinator drives the upcall/downcall exchange for a single Pipe,
// de-duplicating concurrent Refresh calls so at most one upcall is ever
// in flight per (uid, service) on that pipe.
type Coordinator struct {
	pipe *Pipe
}

// NewCoordinator returns a Coordinator driving pipe.
func NewCoordinator(pipe *Pipe) *Coordinator {
	return &Coordinator{pipe: pipe}
}

// Refresh implements the credential renewal algorithm: wait for pipe
// version negotiation, encode and enqueue (or join) a candidate upcall,
// wait for its downcall, and translate the result into an established
// Context or a categorized error.
func (c *Coordinator) Refresh(ctx context.Context, req RefreshRequest) (*RefreshResult, error) {
	if !req.DaemonRegistered {
		return nil, gsserrors.Wrap(gsserrors.AccessDenied, "no keying daemon available",
			gsserrors.New(gsserrors.DaemonAbsent, "no daemon has ever opened the upcall pipe"))
	}

	version, ok := c.pipe.scope.WaitForVersion(ctx, pipeVersionTimeout)
	if !ok {
		return nil, gsserrors.Wrap(gsserrors.AccessDenied, "no keying daemon available",
			gsserrors.New(gsserrors.DaemonAbsent, "timed out waiting for pipe version negotiation"))
	}
	defer c.pipe.scope.Release()

	message, err := c.encode(Version(version), req)
	if err != nil {
		return nil, err
	}

	candidate := NewUpcall(req.UID, req.Service)
	tracked, err := c.pipe.Enqueue(candidate, message)
	if err != nil {
		return nil, err
	}

	done := tracked.Join()
	select {
	case <-done:
	case <-ctx.Done():
		return nil, gsserrors.Wrap(gsserrors.Interrupted, "refresh canceled while waiting for downcall", ctx.Err())
	}

	downcall, resolveErr := tracked.Result()
	if resolveErr != nil {
		return nil, resolveErr
	}
	return c.interpret(req, downcall)
}

func (c *Coordinator) encode(version Version, req RefreshRequest) ([]byte, error) {
	upcallReq := UpcallRequest{
		UID:      req.UID,
		Mech:     req.Mechanism.Name(),
		Target:   req.Target,
		Service:  req.Service,
		Enctypes: req.Mechanism.Enctypes(),
	}
	switch version {
	case VersionBinary:
		return EncodeV0(upcallReq)
	case VersionText:
		return EncodeV1(upcallReq)
	default:
		return nil, gsserrors.New(gsserrors.Internal, "unknown pipe version")
	}
}

// interpret translates a parsed Downcall into either an established
// Context or a categorized failure, per spec.md section 4.3's error
// taxonomy.
func (c *Coordinator) interpret(req RefreshRequest, d *Downcall) (*RefreshResult, error) {
	if d.HasError {
		return c.interpretError(d.ErrorCode)
	}

	gctx, err := gsscontext.ImportFromDowncall(req.Mechanism, d.WireContext, d.SecContext, serviceCode(req.Service))
	if err != nil {
		return nil, gsserrors.Wrap(gsserrors.Internal, "mechanism rejected sec_context from downcall", err)
	}
	return &RefreshResult{Context: gctx}, nil
}

// Errno values the daemon may report in a downcall's error_code field,
// mirroring linux/errno.h.
const (
	errnoEACCES      = 13
	errnoEKEYEXPIRED = 127
)

func (c *Coordinator) interpretError(code int32) (*RefreshResult, error) {
	switch code {
	case errnoEKEYEXPIRED:
		return &RefreshResult{Negative: true, NegativeCooldown: defaultNegativeCooldown}, nil
	case errnoEACCES:
		return nil, gsserrors.New(gsserrors.AccessDenied, "daemon refused credential request")
	default:
		return nil, gsserrors.New(gsserrors.AccessDenied, "daemon reported an error")
	}
}

// serviceCode maps the upcall's textual service name to the wire
// service-level constant the Context records, defaulting to
// integrity-only when unspecified.
func serviceCode(service string) int {
	switch service {
	case "privacy":
		return 3
	case "none":
		return 1
	default:
		return 2
	}
}
