// Package upcall implements the half-duplex message channel to the
// user-space keying daemon: pipe version negotiation, upcall encoding in
// either wire generation the daemon speaks, downcall parsing, and the
// coordinator that de-duplicates concurrent refreshes and delivers
// results back to waiting callers.
package upcall

import (
	"bytes"
	"fmt"

	"github.com/marmos91/gssauth/internal/gsserrors"
)

// Version identifies which wire generation a Pipe speaks.
type Version int

const (
	// VersionBinary is the legacy v0 pipe: a bare native-endian uid_t.
	VersionBinary Version = 0
	// VersionText is the v1 "gssd" pipe: space-separated key=value text.
	VersionText Version = 1
)

// maxMessageLen bounds both upcall wire generations per spec section 6.
const maxMessageLen = 128

// maxDowncallLen bounds the downcall payload per spec section 6.
const maxDowncallLen = 1024

// UpcallRequest carries everything a candidate upcall needs to encode
// itself for whichever pipe version is active.
type UpcallRequest struct {
	UID      uint32
	Mech     string
	Target   string
	Service  string
	Enctypes string
}

// EncodeV0 renders the legacy binary upcall: 4 bytes, native-endian
// uid_t. Native endianness is a deliberate open question left unresolved
// (see DESIGN.md) — this engine always encodes with the host's byte
// order via binary.NativeEndian's byte-order-equivalent, matching what a
// same-host daemon expects.
func EncodeV0(req UpcallRequest) ([]byte, error) {
	buf := make([]byte, 4)
	nativeEndian.PutUint32(buf, req.UID)
	if len(buf) > maxMessageLen {
		return nil, gsserrors.New(gsserrors.Internal, "v0 upcall message overflow")
	}
	return buf, nil
}

// EncodeV1 renders the text upcall:
//
//	mech=<name> uid=<decimal> [target=<string>] [service=<string>] [enctypes=<csv>]\n
func EncodeV1(req UpcallRequest) ([]byte, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "mech=%s uid=%d", req.Mech, req.UID)
	if req.Target != "" {
		fmt.Fprintf(&buf, " target=%s", req.Target)
	}
	if req.Service != "" {
		fmt.Fprintf(&buf, " service=%s", req.Service)
	}
	if req.Enctypes != "" {
		fmt.Fprintf(&buf, " enctypes=%s", req.Enctypes)
	}
	buf.WriteByte('\n')

	if buf.Len() > maxMessageLen {
		return nil, gsserrors.New(gsserrors.Internal, "v1 upcall message overflow")
	}
	return buf.Bytes(), nil
}

// Downcall is the parsed result of a downcall message, valid in both
// wire generations.
type Downcall struct {
	UID            uint32
	TimeoutSeconds uint32
	WindowSize     uint32

	// ErrorCode is set (non-zero validity via HasError) when
	// WindowSize == 0: the daemon reports failure instead of a context.
	ErrorCode int32
	HasError  bool

	WireContext  []byte
	SecContext   []byte
	AcceptorName []byte // optional; nil if absent
}

// DecodeDowncall parses the binary downcall body common to both pipe
// versions, per spec section 6:
//
//	u32 uid
//	u32 timeout_seconds (0 => default 3600)
//	u32 window_size     (0 => error frame follows)
//	  if window_size == 0: i32 error_code
//	  else: netobj wire_context, u32 sec_context_len, bytes sec_context,
//	        netobj acceptor_name (optional)
//
// A netobj is a 4-byte length prefix followed by that many bytes, with
// no padding (unlike XDR opaque). Every multi-byte field is native-endian:
// gss_fill_context reads them with simple_get_bytes, a raw memcpy, not
// a byte-swapping decode.
func DecodeDowncall(data []byte) (*Downcall, error) {
	if len(data) > maxDowncallLen {
		return nil, gsserrors.New(gsserrors.Protocol, "downcall exceeds maximum size")
	}

	r := bytes.NewReader(data)
	d := &Downcall{}

	var err error
	if d.UID, err = readU32(r); err != nil {
		return nil, gsserrors.Wrap(gsserrors.Protocol, "truncated downcall: uid", err)
	}
	if d.TimeoutSeconds, err = readU32(r); err != nil {
		return nil, gsserrors.Wrap(gsserrors.Protocol, "truncated downcall: timeout_seconds", err)
	}
	if d.TimeoutSeconds == 0 {
		d.TimeoutSeconds = 3600
	}
	if d.WindowSize, err = readU32(r); err != nil {
		return nil, gsserrors.Wrap(gsserrors.Protocol, "truncated downcall: window_size", err)
	}

	if d.WindowSize == 0 {
		code, err := readU32(r)
		if err != nil {
			return nil, gsserrors.Wrap(gsserrors.Protocol, "truncated downcall: error_code", err)
		}
		d.ErrorCode = int32(code)
		d.HasError = true
		return d, nil
	}

	if d.WireContext, err = readNetobj(r); err != nil {
		return nil, gsserrors.Wrap(gsserrors.Protocol, "truncated downcall: wire_context", err)
	}

	secLen, err := readU32(r)
	if err != nil {
		return nil, gsserrors.Wrap(gsserrors.Protocol, "truncated downcall: sec_context_len", err)
	}
	secCtx := make([]byte, secLen)
	if _, err := readFull(r, secCtx); err != nil {
		return nil, gsserrors.Wrap(gsserrors.Protocol, "truncated downcall: sec_context", err)
	}
	d.SecContext = secCtx

	if r.Len() > 0 {
		if d.AcceptorName, err = readNetobj(r); err != nil {
			return nil, gsserrors.Wrap(gsserrors.Protocol, "truncated downcall: acceptor_name", err)
		}
	}

	return d, nil
}

func readU32(r *bytes.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := readFull(r, buf[:]); err != nil {
		return 0, err
	}
	return nativeEndian.Uint32(buf[:]), nil
}

func readFull(r *bytes.Reader, buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	n := 0
	for n < len(buf) {
		m, err := r.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

// readNetobj reads a 4-byte-length-prefixed, unpadded byte string.
func readNetobj(r *bytes.Reader) ([]byte, error) {
	length, err := readU32(r)
	if err != nil {
		return nil, err
	}
	const maxNetobjLen = maxDowncallLen
	if length > maxNetobjLen {
		return nil, fmt.Errorf("netobj length %d exceeds maximum", length)
	}
	buf := make([]byte, length)
	if _, err := readFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// extractUID peeks the uid out of a raw downcall without fully parsing
// it, the way deliver_downcall must before it can find the matching
// pending Upcall. Native-endian, like the rest of the downcall: the
// kernel's gss_fill_context reads every field via simple_get_bytes, a
// raw memcpy with no byte-swap.
func extractUID(data []byte) (uint32, error) {
	if len(data) < 4 {
		return 0, gsserrors.New(gsserrors.Protocol, "downcall shorter than uid field")
	}
	return nativeEndian.Uint32(data[:4]), nil
}
