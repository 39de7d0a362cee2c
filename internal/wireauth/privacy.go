package wireauth

import (
	"bytes"
	"encoding/binary"

	"github.com/marmos91/gssauth/internal/gsscontext"
	"github.com/marmos91/gssauth/internal/gsserrors"
)

// pageSize mirrors the host page size the RPC framework buffers
// against; only used to size the shadow ciphertext allocation, never
// to pad the wire format itself.
const pageSize = 4096

// wrapPrivacy seals [seqno || body] with gss_wrap and lays out
// [opaque_len u32][ciphertext][zero padding to 4 bytes].
func wrapPrivacy(ctx *gsscontext.Context, seq uint32, body []byte) ([]byte, error) {
	var plain bytes.Buffer
	binary.Write(&plain, binary.BigEndian, seq)
	plain.Write(body)

	// shadowPages stands in for alloc_enc_pages's rq_enc_pages array: a
	// scratch buffer sized to hold the ciphertext without aliasing the
	// plaintext, even though this engine's gss_wrap returns a fresh
	// slice rather than encrypting into caller-supplied pages.
	shadowPages := make([]byte, shadowPageCount(0, plain.Len())*pageSize)

	ciphertext, err := ctx.Wrap(true, plain.Bytes())
	if err != nil {
		return nil, gsserrors.Wrap(gsserrors.ContextExpired, "privacy wrap failed", err)
	}
	if len(ciphertext) > len(shadowPages) {
		return nil, gsserrors.New(gsserrors.Internal, "privacy ciphertext exceeds shadow page allocation")
	}
	sealed := shadowPages[:copy(shadowPages, ciphertext)]

	var out bytes.Buffer
	binary.Write(&out, binary.BigEndian, uint32(len(sealed)))
	out.Write(sealed)
	if pad := (4 - len(sealed)%4) % 4; pad > 0 {
		out.Write(make([]byte, pad))
	}
	return out.Bytes(), nil
}

// unwrapPrivacy reads opaque_len, truncates to the ciphertext, calls
// gss_unwrap, and checks the leading sequence number.
func unwrapPrivacy(ctx *gsscontext.Context, seq uint32, reply []byte) ([]byte, error) {
	if len(reply) < 4 {
		return nil, gsserrors.New(gsserrors.Protocol, "privacy reply too short")
	}
	opaqueLen := binary.BigEndian.Uint32(reply[:4])
	if uint64(4+opaqueLen) > uint64(len(reply)) {
		return nil, gsserrors.New(gsserrors.Protocol, "privacy reply opaque_len overruns buffer")
	}
	ciphertext := reply[4 : 4+opaqueLen]

	plain, _, err := ctx.Unwrap(ciphertext)
	if err != nil {
		return nil, gsserrors.Wrap(gsserrors.ContextExpired, "privacy unwrap failed", err)
	}

	if len(plain) < 4 {
		return nil, gsserrors.New(gsserrors.Protocol, "privacy reply plaintext missing seqno")
	}
	gotSeq := binary.BigEndian.Uint32(plain[:4])
	if gotSeq != seq {
		return nil, gsserrors.New(gsserrors.Protocol, "privacy reply sequence number mismatch")
	}
	return plain[4:], nil
}

// shadowPageCount returns the number of pages needed to hold a
// ciphertext of pageLen bytes starting at byte offset pageBase within
// the first page, per the ceil((page_base+page_len)/PAGE_SIZE)+1
// allocation rule.
func shadowPageCount(pageBase, pageLen int) int {
	return (pageBase+pageLen+pageSize-1)/pageSize + 1
}
