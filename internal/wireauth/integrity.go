package wireauth

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/marmos91/gssauth/internal/gsscontext"
	"github.com/marmos91/gssauth/internal/gsserrors"
)

// WrapRequest seals an already-XDR-encoded call body for the given
// service level and returns the bytes to place on the wire after the
// credential.
func WrapRequest(ctx *gsscontext.Context, service uint32, seq uint32, body []byte) ([]byte, error) {
	switch service {
	case ServiceNone:
		return body, nil
	case ServiceIntegrity:
		return wrapIntegrity(ctx, seq, body)
	case ServicePrivacy:
		return wrapPrivacy(ctx, seq, body)
	default:
		return nil, gsserrors.New(gsserrors.Internal, "unknown service level")
	}
}

// UnwrapResponse reverses WrapRequest, checking that the sequence number
// embedded in the response matches the one the request used.
func UnwrapResponse(ctx *gsscontext.Context, service uint32, seq uint32, reply []byte) ([]byte, error) {
	switch service {
	case ServiceNone:
		return reply, nil
	case ServiceIntegrity:
		return unwrapIntegrity(ctx, seq, reply)
	case ServicePrivacy:
		return unwrapPrivacy(ctx, seq, reply)
	default:
		return nil, gsserrors.New(gsserrors.Internal, "unknown service level")
	}
}

// wrapIntegrity lays out [integ_len u32][seqno u32][body][MIC opaque],
// where integ_len covers seqno+body but not the trailing MIC.
func wrapIntegrity(ctx *gsscontext.Context, seq uint32, body []byte) ([]byte, error) {
	var integ bytes.Buffer
	binary.Write(&integ, binary.BigEndian, seq)
	integ.Write(body)

	mic, err := ctx.GetMIC(integ.Bytes())
	if err != nil {
		return nil, gsserrors.Wrap(gsserrors.ContextExpired, "integrity wrap failed", err)
	}

	var out bytes.Buffer
	binary.Write(&out, binary.BigEndian, uint32(integ.Len()))
	out.Write(integ.Bytes())
	writeOpaque(&out, mic)
	return out.Bytes(), nil
}

// unwrapIntegrity reads integ_len, the seqno+body it covers, and the
// MIC that follows, verifies the MIC, and checks the sequence number.
func unwrapIntegrity(ctx *gsscontext.Context, seq uint32, reply []byte) ([]byte, error) {
	if len(reply) < 4 {
		return nil, gsserrors.New(gsserrors.Protocol, "integrity reply too short")
	}
	integLen := binary.BigEndian.Uint32(reply[:4])
	if uint64(4+integLen) > uint64(len(reply)) {
		return nil, gsserrors.New(gsserrors.Protocol, "integrity reply integ_len overruns buffer")
	}

	integBody := reply[4 : 4+integLen]
	micBytes, err := readOpaque(reply[4+integLen:])
	if err != nil {
		return nil, gsserrors.Wrap(gsserrors.Protocol, "integrity reply MIC malformed", err)
	}

	if err := ctx.VerifyMIC(integBody, micBytes); err != nil {
		return nil, gsserrors.Wrap(gsserrors.Protocol, "integrity reply MIC verification failed", err)
	}

	if len(integBody) < 4 {
		return nil, gsserrors.New(gsserrors.Protocol, "integrity reply body missing seqno")
	}
	gotSeq := binary.BigEndian.Uint32(integBody[:4])
	if gotSeq != seq {
		return nil, gsserrors.New(gsserrors.Protocol, "integrity reply sequence number mismatch")
	}
	return integBody[4:], nil
}

// writeOpaque writes a 4-byte length prefix, the bytes, and XDR padding
// to the next 4-byte boundary.
func writeOpaque(buf *bytes.Buffer, data []byte) {
	binary.Write(buf, binary.BigEndian, uint32(len(data)))
	buf.Write(data)
	if pad := (4 - len(data)%4) % 4; pad > 0 {
		buf.Write(make([]byte, pad))
	}
}

// readOpaque reads one length-prefixed, padded opaque off the front of
// data and returns just its payload.
func readOpaque(data []byte) ([]byte, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("opaque length field truncated")
	}
	length := binary.BigEndian.Uint32(data[:4])
	end := 4 + uint64(length)
	if end > uint64(len(data)) {
		return nil, fmt.Errorf("opaque payload truncated")
	}
	return data[4:end], nil
}
