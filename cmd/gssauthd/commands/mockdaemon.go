package commands

import (
	"bytes"
	"encoding/binary"
	"time"

	"github.com/marmos91/gssauth/internal/protocol/xdr"
)

// nativeEndian is the host's byte order. The downcall envelope (uid,
// timeout_seconds, window_size, netobj lengths) is native-endian, the
// same way gss_fill_context reads it with a raw memcpy; only the
// mechanism's own sec_context blob is XDR (big-endian).
var nativeEndian = binary.NativeEndian

// fakeDowncall builds a binary downcall (spec section 6 layout) carrying
// a synthetic krb5 sec_context, standing in for what gssd would send
// back after a real AP-REQ/AP-REP exchange. It exists only so probe can
// exercise the upcall/coordinator/credential wiring end to end without a
// real daemon or KDC.
func fakeDowncall(uid uint32, expiry time.Time) []byte {
	var buf bytes.Buffer
	_ = binary.Write(&buf, nativeEndian, uid)
	_ = binary.Write(&buf, nativeEndian, uint32(3600)) // timeout_seconds
	_ = binary.Write(&buf, nativeEndian, uint32(1))    // window_size (non-zero: success path)

	wireContext := []byte("probe-wire-context")
	writeNetobj(&buf, wireContext)

	secContext := fakeKrb5SecContext(expiry)
	_ = binary.Write(&buf, nativeEndian, uint32(len(secContext)))
	buf.Write(secContext)

	return buf.Bytes()
}

// writeNetobj appends a 4-byte-length-prefixed, unpadded byte string.
func writeNetobj(buf *bytes.Buffer, data []byte) {
	_ = binary.Write(buf, nativeEndian, uint32(len(data)))
	buf.Write(data)
}

// fakeKrb5SecContext builds the private XDR triple mech/krb5.go's
// ImportSecContext expects: enctype, key, flags. expiry is not encoded
// here; the mock daemon has no way to carry it through this blob, so the
// probe's resulting Context reports no expiry.
func fakeKrb5SecContext(_ time.Time) []byte {
	var buf bytes.Buffer
	_ = xdr.WriteInt32(&buf, 18) // aes256-cts-hmac-sha1-96
	_ = xdr.WriteXDROpaque(&buf, bytes.Repeat([]byte{0x42}, 32))
	_ = xdr.WriteUint32(&buf, 0) // flags: no acceptor subkey
	return buf.Bytes()
}
