package wireauth

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/gssauth/internal/gsscontext"
	"github.com/marmos91/gssauth/internal/mech"
)

// fakeSecContext/fakeMechanism provide a minimal mechanism whose MIC is
// just a recognizable transform of its input, so tests can assert on
// wire shape without real cryptography.
type fakeSecContext struct{}

func (fakeSecContext) Expiry() (int64, bool) { return 0, false }

type fakeMechanism struct {
	failVerify bool
}

func (*fakeMechanism) Name() string     { return "fake" }
func (*fakeMechanism) Enctypes() string { return "" }
func (*fakeMechanism) PseudoflavorToService(uint32) (int, bool) { return 0, false }
func (*fakeMechanism) ImportSecContext([]byte) (mech.SecContext, error) {
	return fakeSecContext{}, nil
}
func (*fakeMechanism) GetMIC(mech.SecContext, uint32, []byte) ([]byte, error) {
	return []byte("mic"), nil
}
func (m *fakeMechanism) VerifyMIC(mech.SecContext, []byte, []byte) error {
	if m.failVerify {
		return errors.New("verify failed")
	}
	return nil
}
func (*fakeMechanism) Wrap(_ mech.SecContext, _ bool, message []byte) ([]byte, error) {
	out := make([]byte, len(message))
	for i, b := range message {
		out[i] = b ^ 0xFF
	}
	return out, nil
}
func (*fakeMechanism) Unwrap(_ mech.SecContext, token []byte) ([]byte, bool, error) {
	out := make([]byte, len(token))
	for i, b := range token {
		out[i] = b ^ 0xFF
	}
	return out, true, nil
}
func (*fakeMechanism) DeleteSecContext(mech.SecContext) error { return nil }

func newTestContext() *gsscontext.Context {
	return gsscontext.New(&fakeMechanism{}, fakeSecContext{}, []byte("handle"), int(ServiceIntegrity))
}

func TestEncodeDecodeCredentialRoundTrip(t *testing.T) {
	cred := Credential{GSSProc: ProcData, SeqNum: 7, Service: ServiceIntegrity, Handle: []byte("handle")}
	encoded, err := EncodeCredential(cred)
	require.NoError(t, err)

	decoded, err := DecodeCredential(encoded)
	require.NoError(t, err)
	assert.Equal(t, cred.GSSProc, decoded.GSSProc)
	assert.Equal(t, cred.SeqNum, decoded.SeqNum)
	assert.Equal(t, cred.Service, decoded.Service)
	assert.Equal(t, cred.Handle, decoded.Handle)
}

func TestDecodeCredentialRejectsBadVersion(t *testing.T) {
	var buf bytes.Buffer
	binary.Write(&buf, binary.BigEndian, uint32(2))
	binary.Write(&buf, binary.BigEndian, uint32(0))
	binary.Write(&buf, binary.BigEndian, uint32(0))
	binary.Write(&buf, binary.BigEndian, uint32(0))
	binary.Write(&buf, binary.BigEndian, uint32(0))

	_, err := DecodeCredential(buf.Bytes())
	assert.Error(t, err)
}

func TestMarshalCallProducesCredentialAndVerifier(t *testing.T) {
	ctx := newTestContext()
	credBytes, verifier, seq, err := MarshalCall(ctx, ProcData, ServiceIntegrity, []byte("handle"), []byte("xid+header"))
	require.NoError(t, err)
	assert.NotEmpty(t, credBytes)
	assert.Equal(t, AuthRPCSECGSS, verifier.Flavor)
	assert.Equal(t, []byte("mic"), verifier.MIC)
	assert.Equal(t, uint32(1), seq)

	decoded, err := DecodeCredential(credBytes)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), decoded.SeqNum)
}

func TestValidateReplyAcceptsMatchingVerifier(t *testing.T) {
	ctx := newTestContext()
	err := ValidateReply(ctx, 1, Verifier{Flavor: AuthRPCSECGSS, MIC: []byte("mic")})
	assert.NoError(t, err)
}

func TestValidateReplyRejectsWrongFlavor(t *testing.T) {
	ctx := newTestContext()
	err := ValidateReply(ctx, 1, Verifier{Flavor: 99, MIC: []byte("mic")})
	assert.Error(t, err)
}

func TestValidateReplyRejectsFailedMIC(t *testing.T) {
	ctx := gsscontext.New(&fakeMechanism{failVerify: true}, fakeSecContext{}, nil, int(ServiceIntegrity))
	err := ValidateReply(ctx, 1, Verifier{Flavor: AuthRPCSECGSS, MIC: []byte("mic")})
	assert.Error(t, err)
}
