package mech

import (
	"encoding/binary"
	"testing"

	"github.com/jcmturner/gokrb5/v8/crypto"
	"github.com/jcmturner/gokrb5/v8/gssapi"
	krbtypes "github.com/jcmturner/gokrb5/v8/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSessionKey() krbtypes.EncryptionKey {
	key := krbtypes.EncryptionKey{
		KeyType:  17, // aes128-cts-hmac-sha1-96
		KeyValue: make([]byte, 16),
	}
	for i := range key.KeyValue {
		key.KeyValue[i] = byte(i + 1)
	}
	return key
}

func encodeSecContext(t *testing.T, key krbtypes.EncryptionKey, acceptorSubkey bool) []byte {
	t.Helper()

	var buf []byte
	buf = appendInt32(buf, key.KeyType)
	buf = appendOpaque(buf, key.KeyValue)
	flags := uint32(0)
	if acceptorSubkey {
		flags |= 0x1
	}
	buf = appendUint32(buf, flags)
	return buf
}

func appendInt32(buf []byte, v int32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, uint32(v))
	return append(buf, b...)
}

func appendUint32(buf []byte, v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return append(buf, b...)
}

func appendOpaque(buf []byte, data []byte) []byte {
	buf = appendUint32(buf, uint32(len(data)))
	buf = append(buf, data...)
	for len(buf)%4 != 0 {
		buf = append(buf, 0)
	}
	return buf
}

func newTestContext(t *testing.T) SecContext {
	t.Helper()
	m := NewKrb5Mechanism()
	ctx, err := m.ImportSecContext(encodeSecContext(t, testSessionKey(), false))
	require.NoError(t, err)
	return ctx
}

func TestImportSecContextRoundTrip(t *testing.T) {
	m := NewKrb5Mechanism()
	ctx, err := m.ImportSecContext(encodeSecContext(t, testSessionKey(), true))
	require.NoError(t, err)

	kc, ok := ctx.(*krb5Context)
	require.True(t, ok)
	assert.Equal(t, testSessionKey().KeyValue, kc.key.KeyValue)
	assert.True(t, kc.hasAcceptorSubkey)
}

func TestGetMICVerifiableByAcceptor(t *testing.T) {
	key := testSessionKey()
	m := NewKrb5Mechanism()
	ctx, err := m.ImportSecContext(encodeSecContext(t, key, false))
	require.NoError(t, err)

	message := []byte("hello rpc")
	mic, err := m.GetMIC(ctx, 0, message)
	require.NoError(t, err)

	var token gssapi.MICToken
	require.NoError(t, token.Unmarshal(mic, false /* from initiator */))
	token.Payload = message
	ok, err := token.Verify(key, keyUsageInitiatorSign)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifyMICFromAcceptor(t *testing.T) {
	key := testSessionKey()
	message := []byte("reply payload")

	token := gssapi.MICToken{
		Flags:   gssapi.MICTokenFlagSentByAcceptor,
		Payload: message,
	}
	require.NoError(t, token.SetChecksum(key, keyUsageAcceptorSign))
	micBytes, err := token.Marshal()
	require.NoError(t, err)

	m := NewKrb5Mechanism()
	ctx := newTestContext(t)

	err = m.VerifyMIC(ctx, message, micBytes)
	assert.NoError(t, err)
}

func TestVerifyMICRejectsTamperedPayload(t *testing.T) {
	key := testSessionKey()
	token := gssapi.MICToken{
		Flags:   gssapi.MICTokenFlagSentByAcceptor,
		Payload: []byte("reply payload"),
	}
	require.NoError(t, token.SetChecksum(key, keyUsageAcceptorSign))
	micBytes, err := token.Marshal()
	require.NoError(t, err)

	m := NewKrb5Mechanism()
	ctx := newTestContext(t)

	err = m.VerifyMIC(ctx, []byte("different payload"), micBytes)
	assert.Error(t, err)
}

func TestWrapUnwrapIntegrityOnlyRoundTrip(t *testing.T) {
	key := testSessionKey()
	m := NewKrb5Mechanism()
	ctx, err := m.ImportSecContext(encodeSecContext(t, key, false))
	require.NoError(t, err)

	message := []byte("procedure args")
	token, err := m.Wrap(ctx, false, message)
	require.NoError(t, err)

	var wt gssapi.WrapToken
	require.NoError(t, wt.Unmarshal(token, false /* from initiator */))
	ok, err := wt.Verify(key, keyUsageInitiatorSeal)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, message, wt.Payload)
}

func TestUnwrapIntegrityOnlyFromAcceptor(t *testing.T) {
	key := testSessionKey()
	encType, err := crypto.GetEtype(key.KeyType)
	require.NoError(t, err)

	message := []byte("reply args")
	wt := gssapi.WrapToken{
		Flags:     gssapi.MICTokenFlagSentByAcceptor,
		EC:        uint16(encType.GetHMACBitLength() / 8),
		Payload:   message,
	}
	require.NoError(t, wt.SetCheckSum(key, keyUsageAcceptorSeal))
	token, err := wt.Marshal()
	require.NoError(t, err)

	m := NewKrb5Mechanism()
	ctx := newTestContext(t)

	out, sealed, err := m.Unwrap(ctx, token)
	require.NoError(t, err)
	assert.False(t, sealed)
	assert.Equal(t, message, out)
}

func TestWrapUnwrapPrivacyRoundTrip(t *testing.T) {
	key := testSessionKey()
	m := NewKrb5Mechanism()
	ctx, err := m.ImportSecContext(encodeSecContext(t, key, false))
	require.NoError(t, err)

	message := []byte("secret procedure args")
	sealed, err := m.Wrap(ctx, true, message)
	require.NoError(t, err)
	assert.Equal(t, byte(0x05), sealed[0])
	assert.Equal(t, byte(0x04), sealed[1])

	// Build the mirror-image acceptor-sent sealed token and unwrap it.
	flags := byte(0x02 | 0x01) // sealed | sent-by-acceptor
	header := make([]byte, wrapTokenHdrLen)
	header[0], header[1] = 0x05, 0x04
	header[2] = flags
	header[3] = 0xFF

	toEncrypt := make([]byte, len(message)+wrapTokenHdrLen)
	copy(toEncrypt, message)
	copy(toEncrypt[len(message):], header)

	encType, err := crypto.GetEtype(key.KeyType)
	require.NoError(t, err)
	_, ciphertext, err := encType.EncryptMessage(key.KeyValue, toEncrypt, keyUsageAcceptorSeal)
	require.NoError(t, err)

	acceptorToken := make([]byte, wrapTokenHdrLen+len(ciphertext))
	copy(acceptorToken, header)
	copy(acceptorToken[wrapTokenHdrLen:], ciphertext)

	out, wasConf, err := m.Unwrap(ctx, acceptorToken)
	require.NoError(t, err)
	assert.True(t, wasConf)
	assert.Equal(t, message, out)
}

func TestDeleteSecContextZeroesKey(t *testing.T) {
	m := NewKrb5Mechanism()
	ctx, err := m.ImportSecContext(encodeSecContext(t, testSessionKey(), false))
	require.NoError(t, err)

	require.NoError(t, m.DeleteSecContext(ctx))

	kc := ctx.(*krb5Context)
	for _, b := range kc.key.KeyValue {
		assert.Equal(t, byte(0), b)
	}
}

func TestPseudoflavorToService(t *testing.T) {
	m := NewKrb5Mechanism()

	svc, ok := m.PseudoflavorToService(390003)
	require.True(t, ok)
	assert.Equal(t, 1, svc)

	svc, ok = m.PseudoflavorToService(390004)
	require.True(t, ok)
	assert.Equal(t, 2, svc)

	svc, ok = m.PseudoflavorToService(390005)
	require.True(t, ok)
	assert.Equal(t, 3, svc)

	_, ok = m.PseudoflavorToService(12345)
	assert.False(t, ok)
}
