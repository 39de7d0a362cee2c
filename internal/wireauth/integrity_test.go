package wireauth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/gssauth/internal/gsscontext"
)

func TestWrapRequestNoneReturnsBodyUnchanged(t *testing.T) {
	ctx := newTestContext()
	out, err := WrapRequest(ctx, ServiceNone, 1, []byte("body"))
	require.NoError(t, err)
	assert.Equal(t, []byte("body"), out)
}

func TestWrapUnwrapIntegrityRoundTrip(t *testing.T) {
	ctx := newTestContext()
	wrapped, err := WrapRequest(ctx, ServiceIntegrity, 1, []byte("body"))
	require.NoError(t, err)

	unwrapped, err := UnwrapResponse(ctx, ServiceIntegrity, 1, wrapped)
	require.NoError(t, err)
	assert.Equal(t, []byte("body"), unwrapped)
}

func TestUnwrapIntegrityRejectsSequenceMismatch(t *testing.T) {
	ctx := newTestContext()
	wrapped, err := WrapRequest(ctx, ServiceIntegrity, 1, []byte("body"))
	require.NoError(t, err)

	_, err = UnwrapResponse(ctx, ServiceIntegrity, 2, wrapped)
	assert.Error(t, err)
}

func TestUnwrapIntegrityRejectsTruncatedReply(t *testing.T) {
	ctx := newTestContext()
	_, err := UnwrapResponse(ctx, ServiceIntegrity, 1, []byte{0, 0})
	assert.Error(t, err)
}

func TestUnwrapIntegrityRejectsTamperedMIC(t *testing.T) {
	ctx := newTestContext()
	wrapped, err := WrapRequest(ctx, ServiceIntegrity, 1, []byte("body"))
	require.NoError(t, err)

	tampered := append([]byte{}, wrapped...)
	tampered[len(tampered)-1] ^= 0xFF

	failCtx := gsscontext.New(&fakeMechanism{failVerify: true}, fakeSecContext{}, nil, int(ServiceIntegrity))
	_, err = UnwrapResponse(failCtx, ServiceIntegrity, 1, tampered)
	assert.Error(t, err)
}
