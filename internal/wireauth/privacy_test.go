package wireauth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapUnwrapPrivacyRoundTrip(t *testing.T) {
	ctx := newTestContext()
	wrapped, err := WrapRequest(ctx, ServicePrivacy, 1, []byte("body"))
	require.NoError(t, err)

	unwrapped, err := UnwrapResponse(ctx, ServicePrivacy, 1, wrapped)
	require.NoError(t, err)
	assert.Equal(t, []byte("body"), unwrapped)
}

func TestUnwrapPrivacyRejectsSequenceMismatch(t *testing.T) {
	ctx := newTestContext()
	wrapped, err := WrapRequest(ctx, ServicePrivacy, 1, []byte("body"))
	require.NoError(t, err)

	_, err = UnwrapResponse(ctx, ServicePrivacy, 2, wrapped)
	assert.Error(t, err)
}

func TestUnwrapPrivacyRejectsTruncatedReply(t *testing.T) {
	ctx := newTestContext()
	_, err := UnwrapResponse(ctx, ServicePrivacy, 1, []byte{0, 0})
	assert.Error(t, err)
}

func TestShadowPageCount(t *testing.T) {
	assert.Equal(t, 2, shadowPageCount(0, 1))
	assert.Equal(t, 2, shadowPageCount(0, pageSize))
	assert.Equal(t, 3, shadowPageCount(0, pageSize+1))
	assert.Equal(t, 3, shadowPageCount(pageSize/2, pageSize))
}
