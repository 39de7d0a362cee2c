package upcall

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/gssauth/internal/netscope"
)

func newTestPipe(t *testing.T) (*Pipe, net.Conn) {
	t.Helper()
	server, client := net.Pipe()
	t.Cleanup(func() { server.Close() })

	p := NewPipe("gssd", VersionText, netscope.New(), client)
	require.NoError(t, p.Open())
	return p, server
}

func TestPipeEnqueueWritesMessage(t *testing.T) {
	p, server := newTestPipe(t)

	u := NewUpcall(1000, "integrity")
	go func() {
		_, err := p.Enqueue(u, []byte("mech=krb5 uid=1000\n"))
		assert.NoError(t, err)
	}()

	buf := make([]byte, 64)
	n, err := server.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "mech=krb5 uid=1000\n", string(buf[:n]))
}

func TestPipeEnqueueDedupesBySameUIDAndService(t *testing.T) {
	p, server := newTestPipe(t)
	go io.Copy(io.Discard, server)

	first := NewUpcall(1000, "integrity")
	tracked1, err := p.Enqueue(first, []byte("first\n"))
	require.NoError(t, err)

	second := NewUpcall(1000, "integrity")
	tracked2, err := p.Enqueue(second, []byte("second\n"))
	require.NoError(t, err)

	assert.Same(t, tracked1, tracked2, "second caller should join the existing pending upcall")
}

func TestPipeEnqueueDoesNotDedupeAcrossServices(t *testing.T) {
	p, server := newTestPipe(t)
	go io.Copy(io.Discard, server)

	integrity := NewUpcall(1000, "integrity")
	tracked1, err := p.Enqueue(integrity, []byte("first\n"))
	require.NoError(t, err)

	privacy := NewUpcall(1000, "privacy")
	tracked2, err := p.Enqueue(privacy, []byte("second\n"))
	require.NoError(t, err)

	assert.NotSame(t, tracked1, tracked2, "same uid but different service must not collide into one upcall")
}

func TestPipeDeliverDowncallResolvesMatchingUpcall(t *testing.T) {
	p, _ := newTestPipe(t)

	u := NewUpcall(1000, "integrity")
	_, installed := p.lookupOrInstall(u)
	require.True(t, installed)

	var raw []byte
	raw = appendU32(raw, 1000)
	raw = appendU32(raw, 0)
	raw = appendU32(raw, 0)
	raw = appendU32(raw, 13)

	require.NoError(t, p.DeliverDowncall(raw))

	d, resolveErr := u.Result()
	require.NoError(t, resolveErr)
	assert.True(t, d.HasError)
}

func TestPipeDeliverDowncallWithNoMatchIsIgnored(t *testing.T) {
	p, _ := newTestPipe(t)

	var raw []byte
	raw = appendU32(raw, 9999)
	raw = appendU32(raw, 0)
	raw = appendU32(raw, 0)
	raw = appendU32(raw, 13)

	assert.NoError(t, p.DeliverDowncall(raw))
}

func TestPipeReleaseFailsPendingUpcalls(t *testing.T) {
	p, server := newTestPipe(t)

	u := NewUpcall(1000, "integrity")
	go func() { p.Enqueue(u, []byte("x")) }()

	buf := make([]byte, 16)
	_, err := server.Read(buf)
	require.NoError(t, err)

	done := u.Join()
	require.NoError(t, p.Release())

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("upcall not resolved after pipe release")
	}

	_, resolveErr := u.Result()
	assert.Error(t, resolveErr)
}
