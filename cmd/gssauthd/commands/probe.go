package commands

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/gssauth/internal/authregistry"
	"github.com/marmos91/gssauth/internal/logger"
	"github.com/marmos91/gssauth/internal/mech"
	"github.com/marmos91/gssauth/internal/netscope"
	"github.com/marmos91/gssauth/internal/upcall"
	"github.com/marmos91/gssauth/internal/wireauth"
	"github.com/marmos91/gssauth/pkg/gssconfig"
	"github.com/marmos91/gssauth/pkg/gssmetrics"
)

var probeTarget string

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Exercise one manual credential refresh against an in-memory mock daemon",
	Long: `probe wires up configuration, logging, metrics, the mechanism
registry, and the Auth registry the way a real RPC client embedding this
engine would, then drives a single refresh against an in-memory daemon
stand-in (no real gssd is involved). It prints the resulting Context and
a sample wrapped call, then exits.`,
	RunE: runProbe,
}

func init() {
	probeCmd.Flags().StringVar(&probeTarget, "target", "nfs@localhost", "acceptor principal to request")
}

func runProbe(cmd *cobra.Command, args []string) error {
	cfg, err := gssconfig.Load(GetConfigFile())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := logger.Init(logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Output: cfg.Logging.Output}); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	metrics := gssmetrics.New(nil)

	mechanisms := mech.NewRegistry()
	mechanisms.Register("krb5", mech.NewKrb5Mechanism)

	krb5, err := mechanisms.New("krb5")
	if err != nil {
		return fmt.Errorf("construct mechanism: %w", err)
	}

	registry := authregistry.NewRegistry()
	client := &probeClient{transport: 1}
	auth := registry.LookupOrCreate(client, 390003, probeTarget)
	defer auth.Release()

	clientConn, daemonConn := net.Pipe()
	defer clientConn.Close()

	scope := netscope.New()
	pipe := upcall.NewPipe(cfg.Pipes.BinaryPipeName, upcall.VersionBinary, scope, clientConn)
	if err := pipe.Open(); err != nil {
		return fmt.Errorf("open upcall pipe: %w", err)
	}
	defer pipe.Release()

	go pipe.ReadLoop()
	go runMockDaemon(daemonConn)

	coordinator := upcall.NewCoordinator(pipe)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Pipes.NegotiationTimeout)
	defer cancel()

	uid := uint32(1000)
	result, err := coordinator.Refresh(ctx, upcall.RefreshRequest{
		UID:              uid,
		Mechanism:        krb5,
		Target:           probeTarget,
		Service:          "integrity",
		DaemonRegistered: true,
	})
	if err != nil {
		return fmt.Errorf("refresh: %w", err)
	}
	if result.Negative {
		metrics.RecordDowncallError("key_expired")
		return fmt.Errorf("daemon reported the user's key as expired, retry after %s", result.NegativeCooldown)
	}
	metrics.RecordContextCreated()

	cred := auth.Credentials.LookupOrCreate(uid, probeTarget, wireauth.ServiceIntegrity)
	defer cred.Release()
	cred.AttachContext(result.Context)

	credBytes, verifier, wrapped, seq, err := cred.WrapRequest(wireauth.ProcData, result.Context.WireHandle, []byte("sample-header"), []byte("sample-call-body"))
	if err != nil {
		return fmt.Errorf("wrap sample request: %w", err)
	}

	cmd.Printf("context established: handle=%s expiry=%s\n", hex.EncodeToString(result.Context.WireHandle), result.Context.Expiry)
	cmd.Printf("sample request: seq=%d credential=%d bytes verifier_mic=%d bytes wrapped_body=%d bytes\n",
		seq, len(credBytes), len(verifier.MIC), len(wrapped))
	return nil
}

// probeClient is a minimal authregistry.Client with no parent.
type probeClient struct {
	transport uintptr
}

func (c *probeClient) TransportID() uintptr        { return c.transport }
func (c *probeClient) Parent() authregistry.Client { return nil }

// runMockDaemon stands in for gssd: it reads one v0 upcall and answers
// with a synthetic downcall carrying a fabricated wire context and
// sec_context blob. It never performs real Kerberos key exchange; it
// exists purely to exercise the upcall/pipe/coordinator wiring.
func runMockDaemon(conn io.ReadWriteCloser) {
	defer conn.Close()

	buf := make([]byte, 128)
	n, err := conn.Read(buf)
	if err != nil {
		logger.Warn("probe: mock daemon read failed", "error", err)
		return
	}
	_ = buf[:n] // the raw uid upcall; the mock daemon answers unconditionally

	downcall := fakeDowncall(1000, time.Now().Add(time.Hour))
	if _, err := conn.Write(downcall); err != nil {
		logger.Warn("probe: mock daemon write failed", "error", err)
	}
}
