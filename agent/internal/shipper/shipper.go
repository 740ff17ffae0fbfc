package shipper

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/obsidianstack/valuemetric/agent/internal/config"
	"github.com/obsidianstack/valuemetric/pkg/report"
)

const (
	backoffInitial    = 1 * time.Second
	backoffMax        = 60 * time.Second
	backoffMultiplier = 2.0
	sendTimeout       = 10 * time.Second
)

// Shipper buffers encoded reports and ships them to the report server via gRPC.
// Ship() is non-blocking; when the buffer is full the oldest report is evicted.
// Run() must be called in a goroutine to drain the buffer and handle reconnection.
type Shipper struct {
	cfg    config.AgentConfig
	buf    chan []byte
	dialFn dialFunc // injectable for tests
}

// dialFunc is the function signature used to open a gRPC connection.
// Abstracted so tests can inject an in-process listener.
type dialFunc func(ctx context.Context, endpoint string, cfg config.AgentConfig) (*grpc.ClientConn, error)

// New creates a Shipper using the given agent config.
func New(cfg config.AgentConfig) *Shipper {
	return &Shipper{
		cfg:    cfg,
		buf:    make(chan []byte, cfg.BufferSize),
		dialFn: defaultDial,
	}
}

// Ship enqueues an encoded report.
// If the buffer is full the oldest entry is evicted to make room.
func (s *Shipper) Ship(payload []byte) {
	select {
	case s.buf <- payload:
	default:
		// Buffer full: drop the oldest report, keep the newest.
		select {
		case <-s.buf:
			evicted.Inc()
			slog.Warn("shipper: buffer full, evicted oldest report", "buffer_cap", cap(s.buf))
		default:
		}
		s.buf <- payload
	}
	buffered.Set(float64(len(s.buf)))
}

// Run sends buffered reports every ShipInterval.
// It reconnects with exponential backoff when the connection is lost.
// Run blocks until ctx is cancelled; on cancellation whatever is still
// buffered gets one last delivery attempt.
func (s *Shipper) Run(ctx context.Context) {
	bo := newBackoff()

	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := s.dialFn(ctx, s.cfg.ServerEndpoint, s.cfg)
		if err != nil {
			wait := bo.next()
			slog.Error("shipper: dial failed, will retry",
				"endpoint", s.cfg.ServerEndpoint,
				"err", err,
				"retry_in", wait)
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
				continue
			}
		}

		slog.Info("shipper: connected", "endpoint", s.cfg.ServerEndpoint)
		bo.reset()

		err = s.drain(ctx, conn)
		conn.Close()

		if ctx.Err() != nil {
			return
		}

		wait := bo.next()
		slog.Warn("shipper: connection lost, will reconnect",
			"endpoint", s.cfg.ServerEndpoint,
			"err", err,
			"retry_in", wait)
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

// drain sends the buffer on every tick until the connection fails or ctx is
// cancelled.
func (s *Shipper) drain(ctx context.Context, conn *grpc.ClientConn) error {
	interval := s.cfg.ShipInterval
	if interval <= 0 {
		interval = config.DefaultShipInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), sendTimeout)
			defer cancel()
			if err := s.sendBuffered(flushCtx, conn); err != nil {
				slog.Warn("shipper: final flush failed", "err", err, "remaining", len(s.buf))
			}
			return nil

		case <-ticker.C:
			if err := s.sendBuffered(ctx, conn); err != nil {
				return err
			}
		}
	}
}

// sendBuffered sends reports until the buffer is empty or a send fails with
// a transient error.
func (s *Shipper) sendBuffered(ctx context.Context, conn grpc.ClientConnInterface) error {
	for {
		var payload []byte
		select {
		case payload = <-s.buf:
		default:
			buffered.Set(0)
			return nil
		}

		sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
		if s.cfg.ServerAuth.Mode == "apikey" && s.cfg.ServerAuth.KeyEnv != "" {
			sendCtx = metadata.AppendToOutgoingContext(
				sendCtx,
				s.cfg.ServerAuth.EffectiveHeader(), s.cfg.ServerAuth.Key(),
			)
		}
		err := report.Send(sendCtx, conn, payload)
		cancel()

		if err == nil {
			sent.Inc()
			slog.Debug("shipper: report delivered", "bytes", len(payload))
			continue
		}
		failures.Inc()

		// Transient errors (unavailable, deadline exceeded) → reconnect.
		// Permanent errors (unauthenticated, invalid arg) → log and discard.
		if isPermanentError(err) {
			slog.Error("shipper: permanent send error, discarding report",
				"bytes", len(payload), "err", err)
			continue
		}

		// Put the report back if there's room.
		select {
		case s.buf <- payload:
		default:
			// Buffer refilled meanwhile; the newer reports win.
		}
		buffered.Set(float64(len(s.buf)))
		return fmt.Errorf("send: %w", err)
	}
}

// isPermanentError returns true for gRPC errors that indicate the report
// itself is invalid and should not be retried.
func isPermanentError(err error) bool {
	code := status.Code(err)
	switch code {
	case codes.InvalidArgument, codes.Unauthenticated, codes.PermissionDenied:
		return true
	}
	return false
}

// defaultDial opens a gRPC connection to endpoint with auth configured from cfg.
func defaultDial(ctx context.Context, endpoint string, cfg config.AgentConfig) (*grpc.ClientConn, error) {
	opts, err := dialOptions(cfg)
	if err != nil {
		return nil, err
	}
	return grpc.DialContext(ctx, endpoint, opts...) //nolint:staticcheck // deprecated in 1.63 but DialContext is used for compat
}

// dialOptions builds grpc.DialOption slice based on the server auth config.
func dialOptions(cfg config.AgentConfig) ([]grpc.DialOption, error) {
	switch cfg.ServerAuth.Mode {
	case "mtls":
		creds, err := buildMTLSCreds(cfg.ServerAuth)
		if err != nil {
			return nil, fmt.Errorf("shipper: build mtls creds: %w", err)
		}
		return []grpc.DialOption{grpc.WithTransportCredentials(creds)}, nil

	default: // "apikey" (key sent per call), "none" or empty
		return []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, nil
	}
}

// buildMTLSCreds loads client certificate and optional CA from the auth config.
func buildMTLSCreds(auth config.AuthConfig) (credentials.TransportCredentials, error) {
	cert, err := tls.LoadX509KeyPair(auth.CertFile, auth.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("load client cert: %w", err)
	}

	tlsCfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
	}

	if auth.CAFile != "" {
		caPEM, err := os.ReadFile(auth.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read ca file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, fmt.Errorf("no valid certs in ca file %q", auth.CAFile)
		}
		tlsCfg.RootCAs = pool
	}

	return credentials.NewTLS(tlsCfg), nil
}

// backoff implements truncated exponential backoff with jitter.
type backoff struct {
	current time.Duration
}

func newBackoff() *backoff {
	return &backoff{current: backoffInitial}
}

// next returns the current backoff duration and advances the internal state.
func (b *backoff) next() time.Duration {
	d := b.current
	// Apply ±25 % jitter.
	jitter := time.Duration(float64(b.current) * 0.25 * (rand.Float64()*2 - 1)) //nolint:gosec // not crypto
	d += jitter
	if d < 0 {
		d = 0
	}

	b.current = time.Duration(float64(b.current) * backoffMultiplier)
	if b.current > backoffMax {
		b.current = backoffMax
	}
	return d
}

func (b *backoff) reset() {
	b.current = backoffInitial
}
