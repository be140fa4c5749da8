// Package quiclink accepts framed stream peers over QUIC, one
// bidirectional stream per session. The listener serves an ephemeral
// self-signed certificate and dialers skip verification: transport
// encryption comes from TLS, while peer identity stays an application
// concern, exactly as on the plain transports.
package quiclink

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"math/big"
	"sync"
	"time"

	"github.com/quic-go/quic-go"
	"go.uber.org/zap"

	"github.com/sermux/sermux"
	"github.com/sermux/sermux/link"
)

const alpn = "sermux"

// Listener accepts QUIC peers on behalf of the bridge.
type Listener struct {
	ln  *quic.Listener
	cfg link.Config
}

var _ link.Listener = (*Listener)(nil)

// Listen binds a UDP address and starts a QUIC listener on it.
func Listen(addr string, opts ...link.Option) (*Listener, error) {
	cfg, err := link.NewConfig(opts...)
	if err != nil {
		return nil, err
	}
	cert, err := selfSignedCert()
	if err != nil {
		return nil, err
	}
	tlsConf := &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{alpn},
		MinVersion:   tls.VersionTLS13,
	}
	ln, err := quic.ListenAddr(addr, tlsConf, quicConfig())
	if err != nil {
		return nil, err
	}
	return &Listener{ln: ln, cfg: cfg}, nil
}

func (l *Listener) Addr() string { return l.ln.Addr().String() }

func (l *Listener) Close() error { return l.ln.Close() }

// Serve accepts connections until ctx is canceled or the listener is
// closed, then waits for the served sessions to finish.
func (l *Listener) Serve(ctx context.Context, h sermux.Handler) error {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer wg.Wait()
	defer cancel()

	for {
		conn, err := l.ln.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, quic.ErrServerClosed) {
				return nil
			}
			return err
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			l.serveConn(ctx, conn, h)
		}()
	}
}

func (l *Listener) serveConn(ctx context.Context, conn quic.Connection, h sermux.Handler) {
	addr := conn.RemoteAddr().String()

	// The dialer opens the session stream; waiting for it is bounded the
	// same way the hello is.
	sctx, cancel := context.WithTimeout(ctx, l.cfg.HelloTimeout)
	stream, err := conn.AcceptStream(sctx)
	cancel()
	if err != nil {
		l.cfg.Logger.Warn("quic peer opened no stream",
			zap.String("peer", addr), zap.Error(err))
		_ = conn.CloseWithError(1, "no session stream")
		return
	}

	l.cfg.Logger.Debug("quic peer accepted", zap.String("peer", addr))
	_ = link.ServeConn(ctx, &streamConn{Stream: stream, conn: conn}, addr, h, l.cfg)
}

// Dial connects to a bridge listener, opens the session stream and
// performs the opening handshake, returning the peer half.
func Dial(ctx context.Context, addr, name string, opts ...link.Option) (*link.Client, error) {
	tlsConf := &tls.Config{
		InsecureSkipVerify: true, // identity is an application concern
		NextProtos:         []string{alpn},
		MinVersion:         tls.VersionTLS13,
	}
	conn, err := quic.DialAddr(ctx, addr, tlsConf, quicConfig())
	if err != nil {
		return nil, err
	}
	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		_ = conn.CloseWithError(1, "no session stream")
		return nil, err
	}
	c, err := link.NewClient(&streamConn{Stream: stream, conn: conn}, name, opts...)
	if err != nil {
		_ = conn.CloseWithError(1, "hello failed")
		return nil, err
	}
	return c, nil
}

// quicConfig keeps idle bridge sessions alive: records can be minutes
// apart, far past QUIC's default idle timeout.
func quicConfig() *quic.Config {
	return &quic.Config{
		MaxIdleTimeout:  2 * time.Minute,
		KeepAlivePeriod: 15 * time.Second,
	}
}

// streamConn presents one QUIC stream as the session's byte stream.
// Close finishes the stream and drops the whole connection, since a
// session owns its connection here.
type streamConn struct {
	quic.Stream
	conn quic.Connection
}

func (s *streamConn) Read(p []byte) (int, error) {
	n, err := s.Stream.Read(p)
	if err != nil {
		// A code-0 connection close is this transport's EOF.
		var appErr *quic.ApplicationError
		if errors.As(err, &appErr) && appErr.ErrorCode == 0 {
			err = io.EOF
		}
	}
	return n, err
}

func (s *streamConn) Close() error {
	_ = s.Stream.Close()
	return s.conn.CloseWithError(0, "")
}

// selfSignedCert generates a short-lived certificate for the listener.
func selfSignedCert() (tls.Certificate, error) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return tls.Certificate{}, err
	}
	tmpl := x509.Certificate{
		SerialNumber:          big.NewInt(time.Now().UnixNano()),
		NotBefore:             time.Now().Add(-time.Minute),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              []string{"localhost"},
	}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &priv.PublicKey, priv)
	if err != nil {
		return tls.Certificate{}, err
	}
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: priv}, nil
}
