package mail

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"io"
	"math/big"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/emersion/go-smtp"
	"github.com/mikey/maccafe-matcher/internal/config"
	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

type received struct {
	from string
	to   []string
	data string
	tls  bool
	helo string
}

type relayBackend struct {
	mu       sync.Mutex
	messages []received
	reject   map[string]bool
}

func (b *relayBackend) NewSession(c *smtp.Conn) (smtp.Session, error) {
	_, isTLS := c.TLSConnectionState()
	return &relaySession{backend: b, tls: isTLS, helo: c.Hostname()}, nil
}

type relaySession struct {
	backend *relayBackend
	tls     bool
	helo    string
	msg     received
}

func (s *relaySession) Reset() { s.msg = received{} }

func (s *relaySession) Logout() error { return nil }

func (s *relaySession) Mail(from string, _ *smtp.MailOptions) error {
	s.msg.from = from
	return nil
}

func (s *relaySession) Rcpt(to string, _ *smtp.RcptOptions) error {
	if s.backend.reject[to] {
		return &smtp.SMTPError{Code: 550, EnhancedCode: smtp.EnhancedCode{5, 1, 1}, Message: "no such user"}
	}
	s.msg.to = append(s.msg.to, to)
	return nil
}

func (s *relaySession) Data(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.msg.data = string(data)
	s.msg.tls = s.tls
	s.msg.helo = s.helo

	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	s.backend.messages = append(s.backend.messages, s.msg)
	return nil
}

func startRelay(t *testing.T, backend *relayBackend) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}

	server := smtp.NewServer(backend)
	server.Domain = "localhost"
	go server.Serve(l)
	t.Cleanup(func() { server.Close() })

	return l.Addr().(*net.TCPAddr).Port
}

// selfSignedCert issues a certificate for 127.0.0.1 and returns it with a pool trusting it
func selfSignedCert(t *testing.T) (tls.Certificate, *x509.CertPool) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "relay.test"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1")},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("failed to create certificate: %v", err)
	}
	leaf, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("failed to parse certificate: %v", err)
	}

	pool := x509.NewCertPool()
	pool.AddCert(leaf)
	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key, Leaf: leaf}, pool
}

// startTLSRelay serves the backend with STARTTLS available, or over implicit TLS
func startTLSRelay(t *testing.T, backend *relayBackend, cert tls.Certificate, implicit bool) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	port := l.Addr().(*net.TCPAddr).Port

	tlsConfig := &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}
	server := smtp.NewServer(backend)
	server.Domain = "localhost"
	if implicit {
		l = tls.NewListener(l, tlsConfig)
	} else {
		server.TLSConfig = tlsConfig
	}
	go server.Serve(l)
	t.Cleanup(func() { server.Close() })

	return port
}

func smtpConfig(port int) config.SMTPConfig {
	return config.SMTPConfig{
		Host:                    "127.0.0.1",
		Port:                    port,
		TLSMode:                 TLSModeNone,
		Timeout:                 5 * time.Second,
		HeloName:                "matcher.test",
		BreakerFailureThreshold: 2,
		BreakerOpenTimeout:      time.Minute,
	}
}

func TestSMTPSenderDeliversNotification(t *testing.T) {
	backend := &relayBackend{}
	port := startRelay(t, backend)
	sender := NewSMTPSender(smtpConfig(port), "MacCafe <matches@maccafe.hu>", NewRenderer(""), zap.NewNop())

	if err := sender.Send(context.Background(), notification()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	backend.mu.Lock()
	defer backend.mu.Unlock()
	if len(backend.messages) != 1 {
		t.Fatalf("expected one message, got %d", len(backend.messages))
	}
	msg := backend.messages[0]
	if msg.from != "matches@maccafe.hu" {
		t.Fatalf("unexpected envelope sender: %q", msg.from)
	}
	if len(msg.to) != 1 || msg.to[0] != "anna@example.com" {
		t.Fatalf("unexpected envelope recipients: %v", msg.to)
	}
	if !strings.Contains(msg.data, "Subject: You have a new match: Bence!") {
		t.Fatalf("unexpected message data:\n%s", msg.data)
	}
}

func TestSMTPSenderDeliversOverTLS(t *testing.T) {
	cert, pool := selfSignedCert(t)

	tests := []struct {
		name     string
		mode     string
		implicit bool
	}{
		{"starttls", TLSModeStartTLS, false},
		{"implicit tls", TLSModeTLS, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &relayBackend{}
			cfg := smtpConfig(startTLSRelay(t, backend, cert, tt.implicit))
			cfg.TLSMode = tt.mode
			sender := NewSMTPSender(cfg, "matches@maccafe.hu", NewRenderer(""), zap.NewNop())
			sender.tlsConfig.RootCAs = pool

			if err := sender.Send(context.Background(), notification()); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			backend.mu.Lock()
			defer backend.mu.Unlock()
			if len(backend.messages) != 1 {
				t.Fatalf("expected one message, got %d", len(backend.messages))
			}
			msg := backend.messages[0]
			if !msg.tls {
				t.Fatalf("message was not delivered over TLS")
			}
			if msg.helo != "matcher.test" {
				t.Fatalf("expected EHLO name matcher.test, got %q", msg.helo)
			}
		})
	}
}

func TestSMTPSenderStartTLSRequiresRelaySupport(t *testing.T) {
	backend := &relayBackend{}
	cfg := smtpConfig(startRelay(t, backend))
	cfg.TLSMode = TLSModeStartTLS
	sender := NewSMTPSender(cfg, "matches@maccafe.hu", NewRenderer(""), zap.NewNop())

	err := sender.Send(context.Background(), notification())
	if err == nil || !strings.Contains(err.Error(), "STARTTLS") {
		t.Fatalf("expected a STARTTLS failure, got %v", err)
	}
	if len(backend.messages) != 0 {
		t.Fatalf("nothing should be relayed in plaintext")
	}
}

func TestSMTPSenderTimesOutSilentRelay(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	// accept connections and never greet
	conns := make(chan net.Conn, 4)
	go func() {
		for {
			conn, err := l.Accept()
			if err != nil {
				return
			}
			conns <- conn
		}
	}()
	t.Cleanup(func() {
		l.Close()
		for {
			select {
			case conn := <-conns:
				conn.Close()
			default:
				return
			}
		}
	})

	cfg := smtpConfig(l.Addr().(*net.TCPAddr).Port)
	cfg.Timeout = 200 * time.Millisecond
	sender := NewSMTPSender(cfg, "matches@maccafe.hu", NewRenderer(""), zap.NewNop())

	start := time.Now()
	if err := sender.Send(context.Background(), notification()); err == nil {
		t.Fatalf("expected a timeout error")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("send was not bounded by the timeout, took %v", elapsed)
	}
}

func TestSMTPSenderRejectionDoesNotTripBreaker(t *testing.T) {
	backend := &relayBackend{reject: map[string]bool{"ghost@example.com": true}}
	port := startRelay(t, backend)
	sender := NewSMTPSender(smtpConfig(port), "matches@maccafe.hu", NewRenderer(""), zap.NewNop())

	ghost := notification()
	ghost.RecipientAddress = "ghost@example.com"
	for i := 0; i < 3; i++ {
		err := sender.Send(context.Background(), ghost)
		var smtpErr *smtp.SMTPError
		if !errors.As(err, &smtpErr) || smtpErr.Code != 550 {
			t.Fatalf("expected a 550 rejection, got %v", err)
		}
	}

	if err := sender.Send(context.Background(), notification()); err != nil {
		t.Fatalf("expected delivery after rejections, got %v", err)
	}
}

func TestSMTPSenderBreakerOpensWhenRelayDown(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()

	sender := NewSMTPSender(smtpConfig(port), "matches@maccafe.hu", NewRenderer(""), zap.NewNop())
	for i := 0; i < 2; i++ {
		if err := sender.Send(context.Background(), notification()); err == nil {
			t.Fatalf("expected connection failure")
		}
	}

	err = sender.Send(context.Background(), notification())
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected open breaker, got %v", err)
	}
}

func TestSMTPSenderRejectsBadAddress(t *testing.T) {
	sender := NewSMTPSender(smtpConfig(1), "matches@maccafe.hu", NewRenderer(""), zap.NewNop())
	n := notification()
	n.RecipientAddress = "not-an-address"
	if err := sender.Send(context.Background(), n); err == nil {
		t.Fatalf("expected error for invalid recipient")
	}
}
