package mail

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/mikey/maccafe-matcher/internal/config"
	"github.com/mikey/maccafe-matcher/internal/core"
	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// TLS modes of the relay connection
const (
	TLSModeNone     = "none"
	TLSModeStartTLS = "starttls"
	TLSModeTLS      = "tls"
)

// SMTPSender delivers notifications through an SMTP relay
type SMTPSender struct {
	cfg      config.SMTPConfig
	from     string
	renderer *Renderer
	breaker  *gobreaker.CircuitBreaker[struct{}]
	logger   *zap.Logger
	// tlsConfig is used for both implicit TLS and STARTTLS
	tlsConfig *tls.Config
}

// NewSMTPSender creates a new SMTP notification sender
func NewSMTPSender(cfg config.SMTPConfig, from string, renderer *Renderer, logger *zap.Logger) *SMTPSender {
	if cfg.HeloName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "localhost"
		}
		cfg.HeloName = hostname
	}

	s := &SMTPSender{
		cfg:       cfg,
		from:      from,
		renderer:  renderer,
		logger:    logger,
		tlsConfig: &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12},
	}

	threshold := cfg.BreakerFailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	s.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:    "smtp-relay",
		Timeout: cfg.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// A 5xx reply means the relay is up and refused this message
		IsSuccessful: func(err error) bool {
			var smtpErr *smtp.SMTPError
			return err == nil || (errors.As(err, &smtpErr) && smtpErr.Code >= 500)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("SMTP circuit breaker changed state",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return s
}

// Send renders a notification and relays it to the recipient
func (s *SMTPSender) Send(ctx context.Context, n *core.Notification) error {
	content, err := s.renderer.Render(n)
	if err != nil {
		return err
	}
	msg, err := NewMessage(s.from, n.RecipientAddress, n.RecipientName, content)
	if err != nil {
		return err
	}
	data, err := msg.Bytes()
	if err != nil {
		return err
	}

	_, err = s.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, s.deliver(ctx, msg.From.Address, msg.To.Address, data)
	})
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Debug("Notification relayed",
		zap.String("run_id", n.RunID),
		zap.String("recipient_id", n.RecipientID))
	return nil
}

// deliver runs one SMTP transaction
func (s *SMTPSender) deliver(ctx context.Context, from, to string, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout())
	defer cancel()

	conn, err := s.dial(ctx)
	if err != nil {
		return err
	}

	// go-smtp resets socket deadlines on every command, so the transaction is
	// bounded by closing the connection once ctx is done
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	c, err := s.newClient(conn)
	if err != nil {
		return err
	}
	defer c.Close()
	c.CommandTimeout = s.timeout()
	c.SubmissionTimeout = s.timeout()

	if err := c.Hello(s.cfg.HeloName); err != nil {
		return fmt.Errorf("EHLO failed: %w", err)
	}

	if s.cfg.Username != "" {
		if err := c.Auth(sasl.NewPlainClient("", s.cfg.Username, s.cfg.Password)); err != nil {
			return fmt.Errorf("AUTH failed: %w", err)
		}
	}

	if err := c.Mail(from, nil); err != nil {
		return fmt.Errorf("MAIL FROM failed: %w", err)
	}
	if err := c.Rcpt(to, nil); err != nil {
		return fmt.Errorf("RCPT TO failed: %w", err)
	}

	wc, err := c.Data()
	if err != nil {
		return fmt.Errorf("DATA command failed: %w", err)
	}
	if _, err := wc.Write(data); err != nil {
		wc.Close()
		return fmt.Errorf("failed to send email data: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	if err := c.Quit(); err != nil {
		// Already accepted by the relay
		s.logger.Warn("QUIT command failed", zap.Error(err))
	}
	return nil
}

// newClient wraps conn, upgrading it first in starttls mode. The EHLO sent
// before STARTTLS names the client "localhost"; HeloName goes out after it.
func (s *SMTPSender) newClient(conn net.Conn) (*smtp.Client, error) {
	if s.cfg.TLSMode != TLSModeStartTLS {
		return smtp.NewClient(conn), nil
	}
	c, err := smtp.NewClientStartTLS(conn, s.tlsConfig)
	if err != nil {
		return nil, fmt.Errorf("STARTTLS failed: %w", err)
	}
	return c, nil
}

func (s *SMTPSender) dial(ctx context.Context) (net.Conn, error) {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	dialer := &net.Dialer{Timeout: s.timeout()}

	var (
		conn net.Conn
		err  error
	)
	if s.cfg.TLSMode == TLSModeTLS {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: s.tlsConfig}).DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SMTP relay %s: %w", addr, err)
	}
	return conn, nil
}

func (s *SMTPSender) timeout() time.Duration {
	if s.cfg.Timeout > 0 {
		return s.cfg.Timeout
	}
	return 30 * time.Second
}
