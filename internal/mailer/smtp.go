package mailer

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/magpollo/site-backend/internal/config"
)

// Option configures the behaviour of the SMTP transport.
type Option func(*SMTPTransport)

// WithTLSConfig overrides the TLS configuration used for STARTTLS or
// implicit TLS sessions.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(t *SMTPTransport) {
		t.tlsConfig = cfg
	}
}

// WithDialer swaps the network dialer used to establish relay connections.
func WithDialer(d Dialer) Option {
	return func(t *SMTPTransport) {
		if d != nil {
			t.dialer = d
		}
	}
}

// WithAuth supplies a custom SMTP auth strategy. When omitted the transport
// uses PLAIN auth built from the supplied configuration.
func WithAuth(auth smtp.Auth) Option {
	return func(t *SMTPTransport) {
		t.auth = auth
	}
}

// WithClock replaces the clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(t *SMTPTransport) {
		if now != nil {
			t.now = now
		}
	}
}

// WithHelloName customises the EHLO/HELO identity presented to the relay.
func WithHelloName(name string) Option {
	return func(t *SMTPTransport) {
		if strings.TrimSpace(name) != "" {
			t.helloName = strings.TrimSpace(name)
		}
	}
}

// Dialer abstracts net.Dialer to simplify testing.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// SMTPTransport implements Transport against a real SMTP relay.
type SMTPTransport struct {
	logger      zerolog.Logger
	host        string
	port        int
	implicitTLS bool
	auth        smtp.Auth
	tlsConfig   *tls.Config
	dialer      Dialer
	now         func() time.Time
	helloName   string
}

// NewSMTPTransport constructs a Transport backed by the configured relay.
func NewSMTPTransport(cfg config.SMTPConfig, logger zerolog.Logger, opts ...Option) (*SMTPTransport, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, errors.New("smtp transport: host is required")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("smtp transport: invalid port %d", cfg.Port)
	}

	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}

	t := &SMTPTransport{
		logger:      logger,
		host:        cfg.Host,
		port:        cfg.Port,
		implicitTLS: cfg.ImplicitTLS,
		dialer:      &net.Dialer{Timeout: 30 * time.Second},
		now:         time.Now,
		helloName:   "localhost",
	}

	if strings.TrimSpace(cfg.User) != "" {
		t.auth = smtp.PlainAuth("", cfg.User, cfg.Pass, cfg.Host)
	}

	t.tlsConfig = &tls.Config{
		ServerName: cfg.Host,
		MinVersion: tls.VersionTLS12,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}

	return t, nil
}

// Send delivers the supplied message through the relay.
func (t *SMTPTransport) Send(ctx context.Context, msg *Message) (*Receipt, error) {
	if msg == nil {
		return nil, errors.New("smtp transport: message is required")
	}
	if strings.TrimSpace(msg.FromAddress) == "" {
		return nil, errors.New("smtp transport: from address is required")
	}

	recipients := uniqueAddresses(msg.To, msg.CC)
	if len(recipients) == 0 {
		return nil, errors.New("smtp transport: at least one recipient is required")
	}

	envelopeFrom, err := envelopeAddress(msg.FromAddress)
	if err != nil {
		return nil, fmt.Errorf("smtp transport: invalid from address: %w", err)
	}

	envelopeRcpts, err := envelopeList(recipients)
	if err != nil {
		return nil, fmt.Errorf("smtp transport: invalid recipient: %w", err)
	}

	raw, err := encodeMessage(msg, t.now())
	if err != nil {
		return nil, fmt.Errorf("smtp transport: encode: %w", err)
	}

	if err := t.deliver(ctx, envelopeFrom, envelopeRcpts, raw); err != nil {
		code, detail := classifySMTPError(err)
		t.logger.Error().
			Str("message_id", msg.MessageID).
			Int("smtp_code", code).
			Str("detail", detail).
			Err(err).
			Msg("smtp delivery failed")
		return nil, err
	}

	t.logger.Debug().
		Str("message_id", msg.MessageID).
		Strs("recipients", envelopeRcpts).
		Msg("smtp delivery accepted")

	return &Receipt{
		MessageID:          msg.MessageID,
		AcceptedRecipients: envelopeRcpts,
		Timestamp:          t.now(),
	}, nil
}

func (t *SMTPTransport) deliver(ctx context.Context, from string, recipients []string, message []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	addr := net.JoinHostPort(t.host, strconv.Itoa(t.port))
	conn, err := t.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("smtp transport: dial: %w", err)
	}
	defer conn.Close()

	if t.implicitTLS {
		conn = tls.Client(conn, t.sessionTLSConfig())
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()
	defer close(done)

	client, err := smtp.NewClient(conn, t.host)
	if err != nil {
		return fmt.Errorf("smtp transport: new client: %w", err)
	}
	defer client.Close()

	if err := client.Hello(t.helloName); err != nil {
		return fmt.Errorf("smtp transport: hello: %w", err)
	}

	if !t.implicitTLS {
		if cfg := t.sessionTLSConfig(); cfg != nil {
			if ok, _ := client.Extension("STARTTLS"); ok {
				if err := client.StartTLS(cfg); err != nil {
					return fmt.Errorf("smtp transport: starttls: %w", err)
				}
			}
		}
	}

	if t.auth != nil {
		if ok, _ := client.Extension("AUTH"); ok {
			if err := client.Auth(t.auth); err != nil {
				return fmt.Errorf("smtp transport: auth: %w", err)
			}
		}
	}

	if err := client.Mail(from); err != nil {
		return fmt.Errorf("smtp transport: mail from: %w", err)
	}

	for _, rcpt := range recipients {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("smtp transport: rcpt to %s: %w", rcpt, err)
		}
	}

	writer, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp transport: data: %w", err)
	}

	if _, err := writer.Write(message); err != nil {
		_ = writer.Close()
		return fmt.Errorf("smtp transport: data write: %w", err)
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("smtp transport: data close: %w", err)
	}

	if err := client.Quit(); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("smtp transport: quit: %w", err)
	}

	return ctx.Err()
}

func (t *SMTPTransport) sessionTLSConfig() *tls.Config {
	if t.tlsConfig == nil {
		return nil
	}
	cfg := t.tlsConfig.Clone()
	if cfg.ServerName == "" {
		cfg.ServerName = t.host
	}
	return cfg
}

func uniqueAddresses(list ...[]string) []string {
	result := make([]string, 0)
	seen := make(map[string]struct{})
	for _, group := range list {
		for _, raw := range group {
			addr := strings.TrimSpace(raw)
			if addr == "" {
				continue
			}
			if _, ok := seen[addr]; ok {
				continue
			}
			seen[addr] = struct{}{}
			result = append(result, addr)
		}
	}
	return result
}

func envelopeList(addresses []string) ([]string, error) {
	result := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		parsed, err := envelopeAddress(addr)
		if err != nil {
			return nil, err
		}
		result = append(result, parsed)
	}
	return result, nil
}

func envelopeAddress(value string) (string, error) {
	addr, err := mail.ParseAddress(value)
	if err != nil {
		return "", err
	}
	if addr.Address == "" {
		return "", errors.New("empty address")
	}
	return addr.Address, nil
}

func classifySMTPError(err error) (int, string) {
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		return tpErr.Code, strings.TrimSpace(tpErr.Msg)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return 0, "smtp: timeout"
	}

	return 0, ""
}
