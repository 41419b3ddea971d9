package mailer

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// MockOption customises the mock transport at construction time.
type MockOption func(*MockTransport)

// WithMockError makes every send fail with the given error.
func WithMockError(err error) MockOption {
	return func(t *MockTransport) {
		t.err = err
	}
}

// WithMockClock overrides the clock used for receipt timestamps.
func WithMockClock(now func() time.Time) MockOption {
	return func(t *MockTransport) {
		if now != nil {
			t.now = now
		}
	}
}

// MockTransport records outbound messages instead of delivering them. It is
// used in development mode and throughout the test suite.
type MockTransport struct {
	logger zerolog.Logger
	now    func() time.Time
	err    error

	mu   sync.Mutex
	sent []*Message
}

// NewMockTransport constructs a recording transport.
func NewMockTransport(logger zerolog.Logger, opts ...MockOption) *MockTransport {
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}

	t := &MockTransport{
		logger: logger,
		now:    time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}

	return t
}

// Send records the message and returns a synthetic receipt, or the
// configured error.
func (t *MockTransport) Send(_ context.Context, msg *Message) (*Receipt, error) {
	if msg == nil {
		return nil, errors.New("mock transport: message is required")
	}
	if len(msg.To) == 0 {
		return nil, errors.New("mock transport: at least one recipient is required")
	}
	if t.err != nil {
		return nil, t.err
	}

	t.mu.Lock()
	t.sent = append(t.sent, msg)
	t.mu.Unlock()

	id := msg.MessageID
	if id == "" {
		id = fmt.Sprintf("mock-%s", uuid.NewString())
	}

	t.logger.Debug().Str("message_id", id).Str("subject", msg.Subject).Msg("mock transport recorded message")

	return &Receipt{
		MessageID:          id,
		AcceptedRecipients: append(append([]string(nil), msg.To...), msg.CC...),
		Timestamp:          t.now(),
	}, nil
}

// Sent returns the messages recorded so far.
func (t *MockTransport) Sent() []*Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Message, len(t.sent))
	copy(out, t.sent)
	return out
}
