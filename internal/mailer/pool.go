package mailer

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/magpollo/site-backend/internal/config"
)

// Pool wraps a Transport with a cap on concurrent relay connections and a
// send-rate throttle. Both exist to protect relay reputation under load; a
// saturated pool waits for capacity rather than failing the send.
type Pool struct {
	logger    zerolog.Logger
	transport Transport
	sem       *semaphore.Weighted
	limiter   *rate.Limiter
}

// NewPool constructs a Pool around the given transport.
func NewPool(transport Transport, cfg config.PoolConfig, logger zerolog.Logger) (*Pool, error) {
	if transport == nil {
		return nil, errors.New("mail pool: transport dependency is required")
	}
	if cfg.MaxConnections <= 0 {
		return nil, fmt.Errorf("mail pool: invalid max connections %d", cfg.MaxConnections)
	}
	if cfg.SendRate <= 0 {
		return nil, fmt.Errorf("mail pool: invalid send rate %v", cfg.SendRate)
	}
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}

	return &Pool{
		logger:    logger,
		transport: transport,
		sem:       semaphore.NewWeighted(int64(cfg.MaxConnections)),
		limiter:   rate.NewLimiter(rate.Limit(cfg.SendRate), cfg.MaxConnections),
	}, nil
}

// Send waits for pool capacity and the rate limiter, then delegates to the
// wrapped transport. Context cancellation aborts the wait.
func (p *Pool) Send(ctx context.Context, msg *Message) (*Receipt, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("mail pool: acquire connection: %w", err)
	}
	defer p.sem.Release(1)

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("mail pool: rate limit wait: %w", err)
	}

	return p.transport.Send(ctx, msg)
}
