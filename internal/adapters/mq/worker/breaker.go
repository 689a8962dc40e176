package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/okian/tutormarket/internal/domain/model"
	"github.com/okian/tutormarket/pkg/logger"
	"github.com/okian/tutormarket/pkg/metrics"
)

const (
	defaultFailureThreshold = 5
	defaultOpenTimeout      = 30 * time.Second
	halfOpenProbes          = 1
)

// BreakerSink guards a Sink with a circuit breaker so a failing store is
// not hammered by every queued entry.
type BreakerSink struct {
	next Sink
	cb   *gobreaker.CircuitBreaker[struct{}]
}

// NewBreakerSink wraps next. The breaker opens after failureThreshold
// consecutive failures and probes again after openTimeout.
func NewBreakerSink(next Sink, failureThreshold uint32, openTimeout time.Duration, log logger.Logger) *BreakerSink {
	if failureThreshold == 0 {
		failureThreshold = defaultFailureThreshold
	}
	if openTimeout <= 0 {
		openTimeout = defaultOpenTimeout
	}
	metrics.UpdateBreakerState(int(gobreaker.StateClosed))
	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "suggestion-sink",
		MaxRequests: halfOpenProbes,
		Timeout:     openTimeout,
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, model.ErrRejected)
		},
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.UpdateBreakerState(int(to))
			if log != nil {
				log.Warn(context.Background(), "circuit breaker state change",
					logger.String("breaker", name),
					logger.String("from", from.String()),
					logger.String("to", to.String()))
			}
		},
	})
	return &BreakerSink{next: next, cb: cb}
}

// State reports the breaker state: closed, half-open or open.
func (b *BreakerSink) State() string { return b.cb.State().String() }

func (b *BreakerSink) WriteSuggestion(ctx context.Context, r model.SuggestionRecord) error {
	return b.execute(func() error { return b.next.WriteSuggestion(ctx, r) })
}

func (b *BreakerSink) WriteAcceptance(ctx context.Context, r model.AcceptanceRecord) error {
	return b.execute(func() error { return b.next.WriteAcceptance(ctx, r) })
}

func (b *BreakerSink) execute(fn func() error) error {
	_, err := b.cb.Execute(func() (struct{}, error) {
		return struct{}{}, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w", ErrSinkOpen, err)
	}
	return err
}
