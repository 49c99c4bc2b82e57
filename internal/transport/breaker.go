package transport

import (
	"context"
	"sync"
	"time"

	"github.com/lychee-technology/formedit"
	"go.uber.org/zap"
)

// CircuitBreaker is a lightweight in-memory circuit breaker.
type CircuitBreaker struct {
	mu           sync.Mutex
	failures     []time.Time
	threshold    int
	window       time.Duration
	openUntil    time.Time
	openDuration time.Duration
	now          func() time.Time
}

// NewCircuitBreaker creates a configured circuit breaker.
func NewCircuitBreaker(threshold int, window, openDuration time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		threshold:    threshold,
		window:       window,
		openDuration: openDuration,
		failures:     make([]time.Time, 0, threshold),
		now:          time.Now,
	}
}

// RecordFailure records a failure occurrence and opens the breaker if threshold exceeded.
func (cb *CircuitBreaker) RecordFailure() {
	if cb == nil {
		return
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.now()
	// drop failures outside the window
	cutoff := now.Add(-cb.window)
	i := 0
	for ; i < len(cb.failures); i++ {
		if cb.failures[i].After(cutoff) {
			break
		}
	}
	if i > 0 {
		cb.failures = append([]time.Time{}, cb.failures[i:]...)
	}
	cb.failures = append(cb.failures, now)

	if len(cb.failures) >= cb.threshold {
		cb.openUntil = now.Add(cb.openDuration)
	}
}

// RecordSuccess resets failure history when operations succeed.
func (cb *CircuitBreaker) RecordSuccess() {
	if cb == nil {
		return
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = cb.failures[:0]
	cb.openUntil = time.Time{}
}

// IsOpen returns true if the breaker is currently open.
func (cb *CircuitBreaker) IsOpen() bool {
	if cb == nil {
		return false
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.now().Before(cb.openUntil)
}

// Breaker fails calls fast with CIRCUIT_OPEN while its breaker is open.
// Only transport failures count; not-found and validation errors pass through.
type Breaker struct {
	next    formedit.Transport
	breaker *CircuitBreaker
}

// NewBreaker wraps next with a circuit breaker built from cfg.
func NewBreaker(next formedit.Transport, cfg formedit.BreakerConfig) *Breaker {
	return &Breaker{
		next:    next,
		breaker: NewCircuitBreaker(cfg.Threshold, cfg.Window, cfg.OpenDuration),
	}
}

// CircuitBreaker exposes the underlying breaker.
func (b *Breaker) CircuitBreaker() *CircuitBreaker { return b.breaker }

func (b *Breaker) guard(collection string) error {
	if b.breaker.IsOpen() {
		zap.S().Warnw("circuit open, refusing transport call", "collection", collection)
		return formedit.NewEditorError(formedit.ErrorTypeTransport, formedit.ErrCodeCircuitOpen, "transport circuit is open").
			WithRecord(collection, "")
	}
	return nil
}

func (b *Breaker) observe(err error) {
	if err == nil {
		b.breaker.RecordSuccess()
		return
	}
	if formedit.IsTransportError(err) {
		b.breaker.RecordFailure()
	}
}

func (b *Breaker) FetchCollection(ctx context.Context, name string) (*formedit.CollectionPage, error) {
	if err := b.guard(name); err != nil {
		return nil, err
	}
	page, err := b.next.FetchCollection(ctx, name)
	b.observe(err)
	return page, err
}

func (b *Breaker) CreateRecord(ctx context.Context, name string, raw formedit.Record) (formedit.Record, error) {
	if err := b.guard(name); err != nil {
		return formedit.Record{}, err
	}
	created, err := b.next.CreateRecord(ctx, name, raw)
	b.observe(err)
	return created, err
}

func (b *Breaker) UpdateRecord(ctx context.Context, name, id string, raw formedit.Record) error {
	if err := b.guard(name); err != nil {
		return err
	}
	err := b.next.UpdateRecord(ctx, name, id, raw)
	b.observe(err)
	return err
}

func (b *Breaker) DeleteRecord(ctx context.Context, name, id string) error {
	if err := b.guard(name); err != nil {
		return err
	}
	err := b.next.DeleteRecord(ctx, name, id)
	b.observe(err)
	return err
}
