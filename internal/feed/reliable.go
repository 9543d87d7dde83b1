package feed

import (
	"context"
	"time"

	"github.com/tickersim/trade-engine/internal/model"
	"github.com/tickersim/trade-engine/internal/util"
)

// Reliable wraps a Quoter with bounded retries for transient failures.
// It is intended for sources backed by a network or database; the
// synthetic source never needs it but satisfies the same interface.
type Reliable struct {
	inner    Quoter
	attempts int
	delay    time.Duration
}

// NewReliable wraps inner with up to attempts tries per call, backing off
// exponentially from delay.
func NewReliable(inner Quoter, attempts int, delay time.Duration) *Reliable {
	if attempts < 1 {
		attempts = 1
	}
	if delay <= 0 {
		delay = 50 * time.Millisecond
	}
	return &Reliable{inner: inner, attempts: attempts, delay: delay}
}

// GetQuote implements Quoter.
func (r *Reliable) GetQuote(ctx context.Context, symbol string) (model.Quote, error) {
	var q model.Quote
	err := util.Retry(ctx, r.attempts, r.delay, func() error {
		var err error
		q, err = r.inner.GetQuote(ctx, symbol)
		return err
	})
	return q, err
}

// GetHistory implements Quoter.
func (r *Reliable) GetHistory(ctx context.Context, symbol string, bars int) ([]model.Candle, error) {
	var candles []model.Candle
	err := util.Retry(ctx, r.attempts, r.delay, func() error {
		var err error
		candles, err = r.inner.GetHistory(ctx, symbol, bars)
		return err
	})
	return candles, err
}
