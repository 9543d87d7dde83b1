// Package feed supplies price quotes and candle history to the engine.
package feed

import (
	"context"
	"errors"

	"github.com/tickersim/trade-engine/internal/model"
)

// ErrQuoteUnavailable is returned when no price can be produced for a
// symbol. Callers treat it as transient: pending orders wait, market
// orders are rejected.
var ErrQuoteUnavailable = errors.New("feed: quote unavailable")

// Quoter provides current prices and recent close history for symbols.
type Quoter interface {
	// GetQuote returns the latest quote for symbol, or
	// ErrQuoteUnavailable if the symbol has no price.
	GetQuote(ctx context.Context, symbol string) (model.Quote, error)

	// GetHistory returns up to bars most recent daily candles for
	// symbol, oldest first. Fewer candles than requested is not an
	// error; the caller decides whether the history suffices.
	GetHistory(ctx context.Context, symbol string, bars int) ([]model.Candle, error)
}
