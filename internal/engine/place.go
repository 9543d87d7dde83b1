package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tickersim/trade-engine/internal/feed"
	"github.com/tickersim/trade-engine/internal/ledger"
	"github.com/tickersim/trade-engine/internal/model"
	"github.com/tickersim/trade-engine/internal/store"
)

// PlaceRequest describes a new order of any kind.
type PlaceRequest struct {
	UserID       string           `json:"user_id"`
	Symbol       string           `json:"symbol"`
	Side         model.Side       `json:"side"`
	Kind         model.Kind       `json:"kind"`
	Quantity     int64            `json:"quantity"`
	Percent      decimal.Decimal  `json:"percent"`
	TriggerPrice decimal.Decimal  `json:"trigger_price"`
	TrailingPct  decimal.Decimal  `json:"trailing_pct"`
	Condition    *model.Condition `json:"condition"`
}

const (
	defaultShortWindow = 20
	defaultLongWindow  = 50
)

// Place validates and records an order. MARKET and PERCENT_SELL execute
// immediately and come back FILLED with a fill event; the other kinds
// come back PENDING and wait for the evaluator. Accounts are created on
// first touch.
func (e *Engine) Place(ctx context.Context, req PlaceRequest) (model.Order, *model.FillEvent, error) {
	if err := validateBasics(req); err != nil {
		return model.Order{}, nil, err
	}

	lock := e.userLock(req.UserID)
	lock.Lock()
	defer lock.Unlock()

	snap, err := e.stage(ctx, req.UserID)
	if err != nil {
		return model.Order{}, nil, err
	}

	switch req.Kind {
	case model.KindMarket:
		return e.placeMarket(ctx, snap, req)
	case model.KindPercentSell:
		return e.placePercentSell(ctx, snap, req)
	default:
		return e.placePending(ctx, snap, req)
	}
}

func validateBasics(req PlaceRequest) error {
	if req.UserID == "" {
		return fmt.Errorf("%w: user_id is required", ErrInvalidOrder)
	}
	if req.Symbol == "" {
		return fmt.Errorf("%w: symbol is required", ErrInvalidOrder)
	}
	if req.Side != model.SideBuy && req.Side != model.SideSell {
		return fmt.Errorf("%w: side must be BUY or SELL", ErrInvalidOrder)
	}
	switch req.Kind {
	case model.KindMarket, model.KindLimit, model.KindStopLossFixed,
		model.KindTrailingStop, model.KindConditional:
		if req.Quantity <= 0 {
			return fmt.Errorf("%w: quantity must be positive", ErrInvalidOrder)
		}
	case model.KindPercentSell:
		if req.Percent.LessThanOrEqual(decimal.Zero) || req.Percent.GreaterThan(oneHundred) {
			return fmt.Errorf("%w: percent must be in (0, 100]", ErrInvalidOrder)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidOrder, req.Kind)
	}

	sellOnly := req.Kind == model.KindPercentSell ||
		req.Kind == model.KindStopLossFixed ||
		req.Kind == model.KindTrailingStop
	if sellOnly && req.Side != model.SideSell {
		return fmt.Errorf("%w: %s orders must be SELL", ErrInvalidOrder, req.Kind)
	}

	switch req.Kind {
	case model.KindLimit, model.KindStopLossFixed:
		if req.TriggerPrice.LessThanOrEqual(decimal.Zero) {
			return fmt.Errorf("%w: trigger_price must be positive", ErrInvalidOrder)
		}
	case model.KindTrailingStop:
		if req.TrailingPct.LessThanOrEqual(decimal.Zero) || req.TrailingPct.GreaterThanOrEqual(oneHundred) {
			return fmt.Errorf("%w: trailing_pct must be in (0, 100)", ErrInvalidOrder)
		}
	case model.KindConditional:
		if req.Condition == nil {
			return fmt.Errorf("%w: condition is required", ErrInvalidOrder)
		}
		if req.Condition.Direction != model.CrossAbove && req.Condition.Direction != model.CrossBelow {
			return fmt.Errorf("%w: condition direction must be ABOVE or BELOW", ErrInvalidOrder)
		}
		if req.Condition.ShortWindow < 0 || req.Condition.LongWindow < 0 {
			return fmt.Errorf("%w: condition windows must not be negative", ErrInvalidOrder)
		}
	}
	return nil
}

// placeMarket executes a market order at the current quote.
func (e *Engine) placeMarket(ctx context.Context, snap *store.UserSnapshot, req PlaceRequest) (model.Order, *model.FillEvent, error) {
	q, err := e.feed.GetQuote(ctx, req.Symbol)
	if err != nil {
		return model.Order{}, nil, fmt.Errorf("%s: %w", req.Symbol, feed.ErrQuoteUnavailable)
	}
	return e.fillNow(ctx, snap, req, req.Quantity, q.Price)
}

// placePercentSell sells a fraction of the current holding at market.
// The share count is fixed here, at placement time.
func (e *Engine) placePercentSell(ctx context.Context, snap *store.UserSnapshot, req PlaceRequest) (model.Order, *model.FillEvent, error) {
	h, ok := snap.Account.Holdings[req.Symbol]
	if !ok || h.Shares <= 0 {
		return model.Order{}, nil, fmt.Errorf("%s: %w", req.Symbol, ledger.ErrInsufficientShares)
	}

	qty := decimal.NewFromInt(h.Shares).Mul(req.Percent).Div(oneHundred).Ceil().IntPart()
	if qty > h.Shares {
		qty = h.Shares
	}

	q, err := e.feed.GetQuote(ctx, req.Symbol)
	if err != nil {
		return model.Order{}, nil, fmt.Errorf("%s: %w", req.Symbol, feed.ErrQuoteUnavailable)
	}
	return e.fillNow(ctx, snap, req, qty, q.Price)
}

// fillNow applies an immediate execution to the staged snapshot and
// persists it.
func (e *Engine) fillNow(ctx context.Context, snap *store.UserSnapshot, req PlaceRequest, qty int64, price decimal.Decimal) (model.Order, *model.FillEvent, error) {
	if req.Side == model.SideBuy {
		err := ledger.ApplyBuy(&snap.Account, req.Symbol, qty, price)
		if err != nil {
			return model.Order{}, nil, err
		}
	} else {
		err := ledger.ApplySell(&snap.Account, req.Symbol, qty, price)
		if err != nil {
			return model.Order{}, nil, err
		}
	}

	now := time.Now().UTC()
	order := model.Order{
		ID:         newOrderID(),
		UserID:     req.UserID,
		Symbol:     req.Symbol,
		Side:       req.Side,
		Kind:       req.Kind,
		Quantity:   qty,
		Percent:    req.Percent,
		Status:     model.StatusFilled,
		FillPrice:  price,
		CreatedAt:  now,
		ResolvedAt: &now,
	}
	snap.Orders = append(snap.Orders, order)

	if err := e.persist(ctx, snap); err != nil {
		return model.Order{}, nil, err
	}

	fill := &model.FillEvent{
		ID:       newOrderID(),
		OrderID:  order.ID,
		UserID:   req.UserID,
		Symbol:   req.Symbol,
		Side:     req.Side,
		Kind:     req.Kind,
		Quantity: qty,
		Price:    price,
		Notional: price.Mul(decimal.NewFromInt(qty)),
		At:       now,
	}
	e.log.Info("order filled",
		"order_id", order.ID,
		"user", req.UserID,
		"symbol", req.Symbol,
		"side", req.Side,
		"kind", req.Kind,
		"qty", qty,
		"price", price.String(),
	)
	return order, fill, nil
}

// placePending validates a deferred order against current state and
// queues it.
func (e *Engine) placePending(ctx context.Context, snap *store.UserSnapshot, req PlaceRequest) (model.Order, *model.FillEvent, error) {
	// A symbol the feed cannot price would queue an order that can never
	// trigger, so placement requires a quote for every deferred kind.
	q, err := e.feed.GetQuote(ctx, req.Symbol)
	if err != nil {
		return model.Order{}, nil, fmt.Errorf("%s: %w", req.Symbol, feed.ErrQuoteUnavailable)
	}

	order := model.Order{
		ID:           newOrderID(),
		UserID:       req.UserID,
		Symbol:       req.Symbol,
		Side:         req.Side,
		Kind:         req.Kind,
		Quantity:     req.Quantity,
		TriggerPrice: req.TriggerPrice,
		TrailingPct:  req.TrailingPct,
		Status:       model.StatusPending,
		CreatedAt:    time.Now().UTC(),
	}

	switch req.Kind {
	case model.KindLimit:
		if req.Side == model.SideBuy {
			// The worst-case cost is quantity at the limit price. Checked
			// here so the order cannot be placed without the cash to
			// honor it.
			cost := req.TriggerPrice.Mul(decimal.NewFromInt(req.Quantity))
			if snap.Account.CashBalance.LessThan(cost) {
				return model.Order{}, nil, fmt.Errorf("%w: limit buy needs %s, have %s",
					ledger.ErrInsufficientFunds, cost, snap.Account.CashBalance)
			}
		} else if err := checkShares(snap, req.Symbol, req.Quantity); err != nil {
			return model.Order{}, nil, err
		}

	case model.KindStopLossFixed:
		if err := checkShares(snap, req.Symbol, req.Quantity); err != nil {
			return model.Order{}, nil, err
		}

	case model.KindTrailingStop:
		if err := checkShares(snap, req.Symbol, req.Quantity); err != nil {
			return model.Order{}, nil, err
		}
		// The mark starts at the current price.
		order.HighWaterMark = q.Price

	case model.KindConditional:
		cond := *req.Condition
		if cond.LongWindow == 0 {
			cond.LongWindow = defaultLongWindow
			if cond.ShortWindow == 0 {
				cond.ShortWindow = defaultShortWindow
			}
		}
		if cond.ShortWindow >= cond.LongWindow {
			return model.Order{}, nil, fmt.Errorf("%w: short window must be below long window", ErrInvalidOrder)
		}
		order.Condition = &cond
		if req.Side == model.SideSell {
			if err := checkShares(snap, req.Symbol, req.Quantity); err != nil {
				return model.Order{}, nil, err
			}
		}
	}

	snap.Orders = append(snap.Orders, order)
	if err := e.persist(ctx, snap); err != nil {
		return model.Order{}, nil, err
	}

	e.log.Info("order placed",
		"order_id", order.ID,
		"user", req.UserID,
		"symbol", req.Symbol,
		"side", req.Side,
		"kind", req.Kind,
		"qty", req.Quantity,
	)
	return order, nil, nil
}

func checkShares(snap *store.UserSnapshot, symbol string, qty int64) error {
	h := snap.Account.Holdings[symbol]
	if h.Shares < qty {
		return fmt.Errorf("%s: need %d shares, have %d: %w",
			symbol, qty, h.Shares, ledger.ErrInsufficientShares)
	}
	return nil
}

// Cancel marks a pending order cancelled. Resolved orders cannot be
// cancelled again.
func (e *Engine) Cancel(ctx context.Context, userID, orderID string) (model.Order, error) {
	lock := e.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	committed := e.snapshot(userID)
	if committed == nil {
		return model.Order{}, store.ErrUserNotFound
	}
	snap := committed.Clone()

	idx := -1
	for i, o := range snap.Orders {
		if o.ID == orderID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return model.Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	if snap.Orders[idx].Status.Resolved() {
		return model.Order{}, fmt.Errorf("%w: %s is %s", ErrAlreadyResolved, orderID, snap.Orders[idx].Status)
	}

	now := time.Now().UTC()
	snap.Orders[idx].Status = model.StatusCancelled
	snap.Orders[idx].ResolvedAt = &now

	if err := e.persist(ctx, snap); err != nil {
		return model.Order{}, err
	}
	e.log.Info("order cancelled", "order_id", orderID, "user", userID)
	return snap.Orders[idx], nil
}

// CancelSymbol cancels every pending order a user has on one symbol and
// returns how many were cancelled.
func (e *Engine) CancelSymbol(ctx context.Context, userID, symbol string) (int, error) {
	lock := e.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	committed := e.snapshot(userID)
	if committed == nil {
		return 0, store.ErrUserNotFound
	}
	snap := committed.Clone()

	now := time.Now().UTC()
	cancelled := 0
	for i := range snap.Orders {
		if snap.Orders[i].Symbol == symbol && snap.Orders[i].Status == model.StatusPending {
			snap.Orders[i].Status = model.StatusCancelled
			snap.Orders[i].ResolvedAt = &now
			cancelled++
		}
	}
	if cancelled == 0 {
		return 0, nil
	}

	if err := e.persist(ctx, snap); err != nil {
		return 0, err
	}
	e.log.Info("orders cancelled by symbol", "user", userID, "symbol", symbol, "count", cancelled)
	return cancelled, nil
}
