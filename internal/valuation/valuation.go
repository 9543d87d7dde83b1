// Package valuation marks portfolios to market and ranks users. It is
// read-only over snapshots: computing a net worth never mutates account
// state.
package valuation

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/tickersim/trade-engine/internal/model"
	"github.com/tickersim/trade-engine/internal/store"
)

// Position is one symbol's contribution to a portfolio valuation.
type Position struct {
	Symbol  string          `json:"symbol"`
	Shares  int64           `json:"shares"`
	AvgCost decimal.Decimal `json:"avg_cost"`

	// Price is the quote used; when Priced is false the position was
	// valued at its average cost because no quote was available.
	Price  decimal.Decimal `json:"price"`
	Priced bool            `json:"priced"`

	Value         decimal.Decimal `json:"value"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
}

// Portfolio is a full mark-to-market view of one user.
type Portfolio struct {
	UserID    string          `json:"user_id"`
	Cash      decimal.Decimal `json:"cash"`
	Positions []Position      `json:"positions"`
	NetWorth  decimal.Decimal `json:"net_worth"`
	TotalPnL  decimal.Decimal `json:"total_pnl"`

	// Missing lists symbols that had no quote this valuation.
	Missing []string `json:"missing,omitempty"`
}

// Value marks an account to market. Symbols without a quote are valued
// at average cost and reported in Missing rather than failing the whole
// valuation.
func Value(acc model.Account, quotes map[string]model.Quote) Portfolio {
	p := Portfolio{
		UserID:   acc.UserID,
		Cash:     acc.CashBalance,
		NetWorth: acc.CashBalance,
	}

	symbols := make([]string, 0, len(acc.Holdings))
	for sym := range acc.Holdings {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	for _, sym := range symbols {
		h := acc.Holdings[sym]
		pos := Position{
			Symbol:  sym,
			Shares:  h.Shares,
			AvgCost: h.AvgCost,
		}

		q, ok := quotes[sym]
		if ok {
			pos.Price = q.Price
			pos.Priced = true
		} else {
			pos.Price = h.AvgCost
			p.Missing = append(p.Missing, sym)
		}

		shares := decimal.NewFromInt(h.Shares)
		pos.Value = pos.Price.Mul(shares)
		pos.UnrealizedPnL = pos.Price.Sub(h.AvgCost).Mul(shares)

		p.Positions = append(p.Positions, pos)
		p.NetWorth = p.NetWorth.Add(pos.Value)
		p.TotalPnL = p.TotalPnL.Add(pos.UnrealizedPnL)
	}
	return p
}

// Rank orders users by net worth, highest first, user ID ascending on
// ties so the leaderboard is stable across runs.
func Rank(snaps []*store.UserSnapshot, quotes map[string]model.Quote) []model.LeaderboardEntry {
	entries := make([]model.LeaderboardEntry, 0, len(snaps))
	for _, snap := range snaps {
		p := Value(snap.Account, quotes)
		entries = append(entries, model.LeaderboardEntry{
			UserID:   snap.Account.UserID,
			NetWorth: p.NetWorth,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].NetWorth.Equal(entries[j].NetWorth) {
			return entries[i].NetWorth.GreaterThan(entries[j].NetWorth)
		}
		return entries[i].UserID < entries[j].UserID
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}

// Mover is one symbol's change since the previous close.
type Mover struct {
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"`
	PrevClose decimal.Decimal `json:"prev_close"`
	ChangePct decimal.Decimal `json:"change_pct"`
}

// Movers pairs the day's biggest gainers and losers.
type Movers struct {
	Gainers []Mover `json:"gainers"`
	Losers  []Mover `json:"losers"`
}

// TopMovers returns up to n gainers (largest positive change first) and
// up to n losers (largest drop first) since the previous close. Symbols
// without a usable price or previous close are skipped; an unchanged
// symbol appears in neither list.
func TopMovers(quotes map[string]model.Quote, n int) Movers {
	var m Movers
	for _, q := range quotes {
		if q.Price.LessThanOrEqual(decimal.Zero) || q.PrevClose.LessThanOrEqual(decimal.Zero) {
			continue
		}
		change := q.Price.Sub(q.PrevClose).Div(q.PrevClose).Mul(decimal.NewFromInt(100)).Round(2)
		mover := Mover{
			Symbol:    q.Symbol,
			Price:     q.Price,
			PrevClose: q.PrevClose,
			ChangePct: change,
		}
		switch change.Sign() {
		case 1:
			m.Gainers = append(m.Gainers, mover)
		case -1:
			m.Losers = append(m.Losers, mover)
		}
	}

	byMove := func(movers []Mover) func(i, j int) bool {
		return func(i, j int) bool {
			ai, aj := movers[i].ChangePct.Abs(), movers[j].ChangePct.Abs()
			if !ai.Equal(aj) {
				return ai.GreaterThan(aj)
			}
			return movers[i].Symbol < movers[j].Symbol
		}
	}
	sort.Slice(m.Gainers, byMove(m.Gainers))
	sort.Slice(m.Losers, byMove(m.Losers))

	if n > 0 && len(m.Gainers) > n {
		m.Gainers = m.Gainers[:n]
	}
	if n > 0 && len(m.Losers) > n {
		m.Losers = m.Losers[:n]
	}
	return m
}
