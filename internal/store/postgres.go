package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/tickersim/trade-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) LoadUser(ctx context.Context, userID string) (*UserSnapshot, error) {
	snap := &UserSnapshot{}
	var cash string

	err := s.pool.QueryRow(ctx,
		`SELECT user_id, cash_balance::TEXT, created_at
		 FROM accounts WHERE user_id = $1`, userID).
		Scan(&snap.Account.UserID, &cash, &snap.Account.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load account %s: %w", userID, err)
	}
	snap.Account.CashBalance, _ = decimal.NewFromString(cash)
	snap.Account.Holdings = make(map[string]model.Holding)

	rows, err := s.pool.Query(ctx,
		`SELECT symbol, shares, avg_cost::TEXT
		 FROM holdings WHERE user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var sym, avgCost string
		var h model.Holding
		if err := rows.Scan(&sym, &h.Shares, &avgCost); err != nil {
			return nil, err
		}
		h.AvgCost, _ = decimal.NewFromString(avgCost)
		snap.Account.Holdings[sym] = h
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	orders, err := s.loadOrders(ctx, userID)
	if err != nil {
		return nil, err
	}
	snap.Orders = orders
	return snap, nil
}

func (s *PostgresStore) loadOrders(ctx context.Context, userID string) ([]model.Order, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, symbol, side, kind, quantity,
		        percent::TEXT, trigger_price::TEXT, trailing_pct::TEXT, high_water_mark::TEXT,
		        condition, status, fill_price::TEXT, created_at, resolved_at
		 FROM orders WHERE user_id = $1 ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		var o model.Order
		var percent, trigger, trailing, mark, fill string
		var cond []byte
		if err := rows.Scan(&o.ID, &o.UserID, &o.Symbol, &o.Side, &o.Kind, &o.Quantity,
			&percent, &trigger, &trailing, &mark,
			&cond, &o.Status, &fill, &o.CreatedAt, &o.ResolvedAt); err != nil {
			return nil, err
		}
		o.Percent, _ = decimal.NewFromString(percent)
		o.TriggerPrice, _ = decimal.NewFromString(trigger)
		o.TrailingPct, _ = decimal.NewFromString(trailing)
		o.HighWaterMark, _ = decimal.NewFromString(mark)
		o.FillPrice, _ = decimal.NewFromString(fill)
		if len(cond) > 0 {
			var c model.Condition
			if err := json.Unmarshal(cond, &c); err != nil {
				return nil, fmt.Errorf("decode condition for order %s: %w", o.ID, err)
			}
			o.Condition = &c
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// SaveUser replaces the user's account, holdings, and orders in a single
// transaction so a crash never leaves the account out of step with its
// orders.
func (s *PostgresStore) SaveUser(ctx context.Context, snap *UserSnapshot) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	userID := snap.Account.UserID
	_, err = tx.Exec(ctx,
		`INSERT INTO accounts (user_id, cash_balance, created_at)
		 VALUES ($1, $2::NUMERIC, $3)
		 ON CONFLICT (user_id) DO UPDATE SET cash_balance = EXCLUDED.cash_balance`,
		userID, snap.Account.CashBalance.String(), snap.Account.CreatedAt)
	if err != nil {
		return fmt.Errorf("save account %s: %w", userID, err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM holdings WHERE user_id = $1`, userID); err != nil {
		return err
	}
	for sym, h := range snap.Account.Holdings {
		_, err := tx.Exec(ctx,
			`INSERT INTO holdings (user_id, symbol, shares, avg_cost)
			 VALUES ($1, $2, $3, $4::NUMERIC)`,
			userID, sym, h.Shares, h.AvgCost.String())
		if err != nil {
			return fmt.Errorf("save holding %s/%s: %w", userID, sym, err)
		}
	}

	if _, err := tx.Exec(ctx, `DELETE FROM orders WHERE user_id = $1`, userID); err != nil {
		return err
	}
	for _, o := range snap.Orders {
		var cond []byte
		if o.Condition != nil {
			cond, err = json.Marshal(o.Condition)
			if err != nil {
				return fmt.Errorf("encode condition for order %s: %w", o.ID, err)
			}
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO orders (id, user_id, symbol, side, kind, quantity,
			                     percent, trigger_price, trailing_pct, high_water_mark,
			                     condition, status, fill_price, created_at, resolved_at)
			 VALUES ($1, $2, $3, $4, $5, $6,
			         $7::NUMERIC, $8::NUMERIC, $9::NUMERIC, $10::NUMERIC,
			         $11, $12, $13::NUMERIC, $14, $15)`,
			o.ID, o.UserID, o.Symbol, o.Side, o.Kind, o.Quantity,
			o.Percent.String(), o.TriggerPrice.String(), o.TrailingPct.String(), o.HighWaterMark.String(),
			cond, o.Status, o.FillPrice.String(), o.CreatedAt, o.ResolvedAt)
		if err != nil {
			return fmt.Errorf("save order %s: %w", o.ID, err)
		}
	}

	return tx.Commit(ctx)
}

func (s *PostgresStore) ListUsers(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT user_id FROM accounts ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *PostgresStore) DeleteUser(ctx context.Context, userID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM orders WHERE user_id = $1`, userID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM holdings WHERE user_id = $1`, userID); err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `DELETE FROM accounts WHERE user_id = $1`, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return tx.Commit(ctx)
}
