package store

import (
	"context"
	"fmt"
	"time"

	"github.com/rustyeddy/trailguard/market"
	"github.com/rustyeddy/trailguard/model"
)

const tradeColumns = `id, connection_id, ticket, symbol, direction, entry_price, stop_loss, original_sl,
	tp, breakeven_hit, trailing_active, trail_count, last_trail_at, peak_price, lot_size, profit,
	status, opened_at, closed_at, version`

func (s *SQL) CreateTrade(ctx context.Context, t *model.Trade) error {
	if err := t.Validate(); err != nil {
		return err
	}
	tp, err := encodeJSON(t.TP)
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, `
		INSERT INTO trades (`+tradeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.ConnectionID, t.Ticket, t.Symbol, string(t.Direction), t.EntryPrice, t.StopLoss, t.OriginalSL,
		tp, t.BreakevenHit, t.TrailingActive, t.TrailCount, utc(t.LastTrailAt), t.PeakPrice, t.LotSize, t.Profit,
		string(t.Status), utc(t.OpenedAt), utc(t.ClosedAt), t.Version,
	)
	if err != nil {
		return fmt.Errorf("create trade %s: %w", t.ID, err)
	}
	return nil
}

func scanTrade(row scanner) (*model.Trade, error) {
	var (
		t              model.Trade
		dir, status, tp string
	)
	err := row.Scan(
		&t.ID, &t.ConnectionID, &t.Ticket, &t.Symbol, &dir, &t.EntryPrice, &t.StopLoss, &t.OriginalSL,
		&tp, &t.BreakevenHit, &t.TrailingActive, &t.TrailCount, &t.LastTrailAt, &t.PeakPrice, &t.LotSize, &t.Profit,
		&status, &t.OpenedAt, &t.ClosedAt, &t.Version,
	)
	if err != nil {
		return nil, err
	}
	t.Direction = market.Direction(dir)
	t.Status = model.TradeStatus(status)
	if err := decodeJSON(tp, &t.TP); err != nil {
		return nil, fmt.Errorf("trade %s tp: %w", t.ID, err)
	}
	return &t, nil
}

func (s *SQL) GetTrade(ctx context.Context, id string) (*model.Trade, error) {
	t, err := scanTrade(s.queryRow(ctx, `SELECT `+tradeColumns+` FROM trades WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err, "trade", id)
	}
	return t, nil
}

func (s *SQL) GetTradeByTicket(ctx context.Context, connectionID, ticket string) (*model.Trade, error) {
	t, err := scanTrade(s.queryRow(ctx,
		`SELECT `+tradeColumns+` FROM trades WHERE connection_id = ? AND ticket = ?`, connectionID, ticket))
	if err != nil {
		return nil, notFound(err, "ticket", ticket)
	}
	return t, nil
}

func (s *SQL) ListOpenTrades(ctx context.Context, connectionID string) ([]*model.Trade, error) {
	return s.listTrades(ctx, `
		SELECT `+tradeColumns+` FROM trades
		WHERE connection_id = ? AND status = ?
		ORDER BY opened_at, id`, connectionID, string(model.TradeOpen))
}

func (s *SQL) ListTradesClosedBetween(ctx context.Context, start, end time.Time) ([]*model.Trade, error) {
	return s.listTrades(ctx, `
		SELECT `+tradeColumns+` FROM trades
		WHERE status = ? AND closed_at >= ? AND closed_at < ?
		ORDER BY closed_at, id`, string(model.TradeClosed), utc(start), utc(end))
}

func (s *SQL) listTrades(ctx context.Context, q string, args ...any) ([]*model.Trade, error) {
	rows, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQL) CountOpenTrades(ctx context.Context, connectionID string) (int, error) {
	var n int
	err := s.queryRow(ctx, `SELECT COUNT(*) FROM trades WHERE connection_id = ? AND status = ?`,
		connectionID, string(model.TradeOpen)).Scan(&n)
	return n, err
}

func (s *SQL) UpdateTrade(ctx context.Context, t *model.Trade) error {
	tp, err := encodeJSON(t.TP)
	if err != nil {
		return err
	}
	res, err := s.exec(ctx, `
		UPDATE trades SET
			stop_loss = ?, original_sl = ?, tp = ?, breakeven_hit = ?, trailing_active = ?,
			trail_count = ?, last_trail_at = ?, peak_price = ?, lot_size = ?, profit = ?,
			status = ?, closed_at = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		t.StopLoss, t.OriginalSL, tp, t.BreakevenHit, t.TrailingActive,
		t.TrailCount, utc(t.LastTrailAt), t.PeakPrice, t.LotSize, t.Profit,
		string(t.Status), utc(t.ClosedAt),
		t.ID, t.Version,
	)
	if err != nil {
		return fmt.Errorf("update trade %s: %w", t.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var exists int
		err := s.queryRow(ctx, `SELECT COUNT(*) FROM trades WHERE id = ?`, t.ID).Scan(&exists)
		if err != nil {
			return err
		}
		if exists == 0 {
			return fmt.Errorf("trade %s: %w", t.ID, ErrNotFound)
		}
		return fmt.Errorf("trade %s at version %d: %w", t.ID, t.Version, ErrVersionConflict)
	}
	t.Version++
	return nil
}

func (s *SQL) RealizedLossSince(ctx context.Context, connectionID string, since time.Time) (float64, error) {
	var loss float64
	err := s.queryRow(ctx, `
		SELECT COALESCE(SUM(-profit), 0) FROM trades
		WHERE connection_id = ? AND status = ? AND closed_at >= ? AND profit < 0`,
		connectionID, string(model.TradeClosed), utc(since)).Scan(&loss)
	if err != nil {
		return 0, fmt.Errorf("realized loss %s: %w", connectionID, err)
	}
	return loss, nil
}
