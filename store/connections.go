package store

import (
	"context"
	"fmt"

	"github.com/rustyeddy/trailguard/model"
)

const connectionColumns = `id, user_id, name, status, online, quality, last_heartbeat, equity,
	risk, breakeven, tp_enabled, trailing, updated_at`

// SaveConnection inserts c or replaces the stored row.
func (s *SQL) SaveConnection(ctx context.Context, c *model.Connection) error {
	if err := c.Validate(); err != nil {
		return err
	}
	risk, err := encodeJSON(c.Risk)
	if err != nil {
		return err
	}
	be, err := encodeJSON(c.Breakeven)
	if err != nil {
		return err
	}
	tps, err := encodeJSON(c.TPEnabled)
	if err != nil {
		return err
	}
	tr, err := encodeJSON(c.Trailing)
	if err != nil {
		return err
	}

	_, err = s.exec(ctx, `
		INSERT INTO connections (`+connectionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			user_id = excluded.user_id,
			name = excluded.name,
			status = excluded.status,
			online = excluded.online,
			quality = excluded.quality,
			last_heartbeat = excluded.last_heartbeat,
			equity = excluded.equity,
			risk = excluded.risk,
			breakeven = excluded.breakeven,
			tp_enabled = excluded.tp_enabled,
			trailing = excluded.trailing,
			updated_at = excluded.updated_at`,
		c.ID, c.UserID, c.Name, string(c.Status), c.Online, string(c.Quality),
		utc(c.LastHeartbeat), c.Equity, risk, be, tps, tr, utc(c.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("save connection %s: %w", c.ID, err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanConnection(row scanner) (*model.Connection, error) {
	var (
		c                    model.Connection
		status, quality      string
		risk, be, tps, trail string
	)
	err := row.Scan(
		&c.ID, &c.UserID, &c.Name, &status, &c.Online, &quality, &c.LastHeartbeat,
		&c.Equity, &risk, &be, &tps, &trail, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Status = model.ConnectionStatus(status)
	c.Quality = model.Quality(quality)
	if err := decodeJSON(risk, &c.Risk); err != nil {
		return nil, fmt.Errorf("connection %s risk: %w", c.ID, err)
	}
	if err := decodeJSON(be, &c.Breakeven); err != nil {
		return nil, fmt.Errorf("connection %s breakeven: %w", c.ID, err)
	}
	if err := decodeJSON(tps, &c.TPEnabled); err != nil {
		return nil, fmt.Errorf("connection %s tp_enabled: %w", c.ID, err)
	}
	if err := decodeJSON(trail, &c.Trailing); err != nil {
		return nil, fmt.Errorf("connection %s trailing: %w", c.ID, err)
	}
	return &c, nil
}

func (s *SQL) GetConnection(ctx context.Context, id string) (*model.Connection, error) {
	row := s.queryRow(ctx, `SELECT `+connectionColumns+` FROM connections WHERE id = ?`, id)
	c, err := scanConnection(row)
	if err != nil {
		return nil, notFound(err, "connection", id)
	}
	return c, nil
}

func (s *SQL) ListConnections(ctx context.Context) ([]*model.Connection, error) {
	rows, err := s.query(ctx, `SELECT `+connectionColumns+` FROM connections ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Connection
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
