package store

import (
	"context"
	"fmt"
	"time"

	"github.com/rustyeddy/trailguard/model"
)

const instructionColumns = `id, connection_id, action, trade_id, ticket, spec, stop_loss, take_profit,
	priority, status, error, created_at, updated_at`

func (s *SQL) CreateInstruction(ctx context.Context, in *model.Instruction) error {
	spec := ""
	if in.Spec != nil {
		var err error
		if spec, err = encodeJSON(in.Spec); err != nil {
			return err
		}
	}
	_, err := s.exec(ctx, `
		INSERT INTO instructions (`+instructionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		in.ID, in.ConnectionID, string(in.Action), in.TradeID, in.Ticket, spec, in.StopLoss, in.TakeProfit,
		in.Priority, string(in.Status), in.Error, utc(in.CreatedAt), utc(in.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("create instruction %s: %w", in.ID, err)
	}
	return nil
}

func scanInstruction(row scanner) (*model.Instruction, error) {
	var (
		in                   model.Instruction
		action, status, spec string
	)
	err := row.Scan(
		&in.ID, &in.ConnectionID, &action, &in.TradeID, &in.Ticket, &spec, &in.StopLoss, &in.TakeProfit,
		&in.Priority, &status, &in.Error, &in.CreatedAt, &in.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	in.Action = model.Action(action)
	in.Status = model.InstructionStatus(status)
	if spec != "" {
		in.Spec = &model.OpenSpec{}
		if err := decodeJSON(spec, in.Spec); err != nil {
			return nil, fmt.Errorf("instruction %s spec: %w", in.ID, err)
		}
	}
	return &in, nil
}

func (s *SQL) GetInstruction(ctx context.Context, id string) (*model.Instruction, error) {
	in, err := scanInstruction(s.queryRow(ctx, `SELECT `+instructionColumns+` FROM instructions WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err, "instruction", id)
	}
	return in, nil
}

func (s *SQL) ListPendingInstructions(ctx context.Context, connectionID string) ([]*model.Instruction, error) {
	q := `SELECT ` + instructionColumns + ` FROM instructions WHERE status = ?`
	args := []any{string(model.InstructionPending)}
	if connectionID != "" {
		q += ` AND connection_id = ?`
		args = append(args, connectionID)
	}
	q += ` ORDER BY priority DESC, created_at, id`

	rows, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Instruction
	for rows.Next() {
		in, err := scanInstruction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

// UpdateInstruction writes the mutable fields of in. Only a pending row is
// written, so a second resolution loses with model.ErrInstructionResolved.
func (s *SQL) UpdateInstruction(ctx context.Context, in *model.Instruction) error {
	res, err := s.exec(ctx, `
		UPDATE instructions SET status = ?, error = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(in.Status), in.Error, utc(in.UpdatedAt), in.ID, string(model.InstructionPending))
	if err != nil {
		return fmt.Errorf("update instruction %s: %w", in.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	cur, err := s.GetInstruction(ctx, in.ID)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s is %s", model.ErrInstructionResolved, in.ID, cur.Status)
}

func (s *SQL) DeleteTerminalInstructions(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.exec(ctx, `DELETE FROM instructions WHERE status IN (?, ?, ?) AND updated_at < ?`,
		string(model.InstructionExecuted), string(model.InstructionFailed), string(model.InstructionCancelled),
		utc(cutoff))
	if err != nil {
		return 0, fmt.Errorf("delete instructions: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQL) AppendTrailingLog(ctx context.Context, l *model.TrailingLog) error {
	_, err := s.exec(ctx, `
		INSERT INTO trailing_logs (id, trade_id, old_sl, new_sl, reason, mode, created_at, notify_sent)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.TradeID, l.OldSL, l.NewSL, l.Reason, l.Mode, utc(l.CreatedAt), l.NotifySent,
	)
	if err != nil {
		return fmt.Errorf("append trailing log %s: %w", l.ID, err)
	}
	return nil
}

func (s *SQL) MarkLogNotified(ctx context.Context, id string) error {
	res, err := s.exec(ctx, `UPDATE trailing_logs SET notify_sent = ? WHERE id = ?`, true, id)
	if err != nil {
		return err
	}
	return requireRow(res, "trailing log", id)
}

func (s *SQL) ListTrailingLogs(ctx context.Context, tradeID string) ([]*model.TrailingLog, error) {
	q := `SELECT id, trade_id, old_sl, new_sl, reason, mode, created_at, notify_sent FROM trailing_logs`
	var args []any
	if tradeID != "" {
		q += ` WHERE trade_id = ?`
		args = append(args, tradeID)
	}
	q += ` ORDER BY id`

	rows, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.TrailingLog
	for rows.Next() {
		var l model.TrailingLog
		if err := rows.Scan(&l.ID, &l.TradeID, &l.OldSL, &l.NewSL, &l.Reason, &l.Mode, &l.CreatedAt, &l.NotifySent); err != nil {
			return nil, err
		}
		out = append(out, &l)
	}
	return out, rows.Err()
}
