package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rustyeddy/trailguard/model"
)

// Memory is an in-process Store. Records are copied on the way in and out.
type Memory struct {
	mu           sync.RWMutex
	connections  map[string]model.Connection
	trades       map[string]model.Trade
	instructions map[string]model.Instruction
	logs         map[string]model.TrailingLog
}

func NewMemory() *Memory {
	return &Memory{
		connections:  map[string]model.Connection{},
		trades:       map[string]model.Trade{},
		instructions: map[string]model.Instruction{},
		logs:         map[string]model.TrailingLog{},
	}
}

func (m *Memory) Close() error { return nil }

func (m *Memory) SaveConnection(_ context.Context, c *model.Connection) error {
	if err := c.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connections[c.ID] = *c
	return nil
}

func (m *Memory) GetConnection(_ context.Context, id string) (*model.Connection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.connections[id]
	if !ok {
		return nil, fmt.Errorf("connection %s: %w", id, ErrNotFound)
	}
	return &c, nil
}

func (m *Memory) ListConnections(_ context.Context) ([]*model.Connection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*model.Connection, 0, len(m.connections))
	for _, c := range m.connections {
		c := c
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) CreateTrade(_ context.Context, t *model.Trade) error {
	if err := t.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.trades[t.ID]; ok {
		return fmt.Errorf("create trade %s: duplicate id", t.ID)
	}
	for _, o := range m.trades {
		if o.ConnectionID == t.ConnectionID && o.Ticket == t.Ticket {
			return fmt.Errorf("create trade %s: duplicate ticket %s", t.ID, t.Ticket)
		}
	}
	m.trades[t.ID] = *t
	return nil
}

func (m *Memory) GetTrade(_ context.Context, id string) (*model.Trade, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.trades[id]
	if !ok {
		return nil, fmt.Errorf("trade %s: %w", id, ErrNotFound)
	}
	return &t, nil
}

func (m *Memory) GetTradeByTicket(_ context.Context, connectionID, ticket string) (*model.Trade, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.trades {
		if t.ConnectionID == connectionID && t.Ticket == ticket {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("ticket %s: %w", ticket, ErrNotFound)
}

func (m *Memory) openTrades(connectionID string) []*model.Trade {
	var out []*model.Trade
	for _, t := range m.trades {
		if t.ConnectionID == connectionID && t.Status == model.TradeOpen {
			t := t
			out = append(out, &t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].OpenedAt.Equal(out[j].OpenedAt) {
			return out[i].OpenedAt.Before(out[j].OpenedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (m *Memory) ListOpenTrades(_ context.Context, connectionID string) ([]*model.Trade, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.openTrades(connectionID), nil
}

func (m *Memory) CountOpenTrades(_ context.Context, connectionID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.openTrades(connectionID)), nil
}

func (m *Memory) UpdateTrade(_ context.Context, t *model.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.trades[t.ID]
	if !ok {
		return fmt.Errorf("trade %s: %w", t.ID, ErrNotFound)
	}
	if cur.Version != t.Version {
		return fmt.Errorf("trade %s at version %d: %w", t.ID, t.Version, ErrVersionConflict)
	}
	t.Version++
	m.trades[t.ID] = *t
	return nil
}

func (m *Memory) RealizedLossSince(_ context.Context, connectionID string, since time.Time) (float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var loss float64
	for _, t := range m.trades {
		if t.ConnectionID != connectionID || t.Status != model.TradeClosed || t.Profit >= 0 {
			continue
		}
		if t.ClosedAt.Before(since) {
			continue
		}
		loss -= t.Profit
	}
	return loss, nil
}

func (m *Memory) ListTradesClosedBetween(_ context.Context, start, end time.Time) ([]*model.Trade, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Trade
	for _, t := range m.trades {
		if t.Status != model.TradeClosed || t.ClosedAt.Before(start) || !t.ClosedAt.Before(end) {
			continue
		}
		t := t
		out = append(out, &t)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ClosedAt.Equal(out[j].ClosedAt) {
			return out[i].ClosedAt.Before(out[j].ClosedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) CreateInstruction(_ context.Context, in *model.Instruction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.instructions[in.ID]; ok {
		return fmt.Errorf("create instruction %s: duplicate id", in.ID)
	}
	m.instructions[in.ID] = copyInstruction(*in)
	return nil
}

func copyInstruction(in model.Instruction) model.Instruction {
	if in.Spec != nil {
		spec := *in.Spec
		in.Spec = &spec
	}
	return in
}

func (m *Memory) GetInstruction(_ context.Context, id string) (*model.Instruction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	in, ok := m.instructions[id]
	if !ok {
		return nil, fmt.Errorf("instruction %s: %w", id, ErrNotFound)
	}
	in = copyInstruction(in)
	return &in, nil
}

func (m *Memory) ListPendingInstructions(_ context.Context, connectionID string) ([]*model.Instruction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Instruction
	for _, in := range m.instructions {
		in := in
		if in.Status != model.InstructionPending {
			continue
		}
		if connectionID != "" && in.ConnectionID != connectionID {
			continue
		}
		in = copyInstruction(in)
		out = append(out, &in)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return out, nil
}

func (m *Memory) UpdateInstruction(_ context.Context, in *model.Instruction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.instructions[in.ID]
	if !ok {
		return fmt.Errorf("instruction %s: %w", in.ID, ErrNotFound)
	}
	if cur.Status != model.InstructionPending {
		return fmt.Errorf("%w: %s is %s", model.ErrInstructionResolved, in.ID, cur.Status)
	}
	cur.Status = in.Status
	cur.Error = in.Error
	cur.UpdatedAt = in.UpdatedAt
	m.instructions[in.ID] = cur
	return nil
}

func (m *Memory) DeleteTerminalInstructions(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, in := range m.instructions {
		if in.Status.Terminal() && in.UpdatedAt.Before(cutoff) {
			delete(m.instructions, id)
			n++
		}
	}
	return n, nil
}

func (m *Memory) AppendTrailingLog(_ context.Context, l *model.TrailingLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.logs[l.ID]; ok {
		return fmt.Errorf("append trailing log %s: duplicate id", l.ID)
	}
	m.logs[l.ID] = *l
	return nil
}

func (m *Memory) MarkLogNotified(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.logs[id]
	if !ok {
		return fmt.Errorf("trailing log %s: %w", id, ErrNotFound)
	}
	l.NotifySent = true
	m.logs[id] = l
	return nil
}

func (m *Memory) ListTrailingLogs(_ context.Context, tradeID string) ([]*model.TrailingLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.TrailingLog
	for _, l := range m.logs {
		if tradeID != "" && l.TradeID != tradeID {
			continue
		}
		l := l
		out = append(out, &l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

var (
	_ Store = (*Memory)(nil)
	_ Store = (*SQL)(nil)
)
