// Package model holds the records that cross the store boundary. Each record
// validates its own invariants; mutating methods on Trade refuse changes that
// would break them.
package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/rustyeddy/trailguard/risk"
	"github.com/rustyeddy/trailguard/trailing"
)

type ConnectionStatus string

const (
	ConnectionActive ConnectionStatus = "active"
	ConnectionPaused ConnectionStatus = "paused"
)

// Quality is the heartbeat health band of a connection.
type Quality string

const (
	QualityExcellent Quality = "excellent"
	QualityGood      Quality = "good"
	QualityPoor      Quality = "poor"
	QualityOffline   Quality = "offline"
)

// BreakevenPolicy arms breakeven once profit reaches TriggerR and moves the
// stop to entry plus PaddingPips.
type BreakevenPolicy struct {
	Enabled     bool    `json:"enabled" yaml:"enabled"`
	TriggerR    float64 `json:"trigger_r" yaml:"trigger_r"`
	PaddingPips float64 `json:"padding_pips" yaml:"padding_pips"`
}

// Connection is one bound trading-platform account.
type Connection struct {
	ID     string           `json:"id"`
	UserID string           `json:"user_id"`
	Name   string           `json:"name"`
	Status ConnectionStatus `json:"status"`

	Online        bool      `json:"online"`
	Quality       Quality   `json:"quality"`
	LastHeartbeat time.Time `json:"last_heartbeat"`

	Equity float64 `json:"equity"`

	Risk      risk.Policy     `json:"risk"`
	Breakeven BreakevenPolicy `json:"breakeven"`
	TPEnabled [4]bool         `json:"tp_enabled"`
	Trailing  trailing.Config `json:"trailing"`

	UpdatedAt time.Time `json:"updated_at"`
}

// NewConnection returns an active connection with default policies.
func NewConnection(id, userID, name string, equity float64) Connection {
	return Connection{
		ID:        id,
		UserID:    userID,
		Name:      name,
		Status:    ConnectionActive,
		Quality:   QualityOffline,
		Equity:    equity,
		Risk:      risk.DefaultPolicy(),
		Breakeven: BreakevenPolicy{Enabled: true, TriggerR: 1, PaddingPips: 2},
		TPEnabled: [4]bool{true, true, true, true},
		Trailing:  trailing.DefaultConfig(),
	}
}

// Eligible reports whether new signals should be routed to c.
func (c Connection) Eligible() bool {
	return c.Status == ConnectionActive && c.Online
}

// BreakevenTriggerR falls back to the trailing config when the policy leaves it unset.
func (c Connection) BreakevenTriggerR() float64 {
	if c.Breakeven.TriggerR > 0 {
		return c.Breakeven.TriggerR
	}
	if c.Trailing.BreakevenTriggerR > 0 {
		return c.Trailing.BreakevenTriggerR
	}
	return 1
}

func (c Connection) BreakevenPaddingPips() float64 {
	if c.Breakeven.PaddingPips > 0 {
		return c.Breakeven.PaddingPips
	}
	return c.Trailing.BreakevenPaddingPips
}

var ErrInvalidConnection = errors.New("invalid connection")

func (c Connection) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidConnection)
	}
	switch c.Status {
	case ConnectionActive, ConnectionPaused:
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidConnection, c.Status)
	}
	if c.Equity < 0 {
		return fmt.Errorf("%w: equity must not be negative", ErrInvalidConnection)
	}
	p := c.Risk
	if p.RiskPercent < 0 || p.RiskPercent > 100 {
		return fmt.Errorf("%w: risk.risk_percent must be between 0 and 100", ErrInvalidConnection)
	}
	if p.MaxLot < 0 || p.MaxOpenTrades < 0 || p.DailyLossLimit < 0 {
		return fmt.Errorf("%w: risk limits must not be negative", ErrInvalidConnection)
	}
	if c.Breakeven.TriggerR < 0 || c.Breakeven.PaddingPips < 0 {
		return fmt.Errorf("%w: breakeven values must not be negative", ErrInvalidConnection)
	}
	if err := c.Trailing.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConnection, err)
	}
	return nil
}
