package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/rustyeddy/trailguard/market"
	"github.com/rustyeddy/trailguard/pkg/id"
)

type Action string

const (
	ActionOpen      Action = "open"
	ActionBreakeven Action = "breakeven"
	ActionTrail     Action = "trail"
	ActionClose     Action = "close"
)

// Priority is advisory for the actuator; higher runs first.
const (
	PriorityOpen      = 10
	PriorityTrail     = 12
	PriorityBreakeven = 15
)

type InstructionStatus string

const (
	InstructionPending   InstructionStatus = "pending"
	InstructionExecuted  InstructionStatus = "executed"
	InstructionFailed    InstructionStatus = "failed"
	InstructionCancelled InstructionStatus = "cancelled"
)

// Terminal reports whether s is a final status.
func (s InstructionStatus) Terminal() bool {
	return s == InstructionExecuted || s == InstructionFailed || s == InstructionCancelled
}

var ErrInstructionResolved = errors.New("instruction already resolved")

// OpenSpec is the full order for an open instruction. Disabled take-profit
// levels are 0.
type OpenSpec struct {
	Symbol    string           `json:"symbol"`
	Direction market.Direction `json:"direction"`
	Lot       float64          `json:"lot"`
	Entry     float64          `json:"entry"`
	StopLoss  float64          `json:"stop_loss"`
	TP        [4]float64       `json:"tp"`
	SignalID  string           `json:"signal_id,omitempty"`
}

// Instruction is a command for the external actuator. Only Status, Error and
// UpdatedAt change after creation.
type Instruction struct {
	ID           string            `json:"id"`
	ConnectionID string            `json:"connection_id"`
	Action       Action            `json:"action"`
	TradeID      string            `json:"trade_id,omitempty"`
	Ticket       string            `json:"ticket,omitempty"`
	Spec         *OpenSpec         `json:"spec,omitempty"`
	StopLoss     float64           `json:"stop_loss,omitempty"`
	TakeProfit   float64           `json:"take_profit,omitempty"`
	Priority     int               `json:"priority"`
	Status       InstructionStatus `json:"status"`
	Error        string            `json:"error,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

func NewOpenInstruction(connectionID string, spec OpenSpec, now time.Time) Instruction {
	return Instruction{
		ID:           id.New(),
		ConnectionID: connectionID,
		Action:       ActionOpen,
		Spec:         &spec,
		StopLoss:     spec.StopLoss,
		TakeProfit:   spec.TP[0],
		Priority:     PriorityOpen,
		Status:       InstructionPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// NewModifyInstruction moves the stop of an existing ticket.
func NewModifyInstruction(action Action, t *Trade, sl float64, now time.Time) Instruction {
	prio := PriorityTrail
	if action == ActionBreakeven {
		prio = PriorityBreakeven
	}
	return Instruction{
		ID:           id.New(),
		ConnectionID: t.ConnectionID,
		Action:       action,
		TradeID:      t.ID,
		Ticket:       t.Ticket,
		StopLoss:     sl,
		Priority:     prio,
		Status:       InstructionPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// Resolve moves a pending instruction to a terminal status.
func (i *Instruction) Resolve(status InstructionStatus, errMsg string, now time.Time) error {
	if !status.Terminal() {
		return fmt.Errorf("status %q is not terminal", status)
	}
	if i.Status != InstructionPending {
		return fmt.Errorf("%w: %s is %s", ErrInstructionResolved, i.ID, i.Status)
	}
	i.Status = status
	i.Error = errMsg
	i.UpdatedAt = now
	return nil
}
