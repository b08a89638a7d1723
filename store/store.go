// Package store persists connections, trades, instructions and the trailing
// audit log. SQL serves sqlite3 and postgres from one set of queries; Memory
// backs tests and dry runs.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/rustyeddy/trailguard/model"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrVersionConflict = errors.New("version conflict")
)

// Store is the persistence boundary of the engine. Implementations must be
// safe for concurrent use.
type Store interface {
	SaveConnection(ctx context.Context, c *model.Connection) error
	GetConnection(ctx context.Context, id string) (*model.Connection, error)
	ListConnections(ctx context.Context) ([]*model.Connection, error)

	CreateTrade(ctx context.Context, t *model.Trade) error
	GetTrade(ctx context.Context, id string) (*model.Trade, error)
	GetTradeByTicket(ctx context.Context, connectionID, ticket string) (*model.Trade, error)
	ListOpenTrades(ctx context.Context, connectionID string) ([]*model.Trade, error)
	CountOpenTrades(ctx context.Context, connectionID string) (int, error)
	// UpdateTrade writes t only if the stored version still equals t.Version,
	// then increments t.Version. A stale write returns ErrVersionConflict.
	UpdateTrade(ctx context.Context, t *model.Trade) error
	// RealizedLossSince sums the losses of trades closed at or after since,
	// as a positive amount.
	RealizedLossSince(ctx context.Context, connectionID string, since time.Time) (float64, error)
	// ListTradesClosedBetween returns trades of every connection closed
	// within [start, end), oldest close first.
	ListTradesClosedBetween(ctx context.Context, start, end time.Time) ([]*model.Trade, error)

	CreateInstruction(ctx context.Context, in *model.Instruction) error
	GetInstruction(ctx context.Context, id string) (*model.Instruction, error)
	// ListPendingInstructions orders by priority, then age. An empty
	// connectionID lists every connection.
	ListPendingInstructions(ctx context.Context, connectionID string) ([]*model.Instruction, error)
	UpdateInstruction(ctx context.Context, in *model.Instruction) error
	// DeleteTerminalInstructions removes executed, failed and cancelled
	// instructions last updated before cutoff.
	DeleteTerminalInstructions(ctx context.Context, cutoff time.Time) (int64, error)

	AppendTrailingLog(ctx context.Context, l *model.TrailingLog) error
	MarkLogNotified(ctx context.Context, id string) error
	ListTrailingLogs(ctx context.Context, tradeID string) ([]*model.TrailingLog, error)

	Close() error
}
