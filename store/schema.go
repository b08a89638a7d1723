package store

// Schema is valid for both sqlite3 and postgres. Times are written in UTC.
const Schema = `
CREATE TABLE IF NOT EXISTS connections (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL DEFAULT '',
	name TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	online BOOLEAN NOT NULL DEFAULT FALSE,
	quality TEXT NOT NULL DEFAULT 'offline',
	last_heartbeat TIMESTAMP NOT NULL,
	equity DOUBLE PRECISION NOT NULL DEFAULT 0,
	risk TEXT NOT NULL,
	breakeven TEXT NOT NULL,
	tp_enabled TEXT NOT NULL,
	trailing TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS trades (
	id TEXT PRIMARY KEY,
	connection_id TEXT NOT NULL,
	ticket TEXT NOT NULL,
	symbol TEXT NOT NULL,
	direction TEXT NOT NULL,
	entry_price DOUBLE PRECISION NOT NULL,
	stop_loss DOUBLE PRECISION NOT NULL,
	original_sl DOUBLE PRECISION NOT NULL,
	tp TEXT NOT NULL,
	breakeven_hit BOOLEAN NOT NULL DEFAULT FALSE,
	trailing_active BOOLEAN NOT NULL DEFAULT FALSE,
	trail_count INTEGER NOT NULL DEFAULT 0,
	last_trail_at TIMESTAMP NOT NULL,
	peak_price DOUBLE PRECISION NOT NULL DEFAULT 0,
	lot_size DOUBLE PRECISION NOT NULL,
	profit DOUBLE PRECISION NOT NULL DEFAULT 0,
	status TEXT NOT NULL,
	opened_at TIMESTAMP NOT NULL,
	closed_at TIMESTAMP NOT NULL,
	version BIGINT NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_trades_connection_status ON trades(connection_id, status);
CREATE UNIQUE INDEX IF NOT EXISTS idx_trades_ticket ON trades(connection_id, ticket);

CREATE TABLE IF NOT EXISTS instructions (
	id TEXT PRIMARY KEY,
	connection_id TEXT NOT NULL,
	action TEXT NOT NULL,
	trade_id TEXT NOT NULL DEFAULT '',
	ticket TEXT NOT NULL DEFAULT '',
	spec TEXT NOT NULL DEFAULT '',
	stop_loss DOUBLE PRECISION NOT NULL DEFAULT 0,
	take_profit DOUBLE PRECISION NOT NULL DEFAULT 0,
	priority INTEGER NOT NULL,
	status TEXT NOT NULL,
	error TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_instructions_status ON instructions(status, priority);
CREATE INDEX IF NOT EXISTS idx_instructions_updated ON instructions(updated_at);

CREATE TABLE IF NOT EXISTS trailing_logs (
	id TEXT PRIMARY KEY,
	trade_id TEXT NOT NULL,
	old_sl DOUBLE PRECISION NOT NULL,
	new_sl DOUBLE PRECISION NOT NULL,
	reason TEXT NOT NULL,
	mode TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	notify_sent BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE INDEX IF NOT EXISTS idx_trailing_logs_trade ON trailing_logs(trade_id);
`
