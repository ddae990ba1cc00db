package db

const postgresSchema = `
CREATE TABLE IF NOT EXISTS rewards (
	id UUID PRIMARY KEY,
	user_id TEXT NOT NULL,
	stock_symbol TEXT NOT NULL,
	quantity NUMERIC(24,6) NOT NULL CHECK (quantity >= 0),
	rewarded_at TIMESTAMPTZ NOT NULL,
	notes TEXT NOT NULL DEFAULT '',
	idempotency_key TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'ACTIVE',
	adjustment_reason TEXT,
	parent_id UUID REFERENCES rewards(id),
	original_quantity NUMERIC(24,6),
	corporate_action_id UUID,
	superseded_by UUID,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	CONSTRAINT rewards_idempotency_key_key UNIQUE (idempotency_key),
	CONSTRAINT rewards_reason_chk CHECK (status = 'ACTIVE' OR adjustment_reason IS NOT NULL)
);

CREATE INDEX IF NOT EXISTS idx_rewards_symbol_held ON rewards (stock_symbol, rewarded_at) WHERE superseded_by IS NULL;
CREATE INDEX IF NOT EXISTS idx_rewards_user ON rewards (user_id, rewarded_at);

CREATE TABLE IF NOT EXISTS ledger_entries (
	id TEXT PRIMARY KEY,
	tx_id UUID NOT NULL,
	line_no INT NOT NULL,
	user_id TEXT NOT NULL,
	account TEXT NOT NULL,
	entry_type TEXT NOT NULL CHECK (entry_type IN ('DEBIT', 'CREDIT')),
	stock_symbol TEXT,
	stock_quantity NUMERIC(24,6),
	amount_inr NUMERIC(24,4),
	ref_id UUID REFERENCES rewards(id),
	status TEXT NOT NULL DEFAULT 'ACTIVE',
	corporate_action_id UUID,
	effective_at TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	CONSTRAINT ledger_entries_tx_line_key UNIQUE (tx_id, line_no),
	CONSTRAINT ledger_entries_payload_chk CHECK ((stock_quantity IS NULL) <> (amount_inr IS NULL))
);

CREATE INDEX IF NOT EXISTS idx_ledger_entries_user_account ON ledger_entries (user_id, account);

CREATE TABLE IF NOT EXISTS price_ticks (
	id TEXT PRIMARY KEY,
	stock_symbol TEXT NOT NULL,
	price_inr NUMERIC(24,4) NOT NULL CHECK (price_inr > 0),
	fetched_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_price_ticks_symbol_time ON price_ticks (stock_symbol, fetched_at);

CREATE TABLE IF NOT EXISTS corporate_actions (
	id UUID PRIMARY KEY,
	stock_symbol TEXT NOT NULL,
	action_type TEXT NOT NULL,
	parameter JSONB NOT NULL,
	effective_date TIMESTAMPTZ NOT NULL,
	announced_at TIMESTAMPTZ NOT NULL,
	status TEXT NOT NULL DEFAULT 'ANNOUNCED',
	failure_reason TEXT NOT NULL DEFAULT '',
	processed_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_corporate_actions_due ON corporate_actions (status, effective_date);
`

// Decimals are TEXT in sqlite so that NUMERIC affinity does not turn them
// into floats.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS rewards (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	stock_symbol TEXT NOT NULL,
	quantity TEXT NOT NULL,
	rewarded_at DATETIME NOT NULL,
	notes TEXT NOT NULL DEFAULT '',
	idempotency_key TEXT NOT NULL UNIQUE,
	status TEXT NOT NULL DEFAULT 'ACTIVE',
	adjustment_reason TEXT,
	parent_id TEXT REFERENCES rewards(id),
	original_quantity TEXT,
	corporate_action_id TEXT,
	superseded_by TEXT,
	created_at DATETIME NOT NULL,
	CHECK (status = 'ACTIVE' OR adjustment_reason IS NOT NULL)
);

CREATE INDEX IF NOT EXISTS idx_rewards_symbol_held ON rewards (stock_symbol, rewarded_at) WHERE superseded_by IS NULL;
CREATE INDEX IF NOT EXISTS idx_rewards_user ON rewards (user_id, rewarded_at);

CREATE TABLE IF NOT EXISTS ledger_entries (
	id TEXT PRIMARY KEY,
	tx_id TEXT NOT NULL,
	line_no INTEGER NOT NULL,
	user_id TEXT NOT NULL,
	account TEXT NOT NULL,
	entry_type TEXT NOT NULL CHECK (entry_type IN ('DEBIT', 'CREDIT')),
	stock_symbol TEXT,
	stock_quantity TEXT,
	amount_inr TEXT,
	ref_id TEXT REFERENCES rewards(id),
	status TEXT NOT NULL DEFAULT 'ACTIVE',
	corporate_action_id TEXT,
	effective_at DATETIME NOT NULL,
	created_at DATETIME NOT NULL,
	UNIQUE (tx_id, line_no),
	CHECK ((stock_quantity IS NULL) <> (amount_inr IS NULL))
);

CREATE INDEX IF NOT EXISTS idx_ledger_entries_user_account ON ledger_entries (user_id, account);

CREATE TABLE IF NOT EXISTS price_ticks (
	id TEXT PRIMARY KEY,
	stock_symbol TEXT NOT NULL,
	price_inr TEXT NOT NULL,
	fetched_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_price_ticks_symbol_time ON price_ticks (stock_symbol, fetched_at);

CREATE TABLE IF NOT EXISTS corporate_actions (
	id TEXT PRIMARY KEY,
	stock_symbol TEXT NOT NULL,
	action_type TEXT NOT NULL,
	parameter TEXT NOT NULL,
	effective_date DATETIME NOT NULL,
	announced_at DATETIME NOT NULL,
	status TEXT NOT NULL DEFAULT 'ANNOUNCED',
	failure_reason TEXT NOT NULL DEFAULT '',
	processed_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_corporate_actions_due ON corporate_actions (status, effective_date);
`
