package store

import "strings"

// schema uses {{TIME}} and {{MONEY}} placeholders that are replaced per dialect.
// SQLite keeps decimals as TEXT so values round-trip without loss.
const schema = `
-- Users & roles
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	email TEXT NOT NULL DEFAULT '',
	display_name TEXT NOT NULL DEFAULT '',
	created_at {{TIME}} NOT NULL
);

CREATE TABLE IF NOT EXISTS user_roles (
	user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	role TEXT NOT NULL,
	created_at {{TIME}} NOT NULL,
	PRIMARY KEY (user_id, role)
);

-- Accounts & strategies
CREATE TABLE IF NOT EXISTS accounts (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	name TEXT NOT NULL,
	broker TEXT NOT NULL DEFAULT '',
	currency TEXT NOT NULL DEFAULT 'USD',
	starting_balance {{MONEY}} NOT NULL,
	created_at {{TIME}} NOT NULL
);

CREATE TABLE IF NOT EXISTS strategies (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	created_at {{TIME}} NOT NULL,
	UNIQUE(user_id, name)
);

-- Trades
CREATE TABLE IF NOT EXISTS trades (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	account_id TEXT REFERENCES accounts(id) ON DELETE SET NULL,
	strategy_id TEXT REFERENCES strategies(id) ON DELETE SET NULL,
	instrument TEXT NOT NULL,
	market_type TEXT NOT NULL,
	action TEXT NOT NULL,
	quantity {{MONEY}} NOT NULL,
	entry_price {{MONEY}} NOT NULL,
	entry_time {{TIME}} NOT NULL,
	stop_loss {{MONEY}},
	target {{MONEY}},
	commission {{MONEY}} NOT NULL,
	fees {{MONEY}} NOT NULL,
	contract_multiplier {{MONEY}} NOT NULL,
	status TEXT NOT NULL,
	notes TEXT NOT NULL DEFAULT '',
	tags TEXT NOT NULL DEFAULT '[]',
	rating INTEGER NOT NULL DEFAULT 0,
	is_shared BOOLEAN NOT NULL DEFAULT FALSE,
	created_at {{TIME}} NOT NULL,
	updated_at {{TIME}} NOT NULL
);

CREATE TABLE IF NOT EXISTS partial_exits (
	id TEXT PRIMARY KEY,
	trade_id TEXT NOT NULL REFERENCES trades(id) ON DELETE CASCADE,
	quantity {{MONEY}} NOT NULL,
	exit_price {{MONEY}} NOT NULL,
	exit_time {{TIME}} NOT NULL,
	commission {{MONEY}} NOT NULL,
	fees {{MONEY}} NOT NULL,
	created_at {{TIME}} NOT NULL
);

CREATE TABLE IF NOT EXISTS trade_metrics (
	trade_id TEXT PRIMARY KEY REFERENCES trades(id) ON DELETE CASCADE,
	exited_quantity {{MONEY}} NOT NULL,
	remaining_quantity {{MONEY}} NOT NULL,
	avg_exit_price {{MONEY}},
	gross_pnl {{MONEY}} NOT NULL,
	total_commission {{MONEY}} NOT NULL,
	total_fees {{MONEY}} NOT NULL,
	net_pnl {{MONEY}} NOT NULL,
	percent_gain {{MONEY}} NOT NULL,
	r_multiple {{MONEY}},
	result TEXT NOT NULL DEFAULT '',
	duration_seconds BIGINT NOT NULL DEFAULT 0,
	last_exit_time {{TIME}},
	updated_at {{TIME}} NOT NULL
);

-- Journal
CREATE TABLE IF NOT EXISTS journal (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	entry_date TEXT NOT NULL,
	content TEXT NOT NULL DEFAULT '',
	mood TEXT NOT NULL DEFAULT '',
	tags TEXT NOT NULL DEFAULT '[]',
	created_at {{TIME}} NOT NULL,
	updated_at {{TIME}} NOT NULL,
	UNIQUE(user_id, entry_date)
);

CREATE TABLE IF NOT EXISTS journal_images (
	id TEXT PRIMARY KEY,
	journal_id TEXT NOT NULL REFERENCES journal(id) ON DELETE CASCADE,
	user_id TEXT NOT NULL,
	path TEXT NOT NULL,
	url TEXT NOT NULL,
	content_type TEXT NOT NULL,
	size BIGINT NOT NULL,
	created_at {{TIME}} NOT NULL
);

-- Community
CREATE TABLE IF NOT EXISTS trader_profiles (
	user_id TEXT PRIMARY KEY,
	username TEXT NOT NULL UNIQUE,
	display_name TEXT NOT NULL DEFAULT '',
	bio TEXT NOT NULL DEFAULT '',
	is_public BOOLEAN NOT NULL DEFAULT FALSE,
	total_trades INTEGER NOT NULL DEFAULT 0,
	win_rate {{MONEY}} NOT NULL DEFAULT 0,
	net_pnl {{MONEY}} NOT NULL DEFAULT 0,
	profit_factor {{MONEY}},
	followers INTEGER NOT NULL DEFAULT 0,
	following INTEGER NOT NULL DEFAULT 0,
	updated_at {{TIME}} NOT NULL
);

CREATE TABLE IF NOT EXISTS follows (
	follower_id TEXT NOT NULL,
	followee_id TEXT NOT NULL,
	created_at {{TIME}} NOT NULL,
	PRIMARY KEY (follower_id, followee_id)
);

CREATE TABLE IF NOT EXISTS trade_likes (
	user_id TEXT NOT NULL,
	trade_id TEXT NOT NULL REFERENCES trades(id) ON DELETE CASCADE,
	created_at {{TIME}} NOT NULL,
	PRIMARY KEY (user_id, trade_id)
);

-- Notifications
CREATE TABLE IF NOT EXISTS notifications (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	type TEXT NOT NULL,
	title TEXT NOT NULL,
	message TEXT NOT NULL DEFAULT '',
	data TEXT NOT NULL DEFAULT '{}',
	is_read BOOLEAN NOT NULL DEFAULT FALSE,
	created_at {{TIME}} NOT NULL
);

-- Billing
CREATE TABLE IF NOT EXISTS subscriptions (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL UNIQUE,
	plan_id TEXT NOT NULL,
	status TEXT NOT NULL,
	provider TEXT NOT NULL DEFAULT '',
	current_period_start {{TIME}} NOT NULL,
	current_period_end {{TIME}} NOT NULL,
	cancel_at_period_end BOOLEAN NOT NULL DEFAULT FALSE,
	reminder_sent_at {{TIME}},
	created_at {{TIME}} NOT NULL,
	updated_at {{TIME}} NOT NULL
);

CREATE TABLE IF NOT EXISTS payment_history (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	plan_id TEXT NOT NULL,
	provider TEXT NOT NULL,
	provider_order_id TEXT NOT NULL DEFAULT '',
	provider_payment_id TEXT NOT NULL DEFAULT '',
	amount {{MONEY}} NOT NULL,
	currency TEXT NOT NULL,
	status TEXT NOT NULL,
	raw_event TEXT NOT NULL DEFAULT '',
	created_at {{TIME}} NOT NULL,
	updated_at {{TIME}} NOT NULL
);

-- Email queue
CREATE TABLE IF NOT EXISTS email_queue (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL DEFAULT '',
	to_email TEXT NOT NULL,
	to_name TEXT NOT NULL DEFAULT '',
	template TEXT NOT NULL,
	subject TEXT NOT NULL DEFAULT '',
	params TEXT NOT NULL DEFAULT '{}',
	status TEXT NOT NULL,
	attempts INTEGER NOT NULL DEFAULT 0,
	last_error TEXT NOT NULL DEFAULT '',
	next_attempt_at {{TIME}} NOT NULL,
	created_at {{TIME}} NOT NULL,
	sent_at {{TIME}}
);

-- Indexes
CREATE INDEX IF NOT EXISTS idx_trades_user_entry ON trades(user_id, entry_time);
CREATE INDEX IF NOT EXISTS idx_trades_shared ON trades(is_shared, created_at);
CREATE INDEX IF NOT EXISTS idx_exits_trade ON partial_exits(trade_id, exit_time);
CREATE INDEX IF NOT EXISTS idx_journal_user_date ON journal(user_id, entry_date);
CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id, is_read, created_at);
CREATE INDEX IF NOT EXISTS idx_payments_order ON payment_history(provider, provider_order_id);
CREATE INDEX IF NOT EXISTS idx_payments_user ON payment_history(user_id, created_at);
CREATE INDEX IF NOT EXISTS idx_subscriptions_end ON subscriptions(status, current_period_end);
CREATE INDEX IF NOT EXISTS idx_email_due ON email_queue(status, next_attempt_at);
`

func schemaStatements(driver string) []string {
	var r *strings.Replacer
	if driver == DriverPostgres {
		r = strings.NewReplacer("{{TIME}}", "TIMESTAMPTZ", "{{MONEY}}", "NUMERIC(30,10)")
	} else {
		r = strings.NewReplacer("{{TIME}}", "DATETIME", "{{MONEY}}", "TEXT")
	}

	var stmts []string
	for _, stmt := range strings.Split(r.Replace(schema), ";") {
		lines := strings.Split(stmt, "\n")
		kept := lines[:0]
		for _, l := range lines {
			if !strings.HasPrefix(strings.TrimSpace(l), "--") {
				kept = append(kept, l)
			}
		}
		if s := strings.TrimSpace(strings.Join(kept, "\n")); s != "" {
			stmts = append(stmts, s)
		}
	}
	return stmts
}
