package postgres

// SQL-миграции встроены в код для упрощения деплоя.
// Номера версий не переиспользуются: новая схема добавляется в конец списка.
var migrations = []struct {
	version int
	sql     string
}{
	{1, migration001Users},
	{2, migration002Ledger},
	{3, migration003Investments},
	{4, migration004Binary},
	{5, migration005Settings},
	{6, migration006Admin},
	{7, migration007LedgerPercentScale},
}

var migration001Users = `
CREATE TABLE IF NOT EXISTS users (
    id BIGSERIAL PRIMARY KEY,
    own_code VARCHAR(32) UNIQUE NOT NULL,
    referred_by_code VARCHAR(32),
    username VARCHAR(255) NOT NULL,
    rank INTEGER NOT NULL DEFAULT 0,
    tier INTEGER NOT NULL DEFAULT 0,
    wallet_balance NUMERIC(20,8) NOT NULL DEFAULT 0,
    crypto_wallet NUMERIC(20,8) NOT NULL DEFAULT 0,
    current_balance NUMERIC(20,8) NOT NULL DEFAULT 0,
    commission_locked NUMERIC(20,8) NOT NULL DEFAULT 0,
    commission_withdrawable NUMERIC(20,8) NOT NULL DEFAULT 0,
    commission_earned NUMERIC(20,8) NOT NULL DEFAULT 0,
    pending_commissions NUMERIC(20,8) NOT NULL DEFAULT 0,
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMPTZ DEFAULT NOW(),
    updated_at TIMESTAMPTZ DEFAULT NOW(),
    CONSTRAINT users_commission_identity
        CHECK (commission_earned = commission_locked + commission_withdrawable)
);
CREATE INDEX IF NOT EXISTS idx_users_referred_by_code ON users(referred_by_code);
`

var migration002Ledger = `
CREATE TABLE IF NOT EXISTS transactions (
    id BIGSERIAL PRIMARY KEY,
    event_id UUID NOT NULL,
    sender_id BIGINT REFERENCES users(id),
    receiver_id BIGINT REFERENCES users(id),
    amount NUMERIC(20,8) NOT NULL,
    transaction_type VARCHAR(64) NOT NULL,
    status VARCHAR(16) NOT NULL,
    level INTEGER,
    percentage NUMERIC(10,4) NOT NULL DEFAULT 0,
    buyer_id BIGINT,
    investment_id BIGINT,
    minting_id BIGINT,
    source_minting_id BIGINT,
    note TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_transactions_receiver ON transactions(receiver_id, transaction_type, status);
CREATE INDEX IF NOT EXISTS idx_transactions_sender ON transactions(sender_id);
CREATE INDEX IF NOT EXISTS idx_transactions_minting ON transactions(minting_id, transaction_type, status);
CREATE INDEX IF NOT EXISTS idx_transactions_event ON transactions(event_id);
CREATE INDEX IF NOT EXISTS idx_transactions_created_at ON transactions(created_at DESC);
`

var migration003Investments = `
CREATE TABLE IF NOT EXISTS packages (
    id BIGSERIAL PRIMARY KEY,
    name VARCHAR(255) NOT NULL,
    hub_price NUMERIC(20,8) NOT NULL,
    hub_capacity NUMERIC(20,8) NOT NULL,
    minimum_minting NUMERIC(20,8) NOT NULL DEFAULT 0,
    points NUMERIC(20,8) NOT NULL DEFAULT 0,
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMPTZ DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS investments (
    id BIGSERIAL PRIMARY KEY,
    user_id BIGINT NOT NULL REFERENCES users(id),
    package_id BIGINT NOT NULL REFERENCES packages(id),
    hub_price NUMERIC(20,8) NOT NULL,
    hub_capacity NUMERIC(20,8) NOT NULL,
    minimum_minting NUMERIC(20,8) NOT NULL,
    points NUMERIC(20,8) NOT NULL,
    created_at TIMESTAMPTZ DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_investments_user_id ON investments(user_id);
CREATE TABLE IF NOT EXISTS minting_activities (
    id BIGSERIAL PRIMARY KEY,
    investment_id BIGINT NOT NULL REFERENCES investments(id),
    user_id BIGINT NOT NULL REFERENCES users(id),
    position INTEGER NOT NULL,
    minting_type VARCHAR(16) NOT NULL,
    invested_amount NUMERIC(20,8) NOT NULL,
    clicks_done INTEGER NOT NULL DEFAULT 0,
    total_profit_earned NUMERIC(20,8) NOT NULL DEFAULT 0,
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    last_click_at TIMESTAMPTZ,
    created_at TIMESTAMPTZ DEFAULT NOW(),
    updated_at TIMESTAMPTZ DEFAULT NOW(),
    UNIQUE (investment_id, position)
);
CREATE INDEX IF NOT EXISTS idx_minting_activities_user ON minting_activities(user_id, is_active);
CREATE TABLE IF NOT EXISTS minting_clicks (
    id BIGSERIAL PRIMARY KEY,
    activity_id BIGINT NOT NULL REFERENCES minting_activities(id),
    click_number INTEGER NOT NULL,
    clicked_at TIMESTAMPTZ NOT NULL,
    processed BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE INDEX IF NOT EXISTS idx_minting_clicks_activity ON minting_clicks(activity_id);
`

var migration004Binary = `
CREATE TABLE IF NOT EXISTS binary_placements (
    user_id BIGINT PRIMARY KEY REFERENCES users(id),
    sponsor_id BIGINT REFERENCES users(id),
    parent_id BIGINT REFERENCES binary_placements(user_id),
    leg CHAR(1) CHECK (leg IN ('L', 'R')),
    left_points NUMERIC(20,8) NOT NULL DEFAULT 0,
    right_points NUMERIC(20,8) NOT NULL DEFAULT 0,
    total_left_points NUMERIC(20,8) NOT NULL DEFAULT 0,
    total_right_points NUMERIC(20,8) NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ DEFAULT NOW(),
    updated_at TIMESTAMPTZ DEFAULT NOW(),
    UNIQUE (parent_id, leg)
);
`

var migration005Settings = `
CREATE TABLE IF NOT EXISTS settings (
    name VARCHAR(64) PRIMARY KEY,
    value JSONB NOT NULL,
    updated_at TIMESTAMPTZ DEFAULT NOW()
);
`

var migration006Admin = `
CREATE TABLE IF NOT EXISTS admin_login_attempts (
    id BIGSERIAL PRIMARY KEY,
    remote_key VARCHAR(255) NOT NULL,
    attempt_time TIMESTAMPTZ DEFAULT NOW(),
    success BOOLEAN DEFAULT FALSE
);
CREATE INDEX IF NOT EXISTS idx_admin_login_attempts_key ON admin_login_attempts(remote_key, attempt_time DESC);
`

// Процент доли Remaining Level может иметь 8 знаков, как и суммы.
var migration007LedgerPercentScale = `
ALTER TABLE transactions ALTER COLUMN percentage TYPE NUMERIC(20,8);
`
