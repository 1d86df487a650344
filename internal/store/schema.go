package store

import "context"

const schema = `
CREATE TABLE IF NOT EXISTS wallets (
    user_id          TEXT PRIMARY KEY,
    balance          BIGINT NOT NULL DEFAULT 0,
    reserved_balance BIGINT NOT NULL DEFAULT 0,
    currency         TEXT NOT NULL,
    created_at       TIMESTAMPTZ NOT NULL,
    updated_at       TIMESTAMPTZ NOT NULL,
    CHECK (balance >= reserved_balance),
    CHECK (reserved_balance >= 0)
);

CREATE TABLE IF NOT EXISTS payment_methods (
    id         TEXT PRIMARY KEY,
    user_id    TEXT NOT NULL REFERENCES wallets (user_id),
    type       TEXT NOT NULL,
    label      TEXT NOT NULL DEFAULT '',
    card_token TEXT NOT NULL DEFAULT '',
    last4      TEXT NOT NULL DEFAULT '',
    is_default BOOLEAN NOT NULL DEFAULT FALSE,
    added_at   TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS escrow_reserves (
    user_id   TEXT NOT NULL REFERENCES wallets (user_id),
    escrow_id TEXT NOT NULL,
    amount    BIGINT NOT NULL CHECK (amount > 0),
    PRIMARY KEY (user_id, escrow_id)
);

CREATE TABLE IF NOT EXISTS escrows (
    id               TEXT PRIMARY KEY,
    client_id        TEXT NOT NULL,
    freelancer_id    TEXT NOT NULL,
    service_name     TEXT NOT NULL,
    description      TEXT NOT NULL DEFAULT '',
    amount           BIGINT NOT NULL CHECK (amount > 0),
    platform_fee     BIGINT NOT NULL,
    currency         TEXT NOT NULL,
    status           TEXT NOT NULL,
    terms            TEXT NOT NULL DEFAULT '',
    delivery_message TEXT NOT NULL DEFAULT '',
    delivery_files   TEXT[] NOT NULL DEFAULT '{}',
    rating           INT NOT NULL DEFAULT 0,
    feedback         TEXT NOT NULL DEFAULT '',
    dispute_reason   TEXT NOT NULL DEFAULT '',
    transaction_id   TEXT NOT NULL DEFAULT '',
    created_at       TIMESTAMPTZ NOT NULL,
    funded_at        TIMESTAMPTZ,
    started_at       TIMESTAMPTZ,
    delivered_at     TIMESTAMPTZ,
    approved_at      TIMESTAMPTZ,
    disputed_at      TIMESTAMPTZ,
    resolved_at      TIMESTAMPTZ,
    cancelled_at     TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS transactions (
    id          TEXT PRIMARY KEY,
    user_id     TEXT NOT NULL,
    amount      BIGINT NOT NULL,
    currency    TEXT NOT NULL,
    type        TEXT NOT NULL,
    status      TEXT NOT NULL,
    escrow_id   TEXT NOT NULL DEFAULT '',
    gateway_ref TEXT NOT NULL DEFAULT '',
    created_at  TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS transactions_user_created_idx ON transactions (user_id, created_at);
CREATE INDEX IF NOT EXISTS escrows_client_idx ON escrows (client_id);
CREATE INDEX IF NOT EXISTS escrows_freelancer_idx ON escrows (freelancer_id);
`

// EnsureSchema creates the ledger tables when they do not exist yet.
func (s *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return storeErr(err)
	}
	return nil
}
