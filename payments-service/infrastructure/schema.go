package infrastructure

// Schema creates the payment tables. Applied at startup when
// database.auto_migrate is set.
const Schema = `
CREATE TABLE IF NOT EXISTS payments (
    id              UUID PRIMARY KEY,
    order_id        UUID NOT NULL UNIQUE,
    amount          NUMERIC(19, 2) NOT NULL CHECK (amount > 0),
    status          VARCHAR(20) NOT NULL,
    transaction_id  VARCHAR(255),
    idempotency_key VARCHAR(255) NOT NULL UNIQUE,
    failure_reason  TEXT NOT NULL DEFAULT '',
    created_at      TIMESTAMPTZ NOT NULL,
    updated_at      TIMESTAMPTZ NOT NULL,
    version         INT NOT NULL DEFAULT 1
);

CREATE INDEX IF NOT EXISTS idx_payments_status ON payments(status);

CREATE TABLE IF NOT EXISTS payment_transactions (
    id                      UUID PRIMARY KEY,
    payment_id              UUID NOT NULL REFERENCES payments(id),
    type                    VARCHAR(20) NOT NULL,
    amount                  NUMERIC(19, 2) NOT NULL,
    external_transaction_id VARCHAR(255) NOT NULL,
    created_at              TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_payment_transactions_payment_id ON payment_transactions(payment_id, created_at);

CREATE TABLE IF NOT EXISTS payment_audit_log (
    id         UUID PRIMARY KEY,
    payment_id UUID NOT NULL REFERENCES payments(id),
    action     VARCHAR(50) NOT NULL,
    details    TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_payment_audit_log_payment_id ON payment_audit_log(payment_id, created_at);
`
