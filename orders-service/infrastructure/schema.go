package infrastructure

// Schema creates the order tables. Applied at startup when
// database.auto_migrate is set.
const Schema = `
CREATE TABLE IF NOT EXISTS orders (
    id            UUID PRIMARY KEY,
    user_id       VARCHAR(255) NOT NULL,
    total_amount  NUMERIC(19, 2) NOT NULL,
    status        VARCHAR(20) NOT NULL,
    cancel_reason TEXT NOT NULL DEFAULT '',
    created_at    TIMESTAMPTZ NOT NULL,
    updated_at    TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_orders_user_id ON orders(user_id);
CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status);

CREATE TABLE IF NOT EXISTS order_items (
    order_id   UUID NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
    line       INT NOT NULL,
    product_id VARCHAR(255) NOT NULL,
    quantity   INT NOT NULL CHECK (quantity > 0),
    price      NUMERIC(19, 2) NOT NULL CHECK (price >= 0),
    PRIMARY KEY (order_id, line)
);

CREATE TABLE IF NOT EXISTS order_status_history (
    id         UUID PRIMARY KEY,
    order_id   UUID NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
    old_status VARCHAR(20),
    new_status VARCHAR(20) NOT NULL,
    changed_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_order_status_history_order_id ON order_status_history(order_id, changed_at);
`
