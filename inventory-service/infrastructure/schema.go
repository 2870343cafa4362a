package infrastructure

// Schema creates the inventory tables. Applied at startup when
// database.auto_migrate is set.
const Schema = `
CREATE TABLE IF NOT EXISTS inventory (
    id                 UUID PRIMARY KEY,
    product_id         VARCHAR(255) NOT NULL UNIQUE,
    product_name       VARCHAR(255) NOT NULL DEFAULT '',
    quantity           INT NOT NULL CHECK (quantity >= 0),
    reserved_quantity  INT NOT NULL DEFAULT 0 CHECK (reserved_quantity >= 0),
    available_quantity INT NOT NULL CHECK (available_quantity >= 0),
    last_updated       TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS stock_reservations (
    consumer       VARCHAR(100) NOT NULL,
    order_id       VARCHAR(255) NOT NULL,
    event_id       VARCHAR(255) NOT NULL,
    items          JSONB NOT NULL,
    status         VARCHAR(20) NOT NULL,
    pending_alerts JSONB NOT NULL DEFAULT '[]',
    created_at     TIMESTAMPTZ NOT NULL,
    updated_at     TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (consumer, order_id)
);
`
