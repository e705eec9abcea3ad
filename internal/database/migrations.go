package database

import (
	"fmt"
	"log/slog"
)

func (db *DB) RunMigrations() error {
	slog.Info("Running database migrations...")

	for i, migration := range Migrations {
		slog.Info("Running migration", "step", i+1)
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	slog.Info("All migrations completed successfully")
	return nil
}

// Migrations применяются по порядку; каждая идемпотентна
var Migrations = []string{
	createSellersTable,
	createUsersTable,
	createSessionsTable,
	createVerificationCodesTable,
	createSellerMetricsTable,
	createEventsTable,
	createTicketsTable,
	createOrdersTable,
	createOrderItemsTable,
	createPaymentsTable,
	createTicketEscrowsTable,
	createCreditTransactionsTable,
	createNotificationsTable,
	createForumTables,
	createWaitlistTable,
	createIndexes,
}

const createSellersTable = `
CREATE TABLE IF NOT EXISTS sellers (
    id UUID PRIMARY KEY,
    name VARCHAR(200) NOT NULL,
    status VARCHAR(20) NOT NULL DEFAULT 'PENDING',
    rating DOUBLE PRECISION NOT NULL DEFAULT 0,
    reviews INTEGER NOT NULL DEFAULT 0,
    credit_balance_credits BIGINT NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

const createUsersTable = `
CREATE TABLE IF NOT EXISTS users (
    id UUID PRIMARY KEY,
    email VARCHAR(255) UNIQUE NOT NULL,
    phone VARCHAR(32) UNIQUE NOT NULL,
    password_hash VARCHAR(100) NOT NULL,
    first_name VARCHAR(100) NOT NULL,
    last_name VARCHAR(100) NOT NULL,
    display_name VARCHAR(100) NOT NULL DEFAULT '',
    street_address1 VARCHAR(200) NOT NULL DEFAULT '',
    street_address2 VARCHAR(200) NOT NULL DEFAULT '',
    city VARCHAR(100) NOT NULL DEFAULT '',
    region VARCHAR(100) NOT NULL DEFAULT '',
    postal_code VARCHAR(20) NOT NULL DEFAULT '',
    country VARCHAR(2) NOT NULL DEFAULT 'CA',
    role VARCHAR(10) NOT NULL DEFAULT 'USER',
    can_buy BOOLEAN NOT NULL DEFAULT TRUE,
    can_sell BOOLEAN NOT NULL DEFAULT FALSE,
    is_banned BOOLEAN NOT NULL DEFAULT FALSE,
    email_verified_at TIMESTAMPTZ,
    phone_verified_at TIMESTAMPTZ,
    seller_id UUID REFERENCES sellers(id),
    last_login_at TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

const createSessionsTable = `
CREATE TABLE IF NOT EXISTS sessions (
    id UUID PRIMARY KEY,
    user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    token_hash VARCHAR(64) UNIQUE NOT NULL,
    expires_at TIMESTAMPTZ NOT NULL,
    ip VARCHAR(64) NOT NULL DEFAULT '',
    user_agent VARCHAR(512) NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

const createVerificationCodesTable = `
CREATE TABLE IF NOT EXISTS verification_codes (
    id UUID PRIMARY KEY,
    user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    channel VARCHAR(10) NOT NULL,
    code_hash VARCHAR(64) NOT NULL,
    expires_at TIMESTAMPTZ NOT NULL,
    consumed_at TIMESTAMPTZ,
    attempts INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

const createSellerMetricsTable = `
CREATE TABLE IF NOT EXISTS seller_metrics (
    seller_id UUID PRIMARY KEY REFERENCES sellers(id) ON DELETE CASCADE,
    lifetime_sales_cents BIGINT NOT NULL DEFAULT 0,
    lifetime_orders BIGINT NOT NULL DEFAULT 0,
    lifetime_tickets_sold BIGINT NOT NULL DEFAULT 0,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

const createEventsTable = `
CREATE TABLE IF NOT EXISTS events (
    id UUID PRIMARY KEY,
    title VARCHAR(200) NOT NULL,
    venue VARCHAR(200) NOT NULL,
    date VARCHAR(100) NOT NULL,
    sellout_status VARCHAR(20) NOT NULL DEFAULT 'AVAILABLE',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

const createTicketsTable = `
CREATE TABLE IF NOT EXISTS tickets (
    id UUID PRIMARY KEY,
    seller_id UUID NOT NULL REFERENCES sellers(id),
    event_id UUID REFERENCES events(id),
    title VARCHAR(120) NOT NULL,
    venue VARCHAR(200) NOT NULL,
    date VARCHAR(100) NOT NULL,
    image VARCHAR(2048) NOT NULL,
    price_cents BIGINT NOT NULL CHECK (price_cents > 0),
    face_value_cents BIGINT,
    status VARCHAR(20) NOT NULL DEFAULT 'AVAILABLE',
    verification_status VARCHAR(20) NOT NULL DEFAULT 'PENDING',
    verification_score INTEGER,
    verification_reason TEXT,
    verification_provider VARCHAR(50),
    verified_at TIMESTAMPTZ,
    barcode_hash VARCHAR(64),
    barcode_last4 VARCHAR(4),
    barcode_type VARCHAR(30),
    reserved_by_order_id UUID,
    reserved_until TIMESTAMPTZ,
    sold_at TIMESTAMPTZ,
    withdrawn_at TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    CONSTRAINT tickets_reserved_has_owner CHECK (
        status <> 'RESERVED' OR (reserved_by_order_id IS NOT NULL AND reserved_until IS NOT NULL)
    )
);`

const createOrdersTable = `
CREATE TABLE IF NOT EXISTS orders (
    id UUID PRIMARY KEY,
    buyer_seller_id UUID NOT NULL REFERENCES sellers(id),
    seller_id UUID NOT NULL REFERENCES sellers(id),
    status VARCHAR(20) NOT NULL DEFAULT 'PENDING',
    idempotency_key VARCHAR(200) NOT NULL,
    amount_cents BIGINT NOT NULL,
    admin_fee_cents BIGINT NOT NULL,
    total_cents BIGINT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (buyer_seller_id, idempotency_key)
);`

const createOrderItemsTable = `
CREATE TABLE IF NOT EXISTS order_items (
    id UUID PRIMARY KEY,
    order_id UUID NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
    ticket_id UUID NOT NULL REFERENCES tickets(id),
    price_cents BIGINT NOT NULL,
    face_value_cents BIGINT
);`

const createPaymentsTable = `
CREATE TABLE IF NOT EXISTS payments (
    id UUID PRIMARY KEY,
    order_id UUID UNIQUE NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
    status VARCHAR(20) NOT NULL,
    amount_cents BIGINT NOT NULL,
    currency VARCHAR(3) NOT NULL DEFAULT 'CAD',
    provider VARCHAR(20) NOT NULL,
    provider_ref VARCHAR(255) NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

const createTicketEscrowsTable = `
CREATE TABLE IF NOT EXISTS ticket_escrows (
    id UUID PRIMARY KEY,
    ticket_id UUID UNIQUE NOT NULL REFERENCES tickets(id) ON DELETE CASCADE,
    order_id UUID REFERENCES orders(id),
    state VARCHAR(30) NOT NULL,
    provider VARCHAR(50),
    provider_ref VARCHAR(255),
    deposited_at TIMESTAMPTZ,
    released_at TIMESTAMPTZ,
    reason TEXT,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

const createCreditTransactionsTable = `
CREATE TABLE IF NOT EXISTS credit_transactions (
    id UUID PRIMARY KEY,
    seller_id UUID NOT NULL REFERENCES sellers(id),
    order_id UUID REFERENCES orders(id),
    ticket_id UUID REFERENCES tickets(id),
    type VARCHAR(20) NOT NULL,
    source VARCHAR(30) NOT NULL,
    amount_credits BIGINT NOT NULL CHECK (amount_credits <> 0),
    balance_after_credits BIGINT NOT NULL,
    note TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE UNIQUE INDEX IF NOT EXISTS credit_transactions_order_ticket_type_uniq
    ON credit_transactions (seller_id, order_id, ticket_id, type)
    WHERE order_id IS NOT NULL AND ticket_id IS NOT NULL;`

const createNotificationsTable = `
CREATE TABLE IF NOT EXISTS notifications (
    id UUID PRIMARY KEY,
    user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    type VARCHAR(40) NOT NULL,
    message TEXT NOT NULL,
    link VARCHAR(500),
    is_read BOOLEAN NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

const createForumTables = `
CREATE TABLE IF NOT EXISTS forum_threads (
    id UUID PRIMARY KEY,
    author_user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    title VARCHAR(140) NOT NULL,
    topic_type VARCHAR(10) NOT NULL,
    topic VARCHAR(120) NOT NULL DEFAULT '',
    is_locked BOOLEAN NOT NULL DEFAULT FALSE,
    is_visible BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS forum_posts (
    id UUID PRIMARY KEY,
    thread_id UUID NOT NULL REFERENCES forum_threads(id) ON DELETE CASCADE,
    author_user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    body TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

const createWaitlistTable = `
CREATE TABLE IF NOT EXISTS waitlist_entries (
    id UUID PRIMARY KEY,
    user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    event_id UUID NOT NULL REFERENCES events(id),
    status VARCHAR(20) NOT NULL DEFAULT 'ACTIVE',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (user_id, event_id)
);`

const createIndexes = `
CREATE INDEX IF NOT EXISTS idx_tickets_status_reserved_until ON tickets(status, reserved_until);
CREATE INDEX IF NOT EXISTS idx_tickets_seller ON tickets(seller_id);
CREATE INDEX IF NOT EXISTS idx_tickets_listing ON tickets(verification_status, status, created_at DESC, id DESC);
CREATE INDEX IF NOT EXISTS idx_tickets_barcode ON tickets(barcode_hash) WHERE barcode_hash IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_orders_status_created ON orders(status, created_at);
CREATE INDEX IF NOT EXISTS idx_order_items_order ON order_items(order_id);
CREATE INDEX IF NOT EXISTS idx_order_items_ticket ON order_items(ticket_id);
CREATE INDEX IF NOT EXISTS idx_credit_transactions_seller ON credit_transactions(seller_id, created_at DESC, id DESC);
CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_forum_threads_created ON forum_threads(created_at DESC, id DESC);
CREATE INDEX IF NOT EXISTS idx_sessions_expires ON sessions(expires_at);`
