package store

import (
	"database/sql"
	"errors"

	"github.com/sirupsen/logrus"
)

var (
	ErrOrderNotFound        = errors.New("order not found")
	ErrProductNotFound      = errors.New("product not found")
	ErrDuplicateOrderNumber = errors.New("duplicate order number")
)

// Store wraps the relational backing for orders, catalog reads, webhook
// dedup and the activity log.
type Store struct {
	db     *sql.DB
	logger *logrus.Logger
}

func New(db *sql.DB, logger *logrus.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// EnsureSchema creates the tables the worker needs. The unique index on
// order_number is what makes order-number minting safe under concurrent
// creation; webhook_events is the dedup ledger for at-least-once webhook
// delivery.
func (s *Store) EnsureSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS products (
			id SERIAL PRIMARY KEY,
			sku VARCHAR(100) NOT NULL,
			name VARCHAR(255) NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			category VARCHAR(100) NOT NULL DEFAULT '',
			price NUMERIC(10,2) NOT NULL CHECK (price >= 0),
			cost_price NUMERIC(10,2) NOT NULL CHECK (cost_price >= 0),
			supplier VARCHAR(100) NOT NULL,
			supplier_product_id VARCHAR(255) NOT NULL DEFAULT '',
			images JSONB NOT NULL DEFAULT '[]',
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS categories (
			id SERIAL PRIMARY KEY,
			name VARCHAR(100) NOT NULL UNIQUE
		)`,
		`CREATE TABLE IF NOT EXISTS orders (
			id SERIAL PRIMARY KEY,
			order_number VARCHAR(64) NOT NULL,
			customer_name VARCHAR(255) NOT NULL DEFAULT '',
			customer_email VARCHAR(255) NOT NULL,
			customer_phone VARCHAR(64) NOT NULL DEFAULT '',
			shipping_address JSONB NOT NULL,
			order_data JSONB NOT NULL,
			subtotal NUMERIC(10,2) NOT NULL,
			tax NUMERIC(10,2) NOT NULL,
			shipping NUMERIC(10,2) NOT NULL,
			total_amount NUMERIC(10,2) NOT NULL,
			profit_amount NUMERIC(10,2) NOT NULL,
			status VARCHAR(50) NOT NULL,
			payment_status VARCHAR(50) NOT NULL,
			fulfillment_status VARCHAR(50) NOT NULL,
			payment_intent_id VARCHAR(255),
			dispatch_results JSONB,
			dispatch_state VARCHAR(50),
			tracking_number VARCHAR(255),
			tracking_url TEXT,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_orders_order_number ON orders(order_number)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_payment_status ON orders(payment_status)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_created_at ON orders(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_products_category ON products(category)`,
		`CREATE TABLE IF NOT EXISTS webhook_events (
			id SERIAL PRIMARY KEY,
			provider VARCHAR(50) NOT NULL,
			event_id VARCHAR(255) NOT NULL,
			processed_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (provider, event_id)
		)`,
		`CREATE TABLE IF NOT EXISTS activity_logs (
			id SERIAL PRIMARY KEY,
			action VARCHAR(100) NOT NULL,
			description TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return err
		}
	}

	return nil
}

// Ping reports database connectivity for health checks.
func (s *Store) Ping() error {
	return s.db.Ping()
}
