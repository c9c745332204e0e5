package repositories

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

// Initialize the Postgres schema for the marketplace ledger.
func InitSchema(db *sql.DB) error {
	if db == nil {
		return errors.New("init schema: DB is nil")
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("init schema: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	createShipmentsQuery := `
	CREATE TABLE IF NOT EXISTS shipments (
		id TEXT PRIMARY KEY,
		sender_id TEXT NOT NULL,
		courier_id TEXT NOT NULL DEFAULT '',
		origin TEXT NOT NULL,
		destination TEXT NOT NULL,
		price_amount BIGINT NOT NULL,
		currency TEXT NOT NULL,
		package_descriptor TEXT NOT NULL DEFAULT '',
		window_start TIMESTAMPTZ NOT NULL,
		window_end TIMESTAMPTZ NOT NULL,
		status TEXT NOT NULL,
		version BIGINT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	);
	`

	createOffersQuery := `
	CREATE TABLE IF NOT EXISTS offers (
		id TEXT PRIMARY KEY,
		shipment_id TEXT NOT NULL REFERENCES shipments(id),
		courier_id TEXT NOT NULL,
		price_amount BIGINT NOT NULL,
		currency TEXT NOT NULL,
		status TEXT NOT NULL,
		version BIGINT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	);
	`

	createConversationsQuery := `
	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		shipment_id TEXT NOT NULL REFERENCES shipments(id),
		user1_id TEXT NOT NULL,
		user2_id TEXT NOT NULL,
		status TEXT NOT NULL,
		unread1 INTEGER NOT NULL DEFAULT 0,
		unread2 INTEGER NOT NULL DEFAULT 0,
		version BIGINT NOT NULL,
		UNIQUE (shipment_id, user2_id)
	);
	`

	createMessagesQuery := `
	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL REFERENCES conversations(id),
		sender_id TEXT NOT NULL,
		content TEXT NOT NULL,
		type TEXT NOT NULL,
		status TEXT NOT NULL,
		version BIGINT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	);
	`

	createTransactionsQuery := `
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		shipment_id TEXT NOT NULL UNIQUE REFERENCES shipments(id),
		payer_id TEXT NOT NULL,
		payee_id TEXT NOT NULL,
		amount BIGINT NOT NULL,
		fee_amount BIGINT NOT NULL,
		payout_amount BIGINT NOT NULL,
		currency TEXT NOT NULL,
		status TEXT NOT NULL,
		hold_ref TEXT NOT NULL DEFAULT '',
		receipt TEXT NOT NULL DEFAULT '',
		pending_key TEXT NOT NULL DEFAULT '',
		version BIGINT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);
	`

	createOfferIndexQuery := `
	CREATE INDEX IF NOT EXISTS idx_offers_shipment_courier
	ON offers(shipment_id, courier_id);
	`

	createMessageIndexQuery := `
	CREATE INDEX IF NOT EXISTS idx_messages_conversation
	ON messages(conversation_id, created_at);
	`

	createSettlingIndexQuery := `
	CREATE INDEX IF NOT EXISTS idx_transactions_settling
	ON transactions(status, updated_at)
	WHERE status IN ('RELEASING', 'REFUNDING');
	`

	statements := []string{
		createShipmentsQuery,
		createOffersQuery,
		createConversationsQuery,
		createMessagesQuery,
		createTransactionsQuery,
		createOfferIndexQuery,
		createMessageIndexQuery,
		createSettlingIndexQuery,
	}

	for i, stmt := range statements {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: exec statement #%d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("init schema: commit tx: %w", err)
	}

	return nil
}

type ShipmentSeed struct {
	ID                string    `json:"id"`
	SenderID          string    `json:"sender_id"`
	Origin            string    `json:"origin"`
	Destination       string    `json:"destination"`
	PriceAmount       int64     `json:"price_amount"`
	Currency          string    `json:"currency"`
	PackageDescriptor string    `json:"package_descriptor"`
	WindowStart       time.Time `json:"window_start"`
	WindowEnd         time.Time `json:"window_end"`
}

// Populate the database with OPEN demo shipments from a JSON file.
func SeedFromJSON(db *sql.DB, jsonPath string) error {
	bytes, err := os.ReadFile(jsonPath)
	if err != nil {
		return fmt.Errorf("seed shipments: read %q: %w", jsonPath, err)
	}

	var data []ShipmentSeed
	if err := json.Unmarshal(bytes, &data); err != nil {
		return fmt.Errorf("seed shipments: parse json: %w", err)
	}

	for i, item := range data {
		if strings.TrimSpace(item.ID) == "" || strings.TrimSpace(item.SenderID) == "" {
			return fmt.Errorf("seed shipments: item at index %d: id and sender_id are required", i+1)
		}
		if item.PriceAmount <= 0 {
			return fmt.Errorf("seed shipments: item at index %d: price_amount must be positive", i+1)
		}
		if strings.TrimSpace(item.Currency) == "" {
			return fmt.Errorf("seed shipments: item at index %d: currency is required", i+1)
		}
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("seed shipments: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `
	INSERT INTO shipments (
		id, sender_id, courier_id, origin, destination, price_amount, currency,
		package_descriptor, window_start, window_end, status, version, created_at
	)
	VALUES ($1, $2, '', $3, $4, $5, $6, $7, $8, $9, 'OPEN', 1, NOW())
	ON CONFLICT (id) DO NOTHING;
	`
	stmt, err := tx.Prepare(query)
	if err != nil {
		return fmt.Errorf("seed shipments: prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, s := range data {
		if _, err := stmt.Exec(
			s.ID, s.SenderID, s.Origin, s.Destination, s.PriceAmount,
			strings.ToUpper(strings.TrimSpace(s.Currency)), s.PackageDescriptor,
			s.WindowStart, s.WindowEnd,
		); err != nil {
			return fmt.Errorf("seed shipments: insert id=%q: %w", s.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("seed shipments: commit tx: %w", err)
	}

	return nil
}
