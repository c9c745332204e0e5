package repositories

import (
	"context"
	"database/sql"
	"delivery-match-service/internal/domain"
	"delivery-match-service/internal/platform/obs"
	"delivery-match-service/internal/ports"
	"errors"
	"fmt"
	"time"
)

// Postgres-backed implementation of the Ledger port. Every aggregate row
// carries a version column; Commit performs all writes in one transaction
// with conditional updates (`WHERE id = $1 AND version = $2`), so any
// stale read rolls the whole command back with ErrVersionConflict.
type PostgresLedger struct {
	DB *sql.DB
}

func NewPostgresLedger(db *sql.DB) *PostgresLedger {
	return &PostgresLedger{DB: db}
}

const shipmentColumns = `
	id, sender_id, courier_id, origin, destination, price_amount, currency,
	package_descriptor, window_start, window_end, status, version, created_at
`

func scanShipment(row interface{ Scan(...any) error }) (*domain.Shipment, error) {
	var s domain.Shipment
	var status string
	err := row.Scan(
		&s.ID, &s.SenderID, &s.CourierID, &s.Route.Origin, &s.Route.Destination,
		&s.PriceAmount, &s.Currency, &s.PackageDescriptor,
		&s.Window.Start, &s.Window.End, &status, &s.Version, &s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.Status = domain.ShipmentStatus(status)
	return &s, nil
}

func (p *PostgresLedger) GetShipment(ctx context.Context, id string) (_ *domain.Shipment, err error) {
	defer obs.Time(ctx, "ledger.GetShipment")(&err)

	if p.DB == nil {
		return nil, errors.New("postgres ledger: DB is nil")
	}

	q := `SELECT ` + shipmentColumns + ` FROM shipments WHERE id = $1;`
	s, err := scanShipment(p.DB.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get shipment %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get shipment %s: scan row: %w", id, err)
	}
	return s, nil
}

const offerColumns = `
	id, shipment_id, courier_id, price_amount, currency, status, version, created_at
`

func scanOffer(row interface{ Scan(...any) error }) (*domain.Offer, error) {
	var o domain.Offer
	var status string
	err := row.Scan(
		&o.ID, &o.ShipmentID, &o.CourierID, &o.PriceAmount, &o.Currency,
		&status, &o.Version, &o.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.Status = domain.OfferStatus(status)
	return &o, nil
}

func (p *PostgresLedger) GetOffer(ctx context.Context, id string) (_ *domain.Offer, err error) {
	defer obs.Time(ctx, "ledger.GetOffer")(&err)

	if p.DB == nil {
		return nil, errors.New("postgres ledger: DB is nil")
	}

	q := `SELECT ` + offerColumns + ` FROM offers WHERE id = $1;`
	o, err := scanOffer(p.DB.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get offer %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get offer %s: scan row: %w", id, err)
	}
	return o, nil
}

func (p *PostgresLedger) ListOffersByShipment(ctx context.Context, shipmentID string) (_ []*domain.Offer, err error) {
	defer obs.Time(ctx, "ledger.ListOffersByShipment")(&err)

	if p.DB == nil {
		return nil, errors.New("postgres ledger: DB is nil")
	}

	q := `SELECT ` + offerColumns + ` FROM offers WHERE shipment_id = $1 ORDER BY created_at, id;`
	rows, err := p.DB.QueryContext(ctx, q, shipmentID)
	if err != nil {
		return nil, fmt.Errorf("list offers shipment=%s: query offers table: %w", shipmentID, err)
	}
	defer rows.Close()

	offers := make([]*domain.Offer, 0, 8)
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, fmt.Errorf("list offers shipment=%s: scan row: %w", shipmentID, err)
		}
		offers = append(offers, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list offers shipment=%s: row iteration: %w", shipmentID, err)
	}

	return offers, nil
}

func (p *PostgresLedger) FindOpenOffer(ctx context.Context, shipmentID, courierID string) (_ *domain.Offer, err error) {
	defer obs.Time(ctx, "ledger.FindOpenOffer")(&err)

	if p.DB == nil {
		return nil, errors.New("postgres ledger: DB is nil")
	}

	q := `
	SELECT ` + offerColumns + `
	FROM offers
	WHERE shipment_id = $1
		AND courier_id = $2
		AND status IN ('PENDING', 'ACCEPTED')
	LIMIT 1;
	`
	o, err := scanOffer(p.DB.QueryRowContext(ctx, q, shipmentID, courierID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("find open offer shipment=%s courier=%s: %w", shipmentID, courierID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find open offer shipment=%s courier=%s: scan row: %w", shipmentID, courierID, err)
	}
	return o, nil
}

const conversationColumns = `
	id, shipment_id, user1_id, user2_id, status, unread1, unread2, version
`

func scanConversation(row interface{ Scan(...any) error }) (*domain.Conversation, error) {
	var c domain.Conversation
	var status string
	err := row.Scan(
		&c.ID, &c.ShipmentID, &c.User1ID, &c.User2ID, &status,
		&c.Unread1, &c.Unread2, &c.Version,
	)
	if err != nil {
		return nil, err
	}
	c.Status = domain.ConversationStatus(status)
	return &c, nil
}

func (p *PostgresLedger) GetConversation(ctx context.Context, id string) (_ *domain.Conversation, err error) {
	defer obs.Time(ctx, "ledger.GetConversation")(&err)

	if p.DB == nil {
		return nil, errors.New("postgres ledger: DB is nil")
	}

	q := `SELECT ` + conversationColumns + ` FROM conversations WHERE id = $1;`
	c, err := scanConversation(p.DB.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get conversation %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation %s: scan row: %w", id, err)
	}
	return c, nil
}

func (p *PostgresLedger) FindConversationByShipment(ctx context.Context, shipmentID, counterpartID string) (_ *domain.Conversation, err error) {
	defer obs.Time(ctx, "ledger.FindConversationByShipment")(&err)

	if p.DB == nil {
		return nil, errors.New("postgres ledger: DB is nil")
	}

	q := `SELECT ` + conversationColumns + ` FROM conversations WHERE shipment_id = $1 AND user2_id = $2;`
	c, err := scanConversation(p.DB.QueryRowContext(ctx, q, shipmentID, counterpartID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("find conversation shipment=%s counterpart=%s: %w", shipmentID, counterpartID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find conversation shipment=%s counterpart=%s: scan row: %w", shipmentID, counterpartID, err)
	}
	return c, nil
}

const messageColumns = `
	id, conversation_id, sender_id, content, type, status, version, created_at
`

func scanMessage(row interface{ Scan(...any) error }) (*domain.Message, error) {
	var m domain.Message
	var typ, status string
	err := row.Scan(
		&m.ID, &m.ConversationID, &m.SenderID, &m.Content, &typ,
		&status, &m.Version, &m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	m.Type = domain.MessageType(typ)
	m.Status = domain.MessageStatus(status)
	return &m, nil
}

func (p *PostgresLedger) ListMessages(ctx context.Context, conversationID string) (_ []*domain.Message, err error) {
	defer obs.Time(ctx, "ledger.ListMessages")(&err)

	if p.DB == nil {
		return nil, errors.New("postgres ledger: DB is nil")
	}

	q := `SELECT ` + messageColumns + ` FROM messages WHERE conversation_id = $1 ORDER BY created_at, id;`
	rows, err := p.DB.QueryContext(ctx, q, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list messages conversation=%s: query messages table: %w", conversationID, err)
	}
	defer rows.Close()

	msgs := make([]*domain.Message, 0, 32)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("list messages conversation=%s: scan row: %w", conversationID, err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list messages conversation=%s: row iteration: %w", conversationID, err)
	}

	return msgs, nil
}

const transactionColumns = `
	id, shipment_id, payer_id, payee_id, amount, fee_amount, payout_amount,
	currency, status, hold_ref, receipt, pending_key, version, created_at, updated_at
`

func scanTransaction(row interface{ Scan(...any) error }) (*domain.Transaction, error) {
	var t domain.Transaction
	var status string
	err := row.Scan(
		&t.ID, &t.ShipmentID, &t.PayerID, &t.PayeeID, &t.Amount, &t.FeeAmount,
		&t.PayoutAmount, &t.Currency, &status, &t.HoldRef, &t.Receipt,
		&t.PendingKey, &t.Version, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.Status = domain.TransactionStatus(status)
	return &t, nil
}

func (p *PostgresLedger) FindTransactionByShipment(ctx context.Context, shipmentID string) (_ *domain.Transaction, err error) {
	defer obs.Time(ctx, "ledger.FindTransactionByShipment")(&err)

	if p.DB == nil {
		return nil, errors.New("postgres ledger: DB is nil")
	}

	q := `SELECT ` + transactionColumns + ` FROM transactions WHERE shipment_id = $1;`
	t, err := scanTransaction(p.DB.QueryRowContext(ctx, q, shipmentID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("find transaction shipment=%s: %w", shipmentID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find transaction shipment=%s: scan row: %w", shipmentID, err)
	}
	return t, nil
}

func (p *PostgresLedger) ListSettlingTransactions(ctx context.Context, updatedBefore time.Time) (_ []*domain.Transaction, err error) {
	defer obs.Time(ctx, "ledger.ListSettlingTransactions")(&err)

	if p.DB == nil {
		return nil, errors.New("postgres ledger: DB is nil")
	}

	q := `
	SELECT ` + transactionColumns + `
	FROM transactions
	WHERE status IN ('RELEASING', 'REFUNDING')
		AND updated_at < $1
	ORDER BY updated_at, id;
	`
	rows, err := p.DB.QueryContext(ctx, q, updatedBefore)
	if err != nil {
		return nil, fmt.Errorf("list settling transactions: query transactions table: %w", err)
	}
	defer rows.Close()

	out := make([]*domain.Transaction, 0, 8)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("list settling transactions: scan row: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list settling transactions: row iteration: %w", err)
	}

	return out, nil
}

// Commit applies the whole changeset in one SQL transaction. Conditional
// updates check RowsAffected; a zero count means the version moved (or the
// row vanished) and the commit fails with ErrVersionConflict.
func (p *PostgresLedger) Commit(ctx context.Context, cs *ports.ChangeSet) (err error) {
	defer obs.Time(ctx, "ledger.Commit")(&err)

	if p.DB == nil {
		return errors.New("postgres ledger: DB is nil")
	}
	if cs.Empty() {
		return nil
	}

	tx, err := p.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("commit: db begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, s := range cs.NewShipments {
		q := `
		INSERT INTO shipments (` + shipmentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 1, $12);
		`
		if _, err := tx.ExecContext(ctx, q,
			s.ID, s.SenderID, s.CourierID, s.Route.Origin, s.Route.Destination,
			s.PriceAmount, s.Currency, s.PackageDescriptor,
			s.Window.Start, s.Window.End, string(s.Status), s.CreatedAt,
		); err != nil {
			return fmt.Errorf("commit: insert shipment %s: %w", s.ID, err)
		}
	}
	for _, o := range cs.NewOffers {
		q := `
		INSERT INTO offers (` + offerColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, 1, $7);
		`
		if _, err := tx.ExecContext(ctx, q,
			o.ID, o.ShipmentID, o.CourierID, o.PriceAmount, o.Currency,
			string(o.Status), o.CreatedAt,
		); err != nil {
			return fmt.Errorf("commit: insert offer %s: %w", o.ID, err)
		}
	}
	for _, c := range cs.NewConversations {
		q := `
		INSERT INTO conversations (` + conversationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 1);
		`
		if _, err := tx.ExecContext(ctx, q,
			c.ID, c.ShipmentID, c.User1ID, c.User2ID, string(c.Status),
			c.Unread1, c.Unread2,
		); err != nil {
			return fmt.Errorf("commit: insert conversation %s: %w", c.ID, err)
		}
	}
	for _, m := range cs.NewMessages {
		q := `
		INSERT INTO messages (` + messageColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, 1, $7);
		`
		if _, err := tx.ExecContext(ctx, q,
			m.ID, m.ConversationID, m.SenderID, m.Content, string(m.Type),
			string(m.Status), m.CreatedAt,
		); err != nil {
			return fmt.Errorf("commit: insert message %s: %w", m.ID, err)
		}
	}
	for _, t := range cs.NewTransactions {
		q := `
		INSERT INTO transactions (` + transactionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, 1, $13, $14);
		`
		if _, err := tx.ExecContext(ctx, q,
			t.ID, t.ShipmentID, t.PayerID, t.PayeeID, t.Amount, t.FeeAmount,
			t.PayoutAmount, t.Currency, string(t.Status), t.HoldRef, t.Receipt,
			t.PendingKey, t.CreatedAt, t.UpdatedAt,
		); err != nil {
			return fmt.Errorf("commit: insert transaction %s: %w", t.ID, err)
		}
	}

	for _, s := range cs.Shipments {
		q := `
		UPDATE shipments
		SET courier_id = $3, status = $4, version = version + 1
		WHERE id = $1 AND version = $2;
		`
		if err := execGuarded(ctx, tx, q, "shipment", s.ID, s.Version, s.CourierID, string(s.Status)); err != nil {
			return err
		}
	}
	for _, o := range cs.Offers {
		q := `
		UPDATE offers
		SET status = $3, version = version + 1
		WHERE id = $1 AND version = $2;
		`
		if err := execGuarded(ctx, tx, q, "offer", o.ID, o.Version, string(o.Status)); err != nil {
			return err
		}
	}
	for _, c := range cs.Conversations {
		q := `
		UPDATE conversations
		SET status = $3, unread1 = $4, unread2 = $5, version = version + 1
		WHERE id = $1 AND version = $2;
		`
		if err := execGuarded(ctx, tx, q, "conversation", c.ID, c.Version, string(c.Status), c.Unread1, c.Unread2); err != nil {
			return err
		}
	}
	for _, m := range cs.Messages {
		q := `
		UPDATE messages
		SET status = $3, version = version + 1
		WHERE id = $1 AND version = $2;
		`
		if err := execGuarded(ctx, tx, q, "message", m.ID, m.Version, string(m.Status)); err != nil {
			return err
		}
	}
	for _, t := range cs.Transactions {
		q := `
		UPDATE transactions
		SET status = $3, receipt = $4, pending_key = $5, updated_at = $6, version = version + 1
		WHERE id = $1 AND version = $2;
		`
		if err := execGuarded(ctx, tx, q, "transaction", t.ID, t.Version, string(t.Status), t.Receipt, t.PendingKey, t.UpdatedAt); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: tx commit: %w", err)
	}

	return nil
}

func execGuarded(ctx context.Context, tx *sql.Tx, query, kind, id string, version int64, args ...any) error {
	all := append([]any{id, version}, args...)
	res, err := tx.ExecContext(ctx, query, all...)
	if err != nil {
		return fmt.Errorf("commit: update %s %s: %w", kind, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("commit: update %s %s: rows affected: %w", kind, id, err)
	}
	if n == 0 {
		return fmt.Errorf("commit: %s %s at version %d: %w", kind, id, version, domain.ErrVersionConflict)
	}
	return nil
}
