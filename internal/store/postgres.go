package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/escrowhub/escrowhub/internal/domain"
)

// Postgres is the durable store. Records involved in a unit of work are read
// with row locks so concurrent commits against the same wallet or escrow
// serialize instead of losing updates.
type Postgres struct {
	db *pgxpool.Pool
}

// NewPostgres constructs a Postgres-backed store.
func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{db: db}
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *Postgres) GetWallet(ctx context.Context, userID string) (domain.Wallet, error) {
	return loadWallet(ctx, s.db, userID, false)
}

func (s *Postgres) GetEscrow(ctx context.Context, id string) (domain.Escrow, error) {
	return loadEscrow(ctx, s.db, id, false)
}

func (s *Postgres) ListTransactions(ctx context.Context, userID string, skip, limit int) ([]domain.Transaction, int, error) {
	var total int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM transactions WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, storeErr(err)
	}

	rows, err := s.db.Query(ctx, `
        SELECT id, user_id, amount, currency, type, status, escrow_id, gateway_ref, created_at
        FROM transactions WHERE user_id = $1
        ORDER BY created_at
        OFFSET $2 LIMIT NULLIF($3, 0)`, userID, maxInt(skip, 0), limit)
	if err != nil {
		return nil, 0, storeErr(err)
	}
	defer rows.Close()

	var out []domain.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, 0, storeErr(err)
		}
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, storeErr(err)
	}
	return out, total, nil
}

func (s *Postgres) ListEscrowsByUser(ctx context.Context, userID string, skip, limit int) ([]domain.Escrow, int, error) {
	var total int
	if err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM escrows WHERE client_id = $1 OR freelancer_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, storeErr(err)
	}

	rows, err := s.db.Query(ctx, escrowSelect+`
        WHERE client_id = $1 OR freelancer_id = $1
        ORDER BY created_at
        OFFSET $2 LIMIT NULLIF($3, 0)`, userID, maxInt(skip, 0), limit)
	if err != nil {
		return nil, 0, storeErr(err)
	}
	defer rows.Close()

	var out []domain.Escrow
	for rows.Next() {
		e, err := scanEscrow(rows)
		if err != nil {
			return nil, 0, storeErr(err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, storeErr(err)
	}
	return out, total, nil
}

// WithTransaction runs fn inside one database transaction. Serialization
// conflicts and timeouts surface as retryable StoreErrors; domain errors
// returned by fn pass through untouched after rollback.
func (s *Postgres) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return storeErr(err)
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if err := fn(ctx, &postgresTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return storeErr(err)
	}
	return nil
}

type postgresTx struct {
	tx pgx.Tx
}

func (t *postgresTx) GetWallet(ctx context.Context, userID string) (domain.Wallet, error) {
	return loadWallet(ctx, t.tx, userID, true)
}

func (t *postgresTx) GetEscrow(ctx context.Context, id string) (domain.Escrow, error) {
	return loadEscrow(ctx, t.tx, id, true)
}

func (t *postgresTx) PutWallet(ctx context.Context, w domain.Wallet) error {
	_, err := t.tx.Exec(ctx, `
        INSERT INTO wallets (user_id, balance, reserved_balance, currency, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (user_id) DO UPDATE SET
            balance = EXCLUDED.balance,
            reserved_balance = EXCLUDED.reserved_balance,
            currency = EXCLUDED.currency,
            updated_at = EXCLUDED.updated_at`,
		w.UserID, w.Balance, w.ReservedBalance, w.Currency, w.CreatedAt.UTC(), w.UpdatedAt.UTC())
	if err != nil {
		return storeErr(err)
	}

	// Child rows are state-synced wholesale; the sets are small per wallet.
	if _, err := t.tx.Exec(ctx, `DELETE FROM payment_methods WHERE user_id = $1`, w.UserID); err != nil {
		return storeErr(err)
	}
	for _, m := range w.PaymentMethods {
		if _, err := t.tx.Exec(ctx, `
            INSERT INTO payment_methods (id, user_id, type, label, card_token, last4, is_default, added_at)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			m.ID, w.UserID, m.Type, m.Label, m.CardToken, m.Last4, m.IsDefault, m.AddedAt.UTC()); err != nil {
			return storeErr(err)
		}
	}

	if _, err := t.tx.Exec(ctx, `DELETE FROM escrow_reserves WHERE user_id = $1`, w.UserID); err != nil {
		return storeErr(err)
	}
	for _, r := range w.EscrowReserves {
		if _, err := t.tx.Exec(ctx, `
            INSERT INTO escrow_reserves (user_id, escrow_id, amount)
            VALUES ($1, $2, $3)`, w.UserID, r.EscrowID, r.Amount); err != nil {
			return storeErr(err)
		}
	}
	return nil
}

func (t *postgresTx) PutEscrow(ctx context.Context, e domain.Escrow) error {
	_, err := t.tx.Exec(ctx, `
        INSERT INTO escrows (
            id, client_id, freelancer_id, service_name, description, amount, platform_fee,
            currency, status, terms, delivery_message, delivery_files, rating, feedback,
            dispute_reason, transaction_id, created_at, funded_at, started_at, delivered_at,
            approved_at, disputed_at, resolved_at, cancelled_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24)
        ON CONFLICT (id) DO UPDATE SET
            status = EXCLUDED.status,
            delivery_message = EXCLUDED.delivery_message,
            delivery_files = EXCLUDED.delivery_files,
            rating = EXCLUDED.rating,
            feedback = EXCLUDED.feedback,
            dispute_reason = EXCLUDED.dispute_reason,
            transaction_id = EXCLUDED.transaction_id,
            funded_at = EXCLUDED.funded_at,
            started_at = EXCLUDED.started_at,
            delivered_at = EXCLUDED.delivered_at,
            approved_at = EXCLUDED.approved_at,
            disputed_at = EXCLUDED.disputed_at,
            resolved_at = EXCLUDED.resolved_at,
            cancelled_at = EXCLUDED.cancelled_at`,
		e.ID, e.ClientID, e.FreelancerID, e.ServiceName, e.Description, e.Amount, e.PlatformFee,
		e.Currency, string(e.Status), e.Terms, e.Delivery.Message, e.Delivery.Files, e.Rating, e.Feedback,
		e.DisputeReason, e.TransactionID, e.CreatedAt.UTC(), nullTime(e.FundedAt), nullTime(e.StartedAt),
		nullTime(e.DeliveredAt), nullTime(e.ApprovedAt), nullTime(e.DisputedAt), nullTime(e.ResolvedAt),
		nullTime(e.CancelledAt))
	if err != nil {
		return storeErr(err)
	}
	return nil
}

func (t *postgresTx) PutTransaction(ctx context.Context, tx domain.Transaction) error {
	_, err := t.tx.Exec(ctx, `
        INSERT INTO transactions (id, user_id, amount, currency, type, status, escrow_id, gateway_ref, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		tx.ID, tx.UserID, tx.Amount, tx.Currency, string(tx.Type), tx.Status, tx.EscrowID, tx.GatewayRef, tx.CreatedAt.UTC())
	if err != nil {
		return storeErr(err)
	}
	return nil
}

func loadWallet(ctx context.Context, q querier, userID string, forUpdate bool) (domain.Wallet, error) {
	query := `SELECT user_id, balance, reserved_balance, currency, created_at, updated_at
        FROM wallets WHERE user_id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var w domain.Wallet
	if err := q.QueryRow(ctx, query, userID).Scan(
		&w.UserID, &w.Balance, &w.ReservedBalance, &w.Currency, &w.CreatedAt, &w.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Wallet{}, &domain.NotFoundError{Kind: "wallet", Key: userID}
		}
		return domain.Wallet{}, storeErr(err)
	}

	rows, err := q.Query(ctx, `
        SELECT id, type, label, card_token, last4, is_default, added_at
        FROM payment_methods WHERE user_id = $1 ORDER BY added_at`, userID)
	if err != nil {
		return domain.Wallet{}, storeErr(err)
	}
	defer rows.Close()
	for rows.Next() {
		var m domain.PaymentMethod
		if err := rows.Scan(&m.ID, &m.Type, &m.Label, &m.CardToken, &m.Last4, &m.IsDefault, &m.AddedAt); err != nil {
			return domain.Wallet{}, storeErr(err)
		}
		w.PaymentMethods = append(w.PaymentMethods, m)
	}
	if err := rows.Err(); err != nil {
		return domain.Wallet{}, storeErr(err)
	}

	reserveRows, err := q.Query(ctx, `
        SELECT escrow_id, amount FROM escrow_reserves WHERE user_id = $1 ORDER BY escrow_id`, userID)
	if err != nil {
		return domain.Wallet{}, storeErr(err)
	}
	defer reserveRows.Close()
	for reserveRows.Next() {
		var r domain.EscrowReserve
		if err := reserveRows.Scan(&r.EscrowID, &r.Amount); err != nil {
			return domain.Wallet{}, storeErr(err)
		}
		w.EscrowReserves = append(w.EscrowReserves, r)
	}
	if err := reserveRows.Err(); err != nil {
		return domain.Wallet{}, storeErr(err)
	}

	txRows, err := q.Query(ctx, `
        SELECT id FROM transactions WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return domain.Wallet{}, storeErr(err)
	}
	defer txRows.Close()
	for txRows.Next() {
		var id string
		if err := txRows.Scan(&id); err != nil {
			return domain.Wallet{}, storeErr(err)
		}
		w.TransactionIDs = append(w.TransactionIDs, id)
	}
	if err := txRows.Err(); err != nil {
		return domain.Wallet{}, storeErr(err)
	}

	return w, nil
}

const escrowSelect = `
    SELECT id, client_id, freelancer_id, service_name, description, amount, platform_fee,
        currency, status, terms, delivery_message, delivery_files, rating, feedback,
        dispute_reason, transaction_id, created_at, funded_at, started_at, delivered_at,
        approved_at, disputed_at, resolved_at, cancelled_at
    FROM escrows`

func loadEscrow(ctx context.Context, q querier, id string, forUpdate bool) (domain.Escrow, error) {
	query := escrowSelect + ` WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	e, err := scanEscrow(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Escrow{}, &domain.NotFoundError{Kind: "escrow", Key: id}
		}
		return domain.Escrow{}, storeErr(err)
	}
	return e, nil
}

func scanEscrow(row pgx.Row) (domain.Escrow, error) {
	var e domain.Escrow
	var status string
	var fundedAt, startedAt, deliveredAt, approvedAt, disputedAt, resolvedAt, cancelledAt *time.Time
	if err := row.Scan(
		&e.ID, &e.ClientID, &e.FreelancerID, &e.ServiceName, &e.Description, &e.Amount, &e.PlatformFee,
		&e.Currency, &status, &e.Terms, &e.Delivery.Message, &e.Delivery.Files, &e.Rating, &e.Feedback,
		&e.DisputeReason, &e.TransactionID, &e.CreatedAt, &fundedAt, &startedAt, &deliveredAt,
		&approvedAt, &disputedAt, &resolvedAt, &cancelledAt); err != nil {
		return domain.Escrow{}, err
	}
	e.Status = domain.EscrowStatus(status)
	e.FundedAt = deref(fundedAt)
	e.StartedAt = deref(startedAt)
	e.DeliveredAt = deref(deliveredAt)
	e.ApprovedAt = deref(approvedAt)
	e.DisputedAt = deref(disputedAt)
	e.ResolvedAt = deref(resolvedAt)
	e.CancelledAt = deref(cancelledAt)
	return e, nil
}

func scanTransaction(row pgx.Row) (domain.Transaction, error) {
	var tx domain.Transaction
	var kind string
	if err := row.Scan(&tx.ID, &tx.UserID, &tx.Amount, &tx.Currency, &kind, &tx.Status,
		&tx.EscrowID, &tx.GatewayRef, &tx.CreatedAt); err != nil {
		return domain.Transaction{}, err
	}
	tx.Type = domain.TransactionType(kind)
	return tx, nil
}

func storeErr(err error) error {
	var storeError *domain.StoreError
	if errors.As(err, &storeError) {
		return err
	}

	retryable := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// serialization_failure and deadlock_detected resolve on retry
		switch pgErr.Code {
		case "40001", "40P01", "55P03":
			retryable = true
		}
	}
	return &domain.StoreError{Retryable: retryable, Err: err}
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

func deref(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return t.UTC()
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
