// Package db is the PostgreSQL ledger store.
package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/susu3304/warikan/internal/ledger"
)

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type DB struct {
	pool *pgxpool.Pool
	q    querier
	inTx bool
}

var _ ledger.Store = (*DB)(nil)

func New(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{pool: pool, q: pool}, nil
}

func (db *DB) Close() {
	db.pool.Close()
}

// RunMigrations creates the ledger tables if they are missing.
func (db *DB) RunMigrations(ctx context.Context) error {
	_, err := db.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS bills (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			payer_id TEXT NOT NULL,
			total_amount BIGINT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			is_settled BOOLEAN NOT NULL DEFAULT FALSE
		);
		CREATE INDEX IF NOT EXISTS idx_bills_payer ON bills(payer_id, created_at, id);

		CREATE TABLE IF NOT EXISTS bill_participants (
			bill_id TEXT NOT NULL REFERENCES bills(id) ON DELETE CASCADE,
			user_id TEXT NOT NULL,
			position INT NOT NULL,
			opted_out BOOLEAN NOT NULL DEFAULT FALSE,
			PRIMARY KEY (bill_id, user_id)
		);
		CREATE INDEX IF NOT EXISTS idx_bill_participants_user ON bill_participants(user_id);

		CREATE TABLE IF NOT EXISTS payment_status (
			bill_id TEXT NOT NULL REFERENCES bills(id) ON DELETE CASCADE,
			user_id TEXT NOT NULL,
			amount_owed BIGINT NOT NULL,
			amount_paid BIGINT NOT NULL DEFAULT 0,
			is_paid BOOLEAN NOT NULL DEFAULT FALSE,
			paid_date TIMESTAMPTZ,
			PRIMARY KEY (bill_id, user_id),
			CHECK (amount_paid >= 0 AND amount_paid <= amount_owed)
		);

		CREATE TABLE IF NOT EXISTS confirmations (
			token TEXT PRIMARY KEY,
			payment_id TEXT NOT NULL,
			recipient_id TEXT NOT NULL,
			payer_id TEXT NOT NULL,
			amount BIGINT NOT NULL,
			is_confirmed BOOLEAN NOT NULL,
			confirmed_at TIMESTAMPTZ NOT NULL,
			priority_bill_id TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_confirmations_payment ON confirmations(payment_id);

		CREATE TABLE IF NOT EXISTS allocation_journal (
			seq BIGSERIAL,
			payment_id TEXT NOT NULL,
			bill_id TEXT NOT NULL,
			bill_name TEXT NOT NULL,
			debtor_id TEXT NOT NULL,
			amount BIGINT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (payment_id, bill_id)
		);
	`)
	return err
}

// InTx runs fn inside one transaction. Nested calls join the outer one.
func (db *DB) InTx(ctx context.Context, fn func(ctx context.Context, tx ledger.Store) error) error {
	if db.inTx {
		return fn(ctx, db)
	}

	tx, err := db.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("tx begin failed: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, &DB{pool: db.pool, q: tx, inTx: true}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("tx commit failed: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isCheckViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23514"
}
