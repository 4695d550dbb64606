package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

type txKey struct{}

// PostgresDB wraps sqlx.DB and implements TxManager. Repositories pick the
// transaction out of the context when one is active.
type PostgresDB struct {
	*sqlx.DB
}

func NewPostgresDB(db *sqlx.DB) *PostgresDB {
	return &PostgresDB{DB: db}
}

// NewPostgresRepositories wires every postgres repository over one database.
// Allocations are not stored in postgres until booking; pass the working-set
// store explicitly.
func NewPostgresRepositories(db *sqlx.DB, allocations AllocationRepository) Repositories {
	pg := NewPostgresDB(db)
	return Repositories{
		Tx:           pg,
		Applications: NewApplicationRepository(pg),
		Tasks:        NewTaskRepository(pg),
		Approvals:    NewApprovalRepository(pg),
		Offers:       NewOfferRepository(pg),
		Audit:        NewAuditRepository(pg),
		Allocations:  allocations,
	}
}

func (db *PostgresDB) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return fn(ctx)
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// executor returns the active transaction or the pool
func (db *PostgresDB) executor(ctx context.Context) sqlx.ExtContext {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return db.DB
}

func affected(res interface{ RowsAffected() (int64, error) }) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
