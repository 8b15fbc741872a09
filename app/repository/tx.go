package repository

import (
	"context"

	"gorm.io/gorm"
)

// Transactor runs fn inside a database transaction. Repositories called with
// the ctx passed to fn join that transaction.
type Transactor interface {
	Exec(ctx context.Context, fn func(ctx context.Context) error) error
}

type contextTxKey struct{}

type gormTransactor struct {
	db *gorm.DB
}

func NewTransactor(db *gorm.DB) Transactor {
	return &gormTransactor{db: db}
}

func (t *gormTransactor) Exec(ctx context.Context, fn func(ctx context.Context) error) error {
	// Nested calls join the outer transaction.
	if _, ok := ctx.Value(contextTxKey{}).(*gorm.DB); ok {
		return fn(ctx)
	}
	return t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, contextTxKey{}, tx))
	})
}

// conn returns the transaction bound to ctx, or db otherwise.
func conn(ctx context.Context, db *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(contextTxKey{}).(*gorm.DB); ok {
		return tx
	}
	return db.WithContext(ctx)
}
