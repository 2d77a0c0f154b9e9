// Package tx carries an open *sql.Tx through a context so reads and writes
// made by one store can join a transaction opened by another. Every postgres
// store consults From in its querier helper; any store call made under a
// context produced by WithTx lands in the caller's transaction.
package tx

import (
	"context"
	"database/sql"
)

type key struct{}

// WithTx returns a context whose store operations run inside tx. A nil tx
// leaves the context untouched.
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, key{}, tx)
}

// From reports the transaction the context carries, if any.
func From(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(key{}).(*sql.Tx)
	return tx, ok
}
