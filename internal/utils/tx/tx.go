package tx

import (
	"context"
	"fmt"

	"entgo.io/ent/dialect"
)

// Tx is the subset of a dialect transaction repositories write through.
type Tx interface {
	dialect.ExecQuerier
}

// WithTransaction runs fn inside a transaction on drv, committing on success
// and rolling back on error or panic.
func WithTransaction(ctx context.Context, drv dialect.Driver, fn func(ctx context.Context, tx Tx) error) error {
	t, err := drv.Tx(ctx)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer func() {
		if v := recover(); v != nil {
			_ = t.Rollback()
			panic(v)
		}
	}()
	if err := fn(ctx, t); err != nil {
		if rerr := t.Rollback(); rerr != nil {
			err = fmt.Errorf("%w: rolling back transaction: %v", err, rerr)
		}
		return err
	}
	if err := t.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}
