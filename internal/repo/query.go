package repo

import (
	"context"
	stdsql "database/sql"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
)

func selectIDs(ctx context.Context, eq dialect.ExecQuerier, s *entsql.Selector) ([]int64, error) {
	q, args := s.Query()
	var rows entsql.Rows
	if err := eq.Query(ctx, q, args, &rows); err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func count(ctx context.Context, eq dialect.ExecQuerier, s *entsql.Selector) (int, error) {
	q, args := s.Query()
	var rows entsql.Rows
	if err := eq.Query(ctx, q, args, &rows); err != nil {
		return 0, err
	}
	defer rows.Close()

	n := 0
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			return 0, err
		}
	}
	return n, rows.Err()
}

func expectAffected(res stdsql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func toAny(ids []int64) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}

// subtract returns the ids of a not present in b, preserving order.
func subtract(a, b []int64) []int64 {
	drop := make(map[int64]struct{}, len(b))
	for _, id := range b {
		drop[id] = struct{}{}
	}
	var out []int64
	for _, id := range a {
		if _, ok := drop[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}
