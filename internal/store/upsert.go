package store

import (
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const upsertBatchSize = 500

func columns(names ...string) []clause.Column {
	cols := make([]clause.Column, len(names))
	for i, n := range names {
		cols[i] = clause.Column{Name: n}
	}
	return cols
}

// onConflictUpdateAll overwrites every non-key column on a key collision.
func onConflictUpdateAll(keys ...string) clause.OnConflict {
	return clause.OnConflict{Columns: columns(keys...), UpdateAll: true}
}

// onConflictNotOlder overwrites only when the incoming row comes from the
// same or a later height, so heights finishing out of order cannot roll a
// row back.
func onConflictNotOlder(table string, keys ...string) clause.OnConflict {
	c := onConflictUpdateAll(keys...)
	c.Where = clause.Where{Exprs: []clause.Expression{
		clause.Expr{SQL: table + ".height <= excluded.height"},
	}}
	return c
}

// upsert inserts rows, resolving key collisions per conflict. Callers must
// dedupe rows first: Postgres refuses to touch one row twice per statement.
func upsert[T any](tx *gorm.DB, rows []T, conflict clause.OnConflict) error {
	if len(rows) == 0 {
		return nil
	}
	return tx.Clauses(conflict).CreateInBatches(rows, upsertBatchSize).Error
}

// dedupe keeps the last row per key, preserving first-seen order.
func dedupe[T any](rows []T, keyOf func(T) string) []T {
	if len(rows) < 2 {
		return rows
	}
	pos := make(map[string]int, len(rows))
	out := make([]T, 0, len(rows))
	for _, r := range rows {
		k := keyOf(r)
		if i, ok := pos[k]; ok {
			out[i] = r
			continue
		}
		pos[k] = len(out)
		out = append(out, r)
	}
	return out
}

func key(parts ...string) string {
	return strings.Join(parts, "\x00")
}
