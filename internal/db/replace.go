package db

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
)

// ReplaceConfig describes a keyed replacement of derived rows.
type ReplaceConfig struct {
	Table     string   // target table, optionally schema-qualified
	Columns   []string // columns being copied
	KeyColumn string   // rows whose key is in Keys are deleted first
	Keys      []string
}

// Replace deletes every row matching cfg.Keys and copies rows in their place,
// inside one transaction. Readers never observe a partially replaced key.
func Replace(ctx context.Context, pool Pool, cfg ReplaceConfig, rows [][]any) (int64, error) {
	if len(cfg.Columns) == 0 {
		return 0, eris.New("db: replace: no columns specified")
	}
	if cfg.KeyColumn == "" {
		return 0, eris.New("db: replace: no key column specified")
	}
	if len(cfg.Keys) == 0 && len(rows) == 0 {
		return 0, nil
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "db: replace: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if len(cfg.Keys) > 0 {
		deleteSQL := fmt.Sprintf("DELETE FROM %s WHERE %s = ANY($1)",
			Identifier(cfg.Table).Sanitize(),
			Identifier(cfg.KeyColumn).Sanitize(),
		)
		if _, err := tx.Exec(ctx, deleteSQL, cfg.Keys); err != nil {
			return 0, eris.Wrapf(err, "db: replace: delete from %s", cfg.Table)
		}
	}

	n, err := CopyFrom(ctx, tx, cfg.Table, cfg.Columns, rows)
	if err != nil {
		return 0, eris.Wrap(err, "db: replace")
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "db: replace: commit tx")
	}
	return n, nil
}
