package postgres

import (
	"context"
	"fmt"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Cleaner removes all records of a song
type Cleaner struct {
	pool   *pgxpool.Pool
	tables []tableKey
}

type tableKey struct {
	table, column string
}

// NewCleaner creates cleaner instance
func NewCleaner(pool *pgxpool.Pool) (*Cleaner, error) {
	if pool == nil {
		return nil, fmt.Errorf("no pool")
	}
	res := &Cleaner{pool: pool, tables: []tableKey{{"transactions", "song_id"}, {"email_lock", "id"}, {"songs", "id"}}}
	return res, nil
}

// Clean deletes song rows in one transaction
func (db *Cleaner) Clean(ctx context.Context, id string) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("can't start tx: %w", err)
	}
	defer tx.Rollback(ctx)
	for _, t := range db.tables {
		cmd, err := tx.Exec(ctx, `DELETE FROM `+t.table+` WHERE `+t.column+` = $1`, id)
		if err != nil {
			return fmt.Errorf("can't delete %s(%s): %w", id, t.table, err)
		}
		goapp.Log.Info().Str("ID", id).Str("table", t.table).Int64("rows", cmd.RowsAffected()).Msg("deleted")
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("can't commit: %w", err)
	}
	return nil
}
