package migrations

import (
	"context"
	"fmt"

	"tradetrainer/internal/storage/postgres"
)

// RunPostgresMigrations applies the journal schema. Every file is idempotent and runs
// as one multi-statement Exec.
func RunPostgresMigrations(ctx context.Context, pool *postgres.Pool) error {
	files, err := load(PostgresFS, "postgres")
	if err != nil {
		return err
	}
	for _, m := range files {
		if _, err := pool.Exec(ctx, m.sql); err != nil {
			return fmt.Errorf("apply migration %s: %w", m.name, err)
		}
	}
	return nil
}
