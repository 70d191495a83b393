package storage

import (
	"context"
	_ "embed"
	"fmt"
)

//go:embed schema.sql
var schemaSQL string

// EnsureSchema applies the DDL on startup. Statements are idempotent, so
// a restart against an initialized database is a no-op.
func (p *PostgresStorage) EnsureSchema(ctx context.Context) error {
	const op = "storage.EnsureSchema"

	if _, err := p.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
