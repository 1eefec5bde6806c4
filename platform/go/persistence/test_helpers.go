package persistence

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	sqlassets "github.com/hardhat-labs/crewdeck/database"
)

// applyCoreSchemaDDL executes the embedded DDL assets against a clean database.
// Tests call this helper so they can bootstrap schema without external init scripts.
func applyCoreSchemaDDL(ctx context.Context, pool *pgxpool.Pool) error {
	for _, asset := range sqlassets.CoreSchemaSQL {
		for _, raw := range strings.Split(asset, ";") {
			stmt := strings.TrimSpace(raw)
			if stmt == "" {
				continue
			}
			if _, err := pool.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("apply core schema ddl: %w", err)
			}
		}
	}

	return nil
}
