package migrate

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

// OpenPostgres opens a single-connection database/sql handle through lib/pq
// for goose. The migrate command uses it instead of the application's pgx
// pool so DDL never competes with pooled sessions.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	connector, err := pq.NewConnector(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	sqlDB := sql.OpenDB(connector)
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return sqlDB, nil
}
