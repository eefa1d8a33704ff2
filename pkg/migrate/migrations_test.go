package migrate

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

func TestMigrationsDirIsValid(t *testing.T) {
	require.NoError(t, ValidateDir("migrations"))
}

func TestMigrationsGuardStockAndClaim(t *testing.T) {
	read := func(pattern string) string {
		matches, err := filepath.Glob(filepath.Join("migrations", pattern))
		require.NoError(t, err)
		require.Len(t, matches, 1)
		data, err := os.ReadFile(matches[0])
		require.NoError(t, err)
		return string(data)
	}

	products := read("*_create_merchants_and_products.sql")
	require.Contains(t, products, "CHECK (stock >= 0)")

	sessions := read("*_create_checkout_sessions.sql")
	require.Contains(t, sessions, "CHECK (order_id IS NULL OR status = 'COMPLETED')")

	orders := read("*_create_orders.sql")
	for _, want := range []string{
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_orders_checkout_session_id",
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_orders_tenant_order_no",
		"DROP TABLE IF EXISTS orders",
	} {
		require.True(t, strings.Contains(orders, want), "missing %q", want)
	}
}

func TestCreateAndValidate(t *testing.T) {
	dir := t.TempDir()
	path, err := CreateSQLMigration(dir, "Add Refund Table!")
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(path, "_add_refund_table.sql"))
	require.NoError(t, ValidateDir(dir))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.sql"), []byte("-- +goose Up"), 0o644))
	require.Error(t, ValidateDir(dir))
}

func TestCreateSQLMigrationBumpsPastNewestVersion(t *testing.T) {
	dir := t.TempDir()
	future := filepath.Join(dir, "29991231235959_later.sql")
	require.NoError(t, os.WriteFile(future, []byte("-- +goose Up\n-- +goose Down\n"), 0o644))

	path, err := CreateSQLMigration(dir, "next")
	require.NoError(t, err)
	require.Equal(t, "29991231235960_next.sql", filepath.Base(path))

	_, err = CreateSQLMigration(dir, "  !!  ")
	require.Error(t, err)
}

func TestValidateDirRejectsUnbalancedStatements(t *testing.T) {
	cases := map[string]string{
		"missing down": "-- +goose Up\nSELECT 1;\n",
		"unterminated": "-- +goose Up\n-- +goose StatementBegin\nSELECT 1;\n-- +goose Down\n",
		"stray end":    "-- +goose Up\n-- +goose StatementEnd\n-- +goose Down\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			require.NoError(t, os.WriteFile(filepath.Join(dir, "20260101000000_x.sql"), []byte(body), 0o644))
			require.Error(t, ValidateDir(dir))
		})
	}
}

func TestMaybeRunDevBuildsSQLiteSchema(t *testing.T) {
	flags := config.FeatureFlagsConfig{UseSQLite: true, AutoMigrate: true}
	client, err := db.New(context.Background(), config.DBConfig{
		SQLitePath: "file:autorun_test?mode=memory&cache=shared",
	}, flags, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	cfg := &config.Config{
		App:          config.AppConfig{Env: config.AppEnvDev},
		FeatureFlags: flags,
	}
	logg := logger.New(logger.Options{ServiceName: "migrate-test", Output: io.Discard})
	require.NoError(t, MaybeRunDev(context.Background(), cfg, logg, client))

	for _, model := range models.All() {
		require.True(t, client.DB().Migrator().HasTable(model))
	}
}

func TestMaybeRunDevSkipsOutsideDev(t *testing.T) {
	cfg := &config.Config{
		App:          config.AppConfig{Env: config.AppEnvProd},
		FeatureFlags: config.FeatureFlagsConfig{AutoMigrate: true},
	}
	require.NoError(t, MaybeRunDev(context.Background(), cfg, nil, nil))
}

func TestEmbeddedMigrationsMatchDir(t *testing.T) {
	embeddedFiles, err := fs.Glob(Migrations(), "*.sql")
	require.NoError(t, err)

	onDisk, err := filepath.Glob(filepath.Join("migrations", "*.sql"))
	require.NoError(t, err)
	require.Len(t, embeddedFiles, len(onDisk))
	for _, path := range onDisk {
		require.Contains(t, embeddedFiles, filepath.Base(path))
	}
}

func TestNewRunnerRequiresDB(t *testing.T) {
	_, err := NewRunner(nil, Migrations(), nil)
	require.Error(t, err)
}
