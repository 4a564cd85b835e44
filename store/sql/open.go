package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/goliatone/go-tmsync/core"
	"github.com/goliatone/go-tmsync/migrations"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

const defaultPingTimeout = 5 * time.Second

type persistenceConfig struct {
	driver string
	dsn    string
	debug  bool
}

func (c persistenceConfig) GetDebug() bool { return c.debug }
func (c persistenceConfig) GetDriver() string { return c.driver }
func (c persistenceConfig) GetServer() string { return c.dsn }
func (c persistenceConfig) GetPingTimeout() time.Duration { return defaultPingTimeout }
func (c persistenceConfig) GetOtelIdentifier() string { return "go-tmsync" }

// Open connects to the configured database, applies the embedded migrations
// for its dialect and returns the store factory with its persistence client.
// Callers own the client and must Close it.
func Open(ctx context.Context, cfg core.StoreConfig) (*RepositoryFactory, *persistence.Client, error) {
	driver, dialectName, dialect, err := resolveDialect(cfg.Driver)
	if err != nil {
		return nil, nil, err
	}
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, nil, fmt.Errorf("sqlstore: store dsn is required")
	}

	sqlDB, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("sqlstore: open %s: %w", driver, err)
	}
	if dialectName == migrations.DialectSQLite {
		sqlDB.SetMaxOpenConns(1)
	}

	client, err := persistence.New(persistenceConfig{driver: driver, dsn: cfg.DSN, debug: cfg.Debug}, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, nil, fmt.Errorf("sqlstore: persistence client: %w", err)
	}

	schemaFS, err := migrations.FS(dialectName)
	if err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("sqlstore: load migrations: %w", err)
	}
	client.RegisterSQLMigrations(schemaFS)
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("sqlstore: migrate: %w", err)
	}

	factory, err := NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return factory, client, nil
}

func resolveDialect(driver string) (string, string, schema.Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "sqlite", "sqlite3":
		return "sqlite3", migrations.DialectSQLite, sqlitedialect.New(), nil
	case "postgres", "postgresql", "pq":
		return "postgres", migrations.DialectPostgres, pgdialect.New(), nil
	default:
		return "", "", nil, fmt.Errorf("sqlstore: unsupported store driver %q", driver)
	}
}
