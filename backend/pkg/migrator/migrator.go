// Package migrator applies the embedded schema migrations with dbmate.
package migrator

import (
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/amacneil/dbmate/v2/pkg/dbmate"
	_ "github.com/amacneil/dbmate/v2/pkg/driver/postgres"
	_ "github.com/amacneil/dbmate/v2/pkg/driver/sqlite"

	"arksync/backend/pkg/dialect"
	"arksync/backend/pkg/utils"
)

const migrationsDir = "migrations"

// Migrator runs the migrations of one dialect against one database.
type Migrator struct {
	db      *dbmate.DB
	fs      embed.FS
	dialect dialect.Dialect
	connStr string
	l       *slog.Logger
}

// New creates a migrator. For SQLite the connection string is a file path,
// for PostgreSQL it is a postgresql:// URL.
func New(l *slog.Logger, d dialect.Dialect, connStr string) (*Migrator, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	return newMigrator(l, d, d.MigrationFS(), connStr)
}

func newMigrator(l *slog.Logger, d dialect.Dialect, fs embed.FS, connStr string) (*Migrator, error) {
	if connStr == "" {
		return nil, errors.New("connection string is required")
	}

	if _, err := fs.ReadDir(migrationsDir); err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	u, err := databaseURL(d, connStr)
	if err != nil {
		return nil, err
	}

	db := dbmate.New(u)
	db.Strict = true
	db.FS = fs
	db.MigrationsDir = []string{migrationsDir}
	db.AutoDumpSchema = false

	l = l.With(slog.String("component", "db-migrator"), slog.String("dialect", d.String()))
	db.Log = utils.NewSlogWriter(l)

	return &Migrator{
		db:      db,
		fs:      fs,
		dialect: d,
		connStr: connStr,
		l:       l,
	}, nil
}

func databaseURL(d dialect.Dialect, connStr string) (*url.URL, error) {
	switch d {
	case dialect.SQLite:
		// dbmate opens its own connection, an in-memory database would vanish with it.
		if strings.Contains(connStr, "memory") {
			return nil, errors.New("in-memory databases are not supported")
		}

		u, err := url.Parse("sqlite:" + connStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse database url: %w", err)
		}

		return u, nil
	case dialect.PostgreSQL:
		u, err := url.Parse(connStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse connection string: %w", err)
		}

		return u, nil
	default:
		return nil, fmt.Errorf("unsupported dialect: %q", d.String())
	}
}

// Migrate applies every pending migration. Already applied ones are skipped.
func (m *Migrator) Migrate() error {
	m.l.Info("Migrating database")

	if err := m.db.Migrate(); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	return nil
}

// Pending reports how many migrations have not been applied yet.
func (m *Migrator) Pending() (int, error) {
	pending, err := m.db.Status(true)
	if err != nil {
		return 0, fmt.Errorf("failed to read migration status: %w", err)
	}

	return pending, nil
}

func (m *Migrator) Dialect() dialect.Dialect {
	return m.dialect
}
