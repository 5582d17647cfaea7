// Package dialect names the SQL backends the store can run on.
package dialect

import (
	"embed"
	"fmt"

	"arksync/backend/internal/database/postgres"
	"arksync/backend/internal/database/sqlite"
)

type Dialect string

const (
	SQLite     Dialect = "sqlite"
	PostgreSQL Dialect = "postgres"
)

// Parse validates s and returns it as a Dialect.
func Parse(s string) (Dialect, error) {
	d := Dialect(s)
	if err := d.Validate(); err != nil {
		return "", err
	}

	return d, nil
}

func (d Dialect) Validate() error {
	switch d {
	case SQLite, PostgreSQL:
		return nil
	default:
		return fmt.Errorf("unsupported dialect: %q", string(d))
	}
}

func (d Dialect) String() string {
	return string(d)
}

// Driver is the database/sql driver name registered for the dialect.
func (d Dialect) Driver() string {
	switch d {
	case SQLite:
		return "sqlite3"
	case PostgreSQL:
		return "pgx"
	default:
		return ""
	}
}

// Placeholder returns the n-th (1 based) bind parameter, "$n" for both
// backends. go-sqlite3 accepts the numbered form too.
func (d Dialect) Placeholder(n int) string {
	return fmt.Sprintf("$%d", n)
}

func (d Dialect) MigrationFS() embed.FS {
	switch d {
	case SQLite:
		return sqlite.GetMigrationsFS()
	case PostgreSQL:
		return postgres.GetMigrationsFS()
	default:
		return embed.FS{}
	}
}
