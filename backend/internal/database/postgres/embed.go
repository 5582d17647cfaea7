package postgres

import "embed"

//go:embed migrations/*.sql
var migrations embed.FS

// GetMigrationsFS returns the postgres migrations, rooted so that they live under "migrations".
func GetMigrationsFS() embed.FS {
	return migrations
}
