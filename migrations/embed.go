// Package migrations embeds the schema for each supported dialect.
package migrations

import (
	"embed"
	"io/fs"

	"github.com/garyjia/hr-requests/pkg/database"
)

//go:embed sqlite/*.sql postgres/*.sql
var files embed.FS

// FS returns the embedded migrations and the directory holding the given dialect's files
func FS(dialect database.Dialect) (fs.FS, string) {
	if dialect == database.DialectPostgres {
		return files, "postgres"
	}
	return files, "sqlite"
}
