// Package migrations embeds the netdiag schema migrations into the binary.
// Importing it registers the files with the database package.
package migrations

import (
	"embed"

	"github.com/RaufunNazin/bnetdiag/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
