// Package migrations embeds the journal schema so the binary can migrate
// a database without the SQL files on disk.
package migrations

import "embed"

// FS holds every *.sql migration at its root.
//
//go:embed *.sql
var FS embed.FS
