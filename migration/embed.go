package migration

import "embed"

// FS holds the goose migrations shared by the sqlite and postgres drivers.
//
//go:embed *.sql
var FS embed.FS
