// Package migrations embeds the SQL schema migrations so the migrate
// binary can run them without filesystem access to the repo.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
