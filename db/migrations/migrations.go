// Package migrations embeds the SQL migration files so they can be applied
// by golang-migrate at startup without shipping loose files.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
