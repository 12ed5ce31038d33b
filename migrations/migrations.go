// Package migrations embeds the numbered SQL schema migrations applied by
// "medrec-server migrate up".
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
