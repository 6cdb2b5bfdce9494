// Package migrations embeds the SQL schema so binaries can apply it
// without a checkout of the repo next to them.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
