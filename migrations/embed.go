// Package migrations embeds the SQL schema applied by skeletonctl migrate.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
