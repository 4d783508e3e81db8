// Package migrations embeds the SQL schema files into the binary so the
// service can migrate a fresh database without the files on disk.
package migrations

import "embed"

// FS holds every *.up.sql file in this directory.
//
//go:embed *.sql
var FS embed.FS
