// Package migrations embeds the PostgreSQL schema migrations so the server,
// the migrate command and the integration tests apply the same files.
package migrations

import "embed"

// FS holds every *.sql migration in golang-migrate naming.
//
//go:embed *.sql
var FS embed.FS
