// Package dbmigrations exposes the embedded SQL schema shared by every chronicle binary.
// The DDL is portable across SQLite and PostgreSQL.
package dbmigrations

import "embed"

// Files contains the numbered *.up.sql and *.down.sql migrations.
//
//go:embed *.sql
var Files embed.FS
