// Package sqldocs exposes the lifecycle schema DDL bundles directly from the docs tree.
package sqldocs

import _ "embed"

// SQLite contains the SQLite DDL bundle for applications and their status history.
//
//go:embed sqlite.sql
var SQLite string

// Postgres contains the Postgres DDL bundle for applications and their status history.
//
//go:embed postgres.sql
var Postgres string
