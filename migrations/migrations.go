// Package migrations bundles the Postgres schema for the extracted-document
// store.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
