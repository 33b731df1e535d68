// Package db embeds the PostgreSQL schema.
package db

import _ "embed"

// Schema contains idempotent DDL for the key and usage tables.
//
//go:embed migrations/001_schema.sql
var Schema string
