// Package postgres implements the internal/store interfaces on PostgreSQL
// through the pgx database/sql driver. It also owns the schema, shipped as
// goose migrations embedded in the binary.
package postgres
