// Package postgres implements the job store on PostgreSQL through the pgx
// database/sql driver. The schema lives in embedded goose migrations and
// mirrors the job invariants as CHECK constraints, so a row that breaks the
// state machine is rejected by the database as well as by the store.
package postgres
