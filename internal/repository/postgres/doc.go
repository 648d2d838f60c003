// Package postgres implements the engine repositories on PostgreSQL via
// database/sql and lib/pq. Schema migrations are embedded and applied with
// Migrate.
package postgres
