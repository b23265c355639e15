// Package db is the query layer for the saved_locations table. It follows
// the sqlc layout: a DBTX that is either the pool or a transaction, a
// Querier interface, and optional prepared statements.
package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
)

//go:embed migrations/*.sql
var migrations embed.FS

// DBTX is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	PrepareContext(context.Context, string) (*sql.Stmt, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// Prepare prepares every statement against the live schema, so a schema
// mismatch fails at startup rather than on first use.
func Prepare(ctx context.Context, db DBTX) (*Queries, error) {
	q := Queries{db: db}
	var err error
	if q.deleteLocationStmt, err = db.PrepareContext(ctx, deleteLocation); err != nil {
		return nil, fmt.Errorf("error preparing query DeleteLocation: %w", err)
	}
	if q.findLocationNearStmt, err = db.PrepareContext(ctx, findLocationNear); err != nil {
		return nil, fmt.Errorf("error preparing query FindLocationNear: %w", err)
	}
	if q.insertLocationStmt, err = db.PrepareContext(ctx, insertLocation); err != nil {
		return nil, fmt.Errorf("error preparing query InsertLocation: %w", err)
	}
	if q.listLocationsStmt, err = db.PrepareContext(ctx, listLocations); err != nil {
		return nil, fmt.Errorf("error preparing query ListLocations: %w", err)
	}
	if q.updateLocationStmt, err = db.PrepareContext(ctx, updateLocation); err != nil {
		return nil, fmt.Errorf("error preparing query UpdateLocation: %w", err)
	}
	if q.updateLocationNoteStmt, err = db.PrepareContext(ctx, updateLocationNote); err != nil {
		return nil, fmt.Errorf("error preparing query UpdateLocationNote: %w", err)
	}
	return &q, nil
}

// Close releases prepared statements.
func (q *Queries) Close() error {
	var err error
	for _, stmt := range []*sql.Stmt{
		q.deleteLocationStmt,
		q.findLocationNearStmt,
		q.insertLocationStmt,
		q.listLocationsStmt,
		q.updateLocationStmt,
		q.updateLocationNoteStmt,
	} {
		if stmt == nil {
			continue
		}
		if cerr := stmt.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("error closing statement: %w", cerr)
		}
	}
	return err
}

func (q *Queries) exec(ctx context.Context, stmt *sql.Stmt, query string, args ...interface{}) (sql.Result, error) {
	switch {
	case stmt != nil && q.tx != nil:
		return q.tx.StmtContext(ctx, stmt).ExecContext(ctx, args...)
	case stmt != nil:
		return stmt.ExecContext(ctx, args...)
	default:
		return q.db.ExecContext(ctx, query, args...)
	}
}

func (q *Queries) query(ctx context.Context, stmt *sql.Stmt, query string, args ...interface{}) (*sql.Rows, error) {
	switch {
	case stmt != nil && q.tx != nil:
		return q.tx.StmtContext(ctx, stmt).QueryContext(ctx, args...)
	case stmt != nil:
		return stmt.QueryContext(ctx, args...)
	default:
		return q.db.QueryContext(ctx, query, args...)
	}
}

func (q *Queries) queryRow(ctx context.Context, stmt *sql.Stmt, query string, args ...interface{}) *sql.Row {
	switch {
	case stmt != nil && q.tx != nil:
		return q.tx.StmtContext(ctx, stmt).QueryRowContext(ctx, args...)
	case stmt != nil:
		return stmt.QueryRowContext(ctx, args...)
	default:
		return q.db.QueryRowContext(ctx, query, args...)
	}
}

type Queries struct {
	db                     DBTX
	tx                     *sql.Tx
	deleteLocationStmt     *sql.Stmt
	findLocationNearStmt   *sql.Stmt
	insertLocationStmt     *sql.Stmt
	listLocationsStmt      *sql.Stmt
	updateLocationStmt     *sql.Stmt
	updateLocationNoteStmt *sql.Stmt
}

// WithTx returns a Queries bound to tx that reuses the prepared statements.
func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{
		db:                     tx,
		tx:                     tx,
		deleteLocationStmt:     q.deleteLocationStmt,
		findLocationNearStmt:   q.findLocationNearStmt,
		insertLocationStmt:     q.insertLocationStmt,
		listLocationsStmt:      q.listLocationsStmt,
		updateLocationStmt:     q.updateLocationStmt,
		updateLocationNoteStmt: q.updateLocationNoteStmt,
	}
}

// Migrate applies the embedded schema. Every statement is idempotent.
func Migrate(ctx context.Context, db DBTX) error {
	entries, err := migrations.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("db: read migrations: %w", err)
	}
	for _, e := range entries {
		body, err := migrations.ReadFile("migrations/" + e.Name())
		if err != nil {
			return fmt.Errorf("db: read %s: %w", e.Name(), err)
		}
		if _, err := db.ExecContext(ctx, string(body)); err != nil {
			return fmt.Errorf("db: apply %s: %w", e.Name(), err)
		}
	}
	return nil
}
