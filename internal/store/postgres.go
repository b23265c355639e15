package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sqlc-dev/pqtype"

	"github.com/nyashahama/geoanalyzer/internal/db"
	"github.com/nyashahama/geoanalyzer/internal/geo"
	"github.com/nyashahama/geoanalyzer/internal/risk"
)

// serializationRetries is how many times withTx re-runs fn after a
// serialization failure.
const serializationRetries = 3

// PostgresStore holds a *sql.DB for starting transactions and a db.Querier
// for single-query calls.
type PostgresStore struct {
	// pool is the raw connection pool, used only to begin transactions.
	pool *sql.DB
	q    *db.Queries
}

// NewPostgresStore creates a store from a live connection pool. The pool must
// already be open and verified (e.g. via PingContext).
func NewPostgresStore(pool *sql.DB, q *db.Queries) *PostgresStore {
	return &PostgresStore{pool: pool, q: q}
}

// txQuerier receives a transactional Querier. Returning a non-nil error rolls
// the transaction back.
type txQuerier func(ctx context.Context, q db.Querier) error

// withTx runs fn in a serializable transaction, committing on success and
// rolling back on any error (including panics). A serialization failure
// (SQLSTATE 40001) from two concurrent saves of the same place is retried.
func (s *PostgresStore) withTx(ctx context.Context, fn txQuerier) error {
	var err error
	for attempt := 0; attempt <= serializationRetries; attempt++ {
		if err = s.tryTx(ctx, fn); !isSerializationFailure(err) {
			return err
		}
	}
	return fmt.Errorf("store: giving up after %d serialization retries: %w", serializationRetries, err)
}

func (s *PostgresStore) tryTx(ctx context.Context, fn txQuerier) error {
	tx, err := s.pool.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("store: begin transaction: %w", err)
	}

	// Roll back on panic so the connection is never left in a broken state.
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(ctx, s.q.WithTx(tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("store: fn error: %w; rollback error: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit transaction: %w", err)
	}
	return nil
}

func isSerializationFailure(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "40001"
}

// Save upserts by proximity inside one serializable transaction.
func (s *PostgresStore) Save(ctx context.Context, loc SavedLocation) (SavedLocation, error) {
	if err := loc.Coordinates.Validate(); err != nil {
		return SavedLocation{}, fmt.Errorf("store: save: %w", err)
	}
	loc.Name = defaultName(loc)

	riskJSON, err := marshalRisk(loc.Risk)
	if err != nil {
		return SavedLocation{}, fmt.Errorf("store: save: %w", err)
	}

	var row db.SavedLocation
	err = s.withTx(ctx, func(ctx context.Context, q db.Querier) error {
		existing, err := q.FindLocationNear(ctx, db.FindLocationNearParams{
			Lat:       loc.Coordinates.Lat,
			Lon:       loc.Coordinates.Lon,
			Tolerance: ProximityDegrees,
		})
		switch {
		case err == nil:
			row, err = q.UpdateLocation(ctx, db.UpdateLocationParams{
				ID:       existing.ID,
				Name:     loc.Name,
				Lat:      loc.Coordinates.Lat,
				Lon:      loc.Coordinates.Lon,
				Address:  nullString(loc.Address),
				Note:     nullString(loc.Note),
				Report:   loc.Report,
				RiskJson: riskJSON,
			})
			if err != nil {
				return fmt.Errorf("Save: update: %w", err)
			}
			return nil

		case errors.Is(err, sql.ErrNoRows):
			id := loc.ID
			if id == uuid.Nil {
				id = uuid.New()
			}
			row, err = q.InsertLocation(ctx, db.InsertLocationParams{
				ID:       id,
				Name:     loc.Name,
				Lat:      loc.Coordinates.Lat,
				Lon:      loc.Coordinates.Lon,
				Address:  nullString(loc.Address),
				Note:     nullString(loc.Note),
				Report:   loc.Report,
				RiskJson: riskJSON,
			})
			if err != nil {
				return fmt.Errorf("Save: insert: %w", err)
			}
			return nil

		default:
			return fmt.Errorf("Save: find existing: %w", err)
		}
	})
	if err != nil {
		return SavedLocation{}, err
	}
	return fromRow(row)
}

func (s *PostgresStore) List(ctx context.Context) ([]SavedLocation, error) {
	rows, err := s.q.ListLocations(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}
	out := make([]SavedLocation, 0, len(rows))
	for _, r := range rows {
		loc, err := fromRow(r)
		if err != nil {
			return nil, err
		}
		out = append(out, loc)
	}
	return out, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id uuid.UUID) error {
	n, err := s.q.DeleteLocation(ctx, id)
	if err != nil {
		return fmt.Errorf("store: delete: %w", err)
	}
	if n == 0 {
		return ErrLocationNotFound
	}
	return nil
}

func (s *PostgresStore) UpdateNote(ctx context.Context, id uuid.UUID, note string) (SavedLocation, error) {
	row, err := s.q.UpdateLocationNote(ctx, db.UpdateLocationNoteParams{
		ID:   id,
		Note: sql.NullString{String: strings.TrimSpace(note), Valid: true},
	})
	if errors.Is(err, sql.ErrNoRows) {
		return SavedLocation{}, ErrLocationNotFound
	}
	if err != nil {
		return SavedLocation{}, fmt.Errorf("store: update note: %w", err)
	}
	return fromRow(row)
}

// ─── MAPPING ──────────────────────────────────────────────────────────────────

func nullString(s string) sql.NullString {
	s = strings.TrimSpace(s)
	return sql.NullString{String: s, Valid: s != ""}
}

func marshalRisk(a *risk.Assessment) (pqtype.NullRawMessage, error) {
	if a == nil {
		return pqtype.NullRawMessage{}, nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return pqtype.NullRawMessage{}, fmt.Errorf("marshal risk JSON: %w", err)
	}
	return pqtype.NullRawMessage{RawMessage: b, Valid: true}, nil
}

func fromRow(r db.SavedLocation) (SavedLocation, error) {
	loc := SavedLocation{
		ID:          r.ID,
		Name:        r.Name,
		Coordinates: geo.Coordinates{Lat: r.Lat, Lon: r.Lon},
		Address:     r.Address.String,
		Note:        r.Note.String,
		Report:      r.Report,
		CreatedAt:   r.CreatedAt.UTC(),
	}
	if r.RiskJson.Valid {
		var a risk.Assessment
		if err := json.Unmarshal(r.RiskJson.RawMessage, &a); err != nil {
			return SavedLocation{}, fmt.Errorf("store: decode risk JSON for %s: %w", r.ID, err)
		}
		loc.Risk = &a
	}
	return loc, nil
}
