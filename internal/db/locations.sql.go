package db

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

const locationColumns = `id, name, lat, lon, address, note, report, risk_json, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanLocation(row rowScanner) (SavedLocation, error) {
	var i SavedLocation
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.Lat,
		&i.Lon,
		&i.Address,
		&i.Note,
		&i.Report,
		&i.RiskJson,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const deleteLocation = `-- name: DeleteLocation :execrows
DELETE FROM saved_locations WHERE id = $1
`

func (q *Queries) DeleteLocation(ctx context.Context, id uuid.UUID) (int64, error) {
	result, err := q.exec(ctx, q.deleteLocationStmt, deleteLocation, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const findLocationNear = `-- name: FindLocationNear :one
SELECT ` + locationColumns + `
FROM saved_locations
WHERE abs(lat - $1) < $3 AND abs(lon - $2) < $3
ORDER BY created_at DESC
LIMIT 1
FOR UPDATE
`

type FindLocationNearParams struct {
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	Tolerance float64 `json:"tolerance"`
}

func (q *Queries) FindLocationNear(ctx context.Context, arg FindLocationNearParams) (SavedLocation, error) {
	row := q.queryRow(ctx, q.findLocationNearStmt, findLocationNear, arg.Lat, arg.Lon, arg.Tolerance)
	return scanLocation(row)
}

const insertLocation = `-- name: InsertLocation :one
INSERT INTO saved_locations (id, name, lat, lon, address, note, report, risk_json)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING ` + locationColumns + `
`

type InsertLocationParams struct {
	ID       uuid.UUID             `json:"id"`
	Name     string                `json:"name"`
	Lat      float64               `json:"lat"`
	Lon      float64               `json:"lon"`
	Address  sql.NullString        `json:"address"`
	Note     sql.NullString        `json:"note"`
	Report   string                `json:"report"`
	RiskJson pqtype.NullRawMessage `json:"risk_json"`
}

func (q *Queries) InsertLocation(ctx context.Context, arg InsertLocationParams) (SavedLocation, error) {
	row := q.queryRow(ctx, q.insertLocationStmt, insertLocation,
		arg.ID,
		arg.Name,
		arg.Lat,
		arg.Lon,
		arg.Address,
		arg.Note,
		arg.Report,
		arg.RiskJson,
	)
	return scanLocation(row)
}

const listLocations = `-- name: ListLocations :many
SELECT ` + locationColumns + `
FROM saved_locations
ORDER BY created_at DESC, id
`

func (q *Queries) ListLocations(ctx context.Context) ([]SavedLocation, error) {
	rows, err := q.query(ctx, q.listLocationsStmt, listLocations)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []SavedLocation{}
	for rows.Next() {
		i, err := scanLocation(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// Address and note are only overwritten when the new value is non-null.
const updateLocation = `-- name: UpdateLocation :one
UPDATE saved_locations
SET name       = $2,
    lat        = $3,
    lon        = $4,
    address    = COALESCE($5, address),
    note       = COALESCE($6, note),
    report     = $7,
    risk_json  = COALESCE($8, risk_json),
    updated_at = now()
WHERE id = $1
RETURNING ` + locationColumns + `
`

type UpdateLocationParams struct {
	ID       uuid.UUID             `json:"id"`
	Name     string                `json:"name"`
	Lat      float64               `json:"lat"`
	Lon      float64               `json:"lon"`
	Address  sql.NullString        `json:"address"`
	Note     sql.NullString        `json:"note"`
	Report   string                `json:"report"`
	RiskJson pqtype.NullRawMessage `json:"risk_json"`
}

func (q *Queries) UpdateLocation(ctx context.Context, arg UpdateLocationParams) (SavedLocation, error) {
	row := q.queryRow(ctx, q.updateLocationStmt, updateLocation,
		arg.ID,
		arg.Name,
		arg.Lat,
		arg.Lon,
		arg.Address,
		arg.Note,
		arg.Report,
		arg.RiskJson,
	)
	return scanLocation(row)
}

const updateLocationNote = `-- name: UpdateLocationNote :one
UPDATE saved_locations
SET note = $2, updated_at = now()
WHERE id = $1
RETURNING ` + locationColumns + `
`

type UpdateLocationNoteParams struct {
	ID   uuid.UUID      `json:"id"`
	Note sql.NullString `json:"note"`
}

func (q *Queries) UpdateLocationNote(ctx context.Context, arg UpdateLocationNoteParams) (SavedLocation, error) {
	row := q.queryRow(ctx, q.updateLocationNoteStmt, updateLocationNote, arg.ID, arg.Note)
	return scanLocation(row)
}
