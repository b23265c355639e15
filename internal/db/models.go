package db

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

type SavedLocation struct {
	ID        uuid.UUID             `json:"id"`
	Name      string                `json:"name"`
	Lat       float64               `json:"lat"`
	Lon       float64               `json:"lon"`
	Address   sql.NullString        `json:"address"`
	Note      sql.NullString        `json:"note"`
	Report    string                `json:"report"`
	RiskJson  pqtype.NullRawMessage `json:"risk_json"`
	CreatedAt time.Time             `json:"created_at"`
	UpdatedAt time.Time             `json:"updated_at"`
}
