package db

import (
	"context"

	"github.com/google/uuid"
)

type Querier interface {
	DeleteLocation(ctx context.Context, id uuid.UUID) (int64, error)
	FindLocationNear(ctx context.Context, arg FindLocationNearParams) (SavedLocation, error)
	InsertLocation(ctx context.Context, arg InsertLocationParams) (SavedLocation, error)
	ListLocations(ctx context.Context) ([]SavedLocation, error)
	UpdateLocation(ctx context.Context, arg UpdateLocationParams) (SavedLocation, error)
	UpdateLocationNote(ctx context.Context, arg UpdateLocationNoteParams) (SavedLocation, error)
}

var _ Querier = (*Queries)(nil)
