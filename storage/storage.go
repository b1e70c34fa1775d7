// Package storage defines the adapter contract the gateway executes against.
// Each gateway request issues exactly one adapter call; the adapter is
// treated as opaque and atomic per call.
package storage

import (
	"context"

	"github.com/google/uuid"

	"github.com/fleetrent/admin-gateway/descriptor"
	"github.com/fleetrent/admin-gateway/query"
)

// Record is one entity row, with visible relations embedded under their
// relation names and aggregate counts under "_count".
type Record map[string]interface{}

// Adapter executes query plans and single-call writes against the data store.
// Implementations return faults.KindNotFound for missing instances and wrap
// other failures as faults.KindStorageFailure.
type Adapter interface {
	// Execute runs one query plan and returns matching records with the
	// plan's relations embedded and counts attached.
	Execute(ctx context.Context, plan *query.Plan) ([]Record, error)

	// Create inserts a record and returns the stored row.
	Create(ctx context.Context, ent *descriptor.Entity, payload Record) (Record, error)

	// Update overwrites the declared fields of an instance and returns the
	// stored row.
	Update(ctx context.Context, ent *descriptor.Entity, id uuid.UUID, payload Record) (Record, error)

	// Delete removes an instance and returns the deleted row.
	Delete(ctx context.Context, ent *descriptor.Entity, id uuid.UUID) (Record, error)

	// FindOwner returns the owning principal id of an instance. For entities
	// without an owner field it returns uuid.Nil when the instance exists.
	FindOwner(ctx context.Context, ent *descriptor.Entity, id uuid.UUID) (uuid.UUID, error)
}
