package model

import "github.com/rotisserie/eris"

// Error kinds shared across the pipeline. Callers classify with errors.Is;
// producers wrap them with eris to add context.
var (
	// ErrInsufficientCatalog means a sample asked for more records than the
	// catalog holds for the requested filter.
	ErrInsufficientCatalog = eris.New("insufficient catalog")

	// ErrEmptyBatch means position assignment was requested over zero items.
	ErrEmptyBatch = eris.New("empty batch")

	// ErrValidation means an input failed schema or structural checks.
	ErrValidation = eris.New("validation failed")

	// ErrReferentialIntegrity means a decision references a batch or product
	// that does not exist.
	ErrReferentialIntegrity = eris.New("referential integrity violation")

	// ErrInvalidMutation means a mutation names an unknown field or carries a
	// value of the wrong type.
	ErrInvalidMutation = eris.New("invalid mutation")

	// ErrUnknownMode means an unsupported position mode was requested.
	ErrUnknownMode = eris.New("unknown position mode")

	// ErrNotFound means a stored entity does not exist.
	ErrNotFound = eris.New("not found")

	// ErrDuplicate means an append-only entity with the same ID already exists.
	ErrDuplicate = eris.New("duplicate")
)
