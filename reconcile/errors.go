package reconcile

import "errors"

var (
	// ErrInventory is returned when a store could not be enumerated.
	// No repairs are attempted in that case.
	ErrInventory = errors.New("inventory failed")

	// ErrRepairerRequired is returned when no repairer is provided.
	ErrRepairerRequired = errors.New("repairer required")

	// ErrStoreRequired is returned when a store is not provided.
	ErrStoreRequired = errors.New("blob store, metadata store and search index required")
)
