package session

// Store is the narrow port the manager persists the single session record
// through. Implementations live in internal/store; the core logic stays
// testable without a real storage backend.
type Store interface {
	// Load returns the stored record, or ErrNoSession when nothing is
	// stored.
	Load() (*Record, error)
	// Save replaces the stored record.
	Save(rec *Record) error
	// Clear removes the stored record. Clearing an empty store is not an
	// error.
	Clear() error
}
