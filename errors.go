package pomelo

import "github.com/pkg/errors"

// Storage adapters signal a missed single-record read with an error
// matching ErrNotFound; the core passes it through untouched.
var ErrNotFound = errors.New("record does not exist in storage")

// ErrInvalidRecord matches the ErrorsSet delivered by Save when
// validation fails: errors.Is(err, ErrInvalidRecord).
var ErrInvalidRecord = errors.New("record has validation errors")

// ErrRuleFailed wraps a panic recovered from a user supplied
// encode, decode or validation function.
var ErrRuleFailed = errors.New("user supplied rule function panicked")

// Usage errors. These are the only errors the public operations
// return synchronously; everything else arrives through callbacks.
var ErrCallbackRequired = errors.New("a callback is required for this operation")
var ErrNoAdapter = errors.New("model type has no storage adapter")
var ErrEmptyID = errors.New("a primary key value is required")
var ErrIDImmutable = errors.New("primary key cannot change after the record was persisted")
var ErrNotPersisted = errors.New("record has never been persisted")
var ErrOperationInFlight = errors.New("another mutating operation is in flight on this record")
var ErrRecordDestroyed = errors.New("record has been destroyed")
var ErrInvalidConfig = errors.New("invalid model type configuration")
