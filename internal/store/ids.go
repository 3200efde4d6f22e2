package store

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// IDGenerator supplies ids for inserted blocks that arrive without one.
// Ids must be unique across all objects and match [patch.ValidBlockID].
type IDGenerator interface {
	NewBlockID() string
}

// IDGeneratorFunc adapts a function to [IDGenerator].
type IDGeneratorFunc func() string

// NewBlockID implements [IDGenerator].
func (f IDGeneratorFunc) NewBlockID() string { return f() }

// ULIDs generates lexicographically time-ordered ULIDs. ulid.Make draws from
// a process-wide monotonic source and is safe for concurrent use.
var ULIDs IDGenerator = IDGeneratorFunc(func() string {
	return ulid.Make().String()
})

// NewUUIDv7 generates time-ordered object ids, so listing objects by id
// lists them by creation time.
func NewUUIDv7() (uuid.UUID, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("new uuidv7: %w", err)
	}

	return id, nil
}

// parseObjectID accepts only UUIDv7 strings.
func parseObjectID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("invalid object id %q: %w", raw, err)
	}

	err = validateUUIDv7(id)
	if err != nil {
		return uuid.UUID{}, err
	}

	return id, nil
}

func validateUUIDv7(id uuid.UUID) error {
	if id.Version() != 7 {
		return fmt.Errorf("invalid uuidv7: version %d", id.Version())
	}

	if id.Variant() != uuid.RFC4122 {
		return fmt.Errorf("invalid uuidv7: variant %d", id.Variant())
	}

	return nil
}
