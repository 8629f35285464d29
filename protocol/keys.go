package protocol

import "github.com/google/uuid"

// Key correlates a request with its terminal response. Keys are opaque to the
// processor; it only echoes them back.
type Key string

// NewKey returns a time-sortable UUIDv7 key. Sortability is convenient when
// reading message traces; uniqueness is what the correlation map relies on.
func NewKey() Key {
	return Key(uuid.Must(uuid.NewV7()).String())
}
