package store

import "github.com/google/uuid"

// newID mints a row id.
func newID() string {
	return uuid.NewString()
}
