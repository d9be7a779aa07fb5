// Package uuidx creates the time ordered identifiers given to exchanges.
package uuidx

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrNotV7 is returned by Parse for ids New could not have produced.
var ErrNotV7 = errors.New("not a version 7 uuid")

// New returns a version 7 UUID. It panics when the random source fails.
func New() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

// Parse decodes s and checks that it is a version 7 UUID.
func Parse(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, err
	}
	if id.Version() != 7 {
		return uuid.Nil, fmt.Errorf("%w: %s", ErrNotV7, s)
	}
	return id, nil
}
