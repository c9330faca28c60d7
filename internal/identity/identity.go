// Package identity generates node IDs and derives the IDs of generated
// instance nodes from their template counterparts.
package identity

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var ErrNotUUID = errors.New("identity is not a UUID")

// New returns a fresh time-ordered ID.
func New() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return id.String()
}

// Remap moves id from the scope of owner `from` into the scope of owner `to`.
//
// The result is id XOR from XOR to over the 16 UUID bytes, so
// Remap(Remap(id, a, b), b, a) == id, Remap(from, from, to) == to, and remapping
// through nested owners composes without any lookup table.
func Remap(id, from, to string) (string, error) {
	var parsed [3]uuid.UUID
	for i, s := range [3]string{id, from, to} {
		u, err := uuid.Parse(s)
		if err != nil {
			return "", fmt.Errorf("%w: %q", ErrNotUUID, s)
		}
		parsed[i] = u
	}
	var out uuid.UUID
	for i := range out {
		out[i] = parsed[0][i] ^ parsed[1][i] ^ parsed[2][i]
	}
	return out.String(), nil
}

// MustRemap is Remap for IDs already known to be valid.
func MustRemap(id, from, to string) string {
	out, err := Remap(id, from, to)
	if err != nil {
		panic(err)
	}
	return out
}

// Valid reports whether s parses as an ID.
func Valid(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
