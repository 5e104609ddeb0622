package xid

import (
	"fmt"

	"github.com/google/uuid"
)

// New returns a client-generated identifier. Records keep this id in every
// store, so replays against the remote insert with a fixed key.
func New(prefix string) string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	if prefix == "" {
		return id.String()
	}
	return fmt.Sprintf("%s-%s", prefix, id.String())
}
