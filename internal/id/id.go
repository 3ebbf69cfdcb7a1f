package id

import (
	"crypto/rand"

	"github.com/oklog/ulid/v2"
)

// New returns a new ULID string. ULIDs sort by creation time at millisecond
// resolution and carry 80 random bits, so they are safe as storage keys.
func New() string {
	return ulid.MustNew(ulid.Now(), rand.Reader).String()
}
