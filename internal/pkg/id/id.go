package id

import (
	"crypto/rand"

	"github.com/oklog/ulid/v2"
)

// New generates a new ULID string. ULIDs are lexicographically sortable by
// creation time, which the otps table relies on to find the most recent
// record for a scope.
func New() string {
	return ulid.MustNew(ulid.Now(), rand.Reader).String()
}
