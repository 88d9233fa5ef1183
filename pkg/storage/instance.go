package storage

import (
	"crypto/rand"
	"fmt"
	"time"
)

// newInstanceID builds a fresh instance id: a sortable timestamp plus a short
// random suffix, so two instances created within the same second stay
// distinct.
func newInstanceID(now time.Time) string {
	var suffix [4]byte
	rand.Read(suffix[:])
	return fmt.Sprintf("%s_%s_%x", filePrefix, now.Format(timestampFormat), suffix)
}
