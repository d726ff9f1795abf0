package sqlutil

import (
	"time"
)

// Helper functions for storing timestamps as UTC unix milliseconds

// ToMillis converts a time to UTC unix milliseconds.
func ToMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

// FromMillis converts UTC unix milliseconds back to a time.
func FromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
