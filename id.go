package tiller

import (
	"time"

	"github.com/google/uuid"
)

// NewID generates a globally unique, time-sortable UUIDv7 (RFC 9562).
// Used for run ids and generated tool-call ids.
func NewID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// NowUnixMS returns the current time as Unix milliseconds.
func NowUnixMS() int64 {
	return time.Now().UnixMilli()
}
