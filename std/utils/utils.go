package utils

import (
	"time"

	"golang.org/x/exp/constraints"
)

// RTPVersion is the version of this build, set by the linker.
var RTPVersion string = "unknown"

// If is the ternary operator (eager evaluation)
func If[T any](cond bool, t, f T) T {
	if cond {
		return t
	} else {
		return f
	}
}

// Millis converts a millisecond count from configuration to a duration.
func Millis[T constraints.Integer](ms T) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// ToMillis is the inverse of Millis, truncating sub-millisecond parts.
func ToMillis[T constraints.Integer](d time.Duration) T {
	return T(d / time.Millisecond)
}
