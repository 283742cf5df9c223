package es

import "fmt"

// ExpectedVersion declares what a writer believes about the current state of
// a stream. It is checked against the header before the conditional batch
// write is submitted.
type ExpectedVersion struct {
	value int64
}

const (
	// expectedVersionAny indicates no version check should be performed
	expectedVersionAny = -1
	// expectedVersionNoStream indicates the stream must not exist
	expectedVersionNoStream = -2
)

// Any returns an ExpectedVersion that accepts whatever version is current.
// The write is still conditioned on the header token read just before it,
// so a concurrent writer still causes a conflict rather than a lost update.
func Any() ExpectedVersion {
	return ExpectedVersion{value: expectedVersionAny}
}

// NoStream returns an ExpectedVersion that requires the stream header to be absent.
// Use it for the first append to a new stream.
func NoStream() ExpectedVersion {
	return ExpectedVersion{value: expectedVersionNoStream}
}

// Exact returns an ExpectedVersion that requires the header to exist at exactly version.
// Exact(0) matches a stream created without events.
// The version must be non-negative (>= 0).
func Exact(version int64) ExpectedVersion {
	if version < 0 {
		panic(fmt.Sprintf("exact version must be non-negative, got %d", version))
	}
	return ExpectedVersion{value: version}
}

// ExpectedVersionFor returns the expectation matching a previous read:
// NoStream when the stream was not found, Exact(version) otherwise.
func ExpectedVersionFor(found bool, version int64) ExpectedVersion {
	if !found {
		return NoStream()
	}
	return Exact(version)
}

// IsAny returns true if this is an "Any" expected version (no version check).
func (ev ExpectedVersion) IsAny() bool {
	return ev.value == expectedVersionAny
}

// IsNoStream returns true if this is a "NoStream" expected version (stream must not exist).
func (ev ExpectedVersion) IsNoStream() bool {
	return ev.value == expectedVersionNoStream
}

// IsExact returns true if this is an "Exact" expected version.
func (ev ExpectedVersion) IsExact() bool {
	return ev.value >= 0
}

// Value returns the exact version number if this is an Exact expected version.
// Returns 0 for Any and NoStream.
func (ev ExpectedVersion) Value() int64 {
	if ev.value >= 0 {
		return ev.value
	}
	return 0
}

// Matches reports whether a stream in the given state satisfies the expectation.
// exists is false when the header is absent.
func (ev ExpectedVersion) Matches(exists bool, current int64) bool {
	switch {
	case ev.IsAny():
		return true
	case ev.IsNoStream():
		return !exists
	default:
		return exists && current == ev.value
	}
}

// String returns a string representation of the ExpectedVersion.
func (ev ExpectedVersion) String() string {
	if ev.IsAny() {
		return "Any"
	}
	if ev.IsNoStream() {
		return "NoStream"
	}
	return fmt.Sprintf("Exact(%d)", ev.value)
}
