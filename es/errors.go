package es

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidStreamID indicates an empty stream id or one containing Separator.
	ErrInvalidStreamID = errors.New("invalid stream id")

	// ErrVersionNotYetWritten indicates a snapshot for a version the stream has not reached.
	ErrVersionNotYetWritten = errors.New("version not yet written")

	// ErrCorruption indicates persisted documents that violate stream invariants.
	// Returned errors are *CorruptionError values matching it with errors.Is.
	ErrCorruption = errors.New("stream corruption")
)

// CorruptionError describes documents that cannot form a valid stream.
// It is never repaired automatically.
type CorruptionError struct {
	StreamID string
	Reason   string
	Versions []int64
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("stream %q corrupt: %s at versions %v", e.StreamID, e.Reason, e.Versions)
}

// Is makes errors.Is(err, ErrCorruption) hold.
func (e *CorruptionError) Is(target error) bool {
	return target == ErrCorruption
}
