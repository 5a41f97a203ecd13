package expreplay

import (
	"errors"

	pkgerrors "github.com/pkg/errors"
)

// ExpReplayError implements errors unique to an experience replay
// buffer.
type ExpReplayError struct {
	Op  string
	Err error
}

// Error satisifes the error interface
func (e *ExpReplayError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

// Unwrap returns the underlying error
func (e *ExpReplayError) Unwrap() error {
	return e.Err
}

var errEmptyBuffer error = errors.New("no episodes in buffer")

var errInsufficientSamples = errors.New("minimum capacity not yet reached")

// IsInsufficientSamples returns whether or not an error reports that
// there are insufficient samples in the buffer to sample from the
// buffer.
//
// A buffer has too few samples to sample if the number of transitions
// it holds is less than its minimum capacity.
func IsInsufficientSamples(err error) bool {
	return errors.Is(pkgerrors.Cause(err), errInsufficientSamples)
}

// IsEmptyBuffer returns whether or not an error reports that a
// replay buffer is empty.
func IsEmptyBuffer(err error) bool {
	return errors.Is(pkgerrors.Cause(err), errEmptyBuffer)
}
