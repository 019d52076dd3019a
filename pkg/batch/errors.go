package batch

import (
	"errors"
	"fmt"
)

var (
	ErrClosed             = errors.New("batch: scheduler closed")
	ErrQueueFull          = errors.New("batch: queue full")
	ErrLengthMismatch     = errors.New("batch: input length mismatch")
	ErrUnknownGate        = errors.New("batch: unknown gate")
	ErrUnknownOp          = errors.New("batch: unknown operation")
	ErrBackendUnavailable = errors.New("batch: backend unavailable")
)

func lengthMismatch(a, b int) error {
	return fmt.Errorf("%w: %d vs %d", ErrLengthMismatch, a, b)
}
