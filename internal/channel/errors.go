package channel

import "errors"

// Channel error types.
var (
	ErrMissingURL     = errors.New("channel URL cannot be empty")
	ErrChannelClosed  = errors.New("channel is closed")
	ErrAlreadyRunning = errors.New("channel is already running")
	ErrNotConnected   = errors.New("channel is not connected")
	ErrQueueFull      = errors.New("outbound command queue is full")
)
