package taskq

import "errors"

var (
	// ErrInvalidQueue is returned when a queue index is out of range.
	ErrInvalidQueue = errors.New("taskq: invalid queue index")
	// ErrInvalidQueueCount is returned when the number of priority queues
	// is not between 1 and 9.
	ErrInvalidQueueCount = errors.New("taskq: queue count must be between 1 and 9")
	// ErrInvalidValue is returned for task or result values that are not
	// valid UTF-8.
	ErrInvalidValue = errors.New("taskq: value is not valid UTF-8")
	// ErrClosed is returned by the operations of a closed node.
	ErrClosed = errors.New("taskq: node is closed")
)
