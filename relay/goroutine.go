package relay

import (
	"fmt"
	"runtime/debug"
)

// Go runs the given function in a separate goroutine and recovers from any
// panic, logging the panic message and stack trace with logger.
//
// Usage:
//
//	Go(logger, func() {
//	    // Your code here
//	})
func Go(logger Logger, f func()) {
	if logger == nil {
		logger = NoopLogger()
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				panicErr := fmt.Errorf("Panic recovered: %v\n%s", r, debug.Stack())
				logger.Error(panicErr)
			}
		}()
		f()
	}()
}
