package observability

import (
	"fmt"
	"os"
	"runtime/debug"
)

// PanicError is returned by RecoverToError when a job panics
type PanicError struct {
	Value interface{}
	Stack string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// RecoverPanic recovers from a panic and logs it with structured logging.
// It must be called directly in a defer statement. The panic is not re-raised.
//
//	defer observability.RecoverPanic(logger, "health server")
func RecoverPanic(logger *Logger, component string) {
	if r := recover(); r != nil {
		logPanic(logger, component, r, string(debug.Stack()))
	}
}

// RecoverToError converts a panic into a *PanicError stored in errp, after
// logging it. Use it where a panic should count as a failed run rather than
// take down the scheduler.
//
//	func run(ctx context.Context) (err error) {
//	    defer observability.RecoverToError(&err, logger, "trending")
//	    return job.Run(ctx)
//	}
func RecoverToError(errp *error, logger *Logger, component string) {
	if r := recover(); r != nil {
		stack := string(debug.Stack())
		logPanic(logger, component, r, stack)
		if errp != nil {
			*errp = &PanicError{Value: r, Stack: stack}
		}
	}
}

func logPanic(logger *Logger, component string, value interface{}, stack string) {
	if logger == nil {
		logger = NewLogger(ErrorLevel, os.Stderr)
	}
	logger.WithFields(map[string]interface{}{
		"panic":     fmt.Sprint(value),
		"stack":     stack,
		"component": component,
	}).Error("PANIC recovered")
}
