package observability

import "runtime/debug"

// RecoverPanic, deferred at the top of a background task, recovers a panic
// and logs it with the stack trace instead of letting it take the process
// down. where names the task for the log line. The panic is not re-raised.
func RecoverPanic(logger *Logger, where string) {
	if r := recover(); r != nil {
		logger.WithFields(map[string]interface{}{
			"panic": r,
			"stack": string(debug.Stack()),
			"task":  where,
		}).Error("panic recovered")
	}
}
