// Package safego runs fire-and-forget background work without letting a panic
// take the process down. Audit shipping and similar off-request-path fan-out
// run through here: the request that triggered the work has already been
// answered, so the only sane handling for a panic is to log it and keep
// serving.
package safego

import "log/slog"

// Go runs fn in a new goroutine, recovering and logging any panic under the
// given job name. Use it for work whose failure must never reach the caller;
// anything that needs the result should run synchronously instead.
func Go(name string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("background job panicked", "job", name, "panic", r)
			}
		}()
		fn()
	}()
}
