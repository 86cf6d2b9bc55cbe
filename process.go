package gevabroker

import (
	"context"
	"fmt"
)

// userFlaggedError marks a Process failure as explicitly user-signalled
// rather than an unexpected exception, per spec.md §7's distinct
// "user-flagged error" kind.
type userFlaggedError struct{ err error }

func (e *userFlaggedError) Error() string { return e.err.Error() }
func (e *userFlaggedError) Unwrap() error { return e.err }

// UserFlagged wraps err so that the core records it as ERROR_FLAGGED
// (tagged ErrorKindUserFlagged) instead of EXCEPT_FLAGGED when returned
// from a WorkItem's Process method.
func UserFlagged(err error) error {
	if err == nil {
		return nil
	}
	return &userFlaggedError{err: err}
}

// ProcessItem runs item.Process and interprets its outcome into a terminal
// status exactly as the in-process Consumer and the THREADED/SERIAL
// Executor do, so a remote Consumer (the tcp package's Client) produces
// byte-identical status/error-text semantics to a local one.
func ProcessItem(ctx context.Context, item WorkItem) {
	processOne(item, func() error { return item.Process(ctx) })
}

// processOne runs item.Process, incrementing its attempt counter first,
// and interprets the outcome into a terminal status, per spec.md §4.1's
// failure semantics: Process never propagates a panic or error past this
// point. If Process leaves the item's status at DO_PROCESS and returns no
// error, the item is considered PROCESSED.
func processOne(item WorkItem, run func() error) {
	item.IncrementAttempts()

	defer func() {
		if r := recover(); r != nil {
			markFlagged(item, StatusExceptFlagged, fmt.Sprintf("panic: %v", r), ErrorKindException)
		}
	}()

	err := run()
	switch {
	case err == nil:
		if item.Status() == StatusDoProcess {
			item.SetStatus(StatusProcessed)
		}
	default:
		if uf, ok := err.(*userFlaggedError); ok {
			markFlagged(item, StatusErrorFlagged, uf.Error(), ErrorKindUserFlagged)
			return
		}
		markFlagged(item, StatusExceptFlagged, err.Error(), ErrorKindException)
	}
}
