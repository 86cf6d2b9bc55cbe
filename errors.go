package gevabroker

import "errors"

// Namespace prefixes every sentinel error string, in the style of the
// teacher library's own error namespace.
const Namespace = "gevabroker"

var (
	// ErrInvalidConfig is returned by ValidateConfig and NewExecutor when a
	// configuration error is detected; per spec.md §7 this is fatal.
	ErrInvalidConfig = errors.New(Namespace + ": invalid configuration")

	// ErrBrokerNotRunning is returned by enrollment calls made while the
	// Broker is not in the RUNNING state.
	ErrBrokerNotRunning = errors.New(Namespace + ": broker is not running")

	// ErrBrokerShuttingDown names the state in which Broker.GetRaw no longer
	// serves items (shutdown grace period expired). GetRaw itself does not
	// return it: it reports that state as a false ok value.
	ErrBrokerShuttingDown = errors.New(Namespace + ": broker is shutting down")

	// ErrPortOrphaned names the state of a BufferPort whose enrollment token
	// has been released. The BufferPort push operations do not return it:
	// they report that state as false.
	ErrPortOrphaned = errors.New(Namespace + ": buffer port is orphaned")

	// ErrUnknownWaitPolicy is returned by Executor construction when an
	// unrecognized WaitPolicy value is supplied.
	ErrUnknownWaitPolicy = errors.New(Namespace + ": unknown wait policy")
)

// ErrorKind tags the reason a WorkItem ended in a non-PROCESSED terminal
// state, per spec.md §7's vocabulary of observable error kinds.
type ErrorKind string

const (
	// ErrorKindBackpressure: the producer (Executor) could not enqueue the
	// item onto its raw queue before its push timeout elapsed. The Broker's
	// own full-queue case uses ErrorKindProcessedQueueFull instead.
	ErrorKindBackpressure ErrorKind = "backpressure"
	// ErrorKindTimeout: the item was not returned before its submission's
	// deadline.
	ErrorKindTimeout ErrorKind = "timeout"
	// ErrorKindCancelled: the algorithm cancelled the submission before the
	// item returned.
	ErrorKindCancelled ErrorKind = "cancelled"
	// ErrorKindDrained: the item was dropped by the Broker while DRAINING.
	ErrorKindDrained ErrorKind = "drained"
	// ErrorKindProcessedQueueFull: put_processed could not enqueue the item
	// before the Broker's configured wait elapsed.
	ErrorKindProcessedQueueFull ErrorKind = "processed queue full"
	// ErrorKindException: Process returned an error or panicked.
	ErrorKindException ErrorKind = "exception"
	// ErrorKindUserFlagged: user code explicitly flagged the item as
	// failed without an exception.
	ErrorKindUserFlagged ErrorKind = "user flagged"
)
