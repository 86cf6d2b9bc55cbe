// Package gevabroker implements the distributed work-dispatch core of an
// optimization framework: a process-wide Broker that matches producer-side
// BufferPorts with Consumers, an Executor façade that hides the Broker from
// the algorithm layer, and (in the tcp subpackage) a networked Consumer that
// transports WorkItems to remote worker processes.
package gevabroker

import "context"

// CourtierID names a WorkItem uniquely within its owning Executor: the
// submission it was stamped in, and its position within that submission's
// batch. It is immutable between submission and reconciliation.
type CourtierID struct {
	SubmissionID uint64
	Position     int
}

// Result is one (raw, transformed) numeric outcome of processing a WorkItem.
// A WorkItem may carry more than one, e.g. one per optimization target.
type Result struct {
	Raw         float64
	Transformed float64
}

// WorkItem is the opaque unit of work the core transports between an
// Executor and its Consumers. Concrete types live in the algorithm layer;
// the core only ever calls the operations below. See codec.Registerable
// for the additional methods a WorkItem must implement to cross the wire.
type WorkItem interface {
	// Process runs the user-supplied evaluation and records its results via
	// SetResults. If it returns nil and leaves the status at DO_PROCESS, the
	// core marks the item PROCESSED. A returned error wrapped by UserFlagged
	// becomes ERROR_FLAGGED; any other non-nil error (or a panic) is
	// interpreted as an exception (status EXCEPT_FLAGGED) and is never
	// re-thrown.
	Process(ctx context.Context) error

	// Clone returns an independent deep copy of the user-owned fields only
	// (status reset to DO_PROCESS, courtier id/attempts/results/errorText
	// left at zero value); the Executor stamps the courtier id itself
	// before handing the clone to a Consumer. Used on every BROKERED
	// attempt, not just resubmissions, so the algorithm's original object
	// is never shared with a Consumer goroutine.
	Clone() WorkItem

	Status() Status
	SetStatus(Status)

	CourtierID() CourtierID
	SetCourtierID(CourtierID)

	Attempts() int
	IncrementAttempts()

	ErrorText() string
	SetErrorText(string)

	Results() []Result
	SetResults([]Result)
}
