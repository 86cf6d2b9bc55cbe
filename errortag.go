package gevabroker

import (
	"errors"
	"fmt"

	"github.com/ygrebnov/errorc"
)

// TaggedError exposes correlation metadata for a WorkItem failure: which
// courtier id it happened to and which of spec.md §7's error kinds it is.
// Adapted from the teacher's TaskMetaError/taskTaggedError (error_tagging.go),
// generalized from (task id, task index) to (courtier id, error kind).
type TaggedError interface {
	error
	Unwrap() error
	Courtier() (CourtierID, bool)
	Kind() (ErrorKind, bool)
}

type taggedError struct {
	err      error
	courtier CourtierID
	hasCID   bool
	kind     ErrorKind
}

// tagError wraps reason as a TaggedError carrying courtier and kind,
// building the underlying error via errorc so the kind and courtier id are
// also visible to anything inspecting the error's own context, not just
// through the TaggedError accessors below.
func tagError(reason string, courtier CourtierID, kind ErrorKind) error {
	base := errorc.New(reason, "errorKind", string(kind), "submissionID", courtier.SubmissionID, "position", courtier.Position)
	return &taggedError{err: base, courtier: courtier, hasCID: true, kind: kind}
}

// tagWrapped is like tagError but wraps an existing cause instead of
// constructing a fresh message, used when the core already has a concrete
// error to report (e.g. a deserialization failure) and only needs to
// attach courtier/kind metadata.
func tagWrapped(cause error, courtier CourtierID, kind ErrorKind) error {
	if cause == nil {
		return nil
	}
	wrapped := errorc.New(cause.Error(), "errorKind", string(kind), "submissionID", courtier.SubmissionID, "position", courtier.Position)
	return &taggedError{err: wrapped, courtier: courtier, hasCID: true, kind: kind}
}

func (e *taggedError) Error() string { return e.err.Error() }
func (e *taggedError) Unwrap() error { return e.err }

func (e *taggedError) Courtier() (CourtierID, bool) { return e.courtier, e.hasCID }
func (e *taggedError) Kind() (ErrorKind, bool)      { return e.kind, e.kind != "" }

func (e *taggedError) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			_, _ = fmt.Fprintf(s, "workitem(sub=%d,pos=%d,kind=%s): %+v",
				e.courtier.SubmissionID, e.courtier.Position, e.kind, e.err)
			return
		}
		fallthrough
	case 's':
		_, _ = fmt.Fprint(s, e.Error())
	case 'q':
		_, _ = fmt.Fprintf(s, "%q", e.Error())
	}
}

// WrapDecodeError tags cause with kind and courtier (zero-valued if not yet
// known, e.g. before a wire envelope has been decoded far enough to read
// one) for callers outside this package that need TaggedError's
// Courtier/Kind accessors on an error that originates from codec decoding
// rather than from a WorkItem's Process — the tcp package's Server uses
// this on a RESULT frame it could not decode, before NACKing and dropping
// the item.
func WrapDecodeError(cause error, courtier CourtierID, kind ErrorKind) error {
	return tagWrapped(cause, courtier, kind)
}

// ExtractCourtierID returns the courtier id carried by err, if any.
func ExtractCourtierID(err error) (CourtierID, bool) {
	var te TaggedError
	if errors.As(err, &te) {
		return te.Courtier()
	}
	return CourtierID{}, false
}

// ExtractErrorKind returns the ErrorKind carried by err, if any.
func ExtractErrorKind(err error) (ErrorKind, bool) {
	var te TaggedError
	if errors.As(err, &te) {
		return te.Kind()
	}
	return "", false
}

// markFlagged sets item's status and error text from a tagged reason,
// stamping it onto the item's courtier id, and returns the TaggedError so
// the caller (Broker/Executor) can also log or count it by kind.
func markFlagged(item WorkItem, status Status, reason string, kind ErrorKind) error {
	tagged := tagError(reason, item.CourtierID(), kind)
	item.SetStatus(status)
	item.SetErrorText(tagged.Error())
	return tagged
}
