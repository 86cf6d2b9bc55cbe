package gevabroker

import "fmt"

// Status is the processing status of a WorkItem. It advances monotonically
// from DoProcess to exactly one of the three terminal states; Ignore marks
// an item the core must never dispatch.
type Status int

const (
	// StatusIgnore marks an item the core must never process.
	StatusIgnore Status = iota
	// StatusDoProcess marks an item queued for processing.
	StatusDoProcess
	// StatusProcessed marks an item that completed successfully; its Results
	// are meaningful only in this state.
	StatusProcessed
	// StatusErrorFlagged marks an item the core (or user code) flagged as
	// failed without an exception — see ErrorText for the reason tag.
	StatusErrorFlagged
	// StatusExceptFlagged marks an item whose Process panicked or returned
	// an error that the core interprets as an exception.
	StatusExceptFlagged
)

var statusNames = [...]string{
	StatusIgnore:        "IGNORE",
	StatusDoProcess:      "DO_PROCESS",
	StatusProcessed:      "PROCESSED",
	StatusErrorFlagged:   "ERROR_FLAGGED",
	StatusExceptFlagged:  "EXCEPT_FLAGGED",
}

func (s Status) String() string {
	if int(s) >= 0 && int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Terminal reports whether s is one of the three terminal states.
func (s Status) Terminal() bool {
	switch s {
	case StatusProcessed, StatusErrorFlagged, StatusExceptFlagged:
		return true
	default:
		return false
	}
}

// MarshalText implements encoding.TextMarshaler so Status serializes as its
// name rather than a bare integer in every codec.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(text []byte) error {
	name := string(text)
	for i, n := range statusNames {
		if n == name {
			*s = Status(i)
			return nil
		}
	}
	return fmt.Errorf("gevabroker: unknown status %q", name)
}
