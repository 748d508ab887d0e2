package unit

import "strings"

// Status represents the lifecycle of a work unit.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

var allStatuses = []Status{
	StatusPending,
	StatusProcessing,
	StatusCompleted,
	StatusError,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// allowedTransitions is the lifecycle graph. Forward progress is monotonic;
// the only backward edges are explicit retry (error → processing) and
// explicit cancel (processing → pending).
var allowedTransitions = map[Status][]Status{
	StatusPending:    {StatusProcessing},
	StatusProcessing: {StatusCompleted, StatusError, StatusPending},
	StatusError:      {StatusProcessing},
	StatusCompleted:  {},
}

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a status requires no further action. Only
// completed is terminal; error and pending both require user action.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// Unit is one independently trackable piece of generation work.
//
// InputRef is immutable after creation. OutputRef is present iff the unit
// completed and is overwritten on retry. ErrorDetail is present iff the
// unit errored and is cleared when a retry attempt starts.
type Unit struct {
	ID          int64
	Status      Status
	InputRef    string
	OutputRef   string
	ErrorDetail string

	// FromID/ToID identify the adjacent source units when this unit is a
	// transition between two frames; zero otherwise.
	FromID int64
	ToID   int64
}

// Patch carries the optional field updates applied alongside a status
// transition. Nil pointers leave the current value untouched.
type Patch struct {
	OutputRef   *string
	ErrorDetail *string
}

// StringPtr is a convenience for building patches.
func StringPtr(s string) *string { return &s }

// Aggregate summarizes a collection's statuses for display. Percent is the
// share of completed units, 0-100.
type Aggregate struct {
	Pending    int
	Processing int
	Completed  int
	Error      int
	Total      int
	Percent    float64
}
