package merge

import (
	"fmt"
	"strings"
)

// Status is the persisted lifecycle state of a MergeItem. The integer values
// are stored in the database and must not be renumbered.
type Status int

const (
	StatusReady      Status = 0
	StatusSubmitting Status = 1
	StatusSubmitted  Status = 2
	StatusDeclared   Status = 3
	StatusLocated    Status = 4
	StatusFinished   Status = 5
	StatusError      Status = 6
)

var statusNames = map[Status]string{
	StatusReady:      "ready",
	StatusSubmitting: "submitting",
	StatusSubmitted:  "submitted",
	StatusDeclared:   "declared",
	StatusLocated:    "located",
	StatusFinished:   "finished",
	StatusError:      "error",
}

// PollOrder is the order in which a sweep visits statuses.
var PollOrder = []Status{
	StatusError,
	StatusFinished,
	StatusLocated,
	StatusDeclared,
	StatusSubmitted,
	StatusReady,
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return fmt.Sprintf("status(%d)", int(s))
}

func ParseStatus(name string) (Status, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for s, n := range statusNames {
		if n == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("unknown status %q", name)
}

// InFlight reports whether a batch job or catalog project may still be
// running for an item in this status.
func (s Status) InFlight() bool {
	return s == StatusSubmitted || s == StatusDeclared
}
