package homework

import "strings"

// Status is the review state of a submission.
type Status int

const (
	// StatusUnknown covers absent, non-string and unrecognized status values.
	StatusUnknown Status = iota
	StatusRejected
	StatusReviewing
	StatusApproved
)

// ParseStatus maps the wire value onto Status. It never fails.
func ParseStatus(raw string) Status {
	switch strings.TrimSpace(raw) {
	case "rejected":
		return StatusRejected
	case "reviewing":
		return StatusReviewing
	case "approved":
		return StatusApproved
	default:
		return StatusUnknown
	}
}

func (s Status) String() string {
	switch s {
	case StatusRejected:
		return "rejected"
	case StatusReviewing:
		return "reviewing"
	case StatusApproved:
		return "approved"
	default:
		return "unknown"
	}
}

// Verdict is the user-facing sentence for s.
func (s Status) Verdict() string {
	switch s {
	case StatusRejected:
		return VerdictRejected
	case StatusReviewing:
		return VerdictReviewing
	case StatusApproved:
		return VerdictApproved
	default:
		return MsgUnknownStatus
	}
}

// Record is one reviewed-submission entry from the status endpoint.
type Record struct {
	Name   string
	Status Status
	// RawStatus is the status as received, for logs.
	RawStatus string
	// Valid is false when homework_name is missing or the entry is not an object.
	Valid bool
}
