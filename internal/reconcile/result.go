package reconcile

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Flow names one of the sync runs.
type Flow string

const (
	FlowImport   Flow = "import"
	FlowExport   Flow = "export"
	FlowBookings Flow = "bookings"
)

func ParseFlow(s string) (Flow, error) {
	switch f := Flow(s); f {
	case FlowImport, FlowExport, FlowBookings:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFlow, s)
	}
}

type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomePartial Outcome = "partial"
	OutcomeFailure Outcome = "failure"
)

// Failure is one item that could not be synced.
type Failure struct {
	ItemID string `json:"item_id"`
	Reason string `json:"reason"`
}

// Result is the outcome of one run. Message is the human status written to
// the profile; the rest is for machines.
type Result struct {
	Flow       Flow      `json:"flow"`
	ProfileID  uuid.UUID `json:"profile_id"`
	Outcome    Outcome   `json:"outcome"`
	Fetched    int       `json:"fetched"`
	Created    int       `json:"created"`
	Skipped    int       `json:"skipped"`
	Failed     int       `json:"failed"`
	Failures   []Failure `json:"failures,omitempty"`
	Warnings   []string  `json:"warnings,omitempty"`
	Message    string    `json:"message"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	now func() time.Time
}

func newResult(flow Flow, profileID uuid.UUID, now func() time.Time) *Result {
	return &Result{Flow: flow, ProfileID: profileID, StartedAt: now(), now: now}
}

func (r *Result) addFailure(itemID, reason string) {
	r.Failed++
	r.Failures = append(r.Failures, Failure{ItemID: itemID, Reason: reason})
}

func (r *Result) warn(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// fail ends a run that stopped before finishing its work.
func (r *Result) fail(msg string) *Result {
	r.Outcome = OutcomeFailure
	r.Message = msg
	r.FinishedAt = r.now()
	return r
}

// finish ends a run that went through every candidate.
func (r *Result) finish(msg string) *Result {
	switch {
	case r.Failed == 0:
		r.Outcome = OutcomeSuccess
	case r.Created > 0:
		r.Outcome = OutcomePartial
	default:
		r.Outcome = OutcomeFailure
	}
	r.Message = msg
	r.FinishedAt = r.now()
	return r
}
