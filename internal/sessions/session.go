package sessions

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/bobbystable/voicepay-backend/pkg/enums"
)

// Step tracks how far a payment conversation has progressed.
type Step string

const (
	StepStarted              Step = "STARTED"
	StepAwaitingConfirmation Step = "AWAITING_CONFIRMATION"
	StepConfirmed            Step = "CONFIRMED"
	StepCollectingCard       Step = "COLLECTING_CARD"
	StepCompleted            Step = "COMPLETED"
	StepFailed               Step = "FAILED"
	StepCancelled            Step = "CANCELLED"
)

var stepRank = map[Step]int{
	StepStarted:              0,
	StepAwaitingConfirmation: 1,
	StepConfirmed:            2,
	StepCollectingCard:       3,
	StepCompleted:            4,
	StepFailed:               4,
	StepCancelled:            4,
}

// Rank orders steps so invariants can compare progress.
func (s Step) Rank() int {
	if rank, ok := stepRank[s]; ok {
		return rank
	}
	return 0
}

// Terminal reports whether the step ends the payment flow.
func (s Step) Terminal() bool {
	return s == StepCompleted || s == StepFailed || s == StepCancelled
}

// Target identifies the bill a payment applies to.
type Target struct {
	Kind   enums.TargetKind `json:"kind"`
	Number string           `json:"number"`
}

// IsZero reports whether no target has been resolved yet.
func (t Target) IsZero() bool {
	return t.Kind == "" && t.Number == ""
}

// Session is the per-call payment record shared between conversation
// turns and webhook callbacks.
type Session struct {
	CallID             string          `json:"call_id"`
	Target             Target          `json:"target"`
	Step               Step            `json:"step"`
	CardholderName     string          `json:"cardholder_name,omitempty"`
	PhoneNumber        string          `json:"phone_number,omitempty"`
	Amount             decimal.Decimal `json:"amount"`
	ConfirmationNumber string          `json:"confirmation_number,omitempty"`
	ErrorKind          string          `json:"error_kind,omitempty"`
	ErrorAttempt       int             `json:"error_attempt,omitempty"`
	StartedAt          time.Time       `json:"started_at"`
	LastUpdated        time.Time       `json:"last_updated"`
}
