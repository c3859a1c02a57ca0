package reconcile

import (
	"fmt"
	"strings"
)

// Status is the closed set of outcomes a payment callback can carry.
// The gateway's free-form sub-status tag is decoded at the boundary;
// anything unrecognized becomes StatusUnknown and never touches the ledger.
type Status string

const (
	StatusCollecting Status = "collecting"
	StatusInProgress Status = "in-progress"
	StatusFailed     Status = "failed"
	StatusCompleted  Status = "completed"
	StatusUnknown    Status = "unknown"
)

// Event is a decoded payment callback delivery.
type Event struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	Params    Params `json:"params"`
}

// DeliveryID identifies one delivery for dedupe purposes. Gateways that
// omit an event id fall back to the call/sub-status/attempt triple.
func (e *Event) DeliveryID() string {
	if e.EventID != "" {
		return e.EventID
	}
	if e.Params.CallID == "" {
		return ""
	}
	return fmt.Sprintf("%s:%s:%d", e.Params.CallID, strings.ToLower(strings.TrimSpace(e.Params.For)), e.Params.Attempt)
}

// Params carries the callback payload. The target fields duplicate what
// the session already knows so orphaned callbacks can still be matched.
type Params struct {
	CallID           string `json:"call_id"`
	For              string `json:"for"`
	ErrorType        string `json:"error_type,omitempty"`
	Attempt          int    `json:"attempt,omitempty"`
	PaymentReference string `json:"payment_reference,omitempty"`
	TargetKind       string `json:"target_kind,omitempty"`
	TargetNumber     string `json:"target_number,omitempty"`
	Amount           string `json:"amount,omitempty"`
	PhoneNumber      string `json:"phone_number,omitempty"`
}

// DecodeStatus maps the gateway's sub-status tag onto the closed enum.
func DecodeStatus(forTag string) Status {
	normalized := strings.ToLower(strings.TrimSpace(forTag))
	switch normalized {
	case "payment-started", "payment-card-collection", "collecting-card", "collecting":
		return StatusCollecting
	case "payment-processing", "payment-in-progress", "in-progress", "requires-retry":
		return StatusInProgress
	case "payment-failed", "failed":
		return StatusFailed
	case "payment-completed", "completed", "succeeded", "success":
		return StatusCompleted
	default:
		return StatusUnknown
	}
}

// Error kinds reported by the gateway on a failed collection.
const (
	ErrorKindCardDeclined      = "card-declined"
	ErrorKindInvalidCardNumber = "invalid-card-number"
	ErrorKindInvalidCardType   = "invalid-card-type"
)
