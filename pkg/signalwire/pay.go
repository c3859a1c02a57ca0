package signalwire

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/bobbystable/voicepay-backend/pkg/enums"
)

const (
	payInput          = "dtmf"
	acceptedCardTypes = "visa mastercard amex discover"
)

// PayParams describe a single card collection pass on a live call.
type PayParams struct {
	Amount       decimal.Decimal
	Currency     string
	Description  string
	TargetKind   enums.TargetKind
	TargetNumber string
	PaymentType  string
	MaxAttempts  int
	Timeout      int
}

// PayParameter is a name/value pair relayed back on the payment callback.
type PayParameter struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// payVerb is the wire shape of the pay instruction.
type payVerb struct {
	PaymentConnectorURL string         `json:"payment_connector_url"`
	Input               string         `json:"input"`
	ChargeAmount        string         `json:"charge_amount"`
	Currency            string         `json:"currency"`
	Description         string         `json:"description,omitempty"`
	MaxAttempts         int            `json:"max_attempts"`
	Timeout             int            `json:"timeout"`
	SecurityCode        bool           `json:"security_code"`
	PostalCode          bool           `json:"postal_code"`
	ValidCardTypes      string         `json:"valid_card_types"`
	Parameters          []PayParameter `json:"parameters,omitempty"`
}

// BuildPay assembles the pay verb that collects card digits over dtmf.
// The charge amount is always rendered with exactly two decimals.
func (c *Client) BuildPay(params PayParams) (map[string]any, error) {
	if c == nil || c.connectorURL == "" {
		return nil, fmt.Errorf("payment connector url is not configured")
	}
	if !params.Amount.IsPositive() {
		return nil, fmt.Errorf("charge amount must be positive, got %s", params.Amount)
	}
	if !params.TargetKind.IsValid() {
		return nil, fmt.Errorf("invalid target kind %q", params.TargetKind)
	}
	if params.TargetNumber == "" {
		return nil, fmt.Errorf("target number is required")
	}

	currency := params.Currency
	if currency == "" {
		currency = "usd"
	}
	maxAttempts := params.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = 10
	}

	verb := payVerb{
		PaymentConnectorURL: c.connectorURL,
		Input:               payInput,
		ChargeAmount:        params.Amount.StringFixed(2),
		Currency:            currency,
		Description:         params.Description,
		MaxAttempts:         maxAttempts,
		Timeout:             timeout,
		SecurityCode:        true,
		PostalCode:          false,
		ValidCardTypes:      acceptedCardTypes,
		Parameters: []PayParameter{
			{Name: "target_kind", Value: string(params.TargetKind)},
			{Name: "target_number", Value: params.TargetNumber},
			{Name: "payment_type", Value: params.PaymentType},
		},
	}

	return map[string]any{"pay": verb}, nil
}

// SWML wraps instructions in a minimal executable document.
func SWML(instructions ...map[string]any) map[string]any {
	main := make([]any, 0, len(instructions))
	for _, instruction := range instructions {
		if instruction == nil {
			continue
		}
		main = append(main, instruction)
	}
	return map[string]any{
		"version":  "1.0.0",
		"sections": map[string]any{"main": main},
	}
}
