package receipts

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/bobbystable/voicepay-backend/pkg/logger"
)

// SMSSender delivers a single text message.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// Service sends payment receipts over SMS. Dispatch is best-effort; a
// failed receipt never unwinds the charge it describes.
type Service struct {
	sender SMSSender
	logg   *logger.Logger
}

// NewService builds a receipt service.
func NewService(sender SMSSender, logg *logger.Logger) (*Service, error) {
	if sender == nil {
		return nil, fmt.Errorf("sms sender required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Service{sender: sender, logg: logg}, nil
}

// SendReceipt texts a minimal payment receipt to the customer.
func (s *Service) SendReceipt(ctx context.Context, phone, summary string, amount decimal.Decimal, confirmationNumber string) error {
	if phone == "" {
		return fmt.Errorf("receipt phone number is required")
	}

	body := fmt.Sprintf(
		"Bobby's Table: payment of $%s received for %s. Confirmation %s. Thank you!",
		amount.StringFixed(2), summary, confirmationNumber,
	)

	if err := s.sender.SendSMS(ctx, phone, body); err != nil {
		return fmt.Errorf("send receipt: %w", err)
	}

	s.logg.Info(s.logg.WithField(ctx, "confirmation_number", confirmationNumber), "receipt dispatched")
	return nil
}
