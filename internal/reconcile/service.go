package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/multierr"

	"github.com/bobbystable/voicepay-backend/internal/ledger"
	"github.com/bobbystable/voicepay-backend/internal/payments"
	"github.com/bobbystable/voicepay-backend/internal/sessions"
	"github.com/bobbystable/voicepay-backend/pkg/enums"
	pkgerrors "github.com/bobbystable/voicepay-backend/pkg/errors"
	"github.com/bobbystable/voicepay-backend/pkg/logger"
	"github.com/bobbystable/voicepay-backend/pkg/metrics"
)

// ReceiptDispatcher sends the post-payment receipt.
type ReceiptDispatcher interface {
	SendReceipt(ctx context.Context, phone, summary string, amount decimal.Decimal, confirmationNumber string) error
}

// ServiceParams configure the callback reconciler.
type ServiceParams struct {
	Sessions *sessions.Store
	Ledger   ledger.Service
	Receipts ReceiptDispatcher
	Metrics  *metrics.PaymentMetrics
	Logger   *logger.Logger
}

// Service turns asynchronous gateway callbacks into a definitive ledger
// state, exactly once per payment.
type Service struct {
	sessions *sessions.Store
	ledger   ledger.Service
	receipts ReceiptDispatcher
	metrics  *metrics.PaymentMetrics
	logg     *logger.Logger
	now      func() time.Time
	newCode  func() string
}

// NewService builds the reconciler.
func NewService(params ServiceParams) (*Service, error) {
	if params.Sessions == nil {
		return nil, fmt.Errorf("session store required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if params.Receipts == nil {
		return nil, fmt.Errorf("receipt dispatcher required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Service{
		sessions: params.Sessions,
		ledger:   params.Ledger,
		receipts: params.Receipts,
		metrics:  params.Metrics,
		logg:     params.Logger,
		now:      time.Now,
		newCode:  payments.NewConfirmationCode,
	}, nil
}

// WithClock overrides the time source. Test hook.
func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// WithCodeSource overrides confirmation code generation. Test hook.
func (s *Service) WithCodeSource(newCode func() string) *Service {
	if newCode != nil {
		s.newCode = newCode
	}
	return s
}

// Outcome is the reconciler's verdict for one callback delivery.
type Outcome struct {
	Status             Status
	Response           string
	ConfirmationNumber string
	EndCall            bool
}

// Handle processes one payment callback.
func (s *Service) Handle(ctx context.Context, event *Event) (*Outcome, error) {
	if event == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event required")
	}

	start := s.now()
	defer func() {
		if s.metrics != nil {
			s.metrics.ObserveReconcile(time.Since(start))
		}
	}()

	callID := event.Params.CallID
	ctx = s.logg.WithCallID(ctx, callID)

	status := DecodeStatus(event.Params.For)
	if s.metrics != nil {
		s.metrics.IncCallbackOutcome(string(status))
	}

	sess, sessionFound := s.sessions.Get(callID)
	if !sessionFound {
		// Session expired, process restarted, or the callback raced the
		// sweep. Recovery continues off the event's own target fields.
		if s.metrics != nil {
			s.metrics.IncOrphanCallback()
		}
		s.logg.Warn(s.logg.WithField(ctx, "status", string(status)), "payment callback arrived with no live session")
	}

	if sessionFound && sess.Step == sessions.StepCompleted && status != StatusCompleted {
		// The gateway retries deliveries for earlier attempts; once the
		// payment settled, a late failed or collecting callback must not
		// regress the session or contradict the charge.
		s.logg.Info(s.logg.WithField(ctx, "status", string(status)), "stale callback after settlement ignored")
		return &Outcome{
			Status:             StatusCompleted,
			ConfirmationNumber: sess.ConfirmationNumber,
			Response:           alreadyProcessedResponse(sess.ConfirmationNumber),
			EndCall:            true,
		}, nil
	}

	switch status {
	case StatusCollecting, StatusInProgress:
		if sessionFound {
			if _, err := s.sessions.UpdateStep(callID, sessions.StepCollectingCard); err != nil {
				s.logg.Error(ctx, "session step update failed", err)
			}
		}
		return &Outcome{Status: status}, nil
	case StatusFailed:
		return s.handleFailed(ctx, callID, sessionFound, event)
	case StatusCompleted:
		return s.handleCompleted(ctx, callID, sess, sessionFound, event)
	default:
		s.logg.Warn(s.logg.WithField(ctx, "for", event.Params.For), "unrecognized payment sub-status")
		return &Outcome{Status: StatusUnknown}, nil
	}
}

// handleFailed records the failure on the session and phrases a reply.
// The ledger is never touched on this path.
func (s *Service) handleFailed(ctx context.Context, callID string, sessionFound bool, event *Event) (*Outcome, error) {
	if sessionFound {
		if _, err := s.sessions.Update(callID, func(ps *sessions.Session) error {
			ps.Step = sessions.StepFailed
			ps.ErrorKind = event.Params.ErrorType
			ps.ErrorAttempt = event.Params.Attempt
			return nil
		}); err != nil {
			s.logg.Error(ctx, "recording failure on session failed", err)
		}
	}

	ctx = s.logg.WithFields(ctx, map[string]any{
		"error_type": event.Params.ErrorType,
		"attempt":    event.Params.Attempt,
	})
	s.logg.Info(ctx, "card collection failed")

	return &Outcome{
		Status:   StatusFailed,
		Response: failureResponse(event.Params.ErrorType),
	}, nil
}

func (s *Service) handleCompleted(ctx context.Context, callID string, sess sessions.Session, sessionFound bool, event *Event) (*Outcome, error) {
	target := sess.Target
	if target.IsZero() {
		kind, err := enums.ParseTargetKind(event.Params.TargetKind)
		if err != nil || event.Params.TargetNumber == "" {
			s.logg.Error(ctx, "completed callback has no resolvable target", err)
			return &Outcome{
				Status:   StatusCompleted,
				Response: "I'm sorry, something went wrong finalizing your payment. Please contact the restaurant to confirm.",
			}, pkgerrors.New(pkgerrors.CodeValidation, "completed callback has no resolvable target")
		}
		target = sessions.Target{Kind: kind, Number: event.Params.TargetNumber}
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"target_kind":   target.Kind,
		"target_number": target.Number,
	})

	payable, err := s.ledger.FindByNumber(ctx, target.Kind, target.Number)
	if err != nil {
		s.logg.Error(ctx, "ledger lookup failed during reconciliation", err)
		return &Outcome{
			Status:   StatusCompleted,
			Response: "I'm sorry, something went wrong finalizing your payment. Please contact the restaurant to confirm.",
		}, err
	}
	if payable == nil {
		err := pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("no %s %s to reconcile", target.Kind, target.Number))
		s.logg.Error(ctx, "reconcile target not found", err)
		return &Outcome{
			Status:   StatusCompleted,
			Response: "I'm sorry, something went wrong finalizing your payment. Please contact the restaurant to confirm.",
		}, err
	}

	if payable.Paid() {
		// Duplicate delivery: report the original confirmation, write
		// nothing, send no second receipt.
		s.logg.Info(ctx, "duplicate completed callback, returning existing confirmation")
		if sessionFound {
			s.completeSession(ctx, callID, payable.ConfirmationNumber)
		}
		return &Outcome{
			Status:             StatusCompleted,
			ConfirmationNumber: payable.ConfirmationNumber,
			Response:           alreadyProcessedResponse(payable.ConfirmationNumber),
			EndCall:            true,
		}, nil
	}

	amount := s.amountFor(sess, payable, event)
	code := s.newCode()
	stored := payments.StoredCode(code)

	// Step one, authoritative: the single ledger write.
	updated, err := s.ledger.MarkPaid(ctx, target.Kind, target.Number, ledger.PaymentUpdate{
		Amount:             amount,
		Reference:          event.Params.PaymentReference,
		ConfirmationNumber: stored,
		PaidAt:             s.now(),
	})
	if err != nil {
		s.logg.Error(ctx, "ledger write failed", err)
		return &Outcome{
			Status:   StatusCompleted,
			Response: "I'm sorry, something went wrong finalizing your payment. Please contact the restaurant to confirm.",
		}, err
	}
	if !updated {
		// Lost a race with a concurrent delivery; the other write won.
		refreshed, refreshErr := s.ledger.FindByNumber(ctx, target.Kind, target.Number)
		if refreshErr == nil && refreshed != nil {
			stored = refreshed.ConfirmationNumber
		}
		s.logg.Info(ctx, "ledger already settled by a concurrent delivery")
		if sessionFound {
			s.completeSession(ctx, callID, stored)
		}
		return &Outcome{
			Status:             StatusCompleted,
			ConfirmationNumber: stored,
			Response:           s.successResponse(amount, stored),
			EndCall:            true,
		}, nil
	}

	// Steps two and three are best-effort. The charge stands even when
	// the receipt or session bookkeeping fails; failures are logged.
	var followUp error
	phone := sess.PhoneNumber
	if phone == "" {
		phone = payable.Phone
	}
	if phone != "" {
		if err := s.receipts.SendReceipt(ctx, phone, payable.Describe(), amount, stored); err != nil {
			followUp = multierr.Append(followUp, fmt.Errorf("receipt dispatch: %w", err))
		}
	} else {
		s.logg.Warn(ctx, "no phone number for receipt, skipping dispatch")
	}
	if sessionFound {
		if err := s.completeSession(ctx, callID, stored); err != nil {
			followUp = multierr.Append(followUp, fmt.Errorf("session completion: %w", err))
		}
	}
	if followUp != nil {
		s.logg.Error(ctx, "post-payment follow-up partially failed", followUp)
	}

	s.logg.Info(s.logg.WithField(ctx, "confirmation_number", stored), "payment reconciled")
	return &Outcome{
		Status:             StatusCompleted,
		ConfirmationNumber: stored,
		Response:           s.successResponse(amount, stored),
		EndCall:            true,
	}, nil
}

func (s *Service) completeSession(ctx context.Context, callID, confirmationNumber string) error {
	_, err := s.sessions.Update(callID, func(ps *sessions.Session) error {
		ps.Step = sessions.StepCompleted
		if ps.ConfirmationNumber == "" {
			ps.ConfirmationNumber = confirmationNumber
		}
		return nil
	})
	if err != nil {
		s.logg.Error(ctx, "marking session completed failed", err)
	}
	return err
}

// amountFor prefers the amount the customer confirmed, then the ledger
// total, then whatever the event itself carried.
func (s *Service) amountFor(sess sessions.Session, payable *ledger.Payable, event *Event) decimal.Decimal {
	if sess.Amount.IsPositive() {
		return sess.Amount
	}
	if payable != nil && payable.Total.IsPositive() {
		return payable.Total
	}
	if event.Params.Amount != "" {
		if parsed, err := decimal.NewFromString(event.Params.Amount); err == nil {
			return parsed
		}
	}
	return decimal.Zero
}

func (s *Service) successResponse(amount decimal.Decimal, confirmationNumber string) string {
	return fmt.Sprintf(
		"Your payment of $%s has been processed successfully. Your confirmation code is %s. We'll text you a receipt shortly. Thank you, and we look forward to seeing you at Bobby's Table!",
		amount.StringFixed(2), payments.SpokenCode(confirmationNumber),
	)
}

func alreadyProcessedResponse(confirmationNumber string) string {
	return fmt.Sprintf(
		"Your payment has already been processed. Your confirmation code is %s.",
		payments.SpokenCode(confirmationNumber),
	)
}

// failureResponse translates gateway error kinds into actionable spoken
// phrasing. A raw error code is never read to the caller.
func failureResponse(errorType string) string {
	switch errorType {
	case ErrorKindCardDeclined:
		return "I'm sorry, your bank declined that card. You could try a different card, or pay when you arrive at the restaurant."
	case ErrorKindInvalidCardNumber:
		return "I'm sorry, that card number wasn't recognized. Let's try entering it again, digit by digit."
	case ErrorKindInvalidCardType:
		return "I'm sorry, we can't accept that card brand. We take Visa, Mastercard, American Express, and Discover."
	default:
		return "I'm sorry, there was a problem processing your card. Would you like to try again, or pay when you arrive?"
	}
}
