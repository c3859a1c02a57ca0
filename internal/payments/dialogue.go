package payments

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/bobbystable/voicepay-backend/internal/ledger"
	"github.com/bobbystable/voicepay-backend/internal/sessions"
	"github.com/bobbystable/voicepay-backend/pkg/enums"
	pkgerrors "github.com/bobbystable/voicepay-backend/pkg/errors"
	"github.com/bobbystable/voicepay-backend/pkg/logger"
	"github.com/bobbystable/voicepay-backend/pkg/metrics"
	"github.com/bobbystable/voicepay-backend/pkg/signalwire"
)

// CardCollector schedules card collection on the live call. The build
// returns immediately; the outcome arrives later on the payment webhook.
type CardCollector interface {
	BuildPay(params signalwire.PayParams) (map[string]any, error)
}

// paymentFunctions are the only functions allowed through while a
// payment is past the confirmation step.
var paymentFunctions = map[string]bool{
	"pay_reservation":  true,
	"pay_order":        true,
	"get_card_details": true,
}

// IsPaymentFunction reports whether the named function belongs to the
// payment flow.
func IsPaymentFunction(name string) bool {
	return paymentFunctions[name]
}

// ServiceParams configure the confirmation dialogue.
type ServiceParams struct {
	Sessions       *sessions.Store
	Ledger         ledger.Service
	Collector      CardCollector
	Metrics        *metrics.PaymentMetrics
	Logger         *logger.Logger
	Currency       string
	MaxAttempts    int
	CollectTimeout int
}

// Service walks one phone call through target resolution, explicit
// consent, and the hand-off to card collection.
type Service struct {
	sessions       *sessions.Store
	ledger         ledger.Service
	collector      CardCollector
	metrics        *metrics.PaymentMetrics
	logg           *logger.Logger
	currency       string
	maxAttempts    int
	collectTimeout int
}

// NewService builds the dialogue service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Sessions == nil {
		return nil, fmt.Errorf("session store required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if params.Collector == nil {
		return nil, fmt.Errorf("card collector required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	currency := params.Currency
	if currency == "" {
		currency = "usd"
	}
	return &Service{
		sessions:       params.Sessions,
		ledger:         params.Ledger,
		collector:      params.Collector,
		metrics:        params.Metrics,
		logg:           params.Logger,
		currency:       currency,
		maxAttempts:    params.MaxAttempts,
		collectTimeout: params.CollectTimeout,
	}, nil
}

// AdvanceInput is one conversation turn aimed at the payment flow.
type AdvanceInput struct {
	CallID           string
	ConversationID   string
	TargetKind       enums.TargetKind
	TargetNumber     string
	CardholderName   string
	PhoneNumber      string
	RecentUtterances []string
	MetaData         map[string]any
}

// Result is what the conversation relays back to the caller.
type Result struct {
	Response string
	Actions  []map[string]any
	MetaData map[string]any
}

// Advance runs one turn of the confirmation dialogue. It never blocks on
// card collection; entering COLLECTING_CARD only schedules it.
func (s *Service) Advance(ctx context.Context, input AdvanceInput) (*Result, error) {
	if input.CallID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "call id is required")
	}
	ctx = s.logg.WithCallID(ctx, input.CallID)

	if sess, ok := s.sessions.Get(input.CallID); ok && sess.Step == sessions.StepCompleted {
		s.logg.Info(ctx, "payment already completed, reporting existing confirmation")
		return s.completedResult(sess), nil
	}

	target := s.resolveTarget(input)
	if target.IsZero() {
		return &Result{
			Response: "I'd be happy to take care of that payment. Could you give me your reservation or order number? It's the six digit number from your confirmation.",
			MetaData: map[string]any{"payment_step": "NEED_TARGET"},
		}, nil
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"target_kind":   target.Kind,
		"target_number": target.Number,
	})

	payable, err := s.ledger.FindByNumber(ctx, target.Kind, target.Number)
	if err != nil {
		s.logg.Error(ctx, "ledger lookup failed", err)
		return &Result{
			Response: "I'm sorry, I'm having trouble looking that up right now. Could you try again in a moment?",
		}, nil
	}
	if payable == nil {
		return &Result{
			Response: fmt.Sprintf("I couldn't find a %s with the number %s. Could you double check that number for me?", target.Kind, spokenDigits(target.Number)),
			MetaData: map[string]any{"payment_step": "NEED_TARGET"},
		}, nil
	}

	if payable.Paid() {
		return s.handleAlreadyPaid(ctx, input.CallID, target, payable)
	}

	sess, err := s.sessions.Start(input.CallID, target)
	if err != nil {
		return nil, err
	}
	if sess.Step == sessions.StepStarted && s.metrics != nil {
		s.metrics.IncSessionStarted()
	}

	sess, err = s.sessions.Update(input.CallID, func(ps *sessions.Session) error {
		// The name on the ledger record wins; the caller already
		// identified themselves by looking the target up.
		if payable.Name != "" {
			ps.CardholderName = payable.Name
		} else if ps.CardholderName == "" {
			ps.CardholderName = input.CardholderName
		}
		if ps.PhoneNumber == "" {
			if input.PhoneNumber != "" {
				ps.PhoneNumber = input.PhoneNumber
			} else {
				ps.PhoneNumber = payable.Phone
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	switch sess.Step {
	case sessions.StepStarted:
		return s.askForConsent(ctx, input.CallID, payable)
	case sessions.StepAwaitingConfirmation:
		return s.handleConsent(ctx, input.CallID, sess, payable, input.RecentUtterances)
	case sessions.StepConfirmed:
		return s.dispatchCollection(ctx, input.CallID, sess, payable)
	case sessions.StepFailed:
		// Retry path: the customer wants another attempt after a decline.
		sess, err = s.sessions.UpdateStep(input.CallID, sessions.StepConfirmed)
		if err != nil {
			return nil, err
		}
		return s.dispatchCollection(ctx, input.CallID, sess, payable)
	case sessions.StepCollectingCard:
		return &Result{
			Response: "I'm still processing your card details. One moment please.",
			MetaData: s.metaPatch(sess),
		}, nil
	default:
		return s.askForConsent(ctx, input.CallID, payable)
	}
}

func (s *Service) resolveTarget(input AdvanceInput) sessions.Target {
	if input.TargetNumber != "" && input.TargetKind.IsValid() {
		return sessions.Target{Kind: input.TargetKind, Number: input.TargetNumber}
	}
	if sess, ok := s.sessions.Get(input.CallID); ok && !sess.Target.IsZero() {
		return sess.Target
	}
	if input.MetaData != nil {
		kind, _ := input.MetaData["payment_target_kind"].(string)
		number, _ := input.MetaData["payment_target_number"].(string)
		if parsed, err := enums.ParseTargetKind(kind); err == nil && number != "" {
			return sessions.Target{Kind: parsed, Number: number}
		}
	}
	if input.TargetKind.IsValid() {
		if number := ExtractTargetNumber(input.RecentUtterances); number != "" {
			return sessions.Target{Kind: input.TargetKind, Number: number}
		}
	}
	return sessions.Target{}
}

func (s *Service) handleAlreadyPaid(ctx context.Context, callID string, target sessions.Target, payable *ledger.Payable) (*Result, error) {
	sess, err := s.sessions.Start(callID, target)
	if err != nil {
		return nil, err
	}
	sess, err = s.sessions.Update(callID, func(ps *sessions.Session) error {
		ps.Step = sessions.StepCompleted
		if ps.ConfirmationNumber == "" {
			ps.ConfirmationNumber = payable.ConfirmationNumber
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(ctx, "target already paid, short-circuiting dialogue")
	return s.completedResult(sess), nil
}

func (s *Service) completedResult(sess sessions.Session) *Result {
	response := fmt.Sprintf("That %s has already been paid in full.", sess.Target.Kind)
	if sess.ConfirmationNumber != "" {
		response = fmt.Sprintf("%s Your confirmation code is %s.", response, SpokenCode(sess.ConfirmationNumber))
	}
	return &Result{
		Response: response,
		MetaData: s.metaPatch(sess),
	}
}

func (s *Service) askForConsent(ctx context.Context, callID string, payable *ledger.Payable) (*Result, error) {
	sess, err := s.sessions.Update(callID, func(ps *sessions.Session) error {
		ps.Amount = payable.Total
		ps.Step = sessions.StepAwaitingConfirmation
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(ctx, "asking for payment confirmation")
	return &Result{
		Response: consentQuestion(payable),
		MetaData: s.metaPatch(sess),
	}, nil
}

func (s *Service) handleConsent(ctx context.Context, callID string, sess sessions.Session, payable *ledger.Payable, utterances []string) (*Result, error) {
	switch ClassifyRecentConsent(utterances) {
	case ConsentNegative:
		ended, _ := s.sessions.End(callID)
		s.logg.Info(ctx, "customer declined payment")
		return &Result{
			Response: fmt.Sprintf("No problem, I won't charge anything. Your %s is unchanged. Is there anything else I can help you with?", ended.Target.Kind),
			MetaData: map[string]any{"payment_step": string(sessions.StepCancelled)},
		}, nil
	case ConsentAffirmative:
		sess, err := s.sessions.UpdateStep(callID, sessions.StepConfirmed)
		if err != nil {
			return nil, err
		}
		return s.dispatchCollection(ctx, callID, sess, payable)
	default:
		// Consent hasn't been given, so the quoted total may still move;
		// keep the amount in step with what gets re-spoken.
		sess, err := s.sessions.Update(callID, func(ps *sessions.Session) error {
			ps.Amount = payable.Total
			return nil
		})
		if err != nil {
			return nil, err
		}
		s.logg.Info(ctx, "consent unclear, asking again")
		return &Result{
			Response: fmt.Sprintf("Sorry, I didn't catch that. %s", consentQuestion(payable)),
			MetaData: s.metaPatch(sess),
		}, nil
	}
}

func (s *Service) dispatchCollection(ctx context.Context, callID string, sess sessions.Session, payable *ledger.Payable) (*Result, error) {
	pay, err := s.collector.BuildPay(signalwire.PayParams{
		Amount:       sess.Amount,
		Currency:     s.currency,
		Description:  fmt.Sprintf("Bobby's Table %s", payable.Describe()),
		TargetKind:   payable.Kind,
		TargetNumber: payable.Number,
		PaymentType:  fmt.Sprintf("%s_payment", payable.Kind),
		MaxAttempts:  s.maxAttempts,
		Timeout:      s.collectTimeout,
	})
	if err != nil {
		s.logg.Error(ctx, "building card collection failed", err)
		return &Result{
			Response: "I'm sorry, I can't take card payments right now. You're welcome to pay when you arrive.",
		}, nil
	}

	sess, err = s.sessions.UpdateStep(callID, sessions.StepCollectingCard)
	if err != nil {
		return nil, err
	}

	s.logg.Info(ctx, "card collection scheduled")
	return &Result{
		Response: fmt.Sprintf("Great. I'll collect your card details now for %s. Please enter your card number on your phone's keypad when prompted.", spokenAmount(sess.Amount)),
		Actions: []map[string]any{
			{"SWML": signalwire.SWML(pay)},
		},
		MetaData: s.metaPatch(sess),
	}, nil
}

func (s *Service) metaPatch(sess sessions.Session) map[string]any {
	patch := map[string]any{
		"payment_step": string(sess.Step),
	}
	if !sess.Target.IsZero() {
		patch["payment_target_kind"] = string(sess.Target.Kind)
		patch["payment_target_number"] = sess.Target.Number
	}
	if sess.Amount.IsPositive() {
		patch["payment_amount"] = sess.Amount.StringFixed(2)
	}
	return patch
}

func consentQuestion(payable *ledger.Payable) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Here's the bill for %s for %s.", payable.Describe(), payable.Name)
	for _, item := range payable.Items {
		fmt.Fprintf(&b, " %d %s at %s.", item.Quantity, item.Name, spokenAmount(item.UnitPrice))
	}
	fmt.Fprintf(&b, " The total is %s. Shall I go ahead and charge your card? Please say yes or no.", spokenAmount(payable.Total))
	return b.String()
}

func spokenAmount(amount decimal.Decimal) string {
	return "$" + amount.StringFixed(2)
}

func spokenDigits(number string) string {
	return strings.Join(strings.Split(number, ""), " ")
}
