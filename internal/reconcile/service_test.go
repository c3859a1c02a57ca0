package reconcile

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobbystable/voicepay-backend/internal/ledger"
	"github.com/bobbystable/voicepay-backend/internal/sessions"
	"github.com/bobbystable/voicepay-backend/pkg/enums"
	"github.com/bobbystable/voicepay-backend/pkg/logger"
)

type markPaidCall struct {
	kind   enums.TargetKind
	number string
	update ledger.PaymentUpdate
}

type reconcileLedger struct {
	payables      map[string]*ledger.Payable
	markPaidCalls []markPaidCall
	markPaidOK    bool
	markPaidErr   error
	findErr       error
}

func (f *reconcileLedger) FindByNumber(_ context.Context, kind enums.TargetKind, number string) (*ledger.Payable, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	return f.payables[string(kind)+":"+number], nil
}

func (f *reconcileLedger) MarkPaid(_ context.Context, kind enums.TargetKind, number string, update ledger.PaymentUpdate) (bool, error) {
	f.markPaidCalls = append(f.markPaidCalls, markPaidCall{kind: kind, number: number, update: update})
	if f.markPaidErr != nil {
		return false, f.markPaidErr
	}
	if f.markPaidOK {
		paid := f.payables[string(kind)+":"+number]
		if paid != nil {
			paid.PaymentStatus = enums.PaymentStatusPaid
			paid.ConfirmationNumber = update.ConfirmationNumber
		}
	}
	return f.markPaidOK, nil
}

type receiptCall struct {
	phone              string
	summary            string
	amount             decimal.Decimal
	confirmationNumber string
}

type fakeReceipts struct {
	calls []receiptCall
	err   error
}

func (f *fakeReceipts) SendReceipt(_ context.Context, phone, summary string, amount decimal.Decimal, confirmationNumber string) error {
	f.calls = append(f.calls, receiptCall{phone: phone, summary: summary, amount: amount, confirmationNumber: confirmationNumber})
	return f.err
}

func unpaidReservation() *ledger.Payable {
	return &ledger.Payable{
		Kind:          enums.TargetKindReservation,
		Number:        "123456",
		Name:          "Alex Rivera",
		Phone:         "+15551230000",
		Total:         decimal.NewFromFloat(52.75),
		PaymentStatus: enums.PaymentStatusUnpaid,
	}
}

func newReconciler(t *testing.T, led *reconcileLedger, receipts *fakeReceipts) (*Service, *sessions.Store) {
	t.Helper()
	store := sessions.NewStore(0)
	svc, err := NewService(ServiceParams{
		Sessions: store,
		Ledger:   led,
		Receipts: receipts,
		Logger:   logger.New(logger.Options{ServiceName: "test"}),
	})
	require.NoError(t, err)
	svc.WithCodeSource(func() string { return "AB12CD34" })
	return svc, store
}

func startConfirmedSession(t *testing.T, store *sessions.Store, callID string) {
	t.Helper()
	_, err := store.Start(callID, sessions.Target{Kind: enums.TargetKindReservation, Number: "123456"})
	require.NoError(t, err)
	_, err = store.Update(callID, func(s *sessions.Session) error {
		s.Amount = decimal.NewFromFloat(52.75)
		s.PhoneNumber = "+15559998888"
		s.Step = sessions.StepCollectingCard
		return nil
	})
	require.NoError(t, err)
}

func completedEvent() *Event {
	return &Event{
		EventID: "evt-1",
		Params: Params{
			CallID:           "call-1",
			For:              "payment-completed",
			PaymentReference: "ref-789",
		},
	}
}

func TestHandleNilEvent(t *testing.T) {
	svc, _ := newReconciler(t, &reconcileLedger{}, &fakeReceipts{})
	_, err := svc.Handle(context.Background(), nil)
	require.Error(t, err)
}

func TestHandleCollectingUpdatesSessionStep(t *testing.T) {
	led := &reconcileLedger{}
	svc, store := newReconciler(t, led, &fakeReceipts{})
	startConfirmedSession(t, store, "call-1")
	_, err := store.UpdateStep("call-1", sessions.StepConfirmed)
	require.NoError(t, err)

	outcome, err := svc.Handle(context.Background(), &Event{Params: Params{CallID: "call-1", For: "payment-started"}})
	require.NoError(t, err)
	assert.Equal(t, StatusCollecting, outcome.Status)
	assert.False(t, outcome.EndCall)

	sess, ok := store.Get("call-1")
	require.True(t, ok)
	assert.Equal(t, sessions.StepCollectingCard, sess.Step)
	assert.Empty(t, led.markPaidCalls)
}

func TestHandleFailedRecordsErrorAndLeavesLedgerAlone(t *testing.T) {
	led := &reconcileLedger{payables: map[string]*ledger.Payable{"reservation:123456": unpaidReservation()}}
	receipts := &fakeReceipts{}
	svc, store := newReconciler(t, led, receipts)
	startConfirmedSession(t, store, "call-1")

	outcome, err := svc.Handle(context.Background(), &Event{Params: Params{
		CallID:    "call-1",
		For:       "payment-failed",
		ErrorType: ErrorKindCardDeclined,
		Attempt:   2,
	}})
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, outcome.Status)
	assert.Contains(t, outcome.Response, "your bank declined")
	assert.False(t, outcome.EndCall, "the call continues so the customer can retry")

	sess, ok := store.Get("call-1")
	require.True(t, ok)
	assert.Equal(t, sessions.StepFailed, sess.Step)
	assert.Equal(t, ErrorKindCardDeclined, sess.ErrorKind)
	assert.Equal(t, 2, sess.ErrorAttempt)

	assert.Empty(t, led.markPaidCalls, "failures never touch the ledger")
	assert.Empty(t, receipts.calls)
}

func TestFailureResponsePerErrorKind(t *testing.T) {
	assert.Contains(t, failureResponse(ErrorKindCardDeclined), "declined")
	assert.Contains(t, failureResponse(ErrorKindInvalidCardNumber), "wasn't recognized")
	assert.Contains(t, failureResponse(ErrorKindInvalidCardType), "Visa, Mastercard, American Express, and Discover")
	assert.Contains(t, failureResponse("something-else"), "problem processing your card")
}

func TestHandleCompletedWritesLedgerOnceAndSendsReceipt(t *testing.T) {
	led := &reconcileLedger{
		payables:   map[string]*ledger.Payable{"reservation:123456": unpaidReservation()},
		markPaidOK: true,
	}
	receipts := &fakeReceipts{}
	svc, store := newReconciler(t, led, receipts)
	startConfirmedSession(t, store, "call-1")

	outcome, err := svc.Handle(context.Background(), completedEvent())
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, outcome.Status)
	assert.Equal(t, "CONF-AB12CD34", outcome.ConfirmationNumber)
	assert.True(t, outcome.EndCall)
	assert.Contains(t, outcome.Response, "$52.75")
	assert.Contains(t, outcome.Response, "A, B, 1, 2, C, D, 3, 4")

	require.Len(t, led.markPaidCalls, 1)
	call := led.markPaidCalls[0]
	assert.Equal(t, enums.TargetKindReservation, call.kind)
	assert.Equal(t, "123456", call.number)
	assert.True(t, call.update.Amount.Equal(decimal.NewFromFloat(52.75)))
	assert.Equal(t, "ref-789", call.update.Reference)
	assert.Equal(t, "CONF-AB12CD34", call.update.ConfirmationNumber)

	require.Len(t, receipts.calls, 1)
	assert.Equal(t, "+15559998888", receipts.calls[0].phone, "session phone preferred")
	assert.Equal(t, "CONF-AB12CD34", receipts.calls[0].confirmationNumber)

	sess, ok := store.Get("call-1")
	require.True(t, ok)
	assert.Equal(t, sessions.StepCompleted, sess.Step)
	assert.Equal(t, "CONF-AB12CD34", sess.ConfirmationNumber)
}

func TestHandleCompletedDuplicateDeliveryIsIdempotent(t *testing.T) {
	paid := unpaidReservation()
	paid.PaymentStatus = enums.PaymentStatusPaid
	paid.ConfirmationNumber = "CONF-FIRST111"
	led := &reconcileLedger{payables: map[string]*ledger.Payable{"reservation:123456": paid}}
	receipts := &fakeReceipts{}
	svc, store := newReconciler(t, led, receipts)
	startConfirmedSession(t, store, "call-1")

	outcome, err := svc.Handle(context.Background(), completedEvent())
	require.NoError(t, err)

	assert.Equal(t, "CONF-FIRST111", outcome.ConfirmationNumber, "original confirmation wins")
	assert.Contains(t, outcome.Response, "already been processed")
	assert.True(t, outcome.EndCall)
	assert.Empty(t, led.markPaidCalls, "no second ledger write")
	assert.Empty(t, receipts.calls, "no second receipt")
}

func TestHandleCompletedLosingRaceReturnsWinnersConfirmation(t *testing.T) {
	reservation := unpaidReservation()
	led := &reconcileLedger{
		payables:   map[string]*ledger.Payable{"reservation:123456": reservation},
		markPaidOK: false,
	}
	receipts := &fakeReceipts{}
	svc, store := newReconciler(t, led, receipts)
	startConfirmedSession(t, store, "call-1")

	// Simulate the concurrent winner: paid by the time we re-read.
	reservation.ConfirmationNumber = "CONF-WINNER99"

	outcome, err := svc.Handle(context.Background(), completedEvent())
	require.NoError(t, err)

	assert.Equal(t, "CONF-WINNER99", outcome.ConfirmationNumber)
	assert.Empty(t, receipts.calls, "the winning delivery already sent the receipt")

	sess, ok := store.Get("call-1")
	require.True(t, ok)
	assert.Equal(t, sessions.StepCompleted, sess.Step)
}

func TestHandleCompletedOrphanFallsBackToEventTarget(t *testing.T) {
	led := &reconcileLedger{
		payables:   map[string]*ledger.Payable{"reservation:123456": unpaidReservation()},
		markPaidOK: true,
	}
	receipts := &fakeReceipts{}
	svc, _ := newReconciler(t, led, receipts)

	outcome, err := svc.Handle(context.Background(), &Event{Params: Params{
		CallID:       "call-unknown",
		For:          "payment-completed",
		TargetKind:   "reservation",
		TargetNumber: "123456",
		Amount:       "52.75",
	}})
	require.NoError(t, err)

	assert.Equal(t, "CONF-AB12CD34", outcome.ConfirmationNumber)
	require.Len(t, led.markPaidCalls, 1)
	require.Len(t, receipts.calls, 1)
	assert.Equal(t, "+15551230000", receipts.calls[0].phone, "ledger phone used when no session exists")
}

func TestHandleCompletedOrphanWithoutTargetErrors(t *testing.T) {
	led := &reconcileLedger{}
	svc, _ := newReconciler(t, led, &fakeReceipts{})

	outcome, err := svc.Handle(context.Background(), &Event{Params: Params{
		CallID: "call-unknown",
		For:    "payment-completed",
	}})
	require.Error(t, err)
	assert.Contains(t, outcome.Response, "contact the restaurant")
	assert.Empty(t, led.markPaidCalls)
}

func TestHandleCompletedReceiptFailureDoesNotFailCharge(t *testing.T) {
	led := &reconcileLedger{
		payables:   map[string]*ledger.Payable{"reservation:123456": unpaidReservation()},
		markPaidOK: true,
	}
	receipts := &fakeReceipts{err: errors.New("sms provider down")}
	svc, store := newReconciler(t, led, receipts)
	startConfirmedSession(t, store, "call-1")

	outcome, err := svc.Handle(context.Background(), completedEvent())
	require.NoError(t, err, "the charge stands even when the receipt fails")
	assert.Equal(t, "CONF-AB12CD34", outcome.ConfirmationNumber)

	sess, ok := store.Get("call-1")
	require.True(t, ok)
	assert.Equal(t, sessions.StepCompleted, sess.Step, "session completion still runs")
}

func TestHandleCompletedLedgerErrorSurfaced(t *testing.T) {
	led := &reconcileLedger{
		payables:    map[string]*ledger.Payable{"reservation:123456": unpaidReservation()},
		markPaidErr: errors.New("db down"),
	}
	svc, store := newReconciler(t, led, &fakeReceipts{})
	startConfirmedSession(t, store, "call-1")

	outcome, err := svc.Handle(context.Background(), completedEvent())
	require.Error(t, err)
	assert.Contains(t, outcome.Response, "contact the restaurant")
}

func TestHandleUnknownStatus(t *testing.T) {
	led := &reconcileLedger{}
	svc, _ := newReconciler(t, led, &fakeReceipts{})

	outcome, err := svc.Handle(context.Background(), &Event{Params: Params{CallID: "call-1", For: "mystery-tag"}})
	require.NoError(t, err)
	assert.Equal(t, StatusUnknown, outcome.Status)
	assert.Empty(t, led.markPaidCalls)
}

func TestHandleStaleFailedAfterCompletedDoesNotRegress(t *testing.T) {
	led := &reconcileLedger{
		payables:   map[string]*ledger.Payable{"reservation:123456": unpaidReservation()},
		markPaidOK: true,
	}
	receipts := &fakeReceipts{}
	svc, store := newReconciler(t, led, receipts)
	startConfirmedSession(t, store, "call-1")

	_, err := svc.Handle(context.Background(), completedEvent())
	require.NoError(t, err)

	// The gateway retries a delivery for an earlier attempt after the
	// payment already settled.
	outcome, err := svc.Handle(context.Background(), &Event{Params: Params{
		CallID:    "call-1",
		For:       "payment-failed",
		ErrorType: ErrorKindCardDeclined,
		Attempt:   1,
	}})
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, outcome.Status)
	assert.Equal(t, "CONF-AB12CD34", outcome.ConfirmationNumber)
	assert.Contains(t, outcome.Response, "already been processed")
	assert.NotContains(t, outcome.Response, "declined")

	sess, ok := store.Get("call-1")
	require.True(t, ok)
	assert.Equal(t, sessions.StepCompleted, sess.Step, "settled sessions stay settled")
	assert.Empty(t, sess.ErrorKind)
	assert.Len(t, led.markPaidCalls, 1, "no second ledger write")
	assert.Len(t, receipts.calls, 1, "no second receipt")
}

func TestHandleStaleCollectingAfterCompletedDoesNotRegress(t *testing.T) {
	led := &reconcileLedger{
		payables:   map[string]*ledger.Payable{"reservation:123456": unpaidReservation()},
		markPaidOK: true,
	}
	svc, store := newReconciler(t, led, &fakeReceipts{})
	startConfirmedSession(t, store, "call-1")

	_, err := svc.Handle(context.Background(), completedEvent())
	require.NoError(t, err)

	outcome, err := svc.Handle(context.Background(), &Event{Params: Params{
		CallID: "call-1",
		For:    "payment-started",
	}})
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, outcome.Status)
	assert.Equal(t, "CONF-AB12CD34", outcome.ConfirmationNumber)

	sess, ok := store.Get("call-1")
	require.True(t, ok)
	assert.Equal(t, sessions.StepCompleted, sess.Step)
}
