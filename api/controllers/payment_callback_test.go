package controllers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bobbystable/voicepay-backend/internal/reconcile"
)

const testSigningSecret = "whsec-test"

type fakeReconciler struct {
	outcome *reconcile.Outcome
	err     error
	events  []*reconcile.Event
}

func (f *fakeReconciler) Handle(_ context.Context, event *reconcile.Event) (*reconcile.Outcome, error) {
	f.events = append(f.events, event)
	if f.err != nil {
		return nil, f.err
	}
	return f.outcome, nil
}

type fakeSigner struct{ secret string }

func (f *fakeSigner) SigningSecret() string { return f.secret }

type fakeGuard struct {
	seen     map[string]bool
	deleted  []string
	checkErr error
}

func (f *fakeGuard) CheckAndMark(_ context.Context, eventID string) (bool, error) {
	if f.checkErr != nil {
		return false, f.checkErr
	}
	if f.seen[eventID] {
		return true, nil
	}
	f.seen[eventID] = true
	return false, nil
}

func (f *fakeGuard) Delete(_ context.Context, eventID string) error {
	delete(f.seen, eventID)
	f.deleted = append(f.deleted, eventID)
	return nil
}

type fakeLimiter struct {
	allowed bool
	scopes  []string
}

func (f *fakeLimiter) FixedWindowAllow(_ context.Context, scope string, _ int64, _ time.Duration) (bool, int64, error) {
	f.scopes = append(f.scopes, scope)
	return f.allowed, 1, nil
}

func signPayload(payload []byte) string {
	mac := hmac.New(sha256.New, []byte(testSigningSecret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func callbackRequest(t *testing.T, event map[string]any, sign bool) *http.Request {
	t.Helper()
	payload, err := json.Marshal(event)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/signalwire/payment", bytes.NewReader(payload))
	if sign {
		req.Header.Set("X-SignalWire-Signature", signPayload(payload))
	}
	return req
}

func completedCallbackEvent() map[string]any {
	return map[string]any{
		"event_id":   "evt-1",
		"event_type": "calling.call.pay",
		"params": map[string]any{
			"call_id": "call-1",
			"for":     "payment-completed",
		},
	}
}

func newCallbackHandler(svc *fakeReconciler, guard *fakeGuard, limiter *fakeLimiter) http.HandlerFunc {
	return PaymentCallback(svc, &fakeSigner{secret: testSigningSecret}, guard, limiter, nil)
}

func TestPaymentCallbackHappyPath(t *testing.T) {
	svc := &fakeReconciler{outcome: &reconcile.Outcome{
		Status:             reconcile.StatusCompleted,
		Response:           "Your payment has been processed.",
		ConfirmationNumber: "CONF-AB12CD34",
		EndCall:            true,
	}}
	guard := &fakeGuard{seen: map[string]bool{}}
	handler := newCallbackHandler(svc, guard, &fakeLimiter{allowed: true})

	w := httptest.NewRecorder()
	handler(w, callbackRequest(t, completedCallbackEvent(), true))

	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, svc.events, 1)
	assert.Equal(t, "evt-1", svc.events[0].EventID)

	var body struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "completed", body.Data["status"])
	assert.Equal(t, "CONF-AB12CD34", body.Data["confirmation_number"])
	actions, ok := body.Data["action"].([]any)
	require.True(t, ok, "a terminal payment hangs up the call")
	require.Len(t, actions, 2)
}

func TestPaymentCallbackRejectsMissingSignature(t *testing.T) {
	svc := &fakeReconciler{outcome: &reconcile.Outcome{}}
	handler := newCallbackHandler(svc, &fakeGuard{seen: map[string]bool{}}, &fakeLimiter{allowed: true})

	w := httptest.NewRecorder()
	handler(w, callbackRequest(t, completedCallbackEvent(), false))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, svc.events)
}

func TestPaymentCallbackRejectsBadSignature(t *testing.T) {
	svc := &fakeReconciler{outcome: &reconcile.Outcome{}}
	handler := newCallbackHandler(svc, &fakeGuard{seen: map[string]bool{}}, &fakeLimiter{allowed: true})

	payload, err := json.Marshal(completedCallbackEvent())
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/signalwire/payment", bytes.NewReader(payload))
	req.Header.Set("X-SignalWire-Signature", "deadbeef")

	w := httptest.NewRecorder()
	handler(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, svc.events)
}

func TestPaymentCallbackDropsDuplicateDelivery(t *testing.T) {
	svc := &fakeReconciler{outcome: &reconcile.Outcome{Status: reconcile.StatusCompleted}}
	guard := &fakeGuard{seen: map[string]bool{}}
	handler := newCallbackHandler(svc, guard, &fakeLimiter{allowed: true})

	w := httptest.NewRecorder()
	handler(w, callbackRequest(t, completedCallbackEvent(), true))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	handler(w, callbackRequest(t, completedCallbackEvent(), true))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, svc.events, 1, "the duplicate never reaches the reconciler")
}

func TestPaymentCallbackUnmarksDeliveryOnHandlerError(t *testing.T) {
	svc := &fakeReconciler{err: errors.New("transient")}
	guard := &fakeGuard{seen: map[string]bool{}}
	handler := newCallbackHandler(svc, guard, &fakeLimiter{allowed: true})

	w := httptest.NewRecorder()
	handler(w, callbackRequest(t, completedCallbackEvent(), true))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, guard.deleted, "evt-1", "a failed delivery may be redelivered")
}

func TestPaymentCallbackFloodLimit(t *testing.T) {
	svc := &fakeReconciler{outcome: &reconcile.Outcome{}}
	limiter := &fakeLimiter{allowed: false}
	handler := newCallbackHandler(svc, &fakeGuard{seen: map[string]bool{}}, limiter)

	w := httptest.NewRecorder()
	handler(w, callbackRequest(t, completedCallbackEvent(), true))

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Empty(t, svc.events)
	require.Len(t, limiter.scopes, 1)
	assert.Equal(t, "payment_callback:call-1", limiter.scopes[0])
}

func TestPaymentCallbackFallbackDeliveryID(t *testing.T) {
	svc := &fakeReconciler{outcome: &reconcile.Outcome{Status: reconcile.StatusFailed, Response: "declined"}}
	guard := &fakeGuard{seen: map[string]bool{}}
	handler := newCallbackHandler(svc, guard, &fakeLimiter{allowed: true})

	event := map[string]any{
		"event_type": "calling.call.pay",
		"params": map[string]any{
			"call_id": "call-9",
			"for":     "payment-failed",
			"attempt": 1,
		},
	}
	w := httptest.NewRecorder()
	handler(w, callbackRequest(t, event, true))

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, guard.seen["call-9:payment-failed:1"])
}

func TestPaymentCallbackRejectsUnidentifiableDelivery(t *testing.T) {
	svc := &fakeReconciler{outcome: &reconcile.Outcome{}}
	handler := newCallbackHandler(svc, &fakeGuard{seen: map[string]bool{}}, &fakeLimiter{allowed: true})

	event := map[string]any{
		"event_type": "calling.call.pay",
		"params":     map[string]any{"for": "payment-completed"},
	}
	w := httptest.NewRecorder()
	handler(w, callbackRequest(t, event, true))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, svc.events)
}
