package controllers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bobbystable/voicepay-backend/api/responses"
	"github.com/bobbystable/voicepay-backend/internal/reconcile"
	pkgerrors "github.com/bobbystable/voicepay-backend/pkg/errors"
	"github.com/bobbystable/voicepay-backend/pkg/logger"
)

const signalwireSignatureHeader = "X-SignalWire-Signature"

const (
	callbackFloodLimit  = 30
	callbackFloodWindow = time.Minute
)

// PaymentReconciler consumes decoded payment callbacks.
type PaymentReconciler interface {
	Handle(ctx context.Context, event *reconcile.Event) (*reconcile.Outcome, error)
}

type callbackGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

type signingClient interface {
	SigningSecret() string
}

type floodLimiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// PaymentCallback handles asynchronous payment status deliveries from
// the telephony gateway.
func PaymentCallback(svc PaymentReconciler, client signingClient, guard callbackGuard, limiter floodLimiter, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reconciler unavailable"))
			return
		}
		if client == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "signalwire client unavailable"))
			return
		}
		if guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "dedupe guard unavailable"))
			return
		}

		payload, err := io.ReadAll(r.Body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		sigHeader := r.Header.Get(signalwireSignatureHeader)
		if sigHeader == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "callback signature missing"))
			return
		}
		if !validateCallbackSignature(payload, client.SigningSecret(), sigHeader) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid callback signature"))
			return
		}

		var event reconcile.Event
		if err := json.Unmarshal(payload, &event); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode event"))
			return
		}

		if logg != nil {
			ctx = logg.WithCallID(ctx, event.Params.CallID)
		}

		if limiter != nil && event.Params.CallID != "" {
			scope := fmt.Sprintf("payment_callback:%s", event.Params.CallID)
			allowed, _, limitErr := limiter.FixedWindowAllow(ctx, scope, callbackFloodLimit, callbackFloodWindow)
			if limitErr != nil && logg != nil {
				logg.Error(ctx, "callback flood check failed", limitErr)
			}
			if limitErr == nil && !allowed {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeRateLimit, "too many callbacks for this call"))
				return
			}
		}

		deliveryID := event.DeliveryID()
		if deliveryID == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "callback missing call id"))
			return
		}

		alreadyProcessed, err := guard.CheckAndMark(ctx, deliveryID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check delivery dedupe"))
			return
		}
		if alreadyProcessed {
			if logg != nil {
				logg.Info(ctx, "duplicate callback delivery dropped")
			}
			responses.WriteSuccess(w, nil)
			return
		}

		outcome, err := svc.Handle(ctx, &event)
		if err != nil {
			_ = guard.Delete(ctx, deliveryID)
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			logg.Info(logg.WithField(ctx, "status", string(outcome.Status)), "payment callback processed")
		}
		responses.WriteSuccess(w, callbackResult(outcome))
	}
}

// callbackResult shapes the reconciler outcome for the gateway: the
// spoken response plus an optional hangup once the payment is terminal.
func callbackResult(outcome *reconcile.Outcome) map[string]any {
	result := map[string]any{
		"status":   string(outcome.Status),
		"response": outcome.Response,
	}
	if outcome.ConfirmationNumber != "" {
		result["confirmation_number"] = outcome.ConfirmationNumber
	}
	if outcome.EndCall {
		result["action"] = []map[string]any{
			{"say": outcome.Response},
			{"hangup": true},
		}
	}
	return result
}

func validateCallbackSignature(payload []byte, secret, header string) bool {
	if header == "" || secret == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(header))
}
