package controllers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/bobbystable/voicepay-backend/api/responses"
	"github.com/bobbystable/voicepay-backend/api/validators"
	"github.com/bobbystable/voicepay-backend/internal/governor"
	"github.com/bobbystable/voicepay-backend/internal/payments"
	"github.com/bobbystable/voicepay-backend/internal/sessions"
	"github.com/bobbystable/voicepay-backend/pkg/enums"
	pkgerrors "github.com/bobbystable/voicepay-backend/pkg/errors"
	"github.com/bobbystable/voicepay-backend/pkg/logger"
	"github.com/bobbystable/voicepay-backend/pkg/metrics"
)

// recentUtteranceWindow bounds how far back consent matching looks.
const recentUtteranceWindow = 4

type swaigRequest struct {
	Function    string          `json:"function" validate:"required"`
	CallID      string          `json:"call_id"`
	AISessionID string          `json:"ai_session_id"`
	Argument    swaigArgument   `json:"argument"`
	MetaData    map[string]any  `json:"meta_data"`
	CallLog     []swaigLogEntry `json:"call_log"`
}

type swaigArgument struct {
	Parsed []map[string]any `json:"parsed"`
	Raw    string           `json:"raw"`
}

type swaigLogEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// swaigResponse is the envelope the agent platform consumes. The shape
// is fixed by the platform, so it bypasses the standard success wrapper.
type swaigResponse struct {
	Response string           `json:"response"`
	Action   []map[string]any `json:"action,omitempty"`
	MetaData map[string]any   `json:"meta_data,omitempty"`
}

// SWAIGDialogue is the payment flow surface consumed by the endpoint.
type SWAIGDialogue interface {
	Advance(ctx context.Context, input payments.AdvanceInput) (*payments.Result, error)
}

// SWAIGFunction handles inbound function invocations from the voice agent.
func SWAIGFunction(dialogue SWAIGDialogue, gov *governor.Governor, store *sessions.Store, payMetrics *metrics.PaymentMetrics, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if dialogue == nil || gov == nil || store == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "voice function service unavailable"))
			return
		}

		var req swaigRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		conversationID := req.AISessionID
		if conversationID == "" {
			conversationID = req.CallID
		}
		if logg != nil {
			ctx = logg.WithConversationID(ctx, conversationID)
			ctx = logg.WithCallID(ctx, req.CallID)
			ctx = logg.WithFunction(ctx, req.Function)
		}

		// A payment past the consent step owns the call. Everything else
		// waits until the card collection resolves or the session expires.
		if sess, ok := store.Get(req.CallID); ok &&
			sess.Step.Rank() >= sessions.StepConfirmed.Rank() && !sess.Step.Terminal() &&
			!payments.IsPaymentFunction(req.Function) {
			if logg != nil {
				logg.Info(ctx, "non-payment function blocked during payment")
			}
			writeSwaigResponse(w, &swaigResponse{
				Response: "Let's finish up your payment first, then I can help with that.",
			})
			return
		}

		decision := gov.Admit(conversationID, req.Function)
		if !decision.Allowed {
			if payMetrics != nil {
				payMetrics.IncGovernorDenial(req.Function)
			}
			if logg != nil {
				logg.Info(ctx, "function invocation denied by governor")
			}
			writeSwaigResponse(w, &swaigResponse{Response: decision.Reason})
			return
		}

		result := dispatchFunction(ctx, dialogue, logg, &req)
		gov.Record(conversationID, req.Function)

		writeSwaigResponse(w, &swaigResponse{
			Response: result.Response,
			Action:   result.Actions,
			MetaData: result.MetaData,
		})
	}
}

func dispatchFunction(ctx context.Context, dialogue SWAIGDialogue, logg *logger.Logger, req *swaigRequest) *payments.Result {
	args := req.arguments()

	var kind enums.TargetKind
	number := ""
	switch req.Function {
	case "pay_reservation":
		kind = enums.TargetKindReservation
		number = stringArg(args, "reservation_number")
	case "pay_order":
		kind = enums.TargetKindOrder
		number = stringArg(args, "order_number")
	case "get_card_details":
		// Card collection re-entry; the target lives on the session or
		// in conversation metadata.
		if parsed, err := enums.ParseTargetKind(stringArg(args, "target_kind")); err == nil {
			kind = parsed
		}
		number = stringArg(args, "target_number")
	default:
		return &payments.Result{
			Response: "I can take payments for reservations and orders over the phone. For anything else, please speak with our staff.",
		}
	}

	result, err := dialogue.Advance(ctx, payments.AdvanceInput{
		CallID:           req.CallID,
		ConversationID:   req.AISessionID,
		TargetKind:       kind,
		TargetNumber:     number,
		CardholderName:   stringArg(args, "cardholder_name"),
		PhoneNumber:      stringArg(args, "phone_number"),
		RecentUtterances: req.recentUserUtterances(recentUtteranceWindow),
		MetaData:         req.MetaData,
	})
	if err != nil {
		if logg != nil {
			logg.Error(ctx, "payment dialogue failed", err)
		}
		return &payments.Result{
			Response: "I'm sorry, something went wrong on my end. Could you try that again?",
		}
	}
	return result
}

func (r *swaigRequest) arguments() map[string]any {
	if len(r.Argument.Parsed) == 0 {
		return nil
	}
	return r.Argument.Parsed[0]
}

func (r *swaigRequest) recentUserUtterances(limit int) []string {
	utterances := make([]string, 0, limit)
	for _, entry := range r.CallLog {
		if strings.EqualFold(entry.Role, "user") && entry.Content != "" {
			utterances = append(utterances, entry.Content)
		}
	}
	if len(utterances) > limit {
		utterances = utterances[len(utterances)-limit:]
	}
	return utterances
}

func stringArg(args map[string]any, key string) string {
	if args == nil {
		return ""
	}
	value, _ := args[key].(string)
	return strings.TrimSpace(value)
}

func writeSwaigResponse(w http.ResponseWriter, payload *swaigResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf(`{"level":"error","msg":"failed to encode swaig response","err":"%v"}`, err)
	}
}
