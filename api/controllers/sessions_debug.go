package controllers

import (
	"net/http"

	"github.com/bobbystable/voicepay-backend/api/responses"
	"github.com/bobbystable/voicepay-backend/internal/sessions"
	"github.com/bobbystable/voicepay-backend/pkg/logger"
)

// DebugPaymentSessions lists live payment sessions. Wired only when the
// debug endpoint feature flag is on.
func DebugPaymentSessions(store *sessions.Store, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if logg != nil {
			logg.Info(r.Context(), "debug payment sessions requested")
		}
		responses.WriteSuccess(w, map[string]any{
			"count":    store.Len(),
			"sessions": store.All(),
		})
	}
}
