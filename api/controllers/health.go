package controllers

import (
	"net/http"

	"github.com/bobbystable/voicepay-backend/api/responses"
	"github.com/bobbystable/voicepay-backend/pkg/config"
	"github.com/bobbystable/voicepay-backend/pkg/db"
	"github.com/bobbystable/voicepay-backend/pkg/logger"
	"github.com/bobbystable/voicepay-backend/pkg/redis"
)

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-BobbysTable-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

func HealthReady(cfg *config.Config, logg *logger.Logger, dbP db.Pinger, redisP redis.Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		w.Header().Set("X-BobbysTable-Env", cfg.App.Env)

		checks := map[string]string{
			"database": "ok",
			"redis":    "ok",
		}
		ready := true

		if dbP != nil {
			if err := dbP.Ping(ctx); err != nil {
				checks["database"] = "unreachable"
				ready = false
				if logg != nil {
					logg.Error(ctx, "database readiness check failed", err)
				}
			}
		}
		if redisP != nil {
			if err := redisP.Ping(ctx); err != nil {
				checks["redis"] = "unreachable"
				ready = false
				if logg != nil {
					logg.Error(ctx, "redis readiness check failed", err)
				}
			}
		}

		if !ready {
			responses.WriteSuccessStatus(w, http.StatusServiceUnavailable, checks)
			return
		}
		responses.WriteSuccess(w, checks)
	}
}
