package controllers

import (
	"net/http"

	"github.com/rioprayoga/lensrent-backend/api/responses"
	"github.com/rioprayoga/lensrent-backend/pkg/config"
	"github.com/rioprayoga/lensrent-backend/pkg/db"
	pkgerrors "github.com/rioprayoga/lensrent-backend/pkg/errors"
	"github.com/rioprayoga/lensrent-backend/pkg/logger"
	redisclient "github.com/rioprayoga/lensrent-backend/pkg/redis"
)

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-LensRent-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady reports readiness of the datasources. Redis is optional; a
// missing cache degrades display endpoints but never blocks booking.
func HealthReady(cfg *config.Config, logg *logger.Logger, dbP db.Pinger, redisP redisclient.Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-LensRent-Env", cfg.App.Env)
		ctx := r.Context()

		checks := map[string]string{"db": "ok", "redis": "ok"}

		if dbP == nil {
			checks["db"] = "not configured"
		} else if err := dbP.Ping(ctx); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "database unreachable"))
			return
		}

		if redisP == nil {
			checks["redis"] = "not configured"
		} else if err := redisP.Ping(ctx); err != nil {
			checks["redis"] = "unreachable"
			if logg != nil {
				logg.Warn(ctx, "redis unreachable during readiness check")
			}
		}

		responses.WriteSuccess(w, map[string]any{"status": "ready", "checks": checks})
	}
}
