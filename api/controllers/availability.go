package controllers

import (
	"net/http"
	"strings"

	"github.com/rioprayoga/lensrent-backend/api/responses"
	"github.com/rioprayoga/lensrent-backend/api/validators"
	"github.com/rioprayoga/lensrent-backend/internal/availability"
	"github.com/rioprayoga/lensrent-backend/pkg/enums"
	pkgerrors "github.com/rioprayoga/lensrent-backend/pkg/errors"
	"github.com/rioprayoga/lensrent-backend/pkg/logger"
)

// GetAvailability answers "how many are free between start and end" for one
// item. Served from the display cache; booking revalidates against live rows.
//
//	GET /api/v1/availability?kind=product&item_id=...&start=...&end=...
func GetAvailability(cache *availability.Cache, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		kindRaw := strings.TrimSpace(r.URL.Query().Get("kind"))
		kind, err := enums.ParseItemKind(kindRaw)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid item kind"))
			return
		}

		itemID, err := validators.ParseQueryUUID(r, "item_id", true)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		start, err := validators.ParseQueryTime(r, "start", true)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		end, err := validators.ParseQueryTime(r, "end", true)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := cache.Compute(ctx, availability.ItemRef{Kind: kind, ID: itemID}, start, end)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
