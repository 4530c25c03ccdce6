package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rioprayoga/lensrent-backend/api/responses"
	"github.com/rioprayoga/lensrent-backend/api/validators"
	"github.com/rioprayoga/lensrent-backend/internal/allocation"
	"github.com/rioprayoga/lensrent-backend/internal/reservations"
	"github.com/rioprayoga/lensrent-backend/pkg/enums"
	pkgerrors "github.com/rioprayoga/lensrent-backend/pkg/errors"
	"github.com/rioprayoga/lensrent-backend/pkg/logger"
	"github.com/rioprayoga/lensrent-backend/pkg/pagination"
)

// CreateReservation books a reservation. Units are allocated in the same
// transaction; a shortage fails the whole booking with 409.
func CreateReservation(svc *reservations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var input reservations.CreateInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		reservation, err := svc.Create(ctx, input)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, reservation)
	}
}

func GetReservation(svc *reservations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		id, err := validators.ParsePathUUID(chi.URLParam(r, "reservationID"), "reservationID")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		reservation, err := svc.Get(ctx, id)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, reservation)
	}
}

func ListReservations(svc *reservations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		params := pagination.Params{Limit: limit, Cursor: r.URL.Query().Get("cursor")}

		list, next, err := svc.List(ctx, params, r.URL.Query().Get("status"))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"reservations": list, "next_cursor": next})
	}
}

// TransitionReservation moves a reservation along its lifecycle. Cancelling
// releases its units.
func TransitionReservation(svc *reservations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		id, err := validators.ParsePathUUID(chi.URLParam(r, "reservationID"), "reservationID")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var body struct {
			Status string `json:"status" validate:"required"`
		}
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		next, err := enums.ParseReservationStatus(body.Status)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
			return
		}

		reservation, err := svc.Transition(ctx, id, next)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, reservation)
	}
}

// AssignSerials replaces a product line's automatic unit picks with
// operator-chosen serials.
func AssignSerials(allocator *allocation.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		lineID, err := validators.ParsePathUUID(chi.URLParam(r, "lineID"), "lineID")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var body struct {
			Serials []string `json:"serials" validate:"required,min=1,dive,required"`
		}
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if err := allocator.AssignManual(ctx, lineID, body.Serials); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "assigned"})
	}
}
