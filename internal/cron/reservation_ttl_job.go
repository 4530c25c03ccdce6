package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/rioprayoga/lensrent-backend/pkg/db/models"
	"github.com/rioprayoga/lensrent-backend/pkg/enums"
	"github.com/rioprayoga/lensrent-backend/pkg/logger"
)

const (
	defaultPendingHoldTTL = 24 * time.Hour
	defaultOverdueGrace   = 6 * time.Hour
)

type staleReservationReader interface {
	FindStalePending(ctx context.Context, cutoff time.Time) ([]models.Reservation, error)
	FindOverdueActive(ctx context.Context, cutoff time.Time) ([]models.Reservation, error)
}

type reservationTransitioner interface {
	Transition(ctx context.Context, id uuid.UUID, next enums.ReservationStatus) (*models.Reservation, error)
}

// ReservationTTLJobParams configure the reservation expiry job.
type ReservationTTLJobParams struct {
	Logger         *logger.Logger
	Reader         staleReservationReader
	Transitioner   reservationTransitioner
	PendingHoldTTL time.Duration
	OverdueGrace   time.Duration
}

// NewReservationTTLJob builds the job that expires stale pending holds and
// flags overdue rentals.
func NewReservationTTLJob(params ReservationTTLJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Reader == nil {
		return nil, fmt.Errorf("reservation reader required")
	}
	if params.Transitioner == nil {
		return nil, fmt.Errorf("reservation transitioner required")
	}
	if params.PendingHoldTTL <= 0 {
		params.PendingHoldTTL = defaultPendingHoldTTL
	}
	if params.OverdueGrace <= 0 {
		params.OverdueGrace = defaultOverdueGrace
	}
	return &reservationTTLJob{
		logg:           params.Logger,
		reader:         params.Reader,
		transitioner:   params.Transitioner,
		pendingHoldTTL: params.PendingHoldTTL,
		overdueGrace:   params.OverdueGrace,
		now:            time.Now,
	}, nil
}

// reservationTTLJob cancels pending reservations nobody confirmed within the
// hold TTL, returning their units to the pool, and logs active rentals whose
// window ended past the grace period. Overdue rentals are never auto-closed;
// completion needs a physical return.
type reservationTTLJob struct {
	logg           *logger.Logger
	reader         staleReservationReader
	transitioner   reservationTransitioner
	pendingHoldTTL time.Duration
	overdueGrace   time.Duration
	now            func() time.Time
}

func (j *reservationTTLJob) Name() string {
	return "reservation_ttl"
}

func (j *reservationTTLJob) Run(ctx context.Context) error {
	now := j.now().UTC()

	var errs error

	stale, err := j.reader.FindStalePending(ctx, now.Add(-j.pendingHoldTTL))
	if err != nil {
		return fmt.Errorf("find stale pending: %w", err)
	}
	expired := 0
	for _, reservation := range stale {
		resCtx := j.logg.WithReservationID(ctx, reservation.ID.String())
		if _, err := j.transitioner.Transition(ctx, reservation.ID, enums.ReservationStatusCancelled); err != nil {
			j.logg.Error(resCtx, "failed to expire pending reservation", err)
			errs = multierr.Append(errs, fmt.Errorf("expire %s: %w", reservation.Code, err))
			continue
		}
		j.logg.Info(resCtx, "pending reservation expired")
		expired++
	}
	if expired > 0 {
		j.logg.Info(j.logg.WithField(ctx, "expired", expired), "pending holds released")
	}

	overdue, err := j.reader.FindOverdueActive(ctx, now.Add(-j.overdueGrace))
	if err != nil {
		return multierr.Append(errs, fmt.Errorf("find overdue active: %w", err))
	}
	for _, reservation := range overdue {
		resCtx := j.logg.WithReservationID(ctx, reservation.ID.String())
		resCtx = j.logg.WithField(resCtx, "code", reservation.Code)
		j.logg.Warn(resCtx, "rental overdue, units still held")
	}

	return errs
}
