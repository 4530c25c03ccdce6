package cron

import (
	"context"
	"fmt"

	"github.com/rioprayoga/lensrent-backend/pkg/db/models"
	"github.com/rioprayoga/lensrent-backend/pkg/logger"
)

type unallocatedReservationReader interface {
	FindBlockingWithoutAllocations(ctx context.Context) ([]models.Reservation, error)
}

// AllocationAuditJobParams configure the allocation audit job.
type AllocationAuditJobParams struct {
	Logger *logger.Logger
	Reader unallocatedReservationReader
}

// NewAllocationAuditJob builds the job that reports blocking reservations
// holding no allocations. Booking allocates synchronously, so such rows
// indicate a bug or manual data surgery. The job is report-only; it never
// repairs rows on its own.
func NewAllocationAuditJob(params AllocationAuditJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Reader == nil {
		return nil, fmt.Errorf("reservation reader required")
	}
	return &allocationAuditJob{
		logg:   params.Logger,
		reader: params.Reader,
	}, nil
}

type allocationAuditJob struct {
	logg   *logger.Logger
	reader unallocatedReservationReader
}

func (j *allocationAuditJob) Name() string {
	return "allocation_audit"
}

func (j *allocationAuditJob) Run(ctx context.Context) error {
	orphaned, err := j.reader.FindBlockingWithoutAllocations(ctx)
	if err != nil {
		return fmt.Errorf("find unallocated blocking reservations: %w", err)
	}
	for _, reservation := range orphaned {
		resCtx := j.logg.WithReservationID(ctx, reservation.ID.String())
		resCtx = j.logg.WithField(resCtx, "code", reservation.Code)
		resCtx = j.logg.WithField(resCtx, "status", reservation.Status.String())
		j.logg.Warn(resCtx, "blocking reservation has no allocations")
	}
	if len(orphaned) > 0 {
		j.logg.Warn(j.logg.WithField(ctx, "count", len(orphaned)), "allocation audit found inconsistencies")
	}
	return nil
}
