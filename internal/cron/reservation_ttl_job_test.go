package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/rioprayoga/lensrent-backend/pkg/db/models"
	"github.com/rioprayoga/lensrent-backend/pkg/enums"
	"github.com/rioprayoga/lensrent-backend/pkg/logger"
)

type fakeReservationReader struct {
	stale   []models.Reservation
	overdue []models.Reservation
	err     error
}

func (f *fakeReservationReader) FindStalePending(_ context.Context, _ time.Time) ([]models.Reservation, error) {
	return f.stale, f.err
}

func (f *fakeReservationReader) FindOverdueActive(_ context.Context, _ time.Time) ([]models.Reservation, error) {
	return f.overdue, nil
}

type fakeTransitioner struct {
	calls map[uuid.UUID]enums.ReservationStatus
	fail  map[uuid.UUID]error
}

func (f *fakeTransitioner) Transition(_ context.Context, id uuid.UUID, next enums.ReservationStatus) (*models.Reservation, error) {
	if err, ok := f.fail[id]; ok {
		return nil, err
	}
	if f.calls == nil {
		f.calls = map[uuid.UUID]enums.ReservationStatus{}
	}
	f.calls[id] = next
	return &models.Reservation{ID: id, Status: next}, nil
}

func TestReservationTTLJobExpiresStalePending(t *testing.T) {
	t.Parallel()

	stale := []models.Reservation{
		{ID: uuid.New(), Code: "RSV-1", Status: enums.ReservationStatusPending},
		{ID: uuid.New(), Code: "RSV-2", Status: enums.ReservationStatusPending},
	}
	transitioner := &fakeTransitioner{}
	job, err := NewReservationTTLJob(ReservationTTLJobParams{
		Logger:       logger.New(logger.Options{ServiceName: "cron-test"}),
		Reader:       &fakeReservationReader{stale: stale},
		Transitioner: transitioner,
	})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(transitioner.calls) != 2 {
		t.Fatalf("expected 2 cancellations, got %d", len(transitioner.calls))
	}
	for _, reservation := range stale {
		if transitioner.calls[reservation.ID] != enums.ReservationStatusCancelled {
			t.Fatalf("expected %s cancelled", reservation.Code)
		}
	}
}

func TestReservationTTLJobContinuesPastFailures(t *testing.T) {
	t.Parallel()

	broken := models.Reservation{ID: uuid.New(), Code: "RSV-1", Status: enums.ReservationStatusPending}
	healthy := models.Reservation{ID: uuid.New(), Code: "RSV-2", Status: enums.ReservationStatusPending}
	transitioner := &fakeTransitioner{
		fail: map[uuid.UUID]error{broken.ID: errors.New("boom")},
	}
	job, err := NewReservationTTLJob(ReservationTTLJobParams{
		Logger:       logger.New(logger.Options{ServiceName: "cron-test"}),
		Reader:       &fakeReservationReader{stale: []models.Reservation{broken, healthy}},
		Transitioner: transitioner,
	})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}

	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected aggregated error")
	}
	if transitioner.calls[healthy.ID] != enums.ReservationStatusCancelled {
		t.Fatal("healthy reservation must still be expired after an earlier failure")
	}
}

func TestReservationTTLJobReportsOverdueWithoutClosing(t *testing.T) {
	t.Parallel()

	overdue := []models.Reservation{
		{ID: uuid.New(), Code: "RSV-9", Status: enums.ReservationStatusActive},
	}
	transitioner := &fakeTransitioner{}
	job, err := NewReservationTTLJob(ReservationTTLJobParams{
		Logger:       logger.New(logger.Options{ServiceName: "cron-test"}),
		Reader:       &fakeReservationReader{overdue: overdue},
		Transitioner: transitioner,
	})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(transitioner.calls) != 0 {
		t.Fatalf("overdue rentals must not be auto-closed, got %d transitions", len(transitioner.calls))
	}
}
