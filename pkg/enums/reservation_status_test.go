package enums

import "testing"

func TestParseReservationStatus(t *testing.T) {
	for _, value := range []string{"pending", "confirmed", "active", "completed", "cancelled"} {
		status, err := ParseReservationStatus(value)
		if err != nil {
			t.Fatalf("parse %q: %v", value, err)
		}
		if status.String() != value {
			t.Fatalf("expected %q, got %q", value, status)
		}
	}
	if _, err := ParseReservationStatus("finished"); err == nil {
		t.Fatal("expected error for unknown status")
	}
	if _, err := ParseReservationStatus("Pending"); err == nil {
		t.Fatal("parsing is case sensitive")
	}
}

func TestReservationStatusIsBlocking(t *testing.T) {
	blocking := map[ReservationStatus]bool{
		ReservationStatusPending:   true,
		ReservationStatusConfirmed: true,
		ReservationStatusActive:    true,
		ReservationStatusCompleted: false,
		ReservationStatusCancelled: false,
	}
	for status, want := range blocking {
		if got := status.IsBlocking(); got != want {
			t.Fatalf("%s: expected blocking %v, got %v", status, want, got)
		}
	}
}

func TestReservationStatusTransitions(t *testing.T) {
	allowed := []struct {
		from ReservationStatus
		to   ReservationStatus
	}{
		{ReservationStatusPending, ReservationStatusConfirmed},
		{ReservationStatusPending, ReservationStatusCancelled},
		{ReservationStatusConfirmed, ReservationStatusActive},
		{ReservationStatusConfirmed, ReservationStatusCancelled},
		{ReservationStatusActive, ReservationStatusCompleted},
		{ReservationStatusActive, ReservationStatusCancelled},
	}
	for _, tt := range allowed {
		if !tt.from.CanTransitionTo(tt.to) {
			t.Fatalf("%s -> %s should be allowed", tt.from, tt.to)
		}
	}

	denied := []struct {
		from ReservationStatus
		to   ReservationStatus
	}{
		{ReservationStatusPending, ReservationStatusActive},
		{ReservationStatusPending, ReservationStatusCompleted},
		{ReservationStatusConfirmed, ReservationStatusCompleted},
		{ReservationStatusActive, ReservationStatusConfirmed},
		{ReservationStatusCompleted, ReservationStatusCancelled},
		{ReservationStatusCancelled, ReservationStatusPending},
	}
	for _, tt := range denied {
		if tt.from.CanTransitionTo(tt.to) {
			t.Fatalf("%s -> %s should be denied", tt.from, tt.to)
		}
	}
}

func TestItemKindParse(t *testing.T) {
	kind, err := ParseItemKind("product")
	if err != nil || kind != ItemKindProduct {
		t.Fatalf("parse product: %v %v", kind, err)
	}
	kind, err = ParseItemKind("bundling")
	if err != nil || kind != ItemKindBundling {
		t.Fatalf("parse bundling: %v %v", kind, err)
	}
	if _, err := ParseItemKind("produk-123"); err == nil {
		t.Fatal("legacy prefixed identifiers must be rejected")
	}
	if !ItemKindProduct.IsValid() || ItemKind("camera").IsValid() {
		t.Fatal("IsValid mismatch")
	}
}
