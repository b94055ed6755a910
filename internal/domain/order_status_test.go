package domain

import (
	"errors"
	"testing"
	"time"
)

func TestValidateTransition_CanonicalPath(t *testing.T) {
	path := []OrderStatus{OrderPending, OrderConfirmed, OrderProcessing, OrderPacked, OrderShipped, OrderOutForDelivery, OrderDelivered, OrderReturned}
	for i := 0; i+1 < len(path); i++ {
		if err := ValidateTransition(path[i], path[i+1]); err != nil {
			t.Fatalf("%s -> %s: %v", path[i], path[i+1], err)
		}
	}
}

func TestValidateTransition_Rejections(t *testing.T) {
	cases := []struct {
		from, to OrderStatus
		ok       bool
	}{
		{OrderPending, OrderPacked, false},
		{OrderPending, OrderProcessing, false},
		{OrderPending, OrderCancelled, true},
		{OrderShipped, OrderCancelled, true},
		{OrderOutForDelivery, OrderCancelled, false},
		{OrderDelivered, OrderCancelled, false},
		{OrderDelivered, OrderReturned, true},
		{OrderShipped, OrderReturned, false},
		{OrderConfirmed, OrderPending, false},
		{OrderCancelled, OrderPending, false},
		{OrderReturned, OrderDelivered, false},
		{OrderPending, OrderPending, false},
	}
	for _, tc := range cases {
		err := ValidateTransition(tc.from, tc.to)
		if tc.ok && err != nil {
			t.Fatalf("%s -> %s: unexpected %v", tc.from, tc.to, err)
		}
		if !tc.ok {
			if !errors.Is(err, ErrInvalidTransition) {
				t.Fatalf("%s -> %s: expected ErrInvalidTransition, got %v", tc.from, tc.to, err)
			}
			var te *InvalidTransitionError
			if !errors.As(err, &te) || te.From != tc.from || te.To != tc.to {
				t.Fatalf("%s -> %s: bad error detail %v", tc.from, tc.to, err)
			}
		}
	}
}

func TestOrderStatus_Terminal(t *testing.T) {
	for _, s := range []OrderStatus{OrderCancelled, OrderReturned} {
		if !s.IsTerminal() {
			t.Fatalf("%s should be terminal", s)
		}
	}
	if OrderDelivered.IsTerminal() {
		t.Fatalf("delivered still allows returned")
	}
	if OrderStatus("lost").Valid() {
		t.Fatalf("unknown status reported valid")
	}
}

func TestPrescription_CheckFor(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(24 * time.Hour)

	base := Prescription{ID: "rx1", UserID: "u1", Status: PrescriptionStatusVerified, MedicineIDs: []string{"m1"}}

	cases := []struct {
		name   string
		mutate func(p *Prescription)
		user   string
		med    string
		want   PrescriptionIssue
	}{
		{"verified no expiry", func(p *Prescription) {}, "u1", "m1", IssueNone},
		{"verified future expiry", func(p *Prescription) { p.ValidUntil = &future }, "u1", "m1", IssueNone},
		{"verified past expiry", func(p *Prescription) { p.ValidUntil = &past }, "u1", "m1", IssueExpired},
		{"expiry equals now", func(p *Prescription) { n := now; p.ValidUntil = &n }, "u1", "m1", IssueExpired},
		{"expired status", func(p *Prescription) { p.Status = PrescriptionStatusExpired }, "u1", "m1", IssueExpired},
		{"pending", func(p *Prescription) { p.Status = PrescriptionStatusPending }, "u1", "m1", IssueNotVerified},
		{"rejected", func(p *Prescription) { p.Status = PrescriptionStatusRejected }, "u1", "m1", IssueNotVerified},
		{"other user", func(p *Prescription) {}, "u2", "m1", IssueNotOwned},
		{"not covering", func(p *Prescription) {}, "u1", "m2", IssueNotCovering},
		{"empty list covers all", func(p *Prescription) { p.MedicineIDs = nil }, "u1", "m2", IssueNone},
	}
	for _, tc := range cases {
		p := base
		p.MedicineIDs = append([]string(nil), base.MedicineIDs...)
		tc.mutate(&p)
		if got := p.CheckFor(tc.user, tc.med, now); got != tc.want {
			t.Fatalf("%s: got %q want %q", tc.name, got, tc.want)
		}
	}
}

func TestPrescription_CanMoveTo(t *testing.T) {
	p := Prescription{Status: PrescriptionStatusVerified}
	if p.CanMoveTo(PrescriptionStatusRejected) {
		t.Fatalf("verified prescription must not be rejected")
	}
	if !p.CanMoveTo(PrescriptionStatusExpired) {
		t.Fatalf("verified prescription must be able to expire")
	}
	p.Status = PrescriptionStatusRejected
	if p.CanMoveTo(PrescriptionStatusVerified) {
		t.Fatalf("rejected is final")
	}
}
