package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medicart/internal/domain"
)

func TestPrescription_ReviewFlow(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	p, err := f.rx.Upload(ctx, "u1", UploadInput{MedicineIDs: []string{"m1", "m1", "", "m2"}, DoctorName: "Dr. Iyer"})
	require.NoError(t, err)
	assert.Equal(t, domain.PrescriptionStatusPending, p.Status)
	assert.Equal(t, []string{"m1", "m2"}, p.MedicineIDs)

	p, err = f.rx.StartReview(ctx, p.ID, "pharmacist-1")
	require.NoError(t, err)
	assert.Equal(t, domain.PrescriptionStatusProcessing, p.Status)

	until := time.Now().UTC().Add(30 * 24 * time.Hour)
	p, err = f.rx.Verify(ctx, p.ID, VerifyInput{ValidUntil: &until, Notes: "ok", VerifiedBy: "pharmacist-1"})
	require.NoError(t, err)
	assert.Equal(t, domain.PrescriptionStatusVerified, p.Status)
	require.NotNil(t, p.VerifiedAt)
	assert.True(t, p.ValidUntil.Equal(until))

	_, err = f.rx.Reject(ctx, p.ID, "late change", "pharmacist-2")
	assert.ErrorIs(t, err, ErrPrescriptionImmutable)
	_, err = f.rx.StartReview(ctx, p.ID, "pharmacist-2")
	assert.ErrorIs(t, err, ErrPrescriptionImmutable)

	stored, err := f.rx.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PrescriptionStatusVerified, stored.Status)
}

func TestPrescription_RejectIsFinal(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	p, err := f.rx.Upload(ctx, "u1", UploadInput{})
	require.NoError(t, err)

	_, err = f.rx.Reject(ctx, p.ID, "", "pharmacist-1")
	assert.ErrorIs(t, err, ErrInvalidInput)

	p, err = f.rx.Reject(ctx, p.ID, "unreadable", "pharmacist-1")
	require.NoError(t, err)
	assert.Equal(t, domain.PrescriptionStatusRejected, p.Status)

	_, err = f.rx.Verify(ctx, p.ID, VerifyInput{VerifiedBy: "pharmacist-1"})
	assert.ErrorIs(t, err, ErrPrescriptionImmutable)
}

func TestPrescription_UploadValidation(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	past := time.Now().UTC().Add(-time.Hour)

	_, err := f.rx.Upload(ctx, "", UploadInput{})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = f.rx.Upload(ctx, "u1", UploadInput{ValidUntil: &past})
	assert.ErrorIs(t, err, ErrInvalidInput)

	p, err := f.rx.Upload(ctx, "u1", UploadInput{})
	require.NoError(t, err)
	_, err = f.rx.Verify(ctx, p.ID, VerifyInput{ValidUntil: &past})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.rx.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrPrescriptionNotFound)
	_, err = f.rx.GetForUser(ctx, "u2", p.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	mine, err := f.rx.ListByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, mine, 1)
}

func TestPrescription_ExpireDue(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	soon := f.verifiedPrescription(t, "u1")
	later := time.Now().UTC().Add(90 * 24 * time.Hour)
	p, err := f.rx.Upload(ctx, "u1", UploadInput{ValidUntil: &later})
	require.NoError(t, err)
	_, err = f.rx.Verify(ctx, p.ID, VerifyInput{})
	require.NoError(t, err)
	open, err := f.rx.Upload(ctx, "u1", UploadInput{})
	require.NoError(t, err)
	_, err = f.rx.Verify(ctx, open.ID, VerifyInput{})
	require.NoError(t, err)

	n, err := f.rx.ExpireDue(ctx, time.Now().UTC().Add(10*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, _ := f.rx.Get(ctx, soon.ID)
	assert.Equal(t, domain.PrescriptionStatusExpired, got.Status)
	got, _ = f.rx.Get(ctx, p.ID)
	assert.Equal(t, domain.PrescriptionStatusVerified, got.Status)
	got, _ = f.rx.Get(ctx, open.ID)
	assert.Equal(t, domain.PrescriptionStatusVerified, got.Status, "no expiry date never expires")

	n, err = f.rx.ExpireDue(ctx, time.Now().UTC().Add(10*24*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)
}
