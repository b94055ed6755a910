package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"medicart/internal/domain"
	"medicart/internal/repository"
)

// PrescriptionService hosts upload and the pharmacist review actions.
type PrescriptionService struct {
	repo  repository.PrescriptionRepository
	locks *keyLocker
	log   *slog.Logger
	now   func() time.Time
}

var _ PrescriptionRecords = (*PrescriptionService)(nil)

func NewPrescriptionService(repo repository.PrescriptionRepository, log *slog.Logger) *PrescriptionService {
	return &PrescriptionService{
		repo:  repo,
		locks: newKeyLocker(),
		log:   log,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// UploadInput is the structured result of reading an uploaded prescription.
type UploadInput struct {
	MedicineIDs []string
	DoctorName  string
	ValidUntil  *time.Time
}

// VerifyInput is the pharmacist's decision. A nil ValidUntil keeps the uploaded one.
type VerifyInput struct {
	ValidUntil *time.Time
	Notes      string
	VerifiedBy string
}

func (s *PrescriptionService) Upload(ctx context.Context, userID string, in UploadInput) (*domain.Prescription, error) {
	if userID == "" {
		return nil, ErrInvalidInput
	}
	now := s.now()
	if in.ValidUntil != nil && !in.ValidUntil.After(now) {
		return nil, fmt.Errorf("%w: valid_until is in the past", ErrInvalidInput)
	}
	p := domain.Prescription{
		UserID:      userID,
		Status:      domain.PrescriptionStatusPending,
		ValidUntil:  in.ValidUntil,
		MedicineIDs: dedupe(in.MedicineIDs),
		DoctorName:  in.DoctorName,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Create(ctx, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PrescriptionService) StartReview(ctx context.Context, id, by string) (*domain.Prescription, error) {
	return s.move(ctx, id, domain.PrescriptionStatusProcessing, func(p *domain.Prescription) error {
		p.VerifiedBy = by
		return nil
	})
}

func (s *PrescriptionService) Verify(ctx context.Context, id string, in VerifyInput) (*domain.Prescription, error) {
	return s.move(ctx, id, domain.PrescriptionStatusVerified, func(p *domain.Prescription) error {
		now := s.now()
		if in.ValidUntil != nil {
			if !in.ValidUntil.After(now) {
				return fmt.Errorf("%w: valid_until is in the past", ErrInvalidInput)
			}
			p.ValidUntil = in.ValidUntil
		}
		p.VerificationNotes = in.Notes
		p.VerifiedBy = in.VerifiedBy
		p.VerifiedAt = &now
		return nil
	})
}

func (s *PrescriptionService) Reject(ctx context.Context, id, notes, by string) (*domain.Prescription, error) {
	if notes == "" {
		return nil, fmt.Errorf("%w: rejection needs a note", ErrInvalidInput)
	}
	return s.move(ctx, id, domain.PrescriptionStatusRejected, func(p *domain.Prescription) error {
		now := s.now()
		p.VerificationNotes = notes
		p.VerifiedBy = by
		p.VerifiedAt = &now
		return nil
	})
}

// move applies a status change under the prescription's lock. Any move not
// in the transition table returns ErrPrescriptionImmutable.
func (s *PrescriptionService) move(ctx context.Context, id string, to domain.PrescriptionStatus, apply func(*domain.Prescription) error) (*domain.Prescription, error) {
	if id == "" {
		return nil, ErrInvalidInput
	}
	unlock, err := s.locks.Lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.CanMoveTo(to) {
		s.log.WarnContext(ctx, "prescription transition refused", "prescription_id", id, "from", p.Status, "to", to)
		return nil, fmt.Errorf("%w: %s to %s", ErrPrescriptionImmutable, p.Status, to)
	}
	if err := apply(p); err != nil {
		return nil, err
	}
	p.Status = to
	p.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *PrescriptionService) Get(ctx context.Context, id string) (*domain.Prescription, error) {
	if id == "" {
		return nil, ErrInvalidInput
	}
	p, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrPrescriptionNotFound
	}
	return p, err
}

// GetForUser hides other users' prescriptions behind ErrForbidden.
func (s *PrescriptionService) GetForUser(ctx context.Context, userID, id string) (*domain.Prescription, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.UserID != userID {
		return nil, ErrForbidden
	}
	return p, nil
}

func (s *PrescriptionService) ListByUser(ctx context.Context, userID string) ([]domain.Prescription, error) {
	if userID == "" {
		return nil, ErrInvalidInput
	}
	return s.repo.ListByUser(ctx, userID)
}

func (s *PrescriptionService) ListByStatus(ctx context.Context, status domain.PrescriptionStatus) ([]domain.Prescription, error) {
	return s.repo.ListByStatus(ctx, status)
}

// GetPrescription is the collaborator view used by cart validation.
func (s *PrescriptionService) GetPrescription(ctx context.Context, id string) (*domain.Prescription, error) {
	return s.repo.GetByID(ctx, id)
}

// ExpireDue moves verified prescriptions whose validity has passed to expired
// and returns how many were moved.
func (s *PrescriptionService) ExpireDue(ctx context.Context, now time.Time) (int, error) {
	verified, err := s.repo.ListByStatus(ctx, domain.PrescriptionStatusVerified)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, p := range verified {
		if !p.ExpiredAt(now) {
			continue
		}
		_, err := s.move(ctx, p.ID, domain.PrescriptionStatusExpired, func(*domain.Prescription) error { return nil })
		if errors.Is(err, ErrPrescriptionImmutable) {
			// changed since listing
			continue
		}
		if err != nil {
			return n, err
		}
		n++
	}
	if n > 0 {
		s.log.InfoContext(ctx, "prescriptions expired", "count", n)
	}
	return n, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
