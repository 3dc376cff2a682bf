package prescriptions

import (
	"context"
	"fmt"
	"time"

	"farmapos/internal/core/apperror"
	"farmapos/internal/core/id"
	"farmapos/internal/core/numerator"
	"farmapos/internal/core/tx"
	"farmapos/pkg/logger"
)

// Service manages the prescription lifecycle. Dispensing itself is the
// settlement engine's job; this service owns registration, cancellation
// and status queries.
type Service struct {
	repo      Repository
	txManager tx.Manager
	numerator numerator.Generator
}

// NewService creates a new prescription service.
func NewService(repo Repository, txManager tx.Manager, gen numerator.Generator) *Service {
	return &Service{
		repo:      repo,
		txManager: txManager,
		numerator: gen,
	}
}

// Create registers a prescription and assigns its RX number.
func (s *Service) Create(ctx context.Context, p *Prescription) error {
	p.Status = StatusPending
	for i := range p.Items {
		if id.IsNil(p.Items[i].ID) {
			p.Items[i].ID = id.New()
		}
		p.Items[i].PrescriptionID = p.ID
		p.Items[i].QuantityDispensed = 0
	}
	if err := p.Validate(ctx); err != nil {
		return err
	}

	// Number is drawn before the transaction; an abandoned number is a
	// gap in the sequence, not a consistency problem.
	number, err := s.numerator.GetNextNumber(ctx,
		numerator.DefaultConfig("RX"), numerator.DefaultOptions(), p.IssuedDate)
	if err != nil {
		return fmt.Errorf("generate prescription number: %w", err)
	}
	p.Number = number

	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		return s.repo.Create(ctx, p)
	})
	if err != nil {
		return fmt.Errorf("create prescription: %w", err)
	}

	logger.Info(ctx, "prescription registered",
		"id", p.ID,
		"number", p.Number,
		"patient", p.PatientName,
		"items", len(p.Items),
	)
	return nil
}

// GetByID fetches a prescription with its current derived status.
func (s *Service) GetByID(ctx context.Context, prescriptionID id.ID) (*Prescription, error) {
	p, err := s.repo.GetByID(ctx, prescriptionID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, apperror.NewNotFound("prescription", prescriptionID)
	}
	p.Status = DeriveStatus(p, time.Now().UTC())
	return p, nil
}

// GetByNumber fetches a prescription by its RX number.
func (s *Service) GetByNumber(ctx context.Context, number string) (*Prescription, error) {
	p, err := s.repo.GetByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, apperror.NewNotFound("prescription", number)
	}
	p.Status = DeriveStatus(p, time.Now().UTC())
	return p, nil
}

// List returns prescriptions with derived statuses.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]*Prescription, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	list, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	for _, p := range list {
		p.Status = DeriveStatus(p, now)
	}
	return list, nil
}

// Cancel marks a prescription CANCELLED. Only prescriptions that still
// have something to dispense can be cancelled; history is untouched.
func (s *Service) Cancel(ctx context.Context, prescriptionID id.ID) error {
	return s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		p, err := s.repo.GetByIDForUpdate(ctx, prescriptionID)
		if err != nil {
			return err
		}
		if p == nil {
			return apperror.NewNotFound("prescription", prescriptionID)
		}

		status := DeriveStatus(p, time.Now().UTC())
		if status == StatusDispensed || status == StatusCancelled {
			return apperror.NewPrescriptionClosed(prescriptionID.String(), string(status))
		}

		if err := s.repo.UpdateStatus(ctx, prescriptionID, StatusCancelled, p.Version); err != nil {
			return fmt.Errorf("cancel prescription: %w", err)
		}
		logger.Info(ctx, "prescription cancelled", "id", prescriptionID, "number", p.Number)
		return nil
	})
}

// History returns a prescription's dispensing events, oldest first.
func (s *Service) History(ctx context.Context, prescriptionID id.ID) ([]*DispensingEvent, error) {
	if _, err := s.GetByID(ctx, prescriptionID); err != nil {
		return nil, err
	}
	return s.repo.ListDispensingEvents(ctx, prescriptionID)
}
