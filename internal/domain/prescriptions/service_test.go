package prescriptions

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"farmapos/internal/core/apperror"
	"farmapos/internal/core/id"
	"farmapos/internal/core/numerator"
	"farmapos/internal/core/types"
)

type passthroughTx struct{}

func (passthroughTx) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// fakeRepo is an in-memory Repository.
type fakeRepo struct {
	byID          map[id.ID]*Prescription
	statusUpdates []Status
	events        map[id.ID][]*DispensingEvent
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		byID:   make(map[id.ID]*Prescription),
		events: make(map[id.ID][]*DispensingEvent),
	}
}

func (r *fakeRepo) Create(ctx context.Context, p *Prescription) error {
	cp := *p
	r.byID[p.ID] = &cp
	return nil
}

func (r *fakeRepo) GetByID(ctx context.Context, prescriptionID id.ID) (*Prescription, error) {
	p, ok := r.byID[prescriptionID]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (r *fakeRepo) GetByIDForUpdate(ctx context.Context, prescriptionID id.ID) (*Prescription, error) {
	return r.GetByID(ctx, prescriptionID)
}

func (r *fakeRepo) GetByNumber(ctx context.Context, number string) (*Prescription, error) {
	for _, p := range r.byID {
		if p.Number == number {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeRepo) List(ctx context.Context, filter ListFilter) ([]*Prescription, error) {
	out := make([]*Prescription, 0, len(r.byID))
	for _, p := range r.byID {
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

func (r *fakeRepo) UpdateStatus(ctx context.Context, prescriptionID id.ID, status Status, version int) error {
	p, ok := r.byID[prescriptionID]
	if !ok {
		return apperror.NewNotFound("prescription", prescriptionID)
	}
	p.Status = status
	p.Version = version + 1
	r.statusUpdates = append(r.statusUpdates, status)
	return nil
}

func (r *fakeRepo) AddDispensedQuantity(ctx context.Context, itemID id.ID, delta int64) error {
	for _, p := range r.byID {
		for i := range p.Items {
			if p.Items[i].ID == itemID {
				p.Items[i].QuantityDispensed += types.Quantity(delta)
				return nil
			}
		}
	}
	return apperror.NewNotFound("prescription item", itemID)
}

func (r *fakeRepo) InsertDispensingEvent(ctx context.Context, event *DispensingEvent) error {
	r.events[event.PrescriptionID] = append(r.events[event.PrescriptionID], event)
	return nil
}

func (r *fakeRepo) GetDispensingEventBySale(ctx context.Context, saleID id.ID) (*DispensingEvent, error) {
	for _, list := range r.events {
		for _, e := range list {
			if e.SaleID == saleID {
				return e, nil
			}
		}
	}
	return nil, nil
}

func (r *fakeRepo) ListDispensingEvents(ctx context.Context, prescriptionID id.ID) ([]*DispensingEvent, error) {
	return r.events[prescriptionID], nil
}

var _ Repository = (*fakeRepo)(nil)

func newTestService(repo *fakeRepo) *Service {
	gen := &numerator.MockGenerator{
		GetNextNumberFunc: func(ctx context.Context, cfg numerator.Config, opts *numerator.Options, period time.Time) (string, error) {
			return cfg.Prefix + "-2026-00042", nil
		},
	}
	return NewService(repo, passthroughTx{}, gen)
}

func validPrescription() *Prescription {
	p := testPrescription(
		PrescriptionItem{StockUnitID: id.New(), QuantityPrescribed: 10},
		PrescriptionItem{StockUnitID: id.New(), QuantityPrescribed: 5},
	)
	p.Number = ""
	return p
}

func TestService_Create(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)

	p := validPrescription()
	// Dirty input: the service must reset these itself.
	p.Status = StatusDispensed
	p.Items[0].QuantityDispensed = 99
	p.Items[0].ID = id.Nil()

	err := svc.Create(context.Background(), p)
	require.NoError(t, err)

	assert.Equal(t, "RX-2026-00042", p.Number)
	assert.Equal(t, StatusPending, p.Status)
	for _, item := range p.Items {
		assert.False(t, id.IsNil(item.ID))
		assert.Equal(t, p.ID, item.PrescriptionID)
		assert.True(t, item.QuantityDispensed.IsZero())
	}

	stored, _ := repo.GetByID(context.Background(), p.ID)
	require.NotNil(t, stored)
	assert.Equal(t, p.Number, stored.Number)
}

func TestService_Create_Invalid(t *testing.T) {
	svc := newTestService(newFakeRepo())

	p := validPrescription()
	p.PatientName = ""
	err := svc.Create(context.Background(), p)
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))

	p = validPrescription()
	p.Items = nil
	err = svc.Create(context.Background(), p)
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))

	p = validPrescription()
	p.ExpiryDate = p.IssuedDate
	err = svc.Create(context.Background(), p)
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))

	dup := id.New()
	p = validPrescription()
	p.Items[0].StockUnitID = dup
	p.Items[1].StockUnitID = dup
	err = svc.Create(context.Background(), p)
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
}

func TestService_GetByID_DerivesStatus(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)

	p := validPrescription()
	require.NoError(t, svc.Create(context.Background(), p))

	// Simulate a partial dispensing recorded directly in storage.
	repo.byID[p.ID].Items[0].QuantityDispensed = 3

	got, err := svc.GetByID(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPartial, got.Status)
}

func TestService_GetByID_NotFound(t *testing.T) {
	svc := newTestService(newFakeRepo())
	_, err := svc.GetByID(context.Background(), id.New())
	assert.True(t, apperror.IsNotFound(err))
}

func TestService_GetByNumber(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)

	p := validPrescription()
	require.NoError(t, svc.Create(context.Background(), p))

	got, err := svc.GetByNumber(context.Background(), "RX-2026-00042")
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)

	_, err = svc.GetByNumber(context.Background(), "RX-2026-99999")
	assert.True(t, apperror.IsNotFound(err))
}

func TestService_Cancel(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)

	p := validPrescription()
	require.NoError(t, svc.Create(context.Background(), p))

	require.NoError(t, svc.Cancel(context.Background(), p.ID))
	assert.Equal(t, []Status{StatusCancelled}, repo.statusUpdates)

	// Cancelling twice hits the terminal-status guard.
	err := svc.Cancel(context.Background(), p.ID)
	assert.True(t, apperror.HasCode(err, apperror.CodePrescriptionClosed))
}

func TestService_Cancel_FullyDispensed(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)

	p := validPrescription()
	require.NoError(t, svc.Create(context.Background(), p))
	for i := range repo.byID[p.ID].Items {
		repo.byID[p.ID].Items[i].QuantityDispensed = repo.byID[p.ID].Items[i].QuantityPrescribed
	}

	err := svc.Cancel(context.Background(), p.ID)
	assert.True(t, apperror.HasCode(err, apperror.CodePrescriptionClosed))
}

func TestService_History(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)

	p := validPrescription()
	require.NoError(t, svc.Create(context.Background(), p))

	event := &DispensingEvent{
		ID:             id.New(),
		PrescriptionID: p.ID,
		SaleID:         id.New(),
		DispensedBy:    "op-1",
		DispensedAt:    time.Now().UTC(),
	}
	require.NoError(t, repo.InsertDispensingEvent(context.Background(), event))

	events, err := svc.History(context.Background(), p.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, event.ID, events[0].ID)

	_, err = svc.History(context.Background(), id.New())
	assert.True(t, apperror.IsNotFound(err))
}
