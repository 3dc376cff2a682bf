package settlement

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"farmapos/internal/core/apperror"
	appctx "farmapos/internal/core/context"
	"farmapos/internal/core/entity"
	"farmapos/internal/core/id"
	"farmapos/internal/core/numerator"
	"farmapos/internal/core/types"
	catalog "farmapos/internal/domain/catalogs/customer"
	"farmapos/internal/domain/catalogs/stockunit"
	custledger "farmapos/internal/domain/ledgers/customer"
	"farmapos/internal/domain/prescriptions"
	"farmapos/internal/domain/pricing"
	"farmapos/internal/domain/registers/controlled"
	stockreg "farmapos/internal/domain/registers/stock"
)

// rollbackTx runs the callback over the in-memory fakes the way a
// database transaction would: state is snapshotted on entry and put
// back when the callback fails, and a mutex serializes transactions
// the way row locks serialize them in postgres.
type rollbackTx struct {
	mu  sync.Mutex
	env *engineEnv
}

func (m *rollbackTx) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := m.env.snapshot()
	if err := fn(ctx); err != nil {
		m.env.restore(snap)
		return err
	}
	return nil
}

type fakeSaleRepo struct {
	sales    map[id.ID]*Sale
	receipts map[id.ID]*GoodsReceipt

	// createSaleErr injects a storage fault mid-transaction.
	createSaleErr error
}

func newFakeSaleRepo() *fakeSaleRepo {
	return &fakeSaleRepo{
		sales:    make(map[id.ID]*Sale),
		receipts: make(map[id.ID]*GoodsReceipt),
	}
}

func (r *fakeSaleRepo) CreateSale(ctx context.Context, sale *Sale) error {
	if r.createSaleErr != nil {
		return r.createSaleErr
	}
	r.sales[sale.ID] = sale
	return nil
}

func (r *fakeSaleRepo) GetSaleByID(ctx context.Context, saleID id.ID) (*Sale, error) {
	return r.sales[saleID], nil
}

func (r *fakeSaleRepo) GetSaleByIDForUpdate(ctx context.Context, saleID id.ID) (*Sale, error) {
	return r.sales[saleID], nil
}

func (r *fakeSaleRepo) ListSales(ctx context.Context, filter SaleFilter) ([]*Sale, error) {
	var out []*Sale
	for _, s := range r.sales {
		out = append(out, s)
	}
	return out, nil
}

func (r *fakeSaleRepo) MarkVoided(ctx context.Context, sale *Sale) error {
	r.sales[sale.ID] = sale
	return nil
}

func (r *fakeSaleRepo) CreateReceipt(ctx context.Context, receipt *GoodsReceipt) error {
	r.receipts[receipt.ID] = receipt
	return nil
}

func (r *fakeSaleRepo) GetReceiptByID(ctx context.Context, receiptID id.ID) (*GoodsReceipt, error) {
	return r.receipts[receiptID], nil
}

func (r *fakeSaleRepo) ListReceipts(ctx context.Context, stockUnitID id.ID, limit, offset int) ([]*GoodsReceipt, error) {
	var out []*GoodsReceipt
	for _, gr := range r.receipts {
		if gr.StockUnitID == stockUnitID {
			out = append(out, gr)
		}
	}
	return out, nil
}

var _ Repository = (*fakeSaleRepo)(nil)

type fakeUnitRepo struct {
	units map[id.ID]*stockunit.StockUnit
}

func (r *fakeUnitRepo) Create(ctx context.Context, unit *stockunit.StockUnit) error {
	r.units[unit.ID] = unit
	return nil
}

func (r *fakeUnitRepo) Update(ctx context.Context, unit *stockunit.StockUnit) error {
	r.units[unit.ID] = unit
	return nil
}

func (r *fakeUnitRepo) GetByID(ctx context.Context, unitID id.ID) (*stockunit.StockUnit, error) {
	return r.units[unitID], nil
}

func (r *fakeUnitRepo) GetByIDForUpdate(ctx context.Context, unitID id.ID) (*stockunit.StockUnit, error) {
	return r.units[unitID], nil
}

func (r *fakeUnitRepo) GetByBatch(ctx context.Context, medicineName, batchNumber string) (*stockunit.StockUnit, error) {
	for _, u := range r.units {
		if u.MedicineName == medicineName && u.BatchNumber == batchNumber {
			return u, nil
		}
	}
	return nil, nil
}

func (r *fakeUnitRepo) List(ctx context.Context, filter stockunit.ListFilter) ([]*stockunit.StockUnit, error) {
	var out []*stockunit.StockUnit
	for _, u := range r.units {
		out = append(out, u)
	}
	return out, nil
}

func (r *fakeUnitRepo) SetDeletionMark(ctx context.Context, unitID id.ID, mark bool) error {
	if u, ok := r.units[unitID]; ok {
		u.DeletionMark = mark
	}
	return nil
}

var _ stockunit.Repository = (*fakeUnitRepo)(nil)

// fakeStockRepo backs the stock register with the shared unit map, so
// on-hand adjustments are visible to both the register and the catalog.
type fakeStockRepo struct {
	units     map[id.ID]*stockunit.StockUnit
	movements []entity.StockMovement
}

func (r *fakeStockRepo) CreateMovements(ctx context.Context, movements []entity.StockMovement) error {
	r.movements = append(r.movements, movements...)
	return nil
}

func (r *fakeStockRepo) GetOnHandForUpdate(ctx context.Context, stockUnitID id.ID) (types.Quantity, error) {
	if u, ok := r.units[stockUnitID]; ok {
		return u.OnHand, nil
	}
	return 0, nil
}

func (r *fakeStockRepo) AdjustOnHand(ctx context.Context, stockUnitID id.ID, delta types.Quantity) error {
	if u, ok := r.units[stockUnitID]; ok {
		u.OnHand += delta
	}
	return nil
}

func (r *fakeStockRepo) GetOnHand(ctx context.Context, stockUnitID id.ID) (types.Quantity, error) {
	return r.GetOnHandForUpdate(ctx, stockUnitID)
}

func (r *fakeStockRepo) GetMovementHistory(ctx context.Context, stockUnitID id.ID, filter stockreg.MovementFilter) ([]entity.StockMovement, error) {
	var out []entity.StockMovement
	for _, m := range r.movements {
		if m.StockUnitID == stockUnitID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *fakeStockRepo) GetBalanceAtDate(ctx context.Context, stockUnitID id.ID, date time.Time) (types.Quantity, error) {
	var total types.Quantity
	for _, m := range r.movements {
		if m.StockUnitID == stockUnitID && !m.Period.After(date) {
			total += m.SignedQuantity()
		}
	}
	return total, nil
}

var _ stockreg.Repository = (*fakeStockRepo)(nil)

type fakeControlledRepo struct {
	chains map[id.ID][]*controlled.RegisterEntry
}

func newFakeControlledRepo() *fakeControlledRepo {
	return &fakeControlledRepo{chains: make(map[id.ID][]*controlled.RegisterEntry)}
}

func (r *fakeControlledRepo) GetChainHeadForUpdate(ctx context.Context, stockUnitID id.ID) (*controlled.RegisterEntry, error) {
	chain := r.chains[stockUnitID]
	if len(chain) == 0 {
		return nil, nil
	}
	return chain[len(chain)-1], nil
}

func (r *fakeControlledRepo) GetChainHead(ctx context.Context, stockUnitID id.ID) (*controlled.RegisterEntry, error) {
	return r.GetChainHeadForUpdate(ctx, stockUnitID)
}

func (r *fakeControlledRepo) Insert(ctx context.Context, entry *controlled.RegisterEntry) error {
	r.chains[entry.StockUnitID] = append(r.chains[entry.StockUnitID], entry)
	return nil
}

func (r *fakeControlledRepo) GetByID(ctx context.Context, entryID id.ID) (*controlled.RegisterEntry, error) {
	for _, chain := range r.chains {
		for _, e := range chain {
			if e.ID == entryID {
				return e, nil
			}
		}
	}
	return nil, nil
}

func (r *fakeControlledRepo) GetByIDForUpdate(ctx context.Context, entryID id.ID) (*controlled.RegisterEntry, error) {
	return r.GetByID(ctx, entryID)
}

func (r *fakeControlledRepo) SetVerified(ctx context.Context, entryID id.ID, verifierID string, verifiedAt time.Time) error {
	e, _ := r.GetByID(ctx, entryID)
	if e != nil {
		e.VerifiedBy = &verifierID
		e.VerifiedAt = &verifiedAt
	}
	return nil
}

func (r *fakeControlledRepo) List(ctx context.Context, filter controlled.EntryFilter) ([]*controlled.RegisterEntry, error) {
	var out []*controlled.RegisterEntry
	for _, chain := range r.chains {
		out = append(out, chain...)
	}
	return out, nil
}

func (r *fakeControlledRepo) ListChain(ctx context.Context, stockUnitID id.ID) ([]*controlled.RegisterEntry, error) {
	return r.chains[stockUnitID], nil
}

var _ controlled.Repository = (*fakeControlledRepo)(nil)

type fakeLedgerRepo struct {
	loyalty []*custledger.LoyaltyTransaction
	credit  []*custledger.CreditTransaction
}

func (r *fakeLedgerRepo) InsertLoyalty(ctx context.Context, tx *custledger.LoyaltyTransaction) error {
	r.loyalty = append(r.loyalty, tx)
	return nil
}

func (r *fakeLedgerRepo) InsertCredit(ctx context.Context, tx *custledger.CreditTransaction) error {
	r.credit = append(r.credit, tx)
	return nil
}

func (r *fakeLedgerRepo) ListLoyalty(ctx context.Context, customerID id.ID, filter custledger.HistoryFilter) ([]*custledger.LoyaltyTransaction, error) {
	return r.loyalty, nil
}

func (r *fakeLedgerRepo) ListCredit(ctx context.Context, customerID id.ID, filter custledger.HistoryFilter) ([]*custledger.CreditTransaction, error) {
	return r.credit, nil
}

func (r *fakeLedgerRepo) ListLoyaltyByRecorder(ctx context.Context, recorderID id.ID) ([]*custledger.LoyaltyTransaction, error) {
	var out []*custledger.LoyaltyTransaction
	for _, tx := range r.loyalty {
		if tx.RecorderID == recorderID {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (r *fakeLedgerRepo) ListCreditByRecorder(ctx context.Context, recorderID id.ID) ([]*custledger.CreditTransaction, error) {
	var out []*custledger.CreditTransaction
	for _, tx := range r.credit {
		if tx.RecorderID == recorderID {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (r *fakeLedgerRepo) SumLoyalty(ctx context.Context, customerID id.ID) (int64, error) {
	var sum int64
	for _, tx := range r.loyalty {
		if tx.CustomerID == customerID {
			sum += tx.Delta.Int64()
		}
	}
	return sum, nil
}

func (r *fakeLedgerRepo) SumCredit(ctx context.Context, customerID id.ID) (int64, error) {
	var sum int64
	for _, tx := range r.credit {
		if tx.CustomerID == customerID {
			sum += int64(tx.Delta)
		}
	}
	return sum, nil
}

var _ custledger.Repository = (*fakeLedgerRepo)(nil)

type fakeCustomerRepo struct {
	customers map[id.ID]*catalog.Customer
}

func (r *fakeCustomerRepo) Create(ctx context.Context, c *catalog.Customer) error {
	r.customers[c.ID] = c
	return nil
}

func (r *fakeCustomerRepo) Update(ctx context.Context, c *catalog.Customer) error {
	r.customers[c.ID] = c
	return nil
}

func (r *fakeCustomerRepo) GetByID(ctx context.Context, customerID id.ID) (*catalog.Customer, error) {
	return r.customers[customerID], nil
}

func (r *fakeCustomerRepo) GetByIDForUpdate(ctx context.Context, customerID id.ID) (*catalog.Customer, error) {
	return r.customers[customerID], nil
}

func (r *fakeCustomerRepo) List(ctx context.Context, filter catalog.ListFilter) ([]*catalog.Customer, error) {
	var out []*catalog.Customer
	for _, c := range r.customers {
		out = append(out, c)
	}
	return out, nil
}

func (r *fakeCustomerRepo) UpdateBalances(ctx context.Context, customerID id.ID, points types.Points, credit types.MinorUnits) error {
	c, ok := r.customers[customerID]
	if !ok {
		return apperror.NewNotFound("customer", customerID)
	}
	c.LoyaltyPoints = points
	c.CreditBalance = credit
	return nil
}

func (r *fakeCustomerRepo) SetDeletionMark(ctx context.Context, customerID id.ID, marked bool) error {
	return nil
}

var _ catalog.Repository = (*fakeCustomerRepo)(nil)

// fakeRxRepo stores deep copies so the engine's in-memory mutations do
// not leak into the stored state.
type fakeRxRepo struct {
	byID   map[id.ID]*prescriptions.Prescription
	events map[id.ID]*prescriptions.DispensingEvent
}

func newFakeRxRepo() *fakeRxRepo {
	return &fakeRxRepo{
		byID:   make(map[id.ID]*prescriptions.Prescription),
		events: make(map[id.ID]*prescriptions.DispensingEvent),
	}
}

func copyRx(p *prescriptions.Prescription) *prescriptions.Prescription {
	cp := *p
	cp.Items = make([]prescriptions.PrescriptionItem, len(p.Items))
	copy(cp.Items, p.Items)
	return &cp
}

func (r *fakeRxRepo) Create(ctx context.Context, p *prescriptions.Prescription) error {
	r.byID[p.ID] = copyRx(p)
	return nil
}

func (r *fakeRxRepo) GetByID(ctx context.Context, prescriptionID id.ID) (*prescriptions.Prescription, error) {
	p, ok := r.byID[prescriptionID]
	if !ok {
		return nil, nil
	}
	return copyRx(p), nil
}

func (r *fakeRxRepo) GetByIDForUpdate(ctx context.Context, prescriptionID id.ID) (*prescriptions.Prescription, error) {
	return r.GetByID(ctx, prescriptionID)
}

func (r *fakeRxRepo) GetByNumber(ctx context.Context, number string) (*prescriptions.Prescription, error) {
	for _, p := range r.byID {
		if p.Number == number {
			return copyRx(p), nil
		}
	}
	return nil, nil
}

func (r *fakeRxRepo) List(ctx context.Context, filter prescriptions.ListFilter) ([]*prescriptions.Prescription, error) {
	var out []*prescriptions.Prescription
	for _, p := range r.byID {
		out = append(out, copyRx(p))
	}
	return out, nil
}

func (r *fakeRxRepo) UpdateStatus(ctx context.Context, prescriptionID id.ID, status prescriptions.Status, version int) error {
	if p, ok := r.byID[prescriptionID]; ok {
		p.Status = status
		p.Version++
	}
	return nil
}

func (r *fakeRxRepo) AddDispensedQuantity(ctx context.Context, itemID id.ID, delta int64) error {
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

func (r *fakeRxRepo) InsertDispensingEvent(ctx context.Context, event *prescriptions.DispensingEvent) error {
	r.events[event.ID] = event
	return nil
}

func (r *fakeRxRepo) GetDispensingEventBySale(ctx context.Context, saleID id.ID) (*prescriptions.DispensingEvent, error) {
	for _, e := range r.events {
		if e.SaleID == saleID {
			return e, nil
		}
	}
	return nil, nil
}

func (r *fakeRxRepo) ListDispensingEvents(ctx context.Context, prescriptionID id.ID) ([]*prescriptions.DispensingEvent, error) {
	var out []*prescriptions.DispensingEvent
	for _, e := range r.events {
		if e.PrescriptionID == prescriptionID {
			out = append(out, e)
		}
	}
	return out, nil
}

var _ prescriptions.Repository = (*fakeRxRepo)(nil)

type publishedEvent struct {
	aggregateType string
	aggregateID   id.ID
	eventType     string
	payload       any
}

type fakeEvents struct {
	published []publishedEvent
}

func (f *fakeEvents) PublishEvent(ctx context.Context, aggregateType string, aggregateID id.ID, eventType string, payload any) error {
	f.published = append(f.published, publishedEvent{aggregateType, aggregateID, eventType, payload})
	return nil
}

// engineEnv bundles the engine with the fakes behind it.
type engineEnv struct {
	sales      *fakeSaleRepo
	units      *fakeUnitRepo
	stock      *fakeStockRepo
	controlled *fakeControlledRepo
	ledger     *fakeLedgerRepo
	customers  *fakeCustomerRepo
	rx         *fakeRxRepo
	events     *fakeEvents
	engine     *Engine
}

func newEngineEnv(t *testing.T, eval *pricing.Evaluator) *engineEnv {
	t.Helper()

	unitMap := make(map[id.ID]*stockunit.StockUnit)
	env := &engineEnv{
		sales:      newFakeSaleRepo(),
		units:      &fakeUnitRepo{units: unitMap},
		stock:      &fakeStockRepo{units: unitMap},
		controlled: newFakeControlledRepo(),
		ledger:     &fakeLedgerRepo{},
		customers:  &fakeCustomerRepo{customers: make(map[id.ID]*catalog.Customer)},
		rx:         newFakeRxRepo(),
		events:     &fakeEvents{},
	}

	// Numbers are drawn before the transaction opens, so the mock
	// needs its own lock for the concurrent tests.
	var (
		seqMu sync.Mutex
		seq   int
	)
	gen := &numerator.MockGenerator{
		GetNextNumberFunc: func(ctx context.Context, cfg numerator.Config, opts *numerator.Options, period time.Time) (string, error) {
			seqMu.Lock()
			defer seqMu.Unlock()
			seq++
			return fmt.Sprintf("%s-2026-%05d", cfg.Prefix, seq), nil
		},
	}

	env.engine = NewEngine(
		&rollbackTx{env: env},
		env.sales,
		env.units,
		stockreg.NewService(env.stock),
		controlled.NewService(env.controlled),
		custledger.NewService(env.ledger, env.customers),
		env.rx,
		eval,
		gen,
		env.events,
		DefaultConfig(),
	)
	return env
}

// txSnapshot holds a deep copy of every fake's state.
type txSnapshot struct {
	sales     map[id.ID]Sale
	receipts  map[id.ID]GoodsReceipt
	units     map[id.ID]stockunit.StockUnit
	movements []entity.StockMovement
	chains    map[id.ID][]*controlled.RegisterEntry
	loyalty   []*custledger.LoyaltyTransaction
	credit    []*custledger.CreditTransaction
	customers map[id.ID]catalog.Customer
	rx        map[id.ID]*prescriptions.Prescription
	rxEvents  map[id.ID]*prescriptions.DispensingEvent
	published []publishedEvent
}

func (env *engineEnv) snapshot() txSnapshot {
	s := txSnapshot{
		sales:     make(map[id.ID]Sale, len(env.sales.sales)),
		receipts:  make(map[id.ID]GoodsReceipt, len(env.sales.receipts)),
		units:     make(map[id.ID]stockunit.StockUnit, len(env.units.units)),
		movements: append([]entity.StockMovement(nil), env.stock.movements...),
		chains:    make(map[id.ID][]*controlled.RegisterEntry, len(env.controlled.chains)),
		loyalty:   append([]*custledger.LoyaltyTransaction(nil), env.ledger.loyalty...),
		credit:    append([]*custledger.CreditTransaction(nil), env.ledger.credit...),
		customers: make(map[id.ID]catalog.Customer, len(env.customers.customers)),
		rx:        make(map[id.ID]*prescriptions.Prescription, len(env.rx.byID)),
		rxEvents:  make(map[id.ID]*prescriptions.DispensingEvent, len(env.rx.events)),
		published: append([]publishedEvent(nil), env.events.published...),
	}
	for k, v := range env.sales.sales {
		cp := *v
		cp.Lines = append([]SaleLine(nil), v.Lines...)
		s.sales[k] = cp
	}
	for k, v := range env.sales.receipts {
		s.receipts[k] = *v
	}
	for k, v := range env.units.units {
		s.units[k] = *v
	}
	for k, chain := range env.controlled.chains {
		s.chains[k] = append([]*controlled.RegisterEntry(nil), chain...)
	}
	for k, v := range env.customers.customers {
		s.customers[k] = *v
	}
	for k, v := range env.rx.byID {
		s.rx[k] = copyRx(v)
	}
	for k, v := range env.rx.events {
		s.rxEvents[k] = v
	}
	return s
}

// restore writes the snapshot back. Objects that existed before the
// transaction keep their pointer identity, so references held by
// tests observe the rollback.
func (env *engineEnv) restore(s txSnapshot) {
	for k := range env.sales.sales {
		if _, ok := s.sales[k]; !ok {
			delete(env.sales.sales, k)
		}
	}
	for k, v := range s.sales {
		*env.sales.sales[k] = v
	}
	for k := range env.sales.receipts {
		if _, ok := s.receipts[k]; !ok {
			delete(env.sales.receipts, k)
		}
	}
	for k, v := range s.receipts {
		*env.sales.receipts[k] = v
	}

	// The unit map is shared between the catalog and stock fakes, so
	// it is rewritten in place rather than replaced.
	for k := range env.units.units {
		if _, ok := s.units[k]; !ok {
			delete(env.units.units, k)
		}
	}
	for k, v := range s.units {
		*env.units.units[k] = v
	}

	env.stock.movements = s.movements
	env.controlled.chains = s.chains
	env.ledger.loyalty = s.loyalty
	env.ledger.credit = s.credit

	for k := range env.customers.customers {
		if _, ok := s.customers[k]; !ok {
			delete(env.customers.customers, k)
		}
	}
	for k, v := range s.customers {
		*env.customers.customers[k] = v
	}

	for k := range env.rx.byID {
		if _, ok := s.rx[k]; !ok {
			delete(env.rx.byID, k)
		}
	}
	for k, v := range s.rx {
		*env.rx.byID[k] = *v
	}
	env.rx.events = s.rxEvents
	env.events.published = s.published
}

func operatorCtx(operatorID string) context.Context {
	return appctx.WithOperator(context.Background(), &appctx.OperatorContext{
		OperatorID: operatorID,
		Name:       "Test Operator",
		Roles:      []string{"PHARMACIST"},
	})
}

func (env *engineEnv) addUnit(name string, onHand types.Quantity, price types.MinorUnits, schedule stockunit.ScheduleClass) *stockunit.StockUnit {
	unit := stockunit.NewStockUnit(name, "B-001", time.Now().AddDate(1, 0, 0), price)
	unit.OnHand = onHand
	unit.ScheduleClass = schedule
	env.units.units[unit.ID] = unit
	return unit
}

// seedControlledChain opens a register chain with one receipt entry so
// outgoing entries have a balance to draw from.
func (env *engineEnv) seedControlledChain(unitID id.ID, qty types.Quantity) {
	env.controlled.chains[unitID] = []*controlled.RegisterEntry{{
		ID:            id.New(),
		StockUnitID:   unitID,
		EntryNo:       1,
		Type:          controlled.EntryReceipt,
		QuantityIn:    qty,
		BalanceBefore: 0,
		BalanceAfter:  qty,
		Context:       controlled.ReceiptContext{SupplierName: "PharmaSupply Kft"},
		RecordedBy:    "seed",
		CreatedAt:     time.Now().UTC(),
	}}
}

func (env *engineEnv) addCustomer(points types.Points, credit, limit types.MinorUnits) *catalog.Customer {
	c := catalog.NewCustomer("Eszter Nagy", "+36301112233", limit)
	c.LoyaltyPoints = points
	c.CreditBalance = credit
	env.customers.customers[c.ID] = c
	return c
}

func TestSettleSale_HappyPath(t *testing.T) {
	env := newEngineEnv(t, nil)
	ctx := operatorCtx("op-1")
	unit := env.addUnit("Paracetamol 500mg", 100, 1500, stockunit.ScheduleNone)

	sale, err := env.engine.SettleSale(ctx, SaleRequest{
		Lines:         []LineRequest{{StockUnitID: unit.ID, Quantity: 3}},
		PaymentMethod: PayCash,
	})
	require.NoError(t, err)

	assert.Equal(t, "INV-2026-00001", sale.Number)
	assert.Equal(t, KindSale, sale.Kind)
	assert.Equal(t, SaleCompleted, sale.Status)
	assert.Equal(t, types.MinorUnits(4500), sale.Subtotal)
	assert.Equal(t, types.MinorUnits(4500), sale.Total)
	assert.Equal(t, "op-1", sale.OperatorID)

	require.Len(t, sale.Lines, 1)
	line := sale.Lines[0]
	assert.Equal(t, "Paracetamol 500mg", line.MedicineName)
	assert.Equal(t, types.MinorUnits(1500), line.UnitPrice)
	assert.Equal(t, types.MinorUnits(4500), line.LineTotal)
	assert.False(t, line.Controlled)

	// Stock moved and the movement is on the books.
	assert.Equal(t, types.Quantity(97), unit.OnHand)
	require.Len(t, env.stock.movements, 1)
	assert.Equal(t, entity.RecordTypeExpense, env.stock.movements[0].RecordType)
	assert.Equal(t, sale.ID, env.stock.movements[0].RecorderID)
	assert.Equal(t, "SALE", env.stock.movements[0].RecorderType)

	// No walk-in loyalty, no register entry for an unscheduled product.
	assert.Empty(t, env.ledger.loyalty)
	assert.Empty(t, env.controlled.chains)

	// Document stored and event published.
	assert.Contains(t, env.sales.sales, sale.ID)
	require.Len(t, env.events.published, 1)
	assert.Equal(t, "sale.settled", env.events.published[0].eventType)
	assert.Equal(t, sale.ID, env.events.published[0].aggregateID)
}

func TestSettleSale_MissingOperator(t *testing.T) {
	env := newEngineEnv(t, nil)
	unit := env.addUnit("Ibuprofen 400mg", 10, 900, stockunit.ScheduleNone)

	_, err := env.engine.SettleSale(context.Background(), SaleRequest{
		Lines:         []LineRequest{{StockUnitID: unit.ID, Quantity: 1}},
		PaymentMethod: PayCash,
	})
	assert.True(t, apperror.HasCode(err, apperror.CodeUnauthorized))
}

func TestSettleSale_InsufficientStock(t *testing.T) {
	env := newEngineEnv(t, nil)
	ctx := operatorCtx("op-1")
	unit := env.addUnit("Ibuprofen 400mg", 2, 900, stockunit.ScheduleNone)

	_, err := env.engine.SettleSale(ctx, SaleRequest{
		Lines:         []LineRequest{{StockUnitID: unit.ID, Quantity: 3}},
		PaymentMethod: PayCash,
	})
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeInsufficientStock))

	assert.Equal(t, types.Quantity(2), unit.OnHand)
	assert.Empty(t, env.sales.sales)
	assert.Empty(t, env.events.published)
}

func TestSettleSale_ExpiredBatch(t *testing.T) {
	env := newEngineEnv(t, nil)
	ctx := operatorCtx("op-1")
	unit := env.addUnit("Amoxicillin 250mg", 50, 2000, stockunit.ScheduleNone)
	unit.ExpiryDate = time.Now().AddDate(0, 0, -1)

	_, err := env.engine.SettleSale(ctx, SaleRequest{
		Lines:         []LineRequest{{StockUnitID: unit.ID, Quantity: 1}},
		PaymentMethod: PayCash,
	})
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeBusinessRule))
	assert.Equal(t, types.Quantity(50), unit.OnHand)
}

func TestSettleSale_ControlledRequiresPatient(t *testing.T) {
	env := newEngineEnv(t, nil)
	ctx := operatorCtx("op-1")
	unit := env.addUnit("Morphine 10mg", 20, 5000, stockunit.ScheduleII)
	env.seedControlledChain(unit.ID, 20)

	_, err := env.engine.SettleSale(ctx, SaleRequest{
		Lines:         []LineRequest{{StockUnitID: unit.ID, Quantity: 1}},
		PaymentMethod: PayCash,
	})
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
	assert.Equal(t, types.Quantity(20), unit.OnHand)
}

func TestSettleSale_ControlledWritesRegisterEntry(t *testing.T) {
	env := newEngineEnv(t, nil)
	ctx := operatorCtx("op-1")
	unit := env.addUnit("Morphine 10mg", 20, 5000, stockunit.ScheduleII)
	env.seedControlledChain(unit.ID, 20)

	sale, err := env.engine.SettleSale(ctx, SaleRequest{
		Lines:         []LineRequest{{StockUnitID: unit.ID, Quantity: 2}},
		PaymentMethod: PayCash,
		PatientName:   "Janos Kiss",
	})
	require.NoError(t, err)
	assert.True(t, sale.Lines[0].Controlled)

	chain := env.controlled.chains[unit.ID]
	require.Len(t, chain, 2)
	entry := chain[1]
	assert.Equal(t, controlled.EntrySale, entry.Type)
	assert.Equal(t, int64(2), entry.EntryNo)
	assert.Equal(t, types.Quantity(2), entry.QuantityOut)
	assert.Equal(t, types.Quantity(20), entry.BalanceBefore)
	assert.Equal(t, types.Quantity(18), entry.BalanceAfter)
	assert.Equal(t, "op-1", entry.RecordedBy)

	saleCtx, ok := entry.Context.(controlled.SaleContext)
	require.True(t, ok)
	assert.Equal(t, "Janos Kiss", saleCtx.PatientName)
}

func TestSettleSale_EarnsPoints(t *testing.T) {
	env := newEngineEnv(t, nil)
	ctx := operatorCtx("op-1")
	unit := env.addUnit("Vitamin D3", 100, 2550, stockunit.ScheduleNone)
	c := env.addCustomer(0, 0, 0)

	sale, err := env.engine.SettleSale(ctx, SaleRequest{
		Lines:         []LineRequest{{StockUnitID: unit.ID, Quantity: 2}},
		CustomerID:    &c.ID,
		PaymentMethod: PayCard,
	})
	require.NoError(t, err)

	// 5100 total at 1000 minor units per point earns 5.
	assert.Equal(t, types.MinorUnits(5100), sale.Total)
	assert.Equal(t, types.Points(5), sale.PointsEarned)
	assert.Equal(t, types.Points(5), env.customers.customers[c.ID].LoyaltyPoints)

	require.Len(t, env.ledger.loyalty, 1)
	assert.Equal(t, custledger.LoyaltyEarned, env.ledger.loyalty[0].Reason)
	assert.Equal(t, sale.ID, env.ledger.loyalty[0].RecorderID)
}

func TestSettleSale_RedeemPoints(t *testing.T) {
	env := newEngineEnv(t, nil)
	ctx := operatorCtx("op-1")
	unit := env.addUnit("Vitamin D3", 100, 3000, stockunit.ScheduleNone)
	c := env.addCustomer(50, 0, 0)

	sale, err := env.engine.SettleSale(ctx, SaleRequest{
		Lines:         []LineRequest{{StockUnitID: unit.ID, Quantity: 1}},
		CustomerID:    &c.ID,
		PaymentMethod: PayCash,
		RedeemPoints:  10,
	})
	require.NoError(t, err)

	// 10 points buy off 1000 minor units.
	assert.Equal(t, types.Points(10), sale.PointsRedeemed)
	assert.Equal(t, types.MinorUnits(1000), sale.PointsDiscount)
	assert.Equal(t, types.MinorUnits(2000), sale.Total)

	// Earn applies to the discounted total: 2000 / 1000 = 2.
	assert.Equal(t, types.Points(2), sale.PointsEarned)
	assert.Equal(t, types.Points(42), env.customers.customers[c.ID].LoyaltyPoints)
}

func TestSettleSale_RedeemExceedsDue(t *testing.T) {
	env := newEngineEnv(t, nil)
	ctx := operatorCtx("op-1")
	unit := env.addUnit("Throat Lozenges", 100, 500, stockunit.ScheduleNone)
	c := env.addCustomer(100, 0, 0)

	_, err := env.engine.SettleSale(ctx, SaleRequest{
		Lines:         []LineRequest{{StockUnitID: unit.ID, Quantity: 1}},
		CustomerID:    &c.ID,
		PaymentMethod: PayCash,
		RedeemPoints:  6,
	})
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
	assert.Equal(t, types.Points(100), env.customers.customers[c.ID].LoyaltyPoints)
}

func TestSettleSale_ManualDiscount(t *testing.T) {
	env := newEngineEnv(t, nil)
	ctx := operatorCtx("op-1")
	unit := env.addUnit("Ibuprofen 400mg", 100, 2000, stockunit.ScheduleNone)

	sale, err := env.engine.SettleSale(ctx, SaleRequest{
		Lines:         []LineRequest{{StockUnitID: unit.ID, Quantity: 2}},
		PaymentMethod: PayCash,
		Discount:      500,
	})
	require.NoError(t, err)

	assert.Equal(t, types.MinorUnits(4000), sale.Subtotal)
	assert.Equal(t, types.MinorUnits(500), sale.Discount)
	assert.Equal(t, types.MinorUnits(3500), sale.Total)
}

func TestSettleSale_DiscountClampsAtZero(t *testing.T) {
	env := newEngineEnv(t, nil)
	ctx := operatorCtx("op-1")
	unit := env.addUnit("Throat Lozenges", 100, 500, stockunit.ScheduleNone)

	sale, err := env.engine.SettleSale(ctx, SaleRequest{
		Lines:         []LineRequest{{StockUnitID: unit.ID, Quantity: 1}},
		PaymentMethod: PayCash,
		Discount:      800,
	})
	require.NoError(t, err)

	assert.Equal(t, types.MinorUnits(500), sale.Subtotal)
	assert.Equal(t, types.MinorUnits(0), sale.Total)
}

func TestSettleSale_RedeemRequiresCustomer(t *testing.T) {
	env := newEngineEnv(t, nil)
	ctx := operatorCtx("op-1")
	unit := env.addUnit("Throat Lozenges", 100, 500, stockunit.ScheduleNone)

	_, err := env.engine.SettleSale(ctx, SaleRequest{
		Lines:         []LineRequest{{StockUnitID: unit.ID, Quantity: 1}},
		PaymentMethod: PayCash,
		RedeemPoints:  5,
	})
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
}

func TestSettleSale_CreditCharge(t *testing.T) {
	env := newEngineEnv(t, nil)
	ctx := operatorCtx("op-1")
	unit := env.addUnit("Insulin Pen", 30, 8000, stockunit.ScheduleNone)
	c := env.addCustomer(0, 0, 20000)

	sale, err := env.engine.SettleSale(ctx, SaleRequest{
		Lines:         []LineRequest{{StockUnitID: unit.ID, Quantity: 2}},
		CustomerID:    &c.ID,
		PaymentMethod: PayCredit,
	})
	require.NoError(t, err)

	assert.Equal(t, types.MinorUnits(16000), sale.Total)
	assert.Equal(t, types.MinorUnits(16000), env.customers.customers[c.ID].CreditBalance)
	require.Len(t, env.ledger.credit, 1)
	assert.Equal(t, custledger.CreditCharge, env.ledger.credit[0].Reason)
}

func TestSettleSale_CreditLimitExceeded(t *testing.T) {
	env := newEngineEnv(t, nil)
	ctx := operatorCtx("op-1")
	unit := env.addUnit("Insulin Pen", 30, 8000, stockunit.ScheduleNone)
	c := env.addCustomer(0, 0, 10000)

	_, err := env.engine.SettleSale(ctx, SaleRequest{
		Lines:         []LineRequest{{StockUnitID: unit.ID, Quantity: 2}},
		CustomerID:    &c.ID,
		PaymentMethod: PayCredit,
	})
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeCreditLimitExceeded))

	// The rejection lands after stock already moved inside the
	// transaction, so everything must roll back with it.
	assert.Equal(t, types.Quantity(30), unit.OnHand)
	assert.Empty(t, env.stock.movements)
	assert.Equal(t, types.MinorUnits(0), env.customers.customers[c.ID].CreditBalance)
	assert.Empty(t, env.ledger.credit)
	assert.Empty(t, env.sales.sales)
	assert.Empty(t, env.events.published)
}

func TestSettleSale_StorageFaultRollsBack(t *testing.T) {
	env := newEngineEnv(t, nil)
	ctx := operatorCtx("op-1")
	unit := env.addUnit("Morphine 10mg", 20, 5000, stockunit.ScheduleII)
	env.seedControlledChain(unit.ID, 20)
	c := env.addCustomer(50, 0, 0)
	env.sales.createSaleErr = errors.New("write sale document: connection reset")

	_, err := env.engine.SettleSale(ctx, SaleRequest{
		Lines:         []LineRequest{{StockUnitID: unit.ID, Quantity: 2}},
		CustomerID:    &c.ID,
		PatientName:   "Janos Kiss",
		PaymentMethod: PayCash,
	})
	require.Error(t, err)

	// The document write is the last store in the transaction; the
	// stock, register and loyalty writes before it must all vanish.
	assert.Equal(t, types.Quantity(20), unit.OnHand)
	assert.Empty(t, env.stock.movements)
	assert.Len(t, env.controlled.chains[unit.ID], 1)
	assert.Equal(t, types.Points(50), env.customers.customers[c.ID].LoyaltyPoints)
	assert.Empty(t, env.ledger.loyalty)
	assert.Empty(t, env.sales.sales)
	assert.Empty(t, env.events.published)
}

func TestSettleSale_ConcurrentNoOversell(t *testing.T) {
	env := newEngineEnv(t, nil)
	unit := env.addUnit("Paracetamol 500mg", 5, 1500, stockunit.ScheduleNone)

	const buyers = 8
	errs := make(chan error, buyers)
	var wg sync.WaitGroup
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := env.engine.SettleSale(operatorCtx(fmt.Sprintf("op-%d", n)), SaleRequest{
				Lines:         []LineRequest{{StockUnitID: unit.ID, Quantity: 1}},
				PaymentMethod: PayCash,
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	var sold, rejected int
	for err := range errs {
		if err == nil {
			sold++
			continue
		}
		assert.True(t, apperror.HasCode(err, apperror.CodeInsufficientStock))
		rejected++
	}
	assert.Equal(t, 5, sold)
	assert.Equal(t, 3, rejected)
	assert.Equal(t, types.Quantity(0), unit.OnHand)
	assert.Len(t, env.stock.movements, 5)
	assert.Len(t, env.sales.sales, 5)
}

func TestSettleSale_PricingRuleApplied(t *testing.T) {
	eval, err := pricing.NewEvaluator([]pricing.Rule{
		{Name: "big-basket", Expression: "subtotal >= 5000 ? 500 : 0"},
	})
	require.NoError(t, err)

	env := newEngineEnv(t, eval)
	ctx := operatorCtx("op-1")
	unit := env.addUnit("Multivitamin", 100, 3000, stockunit.ScheduleNone)

	sale, err := env.engine.SettleSale(ctx, SaleRequest{
		Lines:         []LineRequest{{StockUnitID: unit.ID, Quantity: 2}},
		PaymentMethod: PayCash,
	})
	require.NoError(t, err)

	assert.Equal(t, types.MinorUnits(6000), sale.Subtotal)
	assert.Equal(t, types.MinorUnits(500), sale.RuleDiscount)
	assert.Equal(t, "big-basket", sale.RuleName)
	assert.Equal(t, types.MinorUnits(5500), sale.Total)
}

func TestVoidSale(t *testing.T) {
	env := newEngineEnv(t, nil)
	ctx := operatorCtx("op-1")
	unit := env.addUnit("Morphine 10mg", 20, 5000, stockunit.ScheduleII)
	env.seedControlledChain(unit.ID, 20)
	c := env.addCustomer(50, 0, 50000)

	sale, err := env.engine.SettleSale(ctx, SaleRequest{
		Lines:         []LineRequest{{StockUnitID: unit.ID, Quantity: 2}},
		CustomerID:    &c.ID,
		PaymentMethod: PayCredit,
		PatientName:   "Janos Kiss",
		RedeemPoints:  4,
	})
	require.NoError(t, err)
	require.Equal(t, types.Quantity(18), unit.OnHand)

	voidCtx := operatorCtx("op-2")
	voided, err := env.engine.VoidSale(voidCtx, sale.ID, "customer returned goods")
	require.NoError(t, err)

	assert.Equal(t, SaleVoided, voided.Status)
	assert.Equal(t, "op-2", voided.VoidedBy)
	assert.Equal(t, "customer returned goods", voided.VoidReason)
	require.NotNil(t, voided.VoidedAt)

	// Stock came back through a compensating receipt movement.
	assert.Equal(t, types.Quantity(20), unit.OnHand)
	last := env.stock.movements[len(env.stock.movements)-1]
	assert.Equal(t, entity.RecordTypeReceipt, last.RecordType)
	assert.Equal(t, "SaleVoid", last.RecorderType)

	// The register chain gained a RETURN entry, nothing was edited.
	chain := env.controlled.chains[unit.ID]
	require.Len(t, chain, 3)
	assert.Equal(t, controlled.EntryReturn, chain[2].Type)
	assert.Equal(t, types.Quantity(2), chain[2].QuantityIn)
	assert.Equal(t, types.Quantity(20), chain[2].BalanceAfter)

	// Redeemed points refunded, earned points reversed, credit unwound.
	assert.Equal(t, types.Points(50), env.customers.customers[c.ID].LoyaltyPoints)
	assert.Equal(t, types.MinorUnits(0), env.customers.customers[c.ID].CreditBalance)

	assert.Equal(t, "sale.voided", env.events.published[len(env.events.published)-1].eventType)
}

func TestVoidSale_Twice(t *testing.T) {
	env := newEngineEnv(t, nil)
	ctx := operatorCtx("op-1")
	unit := env.addUnit("Paracetamol 500mg", 10, 1500, stockunit.ScheduleNone)

	sale, err := env.engine.SettleSale(ctx, SaleRequest{
		Lines:         []LineRequest{{StockUnitID: unit.ID, Quantity: 1}},
		PaymentMethod: PayCash,
	})
	require.NoError(t, err)

	_, err = env.engine.VoidSale(ctx, sale.ID, "mistake")
	require.NoError(t, err)

	_, err = env.engine.VoidSale(ctx, sale.ID, "mistake again")
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeSaleVoided))
	assert.Equal(t, types.Quantity(10), unit.OnHand)
}

func TestVoidSale_RequiresReason(t *testing.T) {
	env := newEngineEnv(t, nil)
	_, err := env.engine.VoidSale(operatorCtx("op-1"), id.New(), "")
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
}

func TestVoidSale_NotFound(t *testing.T) {
	env := newEngineEnv(t, nil)
	_, err := env.engine.VoidSale(operatorCtx("op-1"), id.New(), "mistake")
	assert.True(t, apperror.HasCode(err, apperror.CodeNotFound))
}

func newTestRx(env *engineEnv, unit *stockunit.StockUnit, prescribed types.Quantity) *prescriptions.Prescription {
	rx := &prescriptions.Prescription{
		BaseDocument:   entity.NewBaseDocument(),
		Number:         "RX-2026-00001",
		PatientName:    "Anna Kovacs",
		PrescriberName: "Dr. Szabo",
		IssuedDate:     time.Now().Add(-24 * time.Hour),
		ExpiryDate:     time.Now().AddDate(0, 1, 0),
		Status:         prescriptions.StatusPending,
		Items: []prescriptions.PrescriptionItem{{
			ID:                 id.New(),
			StockUnitID:        unit.ID,
			QuantityPrescribed: prescribed,
		}},
	}
	rx.Items[0].PrescriptionID = rx.ID
	env.rx.byID[rx.ID] = rx
	return rx
}

func TestDispense(t *testing.T) {
	env := newEngineEnv(t, nil)
	ctx := operatorCtx("op-1")
	unit := env.addUnit("Morphine 10mg", 30, 5000, stockunit.ScheduleII)
	env.seedControlledChain(unit.ID, 30)
	rx := newTestRx(env, unit, 10)

	sale, err := env.engine.Dispense(ctx, DispenseRequest{
		PrescriptionID:     rx.ID,
		Items:              []DispenseLineRequest{{PrescriptionItemID: rx.Items[0].ID, Quantity: 4}},
		PaymentMethod:      PayCash,
		Notes:              "take with food",
		CounselingProvided: true,
	})
	require.NoError(t, err)

	assert.Equal(t, KindDispense, sale.Kind)
	assert.Equal(t, "INV-2026-00001", sale.Number)
	require.NotNil(t, sale.PrescriptionID)
	assert.Equal(t, rx.ID, *sale.PrescriptionID)
	assert.Equal(t, "Anna Kovacs", sale.PatientName)
	assert.Equal(t, types.MinorUnits(20000), sale.Total)

	// Stock and counters advanced inside the same settlement.
	assert.Equal(t, types.Quantity(26), unit.OnHand)
	stored, _ := env.rx.GetByID(ctx, rx.ID)
	assert.Equal(t, types.Quantity(4), stored.Items[0].QuantityDispensed)
	assert.Equal(t, prescriptions.StatusPartial, stored.Status)

	// The register entry logs against the prescription.
	chain := env.controlled.chains[unit.ID]
	require.Len(t, chain, 2)
	assert.Equal(t, controlled.EntryDispense, chain[1].Type)
	dispCtx, ok := chain[1].Context.(controlled.DispenseContext)
	require.True(t, ok)
	assert.Equal(t, "RX-2026-00001", dispCtx.PrescriptionNumber)

	events, _ := env.rx.ListDispensingEvents(ctx, rx.ID)
	require.Len(t, events, 1)
	assert.Equal(t, sale.ID, events[0].SaleID)
	assert.Equal(t, "take with food", events[0].Notes)
	assert.True(t, events[0].CounselingProvided)
	require.Len(t, events[0].Lines, 1)
	assert.Equal(t, types.Quantity(4), events[0].Lines[0].Quantity)
	assert.False(t, events[0].Lines[0].IsSubstitution)

	assert.Equal(t, "sale.dispensed", env.events.published[0].eventType)
}

func TestDispense_FullyDispensed(t *testing.T) {
	env := newEngineEnv(t, nil)
	ctx := operatorCtx("op-1")
	unit := env.addUnit("Codeine 30mg", 50, 2500, stockunit.ScheduleIII)
	env.seedControlledChain(unit.ID, 50)
	rx := newTestRx(env, unit, 6)

	_, err := env.engine.Dispense(ctx, DispenseRequest{
		PrescriptionID: rx.ID,
		Items:          []DispenseLineRequest{{PrescriptionItemID: rx.Items[0].ID, Quantity: 6}},
		PaymentMethod:  PayCash,
	})
	require.NoError(t, err)

	stored, _ := env.rx.GetByID(ctx, rx.ID)
	assert.Equal(t, prescriptions.StatusDispensed, stored.Status)
}

func TestDispense_OverRemainder(t *testing.T) {
	env := newEngineEnv(t, nil)
	ctx := operatorCtx("op-1")
	unit := env.addUnit("Codeine 30mg", 50, 2500, stockunit.ScheduleIII)
	env.seedControlledChain(unit.ID, 50)
	rx := newTestRx(env, unit, 5)

	_, err := env.engine.Dispense(ctx, DispenseRequest{
		PrescriptionID: rx.ID,
		Items:          []DispenseLineRequest{{PrescriptionItemID: rx.Items[0].ID, Quantity: 6}},
		PaymentMethod:  PayCash,
	})
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeDispenseLimitExceeded))
	assert.Equal(t, types.Quantity(50), unit.OnHand)
}

func TestDispense_Substitution(t *testing.T) {
	env := newEngineEnv(t, nil)
	ctx := operatorCtx("op-1")
	prescribed := env.addUnit("Morphine 10mg", 0, 5000, stockunit.ScheduleII)
	substitute := env.addUnit("Morphine 10mg generic", 30, 4500, stockunit.ScheduleII)
	env.seedControlledChain(substitute.ID, 30)
	rx := newTestRx(env, prescribed, 10)
	rx.Items[0].SubstitutionAllowed = true

	sale, err := env.engine.Dispense(ctx, DispenseRequest{
		PrescriptionID: rx.ID,
		Items: []DispenseLineRequest{{
			PrescriptionItemID: rx.Items[0].ID,
			StockUnitID:        substitute.ID,
			Quantity:           4,
		}},
		PaymentMethod: PayCash,
	})
	require.NoError(t, err)

	// Stock moves on the substitute batch, the prescribed one is untouched.
	assert.Equal(t, types.Quantity(0), prescribed.OnHand)
	assert.Equal(t, types.Quantity(26), substitute.OnHand)
	assert.Equal(t, types.MinorUnits(18000), sale.Total)

	events, _ := env.rx.ListDispensingEvents(ctx, rx.ID)
	require.Len(t, events, 1)
	require.Len(t, events[0].Lines, 1)
	assert.Equal(t, substitute.ID, events[0].Lines[0].StockUnitID)
	assert.True(t, events[0].Lines[0].IsSubstitution)

	// The item counter still advances on the prescription.
	stored, _ := env.rx.GetByID(ctx, rx.ID)
	assert.Equal(t, types.Quantity(4), stored.Items[0].QuantityDispensed)
}

func TestDispense_SubstitutionForbidden(t *testing.T) {
	env := newEngineEnv(t, nil)
	ctx := operatorCtx("op-1")
	prescribed := env.addUnit("Codeine 30mg", 50, 2500, stockunit.ScheduleIII)
	other := env.addUnit("Codeine 30mg generic", 50, 2200, stockunit.ScheduleIII)
	env.seedControlledChain(prescribed.ID, 50)
	rx := newTestRx(env, prescribed, 5)

	_, err := env.engine.Dispense(ctx, DispenseRequest{
		PrescriptionID: rx.ID,
		Items: []DispenseLineRequest{{
			PrescriptionItemID: rx.Items[0].ID,
			StockUnitID:        other.ID,
			Quantity:           2,
		}},
		PaymentMethod: PayCash,
	})
	require.Error(t, err)
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
	assert.Equal(t, types.Quantity(50), prescribed.OnHand)
	assert.Equal(t, types.Quantity(50), other.OnHand)
}

func TestDispense_PrescriptionNotFound(t *testing.T) {
	env := newEngineEnv(t, nil)
	_, err := env.engine.Dispense(operatorCtx("op-1"), DispenseRequest{
		PrescriptionID: id.New(),
		Items:          []DispenseLineRequest{{PrescriptionItemID: id.New(), Quantity: 1}},
		PaymentMethod:  PayCash,
	})
	assert.True(t, apperror.HasCode(err, apperror.CodeNotFound))
}

func TestVoidDispense_RewindsCounters(t *testing.T) {
	env := newEngineEnv(t, nil)
	ctx := operatorCtx("op-1")
	unit := env.addUnit("Morphine 10mg", 30, 5000, stockunit.ScheduleII)
	env.seedControlledChain(unit.ID, 30)
	rx := newTestRx(env, unit, 10)

	sale, err := env.engine.Dispense(ctx, DispenseRequest{
		PrescriptionID: rx.ID,
		Items:          []DispenseLineRequest{{PrescriptionItemID: rx.Items[0].ID, Quantity: 10}},
		PaymentMethod:  PayCash,
	})
	require.NoError(t, err)

	stored, _ := env.rx.GetByID(ctx, rx.ID)
	require.Equal(t, prescriptions.StatusDispensed, stored.Status)

	_, err = env.engine.VoidSale(ctx, sale.ID, "dispensed against the wrong prescription")
	require.NoError(t, err)

	stored, _ = env.rx.GetByID(ctx, rx.ID)
	assert.Equal(t, types.Quantity(0), stored.Items[0].QuantityDispensed)
	assert.Equal(t, prescriptions.StatusPending, stored.Status)
	assert.Equal(t, types.Quantity(30), unit.OnHand)
}

func TestReceiveStock_WeightedAverageCost(t *testing.T) {
	env := newEngineEnv(t, nil)
	ctx := operatorCtx("op-1")
	unit := env.addUnit("Paracetamol 500mg", 100, 1500, stockunit.ScheduleNone)
	unit.UnitCost = 1000

	receipt, err := env.engine.ReceiveStock(ctx, ReceiveRequest{
		StockUnitID:  unit.ID,
		Quantity:     50,
		UnitCost:     1300,
		SupplierName: "PharmaSupply Kft",
		InvoiceRef:   "INV-7741",
	})
	require.NoError(t, err)

	assert.Equal(t, "GR-2026-00001", receipt.Number)
	assert.Equal(t, types.Quantity(50), receipt.Quantity)
	assert.Equal(t, types.MinorUnits(1300), receipt.UnitCost)

	// (100*1000 + 50*1300) / 150 = 1100
	assert.Equal(t, types.MinorUnits(1100), unit.UnitCost)
	assert.Equal(t, types.Quantity(150), unit.OnHand)

	require.Len(t, env.stock.movements, 1)
	assert.Equal(t, entity.RecordTypeReceipt, env.stock.movements[0].RecordType)
	assert.Equal(t, "GoodsReceipt", env.stock.movements[0].RecorderType)

	require.Len(t, env.events.published, 1)
	assert.Equal(t, "stock.received", env.events.published[0].eventType)
}

func TestReceiveStock_ControlledWritesRegisterEntry(t *testing.T) {
	env := newEngineEnv(t, nil)
	ctx := operatorCtx("op-1")
	unit := env.addUnit("Morphine 10mg", 0, 5000, stockunit.ScheduleII)

	_, err := env.engine.ReceiveStock(ctx, ReceiveRequest{
		StockUnitID:  unit.ID,
		Quantity:     40,
		UnitCost:     3000,
		SupplierName: "PharmaSupply Kft",
		InvoiceRef:   "INV-7742",
	})
	require.NoError(t, err)

	chain := env.controlled.chains[unit.ID]
	require.Len(t, chain, 1)
	assert.Equal(t, controlled.EntryReceipt, chain[0].Type)
	assert.Equal(t, types.Quantity(40), chain[0].QuantityIn)
	assert.Equal(t, types.Quantity(40), chain[0].BalanceAfter)

	recCtx, ok := chain[0].Context.(controlled.ReceiptContext)
	require.True(t, ok)
	assert.Equal(t, "PharmaSupply Kft", recCtx.SupplierName)
	assert.Equal(t, "INV-7742", recCtx.InvoiceRef)
}

func TestRecordControlledEntry_Destruction(t *testing.T) {
	env := newEngineEnv(t, nil)
	ctx := operatorCtx("op-1")
	unit := env.addUnit("Morphine 10mg", 30, 5000, stockunit.ScheduleII)
	env.seedControlledChain(unit.ID, 30)

	entry, err := env.engine.RecordControlledEntry(ctx, ControlledEntryRequest{
		StockUnitID: unit.ID,
		Type:        controlled.EntryDestruction,
		QuantityOut: 5,
		Context: controlled.DestructionContext{
			WitnessName: "Dr. Szabo",
			WitnessRole: "Head Pharmacist",
			Method:      "incineration",
		},
	})
	require.NoError(t, err)

	assert.Equal(t, controlled.EntryDestruction, entry.Type)
	assert.Equal(t, types.Quantity(25), entry.BalanceAfter)
	assert.Equal(t, "op-1", entry.RecordedBy)

	// Stock follows the register in the same settlement.
	assert.Equal(t, types.Quantity(25), unit.OnHand)
	require.Len(t, env.stock.movements, 1)
	assert.Equal(t, entity.RecordTypeExpense, env.stock.movements[0].RecordType)
	assert.Equal(t, "DESTRUCTION", env.stock.movements[0].RecorderType)
}

func TestRecordControlledEntry_TransferIn(t *testing.T) {
	env := newEngineEnv(t, nil)
	ctx := operatorCtx("op-1")
	unit := env.addUnit("Morphine 10mg", 10, 5000, stockunit.ScheduleII)
	env.seedControlledChain(unit.ID, 10)

	entry, err := env.engine.RecordControlledEntry(ctx, ControlledEntryRequest{
		StockUnitID: unit.ID,
		Type:        controlled.EntryTransferIn,
		QuantityIn:  15,
		Context: controlled.TransferInContext{
			SupplierName: "Central Pharmacy",
			FacilityName: "Branch 2",
		},
	})
	require.NoError(t, err)

	assert.Equal(t, types.Quantity(25), entry.BalanceAfter)
	assert.Equal(t, types.Quantity(25), unit.OnHand)
}

func TestRecordControlledEntry_Rejections(t *testing.T) {
	env := newEngineEnv(t, nil)
	ctx := operatorCtx("op-1")
	controlledUnit := env.addUnit("Morphine 10mg", 30, 5000, stockunit.ScheduleII)
	env.seedControlledChain(controlledUnit.ID, 30)
	plainUnit := env.addUnit("Paracetamol 500mg", 30, 1500, stockunit.ScheduleNone)

	destruction := controlled.DestructionContext{
		WitnessName: "Dr. Szabo", WitnessRole: "Head Pharmacist", Method: "incineration",
	}

	t.Run("settlement-owned type", func(t *testing.T) {
		_, err := env.engine.RecordControlledEntry(ctx, ControlledEntryRequest{
			StockUnitID: controlledUnit.ID,
			Type:        controlled.EntrySale,
			QuantityOut: 1,
			Context:     controlled.SaleContext{PatientName: "Janos Kiss"},
		})
		assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
	})

	t.Run("context type mismatch", func(t *testing.T) {
		_, err := env.engine.RecordControlledEntry(ctx, ControlledEntryRequest{
			StockUnitID: controlledUnit.ID,
			Type:        controlled.EntryAdjustment,
			QuantityOut: 1,
			Context:     destruction,
		})
		assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
	})

	t.Run("unscheduled unit", func(t *testing.T) {
		_, err := env.engine.RecordControlledEntry(ctx, ControlledEntryRequest{
			StockUnitID: plainUnit.ID,
			Type:        controlled.EntryDestruction,
			QuantityOut: 1,
			Context:     destruction,
		})
		assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
	})

	t.Run("missing operator", func(t *testing.T) {
		_, err := env.engine.RecordControlledEntry(context.Background(), ControlledEntryRequest{
			StockUnitID: controlledUnit.ID,
			Type:        controlled.EntryDestruction,
			QuantityOut: 1,
			Context:     destruction,
		})
		assert.True(t, apperror.HasCode(err, apperror.CodeUnauthorized))
	})

	assert.Equal(t, types.Quantity(30), controlledUnit.OnHand)
	assert.Empty(t, env.stock.movements)
}

func TestReceiveStock_Validation(t *testing.T) {
	env := newEngineEnv(t, nil)
	ctx := operatorCtx("op-1")
	unit := env.addUnit("Paracetamol 500mg", 10, 1500, stockunit.ScheduleNone)

	cases := []struct {
		name string
		req  ReceiveRequest
	}{
		{"nil unit", ReceiveRequest{Quantity: 5, UnitCost: 100, SupplierName: "S"}},
		{"zero quantity", ReceiveRequest{StockUnitID: unit.ID, UnitCost: 100, SupplierName: "S"}},
		{"negative cost", ReceiveRequest{StockUnitID: unit.ID, Quantity: 5, UnitCost: -1, SupplierName: "S"}},
		{"missing supplier", ReceiveRequest{StockUnitID: unit.ID, Quantity: 5, UnitCost: 100}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.engine.ReceiveStock(ctx, tc.req)
			assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
		})
	}
}

func TestSaleRequest_Validate(t *testing.T) {
	unitID := id.New()
	valid := SaleRequest{
		Lines:         []LineRequest{{StockUnitID: unitID, Quantity: 1}},
		PaymentMethod: PayCash,
	}
	assert.NoError(t, valid.Validate(context.Background()))

	cases := []struct {
		name string
		req  SaleRequest
	}{
		{"no lines", SaleRequest{PaymentMethod: PayCash}},
		{"nil stock unit", SaleRequest{Lines: []LineRequest{{Quantity: 1}}, PaymentMethod: PayCash}},
		{"zero quantity", SaleRequest{Lines: []LineRequest{{StockUnitID: unitID}}, PaymentMethod: PayCash}},
		{"duplicate unit", SaleRequest{
			Lines:         []LineRequest{{StockUnitID: unitID, Quantity: 1}, {StockUnitID: unitID, Quantity: 2}},
			PaymentMethod: PayCash,
		}},
		{"bad payment method", SaleRequest{Lines: []LineRequest{{StockUnitID: unitID, Quantity: 1}}, PaymentMethod: "IOU"}},
		{"negative discount", SaleRequest{
			Lines:         []LineRequest{{StockUnitID: unitID, Quantity: 1}},
			PaymentMethod: PayCash,
			Discount:      -100,
		}},
		{"negative points", SaleRequest{
			Lines:         []LineRequest{{StockUnitID: unitID, Quantity: 1}},
			PaymentMethod: PayCash,
			RedeemPoints:  -1,
		}},
		{"credit without customer", SaleRequest{
			Lines:         []LineRequest{{StockUnitID: unitID, Quantity: 1}},
			PaymentMethod: PayCredit,
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.req.Validate(context.Background())
			assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
		})
	}
}

func TestListSales_DefaultLimit(t *testing.T) {
	env := newEngineEnv(t, nil)
	_, err := env.engine.ListSales(context.Background(), SaleFilter{})
	assert.NoError(t, err)
}

func TestGetSale_NotFound(t *testing.T) {
	env := newEngineEnv(t, nil)
	_, err := env.engine.GetSale(context.Background(), id.New())
	assert.True(t, apperror.HasCode(err, apperror.CodeNotFound))
}

func TestGetReceipt_NotFound(t *testing.T) {
	env := newEngineEnv(t, nil)
	_, err := env.engine.GetReceipt(context.Background(), id.New())
	assert.True(t, apperror.HasCode(err, apperror.CodeNotFound))
}
