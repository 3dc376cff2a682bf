package settlement

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"farmapos/internal/core/apperror"
	appctx "farmapos/internal/core/context"
	"farmapos/internal/core/entity"
	"farmapos/internal/core/id"
	"farmapos/internal/core/numerator"
	"farmapos/internal/core/tx"
	"farmapos/internal/core/types"
	"farmapos/internal/domain/catalogs/stockunit"
	custledger "farmapos/internal/domain/ledgers/customer"
	"farmapos/internal/domain/prescriptions"
	"farmapos/internal/domain/pricing"
	"farmapos/internal/domain/registers/controlled"
	stockreg "farmapos/internal/domain/registers/stock"
	"farmapos/pkg/logger"
)

// Config tunes the loyalty program.
type Config struct {
	// EarnRate is minor units spent per point earned.
	// 1000 means 1 point per 10.00 of final total.
	EarnRate types.MinorUnits
}

// DefaultConfig returns the standard loyalty configuration.
func DefaultConfig() Config {
	return Config{EarnRate: 1000}
}

// EventPublisher emits integration events from inside the settlement
// transaction, so an event exists if and only if the settlement
// committed. Nil disables event publishing.
type EventPublisher interface {
	PublishEvent(ctx context.Context, aggregateType string, aggregateID id.ID, eventType string, payload any) error
}

// Engine settles sales, dispensings, voids and goods receipts. Each
// operation runs as a single transaction; row locks are taken in
// ascending stock unit ID order so concurrent settlements over
// overlapping baskets cannot deadlock.
type Engine struct {
	txManager  tx.Manager
	sales      Repository
	units      stockunit.Repository
	stock      *stockreg.Service
	controlled *controlled.Service
	ledger     *custledger.Service
	rx         prescriptions.Repository
	pricing    *pricing.Evaluator
	numerator  numerator.Generator
	events     EventPublisher
	cfg        Config
}

// NewEngine wires the settlement engine.
func NewEngine(
	txManager tx.Manager,
	sales Repository,
	units stockunit.Repository,
	stockSvc *stockreg.Service,
	controlledSvc *controlled.Service,
	ledgerSvc *custledger.Service,
	rxRepo prescriptions.Repository,
	pricingEval *pricing.Evaluator,
	gen numerator.Generator,
	events EventPublisher,
	cfg Config,
) *Engine {
	if cfg.EarnRate <= 0 {
		cfg = DefaultConfig()
	}
	return &Engine{
		txManager:  txManager,
		sales:      sales,
		units:      units,
		stock:      stockSvc,
		controlled: controlledSvc,
		ledger:     ledgerSvc,
		rx:         rxRepo,
		pricing:    pricingEval,
		numerator:  gen,
		events:     events,
		cfg:        cfg,
	}
}

// sortLineRequests orders lines by ascending stock unit ID. Every
// settlement path locks units in this order.
func sortLineRequests(lines []LineRequest) []LineRequest {
	sorted := make([]LineRequest, len(lines))
	copy(sorted, lines)
	sort.Slice(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i].StockUnitID[:], sorted[j].StockUnitID[:]) < 0
	})
	return sorted
}

// SettleSale settles a counter sale. On any failure nothing is
// committed: no stock change, no register entry, no ledger movement,
// no document.
func (e *Engine) SettleSale(ctx context.Context, req SaleRequest) (*Sale, error) {
	if err := req.Validate(ctx); err != nil {
		return nil, err
	}
	operatorID := appctx.GetOperatorID(ctx)
	if operatorID == "" {
		return nil, apperror.NewUnauthorized("operator identity missing")
	}

	// Drawn before the transaction; an abandoned number leaves a gap in
	// the sequence, never an inconsistent ledger.
	number, err := e.numerator.GetNextNumber(ctx,
		numerator.DefaultConfig("INV"), numerator.DefaultOptions(), time.Now())
	if err != nil {
		return nil, fmt.Errorf("generate sale number: %w", err)
	}

	var sale *Sale
	err = e.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		sale, err = e.settleLines(ctx, settleParams{
			kind:          KindSale,
			number:        number,
			operatorID:    operatorID,
			lines:         sortLineRequests(req.Lines),
			customerID:    req.CustomerID,
			paymentMethod: req.PaymentMethod,
			discount:      req.Discount,
			redeemPoints:  req.RedeemPoints,
			patientName:   req.PatientName,
			comment:       req.Comment,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "sale settled",
		"sale_id", sale.ID,
		"number", sale.Number,
		"total", int64(sale.Total),
		"lines", len(sale.Lines),
	)
	return sale, nil
}

// settleParams carries everything settleLines needs regardless of
// whether the caller is a counter sale or a dispensing.
type settleParams struct {
	kind          SaleKind
	number        string
	operatorID    string
	lines         []LineRequest
	customerID    *id.ID
	paymentMethod PaymentMethod
	discount      types.MinorUnits
	redeemPoints  types.Points
	patientName   string
	prescription  *prescriptions.Prescription
	comment       string
}

// settleLines is the shared settlement core. Must run inside a
// transaction started by the caller.
func (e *Engine) settleLines(ctx context.Context, p settleParams) (*Sale, error) {
	sale := &Sale{
		Document:      entity.NewDocument(p.operatorID),
		Kind:          p.kind,
		Status:        SaleCompleted,
		CustomerID:    p.customerID,
		PatientName:   p.patientName,
		PaymentMethod: p.paymentMethod,
	}
	sale.Number = p.number
	sale.Comment = p.comment
	if p.prescription != nil {
		sale.PrescriptionID = &p.prescription.ID
	}

	// First pass: lock every unit and validate before any write.
	now := time.Now().UTC()
	locked := make([]*stockunit.StockUnit, 0, len(p.lines))
	hasControlled := false
	for _, line := range p.lines {
		unit, err := e.units.GetByIDForUpdate(ctx, line.StockUnitID)
		if err != nil {
			return nil, err
		}
		if unit == nil || unit.DeletionMark {
			return nil, apperror.NewNotFound("stock unit", line.StockUnitID)
		}
		if unit.IsExpired(now) {
			return nil, apperror.NewBusinessRule(
				apperror.CodeBusinessRule,
				"Expired batch cannot be dispensed",
			).WithDetail("stock_unit_id", unit.ID.String()).
				WithDetail("expiry_date", unit.ExpiryDate.Format("2006-01-02"))
		}
		if unit.IsControlled() {
			hasControlled = true
		}
		locked = append(locked, unit)
	}
	if hasControlled && p.patientName == "" {
		return nil, apperror.NewValidation("patient name is required for controlled substances")
	}

	// Second pass: move stock and write register entries.
	var subtotal types.MinorUnits
	var itemCount int64
	sale.Lines = make([]SaleLine, 0, len(p.lines))
	for i, line := range p.lines {
		unit := locked[i]

		if err := e.stock.ReserveAndDecrement(
			ctx, sale.ID, string(p.kind), sale.Date, unit.ID, line.Quantity,
		); err != nil {
			return nil, err
		}

		if unit.IsControlled() {
			entryCtx, entryType := e.controlledContext(p)
			if _, err := e.controlled.Append(ctx, controlled.AppendRequest{
				StockUnitID: unit.ID,
				Type:        entryType,
				QuantityOut: line.Quantity,
				Context:     entryCtx,
				RecordedBy:  p.operatorID,
				Period:      sale.Date,
			}); err != nil {
				return nil, err
			}
		}

		lineTotal := unit.UnitPrice * types.MinorUnits(line.Quantity)
		sale.Lines = append(sale.Lines, SaleLine{
			ID:           id.New(),
			SaleID:       sale.ID,
			StockUnitID:  unit.ID,
			MedicineName: unit.MedicineName,
			BatchNumber:  unit.BatchNumber,
			Quantity:     line.Quantity,
			UnitPrice:    unit.UnitPrice,
			LineTotal:    lineTotal,
			Controlled:   unit.IsControlled(),
		})
		subtotal += lineTotal
		itemCount += line.Quantity.Int64()
	}
	sale.Subtotal = subtotal
	sale.Discount = p.discount

	// Discounts: best pricing rule first, then point redemption.
	if e.pricing != nil {
		facts := pricing.SaleFacts{
			Subtotal:      subtotal,
			ItemCount:     itemCount,
			PaymentMethod: string(p.paymentMethod),
		}
		if p.customerID != nil {
			// Best effort: rules may reference the point balance.
			if points, _, err := e.ledger.CachedBalances(ctx, *p.customerID); err == nil {
				facts.CustomerPoints = points
			}
		}
		sale.RuleDiscount, sale.RuleName = e.pricing.Evaluate(ctx, facts)
	}

	due := subtotal - sale.Discount - sale.RuleDiscount
	if due.IsNegative() {
		due = 0
	}
	if p.redeemPoints.IsPositive() {
		discount := p.redeemPoints.AsDiscount()
		if discount > due {
			return nil, apperror.NewValidation("redeemed points exceed the amount due").
				WithDetail("points", p.redeemPoints.Int64()).
				WithDetail("due", due.String())
		}
		if _, err := e.ledger.ApplyLoyaltyDelta(
			ctx, *p.customerID, -p.redeemPoints,
			custledger.LoyaltyRedeemed, sale.ID, string(p.kind),
		); err != nil {
			return nil, err
		}
		sale.PointsRedeemed = p.redeemPoints
		sale.PointsDiscount = discount
		due -= discount
	}
	sale.Total = due

	if p.paymentMethod == PayCredit && sale.Total.IsPositive() {
		if _, err := e.ledger.ApplyCreditDelta(
			ctx, *p.customerID, sale.Total,
			custledger.CreditCharge, sale.ID, string(p.kind),
		); err != nil {
			return nil, err
		}
	}

	if p.customerID != nil && sale.Total.IsPositive() {
		earned := types.Points(int64(sale.Total) / int64(e.cfg.EarnRate))
		if earned.IsPositive() {
			if _, err := e.ledger.ApplyLoyaltyDelta(
				ctx, *p.customerID, earned,
				custledger.LoyaltyEarned, sale.ID, string(p.kind),
			); err != nil {
				return nil, err
			}
			sale.PointsEarned = earned
		}
	}

	if err := e.sales.CreateSale(ctx, sale); err != nil {
		return nil, fmt.Errorf("create sale document: %w", err)
	}

	if e.events != nil {
		eventType := "sale.settled"
		if p.kind == KindDispense {
			eventType = "sale.dispensed"
		}
		if err := e.events.PublishEvent(ctx, "Sale", sale.ID, eventType, map[string]any{
			"number": sale.Number,
			"total":  int64(sale.Total),
		}); err != nil {
			return nil, fmt.Errorf("publish settlement event: %w", err)
		}
	}
	return sale, nil
}

// controlledContext picks the register entry type and context for a
// settlement: dispensings log against the prescription, counter sales
// against the patient.
func (e *Engine) controlledContext(p settleParams) (controlled.EntryContext, controlled.EntryType) {
	if p.prescription != nil {
		return controlled.DispenseContext{
			PatientName:        p.prescription.PatientName,
			PrescriberName:     p.prescription.PrescriberName,
			PrescriptionNumber: p.prescription.Number,
		}, controlled.EntryDispense
	}
	return controlled.SaleContext{PatientName: p.patientName}, controlled.EntrySale
}

// Dispense settles a dispensing against a prescription: stock and
// registers move exactly as in a sale, and the prescription's item
// counters, event log and status advance in the same transaction.
func (e *Engine) Dispense(ctx context.Context, req DispenseRequest) (*Sale, error) {
	if len(req.Items) == 0 {
		return nil, apperror.NewValidation("dispense request has no items")
	}
	if !req.PaymentMethod.Valid() {
		return nil, apperror.NewValidation("unknown payment method").
			WithDetail("payment_method", string(req.PaymentMethod))
	}
	if req.RedeemPoints.IsPositive() && req.CustomerID == nil {
		return nil, apperror.NewValidation("point redemption requires a customer")
	}
	if req.PaymentMethod == PayCredit && req.CustomerID == nil {
		return nil, apperror.NewValidation("credit payment requires a customer")
	}
	operatorID := appctx.GetOperatorID(ctx)
	if operatorID == "" {
		return nil, apperror.NewUnauthorized("operator identity missing")
	}

	number, err := e.numerator.GetNextNumber(ctx,
		numerator.DefaultConfig("INV"), numerator.DefaultOptions(), time.Now())
	if err != nil {
		return nil, fmt.Errorf("generate sale number: %w", err)
	}

	var sale *Sale
	err = e.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		// The prescription lock is taken before any stock unit lock.
		rx, err := e.rx.GetByIDForUpdate(ctx, req.PrescriptionID)
		if err != nil {
			return err
		}
		if rx == nil {
			return apperror.NewNotFound("prescription", req.PrescriptionID)
		}

		now := time.Now().UTC()
		rxReq := make(prescriptions.DispenseRequest, 0, len(req.Items))
		for _, item := range req.Items {
			rxReq = append(rxReq, prescriptions.DispenseItem{
				ItemID:      item.PrescriptionItemID,
				StockUnitID: item.StockUnitID,
				Quantity:    item.Quantity,
			})
		}
		resolved, err := prescriptions.ResolveDispense(rx, rxReq, now)
		if err != nil {
			return err
		}

		lines := make([]LineRequest, 0, len(resolved))
		for _, line := range resolved {
			lines = append(lines, LineRequest{
				StockUnitID: line.StockUnitID,
				Quantity:    line.Quantity,
			})
		}

		sale, err = e.settleLines(ctx, settleParams{
			kind:          KindDispense,
			number:        number,
			operatorID:    operatorID,
			lines:         sortLineRequests(lines),
			customerID:    req.CustomerID,
			paymentMethod: req.PaymentMethod,
			discount:      req.Discount,
			redeemPoints:  req.RedeemPoints,
			patientName:   rx.PatientName,
			prescription:  rx,
			comment:       req.Notes,
		})
		if err != nil {
			return err
		}

		event := &prescriptions.DispensingEvent{
			ID:                 id.New(),
			PrescriptionID:     rx.ID,
			SaleID:             sale.ID,
			DispensedBy:        operatorID,
			DispensedAt:        now,
			Notes:              req.Notes,
			CounselingProvided: req.CounselingProvided,
		}
		for _, line := range resolved {
			if err := e.rx.AddDispensedQuantity(ctx, line.Item.ID, line.Quantity.Int64()); err != nil {
				return fmt.Errorf("advance item counter: %w", err)
			}
			line.Item.QuantityDispensed += line.Quantity
			event.Lines = append(event.Lines, prescriptions.DispensingLine{
				ID:             id.New(),
				EventID:        event.ID,
				ItemID:         line.Item.ID,
				StockUnitID:    line.StockUnitID,
				Quantity:       line.Quantity,
				IsSubstitution: line.Substitution,
			})
		}
		if err := e.rx.InsertDispensingEvent(ctx, event); err != nil {
			return fmt.Errorf("record dispensing event: %w", err)
		}

		if status := prescriptions.DeriveStatus(rx, now); status != rx.Status {
			if err := e.rx.UpdateStatus(ctx, rx.ID, status, rx.Version); err != nil {
				return fmt.Errorf("update prescription status: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "prescription dispensed",
		"sale_id", sale.ID,
		"prescription_id", req.PrescriptionID,
		"total", int64(sale.Total),
	)
	return sale, nil
}

// VoidSale reverses a completed sale with compensating records: stock
// returns as receipt movements, controlled lines get RETURN entries,
// loyalty and credit are unwound. The original rows are never edited.
func (e *Engine) VoidSale(ctx context.Context, saleID id.ID, reason string) (*Sale, error) {
	if reason == "" {
		return nil, apperror.NewValidation("void reason is required").
			WithDetail("field", "reason")
	}
	operatorID := appctx.GetOperatorID(ctx)
	if operatorID == "" {
		return nil, apperror.NewUnauthorized("operator identity missing")
	}

	var sale *Sale
	err := e.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		sale, err = e.sales.GetSaleByIDForUpdate(ctx, saleID)
		if err != nil {
			return err
		}
		if sale == nil {
			return apperror.NewNotFound("sale", saleID)
		}
		if sale.IsVoided() {
			return apperror.NewSaleVoided(saleID.String())
		}

		// Voiding a dispensing gives the prescribed remainder back, so
		// the item counters rewind before the stock returns.
		if sale.Kind == KindDispense && sale.PrescriptionID != nil {
			if err := e.rewindDispense(ctx, sale); err != nil {
				return err
			}
		}

		lines := make([]SaleLine, len(sale.Lines))
		copy(lines, sale.Lines)
		sort.Slice(lines, func(i, j int) bool {
			return bytes.Compare(lines[i].StockUnitID[:], lines[j].StockUnitID[:]) < 0
		})

		now := time.Now().UTC()
		for _, line := range lines {
			if err := e.stock.Receive(
				ctx, sale.ID, "SaleVoid", now, line.StockUnitID, line.Quantity,
			); err != nil {
				return err
			}
			if line.Controlled {
				if _, err := e.controlled.Append(ctx, controlled.AppendRequest{
					StockUnitID: line.StockUnitID,
					Type:        controlled.EntryReturn,
					QuantityIn:  line.Quantity,
					Context: controlled.ReturnContext{
						PatientName: sale.PatientName,
						Reason:      reason,
					},
					RecordedBy: operatorID,
					Period:     now,
				}); err != nil {
					return err
				}
			}
		}

		if sale.CustomerID != nil {
			// Refund redeemed points first so the earn reversal cannot
			// trip over a balance the redemption already spent.
			if sale.PointsRedeemed.IsPositive() {
				if _, err := e.ledger.ApplyLoyaltyDelta(
					ctx, *sale.CustomerID, sale.PointsRedeemed,
					custledger.LoyaltyVoided, sale.ID, "SaleVoid",
				); err != nil {
					return err
				}
			}
			if sale.PointsEarned.IsPositive() {
				if _, err := e.ledger.ApplyLoyaltyDelta(
					ctx, *sale.CustomerID, -sale.PointsEarned,
					custledger.LoyaltyVoided, sale.ID, "SaleVoid",
				); err != nil {
					return err
				}
			}
			if sale.PaymentMethod == PayCredit && sale.Total.IsPositive() {
				if _, err := e.ledger.ApplyCreditDelta(
					ctx, *sale.CustomerID, sale.Total.Neg(),
					custledger.CreditVoided, sale.ID, "SaleVoid",
				); err != nil {
					return err
				}
			}
		}

		sale.Status = SaleVoided
		sale.VoidedAt = &now
		sale.VoidedBy = operatorID
		sale.VoidReason = reason
		if err := e.sales.MarkVoided(ctx, sale); err != nil {
			return fmt.Errorf("mark sale voided: %w", err)
		}

		if e.events != nil {
			if err := e.events.PublishEvent(ctx, "Sale", sale.ID, "sale.voided", map[string]any{
				"number": sale.Number,
				"reason": reason,
			}); err != nil {
				return fmt.Errorf("publish void event: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "sale voided",
		"sale_id", saleID,
		"voided_by", operatorID,
		"reason", reason,
	)
	return sale, nil
}

// rewindDispense subtracts a voided dispensing from the prescription's
// item counters and recomputes its status. Runs inside the void
// transaction, with the prescription row locked.
func (e *Engine) rewindDispense(ctx context.Context, sale *Sale) error {
	rx, err := e.rx.GetByIDForUpdate(ctx, *sale.PrescriptionID)
	if err != nil {
		return err
	}
	if rx == nil {
		return apperror.NewNotFound("prescription", *sale.PrescriptionID)
	}

	event, err := e.rx.GetDispensingEventBySale(ctx, sale.ID)
	if err != nil {
		return err
	}
	if event == nil {
		return nil
	}

	byID := make(map[id.ID]*prescriptions.PrescriptionItem, len(rx.Items))
	for i := range rx.Items {
		byID[rx.Items[i].ID] = &rx.Items[i]
	}
	for _, line := range event.Lines {
		if err := e.rx.AddDispensedQuantity(ctx, line.ItemID, -line.Quantity.Int64()); err != nil {
			return fmt.Errorf("rewind item counter: %w", err)
		}
		if item, ok := byID[line.ItemID]; ok {
			item.QuantityDispensed -= line.Quantity
		}
	}

	if status := prescriptions.DeriveStatus(rx, time.Now().UTC()); status != rx.Status {
		if err := e.rx.UpdateStatus(ctx, rx.ID, status, rx.Version); err != nil {
			return fmt.Errorf("update prescription status: %w", err)
		}
	}
	return nil
}

// ReceiveStock settles a goods intake: on-hand grows, the weighted
// average cost is recalculated, controlled batches get a RECEIPT
// register entry, and the receipt document is written, all in one
// transaction.
func (e *Engine) ReceiveStock(ctx context.Context, req ReceiveRequest) (*GoodsReceipt, error) {
	if id.IsNil(req.StockUnitID) {
		return nil, apperror.NewValidation("stock unit is required")
	}
	if !req.Quantity.IsPositive() {
		return nil, apperror.NewValidation("quantity must be positive")
	}
	if req.UnitCost.IsNegative() {
		return nil, apperror.NewValidation("unit cost cannot be negative")
	}
	if req.SupplierName == "" {
		return nil, apperror.NewValidation("supplier name is required").
			WithDetail("field", "supplierName")
	}
	operatorID := appctx.GetOperatorID(ctx)
	if operatorID == "" {
		return nil, apperror.NewUnauthorized("operator identity missing")
	}

	number, err := e.numerator.GetNextNumber(ctx,
		numerator.DefaultConfig("GR"), numerator.DefaultOptions(), time.Now())
	if err != nil {
		return nil, fmt.Errorf("generate receipt number: %w", err)
	}

	var receipt *GoodsReceipt
	err = e.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		unit, err := e.units.GetByIDForUpdate(ctx, req.StockUnitID)
		if err != nil {
			return err
		}
		if unit == nil || unit.DeletionMark {
			return apperror.NewNotFound("stock unit", req.StockUnitID)
		}

		receipt = &GoodsReceipt{
			Document:     entity.NewDocument(operatorID),
			StockUnitID:  unit.ID,
			Quantity:     req.Quantity,
			UnitCost:     req.UnitCost,
			SupplierName: req.SupplierName,
			InvoiceRef:   req.InvoiceRef,
		}
		receipt.Number = number
		receipt.Comment = req.Comment

		// Weighted average over the quantity already on hand.
		oldQty := decimal.NewFromInt(unit.OnHand.Int64())
		addQty := decimal.NewFromInt(req.Quantity.Int64())
		totalCost := unit.UnitCost.ToMoney().Mul(oldQty).
			Add(req.UnitCost.ToMoney().Mul(addQty))
		unit.UnitCost = types.NewMinorUnitsFromMoney(
			totalCost.Div(oldQty.Add(addQty)))
		unit.UpdatedAt = time.Now().UTC()
		if err := e.units.Update(ctx, unit); err != nil {
			return fmt.Errorf("update unit cost: %w", err)
		}

		if err := e.stock.Receive(
			ctx, receipt.ID, "GoodsReceipt", receipt.Date, unit.ID, req.Quantity,
		); err != nil {
			return err
		}

		if unit.IsControlled() {
			if _, err := e.controlled.Append(ctx, controlled.AppendRequest{
				StockUnitID: unit.ID,
				Type:        controlled.EntryReceipt,
				QuantityIn:  req.Quantity,
				Context: controlled.ReceiptContext{
					SupplierName: req.SupplierName,
					InvoiceRef:   req.InvoiceRef,
				},
				RecordedBy: operatorID,
				Period:     receipt.Date,
			}); err != nil {
				return err
			}
		}

		if err := e.sales.CreateReceipt(ctx, receipt); err != nil {
			return err
		}

		if e.events != nil {
			if err := e.events.PublishEvent(ctx, "GoodsReceipt", receipt.ID, "stock.received", map[string]any{
				"number":        receipt.Number,
				"stock_unit_id": receipt.StockUnitID.String(),
				"quantity":      receipt.Quantity.Int64(),
			}); err != nil {
				return fmt.Errorf("publish receipt event: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "stock received",
		"receipt_id", receipt.ID,
		"stock_unit_id", req.StockUnitID,
		"quantity", req.Quantity.Int64(),
	)
	return receipt, nil
}

// ControlledEntryRequest records a register movement no settlement
// produces: facility transfers, count adjustments, witnessed
// destruction. On-hand stock moves with the entry.
type ControlledEntryRequest struct {
	StockUnitID id.ID                   `json:"stockUnitId" binding:"required"`
	Type        controlled.EntryType    `json:"type" binding:"required"`
	QuantityIn  types.Quantity          `json:"quantityIn,omitempty"`
	QuantityOut types.Quantity          `json:"quantityOut,omitempty"`
	Context     controlled.EntryContext `json:"context"`
}

// RecordControlledEntry appends a manual register entry and moves the
// matching stock in one transaction. SALE, DISPENSE, RECEIPT and RETURN
// entries are rejected here; those are written by their settlements.
func (e *Engine) RecordControlledEntry(ctx context.Context, req ControlledEntryRequest) (*controlled.RegisterEntry, error) {
	switch req.Type {
	case controlled.EntryTransferIn, controlled.EntryTransferOut,
		controlled.EntryAdjustment, controlled.EntryDestruction:
	default:
		return nil, apperror.NewValidation("entry type cannot be recorded manually").
			WithDetail("type", string(req.Type))
	}
	if req.Context == nil || req.Context.EntryType() != req.Type {
		return nil, apperror.NewValidation("context does not match the entry type").
			WithDetail("type", string(req.Type))
	}
	operatorID := appctx.GetOperatorID(ctx)
	if operatorID == "" {
		return nil, apperror.NewUnauthorized("operator identity missing")
	}

	var entry *controlled.RegisterEntry
	err := e.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		unit, err := e.units.GetByIDForUpdate(ctx, req.StockUnitID)
		if err != nil {
			return err
		}
		if unit == nil || unit.DeletionMark {
			return apperror.NewNotFound("stock unit", req.StockUnitID)
		}
		if !unit.IsControlled() {
			return apperror.NewValidation("stock unit is not a controlled substance").
				WithDetail("stock_unit_id", unit.ID.String())
		}

		now := time.Now().UTC()
		entry, err = e.controlled.Append(ctx, controlled.AppendRequest{
			StockUnitID: unit.ID,
			Type:        req.Type,
			QuantityIn:  req.QuantityIn,
			QuantityOut: req.QuantityOut,
			Context:     req.Context,
			RecordedBy:  operatorID,
			Period:      now,
		})
		if err != nil {
			return err
		}

		// On-hand tracks the register.
		if req.QuantityIn.IsPositive() {
			if err := e.stock.Receive(
				ctx, entry.ID, string(req.Type), now, unit.ID, req.QuantityIn,
			); err != nil {
				return err
			}
		}
		if req.QuantityOut.IsPositive() {
			if err := e.stock.ReserveAndDecrement(
				ctx, entry.ID, string(req.Type), now, unit.ID, req.QuantityOut,
			); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "controlled entry recorded",
		"entry_id", entry.ID,
		"stock_unit_id", req.StockUnitID,
		"type", string(req.Type),
	)
	return entry, nil
}

// GetSale fetches a sale document with its lines.
func (e *Engine) GetSale(ctx context.Context, saleID id.ID) (*Sale, error) {
	sale, err := e.sales.GetSaleByID(ctx, saleID)
	if err != nil {
		return nil, err
	}
	if sale == nil {
		return nil, apperror.NewNotFound("sale", saleID)
	}
	return sale, nil
}

// ListSales returns sales matching the filter.
func (e *Engine) ListSales(ctx context.Context, filter SaleFilter) ([]*Sale, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	return e.sales.ListSales(ctx, filter)
}

// GetReceipt fetches a goods receipt document.
func (e *Engine) GetReceipt(ctx context.Context, receiptID id.ID) (*GoodsReceipt, error) {
	receipt, err := e.sales.GetReceiptByID(ctx, receiptID)
	if err != nil {
		return nil, err
	}
	if receipt == nil {
		return nil, apperror.NewNotFound("goods receipt", receiptID)
	}
	return receipt, nil
}

// ListReceipts returns goods receipts for a stock unit, newest first.
func (e *Engine) ListReceipts(ctx context.Context, stockUnitID id.ID, limit, offset int) ([]*GoodsReceipt, error) {
	if limit <= 0 {
		limit = 50
	}
	return e.sales.ListReceipts(ctx, stockUnitID, limit, offset)
}
