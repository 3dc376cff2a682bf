// Package main seeds the database with demo pharmacy data: a handful of
// stock units (one controlled), two customers and an open prescription.
// Stock arrives through the settlement engine, so the movement history
// and the controlled register chain are populated the same way
// production intake populates them.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"farmapos/internal/config"
	appctx "farmapos/internal/core/context"
	"farmapos/internal/core/entity"
	"farmapos/internal/core/types"
	"farmapos/internal/domain/catalogs/customer"
	"farmapos/internal/domain/catalogs/stockunit"
	custledger "farmapos/internal/domain/ledgers/customer"
	"farmapos/internal/domain/prescriptions"
	"farmapos/internal/domain/pricing"
	"farmapos/internal/domain/registers/controlled"
	"farmapos/internal/domain/registers/stock"
	"farmapos/internal/domain/settlement"
	"farmapos/internal/infrastructure/numerator"
	"farmapos/internal/infrastructure/storage/postgres"
	"farmapos/internal/infrastructure/storage/postgres/catalog_repo"
	"farmapos/internal/infrastructure/storage/postgres/document_repo"
	"farmapos/internal/infrastructure/storage/postgres/ledger_repo"
	"farmapos/internal/infrastructure/storage/postgres/register_repo"
	"farmapos/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{Level: "info", Development: true})
	if err != nil {
		fmt.Printf("failed to create logger: %v\n", err)
		os.Exit(1)
	}

	ctx := appctx.WithOperator(context.Background(), &appctx.OperatorContext{
		OperatorID: "seed",
		Name:       "Seed Tool",
		Roles:      []string{"supervisor"},
	})

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(cfg.DatabaseURL))
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()
	log.Info("connected to database")

	txManager := postgres.NewTxManager(pool)

	stockUnitRepo := catalog_repo.NewStockUnitRepo(txManager)
	customerRepo := catalog_repo.NewCustomerRepo(txManager)
	saleRepo := document_repo.NewSaleRepo(txManager)
	rxRepo := document_repo.NewPrescriptionRepo(txManager)

	stockUnitSvc := stockunit.NewService(stockUnitRepo)
	customerSvc := customer.NewService(customerRepo)
	stockSvc := stock.NewService(register_repo.NewStockRepo(txManager))
	controlledSvc := controlled.NewService(register_repo.NewControlledRepo(txManager))
	ledgerSvc := custledger.NewService(ledger_repo.NewCustomerLedgerRepo(txManager), customerRepo)
	rxSvc := prescriptions.NewService(rxRepo, txManager, numerator.New(pool))

	evaluator, err := pricing.NewEvaluator(nil)
	if err != nil {
		log.Fatalw("failed to create evaluator", "error", err)
	}

	engine := settlement.NewEngine(
		txManager, saleRepo, stockUnitRepo,
		stockSvc, controlledSvc, ledgerSvc, rxRepo,
		evaluator, numerator.New(pool), nil,
		settlement.DefaultConfig(),
	)

	units := seedStockUnits(ctx, stockUnitSvc, log)
	receiveStock(ctx, engine, units, log)
	customers := seedCustomers(ctx, customerSvc, log)
	seedPrescription(ctx, rxSvc, units, log)

	log.Infow("seeding completed", "stock_units", len(units), "customers", len(customers))
}

func seedStockUnits(ctx context.Context, svc *stockunit.Service, log *logger.Logger) []*stockunit.StockUnit {
	expiry := time.Now().AddDate(2, 0, 0)

	units := []*stockunit.StockUnit{
		stockunit.NewStockUnit("Paracetamol 500mg", "PAR-2401", expiry, 450),
		stockunit.NewStockUnit("Amoxicillin 250mg", "AMX-2403", expiry, 1200),
		stockunit.NewStockUnit("Ibuprofen 400mg", "IBU-2402", time.Now().AddDate(0, 2, 0), 600),
	}

	morphine := stockunit.NewStockUnit("Morphine Sulfate 10mg", "MOR-2401", expiry, 8900)
	morphine.ScheduleClass = stockunit.ScheduleII
	units = append(units, morphine)

	for _, u := range units {
		u.UnitCost = u.UnitPrice / 2
		if err := svc.Create(ctx, u); err != nil {
			log.Fatalw("failed to create stock unit", "medicine", u.MedicineName, "error", err)
		}
		log.Infow("stock unit created", "medicine", u.MedicineName, "batch", u.BatchNumber)
	}
	return units
}

func receiveStock(ctx context.Context, engine *settlement.Engine, units []*stockunit.StockUnit, log *logger.Logger) {
	for _, u := range units {
		qty := types.Quantity(100)
		if u.IsControlled() {
			qty = 20
		}
		receipt, err := engine.ReceiveStock(ctx, settlement.ReceiveRequest{
			StockUnitID:  u.ID,
			Quantity:     qty,
			UnitCost:     u.UnitCost,
			SupplierName: "PharmaDist Wholesale",
			InvoiceRef:   "INV-SEED",
		})
		if err != nil {
			log.Fatalw("failed to receive stock", "medicine", u.MedicineName, "error", err)
		}
		log.Infow("stock received", "medicine", u.MedicineName, "number", receipt.Number, "quantity", qty)
	}
}

func seedCustomers(ctx context.Context, svc *customer.Service, log *logger.Logger) []*customer.Customer {
	customers := []*customer.Customer{
		customer.NewCustomer("Anna Kovacs", "+36301234567", 50000),
		customer.NewCustomer("Peter Nagy", "+36209876543", 0),
	}
	for _, c := range customers {
		if err := svc.Create(ctx, c); err != nil {
			log.Fatalw("failed to create customer", "name", c.Name, "error", err)
		}
		log.Infow("customer created", "name", c.Name)
	}
	return customers
}

func seedPrescription(ctx context.Context, svc *prescriptions.Service, units []*stockunit.StockUnit, log *logger.Logger) {
	var morphine *stockunit.StockUnit
	for _, u := range units {
		if u.IsControlled() {
			morphine = u
			break
		}
	}
	if morphine == nil {
		return
	}

	p := &prescriptions.Prescription{
		BaseDocument:   entity.NewBaseDocument(),
		PatientName:    "Anna Kovacs",
		PrescriberName: "Dr. Laszlo Toth",
		PrescriberRef:  "HU-DOC-44812",
		IssuedDate:     time.Now(),
		ExpiryDate:     time.Now().AddDate(0, 1, 0),
		Items: []prescriptions.PrescriptionItem{
			{StockUnitID: morphine.ID, QuantityPrescribed: 10},
		},
	}
	if err := svc.Create(ctx, p); err != nil {
		log.Fatalw("failed to create prescription", "error", err)
	}
	log.Infow("prescription created", "number", p.Number, "patient", p.PatientName)
}
