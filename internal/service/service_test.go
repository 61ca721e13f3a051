package service

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/asaskevich/EventBus"

	"motormods/backend/internal/cache"
	"motormods/backend/internal/domain"
	"motormods/backend/internal/mirror"
	"motormods/backend/internal/settings"
	"motormods/backend/internal/store"
	boltstore "motormods/backend/internal/store/bolt"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	repo, err := boltstore.New(context.Background(), filepath.Join(t.TempDir(), "test.bolt"))
	if err != nil {
		t.Fatalf("open bolt store: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })

	provider := store.NewSwappableProvider(repo)
	return New(provider, settings.NewProvider(provider), cache.NoopProductCache{}, nil, time.Second)
}

func seedProduct(t *testing.T, svc *Service, name string, priceCents int64, costCents int64, stock int) domain.Product {
	t.Helper()
	created, err := svc.CreateProduct(context.Background(), domain.ProductCreateRequest{
		Name:               name,
		PriceCents:         priceCents,
		PurchasePriceCents: costCents,
		OpeningStock:       stock,
		ReorderLevel:       2,
	})
	if err != nil {
		t.Fatalf("seed product %s: %v", name, err)
	}
	return created
}

func TestSaleDeductsStockAndWritesLedger(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	product := seedProduct(t, svc, "Brake Pad Set", 45000, 30000, 10)

	resp, err := svc.CreateSale(ctx, domain.SaleRequest{
		PaymentMode: "cash",
		Items:       []domain.SaleLine{{ProductID: product.ID, Quantity: 3}},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if resp.Invoice.SubtotalCents != 135000 {
		t.Fatalf("expected subtotal 135000, got %d", resp.Invoice.SubtotalCents)
	}
	if resp.Invoice.TotalCents != 135000 {
		t.Fatalf("expected total 135000, got %d", resp.Invoice.TotalCents)
	}

	after, err := svc.GetProduct(ctx, product.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if after.Quantity != 7 {
		t.Fatalf("expected quantity 7 after sale, got %d", after.Quantity)
	}
	if after.LastSaleDate == nil {
		t.Fatalf("expected last sale date to be set")
	}

	ledger, err := svc.ListAdjustments(ctx, store.LedgerFilter{ProductID: product.ID, Type: domain.AdjustmentSale})
	if err != nil {
		t.Fatalf("list adjustments: %v", err)
	}
	if len(ledger) != 1 {
		t.Fatalf("expected 1 sale ledger row, got %d", len(ledger))
	}
	if ledger[0].Quantity != -3 {
		t.Fatalf("expected ledger delta -3, got %d", ledger[0].Quantity)
	}
	if ledger[0].CreatedBy != "system" {
		t.Fatalf("expected created_by system, got %q", ledger[0].CreatedBy)
	}
}

func TestSaleInsufficientStockFailsCleanly(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	product := seedProduct(t, svc, "Chain Lube", 25000, 15000, 2)

	_, err := svc.CreateSale(ctx, domain.SaleRequest{
		PaymentMode: "cash",
		Items:       []domain.SaleLine{{ProductID: product.ID, Quantity: 5}},
	})
	if err == nil {
		t.Fatalf("expected insufficient stock error")
	}
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	var detail *store.InsufficientStockError
	if !errors.As(err, &detail) {
		t.Fatalf("expected InsufficientStockError detail, got %T", err)
	}
	if detail.ProductName != "Chain Lube" || detail.Available != 2 || detail.Requested != 5 {
		t.Fatalf("unexpected detail: %+v", detail)
	}

	after, err := svc.GetProduct(ctx, product.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if after.Quantity != 2 {
		t.Fatalf("expected stock unchanged at 2, got %d", after.Quantity)
	}

	invoices, err := svc.ListInvoices(ctx, time.Now().Add(-time.Hour), time.Now().Add(time.Hour), 10)
	if err != nil {
		t.Fatalf("list invoices: %v", err)
	}
	if len(invoices) != 0 {
		t.Fatalf("expected no invoices, got %d", len(invoices))
	}
}

func TestSaleMultiLineIsAtomic(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	plenty := seedProduct(t, svc, "Oil Filter", 12000, 8000, 50)
	scarce := seedProduct(t, svc, "Clutch Cable", 18000, 11000, 1)

	_, err := svc.CreateSale(ctx, domain.SaleRequest{
		PaymentMode: "upi",
		Items: []domain.SaleLine{
			{ProductID: plenty.ID, Quantity: 2},
			{ProductID: scarce.ID, Quantity: 3},
		},
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	after, err := svc.GetProduct(ctx, plenty.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if after.Quantity != 50 {
		t.Fatalf("expected first line untouched at 50, got %d", after.Quantity)
	}
	ledger, err := svc.ListAdjustments(ctx, store.LedgerFilter{Type: domain.AdjustmentSale})
	if err != nil {
		t.Fatalf("list adjustments: %v", err)
	}
	if len(ledger) != 0 {
		t.Fatalf("expected no sale ledger rows, got %d", len(ledger))
	}
}

func TestSaleDiscountClampedToSubtotal(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	product := seedProduct(t, svc, "Spark Plug", 9000, 5000, 10)

	resp, err := svc.CreateSale(ctx, domain.SaleRequest{
		PaymentMode:   "card",
		DiscountCents: 50000,
		Items:         []domain.SaleLine{{ProductID: product.ID, Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if resp.Invoice.DiscountCents != 9000 {
		t.Fatalf("expected discount clamped to 9000, got %d", resp.Invoice.DiscountCents)
	}
	if resp.Invoice.TotalCents != 0 {
		t.Fatalf("expected total 0, got %d", resp.Invoice.TotalCents)
	}
}

func TestSaleDefaultsWalkingCustomer(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	product := seedProduct(t, svc, "Headlight Bulb", 15000, 9000, 5)

	resp, err := svc.CreateSale(ctx, domain.SaleRequest{
		PaymentMode: "cash",
		Items:       []domain.SaleLine{{ProductID: product.ID, Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if resp.Invoice.CustomerName != domain.WalkingCustomer {
		t.Fatalf("expected %q, got %q", domain.WalkingCustomer, resp.Invoice.CustomerName)
	}
}

func TestSaleRejectsUnsupportedPaymentMode(t *testing.T) {
	svc := newTestService(t)
	product := seedProduct(t, svc, "Mirror Set", 22000, 14000, 4)

	_, err := svc.CreateSale(context.Background(), domain.SaleRequest{
		PaymentMode: "barter",
		Items:       []domain.SaleLine{{ProductID: product.ID, Quantity: 1}},
	})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestReturnRestocksAndBlocksOverReturn(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	product := seedProduct(t, svc, "Air Filter", 20000, 12000, 10)

	sale, err := svc.CreateSale(ctx, domain.SaleRequest{
		PaymentMode: "cash",
		Items:       []domain.SaleLine{{ProductID: product.ID, Quantity: 3}},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}

	ret, err := svc.CreateReturn(ctx, domain.ReturnRequest{
		InvoiceID: sale.Invoice.ID,
		Reason:    domain.ReturnReasonDefective,
		Items:     []domain.ReturnLine{{ProductID: product.ID, Quantity: 2}},
	})
	if err != nil {
		t.Fatalf("create return: %v", err)
	}
	if ret.Return.TotalCents != 40000 {
		t.Fatalf("expected return total 40000 from sold price, got %d", ret.Return.TotalCents)
	}
	if ret.Return.Status != domain.ReturnStatusCompleted {
		t.Fatalf("expected status completed, got %s", ret.Return.Status)
	}

	after, err := svc.GetProduct(ctx, product.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if after.Quantity != 9 {
		t.Fatalf("expected quantity 9 after return, got %d", after.Quantity)
	}

	// 2 of 3 already returned, so another 2 exceeds the bound.
	_, err = svc.CreateReturn(ctx, domain.ReturnRequest{
		InvoiceID: sale.Invoice.ID,
		Reason:    domain.ReturnReasonDefective,
		Items:     []domain.ReturnLine{{ProductID: product.ID, Quantity: 2}},
	})
	if !errors.Is(err, store.ErrOverReturn) {
		t.Fatalf("expected ErrOverReturn, got %v", err)
	}
	var detail *store.OverReturnError
	if !errors.As(err, &detail) {
		t.Fatalf("expected OverReturnError detail, got %T", err)
	}
	if detail.Sold != 3 || detail.Returned != 2 || detail.Requested != 2 {
		t.Fatalf("unexpected detail: %+v", detail)
	}

	// The last remaining unit is still returnable.
	if _, err := svc.CreateReturn(ctx, domain.ReturnRequest{
		InvoiceID: sale.Invoice.ID,
		Reason:    domain.ReturnReasonCustomerChange,
		Items:     []domain.ReturnLine{{ProductID: product.ID, Quantity: 1}},
	}); err != nil {
		t.Fatalf("expected final unit returnable: %v", err)
	}
}

func TestReturnRejectsProductNotOnInvoice(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	sold := seedProduct(t, svc, "Fuel Hose", 8000, 5000, 10)
	other := seedProduct(t, svc, "Gear Lever", 16000, 10000, 10)

	sale, err := svc.CreateSale(ctx, domain.SaleRequest{
		PaymentMode: "cash",
		Items:       []domain.SaleLine{{ProductID: sold.ID, Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}

	_, err = svc.CreateReturn(ctx, domain.ReturnRequest{
		InvoiceID: sale.Invoice.ID,
		Reason:    domain.ReturnReasonOther,
		Items:     []domain.ReturnLine{{ProductID: other.ID, Quantity: 1}},
	})
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestCancelReturnReversesRestock(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	product := seedProduct(t, svc, "Tail Lamp", 30000, 19000, 5)

	sale, err := svc.CreateSale(ctx, domain.SaleRequest{
		PaymentMode: "cash",
		Items:       []domain.SaleLine{{ProductID: product.ID, Quantity: 2}},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	ret, err := svc.CreateReturn(ctx, domain.ReturnRequest{
		InvoiceID: sale.Invoice.ID,
		Reason:    domain.ReturnReasonWarranty,
		Items:     []domain.ReturnLine{{ProductID: product.ID, Quantity: 2}},
	})
	if err != nil {
		t.Fatalf("create return: %v", err)
	}

	cancelled, err := svc.CancelReturn(ctx, ret.Return.ID)
	if err != nil {
		t.Fatalf("cancel return: %v", err)
	}
	if cancelled.Return.Status != domain.ReturnStatusCancelled {
		t.Fatalf("expected cancelled status, got %s", cancelled.Return.Status)
	}

	after, err := svc.GetProduct(ctx, product.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if after.Quantity != 3 {
		t.Fatalf("expected quantity back to 3, got %d", after.Quantity)
	}

	// The ledger keeps both directions; nothing is edited in place.
	ledger, err := svc.ListAdjustments(ctx, store.LedgerFilter{ProductID: product.ID, Type: domain.AdjustmentReturn})
	if err != nil {
		t.Fatalf("list adjustments: %v", err)
	}
	if len(ledger) != 2 {
		t.Fatalf("expected 2 return ledger rows, got %d", len(ledger))
	}

	if _, err := svc.CancelReturn(ctx, ret.Return.ID); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict on double cancel, got %v", err)
	}

	// Cancelled quantity becomes returnable again.
	if _, err := svc.CreateReturn(ctx, domain.ReturnRequest{
		InvoiceID: sale.Invoice.ID,
		Reason:    domain.ReturnReasonWarranty,
		Items:     []domain.ReturnLine{{ProductID: product.ID, Quantity: 2}},
	}); err != nil {
		t.Fatalf("expected re-return after cancel: %v", err)
	}
}

func TestManualAdjustmentSignsAndFloor(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	product := seedProduct(t, svc, "Handle Grip", 7000, 4000, 3)

	resp, err := svc.AdjustStock(ctx, product.ID, domain.StockAdjustRequest{
		Type:     domain.AdjustmentManualAdd,
		Quantity: 5,
	})
	if err != nil {
		t.Fatalf("manual add: %v", err)
	}
	if resp.NewQuantity != 8 {
		t.Fatalf("expected quantity 8, got %d", resp.NewQuantity)
	}

	resp, err = svc.AdjustStock(ctx, product.ID, domain.StockAdjustRequest{
		Type:     domain.AdjustmentDamageWriteOff,
		Quantity: 2,
	})
	if err != nil {
		t.Fatalf("damage write-off: %v", err)
	}
	if resp.NewQuantity != 6 {
		t.Fatalf("expected quantity 6, got %d", resp.NewQuantity)
	}

	_, err = svc.AdjustStock(ctx, product.ID, domain.StockAdjustRequest{
		Type:     domain.AdjustmentManualDeduct,
		Quantity: 100,
	})
	if !errors.Is(err, store.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState below zero, got %v", err)
	}

	if _, err := svc.AdjustStock(ctx, product.ID, domain.StockAdjustRequest{
		Type:     domain.AdjustmentSale,
		Quantity: 1,
	}); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected sale type rejected for manual adjustment, got %v", err)
	}
}

func TestDeleteProductForbiddenWithHistory(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	fresh := seedProduct(t, svc, "Decal Kit", 5000, 2000, 3)
	soldOne := seedProduct(t, svc, "Disc Rotor", 60000, 40000, 3)

	if _, err := svc.CreateSale(ctx, domain.SaleRequest{
		PaymentMode: "cash",
		Items:       []domain.SaleLine{{ProductID: soldOne.ID, Quantity: 1}},
	}); err != nil {
		t.Fatalf("create sale: %v", err)
	}

	if err := svc.DeleteProduct(ctx, soldOne.ID); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict deleting sold product, got %v", err)
	}

	if err := svc.DeleteProduct(ctx, fresh.ID); err != nil {
		t.Fatalf("expected fresh product deletable: %v", err)
	}
	if _, err := svc.GetProduct(ctx, fresh.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestInvoiceKeepsNameSnapshotAfterRename(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	product := seedProduct(t, svc, "Old Name", 10000, 6000, 5)

	sale, err := svc.CreateSale(ctx, domain.SaleRequest{
		PaymentMode: "cash",
		Items:       []domain.SaleLine{{ProductID: product.ID, Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}

	newName := "New Name"
	if _, err := svc.UpdateProduct(ctx, product.ID, domain.ProductUpdateRequest{Name: &newName}); err != nil {
		t.Fatalf("update product: %v", err)
	}

	got, err := svc.GetInvoice(ctx, sale.Invoice.ID)
	if err != nil {
		t.Fatalf("get invoice: %v", err)
	}
	if got.Items[0].ProductName != "Old Name" {
		t.Fatalf("expected snapshot name 'Old Name', got %q", got.Items[0].ProductName)
	}
}

func TestClassifyProductBoundaries(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	daysAgo := func(d int) *time.Time {
		t := now.AddDate(0, 0, -d)
		return &t
	}

	cases := []struct {
		name     string
		lastSale *time.Time
		want     string
	}{
		{"never sold", nil, domain.FSNNonMoving},
		{"sold today", daysAgo(0), domain.FSNFast},
		{"sold 30 days ago", daysAgo(30), domain.FSNFast},
		{"sold 31 days ago", daysAgo(31), domain.FSNSlow},
		{"sold 90 days ago", daysAgo(90), domain.FSNSlow},
		{"sold 91 days ago", daysAgo(91), domain.FSNNonMoving},
	}
	for _, tc := range cases {
		got := ClassifyProduct(tc.lastSale, now, 30, 90)
		if got != tc.want {
			t.Fatalf("%s: expected %s, got %s", tc.name, tc.want, got)
		}
	}
}

func TestClassifyFSNIsIdempotent(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	sold := seedProduct(t, svc, "Throttle Cable", 14000, 9000, 10)
	seedProduct(t, svc, "Dormant Part", 4000, 2000, 10)

	if _, err := svc.CreateSale(ctx, domain.SaleRequest{
		PaymentMode: "cash",
		Items:       []domain.SaleLine{{ProductID: sold.ID, Quantity: 1}},
	}); err != nil {
		t.Fatalf("create sale: %v", err)
	}

	first, err := svc.ClassifyFSN(ctx, 0)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if first.Fast != 1 || first.NonMoving != 1 {
		t.Fatalf("expected 1 fast and 1 non-moving, got %+v", first)
	}

	second, err := svc.ClassifyFSN(ctx, 0)
	if err != nil {
		t.Fatalf("classify again: %v", err)
	}
	if second.Changed != 0 {
		t.Fatalf("expected no changes on second sweep, got %d", second.Changed)
	}
}

func TestProfitSummaryUsesCostSnapshots(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	product := seedProduct(t, svc, "Carburetor", 100000, 60000, 10)

	if _, err := svc.CreateSale(ctx, domain.SaleRequest{
		PaymentMode: "cash",
		Items:       []domain.SaleLine{{ProductID: product.ID, Quantity: 2}},
	}); err != nil {
		t.Fatalf("create sale: %v", err)
	}

	// Later cost changes must not back-propagate into the period.
	newCost := int64(90000)
	if _, err := svc.UpdateProduct(ctx, product.ID, domain.ProductUpdateRequest{PurchasePriceCents: &newCost}); err != nil {
		t.Fatalf("update product: %v", err)
	}

	now := time.Now().UTC()
	summary, err := svc.ProfitSummary(ctx, now.Add(-time.Hour), now.Add(time.Hour))
	if err != nil {
		t.Fatalf("profit summary: %v", err)
	}
	if summary.RevenueCents != 200000 {
		t.Fatalf("expected revenue 200000, got %d", summary.RevenueCents)
	}
	if summary.CostCents != 120000 {
		t.Fatalf("expected cost 120000 from snapshot, got %d", summary.CostCents)
	}
	if summary.ProfitCents != 80000 {
		t.Fatalf("expected profit 80000, got %d", summary.ProfitCents)
	}
	if summary.MarginPercent != 40 {
		t.Fatalf("expected margin 40, got %f", summary.MarginPercent)
	}
	if summary.InventoryValuationCents != 8*90000 {
		t.Fatalf("expected valuation 720000, got %d", summary.InventoryValuationCents)
	}
}

func TestDailySalesSeparatesReturns(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	product := seedProduct(t, svc, "Side Stand", 12000, 7000, 10)

	sale, err := svc.CreateSale(ctx, domain.SaleRequest{
		PaymentMode: "cash",
		Items:       []domain.SaleLine{{ProductID: product.ID, Quantity: 2}},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if _, err := svc.CreateReturn(ctx, domain.ReturnRequest{
		InvoiceID: sale.Invoice.ID,
		Reason:    domain.ReturnReasonDefective,
		Items:     []domain.ReturnLine{{ProductID: product.ID, Quantity: 1}},
	}); err != nil {
		t.Fatalf("create return: %v", err)
	}

	now := time.Now().UTC()
	days, err := svc.DailySales(ctx, now.Add(-time.Hour), now.Add(time.Hour))
	if err != nil {
		t.Fatalf("daily sales: %v", err)
	}
	if len(days) != 1 {
		t.Fatalf("expected 1 day, got %d", len(days))
	}
	day := days[0]
	if day.InvoiceCount != 1 || day.RevenueCents != 24000 {
		t.Fatalf("unexpected sales aggregate: %+v", day)
	}
	if day.ReturnCount != 1 || day.ReturnTotalCents != 12000 {
		t.Fatalf("unexpected return aggregate: %+v", day)
	}
}

func TestActorPropagatesToLedger(t *testing.T) {
	svc := newTestService(t)
	ctx := WithActor(context.Background(), domain.Actor{Name: "ravi"})
	product := seedProduct(t, svc, "Petrol Tank Cap", 9000, 5000, 4)

	if _, err := svc.AdjustStock(ctx, product.ID, domain.StockAdjustRequest{
		Type:     domain.AdjustmentManualAdd,
		Quantity: 1,
		Notes:    "found in storeroom",
	}); err != nil {
		t.Fatalf("adjust stock: %v", err)
	}

	ledger, err := svc.ListAdjustments(ctx, store.LedgerFilter{ProductID: product.ID, Type: domain.AdjustmentManualAdd})
	if err != nil {
		t.Fatalf("list adjustments: %v", err)
	}
	if len(ledger) != 1 || ledger[0].CreatedBy != "ravi" {
		t.Fatalf("expected ledger row by ravi, got %+v", ledger)
	}
}

func TestLowStockMethods(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	low := seedProduct(t, svc, "Clutch Cable", 15000, 9000, 1)
	seedProduct(t, svc, "Engine Oil 1L", 60000, 42000, 50)
	capped, err := svc.CreateProduct(ctx, domain.ProductCreateRequest{
		Name:               "Spark Plug",
		PriceCents:         8000,
		PurchasePriceCents: 5000,
		OpeningStock:       10,
		ReorderLevel:       2,
		MaxStock:           100,
	})
	if err != nil {
		t.Fatalf("seed capped product: %v", err)
	}

	products, err := svc.LowStockProducts(ctx)
	if err != nil {
		t.Fatalf("low stock (reorder_level): %v", err)
	}
	if len(products) != 1 || products[0].ID != low.ID {
		t.Fatalf("expected only %s under reorder level, got %+v", low.Name, products)
	}

	if err := svc.PutSetting(ctx, settings.KeyLowStockMethod, settings.LowStockMethodPercentOfMax); err != nil {
		t.Fatalf("put setting: %v", err)
	}

	// 10 of 100 is within the default 20 percent floor; products without a
	// max stock are skipped under this method.
	products, err = svc.LowStockProducts(ctx)
	if err != nil {
		t.Fatalf("low stock (percent_of_max): %v", err)
	}
	if len(products) != 1 || products[0].ID != capped.ID {
		t.Fatalf("expected only %s under percent of max, got %+v", capped.Name, products)
	}
}

func TestClassifyFSNThresholdOverride(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	seedProduct(t, svc, "Dusty Gasket", 3000, 1500, 5)

	// Never sold is non-moving regardless of threshold.
	summary, err := svc.ClassifyFSN(ctx, 120)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if summary.ThresholdDays != 120 {
		t.Fatalf("expected override threshold 120, got %d", summary.ThresholdDays)
	}
	if summary.NonMoving != 1 {
		t.Fatalf("expected 1 non-moving, got %+v", summary)
	}

	// Without an override the configured setting applies.
	if err := svc.PutSetting(ctx, settings.KeyNonMovingThresholdDays, "45"); err != nil {
		t.Fatalf("put setting: %v", err)
	}
	summary, err = svc.ClassifyFSN(ctx, 0)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if summary.ThresholdDays != 45 {
		t.Fatalf("expected configured threshold 45, got %d", summary.ThresholdDays)
	}
}

func TestMirrorSettingGatesPublishes(t *testing.T) {
	repo, err := boltstore.New(context.Background(), filepath.Join(t.TempDir(), "mirror.bolt"))
	if err != nil {
		t.Fatalf("open bolt store: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })

	provider := store.NewSwappableProvider(repo)
	bus := EventBus.New()
	svc := New(provider, settings.NewProvider(provider), cache.NoopProductCache{}, bus, time.Second)

	var synced int
	if err := bus.Subscribe(mirror.TopicProductSync, func(_ domain.Product) { synced++ }); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	ctx := context.Background()
	if err := svc.PutSetting(ctx, settings.KeyMirrorEnabled, "false"); err != nil {
		t.Fatalf("put setting: %v", err)
	}
	seedProduct(t, svc, "Muffler Guard", 20000, 12000, 3)
	if synced != 0 {
		t.Fatalf("expected no publishes while mirroring disabled, got %d", synced)
	}

	if err := svc.PutSetting(ctx, settings.KeyMirrorEnabled, "true"); err != nil {
		t.Fatalf("put setting: %v", err)
	}
	seedProduct(t, svc, "Handlebar Grip", 7000, 4000, 3)
	if synced != 1 {
		t.Fatalf("expected one publish after re-enabling, got %d", synced)
	}
}

func TestCreateProductDuplicateSKURejected(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if _, err := svc.CreateProduct(ctx, domain.ProductCreateRequest{
		Name: "Fork Seal", SKU: "FS-22", PriceCents: 6000, PurchasePriceCents: 3500,
	}); err != nil {
		t.Fatalf("first create: %v", err)
	}
	_, err := svc.CreateProduct(ctx, domain.ProductCreateRequest{
		Name: "Fork Seal Kit", SKU: "FS-22", PriceCents: 9000, PurchasePriceCents: 5000,
	})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict on duplicate sku, got %v", err)
	}
}
