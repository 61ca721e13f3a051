package store

import (
	"context"
	"time"

	"motormods/backend/internal/domain"
)

// SaleInput carries a fully validated sale into a backend. The repository
// persists the invoice, its items, the per-item ledger rows and the stock
// deductions as one atomic unit.
type SaleInput struct {
	Invoice    domain.Invoice
	Items      []domain.InvoiceItem
	LedgerNote string
	CreatedBy  string
}

// ReturnInput carries a validated sales return. The repository persists the
// return header, its items, the restock ledger rows and the stock increments
// atomically.
type ReturnInput struct {
	Return     domain.SalesReturn
	LedgerNote string
	CreatedBy  string
}

type ProductFilter struct {
	Query    string
	Category string
	FSNClass string
	LowStock bool
}

type LedgerFilter struct {
	ProductID string
	Type      string
	From      *time.Time
	To        *time.Time
	Limit     int
}

type Repository interface {
	ListProducts(ctx context.Context, filter ProductFilter) ([]domain.Product, error)
	GetProductByID(ctx context.Context, id string) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product, openingStock int, createdBy string) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error
	ProductHasHistory(ctx context.Context, id string) (bool, error)
	SetFSNClasses(ctx context.Context, classes map[string]string) (int, error)

	AppendAdjustment(ctx context.Context, adj domain.StockAdjustment) (*domain.StockAdjustment, int, error)
	ListAdjustments(ctx context.Context, filter LedgerFilter) ([]domain.StockAdjustment, error)

	CreateSale(ctx context.Context, in SaleInput) (*domain.Invoice, []domain.InvoiceItem, error)
	GetInvoiceByID(ctx context.Context, id string) (*domain.Invoice, []domain.InvoiceItem, error)
	ListInvoices(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.Invoice, error)

	CreateReturn(ctx context.Context, in ReturnInput) (*domain.SalesReturn, error)
	GetReturnByID(ctx context.Context, id string) (*domain.SalesReturn, error)
	ListReturns(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.SalesReturn, error)
	GetReturnedQtyByInvoice(ctx context.Context, invoiceID string) (map[string]int, error)
	CancelReturn(ctx context.Context, returnID string, cancelledBy string) (*domain.SalesReturn, error)

	GetDailySales(ctx context.Context, from time.Time, to time.Time) ([]domain.DailySales, error)
	GetProfitSummary(ctx context.Context, from time.Time, to time.Time) (domain.ProfitSummary, error)
	GetInventoryValuation(ctx context.Context) (int64, error)

	GetSetting(ctx context.Context, key string) (*domain.Setting, error)
	PutSetting(ctx context.Context, key string, value string) error
	ListSettings(ctx context.Context) ([]domain.Setting, error)

	Ping(ctx context.Context) error
	Close() error
}
