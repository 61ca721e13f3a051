package domain

import "time"

// Product is the live inventory row. Quantity is a cached running total;
// the stock adjustment ledger is the reconciliation source of truth.
type Product struct {
	ID                 string     `json:"id"`
	Name               string     `json:"name"`
	SKU                string     `json:"sku,omitempty"`
	Category           string     `json:"category,omitempty"`
	PriceCents         int64      `json:"price_cents"`
	PurchasePriceCents int64      `json:"purchase_price_cents"`
	Quantity           int        `json:"quantity"`
	ReorderLevel       int        `json:"reorder_level"`
	MaxStock           int        `json:"max_stock,omitempty"`
	LastSaleDate       *time.Time `json:"last_sale_date,omitempty"`
	FSNClass           string     `json:"fsn_class,omitempty"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

type ProductCreateRequest struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	SKU                string `json:"sku,omitempty"`
	Category           string `json:"category,omitempty"`
	PriceCents         int64  `json:"price_cents"`
	PurchasePriceCents int64  `json:"purchase_price_cents"`
	OpeningStock       int    `json:"opening_stock"`
	ReorderLevel       int    `json:"reorder_level"`
	MaxStock           int    `json:"max_stock,omitempty"`
}

type ProductUpdateRequest struct {
	Name               *string `json:"name,omitempty"`
	SKU                *string `json:"sku,omitempty"`
	Category           *string `json:"category,omitempty"`
	PriceCents         *int64  `json:"price_cents,omitempty"`
	PurchasePriceCents *int64  `json:"purchase_price_cents,omitempty"`
	ReorderLevel       *int    `json:"reorder_level,omitempty"`
	MaxStock           *int    `json:"max_stock,omitempty"`
}

// Invoice is immutable after creation. TotalCents is always
// SubtotalCents - DiscountCents with the discount clamped to [0, subtotal].
type Invoice struct {
	ID                string    `json:"id"`
	CustomerName      string    `json:"customer_name"`
	CustomerPhone     string    `json:"customer_phone,omitempty"`
	SubtotalCents     int64     `json:"subtotal_cents"`
	DiscountCents     int64     `json:"discount_cents"`
	TotalCents        int64     `json:"total_cents"`
	PaymentMode       string    `json:"payment_mode"`
	IsReturn          bool      `json:"is_return"`
	OriginalInvoiceID string    `json:"original_invoice_id,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// InvoiceItem snapshots unit price, cost price and product name at sale
// time so later product edits or deletion never alter historical invoices.
type InvoiceItem struct {
	ID             string `json:"id"`
	InvoiceID      string `json:"invoice_id"`
	ProductID      string `json:"product_id"`
	ProductName    string `json:"product_name"`
	Quantity       int    `json:"quantity"`
	PriceCents     int64  `json:"price_cents"`
	CostPriceCents int64  `json:"cost_price_cents"`
}

// StockAdjustment is one append-only ledger row. Corrections are made by
// appending an offsetting row, never by editing.
type StockAdjustment struct {
	ID        string    `json:"id"`
	ProductID string    `json:"product_id"`
	Type      string    `json:"adjustment_type"`
	Quantity  int       `json:"quantity"`
	Notes     string    `json:"notes,omitempty"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

type SalesReturn struct {
	ID         string       `json:"id"`
	ReturnNo   string       `json:"return_no"`
	InvoiceID  string       `json:"invoice_id"`
	ReturnDate time.Time    `json:"return_date"`
	Reason     string       `json:"reason"`
	Notes      string       `json:"notes,omitempty"`
	TotalCents int64        `json:"total_cents"`
	Status     string       `json:"status"`
	Items      []ReturnItem `json:"items"`
}

type ReturnItem struct {
	ID             string `json:"id"`
	ReturnID       string `json:"return_id"`
	ProductID      string `json:"product_id"`
	ProductName    string `json:"product_name"`
	Quantity       int    `json:"quantity"`
	RateCents      int64  `json:"rate_cents"`
	LineTotalCents int64  `json:"line_total_cents"`
}

type Setting struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Actor struct {
	Name string
}

type SaleLine struct {
	ProductID      string `json:"product_id"`
	Quantity       int    `json:"quantity"`
	PriceCents     int64  `json:"price_cents,omitempty"`
	CostPriceCents int64  `json:"cost_price_cents,omitempty"`
}

type SaleRequest struct {
	CustomerName  string     `json:"customer_name"`
	CustomerPhone string     `json:"customer_phone,omitempty"`
	DiscountCents int64      `json:"discount_cents"`
	PaymentMode   string     `json:"payment_mode"`
	Items         []SaleLine `json:"items"`
}

type SaleResponse struct {
	Invoice Invoice       `json:"invoice"`
	Items   []InvoiceItem `json:"items"`
}

type ReturnLine struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	RateCents int64  `json:"rate_cents,omitempty"`
}

type ReturnRequest struct {
	InvoiceID string       `json:"invoice_id"`
	Reason    string       `json:"reason"`
	Notes     string       `json:"notes,omitempty"`
	Items     []ReturnLine `json:"items"`
}

type ReturnResponse struct {
	Return SalesReturn `json:"return"`
}

type StockAdjustRequest struct {
	Type     string `json:"adjustment_type"`
	Quantity int    `json:"quantity"`
	Notes    string `json:"notes,omitempty"`
}

type StockAdjustResponse struct {
	ProductID   string `json:"product_id"`
	NewQuantity int    `json:"new_quantity"`
}

type FSNSummary struct {
	ThresholdDays int `json:"threshold_days"`
	Fast          int `json:"fast"`
	Slow          int `json:"slow"`
	NonMoving     int `json:"non_moving"`
	Changed       int `json:"changed"`
}

// DailySales is one day's aggregate over sale invoices; the return columns
// aggregate that day's completed sales returns separately.
type DailySales struct {
	Date             string `json:"date"`
	InvoiceCount     int64  `json:"invoice_count"`
	RevenueCents     int64  `json:"revenue_cents"`
	DiscountCents    int64  `json:"discount_cents"`
	ReturnCount      int64  `json:"return_count"`
	ReturnTotalCents int64  `json:"return_total_cents"`
}

type ProfitSummary struct {
	From                    string  `json:"from"`
	To                      string  `json:"to"`
	InvoiceCount            int64   `json:"invoice_count"`
	RevenueCents            int64   `json:"revenue_cents"`
	CostCents               int64   `json:"cost_cents"`
	DiscountCents           int64   `json:"discount_cents"`
	ProfitCents             int64   `json:"profit_cents"`
	MarginPercent           float64 `json:"margin_percent"`
	InventoryValuationCents int64   `json:"inventory_valuation_cents"`
	PrevRevenueCents        int64   `json:"prev_revenue_cents"`
	PrevProfitCents         int64   `json:"prev_profit_cents"`
	RevenueDeltaPercent     float64 `json:"revenue_delta_percent"`
	ProfitDeltaPercent      float64 `json:"profit_delta_percent"`
}

const (
	AdjustmentOpeningStock   = "opening_stock"
	AdjustmentManualAdd      = "manual_add"
	AdjustmentManualDeduct   = "manual_deduction"
	AdjustmentSupplierReturn = "supplier_return"
	AdjustmentDamageWriteOff = "damage_write_off"
	AdjustmentSale           = "sale"
	AdjustmentReturn         = "return"
	AdjustmentOther          = "other"
)

const (
	ReturnStatusCompleted = "completed"
	ReturnStatusCancelled = "cancelled"
)

const (
	ReturnReasonDefective      = "defective"
	ReturnReasonWrongItem      = "wrong_item"
	ReturnReasonCustomerChange = "customer_change"
	ReturnReasonWarranty       = "warranty"
	ReturnReasonOther          = "other"
)

const (
	FSNFast      = "F"
	FSNSlow      = "S"
	FSNNonMoving = "N"
)

// WalkingCustomer is the default name for anonymous counter sales.
const WalkingCustomer = "Walking Customer"

var paymentModes = map[string]bool{
	"cash":   true,
	"card":   true,
	"upi":    true,
	"credit": true,
}

func IsSupportedPaymentMode(mode string) bool {
	return paymentModes[mode]
}

var manualAdjustmentTypes = map[string]bool{
	AdjustmentOpeningStock:   true,
	AdjustmentManualAdd:      true,
	AdjustmentManualDeduct:   true,
	AdjustmentSupplierReturn: true,
	AdjustmentDamageWriteOff: true,
	AdjustmentOther:          true,
}

// IsManualAdjustmentType reports whether t may be used through the manual
// stock adjustment endpoint. The sale and return kinds are written only by
// the sale and returns processors.
func IsManualAdjustmentType(t string) bool {
	return manualAdjustmentTypes[t]
}

var returnReasons = map[string]bool{
	ReturnReasonDefective:      true,
	ReturnReasonWrongItem:      true,
	ReturnReasonCustomerChange: true,
	ReturnReasonWarranty:       true,
	ReturnReasonOther:          true,
}

func IsSupportedReturnReason(reason string) bool {
	return returnReasons[reason]
}
