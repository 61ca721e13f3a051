package bolt

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	bbolt "go.etcd.io/bbolt"

	"motormods/backend/internal/domain"
	"motormods/backend/internal/store"
	"motormods/backend/internal/xid"
)

var (
	bucketProducts    = []byte("products")
	bucketInvoices    = []byte("invoices")
	bucketAdjustments = []byte("stock_adjustments")
	bucketReturns     = []byte("sales_returns")
	bucketSettings    = []byte("settings")
)

// Store is the keyed fallback backend. Each record is a JSON document; a
// single bbolt Update covers every write of an operation, so partial state
// is never visible.
type Store struct {
	db *bbolt.DB
}

func New(_ context.Context, path string) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketProducts, bucketInvoices, bucketAdjustments, bucketReturns, bucketSettings} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(_ context.Context) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		if tx.Bucket(bucketProducts) == nil {
			return store.ErrStorageUnavailable
		}
		return nil
	})
}

func putJSON(b *bbolt.Bucket, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put([]byte(key), raw)
}

func getJSON(b *bbolt.Bucket, key string, v any) error {
	raw := b.Get([]byte(key))
	if raw == nil {
		return store.ErrNotFound
	}
	return json.Unmarshal(raw, v)
}

// invoiceRecord bundles an invoice with its items in one document so a sale
// writes a single key into the invoices bucket.
type invoiceRecord struct {
	Invoice domain.Invoice       `json:"invoice"`
	Items   []domain.InvoiceItem `json:"items"`
}

func (s *Store) ListProducts(_ context.Context, filter store.ProductFilter) ([]domain.Product, error) {
	products := make([]domain.Product, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketProducts).ForEach(func(_, raw []byte) error {
			var p domain.Product
			if err := json.Unmarshal(raw, &p); err != nil {
				return err
			}
			if matchesFilter(p, filter) {
				products = append(products, p)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(products, func(i, j int) bool {
		if products[i].Category != products[j].Category {
			return products[i].Category < products[j].Category
		}
		return products[i].Name < products[j].Name
	})
	return products, nil
}

func matchesFilter(p domain.Product, filter store.ProductFilter) bool {
	if filter.Query != "" {
		q := strings.ToLower(filter.Query)
		if !strings.Contains(strings.ToLower(p.Name), q) && !strings.Contains(strings.ToLower(p.SKU), q) {
			return false
		}
	}
	if filter.Category != "" && p.Category != filter.Category {
		return false
	}
	if filter.FSNClass != "" && p.FSNClass != filter.FSNClass {
		return false
	}
	if filter.LowStock && p.Quantity > p.ReorderLevel {
		return false
	}
	return true
}

func (s *Store) GetProductByID(_ context.Context, id string) (*domain.Product, error) {
	var p domain.Product
	err := s.db.View(func(tx *bbolt.Tx) error {
		return getJSON(tx.Bucket(bucketProducts), id, &p)
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product, openingStock int, createdBy string) (*domain.Product, error) {
	now := time.Now().UTC()
	product.Quantity = openingStock
	product.UpdatedAt = now

	err := s.db.Update(func(tx *bbolt.Tx) error {
		products := tx.Bucket(bucketProducts)
		if products.Get([]byte(product.ID)) != nil {
			return store.ErrConflict
		}
		if product.SKU != "" {
			var dup bool
			err := products.ForEach(func(_, raw []byte) error {
				var existing domain.Product
				if err := json.Unmarshal(raw, &existing); err != nil {
					return err
				}
				if existing.SKU == product.SKU {
					dup = true
				}
				return nil
			})
			if err != nil {
				return err
			}
			if dup {
				return store.ErrConflict
			}
		}
		if err := putJSON(products, product.ID, product); err != nil {
			return err
		}
		if openingStock > 0 {
			adj := domain.StockAdjustment{
				ID:        xid.New("adj"),
				ProductID: product.ID,
				Type:      domain.AdjustmentOpeningStock,
				Quantity:  openingStock,
				Notes:     "Opening stock",
				CreatedBy: createdBy,
				CreatedAt: now,
			}
			return putJSON(tx.Bucket(bucketAdjustments), adj.ID, adj)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	var updated domain.Product
	err := s.db.Update(func(tx *bbolt.Tx) error {
		products := tx.Bucket(bucketProducts)
		var current domain.Product
		if err := getJSON(products, product.ID, &current); err != nil {
			return err
		}
		current.Name = product.Name
		current.SKU = product.SKU
		current.Category = product.Category
		current.PriceCents = product.PriceCents
		current.PurchasePriceCents = product.PurchasePriceCents
		current.ReorderLevel = product.ReorderLevel
		current.MaxStock = product.MaxStock
		current.UpdatedAt = time.Now().UTC()
		updated = current
		return putJSON(products, current.ID, current)
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *Store) ProductHasHistory(_ context.Context, id string) (bool, error) {
	var found bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		err := tx.Bucket(bucketInvoices).ForEach(func(_, raw []byte) error {
			var rec invoiceRecord
			if err := json.Unmarshal(raw, &rec); err != nil {
				return err
			}
			for _, item := range rec.Items {
				if item.ProductID == id {
					found = true
					return nil
				}
			}
			return nil
		})
		if err != nil || found {
			return err
		}
		return tx.Bucket(bucketReturns).ForEach(func(_, raw []byte) error {
			var ret domain.SalesReturn
			if err := json.Unmarshal(raw, &ret); err != nil {
				return err
			}
			for _, item := range ret.Items {
				if item.ProductID == id {
					found = true
					return nil
				}
			}
			return nil
		})
	})
	return found, err
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	hasHistory, err := s.ProductHasHistory(ctx, id)
	if err != nil {
		return err
	}
	if hasHistory {
		return store.ErrConflict
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		products := tx.Bucket(bucketProducts)
		if products.Get([]byte(id)) == nil {
			return store.ErrNotFound
		}
		adjustments := tx.Bucket(bucketAdjustments)
		var stale [][]byte
		err := adjustments.ForEach(func(key, raw []byte) error {
			var adj domain.StockAdjustment
			if err := json.Unmarshal(raw, &adj); err != nil {
				return err
			}
			if adj.ProductID == id {
				stale = append(stale, append([]byte(nil), key...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, key := range stale {
			if err := adjustments.Delete(key); err != nil {
				return err
			}
		}
		return products.Delete([]byte(id))
	})
}

func (s *Store) SetFSNClasses(_ context.Context, classes map[string]string) (int, error) {
	if len(classes) == 0 {
		return 0, nil
	}
	changed := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		products := tx.Bucket(bucketProducts)
		for id, class := range classes {
			var p domain.Product
			if err := getJSON(products, id, &p); err != nil {
				if err == store.ErrNotFound {
					continue
				}
				return err
			}
			if p.FSNClass == class {
				continue
			}
			p.FSNClass = class
			p.UpdatedAt = time.Now().UTC()
			if err := putJSON(products, id, p); err != nil {
				return err
			}
			changed++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return changed, nil
}

func (s *Store) AppendAdjustment(_ context.Context, adj domain.StockAdjustment) (*domain.StockAdjustment, int, error) {
	if adj.ID == "" {
		adj.ID = xid.New("adj")
	}
	if adj.CreatedAt.IsZero() {
		adj.CreatedAt = time.Now().UTC()
	}

	newQty := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		products := tx.Bucket(bucketProducts)
		var p domain.Product
		if err := getJSON(products, adj.ProductID, &p); err != nil {
			return err
		}
		next := p.Quantity + adj.Quantity
		if next < 0 {
			return store.ErrInvalidState
		}
		p.Quantity = next
		p.UpdatedAt = time.Now().UTC()
		newQty = next
		if err := putJSON(products, p.ID, p); err != nil {
			return err
		}
		return putJSON(tx.Bucket(bucketAdjustments), adj.ID, adj)
	})
	if err != nil {
		return nil, 0, err
	}

	created := adj
	return &created, newQty, nil
}

func (s *Store) ListAdjustments(_ context.Context, filter store.LedgerFilter) ([]domain.StockAdjustment, error) {
	limit := filter.Limit
	if limit < 1 {
		limit = 200
	}

	adjustments := make([]domain.StockAdjustment, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketAdjustments).ForEach(func(_, raw []byte) error {
			var a domain.StockAdjustment
			if err := json.Unmarshal(raw, &a); err != nil {
				return err
			}
			if filter.ProductID != "" && a.ProductID != filter.ProductID {
				return nil
			}
			if filter.Type != "" && a.Type != filter.Type {
				return nil
			}
			if filter.From != nil && a.CreatedAt.Before(*filter.From) {
				return nil
			}
			if filter.To != nil && !a.CreatedAt.Before(*filter.To) {
				return nil
			}
			adjustments = append(adjustments, a)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(adjustments, func(i, j int) bool {
		if !adjustments[i].CreatedAt.Equal(adjustments[j].CreatedAt) {
			return adjustments[i].CreatedAt.After(adjustments[j].CreatedAt)
		}
		return adjustments[i].ID > adjustments[j].ID
	})
	if len(adjustments) > limit {
		adjustments = adjustments[:limit]
	}
	return adjustments, nil
}

func (s *Store) CreateSale(_ context.Context, in store.SaleInput) (*domain.Invoice, []domain.InvoiceItem, error) {
	inv := in.Invoice
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now().UTC()
	}
	items := make([]domain.InvoiceItem, len(in.Items))
	copy(items, in.Items)

	err := s.db.Update(func(tx *bbolt.Tx) error {
		products := tx.Bucket(bucketProducts)
		adjustments := tx.Bucket(bucketAdjustments)
		invoices := tx.Bucket(bucketInvoices)

		if invoices.Get([]byte(inv.ID)) != nil {
			return store.ErrConflict
		}

		for i, item := range items {
			var p domain.Product
			if err := getJSON(products, item.ProductID, &p); err != nil {
				return err
			}
			if p.Quantity < item.Quantity {
				return &store.InsufficientStockError{
					ProductID:   p.ID,
					ProductName: p.Name,
					Available:   p.Quantity,
					Requested:   item.Quantity,
				}
			}
			if item.ProductName == "" {
				items[i].ProductName = p.Name
			}
			p.Quantity -= item.Quantity
			saleTime := inv.CreatedAt
			p.LastSaleDate = &saleTime
			p.UpdatedAt = inv.CreatedAt
			if err := putJSON(products, p.ID, p); err != nil {
				return err
			}
			adj := domain.StockAdjustment{
				ID:        xid.New("adj"),
				ProductID: item.ProductID,
				Type:      domain.AdjustmentSale,
				Quantity:  -item.Quantity,
				Notes:     in.LedgerNote,
				CreatedBy: in.CreatedBy,
				CreatedAt: inv.CreatedAt,
			}
			if err := putJSON(adjustments, adj.ID, adj); err != nil {
				return err
			}
		}

		return putJSON(invoices, inv.ID, invoiceRecord{Invoice: inv, Items: items})
	})
	if err != nil {
		return nil, nil, err
	}

	created := inv
	return &created, items, nil
}

func (s *Store) GetInvoiceByID(_ context.Context, id string) (*domain.Invoice, []domain.InvoiceItem, error) {
	var rec invoiceRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		return getJSON(tx.Bucket(bucketInvoices), id, &rec)
	})
	if err != nil {
		return nil, nil, err
	}
	return &rec.Invoice, rec.Items, nil
}

func (s *Store) ListInvoices(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.Invoice, error) {
	if limit < 1 {
		limit = 100
	}
	invoices := make([]domain.Invoice, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketInvoices).ForEach(func(_, raw []byte) error {
			var rec invoiceRecord
			if err := json.Unmarshal(raw, &rec); err != nil {
				return err
			}
			if rec.Invoice.CreatedAt.Before(from) || !rec.Invoice.CreatedAt.Before(to) {
				return nil
			}
			invoices = append(invoices, rec.Invoice)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(invoices, func(i, j int) bool { return invoices[i].CreatedAt.After(invoices[j].CreatedAt) })
	if len(invoices) > limit {
		invoices = invoices[:limit]
	}
	return invoices, nil
}

func (s *Store) GetReturnedQtyByInvoice(_ context.Context, invoiceID string) (map[string]int, error) {
	returned := make(map[string]int)
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketReturns).ForEach(func(_, raw []byte) error {
			var ret domain.SalesReturn
			if err := json.Unmarshal(raw, &ret); err != nil {
				return err
			}
			if ret.InvoiceID != invoiceID || ret.Status != domain.ReturnStatusCompleted {
				return nil
			}
			for _, item := range ret.Items {
				returned[item.ProductID] += item.Quantity
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return returned, nil
}

func (s *Store) CreateReturn(_ context.Context, in store.ReturnInput) (*domain.SalesReturn, error) {
	ret := in.Return
	if ret.ReturnDate.IsZero() {
		ret.ReturnDate = time.Now().UTC()
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		invoices := tx.Bucket(bucketInvoices)
		returns := tx.Bucket(bucketReturns)
		products := tx.Bucket(bucketProducts)
		adjustments := tx.Bucket(bucketAdjustments)

		var rec invoiceRecord
		if err := getJSON(invoices, ret.InvoiceID, &rec); err != nil {
			return err
		}
		if rec.Invoice.IsReturn {
			return store.ErrInvalidState
		}

		sold := make(map[string]int)
		soldNames := make(map[string]string)
		for _, item := range rec.Items {
			sold[item.ProductID] += item.Quantity
			soldNames[item.ProductID] = item.ProductName
		}

		returned := make(map[string]int)
		err := returns.ForEach(func(_, raw []byte) error {
			var existing domain.SalesReturn
			if err := json.Unmarshal(raw, &existing); err != nil {
				return err
			}
			if existing.InvoiceID != ret.InvoiceID || existing.Status != domain.ReturnStatusCompleted {
				return nil
			}
			for _, item := range existing.Items {
				returned[item.ProductID] += item.Quantity
			}
			return nil
		})
		if err != nil {
			return err
		}

		for _, item := range ret.Items {
			soldQty, ok := sold[item.ProductID]
			if !ok {
				return store.ErrValidation
			}
			if returned[item.ProductID]+item.Quantity > soldQty {
				return &store.OverReturnError{
					ProductID:   item.ProductID,
					ProductName: soldNames[item.ProductID],
					Sold:        soldQty,
					Returned:    returned[item.ProductID],
					Requested:   item.Quantity,
				}
			}
		}

		now := time.Now().UTC()
		for i, item := range ret.Items {
			if item.ProductName == "" {
				ret.Items[i].ProductName = soldNames[item.ProductID]
			}
			var p domain.Product
			if err := getJSON(products, item.ProductID, &p); err != nil {
				return err
			}
			p.Quantity += item.Quantity
			p.UpdatedAt = now
			if err := putJSON(products, p.ID, p); err != nil {
				return err
			}
			adj := domain.StockAdjustment{
				ID:        xid.New("adj"),
				ProductID: item.ProductID,
				Type:      domain.AdjustmentReturn,
				Quantity:  item.Quantity,
				Notes:     in.LedgerNote,
				CreatedBy: in.CreatedBy,
				CreatedAt: now,
			}
			if err := putJSON(adjustments, adj.ID, adj); err != nil {
				return err
			}
		}

		return putJSON(returns, ret.ID, ret)
	})
	if err != nil {
		return nil, err
	}

	created := ret
	return &created, nil
}

func (s *Store) GetReturnByID(_ context.Context, id string) (*domain.SalesReturn, error) {
	var ret domain.SalesReturn
	err := s.db.View(func(tx *bbolt.Tx) error {
		return getJSON(tx.Bucket(bucketReturns), id, &ret)
	})
	if err != nil {
		return nil, err
	}
	return &ret, nil
}

func (s *Store) ListReturns(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.SalesReturn, error) {
	if limit < 1 {
		limit = 100
	}
	returns := make([]domain.SalesReturn, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketReturns).ForEach(func(_, raw []byte) error {
			var ret domain.SalesReturn
			if err := json.Unmarshal(raw, &ret); err != nil {
				return err
			}
			if ret.ReturnDate.Before(from) || !ret.ReturnDate.Before(to) {
				return nil
			}
			returns = append(returns, ret)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(returns, func(i, j int) bool { return returns[i].ReturnDate.After(returns[j].ReturnDate) })
	if len(returns) > limit {
		returns = returns[:limit]
	}
	return returns, nil
}

func (s *Store) CancelReturn(_ context.Context, returnID string, cancelledBy string) (*domain.SalesReturn, error) {
	var cancelled domain.SalesReturn
	err := s.db.Update(func(tx *bbolt.Tx) error {
		returns := tx.Bucket(bucketReturns)
		products := tx.Bucket(bucketProducts)
		adjustments := tx.Bucket(bucketAdjustments)

		var ret domain.SalesReturn
		if err := getJSON(returns, returnID, &ret); err != nil {
			return err
		}
		if ret.Status == domain.ReturnStatusCancelled {
			return store.ErrConflict
		}

		now := time.Now().UTC()
		for _, item := range ret.Items {
			var p domain.Product
			if err := getJSON(products, item.ProductID, &p); err != nil {
				return err
			}
			if p.Quantity < item.Quantity {
				return store.ErrInvalidState
			}
		}
		for _, item := range ret.Items {
			var p domain.Product
			if err := getJSON(products, item.ProductID, &p); err != nil {
				return err
			}
			p.Quantity -= item.Quantity
			p.UpdatedAt = now
			if err := putJSON(products, p.ID, p); err != nil {
				return err
			}
			adj := domain.StockAdjustment{
				ID:        xid.New("adj"),
				ProductID: item.ProductID,
				Type:      domain.AdjustmentReturn,
				Quantity:  -item.Quantity,
				Notes:     fmt.Sprintf("Cancel return %s", ret.ReturnNo),
				CreatedBy: cancelledBy,
				CreatedAt: now,
			}
			if err := putJSON(adjustments, adj.ID, adj); err != nil {
				return err
			}
		}

		ret.Status = domain.ReturnStatusCancelled
		cancelled = ret
		return putJSON(returns, ret.ID, ret)
	})
	if err != nil {
		return nil, err
	}
	return &cancelled, nil
}

func (s *Store) GetDailySales(_ context.Context, from time.Time, to time.Time) ([]domain.DailySales, error) {
	byDate := make(map[string]*domain.DailySales)

	err := s.db.View(func(tx *bbolt.Tx) error {
		err := tx.Bucket(bucketInvoices).ForEach(func(_, raw []byte) error {
			var rec invoiceRecord
			if err := json.Unmarshal(raw, &rec); err != nil {
				return err
			}
			inv := rec.Invoice
			if inv.IsReturn || inv.CreatedAt.Before(from) || !inv.CreatedAt.Before(to) {
				return nil
			}
			date := inv.CreatedAt.UTC().Format("2006-01-02")
			entry, ok := byDate[date]
			if !ok {
				entry = &domain.DailySales{Date: date}
				byDate[date] = entry
			}
			entry.InvoiceCount++
			entry.RevenueCents += inv.TotalCents
			entry.DiscountCents += inv.DiscountCents
			return nil
		})
		if err != nil {
			return err
		}
		return tx.Bucket(bucketReturns).ForEach(func(_, raw []byte) error {
			var ret domain.SalesReturn
			if err := json.Unmarshal(raw, &ret); err != nil {
				return err
			}
			if ret.Status != domain.ReturnStatusCompleted || ret.ReturnDate.Before(from) || !ret.ReturnDate.Before(to) {
				return nil
			}
			date := ret.ReturnDate.UTC().Format("2006-01-02")
			entry, ok := byDate[date]
			if !ok {
				entry = &domain.DailySales{Date: date}
				byDate[date] = entry
			}
			entry.ReturnCount++
			entry.ReturnTotalCents += ret.TotalCents
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	days := make([]domain.DailySales, 0, len(byDate))
	for _, entry := range byDate {
		days = append(days, *entry)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Date < days[j].Date })
	return days, nil
}

func (s *Store) GetProfitSummary(_ context.Context, from time.Time, to time.Time) (domain.ProfitSummary, error) {
	summary := domain.ProfitSummary{
		From: from.UTC().Format("2006-01-02"),
		To:   to.UTC().Format("2006-01-02"),
	}

	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketInvoices).ForEach(func(_, raw []byte) error {
			var rec invoiceRecord
			if err := json.Unmarshal(raw, &rec); err != nil {
				return err
			}
			inv := rec.Invoice
			if inv.IsReturn || inv.CreatedAt.Before(from) || !inv.CreatedAt.Before(to) {
				return nil
			}
			summary.InvoiceCount++
			summary.RevenueCents += inv.TotalCents
			summary.DiscountCents += inv.DiscountCents
			for _, item := range rec.Items {
				summary.CostCents += item.CostPriceCents * int64(item.Quantity)
			}
			return nil
		})
	})
	if err != nil {
		return summary, err
	}

	summary.ProfitCents = summary.RevenueCents - summary.CostCents
	if summary.RevenueCents > 0 {
		summary.MarginPercent = float64(summary.ProfitCents) / float64(summary.RevenueCents) * 100
	}
	return summary, nil
}

func (s *Store) GetInventoryValuation(_ context.Context) (int64, error) {
	var total int64
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketProducts).ForEach(func(_, raw []byte) error {
			var p domain.Product
			if err := json.Unmarshal(raw, &p); err != nil {
				return err
			}
			total += p.PurchasePriceCents * int64(p.Quantity)
			return nil
		})
	})
	return total, err
}

func (s *Store) GetSetting(_ context.Context, key string) (*domain.Setting, error) {
	var setting domain.Setting
	err := s.db.View(func(tx *bbolt.Tx) error {
		return getJSON(tx.Bucket(bucketSettings), key, &setting)
	})
	if err != nil {
		return nil, err
	}
	return &setting, nil
}

func (s *Store) PutSetting(_ context.Context, key string, value string) error {
	setting := domain.Setting{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return putJSON(tx.Bucket(bucketSettings), key, setting)
	})
}

func (s *Store) ListSettings(_ context.Context) ([]domain.Setting, error) {
	settings := make([]domain.Setting, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketSettings).ForEach(func(_, raw []byte) error {
			var setting domain.Setting
			if err := json.Unmarshal(raw, &setting); err != nil {
				return err
			}
			settings = append(settings, setting)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(settings, func(i, j int) bool { return settings[i].Key < settings[j].Key })
	return settings, nil
}
