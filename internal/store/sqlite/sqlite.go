package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"motormods/backend/internal/domain"
	"motormods/backend/internal/store"
	"motormods/backend/internal/xid"
)

const schema = `
CREATE TABLE IF NOT EXISTS products (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	sku TEXT NOT NULL DEFAULT '',
	category TEXT NOT NULL DEFAULT '',
	price_cents INTEGER NOT NULL,
	purchase_price_cents INTEGER NOT NULL DEFAULT 0,
	quantity INTEGER NOT NULL DEFAULT 0,
	reorder_level INTEGER NOT NULL DEFAULT 0,
	max_stock INTEGER NOT NULL DEFAULT 0,
	last_sale_date TIMESTAMP,
	fsn_class TEXT NOT NULL DEFAULT '',
	updated_at TIMESTAMP NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_products_sku ON products(sku) WHERE sku <> '';

CREATE TABLE IF NOT EXISTS invoices (
	id TEXT PRIMARY KEY,
	customer_name TEXT NOT NULL,
	customer_phone TEXT NOT NULL DEFAULT '',
	subtotal_cents INTEGER NOT NULL,
	discount_cents INTEGER NOT NULL DEFAULT 0,
	total_cents INTEGER NOT NULL,
	payment_mode TEXT NOT NULL,
	is_return INTEGER NOT NULL DEFAULT 0,
	original_invoice_id TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_invoices_created_at ON invoices(created_at);

CREATE TABLE IF NOT EXISTS invoice_items (
	id TEXT PRIMARY KEY,
	invoice_id TEXT NOT NULL REFERENCES invoices(id),
	product_id TEXT NOT NULL,
	product_name TEXT NOT NULL,
	quantity INTEGER NOT NULL,
	price_cents INTEGER NOT NULL,
	cost_price_cents INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_invoice_items_invoice ON invoice_items(invoice_id);
CREATE INDEX IF NOT EXISTS idx_invoice_items_product ON invoice_items(product_id);

CREATE TABLE IF NOT EXISTS stock_adjustments (
	id TEXT PRIMARY KEY,
	product_id TEXT NOT NULL,
	adjustment_type TEXT NOT NULL,
	quantity INTEGER NOT NULL,
	notes TEXT NOT NULL DEFAULT '',
	created_by TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_stock_adjustments_product ON stock_adjustments(product_id, created_at);

CREATE TABLE IF NOT EXISTS sales_returns (
	id TEXT PRIMARY KEY,
	return_no TEXT NOT NULL UNIQUE,
	invoice_id TEXT NOT NULL REFERENCES invoices(id),
	return_date TIMESTAMP NOT NULL,
	reason TEXT NOT NULL,
	notes TEXT NOT NULL DEFAULT '',
	total_cents INTEGER NOT NULL,
	status TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sales_returns_invoice ON sales_returns(invoice_id);

CREATE TABLE IF NOT EXISTS return_items (
	id TEXT PRIMARY KEY,
	return_id TEXT NOT NULL REFERENCES sales_returns(id),
	product_id TEXT NOT NULL,
	product_name TEXT NOT NULL,
	quantity INTEGER NOT NULL,
	rate_cents INTEGER NOT NULL,
	line_total_cents INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_return_items_return ON return_items(return_id);

CREATE TABLE IF NOT EXISTS settings (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
`

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on&_loc=UTC", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}

	// Single writer; sqlite serializes writes anyway and this avoids
	// SQLITE_BUSY churn under concurrent requests.
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

const productColumns = `id, name, sku, category, price_cents, purchase_price_cents, quantity, reorder_level, max_stock, last_sale_date, fsn_class, updated_at`

func scanProduct(row interface{ Scan(...any) error }) (*domain.Product, error) {
	var p domain.Product
	var lastSale sql.NullTime
	if err := row.Scan(&p.ID, &p.Name, &p.SKU, &p.Category, &p.PriceCents, &p.PurchasePriceCents,
		&p.Quantity, &p.ReorderLevel, &p.MaxStock, &lastSale, &p.FSNClass, &p.UpdatedAt); err != nil {
		return nil, err
	}
	if lastSale.Valid {
		t := lastSale.Time.UTC()
		p.LastSaleDate = &t
	}
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}

func (s *Store) ListProducts(ctx context.Context, filter store.ProductFilter) ([]domain.Product, error) {
	var (
		conds []string
		args  []any
	)
	if filter.Query != "" {
		conds = append(conds, "(name LIKE ? OR sku LIKE ?)")
		like := "%" + filter.Query + "%"
		args = append(args, like, like)
	}
	if filter.Category != "" {
		conds = append(conds, "category = ?")
		args = append(args, filter.Category)
	}
	if filter.FSNClass != "" {
		conds = append(conds, "fsn_class = ?")
		args = append(args, filter.FSNClass)
	}
	if filter.LowStock {
		conds = append(conds, "quantity <= reorder_level")
	}

	query := `SELECT ` + productColumns + ` FROM products`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY category, name"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) GetProductByID(ctx context.Context, id string) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = ?`, id)
	p, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product, openingStock int, createdBy string) (*domain.Product, error) {
	now := time.Now().UTC()
	product.Quantity = openingStock
	product.UpdatedAt = now

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO products (id, name, sku, category, price_cents, purchase_price_cents, quantity, reorder_level, max_stock, fsn_class, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)
	`, product.ID, product.Name, product.SKU, product.Category, product.PriceCents, product.PurchasePriceCents,
		product.Quantity, product.ReorderLevel, product.MaxStock, product.FSNClass, product.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	if openingStock > 0 {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO stock_adjustments (id, product_id, adjustment_type, quantity, notes, created_by, created_at)
			VALUES (?,?,?,?,?,?,?)
		`, xid.New("adj"), product.ID, domain.AdjustmentOpeningStock, openingStock, "Opening stock", createdBy, now)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	product.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = ?, sku = ?, category = ?, price_cents = ?, purchase_price_cents = ?, reorder_level = ?, max_stock = ?, updated_at = ?
		WHERE id = ?
	`, product.Name, product.SKU, product.Category, product.PriceCents, product.PurchasePriceCents,
		product.ReorderLevel, product.MaxStock, product.UpdatedAt, product.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetProductByID(ctx, product.ID)
}

func (s *Store) ProductHasHistory(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM invoice_items WHERE product_id = ?)
		OR EXISTS(SELECT 1 FROM return_items WHERE product_id = ?)
	`, id, id).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

// DeleteProduct removes a product with no sale or return history, together
// with its manual ledger rows. Products referenced by invoices are never
// removed; the caller maps that case to a conflict.
func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	hasHistory, err := s.ProductHasHistory(ctx, id)
	if err != nil {
		return err
	}
	if hasHistory {
		return store.ErrConflict
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM stock_adjustments WHERE product_id = ?`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return tx.Commit()
}

func (s *Store) SetFSNClasses(ctx context.Context, classes map[string]string) (int, error) {
	if len(classes) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	changed := 0
	for id, class := range classes {
		res, err := tx.ExecContext(ctx, `
			UPDATE products SET fsn_class = ?, updated_at = ? WHERE id = ? AND fsn_class <> ?
		`, class, time.Now().UTC(), id, class)
		if err != nil {
			return 0, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		changed += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return changed, nil
}

// AppendAdjustment applies a signed stock delta and records the ledger row
// in the same transaction. A delta that would drive the quantity negative
// fails without writing anything.
func (s *Store) AppendAdjustment(ctx context.Context, adj domain.StockAdjustment) (*domain.StockAdjustment, int, error) {
	if adj.ID == "" {
		adj.ID = xid.New("adj")
	}
	if adj.CreatedAt.IsZero() {
		adj.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, 0, err
	}
	defer func() { _ = tx.Rollback() }()

	var qty int
	err = tx.QueryRowContext(ctx, `SELECT quantity FROM products WHERE id = ?`, adj.ProductID).Scan(&qty)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, 0, store.ErrNotFound
		}
		return nil, 0, err
	}

	newQty := qty + adj.Quantity
	if newQty < 0 {
		return nil, 0, store.ErrInvalidState
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO stock_adjustments (id, product_id, adjustment_type, quantity, notes, created_by, created_at)
		VALUES (?,?,?,?,?,?,?)
	`, adj.ID, adj.ProductID, adj.Type, adj.Quantity, adj.Notes, adj.CreatedBy, adj.CreatedAt); err != nil {
		return nil, 0, err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE products SET quantity = ?, updated_at = ? WHERE id = ?
	`, newQty, time.Now().UTC(), adj.ProductID); err != nil {
		return nil, 0, err
	}

	if err := tx.Commit(); err != nil {
		return nil, 0, err
	}

	created := adj
	return &created, newQty, nil
}

func (s *Store) ListAdjustments(ctx context.Context, filter store.LedgerFilter) ([]domain.StockAdjustment, error) {
	limit := filter.Limit
	if limit < 1 {
		limit = 200
	}

	var (
		conds []string
		args  []any
	)
	if filter.ProductID != "" {
		conds = append(conds, "product_id = ?")
		args = append(args, filter.ProductID)
	}
	if filter.Type != "" {
		conds = append(conds, "adjustment_type = ?")
		args = append(args, filter.Type)
	}
	if filter.From != nil {
		conds = append(conds, "created_at >= ?")
		args = append(args, filter.From.UTC())
	}
	if filter.To != nil {
		conds = append(conds, "created_at < ?")
		args = append(args, filter.To.UTC())
	}

	query := `SELECT id, product_id, adjustment_type, quantity, notes, created_by, created_at FROM stock_adjustments`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	adjustments := make([]domain.StockAdjustment, 0, limit)
	for rows.Next() {
		var a domain.StockAdjustment
		if err := rows.Scan(&a.ID, &a.ProductID, &a.Type, &a.Quantity, &a.Notes, &a.CreatedBy, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.CreatedAt = a.CreatedAt.UTC()
		adjustments = append(adjustments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return adjustments, nil
}

// CreateSale persists the invoice, its items, the per-item sale ledger rows
// and the stock deductions as one transaction. Stock is re-checked under the
// transaction so a concurrent sale cannot oversell.
func (s *Store) CreateSale(ctx context.Context, in store.SaleInput) (*domain.Invoice, []domain.InvoiceItem, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = tx.Rollback() }()

	now := in.Invoice.CreatedAt
	if now.IsZero() {
		now = time.Now().UTC()
		in.Invoice.CreatedAt = now
	}

	for i, item := range in.Items {
		var (
			qty  int
			name string
		)
		err := tx.QueryRowContext(ctx, `SELECT quantity, name FROM products WHERE id = ?`, item.ProductID).Scan(&qty, &name)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, nil, store.ErrNotFound
			}
			return nil, nil, err
		}
		if qty < item.Quantity {
			return nil, nil, &store.InsufficientStockError{
				ProductID:   item.ProductID,
				ProductName: name,
				Available:   qty,
				Requested:   item.Quantity,
			}
		}
		if item.ProductName == "" {
			in.Items[i].ProductName = name
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE products SET quantity = quantity - ?, last_sale_date = ?, updated_at = ? WHERE id = ?
		`, item.Quantity, now, now, item.ProductID); err != nil {
			return nil, nil, err
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO stock_adjustments (id, product_id, adjustment_type, quantity, notes, created_by, created_at)
			VALUES (?,?,?,?,?,?,?)
		`, xid.New("adj"), item.ProductID, domain.AdjustmentSale, -item.Quantity, in.LedgerNote, in.CreatedBy, now); err != nil {
			return nil, nil, err
		}
	}

	inv := in.Invoice
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO invoices (id, customer_name, customer_phone, subtotal_cents, discount_cents, total_cents, payment_mode, is_return, original_invoice_id, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?)
	`, inv.ID, inv.CustomerName, inv.CustomerPhone, inv.SubtotalCents, inv.DiscountCents, inv.TotalCents,
		inv.PaymentMode, inv.IsReturn, inv.OriginalInvoiceID, inv.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return nil, nil, store.ErrConflict
		}
		return nil, nil, err
	}

	for _, item := range in.Items {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO invoice_items (id, invoice_id, product_id, product_name, quantity, price_cents, cost_price_cents)
			VALUES (?,?,?,?,?,?,?)
		`, item.ID, item.InvoiceID, item.ProductID, item.ProductName, item.Quantity, item.PriceCents, item.CostPriceCents); err != nil {
			return nil, nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}

	created := inv
	items := make([]domain.InvoiceItem, len(in.Items))
	copy(items, in.Items)
	return &created, items, nil
}

func (s *Store) GetInvoiceByID(ctx context.Context, id string) (*domain.Invoice, []domain.InvoiceItem, error) {
	var inv domain.Invoice
	err := s.db.QueryRowContext(ctx, `
		SELECT id, customer_name, customer_phone, subtotal_cents, discount_cents, total_cents, payment_mode, is_return, original_invoice_id, created_at
		FROM invoices WHERE id = ?
	`, id).Scan(&inv.ID, &inv.CustomerName, &inv.CustomerPhone, &inv.SubtotalCents, &inv.DiscountCents,
		&inv.TotalCents, &inv.PaymentMode, &inv.IsReturn, &inv.OriginalInvoiceID, &inv.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, store.ErrNotFound
		}
		return nil, nil, err
	}
	inv.CreatedAt = inv.CreatedAt.UTC()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, invoice_id, product_id, product_name, quantity, price_cents, cost_price_cents
		FROM invoice_items WHERE invoice_id = ? ORDER BY id
	`, id)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	items := make([]domain.InvoiceItem, 0)
	for rows.Next() {
		var item domain.InvoiceItem
		if err := rows.Scan(&item.ID, &item.InvoiceID, &item.ProductID, &item.ProductName, &item.Quantity, &item.PriceCents, &item.CostPriceCents); err != nil {
			return nil, nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	return &inv, items, nil
}

func (s *Store) ListInvoices(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.Invoice, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, customer_name, customer_phone, subtotal_cents, discount_cents, total_cents, payment_mode, is_return, original_invoice_id, created_at
		FROM invoices
		WHERE created_at >= ? AND created_at < ?
		ORDER BY created_at DESC
		LIMIT ?
	`, from.UTC(), to.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	invoices := make([]domain.Invoice, 0, limit)
	for rows.Next() {
		var inv domain.Invoice
		if err := rows.Scan(&inv.ID, &inv.CustomerName, &inv.CustomerPhone, &inv.SubtotalCents, &inv.DiscountCents,
			&inv.TotalCents, &inv.PaymentMode, &inv.IsReturn, &inv.OriginalInvoiceID, &inv.CreatedAt); err != nil {
			return nil, err
		}
		inv.CreatedAt = inv.CreatedAt.UTC()
		invoices = append(invoices, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return invoices, nil
}

func (s *Store) GetReturnedQtyByInvoice(ctx context.Context, invoiceID string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ri.product_id, SUM(ri.quantity)
		FROM return_items ri
		JOIN sales_returns sr ON sr.id = ri.return_id
		WHERE sr.invoice_id = ? AND sr.status = ?
		GROUP BY ri.product_id
	`, invoiceID, domain.ReturnStatusCompleted)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	returned := make(map[string]int)
	for rows.Next() {
		var (
			productID string
			qty       int
		)
		if err := rows.Scan(&productID, &qty); err != nil {
			return nil, err
		}
		returned[productID] = qty
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return returned, nil
}

// CreateReturn re-verifies the sold-minus-returned bound per line under the
// transaction, then writes the return header, items, restock ledger rows and
// stock increments together.
func (s *Store) CreateReturn(ctx context.Context, in store.ReturnInput) (*domain.SalesReturn, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	ret := in.Return
	if ret.ReturnDate.IsZero() {
		ret.ReturnDate = time.Now().UTC()
	}

	var isReturn bool
	err = tx.QueryRowContext(ctx, `SELECT is_return FROM invoices WHERE id = ?`, ret.InvoiceID).Scan(&isReturn)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if isReturn {
		return nil, store.ErrInvalidState
	}

	sold := make(map[string]int)
	soldNames := make(map[string]string)
	itemRows, err := tx.QueryContext(ctx, `SELECT product_id, product_name, quantity FROM invoice_items WHERE invoice_id = ?`, ret.InvoiceID)
	if err != nil {
		return nil, err
	}
	for itemRows.Next() {
		var (
			productID, name string
			qty             int
		)
		if err := itemRows.Scan(&productID, &name, &qty); err != nil {
			itemRows.Close()
			return nil, err
		}
		sold[productID] += qty
		soldNames[productID] = name
	}
	if err := itemRows.Err(); err != nil {
		itemRows.Close()
		return nil, err
	}
	itemRows.Close()

	returned := make(map[string]int)
	retRows, err := tx.QueryContext(ctx, `
		SELECT ri.product_id, SUM(ri.quantity)
		FROM return_items ri
		JOIN sales_returns sr ON sr.id = ri.return_id
		WHERE sr.invoice_id = ? AND sr.status = ?
		GROUP BY ri.product_id
	`, ret.InvoiceID, domain.ReturnStatusCompleted)
	if err != nil {
		return nil, err
	}
	for retRows.Next() {
		var (
			productID string
			qty       int
		)
		if err := retRows.Scan(&productID, &qty); err != nil {
			retRows.Close()
			return nil, err
		}
		returned[productID] = qty
	}
	if err := retRows.Err(); err != nil {
		retRows.Close()
		return nil, err
	}
	retRows.Close()

	for _, item := range ret.Items {
		soldQty, ok := sold[item.ProductID]
		if !ok {
			return nil, store.ErrValidation
		}
		if returned[item.ProductID]+item.Quantity > soldQty {
			return nil, &store.OverReturnError{
				ProductID:   item.ProductID,
				ProductName: soldNames[item.ProductID],
				Sold:        soldQty,
				Returned:    returned[item.ProductID],
				Requested:   item.Quantity,
			}
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO sales_returns (id, return_no, invoice_id, return_date, reason, notes, total_cents, status)
		VALUES (?,?,?,?,?,?,?,?)
	`, ret.ID, ret.ReturnNo, ret.InvoiceID, ret.ReturnDate, ret.Reason, ret.Notes, ret.TotalCents, ret.Status); err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	now := time.Now().UTC()
	for i, item := range ret.Items {
		if item.ProductName == "" {
			ret.Items[i].ProductName = soldNames[item.ProductID]
			item.ProductName = soldNames[item.ProductID]
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO return_items (id, return_id, product_id, product_name, quantity, rate_cents, line_total_cents)
			VALUES (?,?,?,?,?,?,?)
		`, item.ID, ret.ID, item.ProductID, item.ProductName, item.Quantity, item.RateCents, item.LineTotalCents); err != nil {
			return nil, err
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE products SET quantity = quantity + ?, updated_at = ? WHERE id = ?
		`, item.Quantity, now, item.ProductID); err != nil {
			return nil, err
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO stock_adjustments (id, product_id, adjustment_type, quantity, notes, created_by, created_at)
			VALUES (?,?,?,?,?,?,?)
		`, xid.New("adj"), item.ProductID, domain.AdjustmentReturn, item.Quantity, in.LedgerNote, in.CreatedBy, now); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	created := ret
	return &created, nil
}

func (s *Store) GetReturnByID(ctx context.Context, id string) (*domain.SalesReturn, error) {
	var ret domain.SalesReturn
	err := s.db.QueryRowContext(ctx, `
		SELECT id, return_no, invoice_id, return_date, reason, notes, total_cents, status
		FROM sales_returns WHERE id = ?
	`, id).Scan(&ret.ID, &ret.ReturnNo, &ret.InvoiceID, &ret.ReturnDate, &ret.Reason, &ret.Notes, &ret.TotalCents, &ret.Status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	ret.ReturnDate = ret.ReturnDate.UTC()

	items, err := s.listReturnItems(ctx, id)
	if err != nil {
		return nil, err
	}
	ret.Items = items
	return &ret, nil
}

func (s *Store) listReturnItems(ctx context.Context, returnID string) ([]domain.ReturnItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, return_id, product_id, product_name, quantity, rate_cents, line_total_cents
		FROM return_items WHERE return_id = ? ORDER BY id
	`, returnID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.ReturnItem, 0)
	for rows.Next() {
		var item domain.ReturnItem
		if err := rows.Scan(&item.ID, &item.ReturnID, &item.ProductID, &item.ProductName, &item.Quantity, &item.RateCents, &item.LineTotalCents); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListReturns(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.SalesReturn, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, return_no, invoice_id, return_date, reason, notes, total_cents, status
		FROM sales_returns
		WHERE return_date >= ? AND return_date < ?
		ORDER BY return_date DESC
		LIMIT ?
	`, from.UTC(), to.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	returns := make([]domain.SalesReturn, 0, limit)
	for rows.Next() {
		var ret domain.SalesReturn
		if err := rows.Scan(&ret.ID, &ret.ReturnNo, &ret.InvoiceID, &ret.ReturnDate, &ret.Reason, &ret.Notes, &ret.TotalCents, &ret.Status); err != nil {
			return nil, err
		}
		ret.ReturnDate = ret.ReturnDate.UTC()
		returns = append(returns, ret)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range returns {
		items, err := s.listReturnItems(ctx, returns[i].ID)
		if err != nil {
			return nil, err
		}
		returns[i].Items = items
	}
	return returns, nil
}

// CancelReturn marks a completed return cancelled and appends reversing
// ledger rows that take the restocked quantity back out. The return rows
// themselves are never edited beyond the status flip.
func (s *Store) CancelReturn(ctx context.Context, returnID string, cancelledBy string) (*domain.SalesReturn, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var ret domain.SalesReturn
	err = tx.QueryRowContext(ctx, `
		SELECT id, return_no, invoice_id, return_date, reason, notes, total_cents, status
		FROM sales_returns WHERE id = ?
	`, returnID).Scan(&ret.ID, &ret.ReturnNo, &ret.InvoiceID, &ret.ReturnDate, &ret.Reason, &ret.Notes, &ret.TotalCents, &ret.Status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if ret.Status == domain.ReturnStatusCancelled {
		return nil, store.ErrConflict
	}

	itemRows, err := tx.QueryContext(ctx, `
		SELECT id, return_id, product_id, product_name, quantity, rate_cents, line_total_cents
		FROM return_items WHERE return_id = ?
	`, returnID)
	if err != nil {
		return nil, err
	}
	items := make([]domain.ReturnItem, 0)
	for itemRows.Next() {
		var item domain.ReturnItem
		if err := itemRows.Scan(&item.ID, &item.ReturnID, &item.ProductID, &item.ProductName, &item.Quantity, &item.RateCents, &item.LineTotalCents); err != nil {
			itemRows.Close()
			return nil, err
		}
		items = append(items, item)
	}
	if err := itemRows.Err(); err != nil {
		itemRows.Close()
		return nil, err
	}
	itemRows.Close()

	now := time.Now().UTC()
	for _, item := range items {
		var qty int
		if err := tx.QueryRowContext(ctx, `SELECT quantity FROM products WHERE id = ?`, item.ProductID).Scan(&qty); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, store.ErrNotFound
			}
			return nil, err
		}
		if qty < item.Quantity {
			return nil, store.ErrInvalidState
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE products SET quantity = quantity - ?, updated_at = ? WHERE id = ?
		`, item.Quantity, now, item.ProductID); err != nil {
			return nil, err
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO stock_adjustments (id, product_id, adjustment_type, quantity, notes, created_by, created_at)
			VALUES (?,?,?,?,?,?,?)
		`, xid.New("adj"), item.ProductID, domain.AdjustmentReturn, -item.Quantity,
			fmt.Sprintf("Cancel return %s", ret.ReturnNo), cancelledBy, now); err != nil {
			return nil, err
		}
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE sales_returns SET status = ? WHERE id = ?
	`, domain.ReturnStatusCancelled, returnID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	ret.Status = domain.ReturnStatusCancelled
	ret.ReturnDate = ret.ReturnDate.UTC()
	ret.Items = items
	return &ret, nil
}

func (s *Store) GetDailySales(ctx context.Context, from time.Time, to time.Time) ([]domain.DailySales, error) {
	byDate := make(map[string]*domain.DailySales)

	rows, err := s.db.QueryContext(ctx, `
		SELECT date(created_at), COUNT(*), COALESCE(SUM(total_cents),0), COALESCE(SUM(discount_cents),0)
		FROM invoices
		WHERE is_return = 0 AND created_at >= ? AND created_at < ?
		GROUP BY date(created_at)
	`, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var d domain.DailySales
		if err := rows.Scan(&d.Date, &d.InvoiceCount, &d.RevenueCents, &d.DiscountCents); err != nil {
			rows.Close()
			return nil, err
		}
		entry := d
		byDate[d.Date] = &entry
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	retRows, err := s.db.QueryContext(ctx, `
		SELECT date(return_date), COUNT(*), COALESCE(SUM(total_cents),0)
		FROM sales_returns
		WHERE status = ? AND return_date >= ? AND return_date < ?
		GROUP BY date(return_date)
	`, domain.ReturnStatusCompleted, from.UTC(), to.UTC())
	if err != nil {
		return nil, err
	}
	for retRows.Next() {
		var (
			date  string
			count int64
			total int64
		)
		if err := retRows.Scan(&date, &count, &total); err != nil {
			retRows.Close()
			return nil, err
		}
		entry, ok := byDate[date]
		if !ok {
			entry = &domain.DailySales{Date: date}
			byDate[date] = entry
		}
		entry.ReturnCount = count
		entry.ReturnTotalCents = total
	}
	if err := retRows.Err(); err != nil {
		retRows.Close()
		return nil, err
	}
	retRows.Close()

	days := make([]domain.DailySales, 0, len(byDate))
	for _, entry := range byDate {
		days = append(days, *entry)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Date < days[j].Date })
	return days, nil
}

func (s *Store) GetProfitSummary(ctx context.Context, from time.Time, to time.Time) (domain.ProfitSummary, error) {
	summary := domain.ProfitSummary{
		From: from.UTC().Format("2006-01-02"),
		To:   to.UTC().Format("2006-01-02"),
	}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(total_cents),0), COALESCE(SUM(discount_cents),0)
		FROM invoices
		WHERE is_return = 0 AND created_at >= ? AND created_at < ?
	`, from.UTC(), to.UTC()).Scan(&summary.InvoiceCount, &summary.RevenueCents, &summary.DiscountCents)
	if err != nil {
		return summary, err
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(ii.cost_price_cents * ii.quantity),0)
		FROM invoice_items ii
		JOIN invoices i ON i.id = ii.invoice_id
		WHERE i.is_return = 0 AND i.created_at >= ? AND i.created_at < ?
	`, from.UTC(), to.UTC()).Scan(&summary.CostCents)
	if err != nil {
		return summary, err
	}

	summary.ProfitCents = summary.RevenueCents - summary.CostCents
	if summary.RevenueCents > 0 {
		summary.MarginPercent = float64(summary.ProfitCents) / float64(summary.RevenueCents) * 100
	}
	return summary, nil
}

func (s *Store) GetInventoryValuation(ctx context.Context) (int64, error) {
	var total int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(purchase_price_cents * quantity),0) FROM products
	`).Scan(&total)
	return total, err
}

func (s *Store) GetSetting(ctx context.Context, key string) (*domain.Setting, error) {
	var setting domain.Setting
	err := s.db.QueryRowContext(ctx, `
		SELECT key, value, updated_at FROM settings WHERE key = ?
	`, key).Scan(&setting.Key, &setting.Value, &setting.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	setting.UpdatedAt = setting.UpdatedAt.UTC()
	return &setting, nil
}

func (s *Store) PutSetting(ctx context.Context, key string, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES (?,?,?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, time.Now().UTC())
	return err
}

func (s *Store) ListSettings(ctx context.Context) ([]domain.Setting, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value, updated_at FROM settings ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	settings := make([]domain.Setting, 0)
	for rows.Next() {
		var setting domain.Setting
		if err := rows.Scan(&setting.Key, &setting.Value, &setting.UpdatedAt); err != nil {
			return nil, err
		}
		setting.UpdatedAt = setting.UpdatedAt.UTC()
		settings = append(settings, setting)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return settings, nil
}
