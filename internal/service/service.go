package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/asaskevich/EventBus"
	"go.uber.org/zap"

	"motormods/backend/internal/cache"
	"motormods/backend/internal/domain"
	"motormods/backend/internal/metrics"
	"motormods/backend/internal/mirror"
	"motormods/backend/internal/settings"
	"motormods/backend/internal/store"
	"motormods/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

func actorName(ctx context.Context) string {
	if actor, ok := ActorFromContext(ctx); ok && actor.Name != "" {
		return actor.Name
	}
	return "system"
}

type Service struct {
	provider store.Provider
	settings *settings.Provider
	cache    cache.ProductCache
	bus      EventBus.Bus
	cacheTTL time.Duration
}

func New(provider store.Provider, sp *settings.Provider, productCache cache.ProductCache, bus EventBus.Bus, cacheTTL time.Duration) *Service {
	if productCache == nil {
		productCache = cache.NoopProductCache{}
	}
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}

	return &Service{
		provider: provider,
		settings: sp,
		cache:    productCache,
		bus:      bus,
		cacheTTL: cacheTTL,
	}
}

func (s *Service) repo() store.Repository {
	return s.provider.Repo()
}

func productCacheKey(id string) string {
	return "product:" + id
}

func (s *Service) invalidateProduct(ctx context.Context, id string) {
	if err := s.cache.Delete(ctx, productCacheKey(id)); err != nil {
		zap.L().Warn("product cache invalidation failed", zap.String("product_id", id), zap.Error(err))
	}
}

// mirrorEnabled gates every mirror publish: a wired bus plus the
// mirror_enabled setting (on by default).
func (s *Service) mirrorEnabled(ctx context.Context) bool {
	if s.bus == nil {
		return false
	}
	return s.settings.Bool(ctx, settings.KeyMirrorEnabled, true)
}

func (s *Service) publishProductSync(ctx context.Context, id string) {
	if !s.mirrorEnabled(ctx) {
		return
	}
	product, err := s.repo().GetProductByID(ctx, id)
	if err != nil {
		zap.L().Warn("mirror publish skipped", zap.String("product_id", id), zap.Error(err))
		return
	}
	s.bus.Publish(mirror.TopicProductSync, *product)
}

func (s *Service) ListProducts(ctx context.Context, filter store.ProductFilter) ([]domain.Product, error) {
	return s.repo().ListProducts(ctx, filter)
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	if cached, ok, err := s.cache.Get(ctx, productCacheKey(id)); err == nil && ok {
		return *cached, nil
	}

	product, err := s.repo().GetProductByID(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	if err := s.cache.Set(ctx, productCacheKey(id), product, s.cacheTTL); err != nil {
		zap.L().Warn("product cache set failed", zap.String("product_id", id), zap.Error(err))
	}
	return *product, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.SKU = strings.ToUpper(strings.TrimSpace(req.SKU))
	req.Category = strings.TrimSpace(req.Category)

	if req.Name == "" {
		return domain.Product{}, fmt.Errorf("%w: name is required", store.ErrValidation)
	}
	if req.PriceCents < 0 || req.PurchasePriceCents < 0 {
		return domain.Product{}, fmt.Errorf("%w: prices must not be negative", store.ErrValidation)
	}
	if req.OpeningStock < 0 || req.ReorderLevel < 0 || req.MaxStock < 0 {
		return domain.Product{}, fmt.Errorf("%w: stock levels must not be negative", store.ErrValidation)
	}

	id := strings.TrimSpace(req.ID)
	if id == "" {
		id = xid.New("prd")
	}

	product := domain.Product{
		ID:                 id,
		Name:               req.Name,
		SKU:                req.SKU,
		Category:           req.Category,
		PriceCents:         req.PriceCents,
		PurchasePriceCents: req.PurchasePriceCents,
		ReorderLevel:       req.ReorderLevel,
		MaxStock:           req.MaxStock,
		FSNClass:           domain.FSNNonMoving,
	}

	created, err := s.repo().CreateProduct(ctx, product, req.OpeningStock, actorName(ctx))
	if err != nil {
		return domain.Product{}, err
	}
	if req.OpeningStock > 0 {
		metrics.StockAdjustmentsTotal.WithLabelValues(domain.AdjustmentOpeningStock).Inc()
	}

	if s.mirrorEnabled(ctx) {
		s.bus.Publish(mirror.TopicProductSync, *created)
	}
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	existing, err := s.repo().GetProductByID(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, fmt.Errorf("%w: name must not be empty", store.ErrValidation)
		}
		existing.Name = name
	}
	if req.SKU != nil {
		existing.SKU = strings.ToUpper(strings.TrimSpace(*req.SKU))
	}
	if req.Category != nil {
		existing.Category = strings.TrimSpace(*req.Category)
	}
	if req.PriceCents != nil {
		if *req.PriceCents < 0 {
			return domain.Product{}, fmt.Errorf("%w: price must not be negative", store.ErrValidation)
		}
		existing.PriceCents = *req.PriceCents
	}
	if req.PurchasePriceCents != nil {
		if *req.PurchasePriceCents < 0 {
			return domain.Product{}, fmt.Errorf("%w: purchase price must not be negative", store.ErrValidation)
		}
		existing.PurchasePriceCents = *req.PurchasePriceCents
	}
	if req.ReorderLevel != nil {
		if *req.ReorderLevel < 0 {
			return domain.Product{}, fmt.Errorf("%w: reorder level must not be negative", store.ErrValidation)
		}
		existing.ReorderLevel = *req.ReorderLevel
	}
	if req.MaxStock != nil {
		if *req.MaxStock < 0 {
			return domain.Product{}, fmt.Errorf("%w: max stock must not be negative", store.ErrValidation)
		}
		existing.MaxStock = *req.MaxStock
	}

	updated, err := s.repo().UpdateProduct(ctx, *existing)
	if err != nil {
		return domain.Product{}, err
	}

	s.invalidateProduct(ctx, id)
	if s.mirrorEnabled(ctx) {
		s.bus.Publish(mirror.TopicProductSync, *updated)
	}
	return *updated, nil
}

// DeleteProduct refuses when the product appears on any invoice or return.
// Snapshots keep historical documents intact, so there is never a reason to
// force-delete.
func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	if err := s.repo().DeleteProduct(ctx, id); err != nil {
		return err
	}
	s.invalidateProduct(ctx, id)
	if s.mirrorEnabled(ctx) {
		s.bus.Publish(mirror.TopicProductDelete, id)
	}
	return nil
}

// LowStockProducts reports products at or under their restock threshold.
// The method is a setting: either quantity vs reorder_level, or quantity vs
// a percentage of max_stock (products without a max_stock are skipped there).
func (s *Service) LowStockProducts(ctx context.Context) ([]domain.Product, error) {
	method := s.settings.String(ctx, settings.KeyLowStockMethod, settings.LowStockMethodReorderLevel)
	if method != settings.LowStockMethodPercentOfMax {
		return s.repo().ListProducts(ctx, store.ProductFilter{LowStock: true})
	}

	percent := s.settings.Int(ctx, settings.KeyLowStockPercent, settings.DefaultLowStockPercent)
	if percent < 1 || percent > 100 {
		percent = settings.DefaultLowStockPercent
	}
	all, err := s.repo().ListProducts(ctx, store.ProductFilter{})
	if err != nil {
		return nil, err
	}
	low := make([]domain.Product, 0)
	for _, p := range all {
		if p.MaxStock > 0 && p.Quantity*100 <= p.MaxStock*percent {
			low = append(low, p)
		}
	}
	return low, nil
}

// AdjustStock appends one manual ledger row. Additive types carry a positive
// delta, deductive types a negative one; the quantity in the request is
// always the absolute count entered by the operator.
func (s *Service) AdjustStock(ctx context.Context, productID string, req domain.StockAdjustRequest) (domain.StockAdjustResponse, error) {
	if !domain.IsManualAdjustmentType(req.Type) {
		return domain.StockAdjustResponse{}, fmt.Errorf("%w: unsupported adjustment type %q", store.ErrValidation, req.Type)
	}
	if req.Quantity <= 0 {
		return domain.StockAdjustResponse{}, fmt.Errorf("%w: quantity must be positive", store.ErrValidation)
	}

	delta := req.Quantity
	switch req.Type {
	case domain.AdjustmentManualDeduct, domain.AdjustmentSupplierReturn, domain.AdjustmentDamageWriteOff:
		delta = -req.Quantity
	}

	adj := domain.StockAdjustment{
		ProductID: productID,
		Type:      req.Type,
		Quantity:  delta,
		Notes:     strings.TrimSpace(req.Notes),
		CreatedBy: actorName(ctx),
	}

	_, newQty, err := s.repo().AppendAdjustment(ctx, adj)
	if err != nil {
		return domain.StockAdjustResponse{}, err
	}

	metrics.StockAdjustmentsTotal.WithLabelValues(req.Type).Inc()
	s.invalidateProduct(ctx, productID)
	s.publishProductSync(ctx, productID)

	return domain.StockAdjustResponse{ProductID: productID, NewQuantity: newQty}, nil
}

func (s *Service) ListAdjustments(ctx context.Context, filter store.LedgerFilter) ([]domain.StockAdjustment, error) {
	return s.repo().ListAdjustments(ctx, filter)
}

// CreateSale validates every line before anything is written, then hands the
// whole sale to the repository as one atomic unit. Stock, invoice, items and
// ledger rows commit together or not at all.
func (s *Service) CreateSale(ctx context.Context, req domain.SaleRequest) (domain.SaleResponse, error) {
	if len(req.Items) == 0 {
		return domain.SaleResponse{}, fmt.Errorf("%w: sale has no items", store.ErrValidation)
	}
	if !domain.IsSupportedPaymentMode(req.PaymentMode) {
		return domain.SaleResponse{}, fmt.Errorf("%w: unsupported payment mode %q", store.ErrValidation, req.PaymentMode)
	}

	customer := strings.TrimSpace(req.CustomerName)
	if customer == "" {
		customer = s.settings.String(ctx, settings.KeyDefaultCustomerName, domain.WalkingCustomer)
	}

	qtyByProduct := make(map[string]int, len(req.Items))
	for _, line := range req.Items {
		if line.Quantity <= 0 {
			return domain.SaleResponse{}, fmt.Errorf("%w: quantity must be positive", store.ErrValidation)
		}
		if line.PriceCents < 0 || line.CostPriceCents < 0 {
			return domain.SaleResponse{}, fmt.Errorf("%w: prices must not be negative", store.ErrValidation)
		}
		qtyByProduct[line.ProductID] += line.Quantity
	}

	repo := s.repo()
	products := make(map[string]domain.Product, len(qtyByProduct))
	for productID, qty := range qtyByProduct {
		product, err := repo.GetProductByID(ctx, productID)
		if err != nil {
			return domain.SaleResponse{}, err
		}
		if product.Quantity < qty {
			metrics.InsufficientStockRejections.Inc()
			return domain.SaleResponse{}, &store.InsufficientStockError{
				ProductID:   product.ID,
				ProductName: product.Name,
				Available:   product.Quantity,
				Requested:   qty,
			}
		}
		products[productID] = *product
	}

	invoiceID := xid.New("inv")
	now := time.Now().UTC()

	var subtotal int64
	items := make([]domain.InvoiceItem, 0, len(req.Items))
	for _, line := range req.Items {
		product := products[line.ProductID]
		price := line.PriceCents
		if price == 0 {
			price = product.PriceCents
		}
		cost := line.CostPriceCents
		if cost == 0 {
			cost = product.PurchasePriceCents
		}
		subtotal += price * int64(line.Quantity)
		items = append(items, domain.InvoiceItem{
			ID:             xid.New("itm"),
			InvoiceID:      invoiceID,
			ProductID:      line.ProductID,
			ProductName:    product.Name,
			Quantity:       line.Quantity,
			PriceCents:     price,
			CostPriceCents: cost,
		})
	}

	discount := req.DiscountCents
	if discount < 0 {
		discount = 0
	}
	if discount > subtotal {
		discount = subtotal
	}

	invoice := domain.Invoice{
		ID:            invoiceID,
		CustomerName:  customer,
		CustomerPhone: strings.TrimSpace(req.CustomerPhone),
		SubtotalCents: subtotal,
		DiscountCents: discount,
		TotalCents:    subtotal - discount,
		PaymentMode:   req.PaymentMode,
		CreatedAt:     now,
	}

	created, createdItems, err := repo.CreateSale(ctx, store.SaleInput{
		Invoice:    invoice,
		Items:      items,
		LedgerNote: fmt.Sprintf("Invoice %s", shortID(invoiceID)),
		CreatedBy:  actorName(ctx),
	})
	if err != nil {
		return domain.SaleResponse{}, err
	}

	metrics.SalesTotal.Inc()
	metrics.SalesRevenueCents.Add(float64(created.TotalCents))
	metrics.StockAdjustmentsTotal.WithLabelValues(domain.AdjustmentSale).Add(float64(len(createdItems)))

	for productID := range qtyByProduct {
		s.invalidateProduct(ctx, productID)
		s.publishProductSync(ctx, productID)
	}

	zap.L().Info("sale completed",
		zap.String("invoice_id", created.ID),
		zap.Int64("total_cents", created.TotalCents),
		zap.Int("items", len(createdItems)))

	return domain.SaleResponse{Invoice: *created, Items: createdItems}, nil
}

func (s *Service) GetInvoice(ctx context.Context, id string) (domain.SaleResponse, error) {
	invoice, items, err := s.repo().GetInvoiceByID(ctx, id)
	if err != nil {
		return domain.SaleResponse{}, err
	}
	return domain.SaleResponse{Invoice: *invoice, Items: items}, nil
}

func (s *Service) ListInvoices(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.Invoice, error) {
	return s.repo().ListInvoices(ctx, from, to, limit)
}

// CreateReturn validates each line against sold-minus-already-returned
// before writing. A line with no rate inherits the sold unit price from the
// invoice snapshot.
func (s *Service) CreateReturn(ctx context.Context, req domain.ReturnRequest) (domain.ReturnResponse, error) {
	if len(req.Items) == 0 {
		return domain.ReturnResponse{}, fmt.Errorf("%w: return has no items", store.ErrValidation)
	}
	if !domain.IsSupportedReturnReason(req.Reason) {
		return domain.ReturnResponse{}, fmt.Errorf("%w: unsupported return reason %q", store.ErrValidation, req.Reason)
	}

	repo := s.repo()
	invoice, invoiceItems, err := repo.GetInvoiceByID(ctx, req.InvoiceID)
	if err != nil {
		return domain.ReturnResponse{}, err
	}
	if invoice.IsReturn {
		return domain.ReturnResponse{}, fmt.Errorf("%w: cannot return against a return invoice", store.ErrInvalidState)
	}

	sold := make(map[string]int)
	soldPrice := make(map[string]int64)
	soldName := make(map[string]string)
	for _, item := range invoiceItems {
		sold[item.ProductID] += item.Quantity
		soldPrice[item.ProductID] = item.PriceCents
		soldName[item.ProductID] = item.ProductName
	}

	returned, err := repo.GetReturnedQtyByInvoice(ctx, req.InvoiceID)
	if err != nil {
		return domain.ReturnResponse{}, err
	}

	now := time.Now().UTC()
	returnID := xid.New("ret")

	var total int64
	items := make([]domain.ReturnItem, 0, len(req.Items))
	requested := make(map[string]int)
	for _, line := range req.Items {
		if line.Quantity <= 0 {
			return domain.ReturnResponse{}, fmt.Errorf("%w: quantity must be positive", store.ErrValidation)
		}
		soldQty, ok := sold[line.ProductID]
		if !ok {
			return domain.ReturnResponse{}, fmt.Errorf("%w: product %s is not on invoice %s", store.ErrValidation, line.ProductID, req.InvoiceID)
		}
		requested[line.ProductID] += line.Quantity
		if returned[line.ProductID]+requested[line.ProductID] > soldQty {
			return domain.ReturnResponse{}, &store.OverReturnError{
				ProductID:   line.ProductID,
				ProductName: soldName[line.ProductID],
				Sold:        soldQty,
				Returned:    returned[line.ProductID],
				Requested:   requested[line.ProductID],
			}
		}

		rate := line.RateCents
		if rate == 0 {
			rate = soldPrice[line.ProductID]
		}
		lineTotal := rate * int64(line.Quantity)
		total += lineTotal
		items = append(items, domain.ReturnItem{
			ID:             xid.New("rti"),
			ReturnID:       returnID,
			ProductID:      line.ProductID,
			ProductName:    soldName[line.ProductID],
			Quantity:       line.Quantity,
			RateCents:      rate,
			LineTotalCents: lineTotal,
		})
	}

	ret := domain.SalesReturn{
		ID:         returnID,
		ReturnNo:   xid.ReturnNo(now),
		InvoiceID:  req.InvoiceID,
		ReturnDate: now,
		Reason:     req.Reason,
		Notes:      strings.TrimSpace(req.Notes),
		TotalCents: total,
		Status:     domain.ReturnStatusCompleted,
		Items:      items,
	}

	created, err := repo.CreateReturn(ctx, store.ReturnInput{
		Return:     ret,
		LedgerNote: fmt.Sprintf("Return %s", ret.ReturnNo),
		CreatedBy:  actorName(ctx),
	})
	if err != nil {
		return domain.ReturnResponse{}, err
	}

	metrics.ReturnsTotal.Inc()
	metrics.StockAdjustmentsTotal.WithLabelValues(domain.AdjustmentReturn).Add(float64(len(items)))

	for _, item := range items {
		s.invalidateProduct(ctx, item.ProductID)
		s.publishProductSync(ctx, item.ProductID)
	}

	zap.L().Info("return completed",
		zap.String("return_no", created.ReturnNo),
		zap.String("invoice_id", created.InvoiceID),
		zap.Int64("total_cents", created.TotalCents))

	return domain.ReturnResponse{Return: *created}, nil
}

func (s *Service) GetReturn(ctx context.Context, id string) (domain.ReturnResponse, error) {
	ret, err := s.repo().GetReturnByID(ctx, id)
	if err != nil {
		return domain.ReturnResponse{}, err
	}
	return domain.ReturnResponse{Return: *ret}, nil
}

func (s *Service) ListReturns(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.SalesReturn, error) {
	return s.repo().ListReturns(ctx, from, to, limit)
}

func (s *Service) CancelReturn(ctx context.Context, returnID string) (domain.ReturnResponse, error) {
	cancelled, err := s.repo().CancelReturn(ctx, returnID, actorName(ctx))
	if err != nil {
		return domain.ReturnResponse{}, err
	}

	metrics.ReturnCancellationsTotal.Inc()
	for _, item := range cancelled.Items {
		s.invalidateProduct(ctx, item.ProductID)
		s.publishProductSync(ctx, item.ProductID)
	}

	zap.L().Info("return cancelled", zap.String("return_no", cancelled.ReturnNo))
	return domain.ReturnResponse{Return: *cancelled}, nil
}

// ClassifyProduct derives the movement class from the last sale date. F
// within the fast window, S within the non-moving threshold, N beyond it or
// never sold. Pure and idempotent.
func ClassifyProduct(lastSale *time.Time, now time.Time, fastDays int, nonMovingDays int) string {
	if lastSale == nil {
		return domain.FSNNonMoving
	}
	age := now.Sub(*lastSale)
	if age <= time.Duration(fastDays)*24*time.Hour {
		return domain.FSNFast
	}
	if age <= time.Duration(nonMovingDays)*24*time.Hour {
		return domain.FSNSlow
	}
	return domain.FSNNonMoving
}

// ClassifyFSN sweeps every product and persists only the classes that
// changed. A positive thresholdDays overrides the configured non-moving
// threshold for this sweep. Safe to run on a schedule or on demand.
func (s *Service) ClassifyFSN(ctx context.Context, thresholdDays int) (domain.FSNSummary, error) {
	fastDays := s.settings.Int(ctx, settings.KeyFastMovingWindowDays, settings.DefaultFastMovingWindowDays)
	nonMovingDays := thresholdDays
	if nonMovingDays <= 0 {
		nonMovingDays = s.settings.Int(ctx, settings.KeyNonMovingThresholdDays, settings.DefaultNonMovingThresholdDays)
	}
	if nonMovingDays <= fastDays {
		nonMovingDays = fastDays + 1
	}

	repo := s.repo()
	products, err := repo.ListProducts(ctx, store.ProductFilter{})
	if err != nil {
		return domain.FSNSummary{}, err
	}

	now := time.Now().UTC()
	summary := domain.FSNSummary{ThresholdDays: nonMovingDays}
	classes := make(map[string]string, len(products))
	for _, p := range products {
		class := ClassifyProduct(p.LastSaleDate, now, fastDays, nonMovingDays)
		classes[p.ID] = class
		switch class {
		case domain.FSNFast:
			summary.Fast++
		case domain.FSNSlow:
			summary.Slow++
		default:
			summary.NonMoving++
		}
	}

	changed, err := repo.SetFSNClasses(ctx, classes)
	if err != nil {
		return domain.FSNSummary{}, err
	}
	summary.Changed = changed

	zap.L().Info("fsn sweep done",
		zap.Int("fast", summary.Fast),
		zap.Int("slow", summary.Slow),
		zap.Int("non_moving", summary.NonMoving),
		zap.Int("changed", summary.Changed))

	return summary, nil
}

func (s *Service) DailySales(ctx context.Context, from time.Time, to time.Time) ([]domain.DailySales, error) {
	return s.repo().GetDailySales(ctx, from, to)
}

// ProfitSummary aggregates the period and compares it with the immediately
// preceding period of the same length. Computed from snapshots on every
// call; nothing here is cached.
func (s *Service) ProfitSummary(ctx context.Context, from time.Time, to time.Time) (domain.ProfitSummary, error) {
	repo := s.repo()
	summary, err := repo.GetProfitSummary(ctx, from, to)
	if err != nil {
		return domain.ProfitSummary{}, err
	}

	span := to.Sub(from)
	prev, err := repo.GetProfitSummary(ctx, from.Add(-span), from)
	if err != nil {
		return domain.ProfitSummary{}, err
	}
	summary.PrevRevenueCents = prev.RevenueCents
	summary.PrevProfitCents = prev.ProfitCents
	if prev.RevenueCents > 0 {
		summary.RevenueDeltaPercent = float64(summary.RevenueCents-prev.RevenueCents) / float64(prev.RevenueCents) * 100
	}
	if prev.ProfitCents > 0 {
		summary.ProfitDeltaPercent = float64(summary.ProfitCents-prev.ProfitCents) / float64(prev.ProfitCents) * 100
	}

	valuation, err := repo.GetInventoryValuation(ctx)
	if err != nil {
		return domain.ProfitSummary{}, err
	}
	summary.InventoryValuationCents = valuation

	return summary, nil
}

func (s *Service) ListSettings(ctx context.Context) ([]domain.Setting, error) {
	return s.repo().ListSettings(ctx)
}

func (s *Service) PutSetting(ctx context.Context, key string, value string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("%w: setting key is required", store.ErrValidation)
	}
	return s.repo().PutSetting(ctx, key, value)
}

func shortID(id string) string {
	if i := strings.LastIndex(id, "-"); i >= 0 && len(id)-i > 8 {
		return id[len(id)-8:]
	}
	return id
}
