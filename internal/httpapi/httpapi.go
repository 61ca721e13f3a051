package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"motormods/backend/internal/domain"
	"motormods/backend/internal/service"
	"motormods/backend/internal/store"
)

type API struct {
	service       *service.Service
	allowedOrigin string
}

func New(svc *service.Service, allowedOrigin string) *API {
	return &API{
		service:       svc,
		allowedOrigin: allowedOrigin,
	}
}

// Router builds the echo instance with all routes mounted.
func (a *API) Router() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{a.allowedOrigin},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
	}))
	e.Use(a.actorMiddleware)

	e.GET("/healthz", a.handleHealthz)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api")

	api.GET("/products", a.handleListProducts)
	api.POST("/products", a.handleCreateProduct)
	api.GET("/products/low-stock", a.handleLowStock)
	api.GET("/products/:id", a.handleGetProduct)
	api.PUT("/products/:id", a.handleUpdateProduct)
	api.DELETE("/products/:id", a.handleDeleteProduct)
	api.POST("/products/:id/adjustments", a.handleAdjustStock)
	api.GET("/adjustments", a.handleListAdjustments)

	api.POST("/sales", a.handleCreateSale)
	api.GET("/invoices", a.handleListInvoices)
	api.GET("/invoices/:id", a.handleGetInvoice)

	api.POST("/returns", a.handleCreateReturn)
	api.GET("/returns", a.handleListReturns)
	api.GET("/returns/:id", a.handleGetReturn)
	api.POST("/returns/:id/cancel", a.handleCancelReturn)

	api.POST("/fsn/classify", a.handleClassifyFSN)

	api.GET("/analytics/daily-sales", a.handleDailySales)
	api.GET("/analytics/profit-summary", a.handleProfitSummary)

	api.GET("/settings", a.handleListSettings)
	api.PUT("/settings/:key", a.handlePutSetting)

	return e
}

// actorMiddleware propagates the operator name from the X-Actor header; the
// ledger's created_by falls back to "system" when absent.
func (a *API) actorMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if name := strings.TrimSpace(c.Request().Header.Get("X-Actor")); name != "" {
			ctx := service.WithActor(c.Request().Context(), domain.Actor{Name: name})
			c.SetRequest(c.Request().WithContext(ctx))
		}
		return next(c)
	}
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  any    `json:"detail,omitempty"`
}

func ok(c echo.Context, data any) error {
	return c.JSON(http.StatusOK, data)
}

func fail(c echo.Context, status int, code string, message string, detail any) error {
	return c.JSON(status, errorBody{Code: code, Message: message, Detail: detail})
}

func mapError(c echo.Context, err error) error {
	var insufficient *store.InsufficientStockError
	if errors.As(err, &insufficient) {
		return fail(c, http.StatusConflict, "INSUFFICIENT_STOCK", insufficient.Error(), map[string]any{
			"product_id":   insufficient.ProductID,
			"product_name": insufficient.ProductName,
			"available":    insufficient.Available,
			"requested":    insufficient.Requested,
		})
	}
	var overReturn *store.OverReturnError
	if errors.As(err, &overReturn) {
		return fail(c, http.StatusConflict, "OVER_RETURN", overReturn.Error(), map[string]any{
			"product_id":   overReturn.ProductID,
			"product_name": overReturn.ProductName,
			"sold":         overReturn.Sold,
			"returned":     overReturn.Returned,
			"requested":    overReturn.Requested,
		})
	}

	switch {
	case errors.Is(err, store.ErrNotFound):
		return fail(c, http.StatusNotFound, "NOT_FOUND", "Resource not found", nil)
	case errors.Is(err, store.ErrValidation):
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
	case errors.Is(err, store.ErrConflict):
		return fail(c, http.StatusConflict, "CONFLICT", err.Error(), nil)
	case errors.Is(err, store.ErrInvalidState):
		return fail(c, http.StatusConflict, "INVALID_STATE", err.Error(), nil)
	case errors.Is(err, store.ErrInsufficientStock):
		return fail(c, http.StatusConflict, "INSUFFICIENT_STOCK", err.Error(), nil)
	case errors.Is(err, store.ErrOverReturn):
		return fail(c, http.StatusConflict, "OVER_RETURN", err.Error(), nil)
	case errors.Is(err, store.ErrStorageUnavailable):
		return fail(c, http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "Storage backend unavailable", nil)
	default:
		return fail(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Unexpected error", nil)
	}
}

func (a *API) handleHealthz(c echo.Context) error {
	return ok(c, map[string]string{"status": "ok"})
}

func (a *API) handleListProducts(c echo.Context) error {
	filter := store.ProductFilter{
		Query:    c.QueryParam("q"),
		Category: c.QueryParam("category"),
		FSNClass: c.QueryParam("fsn_class"),
		LowStock: c.QueryParam("low_stock") == "true",
	}
	products, err := a.service.ListProducts(c.Request().Context(), filter)
	if err != nil {
		return mapError(c, err)
	}
	return ok(c, products)
}

func (a *API) handleGetProduct(c echo.Context) error {
	product, err := a.service.GetProduct(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapError(c, err)
	}
	return ok(c, product)
}

func (a *API) handleCreateProduct(c echo.Context) error {
	var req domain.ProductCreateRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse product", err.Error())
	}
	created, err := a.service.CreateProduct(c.Request().Context(), req)
	if err != nil {
		return mapError(c, err)
	}
	return c.JSON(http.StatusCreated, created)
}

func (a *API) handleUpdateProduct(c echo.Context) error {
	var req domain.ProductUpdateRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse product", err.Error())
	}
	updated, err := a.service.UpdateProduct(c.Request().Context(), c.Param("id"), req)
	if err != nil {
		return mapError(c, err)
	}
	return ok(c, updated)
}

func (a *API) handleDeleteProduct(c echo.Context) error {
	if err := a.service.DeleteProduct(c.Request().Context(), c.Param("id")); err != nil {
		return mapError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (a *API) handleLowStock(c echo.Context) error {
	products, err := a.service.LowStockProducts(c.Request().Context())
	if err != nil {
		return mapError(c, err)
	}
	return ok(c, products)
}

func (a *API) handleAdjustStock(c echo.Context) error {
	var req domain.StockAdjustRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse adjustment", err.Error())
	}
	resp, err := a.service.AdjustStock(c.Request().Context(), c.Param("id"), req)
	if err != nil {
		return mapError(c, err)
	}
	return ok(c, resp)
}

func (a *API) handleListAdjustments(c echo.Context) error {
	filter := store.LedgerFilter{
		ProductID: c.QueryParam("product_id"),
		Type:      c.QueryParam("type"),
		Limit:     queryInt(c, "limit", 0),
	}
	if from, ok := queryTime(c, "from"); ok {
		filter.From = &from
	}
	if to, ok := queryTime(c, "to"); ok {
		filter.To = &to
	}
	adjustments, err := a.service.ListAdjustments(c.Request().Context(), filter)
	if err != nil {
		return mapError(c, err)
	}
	return ok(c, adjustments)
}

func (a *API) handleCreateSale(c echo.Context) error {
	var req domain.SaleRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse sale", err.Error())
	}
	resp, err := a.service.CreateSale(c.Request().Context(), req)
	if err != nil {
		return mapError(c, err)
	}
	return c.JSON(http.StatusCreated, resp)
}

func (a *API) handleListInvoices(c echo.Context) error {
	from, to := queryRange(c)
	invoices, err := a.service.ListInvoices(c.Request().Context(), from, to, queryInt(c, "limit", 0))
	if err != nil {
		return mapError(c, err)
	}
	return ok(c, invoices)
}

func (a *API) handleGetInvoice(c echo.Context) error {
	resp, err := a.service.GetInvoice(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapError(c, err)
	}
	return ok(c, resp)
}

func (a *API) handleCreateReturn(c echo.Context) error {
	var req domain.ReturnRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse return", err.Error())
	}
	resp, err := a.service.CreateReturn(c.Request().Context(), req)
	if err != nil {
		return mapError(c, err)
	}
	return c.JSON(http.StatusCreated, resp)
}

func (a *API) handleListReturns(c echo.Context) error {
	from, to := queryRange(c)
	returns, err := a.service.ListReturns(c.Request().Context(), from, to, queryInt(c, "limit", 0))
	if err != nil {
		return mapError(c, err)
	}
	return ok(c, returns)
}

func (a *API) handleGetReturn(c echo.Context) error {
	resp, err := a.service.GetReturn(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapError(c, err)
	}
	return ok(c, resp)
}

func (a *API) handleCancelReturn(c echo.Context) error {
	resp, err := a.service.CancelReturn(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapError(c, err)
	}
	return ok(c, resp)
}

func (a *API) handleClassifyFSN(c echo.Context) error {
	summary, err := a.service.ClassifyFSN(c.Request().Context(), queryInt(c, "threshold_days", 0))
	if err != nil {
		return mapError(c, err)
	}
	return ok(c, summary)
}

func (a *API) handleDailySales(c echo.Context) error {
	from, to := queryRange(c)
	days, err := a.service.DailySales(c.Request().Context(), from, to)
	if err != nil {
		return mapError(c, err)
	}
	return ok(c, days)
}

func (a *API) handleProfitSummary(c echo.Context) error {
	from, to := queryRange(c)
	summary, err := a.service.ProfitSummary(c.Request().Context(), from, to)
	if err != nil {
		return mapError(c, err)
	}
	return ok(c, summary)
}

func (a *API) handleListSettings(c echo.Context) error {
	settings, err := a.service.ListSettings(c.Request().Context())
	if err != nil {
		return mapError(c, err)
	}
	return ok(c, settings)
}

func (a *API) handlePutSetting(c echo.Context) error {
	var body struct {
		Value string `json:"value"`
	}
	if err := c.Bind(&body); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse setting", err.Error())
	}
	if err := a.service.PutSetting(c.Request().Context(), c.Param("key"), body.Value); err != nil {
		return mapError(c, err)
	}
	return ok(c, map[string]string{"key": c.Param("key"), "value": body.Value})
}

func queryInt(c echo.Context, name string, fallback int) int {
	raw := c.QueryParam(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func queryTime(c echo.Context, name string) (time.Time, bool) {
	raw := c.QueryParam(name)
	if raw == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t.UTC(), true
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), true
	}
	return time.Time{}, false
}

// queryRange defaults to the trailing 30 days. "to" is exclusive, so a bare
// date covers that whole day.
func queryRange(c echo.Context) (time.Time, time.Time) {
	now := time.Now().UTC()
	from := now.AddDate(0, 0, -30)
	to := now.Add(24 * time.Hour)
	if t, ok := queryTime(c, "from"); ok {
		from = t
	}
	if t, ok := queryTime(c, "to"); ok {
		to = t.Add(24 * time.Hour)
	}
	return from, to
}
