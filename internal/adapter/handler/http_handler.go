package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/rl1809/inventory/internal/auth"
	"github.com/rl1809/inventory/internal/core/domain"
	"github.com/rl1809/inventory/internal/core/service"
	"github.com/rl1809/inventory/internal/metrics"
)

const maxBodyBytes = 1 << 20

// Services bundles the use cases exposed over HTTP.
type Services struct {
	Spaces   *service.SpaceService
	Products *service.ProductService
	Ledger   *service.LedgerService
	Insights *service.InsightsService
	Audit    *service.AuditService
}

type HTTPHandler struct {
	svc        Services
	tokens     *auth.Manager
	health     *HealthMonitor
	logger     *zap.Logger
	trustProxy bool
}

type Option func(*HTTPHandler)

// WithTrustedProxy makes the audit trail record the client IP from
// X-Forwarded-For or X-Real-IP instead of the connection address.
func WithTrustedProxy(trust bool) Option {
	return func(h *HTTPHandler) { h.trustProxy = trust }
}

func NewHTTPHandler(svc Services, tokens *auth.Manager, health *HealthMonitor, logger *zap.Logger, opts ...Option) *HTTPHandler {
	h := &HTTPHandler{svc: svc, tokens: tokens, health: health, logger: logger}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes builds the chi router with the public and authenticated endpoints.
func (h *HTTPHandler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if h.trustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(RequestLogger(h.logger))
	r.Use(Recoverer)
	r.Use(metrics.Middleware)

	r.Get("/health", h.HealthCheck)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(Authenticate(h.tokens))

		r.Route("/spaces", func(r chi.Router) {
			r.Post("/", h.CreateSpace)
			r.Get("/", h.ListSpaces)
			r.Get("/creation-status", h.CreationStatus)

			r.Route("/{spaceID}", func(r chi.Router) {
				r.Get("/", h.GetSpace)
				r.Put("/", h.RenameSpace)
				r.Delete("/", h.DeleteSpace)

				r.Route("/products", func(r chi.Router) {
					r.Post("/", h.CreateProduct)
					r.Get("/", h.ListProducts)
					r.Get("/low-stock", h.LowStockProducts)

					r.Route("/{productID}", func(r chi.Router) {
						r.Get("/", h.GetProduct)
						r.Put("/", h.UpdateProduct)
						r.Delete("/", h.DeleteProduct)
						r.Post("/stock/add", h.AddStock)
						r.Post("/stock/remove", h.RemoveStock)
						r.Get("/stock/history", h.StockHistory)
					})
				})
			})
		})

		r.Route("/dashboard", func(r chi.Router) {
			r.Get("/overview", h.Overview)
			r.Get("/insights", h.Insights)
			r.Get("/low-stock-alerts", h.LowStockAlerts)
			r.Get("/space-metrics", h.SpaceMetrics)
			r.Get("/top-products", h.TopProducts)
			r.Get("/recent-activity", h.RecentActivity)
			r.Get("/trends", h.InventoryTrends)
		})

		r.Route("/audit-logs", func(r chi.Router) {
			r.Get("/", h.AuditLogs)
			r.Get("/summary", h.AuditSummary)
			r.Get("/recent", h.RecentAuditLogs)
			r.Get("/trends", h.ActivityTrends)
			r.Get("/filters", h.AuditFilters)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		fail(w, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		fail(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if h.health != nil && !h.health.Healthy() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		fail(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func owner(r *http.Request) auth.Owner {
	o, _ := auth.OwnerFrom(r.Context())
	return o
}

// queryInt parses an optional integer query parameter; absent yields 0.
func queryInt(w http.ResponseWriter, r *http.Request, key string) (int, bool) {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		fail(w, http.StatusBadRequest, key+" must be an integer")
		return 0, false
	}
	return n, true
}

// Spaces

func (h *HTTPHandler) CreateSpace(w http.ResponseWriter, r *http.Request) {
	var req createSpaceRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	o := owner(r)
	space, err := h.svc.Spaces.CreateSpace(r.Context(), o.ID, o.Name, req.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	created(w, "Space created successfully", newSpaceResponse(*space))
}

func (h *HTTPHandler) ListSpaces(w http.ResponseWriter, r *http.Request) {
	spaces, err := h.svc.Spaces.ListSpaces(r.Context(), owner(r).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]spaceResponse, 0, len(spaces))
	for _, s := range spaces {
		out = append(out, newSpaceResponse(s))
	}
	ok(w, "", out)
}

func (h *HTTPHandler) CreationStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.svc.Spaces.CreationStatus(r.Context(), owner(r).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, "", creationStatusResponse{
		CurrentCount:   status.CurrentCount,
		MaxSpaces:      status.MaxSpaces,
		RemainingSlots: status.RemainingSlots,
		CanCreate:      status.CanCreate,
	})
}

func (h *HTTPHandler) GetSpace(w http.ResponseWriter, r *http.Request) {
	summary, err := h.svc.Spaces.GetSpace(r.Context(), owner(r).ID, chi.URLParam(r, "spaceID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := newSpaceResponse(summary.Space)
	resp.ProductCount = &summary.ProductCount
	ok(w, "", resp)
}

func (h *HTTPHandler) RenameSpace(w http.ResponseWriter, r *http.Request) {
	var req renameSpaceRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	space, err := h.svc.Spaces.RenameSpace(r.Context(), owner(r).ID, chi.URLParam(r, "spaceID"), req.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, "Space updated successfully", newSpaceResponse(*space))
}

func (h *HTTPHandler) DeleteSpace(w http.ResponseWriter, r *http.Request) {
	removed, err := h.svc.Spaces.DeleteSpace(r.Context(), owner(r).ID, chi.URLParam(r, "spaceID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, "Space deleted successfully", map[string]int{"productsDeleted": removed})
}

// Products

func (h *HTTPHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Price == nil {
		fail(w, http.StatusBadRequest, "price is required")
		return
	}

	product, err := h.svc.Products.CreateProduct(r.Context(), owner(r).ID, chi.URLParam(r, "spaceID"), service.NewProduct{
		Name:            req.Name,
		Price:           *req.Price,
		CurrentStock:    req.CurrentStock,
		MinimumQuantity: req.MinimumQuantity,
		MaximumQuantity: req.MaximumQuantity,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	created(w, "Product created successfully", newProductResponse(*product))
}

func (h *HTTPHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.svc.Products.ListProducts(r.Context(), owner(r).ID, chi.URLParam(r, "spaceID"), r.URL.Query().Get("name"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, "", newProductResponses(products))
}

func (h *HTTPHandler) LowStockProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.svc.Products.LowStockProducts(r.Context(), owner(r).ID, chi.URLParam(r, "spaceID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, "", newProductResponses(products))
}

func (h *HTTPHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.svc.Products.GetProduct(r.Context(), owner(r).ID, chi.URLParam(r, "spaceID"), chi.URLParam(r, "productID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, "", newProductResponse(*product))
}

func (h *HTTPHandler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	var req updateProductRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	product, err := h.svc.Products.UpdateProduct(r.Context(), owner(r).ID,
		chi.URLParam(r, "spaceID"), chi.URLParam(r, "productID"), req.patch())
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, "Product updated successfully", newProductResponse(*product))
}

func (h *HTTPHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	err := h.svc.Products.DeleteProduct(r.Context(), owner(r).ID, chi.URLParam(r, "spaceID"), chi.URLParam(r, "productID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, "Product deleted successfully", nil)
}

// Stock

func (h *HTTPHandler) AddStock(w http.ResponseWriter, r *http.Request) {
	h.adjustStock(w, r, domain.DirectionAdd)
}

func (h *HTTPHandler) RemoveStock(w http.ResponseWriter, r *http.Request) {
	h.adjustStock(w, r, domain.DirectionRemove)
}

func (h *HTTPHandler) adjustStock(w http.ResponseWriter, r *http.Request, dir domain.Direction) {
	var req stockRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	requestID := req.RequestID
	if requestID == "" {
		requestID = strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	}

	adjust, message := h.svc.Ledger.AddStock, "Stock added successfully"
	if dir == domain.DirectionRemove {
		adjust, message = h.svc.Ledger.RemoveStock, "Stock removed successfully"
	}

	product, err := adjust(r.Context(), owner(r).ID,
		chi.URLParam(r, "spaceID"), chi.URLParam(r, "productID"), req.Quantity, requestID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, message, newProductResponse(*product))
}

func (h *HTTPHandler) StockHistory(w http.ResponseWriter, r *http.Request) {
	limit, valid := queryInt(w, r, "limit")
	if !valid {
		return
	}

	history, err := h.svc.Ledger.History(r.Context(), owner(r).ID,
		chi.URLParam(r, "spaceID"), chi.URLParam(r, "productID"), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, "", newAdjustmentResponses(history))
}

// Dashboard

func (h *HTTPHandler) Overview(w http.ResponseWriter, r *http.Request) {
	overview, err := h.svc.Insights.Overview(r.Context(), owner(r).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, "", overview)
}

func (h *HTTPHandler) Insights(w http.ResponseWriter, r *http.Request) {
	insights, err := h.svc.Insights.Insights(r.Context(), owner(r).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, "", insights)
}

func (h *HTTPHandler) LowStockAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.svc.Insights.LowStockAlerts(r.Context(), owner(r).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, "", alerts)
}

func (h *HTTPHandler) SpaceMetrics(w http.ResponseWriter, r *http.Request) {
	m, err := h.svc.Insights.SpaceMetrics(r.Context(), owner(r).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, "", m)
}

func (h *HTTPHandler) TopProducts(w http.ResponseWriter, r *http.Request) {
	limit, valid := queryInt(w, r, "limit")
	if !valid {
		return
	}

	top, err := h.svc.Insights.TopProducts(r.Context(), owner(r).ID, r.URL.Query().Get("sortBy"), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, "", top)
}

func (h *HTTPHandler) RecentActivity(w http.ResponseWriter, r *http.Request) {
	limit, valid := queryInt(w, r, "limit")
	if !valid {
		return
	}

	entries, err := h.svc.Audit.Recent(r.Context(), owner(r).ID, service.DashboardRecentHours, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, "", newAuditResponses(entries))
}

func (h *HTTPHandler) InventoryTrends(w http.ResponseWriter, r *http.Request) {
	days, valid := queryInt(w, r, "days")
	if !valid {
		return
	}

	trends, err := h.svc.Insights.Trends(r.Context(), owner(r).ID, days)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, fmt.Sprintf("Trend data based on last %d days", trends.RequestedDays), trends)
}

// Audit logs

func (h *HTTPHandler) AuditLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, valid := queryInt(w, r, "limit")
	if !valid {
		return
	}

	filter := domain.AuditFilter{
		EntityType: domain.EntityType(strings.ToUpper(strings.TrimSpace(q.Get("entityType")))),
		Operation:  domain.Operation(strings.ToUpper(strings.TrimSpace(q.Get("operation")))),
		EntityID:   strings.TrimSpace(q.Get("entityId")),
		Limit:      limit,
	}
	if since := strings.TrimSpace(q.Get("since")); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			fail(w, http.StatusBadRequest, "since must be an RFC 3339 timestamp")
			return
		}
		filter.Since = t
	}

	entries, err := h.svc.Audit.RecentActivity(r.Context(), owner(r).ID, filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, "", newAuditResponses(entries))
}

func (h *HTTPHandler) RecentAuditLogs(w http.ResponseWriter, r *http.Request) {
	hours, valid := queryInt(w, r, "hours")
	if !valid {
		return
	}
	if hours == 0 {
		hours = service.DefaultRecentHours
	}

	entries, err := h.svc.Audit.Recent(r.Context(), owner(r).ID, hours, 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, fmt.Sprintf("Recent activity from last %d hours", hours), newAuditResponses(entries))
}

func (h *HTTPHandler) ActivityTrends(w http.ResponseWriter, r *http.Request) {
	days, valid := queryInt(w, r, "days")
	if !valid {
		return
	}

	trends, err := h.svc.Audit.Trends(r.Context(), owner(r).ID, days)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, "", newActivityTrendsResponse(trends))
}

func (h *HTTPHandler) AuditFilters(w http.ResponseWriter, r *http.Request) {
	ok(w, "", auditFiltersResponse{
		EntityTypes: domain.EntityTypes(),
		Operations:  domain.Operations(),
	})
}

func (h *HTTPHandler) AuditSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.svc.Audit.Summary(r.Context(), owner(r).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ok(w, "", newAuditSummaryResponse(summary))
}
