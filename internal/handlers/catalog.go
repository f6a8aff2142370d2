package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/stockyard/api/internal/domain"
	"github.com/stockyard/api/internal/platform/auth"
	"github.com/stockyard/api/internal/platform/httpx"
	"github.com/stockyard/api/internal/services"
	"github.com/stockyard/api/internal/unleashed"
)

const (
	maxSyncBodySize  = 4 * 1024
	maxImportCSVSize = 8 << 20
)

// CatalogHandlers exposes catalog listing, sync and import endpoints.
type CatalogHandlers struct {
	authn   *auth.Authenticator
	catalog services.CatalogService
	sync    services.CatalogSyncService
	imports services.CatalogImportService
}

// NewCatalogHandlers constructs handlers enforcing authentication before
// invoking the catalog services.
func NewCatalogHandlers(authn *auth.Authenticator, catalog services.CatalogService, sync services.CatalogSyncService, imports services.CatalogImportService) *CatalogHandlers {
	return &CatalogHandlers{
		authn:   authn,
		catalog: catalog,
		sync:    sync,
		imports: imports,
	}
}

// Routes wires the /catalog endpoints onto the provided router.
func (h *CatalogHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireIdentity())
	}
	r.Get("/products", h.listProducts)
	r.Get("/warehouses", h.listWarehouses)
	r.Post("/products/sync", h.syncProducts)
	r.Post("/warehouses/sync", h.syncWarehouses)
	r.Get("/sync-status", h.syncStatus)
	r.Post("/products/import", h.importProducts)
}

func (h *CatalogHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := requireIdentity(ctx, w); !ok {
		return
	}

	products, err := h.catalog.ListProducts(ctx)
	if err != nil {
		h.writeCatalogError(ctx, w, err)
		return
	}

	payload := make([]productPayload, len(products))
	for i, product := range products {
		payload[i] = buildProductPayload(product)
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"products": payload})
}

func (h *CatalogHandlers) listWarehouses(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := requireIdentity(ctx, w); !ok {
		return
	}

	warehouses, err := h.catalog.ListWarehouses(ctx)
	if err != nil {
		h.writeCatalogError(ctx, w, err)
		return
	}

	payload := make([]warehousePayload, len(warehouses))
	for i, warehouse := range warehouses {
		payload[i] = buildWarehousePayload(warehouse)
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"warehouses": payload})
}

type syncRequest struct {
	PageSize           int `json:"pageSize"`
	MaxPages           int `json:"maxPages"`
	MaxDurationSeconds int `json:"maxDurationSeconds"`
}

func (h *CatalogHandlers) syncProducts(w http.ResponseWriter, r *http.Request) {
	h.runSync(w, r, h.sync.SyncProducts)
}

func (h *CatalogHandlers) syncWarehouses(w http.ResponseWriter, r *http.Request) {
	h.runSync(w, r, h.sync.SyncWarehouses)
}

func (h *CatalogHandlers) runSync(w http.ResponseWriter, r *http.Request, run func(ctx context.Context, ownerID string, opts services.SyncOptions) (services.SyncResult, error)) {
	ctx := r.Context()
	ownerID, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var opts services.SyncOptions
	body, err := readLimitedBody(r, maxSyncBodySize)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	if len(body) > 0 {
		var req syncRequest
		if err := json.Unmarshal(body, &req); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "body must be valid JSON", http.StatusBadRequest))
			return
		}
		opts.PageSize = req.PageSize
		opts.MaxPages = req.MaxPages
		if req.MaxDurationSeconds > 0 {
			opts.MaxDuration = time.Duration(req.MaxDurationSeconds) * time.Second
		}
	}

	result, err := run(ctx, ownerID, opts)
	if err != nil {
		h.writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"inserted":       result.Inserted,
		"updated":        result.Updated,
		"batches":        result.Batches,
		"pagesProcessed": result.PagesProcessed,
	})
}

func (h *CatalogHandlers) syncStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ownerID, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	kind := domain.SyncKind(r.URL.Query().Get("kind"))
	if kind != domain.SyncKindProducts && kind != domain.SyncKindWarehouses {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "kind must be products or warehouses", http.StatusBadRequest))
		return
	}

	status, err := h.sync.Status(ctx, ownerID, kind)
	if err != nil {
		h.writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"kind":      string(status.Kind),
		"status":    string(status.Status),
		"batches":   status.Batches,
		"inserted":  status.Inserted,
		"updated":   status.Updated,
		"message":   status.Message,
		"startedAt": formatTime(status.StartedAt),
		"updatedAt": formatTime(status.UpdatedAt),
	})
}

func (h *CatalogHandlers) importProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := requireIdentity(ctx, w); !ok {
		return
	}

	if err := r.ParseMultipartForm(maxImportCSVSize); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "expected multipart form with a file field", http.StatusBadRequest))
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "missing file field", http.StatusBadRequest))
		return
	}
	defer file.Close()

	result, err := h.imports.ImportProducts(ctx, file)
	if err != nil {
		h.writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"inserted": result.Inserted,
		"updated":  result.Updated,
		"rows":     result.Rows,
	})
}

func (h *CatalogHandlers) writeCatalogError(ctx context.Context, w http.ResponseWriter, err error) {
	var apiErr *unleashed.APIError
	switch {
	case errors.Is(err, services.ErrSyncInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrSyncStatusNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("sync_status_not_found", "no sync has run yet", http.StatusNotFound))
	case errors.Is(err, services.ErrImportSchema):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_csv", err.Error(), http.StatusUnprocessableEntity))
	case errors.Is(err, unleashed.ErrNotConfigured):
		httpx.WriteError(ctx, w, httpx.NewError("sync_not_configured", "catalog api credentials are not configured", http.StatusServiceUnavailable))
	case errors.Is(err, unleashed.ErrTimeout):
		httpx.WriteError(ctx, w, httpx.NewError("upstream_timeout", "catalog api did not respond in time", http.StatusGatewayTimeout))
	case errors.As(err, &apiErr):
		httpx.WriteError(ctx, w, httpx.NewError("upstream_error", err.Error(), http.StatusBadGateway))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "internal server error", http.StatusInternalServerError))
	}
}

type productPayload struct {
	ID          string   `json:"id"`
	Code        string   `json:"code"`
	Name        string   `json:"name"`
	Price       *float64 `json:"price,omitempty"`
	Description string   `json:"description,omitempty"`
	ImageURL    string   `json:"imageUrl,omitempty"`
	CreatedAt   string   `json:"createdAt"`
	UpdatedAt   string   `json:"updatedAt"`
}

func buildProductPayload(product services.Product) productPayload {
	return productPayload{
		ID:          product.ID,
		Code:        product.Code,
		Name:        product.Name,
		Price:       product.Price,
		Description: product.Description,
		ImageURL:    product.ImageURL,
		CreatedAt:   formatTime(product.CreatedAt),
		UpdatedAt:   formatTime(product.UpdatedAt),
	}
}

type warehousePayload struct {
	ID          string `json:"id"`
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	IsDefault   bool   `json:"isDefault"`
	CreatedAt   string `json:"createdAt"`
	UpdatedAt   string `json:"updatedAt"`
}

func buildWarehousePayload(warehouse services.Warehouse) warehousePayload {
	return warehousePayload{
		ID:          warehouse.ID,
		Code:        warehouse.Code,
		Name:        warehouse.Name,
		Description: warehouse.Description,
		IsDefault:   warehouse.IsDefault,
		CreatedAt:   formatTime(warehouse.CreatedAt),
		UpdatedAt:   formatTime(warehouse.UpdatedAt),
	}
}
