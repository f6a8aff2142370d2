package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stockyard/api/internal/platform/auth"
	"github.com/stockyard/api/internal/platform/httpx"
	"github.com/stockyard/api/internal/services"
)

const maxPalletBodySize = 64 * 1024

// PalletHandlers exposes authenticated pallet endpoints for the current user.
type PalletHandlers struct {
	authn   *auth.Authenticator
	pallets services.PalletService
}

// NewPalletHandlers constructs handlers enforcing authentication before
// invoking the pallet service.
func NewPalletHandlers(authn *auth.Authenticator, pallets services.PalletService) *PalletHandlers {
	return &PalletHandlers{
		authn:   authn,
		pallets: pallets,
	}
}

// Routes wires the /pallets endpoints onto the provided router.
func (h *PalletHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireIdentity())
	}
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Post("/bulk", h.bulkCreate)
	r.Route("/{palletID}", func(pr chi.Router) {
		pr.Get("/", h.get)
		pr.Delete("/", h.delete)
		pr.Get("/qr", h.qrURL)
		pr.Post("/items", h.addItem)
		pr.Put("/items", h.replaceItems)
		pr.Put("/items/{productID}", h.setItemQuantity)
		pr.Delete("/items/{productID}", h.removeItem)
	})
}

func (h *PalletHandlers) list(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ownerID, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	pallets, err := h.pallets.List(ctx, ownerID)
	if err != nil {
		writePalletError(ctx, w, err)
		return
	}

	payload := make([]palletPayload, len(pallets))
	for i, pallet := range pallets {
		payload[i] = buildPalletPayload(pallet)
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"pallets": payload})
}

type createPalletRequest struct {
	Name  string           `json:"name"`
	Items []palletItemBody `json:"items"`
}

type palletItemBody struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

func (h *PalletHandlers) create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ownerID, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req createPalletRequest
	if !decodeBody(ctx, w, r, &req) {
		return
	}

	items := make([]services.PalletItem, len(req.Items))
	for i, item := range req.Items {
		items[i] = services.PalletItem{ProductID: item.ProductID, Quantity: item.Quantity}
	}

	pallet, err := h.pallets.Create(ctx, services.CreatePalletCommand{
		OwnerID: ownerID,
		Name:    req.Name,
		Items:   items,
	})
	if err != nil {
		writePalletError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, buildPalletPayload(pallet))
}

type bulkCreateRequest struct {
	Count int `json:"count"`
}

func (h *PalletHandlers) bulkCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ownerID, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req bulkCreateRequest
	if !decodeBody(ctx, w, r, &req) {
		return
	}

	pallets, err := h.pallets.BulkCreate(ctx, ownerID, req.Count)
	if err != nil {
		writePalletError(ctx, w, err)
		return
	}

	payload := make([]palletPayload, len(pallets))
	for i, pallet := range pallets {
		payload[i] = buildPalletPayload(pallet)
	}
	writeJSONResponse(w, http.StatusCreated, map[string]any{"pallets": payload})
}

func (h *PalletHandlers) get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ownerID, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	pallet, err := h.pallets.Get(ctx, ownerID, chi.URLParam(r, "palletID"))
	if err != nil {
		writePalletError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildPalletPayload(pallet))
}

func (h *PalletHandlers) delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ownerID, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	if err := h.pallets.Delete(ctx, ownerID, chi.URLParam(r, "palletID")); err != nil {
		writePalletError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *PalletHandlers) qrURL(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ownerID, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	url, err := h.pallets.QRURL(ctx, ownerID, chi.URLParam(r, "palletID"))
	if err != nil {
		writePalletError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]string{"url": url})
}

type addItemRequest struct {
	ProductID   string `json:"productId"`
	ProductCode string `json:"productCode"`
	Quantity    int    `json:"quantity"`
}

func (h *PalletHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ownerID, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req addItemRequest
	if !decodeBody(ctx, w, r, &req) {
		return
	}

	palletID := chi.URLParam(r, "palletID")
	var (
		pallet services.Pallet
		err    error
	)
	if req.ProductCode != "" {
		pallet, err = h.pallets.AddItemByCode(ctx, ownerID, palletID, req.ProductCode, req.Quantity)
	} else {
		pallet, err = h.pallets.AddItem(ctx, ownerID, palletID, req.ProductID, req.Quantity)
	}
	if err != nil {
		writePalletError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildPalletPayload(pallet))
}

type setQuantityRequest struct {
	Quantity int `json:"quantity"`
}

func (h *PalletHandlers) setItemQuantity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ownerID, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req setQuantityRequest
	if !decodeBody(ctx, w, r, &req) {
		return
	}

	pallet, err := h.pallets.SetItemQuantity(ctx, ownerID, chi.URLParam(r, "palletID"), chi.URLParam(r, "productID"), req.Quantity)
	if err != nil {
		writePalletError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildPalletPayload(pallet))
}

func (h *PalletHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ownerID, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	pallet, err := h.pallets.RemoveItem(ctx, ownerID, chi.URLParam(r, "palletID"), chi.URLParam(r, "productID"))
	if err != nil {
		writePalletError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildPalletPayload(pallet))
}

type replaceItemsRequest struct {
	Items []palletItemBody `json:"items"`
}

func (h *PalletHandlers) replaceItems(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ownerID, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req replaceItemsRequest
	if !decodeBody(ctx, w, r, &req) {
		return
	}

	items := make([]services.PalletItem, len(req.Items))
	for i, item := range req.Items {
		items[i] = services.PalletItem{ProductID: item.ProductID, Quantity: item.Quantity}
	}

	pallet, err := h.pallets.ReplaceAllItems(ctx, ownerID, chi.URLParam(r, "palletID"), items)
	if err != nil {
		writePalletError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildPalletPayload(pallet))
}

func decodeBody(ctx context.Context, w http.ResponseWriter, r *http.Request, dst any) bool {
	body, err := readLimitedBody(r, maxPalletBodySize)
	if err != nil {
		if errors.Is(err, errBodyTooLarge) {
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
			return false
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return false
	}
	if len(body) == 0 {
		return true
	}
	if err := json.Unmarshal(body, dst); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "body must be valid JSON", http.StatusBadRequest))
		return false
	}
	return true
}

func writePalletError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrPalletInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrPalletForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "pallet belongs to another user", http.StatusForbidden))
	case errors.Is(err, services.ErrPalletItemNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("item_not_found", err.Error(), http.StatusNotFound))
	case errors.Is(err, services.ErrProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", err.Error(), http.StatusNotFound))
	case errors.Is(err, services.ErrPalletNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("pallet_not_found", "pallet not found", http.StatusNotFound))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "internal server error", http.StatusInternalServerError))
	}
}

type palletPayload struct {
	ID        string              `json:"id"`
	Name      string              `json:"name"`
	Items     []palletItemPayload `json:"items"`
	HasQR     bool                `json:"hasQr"`
	CreatedAt string              `json:"createdAt"`
	UpdatedAt string              `json:"updatedAt"`
}

type palletItemPayload struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

func buildPalletPayload(pallet services.Pallet) palletPayload {
	items := make([]palletItemPayload, len(pallet.Items))
	for i, item := range pallet.Items {
		items[i] = palletItemPayload{ProductID: item.ProductID, Quantity: item.Quantity}
	}
	return palletPayload{
		ID:        pallet.ID,
		Name:      pallet.Name,
		Items:     items,
		HasQR:     pallet.QRObject != "",
		CreatedAt: formatTime(pallet.CreatedAt),
		UpdatedAt: formatTime(pallet.UpdatedAt),
	}
}
