package services

import (
	"context"
	"io"
	"time"

	"github.com/stockyard/api/internal/domain"
	"github.com/stockyard/api/internal/unleashed"
)

// Type aliases expose domain models to the services package without reversing
// dependency direction.
type (
	Product      = domain.Product
	Warehouse    = domain.Warehouse
	SyncKind     = domain.SyncKind
	SyncState    = domain.SyncState
	SyncStatus   = domain.SyncStatus
	SyncResult   = domain.SyncResult
	ImportResult = domain.ImportResult
	Pallet       = domain.Pallet
	PalletItem   = domain.PalletItem
)

// PageFetcher fetches one page of raw catalog records from the upstream API.
type PageFetcher interface {
	FetchPage(ctx context.Context, endpoint unleashed.Endpoint, params unleashed.QueryParams) (unleashed.Page, error)
}

// SyncEvent describes one catalog sync lifecycle transition for downstream
// consumers.
type SyncEvent struct {
	OwnerID    string           `json:"ownerId"`
	Kind       domain.SyncKind  `json:"kind"`
	Status     domain.SyncState `json:"status"`
	Inserted   int              `json:"inserted"`
	Updated    int              `json:"updated"`
	Batches    int              `json:"batches"`
	OccurredAt time.Time        `json:"occurredAt"`
}

// SyncEventPublisher notifies downstream consumers about sync lifecycle
// transitions. Publishing is best-effort from the orchestrator's point of
// view.
type SyncEventPublisher interface {
	PublishSyncEvent(ctx context.Context, event SyncEvent) (string, error)
}

// SyncOptions tunes one sync run. Zero values fall back to configured
// defaults.
type SyncOptions struct {
	PageSize    int
	MaxPages    int
	MaxDuration time.Duration
}

// CatalogSyncService drives the paginated reconciliation of the upstream
// catalog against the local store and reports per-owner progress.
type CatalogSyncService interface {
	SyncProducts(ctx context.Context, ownerID string, opts SyncOptions) (SyncResult, error)
	SyncWarehouses(ctx context.Context, ownerID string, opts SyncOptions) (SyncResult, error)
	Status(ctx context.Context, ownerID string, kind SyncKind) (SyncStatus, error)
}

// CatalogService exposes read access to the global product and warehouse
// catalogs.
type CatalogService interface {
	ListProducts(ctx context.Context) ([]Product, error)
	ListWarehouses(ctx context.Context) ([]Warehouse, error)
}

// CatalogImportService feeds CSV rows through the same upsert core as the
// sync engine.
type CatalogImportService interface {
	ImportProducts(ctx context.Context, r io.Reader) (ImportResult, error)
}

// CreatePalletCommand captures the inputs for creating a single pallet.
type CreatePalletCommand struct {
	OwnerID string
	Name    string
	Items   []PalletItem
}

// PalletService manages pallet lifecycle and item reconciliation for the
// owning principal.
type PalletService interface {
	Create(ctx context.Context, cmd CreatePalletCommand) (Pallet, error)
	BulkCreate(ctx context.Context, ownerID string, count int) ([]Pallet, error)
	Get(ctx context.Context, ownerID, palletID string) (Pallet, error)
	List(ctx context.Context, ownerID string) ([]Pallet, error)
	Delete(ctx context.Context, ownerID, palletID string) error
	QRURL(ctx context.Context, ownerID, palletID string) (string, error)

	AddItem(ctx context.Context, ownerID, palletID, productID string, quantity int) (Pallet, error)
	AddItemByCode(ctx context.Context, ownerID, palletID, productCode string, quantity int) (Pallet, error)
	SetItemQuantity(ctx context.Context, ownerID, palletID, productID string, quantity int) (Pallet, error)
	RemoveItem(ctx context.Context, ownerID, palletID, productID string) (Pallet, error)
	ReplaceAllItems(ctx context.Context, ownerID, palletID string, items []PalletItem) (Pallet, error)
}
