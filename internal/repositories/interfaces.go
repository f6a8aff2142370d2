package repositories

import (
	"context"
	"errors"

	"github.com/stockyard/api/internal/domain"
)

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("repositories: not found")

// UpsertResult reports the outcome of an insert-or-update by natural key.
type UpsertResult struct {
	ID      string
	Updated bool
}

// ProductRepository persists the global product catalog keyed by code.
type ProductRepository interface {
	// Upsert inserts the product or patches the existing document with the
	// same code. It must be idempotent for repeated identical input.
	Upsert(ctx context.Context, product domain.Product) (UpsertResult, error)
	FindByCode(ctx context.Context, code string) (domain.Product, error)
	List(ctx context.Context) ([]domain.Product, error)
}

// WarehouseRepository persists the global warehouse catalog keyed by code.
type WarehouseRepository interface {
	Upsert(ctx context.Context, warehouse domain.Warehouse) (UpsertResult, error)
	List(ctx context.Context) ([]domain.Warehouse, error)
}

// SyncStatusRepository stores the single live sync snapshot per owner and kind.
type SyncStatusRepository interface {
	// Save overwrites the snapshot for (OwnerID, Kind).
	Save(ctx context.Context, status domain.SyncStatus) error
	Find(ctx context.Context, ownerID string, kind domain.SyncKind) (domain.SyncStatus, error)
}

// PalletRepository stores pallets owned by individual principals.
type PalletRepository interface {
	Insert(ctx context.Context, pallet domain.Pallet) (string, error)
	Get(ctx context.Context, id string) (domain.Pallet, error)
	ListByOwner(ctx context.Context, ownerID string) ([]domain.Pallet, error)
	SetItems(ctx context.Context, id string, items []domain.PalletItem) error
	SetQRObject(ctx context.Context, id string, object string) error
	Delete(ctx context.Context, id string) error
}
