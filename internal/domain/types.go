package domain

import (
	"time"
)

// Product is a catalog entry keyed by its unique code. The catalog is global
// (not owned per-user) and the sync engine never deletes from it.
type Product struct {
	ID          string
	Code        string
	Name        string
	Price       *float64
	Description string
	ImageURL    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Warehouse is a catalog entry for a physical location, keyed by code.
type Warehouse struct {
	ID          string
	Code        string
	Name        string
	Description string
	IsDefault   bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SyncKind identifies which catalog a sync run reconciles.
type SyncKind string

const (
	SyncKindProducts   SyncKind = "products"
	SyncKindWarehouses SyncKind = "warehouses"
)

// SyncState enumerates the lifecycle of a sync run.
type SyncState string

const (
	SyncStateRunning   SyncState = "running"
	SyncStateCompleted SyncState = "completed"
	SyncStateError     SyncState = "error"
)

// SyncStatus is the advisory progress snapshot for the single live sync run of
// an owner and kind. It is overwritten in place, never appended, and safe to
// lose.
type SyncStatus struct {
	OwnerID   string
	Kind      SyncKind
	Status    SyncState
	Batches   int
	Inserted  int
	Updated   int
	Message   string
	StartedAt time.Time
	UpdatedAt time.Time
}

// SyncResult summarises a completed sync run for the caller.
type SyncResult struct {
	Inserted       int
	Updated        int
	Batches        int
	PagesProcessed int
}

// ImportResult summarises a CSV import.
type ImportResult struct {
	Inserted int
	Updated  int
	Rows     int
}

// PalletItem pairs a product with a positive quantity. A pallet holds at most
// one item per product.
type PalletItem struct {
	ProductID string
	Quantity  int
}

// Pallet is a named, QR-identified collection of product quantities owned by a
// single principal.
type Pallet struct {
	ID        string
	OwnerID   string
	Name      string
	Items     []PalletItem
	QRObject  string
	CreatedAt time.Time
	UpdatedAt time.Time
}
