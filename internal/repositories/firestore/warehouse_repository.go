package firestore

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/stockyard/api/internal/domain"
	pfirestore "github.com/stockyard/api/internal/platform/firestore"
	"github.com/stockyard/api/internal/repositories"
)

const warehouseCollection = "warehouses"

// WarehouseRepository persists the warehouse catalog in Firestore.
type WarehouseRepository struct {
	base     *pfirestore.BaseRepository[warehouseDocument]
	collator *collate.Collator
}

// NewWarehouseRepository constructs a Firestore-backed warehouse repository.
func NewWarehouseRepository(provider *pfirestore.Provider) (*WarehouseRepository, error) {
	if provider == nil {
		return nil, errors.New("warehouse repository requires firestore provider")
	}
	return &WarehouseRepository{
		base:     pfirestore.NewBaseRepository[warehouseDocument](provider, warehouseCollection),
		collator: collate.New(language.Und, collate.IgnoreCase),
	}, nil
}

// Upsert inserts the warehouse or patches the existing document with the same code.
func (r *WarehouseRepository) Upsert(ctx context.Context, warehouse domain.Warehouse) (repositories.UpsertResult, error) {
	code := strings.TrimSpace(warehouse.Code)
	if code == "" {
		return repositories.UpsertResult{}, errors.New("warehouse code is required")
	}

	now := time.Now().UTC()
	existing, err := r.base.QueryOne(ctx, byCode(code))
	if err != nil {
		if errors.Is(err, pfirestore.ErrNoDocuments) {
			doc := warehouseDocument{
				Code:        code,
				Name:        warehouse.Name,
				Description: warehouse.Description,
				IsDefault:   warehouse.IsDefault,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			id, _, err := r.base.Create(ctx, doc)
			if err != nil {
				return repositories.UpsertResult{}, err
			}
			return repositories.UpsertResult{ID: id}, nil
		}
		return repositories.UpsertResult{}, err
	}

	updates := []firestore.Update{
		{Path: "name", Value: warehouse.Name},
		{Path: "description", Value: warehouse.Description},
		{Path: "isDefault", Value: warehouse.IsDefault},
		{Path: "updatedAt", Value: now},
	}
	if _, err := r.base.Update(ctx, existing.ID, updates); err != nil {
		return repositories.UpsertResult{}, err
	}
	return repositories.UpsertResult{ID: existing.ID, Updated: true}, nil
}

// List returns all warehouses ordered by name.
func (r *WarehouseRepository) List(ctx context.Context) ([]domain.Warehouse, error) {
	docs, err := r.base.Query(ctx, nil)
	if err != nil {
		return nil, err
	}

	warehouses := make([]domain.Warehouse, len(docs))
	for i, doc := range docs {
		warehouses[i] = domain.Warehouse{
			ID:          doc.ID,
			Code:        doc.Data.Code,
			Name:        doc.Data.Name,
			Description: doc.Data.Description,
			IsDefault:   doc.Data.IsDefault,
			CreatedAt:   doc.Data.CreatedAt,
			UpdatedAt:   doc.Data.UpdatedAt,
		}
	}
	sort.Slice(warehouses, func(i, j int) bool {
		return r.collator.CompareString(warehouses[i].Name, warehouses[j].Name) < 0
	})
	return warehouses, nil
}

type warehouseDocument struct {
	Code        string    `firestore:"code"`
	Name        string    `firestore:"name"`
	Description string    `firestore:"description"`
	IsDefault   bool      `firestore:"isDefault"`
	CreatedAt   time.Time `firestore:"createdAt"`
	UpdatedAt   time.Time `firestore:"updatedAt"`
}
