package firestore

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	"github.com/stockyard/api/internal/domain"
	pfirestore "github.com/stockyard/api/internal/platform/firestore"
	"github.com/stockyard/api/internal/repositories"
)

const palletCollection = "pallets"

// PalletRepository stores pallets owned by individual principals.
type PalletRepository struct {
	base *pfirestore.BaseRepository[palletDocument]
}

// NewPalletRepository constructs a Firestore-backed pallet repository.
func NewPalletRepository(provider *pfirestore.Provider) (*PalletRepository, error) {
	if provider == nil {
		return nil, errors.New("pallet repository requires firestore provider")
	}
	return &PalletRepository{
		base: pfirestore.NewBaseRepository[palletDocument](provider, palletCollection),
	}, nil
}

// Insert stores a new pallet and returns its generated document ID.
func (r *PalletRepository) Insert(ctx context.Context, pallet domain.Pallet) (string, error) {
	if strings.TrimSpace(pallet.OwnerID) == "" {
		return "", errors.New("pallet owner id is required")
	}
	id, _, err := r.base.Create(ctx, fromDomainPallet(pallet))
	if err != nil {
		return "", err
	}
	return id, nil
}

// Get fetches a pallet by ID, or repositories.ErrNotFound.
func (r *PalletRepository) Get(ctx context.Context, id string) (domain.Pallet, error) {
	doc, err := r.base.Get(ctx, id)
	if err != nil {
		if pfirestore.IsNotFound(err) {
			return domain.Pallet{}, repositories.ErrNotFound
		}
		return domain.Pallet{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// ListByOwner returns the owner's pallets, newest first.
func (r *PalletRepository) ListByOwner(ctx context.Context, ownerID string) ([]domain.Pallet, error) {
	docs, err := r.base.Query(ctx, func(query firestore.Query) firestore.Query {
		return query.Where("ownerId", "==", ownerID)
	})
	if err != nil {
		return nil, err
	}

	pallets := make([]domain.Pallet, len(docs))
	for i, doc := range docs {
		pallets[i] = doc.Data.toDomain(doc.ID)
	}
	sort.Slice(pallets, func(i, j int) bool {
		return pallets[i].CreatedAt.After(pallets[j].CreatedAt)
	})
	return pallets, nil
}

// SetItems replaces the stored item list.
func (r *PalletRepository) SetItems(ctx context.Context, id string, items []domain.PalletItem) error {
	updates := []firestore.Update{
		{Path: "items", Value: fromDomainItems(items)},
		{Path: "updatedAt", Value: time.Now().UTC()},
	}
	if _, err := r.base.Update(ctx, id, updates); err != nil {
		if pfirestore.IsNotFound(err) {
			return repositories.ErrNotFound
		}
		return err
	}
	return nil
}

// SetQRObject records the storage object holding the pallet's QR code image.
func (r *PalletRepository) SetQRObject(ctx context.Context, id string, object string) error {
	updates := []firestore.Update{
		{Path: "qrObject", Value: object},
		{Path: "updatedAt", Value: time.Now().UTC()},
	}
	if _, err := r.base.Update(ctx, id, updates); err != nil {
		if pfirestore.IsNotFound(err) {
			return repositories.ErrNotFound
		}
		return err
	}
	return nil
}

// Delete removes the pallet. Deleting a missing pallet is not an error.
func (r *PalletRepository) Delete(ctx context.Context, id string) error {
	return r.base.Delete(ctx, id)
}

type palletDocument struct {
	OwnerID   string           `firestore:"ownerId"`
	Name      string           `firestore:"name"`
	Items     []palletItemData `firestore:"items"`
	QRObject  string           `firestore:"qrObject"`
	CreatedAt time.Time        `firestore:"createdAt"`
	UpdatedAt time.Time        `firestore:"updatedAt"`
}

type palletItemData struct {
	ProductID string `firestore:"productId"`
	Quantity  int    `firestore:"quantity"`
}

func fromDomainPallet(pallet domain.Pallet) palletDocument {
	return palletDocument{
		OwnerID:   pallet.OwnerID,
		Name:      pallet.Name,
		Items:     fromDomainItems(pallet.Items),
		QRObject:  pallet.QRObject,
		CreatedAt: pallet.CreatedAt,
		UpdatedAt: pallet.UpdatedAt,
	}
}

func fromDomainItems(items []domain.PalletItem) []palletItemData {
	out := make([]palletItemData, len(items))
	for i, item := range items {
		out[i] = palletItemData{ProductID: item.ProductID, Quantity: item.Quantity}
	}
	return out
}

func (d palletDocument) toDomain(id string) domain.Pallet {
	items := make([]domain.PalletItem, len(d.Items))
	for i, item := range d.Items {
		items[i] = domain.PalletItem{ProductID: item.ProductID, Quantity: item.Quantity}
	}
	return domain.Pallet{
		ID:        id,
		OwnerID:   d.OwnerID,
		Name:      d.Name,
		Items:     items,
		QRObject:  d.QRObject,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}
