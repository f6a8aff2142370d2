package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stockyard/api/internal/domain"
	"github.com/stockyard/api/internal/platform/storage"
	"github.com/stockyard/api/internal/repositories"
)

type memoryPalletRepo struct {
	byID map[string]domain.Pallet
	seq  int
}

func newMemoryPalletRepo() *memoryPalletRepo {
	return &memoryPalletRepo{byID: make(map[string]domain.Pallet)}
}

func (r *memoryPalletRepo) Insert(_ context.Context, pallet domain.Pallet) (string, error) {
	r.seq++
	id := fmt.Sprintf("pallet-%d", r.seq)
	pallet.ID = id
	r.byID[id] = pallet
	return id, nil
}

func (r *memoryPalletRepo) Get(_ context.Context, id string) (domain.Pallet, error) {
	pallet, ok := r.byID[id]
	if !ok {
		return domain.Pallet{}, repositories.ErrNotFound
	}
	return pallet, nil
}

func (r *memoryPalletRepo) ListByOwner(_ context.Context, ownerID string) ([]domain.Pallet, error) {
	var out []domain.Pallet
	for _, pallet := range r.byID {
		if pallet.OwnerID == ownerID {
			out = append(out, pallet)
		}
	}
	return out, nil
}

func (r *memoryPalletRepo) SetItems(_ context.Context, id string, items []domain.PalletItem) error {
	pallet, ok := r.byID[id]
	if !ok {
		return repositories.ErrNotFound
	}
	pallet.Items = items
	r.byID[id] = pallet
	return nil
}

func (r *memoryPalletRepo) SetQRObject(_ context.Context, id string, object string) error {
	pallet, ok := r.byID[id]
	if !ok {
		return repositories.ErrNotFound
	}
	pallet.QRObject = object
	r.byID[id] = pallet
	return nil
}

func (r *memoryPalletRepo) Delete(_ context.Context, id string) error {
	delete(r.byID, id)
	return nil
}

type palletFixture struct {
	pallets   *memoryPalletRepo
	products  *memoryProductRepo
	artifacts *storage.MemoryArtifactStore
	service   PalletService
}

func newPalletFixture(t *testing.T) *palletFixture {
	t.Helper()
	f := &palletFixture{
		pallets:   newMemoryPalletRepo(),
		products:  newMemoryProductRepo(),
		artifacts: storage.NewMemoryArtifactStore(),
	}
	seq := 0
	service, err := NewPalletService(PalletServiceDeps{
		Pallets:   f.pallets,
		Products:  f.products,
		Artifacts: f.artifacts,
		Clock: func() time.Time {
			return time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)
		},
		IDGen: func() string {
			seq++
			return fmt.Sprintf("01HTESTULID%04d", seq)
		},
	})
	if err != nil {
		t.Fatalf("NewPalletService returned error: %v", err)
	}
	f.service = service
	return f
}

func (f *palletFixture) create(t *testing.T, ownerID string) Pallet {
	t.Helper()
	pallet, err := f.service.Create(context.Background(), CreatePalletCommand{OwnerID: ownerID})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	return pallet
}

func TestCreatePalletGeneratesCodeAndQR(t *testing.T) {
	f := newPalletFixture(t)

	pallet := f.create(t, "owner-1")
	if !strings.HasPrefix(pallet.Name, "PLT-20250314-") {
		t.Fatalf("name = %q, want PLT-20250314-XXXX", pallet.Name)
	}
	if len(pallet.Name) != len("PLT-20250314-XXXX") {
		t.Fatalf("name = %q, want 4-character suffix", pallet.Name)
	}
	if pallet.QRObject == "" {
		t.Fatal("qr object not attached")
	}

	data, contentType, ok := f.artifacts.Get(pallet.QRObject)
	if !ok {
		t.Fatalf("qr artifact %q not stored", pallet.QRObject)
	}
	if contentType != "image/png" {
		t.Fatalf("content type = %q, want image/png", contentType)
	}
	if len(data) == 0 {
		t.Fatal("qr artifact is empty")
	}
	if stored := f.pallets.byID[pallet.ID]; stored.QRObject != pallet.QRObject {
		t.Fatalf("stored qr object = %q, want %q", stored.QRObject, pallet.QRObject)
	}
}

func TestCreatePalletKeepsExplicitNameAndFiltersItems(t *testing.T) {
	f := newPalletFixture(t)

	pallet, err := f.service.Create(context.Background(), CreatePalletCommand{
		OwnerID: "owner-1",
		Name:    "Dock 7 staging",
		Items: []PalletItem{
			{ProductID: "p1", Quantity: 4},
			{ProductID: "p2", Quantity: 0},
			{ProductID: "p1", Quantity: 1},
		},
	})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if pallet.Name != "Dock 7 staging" {
		t.Fatalf("name = %q", pallet.Name)
	}
	if len(pallet.Items) != 1 || pallet.Items[0].Quantity != 5 {
		t.Fatalf("items = %+v, want single p1 entry with quantity 5", pallet.Items)
	}
}

func TestCreatePalletRequiresOwner(t *testing.T) {
	f := newPalletFixture(t)

	if _, err := f.service.Create(context.Background(), CreatePalletCommand{}); !errors.Is(err, ErrPalletInvalidInput) {
		t.Fatalf("err = %v, want ErrPalletInvalidInput", err)
	}
}

func TestBulkCreateClampsCount(t *testing.T) {
	f := newPalletFixture(t)

	pallets, err := f.service.BulkCreate(context.Background(), "owner-1", 0)
	if err != nil {
		t.Fatalf("BulkCreate returned error: %v", err)
	}
	if len(pallets) != 1 {
		t.Fatalf("count = %d, want clamp up to 1", len(pallets))
	}

	pallets, err = f.service.BulkCreate(context.Background(), "owner-1", 250)
	if err != nil {
		t.Fatalf("BulkCreate returned error: %v", err)
	}
	if len(pallets) != 200 {
		t.Fatalf("count = %d, want clamp down to 200", len(pallets))
	}
}

func TestGetPalletOwnership(t *testing.T) {
	f := newPalletFixture(t)
	pallet := f.create(t, "owner-1")

	if _, err := f.service.Get(context.Background(), "owner-2", pallet.ID); !errors.Is(err, ErrPalletForbidden) {
		t.Fatalf("err = %v, want ErrPalletForbidden", err)
	}
	if _, err := f.service.Get(context.Background(), "owner-1", "missing"); !errors.Is(err, ErrPalletNotFound) {
		t.Fatalf("err = %v, want ErrPalletNotFound", err)
	}
	if _, err := f.service.Get(context.Background(), "owner-1", pallet.ID); err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
}

func TestAddItemAccumulates(t *testing.T) {
	f := newPalletFixture(t)
	pallet := f.create(t, "owner-1")

	if _, err := f.service.AddItem(context.Background(), "owner-1", pallet.ID, "p1", 3); err != nil {
		t.Fatalf("AddItem returned error: %v", err)
	}
	updated, err := f.service.AddItem(context.Background(), "owner-1", pallet.ID, "p1", 2)
	if err != nil {
		t.Fatalf("AddItem returned error: %v", err)
	}
	if len(updated.Items) != 1 {
		t.Fatalf("items = %+v, want exactly one entry", updated.Items)
	}
	if updated.Items[0].ProductID != "p1" || updated.Items[0].Quantity != 5 {
		t.Fatalf("item = %+v, want {p1 5}", updated.Items[0])
	}
}

func TestAddItemRejectsNonPositiveQuantity(t *testing.T) {
	f := newPalletFixture(t)
	pallet := f.create(t, "owner-1")

	if _, err := f.service.AddItem(context.Background(), "owner-1", pallet.ID, "p1", 0); !errors.Is(err, ErrPalletInvalidInput) {
		t.Fatalf("err = %v, want ErrPalletInvalidInput", err)
	}
	if _, err := f.service.AddItem(context.Background(), "owner-1", pallet.ID, "p1", -2); !errors.Is(err, ErrPalletInvalidInput) {
		t.Fatalf("err = %v, want ErrPalletInvalidInput", err)
	}
}

func TestAddItemByCode(t *testing.T) {
	f := newPalletFixture(t)
	pallet := f.create(t, "owner-1")
	if _, err := f.products.Upsert(context.Background(), domain.Product{Code: "A1", Name: "Widget"}); err != nil {
		t.Fatalf("seed product: %v", err)
	}

	updated, err := f.service.AddItemByCode(context.Background(), "owner-1", pallet.ID, "A1", 2)
	if err != nil {
		t.Fatalf("AddItemByCode returned error: %v", err)
	}
	if len(updated.Items) != 1 || updated.Items[0].ProductID != "product-A1" {
		t.Fatalf("items = %+v, want resolved product id", updated.Items)
	}

	if _, err := f.service.AddItemByCode(context.Background(), "owner-1", pallet.ID, "NOPE", 1); !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("err = %v, want ErrProductNotFound", err)
	}
}

func TestSetItemQuantity(t *testing.T) {
	f := newPalletFixture(t)
	pallet := f.create(t, "owner-1")
	if _, err := f.service.AddItem(context.Background(), "owner-1", pallet.ID, "p1", 3); err != nil {
		t.Fatalf("AddItem returned error: %v", err)
	}

	updated, err := f.service.SetItemQuantity(context.Background(), "owner-1", pallet.ID, "p1", 7)
	if err != nil {
		t.Fatalf("SetItemQuantity returned error: %v", err)
	}
	if updated.Items[0].Quantity != 7 {
		t.Fatalf("quantity = %d, want 7", updated.Items[0].Quantity)
	}

	updated, err = f.service.SetItemQuantity(context.Background(), "owner-1", pallet.ID, "p1", 0)
	if err != nil {
		t.Fatalf("SetItemQuantity returned error: %v", err)
	}
	if len(updated.Items) != 0 {
		t.Fatalf("items = %+v, want entry removed at quantity 0", updated.Items)
	}

	if _, err := f.service.SetItemQuantity(context.Background(), "owner-1", pallet.ID, "ghost", 1); !errors.Is(err, ErrPalletItemNotFound) {
		t.Fatalf("err = %v, want ErrPalletItemNotFound", err)
	}
}

func TestRemoveItem(t *testing.T) {
	f := newPalletFixture(t)
	pallet := f.create(t, "owner-1")
	if _, err := f.service.AddItem(context.Background(), "owner-1", pallet.ID, "p1", 3); err != nil {
		t.Fatalf("AddItem returned error: %v", err)
	}

	updated, err := f.service.RemoveItem(context.Background(), "owner-1", pallet.ID, "p1")
	if err != nil {
		t.Fatalf("RemoveItem returned error: %v", err)
	}
	if len(updated.Items) != 0 {
		t.Fatalf("items = %+v, want empty", updated.Items)
	}

	// Removing an absent item is a no-op, not an error.
	if _, err := f.service.RemoveItem(context.Background(), "owner-1", pallet.ID, "ghost"); err != nil {
		t.Fatalf("RemoveItem returned error: %v", err)
	}
}

func TestReplaceAllItemsDropsNonPositive(t *testing.T) {
	f := newPalletFixture(t)
	pallet := f.create(t, "owner-1")

	updated, err := f.service.ReplaceAllItems(context.Background(), "owner-1", pallet.ID, []PalletItem{
		{ProductID: "p1", Quantity: 2},
		{ProductID: "p2", Quantity: 0},
		{ProductID: "p3", Quantity: -1},
		{ProductID: "p4", Quantity: 9},
	})
	if err != nil {
		t.Fatalf("ReplaceAllItems returned error: %v", err)
	}
	if len(updated.Items) != 2 {
		t.Fatalf("items = %+v, want non-positive entries dropped", updated.Items)
	}
}

func TestPalletQuantityInvariantUnderMixedOps(t *testing.T) {
	f := newPalletFixture(t)
	pallet := f.create(t, "owner-1")
	ctx := context.Background()

	ops := []func() (Pallet, error){
		func() (Pallet, error) { return f.service.AddItem(ctx, "owner-1", pallet.ID, "p1", 3) },
		func() (Pallet, error) { return f.service.AddItem(ctx, "owner-1", pallet.ID, "p2", 1) },
		func() (Pallet, error) { return f.service.AddItem(ctx, "owner-1", pallet.ID, "p1", 2) },
		func() (Pallet, error) { return f.service.SetItemQuantity(ctx, "owner-1", pallet.ID, "p2", 4) },
		func() (Pallet, error) { return f.service.RemoveItem(ctx, "owner-1", pallet.ID, "p1") },
		func() (Pallet, error) { return f.service.AddItem(ctx, "owner-1", pallet.ID, "p1", 1) },
		func() (Pallet, error) { return f.service.SetItemQuantity(ctx, "owner-1", pallet.ID, "p1", 0) },
	}
	for i, op := range ops {
		result, err := op()
		if err != nil {
			t.Fatalf("op %d returned error: %v", i, err)
		}
		seen := make(map[string]bool)
		for _, item := range result.Items {
			if item.Quantity <= 0 {
				t.Fatalf("op %d left non-positive quantity: %+v", i, item)
			}
			if seen[item.ProductID] {
				t.Fatalf("op %d left duplicate product: %+v", i, result.Items)
			}
			seen[item.ProductID] = true
		}
	}
}

func TestDeletePalletReclaimsQR(t *testing.T) {
	f := newPalletFixture(t)
	pallet := f.create(t, "owner-1")
	if f.artifacts.Len() != 1 {
		t.Fatalf("artifact count = %d, want 1", f.artifacts.Len())
	}

	if err := f.service.Delete(context.Background(), "owner-2", pallet.ID); !errors.Is(err, ErrPalletForbidden) {
		t.Fatalf("err = %v, want ErrPalletForbidden", err)
	}
	if err := f.service.Delete(context.Background(), "owner-1", pallet.ID); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if f.artifacts.Len() != 0 {
		t.Fatalf("artifact count = %d, want qr reclaimed", f.artifacts.Len())
	}
	if _, err := f.service.Get(context.Background(), "owner-1", pallet.ID); !errors.Is(err, ErrPalletNotFound) {
		t.Fatalf("err = %v, want ErrPalletNotFound after delete", err)
	}
}

func TestQRURL(t *testing.T) {
	f := newPalletFixture(t)
	pallet := f.create(t, "owner-1")

	url, err := f.service.QRURL(context.Background(), "owner-1", pallet.ID)
	if err != nil {
		t.Fatalf("QRURL returned error: %v", err)
	}
	if !strings.Contains(url, pallet.QRObject) {
		t.Fatalf("url = %q, want object reference", url)
	}

	if _, err := f.service.QRURL(context.Background(), "owner-2", pallet.ID); !errors.Is(err, ErrPalletForbidden) {
		t.Fatalf("err = %v, want ErrPalletForbidden", err)
	}
}
