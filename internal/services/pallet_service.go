package services

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	qrcode "github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"github.com/stockyard/api/internal/domain"
	"github.com/stockyard/api/internal/platform/storage"
	"github.com/stockyard/api/internal/repositories"
)

var (
	// ErrPalletNotFound indicates the pallet does not exist.
	ErrPalletNotFound = errors.New("pallets: not found")
	// ErrPalletForbidden indicates the pallet belongs to another principal.
	ErrPalletForbidden = errors.New("pallets: forbidden")
	// ErrPalletInvalidInput indicates the caller supplied invalid pallet parameters.
	ErrPalletInvalidInput = errors.New("pallets: invalid input")
	// ErrPalletItemNotFound indicates the product is not on the pallet.
	ErrPalletItemNotFound = errors.New("pallets: item not found")
	// ErrProductNotFound indicates no catalog product carries the given code.
	ErrProductNotFound = errors.New("pallets: product not found")
)

const (
	bulkCreateMax = 200
	qrImageSize   = 256
	qrURLExpiry   = 15 * time.Minute
)

// PalletServiceDeps bundles collaborators for the pallet service.
type PalletServiceDeps struct {
	Pallets   repositories.PalletRepository
	Products  repositories.ProductRepository
	Artifacts storage.ArtifactStore
	Logger    *zap.Logger
	Clock     func() time.Time
	IDGen     func() string
}

type palletService struct {
	pallets   repositories.PalletRepository
	products  repositories.ProductRepository
	artifacts storage.ArtifactStore
	logger    *zap.Logger
	clock     func() time.Time
	idGen     func() string
}

// NewPalletService constructs the pallet lifecycle and reconciliation service.
func NewPalletService(deps PalletServiceDeps) (PalletService, error) {
	if deps.Pallets == nil {
		return nil, errors.New("pallet service: pallet repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("pallet service: product repository is required")
	}
	if deps.Artifacts == nil {
		return nil, errors.New("pallet service: artifact store is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGen
	if idGen == nil {
		idGen = func() string {
			return ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
		}
	}

	return &palletService{
		pallets:   deps.Pallets,
		products:  deps.Products,
		artifacts: deps.Artifacts,
		logger:    logger.Named("pallets"),
		clock: func() time.Time {
			return clock().UTC()
		},
		idGen: idGen,
	}, nil
}

func (s *palletService) Create(ctx context.Context, cmd CreatePalletCommand) (Pallet, error) {
	ownerID := strings.TrimSpace(cmd.OwnerID)
	if ownerID == "" {
		return Pallet{}, fmt.Errorf("%w: owner id is required", ErrPalletInvalidInput)
	}

	now := s.clock()
	name := strings.TrimSpace(cmd.Name)
	if name == "" {
		name = s.generateCode(now)
	}

	pallet := domain.Pallet{
		OwnerID:   ownerID,
		Name:      name,
		Items:     mergeItems(nil, cmd.Items),
		CreatedAt: now,
		UpdatedAt: now,
	}

	id, err := s.pallets.Insert(ctx, pallet)
	if err != nil {
		return Pallet{}, fmt.Errorf("insert pallet: %w", err)
	}
	pallet.ID = id

	object, err := s.attachQR(ctx, id)
	if err != nil {
		// The pallet exists and is usable without its QR image.
		s.logger.Warn("failed to attach qr artifact",
			zap.String("pallet_id", id),
			zap.Error(err))
	} else {
		pallet.QRObject = object
	}
	return pallet, nil
}

func (s *palletService) BulkCreate(ctx context.Context, ownerID string, count int) ([]Pallet, error) {
	if count < 1 {
		count = 1
	}
	if count > bulkCreateMax {
		count = bulkCreateMax
	}

	pallets := make([]Pallet, 0, count)
	for i := 0; i < count; i++ {
		pallet, err := s.Create(ctx, CreatePalletCommand{OwnerID: ownerID})
		if err != nil {
			return pallets, fmt.Errorf("bulk create pallet %d of %d: %w", i+1, count, err)
		}
		pallets = append(pallets, pallet)
	}
	return pallets, nil
}

func (s *palletService) Get(ctx context.Context, ownerID, palletID string) (Pallet, error) {
	return s.load(ctx, ownerID, palletID)
}

func (s *palletService) List(ctx context.Context, ownerID string) ([]Pallet, error) {
	if strings.TrimSpace(ownerID) == "" {
		return nil, fmt.Errorf("%w: owner id is required", ErrPalletInvalidInput)
	}
	return s.pallets.ListByOwner(ctx, ownerID)
}

func (s *palletService) Delete(ctx context.Context, ownerID, palletID string) error {
	pallet, err := s.load(ctx, ownerID, palletID)
	if err != nil {
		return err
	}
	if pallet.QRObject != "" {
		if err := s.artifacts.Delete(ctx, pallet.QRObject); err != nil {
			s.logger.Warn("failed to reclaim qr artifact",
				zap.String("pallet_id", palletID),
				zap.Error(err))
		}
	}
	return s.pallets.Delete(ctx, palletID)
}

func (s *palletService) QRURL(ctx context.Context, ownerID, palletID string) (string, error) {
	pallet, err := s.load(ctx, ownerID, palletID)
	if err != nil {
		return "", err
	}
	if pallet.QRObject == "" {
		return "", fmt.Errorf("%w: pallet has no qr artifact", ErrPalletNotFound)
	}
	url, err := s.artifacts.SignedURL(ctx, pallet.QRObject, qrURLExpiry)
	if err != nil {
		return "", fmt.Errorf("sign qr url: %w", err)
	}
	return url, nil
}

func (s *palletService) AddItem(ctx context.Context, ownerID, palletID, productID string, quantity int) (Pallet, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return Pallet{}, fmt.Errorf("%w: product id is required", ErrPalletInvalidInput)
	}
	if quantity <= 0 {
		return Pallet{}, fmt.Errorf("%w: quantity must be positive", ErrPalletInvalidInput)
	}

	pallet, err := s.load(ctx, ownerID, palletID)
	if err != nil {
		return Pallet{}, err
	}

	items := pallet.Items
	found := false
	for i := range items {
		if items[i].ProductID == productID {
			items[i].Quantity += quantity
			found = true
			break
		}
	}
	if !found {
		items = append(items, domain.PalletItem{ProductID: productID, Quantity: quantity})
	}
	return s.saveItems(ctx, pallet, items)
}

func (s *palletService) AddItemByCode(ctx context.Context, ownerID, palletID, productCode string, quantity int) (Pallet, error) {
	productCode = strings.TrimSpace(productCode)
	if productCode == "" {
		return Pallet{}, fmt.Errorf("%w: product code is required", ErrPalletInvalidInput)
	}

	product, err := s.products.FindByCode(ctx, productCode)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return Pallet{}, fmt.Errorf("%w: code %q", ErrProductNotFound, productCode)
		}
		return Pallet{}, err
	}
	return s.AddItem(ctx, ownerID, palletID, product.ID, quantity)
}

func (s *palletService) SetItemQuantity(ctx context.Context, ownerID, palletID, productID string, quantity int) (Pallet, error) {
	pallet, err := s.load(ctx, ownerID, palletID)
	if err != nil {
		return Pallet{}, err
	}

	index := -1
	for i := range pallet.Items {
		if pallet.Items[i].ProductID == productID {
			index = i
			break
		}
	}
	if index < 0 {
		return Pallet{}, fmt.Errorf("%w: product %q", ErrPalletItemNotFound, productID)
	}

	items := make([]domain.PalletItem, 0, len(pallet.Items))
	for i, item := range pallet.Items {
		if i == index {
			if quantity <= 0 {
				continue
			}
			item.Quantity = quantity
		}
		items = append(items, item)
	}
	return s.saveItems(ctx, pallet, items)
}

func (s *palletService) RemoveItem(ctx context.Context, ownerID, palletID, productID string) (Pallet, error) {
	pallet, err := s.load(ctx, ownerID, palletID)
	if err != nil {
		return Pallet{}, err
	}

	items := make([]domain.PalletItem, 0, len(pallet.Items))
	for _, item := range pallet.Items {
		if item.ProductID == productID {
			continue
		}
		items = append(items, item)
	}
	if len(items) == len(pallet.Items) {
		// Removing an absent item is a no-op.
		return pallet, nil
	}
	return s.saveItems(ctx, pallet, items)
}

func (s *palletService) ReplaceAllItems(ctx context.Context, ownerID, palletID string, items []PalletItem) (Pallet, error) {
	pallet, err := s.load(ctx, ownerID, palletID)
	if err != nil {
		return Pallet{}, err
	}
	return s.saveItems(ctx, pallet, mergeItems(nil, items))
}

// load fetches the pallet and enforces ownership. A missing pallet and a
// foreign pallet are distinct failures.
func (s *palletService) load(ctx context.Context, ownerID, palletID string) (domain.Pallet, error) {
	if strings.TrimSpace(palletID) == "" {
		return domain.Pallet{}, fmt.Errorf("%w: pallet id is required", ErrPalletInvalidInput)
	}
	pallet, err := s.pallets.Get(ctx, palletID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return domain.Pallet{}, ErrPalletNotFound
		}
		return domain.Pallet{}, err
	}
	if pallet.OwnerID != ownerID {
		return domain.Pallet{}, ErrPalletForbidden
	}
	return pallet, nil
}

func (s *palletService) saveItems(ctx context.Context, pallet domain.Pallet, items []domain.PalletItem) (Pallet, error) {
	if err := s.pallets.SetItems(ctx, pallet.ID, items); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return Pallet{}, ErrPalletNotFound
		}
		return Pallet{}, err
	}
	pallet.Items = items
	pallet.UpdatedAt = s.clock()
	return pallet, nil
}

// attachQR renders the scan payload as a PNG, stores it, and records the
// object on the pallet.
func (s *palletService) attachQR(ctx context.Context, palletID string) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"type": "pallet",
		"id":   palletID,
	})
	if err != nil {
		return "", fmt.Errorf("marshal qr payload: %w", err)
	}
	png, err := qrcode.Encode(string(payload), qrcode.Medium, qrImageSize)
	if err != nil {
		return "", fmt.Errorf("render qr image: %w", err)
	}

	object := fmt.Sprintf("pallets/%s/qr-%s.png", palletID, strings.ToLower(s.idGen()))
	if err := s.artifacts.Put(ctx, object, "image/png", png); err != nil {
		return "", fmt.Errorf("store qr image: %w", err)
	}
	if err := s.pallets.SetQRObject(ctx, palletID, object); err != nil {
		return "", fmt.Errorf("record qr object: %w", err)
	}
	return object, nil
}

// generateCode builds the default human-readable pallet label
// PLT-YYYYMMDD-XXXX.
func (s *palletService) generateCode(now time.Time) string {
	id := s.idGen()
	suffix := "0000"
	if len(id) >= 4 {
		suffix = strings.ToUpper(id[len(id)-4:])
	}
	return fmt.Sprintf("PLT-%s-%s", now.Format("20060102"), suffix)
}

// mergeItems folds the supplied entries into base, accumulating duplicates by
// product and dropping non-positive quantities.
func mergeItems(base, extra []domain.PalletItem) []domain.PalletItem {
	merged := make([]domain.PalletItem, 0, len(base)+len(extra))
	index := make(map[string]int)
	for _, item := range base {
		index[item.ProductID] = len(merged)
		merged = append(merged, item)
	}
	for _, item := range extra {
		if item.Quantity <= 0 || strings.TrimSpace(item.ProductID) == "" {
			continue
		}
		if i, ok := index[item.ProductID]; ok {
			merged[i].Quantity += item.Quantity
			continue
		}
		index[item.ProductID] = len(merged)
		merged = append(merged, item)
	}
	return merged
}
