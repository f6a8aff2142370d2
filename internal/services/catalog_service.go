package services

import (
	"context"
	"errors"

	"github.com/stockyard/api/internal/repositories"
)

// CatalogServiceDeps bundles collaborators for catalog read access.
type CatalogServiceDeps struct {
	Products   repositories.ProductRepository
	Warehouses repositories.WarehouseRepository
}

type catalogService struct {
	products   repositories.ProductRepository
	warehouses repositories.WarehouseRepository
}

// NewCatalogService constructs the catalog read service.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Products == nil {
		return nil, errors.New("catalog service: product repository is required")
	}
	if deps.Warehouses == nil {
		return nil, errors.New("catalog service: warehouse repository is required")
	}
	return &catalogService{
		products:   deps.Products,
		warehouses: deps.Warehouses,
	}, nil
}

func (s *catalogService) ListProducts(ctx context.Context) ([]Product, error) {
	return s.products.List(ctx)
}

func (s *catalogService) ListWarehouses(ctx context.Context) ([]Warehouse, error) {
	return s.warehouses.List(ctx)
}
