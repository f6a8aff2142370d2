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

const productCollection = "products"

// ProductRepository persists the product catalog in Firestore.
type ProductRepository struct {
	base *pfirestore.BaseRepository[productDocument]
}

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	return &ProductRepository{
		base: pfirestore.NewBaseRepository[productDocument](provider, productCollection),
	}, nil
}

// Upsert inserts the product or patches the existing document with the same code.
func (r *ProductRepository) Upsert(ctx context.Context, product domain.Product) (repositories.UpsertResult, error) {
	code := strings.TrimSpace(product.Code)
	if code == "" {
		return repositories.UpsertResult{}, errors.New("product code is required")
	}

	now := time.Now().UTC()
	existing, err := r.base.QueryOne(ctx, byCode(code))
	if err != nil {
		if errors.Is(err, pfirestore.ErrNoDocuments) {
			doc := fromDomainProduct(product)
			doc.CreatedAt = now
			doc.UpdatedAt = now
			id, _, err := r.base.Create(ctx, doc)
			if err != nil {
				return repositories.UpsertResult{}, err
			}
			return repositories.UpsertResult{ID: id}, nil
		}
		return repositories.UpsertResult{}, err
	}

	updates := []firestore.Update{
		{Path: "name", Value: product.Name},
		{Path: "price", Value: product.Price},
		{Path: "description", Value: product.Description},
		{Path: "imageUrl", Value: product.ImageURL},
		{Path: "updatedAt", Value: now},
	}
	if _, err := r.base.Update(ctx, existing.ID, updates); err != nil {
		return repositories.UpsertResult{}, err
	}
	return repositories.UpsertResult{ID: existing.ID, Updated: true}, nil
}

// FindByCode resolves a product by its unique code.
func (r *ProductRepository) FindByCode(ctx context.Context, code string) (domain.Product, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return domain.Product{}, repositories.ErrNotFound
	}

	doc, err := r.base.QueryOne(ctx, byCode(code))
	if err != nil {
		if errors.Is(err, pfirestore.ErrNoDocuments) {
			return domain.Product{}, repositories.ErrNotFound
		}
		return domain.Product{}, err
	}
	return toDomainProduct(doc), nil
}

// List returns the whole catalog, newest first.
func (r *ProductRepository) List(ctx context.Context) ([]domain.Product, error) {
	docs, err := r.base.Query(ctx, nil)
	if err != nil {
		return nil, err
	}

	products := make([]domain.Product, len(docs))
	for i, doc := range docs {
		products[i] = toDomainProduct(doc)
	}
	sort.Slice(products, func(i, j int) bool {
		return products[i].CreatedAt.After(products[j].CreatedAt)
	})
	return products, nil
}

func byCode(code string) pfirestore.QueryBuilder {
	return func(query firestore.Query) firestore.Query {
		return query.Where("code", "==", code)
	}
}

type productDocument struct {
	Code        string    `firestore:"code"`
	Name        string    `firestore:"name"`
	Price       *float64  `firestore:"price"`
	Description string    `firestore:"description"`
	ImageURL    string    `firestore:"imageUrl"`
	CreatedAt   time.Time `firestore:"createdAt"`
	UpdatedAt   time.Time `firestore:"updatedAt"`
}

func fromDomainProduct(product domain.Product) productDocument {
	return productDocument{
		Code:        strings.TrimSpace(product.Code),
		Name:        product.Name,
		Price:       product.Price,
		Description: product.Description,
		ImageURL:    product.ImageURL,
	}
}

func toDomainProduct(doc pfirestore.Document[productDocument]) domain.Product {
	product := domain.Product{
		ID:          doc.ID,
		Code:        doc.Data.Code,
		Name:        doc.Data.Name,
		Price:       doc.Data.Price,
		Description: doc.Data.Description,
		ImageURL:    doc.Data.ImageURL,
		CreatedAt:   doc.Data.CreatedAt,
		UpdatedAt:   doc.Data.UpdatedAt,
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = doc.CreateTime
	}
	if product.UpdatedAt.IsZero() {
		product.UpdatedAt = doc.UpdateTime
	}
	return product
}
