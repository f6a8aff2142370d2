package services

import (
	"errors"
	"testing"

	"github.com/stockyard/api/internal/unleashed"
)

func TestNormalizeProductFieldPrecedence(t *testing.T) {
	n := NewRecordNormalizer()

	product, err := n.NormalizeProduct(unleashed.RawRecord{
		"ProductCode":        "A1",
		"Code":               "ignored",
		"ProductDescription": "Widget",
		"Name":               "also ignored",
		"SellPriceTier1":     9.99,
		"Price":              1.0,
		"DefaultImageUrl":    "https://example.com/a1.png",
	})
	if err != nil {
		t.Fatalf("NormalizeProduct returned error: %v", err)
	}
	if product.Code != "A1" {
		t.Fatalf("code = %q, want A1", product.Code)
	}
	if product.Name != "Widget" {
		t.Fatalf("name = %q, want Widget", product.Name)
	}
	if product.Price == nil || *product.Price != 9.99 {
		t.Fatalf("price = %v, want 9.99", product.Price)
	}
	if product.ImageURL != "https://example.com/a1.png" {
		t.Fatalf("imageUrl = %q", product.ImageURL)
	}
}

func TestNormalizeProductMissingCode(t *testing.T) {
	n := NewRecordNormalizer()

	if _, err := n.NormalizeProduct(unleashed.RawRecord{"ProductCode": "   "}); !errors.Is(err, ErrMissingCode) {
		t.Fatalf("err = %v, want ErrMissingCode", err)
	}
	if _, err := n.NormalizeProduct(unleashed.RawRecord{"Name": "no code"}); !errors.Is(err, ErrMissingCode) {
		t.Fatalf("err = %v, want ErrMissingCode", err)
	}
}

func TestNormalizeProductNameDefaultsToCode(t *testing.T) {
	n := NewRecordNormalizer()

	product, err := n.NormalizeProduct(unleashed.RawRecord{"Code": "B2"})
	if err != nil {
		t.Fatalf("NormalizeProduct returned error: %v", err)
	}
	if product.Name != "B2" {
		t.Fatalf("name = %q, want code fallback B2", product.Name)
	}
	if product.Price != nil {
		t.Fatalf("price = %v, want nil", product.Price)
	}
}

func TestNormalizeProductPriceCoercion(t *testing.T) {
	n := NewRecordNormalizer()

	cases := []struct {
		name  string
		raw   any
		want  float64
		unset bool
	}{
		{name: "float", raw: 12.5, want: 12.5},
		{name: "numeric string", raw: " 7.25 ", want: 7.25},
		{name: "integer", raw: 3, want: 3},
		{name: "non-numeric string", raw: "n/a", unset: true},
		{name: "nil", raw: nil, unset: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			product, err := n.NormalizeProduct(unleashed.RawRecord{
				"Code":      "P",
				"SellPrice": tc.raw,
			})
			if err != nil {
				t.Fatalf("NormalizeProduct returned error: %v", err)
			}
			if tc.unset {
				if product.Price != nil {
					t.Fatalf("price = %v, want nil", *product.Price)
				}
				return
			}
			if product.Price == nil || *product.Price != tc.want {
				t.Fatalf("price = %v, want %v", product.Price, tc.want)
			}
		})
	}
}

func TestNormalizeProductStripsMarkup(t *testing.T) {
	n := NewRecordNormalizer()

	product, err := n.NormalizeProduct(unleashed.RawRecord{
		"Code":  "C3",
		"Name":  "Steel <b>Bolt</b>",
		"Notes": "<script>alert(1)</script>10mm thread",
	})
	if err != nil {
		t.Fatalf("NormalizeProduct returned error: %v", err)
	}
	if product.Name != "Steel Bolt" {
		t.Fatalf("name = %q, want markup stripped", product.Name)
	}
	if product.Description != "10mm thread" {
		t.Fatalf("description = %q, want script stripped", product.Description)
	}
}

func TestNormalizeWarehouse(t *testing.T) {
	n := NewRecordNormalizer()

	warehouse, err := n.NormalizeWarehouse(unleashed.RawRecord{
		"WarehouseCode": "W1",
		"WarehouseName": "Main",
		"IsDefault":     true,
	})
	if err != nil {
		t.Fatalf("NormalizeWarehouse returned error: %v", err)
	}
	if warehouse.Code != "W1" || warehouse.Name != "Main" || !warehouse.IsDefault {
		t.Fatalf("warehouse = %+v", warehouse)
	}
}

func TestNormalizeWarehouseLowercaseVariantsAndDefaults(t *testing.T) {
	n := NewRecordNormalizer()

	warehouse, err := n.NormalizeWarehouse(unleashed.RawRecord{"id": "W2"})
	if err != nil {
		t.Fatalf("NormalizeWarehouse returned error: %v", err)
	}
	if warehouse.Code != "W2" {
		t.Fatalf("code = %q, want W2", warehouse.Code)
	}
	if warehouse.Name != "W2" {
		t.Fatalf("name = %q, want code fallback", warehouse.Name)
	}
	if warehouse.IsDefault {
		t.Fatal("isDefault = true, want false when absent")
	}

	if _, err := n.NormalizeWarehouse(unleashed.RawRecord{"Name": "orphan"}); !errors.Is(err, ErrMissingCode) {
		t.Fatalf("err = %v, want ErrMissingCode", err)
	}
}
