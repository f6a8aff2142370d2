package services

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func newImportFixture(t *testing.T) (*memoryProductRepo, CatalogImportService) {
	t.Helper()
	products := newMemoryProductRepo()
	service, err := NewCSVImportService(CSVImportServiceDeps{Products: products})
	if err != nil {
		t.Fatalf("NewCSVImportService returned error: %v", err)
	}
	return products, service
}

func TestImportProductsInsertThenUpdate(t *testing.T) {
	products, service := newImportFixture(t)
	file := "Product Code,Product Description,Price\nA1,Widget,9.99\nA2,Gadget,\n"

	first, err := service.ImportProducts(context.Background(), strings.NewReader(file))
	if err != nil {
		t.Fatalf("first import returned error: %v", err)
	}
	if first.Inserted != 2 || first.Updated != 0 || first.Rows != 2 {
		t.Fatalf("first = %+v, want {inserted:2 updated:0 rows:2}", first)
	}

	widget := products.byCode["A1"]
	if widget.Name != "Widget" {
		t.Fatalf("A1 name = %q", widget.Name)
	}
	if widget.Price == nil || *widget.Price != 9.99 {
		t.Fatalf("A1 price = %v, want 9.99", widget.Price)
	}
	if gadget := products.byCode["A2"]; gadget.Price != nil {
		t.Fatalf("A2 price = %v, want nil for empty cell", *gadget.Price)
	}

	second, err := service.ImportProducts(context.Background(), strings.NewReader(file))
	if err != nil {
		t.Fatalf("second import returned error: %v", err)
	}
	if second.Inserted != 0 || second.Updated != 2 || second.Rows != 2 {
		t.Fatalf("second = %+v, want {inserted:0 updated:2 rows:2}", second)
	}
}

func TestImportProductsMissingRequiredColumn(t *testing.T) {
	products, service := newImportFixture(t)

	_, err := service.ImportProducts(context.Background(), strings.NewReader("SKU,Price\nA1,9.99\n"))
	if !errors.Is(err, ErrImportSchema) {
		t.Fatalf("err = %v, want ErrImportSchema", err)
	}
	if len(products.byCode) != 0 {
		t.Fatalf("catalog size = %d, want 0 rows written on schema error", len(products.byCode))
	}

	if _, err := service.ImportProducts(context.Background(), strings.NewReader("Product Code,Price\nA1,9.99\n")); !errors.Is(err, ErrImportSchema) {
		t.Fatalf("err = %v, want ErrImportSchema for missing name column", err)
	}
}

func TestImportProductsHeaderMatching(t *testing.T) {
	products, service := newImportFixture(t)
	file := "code,name,Unit Price (USD)\na1,Anvil,\"$1,299.50\"\n"

	result, err := service.ImportProducts(context.Background(), strings.NewReader(file))
	if err != nil {
		t.Fatalf("ImportProducts returned error: %v", err)
	}
	if result.Inserted != 1 {
		t.Fatalf("inserted = %d, want 1", result.Inserted)
	}
	anvil := products.byCode["a1"]
	if anvil.Price == nil || *anvil.Price != 1299.50 {
		t.Fatalf("price = %v, want currency symbols stripped to 1299.50", anvil.Price)
	}
}

func TestImportProductsSkipsEmptyCodeRows(t *testing.T) {
	_, service := newImportFixture(t)
	file := "Product Code,Product Description\nA1,Widget\n ,Phantom\n\nA2,Gadget\n"

	result, err := service.ImportProducts(context.Background(), strings.NewReader(file))
	if err != nil {
		t.Fatalf("ImportProducts returned error: %v", err)
	}
	if result.Rows != 2 || result.Inserted != 2 {
		t.Fatalf("result = %+v, want 2 rows with empty-code row skipped", result)
	}
}

func TestImportProductsEmptyFile(t *testing.T) {
	_, service := newImportFixture(t)

	if _, err := service.ImportProducts(context.Background(), strings.NewReader("")); !errors.Is(err, ErrImportSchema) {
		t.Fatalf("err = %v, want ErrImportSchema", err)
	}
}

func TestImportProductsQuotedFields(t *testing.T) {
	products, service := newImportFixture(t)
	file := "Product Code,Product Description\nA1,\"Widget, \"\"Deluxe\"\"\"\n"

	if _, err := service.ImportProducts(context.Background(), strings.NewReader(file)); err != nil {
		t.Fatalf("ImportProducts returned error: %v", err)
	}
	if got := products.byCode["A1"].Name; got != `Widget, "Deluxe"` {
		t.Fatalf("name = %q, want doubled quotes unescaped", got)
	}
}
