package services

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/stockyard/api/internal/domain"
	"github.com/stockyard/api/internal/repositories"
)

// ErrImportSchema indicates the CSV header is missing a required column. The
// whole import is rejected before any row is written.
var ErrImportSchema = errors.New("csv import: missing required column")

// CSVImportServiceDeps bundles collaborators for the CSV import service.
type CSVImportServiceDeps struct {
	Products repositories.ProductRepository
	Logger   *zap.Logger
}

type csvImportService struct {
	products repositories.ProductRepository
	logger   *zap.Logger
}

// NewCSVImportService constructs a service that feeds CSV rows through the
// catalog upsert core.
func NewCSVImportService(deps CSVImportServiceDeps) (CatalogImportService, error) {
	if deps.Products == nil {
		return nil, errors.New("csv import service: product repository is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &csvImportService{
		products: deps.Products,
		logger:   logger.Named("csv_import"),
	}, nil
}

// csvColumns holds the resolved header positions of the recognised columns.
type csvColumns struct {
	code  int
	name  int
	price int // -1 when absent
}

func (s *csvImportService) ImportProducts(ctx context.Context, r io.Reader) (ImportResult, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return ImportResult{}, fmt.Errorf("%w: empty file", ErrImportSchema)
		}
		return ImportResult{}, fmt.Errorf("read csv header: %w", err)
	}

	columns, err := resolveColumns(header)
	if err != nil {
		return ImportResult{}, err
	}

	var result ImportResult
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return ImportResult{}, fmt.Errorf("read csv row: %w", err)
		}

		code := strings.TrimSpace(cell(row, columns.code))
		if code == "" {
			continue
		}
		name := strings.TrimSpace(cell(row, columns.name))
		if name == "" {
			name = code
		}

		product := domain.Product{Code: code, Name: name}
		if columns.price >= 0 {
			if price, ok := parsePriceCell(cell(row, columns.price)); ok {
				product.Price = &price
			}
		}

		upserted, err := s.products.Upsert(ctx, product)
		if err != nil {
			return ImportResult{}, fmt.Errorf("upsert row %q: %w", code, err)
		}
		result.Rows++
		if upserted.Updated {
			result.Updated++
		} else {
			result.Inserted++
		}
	}

	s.logger.Info("csv import finished",
		zap.Int("rows", result.Rows),
		zap.Int("inserted", result.Inserted),
		zap.Int("updated", result.Updated))
	return result, nil
}

// resolveColumns matches recognised headers case-insensitively. "product
// code" and "product description" match by substring; bare "code" and "name"
// match exactly so that unrelated columns like "barcode" are not picked up.
func resolveColumns(header []string) (csvColumns, error) {
	columns := csvColumns{code: -1, name: -1, price: -1}
	for i, raw := range header {
		h := strings.ToLower(strings.TrimSpace(raw))
		switch {
		case columns.code < 0 && (strings.Contains(h, "product code") || h == "code"):
			columns.code = i
		case columns.name < 0 && (strings.Contains(h, "product description") || h == "name"):
			columns.name = i
		case columns.price < 0 && strings.Contains(h, "price"):
			columns.price = i
		}
	}
	if columns.code < 0 {
		return csvColumns{}, fmt.Errorf("%w: product code", ErrImportSchema)
	}
	if columns.name < 0 {
		return csvColumns{}, fmt.Errorf("%w: product description", ErrImportSchema)
	}
	return columns, nil
}

func cell(row []string, index int) string {
	if index < 0 || index >= len(row) {
		return ""
	}
	return row[index]
}

// parsePriceCell strips currency symbols and grouping before parsing.
func parsePriceCell(raw string) (float64, bool) {
	var b strings.Builder
	for _, r := range strings.TrimSpace(raw) {
		if (r >= '0' && r <= '9') || r == '.' || r == '-' {
			b.WriteRune(r)
		}
	}
	cleaned := b.String()
	if cleaned == "" {
		return 0, false
	}
	price, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return price, true
}
