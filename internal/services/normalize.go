package services

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/stockyard/api/internal/domain"
	"github.com/stockyard/api/internal/unleashed"
)

// ErrMissingCode indicates a raw record carries no usable code and cannot be
// upserted.
var ErrMissingCode = errors.New("normalize: record has no code")

// Candidate field names per canonical field, evaluated left to right. The
// upstream API is inconsistent about casing and naming across endpoints and
// versions, so each canonical field probes an ordered list.
var (
	productCodeFields  = []string{"ProductCode", "Code", "code"}
	productNameFields  = []string{"ProductDescription", "Description", "Name"}
	productPriceFields = []string{"SellPriceTier1", "SellPrice", "RetailPrice", "Price"}
	productDescFields  = []string{"Notes", "Description", "ProductDescription"}
	productImageFields = []string{"DefaultImageUrl", "ImageUrl"}

	warehouseCodeFields = []string{"WarehouseCode", "warehouseCode", "Code", "code", "Id", "id"}
	warehouseNameFields = []string{"WarehouseName", "warehouseName", "Name", "name"}
	warehouseDescFields = []string{"Description", "description"}
	warehouseDefFields  = []string{"IsDefault", "isDefault"}
)

// RecordNormalizer maps raw upstream records into canonical catalog entities.
// Free-text fields sourced from upstream are stripped of markup before they
// are stored.
type RecordNormalizer struct {
	sanitizer *bluemonday.Policy
}

// NewRecordNormalizer constructs a normalizer with a strict sanitation policy.
func NewRecordNormalizer() *RecordNormalizer {
	return &RecordNormalizer{sanitizer: bluemonday.StrictPolicy()}
}

// NormalizeProduct maps one raw product record to a canonical product.
// Records without a code return ErrMissingCode.
func (n *RecordNormalizer) NormalizeProduct(record unleashed.RawRecord) (domain.Product, error) {
	code, ok := firstString(record, productCodeFields)
	if !ok {
		return domain.Product{}, ErrMissingCode
	}

	name, ok := firstString(record, productNameFields)
	if !ok {
		name = code
	}

	product := domain.Product{
		Code: code,
		Name: n.clean(name),
	}
	if price, ok := firstNumber(record, productPriceFields); ok {
		product.Price = &price
	}
	if desc, ok := firstString(record, productDescFields); ok {
		product.Description = n.clean(desc)
	}
	if image, ok := firstString(record, productImageFields); ok {
		product.ImageURL = image
	}
	return product, nil
}

// NormalizeWarehouse maps one raw warehouse record to a canonical warehouse.
// Records without a code return ErrMissingCode.
func (n *RecordNormalizer) NormalizeWarehouse(record unleashed.RawRecord) (domain.Warehouse, error) {
	code, ok := firstString(record, warehouseCodeFields)
	if !ok {
		return domain.Warehouse{}, ErrMissingCode
	}

	name, ok := firstString(record, warehouseNameFields)
	if !ok {
		name = code
	}

	warehouse := domain.Warehouse{
		Code: code,
		Name: n.clean(name),
	}
	if desc, ok := firstString(record, warehouseDescFields); ok {
		warehouse.Description = n.clean(desc)
	}
	warehouse.IsDefault = firstBool(record, warehouseDefFields)
	return warehouse, nil
}

func (n *RecordNormalizer) clean(value string) string {
	if n == nil || n.sanitizer == nil {
		return value
	}
	return strings.TrimSpace(n.sanitizer.Sanitize(value))
}

// firstString returns the first candidate field whose value is a non-empty
// string after trimming.
func firstString(record unleashed.RawRecord, fields []string) (string, bool) {
	for _, field := range fields {
		raw, ok := record[field]
		if !ok {
			continue
		}
		value, ok := raw.(string)
		if !ok {
			continue
		}
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed, true
		}
	}
	return "", false
}

// firstNumber returns the first candidate field coercible to a finite number.
// Numeric strings are accepted because the upstream API is inconsistent about
// serializing prices.
func firstNumber(record unleashed.RawRecord, fields []string) (float64, bool) {
	for _, field := range fields {
		raw, ok := record[field]
		if !ok || raw == nil {
			continue
		}
		if value, ok := coerceNumber(raw); ok {
			return value, true
		}
	}
	return 0, false
}

func coerceNumber(raw any) (float64, bool) {
	var value float64
	switch v := raw.(type) {
	case float64:
		value = v
	case float32:
		value = float64(v)
	case int:
		value = float64(v)
	case int64:
		value = float64(v)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		value = parsed
	default:
		return 0, false
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, false
	}
	return value, true
}

func firstBool(record unleashed.RawRecord, fields []string) bool {
	for _, field := range fields {
		raw, ok := record[field]
		if !ok {
			continue
		}
		if value, ok := raw.(bool); ok {
			return value
		}
	}
	return false
}
