package unleashed

import (
	"encoding/json"
	"fmt"
)

// The upstream API is not consistent about its response envelope across
// endpoints and versions. A page may arrive as a bare array, or as an object
// whose items live under one of several casing variants, with an optional
// nested pagination block. Each accepted shape is probed in a fixed order
// rather than trusting any single variant.

var itemKeysByEndpoint = map[Endpoint][]string{
	EndpointProducts:   {"Items", "items", "Products", "products"},
	EndpointWarehouses: {"Items", "items", "Warehouses", "warehouses"},
}

var paginationPaths = [][2]string{
	{"Pagination", "NumberOfPages"},
	{"pagination", "numberOfPages"},
	{"Pagination", "TotalPages"},
	{"pagination", "totalPages"},
}

func normalizePage(endpoint Endpoint, body []byte) (Page, error) {
	var envelope any
	if err := json.Unmarshal(body, &envelope); err != nil {
		return Page{}, fmt.Errorf("unleashed: decode response: %w", err)
	}

	switch v := envelope.(type) {
	case nil:
		return Page{}, nil
	case []any:
		return Page{Records: toRecords(v)}, nil
	case map[string]any:
		page := Page{TotalPages: pageCountHint(v)}
		for _, key := range itemKeysByEndpoint[endpoint] {
			if items, ok := v[key].([]any); ok {
				page.Records = toRecords(items)
				break
			}
		}
		return page, nil
	default:
		return Page{}, fmt.Errorf("unleashed: unexpected envelope type %T", envelope)
	}
}

func toRecords(items []any) []RawRecord {
	records := make([]RawRecord, 0, len(items))
	for _, item := range items {
		if record, ok := item.(map[string]any); ok {
			records = append(records, RawRecord(record))
		}
	}
	return records
}

func pageCountHint(envelope map[string]any) int {
	for _, path := range paginationPaths {
		block, ok := envelope[path[0]].(map[string]any)
		if !ok {
			continue
		}
		if count, ok := block[path[1]].(float64); ok && count > 0 {
			return int(count)
		}
	}
	return 0
}
