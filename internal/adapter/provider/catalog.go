package provider

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/niksmo/pricesync/internal/core/domain"
)

type pricelistResponse struct {
	Data json.RawMessage `json:"data"`
}

// providerFailure is the object the provider puts into "data" instead of
// the price list when it rejects a request.
type providerFailure struct {
	RC      string `json:"rc"`
	Message string `json:"message"`
}

// decodeCatalog fails closed: a missing or non-array "data" is a schema
// mismatch, while an empty array is a legitimately empty catalog.
func decodeCatalog(raw []byte, skuField string) ([]domain.ProductRecord, error) {
	var resp pricelistResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("%w: response is not a JSON object: %w",
			domain.ErrSchemaMismatch, err)
	}

	data := bytes.TrimSpace(resp.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, fmt.Errorf("%w: field \"data\" is missing", domain.ErrSchemaMismatch)
	}

	if data[0] != '[' {
		var pf providerFailure
		if data[0] == '{' && json.Unmarshal(data, &pf) == nil && pf.Message != "" {
			return nil, fmt.Errorf("%w: field \"data\" is not an array: provider rc=%q message=%q",
				domain.ErrSchemaMismatch, pf.RC, pf.Message)
		}
		return nil, fmt.Errorf("%w: field \"data\" is not an array", domain.ErrSchemaMismatch)
	}

	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrSchemaMismatch, err)
	}

	records := make([]domain.ProductRecord, 0, len(items))
	index := make(map[string]int, len(items))
	for i, item := range items {
		var attrs map[string]any
		if err := json.Unmarshal(item, &attrs); err != nil || attrs == nil {
			return nil, fmt.Errorf("%w: element %d is not an object",
				domain.ErrSchemaMismatch, i)
		}

		sku, ok := attrs[skuField].(string)
		if !ok || sku == "" {
			return nil, fmt.Errorf("%w: element %d has no %q",
				domain.ErrSchemaMismatch, i, skuField)
		}

		r := domain.ProductRecord{SKU: sku, Attributes: attrs}
		if pos, dup := index[sku]; dup {
			records[pos] = r
			continue
		}
		index[sku] = len(records)
		records = append(records, r)
	}
	return records, nil
}
