package scanning

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/zombor/receipt-vault/internal/validation"
)

// alternateDateLayouts are rewritten to YYYY-MM-DD when a model ignores the prompt
var alternateDateLayouts = []string{
	"2006/01/02",
	"01/02/2006",
	"02-01-2006",
}

// stripCodeFence removes the markdown fences models like to wrap JSON in
func stripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

// parseReceiptJSON decodes a model response into a record
func parseReceiptJSON(text string) (*validation.Record, error) {
	text = stripCodeFence(text)

	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return nil, fmt.Errorf("no JSON object found in response")
	}

	endIdx := strings.LastIndex(text, "}")
	if endIdx == -1 || endIdx < startIdx {
		return nil, fmt.Errorf("invalid JSON object in response")
	}

	text = text[startIdx : endIdx+1]

	var record validation.Record
	if err := json.Unmarshal([]byte(text), &record); err != nil {
		return nil, fmt.Errorf("unmarshaling json: %w", err)
	}

	record.BillID = trimField(record.BillID)
	record.Vendor = trimField(record.Vendor)
	record.Category = trimField(record.Category)
	record.Date = normalizeDate(trimField(record.Date))

	return &record, nil
}

// trimField trims surrounding whitespace from string values
func trimField(f validation.Field) validation.Field {
	if s, ok := f.Value().(string); ok {
		return validation.NewField(strings.TrimSpace(s))
	}
	return f
}

// normalizeDate rewrites dates in a known alternate layout to YYYY-MM-DD.
// Anything else is returned untouched so validation can flag it.
func normalizeDate(f validation.Field) validation.Field {
	s, ok := f.Value().(string)
	if !ok {
		return f
	}
	if _, err := time.Parse("2006-01-02", s); err == nil {
		return f
	}
	for _, layout := range alternateDateLayouts {
		if d, err := time.Parse(layout, s); err == nil {
			return validation.NewField(d.Format("2006-01-02"))
		}
	}
	return f
}
