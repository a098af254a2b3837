package validation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cast"
)

// Field holds one loosely-typed value from an extracted receipt.
// The zero value is a missing field.
type Field struct {
	value any
	set   bool
}

// NewField wraps v. A nil v produces a missing field.
func NewField(v any) Field {
	if v == nil {
		return Field{}
	}
	return Field{value: v, set: true}
}

// Missing reports whether the field was absent or null
func (f Field) Missing() bool {
	return !f.set
}

// Value returns the raw decoded value, or nil when missing
func (f Field) Value() any {
	return f.value
}

// String renders the raw value the way it was received
func (f Field) String() string {
	if !f.set {
		return ""
	}
	if s, ok := f.value.(string); ok {
		return s
	}
	return fmt.Sprint(f.value)
}

// UnmarshalJSON keeps whatever JSON type was sent; numbers stay json.Number
func (f *Field) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*f = Field{}
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("decoding field: %w", err)
	}
	*f = NewField(v)
	return nil
}

// MarshalJSON writes the raw value back, or null when missing
func (f Field) MarshalJSON() ([]byte, error) {
	if !f.set {
		return []byte("null"), nil
	}
	return json.Marshal(f.value)
}

// ParseOrDefault converts a field to float64. Missing fields and anything
// that does not parse as a number yield def.
func ParseOrDefault(f Field, def float64) float64 {
	if !f.set {
		return def
	}
	v := f.value
	if s, ok := v.(string); ok {
		v = strings.TrimSpace(s)
	}
	n, err := cast.ToFloat64E(v)
	if err != nil {
		return def
	}
	return n
}

// Record is a receipt as extracted from a scan or supplied by a caller.
// Nothing is enforced on construction; Validate checks it after the fact.
type Record struct {
	BillID   Field `json:"bill_id"`
	Vendor   Field `json:"vendor"`
	Category Field `json:"category"`
	Date     Field `json:"date"`
	Subtotal Field `json:"subtotal"`
	Amount   Field `json:"amount"`
	Tax      Field `json:"tax"`

	// Items is carried along untouched
	Items json.RawMessage `json:"items,omitempty"`
}

// requiredFields lists the fields that must be present, in report order
func (r Record) requiredFields() []namedField {
	return []namedField{
		{"bill_id", r.BillID},
		{"vendor", r.Vendor},
		{"date", r.Date},
		{"amount", r.Amount},
		{"tax", r.Tax},
	}
}

type namedField struct {
	name  string
	field Field
}
