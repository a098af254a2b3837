package receipt

import (
	"errors"
	"math"
	"strings"
	"time"

	"github.com/zombor/receipt-vault/internal/validation"
)

var (
	// ErrReceiptNotFound is returned when no receipt has the requested ID
	ErrReceiptNotFound = errors.New("receipt not found")

	// ErrDuplicateReceipt is returned when an upload repeats a stored bill id
	ErrDuplicateReceipt = errors.New("duplicate receipt")
)

// Receipt is a stored receipt: the extracted fields plus file and validation metadata
type Receipt struct {
	ID string `json:"id"`
	validation.Record
	Filename         string    `json:"filename"`
	ContentType      string    `json:"content_type"`
	ValidationPassed bool      `json:"validation_passed"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// TotalAmount returns the total charged, or zero when it does not parse
func (r *Receipt) TotalAmount() float64 {
	return validation.ParseOrDefault(r.Amount, 0)
}

// TaxAmount returns the tax charged, or zero when it does not parse
func (r *Receipt) TaxAmount() float64 {
	return validation.ParseOrDefault(r.Tax, 0)
}

// ReceiptQuery filters stored receipts. Zero values match everything.
type ReceiptQuery struct {
	BillID   string   // substring of the bill id
	Vendor   string   // case-insensitive substring of the vendor
	Category string   // case-insensitive category name
	Subtotal *float64 // exact subtotal; receipts without one never match
	Amount   *float64 // exact total
	Tax      *float64 // exact tax
}

// Matches reports whether r satisfies every filter set on q
func (q ReceiptQuery) Matches(r *Receipt) bool {
	if q.BillID != "" && !strings.Contains(r.BillID.String(), q.BillID) {
		return false
	}
	if q.Vendor != "" && !strings.Contains(strings.ToLower(r.Vendor.String()), strings.ToLower(q.Vendor)) {
		return false
	}
	if q.Category != "" && !strings.EqualFold(categoryName(r), q.Category) {
		return false
	}
	if q.Subtotal != nil && validation.ParseOrDefault(r.Subtotal, math.NaN()) != *q.Subtotal {
		return false
	}
	if q.Amount != nil && r.TotalAmount() != *q.Amount {
		return false
	}
	if q.Tax != nil && r.TaxAmount() != *q.Tax {
		return false
	}
	return true
}

func categoryName(r *Receipt) string {
	if name := strings.TrimSpace(r.Category.String()); name != "" {
		return name
	}
	return "Uncategorized"
}
