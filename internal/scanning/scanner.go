package scanning

import "github.com/zombor/receipt-vault/internal/validation"

// Scanner extracts receipt fields from an uploaded image or PDF
type Scanner interface {
	// ScanReceipt analyzes a receipt image/PDF and returns the extracted fields.
	// Fields the model could not read are left missing.
	ScanReceipt(imageData []byte, contentType string) (*validation.Record, error)
	// Close closes the scanner and releases resources
	Close() error
}
