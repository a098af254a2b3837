package receipt

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/zombor/receipt-vault/internal/scanning"
	"github.com/zombor/receipt-vault/internal/validation"
)

// IDGenerator generates unique IDs for receipts
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// defaultIDGenerator generates IDs using UnixNano timestamp
type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return fmt.Sprintf("%d", time.Now().UnixNano())
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// DefaultCurrency labels amounts in exports when none is configured
const DefaultCurrency = "INR"

// Service handles receipt operations
type Service struct {
	db          DB
	scanner     scanning.Scanner
	storage     Storage
	validator   *validation.Validator
	idGenerator IDGenerator
	timeSource  TimeSource
	currency    string
}

// NewService creates a new Service with default ID generator and time source
func NewService(db DB, scanner scanning.Scanner, storage Storage) *Service {
	return NewServiceWithDeps(db, scanner, storage, &defaultIDGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, scanner scanning.Scanner, storage Storage, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:          db,
		scanner:     scanner,
		storage:     storage,
		validator:   validation.NewValidator(db),
		idGenerator: idGen,
		timeSource:  timeSrc,
		currency:    DefaultCurrency,
	}
}

// WithCurrency sets the currency code used in exported reports
func (s *Service) WithCurrency(code string) *Service {
	if code != "" {
		s.currency = code
	}
	return s
}

var (
	unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	repeatedSpaces      = regexp.MustCompile(`\s+`)
)

// sanitizeFilename strips special characters and truncates long phone filenames
func sanitizeFilename(filename string) string {
	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filename, ext)

	base = unsafeFilenameChars.ReplaceAllString(base, "")
	base = strings.TrimSpace(repeatedSpaces.ReplaceAllString(base, " "))

	const maxLen = 50
	if len(base) > maxLen {
		base = base[:maxLen]
	}
	if base == "" {
		base = "receipt"
	}

	return base + ext
}

// ProcessReceipt stores an upload, scans it and validates the extracted fields.
// A bill id that is already on file is rejected with ErrDuplicateReceipt and
// nothing is kept. Any other validation failure is still saved, flagged in
// ValidationPassed, so the receipt can be corrected and re-validated later.
func (s *Service) ProcessReceipt(filename string, data []byte, contentType string) (*Receipt, validation.Report, error) {
	id := s.idGenerator.Generate()
	now := s.timeSource.Now()

	savedPath, err := s.storage.Save(fmt.Sprintf("%s_%s", id, sanitizeFilename(filename)), data)
	if err != nil {
		return nil, validation.Report{}, fmt.Errorf("saving file: %w", err)
	}

	record, err := s.scanner.ScanReceipt(data, contentType)
	if err != nil {
		slog.Error("Failed to scan receipt",
			"filename", filename,
			"content_type", contentType,
			"file_size", len(data),
			"error", err,
		)
		s.removeFile(savedPath)
		return nil, validation.Report{}, fmt.Errorf("scanning receipt: %w", err)
	}

	if !record.BillID.Missing() {
		exists, err := s.db.ReceiptExists(record.BillID.String())
		if err != nil {
			s.removeFile(savedPath)
			return nil, validation.Report{}, fmt.Errorf("checking for duplicate: %w", err)
		}
		if exists {
			slog.Warn("Rejected duplicate receipt", "bill_id", record.BillID.String(), "filename", filename)
			s.removeFile(savedPath)
			return nil, validation.Report{}, fmt.Errorf("%w: bill id %s", ErrDuplicateReceipt, record.BillID.String())
		}
	}

	report := s.validator.Validate(*record, false)
	if !report.Passed {
		slog.Info("Receipt failed validation", "bill_id", record.BillID.String(), "failed", len(report.Failed()))
	}

	receipt := &Receipt{
		ID:               id,
		Record:           *record,
		Filename:         savedPath,
		ContentType:      contentType,
		ValidationPassed: report.Passed,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.db.SaveReceipt(receipt); err != nil {
		s.removeFile(savedPath)
		return nil, validation.Report{}, fmt.Errorf("saving receipt to database: %w", err)
	}

	return receipt, report, nil
}

func (s *Service) removeFile(path string) {
	if err := s.storage.Delete(path); err != nil {
		slog.Warn("Failed to delete file", "filename", path, "error", err)
	}
}

// ValidateRecord validates a record that is not necessarily stored
func (s *Service) ValidateRecord(record validation.Record, skipDuplicateCheck bool) validation.Report {
	return s.validator.Validate(record, skipDuplicateCheck)
}

// ValidateStoredReceipt re-validates a stored receipt. The duplicate check is
// skipped since the receipt would match its own bill id.
func (s *Service) ValidateStoredReceipt(id string) (*Receipt, validation.Report, error) {
	receipt, err := s.GetReceipt(id)
	if err != nil {
		return nil, validation.Report{}, err
	}

	report := s.validator.Validate(receipt.Record, true)
	if report.Passed != receipt.ValidationPassed {
		receipt.ValidationPassed = report.Passed
		receipt.UpdatedAt = s.timeSource.Now()
		if err := s.db.SaveReceipt(receipt); err != nil {
			return nil, validation.Report{}, fmt.Errorf("updating receipt: %w", err)
		}
	}

	return receipt, report, nil
}

// GetReceipt retrieves a receipt by ID
func (s *Service) GetReceipt(id string) (*Receipt, error) {
	receipt, err := s.db.GetReceipt(id)
	if err != nil {
		return nil, fmt.Errorf("getting receipt: %w", err)
	}
	return receipt, nil
}

// ListReceipts returns all receipts, newest receipt date first
func (s *Service) ListReceipts() ([]*Receipt, error) {
	return s.SearchReceipts(ReceiptQuery{})
}

// SearchReceipts returns the receipts matching q, newest receipt date first
func (s *Service) SearchReceipts(q ReceiptQuery) ([]*Receipt, error) {
	receipts, err := s.db.ListReceipts()
	if err != nil {
		return nil, fmt.Errorf("listing receipts: %w", err)
	}

	matched := make([]*Receipt, 0, len(receipts))
	for _, r := range receipts {
		if q.Matches(r) {
			matched = append(matched, r)
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		di, dj := matched[i].Date.String(), matched[j].Date.String()
		if di != dj {
			return di > dj
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	return matched, nil
}

// DeleteReceipt removes a receipt and its file
func (s *Service) DeleteReceipt(id string) error {
	receipt, err := s.db.GetReceipt(id)
	if err != nil {
		return fmt.Errorf("getting receipt for deletion: %w", err)
	}

	// A missing file should not keep the record around
	s.removeFile(receipt.Filename)

	if err := s.db.DeleteReceipt(id); err != nil {
		return fmt.Errorf("deleting receipt from database: %w", err)
	}
	return nil
}

// GetReceiptFile retrieves the file data for a receipt
func (s *Service) GetReceiptFile(id string) ([]byte, string, error) {
	receipt, err := s.db.GetReceipt(id)
	if err != nil {
		return nil, "", fmt.Errorf("getting receipt: %w", err)
	}

	data, err := s.storage.Get(receipt.Filename)
	if err != nil {
		return nil, "", fmt.Errorf("getting receipt file: %w", err)
	}

	return data, receipt.ContentType, nil
}

// Summary aggregates every stored receipt
func (s *Service) Summary() (Summary, error) {
	receipts, err := s.db.ListReceipts()
	if err != nil {
		return Summary{}, fmt.Errorf("listing receipts: %w", err)
	}
	return Summarize(receipts), nil
}
