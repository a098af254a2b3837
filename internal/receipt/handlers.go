package receipt

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/zombor/receipt-vault/internal/validation"
)

// maxUploadSize covers high resolution phone photos
const maxUploadSize = int64(50 << 20)

// corsError writes an error response with CORS headers set
func corsError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	http.Error(w, message, code)
}

// jsonError writes {"error": message} with CORS headers set
func jsonError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// writeJSON encodes v as the response body
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// receiptResponse pairs a receipt with the report produced for it
type receiptResponse struct {
	Receipt    *Receipt          `json:"receipt"`
	Validation validation.Report `json:"validation"`
}

// handleIndex serves the HTML interface
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(indexHTML)
}

// parseFloatParam returns nil when the parameter is absent or not a number
func parseFloatParam(r *http.Request, name string) *float64 {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil
	}
	return &v
}

// handleListReceipts returns the receipts matching the query filters
func (s *Server) handleListReceipts(w http.ResponseWriter, r *http.Request) {
	query := ReceiptQuery{
		BillID:   r.URL.Query().Get("bill_id"),
		Vendor:   r.URL.Query().Get("vendor"),
		Category: r.URL.Query().Get("category"),
		Subtotal: parseFloatParam(r, "subtotal"),
		Amount:   parseFloatParam(r, "amount"),
		Tax:      parseFloatParam(r, "tax"),
	}

	receipts, err := s.service.SearchReceipts(query)
	if err != nil {
		slog.Error("Error listing receipts", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, receipts)
}

// contentTypeFor guesses a MIME type from the file extension
func contentTypeFor(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	default:
		return "application/octet-stream"
	}
}

// handleUploadReceipt scans, validates and stores an uploaded receipt
func (s *Server) handleUploadReceipt(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			jsonError(w, "File is too large. Maximum size is 50MB. Please compress or resize your image.", http.StatusBadRequest)
			return
		}
		jsonError(w, "Error parsing form", http.StatusBadRequest)
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		slog.Error("Error getting file from form", "error", err)
		if errors.Is(err, http.ErrMissingFile) {
			jsonError(w, "No file was selected. Please choose a file to upload.", http.StatusBadRequest)
			return
		}
		jsonError(w, "No file provided", http.StatusBadRequest)
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		jsonError(w, "Error reading file. Please try again.", http.StatusInternalServerError)
		return
	}

	contentType := strings.ToLower(strings.TrimSpace(header.Header.Get("Content-Type")))
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = contentTypeFor(header.Filename)
	}

	receipt, report, err := s.service.ProcessReceipt(header.Filename, data, contentType)
	if errors.Is(err, ErrDuplicateReceipt) {
		jsonError(w, err.Error(), http.StatusConflict)
		return
	}
	if err != nil {
		slog.Error("Error processing receipt", "filename", header.Filename, "error", err)
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusCreated, receiptResponse{Receipt: receipt, Validation: report})
}

// handleGetReceipt returns a single receipt
func (s *Server) handleGetReceipt(w http.ResponseWriter, r *http.Request) {
	receipt, err := s.service.GetReceipt(r.PathValue("id"))
	if err != nil {
		s.receiptError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, receipt)
}

// receiptError maps service errors for a single receipt to a status code
func (s *Server) receiptError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrReceiptNotFound) {
		corsError(w, "Receipt not found", http.StatusNotFound)
		return
	}
	slog.Error("Error loading receipt", "error", err)
	corsError(w, "Internal server error", http.StatusInternalServerError)
}

// handleValidateStoredReceipt re-runs validation on a stored receipt
func (s *Server) handleValidateStoredReceipt(w http.ResponseWriter, r *http.Request) {
	receipt, report, err := s.service.ValidateStoredReceipt(r.PathValue("id"))
	if err != nil {
		s.receiptError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, receiptResponse{Receipt: receipt, Validation: report})
}

// handleValidateRecord validates a posted record without storing it
func (s *Server) handleValidateRecord(w http.ResponseWriter, r *http.Request) {
	var record validation.Record
	if err := json.NewDecoder(r.Body).Decode(&record); err != nil {
		jsonError(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	skip, _ := strconv.ParseBool(r.URL.Query().Get("skip_duplicate"))
	writeJSON(w, http.StatusOK, s.service.ValidateRecord(record, skip))
}

// handleGetReceiptFile returns the file for a receipt
func (s *Server) handleGetReceiptFile(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := s.service.GetReceiptFile(r.PathValue("id"))
	if err != nil {
		corsError(w, "File not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

// handleDeleteReceipt deletes a receipt
func (s *Server) handleDeleteReceipt(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteReceipt(r.PathValue("id")); err != nil {
		if errors.Is(err, ErrReceiptNotFound) {
			corsError(w, "Receipt not found", http.StatusNotFound)
			return
		}
		slog.Error("Error deleting receipt", "error", err)
		corsError(w, "Error deleting receipt", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleSummary returns the dashboard metrics
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.service.Summary()
	if err != nil {
		slog.Error("Error building summary", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, summary)
}

func attachment(w http.ResponseWriter, contentType, filename string) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
}

// sendExport renders the whole export before writing any headers
func sendExport(w http.ResponseWriter, contentType, filename string, render func(io.Writer) error) {
	var buf bytes.Buffer
	if err := render(&buf); err != nil {
		slog.Error("Error exporting receipts", "filename", filename, "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	attachment(w, contentType, filename)
	w.Write(buf.Bytes())
}

// handleExportCSV downloads every receipt as CSV
func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	sendExport(w, "text/csv", "receipts.csv", s.service.ExportCSV)
}

// handleExportJSON downloads every receipt as a JSON array
func (s *Server) handleExportJSON(w http.ResponseWriter, r *http.Request) {
	receipts, err := s.service.ListReceipts()
	if err != nil {
		slog.Error("Error listing receipts", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	attachment(w, "application/json", "receipts.json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(receipts); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// handleExportPDF downloads the PDF report
func (s *Server) handleExportPDF(w http.ResponseWriter, r *http.Request) {
	sendExport(w, "application/pdf", "receipt_report.pdf", s.service.ExportPDF)
}
