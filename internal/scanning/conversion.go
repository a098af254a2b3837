package scanning

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	"image/png"
	"strings"

	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
)

// receiptScanPrompt is the shared prompt used by all LLM providers for scanning receipts
const receiptScanPrompt = `You are analyzing a receipt or bill. Carefully read all text in the image and extract the following information:

1. **Bill ID**: The bill number, invoice number or receipt number printed on the document. Copy it exactly.

2. **Vendor**: The merchant, store or business name, usually the largest text at the top.

3. **Category**: One short spending category such as "Groceries", "Dining", "Fuel", "Pharmacy", "Electronics" or "Utilities".

4. **Date**: The transaction date converted to YYYY-MM-DD.

5. **Subtotal**: The amount before tax, if printed.

6. **Tax**: The total tax charged (GST, VAT, sales tax). Use 0 if the receipt shows no tax.

7. **Amount**: The final total or amount due, including tax.

8. **Items**: Each purchased line with its name, quantity and price.

Return ONLY valid JSON in this exact format:
{
  "bill_id": "INV-1234",
  "vendor": "Store Name",
  "category": "Groceries",
  "date": "YYYY-MM-DD",
  "subtotal": 0.00,
  "tax": 0.00,
  "amount": 0.00,
  "items": [{"name": "Item", "quantity": 1, "price": 0.00}]
}

Important:
- Amounts must be numbers (not strings) without currency symbols
- If you cannot find a field, use null for that field
- Do not include any text before or after the JSON
- Do not use markdown code blocks`

// sourceFormat is the kind of upload handed to a scanner
type sourceFormat int

const (
	formatPNG sourceFormat = iota
	formatPDF
	formatHEIC
	formatOther
)

// heicBrands are the ftyp brands written by HEIC/HEIF encoders
var heicBrands = map[string]bool{"heic": true, "heix": true, "heif": true, "mif1": true, "msf1": true}

// detectFormat looks at the MIME type first and then at magic bytes,
// since phones often upload HEIC with a generic content type
func detectFormat(data []byte, mimeType string) sourceFormat {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	switch {
	case mimeType == "application/pdf" || bytes.HasPrefix(data, []byte("%PDF-")):
		return formatPDF
	case strings.Contains(mimeType, "heic") || strings.Contains(mimeType, "heif"):
		return formatHEIC
	case len(data) >= 12 && string(data[4:8]) == "ftyp" && heicBrands[string(data[8:12])]:
		return formatHEIC
	case mimeType == "image/png":
		return formatPNG
	default:
		return formatOther
	}
}

// renderPDF renders the first page of a PDF; receipts are single page
func renderPDF(pdfData []byte) (image.Image, error) {
	doc, err := fitz.NewFromMemory(pdfData)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	img, err := doc.ImageDPI(0, 300)
	if err != nil {
		return nil, fmt.Errorf("rendering PDF page: %w", err)
	}
	return img, nil
}

// decodeImage decodes HEIC with the pure Go decoder and everything else
// through the registered stdlib decoders
func decodeImage(data []byte, format sourceFormat) (image.Image, error) {
	if format == formatHEIC {
		img, err := heic.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decoding HEIC/HEIF image: %w", err)
		}
		return img, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if errors.Is(err, image.ErrFormat) {
		return nil, fmt.Errorf("unsupported image format (supported: JPEG, PNG, GIF, HEIC, HEIF, PDF): %w", err)
	}
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	return img, nil
}

// prepareImageData converts an upload to PNG so every provider sees one format
func prepareImageData(data []byte, contentType string) ([]byte, error) {
	format := detectFormat(data, contentType)
	if format == formatPNG {
		return data, nil
	}

	var (
		img image.Image
		err error
	)
	if format == formatPDF {
		img, err = renderPDF(data)
	} else {
		img, err = decodeImage(data, format)
	}
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}
