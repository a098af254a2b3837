package receipt_test

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"regexp"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/receipt-vault/internal/receipt"
	"github.com/zombor/receipt-vault/internal/validation"
)

// stubScanner returns a fixed record for every upload
type stubScanner struct {
	record validation.Record
}

func (s *stubScanner) ScanReceipt(imageData []byte, contentType string) (*validation.Record, error) {
	record := s.record
	return &record, nil
}

func (s *stubScanner) Close() error {
	return nil
}

var _ = Describe("Integration", func() {
	var (
		tempDir  string
		db       *receipt.BoltDB
		store    receipt.Storage
		scanner  *stubScanner
		ghServer *ghttp.Server
	)

	upload := func(filename string) *http.Response {
		body := &bytes.Buffer{}
		writer := multipart.NewWriter(body)
		part, err := writer.CreateFormFile("file", filename)
		Expect(err).NotTo(HaveOccurred())
		_, err = part.Write([]byte("%PDF-1.4 fake pdf content"))
		Expect(err).NotTo(HaveOccurred())
		Expect(writer.Close()).To(Succeed())

		resp, err := http.Post(ghServer.URL()+"/api/receipts", writer.FormDataContentType(), body)
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	BeforeEach(func() {
		tempDir = GinkgoT().TempDir()

		var err error
		db, err = receipt.NewBoltDB(filepath.Join(tempDir, "test.db"))
		Expect(err).NotTo(HaveOccurred())

		store, err = receipt.NewLocalStorage(filepath.Join(tempDir, "receipts"))
		Expect(err).NotTo(HaveOccurred())

		scanner = &stubScanner{
			record: validation.Record{
				BillID:   validation.NewField("TXN-42"),
				Vendor:   validation.NewField("Corner Pharmacy"),
				Category: validation.NewField("Health"),
				Date:     validation.NewField("2024-03-20"),
				Amount:   validation.NewField(1080.0),
				Tax:      validation.NewField(80.0),
			},
		}

		service := receipt.NewService(db, scanner, store)
		server := receipt.NewServer(service, receipt.BasicAuth{})

		ghServer = ghttp.NewServer()
		ghServer.RouteToHandler("GET", regexp.MustCompile(".*"), server.ServeHTTP)
		ghServer.RouteToHandler("POST", regexp.MustCompile(".*"), server.ServeHTTP)
	})

	AfterEach(func() {
		if ghServer != nil {
			ghServer.Close()
		}
		if db != nil {
			db.Close()
		}
	})

	It("should scan, validate and store an upload, then reject the same bill id", func() {
		resp := upload("receipt.pdf")
		Expect(resp.StatusCode).To(Equal(http.StatusCreated))

		var created struct {
			Receipt    receipt.Receipt   `json:"receipt"`
			Validation validation.Report `json:"validation"`
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		Expect(err).NotTo(HaveOccurred())
		Expect(json.Unmarshal(body, &created)).To(Succeed())

		Expect(created.Validation.Passed).To(BeTrue())
		taxCheck, ok := created.Validation.Check(validation.CheckTaxRate)
		Expect(ok).To(BeTrue())
		Expect(taxCheck.Pass).To(BeTrue())
		Expect(created.Receipt.ValidationPassed).To(BeTrue())
		Expect(created.Receipt.ContentType).To(Equal("application/pdf"))

		_, err = store.Get(created.Receipt.Filename)
		Expect(err).NotTo(HaveOccurred())

		saved, err := db.GetReceipt(created.Receipt.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(saved.Vendor.String()).To(Equal("Corner Pharmacy"))

		exists, err := db.ReceiptExists("TXN-42")
		Expect(err).NotTo(HaveOccurred())
		Expect(exists).To(BeTrue())

		resp = upload("again.pdf")
		resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusConflict))

		receipts, err := db.ListReceipts()
		Expect(err).NotTo(HaveOccurred())
		Expect(receipts).To(HaveLen(1))
	})

	It("should keep a receipt that fails validation and flag it", func() {
		scanner.record.Tax = validation.NewField(500.0)

		resp := upload("receipt.pdf")
		Expect(resp.StatusCode).To(Equal(http.StatusCreated))
		resp.Body.Close()

		summaryResp, err := http.Get(ghServer.URL() + "/api/summary")
		Expect(err).NotTo(HaveOccurred())
		defer summaryResp.Body.Close()

		var summary receipt.Summary
		Expect(json.NewDecoder(summaryResp.Body).Decode(&summary)).To(Succeed())
		Expect(summary.ReceiptCount).To(Equal(1))
		Expect(summary.FailedValidation).To(Equal(1))
		Expect(summary.ByCategory).To(HaveKeyWithValue("Health", 1080.0))
	})
})
