package pos_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"regexp"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
	"github.com/shopspring/decimal"

	"github.com/zombor/pos-tracker/internal/exchange"
	"github.com/zombor/pos-tracker/internal/pos"
	"github.com/zombor/pos-tracker/internal/scanning"
)

// cannedModel answers with a fixed completion per image
type cannedModel struct {
	completions map[string]string
}

func (m *cannedModel) Generate(ctx context.Context, prompt string, img scanning.Image) (string, error) {
	text, ok := m.completions[string(img.Data)]
	if !ok {
		return "", errors.New("unexpected image")
	}
	return text, nil
}

func (m *cannedModel) Close() error {
	return nil
}

func pngOfSize(w, h int) []byte {
	var buf bytes.Buffer
	Expect(png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h)))).To(Succeed())
	return buf.Bytes()
}

var _ = Describe("Integration", func() {
	var (
		db             *pos.BoltDB
		store          *pos.LocalStorage
		storagePath    string
		apiServer      *ghttp.Server
		exchangeServer *ghttp.Server
		itemsPNG       []byte
		paymentPNG     []byte
		billPNG        []byte
	)

	BeforeEach(func() {
		tempDir := GinkgoT().TempDir()
		storagePath = filepath.Join(tempDir, "bills")

		var err error
		db, err = pos.NewBoltDB(filepath.Join(tempDir, "test.db"))
		Expect(err).NotTo(HaveOccurred())
		store, err = pos.NewLocalStorage(storagePath)
		Expect(err).NotTo(HaveOccurred())

		itemsPNG = pngOfSize(1, 1)
		paymentPNG = pngOfSize(2, 1)
		billPNG = pngOfSize(1, 2)

		model := &cannedModel{completions: map[string]string{
			string(itemsPNG): "```json\n" +
				`{"date": "2026-02-04", "totalAmount": 500, "items": [{"name": "Tea", "quantity": 10, "price": 50}], "paymentMethod": "Cash"}` +
				"\n```",
			string(paymentPNG): `{"date": "", "totalAmount": 500, "items": [], "paymentMethod": "UPI"}`,
			string(billPNG): `Here is the bill: {"vendor_name": "Fresh Dairy", "bill_date": "2026/02/04", "total_amount": 120,
				"tax_amount": null, "currency": "inr", "payment_mode": "Cash", "expense_category": "Raw Material",
				"source_document_required": false}`,
		}}

		exchangeServer = ghttp.NewServer()
		rates := exchange.NewFetcher(exchangeServer.URL()+"/v6", "test-key", time.Second)

		service := pos.NewService(db, scanning.NewExtractor(model, time.Second), store, rates, pos.Options{})
		server := pos.NewServer(service, pos.BasicAuth{})

		apiServer = ghttp.NewServer()
		apiRoutes := regexp.MustCompile(`^/api/`)
		for _, method := range []string{http.MethodGet, http.MethodPost} {
			apiServer.RouteToHandler(method, apiRoutes, server.Handler().ServeHTTP)
		}
		DeferCleanup(func() {
			apiServer.Close()
			exchangeServer.Close()
			db.Close()
		})
	})

	postJSON := func(path string, body any) *http.Response {
		data, err := json.Marshal(body)
		Expect(err).NotTo(HaveOccurred())
		resp, err := http.Post(apiServer.URL()+path, "application/json", bytes.NewReader(data))
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(resp.Body.Close)
		return resp
	}

	postFiles := func(path string, files map[string][]byte) *http.Response {
		body := &bytes.Buffer{}
		writer := multipart.NewWriter(body)
		for field, content := range files {
			part, err := writer.CreateFormFile(field, field+".png")
			Expect(err).NotTo(HaveOccurred())
			_, err = part.Write(content)
			Expect(err).NotTo(HaveOccurred())
		}
		Expect(writer.Close()).To(Succeed())

		resp, err := http.Post(apiServer.URL()+path, writer.FormDataContentType(), body)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(resp.Body.Close)
		return resp
	}

	get := func(path string) *http.Response {
		resp, err := http.Get(apiServer.URL() + path)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(resp.Body.Close)
		return resp
	}

	decode := func(resp *http.Response, v any) {
		Expect(json.NewDecoder(resp.Body).Decode(v)).To(Succeed())
	}

	It("registers an outlet, records a scanned day of sales and approves a bill", func() {
		exchangeServer.AppendHandlers(ghttp.CombineHandlers(
			ghttp.VerifyRequest("GET", "/v6/test-key/pair/USD/INR"),
			ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{
				"result":          "success",
				"conversion_rate": 83.5,
			}),
		))

		// --- Register the outlet ---
		resp := postJSON("/api/outlets", map[string]string{
			"name":     "Chai Point",
			"location": "MG Road",
			"country":  "India",
		})
		Expect(resp.StatusCode).To(Equal(http.StatusCreated))
		var outlet pos.Outlet
		decode(resp, &outlet)
		Expect(outlet.Currency).To(Equal("INR"))
		Expect(outlet.BaseExchangeRate.Equal(decimal.RequireFromString("83.5"))).To(BeTrue())

		// --- Scan the items and payment documents ---
		resp = postFiles("/api/outlets/"+outlet.ID+"/sales/scan", map[string][]byte{
			"items":   itemsPNG,
			"payment": paymentPNG,
		})
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		var scan struct {
			Draft           map[string]string `json:"draft"`
			ConfidenceScore float64           `json:"confidence_score"`
		}
		decode(resp, &scan)
		Expect(scan.Draft).To(HaveKeyWithValue("date", "2026-02-04"))
		Expect(scan.Draft).To(HaveKeyWithValue("totalSales", "500"))
		Expect(scan.Draft).To(HaveKeyWithValue("upi", "500"))
		Expect(scan.ConfidenceScore).To(Equal(0.92))

		// --- Submit the reviewed draft ---
		resp = postJSON("/api/outlets/"+outlet.ID+"/sales", map[string]any{
			"draft":            scan.Draft,
			"source":           "ai",
			"confidence_score": scan.ConfidenceScore,
		})
		Expect(resp.StatusCode).To(Equal(http.StatusCreated))

		entries, err := db.ListSalesEntries(outlet.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(entries).To(HaveLen(1))
		Expect(entries[0].UPI.Equal(decimal.NewFromInt(500))).To(BeTrue())

		// --- Upload and approve a vendor bill ---
		resp = postFiles("/api/outlets/"+outlet.ID+"/bills", map[string][]byte{"file": billPNG})
		Expect(resp.StatusCode).To(Equal(http.StatusCreated))
		var bill pos.Bill
		decode(resp, &bill)
		Expect(bill.VendorName).To(Equal("Fresh Dairy"))
		Expect(bill.BillDate).To(Equal("2026-02-04"))
		Expect(bill.Currency).To(Equal("INR"))
		Expect(bill.PaymentMode).To(Equal(scanning.PaymentCash))
		Expect(bill.ExpenseCategory).To(Equal(scanning.CategoryRawMaterial))
		Expect(bill.ConfidenceScore).To(Equal(0.92))
		Expect(filepath.Join(storagePath, bill.Filename)).To(BeAnExistingFile())

		resp = get("/api/bills/" + bill.ID + "/file")
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(resp.Header.Get("Content-Type")).To(Equal("image/png"))

		resp = postJSON("/api/bills/"+bill.ID+"/approve", map[string]string{})
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		// --- The dashboard reflects both ---
		resp = get("/api/outlets/" + outlet.ID + "/dashboard?period=daily&date=2026-02-04")
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		var dash pos.Dashboard
		decode(resp, &dash)
		Expect(dash.TotalSales.Value.Equal(decimal.NewFromInt(500))).To(BeTrue())
		Expect(dash.TotalExpenses.Value.Equal(decimal.NewFromInt(120))).To(BeTrue())
		Expect(dash.NetProfit.Value.Equal(decimal.NewFromInt(380))).To(BeTrue())
	})

	It("falls back to a rate of 1 when the exchange service fails", func() {
		exchangeServer.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusOK, map[string]any{
			"result":     "error",
			"error-type": "invalid-key",
		}))

		resp := postJSON("/api/outlets", map[string]string{
			"name":     "Tea Stall",
			"location": "Station Road",
			"country":  "JP",
		})
		Expect(resp.StatusCode).To(Equal(http.StatusCreated))
		var outlet pos.Outlet
		decode(resp, &outlet)
		Expect(outlet.Currency).To(Equal("JPY"))
		Expect(outlet.BaseExchangeRate.Equal(decimal.NewFromInt(1))).To(BeTrue())
	})

	It("refuses a sales entry whose breakdown does not add up", func() {
		exchangeServer.AppendHandlers(ghttp.RespondWith(http.StatusInternalServerError, ""))
		resp := postJSON("/api/outlets", map[string]string{"name": "A", "location": "B", "country": "India"})
		var outlet pos.Outlet
		decode(resp, &outlet)

		resp = postJSON("/api/outlets/"+outlet.ID+"/sales", map[string]any{
			"draft": map[string]string{"date": "2026-02-04", "totalSales": "1000", "cash": "400", "upi": "300", "card": "250"},
		})
		Expect(resp.StatusCode).To(Equal(http.StatusUnprocessableEntity))

		entries, err := db.ListSalesEntries(outlet.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(entries).To(BeEmpty())
	})
})
