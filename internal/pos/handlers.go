package pos

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/zombor/pos-tracker/internal/sales"
	"github.com/zombor/pos-tracker/internal/scanning"
)

// maxUploadSize bounds multipart forms; high-resolution phone photos are large
const maxUploadSize = int64(50 << 20)

const tooLargeMessage = "File is too large. Maximum size is 50MB. Please compress or resize your image."

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Idempotency-Key")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

func writeErrorMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeError maps service errors to a status code and a message fit for display
func writeError(w http.ResponseWriter, err error) {
	var verr *sales.ValidationError
	var ferr *FieldError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":      verr.Error(),
			"fields":     verr.Result.Errors,
			"validation": verr.Result,
		})
	case errors.As(err, &ferr):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":  ferr.Error(),
			"fields": ferr.Fields,
		})
	case errors.Is(err, ErrNotFound):
		writeErrorMessage(w, http.StatusNotFound, "Not found")
	case errors.Is(err, ErrAlreadyDecided):
		writeErrorMessage(w, http.StatusConflict, "This bill has already been approved or rejected")
	case errors.Is(err, ErrExtractionFailed):
		writeErrorMessage(w, http.StatusUnprocessableEntity, ErrExtractionFailed.Error())
	case errors.Is(err, ErrWriteTimeout):
		writeErrorMessage(w, http.StatusGatewayTimeout, ErrWriteTimeout.Error())
	default:
		slog.Error("Request failed", "error", err)
		writeErrorMessage(w, http.StatusInternalServerError, "Internal server error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// parseUploadForm parses a multipart form, answering 400 itself on failure
func parseUploadForm(w http.ResponseWriter, r *http.Request) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		message := "Error parsing form"
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			message = tooLargeMessage
		}
		writeErrorMessage(w, http.StatusBadRequest, message)
		return false
	}
	return true
}

type upload struct {
	filename    string
	data        []byte
	contentType string
}

// readUpload reads one file field of a parsed multipart form
func readUpload(w http.ResponseWriter, r *http.Request, field string) (*upload, bool) {
	f, header, err := r.FormFile(field)
	if err != nil {
		slog.Error("Error getting file from form", "field", field, "error", err)
		message := "No file provided"
		if errors.Is(err, http.ErrMissingFile) {
			message = "No file was selected for " + field + ". Please choose a file to upload."
		}
		writeErrorMessage(w, http.StatusBadRequest, message)
		return nil, false
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		writeErrorMessage(w, http.StatusInternalServerError, "Error reading file. Please try again.")
		return nil, false
	}

	return &upload{
		filename:    header.Filename,
		data:        data,
		contentType: uploadContentType(header),
	}, true
}

// uploadContentType takes the part's declared type, falling back to the file extension
func uploadContentType(header *multipart.FileHeader) string {
	contentType := strings.ToLower(strings.TrimSpace(header.Header.Get("Content-Type")))
	if contentType != "" && contentType != "application/octet-stream" {
		return contentType
	}
	switch strings.ToLower(filepath.Ext(header.Filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
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

func (s *Server) handleListCountries(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Countries)
}

func (s *Server) handleListOutlets(w http.ResponseWriter, r *http.Request) {
	outlets, err := s.service.ListOutlets()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outlets)
}

func (s *Server) handleRegisterOutlet(w http.ResponseWriter, r *http.Request) {
	var req OutletRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.RequestID == "" {
		req.RequestID = r.Header.Get("Idempotency-Key")
	}

	outlet, err := s.service.RegisterOutlet(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, outlet)
}

func (s *Server) handleGetOutlet(w http.ResponseWriter, r *http.Request) {
	outlet, err := s.service.GetOutlet(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outlet)
}

// scanFailure is the body returned when a sales document could not be read
type scanFailure struct {
	Error string `json:"error"`
	sales.Reconciliation
}

func (s *Server) handleScanSales(w http.ResponseWriter, r *http.Request) {
	if !parseUploadForm(w, r) {
		return
	}
	items, ok := readUpload(w, r, "items")
	if !ok {
		return
	}
	payment, ok := readUpload(w, r, "payment")
	if !ok {
		return
	}

	result, err := s.service.ScanSalesDocuments(r.Context(), r.PathValue("id"),
		scanning.Image{Data: items.data, MIMEType: items.contentType},
		scanning.Image{Data: payment.data, MIMEType: payment.contentType},
		r.FormValue("date"),
	)
	if errors.Is(err, sales.ErrIncompleteExtraction) {
		writeJSON(w, http.StatusUnprocessableEntity, scanFailure{
			Error:          "Could not extract data from one or both documents. Ensure the images are clear, try again or enter the sales manually.",
			Reconciliation: result,
		})
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleListSales(w http.ResponseWriter, r *http.Request) {
	entries, err := s.service.ListSalesEntries(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleSubmitSales(w http.ResponseWriter, r *http.Request) {
	var sub SalesSubmission
	if !decodeJSON(w, r, &sub) {
		return
	}
	sub.Draft.Outlet = r.PathValue("id")
	if sub.RequestID == "" {
		sub.RequestID = r.Header.Get("Idempotency-Key")
	}

	entry, err := s.service.SubmitSalesEntry(r.Context(), sub)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	var asOf time.Time
	if date := r.URL.Query().Get("date"); date != "" {
		var err error
		if asOf, err = time.Parse(dateLayout, date); err != nil {
			writeError(w, fieldError("date", "Date must be in YYYY-MM-DD format"))
			return
		}
	}

	dashboard, err := s.service.Dashboard(r.PathValue("id"), Period(r.URL.Query().Get("period")), asOf)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dashboard)
}

func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	now := s.service.timeSource.Now()
	year, month := now.Year(), int(now.Month())

	q := r.URL.Query()
	if v := q.Get("year"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, fieldError("year", "Year must be a number"))
			return
		}
		year = n
	}
	if v := q.Get("month"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, fieldError("month", "Month must be a number"))
			return
		}
		month = n
	}

	days, err := s.service.Calendar(r.PathValue("id"), year, time.Month(month))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, days)
}

func (s *Server) handleDayDetails(w http.ResponseWriter, r *http.Request) {
	details, err := s.service.DayDetails(r.PathValue("id"), r.PathValue("date"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

func (s *Server) handleListBills(w http.ResponseWriter, r *http.Request) {
	status := BillStatus(r.URL.Query().Get("status"))
	switch status {
	case "", BillPending, BillApproved, BillRejected:
	default:
		writeError(w, fieldError("status", "Status must be pending, approved or rejected"))
		return
	}

	bills, err := s.service.ListBills(r.PathValue("id"), BillFilter{Status: status})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bills)
}

func (s *Server) handleUploadBill(w http.ResponseWriter, r *http.Request) {
	if !parseUploadForm(w, r) {
		return
	}
	file, ok := readUpload(w, r, "file")
	if !ok {
		return
	}

	bill, err := s.service.UploadBill(r.Context(), BillUpload{
		OutletID:       r.PathValue("id"),
		Filename:       file.filename,
		Data:           file.data,
		ContentType:    file.contentType,
		UploadedByRole: r.FormValue("role"),
	})
	if err != nil {
		slog.Error("Error processing bill", "filename", file.filename, "error", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, bill)
}

func (s *Server) handleVendorStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.service.VendorStats(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleGetBill(w http.ResponseWriter, r *http.Request) {
	bill, err := s.service.GetBill(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bill)
}

func (s *Server) handleGetBillFile(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := s.service.GetBillFile(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}

	setCORSHeaders(w)
	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

func (s *Server) handleUpdateBill(w http.ResponseWriter, r *http.Request) {
	var edit scanning.ExtractedBill
	if !decodeJSON(w, r, &edit) {
		return
	}

	bill, err := s.service.UpdateBill(r.Context(), r.PathValue("id"), edit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bill)
}

func (s *Server) handleApproveBill(w http.ResponseWriter, r *http.Request) {
	bill, err := s.service.ApproveBill(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bill)
}

func (s *Server) handleRejectBill(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	bill, err := s.service.RejectBill(r.Context(), r.PathValue("id"), req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bill)
}
