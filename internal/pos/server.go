package pos

import (
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server handles HTTP requests for outlets, sales and bills
type Server struct {
	service   *Service
	basicAuth BasicAuth
	mux       *http.ServeMux
}

// BasicAuth holds basic authentication credentials
type BasicAuth struct {
	Username string
	Password string
}

// NewServer creates a new Server with default mux
func NewServer(service *Service, basicAuth BasicAuth) *Server {
	return NewServerWithMux(service, basicAuth, http.NewServeMux())
}

// NewServerWithMux creates a new Server with a custom mux for testing
func NewServerWithMux(service *Service, basicAuth BasicAuth, mux *http.ServeMux) *Server {
	s := &Server{
		service:   service,
		basicAuth: basicAuth,
		mux:       mux,
	}
	s.registerRoutes()
	return s
}

// authenticate checks basic auth credentials
func (s *Server) authenticate(r *http.Request) bool {
	if s.basicAuth.Username == "" && s.basicAuth.Password == "" {
		return true // No auth required if not configured
	}

	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Basic ") {
		return false
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(auth, "Basic "))
	if err != nil {
		return false
	}

	credentials := strings.SplitN(string(decoded), ":", 2)
	if len(credentials) != 2 {
		return false
	}

	return credentials[0] == s.basicAuth.Username && credentials[1] == s.basicAuth.Password
}

// corsMiddleware adds CORS headers and answers preflight requests
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireAuth middleware
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authenticate(r) {
			setCORSHeaders(w)
			w.Header().Set("WWW-Authenticate", `Basic realm="POS Tracker"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// registerRoutes registers all API routes on the server's mux
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /api/countries", s.requireAuth(s.handleListCountries))

	// Outlets and their sales, reports and bills
	s.mux.HandleFunc("GET /api/outlets", s.requireAuth(s.handleListOutlets))
	s.mux.HandleFunc("POST /api/outlets", s.requireAuth(s.handleRegisterOutlet))
	s.mux.HandleFunc("GET /api/outlets/{id}", s.requireAuth(s.handleGetOutlet))
	s.mux.HandleFunc("POST /api/outlets/{id}/sales/scan", s.requireAuth(s.handleScanSales))
	s.mux.HandleFunc("GET /api/outlets/{id}/sales", s.requireAuth(s.handleListSales))
	s.mux.HandleFunc("POST /api/outlets/{id}/sales", s.requireAuth(s.handleSubmitSales))
	s.mux.HandleFunc("GET /api/outlets/{id}/dashboard", s.requireAuth(s.handleDashboard))
	s.mux.HandleFunc("GET /api/outlets/{id}/calendar", s.requireAuth(s.handleCalendar))
	s.mux.HandleFunc("GET /api/outlets/{id}/calendar/{date}", s.requireAuth(s.handleDayDetails))
	s.mux.HandleFunc("GET /api/outlets/{id}/bills", s.requireAuth(s.handleListBills))
	s.mux.HandleFunc("POST /api/outlets/{id}/bills", s.requireAuth(s.handleUploadBill))
	s.mux.HandleFunc("GET /api/outlets/{id}/vendor-stats", s.requireAuth(s.handleVendorStats))

	// Bill review
	s.mux.HandleFunc("GET /api/bills/{id}/file", s.requireAuth(s.handleGetBillFile))
	s.mux.HandleFunc("POST /api/bills/{id}/approve", s.requireAuth(s.handleApproveBill))
	s.mux.HandleFunc("POST /api/bills/{id}/reject", s.requireAuth(s.handleRejectBill))
	s.mux.HandleFunc("GET /api/bills/{id}", s.requireAuth(s.handleGetBill))
	s.mux.HandleFunc("PUT /api/bills/{id}", s.requireAuth(s.handleUpdateBill))

	s.mux.Handle("GET /metrics", promhttp.Handler())
}

// Handler returns the mux wrapped with CORS handling
func (s *Server) Handler() http.Handler {
	return s.corsMiddleware(s.mux)
}

// Start starts the HTTP server
func (s *Server) Start(addr string) error {
	slog.Info("Starting server", "address", addr)
	return http.ListenAndServe(addr, s.Handler())
}

// ServeHTTP implements http.Handler for testing
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}
