// Package api serves the CRM over HTTP.
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/tailorreach/internal/auth"
	"github.com/sells-group/tailorreach/internal/drafting"
	"github.com/sells-group/tailorreach/internal/onboarding"
	"github.com/sells-group/tailorreach/internal/scoring"
	"github.com/sells-group/tailorreach/internal/store"
)

// Deps are the services the API fronts.
type Deps struct {
	Store       store.Store
	Scoring     *scoring.Service
	Drafter     *drafting.Drafter
	Onboarding  *onboarding.Service
	Verifier    auth.Verifier
	Breakers    func() map[string]string
	CORSOrigins []string
}

// Server holds the HTTP handlers.
type Server struct {
	Deps
}

// New creates a Server.
func New(d Deps) *Server {
	return &Server{Deps: d}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(accessLog)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", s.health)

	r.Route("/api", func(r chi.Router) {
		r.Use(auth.Middleware(s.Verifier, writeError))

		// These accept the token in the body as well as the header.
		r.Post("/analyze-customer-interest", s.analyzeProduct)
		r.Post("/analyze-customer-interest-cam", s.analyzeCampaign)

		r.Group(func(r chi.Router) {
			r.Use(auth.Require(writeError))

			r.Post("/generate-message", s.generateMessage)
			r.Post("/generate-messages", s.generateMessages)
			r.Post("/messages/send", s.sendMessages)

			r.Post("/analyze-style", s.analyzeStyle)
			r.Post("/chat", s.chat)
			r.Post("/save-user-data", s.saveUserData)
			r.Get("/onboarding", s.onboardingStatus)

			r.Route("/customers", func(r chi.Router) {
				r.Get("/", s.listCustomers)
				r.Post("/", s.createCustomer)
				r.Get("/{id}", s.getCustomer)
				r.Put("/{id}", s.updateCustomer)
				r.Delete("/{id}", s.deleteCustomer)
			})
			r.Route("/products", func(r chi.Router) {
				r.Get("/", s.listProducts)
				r.Post("/", s.createProduct)
				r.Get("/{id}", s.getProduct)
				r.Put("/{id}", s.updateProduct)
				r.Delete("/{id}", s.deleteProduct)
				r.Post("/{id}/likeestimate", s.productEstimate)
			})
			r.Route("/campaigns", func(r chi.Router) {
				r.Get("/", s.listCampaigns)
				r.Post("/", s.createCampaign)
				r.Get("/{uid}", s.getCampaign)
				r.Put("/{uid}", s.updateCampaign)
				r.Delete("/{uid}", s.deleteCampaign)
				r.Post("/{uid}/likeestimate", s.campaignEstimate)
			})

			r.Get("/activities", s.listActivities)
			r.Patch("/activities/{id}", s.updateActivity)
			r.Get("/runs", s.listRuns)
			r.Get("/dashboard", s.dashboard)
			r.Get("/search", s.search)
		})
	})
	return r
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	body := map[string]any{"status": "ok"}
	if s.Breakers != nil {
		body["breakers"] = s.Breakers()
	}
	writeJSON(w, http.StatusOK, body)
}

// accessLog logs one line per request.
func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

// tenant returns the verified tenant; routes behind auth.Require always have one.
func tenant(r *http.Request) string {
	id, _ := auth.TenantFrom(r.Context())
	return id
}

// queryLimit reads ?limit=, returning 0 (no limit) when absent.
func queryLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errBadRequestf("limit must be a non-negative integer")
	}
	return n, nil
}
