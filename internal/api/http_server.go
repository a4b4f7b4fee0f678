package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"detailbook/internal/config"
	"detailbook/internal/domain"
	"detailbook/internal/schedule"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
)

// Services bundles what the HTTP layer calls into.
type Services struct {
	Slots    domain.SlotService
	Bookings domain.BookingService
	Catalog  domain.CatalogService
	Schedule domain.ScheduleService
	Payments domain.PaymentGateway // nil disables the payment routes
	Ready    func(ctx context.Context) error
}

// HTTPServer exposes the public booking API and the key-guarded admin API.
type HTTPServer struct {
	cfg     config.APIConfig
	svc     Services
	opts    schedule.Options
	auth    *HTTPAuth
	limiter *rateLimiter
	server  *http.Server
	logger  *zerolog.Logger
}

func NewHTTPServer(cfg config.APIConfig, svc Services, opts schedule.Options, logger *zerolog.Logger) *HTTPServer {
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}
	srv := &HTTPServer{
		cfg:     cfg,
		svc:     svc,
		opts:    opts,
		auth:    NewHTTPAuth(cfg.Auth),
		limiter: newRateLimiter(cfg.RateLimit),
		logger:  logger,
	}

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       seconds(cfg.HTTP.ReadTimeoutSec, 15),
		WriteTimeout:      seconds(cfg.HTTP.WriteTimeoutSec, 15),
	}
	return srv
}

func seconds(v, def int) time.Duration {
	if v <= 0 {
		v = def
	}
	return time.Duration(v) * time.Second
}

func (s *HTTPServer) routes() http.Handler {
	router := chi.NewRouter()
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORS.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", headerOrDefault(s.cfg.Auth.HeaderAPIKey), requestIDHeader},
		ExposedHeaders: []string{requestIDHeader},
		MaxAge:         s.cfg.CORS.MaxAge,
	}))
	router.Use(s.loggingMiddleware)

	router.Get("/healthz", s.handleHealth)
	router.Get("/readyz", s.handleReady)

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(s.rateLimitMiddleware)

		r.Get("/services", s.handleServices)
		r.Get("/availability", s.handleAvailability)

		r.Post("/bookings", s.handleCreateBooking)
		r.Get("/bookings/{id}", s.handleGetBooking)
		r.Post("/bookings/{id}/cancel", s.handleCancelBooking)
		r.Post("/bookings/{id}/payment", s.handleStartPayment)

		r.Post("/payments/webhook", s.handlePaymentWebhook)

		r.Route("/admin", func(r chi.Router) {
			r.Use(s.auth.Middleware)
			r.Get("/unavailability", s.handleListUnavailability)
			r.Post("/unavailability", s.handleCreateUnavailability)
			r.Delete("/unavailability/{id}", s.handleDeleteUnavailability)
			r.Get("/bookings/export", s.handleExportBookings)
		})
	})

	return router
}

// Handler returns the fully wired router.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
