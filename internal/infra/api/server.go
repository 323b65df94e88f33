package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"orafinite-billing/internal/infra/esewa"
	"orafinite-billing/internal/usecase"
)

// Pinger is a dependency checked by /health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators of the HTTP layer.
type Deps struct {
	Payments       usecase.PaymentUseCase
	Callbacks      usecase.CallbackUseCase
	Subscriptions  usecase.SubscriptionUseCase
	Sessions       *Sessions
	Gateway        esewa.Config // redirect targets are built from its base URL
	Checks         map[string]Pinger
	RequestTimeout time.Duration
	Logger         *zerolog.Logger
}

// Server exposes payment initiation, gateway redirects and the billing read model.
type Server struct {
	payments      usecase.PaymentUseCase
	callbacks     usecase.CallbackUseCase
	subscriptions usecase.SubscriptionUseCase
	sessions      *Sessions
	gateway       esewa.Config
	checks        map[string]Pinger
	timeout       time.Duration
	validate      *validator.Validate
	log           *zerolog.Logger
}

func NewServer(d Deps) *Server {
	if d.RequestTimeout <= 0 {
		d.RequestTimeout = 15 * time.Second
	}
	l := d.Logger.With().Str("component", "HTTPServer").Logger()
	return &Server{
		payments:      d.Payments,
		callbacks:     d.Callbacks,
		subscriptions: d.Subscriptions,
		sessions:      d.Sessions,
		gateway:       d.Gateway,
		checks:        d.Checks,
		timeout:       d.RequestTimeout,
		validate:      newValidator(),
		log:           &l,
	}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(TraceID(), Recover(s.log), RequestLog(s.log))

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(Timeout(s.timeout), s.sessions.Attach())

		r.Get(esewa.VerifyPath, s.handleVerify)
		r.Get(esewa.FailurePath, s.handleFailure)

		r.Group(func(r chi.Router) {
			r.Use(Require())
			r.Post("/api/payments/esewa/initiate", s.handleInitiate)
			r.Get("/api/billing/subscription", s.handleSubscription)
			r.Get("/api/billing/payments", s.handlePayments)
		})
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	out := map[string]string{"status": "ok"}
	for name, c := range s.checks {
		if err := c.Ping(ctx); err != nil {
			s.log.Warn().Err(err).Str("dependency", name).Msg("health check failed")
			out[name] = "down"
			out["status"] = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		out[name] = "up"
	}
	writeJSON(w, status, out)
}
