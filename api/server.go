// Package api exposes the intent producer and read endpoints over HTTP, for
// web stores and other services that request payments on a player's behalf.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/holiman/uint256"

	"github.com/vitwit/wrldpay"
	"github.com/vitwit/wrldpay/listener"
	"github.com/vitwit/wrldpay/logger"
	"github.com/vitwit/wrldpay/types"
)

// Engine is the subset of *wrldpay.Service the API drives.
type Engine interface {
	RequestPayment(wrldpay.PaymentRequest) (types.PaymentIntent, error)
	RequestPeerPayment(wrldpay.PeerPaymentRequest) (types.PeerToPeerIntent, error)
	CancelPayment(ref *uint256.Int, network types.Network) error
	PendingPayments() []types.PaymentIntent
	PendingPeerPayments() []types.PeerToPeerIntent
	Wallets(id types.Identity) []types.Wallet
	ListenerStates() []listener.Status
}

// Server encapsulates dependencies for the HTTP API.
type Server struct {
	engine   Engine
	logger   logger.Logger
	validate *validator.Validate
	router   *chi.Mux
}

func New(engine Engine, log logger.Logger) *Server {
	if log == nil {
		log = logger.NoopLogger{}
	}
	s := &Server{
		engine:   engine,
		logger:   log,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	s.router = s.buildRouter()
	return s
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Mount adds extra handlers, e.g. /metrics, next to the API routes.
func (s *Server) Mount(pattern string, h http.Handler) {
	s.router.Handle(pattern, h)
}

func (s *Server) buildRouter() *chi.Mux {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", s.Health)
	r.Route("/v1", func(v1 chi.Router) {
		v1.Post("/payments", s.CreatePayment)
		v1.Get("/payments", s.ListPayments)
		v1.Delete("/payments/{network}/{ref}", s.CancelPayment)
		v1.Post("/peer-payments", s.CreatePeerPayment)
		v1.Get("/players/{id}/wallets", s.PlayerWallets)
		v1.Get("/listeners", s.Listeners)
	})
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request", map[string]any{
			"method":    r.Method,
			"path":      r.URL.Path,
			"status":    ww.Status(),
			"duration":  time.Since(start).String(),
			"requestId": chimw.GetReqID(r.Context()),
		})
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	var we *types.WrldError
	if !errors.As(err, &we) {
		we = &types.WrldError{Code: "INTERNAL", Message: err.Error()}
	}
	writeJSON(w, statusFor(we.Code), we)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, &types.WrldError{Code: types.ErrInvalidIntent, Message: msg})
}

func statusFor(code string) int {
	switch code {
	case types.ErrInvalidIntent, types.ErrUnsupportedNetwork:
		return http.StatusBadRequest
	case types.ErrDuplicateIntent:
		return http.StatusConflict
	case types.ErrNotFound:
		return http.StatusNotFound
	case types.ErrTransport:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
