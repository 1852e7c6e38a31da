// Package server exposes the gateway over HTTP.
package server

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/you/paygate/internal/domain"
	"github.com/you/paygate/internal/gateway"
	"github.com/you/paygate/internal/metrics"
)

type Server struct {
	gw  *gateway.Service
	log *zap.Logger
}

func New(gw *gateway.Service, log *zap.Logger) http.Handler {
	s := &Server{gw: gw, log: log}

	rtr := chi.NewRouter()
	rtr.Use(middleware.Recoverer)
	rtr.Use(s.requestLogger)

	rtr.Get("/health", s.health)
	rtr.Method(http.MethodGet, "/metrics",
		promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	rtr.Post("/{service}", s.createJob)
	rtr.Get("/{service}/{paymentHash}/get_result", s.getResult)
	rtr.Get("/{service}/{paymentHash}/check_payment", s.checkPayment)

	return rtr
}

func (s *Server) createJob(w http.ResponseWriter, r *http.Request) {
	service := chi.URLParam(r, "service")

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		s.writeError(w, errors.Wrap(err, "read request body"))
		return
	}
	if len(body) == 0 {
		body = []byte("{}")
	}

	job, err := s.gw.IssueInvoice(r.Context(), service, body)
	if err != nil {
		s.writeError(w, err)
		return
	}

	// 402: the job exists but is gated on payment.
	writeJSON(w, http.StatusPaymentRequired, map[string]any{
		"paymentHash":   job.PaymentHash,
		"pr":            job.Invoice.PaymentRequest,
		"verify":        job.Invoice.VerifyURL,
		"successAction": job.Invoice.SuccessAction,
		"price":         job.PriceMsat,
	})
}

func (s *Server) getResult(w http.ResponseWriter, r *http.Request) {
	service := chi.URLParam(r, "service")
	hash := chi.URLParam(r, "paymentHash")

	outcome, err := s.gw.PollResult(r.Context(), service, hash)
	if err != nil {
		s.writeError(w, err)
		return
	}

	switch outcome.Phase {
	case gateway.PhaseUnpaid:
		writeJSON(w, http.StatusPaymentRequired, map[string]any{
			"status": "payment required",
			"pr":     outcome.Job.Invoice.PaymentRequest,
		})
	case gateway.PhaseWorking:
		writeJSON(w, http.StatusAccepted, map[string]any{"status": "working"})
	case gateway.PhaseDone:
		writeRaw(w, http.StatusOK, outcome.Job.RequestResponse)
	case gateway.PhaseError:
		writeRaw(w, http.StatusBadGateway, outcome.Job.RequestResponse)
	}
}

func (s *Server) checkPayment(w http.ResponseWriter, r *http.Request) {
	hash := chi.URLParam(r, "paymentHash")

	job, err := s.gw.CheckPayment(r.Context(), hash)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"invoice": job.Invoice,
		"isPaid":  job.Settled,
	})
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrJobNotFound), errors.Is(err, domain.ErrUnknownService):
		status = http.StatusNotFound
	}
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)))
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeRaw(w http.ResponseWriter, status int, body json.RawMessage) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
