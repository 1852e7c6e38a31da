// Package gateway drives the payment-gated job lifecycle: invoice
// issuance, settlement verification, and at-most-once dispatch to the
// downstream provider.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/you/paygate/internal/dispatch"
	"github.com/you/paygate/internal/domain"
	"github.com/you/paygate/internal/lnurl"
	"github.com/you/paygate/internal/metrics"
	"github.com/you/paygate/internal/pricing"
	"github.com/you/paygate/internal/storage"
)

// Lightning is the slice of the LNURL client the gateway needs.
type Lightning interface {
	FetchParams(ctx context.Context, address string) (*lnurl.PayParams, error)
	RequestInvoice(ctx context.Context, callback string, msats int64, expiry time.Duration) (*lnurl.InvoiceResult, error)
	Verify(ctx context.Context, verifyURL string) (*lnurl.VerifyResult, error)
}

type Config struct {
	LightningAddress string
	Endpoint         string
	ProfitMarginPct  float64
	InvoiceExpiry    time.Duration
	DispatchTimeout  time.Duration
}

type Service struct {
	store  storage.Store
	ln     Lightning
	rates  pricing.RateSource
	reg    *dispatch.Registry
	cfg    Config
	log    *zap.Logger
	decode func(pr string) (string, error)
}

// Option tweaks a Service; used by tests to stub the bolt11 decoder.
type Option func(*Service)

func WithDecoder(fn func(pr string) (string, error)) Option {
	return func(s *Service) { s.decode = fn }
}

func New(store storage.Store, ln Lightning, rates pricing.RateSource, reg *dispatch.Registry, cfg Config, log *zap.Logger, opts ...Option) *Service {
	s := &Service{
		store:  store,
		ln:     ln,
		rates:  rates,
		reg:    reg,
		cfg:    cfg,
		log:    log,
		decode: lnurl.DecodePaymentHash,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IssueInvoice prices the service at the current BTC/USD rate, obtains a
// fresh invoice from the Lightning address, and persists a new UNPAID
// job keyed by the invoice's payment hash. Every call issues a fresh
// invoice; there is no idempotency across calls.
func (s *Service) IssueInvoice(ctx context.Context, service string, requestData json.RawMessage) (*domain.Job, error) {
	entry, err := s.reg.Lookup(service)
	if err != nil {
		return nil, err
	}

	rate, err := s.rates.BTCUSD(ctx)
	if err != nil {
		return nil, err
	}
	msats, err := pricing.PriceToMillisats(entry.PriceUSD, rate, s.cfg.ProfitMarginPct)
	if err != nil {
		return nil, err
	}

	params, err := s.ln.FetchParams(ctx, s.cfg.LightningAddress)
	if err != nil {
		return nil, err
	}
	if msats < params.MinSendable || msats > params.MaxSendable {
		return nil, errors.Wrapf(domain.ErrPriceOutOfRange,
			"%d msat not in [%d, %d]", msats, params.MinSendable, params.MaxSendable)
	}

	inv, err := s.ln.RequestInvoice(ctx, params.Callback, msats, s.cfg.InvoiceExpiry)
	if err != nil {
		return nil, err
	}
	hash, err := s.decode(inv.PR)
	if err != nil {
		return nil, err
	}

	job := &domain.Job{
		PaymentHash: hash,
		Service:     service,
		State:       domain.Unpaid,
		PriceMsat:   msats,
		Invoice: domain.Invoice{
			PaymentRequest: inv.PR,
			VerifyURL:      inv.Verify,
			SuccessAction: domain.SuccessAction{
				Tag:         "url",
				URL:         fmt.Sprintf("%s/%s/%s/get_result", s.cfg.Endpoint, service, hash),
				Description: "Collect your result here once the invoice is paid.",
			},
		},
		RequestData: requestData,
	}
	if err := s.store.Insert(ctx, job); err != nil {
		return nil, err
	}

	metrics.InvoicesIssued.WithLabelValues(service).Inc()
	s.log.Info("invoice issued",
		zap.String("service", service),
		zap.String("payment_hash", hash),
		zap.Int64("price_msat", msats))
	return job, nil
}

// CheckPayment reports settlement for a payment hash. Once a job is
// settled the flag is served from the store and the verify endpoint is
// never consulted again.
func (s *Service) CheckPayment(ctx context.Context, hash string) (*domain.Job, error) {
	job, err := s.store.GetByPaymentHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	if job.Settled {
		return job, nil
	}

	v, err := s.ln.Verify(ctx, job.Invoice.VerifyURL)
	if err != nil {
		return nil, err
	}
	if !v.Settled {
		return job, nil
	}

	if err := s.store.MarkSettled(ctx, hash); err != nil {
		return nil, err
	}
	job.Settled = true
	metrics.PaymentsSettled.WithLabelValues(job.Service).Inc()
	s.log.Info("payment settled",
		zap.String("service", job.Service), zap.String("payment_hash", hash))
	return job, nil
}
