package gateway

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/you/paygate/internal/dispatch"
	"github.com/you/paygate/internal/domain"
	"github.com/you/paygate/internal/metrics"
)

type Phase int

const (
	PhaseUnpaid Phase = iota
	PhaseWorking
	PhaseDone
	PhaseError
)

// PollOutcome is the result of one client poll against a job.
type PollOutcome struct {
	Phase Phase
	Job   *domain.Job
}

// PollResult drives the job state machine from a client poll:
//
//	unsettled                -> payment required, no state change
//	settled, WORKING         -> still processing
//	settled, DONE or ERROR   -> the stored terminal payload
//	settled, first poll      -> CAS to WORKING, dispatch downstream
//
// The UNPAID->WORKING transition is a compare-and-set against the
// store, so of N concurrent polls arriving at settlement exactly one
// dispatches. Synchronous services complete inline and the triggering
// poll gets the terminal payload directly; submit-then-poll services
// dispatch in the background and acknowledge with "still processing".
func (s *Service) PollResult(ctx context.Context, service, hash string) (*PollOutcome, error) {
	entry, err := s.reg.Lookup(service)
	if err != nil {
		return nil, err
	}

	job, err := s.CheckPayment(ctx, hash)
	if err != nil {
		return nil, err
	}
	if job.Service != service {
		return nil, errors.Wrapf(domain.ErrJobNotFound, "hash %s does not belong to %s", hash, service)
	}
	if !job.Settled {
		return &PollOutcome{Phase: PhaseUnpaid, Job: job}, nil
	}

	switch job.State {
	case domain.Working:
		return &PollOutcome{Phase: PhaseWorking, Job: job}, nil
	case domain.Done:
		return &PollOutcome{Phase: PhaseDone, Job: job}, nil
	case domain.Failed:
		return &PollOutcome{Phase: PhaseError, Job: job}, nil
	}

	won, err := s.store.Transition(ctx, hash, domain.Unpaid, domain.Working)
	if err != nil {
		return nil, err
	}
	if !won {
		// Another poll got here first; report whatever it produced.
		return s.reread(ctx, hash)
	}

	if entry.Dispatcher.Async() {
		go s.runDispatch(context.Background(), entry, job)
		job.State = domain.Working
		return &PollOutcome{Phase: PhaseWorking, Job: job}, nil
	}

	s.runDispatch(ctx, entry, job)
	return s.reread(ctx, hash)
}

func (s *Service) reread(ctx context.Context, hash string) (*PollOutcome, error) {
	job, err := s.store.GetByPaymentHash(ctx, hash)
	if err != nil {
		return nil, err
	}
	switch job.State {
	case domain.Done:
		return &PollOutcome{Phase: PhaseDone, Job: job}, nil
	case domain.Failed:
		return &PollOutcome{Phase: PhaseError, Job: job}, nil
	default:
		return &PollOutcome{Phase: PhaseWorking, Job: job}, nil
	}
}

// runDispatch sanitizes the stored payload, calls the provider, and
// records the terminal outcome. Failures are terminal for the job; a
// client retries by paying a fresh invoice.
func (s *Service) runDispatch(parent context.Context, entry *dispatch.Entry, job *domain.Job) {
	ctx, cancel := context.WithTimeout(parent, s.cfg.DispatchTimeout)
	defer cancel()

	result, err := s.dispatchOnce(ctx, entry, job)
	if err != nil {
		s.log.Warn("dispatch failed",
			zap.String("service", job.Service),
			zap.String("payment_hash", job.PaymentHash),
			zap.Error(err))
		metrics.Dispatches.WithLabelValues(job.Service, "error").Inc()
		s.completeJob(job.PaymentHash, domain.Failed, errorPayload(err))
		return
	}

	metrics.Dispatches.WithLabelValues(job.Service, "success").Inc()
	s.completeJob(job.PaymentHash, domain.Done, result)
}

func (s *Service) dispatchOnce(ctx context.Context, entry *dispatch.Entry, job *domain.Job) (json.RawMessage, error) {
	clean, err := dispatch.Sanitize(job.RequestData, entry.Schema)
	if err != nil {
		return nil, err
	}
	return entry.Dispatcher.Dispatch(ctx, clean)
}

// completeJob writes the terminal record with a store-scoped context:
// the triggering request may already be gone by the time an async
// dispatch finishes.
func (s *Service) completeJob(hash string, state domain.Status, payload json.RawMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.store.Complete(ctx, hash, state, payload); err != nil {
		s.log.Error("failed to record terminal state",
			zap.String("payment_hash", hash), zap.Error(err))
	}
}

func errorPayload(err error) json.RawMessage {
	var de *domain.DownstreamError
	if errors.As(err, &de) {
		return de.Payload()
	}
	kind := "dispatch_failed"
	if errors.Is(err, domain.ErrTimeout) {
		kind = "timeout"
	}
	b, _ := json.Marshal(map[string]string{"error": kind, "detail": err.Error()})
	return b
}
