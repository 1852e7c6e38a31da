// Package storage persists jobs. Postgres is the source of truth for
// lifecycle state; every state change goes through the conditional
// operations here, never through ad hoc field writes.
package storage

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"github.com/you/paygate/internal/domain"
)

// Store is the job store consumed by the gateway.
type Store interface {
	Insert(ctx context.Context, job *domain.Job) error
	GetByPaymentHash(ctx context.Context, hash string) (*domain.Job, error)
	MarkSettled(ctx context.Context, hash string) error
	// Transition is a compare-and-set: the state moves from->to only if
	// it still equals from, and the return value reports whether this
	// caller won. Concurrent polls race through here; exactly one wins.
	Transition(ctx context.Context, hash string, from, to domain.Status) (bool, error)
	// Complete records the terminal state and the response payload.
	// The payload is written at most once.
	Complete(ctx context.Context, hash string, state domain.Status, response json.RawMessage) error
}

type PG struct{ db *pgxpool.Pool }

func NewPG(db *pgxpool.Pool) *PG { return &PG{db} }

func (s *PG) Insert(ctx context.Context, j *domain.Job) error {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	invoice, err := json.Marshal(j.Invoice)
	if err != nil {
		return errors.Wrap(err, "encode invoice")
	}
	_, err = s.db.Exec(ctx, `insert into jobs(
id, payment_hash, service, state, settled, price_msat, invoice, request_data
) values ($1,$2,$3,$4,$5,$6,$7,$8)`,
		j.ID, j.PaymentHash, j.Service, j.State, j.Settled, j.PriceMsat, invoice, j.RequestData,
	)
	return errors.Wrap(err, "insert job")
}

func (s *PG) GetByPaymentHash(ctx context.Context, hash string) (*domain.Job, error) {
	var (
		j       domain.Job
		invoice []byte
	)
	err := s.db.QueryRow(ctx, `select
id, payment_hash, service, state, settled, price_msat, invoice, request_data, request_response, created_at, updated_at
from jobs where payment_hash = $1`, hash).Scan(
		&j.ID, &j.PaymentHash, &j.Service, &j.State, &j.Settled, &j.PriceMsat,
		&invoice, &j.RequestData, &j.RequestResponse, &j.CreatedAt, &j.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, domain.ErrJobNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "get job")
	}
	if err := json.Unmarshal(invoice, &j.Invoice); err != nil {
		return nil, errors.Wrap(err, "decode invoice")
	}
	return &j, nil
}

func (s *PG) MarkSettled(ctx context.Context, hash string) error {
	tag, err := s.db.Exec(ctx,
		`update jobs set settled = true, updated_at = now() where payment_hash = $1`, hash)
	if err != nil {
		return errors.Wrap(err, "mark settled")
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}

func (s *PG) Transition(ctx context.Context, hash string, from, to domain.Status) (bool, error) {
	tag, err := s.db.Exec(ctx,
		`update jobs set state = $3, updated_at = now()
		  where payment_hash = $1 and state = $2`, hash, from, to)
	if err != nil {
		return false, errors.Wrap(err, "transition job")
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PG) Complete(ctx context.Context, hash string, state domain.Status, response json.RawMessage) error {
	tag, err := s.db.Exec(ctx,
		`update jobs set state = $2, request_response = $3, updated_at = now()
		  where payment_hash = $1 and request_response is null`, hash, state, response)
	if err != nil {
		return errors.Wrap(err, "complete job")
	}
	if tag.RowsAffected() == 0 {
		return errors.Errorf("job %s already completed", hash)
	}
	return nil
}
