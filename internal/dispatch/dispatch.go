// Package dispatch maps service identifiers to the downstream providers
// that execute paid jobs, and sanitizes client payloads on the way in.
package dispatch

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/you/paygate/internal/domain"
)

// Dispatcher submits a sanitized payload to a downstream provider and
// returns the terminal result. Async dispatchers may take minutes and
// are run detached from the triggering request.
type Dispatcher interface {
	Dispatch(ctx context.Context, data json.RawMessage) (json.RawMessage, error)
	Async() bool
}

// Entry is the capability record for one service.
type Entry struct {
	Service      string
	Description  string
	PriceUSD     float64
	Schema       *Schema
	ResultSchema *Schema
	Dispatcher   Dispatcher
}

// Registry resolves service identifiers to their entries. Built once at
// startup; unknown identifiers are a typed error, never a fallthrough
// to a default provider.
type Registry struct {
	entries map[string]*Entry
}

func NewRegistry(entries ...*Entry) *Registry {
	m := make(map[string]*Entry, len(entries))
	for _, e := range entries {
		m[e.Service] = e
	}
	return &Registry{entries: m}
}

func (r *Registry) Lookup(service string) (*Entry, error) {
	e, ok := r.entries[service]
	if !ok {
		return nil, errors.Wrap(domain.ErrUnknownService, service)
	}
	return e, nil
}

// Entries returns all registered services, for the offerings publisher.
func (r *Registry) Entries() []*Entry {
	out := make([]*Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	return out
}
