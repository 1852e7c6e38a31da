package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrInvalidRate     = errors.New("btc/usd rate must be positive")
	ErrRateUnavailable = errors.New("btc/usd rate unavailable")
	ErrPriceOutOfRange = errors.New("price outside lnurl sendable bounds")
	ErrInvoiceDecode   = errors.New("payment request has no payment hash")
	ErrJobNotFound     = errors.New("no job for payment hash")
	ErrUnknownService  = errors.New("unknown service")
	ErrTimeout         = errors.New("dispatch deadline exceeded")
)

// DownstreamError carries a provider failure verbatim so the client sees
// exactly what the paid API returned.
type DownstreamError struct {
	Service string
	Status  int
	Body    json.RawMessage
}

func (e *DownstreamError) Error() string {
	return fmt.Sprintf("downstream %s: status %d", e.Service, e.Status)
}

// Payload is the JSON recorded on the job for a terminal ERROR state.
// The provider body is kept as-is when it is valid JSON.
func (e *DownstreamError) Payload() json.RawMessage {
	if json.Valid(e.Body) && len(e.Body) > 0 {
		return e.Body
	}
	b, _ := json.Marshal(map[string]any{"error": e.Error()})
	return b
}
