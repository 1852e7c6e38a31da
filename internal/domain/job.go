package domain

import (
	"encoding/json"
	"time"
)

type Status string

const (
	Unpaid  Status = "UNPAID"
	Working Status = "WORKING"
	Done    Status = "DONE"
	Failed  Status = "ERROR"
)

// Terminal reports whether no further transition is allowed from s.
func (s Status) Terminal() bool { return s == Done || s == Failed }

// SuccessAction tells a paying wallet where to collect the result.
type SuccessAction struct {
	Tag         string `json:"tag"`
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
}

// Invoice is the payment request handed to the client: the bolt11 string,
// the LUD-21 verify capability URL, and the result-collection callback.
type Invoice struct {
	PaymentRequest string        `json:"pr"`
	VerifyURL      string        `json:"verify"`
	SuccessAction  SuccessAction `json:"successAction"`
}

// Job is the persisted lifecycle record, keyed by payment hash.
// PaymentHash, Service and PriceMsat are immutable once set;
// RequestResponse is written exactly once, on the terminal transition.
type Job struct {
	ID              string
	PaymentHash     string
	Service         string
	State           Status
	Settled         bool
	PriceMsat       int64
	Invoice         Invoice
	RequestData     json.RawMessage
	RequestResponse json.RawMessage
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
