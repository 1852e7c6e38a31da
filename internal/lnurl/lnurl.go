// Package lnurl consumes a Lightning-address payment endpoint: LNURL-pay
// metadata resolution, invoice callbacks, and LUD-21 settlement checks.
// The gateway never talks to a Lightning node directly.
package lnurl

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	decodepay "github.com/nbd-wtf/ln-decodepay"
	"github.com/pkg/errors"

	"github.com/you/paygate/internal/domain"
)

// PayParams is the LNURL-pay metadata for a Lightning address.
// Sendable bounds are in millisatoshis.
type PayParams struct {
	Callback    string `json:"callback"`
	MinSendable int64  `json:"minSendable"`
	MaxSendable int64  `json:"maxSendable"`
	Tag         string `json:"tag"`
}

// InvoiceResult is the callback response: the bolt11 payment request and
// the LUD-21 verify capability URL.
type InvoiceResult struct {
	PR     string `json:"pr"`
	Verify string `json:"verify"`
}

// VerifyResult is the LUD-21 verify response.
type VerifyResult struct {
	Status   string `json:"status"`
	Settled  bool   `json:"settled"`
	Preimage string `json:"preimage"`
	PR       string `json:"pr"`
}

type Client struct {
	http *http.Client
}

func New() *Client {
	return &Client{http: &http.Client{Timeout: 15 * time.Second}}
}

// Resolve maps a name@host Lightning address to its well-known
// LNURL-pay URL.
func Resolve(address string) (string, error) {
	name, host, ok := strings.Cut(address, "@")
	if !ok || name == "" || host == "" {
		return "", errors.Errorf("malformed lightning address %q", address)
	}
	return fmt.Sprintf("https://%s/.well-known/lnurlp/%s", host, name), nil
}

// FetchParams resolves the address and fetches its pay metadata.
func (c *Client) FetchParams(ctx context.Context, address string) (*PayParams, error) {
	u, err := Resolve(address)
	if err != nil {
		return nil, err
	}
	var params PayParams
	if err := c.getJSON(ctx, u, &params); err != nil {
		return nil, errors.Wrap(err, "fetch lnurl-pay params")
	}
	return &params, nil
}

// RequestInvoice asks the callback for an invoice of the given amount
// with the given expiry.
func (c *Client) RequestInvoice(ctx context.Context, callback string, msats int64, expiry time.Duration) (*InvoiceResult, error) {
	u, err := url.Parse(callback)
	if err != nil {
		return nil, errors.Wrap(err, "parse callback url")
	}
	q := u.Query()
	q.Set("amount", fmt.Sprintf("%d", msats))
	q.Set("expiry", fmt.Sprintf("%d", int(expiry.Seconds())))
	u.RawQuery = q.Encode()

	var inv InvoiceResult
	if err := c.getJSON(ctx, u.String(), &inv); err != nil {
		return nil, errors.Wrap(err, "request invoice")
	}
	if inv.PR == "" {
		return nil, errors.New("callback returned no payment request")
	}
	return &inv, nil
}

// Verify checks settlement via the capability URL attached to the
// invoice. One GET, no retries: the client's poll cadence retries.
func (c *Client) Verify(ctx context.Context, verifyURL string) (*VerifyResult, error) {
	var v VerifyResult
	if err := c.getJSON(ctx, verifyURL, &v); err != nil {
		return nil, errors.Wrap(err, "verify payment")
	}
	return &v, nil
}

// DecodePaymentHash extracts the payment hash from a bolt11 payment
// request.
func DecodePaymentHash(pr string) (string, error) {
	decoded, err := decodepay.Decodepay(pr)
	if err != nil {
		return "", errors.Wrap(domain.ErrInvoiceDecode, err.Error())
	}
	if decoded.PaymentHash == "" {
		return "", domain.ErrInvoiceDecode
	}
	return decoded.PaymentHash, nil
}

func (c *Client) getJSON(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return errors.Errorf("%s: status %d", u, res.StatusCode)
	}
	return json.NewDecoder(res.Body).Decode(out)
}
