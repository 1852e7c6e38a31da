package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/you/paygate/internal/domain"
)

// HTTPDispatcher drives a provider that answers in a single call, e.g. a
// chat-completion API. The provider's response (or error body) is
// returned verbatim.
type HTTPDispatcher struct {
	Service string
	URL     string
	APIKey  string

	client *http.Client
	log    *zap.Logger
}

func NewHTTPDispatcher(service, url, apiKey string, log *zap.Logger) *HTTPDispatcher {
	return &HTTPDispatcher{
		Service: service,
		URL:     url,
		APIKey:  apiKey,
		client:  &http.Client{Timeout: 60 * time.Second},
		log:     log,
	}
}

func (d *HTTPDispatcher) Async() bool { return false }

func (d *HTTPDispatcher) Dispatch(ctx context.Context, data json.RawMessage) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.URL, bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, "build provider request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+d.APIKey)

	res, err := d.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "call %s provider", d.Service)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read provider response")
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		d.log.Warn("provider rejected request",
			zap.String("service", d.Service), zap.Int("status", res.StatusCode))
		return nil, &domain.DownstreamError{Service: d.Service, Status: res.StatusCode, Body: body}
	}
	return body, nil
}
