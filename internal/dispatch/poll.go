package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/you/paygate/internal/domain"
)

const defaultPollInterval = 3 * time.Second

// PollDispatcher drives a provider with a submit-then-poll contract:
// the submission returns {"id": ..., "status": "processing"} and a
// fetch endpoint is polled until the status changes. The loop is
// bounded by the dispatch context's deadline; exceeding it resolves
// the job with a timeout error rather than polling forever.
type PollDispatcher struct {
	Service   string
	SubmitURL string
	FetchURL  string
	APIKey    string
	Interval  time.Duration

	client *http.Client
	log    *zap.Logger
}

func NewPollDispatcher(service, submitURL, fetchURL, apiKey string, log *zap.Logger) *PollDispatcher {
	return &PollDispatcher{
		Service:   service,
		SubmitURL: submitURL,
		FetchURL:  fetchURL,
		APIKey:    apiKey,
		Interval:  defaultPollInterval,
		client:    &http.Client{Timeout: 60 * time.Second},
		log:       log,
	}
}

func (d *PollDispatcher) Async() bool { return true }

type jobStatus struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func (d *PollDispatcher) Dispatch(ctx context.Context, data json.RawMessage) (json.RawMessage, error) {
	body, status, err := d.submit(ctx, data)
	if err != nil {
		return nil, err
	}
	if status.Status != "processing" {
		return body, nil
	}

	d.log.Info("downstream job accepted, polling",
		zap.String("service", d.Service), zap.String("remote_id", status.ID))

	for {
		select {
		case <-ctx.Done():
			return nil, errors.Wrapf(domain.ErrTimeout, "service %s remote job %s", d.Service, status.ID)
		case <-time.After(d.Interval):
		}

		body, st, err := d.fetch(ctx, status.ID)
		if err != nil {
			return nil, err
		}
		if st.Status == "processing" {
			continue
		}
		return body, nil
	}
}

func (d *PollDispatcher) submit(ctx context.Context, data json.RawMessage) (json.RawMessage, *jobStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.SubmitURL, bytes.NewReader(data))
	if err != nil {
		return nil, nil, errors.Wrap(err, "build submit request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+d.APIKey)
	return d.do(req)
}

func (d *PollDispatcher) fetch(ctx context.Context, remoteID string) (json.RawMessage, *jobStatus, error) {
	u := strings.TrimSuffix(d.FetchURL, "/") + "/" + remoteID
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, nil, errors.Wrap(err, "build fetch request")
	}
	req.Header.Set("Authorization", "Bearer "+d.APIKey)
	return d.do(req)
}

func (d *PollDispatcher) do(req *http.Request) (json.RawMessage, *jobStatus, error) {
	res, err := d.client.Do(req)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "call %s provider", d.Service)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, nil, errors.Wrap(err, "read provider response")
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return nil, nil, &domain.DownstreamError{Service: d.Service, Status: res.StatusCode, Body: body}
	}
	var st jobStatus
	if err := json.Unmarshal(body, &st); err != nil {
		return nil, nil, errors.Wrap(err, "decode provider status")
	}
	return body, &st, nil
}
