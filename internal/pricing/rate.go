package pricing

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/pkg/errors"
	r "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/you/paygate/internal/domain"
)

// RateSource supplies the current BTC/USD quote.
type RateSource interface {
	BTCUSD(ctx context.Context) (float64, error)
}

// HTTPRateSource fetches the spot price from a Coinbase-style endpoint
// returning {"data": {"amount": "..."}}.
type HTTPRateSource struct {
	url    string
	client *http.Client
}

func NewHTTPRateSource(url string) *HTTPRateSource {
	return &HTTPRateSource{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *HTTPRateSource) BTCUSD(ctx context.Context) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return 0, errors.Wrap(err, "build rate request")
	}
	res, err := s.client.Do(req)
	if err != nil {
		return 0, errors.Wrap(domain.ErrRateUnavailable, err.Error())
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return 0, errors.Wrapf(domain.ErrRateUnavailable, "rate endpoint status %d", res.StatusCode)
	}

	var body struct {
		Data struct {
			Amount string `json:"amount"`
		} `json:"data"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return 0, errors.Wrap(domain.ErrRateUnavailable, err.Error())
	}
	rate, err := strconv.ParseFloat(body.Data.Amount, 64)
	if err != nil || rate <= 0 {
		return 0, errors.Wrapf(domain.ErrRateUnavailable, "bad amount %q", body.Data.Amount)
	}
	return rate, nil
}

const (
	rateKey = "rate:btcusd"
	rateTTL = 60 * time.Second
)

// CachedRateSource keeps the most recent quote in redis so a burst of
// invoice requests doesn't hammer the rate API. Redis failures fall
// through to the underlying source.
type CachedRateSource struct {
	src RateSource
	rdb *r.Client
	log *zap.Logger
}

func NewCachedRateSource(src RateSource, rdb *r.Client, log *zap.Logger) *CachedRateSource {
	return &CachedRateSource{src: src, rdb: rdb, log: log}
}

func (c *CachedRateSource) BTCUSD(ctx context.Context) (float64, error) {
	if cached, err := c.rdb.Get(ctx, rateKey).Float64(); err == nil && cached > 0 {
		return cached, nil
	} else if err != nil && err != r.Nil {
		c.log.Warn("rate cache read failed", zap.Error(err))
	}

	rate, err := c.src.BTCUSD(ctx)
	if err != nil {
		return 0, err
	}
	if err := c.rdb.Set(ctx, rateKey, rate, rateTTL).Err(); err != nil {
		c.log.Warn("rate cache write failed", zap.Error(err))
	}
	return rate, nil
}
