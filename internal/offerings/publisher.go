// Package offerings periodically announces this gateway's services to a
// nostr relay so clients can discover endpoints, prices and schemas.
package offerings

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goNostr "github.com/nbd-wtf/go-nostr"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/you/paygate/internal/dispatch"
	"github.com/you/paygate/internal/pricing"
)

const KindServiceOffering = 31402

type Publisher struct {
	sk       string
	relayURL string
	endpoint string
	margin   float64
	interval time.Duration
	reg      *dispatch.Registry
	rates    pricing.RateSource
	log      *zap.Logger
}

func New(sk, relayURL, endpoint string, margin float64, reg *dispatch.Registry, rates pricing.RateSource, log *zap.Logger) *Publisher {
	return &Publisher{
		sk:       sk,
		relayURL: relayURL,
		endpoint: endpoint,
		margin:   margin,
		interval: 5 * time.Minute,
		reg:      reg,
		rates:    rates,
		log:      log,
	}
}

// Run publishes immediately and then on every tick until ctx is done.
// Publish failures are logged and retried on the next tick; they never
// take the gateway down.
func (p *Publisher) Run(ctx context.Context) {
	if err := p.publishOnce(ctx); err != nil {
		p.log.Warn("offerings publish failed", zap.Error(err))
	}

	tick := time.NewTicker(p.interval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			if err := p.publishOnce(ctx); err != nil {
				p.log.Warn("offerings publish failed", zap.Error(err))
			}
		}
	}
}

type offering struct {
	Endpoint     string           `json:"endpoint"`
	AmountMsats  int64            `json:"amount"`
	Status       string           `json:"status"`
	InputSchema  *dispatch.Schema `json:"inputSchema,omitempty"`
	ResultSchema *dispatch.Schema `json:"outputSchema,omitempty"`
	Description  string           `json:"description,omitempty"`
}

func (p *Publisher) publishOnce(ctx context.Context) error {
	pk, err := goNostr.GetPublicKey(p.sk)
	if err != nil {
		return errors.Wrap(err, "derive pubkey")
	}

	rate, err := p.rates.BTCUSD(ctx)
	if err != nil {
		return err
	}

	relay, err := goNostr.RelayConnect(ctx, p.relayURL)
	if err != nil {
		return errors.Wrapf(err, "connect %s", p.relayURL)
	}
	defer relay.Close()

	for _, entry := range p.reg.Entries() {
		msats, err := pricing.PriceToMillisats(entry.PriceUSD, rate, p.margin)
		if err != nil {
			return err
		}

		content, err := json.Marshal(offering{
			Endpoint:     p.endpoint + "/" + entry.Service,
			AmountMsats:  msats,
			Status:       "UP",
			InputSchema:  entry.Schema,
			ResultSchema: entry.ResultSchema,
			Description:  entry.Description,
		})
		if err != nil {
			return errors.Wrap(err, "encode offering")
		}

		ev := goNostr.Event{
			PubKey:    pk,
			CreatedAt: goNostr.Now(),
			Kind:      KindServiceOffering,
			Tags: goNostr.Tags{
				{"d", entry.Service},
				{"s", p.endpoint + "/" + entry.Service},
				{"amount", fmt.Sprintf("%d", msats)},
				{"status", "UP"},
			},
			Content: string(content),
		}
		if err := ev.Sign(p.sk); err != nil {
			return errors.Wrap(err, "sign offering")
		}
		if err := relay.Publish(ctx, ev); err != nil {
			return errors.Wrapf(err, "publish %s offering", entry.Service)
		}
		p.log.Info("offering published",
			zap.String("service", entry.Service),
			zap.String("event_id", ev.ID),
			zap.Int64("amount_msat", msats))
	}
	return nil
}
