package config

import (
	"log"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv  string `env:"APP_ENV" envDefault:"dev"`
	APIAddr string `env:"API_ADDR" envDefault:":6969"`

	PostgresDSN   string `env:"POSTGRES_DSN,notEmpty"`
	RedisAddr     string `env:"REDIS_ADDR,notEmpty"`
	RedisPassword string `env:"REDIS_PASSWORD"`

	// Endpoint is the public base URL of this gateway, used to build the
	// success-action links embedded in invoices and offering notes.
	Endpoint         string  `env:"ENDPOINT,notEmpty"`
	LightningAddress string  `env:"LIGHTNING_ADDRESS,notEmpty"`
	ProfitMarginPct  float64 `env:"PROFIT_MARGIN_PCT" envDefault:"0"`
	BTCRateURL       string  `env:"BTC_RATE_URL" envDefault:"https://api.coinbase.com/v2/prices/BTC-USD/spot"`

	GPTUSD    float64 `env:"GPT_USD,notEmpty"`
	GPTAPIKey string  `env:"GPT_API_KEY,notEmpty"`
	GPTAPIURL string  `env:"GPT_API_URL" envDefault:"https://api.openai.com/v1/chat/completions"`

	SDUSD       float64 `env:"SD_USD,notEmpty"`
	SDAPIKey    string  `env:"SD_API_KEY,notEmpty"`
	SDSubmitURL string  `env:"SD_SUBMIT_URL,notEmpty"`
	SDFetchURL  string  `env:"SD_FETCH_URL,notEmpty"`

	DispatchTimeoutSec int `env:"DISPATCH_TIMEOUT_SEC" envDefault:"300"`
	InvoiceExpirySec   int `env:"INVOICE_EXPIRY_SEC" envDefault:"3600"`

	NostrSK    string `env:"NOSTR_SK"`
	NostrRelay string `env:"NOSTR_RELAY"`
}

func Load() Config {
	_ = godotenv.Load()
	var c Config
	if err := env.Parse(&c); err != nil {
		log.Fatal(err)
	}
	return c
}
