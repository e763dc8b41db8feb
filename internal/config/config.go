package config

import (
	"fmt"
	"strings"

	"github.com/Netflix/go-env"

	"github.com/Julianhima91/himatrips-backend/internal/domain"
)

type Config struct {
	DatabaseDSN string `env:"DATABASE_DSN,required=true"`
	RabbitMQURL string `env:"RABBITMQ_URL,required=true"`
	RedisURL    string `env:"REDIS_URL,required=true"`

	FlightAPIBaseURL string `env:"FLIGHT_API_BASE_URL,required=true"`
	HotelAPIBaseURL  string `env:"HOTEL_API_BASE_URL,required=true"`
	ProviderAPIKey   string `env:"PROVIDER_API_KEY,required=true"`

	RateLimitPerSec   int `env:"RATE_LIMIT_PER_SEC,default=20"`
	WorkerConcurrency int `env:"WORKER_CONCURRENCY,default=16"`
	APIPort           int `env:"API_PORT,default=8080"`

	BatchTTLMinutes       int `env:"BATCH_TTL_MINUTES,default=30"`
	LiveSearchPollMillis  int `env:"LIVE_SEARCH_POLL_MILLIS,default=500"`
	LiveSearchWaitSeconds int `env:"LIVE_SEARCH_WAIT_SECONDS,default=25"`
	RetryScanSeconds      int `env:"RETRY_SCAN_SECONDS,default=15"`
	SweepWindowMinutes    int `env:"SWEEP_WINDOW_MINUTES,default=120"`

	FlightSourceList string `env:"FLIGHT_SOURCES"`
	CampaignFile     string `env:"CAMPAIGN_FILE"`
	LogLevel         string `env:"LOG_LEVEL,default=info"`
}

// FlightSources parses the comma-separated FLIGHT_SOURCES fan-out into
// provider sources, defaulting to Amadeus and Sabre when unset.
func (c *Config) FlightSources() ([]domain.FlightSource, error) {
	raw := strings.TrimSpace(c.FlightSourceList)
	if raw == "" {
		return []domain.FlightSource{domain.SourceAmadeus, domain.SourceSabre}, nil
	}

	parts := strings.Split(raw, ",")
	sources := make([]domain.FlightSource, 0, len(parts))
	for _, part := range parts {
		source, err := domain.ParseFlightSourceFromString(part)
		if err != nil {
			return nil, fmt.Errorf("invalid FLIGHT_SOURCES entry: %w", err)
		}
		sources = append(sources, source)
	}
	return sources, nil
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}
