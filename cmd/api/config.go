package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"goldvault/internal/payments"
	"goldvault/internal/ratelimiter"
)

type config struct {
	addr        string
	env         string
	apiURL      string
	frontendURL string
	logLevel    string
	db          dbConfig
	ledger      ledgerConfig
	auth        authConfig
	phonepe     payments.PhonePeConfig
	expoToken   string
	rateLimiter ratelimiter.Config
}

type dbConfig struct {
	addr        string
	maxConns    int32
	maxIdleTime string
}

type ledgerConfig struct {
	driver   string // postgres | bolt
	boltPath string
}

type authConfig struct {
	basic basicConfig
	token tokenConfig
}

type tokenConfig struct {
	secret string
	iss    string
	aud    string
}

type basicConfig struct {
	user     string
	passHash string // bcrypt
}

func loadConfig() config {
	return config{
		addr:        envOr("ADDR", ":8080"),
		env:         envOr("ENV", "development"),
		apiURL:      os.Getenv("EXTERNAL_URL"),
		frontendURL: envOr("FRONTEND_URL", "http://localhost:3000"),
		logLevel:    envOr("LOG_LEVEL", "info"),
		db: dbConfig{
			addr:        os.Getenv("DB_ADDR"),
			maxConns:    int32(envInt("DB_MAX_CONNS", 30)),
			maxIdleTime: envOr("DB_MAX_IDLE_TIME", "15m"),
		},
		ledger: ledgerConfig{
			driver:   strings.ToLower(envOr("LEDGER_DRIVER", "postgres")),
			boltPath: envOr("BOLT_PATH", "goldvault.db"),
		},
		auth: authConfig{
			basic: basicConfig{
				user:     os.Getenv("AUTH_BASIC_USER"),
				passHash: os.Getenv("AUTH_BASIC_PASS_HASH"),
			},
			token: tokenConfig{
				secret: os.Getenv("AUTH_TOKEN_SECRET"),
				iss:    envOr("AUTH_TOKEN_ISS", "goldvault"),
				aud:    envOr("AUTH_TOKEN_ISS", "goldvault"),
			},
		},
		phonepe: payments.PhonePeConfig{
			MerchantID:      os.Getenv("PHONEPE_MERCHANT_ID"),
			APIKey:          os.Getenv("PHONEPE_API_KEY"),
			ClientVersion:   envOr("PHONEPE_CLIENT_VERSION", "1"),
			Production:      strings.EqualFold(os.Getenv("PHONEPE_ENV"), "PROD"),
			CallbackBaseURL: strings.TrimRight(os.Getenv("EXTERNAL_URL"), "/") + "/v1/payments/phonepe",
			Timeout:         envDuration("PHONEPE_TIMEOUT", 5*time.Second),
		},
		expoToken:   os.Getenv("EXPO_ACCESS_TOKEN"),
		rateLimiter: LoadRateLimiterConfig(),
	}
}

// LoadRateLimiterConfig retrieves rate limiter settings from environment variables
func LoadRateLimiterConfig() ratelimiter.Config {
	// Default values
	defaultRequests := 200
	defaultEnabled := false

	requestsPerTimeFrame := defaultRequests
	if val, exists := os.LookupEnv("RATELIMITER_REQUESTS_COUNT"); exists {
		if parsedVal, err := strconv.Atoi(val); err == nil {
			requestsPerTimeFrame = parsedVal
		} else {
			fmt.Println("Invalid RATELIMITER_REQUESTS_COUNT, defaulting to", defaultRequests)
		}
	}

	enabled := defaultEnabled
	if val, exists := os.LookupEnv("RATE_LIMITER_ENABLED"); exists {
		if parsedVal, err := strconv.ParseBool(val); err == nil {
			enabled = parsedVal
		} else {
			fmt.Println("Invalid RATE_LIMITER_ENABLED, defaulting to", defaultEnabled)
		}
	}

	return ratelimiter.Config{
		RequestsPerTimeFrame: requestsPerTimeFrame,
		TimeFrame:            5 * time.Second,
		Enabled:              enabled,
	}
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func envDuration(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
