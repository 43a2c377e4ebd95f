package main

import (
	"expvar"
	"fmt"
	"log"
	"os"
	"runtime"

	"goldvault/internal/auth"
	"goldvault/internal/checkout"
	"goldvault/internal/db"
	"goldvault/internal/domain/goldprice"
	"goldvault/internal/domain/storage"
	"goldvault/internal/domain/storage/boltledger"
	"goldvault/internal/domain/users"
	"goldvault/internal/notifications"
	"goldvault/internal/payments"
	"goldvault/internal/ratelimiter"
	"goldvault/internal/reconcile"
	"goldvault/internal/refunds"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger creates a new zap logger with color.
func NewLogger(level string) (*zap.SugaredLogger, error) {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder

	consoleEncoder := zapcore.NewConsoleEncoder(encoderCfg)

	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", level, err)
	}

	core := zapcore.NewCore(consoleEncoder, zapcore.NewMultiWriteSyncer(zapcore.AddSync(os.Stdout)), lvl)

	return zap.New(core).Sugar(), nil
}

var version = "1.0.0"

func main() {
	if err := godotenv.Load(); err != nil && os.Getenv("ENV") == "production" {
		log.Fatalf("Error loading .env file: %v", err)
	}

	cfg := loadConfig()

	logger, err := NewLogger(cfg.logLevel)
	if err != nil {
		fmt.Println("Error creating logger:", err)
		return
	}
	defer logger.Sync()

	var (
		ledger storage.Ledger
		dir    users.Directory
		prices goldprice.Source
		tokens notifications.TokenSource
	)

	switch cfg.ledger.driver {
	case "bolt":
		bl, err := boltledger.Open(cfg.ledger.boltPath)
		if err != nil {
			logger.Fatal(err)
		}
		defer bl.Close()
		ledger, dir, prices = bl, bl, bl
		logger.Infow("using embedded ledger", "path", cfg.ledger.boltPath)
	case "postgres":
		pool, err := db.New(db.Config{
			Addr:        cfg.db.addr,
			MaxConns:    cfg.db.maxConns,
			MaxIdleTime: cfg.db.maxIdleTime,
		})
		if err != nil {
			logger.Fatal(err)
		}
		defer pool.Close()
		logger.Info("database connection pool established")

		c := storage.NewContainer(pool)
		ledger, dir, prices, tokens = c, c.Users, c.GoldPrices, c.PushTokens

		expvar.Publish("database", expvar.Func(func() any {
			s := pool.Stat()
			return map[string]int64{
				"total_conns":    int64(s.TotalConns()),
				"idle_conns":     int64(s.IdleConns()),
				"acquired_conns": int64(s.AcquiredConns()),
				"acquire_count":  s.AcquireCount(),
			}
		}))
	default:
		logger.Fatalf("unknown LEDGER_DRIVER %q", cfg.ledger.driver)
	}

	// Gateways
	phonepe, err := payments.NewPhonePeClient(cfg.phonepe)
	if err != nil {
		logger.Fatal(err)
	}
	gateways := payments.NewManager()
	gateways.Register(phonepe)

	var notifier notifications.Notifier = notifications.Nop{}
	if cfg.expoToken != "" && tokens != nil {
		push := notifications.NewExpoAdapter(notifications.NewExpoClient(cfg.expoToken))
		notifier = notifications.NewPushNotifier(push, tokens, logger)
	} else {
		logger.Info("push notifications disabled")
	}

	// Rate limiter
	rateLimiter := ratelimiter.NewFixedWindowLimiter(
		cfg.rateLimiter.RequestsPerTimeFrame,
		cfg.rateLimiter.TimeFrame,
	)

	// Authenticator
	jwtAuthenticator := auth.NewJWTAuthenticator(
		cfg.auth.token.secret,
		cfg.auth.token.aud,
		cfg.auth.token.iss,
	)

	app := &application{
		config:        cfg,
		logger:        logger,
		ledger:        ledger,
		users:         dir,
		checkout:      checkout.NewService(ledger, dir, prices, gateways, logger),
		engine:        reconcile.NewEngine(ledger, gateways, notifier, logger),
		refunds:       refunds.NewOrchestrator(ledger, gateways, logger),
		authenticator: jwtAuthenticator,
		rateLimiter:   rateLimiter,
	}

	//Metrics collected http://localhost:8080/v1/debug/vars
	expvar.NewString("version").Set(version)
	expvar.Publish("goroutines", expvar.Func(func() any {
		return runtime.NumGoroutine()
	}))

	mux := app.mount()

	logger.Fatal(app.run(mux))
}
