package main

import (
	"context"
	"errors"
	"expvar"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"goldvault/internal/auth"
	"goldvault/internal/checkout"
	"goldvault/internal/domain/storage"
	"goldvault/internal/domain/users"
	"goldvault/internal/ratelimiter"
	"goldvault/internal/reconcile"
	"goldvault/internal/refunds"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

type application struct {
	config        config
	logger        *zap.SugaredLogger
	ledger        storage.Ledger
	users         users.Directory
	checkout      *checkout.Service
	engine        *reconcile.Engine
	refunds       *refunds.Orchestrator
	authenticator auth.Authenticator
	rateLimiter   ratelimiter.Limiter
}

func (app *application) mount() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-VERIFY", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}))

	//Set a timeout value on the request context (ctx), that will signal through ctx.Done() that the request has timed out and further processing should be stopped
	r.Use(middleware.Timeout(60 * time.Second))

	r.Route("/v1", func(r chi.Router) {
		r.Get("/health", app.healthCheckHandler)
		r.With(app.BasicAuthMiddleware()).Get("/debug/vars", expvar.Handler().ServeHTTP)

		r.Route("/payments", func(r chi.Router) {
			// Gateway-facing routes authenticate by checksum, not by user.
			r.Post("/callback", app.phonePeWebhookHandler)
			r.Route("/phonepe", func(r chi.Router) {
				r.Post("/webhook", app.phonePeWebhookHandler)
				r.Post("/refund/webhook", app.phonePeWebhookHandler)
				r.Post("/success", app.phonePeSuccessHandler)
			})

			r.Group(func(r chi.Router) {
				r.Use(app.RateLimiterMiddleware)
				r.Use(app.AuthTokenMiddleware)

				r.Post("/initiate", app.initiatePaymentHandler)
				r.Post("/create", app.initiatePaymentHandler)
				r.Get("/status/{transactionID}", app.paymentStatusHandler)
				r.Get("/transactions", app.listTransactionsHandler)
				r.Post("/refund", app.refundHandler)
			})
		})
	})

	return r
}

func (app *application) run(mux http.Handler) error {
	srv := &http.Server{
		Addr:         app.config.addr,
		Handler:      mux,
		WriteTimeout: time.Second * 30,
		ReadTimeout:  time.Second * 10,
		IdleTimeout:  time.Minute,
	}

	// Implementing graceful shutdown
	shutdown := make(chan error)

	go func() {
		quit := make(chan os.Signal, 1)

		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		s := <-quit

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		app.logger.Infow("signal caught", "signal", s.String())

		shutdown <- srv.Shutdown(ctx)
	}()

	app.logger.Infow("server has started", "addr", app.config.addr, "env", app.config.env)

	err := srv.ListenAndServe()
	if !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	err = <-shutdown
	if err != nil {
		return err
	}

	app.logger.Infow("server has stopped", "addr", app.config.addr, "env", app.config.env)

	return nil
}
