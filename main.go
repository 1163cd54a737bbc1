package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sattva/attendance"
	"sattva/auth"
	"sattva/booking"
	"sattva/config"
	"sattva/cron"
	"sattva/db"
	"sattva/globals"
	"sattva/mailer"
	"sattva/pay"
	"sattva/payout"
	"sattva/razorpay"
	"sattva/rdx"
	"sattva/routes"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
)

// securityHeaders applies a set of recommended HTTP security headers.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// XSS, content sniffing, framing
		w.Header().Set("X-XSS-Protection", "1; mode=block")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "frame-ancestors 'none'")
		// HSTS (must be on HTTPS)
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
		// Referrer and permissions
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Permissions-Policy", "geolocation=(), microphone=(), camera=()")
		// Prevent caching
		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, private")
		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs each request method, path, remote address, and duration.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logrus.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.RequestURI,
			"remote":   r.RemoteAddr,
			"duration": time.Since(start).String(),
		}).Info("request")
	})
}

// Index is a simple health check handler.
func Index(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	fmt.Fprint(w, "200")
}

func setupRouter(cfg *config.Config, gateway *razorpay.Client, refunds *pay.RefundService, mail mailer.Sender) *httprouter.Router {
	router := httprouter.New()
	router.GET("/health", Index)

	bookingSvc := booking.NewService(cfg, gateway, refunds, mail)
	bookingHandler := booking.NewHandler(bookingSvc)
	sessionHandler := attendance.NewHandler(cfg)
	authHandler := auth.NewHandler(cfg.JWT)

	routes.AddAuthRoutes(router, authHandler)
	routes.AddBookingRoutes(router, bookingHandler)
	routes.AddPayRoutes(router, bookingHandler)
	routes.AddSessionRoutes(router, sessionHandler)
	routes.AddReceiptRoutes(router)

	return router
}

func main() {
	logrus.SetFormatter(&logrus.JSONFormatter{})

	cfg := config.Load()
	if cfg.JWT.Secret == "" {
		logrus.Fatal("JWT_SECRET must be set")
	}
	globals.JwtSecret = []byte(cfg.JWT.Secret)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	initCtx, initCancel := context.WithTimeout(ctx, 15*time.Second)
	if err := db.Init(initCtx, cfg.Mongo); err != nil {
		logrus.Fatalf("mongo init: %v", err)
	}
	initCancel()
	defer db.Close()

	if err := rdx.Init(cfg.Redis); err != nil {
		logrus.Fatalf("redis init: %v", err)
	}

	gateway := razorpay.NewClient(cfg.Razorpay)

	var mail mailer.Sender = mailer.ConsoleSender{}
	if cfg.Brevo.APIKey != "" {
		mail = mailer.NewBrevoClient(cfg.Brevo)
	}

	refunds := pay.NewRefundService(gateway, mail, cfg.Refund)

	router := setupRouter(cfg, gateway, refunds, mail)

	// background workers
	monitor := cron.NewMonitor(cfg, refunds, payout.LogReleaser{})
	sweeper := cron.NewSweeper(cfg, refunds)
	go monitor.Run(ctx)
	go sweeper.Run(ctx)

	// apply middleware: CORS → security headers → logging → router
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"}, // lock down in production
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "Idempotency-Key"},
		AllowCredentials: true,
	}).Handler(router)

	handler := loggingMiddleware(securityHeaders(corsHandler))

	port := cfg.Server.Port
	if port == "" {
		port = ":8080"
	} else if port[0] != ':' {
		port = ":" + port
	}

	server := &http.Server{
		Addr:              port,
		Handler:           handler,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		ReadHeaderTimeout: 2 * time.Second,
	}

	go func() {
		logrus.Infof("server listening on %s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("ListenAndServe error: %v", err)
		}
	}()

	// wait for interrupt or SIGTERM
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logrus.Info("shutdown signal received; shutting down gracefully")
	cancel() // stop background workers

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logrus.Fatalf("graceful shutdown failed: %v", err)
	}

	logrus.Info("server stopped cleanly")
}
