package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"audiostore/config"
	"audiostore/database"
	_ "audiostore/docs" // Swagger docs
	"audiostore/handlers"
	"audiostore/logger"
	"audiostore/mailer"
	"audiostore/metrics"
	"audiostore/middleware"
	"audiostore/payment"
	"audiostore/services"
	"audiostore/storage"
	"audiostore/utils"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
)

var (
	downloadLinkHTTPHandler *handlers.DownloadLinkHandler
	downloadHTTPHandler     *handlers.DownloadHandler
	webhookHTTPHandler      *handlers.WebhookHandler
	checkoutHTTPHandler     *handlers.CheckoutHandler
	productHTTPHandler      *handlers.ProductHandler
	contactHTTPHandler      *handlers.ContactHandler
)

// @title Audio Store API
// @version 1.0
// @description Digital audio storefront with signed download-link fulfillment
// @termsOfService http://swagger.io/terms/

// @contact.name API Support
// @contact.email support@example.com

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description JWT bearer token. Format: Bearer {token}

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	logConfig := logger.Config{
		Level:      logger.INFO,
		LogDir:     "./logs",
		MaxSize:    10 * 1024 * 1024, // 10MB
		MaxAge:     7,                // days
		UseColor:   true,
		ShowCaller: false,
		Prefix:     "",
	}
	if err := logger.Initialize(logConfig); err != nil {
		logger.Fatal("Failed to initialize logger: %v", err)
	}

	logger.Info("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	logger.Info("🎵 Audio Store Server Starting")
	logger.Info("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration: %v", err)
	}

	// Signing secrets come from configuration, not package init, so values
	// from .env are honoured.
	utils.SetJWTSecret(cfg.JWTSecret)
	utils.SetDownloadTokenSecret(cfg.DownloadTokenSecret)

	if err := database.Initialize(cfg.DBDriver, cfg.DBDSN); err != nil {
		logger.Fatal("Failed to initialize database: %v", err)
	}
	defer database.Close()

	signer, err := storage.NewS3Signer(context.Background(), cfg.S3)
	if err != nil {
		logger.Fatal("Failed to initialize object storage: %v", err)
	}

	provider := payment.NewClient(cfg.Payment)

	var sender mailer.Sender
	if cfg.SMTP.Host != "" {
		sender = mailer.NewSMTPSender(cfg.SMTP)
	} else {
		logger.Warn("SMTP not configured; fulfillment and contact notifications are disabled")
	}

	instruments := metrics.New(prometheus.DefaultRegisterer)

	// Service layer
	sqlExecutor := services.NewSQLExecutor(database.DB)
	linkService := services.NewDownloadLinkService(sqlExecutor, signer, cfg.PublicURL, cfg.DefaultSignedURLTTL)
	productService := services.NewProductService(sqlExecutor, signer)
	contactService := services.NewContactService(sqlExecutor, sender, cfg.SMTP.AdminTo)
	fulfillmentService := services.NewFulfillmentService(provider, linkService, sender, services.FulfillmentOptions{
		MaxDownloadCount:   cfg.FulfillMaxDownloads,
		ExpireAfterSeconds: cfg.FulfillExpireSeconds,
	})

	downloadLinkHTTPHandler = handlers.NewDownloadLinkHandler(linkService, instruments)
	downloadHTTPHandler = handlers.NewDownloadHandler(linkService, instruments)
	webhookHTTPHandler = handlers.NewWebhookHandler(fulfillmentService, cfg.Payment.WebhookSecret, instruments)
	checkoutHTTPHandler = handlers.NewCheckoutHandler(productService, provider, fulfillmentService, cfg.PublicURL, instruments)
	productHTTPHandler = handlers.NewProductHandler(productService)
	contactHTTPHandler = handlers.NewContactHandler(contactService)

	mux := http.NewServeMux()

	// Swagger docs
	mux.HandleFunc("/swagger/", httpSwagger.WrapHandler)

	// Public endpoints
	mux.HandleFunc("/", homeHandler)
	mux.HandleFunc("/health", healthHandler)
	mux.Handle("/metrics", promhttp.Handler())

	// Admin auth API
	mux.HandleFunc("/api/admin/login",
		middleware.ChainMiddleware(
			handlers.Login,
			middleware.LoggingMiddleware,
			middleware.CORSMiddleware,
			middleware.SetJSONHeader,
		))

	mux.HandleFunc("/api/admin/me",
		middleware.ChainMiddleware(
			handlers.GetMe,
			middleware.LoggingMiddleware,
			middleware.AuthMiddleware,
			middleware.CORSMiddleware,
			middleware.SetJSONHeader,
		))

	// Download link management API (admin)
	mux.HandleFunc("/api/admin/download-links",
		middleware.ChainMiddleware(
			downloadLinkRouter,
			middleware.LoggingMiddleware,
			middleware.AuthMiddleware,
			middleware.CORSMiddleware,
			middleware.SetJSONHeader,
		))

	mux.HandleFunc("/api/admin/download-links/",
		middleware.ChainMiddleware(
			downloadLinkDetailRouter,
			middleware.LoggingMiddleware,
			middleware.AuthMiddleware,
			middleware.CORSMiddleware,
			middleware.SetJSONHeader,
		))

	// Download link status API (public, used by the buyer's download page)
	mux.HandleFunc("/api/download-links/",
		middleware.ChainMiddleware(
			downloadLinkStatusRouter,
			middleware.LoggingMiddleware,
			middleware.CORSMiddleware,
			middleware.SetJSONHeader,
		))

	// Token redirect gateway. No JSON header middleware: the success path is
	// a 302 to object storage.
	mux.HandleFunc("/api/download",
		middleware.ChainMiddleware(
			downloadHTTPHandler.Resolve,
			middleware.LoggingMiddleware,
			middleware.CORSMiddleware,
		))

	// Payment provider webhook
	mux.HandleFunc("/api/webhook",
		middleware.ChainMiddleware(
			webhookHTTPHandler.Handle,
			middleware.LoggingMiddleware,
			middleware.SetJSONHeader,
		))

	// Checkout API (public)
	mux.HandleFunc("/api/checkout",
		middleware.ChainMiddleware(
			checkoutHTTPHandler.CreateSession,
			middleware.LoggingMiddleware,
			middleware.CORSMiddleware,
			middleware.SetJSONHeader,
		))

	mux.HandleFunc("/api/checkout/confirm",
		middleware.ChainMiddleware(
			checkoutHTTPHandler.SelfFulfill,
			middleware.LoggingMiddleware,
			middleware.CORSMiddleware,
			middleware.SetJSONHeader,
		))

	// Product catalog API (public)
	mux.HandleFunc("/api/products",
		middleware.ChainMiddleware(
			publicProductRouter,
			middleware.LoggingMiddleware,
			middleware.CORSMiddleware,
			middleware.SetJSONHeader,
		))

	mux.HandleFunc("/api/products/",
		middleware.ChainMiddleware(
			publicProductDetailRouter,
			middleware.LoggingMiddleware,
			middleware.CORSMiddleware,
			middleware.SetJSONHeader,
		))

	// Product management API (admin)
	mux.HandleFunc("/api/admin/products",
		middleware.ChainMiddleware(
			adminProductRouter,
			middleware.LoggingMiddleware,
			middleware.AuthMiddleware,
			middleware.CORSMiddleware,
			middleware.SetJSONHeader,
		))

	mux.HandleFunc("/api/admin/products/",
		middleware.ChainMiddleware(
			adminProductDetailRouter,
			middleware.LoggingMiddleware,
			middleware.AuthMiddleware,
			middleware.CORSMiddleware,
			middleware.SetJSONHeader,
		))

	// Contact API
	mux.HandleFunc("/api/contacts",
		middleware.ChainMiddleware(
			contactRouter,
			middleware.LoggingMiddleware,
			middleware.CORSMiddleware,
			middleware.SetJSONHeader,
		))

	mux.HandleFunc("/api/admin/contacts",
		middleware.ChainMiddleware(
			contactHTTPHandler.List,
			middleware.LoggingMiddleware,
			middleware.AuthMiddleware,
			middleware.CORSMiddleware,
			middleware.SetJSONHeader,
		))

	mux.HandleFunc("/api/admin/contacts/",
		middleware.ChainMiddleware(
			contactDetailRouter,
			middleware.LoggingMiddleware,
			middleware.AuthMiddleware,
			middleware.CORSMiddleware,
			middleware.SetJSONHeader,
		))

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		logger.Warn("Received shutdown signal")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Error("Graceful shutdown failed: %v", err)
		}
		database.Close()
	}()

	logger.Info("Server listening on %s", cfg.ListenAddr)
	logger.Info("Public URL: %s", cfg.PublicURL)
	logger.Info("Swagger UI: %s/swagger/index.html", cfg.PublicURL)
	logger.Info("Metrics: %s/metrics", cfg.PublicURL)
	logger.Info("Log directory: ./logs")
	logger.Info("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("Server failed to start: %v", err)
	}
}

// homeHandler answers the root path.
func homeHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"success","message":"Audio Store Server","version":"1.0.0"}`))
}

// healthHandler answers liveness probes.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"success","message":"Server is healthy"}`))
}

// downloadLinkRouter handles list/create on the admin collection.
func downloadLinkRouter(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		downloadLinkHTTPHandler.List(w, r)
	case http.MethodPost:
		downloadLinkHTTPHandler.Create(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// downloadLinkDetailRouter handles per-link admin operations.
func downloadLinkDetailRouter(w http.ResponseWriter, r *http.Request) {
	id := trailingPathID(r.URL.Path, "/api/admin/download-links/")
	if id == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	switch r.Method {
	case http.MethodGet:
		downloadLinkHTTPHandler.Get(w, r, id)
	case http.MethodDelete:
		downloadLinkHTTPHandler.Delete(w, r, id)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// downloadLinkStatusRouter handles the public per-link status lookup.
func downloadLinkStatusRouter(w http.ResponseWriter, r *http.Request) {
	id := trailingPathID(r.URL.Path, "/api/download-links/")
	if id == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	downloadLinkHTTPHandler.Get(w, r, id)
}

// publicProductRouter handles the public catalog listing.
func publicProductRouter(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	productHTTPHandler.List(w, r)
}

// publicProductDetailRouter handles the public single-product lookup.
func publicProductDetailRouter(w http.ResponseWriter, r *http.Request) {
	id := trailingPathID(r.URL.Path, "/api/products/")
	if id == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	productHTTPHandler.Get(w, r, id)
}

// adminProductRouter handles product creation.
func adminProductRouter(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	productHTTPHandler.Create(w, r)
}

// adminProductDetailRouter handles product update/delete.
func adminProductDetailRouter(w http.ResponseWriter, r *http.Request) {
	id := trailingPathID(r.URL.Path, "/api/admin/products/")
	if id == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	switch r.Method {
	case http.MethodPut:
		productHTTPHandler.Update(w, r, id)
	case http.MethodDelete:
		productHTTPHandler.Delete(w, r, id)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// contactRouter handles the public contact form.
func contactRouter(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	contactHTTPHandler.Create(w, r)
}

// contactDetailRouter handles inquiry deletion.
func contactDetailRouter(w http.ResponseWriter, r *http.Request) {
	id := trailingPathID(r.URL.Path, "/api/admin/contacts/")
	if id == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	if r.Method != http.MethodDelete {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	contactHTTPHandler.Delete(w, r, id)
}

// trailingPathID extracts the single path segment after prefix; subpaths are
// rejected.
func trailingPathID(urlPath, prefix string) string {
	id := strings.Trim(strings.TrimPrefix(urlPath, prefix), "/")
	if id == "" || strings.Contains(id, "/") {
		return ""
	}
	return id
}
