package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/viper"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/earnhub/backend/internal/config"
	"github.com/earnhub/backend/internal/database"
	"github.com/earnhub/backend/internal/handlers"
	mW "github.com/earnhub/backend/internal/middleware"
	"github.com/earnhub/backend/internal/services"
)

// @title EarnHub Ledger API
// @version 1.0
// @description Balance-mutation core for the EarnHub rewards platform
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https

func main() {
	// Initialize config
	viper.SetConfigFile(".env")
	viper.AutomaticEnv()

	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	viper.BindEnv("jwt.secret_key", "JWT_SECRET_KEY")
	viper.BindEnv("webhook.secret", "WEBHOOK_SECRET")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}

	// Initialize storage
	db := database.InitDatabase()
	defer db.Close()

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	// Initialize ledger core
	feeConfig := config.LoadFeeConfig()
	ledgerConfig := config.LoadLedgerConfig()

	accountStore := services.NewAccountStore(db)
	ledgerLog := services.NewLedgerLog(db)
	feePolicy := services.NewFeePolicy(feeConfig)
	events := services.NewEventPublisher(redisClient)
	engine := services.NewTransferEngine(db, accountStore, ledgerLog, feePolicy, events, ledgerConfig)

	// The fee sink must exist before the first fee is taken.
	if _, err := accountStore.Create(context.Background(), ledgerConfig.SystemFeeAccount); err != nil {
		log.Fatalf("Failed to provision system fee account: %v", err)
	}

	ledgerService := services.NewLedgerService(engine, ledgerLog, ledgerConfig)
	accountService := services.NewAccountService(accountStore)
	webhookHandler := handlers.NewWebhookHandler(engine, redisClient, viper.GetString("webhook.secret"))

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(mW.SecurityHeaders)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Gateway-Signature"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("http://localhost:8080/openapi.yaml"),
	))
	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, "./api/openapi.yaml")
	})

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Gateway callbacks authenticate with an HMAC signature, not a JWT
		r.Post("/webhooks/payments", webhookHandler.HandleGatewayEvent)

		// Protected endpoints (auth required)
		r.Group(func(r chi.Router) {
			r.Use(mW.AuthMiddleware)

			r.Post("/accounts", accountService.CreateAccount)
			r.Get("/accounts/{accountId}/balance", accountService.BalanceEnquiry)
			r.Put("/accounts/{accountId}/close", accountService.CloseAccount)
			r.Get("/accounts/{accountId}/history", ledgerService.History)

			r.Post("/ledger/credit", ledgerService.Credit)
			r.Post("/ledger/debit", ledgerService.Debit)
			r.Post("/ledger/transfer", ledgerService.Transfer)
			r.Post("/ledger/purchase", ledgerService.Purchase)
			r.Post("/ledger/withdraw", ledgerService.Withdraw)
			r.Post("/ledger/reverse", ledgerService.Reverse)
			r.Get("/ledger/entries/{reference}", ledgerService.GetByReference)
		})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Start server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		log.Printf("Server starting on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server stopped")
}
