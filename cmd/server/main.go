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

	"github.com/campuspay/backend/docs"
	"github.com/campuspay/backend/internal/clients"
	"github.com/campuspay/backend/internal/config"
	"github.com/campuspay/backend/internal/database"
	"github.com/campuspay/backend/internal/handlers"
	mW "github.com/campuspay/backend/internal/middleware"
	"github.com/campuspay/backend/internal/services"
)

// @title Tuition Payments API
// @version 1.0
// @description Payment orchestration service for tuition payments
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

	viper.BindEnv("services.otp_url", "OTP_SERVICE_URL")
	viper.BindEnv("services.customer_url", "CUSTOMER_SERVICE_URL")
	viper.BindEnv("services.tuition_url", "TUITION_SERVICE_URL")
	viper.BindEnv("services.mail_url", "MAIL_SERVICE_URL")
	viper.BindEnv("services.call_timeout", "SERVICE_CALL_TIMEOUT")
	viper.BindEnv("otp.max_per_customer", "OTP_MAX_PER_CUSTOMER")
	viper.BindEnv("otp.rate_limit_window", "OTP_RATE_LIMIT_WINDOW")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}

	docs.SwaggerInfo.Title = "Tuition Payments API"
	docs.SwaggerInfo.Version = "1.0"
	docs.SwaggerInfo.Host = "localhost:8080"
	docs.SwaggerInfo.BasePath = "/api/v1"
	docs.SwaggerInfo.Schemes = []string{"http", "https"}

	cfg := config.Load()

	db := database.InitDatabase()
	defer db.Close()

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	// Collaborator clients; each call is bounded by the configured timeout.
	otpClient := clients.NewOTPClient(cfg.OTPServiceURL, cfg.CollaboratorTimeout)
	balanceClient := clients.NewBalanceClient(cfg.CustomerServiceURL, cfg.CollaboratorTimeout)
	tuitionClient := clients.NewTuitionClient(cfg.TuitionServiceURL, cfg.CollaboratorTimeout)
	mailClient := clients.NewNotificationClient(cfg.MailServiceURL, cfg.CollaboratorTimeout)

	ledger := services.NewPaymentLedgerService(db)
	paymentService := services.NewPaymentService(ledger, otpClient, balanceClient, tuitionClient, mailClient, redisClient, cfg)
	paymentHandler := handlers.NewPaymentHandler(paymentService)

	// Setup router
	r := chi.NewRouter()

	r.Use(mW.SecurityHeaders)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("http://localhost:8080/swagger/doc.json"),
	))

	// API routes
	r.Route("/api/v1/payments", func(r chi.Router) {
		r.Use(mW.AuthMiddleware)

		r.Get("/info", paymentHandler.GetPaymentHistory)
		r.Post("/initiate", paymentHandler.InitiatePayment)
		r.Post("/confirm", paymentHandler.ConfirmPayment)
		r.Post("/resend", paymentHandler.ResendOtp)
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

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
