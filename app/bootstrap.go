package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"shop-auth/internal/account"
	"shop-auth/internal/catalog"
	"shop-auth/internal/db"
	"shop-auth/internal/maintenance"
	"shop-auth/internal/notify"
	"shop-auth/internal/observability"
	"shop-auth/internal/otp"
	"shop-auth/internal/session"
	"shop-auth/internal/token"
)

type Options struct {
	LoadDotEnv    bool
	RunMigrations bool
	StartSweeper  bool
}

type Runtime struct {
	Handler http.Handler
	Close   func() error
}

func Build(options Options) (*Runtime, error) {
	if options.LoadDotEnv {
		_ = godotenv.Load()
	}

	logger := observability.NewLogger(envOrDefault("APP_NAME", "shop-auth"))

	databaseURL, err := mustEnv("DATABASE_URL")
	if err != nil {
		return nil, err
	}
	jwtSecret, err := mustEnv("JWT_SECRET")
	if err != nil {
		return nil, err
	}

	if err := observability.InitSentry(os.Getenv("SENTRY_DSN"), envOrDefault("APP_ENV", "development")); err != nil {
		logger.Error("init_sentry_failed", map[string]any{"error": err.Error()})
	}

	database, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	database.SetMaxOpenConns(envIntOrDefault("DB_MAX_OPEN_CONNS", 10))
	database.SetMaxIdleConns(envIntOrDefault("DB_MAX_IDLE_CONNS", 5))
	database.SetConnMaxLifetime(envMinutesOrDefault("DB_CONN_MAX_LIFETIME_MINUTES", 30))
	database.SetConnMaxIdleTime(envMinutesOrDefault("DB_CONN_MAX_IDLE_TIME_MINUTES", 10))

	if err := database.Ping(); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if options.RunMigrations {
		if err := db.RunMigrations(database); err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	codec := token.NewCodec(jwtSecret, envMinutesOrDefault("ACCESS_TOKEN_TTL_MINUTES", 15), logger)

	ledger := otp.NewLedger(otp.NewPostgresStore(database), logger)
	ledger.WithPolicy(
		envSecondsOrDefault("OTP_TTL_SECONDS", 600),
		envIntOrDefault("OTP_MAX_ATTEMPTS", 5),
		envHoursOrDefault("OTP_RETENTION_HOURS", 24),
	)

	accountStore := account.NewPostgresStore(database)

	sessions := session.NewService(session.NewPostgresStore(database), account.NewDirectory(accountStore), codec, logger)
	sessions.WithPolicy(
		envHoursOrDefault("REFRESH_TOKEN_TTL_HOURS", 168),
		envIntOrDefault("MAX_ACTIVE_SESSIONS", 5),
	)
	sessionHandler := session.NewHandler(sessions)

	accounts := account.NewService(accountStore, ledger, sessions, buildNotifier(logger), logger)
	accountHandler := account.NewHandler(accounts, os.Getenv("FEDERATION_SECRET"))

	sweeper := maintenance.NewSweeper(ledger, sessions, logger, envSecondsOrDefault("SWEEP_INTERVAL_SECONDS", 300))
	cleanupHandler := maintenance.NewHandler(sweeper, os.Getenv("CRON_SECRET"))

	catalogHandler := catalog.NewHandler(catalog.NewRepository(database))

	throttle := session.NewThrottle(
		envIntOrDefault("LOGIN_RATE_LIMIT_MAX", 10),
		envSecondsOrDefault("LOGIN_RATE_LIMIT_WINDOW_SECONDS", 60),
	)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/signup", accountHandler.SignUp)
	mux.Handle("POST /auth/login", throttle.Middleware(http.HandlerFunc(sessionHandler.Login)))
	mux.HandleFunc("POST /auth/refresh", sessionHandler.Refresh)
	mux.HandleFunc("POST /auth/logout", sessionHandler.Logout)
	mux.Handle("POST /auth/logout-all", codec.Middleware(http.HandlerFunc(sessionHandler.LogoutAll)))
	mux.Handle("POST /auth/verify-email", throttle.Middleware(http.HandlerFunc(accountHandler.VerifyEmail)))
	mux.HandleFunc("POST /auth/resend-verification", accountHandler.ResendVerification)
	mux.HandleFunc("POST /auth/forgot-password", accountHandler.ForgotPassword)
	mux.Handle("POST /auth/reset-password", throttle.Middleware(http.HandlerFunc(accountHandler.ResetPassword)))

	mux.Handle("GET /account/me", codec.Middleware(http.HandlerFunc(accountHandler.Me)))
	mux.Handle("PUT /account/me", codec.Middleware(http.HandlerFunc(accountHandler.UpdateProfile)))
	mux.Handle("PUT /account/password", codec.Middleware(http.HandlerFunc(accountHandler.ChangePassword)))
	mux.Handle("DELETE /account", codec.Middleware(http.HandlerFunc(accountHandler.DeleteAccount)))

	mux.HandleFunc("POST /internal/federated/login", accountHandler.FederatedLogin)
	mux.HandleFunc("GET /internal/maintenance/cleanup", cleanupHandler.Handle)
	mux.HandleFunc("POST /internal/maintenance/cleanup", cleanupHandler.Handle)
	mux.HandleFunc("GET /health", healthHandler(database))

	mux.HandleFunc("GET /products", catalogHandler.ListProducts)
	mux.HandleFunc("GET /products/{id}", catalogHandler.GetProduct)
	mux.Handle("POST /products", codec.Middleware(http.HandlerFunc(catalogHandler.CreateProduct)))
	mux.Handle("PUT /products/{id}", codec.Middleware(http.HandlerFunc(catalogHandler.UpdateProduct)))
	mux.Handle("DELETE /products/{id}", codec.Middleware(http.HandlerFunc(catalogHandler.DeleteProduct)))

	handler := observability.RecoverMiddleware(logger, observability.RequestLoggingMiddleware(logger, mux))

	ctx, cancel := context.WithCancel(context.Background())
	if options.StartSweeper {
		sweeper.Start(ctx)
	}

	return &Runtime{
		Handler: handler,
		Close: func() error {
			cancel()
			observability.FlushSentry()
			return database.Close()
		},
	}, nil
}

func buildNotifier(logger *observability.Logger) notify.Notifier {
	host := strings.TrimSpace(os.Getenv("SMTP_HOST"))
	if host == "" {
		logger.Warn("smtp_not_configured", map[string]any{"fallback": "log_notifier"})
		return notify.NewLogNotifier(logger)
	}

	return notify.NewSMTPNotifier(notify.SMTPConfig{
		Host:     host,
		Port:     envIntOrDefault("SMTP_PORT", 587),
		User:     os.Getenv("SMTP_USER"),
		Password: os.Getenv("SMTP_PASSWORD"),
		From:     os.Getenv("SMTP_FROM"),
		AppName:  envOrDefault("APP_NAME", "shop-auth"),
		CodeTTL:  envSecondsOrDefault("OTP_TTL_SECONDS", 600),
	})
}

func healthHandler(database *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]any{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)}
		if err := database.PingContext(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body = map[string]any{"status": "degraded", "time": time.Now().UTC().Format(time.RFC3339)}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}

func mustEnv(name string) (string, error) {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return "", fmt.Errorf("missing required env: %s", name)
	}
	return value, nil
}

func envOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func envIntOrDefault(name string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func envMinutesOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Minute
}

func envHoursOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Hour
}

func envSecondsOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Second
}

func EnvBoolOrDefault(name string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if value == "" {
		return fallback
	}

	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
