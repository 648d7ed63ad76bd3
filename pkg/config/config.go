package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds environment-driven settings for the engine. All credentials
// arrive through the environment; nothing secret lives in source.
type Config struct {
	Port string

	// Gateway
	GatewayBaseURL   string
	GatewayAuthToken string
	GatewayTimeout   time.Duration
	GatewayRPS       float64

	// Broker account credentials
	AccountLogin    string
	AccountPassword string
	AccountName     string
	BrokerServer    string
	Platform        string
	Magic           int

	// Deployment
	DeployPolicy    string // "lenient" (default) or "strict"
	DeployAttempts  int
	DeployBaseDelay time.Duration

	// Database
	DBPath string

	// Trading profile file (YAML); empty means built-in defaults.
	ProfilePath string

	// Operator auth
	JWTSecret    string
	OperatorUser string
	OperatorPass string
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	return &Config{
		Port:             getEnv("PORT", "8080"),
		GatewayBaseURL:   getEnv("GATEWAY_BASE_URL", "http://localhost:9090"),
		GatewayAuthToken: os.Getenv("GATEWAY_AUTH_TOKEN"),
		GatewayTimeout:   getEnvDuration("GATEWAY_TIMEOUT", 5*time.Second),
		GatewayRPS:       getEnvFloat("GATEWAY_RPS", 10),
		AccountLogin:     os.Getenv("ACCOUNT_LOGIN"),
		AccountPassword:  os.Getenv("ACCOUNT_PASSWORD"),
		AccountName:      getEnv("ACCOUNT_NAME", "live-account"),
		BrokerServer:     getEnv("BROKER_SERVER", ""),
		Platform:         getEnv("PLATFORM", "mt5"),
		Magic:            getEnvInt("MAGIC", 123456),
		DeployPolicy:     strings.ToLower(getEnv("DEPLOY_POLICY", "lenient")),
		DeployAttempts:   getEnvInt("DEPLOY_ATTEMPTS", 10),
		DeployBaseDelay:  getEnvDuration("DEPLOY_BASE_DELAY", 3*time.Second),
		DBPath:           getEnv("DB_PATH", "./data/tradeops.db"),
		ProfilePath:      getEnv("PROFILE_PATH", ""),
		JWTSecret:        getEnv("JWT_SECRET", "dev-secret"),
		OperatorUser:     getEnv("OPERATOR_USER", "operator"),
		OperatorPass:     os.Getenv("OPERATOR_PASS"),
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
