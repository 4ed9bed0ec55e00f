package config

import (
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all environment configuration values for the messaging client
// and the dev server. Values are loaded from a .env file at startup when one
// is present.
type Config struct {
	// APIBaseURL is the http(s) root of the messaging backend
	APIBaseURL string

	// WSBaseURL is the ws(s) root of the push channel. Defaults to the API
	// base with the scheme swapped.
	WSBaseURL string

	// APIToken is the user's bearer token from the auth context
	APIToken string

	// UserID, UserName and UserAvatar identify the current user for stamping
	// optimistic sends and telling own messages from others'
	UserID     string
	UserName   string
	UserAvatar string

	// ServerPort is the port the dev server listens on
	ServerPort string
}

// Load reads environment variables and returns a populated Config struct.
// It will load from a .env file if present, then read from environment
// variables, falling back to local-development defaults.
func Load() *Config {
	// Not an error if the .env file is missing; production deployments use
	// real environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := &Config{
		APIBaseURL: getEnv("SAJILOKAAM_API_URL", "http://localhost:8080"),
		WSBaseURL:  getEnv("SAJILOKAAM_WS_URL", ""),
		APIToken:   getEnv("SAJILOKAAM_API_TOKEN", ""),
		UserID:     getEnv("SAJILOKAAM_USER_ID", ""),
		UserName:   getEnv("SAJILOKAAM_USER_NAME", ""),
		UserAvatar: getEnv("SAJILOKAAM_USER_AVATAR", ""),
		ServerPort: getEnv("PORT", "8080"),
	}

	if cfg.WSBaseURL == "" {
		cfg.WSBaseURL = deriveWSBase(cfg.APIBaseURL)
	}
	if cfg.APIToken == "" {
		log.Println("WARNING: SAJILOKAAM_API_TOKEN is not set")
	}

	return cfg
}

// CORSOrigins returns allowed CORS origins from the environment or defaults.
// Format: comma-separated list, e.g. "http://localhost:5173,https://app.sajilokaam.com"
func CORSOrigins() []string {
	originsEnv := os.Getenv("CORS_ORIGINS")
	if originsEnv == "" {
		// Default to localhost for development
		return []string{"http://localhost:5173", "http://localhost:3000"}
	}

	origins := strings.Split(originsEnv, ",")
	for i, origin := range origins {
		origins[i] = strings.TrimSpace(origin)
	}
	return origins
}

// deriveWSBase swaps an http(s) scheme for the matching ws(s) one.
func deriveWSBase(apiBase string) string {
	switch {
	case strings.HasPrefix(apiBase, "https://"):
		return "wss://" + strings.TrimPrefix(apiBase, "https://")
	case strings.HasPrefix(apiBase, "http://"):
		return "ws://" + strings.TrimPrefix(apiBase, "http://")
	default:
		return apiBase
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
