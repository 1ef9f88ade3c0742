// Package config loads process configuration following the same
// resolution order as the rest of the stack: process environment wins,
// then a .env file, then a secrets.json file.
package config

import (
	"encoding/json"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config is assembled once at startup and passed down by reference.
type Config struct {
	AIProvider string // "httpasr" or "aws"

	ASRBaseURL       string
	TranslationBaseURL string

	AWSRegion string

	RedisURL string

	// AuthMode is "keycloak" when KEYCLOAK_ISSUER is set, else
	// "shared_secret" (self-issued HS256 tokens via JWTSecret).
	AuthMode string

	JWTSecret        string
	JWTIssuer        string
	JWTAudience      string
	JWTExpireMinutes int
	JWKSURL          string

	MaxLatencyMS int
	MaxJitterMS  int

	AllowedLanguages []string
	CORSOrigins      []string

	MinioEnabled bool

	HTTPAddr string
}

var secrets map[string]string

func init() {
	secrets = loadSecretsJSON()
}

// Load reads configuration following env > .env > secrets.json.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("config: .env not loaded: %v", err)
	}

	authMode := "shared_secret"
	if getEnv("KEYCLOAK_ISSUER", "") != "" {
		authMode = "keycloak"
	}

	return &Config{
		AIProvider:         getEnv("AI_PROVIDER", "httpasr"),
		ASRBaseURL:         getEnv("ASR_BASE_URL", "http://127.0.0.1:8003"),
		TranslationBaseURL: getEnv("TRANSLATION_BASE_URL", "http://127.0.0.1:8004"),
		AWSRegion:          getEnv("AWS_REGION", "us-east-1"),
		RedisURL:           getEnv("REDIS_URL", ""),
		AuthMode:           authMode,
		JWTSecret:          getSecret("JWT_SECRET", "change-me-in-production"),
		JWTIssuer:          getEnv("JWT_ISSUER", ""),
		JWTAudience:        getEnv("JWT_AUDIENCE", ""),
		JWTExpireMinutes:   getEnvInt("JWT_EXPIRE_MINUTES", 1440),
		JWKSURL:            getEnv("JWKS_URL", ""),
		MaxLatencyMS:       getEnvInt("MAX_LATENCY_MS", 1200),
		MaxJitterMS:        getEnvInt("MAX_JITTER_MS", 200),
		AllowedLanguages:   getEnvList("ALLOWED_LANGUAGES", []string{"en", "ja", "zh", "vi"}),
		CORSOrigins:        getEnvList("CORS_ORIGINS", []string{"http://localhost:5173"}),
		MinioEnabled:       strings.EqualFold(getEnv("MINIO_ENABLED", "false"), "true"),
		HTTPAddr:           getEnv("HTTP_ADDR", ":8080"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("config: invalid int for %s=%q, using default %d", key, v, fallback)
		return fallback
	}
	return n
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

// getSecret resolves env > .env (already merged into env by godotenv.Load) > secrets.json.
func getSecret(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	if v, ok := secrets[key]; ok && v != "" {
		return v
	}
	if v, ok := secrets[strings.ToLower(key)]; ok && v != "" {
		return v
	}
	return fallback
}

func loadSecretsJSON() map[string]string {
	paths := []string{
		os.Getenv("SECRETS_JSON_PATH"),
		"secrets.json",
	}
	for _, p := range paths {
		if p == "" {
			continue
		}
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		var out map[string]string
		if err := json.Unmarshal(data, &out); err != nil {
			log.Printf("config: secrets.json at %s is malformed: %v", p, err)
			continue
		}
		log.Printf("config: loaded secrets from %s", p)
		return out
	}
	return map[string]string{}
}
