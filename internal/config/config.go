package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Load reads the .env file specified by RANGER_ENV (or .env by default),
// then loads the corresponding .secret file if it exists.
// All config is flat env vars read via os.Getenv after loading.
func Load() error {
	envFile := os.Getenv("RANGER_ENV")
	if envFile == "" {
		envFile = ".env"
	}

	// Missing files are fine; the process env still applies.
	_ = godotenv.Load(envFile)
	_ = godotenv.Load(envFile + ".secret")

	return nil
}

func ServerPort() int {
	port, err := strconv.Atoi(os.Getenv("SERVER_PORT"))
	if err != nil {
		return 8080
	}
	return port
}

func ServerAddr() string {
	return fmt.Sprintf(":%d", ServerPort())
}

// StoreDriver returns the persistence backend: sqlite (default) or postgres.
func StoreDriver() string {
	d := os.Getenv("STORE_DRIVER")
	if d == "" {
		return "sqlite"
	}
	return d
}

func SQLitePath() string {
	p := os.Getenv("SQLITE_PATH")
	if p == "" {
		return "ranger.db"
	}
	return p
}

func DatabaseURL() string {
	return os.Getenv("DATABASE_URL")
}

func OpenAIAPIKey() string {
	return os.Getenv("OPENAI_API_KEY")
}

// OwnerToken is the bearer token guarding administrative routes.
func OwnerToken() string {
	return os.Getenv("OWNER_TOKEN")
}

// ExtractorProvider returns the claim extractor: rules (default) or openai.
func ExtractorProvider() string {
	p := os.Getenv("EXTRACTOR_PROVIDER")
	if p == "" {
		return "rules"
	}
	return p
}

// EmbeddingProvider returns the embedding provider: hash (default) or openai.
func EmbeddingProvider() string {
	p := os.Getenv("EMBEDDING_PROVIDER")
	if p == "" {
		return "hash"
	}
	return p
}

func EmbeddingAPIKey() string {
	switch EmbeddingProvider() {
	case "openai":
		return OpenAIAPIKey()
	default:
		return ""
	}
}

// SearchProviders returns the configured search collaborators.
// Defaults to wikipedia.
func SearchProviders() []string {
	raw := os.Getenv("SEARCH_PROVIDERS")
	if raw == "" {
		return []string{"wikipedia"}
	}
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func SearxNGURL() string {
	return os.Getenv("SEARXNG_URL")
}

func PolicyFile() string {
	return os.Getenv("POLICY_FILE")
}

// ModifiableRoot is the only directory the code modifier may write to.
func ModifiableRoot() string {
	p := os.Getenv("MODIFIABLE_ROOT")
	if p == "" {
		return "tuning"
	}
	return p
}

// TuningFile is the tuning document, relative to the modifiable root.
func TuningFile() string {
	p := os.Getenv("TUNING_FILE")
	if p == "" {
		return "tuning.yaml"
	}
	return p
}

// RateLimitRPS returns requests per second limit.
// Defaults to 100 if not set.
func RateLimitRPS() float64 {
	return floatEnv("RATE_LIMIT_RPS", 100)
}

// RateLimitBurst returns the burst size for rate limiting.
// Defaults to 20 if not set.
func RateLimitBurst() int {
	return intEnv("RATE_LIMIT_BURST", 20)
}

// LogLevel returns the log level (debug, info, warn, error).
// Defaults to "info" if not set.
func LogLevel() string {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		return "info"
	}
	return level
}

func boolEnv(key string, def bool) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return def
	}
	return v
}

func intEnv(key string, def int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func floatEnv(key string, def float64) float64 {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil || v <= 0 {
		return def
	}
	return v
}

// unitEnv reads a value that must lie in [0,1].
func unitEnv(key string, def float64) float64 {
	v, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil || v < 0 || v > 1 {
		return def
	}
	return v
}

func durationEnv(key string, def time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil || v <= 0 {
		return def
	}
	return v
}
