package env

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

var Env map[string]string

func GetEnv(key, def string) string {
	// First check our loaded Env map
	if val, ok := Env[key]; ok {
		return val
	}
	// Fallback to OS environment variables (for Docker/tests)
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// GetEnvBool parses common truthy/falsy spellings and returns def otherwise.
func GetEnvBool(key string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(GetEnv(key, ""))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}

func GetEnvInt(key string, def int) int {
	v, err := strconv.Atoi(strings.TrimSpace(GetEnv(key, "")))
	if err != nil {
		return def
	}
	return v
}

func GetEnvDuration(key string, def time.Duration) time.Duration {
	v, err := time.ParseDuration(strings.TrimSpace(GetEnv(key, "")))
	if err != nil {
		return def
	}
	return v
}

func SetupEnvFile() {
	// Look for .env file in project root
	envFiles := []string{
		".env",          // Current directory
		"../../.env",    // From cmd/aifans to project root
		"../../../.env", // Fallback for deeper nesting
	}

	var err error
	for _, envFile := range envFiles {
		Env, err = godotenv.Read(envFile)
		if err == nil {
			return
		}
	}

	// Containers usually inject everything through the process environment.
	Env = map[string]string{}
	log.Printf("No .env file found, using process environment only")
}

// AppEnv returns the normalized runtime environment. NODE_ENV is honoured
// when APP_ENV is unset so existing deployments keep working.
func AppEnv() string {
	v := GetEnv("APP_ENV", "")
	if v == "" {
		v = GetEnv("NODE_ENV", "prod")
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "production", "prod":
		return "prod"
	case "development", "dev", "local":
		return "dev"
	case "test", "testing":
		return "test"
	default:
		return strings.ToLower(strings.TrimSpace(v))
	}
}

func IsDev() bool {
	return AppEnv() == "dev"
}

func IsProd() bool {
	return AppEnv() == "prod"
}
