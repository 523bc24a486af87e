package config

import (
	"os"
)

type Config struct {
	DBUser     string
	DBPassword string
	DBHost     string
	DBPort     string
	DBName     string
	JWTSecret  string

	OpenAIKey      string
	OpenAIBaseURL  string
	EmbeddingModel string

	// Optional: redis URL for cross-instance feed fan-out.
	RedisURL string
	// Optional: yaml file overriding the model capability table.
	ModelsConfig string

	Port string
}

func LoadConfig() Config {
	return Config{
		DBUser:     getEnv("DB_USER", ""),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBHost:     getEnv("DB_HOST", ""),
		DBPort:     getEnv("DB_PORT", ""),
		DBName:     getEnv("DB_NAME", ""),
		JWTSecret:  getEnv("JWT_SECRET", ""),

		OpenAIKey:      getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:  getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		EmbeddingModel: getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),

		RedisURL:     getEnv("REDIS_URL", ""),
		ModelsConfig: getEnv("MODELS_CONFIG", ""),

		Port: getEnv("PORT", "8000"),
	}
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if value != "" {
		return value
	}
	return fallback
}
