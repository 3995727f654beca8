package config

import (
	"os"
	"strings"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	JWT       JWTConfig
	RateLimit RateLimitConfig
	LLM       LLMConfig
	Factory   FactoryConfig
}

type ServerConfig struct {
	Port      string
	Env       string
	LogLevel  string
	ApiDomain string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration int // hours
}

type RateLimitConfig struct {
	IntakePerMin    int
	GeneratePerHour int
	RevisionPerHour int
}

type LLMConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

type FactoryConfig struct {
	MaxAttempts       int
	PassThreshold     float64
	CriticalFloor     float64
	StageTimeout      int // seconds
	ProcessingTimeout int // minutes, watchdog expiry for stuck jobs
	WatchdogInterval  int // seconds
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("LLM_API_KEY")
	readSecret("JWT_SECRET")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = viper.BindEnv("server.port", "SERVER_PORT")
	_ = viper.BindEnv("server.env", "SERVER_ENV")
	_ = viper.BindEnv("server.log_level", "LOG_LEVEL")
	_ = viper.BindEnv("server.api_domain", "API_DOMAIN")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")
	_ = viper.BindEnv("jwt.secret", "JWT_SECRET")
	_ = viper.BindEnv("jwt.expiration", "JWT_EXPIRATION")
	_ = viper.BindEnv("llm.api_key", "LLM_API_KEY")
	_ = viper.BindEnv("llm.base_url", "LLM_BASE_URL")
	_ = viper.BindEnv("llm.model", "LLM_MODEL")
	_ = viper.BindEnv("factory.max_attempts", "FACTORY_MAX_ATTEMPTS")
	_ = viper.BindEnv("factory.pass_threshold", "FACTORY_PASS_THRESHOLD")
	_ = viper.BindEnv("factory.critical_floor", "FACTORY_CRITICAL_FLOOR")
	_ = viper.BindEnv("factory.stage_timeout", "FACTORY_STAGE_TIMEOUT")
	_ = viper.BindEnv("factory.processing_timeout", "FACTORY_PROCESSING_TIMEOUT")
	_ = viper.BindEnv("factory.watchdog_interval", "FACTORY_WATCHDOG_INTERVAL")

	// Defaults
	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("jwt.secret", "change-me-in-production")
	viper.SetDefault("jwt.expiration", 24)
	viper.SetDefault("ratelimit.intake_per_min", 30)
	viper.SetDefault("ratelimit.generate_per_hour", 20)
	viper.SetDefault("ratelimit.revision_per_hour", 20)

	// LLM defaults
	viper.SetDefault("llm.base_url", "https://api.groq.com/openai/v1")
	viper.SetDefault("llm.model", "llama-3.3-70b-versatile")

	// Factory defaults
	viper.SetDefault("factory.max_attempts", 3)
	viper.SetDefault("factory.pass_threshold", 85)
	viper.SetDefault("factory.critical_floor", 60)
	viper.SetDefault("factory.stage_timeout", 90)
	viper.SetDefault("factory.processing_timeout", 30)
	viper.SetDefault("factory.watchdog_interval", 60)

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:      viper.GetString("server.port"),
			Env:       viper.GetString("server.env"),
			LogLevel:  viper.GetString("server.log_level"),
			ApiDomain: viper.GetString("server.api_domain"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret:     viper.GetString("jwt.secret"),
			Expiration: viper.GetInt("jwt.expiration"),
		},
		RateLimit: RateLimitConfig{
			IntakePerMin:    viper.GetInt("ratelimit.intake_per_min"),
			GeneratePerHour: viper.GetInt("ratelimit.generate_per_hour"),
			RevisionPerHour: viper.GetInt("ratelimit.revision_per_hour"),
		},
		LLM: LLMConfig{
			APIKey:  viper.GetString("llm.api_key"),
			BaseURL: viper.GetString("llm.base_url"),
			Model:   viper.GetString("llm.model"),
		},
		Factory: FactoryConfig{
			MaxAttempts:       viper.GetInt("factory.max_attempts"),
			PassThreshold:     viper.GetFloat64("factory.pass_threshold"),
			CriticalFloor:     viper.GetFloat64("factory.critical_floor"),
			StageTimeout:      viper.GetInt("factory.stage_timeout"),
			ProcessingTimeout: viper.GetInt("factory.processing_timeout"),
			WatchdogInterval:  viper.GetInt("factory.watchdog_interval"),
		},
	}

	return cfg, nil
}
