package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/noah-isme/csharp-course-api/internal/auth"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName             string
	AppEnv              string
	AppPort             string
	DatabaseURL         string
	RedisURL            string
	JWTSecret           string
	Instructors         []string
	CalendarFile        string
	MaxQuizAttempts     int
	RateLimitCapacity   int
	RateLimitRefill     float64
	DockerHost          string
	DotnetImage         string
	ExecutionTimeout    time.Duration
	CodeRunMemoryMB     int
	CodeRunCPUShares    int
	OpenAIAPIKey        string
	OpenAIModel         string
	OpenAIBaseURL       string
	AIGradingTimeout    time.Duration
	NATSURL             string
	NATSSubjectPrefix   string
	ExportEvery         time.Duration
	ExportDirectory     string
	ShutdownGracePeriod time.Duration
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	return load(true)
}

// LoadJob reads configuration for offline jobs such as the exporter, which never verify
// tokens and so do not need the JWT secret.
func LoadJob() (Config, error) {
	return load(false)
}

func load(requireAuth bool) (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("COURSE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "C# Course API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("quiz.max_attempts", 2)
	v.SetDefault("rate_limit.capacity", 5)
	v.SetDefault("rate_limit.refill_per_second", 0.2)
	v.SetDefault("dotnet_image", "mcr.microsoft.com/dotnet/sdk:8.0")
	v.SetDefault("execution_timeout_ms", 15000)
	v.SetDefault("code_run_memory_mb", 512)
	v.SetDefault("code_run_cpu_shares", 512)
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("openai.timeout", "45s")
	v.SetDefault("nats.subject_prefix", "course")
	v.SetDefault("export.every", "0s")
	v.SetDefault("export.dir", ".")
	v.SetDefault("shutdown.grace", "10s")

	aiTimeout, err := parseDuration(v, "openai.timeout")
	if err != nil {
		return Config{}, err
	}
	exportEvery, err := parseDuration(v, "export.every")
	if err != nil {
		return Config{}, err
	}
	grace, err := parseDuration(v, "shutdown.grace")
	if err != nil {
		return Config{}, err
	}

	timeoutMs := v.GetInt("execution_timeout_ms")
	if timeoutMs <= 0 {
		timeoutMs = 15000
	}

	cfg := Config{
		AppName:             v.GetString("app.name"),
		AppEnv:              v.GetString("app.env"),
		AppPort:             v.GetString("app.port"),
		DatabaseURL:         v.GetString("database.url"),
		RedisURL:            v.GetString("redis.url"),
		JWTSecret:           v.GetString("jwt.secret"),
		Instructors:         auth.ParseInstructorList(v.GetString("instructors")),
		CalendarFile:        v.GetString("calendar.file"),
		MaxQuizAttempts:     v.GetInt("quiz.max_attempts"),
		RateLimitCapacity:   v.GetInt("rate_limit.capacity"),
		RateLimitRefill:     v.GetFloat64("rate_limit.refill_per_second"),
		DockerHost:          v.GetString("docker_host"),
		DotnetImage:         v.GetString("dotnet_image"),
		ExecutionTimeout:    time.Duration(timeoutMs) * time.Millisecond,
		CodeRunMemoryMB:     v.GetInt("code_run_memory_mb"),
		CodeRunCPUShares:    v.GetInt("code_run_cpu_shares"),
		OpenAIAPIKey:        v.GetString("openai.api_key"),
		OpenAIModel:         v.GetString("openai.model"),
		OpenAIBaseURL:       v.GetString("openai.base_url"),
		AIGradingTimeout:    aiTimeout,
		NATSURL:             v.GetString("nats.url"),
		NATSSubjectPrefix:   v.GetString("nats.subject_prefix"),
		ExportEvery:         exportEvery,
		ExportDirectory:     v.GetString("export.dir"),
		ShutdownGracePeriod: grace,
	}

	if requireAuth && cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}
	if cfg.RedisURL == "" {
		return Config{}, fmt.Errorf("redis url must be provided")
	}

	if cfg.RateLimitCapacity <= 0 {
		cfg.RateLimitCapacity = 5
	}
	if cfg.RateLimitRefill <= 0 {
		cfg.RateLimitRefill = 0.2
	}
	if cfg.CodeRunMemoryMB <= 0 {
		cfg.CodeRunMemoryMB = 512
	}
	if cfg.CodeRunCPUShares <= 0 {
		cfg.CodeRunCPUShares = 512
	}

	return cfg, nil
}

func parseDuration(v *viper.Viper, key string) (time.Duration, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
