package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	SQLite    SQLiteConfig
	Redis     RedisConfig
	AI        AIConfig
	Resolver  ResolverConfig
	Auth      AuthConfig
	Assistant AssistantConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  int
	WriteTimeout int
	BodyLimit    int
	CORSOrigins  string
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	// ScanTTLMinutes bounds how long a scan verdict for a URL is reused.
	ScanTTLMinutes int
}

type AIConfig struct {
	// BaseURL is the root of the external inference service. The current
	// contract lives under /scan, the legacy one under /analyze.
	BaseURL          string
	URLTimeoutSec    int
	UploadTimeoutSec int
	HealthTimeoutSec int
}

type ResolverConfig struct {
	TimeoutSec   int
	MaxRedirects int
	HTMLMaxChars int
}

type AuthConfig struct {
	JWTSecret       string
	TokenTTLHours   int
	ResetTTLMinutes int
}

type AssistantConfig struct {
	Enabled   bool
	APIKey    string
	Model     string
	MaxTokens int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/deepscan")

	viper.SetEnvPrefix("DEEPSCAN")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readTimeout", 60)
	viper.SetDefault("server.writeTimeout", 60)
	viper.SetDefault("server.bodyLimit", 104857600)
	viper.SetDefault("server.corsOrigins", "*")

	viper.SetDefault("sqlite.path", "./data/deepscan.db")

	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.scanTTLMinutes", 30)

	viper.SetDefault("ai.baseURL", "http://localhost:9000")
	viper.SetDefault("ai.urlTimeoutSec", 25)
	viper.SetDefault("ai.uploadTimeoutSec", 45)
	viper.SetDefault("ai.healthTimeoutSec", 5)

	viper.SetDefault("resolver.timeoutSec", 12)
	viper.SetDefault("resolver.maxRedirects", 5)
	viper.SetDefault("resolver.htmlMaxChars", 1000000)

	viper.SetDefault("auth.jwtSecret", "change-me")
	viper.SetDefault("auth.tokenTTLHours", 168)
	viper.SetDefault("auth.resetTTLMinutes", 30)

	viper.SetDefault("assistant.enabled", true)
	viper.SetDefault("assistant.model", "gpt-4o-mini")
	viper.SetDefault("assistant.maxTokens", 400)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")
}
