package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Env            string        `mapstructure:"ENV"`
	Port           string        `mapstructure:"PORT"`
	DatabaseURL    string        `mapstructure:"DATABASE_URL"`
	WebhookSecret  string        `mapstructure:"WEBHOOK_SECRET"`
	AIURL          string        `mapstructure:"AI_URL"`
	AIAPIKey       string        `mapstructure:"AI_API_KEY"`
	AIModel        string        `mapstructure:"AI_MODEL"`
	AITimeout      time.Duration `mapstructure:"AI_TIMEOUT"`
	BufferTimeout  time.Duration `mapstructure:"BUFFER_TIMEOUT"`
	SweepInterval  time.Duration `mapstructure:"SWEEP_INTERVAL"`
	OpenWindow     time.Duration `mapstructure:"OPEN_WINDOW"`
	ResolvedWindow time.Duration `mapstructure:"RESOLVED_WINDOW"`
	KafkaBrokers   string        `mapstructure:"KAFKA_BROKERS"`
	KafkaTopic     string        `mapstructure:"KAFKA_TOPIC"`
	CORSAllowed    string        `mapstructure:"CORS_ALLOWED_ORIGINS"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	LogLevel       string        `mapstructure:"LOG_LEVEL"`
}

func Load() (Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	_ = v.ReadInConfig()

	v.SetDefault("ENV", "dev")
	v.SetDefault("PORT", "8080")
	v.SetDefault("AI_MODEL", "gpt-4o-mini")
	v.SetDefault("AI_TIMEOUT", "10s")
	v.SetDefault("BUFFER_TIMEOUT", "5m")
	v.SetDefault("SWEEP_INTERVAL", "30s")
	v.SetDefault("OPEN_WINDOW", "4h")
	v.SetDefault("RESOLVED_WINDOW", "24h")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	v.SetDefault("KAFKA_TOPIC", "ticket-events")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
