package config

import (
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env        string `yaml:"env" env:"ENV" env-default:"local"`
	HTTPServer `yaml:"http_server"`
	MongoDB    `yaml:"mongodb"`
	Redis      `yaml:"redis"`
	RabbitMQ   `yaml:"rabbitmq"`
	Tokens     `yaml:"tokens"`
}

type HTTPServer struct {
	Address     string        `yaml:"address" env-default:"localhost:8080"`
	Timeout     time.Duration `yaml:"timeout" env-default:"4s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
}

type MongoDB struct {
	URI               string        `yaml:"uri" env:"MONGODB_URI" env-required:"true"`
	Database          string        `yaml:"database" env-default:"mobile_auth"`
	ReadPoolSize      uint64        `yaml:"read_pool_size" env-default:"100"`
	WritePoolSize     uint64        `yaml:"write_pool_size" env-default:"20"`
	ConnectAttempts   int           `yaml:"connect_attempts" env-default:"5"`
	ConnectRetryDelay time.Duration `yaml:"connect_retry_delay" env-default:"2s"`
}

type Redis struct {
	Addr     string        `yaml:"addr" env-default:"localhost:6379"`
	Password string        `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int           `yaml:"db" env-default:"0"`
	MeTTL    time.Duration `yaml:"me_ttl" env-default:"5m"`
}

// RabbitMQ is optional: an empty URL selects the no-op notifier at
// startup.
type RabbitMQ struct {
	URL       string `yaml:"url" env:"RABBITMQ_URL"`
	QueueName string `yaml:"queue_name" env-default:"notifications"`
}

type Tokens struct {
	Secret               string        `yaml:"secret" env:"TOKEN_SECRET" env-required:"true"`
	AccessTokenTTL       time.Duration `yaml:"access_token_ttl" env-default:"15m"`
	RefreshTokenTTL      time.Duration `yaml:"refresh_token_ttl" env-default:"168h"`
	ResetTokenTTL        time.Duration `yaml:"reset_token_ttl" env-default:"1h"`
	VerificationTokenTTL time.Duration `yaml:"verification_token_ttl" env-default:"24h"`
	BcryptCost           int           `yaml:"bcrypt_cost" env-default:"10"`
}

func MustLoad(configPath string) *Config {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		panic("Config file does not exist: " + configPath)
	}

	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		panic("Failed to read config: " + err.Error())
	}

	return &cfg
}
