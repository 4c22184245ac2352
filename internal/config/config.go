package config

import (
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env      string `yaml:"env" env:"APP_ENV" env-default:"local"`
	HTTP     `yaml:"http"`
	Postgres `yaml:"postgres"`
	App      `yaml:"app"`
}

type HTTP struct {
	Host           string   `yaml:"host" env:"HTTP_HOST" env-default:"0.0.0.0"`
	Port           int      `yaml:"port" env:"HTTP_PORT" env-default:"8080"`
	AllowedOrigins []string `yaml:"allowed_origins" env:"HTTP_ALLOWED_ORIGINS" env-default:"*"`
}

type Postgres struct {
	Host     string `yaml:"host" env:"COURSEPAY_DB_HOST" env-default:"localhost"`
	Port     int    `yaml:"port" env:"COURSEPAY_DB_PORT" env-default:"5432"`
	Username string `yaml:"username" env:"COURSEPAY_DB_USERNAME" env-required:"true"`
	Password string `yaml:"password" env:"COURSEPAY_DB_PASSWORD" env-required:"true"`
	Database string `yaml:"database" env:"COURSEPAY_DB_DATABASE" env-required:"true"`
	Schema   string `yaml:"schema" env:"COURSEPAY_DB_SCHEMA" env-default:"public"`
}

type App struct {
	GracefulShutdownTimeout time.Duration `yaml:"graceful_shutdown_timeout" env:"GRACEFUL_SHUTDOWN_TIMEOUT" env-default:"15s"`
	ProviderTimeout         time.Duration `yaml:"provider_timeout" env:"PROVIDER_TIMEOUT" env-default:"20s"`
	Reconcile               `yaml:"reconcile"`
}

type Reconcile struct {
	Interval time.Duration `yaml:"interval" env:"RECONCILE_INTERVAL" env-default:"5m"`
	// StuckAfter should exceed the providers' hosted-checkout lifetime so
	// a buyer still sitting on the payment page is not failed under them.
	StuckAfter    time.Duration `yaml:"stuck_after" env:"RECONCILE_STUCK_AFTER" env-default:"25h"`
	BatchLimit    int           `yaml:"batch_limit" env:"RECONCILE_BATCH_LIMIT" env-default:"100"`
	RetryAttempts uint          `yaml:"retry_attempts" env:"RECONCILE_RETRY_ATTEMPTS" env-default:"3"`
	RetryDelay    time.Duration `yaml:"retry_delay" env:"RECONCILE_RETRY_DELAY" env-default:"200ms"`
	RetryMaxDelay time.Duration `yaml:"retry_max_delay" env:"RECONCILE_RETRY_MAX_DELAY" env-default:"2s"`
}

// MustLoad reads configuration from the YAML file named by CONFIG_PATH,
// with environment variables overriding, or from the environment alone
// when CONFIG_PATH is unset.
func MustLoad() (cfg Config) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			log.Fatalf("error loading config from environment: %v", err)
		}
		return
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Fatalf("CONFIG_PATH %q does not exist", configPath)
	}
	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		log.Fatalf("error loading config: %v", err)
	}
	return
}
