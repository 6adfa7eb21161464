package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

var (
	ServiceName    = "sj-trading"
	ServiceVersion = "0.1.0"
)

var (
	Env *EnvConfig
)

var (
	ErrMissingAPICredentials = errors.New("API_KEY and SECRET_KEY must be set in environment variables.")
	ErrMissingCACredentials  = errors.New("CA_CERT_PATH and CA_PASSWORD are required for non-simulation mode.")
)

type EnvConfig struct {
	Env                     string              `mapstructure:"env"`
	Log                     LogConfig           `mapstructure:"log"`
	GracefulShutdownTimeout time.Duration       `mapstructure:"graceful_shutdown_timeout"`
	Broker                  BrokerConfig        `mapstructure:"broker"`
	Telegram                TelegramConfig      `mapstructure:"telegram"`
	GoogleSheet             GoogleSheetConfig   `mapstructure:"google_sheet"`
	Database                DatabaseConfig      `mapstructure:"database"`
	Redis                   RedisConfig         `mapstructure:"redis"`
	NatsJetstream           NatsJetstreamConfig `mapstructure:"nats_jetstream"`
	Metrics                 MetricsConfig       `mapstructure:"metrics"`
	Contract                ContractConfig      `mapstructure:"contract"`
	Strategy                StrategyConfig      `mapstructure:"strategy"`
}

type LogConfig struct {
	ShowCaller bool   `mapstructure:"show_caller"`
	LogLevel   string `mapstructure:"log_level"`
}

type BrokerConfig struct {
	// Name selects the registered broker implementation: gateway or paper.
	Name       string        `mapstructure:"name"`
	BaseURL    string        `mapstructure:"base_url"`
	WSURL      string        `mapstructure:"ws_url"`
	APIKey     string        `mapstructure:"api_key"`
	SecretKey  string        `mapstructure:"secret_key"`
	CACertPath string        `mapstructure:"ca_cert_path"`
	CAPassword string        `mapstructure:"ca_password"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type TelegramConfig struct {
	BotToken    string        `mapstructure:"bot_token"`
	ChatID      int64         `mapstructure:"chat_id"`
	PollTimeout int           `mapstructure:"poll_timeout"`
	HTTPTimeout time.Duration `mapstructure:"http_timeout"`
}

func (c TelegramConfig) Enabled() bool {
	return strings.TrimSpace(c.BotToken) != "" && c.ChatID != 0
}

type GoogleSheetConfig struct {
	CredentialsPath string `mapstructure:"credentials_path"`
	URL             string `mapstructure:"url"`
	Tab             string `mapstructure:"tab"`
	RecordsTab      string `mapstructure:"records_tab"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
	PingInterval    time.Duration `mapstructure:"ping_interval"`
	ReconnectFactor float64       `mapstructure:"reconnect_factor"`
	MinJitter       time.Duration `mapstructure:"min_jitter"`
	MaxJitter       time.Duration `mapstructure:"max_jitter"`
	MaxRetry        int           `mapstructure:"max_retry"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxActiveConns  int           `mapstructure:"max_active_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

type RedisConfig struct {
	CacheDSN string `mapstructure:"cache_dsn"`
}

type NatsJetstreamConfig struct {
	URL             string        `mapstructure:"url"`
	MaxRetries      int           `mapstructure:"max_retries"`
	ReconnectFactor float64       `mapstructure:"reconnect_factor"`
	MinJitter       time.Duration `mapstructure:"min_jitter"`
	MaxJitter       time.Duration `mapstructure:"max_jitter"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

type ContractConfig struct {
	FuturesFile string   `mapstructure:"futures_file"`
	StockFiles  []string `mapstructure:"stock_files"`
}

type StrategyConfig struct {
	MACrossover MACrossoverConfig `mapstructure:"ma_crossover"`
	StopLoss    StopLossConfig    `mapstructure:"stop_loss"`
}

type MACrossoverConfig struct {
	Window       int           `mapstructure:"window"`
	Quantity     int64         `mapstructure:"quantity"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

type StopLossConfig struct {
	LockTTL time.Duration `mapstructure:"lock_ttl"`
}

// envBindings maps the flat environment variables used by the broker tooling to config keys.
var envBindings = map[string]string{
	"broker.api_key":                "API_KEY",
	"broker.secret_key":             "SECRET_KEY",
	"broker.ca_cert_path":           "CA_CERT_PATH",
	"broker.ca_password":            "CA_PASSWORD",
	"telegram.bot_token":            "TELEGRAM_BOT_TOKEN",
	"telegram.chat_id":              "TELEGRAM_CHAT_ID",
	"google_sheet.credentials_path": "GOOGLE_APPLICATION_CREDENTIALS",
	"google_sheet.url":              "GOOGLE_SHEET_URL",
	"google_sheet.tab":              "GOOGLE_SHEET_TAB",
	"google_sheet.records_tab":      "GOOGLE_SHEET_TAB_RECORDS",
	"database.dsn":                  "DATABASE_DSN",
	"redis.cache_dsn":               "REDIS_CACHE_DSN",
	"nats_jetstream.url":            "NATS_URL",
}

func setDefaults() {
	viper.SetDefault("env", "development")
	viper.SetDefault("log.log_level", "info")
	viper.SetDefault("graceful_shutdown_timeout", 10*time.Second)
	viper.SetDefault("broker.name", "gateway")
	viper.SetDefault("broker.base_url", "http://127.0.0.1:8000")
	viper.SetDefault("broker.timeout", 15*time.Second)
	viper.SetDefault("telegram.poll_timeout", 10)
	viper.SetDefault("telegram.http_timeout", 15*time.Second)
	viper.SetDefault("google_sheet.credentials_path", "service_account.json")
	viper.SetDefault("database.driver", "sqlite")
	viper.SetDefault("database.dsn", "file/sj_trading.db")
	viper.SetDefault("database.auto_migrate", true)
	viper.SetDefault("contract.futures_file", "file/2_stockinfo.ods")
	viper.SetDefault("contract.stock_files", []string{"file/C_public.html", "file/C_public_4.html"})
	viper.SetDefault("strategy.ma_crossover.window", 5)
	viper.SetDefault("strategy.ma_crossover.quantity", 1)
	viper.SetDefault("strategy.ma_crossover.poll_interval", 500*time.Millisecond)
	viper.SetDefault("strategy.stop_loss.lock_ttl", 24*time.Hour)
}

func LoadConfig(configPath string) error {
	viper.Reset()

	// .env is optional, real environment variables win
	_ = godotenv.Load()

	configPath = strings.TrimSpace(configPath)
	if configPath == "" {
		viper.SetConfigName("config")
		viper.SetConfigType("yml")
		viper.AddConfigPath(".")
	} else {
		ext := strings.ToLower(filepath.Ext(configPath))
		if ext == ".yml" || ext == ".yaml" {
			viper.SetConfigFile(configPath)
		} else {
			viper.SetConfigName(filepath.Base(configPath))
			viper.SetConfigType("yml")
			configDir := filepath.Dir(configPath)
			if configDir == "." || configDir == "" {
				viper.AddConfigPath(".")
			} else {
				viper.AddConfigPath(configDir)
			}
		}
	}

	replacer := strings.NewReplacer(".", "_")
	viper.SetEnvKeyReplacer(replacer)
	viper.AutomaticEnv()

	setDefaults()
	for key, envName := range envBindings {
		if err := viper.BindEnv(key, envName); err != nil {
			return fmt.Errorf("failed to bind env %s: %w", envName, err)
		}
	}

	err := viper.ReadInConfig()
	if err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	err = viper.Unmarshal(&Env)
	if err != nil {
		return fmt.Errorf("failed to unmarshal config file: %w", err)
	}

	return nil
}

// Validate checks the broker credentials required for the requested trading mode.
func (c *EnvConfig) Validate(simulation bool) error {
	if strings.TrimSpace(c.Broker.APIKey) == "" || strings.TrimSpace(c.Broker.SecretKey) == "" {
		return ErrMissingAPICredentials
	}

	if !simulation && (strings.TrimSpace(c.Broker.CACertPath) == "" || strings.TrimSpace(c.Broker.CAPassword) == "") {
		return ErrMissingCACredentials
	}

	return nil
}

func ModeLabel(simulation bool) string {
	if simulation {
		return "SIMULATION"
	}
	return "PRODUCTION"
}
