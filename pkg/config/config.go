package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"SignalGate/pkg/util"
)

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"required"`
	Server      struct {
		Port            int           `yaml:"port" default:"8080" validate:"gt=0,lte=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Log        LogConfig        `yaml:"log"`
	Stream     StreamConfig     `yaml:"stream"`
	Trading    TradingConfig    `yaml:"trading"`
	Execution  ExecutionConfig  `yaml:"execution"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
	Redis      RedisConfig      `yaml:"redis"`
}

type LogConfig struct {
	Level      string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
	Format     string `yaml:"format" default:"console" validate:"oneof=json console"`
	Output     string `yaml:"output" default:"stdout"`
	TimeFormat string `yaml:"time_format"`
}

type StreamConfig struct {
	BaseURL              string        `yaml:"base_url" default:"wss://stream.binance.com:9443" validate:"required"`
	Symbols              []string      `yaml:"symbols" validate:"min=1,dive,required"`
	Channels             []string      `yaml:"channels" default:"[\"trade\",\"bookTicker\"]" validate:"min=1"`
	PingInterval         time.Duration `yaml:"ping_interval" default:"20s"`
	ReconnectDelay       time.Duration `yaml:"reconnect_delay" default:"1s"`
	MaxReconnectDelay    time.Duration `yaml:"max_reconnect_delay" default:"60s"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts" default:"10" validate:"gte=0"`
	EventBuffer          int           `yaml:"event_buffer" default:"1024" validate:"gt=0"`
	MaxRPS               float64       `yaml:"max_rps" validate:"gte=0"` // 0 disables throttling
}

type TradingConfig struct {
	Mode                string             `yaml:"mode" default:"paper" validate:"oneof=paper live"`
	CycleInterval       time.Duration      `yaml:"cycle_interval" default:"5s" validate:"gt=0"`
	CoherenceThreshold  float64            `yaml:"coherence_threshold" default:"0.9" validate:"gte=0,lte=1"`
	VoteThreshold       float64            `yaml:"vote_threshold" default:"0.7" validate:"gte=0,lte=1"`
	RequiredVotes       int                `yaml:"required_votes" default:"6" validate:"gte=1,lte=9"`
	PositionSizePercent float64            `yaml:"position_size_percent" default:"10" validate:"gt=0,lte=100"`
	MaxCycles           int64              `yaml:"max_cycles" validate:"gte=0"` // 0 means unlimited
	MinQuantity         float64            `yaml:"min_quantity" default:"0.00001" validate:"gte=0"`
	ThresholdWindow     int                `yaml:"threshold_window" default:"500" validate:"gte=20"`
	QuoteAssets         []string           `yaml:"quote_assets" default:"[\"USDT\",\"BUSD\",\"USDC\",\"FDUSD\",\"BTC\",\"ETH\",\"BNB\"]"`
	PaperBalances       map[string]float64 `yaml:"paper_balances" default:"{\"USDT\":10000}"`
}

// Live reports whether orders go to the exchange.
func (t TradingConfig) Live() bool { return t.Mode == "live" }

type ExecutionConfig struct {
	BaseURL         string        `yaml:"base_url" default:"https://api.binance.com" validate:"required,url"`
	APIKey          string        `yaml:"api_key"`
	APISecret       string        `yaml:"api_secret"`
	RecvWindow      time.Duration `yaml:"recv_window" default:"5s"`
	Timeout         time.Duration `yaml:"timeout" default:"10s"`
	OrderTimeout    time.Duration `yaml:"order_timeout" default:"15s"`
	BalanceCacheTTL time.Duration `yaml:"balance_cache_ttl" default:"2s"`
	OrderRatePerSec float64       `yaml:"order_rate_per_sec" default:"5" validate:"gt=0"`
	OrderBurst      float64       `yaml:"order_burst" default:"5" validate:"gte=1"`
}

type TelemetryConfig struct {
	Backend  string `yaml:"backend" default:"none" validate:"oneof=none kafka clickhouse"`
	FilePath string `yaml:"file_path" default:"data/telemetry.jsonl" validate:"required"`
	Table    string `yaml:"table" default:"signal_telemetry" validate:"required"`
}

type KafkaConfig struct {
	Brokers      []string `yaml:"brokers"`
	Topic        string   `yaml:"topic" default:"signalgate.telemetry"`
	RequiredAcks int      `yaml:"required_acks" default:"1"`
	Compression  string   `yaml:"compression" default:"snappy"`
	Producer     struct {
		MaxAttempts  int           `yaml:"max_attempts" default:"5"`
		Linger       time.Duration `yaml:"linger" default:"50ms"`
		BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
		BatchSize    int           `yaml:"batch_size" default:"100"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
		ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
		Async        bool          `yaml:"async"`
	} `yaml:"producer"`
	Consumer struct {
		Enabled    bool          `yaml:"enabled" default:"true"`
		GroupID    string        `yaml:"group_id" default:"signalgate-telemetry"`
		Workers    int           `yaml:"workers" default:"4"`
		BufferSize int           `yaml:"buffer_size" default:"256"`
		RetryMax   int           `yaml:"retry_max" default:"3"`
		BackoffMin time.Duration `yaml:"backoff_min" default:"100ms"`
		BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
		DLQTopic   string        `yaml:"dlq_topic" default:"signalgate.telemetry.dlq"`
		MinBytes   int           `yaml:"min_bytes" default:"1"`
		MaxBytes   int           `yaml:"max_bytes" default:"10485760"`
	} `yaml:"consumer"`
}

type ClickHouseConfig struct {
	Host             string        `yaml:"host" default:"localhost"`
	Port             int           `yaml:"port" default:"9000"`
	Database         string        `yaml:"database" default:"signalgate"`
	User             string        `yaml:"user" default:"default"`
	Password         string        `yaml:"password"`
	UseHTTP          bool          `yaml:"use_http"`
	AsyncInsert      bool          `yaml:"async_insert"`
	WaitForAsync     bool          `yaml:"wait_for_async_insert"`
	DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
	ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
	MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
}

type RedisConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Addr       string `yaml:"addr" default:"localhost:6379"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	Prefix     string `yaml:"prefix" default:"signalgate"`
	AlertQueue string `yaml:"alert_queue" default:"signalgate:alerts"`
}

var validate = validator.New()

// Load reads and parses a YAML configuration file on top of the tag defaults.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML bytes, applies defaults and validates.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	c.normalize()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads an optional .env file, then the YAML config, then applies environment overrides.
func LoadWithEnv(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	c.applyEnv()
	c.normalize()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("BINANCE_API_KEY"); v != "" {
		c.Execution.APIKey = v
	}
	if v := os.Getenv("BINANCE_API_SECRET"); v != "" {
		c.Execution.APISecret = v
	}
	if v := os.Getenv("SYMBOLS"); v != "" {
		c.Stream.Symbols = util.SplitCSV(v)
	}
	if v := os.Getenv("TRADING_MODE"); v != "" {
		c.Trading.Mode = strings.ToLower(v)
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = util.SplitCSV(v)
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		c.Kafka.Topic = v
	}
	if v := os.Getenv("TELEMETRY_BACKEND"); v != "" {
		c.Telemetry.Backend = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
}

func (c *Config) normalize() {
	for i, s := range c.Stream.Symbols {
		c.Stream.Symbols[i] = strings.ToUpper(strings.TrimSpace(s))
	}
	for i, q := range c.Trading.QuoteAssets {
		c.Trading.QuoteAssets[i] = strings.ToUpper(q)
	}
}

// Validate checks struct tags and the cross-field rules tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Trading.Live() && (c.Execution.APIKey == "" || c.Execution.APISecret == "") {
		return fmt.Errorf("execution.api_key and execution.api_secret are required in live mode")
	}
	if c.Telemetry.Backend == "kafka" && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when telemetry.backend is kafka")
	}
	if c.Stream.MaxReconnectDelay < c.Stream.ReconnectDelay {
		return fmt.Errorf("stream.max_reconnect_delay must be >= stream.reconnect_delay")
	}
	return nil
}
