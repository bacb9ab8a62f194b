package conf

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

// 配置加载（API密钥、风控参数等），启动时读取一次，之后只读

type WebhookConfig struct {
	Secret string `yaml:"secret"`
	// 信号有效期，超过则丢弃
	SignalExpiry time.Duration `yaml:"signal-expiry"`
}

type Okx struct {
	ApiKey    string `yaml:"apiKey"`
	SecretKey string `yaml:"secretKey"`
	Password  string `yaml:"password"`
	Simulated bool   `yaml:"simulated"`
}

type Db struct {
	DbName   string `yaml:"dbname"`
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// 是否配置了数据库
func (d Db) Enabled() bool {
	return d.Host != "" && d.DbName != ""
}

type LogConfig struct {
	Level      string `yaml:"level"`
	FileName   string `yaml:"file-name"`
	TimeFormat string `yaml:"time-format"`
	MaxSize    int    `yaml:"max-size"`
	MaxBackups int    `yaml:"max-backups"`
	MaxAge     int    `yaml:"max-age"`
	Compress   bool   `yaml:"compress"`
	LocalTime  bool   `yaml:"local-time"`
	Console    bool   `yaml:"console"`
}

type KafkaConfig struct {
	Broker  string `yaml:"broker"`
	Topic   string `yaml:"topic"`
	GroupID string `yaml:"group-id"`
}

// 成交记录，没有数据库时写入本地 json 文件
type JournalConfig struct {
	FilePath string `yaml:"file-path"`
}

// TradingConfig 交易与风控参数
type TradingConfig struct {
	Pairs     []string      `yaml:"pairs" validate:"required,min=1,dive,required"`
	Timeframe string        `yaml:"timeframe"`
	Interval  time.Duration `yaml:"interval" validate:"gt=0"`
	// 计价币种，用于计算可用资金
	QuoteCurrency string `yaml:"quote-currency" validate:"required"`

	FeeRate       float64 `yaml:"fee-rate" validate:"gte=0,lt=1"`
	StopLossPct   float64 `yaml:"stop-loss-pct" validate:"gte=0,lte=1"`
	TakeProfitPct float64 `yaml:"take-profit-pct" validate:"gte=0"`
	RiskFactorPct float64 `yaml:"risk-factor-pct" validate:"gte=0,lte=1"`
	MinNotional   float64 `yaml:"min-notional" validate:"gte=0"`

	GatewayTimeout time.Duration `yaml:"gateway-timeout" validate:"gt=0"`
	Concurrency    int           `yaml:"concurrency" validate:"gte=1"`
	// 买入后是否挂止盈限价单
	TakeProfitLimit bool `yaml:"take-profit-limit"`

	// 模拟盘
	Paper        bool    `yaml:"paper"`
	PaperBalance float64 `yaml:"paper-balance" validate:"gte=0"`
}

type Config struct {
	AppName      string `yaml:"app_name"`
	Listen       string `yaml:"listen"`
	Mode         string `yaml:"mode"`
	MaxPingCount int    `yaml:"max-ping-count"`

	Webhook WebhookConfig `yaml:"webhook"`
	Okx     `yaml:"okx"`
	Db      `yaml:"database"`
	Log     LogConfig     `yaml:"log"`
	Kafka   KafkaConfig   `yaml:"kafka"`
	Journal JournalConfig `yaml:"journal"`
	Trading TradingConfig `yaml:"trading"`
}

var AppConfig Config

var validate = validator.New()

// Default 默认配置，与 yaml 中缺省的字段合并
func Default() Config {
	return Config{
		AppName:      "spotflow",
		Listen:       ":12180",
		Mode:         "release",
		MaxPingCount: 10,
		Webhook: WebhookConfig{
			SignalExpiry: 10 * time.Minute,
		},
		Log: LogConfig{
			Level:   "info",
			Console: true,
		},
		Journal: JournalConfig{
			FilePath: "data/fills.jsonl",
		},
		Trading: TradingConfig{
			Timeframe:      "5m",
			Interval:       time.Minute,
			QuoteCurrency:  "USDT",
			FeeRate:        0.001,
			StopLossPct:    0.05,
			TakeProfitPct:  0.09,
			RiskFactorPct:  0.15,
			MinNotional:    12,
			GatewayTimeout: 5 * time.Second,
			Concurrency:    1,
			PaperBalance:   1000,
		},
	}
}

func LoadConfig(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	AppConfig = *cfg
	return nil
}

// Load 读取 yaml 配置，叠加 .env 与环境变量后校验
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("Read config file error %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("Unmarshal config yaml error: %w", err)
	}

	// .env 不存在时忽略
	_ = godotenv.Load()
	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) && len(ve) > 0 {
			return fmt.Errorf("invalid config %s: failed on '%s'", ve[0].Namespace(), ve[0].Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// 环境变量覆盖，密钥优先从环境变量读取
func applyEnv(cfg *Config) {
	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	setFloat := func(key string, dst *float64) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			if f, err := cast.ToFloat64E(v); err == nil {
				*dst = f
			}
		}
	}

	setString("OKX_API_KEY", &cfg.Okx.ApiKey)
	setString("OKX_SECRET_KEY", &cfg.Okx.SecretKey)
	setString("OKX_PASSWORD", &cfg.Okx.Password)
	if v, ok := os.LookupEnv("OKX_SIMULATED"); ok && v != "" {
		cfg.Okx.Simulated = cast.ToBool(v)
	}

	setString("DB_USER", &cfg.Db.Username)
	setString("DB_PASSWORD", &cfg.Db.Password)
	setString("DB_HOST", &cfg.Db.Host)
	setString("DB_PORT", &cfg.Db.Port)
	setString("DB_NAME", &cfg.Db.DbName)

	setString("WEBHOOK_SECRET", &cfg.Webhook.Secret)
	setString("KAFKA_BROKER", &cfg.Kafka.Broker)

	setFloat("TRADING_FEE_RATE", &cfg.Trading.FeeRate)
	setFloat("TRADING_STOP_LOSS_PCT", &cfg.Trading.StopLossPct)
	setFloat("TRADING_TAKE_PROFIT_PCT", &cfg.Trading.TakeProfitPct)
	setFloat("TRADING_RISK_FACTOR_PCT", &cfg.Trading.RiskFactorPct)
	setFloat("TRADING_MIN_NOTIONAL", &cfg.Trading.MinNotional)
	if v, ok := os.LookupEnv("TRADING_PAPER"); ok && v != "" {
		cfg.Trading.Paper = cast.ToBool(v)
	}
}
