package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	DB       DBConfig       `mapstructure:"db"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Cron     CronConfig     `mapstructure:"cron"`
	Jobs     JobsConfig     `mapstructure:"jobs"`
	Calendar CalendarConfig `mapstructure:"calendar"`
	Market   MarketConfig   `mapstructure:"market"`
	Notify   NotifyConfig   `mapstructure:"notify"`

	// Decision pipeline stages.
	Regime     RegimeConfig     `mapstructure:"regime"`
	Direction  DirectionConfig  `mapstructure:"direction"`
	Strikes    StrikesConfig    `mapstructure:"strikes"`
	Sizing     SizingConfig     `mapstructure:"sizing"`
	Exits      ExitsConfig      `mapstructure:"exits"`
	GuardRails GuardRailsConfig `mapstructure:"guard_rails"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	// Driver is "postgres" or "memory".
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

type CacheConfig struct {
	// Backend is "memory", "redis" or "none".
	Backend       string        `mapstructure:"backend"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	SnapshotTTL   time.Duration `mapstructure:"snapshot_ttl"`
	ChainTTL      time.Duration `mapstructure:"chain_ttl"`
}

type CronConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Reconcile string `mapstructure:"reconcile"`
}

type JobsConfig struct {
	SeedFile   string        `mapstructure:"seed_file"`
	StaleAfter time.Duration `mapstructure:"stale_after"`
	Retry      RetryConfig   `mapstructure:"retry"`
}

type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

type CalendarConfig struct {
	Timezone string `mapstructure:"timezone"`
}

type MarketConfig struct {
	// SnapshotSource is "gateway" or "alpaca".
	SnapshotSource string        `mapstructure:"snapshot_source"`
	Gateway        GatewayConfig `mapstructure:"gateway"`
	Alpaca         AlpacaConfig  `mapstructure:"alpaca"`
}

type GatewayConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	APIKey        string        `mapstructure:"api_key"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RatePerSecond float64       `mapstructure:"rate_per_second"`
	Burst         int           `mapstructure:"burst"`
}

type AlpacaConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	APIKey    string `mapstructure:"api_key"`
	APISecret string `mapstructure:"api_secret"`
	BaseURL   string `mapstructure:"base_url"`
	DataURL   string `mapstructure:"data_url"`
}

type NotifyConfig struct {
	WebhookURL string        `mapstructure:"webhook_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type RegimeConfig struct {
	// VIX 52-period band used for IV rank.
	VIXLow  float64 `mapstructure:"vix_low"`
	VIXHigh float64 `mapstructure:"vix_high"`
	// Upper VIX bounds for LOW, NORMAL, ELEVATED and HIGH; anything above is EXTREME.
	LowMax      float64 `mapstructure:"low_max"`
	NormalMax   float64 `mapstructure:"normal_max"`
	ElevatedMax float64 `mapstructure:"elevated_max"`
	HighMax     float64 `mapstructure:"high_max"`
}

type DirectionConfig struct {
	VWAPBandPct     float64 `mapstructure:"vwap_band_pct"`
	RangeUpperPct   float64 `mapstructure:"range_upper_pct"`
	RangeLowerPct   float64 `mapstructure:"range_lower_pct"`
	GapThresholdPct float64 `mapstructure:"gap_threshold_pct"`
	WeightTrend     float64 `mapstructure:"weight_trend"`
	WeightRange     float64 `mapstructure:"weight_range"`
	WeightRegime    float64 `mapstructure:"weight_regime"`
	WeightTerm      float64 `mapstructure:"weight_term"`
	WeightGap       float64 `mapstructure:"weight_gap"`
}

type StrikesConfig struct {
	DeltaMin         float64 `mapstructure:"delta_min"`
	DeltaMax         float64 `mapstructure:"delta_max"`
	MinOpenInterest  int64   `mapstructure:"min_open_interest"`
	DeepOpenInterest int64   `mapstructure:"deep_open_interest"`
	MaxRelSpread     float64 `mapstructure:"max_rel_spread"`
	IVMin            float64 `mapstructure:"iv_min"`
	IVMax            float64 `mapstructure:"iv_max"`
	GammaMax         float64 `mapstructure:"gamma_max"`
}

type SizingConfig struct {
	PerSymbolCapUSD float64 `mapstructure:"per_symbol_cap_usd"`
	Aggression      float64 `mapstructure:"aggression"`
	MaxContracts    int     `mapstructure:"max_contracts"`
	// SpreadWidth adds protective long legs this far OTM of each short strike; 0 disables wings.
	SpreadWidth float64 `mapstructure:"spread_width"`
}

type ExitsConfig struct {
	StopMultiplier float64 `mapstructure:"stop_multiplier"`
}

type GuardRailsConfig struct {
	AllowedSymbols    []string `mapstructure:"allowed_symbols"`
	AllowedStrategies []string `mapstructure:"allowed_strategies"`
	DeltaMin          float64  `mapstructure:"delta_min"`
	DeltaMax          float64  `mapstructure:"delta_max"`
	PortfolioDeltaCap float64  `mapstructure:"portfolio_delta_cap"`
	MaxMarginUSD      float64  `mapstructure:"max_margin_usd"`
	MaxContracts      int      `mapstructure:"max_contracts"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ZDTE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.driver", "postgres")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_open_conns", 10)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.redis_addr", "")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.snapshot_ttl", "5s")
	v.SetDefault("cache.chain_ttl", "15s")
	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.reconcile", "@every 1m")
	v.SetDefault("jobs.seed_file", "config/jobs.yaml")
	v.SetDefault("jobs.stale_after", "15m")
	v.SetDefault("jobs.retry.max_attempts", 3)
	v.SetDefault("jobs.retry.base_delay", "2s")
	v.SetDefault("jobs.retry.max_delay", "30s")
	v.SetDefault("calendar.timezone", "America/New_York")
	v.SetDefault("market.snapshot_source", "gateway")
	v.SetDefault("market.gateway.base_url", "http://localhost:8091")
	v.SetDefault("market.gateway.timeout", "10s")
	v.SetDefault("market.gateway.rate_per_second", 5)
	v.SetDefault("market.gateway.burst", 2)
	v.SetDefault("market.alpaca.enabled", false)
	v.SetDefault("market.alpaca.base_url", "https://paper-api.alpaca.markets")
	v.SetDefault("market.alpaca.data_url", "https://data.alpaca.markets")
	v.SetDefault("notify.webhook_url", "")
	v.SetDefault("notify.timeout", "5s")

	v.SetDefault("regime.vix_low", 11)
	v.SetDefault("regime.vix_high", 35)
	v.SetDefault("regime.low_max", 15)
	v.SetDefault("regime.normal_max", 20)
	v.SetDefault("regime.elevated_max", 25)
	v.SetDefault("regime.high_max", 35)

	v.SetDefault("direction.vwap_band_pct", 0.10)
	v.SetDefault("direction.range_upper_pct", 70)
	v.SetDefault("direction.range_lower_pct", 30)
	v.SetDefault("direction.gap_threshold_pct", 0.50)
	v.SetDefault("direction.weight_trend", 2.0)
	v.SetDefault("direction.weight_range", 1.5)
	v.SetDefault("direction.weight_regime", 1.5)
	v.SetDefault("direction.weight_term", 1.0)
	v.SetDefault("direction.weight_gap", 1.0)

	v.SetDefault("strikes.delta_min", 0.10)
	v.SetDefault("strikes.delta_max", 0.30)
	v.SetDefault("strikes.min_open_interest", 100)
	v.SetDefault("strikes.deep_open_interest", 1000)
	v.SetDefault("strikes.max_rel_spread", 0.15)
	v.SetDefault("strikes.iv_min", 0.05)
	v.SetDefault("strikes.iv_max", 1.00)
	v.SetDefault("strikes.gamma_max", 0.10)

	v.SetDefault("sizing.per_symbol_cap_usd", 10000)
	v.SetDefault("sizing.aggression", 50)
	v.SetDefault("sizing.max_contracts", 20)
	v.SetDefault("sizing.spread_width", 5)

	v.SetDefault("exits.stop_multiplier", 3)

	v.SetDefault("guard_rails.allowed_symbols", []string{"SPY", "QQQ", "IWM", "SPX"})
	v.SetDefault("guard_rails.allowed_strategies", []string{
		"short_put", "short_call", "short_strangle",
		"put_credit_spread", "call_credit_spread", "iron_condor",
	})
	v.SetDefault("guard_rails.delta_min", 0.10)
	v.SetDefault("guard_rails.delta_max", 0.30)
	v.SetDefault("guard_rails.portfolio_delta_cap", 0.50)
	v.SetDefault("guard_rails.max_margin_usd", 10000)
	v.SetDefault("guard_rails.max_contracts", 20)

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
