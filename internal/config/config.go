// Package config loads the trader's YAML configuration.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	KIS                KISConfig          `yaml:"kis"`
	Trading            TradingConfig      `yaml:"trading"`
	PositionManagement PositionConfig     `yaml:"position_management"`
	Order              OrderConfig        `yaml:"order"`
	Broker             BrokerConfig       `yaml:"broker"`
	Strategy           StrategyConfig     `yaml:"strategy"`
	Watchlist          WatchlistConfig    `yaml:"watchlist"`
	Notification       NotificationConfig `yaml:"notification"`
	Storage            StorageConfig      `yaml:"storage"`
	Server             ServerConfig       `yaml:"server"`
	Logging            LoggingConfig      `yaml:"logging"`
	Schedule           ScheduleConfig     `yaml:"schedule"`
}

type KISConfig struct {
	AppKey    string `yaml:"app_key" validate:"required"`
	AppSecret string `yaml:"app_secret" validate:"required"`
	BaseURL   string `yaml:"base_url" validate:"required,url"`
	AccountNo string `yaml:"account_no" validate:"required,contains=-"`
}

type TradingConfig struct {
	Symbols            []string `yaml:"symbols"`
	MaxSymbols         int      `yaml:"max_symbols" validate:"gte=1"`
	MaxPositionRatio   float64  `yaml:"max_position_ratio" validate:"gt=0,lte=1"`
	MinInvestment      int64    `yaml:"min_investment" validate:"gte=0"`
	DailyLossLimit     float64  `yaml:"daily_loss_limit" validate:"gt=0,lt=1"`
	StopLossPct        float64  `yaml:"stop_loss_pct" validate:"gt=0,lt=1"`
	TakeProfitPct      float64  `yaml:"take_profit_pct" validate:"gt=0"`
	SellSignalFloor    float64  `yaml:"sell_signal_floor" validate:"gte=0"`
	MinBuyStrength     float64  `yaml:"min_buy_strength" validate:"gte=0"`
	MaxDailyTrades     int      `yaml:"max_daily_trades" validate:"gte=1"`
	PartialFillAllowed *bool    `yaml:"partial_fill_allowed"`
}

type PositionConfig struct {
	MaxPurchasesPerSymbol int           `yaml:"max_purchases_per_symbol" validate:"gte=1"`
	MaxQuantityPerSymbol  int64         `yaml:"max_quantity_per_symbol" validate:"gte=1"`
	MinHoldingPeriod      time.Duration `yaml:"min_holding_period" validate:"gte=0"`
	PurchaseCooldown      time.Duration `yaml:"purchase_cooldown" validate:"gte=0"`
	LedgerFile            string        `yaml:"ledger_file" validate:"required"`
}

type OrderConfig struct {
	Timeout            time.Duration `yaml:"timeout" validate:"gt=0"`
	PollInterval       time.Duration `yaml:"poll_interval" validate:"gt=0"`
	PriceOffsetPct     float64       `yaml:"price_offset_pct" validate:"gt=0,lt=0.05"`
	MaxSellEscalations int           `yaml:"max_sell_escalations" validate:"gte=0"`
	MarketFallback     *bool         `yaml:"market_fallback_on_reject"`
}

type BrokerConfig struct {
	MinInterval           time.Duration `yaml:"min_interval" validate:"gte=0"`
	RequestTimeout        time.Duration `yaml:"request_timeout" validate:"gt=0"`
	MaxAttempts           int           `yaml:"max_attempts" validate:"gte=1"`
	BaseDelay             time.Duration `yaml:"base_delay" validate:"gt=0"`
	Multiplier            float64       `yaml:"multiplier" validate:"gte=1"`
	MaxDelay              time.Duration `yaml:"max_delay" validate:"gt=0"`
	FallbackAfterTimeouts int           `yaml:"fallback_after_timeouts" validate:"gte=1"`
	RecoveryProbeInterval time.Duration `yaml:"recovery_probe_interval" validate:"gt=0"`
	TokenFile             string        `yaml:"token_file" validate:"required"`
}

type StrategyConfig struct {
	Kind            string         `yaml:"kind" validate:"oneof=hybrid momentum legacy_score"`
	DailyCacheTTL   time.Duration  `yaml:"daily_cache_ttl" validate:"gte=0"`
	DailyLookback   int            `yaml:"daily_lookback" validate:"gte=100"`
	MinuteWindow    int            `yaml:"minute_window" validate:"gte=20"`
	MinBuyScore     float64        `yaml:"min_buy_score"`
	MinSellScore    float64        `yaml:"min_sell_score"`
	Momentum        MomentumConfig `yaml:"momentum"`
	RequireTiming   *bool          `yaml:"require_minute_timing"`
}

type MomentumConfig struct {
	Period          int     `yaml:"period" validate:"gte=2"`
	Threshold       float64 `yaml:"threshold"`
	VolumeThreshold float64 `yaml:"volume_threshold"`
	MAShort         int     `yaml:"ma_short" validate:"gte=2"`
	MALong          int     `yaml:"ma_long" validate:"gtefield=MAShort"`
}

type WatchlistConfig struct {
	File               string  `yaml:"file"`
	MinReturnThreshold float64 `yaml:"min_return_threshold"`
	Watch              bool    `yaml:"watch"`
}

type NotificationConfig struct {
	DiscordWebhook     string `yaml:"discord_webhook" validate:"omitempty,url"`
	NotifyOnTrade      bool   `yaml:"notify_on_trade"`
	NotifyOnError      bool   `yaml:"notify_on_error"`
	NotifyDailySummary bool   `yaml:"notify_daily_summary"`
}

type StorageConfig struct {
	JournalDB string `yaml:"journal_db" validate:"required"`
}

type ServerConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port" validate:"gte=0,lte=65535"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

type ScheduleConfig struct {
	Open            string        `yaml:"open" validate:"datetime=15:04"`
	Close           string        `yaml:"close" validate:"datetime=15:04"`
	CheckInterval   time.Duration `yaml:"check_interval" validate:"gt=0"`
	DebugInterval   time.Duration `yaml:"debug_interval" validate:"gt=0"`
	ClosedInterval  time.Duration `yaml:"closed_interval" validate:"gt=0"`
	PositionRefresh time.Duration `yaml:"position_refresh" validate:"gt=0"`
	Holidays        []string      `yaml:"holidays" validate:"dive,datetime=2006-01-02"`
}

// Load reads, defaults, overrides from env and validates the config at path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cfg := Default()
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the config with every tunable at its stock value.
func Default() *Config {
	yes := true
	return &Config{
		KIS: KISConfig{BaseURL: "https://openapi.koreainvestment.com:9443"},
		Trading: TradingConfig{
			MaxSymbols:         4,
			MaxPositionRatio:   0.4,
			MinInvestment:      100_000,
			DailyLossLimit:     0.05,
			StopLossPct:        0.08,
			TakeProfitPct:      0.25,
			SellSignalFloor:    3.0,
			MinBuyStrength:     3.0,
			MaxDailyTrades:     100,
			PartialFillAllowed: &yes,
		},
		PositionManagement: PositionConfig{
			MaxPurchasesPerSymbol: 2,
			MaxQuantityPerSymbol:  300,
			MinHoldingPeriod:      72 * time.Hour,
			PurchaseCooldown:      48 * time.Hour,
			LedgerFile:            "position_history.json",
		},
		Order: OrderConfig{
			Timeout:            5 * time.Minute,
			PollInterval:       10 * time.Second,
			PriceOffsetPct:     0.003,
			MaxSellEscalations: 3,
			MarketFallback:     &yes,
		},
		Broker: BrokerConfig{
			MinInterval:           100 * time.Millisecond,
			RequestTimeout:        10 * time.Second,
			MaxAttempts:           3,
			BaseDelay:             time.Second,
			Multiplier:            2,
			MaxDelay:              10 * time.Second,
			FallbackAfterTimeouts: 3,
			RecoveryProbeInterval: 5 * time.Minute,
			TokenFile:             "token.json",
		},
		Strategy: StrategyConfig{
			Kind:          "hybrid",
			DailyCacheTTL: 4 * time.Hour,
			DailyLookback: 252,
			MinuteWindow:  60,
			MinBuyScore:   4,
			MinSellScore:  3,
			Momentum: MomentumConfig{
				Period:          20,
				Threshold:       0.02,
				VolumeThreshold: 1.5,
				MAShort:         5,
				MALong:          20,
			},
			RequireTiming: &yes,
		},
		Watchlist: WatchlistConfig{
			File:               "backtest_results.json",
			MinReturnThreshold: 5.0,
			Watch:              true,
		},
		Notification: NotificationConfig{NotifyOnTrade: true, NotifyOnError: true, NotifyDailySummary: true},
		Storage:      StorageConfig{JournalDB: "trades.db"},
		Server:       ServerConfig{Enabled: true, Port: 8080},
		Logging:      LoggingConfig{Level: "info", File: "logs/trader.log"},
		Schedule: ScheduleConfig{
			Open:            "09:00",
			Close:           "15:30",
			CheckInterval:   30 * time.Minute,
			DebugInterval:   15 * time.Minute,
			ClosedInterval:  10 * time.Minute,
			PositionRefresh: 10 * time.Minute,
		},
	}
}

func (c *Config) applyEnv() {
	override := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	override(&c.KIS.AppKey, "KIS_APP_KEY")
	override(&c.KIS.AppSecret, "KIS_APP_SECRET")
	override(&c.KIS.AccountNo, "KIS_ACCOUNT_NO")
	override(&c.KIS.BaseURL, "KIS_BASE_URL")
	override(&c.Notification.DiscordWebhook, "DISCORD_WEBHOOK_URL")
}

func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// PaperTrading reports whether the base URL points at the virtual trading host.
func (c *Config) PaperTrading() bool {
	return strings.Contains(c.KIS.BaseURL, "vts")
}

func (c *TradingConfig) AllowPartialFill() bool {
	return c.PartialFillAllowed == nil || *c.PartialFillAllowed
}

func (c *OrderConfig) AllowMarketFallback() bool {
	return c.MarketFallback == nil || *c.MarketFallback
}

func (c *StrategyConfig) TimingRequired() bool {
	return c.RequireTiming == nil || *c.RequireTiming
}
