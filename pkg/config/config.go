// 配置管理
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 主配置结构
type Config struct {
	System        SystemConfig        `mapstructure:"system"`
	Temporal      TemporalConfig      `mapstructure:"temporal"`
	Storage       StorageConfig       `mapstructure:"storage"`
	LLM           LLMConfig           `mapstructure:"llm"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Model         ModelConfig         `mapstructure:"model"`
}

// SystemConfig 系统配置
type SystemConfig struct {
	Env             string        `mapstructure:"env"`
	ServiceName     string        `mapstructure:"service_name"`
	Version         string        `mapstructure:"version"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// TemporalConfig Temporal 配置
type TemporalConfig struct {
	Address   string       `mapstructure:"address"`
	Namespace string       `mapstructure:"namespace"`
	TaskQueue string       `mapstructure:"task_queue"`
	Worker    WorkerConfig `mapstructure:"worker"`
}

// WorkerConfig Worker 配置
type WorkerConfig struct {
	MaxConcurrentActivities int `mapstructure:"max_concurrent_activities"`
	MaxConcurrentWorkflows  int `mapstructure:"max_concurrent_workflows"`
}

// StorageConfig 存储配置
type StorageConfig struct {
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Address      string        `mapstructure:"address"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	ModelTTL     time.Duration `mapstructure:"model_ttl"`
	EventStream  string        `mapstructure:"event_stream"`
}

// LLMConfig 投资论点生成所用的 LLM Bridge 配置
type LLMConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Model         string        `mapstructure:"model"`
	BridgeAddress string        `mapstructure:"bridge_address"`
	APIKey        string        `mapstructure:"api_key"`
	Timeout       time.Duration `mapstructure:"timeout"`
	MaxRetries    int           `mapstructure:"max_retries"`
}

// ObservabilityConfig 可观测性配置
type ObservabilityConfig struct {
	Tracing TracingConfig `mapstructure:"tracing"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// TracingConfig 追踪配置
type TracingConfig struct {
	Enabled    bool    `mapstructure:"enabled"`
	Endpoint   string  `mapstructure:"endpoint"`
	SampleRate float64 `mapstructure:"sample_rate"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// ModelConfig 财务模型配置
type ModelConfig struct {
	Linker      LinkerConfig      `mapstructure:"linker"`
	Assumptions AssumptionsConfig `mapstructure:"assumptions"`
	Forecast    ForecastConfig    `mapstructure:"forecast"`
	Valuation   ValuationConfig   `mapstructure:"valuation"`
}

// LinkerConfig 历史报表补全规则与平衡校验容差
//
// 补全规则都是经验估计，不是会计事实；触发时会记录在 LinkedModel.DerivedFields 中。
type LinkerConfig struct {
	GrossFromNetRevenueShare float64 `mapstructure:"gross_from_net_revenue_share"`
	DefaultGrossMargin       float64 `mapstructure:"default_gross_margin"`
	OperatingFromNetMultiple float64 `mapstructure:"operating_from_net_multiple"`
	OperatingFromGrossShare  float64 `mapstructure:"operating_from_gross_share"`
	MinGrossMargin           float64 `mapstructure:"min_gross_margin"`
	SanityRevenueFloor       float64 `mapstructure:"sanity_revenue_floor"`
	DepreciationShareOfEBIT  float64 `mapstructure:"depreciation_share_of_ebit"`
	BalanceAbsoluteTolerance float64 `mapstructure:"balance_absolute_tolerance"`
	BalanceRelativeTolerance float64 `mapstructure:"balance_relative_tolerance"`
	LinkageRelativeTolerance float64 `mapstructure:"linkage_relative_tolerance"`
}

// AssumptionsConfig 全局默认假设与情景偏移
type AssumptionsConfig struct {
	RevenueGrowthRate        float64 `mapstructure:"revenue_growth_rate"`
	GrossMargin              float64 `mapstructure:"gross_margin"`
	OperatingMargin          float64 `mapstructure:"operating_margin"`
	TaxRate                  float64 `mapstructure:"tax_rate"`
	CapexPercentOfRevenue    float64 `mapstructure:"capex_percent_of_revenue"`
	DaysSalesOutstanding     float64 `mapstructure:"days_sales_outstanding"`
	DaysInventoryOutstanding float64 `mapstructure:"days_inventory_outstanding"`
	DaysPayableOutstanding   float64 `mapstructure:"days_payable_outstanding"`
	DividendPayoutRatio      float64 `mapstructure:"dividend_payout_ratio"`
	WACC                     float64 `mapstructure:"wacc"`
	TerminalGrowthRate       float64 `mapstructure:"terminal_growth_rate"`
	WACCEpsilon              float64 `mapstructure:"wacc_epsilon"`

	Aggressive   ScenarioBias `mapstructure:"aggressive"`
	Conservative ScenarioBias `mapstructure:"conservative"`
}

// ScenarioBias 情景相对基准情景的增长与利润率偏移
type ScenarioBias struct {
	GrowthDelta float64 `mapstructure:"growth_delta"`
	MarginDelta float64 `mapstructure:"margin_delta"`
}

// ForecastConfig 预测配置
type ForecastConfig struct {
	DefaultYears int `mapstructure:"default_years"`
	MaxYears     int `mapstructure:"max_years"`
}

// ValuationConfig 估值与评级阈值
//
// BUY/SELL 阈值是可配置参数，不代表对市场行为的判断。
type ValuationConfig struct {
	BuyUpsideThreshold  float64 `mapstructure:"buy_upside_threshold"`
	SellUpsideThreshold float64 `mapstructure:"sell_upside_threshold"`
}

// Load 加载配置
func Load() (*Config, error) {
	// 确定配置文件路径
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	// 环境变量替换
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// 处理环境变量中的密钥
	config.LLM.APIKey = os.ExpandEnv(config.LLM.APIKey)
	config.Storage.Redis.Password = os.ExpandEnv(config.Storage.Redis.Password)

	// 设置默认值
	setDefaults(&config)

	return &config, nil
}

// Default 返回全部默认值填充的配置，供库调用与测试使用
func Default() *Config {
	cfg := &Config{}
	setDefaults(cfg)
	return cfg
}

func setDefaults(cfg *Config) {
	if cfg.System.ServiceName == "" {
		cfg.System.ServiceName = "finanalyzer"
	}
	if cfg.System.ShutdownTimeout == 0 {
		cfg.System.ShutdownTimeout = 30 * time.Second
	}
	if cfg.Temporal.TaskQueue == "" {
		cfg.Temporal.TaskQueue = "financial-model"
	}
	if cfg.Temporal.Worker.MaxConcurrentActivities == 0 {
		cfg.Temporal.Worker.MaxConcurrentActivities = 20
	}
	if cfg.Temporal.Worker.MaxConcurrentWorkflows == 0 {
		cfg.Temporal.Worker.MaxConcurrentWorkflows = 10
	}
	if cfg.Storage.Redis.PoolSize == 0 {
		cfg.Storage.Redis.PoolSize = 100
	}
	if cfg.Storage.Redis.ModelTTL == 0 {
		cfg.Storage.Redis.ModelTTL = 24 * time.Hour
	}
	if cfg.Storage.Redis.EventStream == "" {
		cfg.Storage.Redis.EventStream = "finmodel:valuations"
	}
	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = 120 * time.Second
	}
	if cfg.LLM.BridgeAddress == "" {
		cfg.LLM.BridgeAddress = "localhost:50051"
	}
	if cfg.LLM.MaxRetries == 0 {
		cfg.LLM.MaxRetries = 2
	}
	if cfg.Observability.Metrics.Port == 0 {
		cfg.Observability.Metrics.Port = 9090
	}
	if cfg.Observability.Metrics.Path == "" {
		cfg.Observability.Metrics.Path = "/metrics"
	}
	if cfg.Observability.Tracing.SampleRate == 0 {
		cfg.Observability.Tracing.SampleRate = 0.1
	}
	setModelDefaults(&cfg.Model)
}

func setModelDefaults(m *ModelConfig) {
	l := &m.Linker
	defaultFloat(&l.GrossFromNetRevenueShare, 0.20)
	defaultFloat(&l.DefaultGrossMargin, 0.40)
	defaultFloat(&l.OperatingFromNetMultiple, 1.15)
	defaultFloat(&l.OperatingFromGrossShare, 0.60)
	defaultFloat(&l.MinGrossMargin, 0.01)
	defaultFloat(&l.SanityRevenueFloor, 1_000_000)
	defaultFloat(&l.DepreciationShareOfEBIT, 0.10)
	defaultFloat(&l.BalanceAbsoluteTolerance, 1)
	defaultFloat(&l.BalanceRelativeTolerance, 1e-6)
	defaultFloat(&l.LinkageRelativeTolerance, 1e-3)

	a := &m.Assumptions
	defaultFloat(&a.RevenueGrowthRate, 0.05)
	defaultFloat(&a.GrossMargin, 0.40)
	defaultFloat(&a.OperatingMargin, 0.15)
	defaultFloat(&a.TaxRate, 0.21)
	defaultFloat(&a.CapexPercentOfRevenue, 0.05)
	defaultFloat(&a.DaysSalesOutstanding, 45)
	defaultFloat(&a.DaysInventoryOutstanding, 60)
	defaultFloat(&a.DaysPayableOutstanding, 35)
	defaultFloat(&a.WACC, 0.10)
	defaultFloat(&a.TerminalGrowthRate, 0.025)
	defaultFloat(&a.WACCEpsilon, 0.01)
	if a.Aggressive == (ScenarioBias{}) {
		a.Aggressive = ScenarioBias{GrowthDelta: 0.05, MarginDelta: 0.03}
	}
	if a.Conservative == (ScenarioBias{}) {
		a.Conservative = ScenarioBias{GrowthDelta: -0.03, MarginDelta: -0.03}
	}

	if m.Forecast.DefaultYears == 0 {
		m.Forecast.DefaultYears = 5
	}
	if m.Forecast.MaxYears == 0 {
		m.Forecast.MaxYears = 30
	}

	defaultFloat(&m.Valuation.BuyUpsideThreshold, 0.15)
	defaultFloat(&m.Valuation.SellUpsideThreshold, -0.10)
}

func defaultFloat(v *float64, def float64) {
	if *v == 0 {
		*v = def
	}
}
