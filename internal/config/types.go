package config

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
)

// Config 聚合了系统运行所需的全部配置项。
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Exchange  ExchangeConfig  `mapstructure:"exchange"`
	OpenAI    OpenAIConfig    `mapstructure:"openai"`
	Execution ExecutionConfig `mapstructure:"execution"`
	Context   ContextConfig   `mapstructure:"context"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Translate TranslateConfig `mapstructure:"translate"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// AppConfig 控制应用级参数。
type AppConfig struct {
	Environment string `mapstructure:"environment"`
}

// ExchangeConfig 描述交易所连接信息。
type ExchangeConfig struct {
	Name       string      `mapstructure:"name"`
	Market     string      `mapstructure:"market"`
	APIKey     string      `mapstructure:"api_key"`
	APISecret  string      `mapstructure:"api_secret"`
	UseSandbox bool        `mapstructure:"use_sandbox"`
	Retry      RetryConfig `mapstructure:"retry"`
}

// RetryConfig 统一控制交易所调用的重试机制。
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	MinDelay    time.Duration `mapstructure:"min_delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
}

// OpenAIConfig 描述大模型调用参数。
type OpenAIConfig struct {
	APIKey           string        `mapstructure:"api_key"`
	BaseURL          string        `mapstructure:"base_url"`
	Model            string        `mapstructure:"model"`
	Timeout          time.Duration `mapstructure:"timeout"`
	InstructionsPath string        `mapstructure:"instructions_path"`
	ParseRetries     int           `mapstructure:"parse_retries"`
	ParseRetryDelay  time.Duration `mapstructure:"parse_retry_delay"`
}

// ExecutionConfig 控制下单行为。费率与最小下单金额来自配置，绝不从行情推断。
type ExecutionConfig struct {
	FeeRate     float64 `mapstructure:"fee_rate"`
	MinNotional float64 `mapstructure:"min_notional"`
}

// ContextConfig 控制喂给模型的外部上下文来源。
type ContextConfig struct {
	NewsEnabled     bool          `mapstructure:"news_enabled"`
	SerpAPIKey      string        `mapstructure:"serp_api_key"`
	NewsQuery       string        `mapstructure:"news_query"`
	FearGreedLimit  int           `mapstructure:"fear_greed_limit"`
	RecentDecisions int           `mapstructure:"recent_decisions"`
	HTTPTimeout     time.Duration `mapstructure:"http_timeout"`
}

// NotifyConfig 控制 Slack 通知。
type NotifyConfig struct {
	SlackToken   string        `mapstructure:"slack_token"`
	SlackChannel string        `mapstructure:"slack_channel"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// TranslateConfig 控制决策理由的翻译。
type TranslateConfig struct {
	DeepLAPIKey string        `mapstructure:"deepl_api_key"`
	TargetLang  string        `mapstructure:"target_lang"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// DatabaseConfig 管理决策日志数据库连接。
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	InMemory        bool          `mapstructure:"in_memory"`
}

// LoggingConfig 控制日志输出。
type LoggingConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	Development      bool     `mapstructure:"development"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// SchedulerConfig 控制主循环节奏：每 hour_interval 小时在整点后 minute_offset 分触发一次。
type SchedulerConfig struct {
	HourInterval int  `mapstructure:"hour_interval"`
	MinuteOffset int  `mapstructure:"minute_offset"`
	RunOnStart   bool `mapstructure:"run_on_start"`
}

// Validate 对配置进行基本校验。
func (c *Config) Validate() error {
	var err error

	if c.App.Environment == "" {
		err = multierr.Append(err, errors.New("app.environment 不能为空"))
	}
	if c.Exchange.Name == "" {
		err = multierr.Append(err, errors.New("exchange.name 不能为空"))
	}
	if c.Exchange.Market == "" {
		err = multierr.Append(err, errors.New("exchange.market 不能为空"))
	}
	if c.Exchange.Retry.MaxAttempts <= 0 {
		err = multierr.Append(err, errors.New("exchange.retry.max_attempts 必须大于0"))
	}
	if c.Exchange.Retry.MinDelay <= 0 || c.Exchange.Retry.MaxDelay <= 0 {
		err = multierr.Append(err, errors.New("exchange.retry.delay 必须为正"))
	}
	if c.Exchange.Retry.MinDelay > c.Exchange.Retry.MaxDelay {
		err = multierr.Append(err, errors.New("exchange.retry.min_delay 不能大于 max_delay"))
	}
	if c.OpenAI.APIKey == "" {
		err = multierr.Append(err, errors.New("openai.api_key 不能为空"))
	}
	if c.OpenAI.Model == "" {
		err = multierr.Append(err, errors.New("openai.model 不能为空"))
	}
	if c.OpenAI.Timeout <= 0 {
		err = multierr.Append(err, errors.New("openai.timeout 必须大于0"))
	}
	if c.OpenAI.InstructionsPath == "" {
		err = multierr.Append(err, errors.New("openai.instructions_path 不能为空"))
	}
	if c.OpenAI.ParseRetries <= 0 {
		err = multierr.Append(err, errors.New("openai.parse_retries 必须大于0"))
	}
	if c.OpenAI.ParseRetryDelay < 0 {
		err = multierr.Append(err, errors.New("openai.parse_retry_delay 不能为负"))
	}
	if c.Execution.FeeRate < 0 || c.Execution.FeeRate >= 1 {
		err = multierr.Append(err, errors.New("execution.fee_rate 必须位于[0,1)"))
	}
	if c.Execution.MinNotional <= 0 {
		err = multierr.Append(err, errors.New("execution.min_notional 必须大于0"))
	}
	if c.Context.RecentDecisions < 0 {
		err = multierr.Append(err, errors.New("context.recent_decisions 不能为负"))
	}
	if c.Context.NewsEnabled && c.Context.SerpAPIKey == "" {
		err = multierr.Append(err, errors.New("开启 context.news_enabled 时 serp_api_key 不能为空"))
	}
	if c.Database.Path == "" && !c.Database.InMemory {
		err = multierr.Append(err, errors.New("database.path 不能为空"))
	}
	if c.Database.MaxOpenConns <= 0 {
		err = multierr.Append(err, errors.New("database.max_open_conns 必须大于0"))
	}
	if c.Database.MaxIdleConns < 0 {
		err = multierr.Append(err, errors.New("database.max_idle_conns 不能为负"))
	}
	if c.Database.ConnMaxLifetime < 0 {
		err = multierr.Append(err, errors.New("database.conn_max_lifetime 不能为负"))
	}
	if c.Logging.Level == "" {
		err = multierr.Append(err, errors.New("logging.level 不能为空"))
	}
	if c.Logging.Encoding == "" {
		err = multierr.Append(err, errors.New("logging.encoding 不能为空"))
	}
	if len(c.Logging.OutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.output_paths 至少包含一个输出目标"))
	}
	if len(c.Logging.ErrorOutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.error_output_paths 至少包含一个输出目标"))
	}
	if c.Scheduler.HourInterval <= 0 || c.Scheduler.HourInterval > 24 {
		err = multierr.Append(err, errors.New("scheduler.hour_interval 必须位于[1,24]"))
	} else if 24%c.Scheduler.HourInterval != 0 {
		err = multierr.Append(err, errors.New("scheduler.hour_interval 必须能整除24"))
	}
	if c.Scheduler.MinuteOffset < 0 || c.Scheduler.MinuteOffset > 59 {
		err = multierr.Append(err, errors.New("scheduler.minute_offset 必须位于[0,59]"))
	}

	if err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}

	return nil
}
