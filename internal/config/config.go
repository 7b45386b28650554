package config

import (
	"errors"
	"fmt"
	"strings"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	defaultConfigPath = "configs/config.yaml"
	envPrefix         = "coinpilot"
)

// Load 读取配置文件并结合环境变量返回 Config。
func Load(path string) (*Config, error) {
	v := viper.New()

	if path == "" {
		path = defaultConfigPath
	}

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix(envPrefix)
	replacer := strings.NewReplacer(".", "_")
	v.SetEnvKeyReplacer(replacer)
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("未找到配置文件 %q: %w", path, err)
		}
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.environment", "development")

	v.SetDefault("exchange.name", "upbit")
	v.SetDefault("exchange.market", "BTC/KRW")
	v.SetDefault("exchange.use_sandbox", false)
	v.SetDefault("exchange.retry.max_attempts", 5)
	v.SetDefault("exchange.retry.min_delay", "500ms")
	v.SetDefault("exchange.retry.max_delay", "5s")

	v.SetDefault("openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("openai.model", "gpt-4-turbo-preview")
	v.SetDefault("openai.timeout", "60s")
	v.SetDefault("openai.instructions_path", "configs/instructions.md")
	v.SetDefault("openai.parse_retries", 3)
	v.SetDefault("openai.parse_retry_delay", "5s")

	// Upbit 市价单手续费 0.05%，最小下单金额 5000 KRW。
	v.SetDefault("execution.fee_rate", 0.0005)
	v.SetDefault("execution.min_notional", 5000)

	v.SetDefault("context.news_enabled", false)
	v.SetDefault("context.news_query", "btc")
	v.SetDefault("context.fear_greed_limit", 30)
	v.SetDefault("context.recent_decisions", 10)
	v.SetDefault("context.http_timeout", "10s")

	v.SetDefault("notify.slack_channel", "#bitcoin-gpt")
	v.SetDefault("notify.timeout", "10s")

	v.SetDefault("translate.target_lang", "KO")
	v.SetDefault("translate.timeout", "10s")

	v.SetDefault("database.path", "data/coinpilot.db")
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.max_idle_conns", 4)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.in_memory", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.encoding", "console")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.output_paths", []string{"stdout"})
	v.SetDefault("logging.error_output_paths", []string{"stderr"})

	v.SetDefault("scheduler.hour_interval", 8)
	v.SetDefault("scheduler.minute_offset", 1)
	v.SetDefault("scheduler.run_on_start", true)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
