package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"coinpilot/internal/account"
	"coinpilot/internal/ai"
	"coinpilot/internal/config"
	"coinpilot/internal/exchange"
	"coinpilot/internal/execution"
	"coinpilot/internal/feature"
	"coinpilot/internal/indicator"
	"coinpilot/internal/news"
	"coinpilot/internal/notify"
	"coinpilot/internal/retry"
	"coinpilot/internal/store"
	"coinpilot/internal/translate"
)

// App 负责组件装配与主循环调度。
type App struct {
	cfg          config.Config
	logger       *zap.Logger
	orchestrator *Orchestrator
	storage      *store.Store
}

// New 按配置装配全部组件。
func New(cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := exchange.NewClient(cfg.Exchange, logger)
	if err != nil {
		return nil, fmt.Errorf("初始化交易所客户端失败: %w", err)
	}

	marketData := exchange.NewMarketDataService(client, logger)
	reader := account.NewReader(client, cfg.Exchange.Market, logger)
	extractor := feature.NewExtractor(indicator.NewCalculator(), logger)
	executor := execution.NewExecutor(client, reader, cfg.Execution, logger)

	brain, err := ai.NewClient(cfg.OpenAI, logger)
	if err != nil {
		return nil, fmt.Errorf("初始化决策客户端失败: %w", err)
	}

	storage, err := store.NewSQLite(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("初始化数据库失败: %w", err)
	}

	decisionLog, err := store.NewDecisionLog(storage, logger)
	if err != nil {
		_ = storage.Close()
		return nil, fmt.Errorf("初始化决策日志失败: %w", err)
	}

	var notifier notify.Notifier = notify.Nop{}
	if cfg.Notify.SlackToken != "" {
		notifier = notify.NewSlackNotifier(cfg.Notify, logger)
	}

	orchestrator := NewOrchestrator(
		marketData,
		extractor,
		reader,
		brain,
		executor,
		decisionLog,
		news.NewClient(cfg.Context, logger),
		translate.NewTranslator(cfg.Translate, logger),
		notifier,
		retry.New(cfg.OpenAI.ParseRetries, cfg.OpenAI.ParseRetryDelay),
		cfg.Context,
		logger,
	)

	return &App{
		cfg:          cfg,
		logger:       logger,
		orchestrator: orchestrator,
		storage:      storage,
	}, nil
}

// Run 启动主循环：每 hour_interval 小时在整点后 minute_offset 分触发一个周期。
// 周期串行执行，单个周期失败只记录，不退出进程；ctx 取消后优雅退出。
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("自动交易循环启动",
		zap.String("market", a.cfg.Exchange.Market),
		zap.Int("hour_interval", a.cfg.Scheduler.HourInterval),
		zap.Int("minute_offset", a.cfg.Scheduler.MinuteOffset),
	)

	if a.cfg.Scheduler.RunOnStart {
		a.runOnce(ctx)
	}

	for {
		next := nextRun(time.Now(), a.cfg.Scheduler.HourInterval, a.cfg.Scheduler.MinuteOffset)
		a.logger.Info("等待下一个交易周期", zap.Time("next_run", next))

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			a.logger.Info("收到退出信号，循环结束")
			return ctx.Err()
		case <-timer.C:
		}

		a.runOnce(ctx)
	}
}

func (a *App) runOnce(ctx context.Context) {
	if err := a.orchestrator.RunCycle(ctx); err != nil {
		a.logger.Error("交易周期失败", zap.Error(err))
	}
}

// Close 释放持有的资源。
func (a *App) Close() error {
	if a.storage == nil {
		return nil
	}
	return a.storage.Close()
}

// nextRun 计算下一个触发时刻：小时数能被 interval 整除的整点后 offset 分。
// 始终返回严格晚于 now 的时刻。
func nextRun(now time.Time, interval, offset int) time.Time {
	if interval <= 0 {
		interval = 1
	}

	candidate := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), offset, 0, 0, now.Location())
	for !candidate.After(now) || candidate.Hour()%interval != 0 {
		candidate = candidate.Add(time.Hour)
	}
	return candidate
}
