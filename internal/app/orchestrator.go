package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"coinpilot/internal/account"
	"coinpilot/internal/ai"
	"coinpilot/internal/config"
	"coinpilot/internal/exchange"
	"coinpilot/internal/execution"
	"coinpilot/internal/feature"
	"coinpilot/internal/notify"
	"coinpilot/internal/reconcile"
	"coinpilot/internal/retry"
	"coinpilot/internal/store"
)

// Phase 标识周期当前所处阶段，用于日志与错误定位。
type Phase string

const (
	PhaseGathering   Phase = "gathering"
	PhaseDeciding    Phase = "deciding"
	PhaseExecuting   Phase = "executing"
	PhaseReconciling Phase = "reconciling"
)

type marketData interface {
	GetSnapshot(ctx context.Context, req exchange.SnapshotRequest) (exchange.MarketSnapshot, error)
}

type featureExtractor interface {
	Extract(ctx context.Context, snapshot exchange.MarketSnapshot) (feature.Set, error)
}

type accountReader interface {
	Read(ctx context.Context, spotPrice float64) (account.State, error)
}

type decider interface {
	Decide(ctx context.Context, bundle ai.ContextBundle) (string, error)
}

type orderExecutor interface {
	ExecuteBuy(ctx context.Context, fraction float64) (execution.Fill, error)
	ExecuteSell(ctx context.Context, fraction float64) (execution.Fill, error)
}

type decisionStore interface {
	Insert(ctx context.Context, record store.DecisionRecord) error
	RecentDecisions(ctx context.Context, n int) ([]store.DecisionRecord, error)
}

type contextSource interface {
	FetchHeadlines(ctx context.Context) string
	FetchFearGreed(ctx context.Context) string
}

type translator interface {
	Translate(ctx context.Context, text string) string
}

// Orchestrator 驱动单个交易周期：采集、决策、执行、对账。
// 周期严格单线程推进，绝不并发运行两个周期；一个周期内只产生一条面向用户的结果通知。
type Orchestrator struct {
	market     marketData
	features   featureExtractor
	accounts   accountReader
	brain      decider
	executor   orderExecutor
	decisions  decisionStore
	contextSrc contextSource
	translate  translator
	notifier   notify.Notifier
	session    *reconcile.Session
	parseRetry retry.Policy
	cfg        config.ContextConfig
	logger     *zap.Logger
}

// NewOrchestrator 组装周期编排器。
func NewOrchestrator(
	market marketData,
	features featureExtractor,
	accounts accountReader,
	brain decider,
	executor orderExecutor,
	decisions decisionStore,
	contextSrc contextSource,
	translate translator,
	notifier notify.Notifier,
	parseRetry retry.Policy,
	cfg config.ContextConfig,
	logger *zap.Logger,
) *Orchestrator {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		market:     market,
		features:   features,
		accounts:   accounts,
		brain:      brain,
		executor:   executor,
		decisions:  decisions,
		contextSrc: contextSrc,
		translate:  translate,
		notifier:   notifier,
		session:    reconcile.NewSession(),
		parseRetry: parseRetry,
		cfg:        cfg,
		logger:     logger,
	}
}

type cycleInput struct {
	snapshot exchange.MarketSnapshot
	pre      account.State
	bundle   ai.ContextBundle
}

// RunCycle 执行一个完整周期。市场数据或账户不可用时终止本周期并返回错误；
// 订单被拒绝不终止周期，对账按真实账户状态继续。
func (o *Orchestrator) RunCycle(ctx context.Context) error {
	start := time.Now()
	o.logger.Info("交易周期开始")

	input, err := o.gather(ctx)
	if err != nil {
		o.logger.Error("采集阶段失败，终止本周期", zap.String("phase", string(PhaseGathering)), zap.Error(err))
		o.notifier.Notify(ctx, fmt.Sprintf("本周期采集失败，未下单：%v", err))
		return err
	}

	o.session.Seed(reconcile.FromAccount(input.pre))

	decision, err := o.decide(ctx, input.bundle)
	if err != nil {
		o.logger.Error("决策阶段失败，终止本周期", zap.String("phase", string(PhaseDeciding)), zap.Error(err))
		o.notifier.Notify(ctx, fmt.Sprintf("本周期决策失败，未下单：%v", err))
		return err
	}

	o.logger.Info("决策已解析",
		zap.String("action", string(decision.Action)),
		zap.Float64("fraction", decision.Fraction),
		zap.String("reason", decision.Reason),
	)

	fill, execErr := o.execute(ctx, decision)

	report, post, reconErr := o.reconcileCycle(ctx, input.snapshot.SpotPrice)
	if reconErr != nil {
		o.logger.Error("对账阶段失败", zap.String("phase", string(PhaseReconciling)), zap.Error(reconErr))
		o.notifier.Notify(ctx, fmt.Sprintf("决策 %s 已处理，但对账失败：%v", decision.Action, reconErr))
		return reconErr
	}

	o.record(ctx, decision, post)
	o.notifier.Notify(ctx, o.renderOutcome(ctx, decision, fill, execErr, report))

	o.logger.Info("交易周期结束",
		zap.String("action", string(decision.Action)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// gather 并发采集市场快照与外部上下文，随后读取账户状态。
// 新闻、恐慌贪婪指数与历史决策均为尽力而为，缺失时降级为空文档。
func (o *Orchestrator) gather(ctx context.Context) (cycleInput, error) {
	var (
		snapshot  exchange.MarketSnapshot
		news      string
		fearGreed string
		history   string
	)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		snap, err := o.market.GetSnapshot(groupCtx, exchange.DefaultSnapshotRequest())
		if err != nil {
			return err
		}
		snapshot = snap
		return nil
	})

	group.Go(func() error {
		if o.contextSrc != nil {
			news = o.contextSrc.FetchHeadlines(groupCtx)
			fearGreed = o.contextSrc.FetchFearGreed(groupCtx)
		}
		return nil
	})

	group.Go(func() error {
		if o.decisions == nil || o.cfg.RecentDecisions <= 0 {
			return nil
		}
		records, err := o.decisions.RecentDecisions(groupCtx, o.cfg.RecentDecisions)
		if err != nil {
			o.logger.Warn("读取历史决策失败，上下文中省略", zap.Error(err))
			return nil
		}
		history = store.FormatForPrompt(records)
		return nil
	})

	if err := group.Wait(); err != nil {
		return cycleInput{}, err
	}

	pre, err := o.accounts.Read(ctx, snapshot.SpotPrice)
	if err != nil {
		return cycleInput{}, err
	}

	features, err := o.features.Extract(ctx, snapshot)
	if err != nil {
		return cycleInput{}, err
	}
	featuresJSON, err := features.JSON()
	if err != nil {
		return cycleInput{}, err
	}

	accountJSON, err := ai.BuildAccountDocument(pre, snapshot.OrderBook)
	if err != nil {
		return cycleInput{}, err
	}

	return cycleInput{
		snapshot: snapshot,
		pre:      pre,
		bundle: ai.ContextBundle{
			News:            news,
			FeaturesJSON:    featuresJSON,
			RecentDecisions: history,
			FearGreed:       fearGreed,
			AccountJSON:     accountJSON,
		},
	}, nil
}

// decide 调用模型并解析决策。非法JSON按策略重试，
// 字段取值非法（如 percentage 越界）不重试、直接终止。
func (o *Orchestrator) decide(ctx context.Context, bundle ai.ContextBundle) (ai.Decision, error) {
	var decision ai.Decision

	err := o.parseRetry.Do(ctx,
		func(err error) bool { return errors.Is(err, ai.ErrDecisionMalformed) },
		func() error {
			raw, err := o.brain.Decide(ctx, bundle)
			if err != nil {
				return fmt.Errorf("%w: %v", ai.ErrDecisionMalformed, err)
			}
			parsed, err := ai.ParseDecision(raw)
			if err != nil {
				return err
			}
			decision = parsed
			return nil
		},
	)
	if err != nil {
		return ai.Decision{}, err
	}
	return decision, nil
}

// execute 按决策下单。hold 与 unknown 均不下单；
// 订单被拒绝（金额不足、交易所报错）就地消化，返回错误供结果渲染。
func (o *Orchestrator) execute(ctx context.Context, decision ai.Decision) (execution.Fill, error) {
	switch decision.Action {
	case ai.ActionBuy:
		fill, err := o.executor.ExecuteBuy(ctx, decision.Fraction)
		if err != nil {
			o.logger.Warn("买入未成交", zap.String("phase", string(PhaseExecuting)), zap.Error(err))
			return execution.Fill{}, err
		}
		return fill, nil
	case ai.ActionSell:
		fill, err := o.executor.ExecuteSell(ctx, decision.Fraction)
		if err != nil {
			o.logger.Warn("卖出未成交", zap.String("phase", string(PhaseExecuting)), zap.Error(err))
			return execution.Fill{}, err
		}
		return fill, nil
	case ai.ActionHold:
		o.logger.Info("决策为持有，本周期不下单")
		return execution.Fill{}, nil
	default:
		o.logger.Warn("决策动作无法识别，按不下单处理", zap.String("action", string(decision.Action)))
		return execution.Fill{}, nil
	}
}

// reconcileCycle 重新读取账户状态并与基线对账，基线推进为本轮结果。
func (o *Orchestrator) reconcileCycle(ctx context.Context, spotPrice float64) (reconcile.Report, account.State, error) {
	post, err := o.accounts.Read(ctx, spotPrice)
	if err != nil {
		return reconcile.Report{}, account.State{}, err
	}
	return o.session.Reconcile(reconcile.FromAccount(post)), post, nil
}

// record 追加决策日志。写入失败只记日志，不影响周期结果。
func (o *Orchestrator) record(ctx context.Context, decision ai.Decision, post account.State) {
	if o.decisions == nil {
		return
	}
	err := o.decisions.Insert(ctx, store.DecisionRecord{
		Timestamp:    time.Now().UTC(),
		Action:       string(decision.Action),
		Fraction:     decision.Fraction,
		Reason:       decision.Reason,
		BaseBalance:  post.BaseBalance,
		QuoteBalance: post.QuoteBalance,
		AvgBuyPrice:  post.AvgBuyPrice,
	})
	if err != nil {
		o.logger.Error("决策日志写入失败", zap.Error(err))
	}
}

// renderOutcome 拼装本周期唯一一条面向用户的结果通知。
func (o *Orchestrator) renderOutcome(ctx context.Context, decision ai.Decision, fill execution.Fill, execErr error, report reconcile.Report) string {
	reason := decision.Reason
	if o.translate != nil && reason != "" {
		reason = o.translate.Translate(ctx, reason)
	}

	var headline string
	switch {
	case execErr != nil:
		headline = fmt.Sprintf("决策 %s（比例 %.0f%%）未执行：%v", decision.Action, decision.Fraction*100, execErr)
	case decision.Action == ai.ActionBuy:
		headline = fmt.Sprintf("已市价买入，花费约 %.0f KRW（比例 %.0f%%）", fill.Notional, decision.Fraction*100)
	case decision.Action == ai.ActionSell:
		headline = fmt.Sprintf("已市价卖出 %.8f BTC，预估所得约 %.0f KRW（比例 %.0f%%）", fill.Amount, fill.Notional, decision.Fraction*100)
	case decision.Action == ai.ActionHold:
		headline = "决策为持有，本周期未下单"
	default:
		headline = "决策动作无法识别，本周期未下单"
	}

	text := headline
	if reason != "" {
		text += "\n理由：" + reason
	}
	text += "\n" + report.Render()
	return text
}
