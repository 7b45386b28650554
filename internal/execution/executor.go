package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	ccxt "github.com/ccxt/ccxt/go/v4"
	"go.uber.org/zap"

	"coinpilot/internal/account"
	"coinpilot/internal/config"
	"coinpilot/internal/exchange"
)

// ErrOrderRejected 表示订单被拒绝：金额不足最小下单额，或交易所侧失败。
// 该错误在编排层被就地消化，不终止周期，对账按真实账户状态继续。
var ErrOrderRejected = errors.New("order rejected")

// OrderSide 表示下单方向。
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// Fill 为一次成功提交的市价单摘要。
type Fill struct {
	Side        OrderSide
	Fraction    float64
	Amount      float64 // 卖出的基础货币数量
	Notional    float64 // 买入花费或卖出估算所得（报价货币）
	SubmittedAt time.Time
}

type balanceReader interface {
	Read(ctx context.Context, spotPrice float64) (account.State, error)
}

type orderClient interface {
	FetchOrderBook(ctx context.Context, depth int64) (exchange.OrderBookSnapshot, error)
	CreateMarketBuy(ctx context.Context, cost float64) (ccxt.Order, error)
	CreateMarketSell(ctx context.Context, amount float64) (ccxt.Order, error)
}

// Executor 将已校验的决策转化为市价单。
// 下单前总是重新读取实时余额，绝不沿用周期开始时的快照，避免并发漂移导致超卖。
type Executor struct {
	client orderClient
	reader balanceReader
	cfg    config.ExecutionConfig
	logger *zap.Logger
}

// NewExecutor 创建执行器。费率与最小下单金额只来自配置。
func NewExecutor(client orderClient, reader balanceReader, cfg config.ExecutionConfig, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		client: client,
		reader: reader,
		cfg:    cfg,
		logger: logger,
	}
}

// ExecuteBuy 按报价货币余额的 fraction 比例市价买入。
// 扣除手续费后的金额必须严格大于最小下单金额，等于也拒绝。
func (e *Executor) ExecuteBuy(ctx context.Context, fraction float64) (Fill, error) {
	if err := validateFraction(fraction); err != nil {
		return Fill{}, err
	}

	state, err := e.reader.Read(ctx, 0)
	if err != nil {
		return Fill{}, fmt.Errorf("%w: 下单前读取余额失败: %v", ErrOrderRejected, err)
	}

	amount := state.QuoteBalance * fraction
	net := amount * (1 - e.cfg.FeeRate)
	if !(net > e.cfg.MinNotional) {
		return Fill{}, fmt.Errorf("%w: 买入金额不足最小下单额，需要大于 %.0f，当前 %.0f",
			ErrOrderRejected, e.cfg.MinNotional, net)
	}

	order, err := e.client.CreateMarketBuy(ctx, net)
	if err != nil {
		return Fill{}, fmt.Errorf("%w: 市价买入失败: %v", ErrOrderRejected, err)
	}

	e.logger.Info("市价买入已提交",
		zap.Float64("fraction", fraction),
		zap.Float64("cost", net),
		zap.Any("order", order),
	)

	return Fill{
		Side:        OrderSideBuy,
		Fraction:    fraction,
		Notional:    net,
		SubmittedAt: time.Now().UTC(),
	}, nil
}

// ExecuteSell 按持仓数量的 fraction 比例市价卖出。
// 以盘口最优卖价估算名义金额，必须严格大于最小下单金额。
func (e *Executor) ExecuteSell(ctx context.Context, fraction float64) (Fill, error) {
	if err := validateFraction(fraction); err != nil {
		return Fill{}, err
	}

	state, err := e.reader.Read(ctx, 0)
	if err != nil {
		return Fill{}, fmt.Errorf("%w: 下单前读取余额失败: %v", ErrOrderRejected, err)
	}

	book, err := e.client.FetchOrderBook(ctx, 1)
	if err != nil {
		return Fill{}, fmt.Errorf("%w: 下单前读取盘口失败: %v", ErrOrderRejected, err)
	}
	ask := book.BestAsk()
	if ask <= 0 {
		return Fill{}, fmt.Errorf("%w: 盘口缺少卖价，无法估算卖出金额", ErrOrderRejected)
	}

	amount := state.BaseBalance * fraction
	notional := amount * ask
	if !(notional > e.cfg.MinNotional) {
		return Fill{}, fmt.Errorf("%w: 卖出金额不足最小下单额，需要大于 %.0f，当前 %.0f",
			ErrOrderRejected, e.cfg.MinNotional, notional)
	}

	order, err := e.client.CreateMarketSell(ctx, amount)
	if err != nil {
		return Fill{}, fmt.Errorf("%w: 市价卖出失败: %v", ErrOrderRejected, err)
	}

	e.logger.Info("市价卖出已提交",
		zap.Float64("fraction", fraction),
		zap.Float64("amount", amount),
		zap.Float64("est_notional", notional),
		zap.Any("order", order),
	)

	return Fill{
		Side:        OrderSideSell,
		Fraction:    fraction,
		Amount:      amount,
		Notional:    notional,
		SubmittedAt: time.Now().UTC(),
	}, nil
}

func validateFraction(fraction float64) error {
	if fraction < 0 || fraction > 1 {
		return fmt.Errorf("%w: fraction 必须位于 [0,1]，当前为 %f", ErrOrderRejected, fraction)
	}
	return nil
}
