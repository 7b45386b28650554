package account

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	ccxt "github.com/ccxt/ccxt/go/v4"
	"go.uber.org/zap"

	"coinpilot/internal/exchange"
)

type balanceClient interface {
	FetchBalances(ctx context.Context) (ccxt.Balances, error)
}

// State 描述某一时刻的账户状态。QuoteBalance 为可用报价货币（KRW），
// BaseBalance 为持有的标的数量，Valuation = BaseBalance * 现价。
type State struct {
	QuoteBalance float64
	BaseBalance  float64
	AvgBuyPrice  float64
	Valuation    float64
	CapturedAt   time.Time
}

// TotalAssets 返回报价货币余额与持仓估值之和。
func (s State) TotalAssets() float64 {
	return s.QuoteBalance + s.Valuation
}

// Reader 读取交易所账户余额并折算为账户状态。
type Reader struct {
	client balanceClient
	base   string
	quote  string
	logger *zap.Logger
}

// NewReader 创建账户状态读取器。market 形如 "BTC/KRW"。
func NewReader(client balanceClient, market string, logger *zap.Logger) *Reader {
	if logger == nil {
		logger = zap.NewNop()
	}
	base, quote := splitMarket(market)
	return &Reader{
		client: client,
		base:   base,
		quote:  quote,
		logger: logger,
	}
}

// Read 获取当前账户状态。未持有的币种余额为0；从未持有标的时均价为0。
func (r *Reader) Read(ctx context.Context, spotPrice float64) (State, error) {
	balances, err := r.client.FetchBalances(ctx)
	if err != nil {
		return State{}, fmt.Errorf("%w: %v", exchange.ErrAccountUnavailable, err)
	}

	state := State{CapturedAt: time.Now().UTC()}

	if balances.Free != nil {
		if v, ok := balances.Free[r.quote]; ok && v != nil {
			state.QuoteBalance = *v
		}
		if v, ok := balances.Free[r.base]; ok && v != nil {
			state.BaseBalance = *v
		}
	}
	if state.BaseBalance == 0 && balances.Total != nil {
		if v, ok := balances.Total[r.base]; ok && v != nil {
			state.BaseBalance = *v
		}
	}

	state.AvgBuyPrice = averageBuyPrice(balances.Info, r.base)
	state.Valuation = state.BaseBalance * spotPrice

	r.logger.Debug("账户状态已采集",
		zap.Float64("quote_balance", state.QuoteBalance),
		zap.Float64("base_balance", state.BaseBalance),
		zap.Float64("avg_buy_price", state.AvgBuyPrice),
		zap.Float64("valuation", state.Valuation),
	)

	return state, nil
}

// averageBuyPrice 从原始响应中提取指定币种的平均买入价。
// Upbit 的原始余额为数组，ccxt 对其包装方式不完全稳定，这里按已知形态逐一探测，
// 全部落空时返回0（等同于从未持有，下游据此规避除零）。
func averageBuyPrice(info map[string]interface{}, code string) float64 {
	if info == nil {
		return 0
	}

	if rows, ok := info["balances"].([]interface{}); ok {
		if v := avgFromRows(rows, code); v > 0 {
			return v
		}
	}
	for _, value := range info {
		if rows, ok := value.([]interface{}); ok {
			if v := avgFromRows(rows, code); v > 0 {
				return v
			}
		}
		if row, ok := value.(map[string]interface{}); ok {
			if v := avgFromRow(row, code); v > 0 {
				return v
			}
		}
	}
	return 0
}

func avgFromRows(rows []interface{}, code string) float64 {
	for _, item := range rows {
		row, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		if v := avgFromRow(row, code); v > 0 {
			return v
		}
	}
	return 0
}

func avgFromRow(row map[string]interface{}, code string) float64 {
	currency, _ := row["currency"].(string)
	if !strings.EqualFold(currency, code) {
		return 0
	}
	return parseNumeric(row["avg_buy_price"])
}

func parseNumeric(value interface{}) float64 {
	switch v := value.(type) {
	case float64:
		return v
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0
		}
		return parsed
	default:
		return 0
	}
}

func splitMarket(market string) (base, quote string) {
	parts := strings.SplitN(strings.TrimSpace(market), "/", 2)
	base = strings.ToUpper(parts[0])
	if len(parts) == 2 {
		quote = strings.ToUpper(parts[1])
	}
	return base, quote
}
