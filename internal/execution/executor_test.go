package execution

import (
	"context"
	"errors"
	"testing"
	"time"

	ccxt "github.com/ccxt/ccxt/go/v4"
	"go.uber.org/zap"

	"coinpilot/internal/account"
	"coinpilot/internal/config"
	"coinpilot/internal/exchange"
)

type fakeOrderClient struct {
	book    exchange.OrderBookSnapshot
	bookErr error

	buyCost    float64
	buyCalls   int
	buyErr     error
	sellAmount float64
	sellCalls  int
	sellErr    error
}

func (f *fakeOrderClient) FetchOrderBook(ctx context.Context, depth int64) (exchange.OrderBookSnapshot, error) {
	if f.bookErr != nil {
		return exchange.OrderBookSnapshot{}, f.bookErr
	}
	return f.book, nil
}

func (f *fakeOrderClient) CreateMarketBuy(ctx context.Context, cost float64) (ccxt.Order, error) {
	f.buyCalls++
	f.buyCost = cost
	return ccxt.Order{}, f.buyErr
}

func (f *fakeOrderClient) CreateMarketSell(ctx context.Context, amount float64) (ccxt.Order, error) {
	f.sellCalls++
	f.sellAmount = amount
	return ccxt.Order{}, f.sellErr
}

type fakeBalanceReader struct {
	state account.State
	err   error
}

func (f *fakeBalanceReader) Read(ctx context.Context, spotPrice float64) (account.State, error) {
	if f.err != nil {
		return account.State{}, f.err
	}
	return f.state, nil
}

func almostEqual(a, b float64) bool {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff < 1e-6
}

func defaultExecConfig() config.ExecutionConfig {
	return config.ExecutionConfig{
		FeeRate:     0.0005,
		MinNotional: 5000,
	}
}

func askOnlyBook(price float64) exchange.OrderBookSnapshot {
	return exchange.OrderBookSnapshot{
		Asks:      []exchange.OrderBookLevel{{Price: price, Amount: 1}},
		Bids:      []exchange.OrderBookLevel{{Price: price - 1000, Amount: 1}},
		Timestamp: time.Now(),
	}
}

func TestExecuteBuyDeductsFee(t *testing.T) {
	client := &fakeOrderClient{}
	reader := &fakeBalanceReader{state: account.State{QuoteBalance: 1_000_000}}
	executor := NewExecutor(client, reader, defaultExecConfig(), zap.NewNop())

	fill, err := executor.ExecuteBuy(context.Background(), 0.5)
	if err != nil {
		t.Fatalf("买入失败: %v", err)
	}

	// 1,000,000 * 0.5 * (1 - 0.0005) = 499,750
	if !almostEqual(client.buyCost, 499_750) {
		t.Fatalf("期望下单金额 499750，实际 %f", client.buyCost)
	}
	if fill.Side != OrderSideBuy {
		t.Fatalf("期望方向 buy，实际 %s", fill.Side)
	}
	if !almostEqual(fill.Notional, 499_750) {
		t.Fatalf("成交摘要金额不符，实际 %f", fill.Notional)
	}
}

func TestExecuteBuyNeverExceedsFractionOfBalance(t *testing.T) {
	client := &fakeOrderClient{}
	reader := &fakeBalanceReader{state: account.State{QuoteBalance: 123_456}}
	executor := NewExecutor(client, reader, defaultExecConfig(), zap.NewNop())

	fill, err := executor.ExecuteBuy(context.Background(), 0.25)
	if err != nil {
		t.Fatalf("买入失败: %v", err)
	}

	limit := 123_456 * 0.25
	if fill.Notional > limit {
		t.Fatalf("下单金额 %f 超过余额比例上限 %f", fill.Notional, limit)
	}
}

func TestExecuteBuyRejectsBelowMinNotional(t *testing.T) {
	client := &fakeOrderClient{}
	reader := &fakeBalanceReader{state: account.State{QuoteBalance: 8000}}
	executor := NewExecutor(client, reader, defaultExecConfig(), zap.NewNop())

	_, err := executor.ExecuteBuy(context.Background(), 0.5)
	if !errors.Is(err, ErrOrderRejected) {
		t.Fatalf("金额不足应返回 ErrOrderRejected，实际 %v", err)
	}
	if client.buyCalls != 0 {
		t.Fatal("被拒绝的买入不应触发下单调用")
	}
}

func TestExecuteBuyRejectsExactMinNotional(t *testing.T) {
	cfg := config.ExecutionConfig{FeeRate: 0, MinNotional: 5000}
	client := &fakeOrderClient{}
	reader := &fakeBalanceReader{state: account.State{QuoteBalance: 5000}}
	executor := NewExecutor(client, reader, cfg, zap.NewNop())

	_, err := executor.ExecuteBuy(context.Background(), 1.0)
	if !errors.Is(err, ErrOrderRejected) {
		t.Fatalf("恰好等于最小下单额必须拒绝，实际 %v", err)
	}
	if client.buyCalls != 0 {
		t.Fatal("等额买入不应触发下单调用")
	}
}

func TestExecuteBuyRejectsOnBalanceFailure(t *testing.T) {
	client := &fakeOrderClient{}
	reader := &fakeBalanceReader{err: errors.New("balance down")}
	executor := NewExecutor(client, reader, defaultExecConfig(), zap.NewNop())

	_, err := executor.ExecuteBuy(context.Background(), 0.5)
	if !errors.Is(err, ErrOrderRejected) {
		t.Fatalf("余额不可读应拒绝下单，实际 %v", err)
	}
	if client.buyCalls != 0 {
		t.Fatal("余额不可读时不应触发下单调用")
	}
}

func TestExecuteSellComputesAmount(t *testing.T) {
	client := &fakeOrderClient{book: askOnlyBook(50_000_000)}
	reader := &fakeBalanceReader{state: account.State{BaseBalance: 0.02}}
	executor := NewExecutor(client, reader, defaultExecConfig(), zap.NewNop())

	fill, err := executor.ExecuteSell(context.Background(), 0.5)
	if err != nil {
		t.Fatalf("卖出失败: %v", err)
	}
	if client.sellAmount != 0.01 {
		t.Fatalf("期望卖出数量 0.01，实际 %f", client.sellAmount)
	}
	if fill.Amount > 0.02*0.5 {
		t.Fatalf("卖出数量 %f 超过持仓比例上限", fill.Amount)
	}
}

func TestExecuteSellRejectsBelowMinNotional(t *testing.T) {
	client := &fakeOrderClient{book: askOnlyBook(50_000_000)}
	reader := &fakeBalanceReader{state: account.State{BaseBalance: 0.0001}}
	executor := NewExecutor(client, reader, defaultExecConfig(), zap.NewNop())

	// 0.0001 * 0.5 * 50,000,000 = 2,500 < 5,000
	_, err := executor.ExecuteSell(context.Background(), 0.5)
	if !errors.Is(err, ErrOrderRejected) {
		t.Fatalf("名义金额不足应拒绝，实际 %v", err)
	}
	if client.sellCalls != 0 {
		t.Fatal("被拒绝的卖出不应触发下单调用")
	}
}

func TestExecuteSellRejectsEmptyAsk(t *testing.T) {
	client := &fakeOrderClient{book: exchange.OrderBookSnapshot{}}
	reader := &fakeBalanceReader{state: account.State{BaseBalance: 1}}
	executor := NewExecutor(client, reader, defaultExecConfig(), zap.NewNop())

	_, err := executor.ExecuteSell(context.Background(), 1.0)
	if !errors.Is(err, ErrOrderRejected) {
		t.Fatalf("盘口缺卖价应拒绝，实际 %v", err)
	}
}

func TestExecuteRejectsInvalidFraction(t *testing.T) {
	client := &fakeOrderClient{}
	reader := &fakeBalanceReader{state: account.State{QuoteBalance: 1_000_000}}
	executor := NewExecutor(client, reader, defaultExecConfig(), zap.NewNop())

	for _, fraction := range []float64{-0.1, 1.5} {
		if _, err := executor.ExecuteBuy(context.Background(), fraction); !errors.Is(err, ErrOrderRejected) {
			t.Fatalf("非法比例 %f 应拒绝，实际 %v", fraction, err)
		}
	}
}

func TestExecuteBuyWrapsExchangeFailure(t *testing.T) {
	client := &fakeOrderClient{buyErr: errors.New("insufficient funds")}
	reader := &fakeBalanceReader{state: account.State{QuoteBalance: 1_000_000}}
	executor := NewExecutor(client, reader, defaultExecConfig(), zap.NewNop())

	_, err := executor.ExecuteBuy(context.Background(), 1.0)
	if !errors.Is(err, ErrOrderRejected) {
		t.Fatalf("交易所侧失败应归类为订单拒绝，实际 %v", err)
	}
}
