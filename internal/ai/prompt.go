package ai

import (
	"encoding/json"
	"fmt"
	"time"

	"coinpilot/internal/account"
	"coinpilot/internal/exchange"
)

// ContextBundle 为一次决策调用携带的全部上下文文档。
// 每个字段作为独立的 user 消息传给模型；空字段会被跳过。
type ContextBundle struct {
	News            string
	FeaturesJSON    string
	RecentDecisions string
	FearGreed       string
	AccountJSON     string
}

// Documents 按固定顺序返回非空的上下文文档：新闻、特征、历史决策、恐慌贪婪指数、账户状态。
func (b ContextBundle) Documents() []string {
	docs := make([]string, 0, 5)
	for _, doc := range []string{b.News, b.FeaturesJSON, b.RecentDecisions, b.FearGreed, b.AccountJSON} {
		if doc != "" {
			docs = append(docs, doc)
		}
	}
	return docs
}

type accountDocument struct {
	CurrentTime  int64             `json:"current_time"`
	OrderBook    orderBookDocument `json:"orderbook"`
	BaseBalance  float64           `json:"btc_balance"`
	QuoteBalance float64           `json:"krw_balance"`
	AvgBuyPrice  float64           `json:"btc_avg_buy_price"`
	Valuation    float64           `json:"btc_valuation"`
}

type orderBookDocument struct {
	Timestamp int64        `json:"timestamp"`
	Bids      [][2]float64 `json:"bids"`
	Asks      [][2]float64 `json:"asks"`
}

// BuildAccountDocument 将账户状态与盘口序列化为模型可读的JSON文档。
func BuildAccountDocument(state account.State, book exchange.OrderBookSnapshot) (string, error) {
	doc := accountDocument{
		CurrentTime:  time.Now().UTC().UnixMilli(),
		BaseBalance:  state.BaseBalance,
		QuoteBalance: state.QuoteBalance,
		AvgBuyPrice:  state.AvgBuyPrice,
		Valuation:    state.Valuation,
		OrderBook: orderBookDocument{
			Timestamp: book.Timestamp.UnixMilli(),
			Bids:      levelPairs(book.Bids),
			Asks:      levelPairs(book.Asks),
		},
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("序列化账户文档失败: %w", err)
	}
	return string(data), nil
}

func levelPairs(levels []exchange.OrderBookLevel) [][2]float64 {
	pairs := make([][2]float64, 0, len(levels))
	for _, level := range levels {
		pairs = append(pairs, [2]float64{level.Price, level.Amount})
	}
	return pairs
}
