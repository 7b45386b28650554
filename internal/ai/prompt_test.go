package ai

import (
	"encoding/json"
	"testing"
	"time"

	"coinpilot/internal/account"
	"coinpilot/internal/exchange"
)

func TestDocumentsSkipEmptyAndKeepOrder(t *testing.T) {
	bundle := ContextBundle{
		News:         "news-doc",
		FeaturesJSON: "features-doc",
		AccountJSON:  "account-doc",
	}

	docs := bundle.Documents()
	if len(docs) != 3 {
		t.Fatalf("期望3篇文档，实际 %d", len(docs))
	}
	if docs[0] != "news-doc" || docs[1] != "features-doc" || docs[2] != "account-doc" {
		t.Fatalf("文档顺序不符: %v", docs)
	}
}

func TestBuildAccountDocument(t *testing.T) {
	state := account.State{
		QuoteBalance: 1_000_000,
		BaseBalance:  0.5,
		AvgBuyPrice:  48_000_000,
		Valuation:    25_000_000,
	}
	book := exchange.OrderBookSnapshot{
		Bids:      []exchange.OrderBookLevel{{Price: 49_990_000, Amount: 0.1}},
		Asks:      []exchange.OrderBookLevel{{Price: 50_000_000, Amount: 0.2}},
		Timestamp: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
	}

	doc, err := BuildAccountDocument(state, book)
	if err != nil {
		t.Fatalf("构建失败: %v", err)
	}

	var parsed map[string]json.RawMessage
	if err := json.Unmarshal([]byte(doc), &parsed); err != nil {
		t.Fatalf("输出应为合法JSON: %v", err)
	}
	for _, key := range []string{"current_time", "orderbook", "btc_balance", "krw_balance", "btc_avg_buy_price", "btc_valuation"} {
		if _, ok := parsed[key]; !ok {
			t.Fatalf("账户文档缺少字段 %q:\n%s", key, doc)
		}
	}

	var orderbook struct {
		Bids [][2]float64 `json:"bids"`
		Asks [][2]float64 `json:"asks"`
	}
	if err := json.Unmarshal(parsed["orderbook"], &orderbook); err != nil {
		t.Fatalf("盘口字段解析失败: %v", err)
	}
	if len(orderbook.Bids) != 1 || orderbook.Bids[0][0] != 49_990_000 {
		t.Fatalf("盘口买档不符: %+v", orderbook.Bids)
	}
	if len(orderbook.Asks) != 1 || orderbook.Asks[0][1] != 0.2 {
		t.Fatalf("盘口卖档不符: %+v", orderbook.Asks)
	}
}
