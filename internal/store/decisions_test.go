package store

import (
	"context"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"coinpilot/internal/config"
)

func newTestLog(t *testing.T) *DecisionLog {
	t.Helper()

	storage, err := NewSQLite(config.DatabaseConfig{
		InMemory:     true,
		MaxOpenConns: 1,
		MaxIdleConns: 1,
	})
	if err != nil {
		t.Fatalf("初始化内存数据库失败: %v", err)
	}
	t.Cleanup(func() { _ = storage.Close() })

	log, err := NewDecisionLog(storage, zap.NewNop())
	if err != nil {
		t.Fatalf("初始化决策日志失败: %v", err)
	}
	return log
}

func TestInsertAndQueryRecent(t *testing.T) {
	log := newTestLog(t)
	ctx := context.Background()

	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	for i, action := range []string{"buy", "hold", "sell"} {
		err := log.Insert(ctx, DecisionRecord{
			Timestamp:    base.Add(time.Duration(i) * time.Hour),
			Action:       action,
			Fraction:     0.5,
			Reason:       "test " + action,
			BaseBalance:  0.01,
			QuoteBalance: 100_000,
			AvgBuyPrice:  50_000_000,
		})
		if err != nil {
			t.Fatalf("写入失败: %v", err)
		}
	}

	records, err := log.RecentDecisions(ctx, 2)
	if err != nil {
		t.Fatalf("查询失败: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("期望2条记录，实际 %d", len(records))
	}
	if records[0].Action != "sell" || records[1].Action != "hold" {
		t.Fatalf("应按最新在前排序，实际 %s, %s", records[0].Action, records[1].Action)
	}
	if !records[0].Timestamp.Equal(base.Add(2 * time.Hour)) {
		t.Fatalf("时间戳应完整往返，实际 %v", records[0].Timestamp)
	}
}

func TestRecentDecisionsEmptyLog(t *testing.T) {
	log := newTestLog(t)

	records, err := log.RecentDecisions(context.Background(), 5)
	if err != nil {
		t.Fatalf("查询失败: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("空日志应返回空结果，实际 %d", len(records))
	}
}

func TestRecentDecisionsZeroLimit(t *testing.T) {
	log := newTestLog(t)

	records, err := log.RecentDecisions(context.Background(), 0)
	if err != nil {
		t.Fatalf("查询失败: %v", err)
	}
	if records != nil {
		t.Fatalf("limit 为0应返回 nil，实际 %v", records)
	}
}

func TestFormatForPrompt(t *testing.T) {
	if got := FormatForPrompt(nil); got != "No decisions found." {
		t.Fatalf("空记录应输出固定文案，实际 %q", got)
	}

	text := FormatForPrompt([]DecisionRecord{
		{Action: "buy", Fraction: 0.5, Reason: "r1"},
		{Action: "sell", Fraction: 1, Reason: "r2"},
	})
	lines := strings.Split(text, "\n")
	if len(lines) != 2 {
		t.Fatalf("期望每条记录一行，实际 %d 行", len(lines))
	}
	if !strings.Contains(lines[0], `"decision":"buy"`) {
		t.Fatalf("首行应包含buy决策，实际 %q", lines[0])
	}
}
