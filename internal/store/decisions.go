package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DecisionRecord 为一条持久化的决策日志，插入后不再修改。
type DecisionRecord struct {
	ID           int64     `json:"-"`
	Timestamp    time.Time `json:"timestamp"`
	Action       string    `json:"decision"`
	Fraction     float64   `json:"fraction"`
	Reason       string    `json:"reason"`
	BaseBalance  float64   `json:"btc_balance"`
	QuoteBalance float64   `json:"krw_balance"`
	AvgBuyPrice  float64   `json:"btc_avg_buy_price"`
}

// DecisionLog 提供决策日志的追加与最近N条查询。
type DecisionLog struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewDecisionLog 初始化决策日志，创建所需表结构。
func NewDecisionLog(store *Store, logger *zap.Logger) (*DecisionLog, error) {
	if store == nil {
		return nil, fmt.Errorf("store: 实例不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	l := &DecisionLog{
		db:     store.DB(),
		logger: logger,
	}

	if err := l.initSchema(); err != nil {
		return nil, err
	}

	return l, nil
}

func (l *DecisionLog) initSchema() error {
	stmt := `
CREATE TABLE IF NOT EXISTS decisions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp TEXT NOT NULL,
	decision TEXT NOT NULL,
	fraction REAL NOT NULL,
	reason TEXT NOT NULL,
	btc_balance REAL NOT NULL,
	krw_balance REAL NOT NULL,
	btc_avg_buy_price REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_decisions_timestamp ON decisions(timestamp);
`
	if _, err := l.db.Exec(stmt); err != nil {
		return fmt.Errorf("store: 初始化决策表失败: %w", err)
	}
	return nil
}

// Insert 追加一条决策记录。
func (l *DecisionLog) Insert(ctx context.Context, record DecisionRecord) error {
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now().UTC()
	}

	_, err := l.db.ExecContext(ctx,
		`INSERT INTO decisions (timestamp, decision, fraction, reason, btc_balance, krw_balance, btc_avg_buy_price)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		record.Timestamp.UTC().Format(time.RFC3339),
		record.Action,
		record.Fraction,
		record.Reason,
		record.BaseBalance,
		record.QuoteBalance,
		record.AvgBuyPrice,
	)
	if err != nil {
		return fmt.Errorf("store: 写入决策记录失败: %w", err)
	}

	return nil
}

// RecentDecisions 返回最近的 n 条决策，按时间倒序（最新在前）。
func (l *DecisionLog) RecentDecisions(ctx context.Context, n int) ([]DecisionRecord, error) {
	if n <= 0 {
		return nil, nil
	}

	rows, err := l.db.QueryContext(ctx,
		`SELECT id, timestamp, decision, fraction, reason, btc_balance, krw_balance, btc_avg_buy_price
		 FROM decisions ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("store: 查询决策记录失败: %w", err)
	}
	defer rows.Close()

	var records []DecisionRecord
	for rows.Next() {
		var record DecisionRecord
		var ts string
		if err := rows.Scan(
			&record.ID, &ts, &record.Action, &record.Fraction, &record.Reason,
			&record.BaseBalance, &record.QuoteBalance, &record.AvgBuyPrice,
		); err != nil {
			return nil, fmt.Errorf("store: 扫描决策记录失败: %w", err)
		}
		parsed, parseErr := time.Parse(time.RFC3339, ts)
		if parseErr != nil {
			l.logger.Warn("决策记录时间戳无法解析", zap.String("timestamp", ts), zap.Error(parseErr))
		} else {
			record.Timestamp = parsed
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: 遍历决策记录失败: %w", err)
	}

	return records, nil
}

// FormatForPrompt 把历史决策渲染为模型可读的文本，每行一条JSON。
func FormatForPrompt(records []DecisionRecord) string {
	if len(records) == 0 {
		return "No decisions found."
	}

	lines := make([]string, 0, len(records))
	for _, record := range records {
		data, err := json.Marshal(record)
		if err != nil {
			continue
		}
		lines = append(lines, string(data))
	}
	return strings.Join(lines, "\n")
}
