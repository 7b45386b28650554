package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Action 为模型给出的交易动作。无法识别的输入一律落到 ActionUnknown，
// 绝不静默映射为持有或买入。
type Action string

const (
	ActionBuy     Action = "buy"
	ActionSell    Action = "sell"
	ActionHold    Action = "hold"
	ActionUnknown Action = "unknown"
)

var (
	// ErrDecisionMalformed 表示模型输出不是合法JSON，属于可重试的失败。
	ErrDecisionMalformed = errors.New("decision malformed")
	// ErrDecisionInvalid 表示JSON可解析但字段类型或取值非法，直接终止本周期。
	ErrDecisionInvalid = errors.New("decision invalid")
)

// Decision 为经过校验的交易决策。Fraction 统一为 [0,1] 的单位比例，
// 线路字段 percentage（0-100 的整百分比）仅在本解析器内换算一次。
type Decision struct {
	Action   Action
	Fraction float64
	Reason   string
}

// IsActionable 返回该决策是否需要实际下单。
func (d Decision) IsActionable() bool {
	return d.Action == ActionBuy || d.Action == ActionSell
}

type decisionWire struct {
	Decision   *string      `json:"decision"`
	Reason     string       `json:"reason"`
	Percentage *json.Number `json:"percentage"`
}

// ParseDecision 将模型原始输出解析为 Decision。未知字段忽略，
// 缺失的 percentage 按旧版全仓语义取 1.0。
func ParseDecision(content string) (Decision, error) {
	payload, err := extractJSON(content)
	if err != nil {
		return Decision{}, err
	}

	var wire decisionWire
	if err := json.Unmarshal(payload, &wire); err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrDecisionMalformed, err)
	}

	decision := Decision{
		Action:   normalizeAction(wire.Decision),
		Fraction: 1.0,
		Reason:   strings.TrimSpace(wire.Reason),
	}

	if wire.Percentage != nil {
		pct, err := wire.Percentage.Float64()
		if err != nil {
			return Decision{}, fmt.Errorf("%w: percentage 不是数值: %v", ErrDecisionInvalid, err)
		}
		if pct < 0 || pct > 100 {
			return Decision{}, fmt.Errorf("%w: percentage 必须位于 [0,100]，当前为 %v", ErrDecisionInvalid, pct)
		}
		decision.Fraction = pct / 100
	}

	return decision, nil
}

func normalizeAction(raw *string) Action {
	if raw == nil {
		return ActionUnknown
	}
	switch strings.ToLower(strings.TrimSpace(*raw)) {
	case "buy":
		return ActionBuy
	case "sell":
		return ActionSell
	case "hold":
		return ActionHold
	default:
		return ActionUnknown
	}
}

func extractJSON(content string) ([]byte, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")

	if start == -1 || end == -1 || end <= start {
		return nil, fmt.Errorf("%w: 模型输出未找到有效JSON: %s", ErrDecisionMalformed, truncate(content, 200))
	}

	return []byte(content[start : end+1]), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
