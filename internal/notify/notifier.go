package notify

import "context"

// Notifier 为统一的通知出口。通知失败只记日志，绝不影响交易逻辑，
// 各组件一律返回数据或错误，仅由编排层调用通知。
type Notifier interface {
	Notify(ctx context.Context, text string)
}

// Nop 为空实现，用于测试与干跑模式。
type Nop struct{}

// Notify 丢弃消息。
func (Nop) Notify(ctx context.Context, text string) {}
