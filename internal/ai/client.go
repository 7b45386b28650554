package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"coinpilot/internal/config"
)

// Client 封装 OpenAI 决策调用。模型输出被视为不可信文本，
// 解析与校验由 ParseDecision 负责，重试策略由编排层注入。
type Client struct {
	cfg          config.OpenAIConfig
	logger       *zap.Logger
	sdk          *openai.Client
	instructions string
}

// NewClient 使用给定配置创建决策客户端，启动时一次性读入系统指令文件。
func NewClient(cfg config.OpenAIConfig, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai api_key 不能为空")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	instructions, err := os.ReadFile(cfg.InstructionsPath)
	if err != nil {
		return nil, fmt.Errorf("读取系统指令文件 %q 失败: %w", cfg.InstructionsPath, err)
	}

	sdkConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		sdkConfig.BaseURL = cfg.BaseURL
	}
	sdkConfig.HTTPClient = &http.Client{
		Timeout: cfg.Timeout + 5*time.Second,
	}

	return &Client{
		cfg:          cfg,
		logger:       logger,
		sdk:          openai.NewClientWithConfig(sdkConfig),
		instructions: string(instructions),
	}, nil
}

// Decide 携带上下文文档调用模型，返回原始文本。
// 原始文本可能是非法JSON、缺字段乃至纯散文，调用方必须走校验解析。
func (c *Client) Decide(ctx context.Context, bundle ContextBundle) (string, error) {
	if c.cfg.Model == "" {
		return "", errors.New("openai model 不能为空")
	}

	messages := make([]openai.ChatCompletionMessage, 0, 6)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: c.instructions,
	})
	for _, doc := range bundle.Documents() {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: doc,
		})
	}

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	response, err := c.sdk.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
		Model:    c.cfg.Model,
		Messages: messages,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		c.logger.Error("调用OpenAI失败", zap.Error(err))
		return "", fmt.Errorf("调用OpenAI失败: %w", err)
	}

	if len(response.Choices) == 0 {
		return "", errors.New("OpenAI 返回结果为空")
	}

	raw := strings.TrimSpace(response.Choices[0].Message.Content)
	if raw == "" {
		return "", errors.New("OpenAI 返回内容为空")
	}

	c.logger.Debug("模型响应已返回", zap.Int("raw_length", len(raw)))
	return raw, nil
}
