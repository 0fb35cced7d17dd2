// LLM 客户端
// 通过 gRPC 调用 LLM Bridge 的 Infer 方法，请求与响应均为 google.protobuf.Struct
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ploxoy666/finanalyzer/pkg/config"
	apperrors "github.com/ploxoy666/finanalyzer/pkg/errors"
	"github.com/ploxoy666/finanalyzer/pkg/metrics"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"
)

// InferMethod LLM Bridge 推理方法全名
const InferMethod = "/llmbridge.v1.LLMBridge/Infer"

// Client LLM 客户端
type Client struct {
	config config.LLMConfig
	conn   *grpc.ClientConn
	owned  bool
}

// InferRequest 推理请求
type InferRequest struct {
	TraceID      string
	AgentID      string
	SystemPrompt string
	UserPrompt   string
	// Context 附带的结构化数据，值须能转换为 structpb.Value
	Context     map[string]interface{}
	Temperature float64
	MaxTokens   int
}

// InferResponse 推理响应
type InferResponse struct {
	TraceID     string
	Status      ResponseStatus
	FinalAnswer string
	Usage       UsageMetrics
}

// ResponseStatus 响应状态
type ResponseStatus string

const (
	StatusSuccess     ResponseStatus = "success"
	StatusRateLimited ResponseStatus = "rate_limited"
	StatusError       ResponseStatus = "error"
)

// UsageMetrics 使用指标
type UsageMetrics struct {
	PromptTokens     int
	CompletionTokens int
	Model            string
}

// NewClient 创建 LLM 客户端，连接延迟到首次调用时建立
func NewClient(cfg config.LLMConfig) (*Client, error) {
	if !cfg.Enabled {
		return &Client{config: cfg}, nil
	}
	conn, err := grpc.NewClient(cfg.BridgeAddress,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM Bridge connection: %w", err)
	}
	return &Client{config: cfg, conn: conn, owned: true}, nil
}

// NewClientWithConn 使用已有连接
func NewClientWithConn(cfg config.LLMConfig, conn *grpc.ClientConn) *Client {
	return &Client{config: cfg, conn: conn}
}

// Enabled 是否可用
func (c *Client) Enabled() bool {
	return c != nil && c.config.Enabled && c.conn != nil
}

// Close 关闭连接
func (c *Client) Close() error {
	if c.conn != nil && c.owned {
		return c.conn.Close()
	}
	return nil
}

// Infer 执行推理
func (c *Client) Infer(ctx context.Context, req *InferRequest) (*InferResponse, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("%w: bridge disabled", apperrors.ErrLLMUnavailable)
	}

	if req.Temperature == 0 {
		req.Temperature = 0.2
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = 1024
	}

	payload, err := structpb.NewStruct(map[string]interface{}{
		"trace_id":      req.TraceID,
		"agent_id":      req.AgentID,
		"model":         c.config.Model,
		"system_prompt": req.SystemPrompt,
		"user_prompt":   req.UserPrompt,
		"temperature":   req.Temperature,
		"max_tokens":    req.MaxTokens,
		"context":       req.contextValue(),
	})
	if err != nil {
		return nil, fmt.Errorf("encode infer request: %w", err)
	}

	if c.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}
	if c.config.APIKey != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+c.config.APIKey)
	}

	start := time.Now()
	out := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, InferMethod, payload, out); err != nil {
		metrics.LLMLatency.WithLabelValues(c.config.Model, "error").Observe(time.Since(start).Seconds())
		return nil, fmt.Errorf("%w: %v", apperrors.ErrLLMUnavailable, err)
	}

	resp := decodeResponse(out)
	if resp.TraceID == "" {
		resp.TraceID = req.TraceID
	}
	if resp.Usage.Model == "" {
		resp.Usage.Model = c.config.Model
	}

	metrics.LLMLatency.WithLabelValues(c.config.Model, string(resp.Status)).Observe(time.Since(start).Seconds())
	metrics.LLMTokenUsage.WithLabelValues(c.config.Model, "prompt").Add(float64(resp.Usage.PromptTokens))
	metrics.LLMTokenUsage.WithLabelValues(c.config.Model, "completion").Add(float64(resp.Usage.CompletionTokens))

	if resp.Status != StatusSuccess {
		return resp, fmt.Errorf("%w: bridge returned status %s", apperrors.ErrLLMUnavailable, resp.Status)
	}
	return resp, nil
}

// InferWithRetry 带指数退避的推理，次数取 config.MaxRetries
func (c *Client) InferWithRetry(ctx context.Context, req *InferRequest) (*InferResponse, error) {
	attempts := c.config.MaxRetries + 1
	var lastErr error
	for i := 0; i < attempts; i++ {
		resp, err := c.Infer(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !c.Enabled() || i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, errors.Join(lastErr, ctx.Err())
		case <-time.After(time.Duration(1<<i) * time.Second):
		}
	}
	return nil, fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
}

func (r *InferRequest) contextValue() map[string]interface{} {
	if r.Context == nil {
		return map[string]interface{}{}
	}
	return r.Context
}

func decodeResponse(s *structpb.Struct) *InferResponse {
	f := s.GetFields()
	resp := &InferResponse{
		TraceID:     f["trace_id"].GetStringValue(),
		Status:      ResponseStatus(f["status"].GetStringValue()),
		FinalAnswer: f["final_answer"].GetStringValue(),
	}
	if resp.Status == "" {
		resp.Status = StatusSuccess
	}
	if usage := f["usage"].GetStructValue(); usage != nil {
		u := usage.GetFields()
		resp.Usage = UsageMetrics{
			PromptTokens:     int(u["prompt_tokens"].GetNumberValue()),
			CompletionTokens: int(u["completion_tokens"].GetNumberValue()),
			Model:            u["model"].GetStringValue(),
		}
	}
	return resp
}
