package llm

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/ploxoy666/finanalyzer/pkg/config"
	apperrors "github.com/ploxoy666/finanalyzer/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"
)

// startBridge 启动内存中的 LLM Bridge，handler 处理每个 Infer 请求
func startBridge(t *testing.T, handler func(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)

	srv := grpc.NewServer(grpc.UnknownServiceHandler(func(_ interface{}, stream grpc.ServerStream) error {
		method, _ := grpc.MethodFromServerStream(stream)
		if method != InferMethod {
			return errors.New("unexpected method " + method)
		}
		req := &structpb.Struct{}
		if err := stream.RecvMsg(req); err != nil {
			return err
		}
		resp, err := handler(stream.Context(), req)
		if err != nil {
			return err
		}
		return stream.SendMsg(resp)
	}))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func testConfig() config.LLMConfig {
	return config.LLMConfig{
		Enabled:    true,
		Model:      "thesis-writer",
		APIKey:     "secret",
		Timeout:    5 * time.Second,
		MaxRetries: 1,
	}
}

func TestInfer(t *testing.T) {
	var gotAuth []string
	conn := startBridge(t, func(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
		md, _ := metadata.FromIncomingContext(ctx)
		gotAuth = md.Get("authorization")

		f := req.GetFields()
		assert.Equal(t, "thesis-writer", f["model"].GetStringValue())
		assert.Equal(t, "Summarise TST", f["user_prompt"].GetStringValue())
		assert.Equal(t, "TST", f["context"].GetStructValue().GetFields()["ticker"].GetStringValue())

		return structpb.NewStruct(map[string]interface{}{
			"status":       "success",
			"final_answer": "TST looks undervalued.",
			"usage": map[string]interface{}{
				"prompt_tokens":     120,
				"completion_tokens": 40,
			},
		})
	})

	c := NewClientWithConn(testConfig(), conn)
	resp, err := c.Infer(context.Background(), &InferRequest{
		TraceID:    "run-1",
		UserPrompt: "Summarise TST",
		Context:    map[string]interface{}{"ticker": "TST"},
	})
	require.NoError(t, err)

	assert.Equal(t, "TST looks undervalued.", resp.FinalAnswer)
	assert.Equal(t, StatusSuccess, resp.Status)
	assert.Equal(t, "run-1", resp.TraceID)
	assert.Equal(t, 120, resp.Usage.PromptTokens)
	assert.Equal(t, 40, resp.Usage.CompletionTokens)
	assert.Equal(t, "thesis-writer", resp.Usage.Model)
	assert.Equal(t, []string{"Bearer secret"}, gotAuth)
}

func TestInferBridgeError(t *testing.T) {
	conn := startBridge(t, func(context.Context, *structpb.Struct) (*structpb.Struct, error) {
		return structpb.NewStruct(map[string]interface{}{"status": "rate_limited"})
	})

	_, err := NewClientWithConn(testConfig(), conn).Infer(context.Background(), &InferRequest{UserPrompt: "x"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrLLMUnavailable))
}

func TestInferDisabled(t *testing.T) {
	c, err := NewClient(config.LLMConfig{Enabled: false})
	require.NoError(t, err)
	assert.False(t, c.Enabled())

	_, err = c.Infer(context.Background(), &InferRequest{UserPrompt: "x"})
	assert.True(t, errors.Is(err, apperrors.ErrLLMUnavailable))

	_, err = c.InferWithRetry(context.Background(), &InferRequest{UserPrompt: "x"})
	assert.True(t, errors.Is(err, apperrors.ErrLLMUnavailable))
	assert.NoError(t, c.Close())
}

func TestInferWithRetryRecovers(t *testing.T) {
	calls := 0
	conn := startBridge(t, func(context.Context, *structpb.Struct) (*structpb.Struct, error) {
		calls++
		if calls == 1 {
			return structpb.NewStruct(map[string]interface{}{"status": "error"})
		}
		return structpb.NewStruct(map[string]interface{}{"final_answer": "ok"})
	})

	resp, err := NewClientWithConn(testConfig(), conn).InferWithRetry(context.Background(), &InferRequest{UserPrompt: "x"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.FinalAnswer)
	assert.Equal(t, 2, calls)
}
