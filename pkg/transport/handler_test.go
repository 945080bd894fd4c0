package transport

import (
	"context"
	"errors"
	"testing"

	"github.com/rhuss/runcode/pkg/api"
)

func TestToolCallerFuncAdapter(t *testing.T) {
	var received *api.ToolCallRequest
	fn := ToolCallerFunc(func(_ context.Context, req *api.ToolCallRequest) (*api.ToolCallResponse, error) {
		received = req
		return &api.ToolCallResponse{CallID: req.ID, Output: "ok"}, nil
	})

	var _ ToolCaller = fn

	resp, err := fn.CallTool(context.Background(), &api.ToolCallRequest{ID: "call_1", Name: "run_python_code"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if received == nil || received.Name != "run_python_code" {
		t.Errorf("request not passed through: %+v", received)
	}
	if resp.CallID != "call_1" || resp.Output != "ok" {
		t.Errorf("response = %+v", resp)
	}
}

func TestToolCallerFuncReturnsError(t *testing.T) {
	fn := ToolCallerFunc(func(context.Context, *api.ToolCallRequest) (*api.ToolCallResponse, error) {
		return nil, api.NewNotFoundError("tool not found")
	})

	_, err := fn.CallTool(context.Background(), &api.ToolCallRequest{})
	var apiErr *api.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *api.APIError, got %T", err)
	}
	if apiErr.Type != api.ErrorTypeNotFound {
		t.Errorf("error type = %q, want %q", apiErr.Type, api.ErrorTypeNotFound)
	}
}

func TestListOptions_EffectiveLimit(t *testing.T) {
	tests := []struct {
		limit, want int
	}{
		{0, 20},
		{-5, 20},
		{1, 1},
		{100, 100},
		{500, 100},
	}
	for _, tt := range tests {
		if got := (ListOptions{Limit: tt.limit}).EffectiveLimit(); got != tt.want {
			t.Errorf("EffectiveLimit(%d) = %d, want %d", tt.limit, got, tt.want)
		}
	}
}

func TestInterfaceSatisfaction(t *testing.T) {
	var _ ToolCaller = ToolCallerFunc(nil)
	var _ ToolService = (*mockService)(nil)
	var _ ExecutionStore = (*mockStore)(nil)
}

type mockService struct{}

func (m *mockService) CallTool(context.Context, *api.ToolCallRequest) (*api.ToolCallResponse, error) {
	return nil, nil
}
func (m *mockService) ListTools(context.Context) []api.ToolDefinition { return nil }

type mockStore struct{}

func (m *mockStore) SaveExecution(context.Context, *api.ExecutionRecord) error { return nil }
func (m *mockStore) GetExecution(context.Context, string) (*api.ExecutionRecord, error) {
	return nil, nil
}
func (m *mockStore) ListExecutions(context.Context, ListOptions) (*api.ExecutionList, error) {
	return nil, nil
}
func (m *mockStore) DeleteExecution(context.Context, string) error { return nil }
func (m *mockStore) HealthCheck(context.Context) error             { return nil }
func (m *mockStore) Close() error                                  { return nil }
