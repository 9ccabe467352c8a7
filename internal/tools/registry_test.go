package tools

import (
	"context"
	"testing"
)

func TestNewRegistry(t *testing.T) {
	reg := NewRegistry()
	if reg == nil {
		t.Fatal("NewRegistry returned nil")
	}
	if reg.Count() != 0 {
		t.Errorf("new registry should be empty, got %d tools", reg.Count())
	}
}

func TestRegisterAndGet(t *testing.T) {
	reg := NewRegistry()

	tool := &Tool{
		Name:        "test_tool",
		Description: "A test tool",
		Category:    CategorySearch,
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			return "success", nil
		},
		Schema: ToolSchema{
			Required: []string{},
		},
	}

	if err := reg.Register(tool); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	got := reg.Get("test_tool")
	if got == nil {
		t.Fatal("Get returned nil for registered tool")
	}
	if got.Name != "test_tool" {
		t.Errorf("got name %q, want %q", got.Name, "test_tool")
	}
}

func TestRegisterDuplicate(t *testing.T) {
	reg := NewRegistry()

	tool := &Tool{
		Name:     "dupe",
		Category: CategorySearch,
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			return "", nil
		},
	}

	if err := reg.Register(tool); err != nil {
		t.Fatalf("first Register failed: %v", err)
	}

	err := reg.Register(tool)
	if err == nil {
		t.Fatal("expected error for duplicate registration")
	}
}

func TestRegisterValidation(t *testing.T) {
	reg := NewRegistry()

	tests := []struct {
		name    string
		tool    *Tool
		wantErr error
	}{
		{
			name:    "empty name",
			tool:    &Tool{Name: "", Execute: func(ctx context.Context, args map[string]any) (string, error) { return "", nil }},
			wantErr: ErrToolNameEmpty,
		},
		{
			name:    "nil execute",
			tool:    &Tool{Name: "test", Execute: nil},
			wantErr: ErrToolExecuteNil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := reg.Register(tt.tool)
			if err == nil {
				t.Errorf("expected error %v, got nil", tt.wantErr)
			}
		})
	}
}

func TestGetByCategory(t *testing.T) {
	reg := NewRegistry()

	tools := []*Tool{
		{Name: "search1", Category: CategorySearch, Priority: 80, Execute: func(ctx context.Context, args map[string]any) (string, error) { return "", nil }},
		{Name: "search2", Category: CategorySearch, Priority: 60, Execute: func(ctx context.Context, args map[string]any) (string, error) { return "", nil }},
		{Name: "dup1", Category: CategoryDuplication, Priority: 50, Execute: func(ctx context.Context, args map[string]any) (string, error) { return "", nil }},
	}

	for _, tool := range tools {
		reg.MustRegister(tool)
	}

	search := reg.GetByCategory(CategorySearch)
	if len(search) != 2 {
		t.Errorf("expected 2 search tools, got %d", len(search))
	}

	if search[0].Name != "search1" {
		t.Errorf("expected search1 first (priority 80), got %s", search[0].Name)
	}
}

func TestExecute(t *testing.T) {
	reg := NewRegistry()

	tool := &Tool{
		Name:     "echo",
		Category: CategorySearch,
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			msg, _ := args["message"].(string)
			return "Echo: " + msg, nil
		},
		Schema: ToolSchema{
			Required:   []string{"message"},
			Properties: map[string]Property{"message": {Type: "string"}},
		},
	}

	reg.MustRegister(tool)

	result, err := reg.Execute(context.Background(), "echo", map[string]any{"message": "hello"})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result.Result != "Echo: hello" {
		t.Errorf("got result %q, want %q", result.Result, "Echo: hello")
	}
	if !result.IsSuccess() {
		t.Error("expected IsSuccess to be true")
	}

	_, err = reg.Execute(context.Background(), "echo", map[string]any{})
	if err == nil {
		t.Error("expected error for missing required arg")
	}

	_, err = reg.Execute(context.Background(), "nonexistent", map[string]any{})
	if err == nil {
		t.Error("expected error for nonexistent tool")
	}
}

func TestMutatingToolDefaultsDryRunTrue(t *testing.T) {
	reg := NewRegistry()

	var gotDryRun any
	tool := &Tool{
		Name:     "apply_deduplication",
		Category: CategoryDuplication,
		Mutates:  true,
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			gotDryRun = args["dry_run"]
			return "ok", nil
		},
	}
	reg.MustRegister(tool)

	if _, err := reg.Execute(context.Background(), "apply_deduplication", map[string]any{}); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if gotDryRun != true {
		t.Errorf("expected dry_run to default to true, got %v", gotDryRun)
	}

	gotDryRun = nil
	if _, err := reg.Execute(context.Background(), "apply_deduplication", map[string]any{"dry_run": false}); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if gotDryRun != false {
		t.Errorf("expected explicit dry_run=false to be preserved, got %v", gotDryRun)
	}
}

func TestExecuteRecoversPanic(t *testing.T) {
	reg := NewRegistry()

	tool := &Tool{
		Name:     "boom",
		Category: CategorySearch,
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			panic("kaboom")
		},
	}
	reg.MustRegister(tool)

	result, err := reg.Execute(context.Background(), "boom", map[string]any{})
	if err == nil {
		t.Fatal("expected error from recovered panic")
	}
	if result == nil || result.Error == nil {
		t.Fatal("expected ToolResult with Error set")
	}
}

func TestGlobalRegistry(t *testing.T) {
	globalRegistry = NewRegistry()

	tool := &Tool{
		Name:     "global_test",
		Category: CategorySearch,
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			return "global", nil
		},
	}

	if err := Register(tool); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	got := Get("global_test")
	if got == nil {
		t.Fatal("Get returned nil for globally registered tool")
	}

	result, err := Execute(context.Background(), "global_test", map[string]any{})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result.Result != "global" {
		t.Errorf("got result %q, want %q", result.Result, "global")
	}
}
