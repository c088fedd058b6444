package tools_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/vireo-ai/vireo/internal/tools"
	"github.com/vireo-ai/vireo/pkg/types"
)

func TestBuiltinDefinitions(t *testing.T) {
	t.Parallel()

	defs := tools.Builtin().Definitions()
	if len(defs) != 2 {
		t.Fatalf("got %d definitions, want 2", len(defs))
	}
	// Sorted by name.
	if defs[0].Name != "get_current_date" || defs[1].Name != "get_current_time" {
		t.Errorf("definitions = %q, %q", defs[0].Name, defs[1].Name)
	}
}

func TestBuiltinTimeTools(t *testing.T) {
	t.Parallel()

	fixed := time.Date(2026, 8, 24, 15, 42, 0, 0, time.UTC)
	r := tools.BuiltinAt(func() time.Time { return fixed })

	tests := []struct {
		tool string
		key  string
		want string
	}{
		{"get_current_time", "time", "03:42 PM"},
		{"get_current_date", "date", "2026-08-24"},
	}
	for _, tt := range tests {
		t.Run(tt.tool, func(t *testing.T) {
			t.Parallel()
			raw := r.Execute(context.Background(), tt.tool, "{}")
			var got map[string]string
			if err := json.Unmarshal([]byte(raw), &got); err != nil {
				t.Fatalf("result %q is not JSON: %v", raw, err)
			}
			if got[tt.key] != tt.want {
				t.Errorf("%s = %q, want %q", tt.key, got[tt.key], tt.want)
			}
		})
	}
}

func TestExecuteEmptyArguments(t *testing.T) {
	t.Parallel()

	r := tools.Builtin()
	raw := r.Execute(context.Background(), "get_current_time", "")
	if strings.HasPrefix(raw, "tool error") {
		t.Errorf("empty arguments should decode as empty object, got %q", raw)
	}
}

func TestExecuteFailures(t *testing.T) {
	t.Parallel()

	r := tools.NewRegistry()
	r.Register(tools.Tool{
		Definition: types.ToolDefinition{Name: "boom"},
		Fn: func(context.Context, map[string]any) (any, error) {
			return nil, errors.New("exploded")
		},
	})

	tests := []struct {
		name string
		tool string
		args string
		want string
	}{
		{"unknown tool", "nope", "{}", `unknown tool "nope"`},
		{"bad arguments", "boom", "{not json", "invalid arguments"},
		{"handler error", "boom", "{}", "exploded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := r.Execute(context.Background(), tt.tool, tt.args)
			if !strings.HasPrefix(got, "tool error") || !strings.Contains(got, tt.want) {
				t.Errorf("Execute() = %q, want tool error containing %q", got, tt.want)
			}
		})
	}
}
