package anyllm

import (
	"testing"

	"github.com/vireo-ai/vireo/pkg/types"
)

func TestCollectToolCallsSparseIndices(t *testing.T) {
	t.Parallel()

	accum := map[int]*types.ToolCall{
		2: {ID: "b", Index: 2, Name: "get_time", Arguments: "{}"},
		0: {ID: "a", Index: 0, Name: "get_weather", Arguments: "{}"},
	}

	got := collectToolCalls(accum)
	if len(got) != 2 {
		t.Fatalf("tool calls = %d, want 2", len(got))
	}
	if got[0].ID != "a" || got[1].ID != "b" {
		t.Errorf("order = [%s %s], want [a b]", got[0].ID, got[1].ID)
	}
}
