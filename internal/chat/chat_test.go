package chat_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/vireo-ai/vireo/internal/chat"
	"github.com/vireo-ai/vireo/internal/tools"
	"github.com/vireo-ai/vireo/pkg/provider/llm"
	llmmock "github.com/vireo-ai/vireo/pkg/provider/llm/mock"
	"github.com/vireo-ai/vireo/pkg/types"
)

func collect(ch <-chan string) string {
	var b strings.Builder
	for frag := range ch {
		b.WriteString(frag)
	}
	return b.String()
}

func TestGenerateStreamsFragments(t *testing.T) {
	t.Parallel()

	p := &llmmock.Provider{
		Scripts: [][]llm.Chunk{{
			{Text: "Hello"},
			{Text: " there."},
			{FinishReason: "stop"},
		}},
	}
	c := chat.New(p, "be brief", nil)

	got := collect(c.Generate(context.Background(), "hi"))
	if got != "Hello there." {
		t.Errorf("reply = %q, want %q", got, "Hello there.")
	}

	hist := c.History()
	if len(hist) != 3 {
		t.Fatalf("history len = %d, want 3 (system, user, assistant)", len(hist))
	}
	if hist[0].Role != types.RoleSystem || hist[0].Content != "be brief" {
		t.Errorf("history[0] = %+v", hist[0])
	}
	if hist[1].Role != types.RoleUser || hist[1].Content != "hi" {
		t.Errorf("history[1] = %+v", hist[1])
	}
	if hist[2].Role != types.RoleAssistant || hist[2].Content != "Hello there." {
		t.Errorf("history[2] = %+v", hist[2])
	}
}

func TestGenerateResolvesToolRound(t *testing.T) {
	t.Parallel()

	reg := tools.NewRegistry()
	reg.Register(tools.Tool{
		Definition: types.ToolDefinition{Name: "get_weather"},
		Fn: func(context.Context, map[string]any) (any, error) {
			return map[string]string{"weather": "sunny"}, nil
		},
	})

	p := &llmmock.Provider{
		Scripts: [][]llm.Chunk{
			{
				{FinishReason: "tool_calls", ToolCalls: []types.ToolCall{
					{Name: "get_weather", Index: 0, Arguments: "{}"},
				}},
			},
			{
				{Text: "It is sunny."},
				{FinishReason: "stop"},
			},
		},
	}
	c := chat.New(p, "", reg)

	got := collect(c.Generate(context.Background(), "weather?"))
	if got != "It is sunny." {
		t.Errorf("reply = %q", got)
	}

	calls := p.Calls()
	if len(calls) != 2 {
		t.Fatalf("stream calls = %d, want 2", len(calls))
	}
	// Second request must include the tool round.
	msgs := calls[1].Req.Messages
	var sawAssistant, sawTool bool
	for _, m := range msgs {
		if m.Role == types.RoleAssistant && len(m.ToolCalls) == 1 {
			sawAssistant = true
			// Missing provider ID gets a synthesized fallback.
			if m.ToolCalls[0].ID != "call_0" {
				t.Errorf("tool call id = %q, want call_0", m.ToolCalls[0].ID)
			}
		}
		if m.Role == types.RoleTool {
			sawTool = true
			if m.ToolCallID != "call_0" {
				t.Errorf("tool_call_id = %q, want call_0", m.ToolCallID)
			}
			if !strings.Contains(m.Content, "sunny") {
				t.Errorf("tool message content = %q", m.Content)
			}
		}
	}
	if !sawAssistant || !sawTool {
		t.Errorf("second request missing tool round: assistant=%v tool=%v", sawAssistant, sawTool)
	}
}

func TestGenerateResolvesMultipleToolCalls(t *testing.T) {
	t.Parallel()

	reg := tools.NewRegistry()
	reg.Register(tools.Tool{
		Definition: types.ToolDefinition{Name: "get_weather"},
		Fn: func(context.Context, map[string]any) (any, error) {
			return map[string]string{"weather": "sunny"}, nil
		},
	})
	reg.Register(tools.Tool{
		Definition: types.ToolDefinition{Name: "get_time"},
		Fn: func(context.Context, map[string]any) (any, error) {
			return map[string]string{"time": "noon"}, nil
		},
	})

	// One assistant message requesting both tools, neither carrying an ID.
	p := &llmmock.Provider{
		Scripts: [][]llm.Chunk{
			{
				{FinishReason: "tool_calls", ToolCalls: []types.ToolCall{
					{Name: "get_weather", Index: 0, Arguments: "{}"},
					{Name: "get_time", Index: 1, Arguments: "{}"},
				}},
			},
			{
				{Text: "Sunny, and it is noon."},
				{FinishReason: "stop"},
			},
		},
	}
	c := chat.New(p, "be helpful", reg)

	got := collect(c.Generate(context.Background(), "weather and time?"))
	if got != "Sunny, and it is noon." {
		t.Errorf("reply = %q", got)
	}

	hist := c.History()
	if len(hist) != 6 {
		t.Fatalf("history len = %d, want 6 (system, user, assistant, tool, tool, assistant)", len(hist))
	}

	wantRoles := []types.Role{
		types.RoleSystem, types.RoleUser, types.RoleAssistant,
		types.RoleTool, types.RoleTool, types.RoleAssistant,
	}
	for i, want := range wantRoles {
		if hist[i].Role != want {
			t.Errorf("history[%d].Role = %q, want %q", i, hist[i].Role, want)
		}
	}

	// The tool-requesting assistant message carries both calls with
	// synthesized fallback IDs.
	asst := hist[2]
	if len(asst.ToolCalls) != 2 {
		t.Fatalf("assistant tool calls = %d, want 2", len(asst.ToolCalls))
	}
	if asst.ToolCalls[0].ID != "call_0" || asst.ToolCalls[1].ID != "call_1" {
		t.Errorf("tool call ids = [%s %s], want [call_0 call_1]",
			asst.ToolCalls[0].ID, asst.ToolCalls[1].ID)
	}

	// One tool result per call, in call order, linked by those IDs.
	if hist[3].ToolCallID != "call_0" || !strings.Contains(hist[3].Content, "sunny") {
		t.Errorf("history[3] = %+v, want call_0 weather result", hist[3])
	}
	if hist[4].ToolCallID != "call_1" || !strings.Contains(hist[4].Content, "noon") {
		t.Errorf("history[4] = %+v, want call_1 time result", hist[4])
	}

	if hist[5].Content != "Sunny, and it is noon." {
		t.Errorf("final assistant content = %q", hist[5].Content)
	}
}

func TestGenerateToolErrorReportedToModel(t *testing.T) {
	t.Parallel()

	reg := tools.NewRegistry()
	reg.Register(tools.Tool{
		Definition: types.ToolDefinition{Name: "flaky"},
		Fn: func(context.Context, map[string]any) (any, error) {
			return nil, errors.New("backend down")
		},
	})

	p := &llmmock.Provider{
		Scripts: [][]llm.Chunk{
			{{FinishReason: "tool_calls", ToolCalls: []types.ToolCall{{ID: "c1", Name: "flaky"}}}},
			{{Text: "Sorry, no luck."}, {FinishReason: "stop"}},
		},
	}
	c := chat.New(p, "", reg)

	got := collect(c.Generate(context.Background(), "try it"))
	if got != "Sorry, no luck." {
		t.Errorf("reply = %q", got)
	}

	calls := p.Calls()
	var toolMsg string
	for _, m := range calls[1].Req.Messages {
		if m.Role == types.RoleTool {
			toolMsg = m.Content
		}
	}
	if !strings.Contains(toolMsg, "backend down") {
		t.Errorf("tool message = %q, want error description", toolMsg)
	}
}

func TestGenerateApologyOnStreamError(t *testing.T) {
	t.Parallel()

	p := &llmmock.Provider{
		Scripts: [][]llm.Chunk{{
			{Text: "I was about to"},
			{FinishReason: "error", Text: "rate limited"},
		}},
	}
	c := chat.New(p, "", nil)

	got := collect(c.Generate(context.Background(), "hi"))
	if !strings.Contains(got, "trouble responding") {
		t.Errorf("reply = %q, want apology fragment", got)
	}
}

func TestGenerateApologyOnStartError(t *testing.T) {
	t.Parallel()

	p := &llmmock.Provider{StreamErr: errors.New("connection refused")}
	c := chat.New(p, "", nil)

	got := collect(c.Generate(context.Background(), "hi"))
	if !strings.Contains(got, "trouble responding") {
		t.Errorf("reply = %q, want apology fragment", got)
	}
}

func TestGenerateCancelKeepsPartial(t *testing.T) {
	t.Parallel()

	p := &llmmock.Provider{
		Blocking: true,
		Scripts:  [][]llm.Chunk{{{Text: "partial answer"}}},
	}
	c := chat.New(p, "", nil)

	ctx, cancel := context.WithCancel(context.Background())
	ch := c.Generate(ctx, "hi")

	if frag := <-ch; frag != "partial answer" {
		t.Fatalf("fragment = %q", frag)
	}
	cancel()
	for range ch {
	}

	hist := c.History()
	last := hist[len(hist)-1]
	if last.Role != types.RoleAssistant || last.Content != "partial answer" {
		t.Errorf("last history entry = %+v, want partial assistant content", last)
	}
}
