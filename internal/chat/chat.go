// Package chat holds the per-session conversation client: it owns the
// message history and drives streaming LLM completions, resolving tool-call
// rounds internally so callers only ever see text fragments.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/vireo-ai/vireo/internal/tools"
	"github.com/vireo-ai/vireo/pkg/provider/llm"
	"github.com/vireo-ai/vireo/pkg/types"
)

// apology is spoken when the model backend fails mid-turn.
const apology = "I'm sorry, I'm having trouble responding right now."

// maxToolRounds bounds consecutive tool rounds within one turn so a
// misbehaving model cannot loop forever.
const maxToolRounds = 8

// Client drives a single conversation. Not safe for concurrent Generate
// calls; the turn controller serializes them.
type Client struct {
	provider llm.Provider
	registry *tools.Registry

	mu      sync.Mutex
	history []types.Message
}

// New creates a conversation client. systemPrompt seeds the history;
// registry may be nil for a tool-less conversation.
func New(provider llm.Provider, systemPrompt string, registry *tools.Registry) *Client {
	c := &Client{provider: provider, registry: registry}
	if systemPrompt != "" {
		c.history = []types.Message{{Role: types.RoleSystem, Content: systemPrompt}}
	}
	return c
}

// History returns a copy of the conversation history.
func (c *Client) History() []types.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]types.Message, len(c.history))
	copy(out, c.history)
	return out
}

// Generate appends text as a user message and streams the assistant's reply
// as raw fragments. Tool-call rounds are resolved internally and never
// surface to the caller. The channel is closed when the reply ends; on
// cancellation any partial assistant content is still appended to history.
func (c *Client) Generate(ctx context.Context, text string) <-chan string {
	c.append(types.Message{Role: types.RoleUser, Content: text})

	out := make(chan string, 16)
	go func() {
		defer close(out)
		c.run(ctx, out)
	}()
	return out
}

func (c *Client) run(ctx context.Context, out chan<- string) {
	var defs []types.ToolDefinition
	if c.registry != nil {
		defs = c.registry.Definitions()
	}

	for round := 0; round <= maxToolRounds; round++ {
		req := llm.CompletionRequest{
			Messages: c.History(),
			Tools:    defs,
		}

		ch, err := c.provider.StreamCompletion(ctx, req)
		if err != nil {
			slog.Error("llm stream failed to start", "error", err)
			c.deliver(ctx, out, apology)
			c.append(types.Message{Role: types.RoleAssistant, Content: apology})
			return
		}

		var full strings.Builder
		var calls []types.ToolCall
		var streamErr error

		for chunk := range ch {
			if chunk.FinishReason == "error" {
				streamErr = fmt.Errorf("%s", chunk.Text)
				break
			}
			if chunk.Text != "" {
				full.WriteString(chunk.Text)
				if !c.deliver(ctx, out, chunk.Text) {
					break
				}
			}
			if len(chunk.ToolCalls) > 0 {
				calls = chunk.ToolCalls
			}
		}

		if ctx.Err() != nil {
			// Keep whatever the model said before the cutoff so later turns
			// have coherent context.
			if full.Len() > 0 {
				c.append(types.Message{Role: types.RoleAssistant, Content: full.String()})
			}
			return
		}

		if streamErr != nil {
			slog.Error("llm stream failed", "error", streamErr)
			if full.Len() > 0 {
				c.append(types.Message{Role: types.RoleAssistant, Content: full.String()})
			}
			c.deliver(ctx, out, apology)
			c.append(types.Message{Role: types.RoleAssistant, Content: apology})
			return
		}

		if len(calls) == 0 {
			if full.Len() > 0 {
				c.append(types.Message{Role: types.RoleAssistant, Content: full.String()})
			}
			return
		}

		c.runToolRound(ctx, full.String(), calls)
	}

	slog.Warn("tool round limit reached, ending turn")
}

// runToolRound appends the assistant's tool request and one tool message per
// call, in index order, so the next completion sees the results.
func (c *Client) runToolRound(ctx context.Context, content string, calls []types.ToolCall) {
	for i := range calls {
		if calls[i].ID == "" {
			calls[i].ID = fmt.Sprintf("call_%d", calls[i].Index)
		}
	}

	c.append(types.Message{
		Role:      types.RoleAssistant,
		Content:   content,
		ToolCalls: calls,
	})

	for _, tc := range calls {
		var result string
		if c.registry == nil {
			result = fmt.Sprintf("tool error: unknown tool %q", tc.Name)
		} else {
			result = c.registry.Execute(ctx, tc.Name, tc.Arguments)
		}
		slog.Debug("tool executed", "tool", tc.Name, "call_id", tc.ID)
		c.append(types.Message{
			Role:       types.RoleTool,
			Content:    result,
			ToolCallID: tc.ID,
		})
	}
}

// deliver sends a fragment unless the turn was cancelled.
func (c *Client) deliver(ctx context.Context, out chan<- string, frag string) bool {
	select {
	case out <- frag:
		return true
	case <-ctx.Done():
		return false
	}
}

func (c *Client) append(m types.Message) {
	c.mu.Lock()
	c.history = append(c.history, m)
	c.mu.Unlock()
}
