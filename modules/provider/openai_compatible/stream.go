package openaicompat

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/flemzord/parserdesk/internal/provider"
)

type oaiStreamChunk struct {
	Choices []oaiStreamChoice `json:"choices"`
	Usage   *oaiUsage         `json:"usage,omitempty"`
}

type oaiStreamChoice struct {
	Delta        oaiStreamDelta `json:"delta"`
	FinishReason *string        `json:"finish_reason"`
}

type oaiStreamDelta struct {
	Content   string          `json:"content,omitempty"`
	ToolCalls []oaiStreamTool `json:"tool_calls,omitempty"`
}

type oaiStreamTool struct {
	Index    int             `json:"index"`
	ID       string          `json:"id,omitempty"`
	Function oaiToolFunction `json:"function"`
}

// toolAccumulator merges streamed tool call deltas by index.
type toolAccumulator map[int]*provider.ToolCall

func (ta toolAccumulator) add(st oaiStreamTool) {
	tc, ok := ta[st.Index]
	if !ok {
		tc = &provider.ToolCall{}
		ta[st.Index] = tc
	}
	if st.ID != "" {
		tc.ID = st.ID
	}
	if st.Function.Name != "" {
		tc.Name = st.Function.Name
	}
	tc.Arguments = append(tc.Arguments, st.Function.Arguments...)
}

func (ta toolAccumulator) result() []provider.ToolCall {
	idx := make([]int, 0, len(ta))
	for i := range ta {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	out := make([]provider.ToolCall, 0, len(idx))
	for _, i := range idx {
		tc := *ta[i]
		tc.Arguments = normalizeArgs(string(tc.Arguments))
		out = append(out, tc)
	}
	return out
}

// readSSE decodes an OpenAI SSE body and hands each chunk to emit until
// the stream ends or emit returns false. Tool calls are only emitted once,
// complete, when the stream finishes.
func readSSE(ctx context.Context, scanner *bufio.Scanner, emit func(provider.StreamChunk) bool) {
	tools := toolAccumulator{}
	flushTools := func() {
		if len(tools) > 0 {
			emit(provider.StreamChunk{ToolCalls: tools.result()})
		}
	}

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			emit(provider.StreamChunk{Err: err})
			return
		}

		// Some servers omit the space after "data:".
		line := scanner.Text()
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == "[DONE]" {
			flushTools()
			return
		}

		var chunk oaiStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			emit(provider.StreamChunk{Err: fmt.Errorf("parse SSE chunk: %w", err)})
			return
		}

		var sc provider.StreamChunk
		if chunk.Usage != nil {
			u := chunk.Usage.toUsage()
			sc.Usage = &u
		}
		if len(chunk.Choices) > 0 {
			choice := chunk.Choices[0]
			sc.Content = choice.Delta.Content
			for _, tc := range choice.Delta.ToolCalls {
				tools.add(tc)
			}
			if choice.FinishReason != nil {
				sc.FinishReason = mapFinishReason(*choice.FinishReason)
			}
		}
		if sc.Content != "" || sc.FinishReason != "" || sc.Usage != nil {
			if !emit(sc) {
				return
			}
		}
	}

	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			emit(provider.StreamChunk{Err: ctx.Err()})
			return
		}
		emit(provider.StreamChunk{Err: fmt.Errorf("%w: stream read error: %w", provider.ErrProviderDown, err)})
		return
	}
	// Body ended without [DONE]; still surface any tool calls.
	flushTools()
}
