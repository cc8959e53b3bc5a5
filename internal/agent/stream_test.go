package agent_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/flemzord/parserdesk/internal/agent"
	"github.com/flemzord/parserdesk/internal/provider"
	"github.com/flemzord/parserdesk/internal/provider/providertest"
	"github.com/flemzord/parserdesk/internal/tool"
	"github.com/flemzord/parserdesk/internal/tool/tooltest"
	"github.com/flemzord/parserdesk/internal/workflow"
)

func collect(t *testing.T, ch <-chan agent.Event) []agent.Event {
	t.Helper()
	var events []agent.Event
	for e := range ch {
		events = append(events, e)
	}
	if len(events) == 0 {
		t.Fatal("no events")
	}
	return events
}

func types(events []agent.Event) []agent.EventType {
	out := make([]agent.EventType, len(events))
	for i, e := range events {
		out[i] = e.Type
	}
	return out
}

func TestConverseStream_SecondCallStreamsVisibleText(t *testing.T) {
	t.Parallel()

	p := &providertest.MockProvider{
		CompleteFunc: func(context.Context, provider.CompletionRequest) (provider.CompletionResponse, error) {
			return text(`<mem_set>{"url":"https://a.test"}</mem_set>ok`), nil
		},
		StreamFunc: func(context.Context, provider.CompletionRequest) (<-chan provider.StreamChunk, error) {
			return providertest.Chunks("Stored ", "<state>FETCHING_HTML</state>", " now"), nil
		},
	}
	c := agent.New(p, nil)

	ch, err := c.ConverseStream(t.Context(), "https://a.test", agent.Options{})
	if err != nil {
		t.Fatal(err)
	}
	events := collect(t, ch)

	want := []agent.EventType{agent.EventText, agent.EventText, agent.EventDone}
	if diff := cmp.Diff(want, types(events)); diff != "" {
		t.Fatalf("events (-want +got):\n%s", diff)
	}
	if events[1].Text != " now" {
		t.Errorf("second fragment = %q", events[1].Text)
	}
	reply := events[2].Reply
	if reply.Text != "Stored [State: FETCHING_HTML] now" {
		t.Errorf("Reply.Text = %q", reply.Text)
	}
	if reply.State != workflow.FetchingHTML {
		t.Errorf("State = %s", reply.State)
	}
	if p.CompleteCalls != 1 || p.StreamCalls != 1 {
		t.Errorf("Complete = %d, Stream = %d, want 1, 1", p.CompleteCalls, p.StreamCalls)
	}
	if got := c.History().All()[1].Text; got != reply.Text {
		t.Errorf("history keeps the cleaned reply, got %q", got)
	}
}

func TestConverseStream_HidesDirectivesSplitAcrossChunks(t *testing.T) {
	t.Parallel()

	p := &providertest.MockProvider{
		CompleteFunc: func(context.Context, provider.CompletionRequest) (provider.CompletionResponse, error) {
			return text(`<mem_validate>["url"]</mem_validate>`), nil
		},
		StreamFunc: func(context.Context, provider.CompletionRequest) (<-chan provider.StreamChunk, error) {
			return providertest.Chunks(
				"Here ",
				`<mem>{"html":"<html>...</html>"}</mem>`,
				`<mem_s`, `et>{"title":"T"}</mem_`, `set>`,
				"done",
			), nil
		},
	}
	c := agent.New(p, nil)

	ch, err := c.ConverseStream(t.Context(), "go", agent.Options{})
	if err != nil {
		t.Fatal(err)
	}
	var shown strings.Builder
	var reply *agent.Reply
	for _, e := range collect(t, ch) {
		switch e.Type {
		case agent.EventText:
			shown.WriteString(e.Text)
		case agent.EventDone:
			reply = e.Reply
		}
	}
	if shown.String() != "Here done" {
		t.Errorf("shown = %q", shown.String())
	}
	if reply == nil || reply.Text != "Here done" {
		t.Fatalf("reply = %+v", reply)
	}
	if v, _ := c.Memory().String("title"); v != "T" {
		t.Errorf("title = %q, the directive must still apply", v)
	}
}

func TestConverseStream_NoDirectivesEmitsFirstReply(t *testing.T) {
	t.Parallel()

	p := providertest.Scripted(text("Send me a URL."))
	c := agent.New(p, nil)

	ch, err := c.ConverseStream(t.Context(), "hi", agent.Options{})
	if err != nil {
		t.Fatal(err)
	}
	events := collect(t, ch)

	want := []agent.EventType{agent.EventText, agent.EventDone}
	if diff := cmp.Diff(want, types(events)); diff != "" {
		t.Fatalf("events (-want +got):\n%s", diff)
	}
	if events[0].Text != "Send me a URL." {
		t.Errorf("text = %q", events[0].Text)
	}
	if p.StreamCalls != 0 {
		t.Error("the first call is never streamed")
	}
}

func TestConverseStream_FunctionEvents(t *testing.T) {
	t.Parallel()

	reg := tool.NewRegistry()
	_ = reg.Register(tooltest.Returning("probe", map[string]int{"n": 1}))

	p := providertest.Scripted(
		calling("Checking.", toolCall("probe", `{}`)),
		text("Done."),
	)
	c := agent.New(p, nil, withFunctions(reg)...)

	ch, err := c.ConverseStream(t.Context(), "go", agent.Options{})
	if err != nil {
		t.Fatal(err)
	}
	events := collect(t, ch)

	want := []agent.EventType{agent.EventText, agent.EventFunction, agent.EventText, agent.EventDone}
	if diff := cmp.Diff(want, types(events)); diff != "" {
		t.Fatalf("events (-want +got):\n%s", diff)
	}
	if got := string(events[1].Function.Result); got != `{"n":1}` {
		t.Errorf("function result = %s", got)
	}
}

func TestConverseStream_MidStreamError(t *testing.T) {
	t.Parallel()

	boom := errors.New("stream reset")
	p := &providertest.MockProvider{
		CompleteFunc: func(context.Context, provider.CompletionRequest) (provider.CompletionResponse, error) {
			return text(`<mem_set>{"url":"https://a.test"}</mem_set>`), nil
		},
		StreamFunc: func(context.Context, provider.CompletionRequest) (<-chan provider.StreamChunk, error) {
			ch := make(chan provider.StreamChunk, 3)
			ch <- provider.StreamChunk{Content: "partial"}
			ch <- provider.StreamChunk{Err: boom}
			ch <- provider.StreamChunk{Content: "ignored"}
			close(ch)
			return ch, nil
		},
	}
	c := agent.New(p, nil)

	ch, err := c.ConverseStream(t.Context(), "https://a.test", agent.Options{})
	if err != nil {
		t.Fatal(err)
	}
	events := collect(t, ch)

	last := events[len(events)-1]
	if last.Type != agent.EventError {
		t.Fatalf("last event = %s, want error", last.Type)
	}
	if !errors.Is(last.Err, agent.ErrLLMCall) || !errors.Is(last.Err, boom) {
		t.Errorf("err = %v", last.Err)
	}
	for _, e := range events {
		if e.Type == agent.EventDone {
			t.Error("a failed turn must not emit done")
		}
	}
	if c.History().Len() != 0 || c.Memory().Len() != 0 {
		t.Error("failed turn should leave history and memory untouched")
	}
}

func TestConverseStream_StreamSetupError(t *testing.T) {
	t.Parallel()

	p := &providertest.MockProvider{
		CompleteFunc: func(context.Context, provider.CompletionRequest) (provider.CompletionResponse, error) {
			return text(`<mem_get>all</mem_get>`), nil
		},
		StreamFunc: func(context.Context, provider.CompletionRequest) (<-chan provider.StreamChunk, error) {
			return nil, provider.ErrAuthentication
		},
	}
	c := agent.New(p, nil)

	ch, err := c.ConverseStream(t.Context(), "hi", agent.Options{})
	if err != nil {
		t.Fatal(err)
	}
	events := collect(t, ch)
	if len(events) != 1 || events[0].Type != agent.EventError || !agent.IsAuthFailure(events[0].Err) {
		t.Errorf("events = %+v", events)
	}
}
