package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	ctxengine "github.com/flemzord/parserdesk/internal/context"
	"github.com/flemzord/parserdesk/internal/directive"
	"github.com/flemzord/parserdesk/internal/memory"
	"github.com/flemzord/parserdesk/internal/provider"
	"github.com/flemzord/parserdesk/internal/tool"
	"github.com/flemzord/parserdesk/internal/tool/builtin"
	"github.com/flemzord/parserdesk/internal/workflow"
)

const tracerName = "github.com/flemzord/parserdesk/internal/agent"

// streamBuffer is the capacity of the ConverseStream channel.
const streamBuffer = 16

// Conversation is one session's dialogue with the model. It owns the
// session memory, the visible history, the companion log of raw replies
// and the state machine. Turns are serialised: a concurrent call blocks
// until the running turn finishes.
type Conversation struct {
	mu sync.Mutex

	id        string
	provider  provider.Provider
	budgeter  *ctxengine.Budgeter
	registry  *tool.Registry
	mem       *memory.Store
	history   *memory.History
	companion *memory.ConversationLog
	machine   *workflow.Machine
	processor *directive.Processor
	pages     *tool.PageCache
	cfg       Config

	logger   *slog.Logger
	tracer   trace.Tracer
	observer Observer
}

// Option configures a Conversation.
type Option func(*Conversation)

// WithID sets the session identifier used in logs, spans and function
// environments.
func WithID(id string) Option {
	return func(c *Conversation) { c.id = id }
}

// WithConfig sets the turn configuration.
func WithConfig(cfg Config) Option {
	return func(c *Conversation) { c.cfg = cfg }
}

// WithRegistry sets the functions offered to the model.
func WithRegistry(r *tool.Registry) Option {
	return func(c *Conversation) { c.registry = r }
}

// WithBudgeter sets the context-window trimmer.
func WithBudgeter(b *ctxengine.Budgeter) Option {
	return func(c *Conversation) { c.budgeter = b }
}

// WithHistory resumes an existing visible history.
func WithHistory(h *memory.History) Option {
	return func(c *Conversation) { c.history = h }
}

// WithCompanion resumes an existing companion log.
func WithCompanion(l *memory.ConversationLog) Option {
	return func(c *Conversation) { c.companion = l }
}

// WithMachine resumes an existing state machine. It must be bound to the
// same memory store as the conversation.
func WithMachine(m *workflow.Machine) Option {
	return func(c *Conversation) { c.machine = m }
}

// WithPages sets the page cache shared with fetch functions.
func WithPages(p *tool.PageCache) Option {
	return func(c *Conversation) { c.pages = p }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Conversation) { c.logger = l }
}

// WithTracer sets the tracer used for turn and model-call spans.
func WithTracer(t trace.Tracer) Option {
	return func(c *Conversation) { c.tracer = t }
}

// WithObserver sets the metrics sink.
func WithObserver(o Observer) Option {
	return func(c *Conversation) { c.observer = o }
}

// New creates a Conversation over mem. A nil mem starts empty.
func New(p provider.Provider, mem *memory.Store, opts ...Option) *Conversation {
	c := &Conversation{provider: p, mem: mem}
	for _, opt := range opts {
		opt(c)
	}
	if c.mem == nil {
		c.mem = memory.NewStore(nil)
	}
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
	if c.tracer == nil {
		c.tracer = otel.Tracer(tracerName)
	}
	if c.observer == nil {
		c.observer = nopObserver{}
	}
	if c.budgeter == nil {
		c.budgeter = ctxengine.NewBudgeter(nil, ctxengine.ContextConfig{})
	}
	if c.history == nil {
		c.history = memory.NewHistory()
	}
	if c.companion == nil {
		c.companion = &memory.ConversationLog{}
	}
	if c.pages == nil {
		c.pages = tool.NewPageCache(0)
	}
	if c.machine == nil {
		c.machine = workflow.NewMachine(c.mem, workflow.WithLogger(c.logger))
	}
	c.processor = directive.NewProcessor(c.mem, c.machine, directive.WithLogger(c.logger))
	c.cfg = c.cfg.withDefaults()
	return c
}

// ID returns the session identifier.
func (c *Conversation) ID() string { return c.id }

// Memory returns the session memory.
func (c *Conversation) Memory() *memory.Store { return c.mem }

// History returns the visible history.
func (c *Conversation) History() *memory.History { return c.history }

// Companion returns the log of raw replies that carried directives.
func (c *Conversation) Companion() *memory.ConversationLog { return c.companion }

// Machine returns the state machine.
func (c *Conversation) Machine() *workflow.Machine { return c.machine }

// Pages returns the fetched-page cache.
func (c *Conversation) Pages() *tool.PageCache { return c.pages }

// Config returns the effective configuration.
func (c *Conversation) Config() Config { return c.cfg }

// Converse runs one turn and returns the cleaned reply. On error nothing
// is appended to the history and memory and state are restored to their
// values before the turn.
func (c *Conversation) Converse(ctx context.Context, input string, opts Options) (Reply, error) {
	if strings.TrimSpace(input) == "" {
		return Reply{}, ErrEmptyInput
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	opts.Stream = false
	return c.turn(ctx, input, opts, nil)
}

// ConverseStream runs one turn, emitting text as it is produced. The
// channel carries EventText and EventFunction events, then exactly one
// EventDone or EventError, and is closed afterwards. Streamed text has
// directives removed but not rendered; the processed text, with mem_get
// values and state markers, is in the final Reply.
func (c *Conversation) ConverseStream(ctx context.Context, input string, opts Options) (<-chan Event, error) {
	if strings.TrimSpace(input) == "" {
		return nil, ErrEmptyInput
	}
	opts.Stream = true

	events := make(chan Event, streamBuffer)
	go func() {
		defer close(events)
		send := func(e Event) {
			select {
			case events <- e:
			case <-ctx.Done():
			}
		}

		c.mu.Lock()
		defer c.mu.Unlock()

		reply, err := c.turn(ctx, input, opts, send)
		if err != nil {
			send(Event{Type: EventError, Err: err})
			return
		}
		send(Event{Type: EventDone, Reply: &reply})
	}()
	return events, nil
}

// turn implements one user turn. The caller holds c.mu.
func (c *Conversation) turn(ctx context.Context, input string, opts Options, emit func(Event)) (reply Reply, err error) {
	cfg := c.cfg.apply(opts)
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	before := c.machine.Current()
	ctx, span := c.tracer.Start(ctx, "conversation.turn",
		trace.WithAttributes(
			attribute.String("session.id", c.id),
			attribute.String("state.before", before.String()),
			attribute.Bool("focus_mode", cfg.FocusMode),
			attribute.Bool("functions", cfg.EnableFunctions),
			attribute.Bool("stream", cfg.stream),
		),
	)
	defer span.End()

	start := time.Now()
	snapshot := c.mem.Snapshot()
	defer func() {
		outcome := Outcome(err)
		c.observer.ObserveTurn(outcome, time.Since(start))
		if err == nil {
			span.SetAttributes(attribute.String("state.after", reply.State.String()))
			return
		}
		c.mem.Load(snapshot)
		c.machine.Restore(before.String())
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Warn("turn failed",
			"session", c.id,
			"outcome", outcome,
			"error", err,
		)
	}()

	var tools []provider.ToolDefinition
	if cfg.EnableFunctions && c.registry != nil {
		tools = c.registry.Definitions()
	}
	env := tool.Env{SessionID: c.id, Memory: c.mem, Pages: c.pages}

	pending := []memory.Message{{Role: provider.MessageRoleUser, Text: input}}
	tail := []provider.LLMMessage{userTurn(input, cfg.FocusMode)}
	loops := newLoopDetector(cfg.LoopThreshold)
	tokens := newTokenTracker(cfg.TokenBudget)
	var texts []string

	for round := 0; ; round++ {
		if err := ctx.Err(); err != nil {
			return Reply{}, err
		}

		req, dropped := c.request(cfg, tools, tail)
		resp, err := c.complete(ctx, req, PhaseFirst, round)
		if err != nil {
			return Reply{}, err
		}
		tokens.add(resp.Usage)

		streamed := false
		if res := c.processor.Process(resp.Content); res.SawAny {
			c.companion.Append(resp.Content, res.Text)

			req, dropped = c.request(cfg, tools, tail)
			if cfg.stream && emit != nil {
				resp, err = c.stream(ctx, req, round, emit)
				streamed = true
			} else {
				resp, err = c.complete(ctx, req, PhaseSecond, round)
			}
			if err != nil {
				return Reply{}, err
			}
			tokens.add(resp.Usage)
		}

		// The user-facing reply gets its own pass so directives it carries
		// are applied before it reaches the history.
		res := c.processor.Process(resp.Content)
		if res.SawAny {
			c.companion.Append(resp.Content, res.Text)
		}
		text := res.Text
		if text != "" && emit != nil && !streamed {
			emit(Event{Type: EventText, Text: text})
		}
		if round == 0 || text != "" {
			pending = append(pending, memory.Message{Role: provider.MessageRoleAssistant, Text: text})
		}
		if text != "" {
			texts = append(texts, text)
			tail = append(tail, provider.Assistant(text))
		}
		reply.Dropped = dropped

		if tokens.exceeded() {
			return Reply{}, fmt.Errorf("%w: used %d of %d tokens", ErrTokenBudget, tokens.total().TotalTokens, cfg.TokenBudget)
		}

		if !resp.WantsTools() {
			break
		}
		if len(tools) == 0 {
			c.logger.Warn("ignoring function calls, functions are disabled",
				"session", c.id,
				"count", len(resp.ToolCalls),
			)
			break
		}
		if round >= cfg.MaxToolRounds {
			return Reply{}, fmt.Errorf("%w: %d rounds", ErrToolLoopExceeded, cfg.MaxToolRounds)
		}

		reply.Rounds++
		for _, call := range resp.ToolCalls {
			if loops.record(call.Name, call.Arguments) {
				return Reply{}, fmt.Errorf("%w: %s called %d times with the same arguments", ErrLoopDetected, call.Name, cfg.LoopThreshold)
			}

			callStart := time.Now()
			result := c.registry.Execute(tool.WithEnv(ctx, env), call.Name, call.Arguments)
			c.fold(call.Name, result)

			fc := FunctionCall{
				ID:        call.ID,
				Name:      call.Name,
				Arguments: call.Arguments,
				Result:    result,
				Round:     round,
				Duration:  time.Since(callStart),
			}
			reply.Functions = append(reply.Functions, fc)
			if emit != nil {
				emit(Event{Type: EventFunction, Function: &fc})
			}

			line := functionResult(call.Name, result)
			pending = append(pending, memory.Message{Role: provider.MessageRoleSystem, Text: line})
			tail = append(tail, provider.System(line))
		}
	}

	c.history.Append(pending...)

	reply.Text = strings.Join(texts, "\n\n")
	reply.State = c.machine.Current()
	reply.Usage = tokens.total()
	reply.Calls = tokens.calls

	c.logger.Info("turn complete",
		"session", c.id,
		"state", reply.State,
		"calls", reply.Calls,
		"rounds", reply.Rounds,
		"tokens", reply.Usage.TotalTokens,
	)
	return reply, nil
}

// request composes the prompt for the current memory and trims history to
// fit. It returns the number of history messages left out.
func (c *Conversation) request(cfg resolved, tools []provider.ToolDefinition, tail []provider.LLMMessage) (provider.CompletionRequest, int) {
	head := []provider.LLMMessage{provider.System(systemPrompt(cfg.DomainPrompt, len(tools) > 0))}
	if block := memoryBlock(c.mem.Snapshot(), c.machine.Current(), cfg.MemoryValueLimit); block != "" {
		head = append(head, provider.System(block))
	}

	trimmed := c.budgeter.Trim(ctxengine.TrimRequest{
		Model:   c.modelName(cfg),
		Head:    head,
		History: c.history.LLMMessages(),
		Tail:    tail,
	})
	if trimmed.Dropped > 0 {
		c.logger.Debug("history trimmed",
			"session", c.id,
			"dropped", trimmed.Dropped,
			"used", trimmed.Budget.Used(),
			"window", trimmed.Budget.WindowSize,
		)
	}

	return provider.CompletionRequest{
		Model:       cfg.Model,
		Messages:    trimmed.Messages,
		Tools:       tools,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
	}, trimmed.Dropped
}

func (c *Conversation) modelName(cfg resolved) string {
	if cfg.Model != "" {
		return cfg.Model
	}
	return c.provider.ModelName()
}

// complete makes one non-streamed call.
func (c *Conversation) complete(ctx context.Context, req provider.CompletionRequest, phase Phase, round int) (provider.CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = c.provider.ModelName()
	}
	ctx, span := c.tracer.Start(ctx, "llm.complete",
		trace.WithAttributes(
			attribute.String("llm.model", model),
			attribute.String("llm.phase", string(phase)),
			attribute.Int("llm.round", round),
			attribute.Int("llm.messages", len(req.Messages)),
		),
	)
	defer span.End()

	start := time.Now()
	resp, err := c.provider.Complete(ctx, req)
	c.observer.ObserveLLMCall(model, phase, time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return provider.CompletionResponse{}, newCallError(ctx, phase, round, err)
	}
	c.observer.ObserveTokens(model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	span.SetAttributes(attribute.Int("llm.tokens", resp.Usage.TotalTokens))
	return resp, nil
}

// stream makes the second call of a round as a stream, forwarding text
// fragments to emit with directives held back.
func (c *Conversation) stream(ctx context.Context, req provider.CompletionRequest, round int, emit func(Event)) (provider.CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = c.provider.ModelName()
	}
	ctx, span := c.tracer.Start(ctx, "llm.stream",
		trace.WithAttributes(
			attribute.String("llm.model", model),
			attribute.String("llm.phase", string(PhaseSecond)),
			attribute.Int("llm.round", round),
		),
	)
	defer span.End()

	start := time.Now()
	fail := func(err error) (provider.CompletionResponse, error) {
		c.observer.ObserveLLMCall(model, PhaseSecond, time.Since(start), err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return provider.CompletionResponse{}, newCallError(ctx, PhaseSecond, round, err)
	}

	chunks, err := c.provider.Stream(ctx, req)
	if err != nil {
		return fail(err)
	}

	var (
		resp   provider.CompletionResponse
		text   strings.Builder
		filter directive.StreamFilter
	)
	for chunk := range chunks {
		if chunk.Err != nil {
			// Drain so the producer can exit.
			for range chunks {
			}
			return fail(chunk.Err)
		}
		if chunk.Content != "" {
			text.WriteString(chunk.Content)
			if visible := filter.Write(chunk.Content); visible != "" {
				emit(Event{Type: EventText, Text: visible})
			}
		}
		resp.ToolCalls = append(resp.ToolCalls, chunk.ToolCalls...)
		if chunk.FinishReason != "" {
			resp.FinishReason = chunk.FinishReason
		}
		if chunk.Usage != nil {
			resp.Usage.Add(*chunk.Usage)
		}
	}
	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	if rest := filter.Flush(); rest != "" {
		emit(Event{Type: EventText, Text: rest})
	}

	c.observer.ObserveLLMCall(model, PhaseSecond, time.Since(start), nil)
	c.observer.ObserveTokens(model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	resp.Content = text.String()
	return resp, nil
}

// fold copies successful function results into memory: a fetched page
// becomes url and html, a parser test becomes parsing_result.
func (c *Conversation) fold(name string, result json.RawMessage) {
	var decoded map[string]any
	if err := json.Unmarshal(result, &decoded); err != nil {
		return
	}
	if _, failed := decoded["error"]; failed {
		return
	}

	switch name {
	case builtin.NameFetchWebpage:
		url, _ := decoded["url"].(string)
		page, ok := c.pages.Lookup(url)
		if !ok {
			page, ok = c.pages.Latest()
		}
		if !ok {
			return
		}
		c.mem.Set(map[string]any{
			memory.KeyURL:  page.URL,
			memory.KeyHTML: page.HTML,
		})
	case builtin.NameParseWithParser:
		c.mem.Set(map[string]any{memory.KeyParsingResult: decoded})
	}
}
