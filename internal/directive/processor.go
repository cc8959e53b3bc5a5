package directive

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/flemzord/parserdesk/internal/memory"
	"github.com/flemzord/parserdesk/internal/workflow"
)

// Replacement texts.
const (
	ValidationPassed  = "Memory validation passed"
	ValidationSkipped = "Memory validation skipped: invalid key list"
	missingPrefix     = "Missing required memory: "
)

// allKeys is the mem_get payload that resolves to the whole memory.
const allKeys = "all"

// Processor applies directives to one session's memory and state machine.
type Processor struct {
	mem     *memory.Store
	machine *workflow.Machine
	logger  *slog.Logger
}

// Option configures a Processor.
type Option func(*Processor)

// WithLogger sets the logger for malformed directives.
func WithLogger(l *slog.Logger) Option {
	return func(p *Processor) { p.logger = l }
}

// NewProcessor binds a processor to a session.
func NewProcessor(mem *memory.Store, machine *workflow.Machine, opts ...Option) *Processor {
	p := &Processor{mem: mem, machine: machine}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.New(slog.DiscardHandler)
	}
	return p
}

// Result is the outcome of Process.
type Result struct {
	Text   string
	SawAny bool
}

// Process applies every directive in raw and returns the visible text.
// Directives are applied by kind in a fixed priority: all mem_set tags in
// document order, then mem_get, then mem_validate, then state. <mem>
// blocks are removed last. Processing cleaned output again never finds a
// directive.
func (p *Processor) Process(raw string) Result {
	toks := Lex(raw)
	out := make([]string, len(toks))
	for i, t := range toks {
		out[i] = t.Raw
	}
	saw := false

	// 1. mem_set; the first malformed payload stops the pass and the
	// remaining mem_set tags are kept, neutralised.
	broken := false
	for i, t := range toks {
		if t.Kind != MemSet {
			continue
		}
		if broken {
			out[i] = neutralize(t.Raw)
			continue
		}
		values, err := decodeObject(t.Payload)
		if err != nil {
			broken = true
			out[i] = neutralize(t.Raw)
			p.logger.LogAttrs(context.Background(), slog.LevelWarn, "malformed mem_set payload",
				slog.String("payload", truncate(t.Payload, 200)), slog.Any("error", err))
			continue
		}
		p.mem.Set(values)
		out[i] = ""
		saw = true
	}

	// 2. mem_get
	for i, t := range toks {
		if t.Kind == MemGet {
			out[i] = p.renderGet(t.Payload)
			saw = true
		}
	}

	// 3. mem_validate
	for i, t := range toks {
		if t.Kind == MemValidate {
			out[i] = p.validate(t.Payload)
			saw = true
		}
	}

	// 4. state
	for i, t := range toks {
		if t.Kind != StateTag {
			continue
		}
		name := strings.TrimSpace(t.Payload)
		if target := workflow.State(name); target != p.machine.Current() {
			p.machine.Transition(target)
		}
		out[i] = "[State: " + neutralize(name) + "]"
		saw = true
	}

	// 5. strip <mem> blocks
	inBlock := false
	for i, t := range toks {
		switch {
		case t.Kind == MemOpen:
			inBlock = true
			out[i] = ""
		case t.Kind == MemClose:
			inBlock = false
			out[i] = ""
		case inBlock:
			out[i] = ""
		}
	}

	return Result{Text: seal(tidy(strings.Join(out, ""))), SawAny: saw}
}

// seal neutralises tags formed by joining the rendered pieces, e.g. text
// "<mem_" followed by a removed directive and "set>...". Escaping only
// removes angle brackets, so the loop settles quickly.
func seal(s string) string {
	for range 8 {
		toks := Lex(s)
		dirty := false
		for i := range toks {
			if toks[i].Kind != Text {
				toks[i].Raw = neutralize(toks[i].Raw)
				dirty = true
			}
		}
		if !dirty {
			return s
		}
		var b strings.Builder
		for _, t := range toks {
			b.WriteString(t.Raw)
		}
		s = b.String()
	}
	return neutralize(s)
}

func decodeObject(payload string) (map[string]any, error) {
	var values map[string]any
	dec := json.NewDecoder(strings.NewReader(payload))
	if err := dec.Decode(&values); err != nil {
		return nil, err
	}
	if values == nil {
		return nil, fmt.Errorf("payload is not a JSON object")
	}
	if dec.More() {
		return nil, fmt.Errorf("trailing data after JSON object")
	}
	return values, nil
}

// parseKeys reads a key list. A JSON array of strings is a list; any other
// trimmed payload is one key. ok is false for arrays that do not decode.
func parseKeys(payload string) (keys []string, ok bool) {
	s := strings.TrimSpace(payload)
	if !strings.HasPrefix(s, "[") {
		return []string{s}, true
	}
	if err := json.Unmarshal([]byte(s), &keys); err != nil {
		return nil, false
	}
	return keys, true
}

func (p *Processor) renderGet(payload string) string {
	var values map[string]any
	keys, ok := parseKeys(payload)
	switch {
	case !ok:
		// Not a key list; treat the whole payload as one key.
		values = p.mem.Get(strings.TrimSpace(payload))
	case len(keys) == 1 && keys[0] == allKeys:
		values = p.mem.Snapshot()
	default:
		values = p.mem.Get(keys...)
	}
	// json.Marshal escapes <, > and & so rendered values cannot reintroduce
	// directive tags.
	data, err := json.Marshal(values)
	if err != nil || len(values) == 0 {
		return "{}"
	}
	return string(data)
}

func (p *Processor) validate(payload string) string {
	keys, ok := parseKeys(payload)
	if !ok {
		p.logger.Warn("malformed mem_validate payload", "payload", truncate(payload, 200))
		return ValidationSkipped
	}
	missing := p.mem.Missing(keys...)
	if len(missing) == 0 {
		return ValidationPassed
	}
	return neutralize(missingPrefix + memory.FormatKeys(missing))
}

var blankRuns = regexp.MustCompile(`\n{3,}`)

func tidy(s string) string {
	return strings.TrimSpace(blankRuns.ReplaceAllString(s, "\n\n"))
}

var angle = strings.NewReplacer("<", "&lt;", ">", "&gt;")

// neutralize escapes angle brackets so the text can never lex as a tag.
func neutralize(s string) string { return angle.Replace(s) }

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
