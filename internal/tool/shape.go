package tool

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const argsResource = "arguments.json"

// compiled caches schemas by their JSON encoding.
var compiled sync.Map // string -> *jsonschema.Schema

// CheckArgs decodes raw and validates it against p. Empty input is treated
// as an empty object.
func CheckArgs(p Param, raw json.RawMessage) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		raw = json.RawMessage(`{}`)
	}

	sch, err := compile(p)
	if err != nil {
		return err
	}
	v, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidArguments, err)
	}
	if err := sch.Validate(v); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidArguments, summarize(err))
	}
	return nil
}

// summarize drops the schema header line of a validation error and joins
// the per-location causes onto one line.
func summarize(err error) string {
	lines := strings.Split(err.Error(), "\n")
	if len(lines) > 1 {
		lines = lines[1:]
	}
	causes := make([]string, 0, len(lines))
	for _, l := range lines {
		if l = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(l), "- ")); l != "" {
			causes = append(causes, l)
		}
	}
	return strings.Join(causes, "; ")
}

func compile(p Param) (*jsonschema.Schema, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode parameters: %w", err)
	}
	key := string(data)
	if sch, ok := compiled.Load(key); ok {
		return sch.(*jsonschema.Schema), nil
	}

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode parameters: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(argsResource, doc); err != nil {
		return nil, fmt.Errorf("load parameters: %w", err)
	}
	sch, err := c.Compile(argsResource)
	if err != nil {
		return nil, fmt.Errorf("compile parameters: %w", err)
	}
	compiled.Store(key, sch)
	return sch, nil
}
