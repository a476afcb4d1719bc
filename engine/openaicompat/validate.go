package openaicompat

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/tillerhq/tiller"
)

// schemaCache compiles tool input schemas once per engine and validates
// model-produced arguments against them before dispatch. Tools without a
// schema (or with one that does not compile) pass through unvalidated.
type schemaCache struct {
	mu       sync.Mutex
	compiled map[string]*jsonschema.Schema
	broken   map[string]bool
}

func newSchemaCache() *schemaCache {
	return &schemaCache{
		compiled: make(map[string]*jsonschema.Schema),
		broken:   make(map[string]bool),
	}
}

// Validate checks args against the tool's input schema. A nil return means
// dispatch may proceed.
func (c *schemaCache) Validate(def tiller.ToolDefinition, args json.RawMessage) error {
	if len(def.InputSchema) == 0 {
		return nil
	}
	sch := c.schemaFor(def)
	if sch == nil {
		return nil
	}

	var value any
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	if err := json.Unmarshal(args, &value); err != nil {
		return fmt.Errorf("arguments are not valid JSON: %w", err)
	}
	if err := sch.Validate(value); err != nil {
		return fmt.Errorf("arguments do not match the %s schema: %w", def.Name, err)
	}
	return nil
}

func (c *schemaCache) schemaFor(def tiller.ToolDefinition) *jsonschema.Schema {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sch, ok := c.compiled[def.Name]; ok {
		return sch
	}
	if c.broken[def.Name] {
		return nil
	}
	compiler := jsonschema.NewCompiler()
	url := def.Name + ".schema.json"
	if err := compiler.AddResource(url, bytes.NewReader(def.InputSchema)); err != nil {
		c.broken[def.Name] = true
		return nil
	}
	sch, err := compiler.Compile(url)
	if err != nil {
		c.broken[def.Name] = true
		return nil
	}
	c.compiled[def.Name] = sch
	return sch
}
