package action

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/evantahler/botholomew-sub001/pkg/schema"
)

// Validator validates action params against each action's JSON Schema.
// Compiled schemas are cached per action; safe for concurrent use.
type Validator struct {
	mu       sync.RWMutex
	cache    map[string]*jsonschema.Schema
	sequence int
}

// NewValidator creates an empty Validator.
func NewValidator() *Validator {
	return &Validator{cache: make(map[string]*jsonschema.Schema)}
}

// Validate checks params against the action's input schema. A nil schema
// means the action takes no params and anything passes. Violations come back
// as param_validation errors carrying the offending key and value.
func (v *Validator) Validate(a Action, params Input) error {
	raw := a.InputSchema()
	if len(raw) == 0 {
		return nil
	}

	compiled, err := v.getOrCompile(raw)
	if err != nil {
		return schema.NewErrorf(schema.KindServerError, "action %q has an invalid input schema", a.Name()).WithCause(err)
	}

	if params == nil {
		params = Input{}
	}
	doc, err := toJSONValue(map[string]any(params))
	if err != nil {
		return schema.NewError(schema.KindParamValidation, "params are not JSON-serializable").WithCause(err)
	}

	if err := compiled.Validate(doc); err != nil {
		return toParamError(err, params)
	}
	return nil
}

// getOrCompile returns a cached compiled schema or compiles and caches a new one.
func (v *Validator) getOrCompile(raw json.RawMessage) (*jsonschema.Schema, error) {
	key := string(raw)

	v.mu.RLock()
	if cached, ok := v.cache[key]; ok {
		v.mu.RUnlock()
		return cached, nil
	}
	v.mu.RUnlock()

	v.mu.Lock()
	defer v.mu.Unlock()

	// Double-check after acquiring write lock.
	if cached, ok := v.cache[key]; ok {
		return cached, nil
	}

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(key))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}

	// Each schema gets a unique URL to avoid collisions in the compiler.
	v.sequence++
	url := fmt.Sprintf("botholomew://action-schema/%d", v.sequence)

	c := jsonschema.NewCompiler()
	c.AssertFormat()
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}

	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	v.cache[key] = compiled
	return compiled, nil
}

// toJSONValue round-trips a Go value through JSON encoding/decoding so that
// numeric values become json.Number (required by the jsonschema library).
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(strings.NewReader(string(b)))
}

// toParamError converts a jsonschema.ValidationError into a param_validation
// error carrying the first violated key and its submitted value.
func toParamError(err error, params Input) *schema.Error {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewError(schema.KindParamValidation, err.Error())
	}

	leaves := collectLeaves(verr)
	if len(leaves) == 0 {
		return schema.NewError(schema.KindParamValidation, verr.Error())
	}

	first := leaves[0]
	out := schema.NewError(schema.KindParamValidation, first.message)
	if first.key != "" {
		out = out.WithKey(first.key, params[first.key])
	}
	return out
}

type violation struct {
	key     string
	message string
}

// collectLeaves walks a ValidationError tree and collects leaf violations
// with the top-level param name each one points at.
func collectLeaves(verr *jsonschema.ValidationError) []violation {
	if len(verr.Causes) == 0 {
		var key string
		if len(verr.InstanceLocation) > 0 {
			key = verr.InstanceLocation[0]
		}
		loc := "/" + strings.Join(verr.InstanceLocation, "/")
		return []violation{{key: key, message: fmt.Sprintf("%s: %s", loc, verr.Error())}}
	}

	var out []violation
	for _, cause := range verr.Causes {
		out = append(out, collectLeaves(cause)...)
	}
	return out
}
