package prompts

import (
	"context"
	"sync"

	"github.com/itchyny/gojq"

	"github.com/evantahler/botholomew-sub001/pkg/schema"
)

// Selector applies jq expressions to step outputs, so a step can hand the
// next step a slice of its result instead of the whole payload.
// Thread-safe: compiled *gojq.Code objects are cached and reused.
type Selector struct {
	mu    sync.RWMutex
	cache map[string]*gojq.Code
}

// NewSelector creates a new Selector.
func NewSelector() *Selector {
	return &Selector{cache: make(map[string]*gojq.Code)}
}

// Apply runs the jq expression against the value. An empty expression passes
// the value through untouched. When jq yields multiple outputs they are
// collected into a slice.
func (s *Selector) Apply(ctx context.Context, expression string, value any) (any, error) {
	if expression == "" {
		return value, nil
	}

	code, err := s.getOrCompile(expression)
	if err != nil {
		return nil, err
	}

	iter := code.RunWithContext(ctx, value)

	var results []any
	for {
		val, ok := iter.Next()
		if !ok {
			break
		}
		if jqErr, isErr := val.(error); isErr {
			return nil, schema.NewErrorf(schema.KindStepExecution,
				"output selector %q failed: %s", expression, jqErr.Error()).WithCause(jqErr)
		}
		results = append(results, val)
	}

	switch len(results) {
	case 0:
		return nil, nil
	case 1:
		return results[0], nil
	default:
		return results, nil
	}
}

// getOrCompile returns a cached compiled code or compiles and caches a new one.
func (s *Selector) getOrCompile(expression string) (*gojq.Code, error) {
	s.mu.RLock()
	if code, ok := s.cache[expression]; ok {
		s.mu.RUnlock()
		return code, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	// Double-check after acquiring write lock.
	if code, ok := s.cache[expression]; ok {
		return code, nil
	}

	query, err := gojq.Parse(expression)
	if err != nil {
		return nil, schema.NewErrorf(schema.KindStepExecution,
			"output selector %q does not parse: %s", expression, err.Error()).WithCause(err)
	}

	code, err := gojq.Compile(query,
		// Sandbox: return empty env to block $ENV and env access.
		gojq.WithEnvironLoader(func() []string { return nil }),
	)
	if err != nil {
		return nil, schema.NewErrorf(schema.KindStepExecution,
			"output selector %q does not compile: %s", expression, err.Error()).WithCause(err)
	}

	s.cache[expression] = code
	return code, nil
}
