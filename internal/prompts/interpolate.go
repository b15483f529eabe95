package prompts

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/evantahler/botholomew-sub001/pkg/schema"
)

// Scope holds the data available to ${{...}} expressions in prompts.
type Scope struct {
	Input    any            // step input (previous step's output, or run input)
	Workflow map[string]any // workflow metadata (id, name, description)
	Run      map[string]any // run metadata (id, input, current_step)
	Step     map[string]any // step metadata (id, position)
}

func (s *Scope) env() map[string]any {
	if s == nil {
		return map[string]any{}
	}
	return map[string]any{
		"input":    s.Input,
		"workflow": s.Workflow,
		"run":      s.Run,
		"step":     s.Step,
	}
}

// Interpolator resolves ${{...}} expressions inside prompt text.
// Thread-safe: compiled programs are cached and reused across goroutines.
type Interpolator struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
}

// NewInterpolator creates a new Interpolator.
func NewInterpolator() *Interpolator {
	return &Interpolator{cache: make(map[string]*vm.Program)}
}

// Resolve scans prompt text for ${{...}} tokens and replaces each with the
// evaluated expression result. Expressions see input, workflow, run, and step
// as top-level variables. Text with no tokens passes through unchanged.
func (interp *Interpolator) Resolve(text string, scope *Scope) (string, error) {
	if !strings.Contains(text, "${{") {
		return text, nil
	}

	env := scope.env()

	var result strings.Builder
	result.Grow(len(text))

	i := 0
	for i < len(text) {
		idx := strings.Index(text[i:], "${{")
		if idx == -1 {
			result.WriteString(text[i:])
			break
		}

		result.WriteString(text[i : i+idx])
		start := i + idx + 3 // skip "${{"

		end := strings.Index(text[start:], "}}")
		if end == -1 {
			return "", schema.NewError(schema.KindStepExecution, "unclosed ${{ expression in prompt")
		}
		end += start

		expression := strings.TrimSpace(text[start:end])
		if expression == "" {
			return "", schema.NewError(schema.KindStepExecution, "empty ${{ }} expression in prompt")
		}
		if strings.Contains(expression, "${{") {
			return "", schema.NewError(schema.KindStepExecution, "nested ${{ expressions are not allowed")
		}

		val, err := interp.evaluate(expression, env)
		if err != nil {
			return "", err
		}
		result.WriteString(stringify(val))

		i = end + 2 // skip "}}"
	}

	return result.String(), nil
}

func (interp *Interpolator) evaluate(expression string, env map[string]any) (any, error) {
	prg, err := interp.getOrCompile(expression, env)
	if err != nil {
		return nil, err
	}

	out, err := vm.Run(prg, env)
	if err != nil {
		return nil, schema.NewErrorf(schema.KindStepExecution,
			"prompt expression %q failed: %s", expression, err.Error()).WithCause(err)
	}
	return out, nil
}

// getOrCompile returns a cached compiled program or compiles and caches a new one.
func (interp *Interpolator) getOrCompile(expression string, env map[string]any) (*vm.Program, error) {
	interp.mu.RLock()
	if prg, ok := interp.cache[expression]; ok {
		interp.mu.RUnlock()
		return prg, nil
	}
	interp.mu.RUnlock()

	interp.mu.Lock()
	defer interp.mu.Unlock()

	// Double-check after acquiring write lock.
	if prg, ok := interp.cache[expression]; ok {
		return prg, nil
	}

	prg, err := expr.Compile(expression,
		expr.Env(env),
		expr.AllowUndefinedVariables(),
	)
	if err != nil {
		return nil, schema.NewErrorf(schema.KindStepExecution,
			"prompt expression %q does not compile: %s", expression, err.Error()).WithCause(err)
	}

	interp.cache[expression] = prg
	return prg, nil
}

// stringify renders a resolved value for embedding in prompt text.
func stringify(val any) string {
	switch v := val.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		if v {
			return "true"
		}
		return "false"
	case map[string]any, []any:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	default:
		return fmt.Sprintf("%v", v)
	}
}
