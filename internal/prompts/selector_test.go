package prompts

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evantahler/botholomew-sub001/pkg/schema"
)

func TestSelectorApply(t *testing.T) {
	s := NewSelector()
	ctx := context.Background()

	doc := map[string]any{
		"items": []any{
			map[string]any{"name": "first", "score": 1.0},
			map[string]any{"name": "second", "score": 2.0},
		},
		"total": 2.0,
	}

	t.Run("empty expression passes through", func(t *testing.T) {
		got, err := s.Apply(ctx, "", doc)
		require.NoError(t, err)
		assert.Equal(t, doc, got)
	})

	t.Run("single field", func(t *testing.T) {
		got, err := s.Apply(ctx, ".total", doc)
		require.NoError(t, err)
		assert.Equal(t, 2.0, got)
	})

	t.Run("nested path", func(t *testing.T) {
		got, err := s.Apply(ctx, ".items[0].name", doc)
		require.NoError(t, err)
		assert.Equal(t, "first", got)
	})

	t.Run("multiple outputs collect into a slice", func(t *testing.T) {
		got, err := s.Apply(ctx, ".items[].name", doc)
		require.NoError(t, err)
		assert.Equal(t, []any{"first", "second"}, got)
	})

	t.Run("missing field yields nil", func(t *testing.T) {
		got, err := s.Apply(ctx, ".absent", doc)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("transformation", func(t *testing.T) {
		got, err := s.Apply(ctx, "[.items[].score] | add", doc)
		require.NoError(t, err)
		assert.Equal(t, 3.0, got)
	})
}

func TestSelectorApply_Errors(t *testing.T) {
	s := NewSelector()
	ctx := context.Background()

	t.Run("parse error", func(t *testing.T) {
		_, err := s.Apply(ctx, ".[broken", map[string]any{})
		require.Error(t, err)
		assert.True(t, schema.IsKind(err, schema.KindStepExecution))
	})

	t.Run("runtime error", func(t *testing.T) {
		_, err := s.Apply(ctx, ".foo", "not an object")
		require.Error(t, err)
		assert.True(t, schema.IsKind(err, schema.KindStepExecution))
	})

	t.Run("env access is sandboxed", func(t *testing.T) {
		got, err := s.Apply(ctx, "$ENV | length", map[string]any{})
		require.NoError(t, err)
		assert.Equal(t, 0, got)
	})
}
