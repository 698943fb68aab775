package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"z-novel-context/internal/domain/entity"
	apperrors "z-novel-context/pkg/errors"
)

func TestDefaultRegistry(t *testing.T) {
	r, err := NewDefaultRegistry()
	require.NoError(t, err)

	assert.Equal(t, []string{"scene_analysis", "character_development", "plot_progression", SequentialTemplate}, r.Names())

	tpl, err := r.Template("scene_analysis")
	require.NoError(t, err)
	assert.Equal(t, []entity.ContextCategory{entity.CategoryCharacter, entity.CategorySetting}, tpl.RequiredContext)
	assert.Contains(t, tpl.BaseStructure, "{focus}")

	pack, err := DefaultPack()
	require.NoError(t, err)
	require.NotEmpty(t, pack.GlobalConstraints)
	assert.Equal(t, entity.ScopeGlobal, pack.GlobalConstraints[0].Scope)
	assert.Contains(t, pack.Render.User, "{objectives}")
}

func TestRegistry_RegisterIsAddOnly(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(entity.PromptTemplate{Name: "a", BaseStructure: "first"}))

	err := r.Register(entity.PromptTemplate{Name: "a", BaseStructure: "second"})
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	tpl, err := r.Template("a")
	require.NoError(t, err)
	assert.Equal(t, "first", tpl.BaseStructure)

	assert.ErrorIs(t, r.Register(entity.PromptTemplate{Name: "  "}), apperrors.ErrInvalidParam)
}

func TestRegistry_TemplateNotFound(t *testing.T) {
	_, err := NewRegistry().Template("missing")
	assert.ErrorIs(t, err, apperrors.ErrTemplateNotFound)
}

func TestRegistry_ReturnedTemplateIsACopy(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(entity.PromptTemplate{Name: "a", ConstraintTypes: []string{"style"}}))

	tpl, _ := r.Template("a")
	tpl.ConstraintTypes[0] = "plot"

	again, _ := r.Template("a")
	assert.Equal(t, []string{"style"}, again.ConstraintTypes)
}

func TestRegistry_LoadTemplates(t *testing.T) {
	const pack = `
templates:
  - name: dialogue_review
    purpose: Review dialogue
    base_structure: Review the dialogue in {focus}.
    required_context: [character]
    constraint_types: [style]
global_constraints:
  - type: style
    rule: Keep dialogue terse
`
	r := NewRegistry()
	globals, err := r.LoadTemplates(strings.NewReader(pack))
	require.NoError(t, err)
	assert.Equal(t, []string{"dialogue_review"}, r.Names())
	require.Len(t, globals, 1)
	assert.Equal(t, "Keep dialogue terse", globals[0].Rule)
	assert.Equal(t, entity.ScopeGlobal, globals[0].Scope)

	t.Run("conflicting pack registers nothing", func(t *testing.T) {
		const conflicting = `
templates:
  - name: fresh
    base_structure: x
  - name: dialogue_review
    base_structure: y
`
		_, err := r.LoadTemplates(strings.NewReader(conflicting))
		assert.ErrorIs(t, err, apperrors.ErrConflict)
		assert.Equal(t, []string{"dialogue_review"}, r.Names())
	})

	t.Run("unknown fields are rejected", func(t *testing.T) {
		_, err := r.LoadTemplates(strings.NewReader("templates:\n  - name: z\n    colour: red\n"))
		assert.ErrorIs(t, err, apperrors.ErrInvalidParam)
	})

	t.Run("unnamed template is rejected", func(t *testing.T) {
		_, err := r.LoadTemplates(strings.NewReader("templates:\n  - purpose: nothing\n"))
		assert.ErrorIs(t, err, apperrors.ErrInvalidParam)
	})
}
