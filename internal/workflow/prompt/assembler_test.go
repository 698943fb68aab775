package prompt

import (
	"context"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"z-novel-context/internal/domain/entity"
	apperrors "z-novel-context/pkg/errors"
)

func newTestAssembler(t *testing.T, globals ...entity.PromptConstraint) *Assembler {
	t.Helper()
	a := NewAssembler(NewRegistry(), globals...)
	require.NoError(t, a.AddTemplate("test", entity.PromptTemplate{
		Purpose:         "unit test",
		BaseStructure:   "Analyze {focus}",
		RequiredContext: []entity.ContextCategory{entity.CategoryCharacter},
		OptionalContext: []entity.ContextCategory{entity.CategoryTheme},
		ConstraintTypes: []string{entity.ConstraintContinuity, entity.ConstraintStyle, "pacing"},
	}))
	return a
}

func el(id string, typ entity.ElementType, relevance float64) entity.ContextElement {
	return entity.ContextElement{ID: id, Type: typ, Content: id, Relevance: relevance}
}

func ids(els []entity.ContextElement) []string {
	out := make([]string, 0, len(els))
	for _, e := range els {
		out = append(out, e.ID)
	}
	return out
}

func TestCreatePrompt_UnknownTemplate(t *testing.T) {
	a := newTestAssembler(t)
	p, err := a.CreatePrompt(context.Background(), "nope", entity.Focus{ID: "f"}, entity.ContextWindow{}, nil)
	assert.Nil(t, p)
	assert.ErrorIs(t, err, apperrors.ErrTemplateNotFound)
}

func TestCreatePrompt_ContextSelection(t *testing.T) {
	a := newTestAssembler(t)
	window := entity.ContextWindow{
		Before: []entity.ContextElement{
			el("low-character", entity.ElementCharacter, 0.1),
			el("theme-at-threshold", entity.ElementSymbol, 0.7),
			el("setting", entity.ElementLocation, 0.9),
		},
		After: []entity.ContextElement{
			el("dialogue", entity.ElementDialogue, 0.2),
			el("theme-above", entity.ElementMotif, 0.71),
		},
	}

	p, err := a.CreatePrompt(context.Background(), "test", entity.Focus{ID: "f"}, window, nil)
	require.NoError(t, err)

	// 必需类别不看相关度，可选类别要求严格大于 0.7，未列出的类别不纳入
	assert.Equal(t, []string{"low-character", "dialogue", "theme-above"}, ids(p.ContextualElements))
	assert.Equal(t, entity.TimeframePast, p.ContextualElements[0].Timeframe)
	assert.Equal(t, entity.TimeframeFuture, p.ContextualElements[1].Timeframe)
	assert.Equal(t, "Analyze {focus}", p.BasePrompt)
	assert.Equal(t, "test", p.Template)

	// 输入窗口不被修改
	assert.Empty(t, window.Before[0].Timeframe)
}

func TestCreatePrompt_ContextHistory(t *testing.T) {
	a := newTestAssembler(t)
	a.UpdateContextHistory("scene-1", []entity.ContextElement{
		el("h-weak", entity.ElementCharacter, 0.5),
		el("h-strong", entity.ElementCharacter, 0.51),
		el("h-theme", entity.ElementTheme, 0.6),
		el("h-theme-strong", entity.ElementTheme, 0.8),
	})
	a.UpdateContextHistory("scene-2", []entity.ContextElement{el("other", entity.ElementCharacter, 1)})

	p, err := a.CreatePrompt(context.Background(), "test", entity.Focus{ID: "scene-1"}, entity.ContextWindow{}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"h-strong", "h-theme-strong"}, ids(p.ContextualElements))
	for _, e := range p.ContextualElements {
		assert.Equal(t, entity.TimeframeHistorical, e.Timeframe)
	}

	t.Run("same id replaces the earlier observation", func(t *testing.T) {
		a.UpdateContextHistory("scene-1", []entity.ContextElement{el("h-strong", entity.ElementCharacter, 0.2)})
		hist := a.ContextHistory("scene-1")
		require.Len(t, hist, 4)
		assert.InDelta(t, 0.2, hist[1].Relevance, 1e-9)
	})
}

func TestCreatePrompt_ConstraintsAndObjectives(t *testing.T) {
	a := newTestAssembler(t,
		entity.PromptConstraint{Type: entity.ConstraintContinuity, Rule: "No resurrections"},
		entity.PromptConstraint{Type: entity.ConstraintPlot, Rule: "Keep the heist secret"},
	)
	local := []entity.PromptConstraint{
		{Type: entity.ConstraintStyle, Rule: "Short sentences"},
		{Type: entity.ConstraintCharacter, Rule: "No resurrections", Explanation: "local wins"},
		{Type: "pacing", Rule: "Slow reveal"},
	}
	focus := entity.Focus{ID: "f", CriticalElements: []string{"Alice", "the ring"}}

	p, err := a.CreatePrompt(context.Background(), "test", focus, entity.ContextWindow{}, local)
	require.NoError(t, err)

	rules := make([]string, 0, len(p.Constraints))
	for _, c := range p.Constraints {
		rules = append(rules, c.Rule)
	}
	assert.Equal(t, []string{"Short sentences", "No resurrections", "Slow reveal", "Keep the heist secret"}, rules)
	assert.Equal(t, "local wins", p.Constraints[1].Explanation)
	assert.Equal(t, entity.ScopeLocal, p.Constraints[0].Scope)
	assert.Equal(t, entity.ScopeGlobal, p.Constraints[3].Scope)

	assert.Equal(t, []string{
		"Maintain consistency with Alice, the ring",
		"Follow the style guideline: Short sentences",
		"Respect the pacing constraint: Slow reveal",
	}, p.Objectives)

	// 全局约束不被 CreatePrompt 修改
	assert.Len(t, a.GlobalConstraints(), 2)
}

func TestCreatePrompt_EmptyCriticalElements(t *testing.T) {
	a := newTestAssembler(t)
	p, err := a.CreatePrompt(context.Background(), "test", entity.Focus{ID: "f"}, entity.ContextWindow{}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Maintain consistency with the established narrative"}, p.Objectives)
	assert.Empty(t, p.Constraints)
	assert.Empty(t, p.ContextualElements)
}

func TestAddGlobalConstraint(t *testing.T) {
	a := NewAssembler(nil)
	assert.True(t, a.AddGlobalConstraint(entity.PromptConstraint{Type: "style", Rule: "r1"}))
	assert.False(t, a.AddGlobalConstraint(entity.PromptConstraint{Type: "plot", Rule: "r1"}))
	assert.True(t, a.AddGlobalConstraint(entity.PromptConstraint{Type: "plot", Rule: "r2"}))

	got := a.GlobalConstraints()
	require.Len(t, got, 2)
	assert.Equal(t, "style", got[0].Type)
	assert.Equal(t, entity.ScopeGlobal, got[1].Scope)
}

func TestAddTemplate_CannotOverwrite(t *testing.T) {
	a := newTestAssembler(t)
	err := a.AddTemplate("test", entity.PromptTemplate{BaseStructure: "other"})
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestIntegrateChunkAnalysis(t *testing.T) {
	a := NewAssembler(nil)
	analysis := &entity.ChunkAnalysis{
		ContextualElements: []entity.ContextualElement{
			{Type: entity.ElementCharacter, Content: "Alice", Importance: 0.8, FirstMention: 0, LastMention: 40},
			{Type: entity.ElementLocation, Content: "London", Importance: 0.5, FirstMention: 10, LastMention: 10},
			{Type: entity.ElementEvent, Content: "dropped", Importance: 0.9, FirstMention: 1, LastMention: 2},
			{Type: entity.ElementPlot, Content: "the promise", Importance: 0.65, FirstMention: 20, LastMention: 20},
			{Type: entity.ElementSymbol, Content: "ring", Importance: 0.5, FirstMention: 5, LastMention: 30},
		},
	}

	w := a.IntegrateChunkAnalysis(analysis)
	require.Len(t, w.Before, 2)
	require.Len(t, w.After, 2)

	assert.Equal(t, "Alice", w.Before[0].Content)
	assert.Equal(t, entity.RelationCallback, w.Before[0].Relation)
	assert.InDelta(t, 0.8, w.Before[0].Relevance, 1e-9)
	assert.Equal(t, entity.RelationDevelopment, w.Before[1].Relation)

	assert.Equal(t, "the promise", w.After[0].Content)
	assert.Equal(t, entity.RelationDevelopment, w.After[0].Relation)
	assert.Equal(t, entity.RelationSetup, w.After[1].Relation)

	seen := map[string]bool{}
	for _, e := range append(w.Before, w.After...) {
		assert.NotEmpty(t, e.ID)
		assert.False(t, seen[e.ID])
		seen[e.ID] = true
	}

	t.Run("single element is dropped", func(t *testing.T) {
		w := a.IntegrateChunkAnalysis(&entity.ChunkAnalysis{
			ContextualElements: analysis.ContextualElements[:1],
		})
		assert.Empty(t, w.Before)
		assert.Empty(t, w.After)
	})

	t.Run("nil analysis", func(t *testing.T) {
		w := a.IntegrateChunkAnalysis(nil)
		assert.Empty(t, w.Before)
		assert.Empty(t, w.After)
	})
}

func TestMergeWindows(t *testing.T) {
	w := MergeWindows(
		entity.ContextWindow{Before: []entity.ContextElement{el("a", entity.ElementTheme, 1)}},
		entity.ContextWindow{
			Before: []entity.ContextElement{el("b", entity.ElementTheme, 1)},
			After:  []entity.ContextElement{el("c", entity.ElementTheme, 1)},
		},
	)
	assert.Equal(t, []string{"a", "b"}, ids(w.Before))
	assert.Equal(t, []string{"c"}, ids(w.After))
}

func TestRender(t *testing.T) {
	a, err := NewDefaultAssembler()
	require.NoError(t, err)

	focus := entity.Focus{ID: "scene-1", Description: "The harbour at night", CriticalElements: []string{"Alice"}}
	window := entity.ContextWindow{
		Before: []entity.ContextElement{el("Alice waits", entity.ElementCharacter, 0.8)},
	}
	p, err := a.CreatePrompt(context.Background(), "scene_analysis", focus, window, nil)
	require.NoError(t, err)

	msgs, err := a.Render(context.Background(), p, focus)
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	assert.Equal(t, schema.System, msgs[0].Role)
	assert.Contains(t, msgs[0].Content, `Analyze the scene "The harbour at night"`)
	assert.Equal(t, schema.User, msgs[1].Role)
	assert.Contains(t, msgs[1].Content, "Critical elements: Alice")
	assert.Contains(t, msgs[1].Content, "- [past/character] Alice waits (relevance 0.80)")
	assert.Contains(t, msgs[1].Content, "- Preserve established facts: ")
	assert.Contains(t, msgs[1].Content, "- Maintain consistency with Alice")

	_, err = a.Render(context.Background(), nil, focus)
	assert.ErrorIs(t, err, apperrors.ErrInvalidParam)
}
