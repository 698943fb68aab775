package prompt

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"z-novel-context/internal/domain/entity"
	apperrors "z-novel-context/pkg/errors"
)

func TestCreateSequentialPrompt(t *testing.T) {
	a, err := NewDefaultAssembler()
	require.NoError(t, err)

	history := []*entity.StoryAnalysisThought{
		{
			Thought: "Alice grieves", ThoughtNumber: 1, TotalThoughts: 4,
			NarrativeContext: &entity.NarrativeContext{Characters: []string{"alice"}, Themes: []string{"Loss"}},
		},
		{
			Thought: "The storm mirrors her mood", ThoughtNumber: 2, TotalThoughts: 4,
			NarrativeContext: &entity.NarrativeContext{Themes: []string{"loss"}},
		},
	}
	current := &entity.StoryAnalysisThought{
		Thought: "Rethink the grief", ThoughtNumber: 3, TotalThoughts: 4,
		IsRevision: true, RevisesThought: 1,
		NarrativeContext: &entity.NarrativeContext{Characters: []string{"Alice"}, Themes: []string{"loss"}},
	}
	history = append(history, current)

	p, err := a.CreateSequentialPrompt(context.Background(), current, history)
	require.NoError(t, err)
	assert.Equal(t, SequentialTemplate, p.Template)

	// 当前节点自身不计入
	require.Len(t, p.ContextualElements, 2)
	assert.Equal(t, "thought_1", p.ContextualElements[0].ID)
	assert.InDelta(t, 1.0, p.ContextualElements[0].Relevance, 1e-9)
	assert.InDelta(t, 0.85, p.ContextualElements[1].Relevance, 1e-9)
	assert.Equal(t, entity.TimeframePast, p.ContextualElements[1].Timeframe)

	require.Len(t, p.Constraints, 2)
	assert.Equal(t, sequentialRule, p.Constraints[0].Rule)
	assert.Equal(t, entity.ScopeGlobal, p.Constraints[0].Scope)
	assert.Equal(t, revisionCoherenceRule, p.Constraints[1].Rule)

	assert.Equal(t, []string{
		"Build upon analysis step 3 of 4",
		"Explore the themes: loss",
		"Follow the characters: Alice",
		"Revise the conclusions of step 1 and reconcile the steps that follow",
	}, p.Objectives)
}

func TestCreateSequentialPrompt_Plain(t *testing.T) {
	a, err := NewDefaultAssembler()
	require.NoError(t, err)

	current := &entity.StoryAnalysisThought{Thought: "next", ThoughtNumber: 2, TotalThoughts: 1}
	p, err := a.CreateSequentialPrompt(context.Background(), current, []*entity.StoryAnalysisThought{
		{Thought: "first", ThoughtNumber: 1, TotalThoughts: 1},
	})
	require.NoError(t, err)

	require.Len(t, p.Constraints, 1)
	assert.Equal(t, []string{"Build upon analysis step 2 of 2"}, p.Objectives)
	require.Len(t, p.ContextualElements, 1)
	assert.InDelta(t, 0.5, p.ContextualElements[0].Relevance, 1e-9)
}

func TestThoughtRelevance(t *testing.T) {
	tests := []struct {
		name    string
		current entity.StoryAnalysisThought
		earlier entity.StoryAnalysisThought
		want    float64
	}{
		{
			name:    "distance decay",
			current: entity.StoryAnalysisThought{ThoughtNumber: 4, TotalThoughts: 8},
			earlier: entity.StoryAnalysisThought{ThoughtNumber: 2},
			want:    0.75,
		},
		{
			name:    "floor",
			current: entity.StoryAnalysisThought{ThoughtNumber: 20, TotalThoughts: 20},
			earlier: entity.StoryAnalysisThought{ThoughtNumber: 1},
			want:    0.1,
		},
		{
			name:    "revised target boost",
			current: entity.StoryAnalysisThought{ThoughtNumber: 3, TotalThoughts: 4, RevisesThought: 2},
			earlier: entity.StoryAnalysisThought{ThoughtNumber: 2},
			want:    1.0,
		},
		{
			name: "shared names add up",
			current: entity.StoryAnalysisThought{ThoughtNumber: 5, TotalThoughts: 10,
				NarrativeContext: &entity.NarrativeContext{Characters: []string{"A", "B"}, PlotPoints: []string{"heist"}}},
			earlier: entity.StoryAnalysisThought{ThoughtNumber: 1,
				NarrativeContext: &entity.NarrativeContext{Characters: []string{"b", "a", "C"}, PlotPoints: []string{"Heist"}}},
			want: 0.9,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			total := max(tt.current.TotalThoughts, tt.current.ThoughtNumber)
			got := thoughtRelevance(&tt.current, &tt.earlier, total)
			assert.InDelta(t, tt.want, got, 1e-9)
			assert.LessOrEqual(t, got, 1.0)
		})
	}
}

func TestCreateSequentialPrompt_Errors(t *testing.T) {
	_, err := NewAssembler(NewRegistry()).CreateSequentialPrompt(context.Background(), &entity.StoryAnalysisThought{ThoughtNumber: 1}, nil)
	assert.ErrorIs(t, err, apperrors.ErrTemplateNotFound)

	a, err := NewDefaultAssembler()
	require.NoError(t, err)
	_, err = a.CreateSequentialPrompt(context.Background(), nil, nil)
	assert.ErrorIs(t, err, apperrors.ErrInvalidParam)
}
