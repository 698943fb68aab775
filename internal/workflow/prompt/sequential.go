package prompt

import (
	"context"
	"fmt"
	"math"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"z-novel-context/internal/domain/entity"
	apperrors "z-novel-context/pkg/errors"
	"z-novel-context/pkg/metrics"
	"z-novel-context/pkg/tracer"
)

const (
	minThoughtRelevance   = 0.1
	revisedTargetBoost    = 0.3
	sharedNarrativeBoost  = 0.1
	sequentialRule        = "Sequential Analysis Progression"
	revisionCoherenceRule = "Revision Coherence"
)

// CreateSequentialPrompt 基于推理日志历史组装 Prompt
//
// 每个更早节点 t 的相关度为 max(0.1, 1-(n-t.n)/total)；t 是被修订的节点时 +0.3，
// 叙事上下文中每个共享的角色/主题/情节点 +0.1，上限 1.0。
func (a *Assembler) CreateSequentialPrompt(ctx context.Context, thought *entity.StoryAnalysisThought, history []*entity.StoryAnalysisThought) (*entity.DynamicPrompt, error) {
	if thought == nil {
		return nil, apperrors.ErrInvalidParam.WithDetail("thought is required")
	}
	ctx, span := tracer.StartWithAttrs(ctx, "prompt.CreateSequentialPrompt",
		attribute.Int("thought.number", thought.ThoughtNumber),
		attribute.Int("thought.history", len(history)),
	)
	defer span.End()

	tpl, err := a.registry.Template(SequentialTemplate)
	if err != nil {
		metrics.PromptsAssembled.WithLabelValues(SequentialTemplate, metrics.StatusLabel(err)).Inc()
		tracer.Fail(span, err)
		return nil, err
	}

	total := max(thought.TotalThoughts, thought.ThoughtNumber, 1)
	elements := make([]entity.ContextElement, 0, len(history))
	for _, t := range history {
		if t == nil || t.ThoughtNumber >= thought.ThoughtNumber {
			continue
		}
		elements = append(elements, entity.ContextElement{
			ID:        fmt.Sprintf("thought_%d", t.ThoughtNumber),
			Type:      entity.ElementPlot,
			Content:   t.Thought,
			Relevance: thoughtRelevance(thought, t, total),
			Relation:  entity.RelationCallback,
			Timeframe: entity.TimeframePast,
		})
	}

	constraints := []entity.PromptConstraint{{
		Type:        entity.ConstraintSequential,
		Rule:        sequentialRule,
		Explanation: "Each step must build on the conclusions of the earlier steps.",
		Scope:       entity.ScopeGlobal,
	}}
	if thought.IsRevision {
		constraints = append(constraints, entity.PromptConstraint{
			Type:        entity.ConstraintRevision,
			Rule:        revisionCoherenceRule,
			Explanation: fmt.Sprintf("The revision of step %d must stay coherent with the steps it keeps.", thought.RevisesThought),
			Scope:       entity.ScopeLocal,
		})
	}

	out := &entity.DynamicPrompt{
		Template:           tpl.Name,
		BasePrompt:         tpl.BaseStructure,
		ContextualElements: elements,
		Constraints:        constraints,
		Objectives:         sequentialObjectives(thought, total),
	}
	metrics.PromptsAssembled.WithLabelValues(tpl.Name, "ok").Inc()
	metrics.PromptContextElements.WithLabelValues(tpl.Name).Observe(float64(len(elements)))
	return out, nil
}

func thoughtRelevance(current, earlier *entity.StoryAnalysisThought, total int) float64 {
	rel := math.Max(minThoughtRelevance, 1-float64(current.ThoughtNumber-earlier.ThoughtNumber)/float64(total))
	if current.RevisesThought == earlier.ThoughtNumber {
		rel += revisedTargetBoost
	}
	rel += sharedNarrativeBoost * float64(sharedNarrative(current.NarrativeContext, earlier.NarrativeContext))
	return math.Min(1, rel)
}

// sharedNarrative 统计两个叙事上下文共有的角色、主题、情节点数量
func sharedNarrative(a, b *entity.NarrativeContext) int {
	if a == nil || b == nil {
		return 0
	}
	return countShared(a.Characters, b.Characters) +
		countShared(a.Themes, b.Themes) +
		countShared(a.PlotPoints, b.PlotPoints)
}

func countShared(a, b []string) int {
	set := make(map[string]struct{}, len(b))
	for _, s := range b {
		set[strings.ToLower(strings.TrimSpace(s))] = struct{}{}
	}
	n := 0
	counted := make(map[string]struct{}, len(a))
	for _, s := range a {
		key := strings.ToLower(strings.TrimSpace(s))
		if _, dup := counted[key]; dup || key == "" {
			continue
		}
		if _, ok := set[key]; ok {
			counted[key] = struct{}{}
			n++
		}
	}
	return n
}

func sequentialObjectives(thought *entity.StoryAnalysisThought, total int) []string {
	out := []string{fmt.Sprintf("Build upon analysis step %d of %d", thought.ThoughtNumber, total)}
	if nc := thought.NarrativeContext; nc != nil {
		if len(nc.Themes) > 0 {
			out = append(out, "Explore the themes: "+strings.Join(nc.Themes, ", "))
		}
		if len(nc.Characters) > 0 {
			out = append(out, "Follow the characters: "+strings.Join(nc.Characters, ", "))
		}
		if len(nc.PlotPoints) > 0 {
			out = append(out, "Track the plot points: "+strings.Join(nc.PlotPoints, ", "))
		}
	}
	if thought.IsRevision {
		out = append(out, fmt.Sprintf("Revise the conclusions of step %d and reconcile the steps that follow", thought.RevisesThought))
	}
	return out
}
