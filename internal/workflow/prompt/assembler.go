// Package prompt 组装检索增强的 Prompt：模板注册表 + 全局约束 + 上下文历史。
//
// Assembler 同时消费分片索引与推理日志的输出，不是并发安全的，由会话层串行访问。
package prompt

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"z-novel-context/internal/domain/entity"
	"z-novel-context/pkg/logger"
	"z-novel-context/pkg/metrics"
	"z-novel-context/pkg/tracer"
)

// 上下文筛选阈值（严格大于）
const (
	historyRelevanceThreshold  = 0.5
	optionalRelevanceThreshold = 0.7
)

type Assembler struct {
	registry    *Registry
	constraints []entity.PromptConstraint
	rules       map[string]struct{}
	history     map[string][]entity.ContextElement
	renderUser  string
}

// NewAssembler 创建组装器；globals 按顺序加入全局约束（按 Rule 去重）
func NewAssembler(registry *Registry, globals ...entity.PromptConstraint) *Assembler {
	if registry == nil {
		registry = NewRegistry()
	}
	a := &Assembler{
		registry:   registry,
		rules:      make(map[string]struct{}),
		history:    make(map[string][]entity.ContextElement),
		renderUser: defaultRenderUser,
	}
	for _, c := range globals {
		a.AddGlobalConstraint(c)
	}
	return a
}

// NewDefaultAssembler 使用内置模板包创建组装器
func NewDefaultAssembler() (*Assembler, error) {
	pack, err := DefaultPack()
	if err != nil {
		return nil, err
	}
	registry, err := NewDefaultRegistry()
	if err != nil {
		return nil, err
	}
	a := NewAssembler(registry, pack.GlobalConstraints...)
	if pack.Render.User != "" {
		a.renderUser = pack.Render.User
	}
	return a, nil
}

// Registry 返回底层模板注册表
func (a *Assembler) Registry() *Registry {
	return a.registry
}

// AddTemplate 注册新模板；已存在的模板不可覆盖
func (a *Assembler) AddTemplate(name string, t entity.PromptTemplate) error {
	t.Name = name
	return a.registry.Register(t)
}

// AddGlobalConstraint 添加全局约束；已有相同 Rule 时忽略并返回 false
func (a *Assembler) AddGlobalConstraint(c entity.PromptConstraint) bool {
	if _, ok := a.rules[c.Rule]; ok {
		return false
	}
	c.Scope = entity.ScopeGlobal
	a.rules[c.Rule] = struct{}{}
	a.constraints = append(a.constraints, c)
	return true
}

// GlobalConstraints 返回全局约束（副本）
func (a *Assembler) GlobalConstraints() []entity.PromptConstraint {
	return append([]entity.PromptConstraint(nil), a.constraints...)
}

// UpdateContextHistory 为焦点追加历史观察；ID 相同的元素以新值替换
func (a *Assembler) UpdateContextHistory(focusID string, elements []entity.ContextElement) {
	existing := a.history[focusID]
	index := make(map[string]int, len(existing))
	for i, el := range existing {
		index[el.ID] = i
	}
	for _, el := range elements {
		if i, ok := index[el.ID]; ok && el.ID != "" {
			existing[i] = el
			continue
		}
		index[el.ID] = len(existing)
		existing = append(existing, el)
	}
	a.history[focusID] = existing
}

// ContextHistory 返回焦点的历史观察（副本）
func (a *Assembler) ContextHistory(focusID string) []entity.ContextElement {
	return append([]entity.ContextElement(nil), a.history[focusID]...)
}

// ContextHistorySnapshot 导出全部历史观察，供会话持久化
func (a *Assembler) ContextHistorySnapshot() map[string][]entity.ContextElement {
	out := make(map[string][]entity.ContextElement, len(a.history))
	for id, els := range a.history {
		out[id] = append([]entity.ContextElement(nil), els...)
	}
	return out
}

// RestoreContextHistory 用快照替换全部历史观察
func (a *Assembler) RestoreContextHistory(history map[string][]entity.ContextElement) {
	a.history = make(map[string][]entity.ContextElement, len(history))
	for id, els := range history {
		a.history[id] = append([]entity.ContextElement(nil), els...)
	}
}

// CreatePrompt 按模板组装 Prompt
//
// 必需类别：窗口前后的元素全部纳入，历史观察要求相关度 > 0.5；
// 可选类别：同样的来源，但只保留相关度严格大于 0.7 的元素。
// 本地约束在前、全局约束在后，按 Rule 去重。
func (a *Assembler) CreatePrompt(ctx context.Context, templateName string, focus entity.Focus, window entity.ContextWindow, local []entity.PromptConstraint) (*entity.DynamicPrompt, error) {
	ctx, span := tracer.StartWithAttrs(ctx, "prompt.CreatePrompt",
		attribute.String("prompt.template", templateName),
		attribute.String("prompt.focus", focus.ID),
	)
	defer span.End()

	tpl, err := a.registry.Template(templateName)
	if err != nil {
		metrics.PromptsAssembled.WithLabelValues(templateName, metrics.StatusLabel(err)).Inc()
		tracer.Fail(span, err)
		return nil, err
	}

	elements := make([]entity.ContextElement, 0, len(window.Before)+len(window.After))
	seen := make(map[entity.ContextCategory]struct{}, len(tpl.RequiredContext)+len(tpl.OptionalContext))
	for _, cat := range tpl.RequiredContext {
		if _, dup := seen[cat]; dup {
			continue
		}
		seen[cat] = struct{}{}
		elements = append(elements, a.collect(cat, focus.ID, window, 0, false)...)
	}
	for _, cat := range tpl.OptionalContext {
		if _, dup := seen[cat]; dup {
			continue
		}
		seen[cat] = struct{}{}
		elements = append(elements, a.collect(cat, focus.ID, window, optionalRelevanceThreshold, true)...)
	}

	constraints := mergeConstraints(local, a.constraints)
	out := &entity.DynamicPrompt{
		Template:           tpl.Name,
		BasePrompt:         tpl.BaseStructure,
		ContextualElements: elements,
		Constraints:        constraints,
		Objectives:         objectives(tpl, focus, constraints),
	}

	metrics.PromptsAssembled.WithLabelValues(tpl.Name, "ok").Inc()
	metrics.PromptContextElements.WithLabelValues(tpl.Name).Observe(float64(len(elements)))
	span.SetAttributes(attribute.Int("prompt.elements", len(elements)))
	logger.Debug(ctx, "prompt assembled",
		"template", tpl.Name,
		"focus", focus.ID,
		"elements", len(elements),
		"constraints", len(constraints),
	)
	return out, nil
}

// collect 取出某一类别的窗口元素与历史观察
// filtered 为 true 时各来源都要求相关度严格大于 threshold。
func (a *Assembler) collect(cat entity.ContextCategory, focusID string, window entity.ContextWindow, threshold float64, filtered bool) []entity.ContextElement {
	var out []entity.ContextElement
	keep := func(el entity.ContextElement) bool {
		return el.Type.Category() == cat && (!filtered || el.Relevance > threshold)
	}
	for _, el := range window.Before {
		if keep(el) {
			el.Timeframe = entity.TimeframePast
			out = append(out, el)
		}
	}
	for _, el := range window.After {
		if keep(el) {
			el.Timeframe = entity.TimeframeFuture
			out = append(out, el)
		}
	}
	for _, el := range a.history[focusID] {
		if keep(el) && el.Relevance > historyRelevanceThreshold {
			el.Timeframe = entity.TimeframeHistorical
			out = append(out, el)
		}
	}
	return out
}

func mergeConstraints(groups ...[]entity.PromptConstraint) []entity.PromptConstraint {
	out := make([]entity.PromptConstraint, 0)
	seen := make(map[string]struct{})
	for _, group := range groups {
		for _, c := range group {
			if _, ok := seen[c.Rule]; ok {
				continue
			}
			seen[c.Rule] = struct{}{}
			if c.Scope == "" {
				c.Scope = entity.ScopeLocal
			}
			out = append(out, c)
		}
	}
	return out
}

func objectives(tpl entity.PromptTemplate, focus entity.Focus, constraints []entity.PromptConstraint) []string {
	out := []string{consistencyObjective(focus.CriticalElements)}

	wanted := make(map[string]struct{}, len(tpl.ConstraintTypes))
	for _, t := range tpl.ConstraintTypes {
		wanted[t] = struct{}{}
	}
	for _, c := range constraints {
		if _, ok := wanted[c.Type]; !ok {
			continue
		}
		out = append(out, constraintObjective(c))
	}
	return out
}

func consistencyObjective(critical []string) string {
	names := make([]string, 0, len(critical))
	for _, c := range critical {
		if c = strings.TrimSpace(c); c != "" {
			names = append(names, c)
		}
	}
	if len(names) == 0 {
		return "Maintain consistency with the established narrative"
	}
	return "Maintain consistency with " + strings.Join(names, ", ")
}

func constraintObjective(c entity.PromptConstraint) string {
	switch c.Type {
	case entity.ConstraintContinuity:
		return "Ensure continuity: " + c.Rule
	case entity.ConstraintCharacter:
		return "Keep character behavior consistent: " + c.Rule
	case entity.ConstraintPlot:
		return "Advance the plot without contradiction: " + c.Rule
	case entity.ConstraintStyle:
		return "Follow the style guideline: " + c.Rule
	default:
		return "Respect the " + c.Type + " constraint: " + c.Rule
	}
}
