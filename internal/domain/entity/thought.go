package entity

// NarrativeContext 分析步骤关联的叙事上下文（可选）
type NarrativeContext struct {
	FocusScene string   `json:"focus_scene,omitempty"`
	Themes     []string `json:"themes,omitempty"`
	Characters []string `json:"characters,omitempty"`
	PlotPoints []string `json:"plot_points,omitempty"`
}

// StoryAnalysisThought 推理日志中的一个节点，追加后不可变
type StoryAnalysisThought struct {
	Thought        string `json:"thought"`
	ThoughtNumber  int    `json:"thought_number"`
	TotalThoughts  int    `json:"total_thoughts"`
	IsRevision     bool   `json:"is_revision,omitempty"`
	RevisesThought int    `json:"revises_thought,omitempty"`
	// NextThoughtNeeded 仅作提示，不影响状态机
	NextThoughtNeeded bool              `json:"next_thought_needed"`
	NarrativeContext  *NarrativeContext `json:"narrative_context,omitempty"`
}

// Branch 命名的节点序列
type Branch struct {
	Name     string                  `json:"name"`
	Thoughts []*StoryAnalysisThought `json:"thoughts"`
}
