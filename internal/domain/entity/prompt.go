package entity

// ConstraintScope 约束作用域
type ConstraintScope string

const (
	ScopeLocal  ConstraintScope = "local"
	ScopeGlobal ConstraintScope = "global"
)

// 常用约束类型
const (
	ConstraintContinuity = "continuity"
	ConstraintCharacter  = "character"
	ConstraintPlot       = "plot"
	ConstraintStyle      = "style"
	ConstraintSequential = "sequential"
	ConstraintRevision   = "revision"
)

// 上下文元素的时间标签
const (
	TimeframePast       = "past"
	TimeframeFuture     = "future"
	TimeframeHistorical = "historical"
)

// PromptTemplate Prompt 模板，注册后只读
type PromptTemplate struct {
	Name            string            `json:"name" yaml:"name"`
	Purpose         string            `json:"purpose" yaml:"purpose"`
	BaseStructure   string            `json:"base_structure" yaml:"base_structure"`
	RequiredContext []ContextCategory `json:"required_context" yaml:"required_context"`
	OptionalContext []ContextCategory `json:"optional_context" yaml:"optional_context"`
	ConstraintTypes []string          `json:"constraint_types" yaml:"constraint_types"`
}

// PromptConstraint Prompt 约束；Rule 为去重键
type PromptConstraint struct {
	Type        string          `json:"type" yaml:"type"`
	Rule        string          `json:"rule" yaml:"rule"`
	Explanation string          `json:"explanation" yaml:"explanation"`
	Scope       ConstraintScope `json:"scope" yaml:"scope"`
}

// ContextElement Prompt 组装使用的上下文元素
type ContextElement struct {
	ID        string      `json:"id"`
	Type      ElementType `json:"type"`
	Content   string      `json:"content"`
	Relevance float64     `json:"relevance"`
	Relation  Relation    `json:"relation,omitempty"`
	Timeframe string      `json:"timeframe,omitempty"`
}

// ContextWindow 焦点前后的上下文
type ContextWindow struct {
	Before []ContextElement `json:"before"`
	After  []ContextElement `json:"after"`
}

// Focus 当前 Prompt 的焦点（场景/角色/段落）
type Focus struct {
	ID               string   `json:"id"`
	Description      string   `json:"description,omitempty"`
	CriticalElements []string `json:"critical_elements"`
}

// DynamicPrompt 组装结果，每次调用新建，不可变
type DynamicPrompt struct {
	Template           string             `json:"template"`
	BasePrompt         string             `json:"base_prompt"`
	ContextualElements []ContextElement   `json:"contextual_elements"`
	Constraints        []PromptConstraint `json:"constraints"`
	Objectives         []string           `json:"objectives"`
}
