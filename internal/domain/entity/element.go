package entity

// ElementType 上下文元素的原始类别
type ElementType string

const (
	ElementCharacter ElementType = "character"
	ElementPlot      ElementType = "plot"
	ElementSetting   ElementType = "setting"
	ElementTheme     ElementType = "theme"
	ElementDialogue  ElementType = "dialogue"
	ElementEvent     ElementType = "event"
	ElementConflict  ElementType = "conflict"
	ElementLocation  ElementType = "location"
	ElementTime      ElementType = "time"
	ElementSymbol    ElementType = "symbol"
	ElementMotif     ElementType = "motif"
)

// Relation 元素与当前焦点的关系
type Relation string

const (
	RelationSetup       Relation = "setup"
	RelationCallback    Relation = "callback"
	RelationDevelopment Relation = "development"
	RelationResolution  Relation = "resolution"
)

// ContextCategory 模板使用的粗粒度上下文类别
type ContextCategory string

const (
	CategoryCharacter ContextCategory = "character"
	CategoryPlot      ContextCategory = "plot"
	CategorySetting   ContextCategory = "setting"
	CategoryTheme     ContextCategory = "theme"
)

// Category 将原始类别映射为粗粒度类别；无法映射时返回空串
func (t ElementType) Category() ContextCategory {
	switch t {
	case ElementCharacter, ElementDialogue:
		return CategoryCharacter
	case ElementPlot, ElementEvent, ElementConflict:
		return CategoryPlot
	case ElementSetting, ElementLocation, ElementTime:
		return CategorySetting
	case ElementTheme, ElementSymbol, ElementMotif:
		return CategoryTheme
	default:
		return ""
	}
}

// ContextualElement 从分片派生的带评分事实，创建后只读
// FirstMention/LastMention 为分片内的字节偏移。
type ContextualElement struct {
	ID              string      `json:"id"`
	Type            ElementType `json:"type"`
	Content         string      `json:"content"`
	Importance      float64     `json:"importance"`
	RelationToFocus Relation    `json:"relation_to_focus"`
	FirstMention    int         `json:"first_mention"`
	LastMention     int         `json:"last_mention"`
}
