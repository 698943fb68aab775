package prompt

import (
	"github.com/google/uuid"

	"z-novel-context/internal/domain/entity"
)

// IntegrateChunkAnalysis 把分片的上下文元素转换为上下文窗口
//
// 按元素序号从中点切开：[0, mid) 为 before，(mid, end) 为 after，正好位于中点的元素被丢弃。
// 首末提及位置相同的元素标记为 development，否则 before 侧为 callback、after 侧为 setup。
func (a *Assembler) IntegrateChunkAnalysis(analysis *entity.ChunkAnalysis) entity.ContextWindow {
	window := entity.ContextWindow{
		Before: []entity.ContextElement{},
		After:  []entity.ContextElement{},
	}
	if analysis == nil {
		return window
	}

	els := analysis.ContextualElements
	mid := len(els) / 2
	for i, el := range els {
		switch {
		case i < mid:
			window.Before = append(window.Before, toContextElement(el, entity.RelationCallback))
		case i > mid:
			window.After = append(window.After, toContextElement(el, entity.RelationSetup))
		}
	}
	return window
}

func toContextElement(el entity.ContextualElement, sided entity.Relation) entity.ContextElement {
	rel := sided
	if el.FirstMention == el.LastMention {
		rel = entity.RelationDevelopment
	}
	return entity.ContextElement{
		ID:        uuid.NewString(),
		Type:      el.Type,
		Content:   el.Content,
		Relevance: el.Importance,
		Relation:  rel,
	}
}

// MergeWindows 依次拼接多个窗口
func MergeWindows(windows ...entity.ContextWindow) entity.ContextWindow {
	out := entity.ContextWindow{
		Before: []entity.ContextElement{},
		After:  []entity.ContextElement{},
	}
	for _, w := range windows {
		out.Before = append(out.Before, w.Before...)
		out.After = append(out.After, w.After...)
	}
	return out
}
