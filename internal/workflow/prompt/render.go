package prompt

import (
	"context"
	"fmt"
	"strings"

	einoprompt "github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"z-novel-context/internal/domain/entity"
	apperrors "z-novel-context/pkg/errors"
)

const defaultRenderUser = "Critical elements: {critical_elements}\n\nContext:\n{context}\n\nConstraints:\n{constraints}\n\nObjectives:\n{objectives}"

// Render 将组装结果格式化为 system + user 消息，交给外部生成器
func (a *Assembler) Render(ctx context.Context, p *entity.DynamicPrompt, focus entity.Focus) ([]*schema.Message, error) {
	if p == nil {
		return nil, apperrors.ErrInvalidParam.WithDetail("prompt is required")
	}
	tpl := einoprompt.FromMessages(
		schema.FString,
		schema.SystemMessage(p.BasePrompt),
		schema.UserMessage(a.renderUser),
	)

	focusText := strings.TrimSpace(focus.Description)
	if focusText == "" {
		focusText = focus.ID
	}
	vars := map[string]any{
		"focus":             focusText,
		"critical_elements": orNone(strings.Join(focus.CriticalElements, ", ")),
		"context":           orNone(formatElements(p.ContextualElements)),
		"constraints":       orNone(formatConstraints(p.Constraints)),
		"objectives":        orNone(formatLines(p.Objectives)),
	}
	msgs, err := tpl.Format(ctx, vars)
	if err != nil {
		return nil, apperrors.ErrRenderFailed.WithDetail(p.Template).WithError(err)
	}
	return msgs, nil
}

func formatElements(els []entity.ContextElement) string {
	var b strings.Builder
	for _, el := range els {
		label := string(el.Type)
		if el.Timeframe != "" {
			label = el.Timeframe + "/" + label
		}
		fmt.Fprintf(&b, "- [%s] %s (relevance %.2f)\n", label, el.Content, el.Relevance)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatConstraints(cs []entity.PromptConstraint) string {
	var b strings.Builder
	for _, c := range cs {
		b.WriteString("- ")
		b.WriteString(c.Rule)
		if c.Explanation != "" {
			b.WriteString(": ")
			b.WriteString(c.Explanation)
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatLines(lines []string) string {
	var b strings.Builder
	for _, l := range lines {
		b.WriteString("- ")
		b.WriteString(l)
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(none)"
	}
	return s
}
