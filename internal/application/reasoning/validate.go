package reasoning

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"z-novel-context/internal/domain/entity"
	apperrors "z-novel-context/pkg/errors"
)

// ThoughtInput ProcessThought 的输入
type ThoughtInput struct {
	Thought           string                   `json:"thought" validate:"notblank"`
	ThoughtNumber     int                      `json:"thought_number" validate:"gte=1"`
	TotalThoughts     int                      `json:"total_thoughts" validate:"gte=0"`
	IsRevision        bool                     `json:"is_revision"`
	RevisesThought    int                      `json:"revises_thought" validate:"required_if=IsRevision true,gte=0"`
	NextThoughtNeeded bool                     `json:"next_thought_needed"`
	NarrativeContext  *entity.NarrativeContext `json:"narrative_context,omitempty"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	// 空串和纯空白都视为缺失
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	return v
}

// validateInput 在修改任何状态之前校验输入
func validateInput(in ThoughtInput) error {
	if err := validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, describe(fe))
			}
			return apperrors.ErrThoughtValidation.WithDetail(strings.Join(msgs, "; "))
		}
		return apperrors.ErrThoughtValidation.WithError(err)
	}
	if in.IsRevision && in.RevisesThought >= in.ThoughtNumber {
		return apperrors.ErrThoughtValidation.WithDetail(
			fmt.Sprintf("revises_thought (%d) must be less than thought_number (%d)", in.RevisesThought, in.ThoughtNumber))
	}
	return nil
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "notblank":
		return fe.Field() + " must not be empty"
	case "gte":
		return fmt.Sprintf("%s must be >= %s", fe.Field(), fe.Param())
	case "required_if":
		return fe.Field() + " is required for revisions"
	default:
		return fmt.Sprintf("%s failed on %s", fe.Field(), fe.Tag())
	}
}
