package onboarding

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"

	"github.com/hitoshi/onboarding/internal/model"
)

// NewValidator はJSONフィールド名でエラーを報告するvalidatorを生成する。
// プロシージャ入力の検証でも同じ設定を共有する。
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate は申請フォームの入力値を検証する。
// 不正なフィールドがあればフィールドごとのメッセージをまとめたValidationErrorを返す。
func Validate(v *validator.Validate, in model.NewSubmission) error {
	err := v.Struct(in)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("failed to validate submission: %w", err)
	}

	messages := lo.Map(fieldErrs, func(fe validator.FieldError, _ int) string {
		return fe.Field() + ": " + fieldMessage(fe)
	})
	return model.NewValidationError(strings.Join(messages, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "Valid email is required"
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "len":
		return fmt.Sprintf("must be exactly %s characters", fe.Param())
	case "alpha":
		return "must contain letters only"
	default:
		return "is invalid"
	}
}
