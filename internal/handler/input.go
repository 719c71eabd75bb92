package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"

	"github.com/hitoshi/onboarding/internal/model"
	"github.com/hitoshi/onboarding/internal/onboarding"
)

// inputValidator はプロシージャ入力の構造体タグ検証を行う。
var inputValidator = onboarding.NewValidator()

// decodeInput はプロシージャ入力をdstにデコードし、validateタグで検証する。
func decodeInput(raw json.RawMessage, dst any) error {
	if err := decodeJSON(raw, dst); err != nil {
		return err
	}

	if err := inputValidator.Struct(dst); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return model.NewValidationError(err.Error())
		}
		messages := lo.Map(fieldErrs, func(fe validator.FieldError, _ int) string {
			return fe.Field() + ": " + inputRuleMessage(fe)
		})
		return model.NewValidationError(strings.Join(messages, "; "))
	}
	return nil
}

// decodeJSON はプロシージャ入力をdstにデコードする。検証はサービス層に任せる。
// 入力が空の場合は空オブジェクトとして扱う。
func decodeJSON(raw json.RawMessage, dst any) error {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		raw = json.RawMessage("{}")
	}

	if err := json.Unmarshal(raw, dst); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return model.NewValidationError(fmt.Sprintf("%s: expected %s", typeErr.Field, typeErr.Type))
		}
		return model.NewValidationError("invalid input: " + err.Error())
	}
	return nil
}

func inputRuleMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gte":
		return "must be greater than or equal to " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "max":
		return "must be at most " + fe.Param() + " characters"
	default:
		return "is invalid"
	}
}
