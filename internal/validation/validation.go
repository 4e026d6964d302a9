// Package validation はリクエスト構造体の検証とフィールド単位のエラー変換を提供する。
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/hitoshi/timecapsule/internal/model"
)

// Validator はvalidator/v10をラップし、検証結果をAPIエラーに変換する。
type Validator struct {
	validate *validator.Validate
}

// New はValidatorを生成する。
// エラーのフィールド名にはjsonタグ名を使う。
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
	return &Validator{validate: v}
}

// Struct は構造体を検証する。問題がある場合はVALIDATION_FAILEDの*model.APIErrorを返す。
func (v *Validator) Struct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("failed to validate request: %w", err)
	}
	return model.NewValidationError(FieldErrors(verrs))
}

// FieldErrors はvalidatorのエラーをフィールド単位のエラーに変換する。
func FieldErrors(verrs validator.ValidationErrors) []model.FieldError {
	details := make([]model.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		details = append(details, model.FieldError{
			Field:   fe.Field(),
			Message: message(fe),
		})
	}
	return details
}

func message(fe validator.FieldError) string {
	switch fe.ActualTag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "email":
		return fmt.Sprintf("%s must be a valid email address", fe.Field())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param())
	case "timezone":
		return fmt.Sprintf("%s must be a valid IANA time zone", fe.Field())
	default:
		return fmt.Sprintf("%s is invalid", fe.Field())
	}
}
