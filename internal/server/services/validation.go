package services

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/bizledger/internal/common"
	"github.com/go-playground/validator/v10"
)

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	if err := v.RegisterValidation("decimals", hasAtMostDecimals); err != nil {
		panic(err)
	}
	return v
}

// hasAtMostDecimals implements the "decimals=N" tag: the shortest decimal
// form of a float field has no more than N fractional digits, so the value
// survives a numeric(_, N) column unchanged.
func hasAtMostDecimals(fl validator.FieldLevel) bool {
	limit, err := strconv.Atoi(fl.Param())
	if err != nil {
		return false
	}
	f := fl.Field()
	if f.Kind() != reflect.Float32 && f.Kind() != reflect.Float64 {
		return false
	}
	s := strconv.FormatFloat(f.Float(), 'f', -1, 64)
	if i := strings.IndexByte(s, '.'); i >= 0 {
		return len(s)-i-1 <= limit
	}
	return true
}

// validationError turns the first validator failure into a *common.ValidationError.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return common.NewValidationError("", err.Error())
	}

	fe := verrs[0]
	field := fieldPath(fe)
	switch fe.Tag() {
	case "required":
		return common.NewValidationError(field, "is required")
	case "email":
		return common.NewValidationError(field, "must be a valid email address")
	case "min":
		if fe.Kind() == reflect.String {
			return common.NewValidationError(field, fmt.Sprintf("must be at least %s characters", fe.Param()))
		}
		if fe.Kind() == reflect.Slice {
			return common.NewValidationError(field, fmt.Sprintf("must contain at least %s entries", fe.Param()))
		}
		return common.NewValidationError(field, "must be at least "+fe.Param())
	case "max":
		return common.NewValidationError(field, "must be at most "+fe.Param())
	case "gt":
		return common.NewValidationError(field, "must be greater than "+fe.Param())
	case "gte":
		return common.NewValidationError(field, "must not be less than "+fe.Param())
	case "lte":
		return common.NewValidationError(field, "must not be greater than "+fe.Param())
	case "decimals":
		return common.NewValidationError(field, fmt.Sprintf("must have at most %s decimal places", fe.Param()))
	case "datetime":
		return common.NewValidationError(field, "must be a date in "+fe.Param()+" format")
	default:
		return common.NewValidationError(field, "is invalid")
	}
}

// fieldPath drops the top-level struct name from the namespace:
// OrderInput.items[0].item_name becomes items[0].item_name.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}
