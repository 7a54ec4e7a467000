package http

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"VitalWatch/pkg/util"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

var validate = newValidator()

// newValidator reports fields by their wire names (json, query or path param)
// and knows the two string formats the vitals API accepts for filters.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, tag := range []string{"json", "query", "param"} {
			name := strings.SplitN(f.Tag.Get(tag), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name != "" {
				return name
			}
		}
		return f.Name
	})
	// instant: epoch milliseconds or RFC3339.
	_ = v.RegisterValidation("instant", func(fl validator.FieldLevel) bool {
		_, ok := util.ParseMillis(fl.Field().String())
		return ok
	})
	// patient_filter: a non-negative patient id carried as a string.
	_ = v.RegisterValidation("patient_filter", func(fl validator.FieldLevel) bool {
		id, err := strconv.Atoi(fl.Field().String())
		return err == nil && id >= 0
	})
	return v
}

// ReadAndValidateRequest binds the request, applies defaults, then validates.
// It returns a []ValidationError when the request is rejected, nil otherwise.
func ReadAndValidateRequest(c echo.Context, req interface{}) interface{} {
	if err := c.Bind(req); err != nil {
		return validationErrors(err)
	}
	if err := defaults.Set(req); err != nil {
		return validationErrors(err)
	}
	if err := validate.StructCtx(c.Request().Context(), req); err != nil {
		return validationErrors(err)
	}
	return nil
}

func validationErrors(err error) []ValidationError {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		out := make([]ValidationError, 0, len(verrs))
		for _, fe := range verrs {
			field := fieldPath(fe)
			out = append(out, ValidationError{
				Code:    errorCode(fe),
				Field:   field,
				Message: errorMessage(field, fe),
				Params:  errorParams(fe),
			})
		}
		return out
	}

	// Bind failures: malformed JSON, or a path/query value of the wrong type.
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return []ValidationError{{
			Code:    "ERR_MALFORMED_REQUEST",
			Message: fmt.Sprintf("%v", he.Message),
		}}
	}
	return []ValidationError{{
		Code:    "ERR_UNKNOWN",
		Message: err.Error(),
	}}
}

// fieldPath drops the request struct name, so a batch entry reads
// "observations[3].category".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func errorCode(fe validator.FieldError) string {
	switch fe.Tag() {
	case "instant":
		return "ERR_INVALID_TIME"
	case "patient_filter":
		return "ERR_INVALID_PATIENT"
	}
	return "ERR_" + strings.ToUpper(fe.Tag())
}

func errorMessage(field string, fe validator.FieldError) string {
	slice := fe.Kind() == reflect.Slice
	switch fe.Tag() {
	case "required":
		if slice {
			return fmt.Sprintf("%s must contain at least one reading", field)
		}
		return fmt.Sprintf("%s is required", field)
	case "instant":
		return fmt.Sprintf("%s must be epoch milliseconds or RFC3339, got %q", field, fe.Value())
	case "patient_filter":
		return fmt.Sprintf("%s must be a non-negative patient id, got %q", field, fe.Value())
	case "min":
		if slice {
			return fmt.Sprintf("%s must contain at least %s readings", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		if slice {
			return fmt.Sprintf("%s must contain at most %s readings", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "gte":
		if fe.Param() == "0" {
			return fmt.Sprintf("%s must not be negative", field)
		}
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed validation: %s", field, fe.Tag())
	}
}

func errorParams(fe validator.FieldError) map[string]interface{} {
	switch fe.Tag() {
	case "min", "gte":
		return map[string]interface{}{"min": fe.Param()}
	case "max", "lte":
		return map[string]interface{}{"max": fe.Param()}
	}
	return nil
}
