package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

type FieldError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Param   string `json:"param,omitempty"`
	Message string `json:"message,omitempty"`
}

// BindDetails explains why a body was rejected. JSON names a decode
// problem; Fields lists per-field rule failures.
type BindDetails struct {
	JSON   string       `json:"json,omitempty"`
	Field  string       `json:"field,omitempty"`
	Fields []FieldError `json:"fields,omitempty"`
	Reason string       `json:"reason,omitempty"`
}

// BindJSON decodes and validates the body into out. On failure it writes a
// 400 (413 for an oversized body) and returns false.
func BindJSON(ctx *gin.Context, out any) bool {
	err := ctx.ShouldBindJSON(out)
	if err == nil {
		return true
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		RespondError(ctx, http.StatusRequestEntityTooLarge, "body_too_large",
			fmt.Sprintf("Request body exceeds %d bytes", tooLarge.Limit), nil)
		return false
	}

	RespondBadRequest(ctx, "Invalid request body", describeBindError(err, out))
	return false
}

func describeBindError(err error, out any) BindDetails {
	var (
		validationErrs validator.ValidationErrors
		syntaxErr      *json.SyntaxError
		typeErr        *json.UnmarshalTypeError
	)

	switch {
	case errors.As(err, &validationErrs):
		root := structType(out)
		fields := make([]FieldError, 0, len(validationErrs))

		for _, fe := range validationErrs {
			fields = append(fields, FieldError{
				Field:   jsonFieldName(root, fe.StructField()),
				Rule:    fe.Tag(),
				Param:   fe.Param(),
				Message: validationMessage(fe.Tag(), fe.Param()),
			})
		}
		return BindDetails{Fields: fields}

	case errors.Is(err, io.EOF):
		return BindDetails{JSON: "empty_body"}

	case errors.As(err, &syntaxErr), errors.Is(err, io.ErrUnexpectedEOF):
		return BindDetails{JSON: "invalid_json_syntax"}

	case errors.As(err, &typeErr):
		field := strings.TrimSpace(typeErr.Field)
		return BindDetails{
			JSON:  "invalid_json_type",
			Field: field,
			Fields: []FieldError{{
				Field:   field,
				Rule:    "type",
				Message: "must be of type " + typeErr.Type.String(),
			}},
		}
	}

	return BindDetails{Reason: err.Error()}
}

func structType(v any) reflect.Type {
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil
	}
	return t
}

// jsonFieldName maps a Go field name to its json tag name.
func jsonFieldName(root reflect.Type, goName string) string {
	if root == nil {
		return goName
	}

	sf, ok := root.FieldByName(goName)
	if !ok {
		return goName
	}

	name, _, _ := strings.Cut(sf.Tag.Get("json"), ",")
	if name == "" || name == "-" {
		return goName
	}
	return name
}

func validationMessage(rule, param string) string {
	switch rule {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return "must be at least " + param
	case "max":
		return "must be at most " + param
	}

	if param != "" {
		return fmt.Sprintf("failed %s validation (%s)", rule, param)
	}
	return "failed " + rule + " validation"
}
