package api

import (
	"errors"
	"net/http"
	"strings"
	"unicode"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/xraph/cloudbill"
)

// FieldError describes one invalid request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type errorPayload struct {
	Type    string       `json:"type"`
	Message string       `json:"message"`
	Errors  []FieldError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

// ErrorHandlingMiddleware renders the last error attached to the context.
func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

// AbortWithError attaches err to the context and stops the handler chain.
func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

// mapError maps an engine error onto a status by class: validation 400,
// not found 404, integrity or conflict 409, anything else 500.
func mapError(err error) (int, errorPayload) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]FieldError, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, FieldError{Field: jsonField(fe), Message: bindingMessage(fe)})
		}
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  fields,
		}
	}

	var ve cloudbill.ValidationError
	if errors.As(err, &ve) {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  []FieldError{{Field: ve.Field, Message: ve.Message}},
		}
	}

	switch {
	case cloudbill.IsValidation(err):
		return http.StatusBadRequest, errorPayload{Type: "validation_error", Message: err.Error()}
	case cloudbill.IsNotFound(err):
		return http.StatusNotFound, errorPayload{Type: "not_found", Message: err.Error()}
	case cloudbill.IsIntegrity(err), cloudbill.IsConflict(err):
		return http.StatusConflict, errorPayload{Type: "conflict", Message: err.Error()}
	}

	return http.StatusInternalServerError, errorPayload{
		Type:    "internal_error",
		Message: "internal server error",
	}
}

// jsonField turns a struct field name into its snake_case request name.
func jsonField(fe validator.FieldError) string {
	var b strings.Builder
	for i, r := range fe.Field() {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}

func bindingMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required"
	case "oneof":
		return "Must be one of: " + fe.Param()
	case "gte":
		return "Must be greater than or equal to " + fe.Param()
	default:
		return "Invalid value"
	}
}
