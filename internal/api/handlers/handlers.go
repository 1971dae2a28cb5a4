package handlers

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// NewValidator returns the validator shared by all handlers. Field names in
// messages come from the json tags.
func NewValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	// maxbytes limits the byte length, where max counts runes
	_ = v.RegisterValidation("maxbytes", func(fl validator.FieldLevel) bool {
		limit, err := strconv.Atoi(fl.Param())
		return err == nil && len(fl.Field().String()) <= limit
	})
	// PostgreSQL text columns cannot hold NUL
	_ = v.RegisterValidation("nonul", func(fl validator.FieldLevel) bool {
		return !strings.ContainsRune(fl.Field().String(), 0)
	})
	return v
}

// parseBody decodes the JSON body into out, runs the normalizers, then
// validates the result.
func parseBody(c *fiber.Ctx, v *validator.Validate, out interface{}, normalize ...func()) error {
	if err := c.BodyParser(out); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	for _, fn := range normalize {
		fn()
	}
	if err := v.Struct(out); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, validationMessage(err))
	}
	return nil
}

func validationMessage(err error) string {
	var errs validator.ValidationErrors
	if !errors.As(err, &errs) || len(errs) == 0 {
		return "Validation error"
	}
	fe := errs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("Validation error: %s is required", fe.Field())
	case "email":
		return fmt.Sprintf("Validation error: %s must be a valid email", fe.Field())
	case "max":
		return fmt.Sprintf("Validation error: %s must be at most %s characters", fe.Field(), fe.Param())
	case "maxbytes":
		return fmt.Sprintf("Validation error: %s must be at most %s bytes", fe.Field(), fe.Param())
	case "nonul":
		return fmt.Sprintf("Validation error: %s must not contain NUL characters", fe.Field())
	default:
		return fmt.Sprintf("Validation error: %s is invalid", fe.Field())
	}
}
