package handlers

import (
	"errors"
	"fmt"
	"mime/multipart"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// MaxDisplayNameLength caps the optional name shown for an attachment.
const MaxDisplayNameLength = 120

// CustomValidator implements echo.Validator. Field errors are reported by
// their form name, so messages match what the client posted.
type CustomValidator struct {
	validator *validator.Validate
}

// NewValidator creates a new CustomValidator.
func NewValidator() *CustomValidator {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("form"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return &CustomValidator{validator: v}
}

// Validate implements the echo.Validator interface.
func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}

// validationMessage turns the first field error into text for the client.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "Invalid request."
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("The %s field is required.", fe.Field())
	case "max":
		return fmt.Sprintf("The %s field must be at most %s characters.", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("The %s field is invalid.", fe.Field())
	}
}

// UploadRequest is the multipart form posted to /upload. Name, when set,
// replaces the client's filename in the attachment shown to the room.
type UploadRequest struct {
	File *multipart.FileHeader `form:"file" validate:"required"`
	Name string                `form:"name" validate:"omitempty,max=120"`
}

// DisplayName returns the name to show for the attachment.
func (r *UploadRequest) DisplayName() string {
	if name := strings.TrimSpace(r.Name); name != "" {
		return name
	}
	return r.File.Filename
}
