package domain

import (
	"errors"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// validatorInstance is a package-level validator instance.
// Using a single instance is more efficient as it caches struct information.
var validatorInstance = validator.New()

// init registers custom validation functions with the validator instance.
func init() {
	// Register the safepath validator to prevent directory traversal attacks.
	_ = validatorInstance.RegisterValidation("safepath", validateSafePath)
}

// validateSafePath ensures the path doesn't contain any directory traversal attempts.
func validateSafePath(fl validator.FieldLevel) bool {
	path := fl.Field().String()

	if strings.Contains(path, "..") ||
		strings.Contains(path, "~") ||
		strings.HasPrefix(path, "/") ||
		strings.Contains(path, "\\") {
		return false
	}

	// Clean the path and check if it still matches the original.
	// This catches more subtle issues like "uploads/./../file".
	return path == filepath.Clean(path)
}

func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	return errors.As(err, target)
}

// File represents the metadata for an uploaded resource. The content lives in
// the configured storage backend under StoragePath; messages reference it by
// URL only.
type File struct {
	Filename    string    `json:"name" validate:"required,min=1,max=255"`
	MIMEType    string    `json:"mimeType" validate:"required"`
	Size        int64     `json:"size" validate:"gte=0"`
	StoragePath string    `json:"-" validate:"required,safepath"`
	URL         string    `json:"url"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Validate runs validation checks on the File struct using the defined tags.
func (f *File) Validate() error {
	return validatorInstance.Struct(f)
}

// Media returns the message content that references this file.
func (f *File) Media() *Media {
	return &Media{URL: f.URL, Name: f.Filename, MimeType: f.MIMEType, Size: f.Size}
}
