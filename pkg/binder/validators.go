package binder

import (
	"path/filepath"

	"github.com/go-playground/validator/v10"
)

// absPathValidator accepts absolute, already-clean filesystem paths.
func absPathValidator(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	return filepath.IsAbs(value) && filepath.Clean(value) == value
}
