package dto

import (
	"errors"
	"regexp"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// Branch names end up in URLs and blob keys, so they are restricted to
// short lowercase slugs.
var branchNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,62}$`)

// RegisterValidations installs the custom binding tags used by the upload
// DTOs. Call once at startup before routes are served.
func RegisterValidations() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return errors.New("unexpected binding validator engine")
	}
	return v.RegisterValidation("branchname", func(fl validator.FieldLevel) bool {
		return branchNamePattern.MatchString(fl.Field().String())
	})
}
