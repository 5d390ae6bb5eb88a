package handlers

import (
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/arklim/payroll-access/internal/core/domain"
)

var registerOnce sync.Once

// RegisterValidators installs the custom binding tags used by request models.
func RegisterValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = v.RegisterValidation("permission", func(fl validator.FieldLevel) bool {
			return domain.ValidPermissionName(fl.Field().String())
		})
	})
}
