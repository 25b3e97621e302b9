package api

import (
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/codeready-toolchain/execution-core/pkg/models"
)

var registerOnce sync.Once

// registerValidations installs the domain-value validators the request
// structs reference in their binding tags. gin's binding engine is
// go-playground/validator, so a malformed sla_class or execution_mode is
// rejected at bind time with a 400 instead of flowing into the front door
// as an unknown enum value.
func registerValidations() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = v.RegisterValidation("slaclass", func(fl validator.FieldLevel) bool {
			switch models.SLAClass(fl.Field().String()) {
			case "", models.SLAFast, models.SLAMedium, models.SLALong:
				return true
			default:
				return false
			}
		})
		_ = v.RegisterValidation("execmode", func(fl validator.FieldLevel) bool {
			switch models.ExecutionMode(fl.Field().String()) {
			case "", models.ModeInline, models.ModeQueued:
				return true
			default:
				return false
			}
		})
		_ = v.RegisterValidation("priority", func(fl validator.FieldLevel) bool {
			p := fl.Field().Int()
			return p >= 0 && p <= 10
		})
	})
}
