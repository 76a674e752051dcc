// Package validation wraps go-playground/validator and reports failures as
// INVALID_INPUT AppErrors whose details list every failing field.
//
//	type Registration struct {
//	    Name string `mapstructure:"name" validate:"required"`
//	    Port int    `mapstructure:"port" validate:"gte=1,lte=65535"`
//	}
//	err := validation.Validate(reg)
package validation
