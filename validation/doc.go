// Package validation validates configuration and input structs.
//
// Struct tag validation uses go-playground/validator and reports failures as
// an *errors.AppError with code INVALID_INPUT. Field names in messages come
// from the mapstructure tag, then the json tag, so they match the keys a user
// wrote in config.yml.
//
//	type Options struct {
//	    Scheme string `mapstructure:"Scheme" validate:"oneof=http https"`
//	    Port   int    `mapstructure:"Port" validate:"gte=0,lte=65535"`
//	}
//	err := validation.Validate(opts)
//
// Rules a tag cannot express go through the programmatic Validator, which
// reports every rejected field of a section as one INVALID_CONFIG error:
//
//	err := validation.New("consul").
//	    OneOf("scheme", cfg.Scheme, "http", "https").
//	    NotNegative("wait_time", cfg.WaitTime).
//	    Err()
package validation
