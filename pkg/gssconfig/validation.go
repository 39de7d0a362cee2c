package gssconfig

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks cfg against its struct tags (oneof, required, ranges)
// after defaults have been applied.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("gssconfig: %w", err)
	}
	if len(cfg.Mechanisms) == 0 {
		return fmt.Errorf("gssconfig: mechanisms must not be empty")
	}
	return nil
}
