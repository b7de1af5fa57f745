package validate

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// v is the shared validator instance behind Struct. Custom rules, if any,
// must be registered in an init() before the first call.
var v = validator.New()

// Struct runs the validate tags on s and flattens every violation into one
// readable error, suitable for a 422 response body.
func Struct(s interface{}) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}
	ve, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	parts := make([]string, 0, len(ve))
	for _, fe := range ve {
		parts = append(parts, fmt.Sprintf("%s failed on %s", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("validation: %s", strings.Join(parts, "; "))
}
