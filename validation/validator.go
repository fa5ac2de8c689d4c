package validation

import (
	"fmt"
	"strings"
	"time"

	"github.com/kbukum/consulkit/errors"
)

// FieldError is one rejected field of a configuration section.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Validator checks the fields of one configuration section by hand, for
// rules a struct tag cannot express. Problems accumulate and Err reports
// all of them at once.
type Validator struct {
	section  string
	problems []FieldError
}

// New starts checking section, e.g. "consul".
func New(section string) *Validator {
	return &Validator{section: section}
}

// Check records message against field unless ok holds.
func (v *Validator) Check(ok bool, field, message string) *Validator {
	if !ok {
		v.problems = append(v.problems, FieldError{Field: field, Message: message})
	}
	return v
}

// OneOf rejects a value outside allowed. An empty value is left to the
// section defaults and passes.
func (v *Validator) OneOf(field, value string, allowed ...string) *Validator {
	if value == "" {
		return v
	}
	for _, a := range allowed {
		if value == a {
			return v
		}
	}
	return v.Check(false, field, fmt.Sprintf("must be one of %s, got %q", strings.Join(allowed, ", "), value))
}

// NotNegative rejects a negative duration. Zero usually means "use the
// default" and passes.
func (v *Validator) NotNegative(field string, d time.Duration) *Validator {
	return v.Check(d >= 0, field, "must not be negative")
}

// Positive rejects a zero or negative duration.
func (v *Validator) Positive(field string, d time.Duration) *Validator {
	return v.Check(d > 0, field, "must be positive")
}

// AtLeast rejects n below minVal.
func (v *Validator) AtLeast(field string, n, minVal int) *Validator {
	return v.Check(n >= minVal, field, fmt.Sprintf("must be at least %d", minVal))
}

// Paired rejects one of two fields set without the other, like a client
// certificate without its key.
func (v *Validator) Paired(fieldA, a, fieldB, b string) *Validator {
	if (a == "") == (b == "") {
		return v
	}
	return v.Check(false, fieldA, fmt.Sprintf("must be set together with %s", fieldB))
}

// Problems returns the fields rejected so far.
func (v *Validator) Problems() []FieldError {
	return v.problems
}

// Err returns nil when every check passed, otherwise an INVALID_CONFIG
// error naming the section and carrying the rejected fields in Details.
func (v *Validator) Err() error {
	if len(v.problems) == 0 {
		return nil
	}
	reasons := make([]string, len(v.problems))
	for i, p := range v.problems {
		reasons[i] = p.Field + ": " + p.Message
	}
	appErr := errors.InvalidConfig(v.section, strings.Join(reasons, "; "))
	appErr.Details["fields"] = v.problems
	return appErr
}
