package service

import (
	"strings"

	"github.com/pkg/errors"
)

// ErrServiceNotFound is the cause of a ConfigError raised when the service
// path holds no service definition.
var ErrServiceNotFound = errors.New("service definition not found")

// ConfigError reports a missing or malformed service definition.
type ConfigError struct {
	Msg string
	Err error
}

func (e *ConfigError) Error() string {
	if e.Err == nil {
		return e.Msg
	}
	return e.Msg + ": " + e.Err.Error()
}

// Unwrap supports errors.Is and errors.As from the standard library.
// ConfigError has no Cause method, so pkg/errors.Cause stops at it.
func (e *ConfigError) Unwrap() error { return e.Err }

// ValidationError reports a service definition that failed validation.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "service validation failed: " + strings.Join(e.Problems, "; ")
}

// SplitHandler splits a handler such as "src/handler.hello" into its
// module path and export name.
func SplitHandler(handler string) (module, export string, err error) {
	i := strings.LastIndex(handler, ".")
	if i <= 0 || i == len(handler)-1 {
		return "", "", &ConfigError{Msg: "malformed handler " + quote(handler) + ", want <module>.<export>"}
	}
	module, export = handler[:i], handler[i+1:]
	if strings.ContainsAny(export, "/\\") {
		return "", "", &ConfigError{Msg: "malformed handler " + quote(handler) + ", want <module>.<export>"}
	}
	return module, export, nil
}

func quote(s string) string { return "\"" + s + "\"" }
