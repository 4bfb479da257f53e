package security

import "fmt"

// ConfigError wraps a failure around one security document.
type ConfigError struct {
	Op  string
	URI string
	Err error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("security config: %s %s: %v", e.Op, e.URI, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// UnsupportedSchemeError reports a URI scheme the implementation does not
// handle.
type UnsupportedSchemeError struct {
	Scheme string
}

func (e *UnsupportedSchemeError) Error() string {
	return fmt.Sprintf("unsupported URI scheme %q", e.Scheme)
}
