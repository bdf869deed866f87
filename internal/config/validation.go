package config

import (
	"fmt"
	"net"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ValidationError is a single configuration problem.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation failed for %s: %s", e.Field, e.Message)
}

// ValidationErrors collects every problem found by Validate.
type ValidationErrors []ValidationError

func (errs ValidationErrors) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "configuration validation failed with %d error(s):", len(errs))
	for i, err := range errs {
		fmt.Fprintf(&sb, "\n  %d. %s", i+1, err.Error())
	}
	return sb.String()
}

type validator struct {
	errs ValidationErrors
}

func (v *validator) addError(field, message string) {
	v.errs = append(v.errs, ValidationError{Field: field, Message: message})
}

func (v *validator) validateAddr(field, value string) {
	if value == "" {
		v.addError(field, "required")
		return
	}
	_, portStr, err := net.SplitHostPort(value)
	if err != nil {
		v.addError(field, fmt.Sprintf("must be host:port: %v", err))
		return
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		v.addError(field, "port must be a number")
		return
	}
	if port < 1 || port > 65535 {
		v.addError(field, "port must be between 1 and 65535")
	}
}

func (v *validator) validateDuration(field, value string) {
	d, err := time.ParseDuration(value)
	if err != nil {
		v.addError(field, fmt.Sprintf("must be a valid duration (e.g. 30s, 10m): %v", err))
		return
	}
	if d < 0 {
		v.addError(field, "must not be negative")
	}
}

func (v *validator) validateEnum(field, value string, allowed []string) {
	for _, opt := range allowed {
		if value == opt {
			return
		}
	}
	v.addError(field, fmt.Sprintf("must be one of: %s (got: %s)", strings.Join(allowed, ", "), value))
}

func (v *validator) validateURL(field, value string) {
	if value == "" {
		return
	}
	parsed, err := url.Parse(value)
	if err != nil {
		v.addError(field, fmt.Sprintf("invalid URL format: %v", err))
		return
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		v.addError(field, "URL must use http or https scheme")
	}
}

// Validate checks every field and returns ValidationErrors when any is invalid.
func (c *Config) Validate() error {
	v := &validator{}

	v.validateAddr("addr", c.Addr)

	switch {
	case strings.TrimSpace(c.TempPath) == "":
		v.addError("temp_path", "required")
	case filepath.Clean(c.TempPath) == string(filepath.Separator):
		v.addError("temp_path", "must not be the filesystem root")
	}

	if c.RemovalDelayMs <= 0 {
		v.addError("removal_delay_ms", "must be a positive number of milliseconds")
	}
	if c.ShutdownDelaySec < 0 {
		v.addError("shutdown_delay_s", "must not be negative")
	}

	v.validateDuration("cleanup.interval", c.Cleanup.Interval)
	v.validateDuration("cleanup.max_age", c.Cleanup.MaxAge)
	if d, err := time.ParseDuration(c.Cleanup.Interval); err == nil && d == 0 {
		v.addError("cleanup.interval", "must be greater than zero")
	}

	v.validateURL("root_redirect", c.RootRedirect)
	v.validateEnum("log.level", c.Log.Level, []string{"debug", "info", "warn", "error"})
	v.validateEnum("log.format", c.Log.Format, []string{"json", "console"})

	if len(v.errs) > 0 {
		return v.errs
	}
	return nil
}
