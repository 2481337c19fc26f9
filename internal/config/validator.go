package config

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "engine.dtmf_rate")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// userRegex validates the user part of an address
var userRegex = regexp.MustCompile(`^[a-zA-Z0-9._+-]+$`)

// maxEchoTailMs matches the limit of the :echo command
const maxEchoTailMs = 500

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, validateAccount("account", c.Account)...)
	errors = append(errors, c.validateAccounts()...)
	errors = append(errors, c.validateEngine()...)
	errors = append(errors, c.validateLogging()...)
	errors = append(errors, c.validateShutdown()...)

	return errors
}

func validateAccount(prefix string, a AccountConfig) []ValidationError {
	var errors []ValidationError

	if !userRegex.MatchString(a.User) {
		errors = append(errors, ValidationError{
			Field:   prefix + ".user",
			Value:   a.User,
			Message: "must be a non-empty user name of letters, digits, '.', '_', '+' or '-'",
		})
	}
	if a.Domain == "" || strings.ContainsAny(a.Domain, "@: ") {
		errors = append(errors, ValidationError{
			Field:   prefix + ".domain",
			Value:   a.Domain,
			Message: "must be a host name without user or port",
		})
	}
	if a.Port < 0 || a.Port > 65535 {
		errors = append(errors, ValidationError{
			Field:   prefix + ".port",
			Value:   a.Port,
			Message: "must be between 0 and 65535",
		})
	}
	return errors
}

// validateAccounts validates the extra accounts and their IDs
func (c *Config) validateAccounts() []ValidationError {
	var errors []ValidationError

	seen := map[string]bool{c.Account.Key(): true}
	for i, a := range c.Accounts {
		prefix := fmt.Sprintf("accounts[%d]", i)
		errors = append(errors, validateAccount(prefix, a)...)
		if seen[a.Key()] {
			errors = append(errors, ValidationError{
				Field:   prefix + ".id",
				Value:   a.Key(),
				Message: "duplicate account",
			})
		}
		seen[a.Key()] = true
	}
	return errors
}

// validateEngine validates the EngineConfig
func (c *Config) validateEngine() []ValidationError {
	var errors []ValidationError

	if c.Engine.DTMFRate <= 0 {
		errors = append(errors, ValidationError{
			Field:   "engine.dtmf_rate",
			Value:   c.Engine.DTMFRate,
			Message: "must be positive",
		})
	}
	if c.Engine.EchoTailMs < 0 || c.Engine.EchoTailMs > maxEchoTailMs {
		errors = append(errors, ValidationError{
			Field:   "engine.echo_tail_ms",
			Value:   c.Engine.EchoTailMs,
			Message: fmt.Sprintf("must be between 0 and %d", maxEchoTailMs),
		})
	}
	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), strings.ToLower(c.Logging.Level)) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}
	return errors
}

// validateShutdown validates the ShutdownConfig
func (c *Config) validateShutdown() []ValidationError {
	var errors []ValidationError

	if c.Shutdown.SessionTimeout <= 0 {
		errors = append(errors, ValidationError{
			Field:   "shutdown.session_timeout",
			Value:   c.Shutdown.SessionTimeout,
			Message: "must be positive",
		})
	}
	if c.Shutdown.UnregisterTimeout <= 0 {
		errors = append(errors, ValidationError{
			Field:   "shutdown.unregister_timeout",
			Value:   c.Shutdown.UnregisterTimeout,
			Message: "must be positive",
		})
	}
	if c.Shutdown.CalmingDelay < 0 {
		errors = append(errors, ValidationError{
			Field:   "shutdown.calming_delay",
			Value:   c.Shutdown.CalmingDelay,
			Message: "must be non-negative",
		})
	}
	return errors
}
