package internal

import (
	"fmt"
	"strings"
)

// MissingConfigurationError is returned when a required value is read
// before it has been set.
type MissingConfigurationError struct {
	Field string
}

func (e *MissingConfigurationError) Error() string {
	return fmt.Sprintf("required property %q has not been set", e.Field)
}

// ConfigurationError reports every missing required field of a repository
// configuration at once.
type ConfigurationError struct {
	Repository string
	Missing    []string
}

func (e *ConfigurationError) Error() string {
	if e.Repository == "" {
		return "required properties must be set on codeArtifact: " + strings.Join(e.Missing, ", ")
	}
	return fmt.Sprintf("required properties must be set on codeArtifact for repository %q: %s",
		e.Repository, strings.Join(e.Missing, ", "))
}

// SourceFailure records why one credential source could not supply
// credentials.
type SourceFailure struct {
	Source string
	Err    error
}

// CredentialsUnavailableError is returned when every source in a
// credential chain failed.
type CredentialsUnavailableError struct {
	Attempts []SourceFailure
}

func (e *CredentialsUnavailableError) Error() string {
	if len(e.Attempts) == 0 {
		return "unable to load AWS credentials: no credential sources configured"
	}
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %v", a.Source, a.Err))
	}
	return "unable to load AWS credentials from any source in the chain [" + strings.Join(parts, "; ") + "]"
}

// Unwrap returns the failure of the last attempted source.
func (e *CredentialsUnavailableError) Unwrap() error {
	if len(e.Attempts) == 0 {
		return nil
	}
	return e.Attempts[len(e.Attempts)-1].Err
}

// ServiceStartError is the cached startup failure of a proxy service. It
// is returned to every caller waiting on that service.
type ServiceStartError struct {
	Scope string
	Err   error
}

func (e *ServiceStartError) Error() string {
	return fmt.Sprintf("codeartifact proxy %q failed to start: %v", e.Scope, e.Err)
}

func (e *ServiceStartError) Unwrap() error { return e.Err }

// ShutdownError wraps a failure to stop a running proxy server.
type ShutdownError struct {
	Scope string
	Err   error
}

func (e *ShutdownError) Error() string {
	return fmt.Sprintf("codeartifact proxy %q failed to stop: %v", e.Scope, e.Err)
}

func (e *ShutdownError) Unwrap() error { return e.Err }
