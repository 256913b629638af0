package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrMissingCredential is wrapped by the *Error returned when an API key is absent.
var ErrMissingCredential = errors.New("API key not found")

// Error is a configuration error. It is fatal and raised before any network activity.
type Error struct {
	Field string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("config %s: %v", e.Field, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// CredentialProvider supplies the API key stored under name.
type CredentialProvider interface {
	APIKey(name string) (string, error)
}

// EnvCredentials reads API keys from the process environment.
type EnvCredentials struct{}

func (EnvCredentials) APIKey(name string) (string, error) {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return "", &Error{
			Field: name,
			Err:   fmt.Errorf("%w: set %s in the environment", ErrMissingCredential, name),
		}
	}
	return v, nil
}

// StaticCredentials serves keys from a fixed map.
type StaticCredentials map[string]string

func (s StaticCredentials) APIKey(name string) (string, error) {
	if v := s[name]; v != "" {
		return v, nil
	}
	return "", &Error{Field: name, Err: ErrMissingCredential}
}
