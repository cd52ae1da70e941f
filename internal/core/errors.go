package core

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the add pipeline. Structured error types below
// wrap these so callers can branch with errors.Is and still recover
// detail with errors.As.
var (
	// ErrNameRequired is returned when a direct artifact source has no
	// accompanying metadata and the caller supplied no box name.
	ErrNameRequired = errors.New("box name required")

	// ErrServerNotSet is returned when a shorthand source is used with
	// no box server URL configured.
	ErrServerNotSet = errors.New("box server URL not set")

	// ErrShorthandNotFound is returned when a shorthand expands to a
	// document the box server does not have.
	ErrShorthandNotFound = errors.New("box not found on server")

	// ErrMetadataMultiURL is returned when a metadata document appears
	// among multiple sources. Metadata resolution supports exactly one
	// source.
	ErrMetadataMultiURL = errors.New("metadata document must be the only source")

	// ErrNameMismatch is returned when the metadata document declares a
	// name different from the requested one.
	ErrNameMismatch = errors.New("box name mismatch")

	// ErrNoMatchingVersion is returned when the version constraint
	// excludes every version that has at least one provider.
	ErrNoMatchingVersion = errors.New("no matching box version")

	// ErrNoMatchingProvider is returned when a version satisfied the
	// version constraint but the provider constraint eliminated all of
	// its providers.
	ErrNoMatchingProvider = errors.New("no matching box provider")

	// ErrAlreadyExists is returned when the box is already installed
	// and force was not requested.
	ErrAlreadyExists = errors.New("box already exists")

	// ErrMalformedMetadata is returned when a metadata document fails
	// to parse or lacks required fields. Not retryable.
	ErrMalformedMetadata = errors.New("malformed box metadata")
)

// NameMismatchError reports a metadata document whose declared name
// differs from the requested box name.
type NameMismatchError struct {
	Requested string
	Declared  string
}

func (e *NameMismatchError) Error() string {
	return fmt.Sprintf("box name mismatch: requested %q, metadata declares %q", e.Requested, e.Declared)
}

func (e *NameMismatchError) Unwrap() error {
	return ErrNameMismatch
}

// NoMatchingVersionError reports that no version satisfied the version
// constraint. Available lists the versions the document offered.
type NoMatchingVersionError struct {
	Constraint string
	Available  []string
}

func (e *NoMatchingVersionError) Error() string {
	if e.Constraint == "" {
		return "no box version with an available provider"
	}
	return fmt.Sprintf("no box version satisfies %q (available: %s)",
		e.Constraint, strings.Join(e.Available, ", "))
}

func (e *NoMatchingVersionError) Unwrap() error {
	return ErrNoMatchingVersion
}

// NoMatchingProviderError reports that a version matched the version
// constraint but none of its providers matched the provider constraint.
type NoMatchingProviderError struct {
	Version   string
	Requested []string
	Available []string
}

func (e *NoMatchingProviderError) Error() string {
	return fmt.Sprintf("version %s has no provider matching %s (available: %s)",
		e.Version, strings.Join(e.Requested, ", "), strings.Join(e.Available, ", "))
}

func (e *NoMatchingProviderError) Unwrap() error {
	return ErrNoMatchingProvider
}

// AlreadyExistsError reports a duplicate of an installed box.
type AlreadyExistsError struct {
	Name     string
	Provider string
	Version  string
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("box %s (%s, %s) is already installed; use force to replace it",
		e.Name, e.Provider, e.Version)
}

func (e *AlreadyExistsError) Unwrap() error {
	return ErrAlreadyExists
}

// ShorthandNotFoundError reports a shorthand whose expanded metadata URL
// the box server answered with not-found.
type ShorthandNotFoundError struct {
	Shorthand string
	URL       string
}

func (e *ShorthandNotFoundError) Error() string {
	return fmt.Sprintf("box %q not found on server (%s)", e.Shorthand, e.URL)
}

func (e *ShorthandNotFoundError) Unwrap() error {
	return ErrShorthandNotFound
}

// MalformedMetadataError reports an unparseable or incomplete metadata
// document.
type MalformedMetadataError struct {
	Source string
	Reason string
	Cause  error
}

func (e *MalformedMetadataError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("malformed box metadata from %s: %s: %v", e.Source, e.Reason, e.Cause)
	}
	return fmt.Sprintf("malformed box metadata from %s: %s", e.Source, e.Reason)
}

func (e *MalformedMetadataError) Unwrap() error {
	return ErrMalformedMetadata
}
