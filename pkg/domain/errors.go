package domain

import "errors"

// Common domain errors
var (
	// ErrNotFound is returned when a requested resource is not found
	ErrNotFound = errors.New("resource not found")
	// ErrAlreadyExists is returned when trying to create a resource that already exists
	ErrAlreadyExists = errors.New("resource already exists")
	// ErrValidation is returned when input validation fails
	ErrValidation = errors.New("validation error")
	// ErrInvalidTransition is returned when an entity is not in the state an operation expects
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrUnknownTenant is returned when a tenant cannot be resolved by the directory
	ErrUnknownTenant = errors.New("unknown tenant")
	// ErrFeatureDisabled is returned when a tenant feature flag is off
	ErrFeatureDisabled = errors.New("feature disabled for tenant")
)
