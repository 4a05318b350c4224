package services

import "testquest-backend/internal/session"

// ValidationError carries per-field messages keyed by JSON field name.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string { return "Validation error" }
func (e *ValidationError) Unwrap() error { return session.ErrInvalidCredentials }

type ConflictError struct{ Message string }

func (e *ConflictError) Error() string { return e.Message }
func (e *ConflictError) Unwrap() error { return session.ErrInvalidCredentials }

type UnauthorizedError struct{ Message string }

func (e *UnauthorizedError) Error() string { return e.Message }
func (e *UnauthorizedError) Unwrap() error { return session.ErrInvalidCredentials }

type NotFoundError struct{ Message string }

func (e *NotFoundError) Error() string { return e.Message }
