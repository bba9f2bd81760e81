package auth

import "errors"

var (
	ErrUnauthorized = errors.New("auth: unauthorized")
	// ErrOfficeMismatch indicates the resource belongs to another office.
	ErrOfficeMismatch = errors.New("auth: office mismatch")
)
