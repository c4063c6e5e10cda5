package errors

import "errors"

// Client errors.
var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUnauthorized       = errors.New("token rejected after refresh")
)

// Server/transport errors.
var (
	ErrProtocol = errors.New("unexpected API response shape")
)

// Vault errors.
var (
	ErrNotFound = errors.New("image file not found in vault")
)
