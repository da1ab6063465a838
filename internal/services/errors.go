package services

import "errors"

var (
	ErrValidation   = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidLogin = errors.New("invalid credentials")
	ErrTaken        = errors.New("username or email already registered")
)
