package service

import "errors"

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrRoomNotFound         = errors.New("room not found")
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrRegistrationFailed   = errors.New("registration failed: username or email already exists")
	ErrForbidden            = errors.New("operation not permitted for this user")
	ErrUpstreamFetch        = errors.New("verse data source unavailable or inconsistent")
	ErrInternalServer       = errors.New("internal server error")
)
