package service

import "errors"

var (
	// ErrDuplicateUser indicates the username or email is already registered.
	ErrDuplicateUser = errors.New("username or email already registered")
	// ErrInvalidCredentials is returned for any failed login.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidToken covers malformed, tampered and expired tokens alike.
	ErrInvalidToken = errors.New("invalid or expired token")
	// ErrDetectionNotFound indicates the record does not exist for the caller.
	ErrDetectionNotFound = errors.New("detection not found")
	// ErrFileRequired indicates a submission arrived without an artifact.
	ErrFileRequired = errors.New("file is required")
	// ErrUploadTooLarge indicates the payload exceeded the configured limit.
	ErrUploadTooLarge = errors.New("file exceeds maximum allowed size")
	// ErrUploadTypeNotAllowed indicates the MIME type is not permitted.
	ErrUploadTypeNotAllowed = errors.New("file type not allowed")
	// ErrInvalidLimit indicates a negative or malformed page size.
	ErrInvalidLimit = errors.New("limit must be a non-negative integer")
	// ErrAnalysisFailed wraps analyzer and result persistence failures.
	ErrAnalysisFailed = errors.New("analysis failed")
)
