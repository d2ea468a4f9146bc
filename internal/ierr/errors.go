package ierr

import "errors"

var (
	ErrValidation     = errors.New("validation failed")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrUpdateFailed   = errors.New("resource update failed")
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource conflict")
	ErrInternalServer = errors.New("internal server error")

	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrTokenParsingFailed = errors.New("failed to parse token")
	ErrTokenInvalidClaims = errors.New("token contains invalid claims")

	ErrAPIKeyNotFound  = errors.New("api key not found")
	ErrAPINotFound     = errors.New("api not found")
	ErrDeleteProtected = errors.New("key has delete protection, use force=true to override")

	ErrRateLimited = errors.New("too many requests")
)
