package apperrors

import (
	"errors"
)

// Kind classifies application errors
// Handlers map it to the HTTP status code, services never deal with status codes
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindAuthentication
	KindAuthorization
	KindNotFound
	KindConflict
	KindInvalidToken
	KindTokenReplay
	KindRateLimited
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindAuthorization:
		return "authorization"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindInvalidToken:
		return "invalid_token"
	case KindTokenReplay:
		return "token_replay"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "internal"
	}
}

// Error is a typed application error
// Message is safe to show to the API caller
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// KindOf returns kind of the first *Error in the chain or KindInternal if there is none
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// Message returns caller-safe message of the first *Error in the chain
func Message(err error) (string, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Message, true
	}
	return "", false
}

var (
	ErrUserAlreadyExists = New(KindConflict, "User with email or username already exists")
	ErrUserNotFound      = New(KindNotFound, "User not found")

	// Same error for unknown user and wrong password, so callers can't enumerate users
	ErrInvalidCredentials = New(KindAuthentication, "Invalid user credentials")
	ErrUnauthorized       = New(KindAuthentication, "Unauthorized request")
	ErrInvalidAccessToken = New(KindAuthentication, "Invalid access token")
	ErrWrongPassword      = New(KindAuthentication, "Invalid old password")
	ErrForbidden          = New(KindAuthorization, "Forbidden")

	ErrInvalidToken = New(KindInvalidToken, "Invalid refresh token")
	ErrTokenReplay  = New(KindTokenReplay, "Refresh token has been rotated or revoked")

	ErrTooManyAttempts = New(KindRateLimited, "Too many login attempts, try again later")

	ErrAvatarRequired = New(KindValidation, "Avatar is required")
	ErrEmptyUpdate    = New(KindValidation, "At least one field is required")
)
