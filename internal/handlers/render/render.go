package render

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/nkiryanov/videohub/internal/apperrors"
)

const maxJSONBodyBytes = 1 << 20

const (
	ValidationFailedMessage = "Request validation failed"
	InternalErrorMessage    = "Internal server error"
)

var validate = validator.New()

func init() {
	configureValidator(validate)
}

type Struct any

// Success response envelope
type Response struct {
	StatusCode int    `json:"statusCode"`
	Data       any    `json:"data"`
	Message    string `json:"message"`
	Success    bool   `json:"success"`
}

// Error response envelope
// Errors is set on validation failures only: field name to message
type ErrorResponse struct {
	StatusCode int               `json:"statusCode"`
	Message    string            `json:"message"`
	Success    bool              `json:"success"`
	Errors     map[string]string `json:"errors,omitempty"`
}

// JSON renders data in success envelope
func JSON(w http.ResponseWriter, code int, data any, message string) {
	jsonWithStatus(w, Response{StatusCode: code, Data: data, Message: message, Success: true}, code)
}

// Render ServiceError
func ServiceError(w http.ResponseWriter, message string, code int) {
	jsonWithStatus(w, ErrorResponse{StatusCode: code, Message: message}, code)
}

// StatusOf maps application error kind to HTTP status code
func StatusOf(kind apperrors.Kind) int {
	switch kind {
	case apperrors.KindValidation:
		return http.StatusBadRequest
	case apperrors.KindAuthentication, apperrors.KindInvalidToken, apperrors.KindTokenReplay:
		return http.StatusUnauthorized
	case apperrors.KindAuthorization:
		return http.StatusForbidden
	case apperrors.KindNotFound:
		return http.StatusNotFound
	case apperrors.KindConflict:
		return http.StatusConflict
	case apperrors.KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Error renders any error returned by services
// Message of application errors is shown as is, everything else becomes generic internal error
func Error(w http.ResponseWriter, err error) {
	kind := apperrors.KindOf(err)
	message, ok := apperrors.Message(err)
	if !ok || kind == apperrors.KindInternal {
		message = InternalErrorMessage
	}

	ServiceError(w, message, StatusOf(kind))
}

// Render json DecodeError
func DecodeError(w http.ResponseWriter, err error) {
	var (
		message       string
		typeErr       *json.UnmarshalTypeError
		maxBytesError *http.MaxBytesError
	)

	// Try to provide more specific error message based on error type
	switch {
	case errors.As(err, &typeErr):
		message = fmt.Sprintf("Invalid data type for field '%s'", typeErr.Field)
	case errors.As(err, &maxBytesError):
		message = fmt.Sprintf("Request body is too large (maximum %d bytes)", maxBytesError.Limit)
	default:
		message = fmt.Sprintf("Failed to parse JSON: %s", err.Error())
	}

	ServiceError(w, message, http.StatusBadRequest)
}

// Render ValidationErrors
func ValidationErrors(w http.ResponseWriter, errs validator.ValidationErrors) {
	response := ErrorResponse{
		StatusCode: http.StatusBadRequest,
		Message:    ValidationFailedMessage,
		Errors:     make(map[string]string, len(errs)),
	}

	// Create user-friendly error messages based on validation tag
	for _, fieldError := range errs {
		var message string
		switch fieldError.Tag() {
		case "required", "required_without":
			message = "This field is required"
		case "min":
			message = fmt.Sprintf("Value is too short (minimum %s)", fieldError.Param())
		case "max":
			message = fmt.Sprintf("Value is too long (maximum %s)", fieldError.Param())
		case "email":
			message = "Invalid email address"
		default:
			message = "Invalid value"
		}

		response.Errors[fieldError.Field()] = message
	}

	jsonWithStatus(w, response, http.StatusBadRequest)
}

// BindAndValidate decodes JSON request body into type T and validates it using struct tags.
// Returns the decoded value and writes appropriate error responses for decoding or validation failures.
func BindAndValidate[T Struct](w http.ResponseWriter, r *http.Request) (T, error) {
	var value T

	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)).Decode(&value)
	if err != nil {
		DecodeError(w, err)
		return value, err
	}

	return value, Validate(w, value)
}

// BindOptional decodes JSON request body into type T if there is one
// Empty body leaves zero T; decoding failures are written as error responses.
func BindOptional[T Struct](w http.ResponseWriter, r *http.Request) (T, error) {
	var value T

	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)).Decode(&value)
	switch {
	case err == nil, errors.Is(err, io.EOF):
		return value, nil
	default:
		DecodeError(w, err)
		return value, err
	}
}

// Validate checks value filled by hand (e.g. from multipart form) using struct tags
// Writes validation error response on failure
func Validate(w http.ResponseWriter, value any) error {
	err := validate.Struct(value)
	if err == nil {
		return nil
	}

	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		ServiceError(w, InternalErrorMessage, http.StatusInternalServerError)
		return err
	}

	ValidationErrors(w, errs)
	return err
}

// renderJSONWithStatus sends data as json and enforces status code
func jsonWithStatus(w http.ResponseWriter, data any, code int) {
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)

	if err := enc.Encode(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_, _ = w.Write(buf.Bytes())
}
