package errors

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mantonx/soundcrowd/internal/logger"
)

// APIError represents a structured error with HTTP context
type APIError struct {
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Context    map[string]interface{} `json:"context,omitempty"`
	Cause      error                  `json:"-"`
	HTTPStatus int                    `json:"-"`
}

func (e *APIError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *APIError) Unwrap() error {
	return e.Cause
}

// ToGinResponse sends the error as a standardized JSON response
func (e *APIError) ToGinResponse(c *gin.Context) {
	statusCode := e.HTTPStatus
	if statusCode == 0 {
		statusCode = http.StatusInternalServerError
	}

	response := gin.H{
		"error": e.Message,
		"code":  e.Code,
	}
	if len(e.Context) > 0 {
		response["details"] = e.Context
	}

	logger.Error("HTTP error response",
		"status", statusCode,
		"code", e.Code,
		"message", e.Message,
		"path", c.Request.URL.Path,
		"method", c.Request.Method)

	c.JSON(statusCode, response)
}

func NewValidationError(message string, field string) *APIError {
	return &APIError{
		Code:       "VALIDATION_ERROR",
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
		Context:    map[string]interface{}{"field": field},
	}
}

func NewNotFoundError(resource string, id string) *APIError {
	return &APIError{
		Code:       "NOT_FOUND",
		Message:    resource + " not found",
		HTTPStatus: http.StatusNotFound,
		Context:    map[string]interface{}{"resource": resource, "id": id},
	}
}

// FromError maps a classified failure onto an API error.
func FromError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	e := &APIError{Message: err.Error(), Cause: err}
	var typed *Error
	if errors.As(err, &typed) && typed.Subject != "" {
		e.Context = map[string]interface{}{"subject": typed.Subject, "operation": typed.Op}
	}

	switch {
	case errors.Is(err, ErrItemNotFound), errors.Is(err, ErrPluginNotFound), errors.Is(err, ErrUnknownCategory):
		e.Code, e.HTTPStatus = "NOT_FOUND", http.StatusNotFound
		return e
	case errors.Is(err, ErrCallbackTimeout):
		e.Code, e.HTTPStatus = "PLUGIN_TIMEOUT", http.StatusGatewayTimeout
		return e
	case errors.Is(err, ErrStaleResult):
		e.Code, e.HTTPStatus = "STALE_RESULT", http.StatusConflict
		return e
	}

	switch KindOf(err) {
	case KindValidation:
		e.Code, e.HTTPStatus = "VALIDATION_ERROR", http.StatusBadRequest
	case KindIngestion, KindResolution, KindBridge, KindContract:
		e.Code, e.HTTPStatus = "PLUGIN_ERROR", http.StatusBadGateway
	case KindStorage:
		e.Code, e.HTTPStatus = "DATABASE_ERROR", http.StatusInternalServerError
	default:
		e.Code, e.HTTPStatus = "INTERNAL_ERROR", http.StatusInternalServerError
	}
	return e
}

// RespondWithError sends any error as a standardized JSON response.
func RespondWithError(c *gin.Context, err error) {
	FromError(err).ToGinResponse(c)
}

// HandleValidationError sends a validation error response
func HandleValidationError(c *gin.Context, message string, field string) {
	NewValidationError(message, field).ToGinResponse(c)
}

// HandleNotFound sends a not found error response
func HandleNotFound(c *gin.Context, resource string, id string) {
	NewNotFoundError(resource, id).ToGinResponse(c)
}
