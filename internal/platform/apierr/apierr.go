// Package apierr holds the error model shared by every handler: a typed code,
// its HTTP status and the JSON envelope written on failure.
package apierr

import (
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
)

type Code string

const (
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	CodeNotFound        Code = "NOT_FOUND"
	CodeConflict        Code = "CONFLICT" // 貸出済み・在庫切れなど
	CodeUnauthorized    Code = "UNAUTHORIZED"
	CodeForbidden       Code = "FORBIDDEN"
	CodeTooManyRequests Code = "RESOURCE_EXHAUSTED"
	CodeInternal        Code = "INTERNAL"
)

// RequestIDKey is the gin context key the request-id middleware stores under.
const RequestIDKey = "request_id"

const internalMessage = "internal server error"

type APIError struct {
	Code    Code
	Message string
	Err     error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *APIError) Unwrap() error { return e.Err }

func ErrInvalid(msg string) *APIError      { return &APIError{Code: CodeInvalidArgument, Message: msg} }
func ErrNotFound(msg string) *APIError     { return &APIError{Code: CodeNotFound, Message: msg} }
func ErrConflict(msg string) *APIError     { return &APIError{Code: CodeConflict, Message: msg} }
func ErrUnauthorized(msg string) *APIError { return &APIError{Code: CodeUnauthorized, Message: msg} }
func ErrForbidden(msg string) *APIError    { return &APIError{Code: CodeForbidden, Message: msg} }

// ErrInternal keeps err for the log; only msg reaches the client.
func ErrInternal(msg string, err error) *APIError {
	return &APIError{Code: CodeInternal, Message: msg, Err: err}
}

// CodeOf returns the code carried by err, or CodeInternal for anything else.
func CodeOf(err error) Code {
	var api *APIError
	if errors.As(err, &api) {
		return api.Code
	}
	return CodeInternal
}

func IsNotFound(err error) bool { return err != nil && CodeOf(err) == CodeNotFound }

// 競合はクライアント側の問題として 400 で返す
func ToHTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeInvalidArgument, CodeConflict:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeTooManyRequests:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

type ErrorDTO struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Error   struct {
		Code    Code   `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func Body(code Code, msg string) ErrorDTO {
	e := ErrorDTO{Message: msg}
	e.Error.Code = code
	e.Error.Message = msg
	return e
}

// FromErr renders err for the client. Unknown errors never expose their text.
func FromErr(err error) ErrorDTO {
	var api *APIError
	if errors.As(err, &api) {
		return Body(api.Code, api.Message)
	}
	return Body(CodeInternal, internalMessage)
}

// Respond writes err as the JSON error envelope and aborts the chain.
func Respond(c *gin.Context, err error) {
	status := ToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		log.Printf("[ERROR] %s %s request_id=%s: %v", c.Request.Method, c.FullPath(), c.GetString(RequestIDKey), err)
	}
	c.AbortWithStatusJSON(status, FromErr(err))
}

// BadJSON is the response for a body that failed to bind.
func BadJSON(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusBadRequest, Body(CodeInvalidArgument, "invalid json"))
}
