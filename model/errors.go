package model

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorClass string

const (
	ClassInvalidReference       ErrorClass = "InvalidReference"
	ClassUpstreamNotFound       ErrorClass = "UpstreamNotFound"
	ClassUpstreamBlocked        ErrorClass = "UpstreamBlocked"
	ClassUpstreamTransient      ErrorClass = "UpstreamTransient"
	ClassOriginUnavailable      ErrorClass = "OriginUnavailable"
	ClassOriginRejected         ErrorClass = "OriginRejected"
	ClassMalformedStreamRequest ErrorClass = "MalformedStreamRequest"
	ClassUnknown                ErrorClass = "Unknown"
)

// HTTPStatus maps an error class onto the status returned before a response starts streaming.
func (c ErrorClass) HTTPStatus() int {
	switch c {
	case ClassInvalidReference, ClassMalformedStreamRequest:
		return http.StatusBadRequest
	case ClassUpstreamNotFound:
		return http.StatusNotFound
	case ClassUpstreamBlocked, ClassUpstreamTransient, ClassOriginUnavailable, ClassOriginRejected:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error is a classified failure anywhere in the resolve/stream pipeline.
type Error struct {
	Class   ErrorClass
	Message string
	Err     error
}

func NewError(class ErrorClass, message string, cause error) *Error {
	return &Error{Class: class, Message: message, Err: cause}
}

func Errorf(class ErrorClass, format string, args ...interface{}) *Error {
	return &Error{Class: class, Message: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Class, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Class, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ClassOf returns the class of the first *Error in err's chain, or ClassUnknown.
func ClassOf(err error) ErrorClass {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Class
	}
	return ClassUnknown
}

// PublicMessage is the text safe to show a caller: the classified message without the cause.
func PublicMessage(err error) string {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Message
	}
	return "an unexpected server error occurred"
}
