package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation                  Code = "VALIDATION_ERROR"
	CodeUnauthorized                Code = "UNAUTHORIZED"
	CodeNotFound                    Code = "NOT_FOUND"
	CodeMethodNotAllowed            Code = "METHOD_NOT_ALLOWED"
	CodeRouteNotFound               Code = "ROUTE_NOT_FOUND"
	CodeInvalidPlan                 Code = "INVALID_PLAN"
	CodeAlreadySubscribed           Code = "ALREADY_SUBSCRIBED"
	CodeSamePlan                    Code = "SAME_PLAN"
	CodeNotScheduledForCancellation Code = "NOT_SCHEDULED_FOR_CANCELLATION"
	CodeInvalidSignature            Code = "INVALID_SIGNATURE"
	CodeProvider                    Code = "PROVIDER_ERROR"
	CodePersistence                 Code = "PERSISTENCE_ERROR"
	CodeInconsistentState           Code = "INCONSISTENT_STATE"
	CodeInternal                    Code = "INTERNAL_ERROR"
	CodeDependency                  Code = "DEPENDENCY_ERROR"
)

type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
	// ExposeMessage surfaces the error's own message instead of PublicMessage.
	ExposeMessage bool
}

var metadataByCode = map[Code]Metadata{
	CodeValidation: {
		HTTPStatus:     http.StatusBadRequest,
		PublicMessage:  "validation failed",
		DetailsAllowed: true,
		ExposeMessage:  true,
	},
	CodeUnauthorized: {
		HTTPStatus:    http.StatusUnauthorized,
		PublicMessage: "authentication required",
	},
	CodeNotFound: {
		HTTPStatus:    http.StatusNotFound,
		PublicMessage: "subscription not found",
	},
	CodeRouteNotFound: {
		HTTPStatus:    http.StatusNotFound,
		PublicMessage: "route not found",
	},
	CodeMethodNotAllowed: {
		HTTPStatus:    http.StatusMethodNotAllowed,
		PublicMessage: "method not allowed",
	},
	CodeInvalidPlan: {
		HTTPStatus:    http.StatusBadRequest,
		PublicMessage: "invalid plan",
		ExposeMessage: true,
	},
	CodeAlreadySubscribed: {
		HTTPStatus:    http.StatusBadRequest,
		PublicMessage: "already subscribed to this plan",
	},
	CodeSamePlan: {
		HTTPStatus:    http.StatusBadRequest,
		PublicMessage: "subscription is already on this plan",
	},
	CodeNotScheduledForCancellation: {
		HTTPStatus:    http.StatusBadRequest,
		PublicMessage: "subscription is not scheduled for cancellation",
	},
	CodeInvalidSignature: {
		HTTPStatus:    http.StatusBadRequest,
		PublicMessage: "invalid webhook signature",
	},
	CodeProvider: {
		HTTPStatus:    http.StatusInternalServerError,
		Retryable:     true,
		PublicMessage: "billing provider error",
		ExposeMessage: true,
	},
	CodePersistence: {
		HTTPStatus:    http.StatusInternalServerError,
		Retryable:     true,
		PublicMessage: "failed to persist billing state",
	},
	CodeInconsistentState: {
		HTTPStatus:    http.StatusInternalServerError,
		PublicMessage: "billing state is inconsistent",
	},
	CodeInternal: {
		HTTPStatus:    http.StatusInternalServerError,
		Retryable:     true,
		PublicMessage: "internal server error",
	},
	CodeDependency: {
		HTTPStatus:     http.StatusServiceUnavailable,
		Retryable:      true,
		PublicMessage:  "dependency unavailable",
		DetailsAllowed: true,
	},
}

func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

// PublicMessage is the text safe to return to callers for this error.
func (e *Error) PublicMessage() string {
	meta := MetadataFor(e.Code())
	if meta.ExposeMessage && e != nil && e.message != "" {
		return e.message
	}
	return meta.PublicMessage
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	e.details = details
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.code == code
}
