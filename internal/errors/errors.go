package errors

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type Code codes.Code

const (
	CodeInvalidArgument    = Code(codes.InvalidArgument)
	CodeNotFound           = Code(codes.NotFound)
	CodeAlreadyExists      = Code(codes.AlreadyExists)
	CodeFailedPrecondition = Code(codes.FailedPrecondition)
	CodeResourceExhausted  = Code(codes.ResourceExhausted)
	CodeInternal           = Code(codes.Internal)
	CodeUnavailable        = Code(codes.Unavailable)
)

func (c Code) String() string {
	return codes.Code(c).String()
}

var code2http = map[Code]int{
	CodeInvalidArgument:    http.StatusBadRequest,
	CodeNotFound:           http.StatusNotFound,
	CodeAlreadyExists:      http.StatusConflict,
	CodeFailedPrecondition: http.StatusConflict,
	CodeResourceExhausted:  http.StatusConflict,
	CodeInternal:           http.StatusInternalServerError,
	CodeUnavailable:        http.StatusServiceUnavailable,
}

// Error is a coded error. Message is safe to show to the player or operator.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	err     error
}

func New(code Code, opts ...Option) *Error {
	e := &Error{
		Code:    code,
		Message: codes.Code(code).String(),
	}

	for _, opt := range opts {
		opt.apply(e)
	}

	return e
}

func (e *Error) Error() string {
	s := fmt.Sprintf("code: %s, message: %s", codes.Code(e.Code), e.Message)
	if e.err != nil {
		s += fmt.Sprintf(", err: %s", e.err)
	}

	return s
}

func (e *Error) Unwrap() error {
	return e.err
}

func (e *Error) GRPCStatus() *status.Status {
	return status.New(codes.Code(e.Code), e.Message)
}

func (e *Error) HTTPStatusCode() int {
	if c, ok := code2http[e.Code]; ok {
		return c
	}

	return http.StatusInternalServerError
}

func Convert(err error) *Error {
	var e *Error
	if !errors.As(err, &e) {
		return Internal(err)
	}

	return e
}

// HasCode reports whether err is a coded error with the given code.
func HasCode(err error, code Code) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}

func Internal(err error) *Error {
	return New(CodeInternal, WithCause(err))
}

type Option interface {
	apply(*Error)
}

type optionFunc func(*Error)

func (f optionFunc) apply(e *Error) {
	f(e)
}

func WithCause(err error) Option {
	return optionFunc(func(e *Error) {
		e.err = err
	})
}

func WithMessagef(format string, args ...any) Option {
	return optionFunc(func(e *Error) {
		e.Message = fmt.Sprintf(format, args...)
	})
}
