// Package errors provides structured application errors with codes that map onto gRPC status codes.
package errors

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// Code classifies an application error.
type Code int

const (
	CodeUnknown Code = iota
	CodeInternal
	CodeInvalidArgument
	CodeNotFound
	CodeUnavailable
	CodeTimeout
	CodeCancelled
	CodeConfigInvalid
	CodeFilterInvalidCutoff
	CodeCaptureFailed
	CodeCaptureNoDevice
	CodeDeviceNotFound
	CodeDeviceCommandFailed
	CodeDeviceConnectionLost
	CodeDeviceProtocol
)

var codeNames = map[Code]string{
	CodeUnknown:              "UNKNOWN",
	CodeInternal:             "INTERNAL",
	CodeInvalidArgument:      "INVALID_ARGUMENT",
	CodeNotFound:             "NOT_FOUND",
	CodeUnavailable:          "UNAVAILABLE",
	CodeTimeout:              "TIMEOUT",
	CodeCancelled:            "CANCELLED",
	CodeConfigInvalid:        "CONFIG_INVALID",
	CodeFilterInvalidCutoff:  "FILTER_INVALID_CUTOFF",
	CodeCaptureFailed:        "CAPTURE_FAILED",
	CodeCaptureNoDevice:      "CAPTURE_NO_DEVICE",
	CodeDeviceNotFound:       "DEVICE_NOT_FOUND",
	CodeDeviceCommandFailed:  "DEVICE_COMMAND_FAILED",
	CodeDeviceConnectionLost: "DEVICE_CONNECTION_LOST",
	CodeDeviceProtocol:       "DEVICE_PROTOCOL",
}

func (c Code) String() string {
	if n, ok := codeNames[c]; ok {
		return n
	}
	return "UNKNOWN"
}

// grpcCodeMap maps Code to gRPC status codes.
var grpcCodeMap = map[Code]codes.Code{
	CodeUnknown:              codes.Unknown,
	CodeInternal:             codes.Internal,
	CodeInvalidArgument:      codes.InvalidArgument,
	CodeNotFound:             codes.NotFound,
	CodeUnavailable:          codes.Unavailable,
	CodeTimeout:              codes.DeadlineExceeded,
	CodeCancelled:            codes.Canceled,
	CodeConfigInvalid:        codes.InvalidArgument,
	CodeFilterInvalidCutoff:  codes.InvalidArgument,
	CodeCaptureFailed:        codes.Internal,
	CodeCaptureNoDevice:      codes.NotFound,
	CodeDeviceNotFound:       codes.NotFound,
	CodeDeviceCommandFailed:  codes.Internal,
	CodeDeviceConnectionLost: codes.Unavailable,
	CodeDeviceProtocol:       codes.FailedPrecondition,
}

// codeDetailKey carries the application code inside status details.
const codeDetailKey = "code"

// AppError is the base error type with structured error code and metadata.
type AppError struct {
	Code     Code
	Message  string
	Metadata map[string]string
	Cause    error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	s := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if len(e.Metadata) > 0 {
		s += fmt.Sprintf(" %v", e.Metadata)
	}
	if e.Cause != nil {
		s += fmt.Sprintf(" caused by: %v", e.Cause)
	}
	return s
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *AppError) Unwrap() error { return e.Cause }

// GRPCCode returns the corresponding gRPC status code.
func (e *AppError) GRPCCode() codes.Code {
	if c, ok := grpcCodeMap[e.Code]; ok {
		return c
	}
	return codes.Unknown
}

// GRPCStatus returns a gRPC status with code and metadata attached as a struct detail.
func (e *AppError) GRPCStatus() *status.Status {
	st := status.New(e.GRPCCode(), e.Error())
	fields := map[string]any{codeDetailKey: e.Code.String()}
	for k, v := range e.Metadata {
		fields[k] = v
	}
	detail, err := structpb.NewStruct(fields)
	if err != nil {
		return st
	}
	if withDetail, err := st.WithDetails(detail); err == nil {
		st = withDetail
	}
	return st
}

// New creates a new AppError with the given code and message.
func New(code Code, msg string) *AppError {
	return &AppError{Code: code, Message: msg}
}

// Newf creates a new AppError with formatted message.
func Newf(code Code, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error with an AppError.
func Wrap(err error, code Code, msg string) *AppError {
	return &AppError{Code: code, Message: msg, Cause: err}
}

// Wrapf wraps an existing error with formatted message.
func Wrapf(err error, code Code, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...), Cause: err}
}

// WithMetadata adds metadata to an AppError.
func (e *AppError) WithMetadata(key, value string) *AppError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}

// CodeOf returns the code of the first AppError in err's chain.
func CodeOf(err error) Code {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknown
}

// IsCode checks if an error chain carries a specific error code.
func IsCode(err error, code Code) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// IsFatal reports whether err must stop the pipeline instead of being logged.
func IsFatal(err error) bool {
	switch CodeOf(err) {
	case CodeDeviceConnectionLost, CodeFilterInvalidCutoff, CodeConfigInvalid:
		return true
	default:
		return false
	}
}
