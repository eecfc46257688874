package domain

import (
	"errors"
	"fmt"
)

// ErrorCode is the machine-readable failure classification carried across
// the gateway/compiler boundary and onto the HTTP surface.
type ErrorCode string

const (
	CodeMissingFile                  ErrorCode = "MissingFile"
	CodeMissingTitle                 ErrorCode = "MissingTitle"
	CodeInvalidRequest               ErrorCode = "InvalidRequest"
	CodeFileTooLarge                 ErrorCode = "FileTooLarge"
	CodeUploadTimeout                ErrorCode = "UploadTimeout"
	CodeRemoteUploadFailed           ErrorCode = "RemoteUploadFailed"
	CodePersistenceFailedAfterUpload ErrorCode = "PersistenceFailedAfterUpload"
	CodeNoValidEffects               ErrorCode = "NoValidEffects"
	CodeUnauthorized                 ErrorCode = "Unauthorized"
	CodeCancelled                    ErrorCode = "Cancelled"
	CodeNotFound                     ErrorCode = "NotFound"
	CodeInternal                     ErrorCode = "Internal"
)

type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

func WrapError(code ErrorCode, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf extracts the classification from an error chain. Unclassified
// errors report CodeInternal.
func CodeOf(err error) ErrorCode {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code
	}
	return CodeInternal
}

// MessageOf returns the human-readable half of a classified error, falling
// back to the raw error text.
func MessageOf(err error) string {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Message
	}
	if err != nil {
		return err.Error()
	}
	return ""
}
