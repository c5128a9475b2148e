// Package apperr defines the coded errors shared by the CLI, TUI and HTTP API.
package apperr

import (
	"errors"
	"fmt"
)

// Code classifies an error for callers that need to branch on it.
type Code string

const (
	CodeArtifactMissing  Code = "ARTIFACT_MISSING"
	CodeArtifactInvalid  Code = "ARTIFACT_INVALID"
	CodeInvalidProfile   Code = "INVALID_PROFILE"
	CodePredictionFailed Code = "PREDICTION_FAILED"
	CodeNotFound         Code = "NOT_FOUND"
	CodeInternal         Code = "INTERNAL"
)

// Error is an error with a stable code and optional details.
type Error struct {
	Code    Code
	Message string
	Path    string
	Details map[string]interface{}
	Err     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// New returns an Error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to err. A nil err yields nil.
func Wrap(code Code, message string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Err: err}
}

// ArtifactMissing reports a schema or model file that cannot be read. The
// message names the path so the operator knows what to restore.
func ArtifactMissing(kind, path string, cause error) *Error {
	return &Error{
		Code:    CodeArtifactMissing,
		Message: fmt.Sprintf("%s not found at %s (check [artifacts] in config or --models-dir)", kind, path),
		Path:    path,
		Details: map[string]interface{}{"artifact": kind, "path": path},
		Err:     cause,
	}
}

// ArtifactInvalid reports an artifact that exists but cannot be decoded.
func ArtifactInvalid(kind, path string, cause error) *Error {
	return &Error{
		Code:    CodeArtifactInvalid,
		Message: fmt.Sprintf("%s at %s is malformed", kind, path),
		Path:    path,
		Details: map[string]interface{}{"artifact": kind, "path": path},
		Err:     cause,
	}
}

// InvalidProfile reports a request payload that failed validation.
func InvalidProfile(problems []string) *Error {
	return &Error{
		Code:    CodeInvalidProfile,
		Message: "profile failed validation",
		Details: map[string]interface{}{"problems": problems},
	}
}

// CodeOf returns the code carried by err, or CodeInternal.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// Is reports whether err carries code.
func Is(err error, code Code) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}
