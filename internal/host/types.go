package host

import (
	"errors"
	"fmt"
)

const (
	CodeValidation     = "VALIDATION"
	CodeTabNotFound    = "TAB_NOT_FOUND"
	CodeCDPUnavailable = "CDP_UNAVAILABLE"
	CodeCommandFailure = "COMMAND_FAILURE"
)

// ErrTabNotFound matches any CodedError carrying CodeTabNotFound.
var ErrTabNotFound = &CodedError{Code: CodeTabNotFound, Message: "tab not found"}

// CodedError is a typed error used for stable API mapping.
type CodedError struct {
	Code    string
	Message string
	Cause   error
}

func (e *CodedError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
}

func (e *CodedError) Unwrap() error { return e.Cause }

// Is reports code equality so errors.Is(err, ErrTabNotFound) works for any
// not-found error regardless of message.
func (e *CodedError) Is(target error) bool {
	var t *CodedError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

func newError(code, msg string, cause error) error {
	return &CodedError{Code: code, Message: msg, Cause: cause}
}

// HasCode reports whether err wraps a CodedError with the given code.
func HasCode(err error, code string) bool {
	var coded *CodedError
	if !errors.As(err, &coded) {
		return false
	}
	return coded.Code == code
}

// Tab describes a page target as seen by the browser.
type Tab struct {
	ID    string `json:"tab_id"`
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}

// Handlers receives tab lifecycle events from the browser. Handlers run on
// the CDP read loop one event at a time and must not issue CDP commands
// synchronously.
type Handlers struct {
	OnURLUpdated func(tabID, url string)
	OnDestroyed  func(tabID string)
}
