package models

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure.
type Kind int

const (
	KindUnknown Kind = iota
	KindCancelled
	KindConfig
	KindMissingCredential
	KindEmptyGeneration
	KindGenerationFailed
	KindAttachTimeout
	KindWindowNotReady
	KindAutomationFailed
)

var kindNames = map[Kind]string{
	KindUnknown:           "unknown",
	KindCancelled:         "cancelled",
	KindConfig:            "config",
	KindMissingCredential: "missing_credential",
	KindEmptyGeneration:   "empty_generation",
	KindGenerationFailed:  "generation_failed",
	KindAttachTimeout:     "attach_timeout",
	KindWindowNotReady:    "window_not_ready",
	KindAutomationFailed:  "automation_failed",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ExitCode maps a failure kind to the process exit status.
// Cancellation is not a failure and exits 0.
func (k Kind) ExitCode() int {
	switch k {
	case KindCancelled:
		return 0
	case KindMissingCredential:
		return 2
	case KindEmptyGeneration:
		return 3
	case KindGenerationFailed:
		return 4
	case KindAttachTimeout:
		return 5
	case KindWindowNotReady:
		return 6
	case KindAutomationFailed:
		return 7
	default:
		return 1
	}
}

// Error is a classified pipeline failure.
type Error struct {
	Kind        Kind
	Message     string
	Cause       error
	Attempts    int
	Remediation []string
}

// Sentinels for errors.Is. They match any *Error of the same kind.
var (
	ErrCancelled         = &Error{Kind: KindCancelled, Message: "operation cancelled"}
	ErrMissingCredential = &Error{Kind: KindMissingCredential, Message: "missing API credential"}
	ErrEmptyGeneration   = &Error{Kind: KindEmptyGeneration, Message: "generation returned an empty netlist"}
	ErrGenerationFailed  = &Error{Kind: KindGenerationFailed, Message: "netlist generation failed"}
	ErrAttachTimeout     = &Error{Kind: KindAttachTimeout, Message: "timed out attaching to application"}
	ErrWindowNotReady    = &Error{Kind: KindWindowNotReady, Message: "application window not ready"}
	ErrAutomationFailed  = &Error{Kind: KindAutomationFailed, Message: "automation failed"}
)

// NewError creates a classified error.
func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap classifies cause under kind. A nil cause yields nil.
func Wrap(cause error, kind Kind, message string) *Error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WithAttempts records how many attempts were made before the failure.
func (e *Error) WithAttempts(n int) *Error {
	e.Attempts = n
	return e
}

// WithRemediation attaches troubleshooting tips shown to the user.
func (e *Error) WithRemediation(tips ...string) *Error {
	if len(tips) == 0 {
		return e
	}
	e.Remediation = append([]string{}, tips...)
	return e
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Attempts > 1 {
		msg = fmt.Sprintf("%s after %d attempts", msg, e.Attempts)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error of the same kind, so the package sentinels
// work with errors.Is regardless of message or cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// ExitCode returns the process exit status for err; nil exits 0.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	return KindOf(err).ExitCode()
}
