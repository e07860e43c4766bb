// Package failure defines the error taxonomy shared by the prober, the
// encoder invoker, the planners and the orchestrator.
//
// Every failure is an *Error carrying a Kind. Callers match kinds with
// errors.Is against the sentinels (ErrTimeout, ErrEncodeFailed, ...) or
// with KindOf. UnachievableTarget is the only non-fatal kind: it travels
// alongside a valid result as a warning.
package failure

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failure.
type Kind int

const (
	KindUnknown Kind = iota
	DurationUnavailable
	EncodeFailed
	Timeout
	Cancelled
	UnachievableTarget
	InvalidRequest
)

var kindNames = map[Kind]string{
	KindUnknown:         "unknown",
	DurationUnavailable: "duration_unavailable",
	EncodeFailed:        "encode_failed",
	Timeout:             "timeout",
	Cancelled:           "cancelled",
	UnachievableTarget:  "unachievable_target",
	InvalidRequest:      "invalid_request",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// MarshalText renders the kind name in reports.
func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// UnmarshalText parses a kind name written by MarshalText.
func (k *Kind) UnmarshalText(b []byte) error {
	for kind, name := range kindNames {
		if name == string(b) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown failure kind %q", b)
}

// Sentinels, one per kind, for errors.Is.
var (
	ErrDurationUnavailable = &sentinel{DurationUnavailable}
	ErrEncodeFailed        = &sentinel{EncodeFailed}
	ErrTimeout             = &sentinel{Timeout}
	ErrCancelled           = &sentinel{Cancelled}
	ErrUnachievableTarget  = &sentinel{UnachievableTarget}
	ErrInvalidRequest      = &sentinel{InvalidRequest}
)

type sentinel struct{ kind Kind }

func (s *sentinel) Error() string { return strings.ReplaceAll(s.kind.String(), "_", " ") }

// Error is a classified failure. Op names the step that failed ("probe",
// "encode", "search", ...). Param is the attempted parameter in text form
// ("quality=42", "bitrate=1270101"). Stderr holds the captured tail of the
// child's stderr for encoder failures.
type Error struct {
	Kind   Kind
	Op     string
	Param  string
	Stderr string
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(strings.ReplaceAll(e.Kind.String(), "_", " "))
	if e.Param != "" {
		b.WriteString(" (")
		b.WriteString(e.Param)
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel of the same kind.
func (e *Error) Is(target error) bool {
	s, ok := target.(*sentinel)
	return ok && s.kind == e.Kind
}

// New returns an *Error of kind k for op.
func New(k Kind, op string, err error) *Error {
	return &Error{Kind: k, Op: op, Err: err}
}

// Errorf builds an *Error whose wrapped error is formatted from format/args.
func Errorf(k Kind, op, format string, args ...any) *Error {
	return &Error{Kind: k, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	var s *sentinel
	if errors.As(err, &s) {
		return s.kind
	}
	return KindUnknown
}

// IsWarning reports whether err is non-fatal (only UnachievableTarget).
func IsWarning(err error) bool {
	return err != nil && KindOf(err) == UnachievableTarget
}
