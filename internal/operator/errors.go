package operator

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// #region kind

// Kind enumerates the failure taxonomy shared by every component.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindUnresolvedDependency
	KindCyclicDependency
	KindDependencyUnsatisfied
	KindNotFound
	KindStrategyNotFound
	KindParameter
	KindExecutionTimeout
	KindOperatorFailure
)

var kindNames = map[Kind]string{
	KindValidation:            "validation",
	KindUnresolvedDependency:  "unresolved dependency",
	KindCyclicDependency:      "cyclic dependency",
	KindDependencyUnsatisfied: "dependency unsatisfied",
	KindNotFound:              "not found",
	KindStrategyNotFound:      "strategy not found",
	KindParameter:             "parameter",
	KindExecutionTimeout:      "execution timeout",
	KindOperatorFailure:       "operator failure",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Code maps a Kind onto the gRPC status code a hosting service would return.
func (k Kind) Code() codes.Code {
	switch k {
	case KindValidation, KindParameter:
		return codes.InvalidArgument
	case KindNotFound, KindStrategyNotFound:
		return codes.NotFound
	case KindUnresolvedDependency, KindCyclicDependency, KindDependencyUnsatisfied:
		return codes.FailedPrecondition
	case KindExecutionTimeout:
		return codes.DeadlineExceeded
	case KindOperatorFailure:
		return codes.Internal
	default:
		return codes.Unknown
	}
}

// #endregion

// #region sentinels

// Sentinels for errors.Is. Every *Error matches the sentinel of its Kind.
var (
	ErrValidation            = &Error{Kind: KindValidation}
	ErrUnresolvedDependency  = &Error{Kind: KindUnresolvedDependency}
	ErrCyclicDependency      = &Error{Kind: KindCyclicDependency}
	ErrDependencyUnsatisfied = &Error{Kind: KindDependencyUnsatisfied}
	ErrNotFound              = &Error{Kind: KindNotFound}
	ErrStrategyNotFound      = &Error{Kind: KindStrategyNotFound}
	ErrParameter             = &Error{Kind: KindParameter}
	ErrExecutionTimeout      = &Error{Kind: KindExecutionTimeout}
	ErrOperatorFailure       = &Error{Kind: KindOperatorFailure}
)

// #endregion

// #region error

// Error is the typed error every component returns.
type Error struct {
	Kind  Kind
	Op    string // operation that failed, e.g. "register"
	ID    string // operator or strategy id, if any
	Msg   string
	Cause error
}

// Errorf builds an *Error with a formatted message.
func Errorf(kind Kind, op, id, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, ID: id, Msg: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error around cause.
func Wrap(kind Kind, op, id string, cause error) *Error {
	return &Error{Kind: kind, Op: op, ID: id, Cause: cause}
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Cause != nil {
		msg = e.Cause.Error()
	} else if e.Cause != nil {
		msg = msg + ": " + e.Cause.Error()
	}
	prefix := e.Kind.String()
	if e.Op != "" {
		prefix = e.Op + ": " + prefix
	}
	if e.ID != "" {
		prefix = prefix + " [" + e.ID + "]"
	}
	if msg == "" {
		return prefix
	}
	return prefix + ": " + msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error of the same Kind, so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// GRPCStatus lets status.Code and status.FromError read the mapped code.
func (e *Error) GRPCStatus() *status.Status {
	return status.New(e.Kind.Code(), e.Error())
}

// KindOf returns the Kind of the first *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// #endregion
