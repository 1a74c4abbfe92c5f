package object

import "fmt"

// ErrorKind classifies runtime errors for hosts and tests; scripts only see
// the payload value.
type ErrorKind string

const (
	TypeError             ErrorKind = "TypeError"
	NoSuchMetamethod      ErrorKind = "NoSuchMetamethod"
	UnknownVariable       ErrorKind = "UnknownVariable"
	ImmutableAssignment   ErrorKind = "ImmutableAssignment"
	InvalidKey            ErrorKind = "InvalidKey"
	ZeroStep              ErrorKind = "ZeroStep"
	NotCallable           ErrorKind = "NotCallable"
	YieldOutsideCoroutine ErrorKind = "YieldOutsideCoroutine"
	DivideByZero          ErrorKind = "DivideByZero"
	ModuloByZero          ErrorKind = "ModuloByZero"
	StackOverflow         ErrorKind = "StackOverflow"
	StepBudget            ErrorKind = "StepBudget"
	CoroutineError        ErrorKind = "CoroutineError"
	RaisedError           ErrorKind = "RaisedError"
)

// RuntimeError carries an arbitrary value payload, matching dynamic
// `error(value)` semantics. It doubles as a Go error for the embedding API.
type RuntimeError struct {
	Kind    ErrorKind
	Payload Object
}

func (re *RuntimeError) Inspect() string {
	if re.Payload == nil {
		return string(re.Kind)
	}
	return re.Payload.Inspect()
}

func (re *RuntimeError) Error() string {
	return re.Inspect()
}

// NewError builds a RuntimeError with a formatted string payload.
func NewError(kind ErrorKind, format string, a ...interface{}) *RuntimeError {
	return &RuntimeError{
		Kind:    kind,
		Payload: &String{Value: fmt.Sprintf(format, a...)},
	}
}
