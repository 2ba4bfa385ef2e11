package session

import (
	"errors"
	"fmt"
)

// ErrInvalidState indicates a transition attempted outside its allowed
// source state, such as answering after the session ended.
var ErrInvalidState = errors.New("invalid session state")

// ErrIndexOutOfRange indicates a question or section index outside the session.
var ErrIndexOutOfRange = errors.New("index out of range")

// TransitionError reports which operation was rejected and in what state.
type TransitionError struct {
	Op   string
	From State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s not allowed while %s: %v", e.Op, e.From, ErrInvalidState)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidState }
