package model

import (
	"errors"
	"fmt"
)

type ValidationError struct {
	Field string
	Msg   string
}

func (e ValidationError) Error() string {
	switch {
	case e.Field != "" && e.Msg != "":
		return fmt.Sprintf("%s: %s", e.Field, e.Msg)
	case e.Msg != "":
		return e.Msg
	case e.Field != "":
		return fmt.Sprintf("invalid %s", e.Field)
	default:
		return "validation error"
	}
}

// PreconditionError reports an operation attempted on an entity that is not
// in the required state, e.g. starting a trip on an unbound bus.
type PreconditionError struct {
	Msg string
}

func (e PreconditionError) Error() string {
	if e.Msg == "" {
		return "precondition failed"
	}
	return e.Msg
}

// InvalidStateError reports a transition attempted from a terminal session state.
type InvalidStateError struct {
	SessionID string
	State     SessionStatus
}

func (e InvalidStateError) Error() string {
	return fmt.Sprintf("session %s is %s", e.SessionID, e.State)
}

type NotFoundError struct {
	Resource string
	ID       string
}

func (e NotFoundError) Error() string {
	switch {
	case e.Resource != "" && e.ID != "":
		return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
	case e.Resource != "":
		return fmt.Sprintf("%s not found", e.Resource)
	default:
		return "not found"
	}
}

type DuplicateError struct {
	Resource string
	Field    string
	Value    string
}

func (e DuplicateError) Error() string {
	return fmt.Sprintf("%s with %s %q already exists", e.Resource, e.Field, e.Value)
}

// ConnectivityError wraps a failure of the backing store or broker.
type ConnectivityError struct {
	Op  string
	Err error
}

func (e ConnectivityError) Error() string {
	if e.Err == nil {
		return e.Op + ": store unavailable"
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e ConnectivityError) Unwrap() error { return e.Err }

func IsValidation(err error) bool {
	var target ValidationError
	return errors.As(err, &target)
}

func IsPrecondition(err error) bool {
	var target PreconditionError
	return errors.As(err, &target)
}

func IsInvalidState(err error) bool {
	var target InvalidStateError
	return errors.As(err, &target)
}

func IsNotFound(err error) bool {
	var target NotFoundError
	return errors.As(err, &target)
}

func IsDuplicate(err error) bool {
	var target DuplicateError
	return errors.As(err, &target)
}

func IsConnectivity(err error) bool {
	var target ConnectivityError
	return errors.As(err, &target)
}
