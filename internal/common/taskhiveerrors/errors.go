// Package taskhiveerrors contains generic errors that should be returned by code handling HTTP requests.
// The HTTP handlers look for the error types defined in this file and set the response status accordingly.
package taskhiveerrors

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// ErrAlreadyExists is a generic error to be returned whenever some resource already exists.
// Type and Message are optional and are omitted from the error message if not provided.
type ErrAlreadyExists struct {
	Type    string // Resource type, e.g., "worker" or "job"
	Value   string // Resource name, e.g., "worker-1"
	Message string // An optional message to include in the error message
}

func (err *ErrAlreadyExists) Error() (s string) {
	if err.Type != "" {
		s = fmt.Sprintf("resource %q of type %q already exists", err.Value, err.Type)
	} else {
		s = fmt.Sprintf("resource %q already exists", err.Value)
	}
	if err.Message != "" {
		return s + fmt.Sprintf("; %s", err.Message)
	} else {
		return s
	}
}

// ErrNotFound is a generic error to be returned whenever some resource isn't found.
// Type and Message are optional and are omitted from the error message if not provided.
//
// See ErrAlreadyExists for more info.
type ErrNotFound struct {
	Type    string
	Value   string
	Message string
}

func (err *ErrNotFound) Error() (s string) {
	if err.Type != "" {
		s = fmt.Sprintf("resource %q of type %q does not exist", err.Value, err.Type)
	} else {
		s = fmt.Sprintf("resource %q does not exist", err.Value)
	}
	if err.Message != "" {
		return s + fmt.Sprintf("; %s", err.Message)
	} else {
		return s
	}
}

// ErrInvalidArgument is a generic error to be returned on invalid argument.
// Message is optional and is omitted from the error message if not provided.
type ErrInvalidArgument struct {
	Name    string      // Name of the field referred to, e.g., "fractionOfNodes"
	Value   interface{} // The invalid value that was provided
	Message string      // An optional message to include with the error message, e.g., explaining why the value is invalid
}

func (err *ErrInvalidArgument) Error() string {
	if err.Message == "" {
		return fmt.Sprintf("value %v is invalid for field %q", err.Value, err.Name)
	} else {
		return fmt.Sprintf("value %v is invalid for field %q; %s", err.Value, err.Name, err.Message)
	}
}

// ErrCondemned is returned when a worker instance that has been condemned tries to rejoin the cluster.
// A condemned worker can only come back as a new instance.
type ErrCondemned struct {
	WorkerId   string
	InstanceId string
}

func (err *ErrCondemned) Error() string {
	return fmt.Sprintf("worker %q instance %q is condemned and must be replaced by a new instance", err.WorkerId, err.InstanceId)
}

// HttpStatusFromError maps error types to http status codes.
// Uses errors.As to look through the chain of errors, as opposed to just considering the topmost error in the chain.
func HttpStatusFromError(err error) int {
	if err == nil {
		return http.StatusOK
	}

	// Using {} scopes just to re-use the "e" variable name for each case.
	{
		var e *ErrAlreadyExists
		if errors.As(err, &e) {
			return http.StatusConflict
		}
	}
	{
		var e *ErrNotFound
		if errors.As(err, &e) {
			return http.StatusNotFound
		}
	}
	{
		var e *ErrInvalidArgument
		if errors.As(err, &e) {
			return http.StatusBadRequest
		}
	}
	{
		var e *ErrCondemned
		if errors.As(err, &e) {
			return http.StatusGone
		}
	}

	return http.StatusInternalServerError
}
