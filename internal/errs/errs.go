// Package errs holds the error taxonomy shared by the task loader, the
// reconcilers and the host loop. Errors are wrapped with %w and classified
// with errors.Is.
package errs

import "errors"

var (
	// ErrMalformedInput marks a task, inventory or config document that cannot
	// be parsed into its expected shape. Fatal before any host is processed.
	ErrMalformedInput = errors.New("malformed input")

	// ErrInvalidTaskConfiguration marks a task whose fields violate module
	// constraints. Aborts the remaining tasks of the current host only.
	ErrInvalidTaskConfiguration = errors.New("invalid task configuration")

	// ErrRemoteExecution marks a transport failure of the remote channel.
	// Aborts the remaining tasks of the current host only.
	ErrRemoteExecution = errors.New("remote execution error")
)

type Class int

const (
	Unclassified Class = iota
	Malformed
	InvalidTask
	Remote
)

func (c Class) String() string {
	switch c {
	case Malformed:
		return "malformed_input"
	case InvalidTask:
		return "invalid_task_configuration"
	case Remote:
		return "remote_execution"
	default:
		return "unclassified"
	}
}

// Classify maps err onto its taxonomy class.
func Classify(err error) Class {
	switch {
	case err == nil:
		return Unclassified
	case errors.Is(err, ErrInvalidTaskConfiguration):
		return InvalidTask
	case errors.Is(err, ErrRemoteExecution):
		return Remote
	case errors.Is(err, ErrMalformedInput):
		return Malformed
	default:
		return Unclassified
	}
}

// HostScoped reports whether err only aborts the current host.
func HostScoped(err error) bool {
	c := Classify(err)
	return c == InvalidTask || c == Remote
}
