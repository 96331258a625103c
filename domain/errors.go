package domain

import "fmt"

// VersioningError reports an illegal lifecycle transition.
type VersioningError struct {
	Msg string
}

func (e *VersioningError) Error() string {
	return e.Msg
}

func newVersioningError(format string, args ...interface{}) error {
	return &VersioningError{Msg: fmt.Sprintf(format, args...)}
}

// ValueError reports malformed content handed to an aggregate.
type ValueError struct {
	Msg string
}

func (e *ValueError) Error() string {
	return e.Msg
}

func newValueError(format string, args ...interface{}) error {
	return &ValueError{Msg: fmt.Sprintf(format, args...)}
}
