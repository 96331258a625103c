package models

import "fmt"

// ErrorNotFound is returned when a uid/version/status combination does not exist.
type ErrorNotFound struct {
	Message string
}

func (e ErrorNotFound) Error() string { return e.Message }

// ErrorValidation reports malformed input.
type ErrorValidation struct {
	Message string
}

func (e ErrorValidation) Error() string { return e.Message }

// ErrorBusinessLogic reports a violated precondition: library editability,
// referential integrity or an illegal lifecycle transition.
type ErrorBusinessLogic struct {
	Message string
}

func (e ErrorBusinessLogic) Error() string { return e.Message }

// ErrorConflict reports a write that lost the optimistic lock.
type ErrorConflict struct {
	Message string
}

func (e ErrorConflict) Error() string { return e.Message }

type ErrorUnauthorized struct {
	Message string
}

func (e ErrorUnauthorized) Error() string { return e.Message }

type ErrorInternalServer struct {
	Message string
}

func (e ErrorInternalServer) Error() string { return e.Message }

func NotFoundf(format string, args ...interface{}) error {
	return ErrorNotFound{Message: fmt.Sprintf(format, args...)}
}

func Validationf(format string, args ...interface{}) error {
	return ErrorValidation{Message: fmt.Sprintf(format, args...)}
}

func BusinessLogicf(format string, args ...interface{}) error {
	return ErrorBusinessLogic{Message: fmt.Sprintf(format, args...)}
}

func Conflictf(format string, args ...interface{}) error {
	return ErrorConflict{Message: fmt.Sprintf(format, args...)}
}
