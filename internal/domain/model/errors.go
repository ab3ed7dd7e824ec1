package model

import (
	"errors"
	"fmt"
)

// ErrorKind classifies query failures so callers can pick a response.
type ErrorKind int

const (
	KindMissingParameter ErrorKind = iota + 1
	KindUnresolvableInput
	KindUpstreamUnavailable
	KindDataFormat
)

func (k ErrorKind) String() string {
	switch k {
	case KindMissingParameter:
		return "missing_parameter"
	case KindUnresolvableInput:
		return "unresolvable_input"
	case KindUpstreamUnavailable:
		return "upstream_unavailable"
	case KindDataFormat:
		return "data_format"
	default:
		return "unknown"
	}
}

var (
	ErrMissingParameter    = errors.New("missing parameter")
	ErrUnresolvableInput   = errors.New("unresolvable input")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrDataFormat          = errors.New("data format error")
)

// QueryError carries a user-facing message together with its kind.
//
//	var qe *model.QueryError
//	if errors.As(err, &qe) && qe.Kind == model.KindMissingParameter { ... }
//
// errors.Is also matches the kind's sentinel, e.g. ErrMissingParameter.
type QueryError struct {
	Kind    ErrorKind
	Param   string
	Message string
	Err     error
}

func (e *QueryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

func (e *QueryError) Is(target error) bool {
	switch target {
	case ErrMissingParameter:
		return e.Kind == KindMissingParameter
	case ErrUnresolvableInput:
		return e.Kind == KindUnresolvableInput
	case ErrUpstreamUnavailable:
		return e.Kind == KindUpstreamUnavailable
	case ErrDataFormat:
		return e.Kind == KindDataFormat
	}
	return false
}

func MissingParameter(param, message string) *QueryError {
	return &QueryError{Kind: KindMissingParameter, Param: param, Message: message}
}

func UnresolvableInput(param, message string, err error) *QueryError {
	return &QueryError{Kind: KindUnresolvableInput, Param: param, Message: message, Err: err}
}

func UpstreamUnavailable(message string, err error) *QueryError {
	return &QueryError{Kind: KindUpstreamUnavailable, Message: message, Err: err}
}

func DataFormat(message string, err error) *QueryError {
	return &QueryError{Kind: KindDataFormat, Message: message, Err: err}
}
