package ml

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why a prediction failed.
type ErrorKind string

const (
	KindShapeMismatch ErrorKind = "shape_mismatch"
	KindEncoding      ErrorKind = "encoding"
	KindUnknown       ErrorKind = "unknown"
)

var (
	ErrShapeMismatch = errors.New("feature row does not match training columns")
	ErrEncoding      = errors.New("feature row could not be encoded")
	ErrUnknown       = errors.New("prediction failed")

	ErrNotFitted    = errors.New("model is not fitted")
	ErrEmptyDataset = errors.New("no usable training records")
)

// PredictionError is returned by every failed prediction.
type PredictionError struct {
	Kind ErrorKind
	Err  error
}

func (e *PredictionError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *PredictionError) Unwrap() error { return e.Err }

// Is lets errors.Is match the kind sentinels.
func (e *PredictionError) Is(target error) bool {
	switch target {
	case ErrShapeMismatch:
		return e.Kind == KindShapeMismatch
	case ErrEncoding:
		return e.Kind == KindEncoding
	case ErrUnknown:
		return e.Kind == KindUnknown
	}
	return false
}

func shapeErrorf(format string, args ...interface{}) error {
	return &PredictionError{Kind: KindShapeMismatch, Err: fmt.Errorf(format, args...)}
}

func encodingErrorf(format string, args ...interface{}) error {
	return &PredictionError{Kind: KindEncoding, Err: fmt.Errorf(format, args...)}
}

// KindOf reports the kind of a prediction error; anything that is not a
// *PredictionError is KindUnknown.
func KindOf(err error) ErrorKind {
	var pe *PredictionError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindUnknown
}
