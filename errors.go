package surfmatch

import (
	"errors"
	"fmt"

	"github.com/hupe1980/surfmatch/cluster"
	"github.com/hupe1980/surfmatch/hashtable"
	"github.com/hupe1980/surfmatch/persistence"
	"github.com/hupe1980/surfmatch/pointcloud"
	"github.com/hupe1980/surfmatch/ppf"
	"github.com/hupe1980/surfmatch/sampling"
	"github.com/hupe1980/surfmatch/verify"
	"github.com/hupe1980/surfmatch/voting"
)

var (
	// ErrInvalidInput is returned for malformed points or out-of-range
	// parameters.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUntrainedModel is returned when matching against a model that was
	// never trained or loaded.
	ErrUntrainedModel = errors.New("model is not trained")

	// ErrCorruptModelData is returned when a serialized model fails
	// validation.
	ErrCorruptModelData = errors.New("corrupt model data")
)

// InvalidInputError describes which argument was rejected.
//
// It matches ErrInvalidInput with errors.Is; the underlying error (if any)
// is available through errors.As on the chain.
type InvalidInputError struct {
	Field  string
	Reason string
	cause  error
}

func (e *InvalidInputError) Error() string {
	if e.Reason == "" && e.cause != nil {
		return fmt.Sprintf("invalid %s: %v", e.Field, e.cause)
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *InvalidInputError) Is(target error) bool { return target == ErrInvalidInput }

func (e *InvalidInputError) Unwrap() error { return e.cause }

// CorruptModelError wraps a decoding or validation failure.
type CorruptModelError struct {
	// Reason is set for failures callers may want to tell apart, such as
	// "checksum mismatch".
	Reason string
	cause  error
}

func (e *CorruptModelError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("corrupt model data (%s): %v", e.Reason, e.cause)
	}
	return fmt.Sprintf("corrupt model data: %v", e.cause)
}

func (e *CorruptModelError) Is(target error) bool { return target == ErrCorruptModelData }

func (e *CorruptModelError) Unwrap() error { return e.cause }

func invalidInput(field, format string, args ...any) error {
	return &InvalidInputError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

func corruptModel(format string, args ...any) error {
	return &CorruptModelError{cause: fmt.Errorf(format, args...)}
}

// translateError maps sub-package errors onto the root sentinels. field
// names the argument an input error is attributed to.
func translateError(err error, field string) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, ErrInvalidInput) || errors.Is(err, ErrCorruptModelData) || errors.Is(err, ErrUntrainedModel) {
		return err
	}

	if persistence.IsChecksumMismatch(err) {
		return &CorruptModelError{Reason: "checksum mismatch", cause: err}
	}
	if errors.Is(err, persistence.ErrCorruptData) {
		return &CorruptModelError{cause: err}
	}

	var ip *pointcloud.InvalidPointError
	if errors.As(err, &ip) {
		return &InvalidInputError{Field: field, Reason: fmt.Sprintf("point %d: %s", ip.Index, ip.Reason), cause: err}
	}

	for _, sentinel := range []error{
		pointcloud.ErrInvalidPoint,
		sampling.ErrInvalidDistance,
		ppf.ErrInvalidParams,
		hashtable.ErrTooManyPoints,
		voting.ErrInvalidConfig,
		cluster.ErrInvalidTolerance,
		verify.ErrInvalidConfig,
	} {
		if errors.Is(err, sentinel) {
			return &InvalidInputError{Field: field, cause: err}
		}
	}

	return err
}
