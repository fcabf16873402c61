package schema

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/aws/aws-sdk-go-v2/aws/retry"
	"github.com/aws/aws-sdk-go-v2/service/glue/types"
	"github.com/aws/smithy-go"
)

// Sentinel errors for schema resolution.
var (
	// ErrSchemaFileNotFound indicates the schema source file does not exist.
	ErrSchemaFileNotFound = errors.New("schema file not found")

	// ErrSchemaParse indicates the schema document is not valid JSON.
	ErrSchemaParse = errors.New("schema is not valid JSON")

	// ErrMalformedSchema indicates the schema lacks a fields array or a field lacks a name or type.
	ErrMalformedSchema = errors.New("malformed schema")

	// ErrSchemaNotFound indicates the registry confirmed the schema or version does not exist.
	// It is never retryable.
	ErrSchemaNotFound = errors.New("schema not found in registry")

	// ErrRegistryLookupFailed indicates a registry call failed for any reason other than absence.
	ErrRegistryLookupFailed = errors.New("schema registry lookup failed")

	// ErrSchemaVersionUnavailable indicates a registered version ended in a non-AVAILABLE status.
	ErrSchemaVersionUnavailable = errors.New("schema version is not available")

	// ErrInvalidHeader indicates a record does not start with a valid Glue Schema Registry header.
	ErrInvalidHeader = errors.New("invalid schema registry header")
)

// RegistryError is returned by Registry operations that failed without a
// confirmed absence. Retryable reports whether a later attempt may succeed.
type RegistryError struct {
	Op        string
	Code      string
	Retryable bool
	Err       error
}

func (e *RegistryError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (%s): %v", ErrRegistryLookupFailed, e.Op, e.Code, e.Err)
	}

	return fmt.Sprintf("%s: %s: %v", ErrRegistryLookupFailed, e.Op, e.Err)
}

func (e *RegistryError) Unwrap() []error {
	return []error{ErrRegistryLookupFailed, e.Err}
}

// IsRetryable reports whether err is a transient registry failure.
// ErrSchemaNotFound and non-registry errors are not retryable.
func IsRetryable(err error) bool {
	var registryErr *RegistryError
	if errors.As(err, &registryErr) {
		return registryErr.Retryable
	}

	return false
}

// IsNotFound reports whether err is a confirmed registry absence.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrSchemaNotFound)
}

// classify turns a Glue client error into ErrSchemaNotFound or a *RegistryError.
func classify(op string, err error) error {
	var notFound *types.EntityNotFoundException
	if errors.As(err, &notFound) {
		return fmt.Errorf("%w: %s", ErrSchemaNotFound, notFound.ErrorMessage())
	}

	registryErr := &RegistryError{Op: op, Err: err}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		registryErr.Code = apiErr.ErrorCode()

		switch registryErr.Code {
		case "EntityNotFoundException":
			return fmt.Errorf("%w: %s", ErrSchemaNotFound, apiErr.ErrorMessage())
		case "ThrottlingException",
			"InternalServiceException",
			"OperationTimeoutException",
			"ConcurrentModificationException",
			"TooManyRequestsException":
			registryErr.Retryable = true
		case "AccessDeniedException",
			"InvalidInputException",
			"ValidationException",
			"ResourceNumberLimitExceededException",
			"AlreadyExistsException":
			registryErr.Retryable = false
		default:
			registryErr.Retryable = apiErr.ErrorFault() == smithy.FaultServer
		}

		return registryErr
	}

	switch {
	case errors.Is(err, context.Canceled):
		registryErr.Retryable = false
	case errors.Is(err, context.DeadlineExceeded):
		registryErr.Retryable = true
	default:
		var netErr net.Error
		var maxAttempts *retry.MaxAttemptsError

		registryErr.Retryable = errors.As(err, &netErr) || errors.As(err, &maxAttempts)
	}

	return registryErr
}
