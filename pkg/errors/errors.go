package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// ErrorTypeFetchTransient represents fetch failures worth retrying
	// (timeouts, temporary empty responses, rate-limit signals)
	ErrorTypeFetchTransient ErrorType = "fetch_transient"
	// ErrorTypeFetchPermanent represents fetch failures that end the run
	ErrorTypeFetchPermanent ErrorType = "fetch_permanent"
	// ErrorTypeExtraction represents a record lacking required fields;
	// dropped silently, never fatal
	ErrorTypeExtraction ErrorType = "extraction"
	// ErrorTypeParsing represents HTML parsing errors
	ErrorTypeParsing ErrorType = "parsing"
	// ErrorTypePersistence represents checkpoint read/write failures
	ErrorTypePersistence ErrorType = "persistence"
	// ErrorTypePublisher represents publisher-related errors
	ErrorTypePublisher ErrorType = "publisher"
	// ErrorTypeConfiguration represents configuration errors
	ErrorTypeConfiguration ErrorType = "configuration"
)

// CollectorError represents a typed error raised anywhere in the collection
// pipeline. Portal names the fetcher or component that produced it.
type CollectorError struct {
	Type    ErrorType
	Portal  string
	Message string
	Err     error
	Time    time.Time
}

// Error implements the error interface
func (e *CollectorError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %s - %v", e.Type, e.Portal, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Type, e.Portal, e.Message)
}

// Unwrap returns the underlying error
func (e *CollectorError) Unwrap() error {
	return e.Err
}

// IsTransient returns true if the engine may retry the operation
func (e *CollectorError) IsTransient() bool {
	return e.Type == ErrorTypeFetchTransient
}

// New creates a new CollectorError
func New(errType ErrorType, portal, message string, err error) *CollectorError {
	return &CollectorError{
		Type:    errType,
		Portal:  portal,
		Message: message,
		Err:     err,
		Time:    time.Now(),
	}
}

// NewFetchTransient creates a retryable fetch error
func NewFetchTransient(portal, message string, err error) *CollectorError {
	return New(ErrorTypeFetchTransient, portal, message, err)
}

// NewFetchPermanent creates a fatal fetch error
func NewFetchPermanent(portal, message string, err error) *CollectorError {
	return New(ErrorTypeFetchPermanent, portal, message, err)
}

// NewExtraction creates a record rejection
func NewExtraction(portal, message string) *CollectorError {
	return New(ErrorTypeExtraction, portal, message, nil)
}

// NewParsing creates a parsing error
func NewParsing(portal, message string, err error) *CollectorError {
	return New(ErrorTypeParsing, portal, message, err)
}

// NewPersistence creates a persistence error
func NewPersistence(message string, err error) *CollectorError {
	return New(ErrorTypePersistence, "checkpoint", message, err)
}

// NewPublisher creates a publisher error
func NewPublisher(portal, message string, err error) *CollectorError {
	return New(ErrorTypePublisher, portal, message, err)
}

// NewConfiguration creates a configuration error
func NewConfiguration(message string, err error) *CollectorError {
	return New(ErrorTypeConfiguration, "", message, err)
}

// IsTransient reports whether err is a retryable CollectorError.
func IsTransient(err error) bool {
	var ce *CollectorError
	if errors.As(err, &ce) {
		return ce.IsTransient()
	}
	return false
}

// IsType reports whether err is a CollectorError of the given type.
func IsType(err error, t ErrorType) bool {
	var ce *CollectorError
	if errors.As(err, &ce) {
		return ce.Type == t
	}
	return false
}
