package workflow

import (
	"errors"

	"bitbucket.org/mmdatafocus/fixtures_backend/serial"
	"bitbucket.org/mmdatafocus/fixtures_backend/utils"
)

// Input-shape errors: detected by the resolver before any state inspection.
var (
	ErrEmptyLot            = errors.New("lot resolves to zero units")
	ErrInvalidDatecode     = errors.New("datecode must be a non-empty string")
	ErrNonPositiveQuantity = errors.New("quantity must be a positive integer")
	ErrUnknownRecordType   = errors.New("unknown record type")
	ErrUnknownSourceType   = errors.New("unknown source type")
)

// Existence errors.
var (
	ErrFixtureNotFound = errors.New("fixture not found")
	ErrFixtureScrapped = errors.New("fixture is scrapped")
)

// State-conflict errors: detected inside the row lock; the wrapped message
// names the offending serial or datecode.
var (
	ErrSerialAlreadyInStock      = errors.New("serial already in stock")
	ErrSerialScrapped            = errors.New("serial is scrapped")
	ErrSerialNotReturnable       = errors.New("serial not returnable")
	ErrInsufficientDatecodeStock = errors.New("insufficient datecode stock")
	ErrLifecycleModeMismatch     = errors.New("lifecycle mode mismatch")
)

// Infrastructure errors: opaque to the operator, retryable by the caller.
var (
	ErrTransactionConflict = errors.New("transaction conflict")
)

// IsShapeError reports whether the error is an input-shape rejection.
func IsShapeError(err error) bool {
	for _, target := range []error{
		ErrEmptyLot, ErrInvalidDatecode, ErrNonPositiveQuantity,
		ErrUnknownRecordType, ErrUnknownSourceType,
		serial.ErrMalformedSerial, serial.ErrPrefixMismatch,
		serial.ErrInvertedRange, serial.ErrRangeTooLarge,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsStateConflict reports whether the error is a state-conflict rejection.
func IsStateConflict(err error) bool {
	for _, target := range []error{
		ErrSerialAlreadyInStock, ErrSerialScrapped, ErrSerialNotReturnable,
		ErrInsufficientDatecodeStock, ErrLifecycleModeMismatch,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsNotFound reports whether the error is a missing-resource rejection.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrFixtureNotFound) || errors.Is(err, utils.ErrorRecordNotFound)
}

// IsRetryable reports whether the caller may safely retry the whole lot.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransactionConflict) || errors.Is(err, utils.ErrLockNotObtained)
}
