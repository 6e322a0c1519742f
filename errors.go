package solanapay

import (
	"errors"
	"fmt"

	solana "github.com/gagliardetto/solana-go"
)

// Error classes. Every typed error below unwraps to exactly one of these.
var (
	// Codec
	ErrMalformedURL = errors.New("malformed url")

	// Builder preconditions, all correctable by the caller
	ErrAccountNotFound   = errors.New("account not found")
	ErrInvalidAccount    = errors.New("invalid account")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrSoldOut           = errors.New("sold out")

	// Finder / validator, transient
	ErrNotFound    = errors.New("transaction not found")
	ErrUnconfirmed = errors.New("transaction not confirmed")

	// Validator, terminal
	ErrValidationMismatch = errors.New("validation mismatch")
)

// Validation reason codes
const (
	ReasonStatus           = "transaction_failed"
	ReasonRecipient        = "recipient_mismatch"
	ReasonAmount           = "amount_mismatch"
	ReasonAsset            = "asset_mismatch"
	ReasonReference        = "reference_missing"
	ReasonPayer            = "payer_mismatch"
	ReasonInventory        = "inventory_mismatch"
	ReasonMintedAsset      = "minted_asset_invalid"
	ReasonCleanupEffect    = "cleanup_unexpected_effect"
	ReasonSignatureReused  = "signature_already_consumed"
	ReasonTransactionShape = "transaction_malformed"
)

// MalformedURLError is returned by the codec when a URL cannot be decoded.
type MalformedURLError struct {
	Param  string
	Value  string
	Reason string
}

func (e *MalformedURLError) Error() string {
	if e.Param == "" {
		return fmt.Sprintf("%s: %s", ErrMalformedURL, e.Reason)
	}
	return fmt.Sprintf("%s: %s %q: %s", ErrMalformedURL, e.Param, e.Value, e.Reason)
}

func (e *MalformedURLError) Unwrap() error { return ErrMalformedURL }

// NewMalformedURLError creates a codec error for the given parameter.
func NewMalformedURLError(param, value, reason string) *MalformedURLError {
	return &MalformedURLError{Param: param, Value: value, Reason: reason}
}

// BuildError is returned by the transaction builder when a precondition fails.
// Kind is one of the builder error classes.
type BuildError struct {
	Kind    error
	Account solana.PublicKey
	Reason  string
}

func (e *BuildError) Error() string {
	if e.Account.IsZero() {
		return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Reason, e.Account)
}

func (e *BuildError) Unwrap() error { return e.Kind }

// NewBuildError creates a builder error of the given class.
func NewBuildError(kind error, account solana.PublicKey, reason string) *BuildError {
	return &BuildError{Kind: kind, Account: account, Reason: reason}
}

// ValidationMismatchError reports which field of a confirmed transaction
// disagreed with what was requested.
type ValidationMismatchError struct {
	Reason   string
	Field    string
	Expected string
	Actual   string
}

func (e *ValidationMismatchError) Error() string {
	return fmt.Sprintf("%s: %s: expected %s, got %s", ErrValidationMismatch, e.Field, e.Expected, e.Actual)
}

func (e *ValidationMismatchError) Unwrap() error { return ErrValidationMismatch }

// NewMismatch creates a validation mismatch for field.
func NewMismatch(reason, field, expected, actual string) *ValidationMismatchError {
	return &ValidationMismatchError{Reason: reason, Field: field, Expected: expected, Actual: actual}
}

// IsTransient reports whether err means "keep polling".
func IsTransient(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrUnconfirmed)
}

// IsTerminal reports whether err means "reject the request".
func IsTerminal(err error) bool {
	return errors.Is(err, ErrValidationMismatch)
}
