// Package validator checks that a confirmed transaction actually did what an
// intent asked for.
//
// Effects are re-derived from the balances the ledger recorded before and
// after execution, not from instruction arguments, so a transaction that
// names the right recipient and amount but nets to something else fails.
// Every check is a read and safe to repeat; callers retry on
// solanapay.ErrUnconfirmed and reject on solanapay.ErrValidationMismatch.
package validator

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	solana "github.com/gagliardetto/solana-go"

	solanapay "github.com/lmvdz/solana-pay"
)

// Validator validates payment, mint and cleanup transactions.
type Validator struct {
	ledger     solanapay.Ledger
	inventory  solanapay.InventoryProgram
	commitment solanapay.Commitment
}

// Option configures a Validator.
type Option func(*Validator)

// WithInventoryProgram sets the inventory program used by the mint checks.
func WithInventoryProgram(p solanapay.InventoryProgram) Option {
	return func(v *Validator) {
		v.inventory = p
	}
}

// WithCommitment sets the level a transaction must reach. Defaults to
// solanapay.DefaultCommitment.
func WithCommitment(c solanapay.Commitment) Option {
	return func(v *Validator) {
		v.commitment = c
	}
}

// New creates a Validator reading from ledger.
func New(ledger solanapay.Ledger, opts ...Option) *Validator {
	v := &Validator{
		ledger:     ledger,
		commitment: solanapay.DefaultCommitment,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// fetch returns the confirmed, successful transaction for sig.
func (v *Validator) fetch(ctx context.Context, sig solana.Signature) (*solanapay.ConfirmedTransaction, error) {
	status, err := v.ledger.GetSignatureStatus(ctx, sig)
	if err != nil {
		return nil, fmt.Errorf("failed to get signature status: %w", err)
	}
	if status == nil {
		return nil, fmt.Errorf("%w: %s", solanapay.ErrNotFound, sig)
	}
	if !status.Confirmation.Satisfies(v.commitment) {
		return nil, fmt.Errorf("%w: %s is %s, need %s", solanapay.ErrUnconfirmed, sig, status.Confirmation, v.commitment)
	}

	tx, err := v.ledger.GetTransaction(ctx, sig, v.commitment)
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	if tx == nil {
		return nil, fmt.Errorf("%w: %s not available at %s", solanapay.ErrNotFound, sig, v.commitment)
	}

	if tx.Meta.Err != "" {
		return tx, solanapay.NewMismatch(solanapay.ReasonStatus, "status", "success", tx.Meta.Err)
	}
	if tx.Transaction == nil {
		return tx, solanapay.NewMismatch(solanapay.ReasonTransactionShape, "transaction", "present", "missing")
	}
	n := len(tx.AccountKeys)
	if n == 0 || len(tx.Meta.PreBalances) != n || len(tx.Meta.PostBalances) != n {
		return tx, solanapay.NewMismatch(solanapay.ReasonTransactionShape, "balances",
			strconv.Itoa(n)+" entries",
			fmt.Sprintf("%d pre, %d post", len(tx.Meta.PreBalances), len(tx.Meta.PostBalances)))
	}
	return tx, nil
}

// conclude turns a check outcome into the (result, error) pair every
// Validate method returns. Transient and infrastructure errors yield no result.
func conclude(tx *solanapay.ConfirmedTransaction, sig solana.Signature, err error) (*solanapay.ValidationResult, error) {
	result := &solanapay.ValidationResult{Signature: sig}
	if tx != nil {
		result.Slot = tx.Slot
	}
	if err == nil {
		result.Valid = true
		return result, nil
	}

	var mismatch *solanapay.ValidationMismatchError
	if errors.As(err, &mismatch) {
		result.Reason = mismatch.Reason
		return result, err
	}
	return nil, err
}

// tokenBalance returns the entry for account index idx, if recorded.
func tokenBalance(balances []solanapay.TokenBalance, idx int) (solanapay.TokenBalance, bool) {
	for _, b := range balances {
		if int(b.AccountIndex) == idx {
			return b, true
		}
	}
	return solanapay.TokenBalance{}, false
}

// tokenAmounts returns the pre and post token amounts of the holding account
// at idx. A missing entry counts as zero.
func tokenAmounts(meta solanapay.TransactionMeta, idx int) (pre, post uint64) {
	if b, ok := tokenBalance(meta.PreTokenBalances, idx); ok {
		pre = b.Amount
	}
	if b, ok := tokenBalance(meta.PostTokenBalances, idx); ok {
		post = b.Amount
	}
	return pre, post
}
