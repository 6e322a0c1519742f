package validator

import (
	"context"
	"strconv"

	solana "github.com/gagliardetto/solana-go"

	solanapay "github.com/lmvdz/solana-pay"
	"github.com/lmvdz/solana-pay/mechanisms/svm"
)

// ValidatePayment checks that the transaction sig moved exactly exp.Amount
// of the expected asset into exp.Recipient and carries exp.Reference.
//
// On a mismatch both a result with Valid false and a
// *solanapay.ValidationMismatchError are returned. Transient conditions
// return only an error wrapping solanapay.ErrNotFound or solanapay.ErrUnconfirmed.
func (v *Validator) ValidatePayment(ctx context.Context, sig solana.Signature, exp solanapay.PaymentExpectation) (*solanapay.ValidationResult, error) {
	tx, err := v.fetch(ctx, sig)
	if err == nil {
		if exp.SPLToken == nil {
			err = checkNativeTransfer(tx, exp)
		} else {
			err = checkTokenTransfer(tx, exp)
		}
	}
	if err == nil && exp.Reference != nil && svm.IndexOf(tx.AccountKeys, *exp.Reference) < 0 {
		err = solanapay.NewMismatch(solanapay.ReasonReference, "reference", exp.Reference.String(), "absent")
	}
	return conclude(tx, sig, err)
}

func checkNativeTransfer(tx *solanapay.ConfirmedTransaction, exp solanapay.PaymentExpectation) error {
	want, err := solanapay.ToBaseUnits(exp.Amount, solanapay.NativeDecimals)
	if err != nil {
		return solanapay.NewMismatch(solanapay.ReasonAmount, "amount", exp.Amount.String(), err.Error())
	}

	idx := svm.IndexOf(tx.AccountKeys, exp.Recipient)
	if idx < 0 {
		return solanapay.NewMismatch(solanapay.ReasonRecipient, "recipient", exp.Recipient.String(), "absent")
	}

	pre, post := tx.Meta.PreBalances[idx], tx.Meta.PostBalances[idx]
	if idx == 0 {
		// The fee payer's balance also pays the fee.
		post += tx.Meta.Fee
	}
	return checkReceived(pre, post, want)
}

func checkTokenTransfer(tx *solanapay.ConfirmedTransaction, exp solanapay.PaymentExpectation) error {
	mint := *exp.SPLToken

	idx, err := recipientHoldingIndex(tx.AccountKeys, exp.Recipient, mint)
	if err != nil {
		return err
	}
	if idx < 0 {
		if other := receivedOtherAsset(tx, exp.Recipient, mint); other != nil {
			return solanapay.NewMismatch(solanapay.ReasonAsset, "asset", mint.String(), other.String())
		}
		return solanapay.NewMismatch(solanapay.ReasonRecipient, "recipient", exp.Recipient.String(), "absent")
	}

	post, ok := tokenBalance(tx.Meta.PostTokenBalances, idx)
	if !ok {
		return solanapay.NewMismatch(solanapay.ReasonRecipient, "recipient", exp.Recipient.String(), "no token balance recorded")
	}
	if !post.Mint.Equals(mint) {
		return solanapay.NewMismatch(solanapay.ReasonAsset, "asset", mint.String(), post.Mint.String())
	}

	want, err := solanapay.ToBaseUnits(exp.Amount, post.Decimals)
	if err != nil {
		return solanapay.NewMismatch(solanapay.ReasonAmount, "amount", exp.Amount.String(), err.Error())
	}
	preAmount, postAmount := tokenAmounts(tx.Meta, idx)
	return checkReceived(preAmount, postAmount, want)
}

// checkReceived requires the balance to have grown by exactly want.
func checkReceived(pre, post, want uint64) error {
	if want == 0 && post == pre {
		return nil
	}
	if post <= pre {
		return solanapay.NewMismatch(solanapay.ReasonRecipient, "recipient",
			"+"+strconv.FormatUint(want, 10), "-"+strconv.FormatUint(pre-post, 10))
	}
	if got := post - pre; got != want {
		return solanapay.NewMismatch(solanapay.ReasonAmount, "amount",
			strconv.FormatUint(want, 10), strconv.FormatUint(got, 10))
	}
	return nil
}

// recipientHoldingIndex finds the recipient's associated holding account for
// mint under either token program.
func recipientHoldingIndex(keys []solana.PublicKey, recipient, mint solana.PublicKey) (int, error) {
	for _, program := range []solana.PublicKey{solana.TokenProgramID, solana.Token2022ProgramID} {
		ata, err := svm.HoldingAddressForProgram(recipient, mint, program)
		if err != nil {
			return -1, err
		}
		if idx := svm.IndexOf(keys, ata); idx >= 0 {
			return idx, nil
		}
	}
	return -1, nil
}

// receivedOtherAsset returns the mint of any other asset the recipient's
// holdings grew by, if any.
func receivedOtherAsset(tx *solanapay.ConfirmedTransaction, recipient, mint solana.PublicKey) *solana.PublicKey {
	for _, b := range tx.Meta.PostTokenBalances {
		if !b.Owner.Equals(recipient) || b.Mint.Equals(mint) {
			continue
		}
		if pre, post := tokenAmounts(tx.Meta, int(b.AccountIndex)); post > pre {
			m := b.Mint
			return &m
		}
	}
	return nil
}
