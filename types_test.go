package solanapay

import (
	"errors"
	"fmt"
	"testing"

	solana "github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommitmentSatisfies(t *testing.T) {
	assert.True(t, CommitmentFinalized.Satisfies(CommitmentConfirmed))
	assert.True(t, CommitmentConfirmed.Satisfies(CommitmentConfirmed))
	assert.False(t, CommitmentProcessed.Satisfies(CommitmentConfirmed))
	assert.False(t, Commitment("").Satisfies(CommitmentProcessed))

	c, err := ParseCommitment("finalized")
	require.NoError(t, err)
	assert.Equal(t, CommitmentFinalized, c)

	_, err = ParseCommitment("max")
	assert.Error(t, err)
}

func TestPaymentIntentEqual(t *testing.T) {
	recipient := solana.NewWallet().PublicKey()
	ref := solana.NewWallet().PublicKey()
	a := decimal.RequireFromString("1.50")
	b := decimal.RequireFromString("1.5")

	x := PaymentIntent{Recipient: recipient, Amount: &a, References: []solana.PublicKey{ref}}
	y := PaymentIntent{Recipient: recipient, Amount: &b, References: []solana.PublicKey{ref}}
	assert.True(t, x.Equal(y))

	y.References = nil
	assert.False(t, x.Equal(y))

	y.References = []solana.PublicKey{ref}
	y.Amount = nil
	assert.False(t, x.Equal(y))
}

func TestExpectationFromIntent(t *testing.T) {
	recipient := solana.NewWallet().PublicKey()
	r1 := solana.NewWallet().PublicKey()
	r2 := solana.NewWallet().PublicKey()
	amount := decimal.RequireFromString("2")

	exp := ExpectationFromIntent(PaymentIntent{Recipient: recipient, Amount: &amount, References: []solana.PublicKey{r1, r2}})
	assert.Equal(t, recipient, exp.Recipient)
	assert.True(t, exp.Amount.Equal(amount))
	require.NotNil(t, exp.Reference)
	assert.Equal(t, r1, *exp.Reference)
}

func TestBuiltTransactionCompile(t *testing.T) {
	empty := &BuiltTransaction{Payer: solana.NewWallet().PublicKey()}
	_, err := empty.Compile(solana.Hash{})
	assert.Error(t, err)
	assert.False(t, empty.HasCleanup())
	_, err = empty.CompileCleanup(solana.Hash{})
	assert.Error(t, err)
}

func TestErrorClasses(t *testing.T) {
	mismatch := NewMismatch(ReasonAmount, "amount", "1", "2")
	wrapped := fmt.Errorf("validate: %w", mismatch)
	assert.True(t, IsTerminal(wrapped))
	assert.False(t, IsTransient(wrapped))

	var target *ValidationMismatchError
	require.True(t, errors.As(wrapped, &target))
	assert.Equal(t, "amount", target.Field)

	assert.True(t, IsTransient(fmt.Errorf("find: %w", ErrNotFound)))
	assert.True(t, IsTransient(ErrUnconfirmed))

	buildErr := NewBuildError(ErrInsufficientFunds, solana.PublicKey{}, "payer balance too low")
	assert.ErrorIs(t, buildErr, ErrInsufficientFunds)
	assert.Contains(t, buildErr.Error(), "payer balance too low")

	urlErr := NewMalformedURLError("amount", "-1", "not a non-negative decimal")
	assert.ErrorIs(t, urlErr, ErrMalformedURL)
}
