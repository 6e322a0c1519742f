package solanapay

import (
	"fmt"

	solana "github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

// Commitment is the durability level requested when reading ledger state.
type Commitment string

const (
	CommitmentProcessed Commitment = "processed"
	CommitmentConfirmed Commitment = "confirmed"
	CommitmentFinalized Commitment = "finalized"
)

// DefaultCommitment is the single level at which a payment or mint (and its
// cleanup) is treated as final throughout the project.
const DefaultCommitment = CommitmentConfirmed

func (c Commitment) rank() int {
	switch c {
	case CommitmentProcessed:
		return 1
	case CommitmentConfirmed:
		return 2
	case CommitmentFinalized:
		return 3
	}
	return 0
}

// Valid reports whether c is a known commitment level.
func (c Commitment) Valid() bool {
	return c.rank() > 0
}

// Satisfies reports whether state observed at c is at least as durable as required.
func (c Commitment) Satisfies(required Commitment) bool {
	return c.rank() >= required.rank() && c.rank() > 0
}

// ParseCommitment parses a commitment level name.
func ParseCommitment(s string) (Commitment, error) {
	c := Commitment(s)
	if !c.Valid() {
		return "", fmt.Errorf("unknown commitment: %q", s)
	}
	return c, nil
}

// PaymentIntent is a request for payment. Empty strings and nil pointers are
// absent fields.
type PaymentIntent struct {
	Recipient solana.PublicKey
	// Amount in whole units of the asset (SOL when SPLToken is nil).
	Amount *decimal.Decimal
	// SPLToken is the asset mint; nil means native SOL.
	SPLToken *solana.PublicKey
	// References are discovery tags, in order.
	References []solana.PublicKey
	Label      string
	Message    string
	Memo       string
}

// Equal reports whether two intents describe the same request.
func (i PaymentIntent) Equal(o PaymentIntent) bool {
	if !i.Recipient.Equals(o.Recipient) {
		return false
	}
	if (i.Amount == nil) != (o.Amount == nil) || (i.Amount != nil && !i.Amount.Equal(*o.Amount)) {
		return false
	}
	if !equalOptionalKey(i.SPLToken, o.SPLToken) || !equalKeys(i.References, o.References) {
		return false
	}
	return i.Label == o.Label && i.Message == o.Message && i.Memo == o.Memo
}

// MintIntent is a request to mint one item from an inventory program account.
type MintIntent struct {
	Recipient  solana.PublicKey
	Inventory  solana.PublicKey
	Config     *solana.PublicKey
	Treasury   *solana.PublicKey
	References []solana.PublicKey
	Label      string
	Message    string
	Memo       string
}

// Equal reports whether two mint intents describe the same request.
func (i MintIntent) Equal(o MintIntent) bool {
	return i.Recipient.Equals(o.Recipient) &&
		i.Inventory.Equals(o.Inventory) &&
		equalOptionalKey(i.Config, o.Config) &&
		equalOptionalKey(i.Treasury, o.Treasury) &&
		equalKeys(i.References, o.References) &&
		i.Label == o.Label && i.Message == o.Message && i.Memo == o.Memo
}

func equalOptionalKey(a, b *solana.PublicKey) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equals(*b)
}

func equalKeys(a, b []solana.PublicKey) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equals(b[i]) {
			return false
		}
	}
	return true
}

// BuiltTransaction is an inert, unsigned instruction bundle. It is built once
// per submission attempt and must not be submitted twice: the ephemeral keys
// and the blockhash it is compiled with are single use, and racing two
// submissions of the same bundle ends in a duplicate-signature rejection from
// the ledger. Build a fresh one to retry.
type BuiltTransaction struct {
	// Payer funds the transaction and is the first required signer.
	Payer        solana.PublicKey
	Instructions []solana.Instruction
	// CleanupInstructions revoke delegate authority granted by Instructions.
	// Submit them only after the primary transaction succeeded.
	CleanupInstructions []solana.Instruction
	// Signers lists every identity that must sign the primary transaction.
	Signers []solana.PublicKey
	// EphemeralSigners are keys generated for this bundle (mint identity,
	// delegate authorities). Use them for exactly one submission.
	EphemeralSigners []solana.PrivateKey
}

// HasCleanup reports whether a cleanup transaction must follow.
func (b *BuiltTransaction) HasCleanup() bool {
	return len(b.CleanupInstructions) > 0
}

// Compile produces the unsigned primary transaction for a recent blockhash.
func (b *BuiltTransaction) Compile(recentBlockhash solana.Hash) (*solana.Transaction, error) {
	if len(b.Instructions) == 0 {
		return nil, fmt.Errorf("no instructions to compile")
	}
	return solana.NewTransaction(b.Instructions, recentBlockhash, solana.TransactionPayer(b.Payer))
}

// CompileCleanup produces the unsigned cleanup transaction, paid and signed by the payer alone.
func (b *BuiltTransaction) CompileCleanup(recentBlockhash solana.Hash) (*solana.Transaction, error) {
	if !b.HasCleanup() {
		return nil, fmt.Errorf("no cleanup instructions")
	}
	return solana.NewTransaction(b.CleanupInstructions, recentBlockhash, solana.TransactionPayer(b.Payer))
}

// ValidationResult is the outcome of validating one transaction against an
// intent. There is no partial pass.
type ValidationResult struct {
	Valid     bool
	Reason    string
	Signature solana.Signature
	Slot      uint64
}

// PaymentExpectation is what the merchant requested, as checked by the validator.
type PaymentExpectation struct {
	Recipient solana.PublicKey
	Amount    decimal.Decimal
	SPLToken  *solana.PublicKey
	Reference *solana.PublicKey
}

// ExpectationFromIntent derives what to validate from a payment intent. The
// first reference, if any, is required to appear in the transaction.
func ExpectationFromIntent(intent PaymentIntent) PaymentExpectation {
	exp := PaymentExpectation{
		Recipient: intent.Recipient,
		SPLToken:  intent.SPLToken,
	}
	if intent.Amount != nil {
		exp.Amount = *intent.Amount
	}
	if len(intent.References) > 0 {
		ref := intent.References[0]
		exp.Reference = &ref
	}
	return exp
}
