package svm

import (
	"context"

	solana "github.com/gagliardetto/solana-go"
)

// TransactionSigner is the signer capability a wallet holds. Implementations
// add their signature at their own account index and leave other slots untouched.
type TransactionSigner interface {
	Address() solana.PublicKey
	SignTransaction(ctx context.Context, tx *solana.Transaction) error
}
