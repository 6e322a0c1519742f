package svm

import (
	"context"
	"fmt"

	solana "github.com/gagliardetto/solana-go"

	"github.com/lmvdz/solana-pay/mechanisms/svm"
)

// SignTransactionFunc defines the callback used to sign Solana transactions.
type SignTransactionFunc func(ctx context.Context, tx *solana.Transaction) error

// ClientSigner implements svm.TransactionSigner using a signing callback.
// Wallets that keep keys elsewhere (hardware, remote signer) supply the callback.
type ClientSigner struct {
	publicKey       solana.PublicKey
	signTransaction SignTransactionFunc
}

var _ svm.TransactionSigner = (*ClientSigner)(nil)

// NewClientSigner creates a signer from a public key and signing callback.
func NewClientSigner(publicKey solana.PublicKey, signFunc SignTransactionFunc) (*ClientSigner, error) {
	if publicKey.IsZero() {
		return nil, fmt.Errorf("public key is required")
	}
	if signFunc == nil {
		return nil, fmt.Errorf("sign callback is required")
	}

	return &ClientSigner{
		publicKey:       publicKey,
		signTransaction: signFunc,
	}, nil
}

// NewClientSignerFromKey creates a signer holding privateKey in memory.
func NewClientSignerFromKey(privateKey solana.PrivateKey) (*ClientSigner, error) {
	if len(privateKey) != 64 {
		return nil, fmt.Errorf("invalid private key length %d", len(privateKey))
	}
	signFunc := func(ctx context.Context, tx *solana.Transaction) error {
		return SignWithKey(privateKey, tx)
	}
	return NewClientSigner(privateKey.PublicKey(), signFunc)
}

// NewClientSignerFromPrivateKey creates a signer from a base58-encoded private key.
//
// Example:
//
//	signer, err := svm.NewClientSignerFromPrivateKey("5J7W...")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	payer := wallet.New(ledger, ledger, signer)
func NewClientSignerFromPrivateKey(privateKeyBase58 string) (*ClientSigner, error) {
	privateKey, err := solana.PrivateKeyFromBase58(privateKeyBase58)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return NewClientSignerFromKey(privateKey)
}

// NewClientSignerFromKeygenFile creates a signer from a solana-keygen JSON key file.
func NewClientSignerFromKeygenFile(path string) (*ClientSigner, error) {
	privateKey, err := solana.PrivateKeyFromSolanaKeygenFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	return NewClientSignerFromKey(privateKey)
}

// Address returns the Solana public key of the signer.
func (s *ClientSigner) Address() solana.PublicKey {
	return s.publicKey
}

// SignTransaction adds the signer's signature to tx at its account index.
func (s *ClientSigner) SignTransaction(ctx context.Context, tx *solana.Transaction) error {
	return s.signTransaction(ctx, tx)
}

// SignAll signs tx with signer, then with each single-use key the builder
// generated for it. Every required signature slot must be filled afterwards.
func SignAll(ctx context.Context, signer svm.TransactionSigner, tx *solana.Transaction, ephemeral []solana.PrivateKey) error {
	if err := signer.SignTransaction(ctx, tx); err != nil {
		return fmt.Errorf("payer signature: %w", err)
	}
	for _, key := range ephemeral {
		if err := SignWithKey(key, tx); err != nil {
			return fmt.Errorf("ephemeral signature %s: %w", key.PublicKey(), err)
		}
	}

	required := int(tx.Message.Header.NumRequiredSignatures)
	if len(tx.Signatures) < required {
		return fmt.Errorf("missing signatures: have %d, need %d", len(tx.Signatures), required)
	}
	for i := 0; i < required; i++ {
		if tx.Signatures[i].IsZero() {
			return fmt.Errorf("missing signature for %s", tx.Message.AccountKeys[i])
		}
	}
	return nil
}

// SignWithKey places privateKey's signature over the message at the key's
// account index.
func SignWithKey(privateKey solana.PrivateKey, tx *solana.Transaction) error {
	messageBytes, err := tx.Message.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	signature, err := privateKey.Sign(messageBytes)
	if err != nil {
		return fmt.Errorf("failed to sign: %w", err)
	}

	accountIndex, err := tx.GetAccountIndex(privateKey.PublicKey())
	if err != nil {
		return fmt.Errorf("failed to get account index: %w", err)
	}
	if int(accountIndex) >= int(tx.Message.Header.NumRequiredSignatures) {
		return fmt.Errorf("%s is not a required signer", privateKey.PublicKey())
	}

	if len(tx.Signatures) <= int(accountIndex) {
		newSignatures := make([]solana.Signature, tx.Message.Header.NumRequiredSignatures)
		copy(newSignatures, tx.Signatures)
		tx.Signatures = newSignatures
	}

	tx.Signatures[accountIndex] = signature
	return nil
}
