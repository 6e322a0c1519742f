package svm

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	solana "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mintTransaction(t *testing.T, payer, mint solana.PublicKey) *solana.Transaction {
	t.Helper()
	tx, err := solana.NewTransaction(
		[]solana.Instruction{
			system.NewCreateAccountInstruction(1_461_600, 82, solana.TokenProgramID, payer, mint).Build(),
		},
		solana.Hash{9},
		solana.TransactionPayer(payer),
	)
	require.NoError(t, err)
	return tx
}

func TestNewClientSigner(t *testing.T) {
	_, err := NewClientSigner(solana.PublicKey{}, func(context.Context, *solana.Transaction) error { return nil })
	assert.Error(t, err)

	_, err = NewClientSigner(solana.NewWallet().PublicKey(), nil)
	assert.Error(t, err)

	_, err = NewClientSignerFromPrivateKey("not-base58!")
	assert.Error(t, err)

	_, err = NewClientSignerFromKey(solana.PrivateKey{1, 2, 3})
	assert.Error(t, err)
}

func TestNewClientSignerFromPrivateKey(t *testing.T) {
	key := solana.NewWallet().PrivateKey
	signer, err := NewClientSignerFromPrivateKey(key.String())
	require.NoError(t, err)
	assert.Equal(t, key.PublicKey(), signer.Address())
}

func TestNewClientSignerFromKeygenFile(t *testing.T) {
	key := solana.NewWallet().PrivateKey

	ints := make([]int, len(key))
	for i, v := range key {
		ints[i] = int(v)
	}
	raw, err := json.Marshal(ints)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "id.json")
	require.NoError(t, os.WriteFile(path, raw, 0o600))

	signer, err := NewClientSignerFromKeygenFile(path)
	require.NoError(t, err)
	assert.Equal(t, key.PublicKey(), signer.Address())
}

func TestSignAll(t *testing.T) {
	payer := solana.NewWallet().PrivateKey
	mint := solana.NewWallet().PrivateKey
	signer, err := NewClientSignerFromKey(payer)
	require.NoError(t, err)

	t.Run("payer and ephemeral", func(t *testing.T) {
		tx := mintTransaction(t, payer.PublicKey(), mint.PublicKey())
		require.NoError(t, SignAll(context.Background(), signer, tx, []solana.PrivateKey{mint}))
		require.Len(t, tx.Signatures, 2)
		assert.NoError(t, tx.VerifySignatures())
	})

	t.Run("missing ephemeral", func(t *testing.T) {
		tx := mintTransaction(t, payer.PublicKey(), mint.PublicKey())
		err := SignAll(context.Background(), signer, tx, nil)
		assert.ErrorContains(t, err, mint.PublicKey().String())
	})

	t.Run("key not in transaction", func(t *testing.T) {
		tx := mintTransaction(t, payer.PublicKey(), mint.PublicKey())
		err := SignAll(context.Background(), signer, tx, []solana.PrivateKey{mint, solana.NewWallet().PrivateKey})
		assert.Error(t, err)
	})

	t.Run("callback failure", func(t *testing.T) {
		failing, err := NewClientSigner(payer.PublicKey(), func(context.Context, *solana.Transaction) error {
			return errors.New("device locked")
		})
		require.NoError(t, err)
		tx := mintTransaction(t, payer.PublicKey(), mint.PublicKey())
		assert.ErrorContains(t, SignAll(context.Background(), failing, tx, []solana.PrivateKey{mint}), "device locked")
	})
}

func TestSignWithKey_RejectsReadonlyKey(t *testing.T) {
	payer := solana.NewWallet().PrivateKey
	tx := mintTransaction(t, payer.PublicKey(), solana.NewWallet().PublicKey())

	other := solana.NewWallet().PrivateKey
	assert.Error(t, SignWithKey(other, tx))
}
