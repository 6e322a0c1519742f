package svm_test

import (
	"context"
	"testing"

	solana "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	solanapay "github.com/lmvdz/solana-pay"
	"github.com/lmvdz/solana-pay/mechanisms/svm"
	"github.com/lmvdz/solana-pay/test/mocks/ledger"
)

func TestGetNetworkConfig(t *testing.T) {
	cfg, err := svm.GetNetworkConfig(svm.ClusterDevnet)
	require.NoError(t, err)
	assert.Equal(t, "https://api.devnet.solana.com", cfg.RPCURL)

	_, err = svm.GetNetworkConfig("solana:unknown")
	assert.Error(t, err)
	assert.False(t, svm.IsValidNetwork("nope"))
	assert.True(t, svm.IsValidNetwork(svm.ClusterMainnet))
}

func TestFetchMint(t *testing.T) {
	ctx := context.Background()
	l := ledger.New()
	mint := solana.NewWallet().PublicKey()
	l.SetMint(mint, 6, 1_000_000)

	info, err := svm.FetchMint(ctx, l, mint)
	require.NoError(t, err)
	assert.Equal(t, uint8(6), info.Decimals)
	assert.Equal(t, uint64(1_000_000), info.Supply)
	assert.True(t, info.IsInitialized)
	assert.Equal(t, solana.TokenProgramID, info.Program)

	_, err = svm.FetchMint(ctx, l, solana.NewWallet().PublicKey())
	assert.ErrorIs(t, err, solanapay.ErrAccountNotFound)

	wallet := solana.NewWallet().PublicKey()
	l.SetSystemAccount(wallet, 1)
	_, err = svm.FetchMint(ctx, l, wallet)
	assert.ErrorIs(t, err, solanapay.ErrInvalidAccount)
}

func TestFetchHolding(t *testing.T) {
	ctx := context.Background()
	l := ledger.New()
	owner := solana.NewWallet().PublicKey()
	mint := solana.NewWallet().PublicKey()
	ata := l.SetHolding(owner, mint, 42, token.Frozen)

	expected, err := svm.HoldingAddress(owner, mint)
	require.NoError(t, err)
	assert.Equal(t, expected, ata)

	h, err := svm.FetchHolding(ctx, l, ata)
	require.NoError(t, err)
	assert.Equal(t, mint, h.Mint)
	assert.Equal(t, owner, h.Owner)
	assert.Equal(t, uint64(42), h.Amount)
	assert.True(t, h.Initialized())
	assert.True(t, h.Frozen())
	assert.Nil(t, h.Delegate)
}

func TestHoldingAddressMatchesAssociatedTokenDerivation(t *testing.T) {
	owner := solana.NewWallet().PublicKey()
	mint := solana.NewWallet().PublicKey()

	want, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	require.NoError(t, err)
	got, err := svm.HoldingAddress(owner, mint)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestWithReferences(t *testing.T) {
	from := solana.NewWallet().PublicKey()
	to := solana.NewWallet().PublicKey()
	r1 := solana.NewWallet().PublicKey()
	r2 := solana.NewWallet().PublicKey()

	base := solana.NewInstruction(solana.SystemProgramID, solana.AccountMetaSlice{
		solana.Meta(from).WRITE().SIGNER(),
		solana.Meta(to).WRITE(),
	}, []byte{2, 0, 0, 0})

	ix, err := svm.WithReferences(base, []solana.PublicKey{r1, r2})
	require.NoError(t, err)

	accounts := ix.Accounts()
	require.Len(t, accounts, 4)
	assert.Equal(t, r1, accounts[2].PublicKey)
	assert.Equal(t, r2, accounts[3].PublicKey)
	for _, ref := range accounts[2:] {
		assert.False(t, ref.IsSigner)
		assert.False(t, ref.IsWritable)
	}
	assert.Len(t, base.Accounts(), 2, "original instruction is untouched")

	data, err := ix.Data()
	require.NoError(t, err)
	assert.Equal(t, []byte{2, 0, 0, 0}, data)
}

func TestResolveInstructions(t *testing.T) {
	payer := solana.NewWallet().PublicKey()
	tx, err := solana.NewTransaction(
		[]solana.Instruction{svm.NewMemoInstruction("hello")},
		solana.Hash{},
		solana.TransactionPayer(payer),
	)
	require.NoError(t, err)

	resolved, err := svm.ResolveInstructions(tx, tx.Message.AccountKeys)
	require.NoError(t, err)
	require.Len(t, resolved, 1)
	assert.Equal(t, svm.MemoProgramID, resolved[0].ProgramID)
	assert.Equal(t, []byte("hello"), resolved[0].Data)

	_, err = svm.ResolveInstructions(tx, nil)
	assert.Error(t, err)
	assert.Equal(t, -1, svm.IndexOf(tx.Message.AccountKeys, solana.NewWallet().PublicKey()))
	assert.Equal(t, 0, svm.IndexOf(tx.Message.AccountKeys, payer))
}
