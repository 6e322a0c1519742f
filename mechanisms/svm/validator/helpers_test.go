package validator_test

import (
	"context"
	"testing"

	solana "github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	solanapay "github.com/lmvdz/solana-pay"
	"github.com/lmvdz/solana-pay/mechanisms/svm"
	"github.com/lmvdz/solana-pay/test/mocks/ledger"
)

const sol = 1_000_000_000

var testInventoryProgram = solana.MustPublicKeyFromBase58("cndyAnrLdpjq1Ssp1z8xxDsB8dxe7u4HL5Nxi2K5WXZ")

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

// signAndSend compiles built, signs it with the given keys and submits it.
func signAndSend(t *testing.T, l *ledger.Ledger, tx *solana.Transaction, keys ...solana.PrivateKey) solana.Signature {
	t.Helper()
	byKey := make(map[solana.PublicKey]solana.PrivateKey, len(keys))
	for _, k := range keys {
		byKey[k.PublicKey()] = k
	}
	_, err := tx.Sign(func(pk solana.PublicKey) *solana.PrivateKey {
		if k, ok := byKey[pk]; ok {
			return &k
		}
		return nil
	})
	require.NoError(t, err)

	sig, err := l.SendTransaction(context.Background(), tx)
	require.NoError(t, err)
	return sig
}

func compile(t *testing.T, built *solanapay.BuiltTransaction) *solana.Transaction {
	t.Helper()
	tx, err := built.Compile(solana.Hash{1})
	require.NoError(t, err)
	return tx
}

// record stores tx with hand-written effects and returns its signature.
func record(l *ledger.Ledger, tx *solana.Transaction, meta solanapay.TransactionMeta, sig solana.Signature) solana.Signature {
	l.AddTransaction(&solanapay.ConfirmedTransaction{
		Signature:   sig,
		Transaction: tx,
		AccountKeys: tx.Message.AccountKeys,
		Meta:        meta,
	}, solanapay.CommitmentFinalized)
	return sig
}

// fakeInventory serves a fixed state and builds a minimal mint instruction:
// [inventory, payer, mint] followed by the remaining accounts.
type fakeInventory struct {
	state *solanapay.InventoryState
}

func (f *fakeInventory) ProgramID() solana.PublicKey { return testInventoryProgram }

func (f *fakeInventory) FetchState(ctx context.Context, inventory solana.PublicKey) (*solanapay.InventoryState, error) {
	cp := *f.state
	return &cp, nil
}

func (f *fakeInventory) DeriveMintAddresses(inventory, mint solana.PublicKey) (*solanapay.MintAddresses, error) {
	metadata, err := svm.MetadataAddress(mint)
	if err != nil {
		return nil, err
	}
	edition, err := svm.MasterEditionAddress(mint)
	if err != nil {
		return nil, err
	}
	return &solanapay.MintAddresses{Metadata: metadata, MasterEdition: edition}, nil
}

func (f *fakeInventory) BuildMintInstruction(state *solanapay.InventoryState, accounts solanapay.InventoryMintAccounts, remaining solana.AccountMetaSlice) (solana.Instruction, error) {
	metas := solana.AccountMetaSlice{
		solana.Meta(accounts.Inventory).WRITE(),
		solana.Meta(accounts.Payer).WRITE().SIGNER(),
		solana.Meta(accounts.Mint).WRITE(),
	}
	return solana.NewInstruction(testInventoryProgram, append(metas, remaining...), []byte{0x01}), nil
}

func (f *fakeInventory) ParseMintInstruction(accounts []solana.PublicKey, data []byte) (*solanapay.InventoryMintAccounts, error) {
	if len(accounts) < 3 || len(data) != 1 {
		return nil, solanapay.ErrInvalidAccount
	}
	return &solanapay.InventoryMintAccounts{Inventory: accounts[0], Payer: accounts[1], Mint: accounts[2]}, nil
}
