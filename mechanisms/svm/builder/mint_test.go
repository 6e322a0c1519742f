package builder

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

var fakeInventoryProgram = solana.MustPublicKeyFromBase58("cndyAnrLdpjq1Ssp1z8xxDsB8dxe7u4HL5Nxi2K5WXZ")

// fakeInventory serves a fixed state and records the mint instruction inputs.
type fakeInventory struct {
	state     *solanapay.InventoryState
	accounts  solanapay.InventoryMintAccounts
	remaining solana.AccountMetaSlice
}

func (f *fakeInventory) ProgramID() solana.PublicKey { return fakeInventoryProgram }

func (f *fakeInventory) FetchState(ctx context.Context, inventory solana.PublicKey) (*solanapay.InventoryState, error) {
	if !inventory.Equals(f.state.ID) {
		return nil, solanapay.NewBuildError(solanapay.ErrAccountNotFound, inventory, "no inventory")
	}
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
	return &solanapay.MintAddresses{Metadata: metadata, MasterEdition: edition, Creator: inventory}, nil
}

func (f *fakeInventory) BuildMintInstruction(state *solanapay.InventoryState, accounts solanapay.InventoryMintAccounts, remaining solana.AccountMetaSlice) (solana.Instruction, error) {
	f.accounts = accounts
	f.remaining = remaining
	metas := solana.AccountMetaSlice{
		solana.Meta(accounts.Inventory).WRITE(),
		solana.Meta(accounts.Payer).WRITE().SIGNER(),
		solana.Meta(accounts.Mint).WRITE(),
	}
	return solana.NewInstruction(fakeInventoryProgram, append(metas, remaining...), []byte{0xAA}), nil
}

func (f *fakeInventory) ParseMintInstruction(accounts []solana.PublicKey, data []byte) (*solanapay.InventoryMintAccounts, error) {
	return &solanapay.InventoryMintAccounts{Inventory: accounts[0], Payer: accounts[1], Mint: accounts[2]}, nil
}

type mintFixture struct {
	ledger    *ledger.Ledger
	inventory *fakeInventory
	payer     solana.PublicKey
}

func newMintFixture() *mintFixture {
	f := &mintFixture{
		ledger: ledger.New(),
		payer:  solana.NewWallet().PublicKey(),
		inventory: &fakeInventory{state: &solanapay.InventoryState{
			ID:             solana.NewWallet().PublicKey(),
			Authority:      solana.NewWallet().PublicKey(),
			Treasury:       solana.NewWallet().PublicKey(),
			ItemsAvailable: 10,
			ItemsRedeemed:  3,
			Price:          sol,
		}},
	}
	f.ledger.SetSystemAccount(f.payer, 10*sol)
	return f
}

func (f *mintFixture) build(t *testing.T) (*solanapay.BuiltTransaction, error) {
	t.Helper()
	b := New(f.ledger, WithInventoryProgram(f.inventory), WithKeyGenerator(seededKeys()))
	return b.BuildMint(context.Background(), f.payer, solanapay.MintIntent{
		Recipient: f.inventory.state.Treasury,
		Inventory: f.inventory.state.ID,
	})
}

func programs(ixs []solana.Instruction) []solana.PublicKey {
	out := make([]solana.PublicKey, len(ixs))
	for i, ix := range ixs {
		out[i] = ix.ProgramID()
	}
	return out
}

func TestBuildMint_Base(t *testing.T) {
	f := newMintFixture()
	built, err := f.build(t)
	require.NoError(t, err)

	mintKey, _ := seededKeys().NewKey()
	mint := mintKey.PublicKey()

	assert.Equal(t, []solana.PublicKey{
		solana.SystemProgramID,
		solana.TokenProgramID,
		solana.SPLAssociatedTokenAccountProgramID,
		solana.TokenProgramID,
		fakeInventoryProgram,
	}, programs(built.Instructions))

	initData, err := built.Instructions[1].Data()
	require.NoError(t, err)
	assert.Equal(t, token.Instruction_InitializeMint, initData[0])
	assert.Equal(t, byte(0), initData[1], "zero decimals")

	assert.Equal(t, []solana.PublicKey{f.payer, mint}, built.Signers)
	require.Len(t, built.EphemeralSigners, 1)
	assert.Equal(t, mint, built.EphemeralSigners[0].PublicKey())
	assert.False(t, built.HasCleanup())

	assert.Equal(t, mint, f.inventory.accounts.Mint)
	assert.Equal(t, f.payer, f.inventory.accounts.Payer)
	assert.Empty(t, f.inventory.remaining)

	tx, err := built.Compile(solana.Hash{})
	require.NoError(t, err)
	assert.Equal(t, f.payer, tx.Message.AccountKeys[0])
	assert.Equal(t, uint8(2), tx.Message.Header.NumRequiredSignatures)
}

func TestBuildMint_ReferencesTagIssueInstruction(t *testing.T) {
	f := newMintFixture()
	r1 := solana.NewWallet().PublicKey()
	r2 := solana.NewWallet().PublicKey()

	b := New(f.ledger, WithInventoryProgram(f.inventory), WithKeyGenerator(seededKeys()))
	built, err := b.BuildMint(context.Background(), f.payer, solanapay.MintIntent{
		Inventory:  f.inventory.state.ID,
		References: []solana.PublicKey{r1, r2},
		Memo:       "ignored",
	})
	require.NoError(t, err)

	issue := built.Instructions[3]
	metas := issue.Accounts()
	require.GreaterOrEqual(t, len(metas), 2)
	tail := metas[len(metas)-2:]
	assert.Equal(t, r1, tail[0].PublicKey)
	assert.Equal(t, r2, tail[1].PublicKey)
	for _, m := range tail {
		assert.False(t, m.IsSigner)
		assert.False(t, m.IsWritable)
	}

	// No memo instruction: the inventory program would reject it.
	assert.NotContains(t, programs(built.Instructions), svm.MemoProgramID)
	assert.Empty(t, f.inventory.remaining)
}

func TestBuildMint_SoldOut(t *testing.T) {
	f := newMintFixture()
	f.inventory.state.ItemsRedeemed = 10

	_, err := f.build(t)
	assert.ErrorIs(t, err, solanapay.ErrSoldOut)
}

func TestBuildMint_PayerMissing(t *testing.T) {
	f := newMintFixture()
	f.ledger.RemoveAccount(f.payer)

	_, err := f.build(t)
	assert.ErrorIs(t, err, solanapay.ErrAccountNotFound)
}

func TestBuildMint_TreasuryMismatch(t *testing.T) {
	f := newMintFixture()
	other := solana.NewWallet().PublicKey()
	b := New(f.ledger, WithInventoryProgram(f.inventory))

	_, err := b.BuildMint(context.Background(), f.payer, solanapay.MintIntent{
		Inventory: f.inventory.state.ID,
		Treasury:  &other,
	})
	assert.ErrorIs(t, err, solanapay.ErrInvalidAccount)
}

func TestBuildMint_NoInventoryProgram(t *testing.T) {
	f := newMintFixture()
	_, err := New(f.ledger).BuildMint(context.Background(), f.payer, solanapay.MintIntent{Inventory: f.inventory.state.ID})
	assert.Error(t, err)
}

func TestBuildMint_AllowListBurnEveryTime(t *testing.T) {
	f := newMintFixture()
	gateMint := solana.NewWallet().PublicKey()
	f.inventory.state.AllowList = &solanapay.AllowListGate{Mint: gateMint, BurnEveryTime: true}
	gateHolding := f.ledger.SetHolding(f.payer, gateMint, 1, token.Initialized)

	built, err := f.build(t)
	require.NoError(t, err)

	require.Len(t, built.Instructions, 6)
	approve := built.Instructions[4]
	data, err := approve.Data()
	require.NoError(t, err)
	assert.Equal(t, token.Instruction_Approve, data[0])
	assert.Equal(t, gateHolding, approve.Accounts()[0].PublicKey)

	require.Len(t, built.CleanupInstructions, 1)
	revokeData, err := built.CleanupInstructions[0].Data()
	require.NoError(t, err)
	assert.Equal(t, token.Instruction_Revoke, revokeData[0])
	assert.Equal(t, gateHolding, built.CleanupInstructions[0].Accounts()[0].PublicKey)

	require.Len(t, built.EphemeralSigners, 2)
	burnAuthority := built.EphemeralSigners[1].PublicKey()
	assert.Equal(t, burnAuthority, approve.Accounts()[1].PublicKey)

	require.Len(t, f.inventory.remaining, 3)
	assert.Equal(t, gateHolding, f.inventory.remaining[0].PublicKey)
	assert.True(t, f.inventory.remaining[0].IsWritable)
	assert.Equal(t, gateMint, f.inventory.remaining[1].PublicKey)
	assert.Equal(t, burnAuthority, f.inventory.remaining[2].PublicKey)
	assert.True(t, f.inventory.remaining[2].IsSigner)

	cleanup, err := built.CompileCleanup(solana.Hash{})
	require.NoError(t, err)
	assert.Equal(t, uint8(1), cleanup.Message.Header.NumRequiredSignatures)
}

func TestBuildMint_AllowListWithoutHolding(t *testing.T) {
	f := newMintFixture()
	gateMint := solana.NewWallet().PublicKey()
	f.inventory.state.AllowList = &solanapay.AllowListGate{Mint: gateMint, BurnEveryTime: true}

	built, err := f.build(t)
	require.NoError(t, err)

	assert.Len(t, built.Instructions, 5, "no approve without a holding account")
	assert.False(t, built.HasCleanup())
	assert.Len(t, f.inventory.remaining, 3)
}

func TestBuildMint_AllowListNeverBurn(t *testing.T) {
	f := newMintFixture()
	gateMint := solana.NewWallet().PublicKey()
	f.inventory.state.AllowList = &solanapay.AllowListGate{Mint: gateMint}
	f.ledger.SetHolding(f.payer, gateMint, 1, token.Initialized)

	built, err := f.build(t)
	require.NoError(t, err)

	assert.Len(t, built.Instructions, 5)
	assert.False(t, built.HasCleanup())
	assert.Len(t, f.inventory.remaining, 1)
	assert.Len(t, built.EphemeralSigners, 1)
}

func TestBuildMint_PriceAssetAndCollection(t *testing.T) {
	f := newMintFixture()
	priceMint := solana.NewWallet().PublicKey()
	collection := &solanapay.CollectionInfo{PDA: solana.NewWallet().PublicKey(), Mint: solana.NewWallet().PublicKey()}
	f.inventory.state.PriceAsset = &priceMint
	f.inventory.state.Price = 250
	f.inventory.state.Collection = collection

	built, err := f.build(t)
	require.NoError(t, err)

	require.Len(t, built.Instructions, 6)
	approveData, err := built.Instructions[4].Data()
	require.NoError(t, err)
	assert.Equal(t, token.Instruction_Approve, approveData[0])
	require.Len(t, built.CleanupInstructions, 1)

	priceHolding, _ := svm.HoldingAddress(f.payer, priceMint)
	require.Len(t, f.inventory.remaining, 7)
	assert.Equal(t, priceHolding, f.inventory.remaining[0].PublicKey)
	assert.True(t, f.inventory.remaining[1].IsSigner)
	assert.Equal(t, collection.PDA, f.inventory.remaining[2].PublicKey)
	assert.Equal(t, collection.Mint, f.inventory.remaining[3].PublicKey)

	record, _ := svm.CollectionAuthorityRecordAddress(collection.Mint, collection.PDA)
	assert.Equal(t, record, f.inventory.remaining[6].PublicKey)
}

func TestContributorsAreIndependent(t *testing.T) {
	mc := &mintContext{state: &solanapay.InventoryState{}}
	for _, step := range mintContributors[1:] {
		c, err := step(mc, seededKeys())
		require.NoError(t, err)
		assert.Nil(t, c)
	}
}
