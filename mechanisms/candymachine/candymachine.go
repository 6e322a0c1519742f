// Package candymachine is the inventory program collaborator for Metaplex
// candy machine v2: it decodes candy machine state into a typed
// solanapay.InventoryState, derives the mint's program addresses and encodes
// the mint_nft instruction.
package candymachine

import (
	"bytes"
	"context"
	"fmt"
	"time"

	solana "github.com/gagliardetto/solana-go"

	solanapay "github.com/lmvdz/solana-pay"
	"github.com/lmvdz/solana-pay/mechanisms/svm"
)

// ProgramID is the default candy machine deployment.
var ProgramID = solana.MustPublicKeyFromBase58("cndyAnrLdpjq1Ssp1z8xxDsB8dxe7u4HL5Nxi2K5WXZ")

// mintNFTAccounts is the number of named accounts of mint_nft.
const mintNFTAccounts = 16

// Program implements solanapay.InventoryProgram.
type Program struct {
	ledger    solanapay.Ledger
	programID solana.PublicKey
}

// Option configures a Program.
type Option func(*Program)

// WithProgramID targets a candy machine deployment other than ProgramID.
func WithProgramID(id solana.PublicKey) Option {
	return func(p *Program) {
		p.programID = id
	}
}

// New creates a Program reading state from ledger.
func New(ledger solanapay.Ledger, opts ...Option) *Program {
	p := &Program{
		ledger:    ledger,
		programID: ProgramID,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ProgramID returns the candy machine program address.
func (p *Program) ProgramID() solana.PublicKey {
	return p.programID
}

// FetchState reads and decodes the candy machine at inventory and its
// collection link, if any.
func (p *Program) FetchState(ctx context.Context, inventory solana.PublicKey) (*solanapay.InventoryState, error) {
	acc, err := svm.FetchAccount(ctx, p.ledger, inventory)
	if err != nil {
		return nil, err
	}
	if !acc.Owner.Equals(p.programID) {
		return nil, solanapay.NewBuildError(solanapay.ErrInvalidAccount, inventory, "not owned by the candy machine program")
	}
	cm, err := DecodeCandyMachine(acc.Data)
	if err != nil {
		return nil, solanapay.NewBuildError(solanapay.ErrInvalidAccount, inventory, err.Error())
	}

	state := toInventoryState(inventory, cm)

	collection, err := p.fetchCollection(ctx, inventory)
	if err != nil {
		return nil, err
	}
	state.Collection = collection
	return state, nil
}

func (p *Program) fetchCollection(ctx context.Context, inventory solana.PublicKey) (*solanapay.CollectionInfo, error) {
	pda, err := p.CollectionPDAAddress(inventory)
	if err != nil {
		return nil, err
	}
	acc, err := p.ledger.GetAccount(ctx, pda)
	if err != nil {
		return nil, fmt.Errorf("failed to get collection pda: %w", err)
	}
	if acc == nil {
		return nil, nil
	}
	coll, err := DecodeCollectionPDA(acc.Data)
	if err != nil {
		return nil, solanapay.NewBuildError(solanapay.ErrInvalidAccount, pda, err.Error())
	}
	return &solanapay.CollectionInfo{PDA: pda, Mint: coll.Mint}, nil
}

func toInventoryState(id solana.PublicKey, cm *CandyMachine) *solanapay.InventoryState {
	state := &solanapay.InventoryState{
		ID:             id,
		Authority:      cm.Authority,
		Treasury:       cm.Wallet,
		ItemsAvailable: cm.Data.ItemsAvailable,
		ItemsRedeemed:  cm.ItemsRedeemed,
		Price:          cm.Data.Price,
		PriceAsset:     cm.TokenMint,
	}
	if cm.Data.GoLiveDate != nil {
		t := time.Unix(*cm.Data.GoLiveDate, 0).UTC()
		state.GoLiveDate = &t
	}
	if wl := cm.Data.WhitelistMintSettings; wl != nil {
		state.AllowList = &solanapay.AllowListGate{
			Mint:          wl.Mint,
			BurnEveryTime: wl.Mode == WhitelistBurnEveryTime,
			Presale:       wl.Presale,
			DiscountPrice: wl.DiscountPrice,
		}
	}
	return state
}

// CreatorAddress derives the PDA that signs as the verified creator of every
// item minted from inventory.
func (p *Program) CreatorAddress(inventory solana.PublicKey) (solana.PublicKey, uint8, error) {
	addr, bump, err := solana.FindProgramAddress([][]byte{[]byte("candy_machine"), inventory[:]}, p.programID)
	if err != nil {
		return solana.PublicKey{}, 0, fmt.Errorf("failed to derive creator address: %w", err)
	}
	return addr, bump, nil
}

// CollectionPDAAddress derives the account linking inventory to its collection.
func (p *Program) CollectionPDAAddress(inventory solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress([][]byte{[]byte("collection"), inventory[:]}, p.programID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive collection pda: %w", err)
	}
	return addr, nil
}

// DeriveMintAddresses derives the metadata, master edition and creator
// addresses for a new mint.
func (p *Program) DeriveMintAddresses(inventory, mint solana.PublicKey) (*solanapay.MintAddresses, error) {
	metadata, err := svm.MetadataAddress(mint)
	if err != nil {
		return nil, err
	}
	edition, err := svm.MasterEditionAddress(mint)
	if err != nil {
		return nil, err
	}
	creator, bump, err := p.CreatorAddress(inventory)
	if err != nil {
		return nil, err
	}
	return &solanapay.MintAddresses{
		Metadata:      metadata,
		MasterEdition: edition,
		Creator:       creator,
		CreatorBump:   bump,
	}, nil
}

// BuildMintInstruction encodes mint_nft. The payer acts as mint and update
// authority of the new asset.
func (p *Program) BuildMintInstruction(state *solanapay.InventoryState, accounts solanapay.InventoryMintAccounts, remaining solana.AccountMetaSlice) (solana.Instruction, error) {
	if !accounts.Inventory.Equals(state.ID) {
		return nil, fmt.Errorf("inventory %s does not match state %s", accounts.Inventory, state.ID)
	}
	addrs := accounts.Addresses

	metas := solana.AccountMetaSlice{
		solana.Meta(accounts.Inventory).WRITE(),
		solana.Meta(addrs.Creator),
		solana.Meta(accounts.Payer).WRITE().SIGNER(),
		solana.Meta(state.Treasury).WRITE(),
		solana.Meta(accounts.Mint).WRITE(),
		solana.Meta(addrs.Metadata).WRITE(),
		solana.Meta(addrs.MasterEdition).WRITE(),
		solana.Meta(accounts.Payer).SIGNER(),
		solana.Meta(accounts.Payer).SIGNER(),
		solana.Meta(svm.TokenMetadataProgramID),
		solana.Meta(solana.TokenProgramID),
		solana.Meta(solana.SystemProgramID),
		solana.Meta(solana.SysVarRentPubkey),
		solana.Meta(solana.SysVarClockPubkey),
		solana.Meta(solana.SysVarSlotHashesPubkey),
		solana.Meta(solana.SysVarInstructionsPubkey),
	}
	metas = append(metas, remaining...)

	data := make([]byte, 0, 9)
	data = append(data, mintNFTDiscriminator[:]...)
	data = append(data, addrs.CreatorBump)

	return solana.NewInstruction(p.programID, metas, data), nil
}

// ParseMintInstruction recovers the named accounts of a mint_nft instruction.
func (p *Program) ParseMintInstruction(accounts []solana.PublicKey, data []byte) (*solanapay.InventoryMintAccounts, error) {
	if len(data) != 9 || !bytes.Equal(data[:8], mintNFTDiscriminator[:]) {
		return nil, fmt.Errorf("not a mint_nft instruction")
	}
	if len(accounts) < mintNFTAccounts {
		return nil, fmt.Errorf("mint_nft needs %d accounts, got %d", mintNFTAccounts, len(accounts))
	}
	return &solanapay.InventoryMintAccounts{
		Inventory: accounts[0],
		Payer:     accounts[2],
		Mint:      accounts[4],
		Addresses: solanapay.MintAddresses{
			Creator:       accounts[1],
			Metadata:      accounts[5],
			MasterEdition: accounts[6],
			CreatorBump:   data[8],
		},
	}, nil
}
