package builder

import (
	"context"
	"fmt"

	solana "github.com/gagliardetto/solana-go"
	associatedtokenaccount "github.com/gagliardetto/solana-go/programs/associated-token-account"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"

	solanapay "github.com/lmvdz/solana-pay"
	"github.com/lmvdz/solana-pay/mechanisms/svm"
)

// mintContext is everything the mint contributors need, read from the ledger
// up front so that each contributor is a pure function of it.
type mintContext struct {
	state     *solanapay.InventoryState
	payer     solana.PublicKey
	mint      solana.PublicKey
	holding   solana.PublicKey
	addresses *solanapay.MintAddresses
	mintRent  uint64
	// references tag the issue instruction for discovery.
	references []solana.PublicKey

	// allowListHolding is the payer's holding account for the allow-list
	// mint, and allowListHoldingExists whether it exists on the ledger.
	allowListHolding       solana.PublicKey
	allowListHoldingExists bool
}

// contribution is the output of one contributor step.
type contribution struct {
	instructions []solana.Instruction
	cleanup      []solana.Instruction
	remaining    solana.AccountMetaSlice
	signers      []solana.PrivateKey
}

// contributor adds an optional slice of the mint transaction. A nil
// contribution means the feature does not apply.
type contributor func(mc *mintContext, keys solanapay.KeyGenerator) (*contribution, error)

// mintContributors run in this order. Base must come first: later
// instructions reference the accounts it creates.
var mintContributors = []contributor{
	baseContributor,
	allowListContributor,
	priceAssetContributor,
	collectionContributor,
}

// BuildMint builds a transaction minting one item from the inventory named
// by intent, paid for and owned by payer.
//
// The primary instructions are: create the mint account, initialize it with
// zero decimals, create the payer's holding account, issue one unit, any
// delegate approvals, and finally the inventory program's mint instruction.
// Approvals are paired with revokes in the cleanup instructions.
func (b *Builder) BuildMint(ctx context.Context, payer solana.PublicKey, intent solanapay.MintIntent) (*solanapay.BuiltTransaction, error) {
	if b.inventory == nil {
		return nil, fmt.Errorf("builder has no inventory program")
	}

	if _, err := svm.FetchAccount(ctx, b.ledger, payer); err != nil {
		return nil, err
	}

	state, err := b.inventory.FetchState(ctx, intent.Inventory)
	if err != nil {
		return nil, err
	}
	if state.ItemsRemaining() == 0 {
		return nil, solanapay.NewBuildError(solanapay.ErrSoldOut, intent.Inventory,
			fmt.Sprintf("%d of %d items redeemed", state.ItemsRedeemed, state.ItemsAvailable))
	}
	if intent.Treasury != nil && !intent.Treasury.Equals(state.Treasury) {
		return nil, solanapay.NewBuildError(solanapay.ErrInvalidAccount, *intent.Treasury, "treasury does not match inventory")
	}

	mintKey, err := b.keys.NewKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate mint key: %w", err)
	}
	mc, err := b.newMintContext(ctx, state, payer, mintKey.PublicKey())
	if err != nil {
		return nil, err
	}
	mc.references = intent.References

	built := &solanapay.BuiltTransaction{
		Payer:            payer,
		Signers:          []solana.PublicKey{payer, mc.mint},
		EphemeralSigners: []solana.PrivateKey{mintKey},
	}
	var remaining solana.AccountMetaSlice
	for _, step := range mintContributors {
		c, err := step(mc, b.keys)
		if err != nil {
			return nil, err
		}
		if c == nil {
			continue
		}
		built.Instructions = append(built.Instructions, c.instructions...)
		built.CleanupInstructions = append(built.CleanupInstructions, c.cleanup...)
		remaining = append(remaining, c.remaining...)
		for _, k := range c.signers {
			built.Signers = append(built.Signers, k.PublicKey())
			built.EphemeralSigners = append(built.EphemeralSigners, k)
		}
	}

	mintIx, err := b.inventory.BuildMintInstruction(state, solanapay.InventoryMintAccounts{
		Inventory: state.ID,
		Payer:     payer,
		Mint:      mc.mint,
		Addresses: *mc.addresses,
	}, remaining)
	if err != nil {
		return nil, fmt.Errorf("failed to build inventory mint instruction: %w", err)
	}
	built.Instructions = append(built.Instructions, mintIx)

	return built, nil
}

func (b *Builder) newMintContext(ctx context.Context, state *solanapay.InventoryState, payer, mint solana.PublicKey) (*mintContext, error) {
	holding, err := svm.HoldingAddress(payer, mint)
	if err != nil {
		return nil, err
	}
	addresses, err := b.inventory.DeriveMintAddresses(state.ID, mint)
	if err != nil {
		return nil, fmt.Errorf("failed to derive mint addresses: %w", err)
	}
	rent, err := b.ledger.GetMinimumBalanceForRentExemption(ctx, svm.MintSize)
	if err != nil {
		return nil, fmt.Errorf("failed to get rent exemption: %w", err)
	}

	mc := &mintContext{
		state:     state,
		payer:     payer,
		mint:      mint,
		holding:   holding,
		addresses: addresses,
		mintRent:  rent,
	}

	if gate := state.AllowList; gate != nil {
		mc.allowListHolding, err = svm.HoldingAddress(payer, gate.Mint)
		if err != nil {
			return nil, err
		}
		acc, err := b.ledger.GetAccount(ctx, mc.allowListHolding)
		if err != nil {
			return nil, fmt.Errorf("failed to get allow-list holding account: %w", err)
		}
		mc.allowListHoldingExists = acc != nil
	}
	return mc, nil
}

// baseContributor creates and initializes the new asset and issues one unit
// to the payer.
func baseContributor(mc *mintContext, _ solanapay.KeyGenerator) (*contribution, error) {
	createMint := system.NewCreateAccountInstruction(
		mc.mintRent,
		svm.MintSize,
		solana.TokenProgramID,
		mc.payer,
		mc.mint,
	).Build()

	initMint, err := token.NewInitializeMintInstruction(
		0,
		mc.payer,
		mc.payer,
		mc.mint,
		solana.SysVarRentPubkey,
	).ValidateAndBuild()
	if err != nil {
		return nil, fmt.Errorf("failed to build initialize mint instruction: %w", err)
	}

	createHolding, err := associatedtokenaccount.NewCreateInstruction(mc.payer, mc.payer, mc.mint).ValidateAndBuild()
	if err != nil {
		return nil, fmt.Errorf("failed to build create holding instruction: %w", err)
	}

	issue, err := token.NewMintToInstruction(1, mc.mint, mc.holding, mc.payer, nil).ValidateAndBuild()
	if err != nil {
		return nil, fmt.Errorf("failed to build mint-to instruction: %w", err)
	}
	// The inventory program rejects instructions of unknown programs, so
	// references ride on the token instruction instead of a memo.
	tagged, err := svm.WithReferences(issue, mc.references)
	if err != nil {
		return nil, err
	}

	return &contribution{
		instructions: []solana.Instruction{createMint, initMint, createHolding, tagged},
	}, nil
}

// allowListContributor passes the payer's allow-list holding account to the
// inventory program. A burn-every-time gate also needs the gate mint and a
// fresh burn authority approved for one token, revoked in cleanup.
func allowListContributor(mc *mintContext, keys solanapay.KeyGenerator) (*contribution, error) {
	gate := mc.state.AllowList
	if gate == nil {
		return nil, nil
	}

	c := &contribution{
		remaining: solana.AccountMetaSlice{solana.Meta(mc.allowListHolding).WRITE()},
	}
	if !gate.BurnEveryTime {
		return c, nil
	}

	burnAuthority, err := keys.NewKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate burn authority: %w", err)
	}
	c.remaining = append(c.remaining,
		solana.Meta(gate.Mint).WRITE(),
		solana.Meta(burnAuthority.PublicKey()).SIGNER(),
	)
	c.signers = []solana.PrivateKey{burnAuthority}

	if mc.allowListHoldingExists {
		approve, revoke, err := delegatePair(mc.allowListHolding, burnAuthority.PublicKey(), mc.payer, 1)
		if err != nil {
			return nil, err
		}
		c.instructions = []solana.Instruction{approve}
		c.cleanup = []solana.Instruction{revoke}
	}
	return c, nil
}

// priceAssetContributor lets a fresh transfer authority move the mint price
// out of the payer's holding account of the purchase currency.
func priceAssetContributor(mc *mintContext, keys solanapay.KeyGenerator) (*contribution, error) {
	asset := mc.state.PriceAsset
	if asset == nil {
		return nil, nil
	}

	holding, err := svm.HoldingAddress(mc.payer, *asset)
	if err != nil {
		return nil, err
	}
	transferAuthority, err := keys.NewKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate transfer authority: %w", err)
	}

	approve, revoke, err := delegatePair(holding, transferAuthority.PublicKey(), mc.payer, mc.state.Price)
	if err != nil {
		return nil, err
	}
	return &contribution{
		instructions: []solana.Instruction{approve},
		cleanup:      []solana.Instruction{revoke},
		remaining: solana.AccountMetaSlice{
			solana.Meta(holding).WRITE(),
			solana.Meta(transferAuthority.PublicKey()).SIGNER(),
		},
		signers: []solana.PrivateKey{transferAuthority},
	}, nil
}

// collectionContributor passes the collection accounts so the minted item is
// verified into the inventory's collection.
func collectionContributor(mc *mintContext, _ solanapay.KeyGenerator) (*contribution, error) {
	coll := mc.state.Collection
	if coll == nil {
		return nil, nil
	}

	metadata, err := svm.MetadataAddress(coll.Mint)
	if err != nil {
		return nil, err
	}
	edition, err := svm.MasterEditionAddress(coll.Mint)
	if err != nil {
		return nil, err
	}
	record, err := svm.CollectionAuthorityRecordAddress(coll.Mint, coll.PDA)
	if err != nil {
		return nil, err
	}

	return &contribution{
		remaining: solana.AccountMetaSlice{
			solana.Meta(coll.PDA).WRITE(),
			solana.Meta(coll.Mint),
			solana.Meta(metadata).WRITE(),
			solana.Meta(edition),
			solana.Meta(record),
		},
	}, nil
}

func delegatePair(holding, delegate, owner solana.PublicKey, amount uint64) (solana.Instruction, solana.Instruction, error) {
	approve, err := token.NewApproveInstruction(amount, holding, delegate, owner, nil).ValidateAndBuild()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build approve instruction: %w", err)
	}
	revoke, err := token.NewRevokeInstruction(holding, owner, nil).ValidateAndBuild()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build revoke instruction: %w", err)
	}
	return approve, revoke, nil
}
