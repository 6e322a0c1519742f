package solanapay

import (
	"context"
	"time"

	solana "github.com/gagliardetto/solana-go"
)

// ============================================================================
// Ledger collaborator
// ============================================================================

// AccountInfo is the raw state of one ledger account.
type AccountInfo struct {
	Address    solana.PublicKey
	Owner      solana.PublicKey
	Lamports   uint64
	Executable bool
	Data       []byte
}

// SignatureInfo is one entry of an address's signature history.
type SignatureInfo struct {
	Signature solana.Signature
	Slot      uint64
	// Err is empty when the transaction succeeded on-chain.
	Err string
}

// Failed reports whether the transaction failed on-chain.
func (s SignatureInfo) Failed() bool {
	return s.Err != ""
}

// SignatureQuery bounds a signature history query.
type SignatureQuery struct {
	// Before starts the search below this signature (older).
	Before *solana.Signature
	// Until stops the search at this signature (exclusive), for incremental polling.
	Until      *solana.Signature
	Limit      int
	Commitment Commitment
}

// SignatureStatus is the ledger's current view of a submitted transaction.
type SignatureStatus struct {
	Slot         uint64
	Confirmation Commitment
	Err          string
}

// TokenBalance is a holding account balance recorded before or after a transaction.
type TokenBalance struct {
	AccountIndex uint16
	Mint         solana.PublicKey
	Owner        solana.PublicKey
	Amount       uint64
	Decimals     uint8
}

// TransactionMeta holds the recorded effects of a confirmed transaction.
type TransactionMeta struct {
	Err               string
	Fee               uint64
	PreBalances       []uint64
	PostBalances      []uint64
	PreTokenBalances  []TokenBalance
	PostTokenBalances []TokenBalance
}

// ConfirmedTransaction is a transaction together with its recorded effects.
// AccountKeys are fully resolved (static keys followed by any keys loaded
// from address lookup tables) and index the balance slices in Meta.
type ConfirmedTransaction struct {
	Signature   solana.Signature
	Slot        uint64
	Transaction *solana.Transaction
	AccountKeys []solana.PublicKey
	Meta        TransactionMeta
}

// Ledger is the read side of the ledger service.
type Ledger interface {
	// GetAccount returns nil, nil when the account does not exist.
	GetAccount(ctx context.Context, address solana.PublicKey) (*AccountInfo, error)
	GetMinimumBalanceForRentExemption(ctx context.Context, dataSize uint64) (uint64, error)
	// GetSignaturesForAddress returns history newest first.
	GetSignaturesForAddress(ctx context.Context, address solana.PublicKey, query SignatureQuery) ([]SignatureInfo, error)
	// GetSignatureStatus returns nil, nil when the ledger has no record of sig.
	GetSignatureStatus(ctx context.Context, sig solana.Signature) (*SignatureStatus, error)
	// GetTransaction returns nil, nil when sig is not available at commitment.
	GetTransaction(ctx context.Context, sig solana.Signature, commitment Commitment) (*ConfirmedTransaction, error)
}

// Submitter is the write side of the ledger service. Only orchestrators use it.
type Submitter interface {
	GetLatestBlockhash(ctx context.Context) (solana.Hash, error)
	SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
}

// ============================================================================
// Inventory program collaborator (mint path)
// ============================================================================

// AllowListGate restricts minting to holders of an allow-list token.
type AllowListGate struct {
	Mint          solana.PublicKey
	BurnEveryTime bool
	Presale       bool
	DiscountPrice *uint64
}

// CollectionInfo links minted items to a collection.
type CollectionInfo struct {
	PDA  solana.PublicKey
	Mint solana.PublicKey
}

// InventoryState is the decoded, typed state of an inventory program account.
type InventoryState struct {
	ID             solana.PublicKey
	Authority      solana.PublicKey
	Treasury       solana.PublicKey
	ItemsAvailable uint64
	ItemsRedeemed  uint64
	GoLiveDate     *time.Time
	// Price is in base units of PriceAsset, or lamports when PriceAsset is nil.
	Price      uint64
	PriceAsset *solana.PublicKey
	AllowList  *AllowListGate
	Collection *CollectionInfo
}

// ItemsRemaining returns how many items can still be minted.
func (s *InventoryState) ItemsRemaining() uint64 {
	if s.ItemsRedeemed >= s.ItemsAvailable {
		return 0
	}
	return s.ItemsAvailable - s.ItemsRedeemed
}

// MintAddresses are the program-derived addresses tied to one new asset.
type MintAddresses struct {
	Metadata      solana.PublicKey
	MasterEdition solana.PublicKey
	Creator       solana.PublicKey
	CreatorBump   uint8
}

// InventoryMintAccounts are the named accounts of the inventory mint instruction.
type InventoryMintAccounts struct {
	Inventory solana.PublicKey
	Payer     solana.PublicKey
	Mint      solana.PublicKey
	Addresses MintAddresses
}

// InventoryProgram is the on-chain program governing limited-supply issuance.
type InventoryProgram interface {
	ProgramID() solana.PublicKey
	FetchState(ctx context.Context, inventory solana.PublicKey) (*InventoryState, error)
	DeriveMintAddresses(inventory, mint solana.PublicKey) (*MintAddresses, error)
	BuildMintInstruction(state *InventoryState, accounts InventoryMintAccounts, remaining solana.AccountMetaSlice) (solana.Instruction, error)
	// ParseMintInstruction recovers the named accounts from a mint instruction
	// found in a confirmed transaction. It fails for any other instruction of
	// the program.
	ParseMintInstruction(accounts []solana.PublicKey, data []byte) (*InventoryMintAccounts, error)
}

// ============================================================================
// Key generation capability
// ============================================================================

// KeyGenerator creates fresh single-use keys inside the builder.
type KeyGenerator interface {
	NewKey() (solana.PrivateKey, error)
}

// KeyGeneratorFunc adapts a function to KeyGenerator.
type KeyGeneratorFunc func() (solana.PrivateKey, error)

// NewKey calls f.
func (f KeyGeneratorFunc) NewKey() (solana.PrivateKey, error) {
	return f()
}

// RandomKeys generates keys from the system random source.
var RandomKeys KeyGenerator = KeyGeneratorFunc(solana.NewRandomPrivateKey)
