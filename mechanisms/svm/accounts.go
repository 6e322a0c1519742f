package svm

import (
	"context"
	"fmt"

	bin "github.com/gagliardetto/binary"
	solana "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"

	solanapay "github.com/lmvdz/solana-pay"
)

// MintInfo is the decoded state of a token mint.
type MintInfo struct {
	Address       solana.PublicKey
	Program       solana.PublicKey
	Decimals      uint8
	Supply        uint64
	IsInitialized bool
	MintAuthority *solana.PublicKey
}

// HoldingInfo is the decoded state of a token holding account.
type HoldingInfo struct {
	Address         solana.PublicKey
	Program         solana.PublicKey
	Mint            solana.PublicKey
	Owner           solana.PublicKey
	Amount          uint64
	State           token.AccountState
	Delegate        *solana.PublicKey
	DelegatedAmount uint64
}

// Initialized reports whether the holding account has been initialized.
func (h *HoldingInfo) Initialized() bool {
	return h.State != token.Uninitialized
}

// Frozen reports whether the holding account is frozen.
func (h *HoldingInfo) Frozen() bool {
	return h.State == token.Frozen
}

// DecodeMint decodes a mint account owned by a token program. Token-2022
// extensions after the base layout are ignored.
func DecodeMint(acc *solanapay.AccountInfo) (*MintInfo, error) {
	if !IsTokenProgram(acc.Owner) {
		return nil, solanapay.NewBuildError(solanapay.ErrInvalidAccount, acc.Address, "mint not owned by a token program")
	}
	if len(acc.Data) < MintSize {
		return nil, solanapay.NewBuildError(solanapay.ErrInvalidAccount, acc.Address, fmt.Sprintf("mint data too short: %d bytes", len(acc.Data)))
	}

	var mint token.Mint
	if err := bin.NewBinDecoder(acc.Data[:MintSize]).Decode(&mint); err != nil {
		return nil, solanapay.NewBuildError(solanapay.ErrInvalidAccount, acc.Address, "failed to decode mint: "+err.Error())
	}

	return &MintInfo{
		Address:       acc.Address,
		Program:       acc.Owner,
		Decimals:      mint.Decimals,
		Supply:        mint.Supply,
		IsInitialized: mint.IsInitialized,
		MintAuthority: mint.MintAuthority,
	}, nil
}

// DecodeHolding decodes a holding account owned by a token program.
func DecodeHolding(acc *solanapay.AccountInfo) (*HoldingInfo, error) {
	if !IsTokenProgram(acc.Owner) {
		return nil, solanapay.NewBuildError(solanapay.ErrInvalidAccount, acc.Address, "holding account not owned by a token program")
	}
	if len(acc.Data) < HoldingSize {
		return nil, solanapay.NewBuildError(solanapay.ErrInvalidAccount, acc.Address, fmt.Sprintf("holding data too short: %d bytes", len(acc.Data)))
	}

	var holding token.Account
	if err := bin.NewBinDecoder(acc.Data[:HoldingSize]).Decode(&holding); err != nil {
		return nil, solanapay.NewBuildError(solanapay.ErrInvalidAccount, acc.Address, "failed to decode holding account: "+err.Error())
	}

	return &HoldingInfo{
		Address:         acc.Address,
		Program:         acc.Owner,
		Mint:            holding.Mint,
		Owner:           holding.Owner,
		Amount:          holding.Amount,
		State:           holding.State,
		Delegate:        holding.Delegate,
		DelegatedAmount: holding.DelegatedAmount,
	}, nil
}

// FetchAccount reads an account, failing with ErrAccountNotFound when it is absent.
func FetchAccount(ctx context.Context, ledger solanapay.Ledger, address solana.PublicKey) (*solanapay.AccountInfo, error) {
	acc, err := ledger.GetAccount(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("failed to get account %s: %w", address, err)
	}
	if acc == nil {
		return nil, solanapay.NewBuildError(solanapay.ErrAccountNotFound, address, "account does not exist")
	}
	return acc, nil
}

// FetchMint reads and decodes a mint account.
func FetchMint(ctx context.Context, ledger solanapay.Ledger, address solana.PublicKey) (*MintInfo, error) {
	acc, err := FetchAccount(ctx, ledger, address)
	if err != nil {
		return nil, err
	}
	return DecodeMint(acc)
}

// FetchHolding reads and decodes a holding account.
func FetchHolding(ctx context.Context, ledger solanapay.Ledger, address solana.PublicKey) (*HoldingInfo, error) {
	acc, err := FetchAccount(ctx, ledger, address)
	if err != nil {
		return nil, err
	}
	return DecodeHolding(acc)
}

// HoldingAddress derives the associated holding account of owner for a
// mint of the classic token program.
func HoldingAddress(owner, mint solana.PublicKey) (solana.PublicKey, error) {
	return HoldingAddressForProgram(owner, mint, solana.TokenProgramID)
}

// HoldingAddressForProgram derives the associated holding account of owner
// for a mint owned by tokenProgram.
func HoldingAddressForProgram(owner, mint, tokenProgram solana.PublicKey) (solana.PublicKey, error) {
	ata, _, err := solana.FindProgramAddress(
		[][]byte{owner[:], tokenProgram[:], mint[:]},
		solana.SPLAssociatedTokenAccountProgramID,
	)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive holding account: %w", err)
	}
	return ata, nil
}
