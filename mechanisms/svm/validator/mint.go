package validator

import (
	"context"
	"fmt"

	solana "github.com/gagliardetto/solana-go"

	solanapay "github.com/lmvdz/solana-pay"
	"github.com/lmvdz/solana-pay/mechanisms/svm"
)

// ValidateMint checks that sig executed the inventory program's mint
// instruction for inventory with payer as payer, and that the asset it
// issued was created by the transaction with a supply of exactly one unit,
// held by payer afterwards.
func (v *Validator) ValidateMint(ctx context.Context, sig solana.Signature, payer, inventory solana.PublicKey) (*solanapay.ValidationResult, error) {
	if v.inventory == nil {
		return nil, fmt.Errorf("validator has no inventory program")
	}

	tx, err := v.fetch(ctx, sig)
	if err == nil {
		err = v.checkMint(tx, payer, inventory)
	}
	return conclude(tx, sig, err)
}

func (v *Validator) checkMint(tx *solanapay.ConfirmedTransaction, payer, inventory solana.PublicKey) error {
	accounts, err := v.mintInstruction(tx)
	if err != nil {
		return err
	}
	if !accounts.Inventory.Equals(inventory) {
		return solanapay.NewMismatch(solanapay.ReasonInventory, "inventory", inventory.String(), accounts.Inventory.String())
	}
	if !accounts.Payer.Equals(payer) {
		return solanapay.NewMismatch(solanapay.ReasonPayer, "payer", payer.String(), accounts.Payer.String())
	}

	mint := accounts.Mint
	mintIdx := svm.IndexOf(tx.AccountKeys, mint)
	if mintIdx < 0 || tx.Meta.PreBalances[mintIdx] != 0 || tx.Meta.PostBalances[mintIdx] == 0 {
		return solanapay.NewMismatch(solanapay.ReasonMintedAsset, "mint", "account created by transaction", mint.String())
	}

	holding, err := svm.HoldingAddress(payer, mint)
	if err != nil {
		return err
	}
	holdingIdx := svm.IndexOf(tx.AccountKeys, holding)
	if holdingIdx < 0 {
		return solanapay.NewMismatch(solanapay.ReasonMintedAsset, "holding", holding.String(), "absent")
	}
	post, ok := tokenBalance(tx.Meta.PostTokenBalances, holdingIdx)
	if !ok || !post.Mint.Equals(mint) || !post.Owner.Equals(payer) {
		return solanapay.NewMismatch(solanapay.ReasonMintedAsset, "holding", "payer holds new asset", "no matching balance")
	}
	if post.Decimals != 0 {
		return solanapay.NewMismatch(solanapay.ReasonMintedAsset, "decimals", "0", fmt.Sprint(post.Decimals))
	}
	if pre, postAmount := tokenAmounts(tx.Meta, holdingIdx); pre != 0 || postAmount != 1 {
		return solanapay.NewMismatch(solanapay.ReasonMintedAsset, "supply", "0 -> 1", fmt.Sprintf("%d -> %d", pre, postAmount))
	}

	// Every unit of the new asset must be in the payer's holding.
	for _, b := range tx.Meta.PostTokenBalances {
		if b.Mint.Equals(mint) && int(b.AccountIndex) != holdingIdx && b.Amount > 0 {
			return solanapay.NewMismatch(solanapay.ReasonMintedAsset, "supply", "1", "issued to other holders")
		}
	}
	return nil
}

// mintInstruction finds the single inventory mint instruction of tx.
func (v *Validator) mintInstruction(tx *solanapay.ConfirmedTransaction) (*solanapay.InventoryMintAccounts, error) {
	instructions, err := svm.ResolveInstructions(tx.Transaction, tx.AccountKeys)
	if err != nil {
		return nil, solanapay.NewMismatch(solanapay.ReasonTransactionShape, "instructions", "resolvable", err.Error())
	}

	program := v.inventory.ProgramID()
	var found *solanapay.InventoryMintAccounts
	for _, ix := range instructions {
		if !ix.ProgramID.Equals(program) {
			continue
		}
		accounts, err := v.inventory.ParseMintInstruction(ix.Accounts, ix.Data)
		if err != nil {
			continue
		}
		if found != nil {
			return nil, solanapay.NewMismatch(solanapay.ReasonTransactionShape, "instructions", "one mint instruction", "several")
		}
		found = accounts
	}
	if found == nil {
		return nil, solanapay.NewMismatch(solanapay.ReasonInventory, "inventory", "mint instruction", "absent")
	}
	return found, nil
}
