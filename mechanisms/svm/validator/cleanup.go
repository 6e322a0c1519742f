package validator

import (
	"context"
	"fmt"
	"strconv"

	solana "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"

	solanapay "github.com/lmvdz/solana-pay"
	"github.com/lmvdz/solana-pay/mechanisms/svm"
)

// ValidateCleanup checks that sig only revoked delegate authority the mint
// transaction for inventory granted over payer's holding accounts.
//
// Allowed instructions are compute budget instructions and token Revoke
// instructions on payer's holdings of the inventory's allow-list or price
// mint. No token balance may change and no lamports may move apart from the
// fee, which payer must pay.
func (v *Validator) ValidateCleanup(ctx context.Context, sig solana.Signature, payer, inventory solana.PublicKey) (*solanapay.ValidationResult, error) {
	if v.inventory == nil {
		return nil, fmt.Errorf("validator has no inventory program")
	}

	state, err := v.inventory.FetchState(ctx, inventory)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch inventory state: %w", err)
	}
	revocable, err := revocableHoldings(state, payer)
	if err != nil {
		return nil, err
	}

	tx, err := v.fetch(ctx, sig)
	if err == nil {
		err = checkCleanup(tx, payer, revocable)
	}
	return conclude(tx, sig, err)
}

// revocableHoldings are the holding accounts the mint path may have delegated.
func revocableHoldings(state *solanapay.InventoryState, payer solana.PublicKey) ([]solana.PublicKey, error) {
	var mints []solana.PublicKey
	if state.AllowList != nil {
		mints = append(mints, state.AllowList.Mint)
	}
	if state.PriceAsset != nil {
		mints = append(mints, *state.PriceAsset)
	}

	holdings := make([]solana.PublicKey, 0, len(mints))
	for _, m := range mints {
		h, err := svm.HoldingAddress(payer, m)
		if err != nil {
			return nil, err
		}
		holdings = append(holdings, h)
	}
	return holdings, nil
}

func checkCleanup(tx *solanapay.ConfirmedTransaction, payer solana.PublicKey, revocable []solana.PublicKey) error {
	if !tx.AccountKeys[0].Equals(payer) {
		return solanapay.NewMismatch(solanapay.ReasonPayer, "fee_payer", payer.String(), tx.AccountKeys[0].String())
	}

	instructions, err := svm.ResolveInstructions(tx.Transaction, tx.AccountKeys)
	if err != nil {
		return solanapay.NewMismatch(solanapay.ReasonTransactionShape, "instructions", "resolvable", err.Error())
	}

	revokes := 0
	for i, ix := range instructions {
		switch {
		case ix.ProgramID.Equals(solana.ComputeBudget):
			continue
		case ix.ProgramID.Equals(solana.TokenProgramID) && isRevoke(ix):
			if svm.IndexOf(revocable, ix.Accounts[0]) < 0 {
				return solanapay.NewMismatch(solanapay.ReasonCleanupEffect, "revoke", "delegated holding of payer", ix.Accounts[0].String())
			}
			if !ix.Accounts[1].Equals(payer) {
				return solanapay.NewMismatch(solanapay.ReasonCleanupEffect, "revoke_owner", payer.String(), ix.Accounts[1].String())
			}
			revokes++
		default:
			return solanapay.NewMismatch(solanapay.ReasonCleanupEffect, "instruction",
				"revoke", fmt.Sprintf("#%d to %s", i, ix.ProgramID))
		}
	}
	if revokes == 0 {
		return solanapay.NewMismatch(solanapay.ReasonCleanupEffect, "instruction", "revoke", "none")
	}

	meta := tx.Meta
	for i := range tx.AccountKeys {
		pre, post := meta.PreBalances[i], meta.PostBalances[i]
		if i == 0 {
			post += meta.Fee
		}
		if pre != post {
			return solanapay.NewMismatch(solanapay.ReasonCleanupEffect, "lamports",
				strconv.FormatUint(pre, 10), strconv.FormatUint(post, 10))
		}
		if preAmount, postAmount := tokenAmounts(meta, i); preAmount != postAmount {
			return solanapay.NewMismatch(solanapay.ReasonCleanupEffect, "token_balance",
				strconv.FormatUint(preAmount, 10), strconv.FormatUint(postAmount, 10))
		}
	}
	return nil
}

func isRevoke(ix svm.ResolvedInstruction) bool {
	return len(ix.Data) == 1 && ix.Data[0] == token.Instruction_Revoke && len(ix.Accounts) >= 2
}
