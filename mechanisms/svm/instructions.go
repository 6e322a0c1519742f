package svm

import (
	"fmt"

	solana "github.com/gagliardetto/solana-go"
)

// NewMemoInstruction attaches a UTF-8 note to a transaction.
func NewMemoInstruction(memo string) solana.Instruction {
	return solana.NewInstruction(MemoProgramID, solana.AccountMetaSlice{}, []byte(memo))
}

// WithReferences returns a copy of ix whose account list ends with each
// reference, in order, as a read-only non-signer.
func WithReferences(ix solana.Instruction, refs []solana.PublicKey) (solana.Instruction, error) {
	if len(refs) == 0 {
		return ix, nil
	}
	data, err := ix.Data()
	if err != nil {
		return nil, fmt.Errorf("failed to read instruction data: %w", err)
	}

	accounts := make(solana.AccountMetaSlice, 0, len(ix.Accounts())+len(refs))
	accounts = append(accounts, ix.Accounts()...)
	for _, ref := range refs {
		accounts = append(accounts, solana.NewAccountMeta(ref, false, false))
	}
	return solana.NewInstruction(ix.ProgramID(), accounts, data), nil
}

// WithProgram returns a copy of ix addressed to program. Token-2022 shares the
// classic token program's instruction layout for the instructions used here.
func WithProgram(ix solana.Instruction, program solana.PublicKey) (solana.Instruction, error) {
	if ix.ProgramID().Equals(program) {
		return ix, nil
	}
	data, err := ix.Data()
	if err != nil {
		return nil, fmt.Errorf("failed to read instruction data: %w", err)
	}
	return solana.NewInstruction(program, ix.Accounts(), data), nil
}

// ResolvedInstruction is a compiled instruction with its indices resolved
// against the transaction's full account key list.
type ResolvedInstruction struct {
	ProgramID solana.PublicKey
	Accounts  []solana.PublicKey
	Data      []byte
}

// ResolveInstructions resolves every top-level instruction of tx against keys.
func ResolveInstructions(tx *solana.Transaction, keys []solana.PublicKey) ([]ResolvedInstruction, error) {
	out := make([]ResolvedInstruction, 0, len(tx.Message.Instructions))
	for i, ci := range tx.Message.Instructions {
		if int(ci.ProgramIDIndex) >= len(keys) {
			return nil, fmt.Errorf("instruction %d: program index %d out of range", i, ci.ProgramIDIndex)
		}
		accounts := make([]solana.PublicKey, len(ci.Accounts))
		for j, idx := range ci.Accounts {
			if int(idx) >= len(keys) {
				return nil, fmt.Errorf("instruction %d: account index %d out of range", i, idx)
			}
			accounts[j] = keys[idx]
		}
		out = append(out, ResolvedInstruction{
			ProgramID: keys[ci.ProgramIDIndex],
			Accounts:  accounts,
			Data:      ci.Data,
		})
	}
	return out, nil
}

// IndexOf returns the position of key in keys, or -1.
func IndexOf(keys []solana.PublicKey, key solana.PublicKey) int {
	for i, k := range keys {
		if k.Equals(key) {
			return i
		}
	}
	return -1
}
