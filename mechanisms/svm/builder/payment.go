package builder

import (
	"context"
	"fmt"

	solana "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"

	solanapay "github.com/lmvdz/solana-pay"
	"github.com/lmvdz/solana-pay/mechanisms/svm"
)

// BuildPayment builds the transfer requested by intent, funded by payer.
//
// The transfer is a system transfer for SOL or a TransferChecked between the
// associated holding accounts for an SPL token. Every reference is appended
// to the transfer instruction as a read-only non-signer, and a memo, when
// present, is prepended as its own instruction.
func (b *Builder) BuildPayment(ctx context.Context, payer solana.PublicKey, intent solanapay.PaymentIntent) (*solanapay.BuiltTransaction, error) {
	if intent.Amount == nil {
		return nil, solanapay.NewBuildError(solanapay.ErrInvalidAmount, solana.PublicKey{}, "amount is required")
	}

	var (
		transfer solana.Instruction
		err      error
	)
	if intent.SPLToken == nil {
		transfer, err = b.nativeTransfer(ctx, payer, intent)
	} else {
		transfer, err = b.tokenTransfer(ctx, payer, intent)
	}
	if err != nil {
		return nil, err
	}

	transfer, err = svm.WithReferences(transfer, intent.References)
	if err != nil {
		return nil, err
	}

	var instructions []solana.Instruction
	if intent.Memo != "" {
		instructions = append(instructions, svm.NewMemoInstruction(intent.Memo))
	}
	instructions = append(instructions, transfer)

	return &solanapay.BuiltTransaction{
		Payer:        payer,
		Instructions: instructions,
		Signers:      []solana.PublicKey{payer},
	}, nil
}

func (b *Builder) nativeTransfer(ctx context.Context, payer solana.PublicKey, intent solanapay.PaymentIntent) (solana.Instruction, error) {
	// Scale is checked before any ledger read.
	lamports, err := solanapay.ToBaseUnits(*intent.Amount, solanapay.NativeDecimals)
	if err != nil {
		return nil, err
	}

	payerAcc, recipientAcc, err := b.fetchParties(ctx, payer, intent.Recipient)
	if err != nil {
		return nil, err
	}
	for _, acc := range []*solanapay.AccountInfo{payerAcc, recipientAcc} {
		if !acc.Owner.Equals(solana.SystemProgramID) {
			return nil, solanapay.NewBuildError(solanapay.ErrInvalidAccount, acc.Address, "account not owned by the system program")
		}
		if acc.Executable {
			return nil, solanapay.NewBuildError(solanapay.ErrInvalidAccount, acc.Address, "account is executable")
		}
	}
	if payerAcc.Lamports < lamports {
		return nil, solanapay.NewBuildError(solanapay.ErrInsufficientFunds, payer,
			fmt.Sprintf("balance %d lamports, need %d", payerAcc.Lamports, lamports))
	}

	return system.NewTransferInstruction(lamports, payer, intent.Recipient).Build(), nil
}

func (b *Builder) tokenTransfer(ctx context.Context, payer solana.PublicKey, intent solanapay.PaymentIntent) (solana.Instruction, error) {
	if _, _, err := b.fetchParties(ctx, payer, intent.Recipient); err != nil {
		return nil, err
	}

	mintAddr := *intent.SPLToken
	mint, err := svm.FetchMint(ctx, b.ledger, mintAddr)
	if err != nil {
		return nil, err
	}
	if !mint.IsInitialized {
		return nil, solanapay.NewBuildError(solanapay.ErrInvalidAccount, mintAddr, "mint not initialized")
	}

	units, err := solanapay.ToBaseUnits(*intent.Amount, mint.Decimals)
	if err != nil {
		return nil, err
	}

	source, err := b.usableHolding(ctx, payer, mint)
	if err != nil {
		return nil, err
	}
	destination, err := b.usableHolding(ctx, intent.Recipient, mint)
	if err != nil {
		return nil, err
	}
	if source.Amount < units {
		return nil, solanapay.NewBuildError(solanapay.ErrInsufficientFunds, source.Address,
			fmt.Sprintf("token balance %d, need %d", source.Amount, units))
	}

	ix, err := token.NewTransferCheckedInstructionBuilder().
		SetAmount(units).
		SetDecimals(mint.Decimals).
		SetSourceAccount(source.Address).
		SetMintAccount(mintAddr).
		SetDestinationAccount(destination.Address).
		SetOwnerAccount(payer).
		ValidateAndBuild()
	if err != nil {
		return nil, fmt.Errorf("failed to build transfer instruction: %w", err)
	}
	return svm.WithProgram(ix, mint.Program)
}

func (b *Builder) fetchParties(ctx context.Context, payer, recipient solana.PublicKey) (*solanapay.AccountInfo, *solanapay.AccountInfo, error) {
	payerAcc, err := svm.FetchAccount(ctx, b.ledger, payer)
	if err != nil {
		return nil, nil, err
	}
	recipientAcc, err := svm.FetchAccount(ctx, b.ledger, recipient)
	if err != nil {
		return nil, nil, err
	}
	return payerAcc, recipientAcc, nil
}

// usableHolding fetches owner's associated holding account for mint and
// checks it can take part in a transfer.
func (b *Builder) usableHolding(ctx context.Context, owner solana.PublicKey, mint *svm.MintInfo) (*svm.HoldingInfo, error) {
	addr, err := svm.HoldingAddressForProgram(owner, mint.Address, mint.Program)
	if err != nil {
		return nil, err
	}
	holding, err := svm.FetchHolding(ctx, b.ledger, addr)
	if err != nil {
		return nil, err
	}
	if !holding.Initialized() {
		return nil, solanapay.NewBuildError(solanapay.ErrInvalidAccount, addr, "holding account not initialized")
	}
	if holding.Frozen() {
		return nil, solanapay.NewBuildError(solanapay.ErrInvalidAccount, addr, "holding account is frozen")
	}
	return holding, nil
}
