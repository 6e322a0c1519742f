package cli

import (
	"context"
	"errors"
	"fmt"

	solana "github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"

	solanapay "github.com/lmvdz/solana-pay"
	"github.com/lmvdz/solana-pay/mechanisms/candymachine"
	"github.com/lmvdz/solana-pay/mechanisms/svm/finder"
	"github.com/lmvdz/solana-pay/mechanisms/svm/validator"
	"github.com/lmvdz/solana-pay/payurl"
)

// resultView is the JSON rendering of a find or validate outcome.
type resultView struct {
	Valid     bool   `json:"valid"`
	Signature string `json:"signature,omitempty"`
	Slot      uint64 `json:"slot,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Error     string `json:"error,omitempty"`
}

func createFindCmd() *cobra.Command {
	var limit int
	var until string

	cmd := &cobra.Command{
		Use:   "find <reference>",
		Short: "Find the latest successful transaction tagged with a reference",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reference, err := payurl.ParseAccount(args[0])
			if err != nil {
				return fmt.Errorf("invalid reference: %w", err)
			}
			opts := finder.Options{Limit: limit}
			if until != "" {
				sig, err := solana.SignatureFromBase58(until)
				if err != nil {
					return fmt.Errorf("invalid --until: %w", err)
				}
				opts.Until = &sig
			}

			cfg, _, ledger, err := setup()
			if err != nil {
				return err
			}
			opts.Commitment = cfg.Commitment()

			found, err := finder.FindSignature(cmd.Context(), ledger, reference, opts)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), resultView{Valid: true, Signature: found.Signature.String(), Slot: found.Slot})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", finder.DefaultLimit, "history entries to scan")
	cmd.Flags().StringVar(&until, "until", "", "stop at this signature (exclusive)")
	return cmd
}

func createValidateCmd() *cobra.Command {
	var (
		recipient string
		amount    string
		splToken  string
		reference string
		inventory string
		payer     string
		cleanup   bool
	)

	cmd := &cobra.Command{
		Use:   "validate <signature>",
		Short: "Validate a confirmed transaction against a request",
		Long: `Validate a confirmed transaction against a payment request, or against a
candy machine mint when --inventory is set.

EXAMPLES:
  # Check a payment of 1.5 SOL
  solanapay validate <signature> --recipient <address> --amount 1.5

  # Check a mint and its cleanup
  solanapay validate <signature> --inventory <candy machine> --payer <address>
  solanapay validate <signature> --inventory <candy machine> --payer <address> --cleanup
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sig, err := solana.SignatureFromBase58(args[0])
			if err != nil {
				return fmt.Errorf("invalid signature: %w", err)
			}

			cfg, _, ledger, err := setup()
			if err != nil {
				return err
			}
			program := candymachine.New(ledger)
			v := validator.New(ledger,
				validator.WithCommitment(cfg.Commitment()),
				validator.WithInventoryProgram(program),
			)

			var result *solanapay.ValidationResult
			if inventory != "" {
				result, err = validateMint(cmd.Context(), v, sig, inventory, payer, cleanup)
			} else {
				result, err = validatePayment(cmd.Context(), v, sig, recipient, amount, splToken, reference)
			}
			return report(cmd, sig, result, err)
		},
	}

	cmd.Flags().StringVar(&recipient, "recipient", "", "expected recipient (payments)")
	cmd.Flags().StringVar(&amount, "amount", "", "expected amount in whole units (payments)")
	cmd.Flags().StringVar(&splToken, "spl-token", "", "expected token mint (default: SOL)")
	cmd.Flags().StringVar(&reference, "reference", "", "reference that must be present")
	cmd.Flags().StringVar(&inventory, "inventory", "", "candy machine account (mints)")
	cmd.Flags().StringVar(&payer, "payer", "", "expected payer (mints)")
	cmd.Flags().BoolVar(&cleanup, "cleanup", false, "validate the cleanup transaction of a mint")
	return cmd
}

func validatePayment(ctx context.Context, v *validator.Validator, sig solana.Signature, recipient, amount, splToken, reference string) (*solanapay.ValidationResult, error) {
	to, err := payurl.ParseAccount(recipient)
	if err != nil {
		return nil, fmt.Errorf("invalid --recipient: %w", err)
	}
	want, err := solanapay.ParseAmount(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid --amount: %w", err)
	}

	exp := solanapay.PaymentExpectation{Recipient: to, Amount: want}
	if splToken != "" {
		mint, err := payurl.ParseAccount(splToken)
		if err != nil {
			return nil, fmt.Errorf("invalid --spl-token: %w", err)
		}
		exp.SPLToken = &mint
	}
	if reference != "" {
		ref, err := payurl.ParseAccount(reference)
		if err != nil {
			return nil, fmt.Errorf("invalid --reference: %w", err)
		}
		exp.Reference = &ref
	}
	return v.ValidatePayment(ctx, sig, exp)
}

func validateMint(ctx context.Context, v *validator.Validator, sig solana.Signature, inventory, payer string, cleanup bool) (*solanapay.ValidationResult, error) {
	inv, err := payurl.ParseAccount(inventory)
	if err != nil {
		return nil, fmt.Errorf("invalid --inventory: %w", err)
	}
	who, err := payurl.ParseAccount(payer)
	if err != nil {
		return nil, fmt.Errorf("invalid --payer: %w", err)
	}
	if cleanup {
		return v.ValidateCleanup(ctx, sig, who, inv)
	}
	return v.ValidateMint(ctx, sig, who, inv)
}

// report prints the outcome. A mismatch is printed and returned; other
// errors are only returned.
func report(cmd *cobra.Command, sig solana.Signature, result *solanapay.ValidationResult, err error) error {
	var mismatch *solanapay.ValidationMismatchError
	if errors.As(err, &mismatch) {
		view := resultView{Signature: sig.String(), Reason: mismatch.Reason, Error: err.Error()}
		if result != nil {
			view.Slot = result.Slot
		}
		if perr := printJSON(cmd.OutOrStdout(), view); perr != nil {
			return perr
		}
		return err
	}
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), resultView{
		Valid:     result.Valid,
		Signature: result.Signature.String(),
		Slot:      result.Slot,
	})
}
