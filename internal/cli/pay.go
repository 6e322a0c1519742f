package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/lmvdz/solana-pay/mechanisms/candymachine"
	svmsigner "github.com/lmvdz/solana-pay/signers/svm"
	"github.com/lmvdz/solana-pay/wallet"
)

// payView is the JSON rendering of a wallet result.
type payView struct {
	Kind      string `json:"kind"`
	Signature string `json:"signature"`
	Cleanup   string `json:"cleanup,omitempty"`
}

func createPayCmd() *cobra.Command {
	var (
		keypair     string
		priorityFee uint64
		timeout     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "pay <url>",
		Short: "Pay a request URL from a keypair file",
		Long: `Build, sign and submit the transaction a request URL asks for, then wait
for it to be confirmed. Mint requests also submit their cleanup transaction.

EXAMPLES:
  solanapay pay 'solana:<address>?amount=0.1&label=Shop' --keypair ~/.config/solana/id.json
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			signer, err := svmsigner.NewClientSignerFromKeygenFile(keypair)
			if err != nil {
				return err
			}

			cfg, logger, ledger, err := setup()
			if err != nil {
				return err
			}

			opts := []wallet.Option{
				wallet.WithInventoryProgram(candymachine.New(ledger)),
				wallet.WithCommitment(cfg.Commitment()),
				wallet.WithLogger(logger),
			}
			if priorityFee > 0 {
				opts = append(opts, wallet.WithPriorityFee(priorityFee))
			}
			if timeout > 0 {
				opts = append(opts, wallet.WithConfirmTimeout(timeout))
			}
			payer := wallet.New(ledger, ledger, signer, opts...)

			result, err := payer.Pay(cmd.Context(), args[0])
			if result != nil {
				view := payView{Kind: result.Kind.String(), Signature: result.Signature.String()}
				if result.Cleanup != nil {
					view.Cleanup = result.Cleanup.String()
				}
				if perr := printJSON(cmd.OutOrStdout(), view); perr != nil {
					return perr
				}
			}
			if err != nil {
				return fmt.Errorf("payment failed: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&keypair, "keypair", "", "solana-keygen keypair file (required)")
	cmd.Flags().Uint64Var(&priorityFee, "priority-fee", 0, "compute unit price in micro-lamports")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "confirmation timeout (default 90s)")
	_ = cmd.MarkFlagRequired("keypair")
	return cmd
}
