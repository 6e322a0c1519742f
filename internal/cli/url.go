package cli

import (
	"fmt"

	solana "github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"

	solanapay "github.com/lmvdz/solana-pay"
	"github.com/lmvdz/solana-pay/payurl"
)

// intentView is the JSON rendering of a decoded URL.
type intentView struct {
	Kind       string   `json:"kind"`
	Recipient  string   `json:"recipient"`
	Amount     string   `json:"amount,omitempty"`
	SPLToken   string   `json:"splToken,omitempty"`
	Inventory  string   `json:"inventory,omitempty"`
	Config     string   `json:"inventoryConfig,omitempty"`
	Treasury   string   `json:"inventoryTreasury,omitempty"`
	References []string `json:"references,omitempty"`
	Label      string   `json:"label,omitempty"`
	Message    string   `json:"message,omitempty"`
	Memo       string   `json:"memo,omitempty"`
}

func createURLCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "url",
		Short: "Encode and decode payment request URLs",
	}
	cmd.AddCommand(createURLEncodeCmd())
	cmd.AddCommand(createURLDecodeCmd())
	return cmd
}

func createURLEncodeCmd() *cobra.Command {
	var (
		recipient  string
		amount     string
		splToken   string
		inventory  string
		references []string
		label      string
		message    string
		memo       string
	)

	cmd := &cobra.Command{
		Use:   "encode",
		Short: "Encode a payment or mint request URL",
		Long: `Encode a payment request URL, or a mint request URL when --inventory is set.

EXAMPLES:
  # Request 1.5 SOL
  solanapay url encode --recipient <address> --amount 1.5 --label Shop

  # Request 10 USDC tagged with a reference
  solanapay url encode --recipient <address> --amount 10 \
    --spl-token EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v \
    --reference <address>

  # Request a mint from a candy machine
  solanapay url encode --recipient <address> --inventory <candy machine>
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			to, err := payurl.ParseAccount(recipient)
			if err != nil {
				return fmt.Errorf("invalid --recipient: %w", err)
			}
			refs, err := parseAccounts("reference", references)
			if err != nil {
				return err
			}

			if inventory != "" {
				inv, err := payurl.ParseAccount(inventory)
				if err != nil {
					return fmt.Errorf("invalid --inventory: %w", err)
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), payurl.EncodeMint(solanapay.MintIntent{
					Recipient:  to,
					Inventory:  inv,
					References: refs,
					Label:      label,
					Message:    message,
					Memo:       memo,
				}))
				return err
			}

			intent := solanapay.PaymentIntent{
				Recipient:  to,
				References: refs,
				Label:      label,
				Message:    message,
				Memo:       memo,
			}
			if amount != "" {
				d, err := solanapay.ParseAmount(amount)
				if err != nil {
					return err
				}
				intent.Amount = &d
			}
			if splToken != "" {
				mint, err := payurl.ParseAccount(splToken)
				if err != nil {
					return fmt.Errorf("invalid --spl-token: %w", err)
				}
				intent.SPLToken = &mint
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), payurl.Encode(intent))
			return err
		},
	}

	cmd.Flags().StringVar(&recipient, "recipient", "", "recipient address (required)")
	cmd.Flags().StringVar(&amount, "amount", "", "amount in whole units")
	cmd.Flags().StringVar(&splToken, "spl-token", "", "token mint (default: SOL)")
	cmd.Flags().StringVar(&inventory, "inventory", "", "inventory program account; makes a mint request")
	cmd.Flags().StringArrayVar(&references, "reference", nil, "reference address (repeatable)")
	cmd.Flags().StringVar(&label, "label", "", "label")
	cmd.Flags().StringVar(&message, "message", "", "message")
	cmd.Flags().StringVar(&memo, "memo", "", "memo")
	_ = cmd.MarkFlagRequired("recipient")

	return cmd
}

func createURLDecodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode <url>",
		Short: "Decode a request URL and print it as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := payurl.Parse(args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), newIntentView(req))
		},
	}
}

func newIntentView(req *payurl.Request) intentView {
	view := intentView{Kind: req.Kind.String()}
	if req.Kind == payurl.KindMint {
		m := req.Mint
		view.Recipient = m.Recipient.String()
		view.Inventory = m.Inventory.String()
		view.Config = optionalString(m.Config)
		view.Treasury = optionalString(m.Treasury)
		view.References = keyStrings(m.References)
		view.Label, view.Message, view.Memo = m.Label, m.Message, m.Memo
		return view
	}

	p := req.Payment
	view.Recipient = p.Recipient.String()
	if p.Amount != nil {
		view.Amount = solanapay.FormatAmount(*p.Amount)
	}
	view.SPLToken = optionalString(p.SPLToken)
	view.References = keyStrings(p.References)
	view.Label, view.Message, view.Memo = p.Label, p.Message, p.Memo
	return view
}

func parseAccounts(flag string, values []string) ([]solana.PublicKey, error) {
	keys := make([]solana.PublicKey, 0, len(values))
	for _, v := range values {
		key, err := payurl.ParseAccount(v)
		if err != nil {
			return nil, fmt.Errorf("invalid --%s %q: %w", flag, v, err)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func optionalString(key *solana.PublicKey) string {
	if key == nil {
		return ""
	}
	return key.String()
}

func keyStrings(keys []solana.PublicKey) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k.String())
	}
	return out
}
