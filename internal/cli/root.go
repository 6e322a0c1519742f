// Package cli implements the solanapay command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	solanapay "github.com/lmvdz/solana-pay"
	"github.com/lmvdz/solana-pay/mechanisms/svm/rpcledger"
	"github.com/lmvdz/solana-pay/pkg/config"
)

// Ledger is what the commands need from the ledger service.
type Ledger interface {
	solanapay.Ledger
	solanapay.Submitter
}

var (
	cfgFile    string
	rpcURL     string
	commitment string

	// newLedger connects to the configured RPC node. Tests replace it.
	newLedger = func(cfg *config.Config) (Ledger, error) {
		return rpcledger.New(rpcledger.Config{
			RPCURL:            cfg.RPCURL(),
			Commitment:        cfg.Commitment(),
			RequestsPerSecond: cfg.Ledger.RPS,
			Burst:             cfg.Ledger.Burst,
		})
	}
)

// Execute runs the CLI
func Execute(version string) error {
	return NewRootCmd(version).Execute()
}

// NewRootCmd builds the command tree.
func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "solanapay",
		Short:         "Request, pay and verify Solana payments",
		Long:          `solanapay encodes payment request URLs, finds and validates the transactions that settle them, and serves a checkout API.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml)")
	rootCmd.PersistentFlags().StringVar(&rpcURL, "rpc-url", "", "RPC URL (default from config or cluster)")
	rootCmd.PersistentFlags().StringVar(&commitment, "commitment", "", "commitment level (confirmed, finalized)")

	// Add subcommands
	rootCmd.AddCommand(createURLCmd())
	rootCmd.AddCommand(createFindCmd())
	rootCmd.AddCommand(createValidateCmd())
	rootCmd.AddCommand(createPayCmd())
	rootCmd.AddCommand(createServeCmd())

	return rootCmd
}

// loadConfig loads the config file and applies the global flags on top.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if rpcURL != "" {
		cfg.Ledger.RPCURL = rpcURL
	}
	if commitment != "" {
		cfg.Ledger.Commitment = commitment
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// setup loads the config, then builds the logger and the ledger client.
func setup() (*config.Config, *slog.Logger, Ledger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	logger := cfg.Logging.NewLogger(os.Stderr)
	ledger, err := newLedger(cfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connecting to ledger: %w", err)
	}
	return cfg, logger, ledger, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
