// Package finder locates the transaction tagged with a reference account.
//
// FindSignature performs one query and never sleeps or retries: callers poll
// it on their own schedule and treat solanapay.ErrNotFound as "not yet".
package finder

import (
	"context"
	"fmt"

	solana "github.com/gagliardetto/solana-go"

	solanapay "github.com/lmvdz/solana-pay"
)

// DefaultLimit is the history lookback of one query.
const DefaultLimit = 1000

// Options bounds a single lookup.
type Options struct {
	// Until stops the scan at this signature (exclusive). Pass the last
	// signature seen to poll incrementally.
	Until *solana.Signature
	// Limit caps how many history entries are read. Zero means DefaultLimit.
	Limit int
	// Commitment is the level the history is read at. Empty means solanapay.DefaultCommitment.
	Commitment solanapay.Commitment
}

// FindSignature returns the most recent successful transaction referencing
// reference. It fails with solanapay.ErrNotFound when the history is empty
// or every entry failed on-chain.
func FindSignature(ctx context.Context, ledger solanapay.Ledger, reference solana.PublicKey, opts Options) (*solanapay.SignatureInfo, error) {
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}
	if opts.Commitment == "" {
		opts.Commitment = solanapay.DefaultCommitment
	}

	history, err := ledger.GetSignaturesForAddress(ctx, reference, solanapay.SignatureQuery{
		Until:      opts.Until,
		Limit:      opts.Limit,
		Commitment: opts.Commitment,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get signatures for %s: %w", reference, err)
	}

	for _, entry := range history {
		if opts.Until != nil && entry.Signature == *opts.Until {
			break
		}
		if entry.Failed() {
			continue
		}
		found := entry
		return &found, nil
	}
	return nil, fmt.Errorf("%w: no successful transaction references %s", solanapay.ErrNotFound, reference)
}
