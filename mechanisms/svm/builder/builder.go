// Package builder turns payment and mint intents into unsigned instruction
// bundles. It reads ledger state to check preconditions but never signs or
// submits anything.
package builder

import (
	solanapay "github.com/lmvdz/solana-pay"
)

// Builder assembles BuiltTransactions from intents.
type Builder struct {
	ledger    solanapay.Ledger
	inventory solanapay.InventoryProgram
	keys      solanapay.KeyGenerator
}

// Option configures a Builder.
type Option func(*Builder)

// WithInventoryProgram sets the inventory program collaborator used by BuildMint.
func WithInventoryProgram(p solanapay.InventoryProgram) Option {
	return func(b *Builder) {
		b.inventory = p
	}
}

// WithKeyGenerator sets the source of ephemeral keys. Defaults to solanapay.RandomKeys.
func WithKeyGenerator(k solanapay.KeyGenerator) Option {
	return func(b *Builder) {
		b.keys = k
	}
}

// New creates a Builder reading from ledger.
func New(ledger solanapay.Ledger, opts ...Option) *Builder {
	b := &Builder{
		ledger: ledger,
		keys:   solanapay.RandomKeys,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}
