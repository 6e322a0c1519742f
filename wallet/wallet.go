// Package wallet is the paying side of the protocol: it decodes a request
// URL, builds the matching transaction, signs it, submits it and waits for
// the ledger to confirm it.
package wallet

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	solana "github.com/gagliardetto/solana-go"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"

	solanapay "github.com/lmvdz/solana-pay"
	"github.com/lmvdz/solana-pay/mechanisms/svm"
	"github.com/lmvdz/solana-pay/mechanisms/svm/builder"
	"github.com/lmvdz/solana-pay/payurl"
	svmsigner "github.com/lmvdz/solana-pay/signers/svm"
)

// Defaults
const (
	DefaultPollInterval   = 500 * time.Millisecond
	DefaultConfirmTimeout = 90 * time.Second
)

// Result reports what a payment or mint submitted.
type Result struct {
	Kind      payurl.Kind
	Signature solana.Signature
	// Cleanup is set when a cleanup transaction followed the primary one.
	Cleanup *solana.Signature
}

// Payer pays request URLs from one signer's account.
type Payer struct {
	ledger    solanapay.Ledger
	submitter solanapay.Submitter
	signer    svm.TransactionSigner
	builder   *builder.Builder

	builderOpts    []builder.Option
	commitment     solanapay.Commitment
	pollInterval   time.Duration
	confirmTimeout time.Duration
	microLamports  uint64
	logger         *slog.Logger
}

// Option configures a Payer.
type Option func(*Payer)

// WithInventoryProgram enables mint requests against program.
func WithInventoryProgram(program solanapay.InventoryProgram) Option {
	return func(p *Payer) {
		p.builderOpts = append(p.builderOpts, builder.WithInventoryProgram(program))
	}
}

// WithKeyGenerator sets the source of the builder's ephemeral keys.
func WithKeyGenerator(keys solanapay.KeyGenerator) Option {
	return func(p *Payer) {
		p.builderOpts = append(p.builderOpts, builder.WithKeyGenerator(keys))
	}
}

// WithCommitment sets the level a submission must reach. Defaults to solanapay.DefaultCommitment.
func WithCommitment(c solanapay.Commitment) Option {
	return func(p *Payer) {
		p.commitment = c
	}
}

// WithPollInterval sets how often the signature status is checked.
func WithPollInterval(d time.Duration) Option {
	return func(p *Payer) {
		p.pollInterval = d
	}
}

// WithConfirmTimeout bounds the wait for each submission to confirm.
func WithConfirmTimeout(d time.Duration) Option {
	return func(p *Payer) {
		p.confirmTimeout = d
	}
}

// WithPriorityFee prepends a compute unit price instruction to the primary transaction.
func WithPriorityFee(microLamports uint64) Option {
	return func(p *Payer) {
		p.microLamports = microLamports
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Payer) {
		p.logger = logger
	}
}

// New creates a Payer reading from ledger and submitting through submitter.
func New(ledger solanapay.Ledger, submitter solanapay.Submitter, signer svm.TransactionSigner, opts ...Option) *Payer {
	p := &Payer{
		ledger:         ledger,
		submitter:      submitter,
		signer:         signer,
		commitment:     solanapay.DefaultCommitment,
		pollInterval:   DefaultPollInterval,
		confirmTimeout: DefaultConfirmTimeout,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.builder = builder.New(ledger, p.builderOpts...)
	return p
}

// Pay handles either kind of request URL.
func (p *Payer) Pay(ctx context.Context, rawURL string) (*Result, error) {
	req, err := payurl.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	switch req.Kind {
	case payurl.KindMint:
		return p.Mint(ctx, *req.Mint)
	default:
		return p.PayIntent(ctx, *req.Payment)
	}
}

// PayIntent builds, submits and confirms a payment.
func (p *Payer) PayIntent(ctx context.Context, intent solanapay.PaymentIntent) (*Result, error) {
	built, err := p.builder.BuildPayment(ctx, p.signer.Address(), intent)
	if err != nil {
		return nil, err
	}

	sig, err := p.submitPrimary(ctx, built)
	if err != nil {
		return nil, err
	}
	p.logger.Info("payment confirmed", "signature", sig, "recipient", intent.Recipient)
	return &Result{Kind: payurl.KindPayment, Signature: sig}, nil
}

// Mint builds, submits and confirms a mint, then revokes any delegate
// authority the mint granted.
func (p *Payer) Mint(ctx context.Context, intent solanapay.MintIntent) (*Result, error) {
	built, err := p.builder.BuildMint(ctx, p.signer.Address(), intent)
	if err != nil {
		return nil, err
	}

	sig, err := p.submitPrimary(ctx, built)
	if err != nil {
		return nil, err
	}
	result := &Result{Kind: payurl.KindMint, Signature: sig}
	p.logger.Info("mint confirmed", "signature", sig, "inventory", intent.Inventory)

	if !built.HasCleanup() {
		return result, nil
	}

	cleanup, err := p.submitCleanup(ctx, built)
	if err != nil {
		return result, fmt.Errorf("mint %s succeeded but cleanup failed: %w", sig, err)
	}
	result.Cleanup = &cleanup
	p.logger.Info("cleanup confirmed", "signature", cleanup, "mint_signature", sig)
	return result, nil
}

func (p *Payer) submitPrimary(ctx context.Context, built *solanapay.BuiltTransaction) (solana.Signature, error) {
	blockhash, err := p.submitter.GetLatestBlockhash(ctx)
	if err != nil {
		return solana.Signature{}, err
	}

	instructions := built.Instructions
	if p.microLamports > 0 {
		price, err := computebudget.NewSetComputeUnitPriceInstructionBuilder().
			SetMicroLamports(p.microLamports).
			ValidateAndBuild()
		if err != nil {
			return solana.Signature{}, fmt.Errorf("failed to build compute price instruction: %w", err)
		}
		instructions = append([]solana.Instruction{price}, built.Instructions...)
	}

	tx, err := solana.NewTransaction(instructions, blockhash, solana.TransactionPayer(built.Payer))
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to compile transaction: %w", err)
	}
	return p.send(ctx, tx, built.EphemeralSigners)
}

func (p *Payer) submitCleanup(ctx context.Context, built *solanapay.BuiltTransaction) (solana.Signature, error) {
	blockhash, err := p.submitter.GetLatestBlockhash(ctx)
	if err != nil {
		return solana.Signature{}, err
	}
	tx, err := built.CompileCleanup(blockhash)
	if err != nil {
		return solana.Signature{}, err
	}
	return p.send(ctx, tx, nil)
}

func (p *Payer) send(ctx context.Context, tx *solana.Transaction, ephemeral []solana.PrivateKey) (solana.Signature, error) {
	if err := svmsigner.SignAll(ctx, p.signer, tx, ephemeral); err != nil {
		return solana.Signature{}, err
	}

	sig, err := p.submitter.SendTransaction(ctx, tx)
	if err != nil {
		return solana.Signature{}, err
	}
	p.logger.Debug("transaction submitted", "signature", sig)

	if err := p.WaitForConfirmation(ctx, sig); err != nil {
		return sig, err
	}
	return sig, nil
}

// WaitForConfirmation polls the status of sig until it reaches the payer's
// commitment, fails on-chain, or the confirm timeout passes.
func (p *Payer) WaitForConfirmation(ctx context.Context, sig solana.Signature) error {
	ctx, cancel := context.WithTimeout(ctx, p.confirmTimeout)
	defer cancel()

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		status, err := p.ledger.GetSignatureStatus(ctx, sig)
		if err != nil {
			p.logger.Warn("signature status lookup failed", "signature", sig, "error", err)
		} else if status != nil {
			if status.Err != "" {
				return fmt.Errorf("transaction %s failed: %s", sig, status.Err)
			}
			if status.Confirmation.Satisfies(p.commitment) {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %s: %v", solanapay.ErrUnconfirmed, sig, ctx.Err())
		case <-ticker.C:
		}
	}
}
