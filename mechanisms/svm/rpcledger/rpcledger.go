// Package rpcledger implements the ledger collaborator over the Solana
// JSON-RPC API.
package rpcledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	solana "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"golang.org/x/time/rate"

	solanapay "github.com/lmvdz/solana-pay"
	"github.com/lmvdz/solana-pay/pkg/metrics"
)

// Defaults
const (
	DefaultRequestsPerSecond = 10
	DefaultBurst             = 5
)

// RPC is the subset of *rpc.Client the ledger calls.
type RPC interface {
	GetAccountInfoWithOpts(ctx context.Context, account solana.PublicKey, opts *rpc.GetAccountInfoOpts) (*rpc.GetAccountInfoResult, error)
	GetMinimumBalanceForRentExemption(ctx context.Context, dataSize uint64, commitment rpc.CommitmentType) (uint64, error)
	GetSignaturesForAddressWithOpts(ctx context.Context, account solana.PublicKey, opts *rpc.GetSignaturesForAddressOpts) ([]*rpc.TransactionSignature, error)
	GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, transactionSignatures ...solana.Signature) (*rpc.GetSignatureStatusesResult, error)
	GetTransaction(ctx context.Context, txSig solana.Signature, opts *rpc.GetTransactionOpts) (*rpc.GetTransactionResult, error)
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	SendTransaction(ctx context.Context, transaction *solana.Transaction) (solana.Signature, error)
}

// Config contains configuration for the ledger client.
type Config struct {
	// RPCURL is the JSON-RPC endpoint
	RPCURL string
	// Commitment is used for account and blockhash reads.
	// Defaults to the project commitment if not set
	Commitment solanapay.Commitment
	// RequestsPerSecond caps outgoing calls. Defaults to 10 if not set
	RequestsPerSecond float64
	// Burst is the token bucket size. Defaults to 5 if not set
	Burst int
}

// Ledger is a solanapay.Ledger and solanapay.Submitter backed by a Solana RPC node.
type Ledger struct {
	client     RPC
	limiter    *rate.Limiter
	commitment solanapay.Commitment
}

var (
	_ solanapay.Ledger    = (*Ledger)(nil)
	_ solanapay.Submitter = (*Ledger)(nil)
)

// New creates a ledger client for config.RPCURL.
func New(config Config) (*Ledger, error) {
	if config.RPCURL == "" {
		return nil, fmt.Errorf("rpc url is required")
	}
	return NewWithClient(rpc.New(config.RPCURL), config)
}

// NewWithClient creates a ledger client over an existing RPC client.
func NewWithClient(client RPC, config Config) (*Ledger, error) {
	if client == nil {
		return nil, fmt.Errorf("rpc client is required")
	}

	commitment := config.Commitment
	if commitment == "" {
		commitment = solanapay.DefaultCommitment
	}
	if !commitment.Valid() {
		return nil, fmt.Errorf("unknown commitment: %q", commitment)
	}

	rps := config.RequestsPerSecond
	if rps <= 0 {
		rps = DefaultRequestsPerSecond
	}
	burst := config.Burst
	if burst <= 0 {
		burst = DefaultBurst
	}

	return &Ledger{
		client:     client,
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
		commitment: commitment,
	}, nil
}

// call waits for a rate limit token, then runs fn and records it.
func (l *Ledger) call(ctx context.Context, method string, fn func() error) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	start := time.Now()
	err := fn()
	metrics.RPCRequest(method, err, time.Since(start))
	return err
}

// GetAccount returns nil, nil when the account does not exist.
func (l *Ledger) GetAccount(ctx context.Context, address solana.PublicKey) (*solanapay.AccountInfo, error) {
	var out *rpc.GetAccountInfoResult
	err := l.call(ctx, "getAccountInfo", func() (err error) {
		out, err = l.client.GetAccountInfoWithOpts(ctx, address, &rpc.GetAccountInfoOpts{
			Encoding:   solana.EncodingBase64,
			Commitment: commitmentType(l.commitment),
		})
		return err
	})
	if errors.Is(err, rpc.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", address, err)
	}
	if out == nil || out.Value == nil {
		return nil, nil
	}

	info := &solanapay.AccountInfo{
		Address:    address,
		Owner:      out.Value.Owner,
		Lamports:   out.Value.Lamports,
		Executable: out.Value.Executable,
	}
	if out.Value.Data != nil {
		info.Data = out.Value.Data.GetBinary()
	}
	return info, nil
}

// GetMinimumBalanceForRentExemption returns the rent-exempt minimum for dataSize bytes.
func (l *Ledger) GetMinimumBalanceForRentExemption(ctx context.Context, dataSize uint64) (uint64, error) {
	var lamports uint64
	err := l.call(ctx, "getMinimumBalanceForRentExemption", func() (err error) {
		lamports, err = l.client.GetMinimumBalanceForRentExemption(ctx, dataSize, commitmentType(l.commitment))
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("get rent exemption: %w", err)
	}
	return lamports, nil
}

// GetSignaturesForAddress returns history newest first.
func (l *Ledger) GetSignaturesForAddress(ctx context.Context, address solana.PublicKey, query solanapay.SignatureQuery) ([]solanapay.SignatureInfo, error) {
	opts := &rpc.GetSignaturesForAddressOpts{
		Commitment: commitmentType(query.Commitment),
	}
	if query.Limit > 0 {
		limit := query.Limit
		opts.Limit = &limit
	}
	if query.Before != nil {
		opts.Before = *query.Before
	}
	if query.Until != nil {
		opts.Until = *query.Until
	}

	var out []*rpc.TransactionSignature
	err := l.call(ctx, "getSignaturesForAddress", func() (err error) {
		out, err = l.client.GetSignaturesForAddressWithOpts(ctx, address, opts)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get signatures for %s: %w", address, err)
	}

	infos := make([]solanapay.SignatureInfo, 0, len(out))
	for _, s := range out {
		if s == nil {
			continue
		}
		infos = append(infos, solanapay.SignatureInfo{
			Signature: s.Signature,
			Slot:      s.Slot,
			Err:       errString(s.Err),
		})
	}
	return infos, nil
}

// GetSignatureStatus returns nil, nil when the ledger has no record of sig.
func (l *Ledger) GetSignatureStatus(ctx context.Context, sig solana.Signature) (*solanapay.SignatureStatus, error) {
	var out *rpc.GetSignatureStatusesResult
	err := l.call(ctx, "getSignatureStatuses", func() (err error) {
		out, err = l.client.GetSignatureStatuses(ctx, true, sig)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get signature status %s: %w", sig, err)
	}
	if out == nil || len(out.Value) == 0 || out.Value[0] == nil {
		return nil, nil
	}

	status := out.Value[0]
	return &solanapay.SignatureStatus{
		Slot:         status.Slot,
		Confirmation: solanapay.Commitment(status.ConfirmationStatus),
		Err:          errString(status.Err),
	}, nil
}

// GetTransaction returns nil, nil when sig is not available at commitment.
func (l *Ledger) GetTransaction(ctx context.Context, sig solana.Signature, commitment solanapay.Commitment) (*solanapay.ConfirmedTransaction, error) {
	maxVersion := uint64(0)
	var out *rpc.GetTransactionResult
	err := l.call(ctx, "getTransaction", func() (err error) {
		out, err = l.client.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
			Encoding:                       solana.EncodingBase64,
			Commitment:                     commitmentType(commitment),
			MaxSupportedTransactionVersion: &maxVersion,
		})
		return err
	})
	if errors.Is(err, rpc.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction %s: %w", sig, err)
	}
	if out == nil || out.Transaction == nil {
		return nil, nil
	}

	return convertTransaction(sig, out)
}

// GetLatestBlockhash returns a recent blockhash at the ledger's commitment.
func (l *Ledger) GetLatestBlockhash(ctx context.Context) (solana.Hash, error) {
	var out *rpc.GetLatestBlockhashResult
	err := l.call(ctx, "getLatestBlockhash", func() (err error) {
		out, err = l.client.GetLatestBlockhash(ctx, commitmentType(l.commitment))
		return err
	})
	if err != nil {
		return solana.Hash{}, fmt.Errorf("get latest blockhash: %w", err)
	}
	if out == nil || out.Value == nil {
		return solana.Hash{}, fmt.Errorf("get latest blockhash: empty response")
	}
	return out.Value.Blockhash, nil
}

// SendTransaction submits a signed transaction.
func (l *Ledger) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	var sig solana.Signature
	err := l.call(ctx, "sendTransaction", func() (err error) {
		sig, err = l.client.SendTransaction(ctx, tx)
		return err
	})
	if err != nil {
		return solana.Signature{}, fmt.Errorf("send transaction: %w", err)
	}
	return sig, nil
}

func convertTransaction(sig solana.Signature, out *rpc.GetTransactionResult) (*solanapay.ConfirmedTransaction, error) {
	tx, err := out.Transaction.GetTransaction()
	if err != nil {
		return nil, fmt.Errorf("decode transaction %s: %w", sig, err)
	}

	confirmed := &solanapay.ConfirmedTransaction{
		Signature:   sig,
		Slot:        out.Slot,
		Transaction: tx,
		AccountKeys: append([]solana.PublicKey(nil), tx.Message.AccountKeys...),
	}

	if out.Meta == nil {
		return confirmed, nil
	}
	meta := out.Meta

	// Lookup table keys follow the static keys, writable before readonly.
	confirmed.AccountKeys = append(confirmed.AccountKeys, meta.LoadedAddresses.Writable...)
	confirmed.AccountKeys = append(confirmed.AccountKeys, meta.LoadedAddresses.ReadOnly...)

	pre, err := convertTokenBalances(meta.PreTokenBalances)
	if err != nil {
		return nil, fmt.Errorf("transaction %s pre token balances: %w", sig, err)
	}
	post, err := convertTokenBalances(meta.PostTokenBalances)
	if err != nil {
		return nil, fmt.Errorf("transaction %s post token balances: %w", sig, err)
	}

	confirmed.Meta = solanapay.TransactionMeta{
		Err:               errString(meta.Err),
		Fee:               meta.Fee,
		PreBalances:       meta.PreBalances,
		PostBalances:      meta.PostBalances,
		PreTokenBalances:  pre,
		PostTokenBalances: post,
	}
	return confirmed, nil
}

func convertTokenBalances(balances []rpc.TokenBalance) ([]solanapay.TokenBalance, error) {
	out := make([]solanapay.TokenBalance, 0, len(balances))
	for _, b := range balances {
		tb := solanapay.TokenBalance{
			AccountIndex: b.AccountIndex,
			Mint:         b.Mint,
		}
		if b.Owner != nil {
			tb.Owner = *b.Owner
		}
		if b.UiTokenAmount != nil {
			amount, err := strconv.ParseUint(b.UiTokenAmount.Amount, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("account index %d: invalid amount %q", b.AccountIndex, b.UiTokenAmount.Amount)
			}
			tb.Amount = amount
			tb.Decimals = b.UiTokenAmount.Decimals
		}
		out = append(out, tb)
	}
	return out, nil
}

func commitmentType(c solanapay.Commitment) rpc.CommitmentType {
	if c == "" {
		return rpc.CommitmentType(solanapay.DefaultCommitment)
	}
	return rpc.CommitmentType(c)
}

// errString flattens the RPC's untyped error value. Empty means success.
func errString(v interface{}) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
