// Package ledger is an in-memory Solana ledger for tests. It implements
// solanapay.Ledger and solanapay.Submitter and executes the small set of
// system and token instructions the payment flows produce.
package ledger

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	solana "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"

	solanapay "github.com/lmvdz/solana-pay"
	"github.com/lmvdz/solana-pay/mechanisms/svm"
)

// FeePerSignature is charged to the fee payer of every executed transaction.
const FeePerSignature uint64 = 5000

// Executor applies a transaction to the ledger and returns its recorded
// effects. A returned error rejects the submission outright.
type Executor func(l *Ledger, tx *solana.Transaction) (*solanapay.TransactionMeta, error)

// Ledger is an in-memory ledger. The zero value is not usable; call New.
type Ledger struct {
	mu sync.RWMutex

	accounts     map[solana.PublicKey]*solanapay.AccountInfo
	history      map[solana.PublicKey][]solanapay.SignatureInfo
	statuses     map[solana.Signature]*solanapay.SignatureStatus
	transactions map[solana.Signature]*solanapay.ConfirmedTransaction
	errs         map[string]error

	slot      uint64
	blockhash solana.Hash
	sent      []*solana.Transaction

	// Confirmation is the commitment newly submitted transactions reach.
	Confirmation solanapay.Commitment
	// Execute applies submitted transactions. Defaults to (*Ledger).ExecuteTransaction.
	Execute Executor
}

// New creates an empty ledger whose submissions are immediately finalized.
func New() *Ledger {
	return &Ledger{
		accounts:     make(map[solana.PublicKey]*solanapay.AccountInfo),
		history:      make(map[solana.PublicKey][]solanapay.SignatureInfo),
		statuses:     make(map[solana.Signature]*solanapay.SignatureStatus),
		transactions: make(map[solana.Signature]*solanapay.ConfirmedTransaction),
		errs:         make(map[string]error),
		slot:         100,
		blockhash:    solana.HashFromBytes([]byte("mock-ledger-recent-blockhash-000")),
		Confirmation: solanapay.CommitmentFinalized,
	}
}

// ============================================================================
// Fixtures
// ============================================================================

// SetError makes the named method fail with err until cleared with a nil err.
func (l *Ledger) SetError(method string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err == nil {
		delete(l.errs, method)
		return
	}
	l.errs[method] = err
}

func (l *Ledger) errFor(method string) error {
	return l.errs[method]
}

// SetAccount stores an account, replacing any previous state.
func (l *Ledger) SetAccount(acc solanapay.AccountInfo) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.accounts[acc.Address] = &acc
}

// RemoveAccount deletes an account.
func (l *Ledger) RemoveAccount(address solana.PublicKey) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.accounts, address)
}

// SetSystemAccount stores a wallet account owned by the system program.
func (l *Ledger) SetSystemAccount(address solana.PublicKey, lamports uint64) {
	l.SetAccount(solanapay.AccountInfo{
		Address:  address,
		Owner:    solana.SystemProgramID,
		Lamports: lamports,
	})
}

// SetMint stores an initialized classic token mint.
func (l *Ledger) SetMint(mint solana.PublicKey, decimals uint8, supply uint64) {
	l.SetAccount(solanapay.AccountInfo{
		Address:  mint,
		Owner:    solana.TokenProgramID,
		Lamports: 1461600,
		Data:     EncodeMint(decimals, supply, true, nil),
	})
}

// SetHolding stores the associated holding account of owner for mint and returns its address.
func (l *Ledger) SetHolding(owner, mint solana.PublicKey, amount uint64, state token.AccountState) solana.PublicKey {
	ata, err := svm.HoldingAddress(owner, mint)
	if err != nil {
		panic(err)
	}
	l.SetAccount(solanapay.AccountInfo{
		Address:  ata,
		Owner:    solana.TokenProgramID,
		Lamports: 2039280,
		Data:     EncodeHolding(mint, owner, amount, state, nil, 0),
	})
	return ata
}

// Account returns a copy of an account, or nil.
func (l *Ledger) Account(address solana.PublicKey) *solanapay.AccountInfo {
	l.mu.RLock()
	defer l.mu.RUnlock()
	acc, ok := l.accounts[address]
	if !ok {
		return nil
	}
	cp := *acc
	return &cp
}

// Holding returns the decoded holding account at address, or nil.
func (l *Ledger) Holding(address solana.PublicKey) *svm.HoldingInfo {
	acc := l.Account(address)
	if acc == nil {
		return nil
	}
	h, err := svm.DecodeHolding(acc)
	if err != nil {
		return nil
	}
	return h
}

// AddSignature prepends a history entry for address (history is newest first).
func (l *Ledger) AddSignature(address solana.PublicKey, info solanapay.SignatureInfo) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.history[address] = append([]solanapay.SignatureInfo{info}, l.history[address]...)
}

// AddTransaction records a confirmed transaction at the given commitment and
// indexes its signature under every account key it touches.
func (l *Ledger) AddTransaction(tx *solanapay.ConfirmedTransaction, confirmation solanapay.Commitment) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.recordLocked(tx, confirmation)
}

func (l *Ledger) recordLocked(tx *solanapay.ConfirmedTransaction, confirmation solanapay.Commitment) {
	if tx.Slot == 0 {
		l.slot++
		tx.Slot = l.slot
	}
	l.transactions[tx.Signature] = tx
	l.statuses[tx.Signature] = &solanapay.SignatureStatus{
		Slot:         tx.Slot,
		Confirmation: confirmation,
		Err:          tx.Meta.Err,
	}
	for _, key := range tx.AccountKeys {
		info := solanapay.SignatureInfo{Signature: tx.Signature, Slot: tx.Slot, Err: tx.Meta.Err}
		l.history[key] = append([]solanapay.SignatureInfo{info}, l.history[key]...)
	}
}

// SetConfirmation moves a recorded transaction to another commitment level.
func (l *Ledger) SetConfirmation(sig solana.Signature, confirmation solanapay.Commitment) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if st, ok := l.statuses[sig]; ok {
		st.Confirmation = confirmation
	}
}

// Sent returns every transaction accepted by SendTransaction, in order.
func (l *Ledger) Sent() []*solana.Transaction {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]*solana.Transaction(nil), l.sent...)
}

// ============================================================================
// solanapay.Ledger
// ============================================================================

func (l *Ledger) GetAccount(ctx context.Context, address solana.PublicKey) (*solanapay.AccountInfo, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if err := l.errFor("GetAccount"); err != nil {
		return nil, err
	}
	acc, ok := l.accounts[address]
	if !ok {
		return nil, nil
	}
	cp := *acc
	cp.Data = append([]byte(nil), acc.Data...)
	return &cp, nil
}

// GetMinimumBalanceForRentExemption uses the mainnet rent parameters.
func (l *Ledger) GetMinimumBalanceForRentExemption(ctx context.Context, dataSize uint64) (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if err := l.errFor("GetMinimumBalanceForRentExemption"); err != nil {
		return 0, err
	}
	return (128 + dataSize) * 3480 * 2, nil
}

func (l *Ledger) GetSignaturesForAddress(ctx context.Context, address solana.PublicKey, query solanapay.SignatureQuery) ([]solanapay.SignatureInfo, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if err := l.errFor("GetSignaturesForAddress"); err != nil {
		return nil, err
	}

	entries := l.history[address]
	if query.Before != nil {
		for i, e := range entries {
			if e.Signature == *query.Before {
				entries = entries[i+1:]
				break
			}
		}
	}

	var out []solanapay.SignatureInfo
	for _, e := range entries {
		if query.Until != nil && e.Signature == *query.Until {
			break
		}
		if query.Commitment != "" {
			if st := l.statuses[e.Signature]; st != nil && !st.Confirmation.Satisfies(query.Commitment) {
				continue
			}
		}
		out = append(out, e)
		if query.Limit > 0 && len(out) == query.Limit {
			break
		}
	}
	return out, nil
}

func (l *Ledger) GetSignatureStatus(ctx context.Context, sig solana.Signature) (*solanapay.SignatureStatus, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if err := l.errFor("GetSignatureStatus"); err != nil {
		return nil, err
	}
	st, ok := l.statuses[sig]
	if !ok {
		return nil, nil
	}
	cp := *st
	return &cp, nil
}

func (l *Ledger) GetTransaction(ctx context.Context, sig solana.Signature, commitment solanapay.Commitment) (*solanapay.ConfirmedTransaction, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if err := l.errFor("GetTransaction"); err != nil {
		return nil, err
	}
	tx, ok := l.transactions[sig]
	if !ok {
		return nil, nil
	}
	if !l.statuses[sig].Confirmation.Satisfies(commitment) {
		return nil, nil
	}
	return tx, nil
}

// ============================================================================
// solanapay.Submitter
// ============================================================================

func (l *Ledger) GetLatestBlockhash(ctx context.Context) (solana.Hash, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if err := l.errFor("GetLatestBlockhash"); err != nil {
		return solana.Hash{}, err
	}
	return l.blockhash, nil
}

// SendTransaction verifies every required signature, executes the
// transaction and records it at l.Confirmation.
func (l *Ledger) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	l.mu.Lock()
	if err := l.errFor("SendTransaction"); err != nil {
		l.mu.Unlock()
		return solana.Signature{}, err
	}
	l.mu.Unlock()

	if err := tx.VerifySignatures(); err != nil {
		return solana.Signature{}, fmt.Errorf("signature verification failed: %w", err)
	}
	sig := tx.Signatures[0]

	l.mu.RLock()
	_, dup := l.transactions[sig]
	l.mu.RUnlock()
	if dup {
		return solana.Signature{}, fmt.Errorf("duplicate signature %s", sig)
	}

	execute := l.Execute
	if execute == nil {
		execute = (*Ledger).ExecuteTransaction
	}
	meta, err := execute(l, tx)
	if err != nil {
		return solana.Signature{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.sent = append(l.sent, tx)
	l.recordLocked(&solanapay.ConfirmedTransaction{
		Signature:   sig,
		Transaction: tx,
		AccountKeys: append([]solana.PublicKey(nil), tx.Message.AccountKeys...),
		Meta:        *meta,
	}, l.Confirmation)
	return sig, nil
}

// ============================================================================
// Execution
// ============================================================================

// ExecuteTransaction applies system transfers, account creation and the
// token transfer, approve and revoke instructions. Memo and compute budget
// instructions are accepted without effect. Any failing instruction rolls
// back every effect except the fee.
func (l *Ledger) ExecuteTransaction(tx *solana.Transaction) (*solanapay.TransactionMeta, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	keys := tx.Message.AccountKeys
	if len(keys) == 0 {
		return nil, fmt.Errorf("transaction has no account keys")
	}
	fee := FeePerSignature * uint64(tx.Message.Header.NumRequiredSignatures)
	payer, ok := l.accounts[keys[0]]
	if !ok || payer.Lamports < fee {
		return nil, fmt.Errorf("fee payer %s cannot pay fee", keys[0])
	}

	meta := &solanapay.TransactionMeta{Fee: fee}
	meta.PreBalances, meta.PreTokenBalances = l.snapshotLocked(keys)

	backup := make(map[solana.PublicKey]*solanapay.AccountInfo, len(keys))
	for _, k := range keys {
		if acc, ok := l.accounts[k]; ok {
			cp := *acc
			cp.Data = append([]byte(nil), acc.Data...)
			backup[k] = &cp
		}
	}

	payer.Lamports -= fee
	for i, ci := range tx.Message.Instructions {
		if err := l.applyLocked(keys, ci); err != nil {
			for _, k := range keys {
				if acc, ok := backup[k]; ok {
					l.accounts[k] = acc
				} else {
					delete(l.accounts, k)
				}
			}
			l.accounts[keys[0]].Lamports -= fee
			meta.Err = fmt.Sprintf("instruction %d: %v", i, err)
			break
		}
	}

	meta.PostBalances, meta.PostTokenBalances = l.snapshotLocked(keys)
	return meta, nil
}

func (l *Ledger) snapshotLocked(keys []solana.PublicKey) ([]uint64, []solanapay.TokenBalance) {
	balances := make([]uint64, len(keys))
	var tokens []solanapay.TokenBalance
	for i, k := range keys {
		acc, ok := l.accounts[k]
		if !ok {
			continue
		}
		balances[i] = acc.Lamports
		if h, err := svm.DecodeHolding(acc); err == nil {
			tb := solanapay.TokenBalance{AccountIndex: uint16(i), Mint: h.Mint, Owner: h.Owner, Amount: h.Amount}
			if mint, ok := l.accounts[h.Mint]; ok {
				if m, err := svm.DecodeMint(mint); err == nil {
					tb.Decimals = m.Decimals
				}
			}
			tokens = append(tokens, tb)
		}
	}
	return balances, tokens
}

func (l *Ledger) applyLocked(keys []solana.PublicKey, ci solana.CompiledInstruction) error {
	program := keys[ci.ProgramIDIndex]
	accounts := make([]solana.PublicKey, len(ci.Accounts))
	for i, idx := range ci.Accounts {
		accounts[i] = keys[idx]
	}
	data := []byte(ci.Data)

	switch {
	case program.Equals(svm.MemoProgramID), program.Equals(solana.ComputeBudget):
		return nil
	case program.Equals(solana.SystemProgramID):
		return l.applySystemLocked(accounts, data)
	case program.Equals(solana.TokenProgramID):
		return l.applyTokenLocked(accounts, data)
	}
	return fmt.Errorf("unsupported program %s", program)
}

func (l *Ledger) applySystemLocked(accounts []solana.PublicKey, data []byte) error {
	if len(data) < 4 {
		return fmt.Errorf("system instruction too short")
	}
	switch binary.LittleEndian.Uint32(data[:4]) {
	case 0: // CreateAccount
		if len(data) < 52 || len(accounts) < 2 {
			return fmt.Errorf("malformed create account")
		}
		lamports := binary.LittleEndian.Uint64(data[4:12])
		space := binary.LittleEndian.Uint64(data[12:20])
		owner := solana.PublicKeyFromBytes(data[20:52])
		if _, exists := l.accounts[accounts[1]]; exists {
			return fmt.Errorf("account %s already in use", accounts[1])
		}
		if err := l.debitLocked(accounts[0], lamports); err != nil {
			return err
		}
		l.accounts[accounts[1]] = &solanapay.AccountInfo{
			Address: accounts[1], Owner: owner, Lamports: lamports, Data: make([]byte, space),
		}
		return nil
	case 2: // Transfer
		if len(data) < 12 || len(accounts) < 2 {
			return fmt.Errorf("malformed transfer")
		}
		lamports := binary.LittleEndian.Uint64(data[4:12])
		if err := l.debitLocked(accounts[0], lamports); err != nil {
			return err
		}
		to, ok := l.accounts[accounts[1]]
		if !ok {
			to = &solanapay.AccountInfo{Address: accounts[1], Owner: solana.SystemProgramID}
			l.accounts[accounts[1]] = to
		}
		to.Lamports += lamports
		return nil
	}
	return fmt.Errorf("unsupported system instruction %d", binary.LittleEndian.Uint32(data[:4]))
}

func (l *Ledger) debitLocked(address solana.PublicKey, lamports uint64) error {
	acc, ok := l.accounts[address]
	if !ok || acc.Lamports < lamports {
		return fmt.Errorf("insufficient lamports in %s", address)
	}
	acc.Lamports -= lamports
	return nil
}

func (l *Ledger) applyTokenLocked(accounts []solana.PublicKey, data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("empty token instruction")
	}
	switch data[0] {
	case token.Instruction_TransferChecked:
		if len(data) < 10 || len(accounts) < 4 {
			return fmt.Errorf("malformed transfer checked")
		}
		amount := binary.LittleEndian.Uint64(data[1:9])
		src, dst, err := l.holdingPairLocked(accounts[0], accounts[2])
		if err != nil {
			return err
		}
		if !src.Mint.Equals(accounts[1]) || !dst.Mint.Equals(accounts[1]) {
			return fmt.Errorf("mint mismatch")
		}
		if !src.Owner.Equals(accounts[3]) {
			return fmt.Errorf("owner mismatch")
		}
		if src.Frozen() || dst.Frozen() {
			return fmt.Errorf("account frozen")
		}
		if src.Amount < amount {
			return fmt.Errorf("insufficient token balance")
		}
		src.Amount -= amount
		dst.Amount += amount
		l.putHoldingLocked(src)
		l.putHoldingLocked(dst)
		return nil
	case token.Instruction_Approve:
		if len(data) < 9 || len(accounts) < 3 {
			return fmt.Errorf("malformed approve")
		}
		h, err := l.holdingLocked(accounts[0])
		if err != nil {
			return err
		}
		delegate := accounts[1]
		h.Delegate = &delegate
		h.DelegatedAmount = binary.LittleEndian.Uint64(data[1:9])
		l.putHoldingLocked(h)
		return nil
	case token.Instruction_Revoke:
		if len(accounts) < 2 {
			return fmt.Errorf("malformed revoke")
		}
		h, err := l.holdingLocked(accounts[0])
		if err != nil {
			return err
		}
		h.Delegate = nil
		h.DelegatedAmount = 0
		l.putHoldingLocked(h)
		return nil
	}
	return fmt.Errorf("unsupported token instruction %d", data[0])
}

func (l *Ledger) holdingLocked(address solana.PublicKey) (*svm.HoldingInfo, error) {
	acc, ok := l.accounts[address]
	if !ok {
		return nil, fmt.Errorf("holding account %s not found", address)
	}
	return svm.DecodeHolding(acc)
}

func (l *Ledger) holdingPairLocked(a, b solana.PublicKey) (*svm.HoldingInfo, *svm.HoldingInfo, error) {
	src, err := l.holdingLocked(a)
	if err != nil {
		return nil, nil, err
	}
	dst, err := l.holdingLocked(b)
	if err != nil {
		return nil, nil, err
	}
	return src, dst, nil
}

func (l *Ledger) putHoldingLocked(h *svm.HoldingInfo) {
	acc := l.accounts[h.Address]
	acc.Data = EncodeHolding(h.Mint, h.Owner, h.Amount, h.State, h.Delegate, h.DelegatedAmount)
}
