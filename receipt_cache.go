package solanapay

import (
	"context"
	"sync"
	"time"

	solana "github.com/gagliardetto/solana-go"
)

// Receipt records which checkout consumed a validated signature.
type Receipt struct {
	Signature solana.Signature
	SessionID string
	Result    ValidationResult
}

// ReceiptStatus represents the result of checking the cache.
type ReceiptStatus int

const (
	// ReceiptNotFound means the signature is unclaimed and now marked in-flight.
	ReceiptNotFound ReceiptStatus = iota
	// ReceiptCached means the signature was already consumed.
	ReceiptCached
	// ReceiptInFlight means another caller is validating this signature.
	ReceiptInFlight
)

// ReceiptCache binds each validated signature to the one session that
// consumed it, so a single on-chain payment cannot release goods twice.
// In-flight tracking lets concurrent validations of the same signature wait
// for the first one instead of racing it.
type ReceiptCache struct {
	mu       sync.Mutex
	receipts map[solana.Signature]*Receipt
	expiry   map[solana.Signature]time.Time
	inFlight map[solana.Signature]chan struct{}
	ttl      time.Duration
}

// NewReceiptCache creates a cache. A ttl <= 0 keeps receipts forever.
func NewReceiptCache(ttl time.Duration) *ReceiptCache {
	return &ReceiptCache{
		receipts: make(map[solana.Signature]*Receipt),
		expiry:   make(map[solana.Signature]time.Time),
		inFlight: make(map[solana.Signature]chan struct{}),
		ttl:      ttl,
	}
}

// CheckAndMark atomically checks the cache and marks sig as in-flight if needed.
// Returns:
// - ReceiptCached + receipt if sig was already consumed
// - ReceiptInFlight + wait channel if another caller is validating sig
// - ReceiptNotFound + done channel if this caller should proceed (now in-flight)
func (c *ReceiptCache) CheckAndMark(sig solana.Signature) (ReceiptStatus, *Receipt, chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if r, ok := c.lookupLocked(sig); ok {
		return ReceiptCached, r, nil
	}

	if done, exists := c.inFlight[sig]; exists {
		return ReceiptInFlight, nil, done
	}

	done := make(chan struct{})
	c.inFlight[sig] = done
	return ReceiptNotFound, nil, done
}

// WaitForResult waits for an in-flight validation to complete, respecting context cancellation.
// Returns the receipt if the validation succeeded, or nil if it failed.
func (c *ReceiptCache) WaitForResult(ctx context.Context, sig solana.Signature, done chan struct{}) (*Receipt, error) {
	select {
	case <-done:
		return c.Get(sig), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Get returns the receipt for sig, or nil.
func (c *ReceiptCache) Get(sig solana.Signature) *Receipt {
	c.mu.Lock()
	defer c.mu.Unlock()

	r, _ := c.lookupLocked(sig)
	return r
}

// Complete stores the receipt and signals waiters.
func (c *ReceiptCache) Complete(receipt *Receipt, done chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.receipts[receipt.Signature] = receipt
	if c.ttl > 0 {
		c.expiry[receipt.Signature] = time.Now().Add(c.ttl)
	}
	delete(c.inFlight, receipt.Signature)
	close(done)

	c.cleanupExpiredLocked()
}

// Fail removes the in-flight marker without storing a receipt, so the
// signature can be validated again.
func (c *ReceiptCache) Fail(sig solana.Signature, done chan struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.inFlight, sig)
	close(done)
}

func (c *ReceiptCache) lookupLocked(sig solana.Signature) (*Receipt, bool) {
	r, ok := c.receipts[sig]
	if !ok {
		return nil, false
	}
	if exp, has := c.expiry[sig]; has && time.Now().After(exp) {
		delete(c.receipts, sig)
		delete(c.expiry, sig)
		return nil, false
	}
	return r, true
}

// cleanupExpiredLocked removes expired entries. Must be called with lock held.
func (c *ReceiptCache) cleanupExpiredLocked() {
	now := time.Now()
	for sig, exp := range c.expiry {
		if now.After(exp) {
			delete(c.receipts, sig)
			delete(c.expiry, sig)
		}
	}
}
