package merchant

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	solana "github.com/gagliardetto/solana-go"

	solanapay "github.com/lmvdz/solana-pay"
	"github.com/lmvdz/solana-pay/mechanisms/svm/finder"
	"github.com/lmvdz/solana-pay/payurl"
	"github.com/lmvdz/solana-pay/pkg/metrics"
)

// Poll outcomes
const (
	outcomeNotFound    = "not_found"
	outcomeUnconfirmed = "unconfirmed"
	outcomeValid       = "valid"
	outcomeMismatch    = "mismatch"
	outcomeError       = "error"
)

// Check runs one find and validate step for a pending session.
//
// A transient error (solanapay.IsTransient) means nothing conclusive was
// found yet. A validation mismatch rejects the session and is returned as
// the error. Final sessions are returned as they are.
func (s *Service) Check(ctx context.Context, id string) (*Session, error) {
	session, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if session.Final() {
		return session, nil
	}

	found, err := finder.FindSignature(ctx, s.ledger, session.Reference, finder.Options{
		Commitment: s.config.Commitment,
	})
	if err != nil {
		s.recordPoll(err)
		return session, err
	}

	result, payer, err := s.claim(ctx, session, found.Signature)
	s.recordPoll(err)

	var mismatch *solanapay.ValidationMismatchError
	switch {
	case errors.As(err, &mismatch):
		updated, uerr := s.update(id, func(cur *Session) {
			cur.Status = StatusRejected
			cur.Signature = &found.Signature
			cur.Reason = mismatch.Reason
			if result != nil {
				cur.Slot = result.Slot
			}
		})
		if uerr != nil {
			return nil, uerr
		}
		metrics.CheckoutResult(session.Kind.String(), string(StatusRejected))
		s.logger.Warn("checkout rejected", "session", id, "signature", found.Signature, "reason", mismatch.Reason, "field", mismatch.Field)
		return updated, err
	case err != nil:
		return session, err
	}

	updated, err := s.update(id, func(cur *Session) {
		cur.Status = StatusConfirmed
		cur.Signature = &result.Signature
		cur.Slot = result.Slot
		if payer != nil {
			cur.Payer = payer
		}
	})
	if err != nil {
		return nil, err
	}
	metrics.CheckoutResult(session.Kind.String(), string(StatusConfirmed))
	s.logger.Info("checkout confirmed", "session", id, "signature", result.Signature, "slot", result.Slot)
	return updated, nil
}

// claim validates sig for session and binds it to the session, so that one
// on-chain transaction can settle at most one checkout.
func (s *Service) claim(ctx context.Context, session *Session, sig solana.Signature) (*solanapay.ValidationResult, *solana.PublicKey, error) {
	var payer *solana.PublicKey
	result, err := s.bind(ctx, session.ID, sig, func() (*solanapay.ValidationResult, error) {
		result, p, err := s.validate(ctx, session, sig)
		payer = p
		return result, err
	})
	return result, payer, err
}

// bind runs validate once per signature and records the signature as
// consumed by owner. A signature already consumed by another owner is a
// mismatch.
func (s *Service) bind(ctx context.Context, owner string, sig solana.Signature, validate func() (*solanapay.ValidationResult, error)) (*solanapay.ValidationResult, error) {
	for {
		status, receipt, done := s.receipts.CheckAndMark(sig)
		switch status {
		case solanapay.ReceiptCached:
			if receipt.SessionID != owner {
				return nil, solanapay.NewMismatch(solanapay.ReasonSignatureReused, "signature", "unused signature", "consumed by session "+receipt.SessionID)
			}
			result := receipt.Result
			return &result, nil

		case solanapay.ReceiptInFlight:
			if _, err := s.receipts.WaitForResult(ctx, sig, done); err != nil {
				return nil, err
			}
			// Re-check: the other caller either stored a receipt or released the claim.
			continue
		}

		result, err := validate()
		if err != nil {
			s.receipts.Fail(sig, done)
			return result, err
		}
		s.receipts.Complete(&solanapay.Receipt{Signature: sig, SessionID: owner, Result: *result}, done)
		return result, nil
	}
}

func (s *Service) validate(ctx context.Context, session *Session, sig solana.Signature) (*solanapay.ValidationResult, *solana.PublicKey, error) {
	if session.Kind == payurl.KindPayment {
		result, err := s.validator.ValidatePayment(ctx, sig, solanapay.ExpectationFromIntent(*session.Payment))
		return result, nil, err
	}

	payer, err := s.mintPayer(ctx, session, sig)
	if err != nil {
		return nil, nil, err
	}
	result, err := s.validator.ValidateMint(ctx, sig, payer, session.Mint.Inventory)
	return result, &payer, err
}

// mintPayer returns the expected payer of a mint session, falling back to
// the fee payer of the transaction that references it.
func (s *Service) mintPayer(ctx context.Context, session *Session, sig solana.Signature) (solana.PublicKey, error) {
	if session.Payer != nil {
		return *session.Payer, nil
	}
	tx, err := s.ledger.GetTransaction(ctx, sig, s.config.Commitment)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to get transaction %s: %w", sig, err)
	}
	if tx == nil || len(tx.AccountKeys) == 0 {
		return solana.PublicKey{}, fmt.Errorf("%w: %s", solanapay.ErrNotFound, sig)
	}
	return tx.AccountKeys[0], nil
}

// WaitForPayment polls Check every poll interval until the session is final
// or the poll timeout passes, in which case the session expires.
func (s *Service) WaitForPayment(ctx context.Context, id string) (*Session, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.PollTimeout)
	defer cancel()

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	for attempt := 1; ; attempt++ {
		session, err := s.Check(ctx, id)
		switch {
		case errors.Is(err, ErrSessionNotFound):
			return nil, err
		case solanapay.IsTerminal(err):
			return session, err
		case err == nil && session.Final():
			return session, nil
		case err != nil && !solanapay.IsTransient(err) && ctx.Err() == nil:
			s.logger.Warn("checkout poll failed", "session", id, "attempt", attempt, "error", err)
		}

		select {
		case <-ctx.Done():
			return s.expire(id, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (s *Service) expire(id string, cause error) (*Session, error) {
	if errors.Is(cause, context.Canceled) {
		session, err := s.Get(id)
		if err != nil {
			return nil, err
		}
		return session, cause
	}

	session, err := s.update(id, func(cur *Session) {
		cur.Status = StatusExpired
	})
	if err != nil {
		return nil, err
	}
	if session.Status != StatusExpired {
		return session, nil
	}
	metrics.CheckoutResult(session.Kind.String(), string(StatusExpired))
	s.logger.Info("checkout expired", "session", id, "reference", session.Reference)
	return session, fmt.Errorf("%w: %s", ErrSessionExpired, id)
}

// CheckCleanup validates the cleanup transaction that followed a confirmed mint.
func (s *Service) CheckCleanup(ctx context.Context, id string, sig solana.Signature) (*Session, error) {
	session, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if session.Kind != payurl.KindMint {
		return nil, fmt.Errorf("session %s is not a mint checkout", id)
	}
	if session.Status != StatusConfirmed || session.Payer == nil {
		return nil, fmt.Errorf("session %s has no confirmed mint", id)
	}

	_, err = s.bind(ctx, cleanupOwner(id), sig, func() (*solanapay.ValidationResult, error) {
		result, err := s.validator.ValidateCleanup(ctx, sig, *session.Payer, session.Mint.Inventory)
		if err != nil {
			return result, err
		}
		if result.Slot <= session.Slot {
			err := solanapay.NewMismatch(solanapay.ReasonCleanupEffect, "slot",
				"after "+strconv.FormatUint(session.Slot, 10), strconv.FormatUint(result.Slot, 10))
			result.Valid, result.Reason = false, err.Reason
			return result, err
		}
		return result, nil
	})
	if err != nil {
		return session, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.sessions[id]
	cur.Cleanup = &sig
	cur.UpdatedAt = s.now()
	cp := *cur
	s.logger.Info("cleanup confirmed", "session", id, "signature", sig)
	return &cp, nil
}

// cleanupOwner keys cleanup receipts apart from the session's own payment.
func cleanupOwner(id string) string {
	return id + "/cleanup"
}

func (s *Service) recordPoll(err error) {
	var outcome string
	switch {
	case err == nil:
		outcome = outcomeValid
	case errors.Is(err, solanapay.ErrNotFound):
		outcome = outcomeNotFound
	case errors.Is(err, solanapay.ErrUnconfirmed):
		outcome = outcomeUnconfirmed
	case solanapay.IsTerminal(err):
		outcome = outcomeMismatch
	default:
		outcome = outcomeError
	}
	metrics.Poll(outcome)
}
