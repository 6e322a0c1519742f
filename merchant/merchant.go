// Package merchant is the requesting side of the protocol: it issues
// checkout sessions with fresh references, then finds and validates the
// transaction that pays each one.
package merchant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	solana "github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	solanapay "github.com/lmvdz/solana-pay"
	"github.com/lmvdz/solana-pay/mechanisms/svm"
	"github.com/lmvdz/solana-pay/mechanisms/svm/validator"
	"github.com/lmvdz/solana-pay/payurl"
	"github.com/lmvdz/solana-pay/pkg/metrics"
)

// Defaults
const (
	DefaultPollInterval = 250 * time.Millisecond
	DefaultPollTimeout  = 2 * time.Minute
)

var (
	ErrSessionNotFound = errors.New("checkout session not found")
	ErrSessionExpired  = errors.New("checkout session expired")
	ErrNoInventory     = errors.New("mint checkouts are not enabled")
)

// Status is the lifecycle state of a checkout session.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusRejected  Status = "rejected"
	StatusExpired   Status = "expired"
)

// Session is one checkout. Values returned by the Service are snapshots.
type Session struct {
	ID        string
	Kind      payurl.Kind
	URL       string
	Reference solana.PublicKey
	Payment   *solanapay.PaymentIntent
	Mint      *solanapay.MintIntent
	// Payer is the account expected to receive the minted item. When unset
	// for a mint checkout it is taken from the fee payer of the found transaction.
	Payer *solana.PublicKey

	Status    Status
	Signature *solana.Signature
	Slot      uint64
	Reason    string
	Cleanup   *solana.Signature

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Final reports whether the session will not change again.
func (s *Session) Final() bool {
	return s.Status != StatusPending
}

// CheckoutRequest describes a payment checkout.
type CheckoutRequest struct {
	// Recipient defaults to Config.Recipient.
	Recipient *solana.PublicKey
	Amount    decimal.Decimal
	SPLToken  *solana.PublicKey
	Label     string
	Message   string
	Memo      string
}

// MintCheckoutRequest describes a mint checkout.
type MintCheckoutRequest struct {
	Inventory solana.PublicKey
	Payer     *solana.PublicKey
	Label     string
	Message   string
}

// Config holds the merchant settings.
type Config struct {
	Recipient    solana.PublicKey
	Label        string
	Commitment   solanapay.Commitment
	PollInterval time.Duration
	PollTimeout  time.Duration
	// ReceiptTTL bounds how long consumed signatures are remembered. Zero keeps them forever.
	ReceiptTTL time.Duration
}

// Service manages checkout sessions.
type Service struct {
	ledger    solanapay.Ledger
	inventory solanapay.InventoryProgram
	validator *validator.Validator
	receipts  *solanapay.ReceiptCache
	keys      solanapay.KeyGenerator
	config    Config
	logger    *slog.Logger
	now       func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

// Option configures a Service.
type Option func(*Service)

// WithInventoryProgram enables mint checkouts against program.
func WithInventoryProgram(program solanapay.InventoryProgram) Option {
	return func(s *Service) {
		s.inventory = program
	}
}

// WithKeyGenerator sets the source of reference keys.
func WithKeyGenerator(keys solanapay.KeyGenerator) Option {
	return func(s *Service) {
		s.keys = keys
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithReceiptCache shares a receipt cache between services.
func WithReceiptCache(cache *solanapay.ReceiptCache) Option {
	return func(s *Service) {
		s.receipts = cache
	}
}

// New creates a Service reading from ledger.
func New(ledger solanapay.Ledger, config Config, opts ...Option) *Service {
	if config.Commitment == "" {
		config.Commitment = solanapay.DefaultCommitment
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	if config.PollTimeout <= 0 {
		config.PollTimeout = DefaultPollTimeout
	}

	s := &Service{
		ledger:   ledger,
		keys:     solanapay.RandomKeys,
		config:   config,
		logger:   slog.Default(),
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.receipts == nil {
		s.receipts = solanapay.NewReceiptCache(config.ReceiptTTL)
	}

	vopts := []validator.Option{validator.WithCommitment(config.Commitment)}
	if s.inventory != nil {
		vopts = append(vopts, validator.WithInventoryProgram(s.inventory))
	}
	s.validator = validator.New(ledger, vopts...)
	return s
}

// CreateCheckout opens a payment session tagged with a fresh reference.
// The amount must be payable in whole base units of the requested asset;
// for a token that means reading its mint from the ledger.
func (s *Service) CreateCheckout(ctx context.Context, req CheckoutRequest) (*Session, error) {
	recipient := s.config.Recipient
	if req.Recipient != nil {
		recipient = *req.Recipient
	}
	if recipient.IsZero() {
		return nil, fmt.Errorf("recipient is required")
	}
	if req.Amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", solanapay.ErrInvalidAmount)
	}
	if err := s.checkPayable(ctx, req.Amount, req.SPLToken); err != nil {
		return nil, err
	}

	reference, err := s.newReference()
	if err != nil {
		return nil, err
	}

	label := req.Label
	if label == "" {
		label = s.config.Label
	}
	amount := req.Amount
	intent := &solanapay.PaymentIntent{
		Recipient:  recipient,
		Amount:     &amount,
		SPLToken:   req.SPLToken,
		References: []solana.PublicKey{reference},
		Label:      label,
		Message:    req.Message,
		Memo:       req.Memo,
	}

	session := s.store(&Session{
		Kind:      payurl.KindPayment,
		URL:       payurl.Encode(*intent),
		Reference: reference,
		Payment:   intent,
	})
	metrics.CheckoutCreated(payurl.KindPayment.String())
	s.logger.Info("checkout created", "session", session.ID, "reference", reference, "amount", solanapay.FormatAmount(amount))
	return session, nil
}

// CreateMintCheckout opens a mint session tagged with a fresh reference.
func (s *Service) CreateMintCheckout(req MintCheckoutRequest) (*Session, error) {
	if s.inventory == nil {
		return nil, ErrNoInventory
	}
	if req.Inventory.IsZero() {
		return nil, fmt.Errorf("inventory is required")
	}
	if s.config.Recipient.IsZero() {
		return nil, fmt.Errorf("recipient is required")
	}

	reference, err := s.newReference()
	if err != nil {
		return nil, err
	}

	label := req.Label
	if label == "" {
		label = s.config.Label
	}
	intent := &solanapay.MintIntent{
		Recipient:  s.config.Recipient,
		Inventory:  req.Inventory,
		References: []solana.PublicKey{reference},
		Label:      label,
		Message:    req.Message,
	}

	session := s.store(&Session{
		Kind:      payurl.KindMint,
		URL:       payurl.EncodeMint(*intent),
		Reference: reference,
		Mint:      intent,
		Payer:     req.Payer,
	})
	metrics.CheckoutCreated(payurl.KindMint.String())
	s.logger.Info("mint checkout created", "session", session.ID, "reference", reference, "inventory", req.Inventory)
	return session, nil
}

// checkPayable rejects amounts finer than the smallest unit of the asset.
func (s *Service) checkPayable(ctx context.Context, amount decimal.Decimal, splToken *solana.PublicKey) error {
	decimals := solanapay.NativeDecimals
	if splToken != nil {
		mint, err := svm.FetchMint(ctx, s.ledger, *splToken)
		if err != nil {
			return fmt.Errorf("failed to read token mint: %w", err)
		}
		decimals = mint.Decimals
	}
	_, err := solanapay.ToBaseUnits(amount, decimals)
	return err
}

// Get returns a snapshot of the session.
func (s *Service) Get(id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	cp := *session
	return &cp, nil
}

func (s *Service) newReference() (solana.PublicKey, error) {
	key, err := s.keys.NewKey()
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to generate reference: %w", err)
	}
	return key.PublicKey(), nil
}

func (s *Service) store(session *Session) *Session {
	now := s.now()
	session.ID = uuid.NewString()
	session.Status = StatusPending
	session.CreatedAt = now
	session.UpdatedAt = now

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.mu.Unlock()

	cp := *session
	return &cp
}

// update applies fn to a pending session and returns the new snapshot.
// Sessions that already reached a final state are returned unchanged.
func (s *Service) update(id string, fn func(*Session)) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if !session.Final() {
		fn(session)
		session.UpdatedAt = s.now()
	}
	cp := *session
	return &cp, nil
}
