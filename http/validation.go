package http

import (
	"fmt"
	"time"

	solana "github.com/gagliardetto/solana-go"

	solanapay "github.com/lmvdz/solana-pay"
	"github.com/lmvdz/solana-pay/merchant"
	"github.com/lmvdz/solana-pay/payurl"
)

// ============================================================================
// Wire types
// ============================================================================

// CheckoutRequest is the body of POST /v1/checkouts.
type CheckoutRequest struct {
	Recipient string `json:"recipient,omitempty"`
	Amount    string `json:"amount"`
	SPLToken  string `json:"splToken,omitempty"`
	Label     string `json:"label,omitempty"`
	Message   string `json:"message,omitempty"`
	Memo      string `json:"memo,omitempty"`
}

// MintCheckoutRequest is the body of POST /v1/mints.
type MintCheckoutRequest struct {
	Inventory string `json:"inventory"`
	Payer     string `json:"payer,omitempty"`
	Label     string `json:"label,omitempty"`
	Message   string `json:"message,omitempty"`
}

// CleanupRequest is the body of POST /v1/checkouts/:id/cleanup.
type CleanupRequest struct {
	Signature string `json:"signature"`
}

// Session is the JSON view of a checkout session.
type Session struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	URL       string    `json:"url"`
	Reference string    `json:"reference"`
	Status    string    `json:"status"`
	Signature string    `json:"signature,omitempty"`
	Slot      uint64    `json:"slot,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Payer     string    `json:"payer,omitempty"`
	Cleanup   string    `json:"cleanup,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

// ============================================================================
// Validation
// ============================================================================

// ToMerchant validates the request and converts it for the merchant service.
func (r CheckoutRequest) ToMerchant() (merchant.CheckoutRequest, error) {
	if r.Amount == "" {
		return merchant.CheckoutRequest{}, fmt.Errorf("missing required field: amount")
	}
	amount, err := solanapay.ParseAmount(r.Amount)
	if err != nil {
		return merchant.CheckoutRequest{}, err
	}

	out := merchant.CheckoutRequest{
		Amount:  amount,
		Label:   r.Label,
		Message: r.Message,
		Memo:    r.Memo,
	}
	if out.Recipient, err = optionalAccount("recipient", r.Recipient); err != nil {
		return merchant.CheckoutRequest{}, err
	}
	if out.SPLToken, err = optionalAccount("splToken", r.SPLToken); err != nil {
		return merchant.CheckoutRequest{}, err
	}
	return out, nil
}

// ToMerchant validates the request and converts it for the merchant service.
func (r MintCheckoutRequest) ToMerchant() (merchant.MintCheckoutRequest, error) {
	if r.Inventory == "" {
		return merchant.MintCheckoutRequest{}, fmt.Errorf("missing required field: inventory")
	}
	inventory, err := payurl.ParseAccount(r.Inventory)
	if err != nil {
		return merchant.MintCheckoutRequest{}, fmt.Errorf("invalid field inventory: %w", err)
	}

	out := merchant.MintCheckoutRequest{
		Inventory: inventory,
		Label:     r.Label,
		Message:   r.Message,
	}
	if out.Payer, err = optionalAccount("payer", r.Payer); err != nil {
		return merchant.MintCheckoutRequest{}, err
	}
	return out, nil
}

// ParseSignature validates the cleanup signature.
func (r CleanupRequest) ParseSignature() (solana.Signature, error) {
	if r.Signature == "" {
		return solana.Signature{}, fmt.Errorf("missing required field: signature")
	}
	sig, err := solana.SignatureFromBase58(r.Signature)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("invalid field signature: %w", err)
	}
	return sig, nil
}

func optionalAccount(field, value string) (*solana.PublicKey, error) {
	if value == "" {
		return nil, nil
	}
	key, err := payurl.ParseAccount(value)
	if err != nil {
		return nil, fmt.Errorf("invalid field %s: %w", field, err)
	}
	return &key, nil
}

// NewSession renders a merchant session.
func NewSession(s *merchant.Session) Session {
	out := Session{
		ID:        s.ID,
		Kind:      s.Kind.String(),
		URL:       s.URL,
		Reference: s.Reference.String(),
		Status:    string(s.Status),
		Slot:      s.Slot,
		Reason:    s.Reason,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
	if s.Signature != nil {
		out.Signature = s.Signature.String()
	}
	if s.Payer != nil {
		out.Payer = s.Payer.String()
	}
	if s.Cleanup != nil {
		out.Cleanup = s.Cleanup.String()
	}
	return out
}
