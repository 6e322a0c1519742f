// Package payurl encodes and decodes payment and mint requests as solana: URLs.
//
// A payment URL carries the recipient as its opaque part and the optional
// fields as query parameters:
//
//	solana:<recipient>?amount=1.5&spl-token=<mint>&reference=<r1>&reference=<r2>&label=..&message=..&memo=..
//
// A mint URL replaces amount/spl-token with the inventory keys:
//
//	solana:<recipient>?inventory=<id>&inventory-config=<cfg>&inventory-treasury=<wallet>&reference=..
package payurl

import (
	"fmt"

	solana "github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"

	solanapay "github.com/lmvdz/solana-pay"
)

// Scheme is the URL scheme of every request.
const Scheme = "solana"

// Query parameter keys
const (
	ParamAmount            = "amount"
	ParamSPLToken          = "spl-token"
	ParamReference         = "reference"
	ParamLabel             = "label"
	ParamMessage           = "message"
	ParamMemo              = "memo"
	ParamInventory         = "inventory"
	ParamInventoryConfig   = "inventory-config"
	ParamInventoryTreasury = "inventory-treasury"
)

// Kind distinguishes the two request types sharing the scheme.
type Kind int

const (
	KindPayment Kind = iota
	KindMint
)

func (k Kind) String() string {
	if k == KindMint {
		return "mint"
	}
	return "payment"
}

// Request is a decoded URL of either kind. Exactly one of Payment and Mint is set.
type Request struct {
	Kind    Kind
	Payment *solanapay.PaymentIntent
	Mint    *solanapay.MintIntent
}

// ParseAccount parses a base58 account identifier, requiring exactly 32 bytes.
func ParseAccount(s string) (solana.PublicKey, error) {
	if s == "" {
		return solana.PublicKey{}, fmt.Errorf("empty account")
	}
	raw, err := base58.Decode(s)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("not base58: %w", err)
	}
	if len(raw) != solana.PublicKeyLength {
		return solana.PublicKey{}, fmt.Errorf("decoded length %d, want %d", len(raw), solana.PublicKeyLength)
	}
	return solana.PublicKeyFromBytes(raw), nil
}
