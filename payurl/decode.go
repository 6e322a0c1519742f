package payurl

import (
	"net/url"
	"strings"

	solana "github.com/gagliardetto/solana-go"

	solanapay "github.com/lmvdz/solana-pay"
)

// Parse decodes a URL of either kind. A URL carrying an inventory parameter
// is a mint request.
func Parse(raw string) (*Request, error) {
	recipient, query, err := split(raw)
	if err != nil {
		return nil, err
	}
	if _, isMint := query[ParamInventory]; isMint {
		mint, err := decodeMint(recipient, query)
		if err != nil {
			return nil, err
		}
		return &Request{Kind: KindMint, Mint: mint}, nil
	}
	payment, err := decodePayment(recipient, query)
	if err != nil {
		return nil, err
	}
	return &Request{Kind: KindPayment, Payment: payment}, nil
}

// Decode decodes a payment URL.
func Decode(raw string) (*solanapay.PaymentIntent, error) {
	recipient, query, err := split(raw)
	if err != nil {
		return nil, err
	}
	return decodePayment(recipient, query)
}

// DecodeMint decodes a mint URL.
func DecodeMint(raw string) (*solanapay.MintIntent, error) {
	recipient, query, err := split(raw)
	if err != nil {
		return nil, err
	}
	return decodeMint(recipient, query)
}

func split(raw string) (solana.PublicKey, url.Values, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return solana.PublicKey{}, nil, solanapay.NewMalformedURLError("", raw, err.Error())
	}
	if !strings.EqualFold(u.Scheme, Scheme) {
		return solana.PublicKey{}, nil, solanapay.NewMalformedURLError("", raw, "scheme must be "+Scheme)
	}
	if u.Opaque == "" {
		return solana.PublicKey{}, nil, solanapay.NewMalformedURLError("recipient", "", "missing recipient")
	}

	rawRecipient, err := url.PathUnescape(u.Opaque)
	if err != nil {
		return solana.PublicKey{}, nil, solanapay.NewMalformedURLError("recipient", u.Opaque, err.Error())
	}
	recipient, err := ParseAccount(rawRecipient)
	if err != nil {
		return solana.PublicKey{}, nil, solanapay.NewMalformedURLError("recipient", rawRecipient, err.Error())
	}

	query, err := url.ParseQuery(u.RawQuery)
	if err != nil {
		return solana.PublicKey{}, nil, solanapay.NewMalformedURLError("", u.RawQuery, err.Error())
	}
	return recipient, query, nil
}

func decodePayment(recipient solana.PublicKey, query url.Values) (*solanapay.PaymentIntent, error) {
	intent := &solanapay.PaymentIntent{Recipient: recipient}

	if raw, ok, err := single(query, ParamAmount); err != nil {
		return nil, err
	} else if ok {
		amount, err := solanapay.ParseAmount(raw)
		if err != nil {
			return nil, solanapay.NewMalformedURLError(ParamAmount, raw, "not a non-negative decimal")
		}
		intent.Amount = &amount
	}

	token, err := optionalAccount(query, ParamSPLToken)
	if err != nil {
		return nil, err
	}
	intent.SPLToken = token

	if intent.References, err = references(query); err != nil {
		return nil, err
	}
	if intent.Label, intent.Message, intent.Memo, err = texts(query); err != nil {
		return nil, err
	}
	return intent, nil
}

func decodeMint(recipient solana.PublicKey, query url.Values) (*solanapay.MintIntent, error) {
	intent := &solanapay.MintIntent{Recipient: recipient}

	inventory, err := optionalAccount(query, ParamInventory)
	if err != nil {
		return nil, err
	}
	if inventory == nil {
		return nil, solanapay.NewMalformedURLError(ParamInventory, "", "missing inventory")
	}
	intent.Inventory = *inventory

	if intent.Config, err = optionalAccount(query, ParamInventoryConfig); err != nil {
		return nil, err
	}
	if intent.Treasury, err = optionalAccount(query, ParamInventoryTreasury); err != nil {
		return nil, err
	}
	if intent.References, err = references(query); err != nil {
		return nil, err
	}
	if intent.Label, intent.Message, intent.Memo, err = texts(query); err != nil {
		return nil, err
	}
	return intent, nil
}

// single returns the one value of a non-repeatable key.
func single(query url.Values, key string) (string, bool, error) {
	values, ok := query[key]
	if !ok {
		return "", false, nil
	}
	if len(values) > 1 {
		return "", false, solanapay.NewMalformedURLError(key, strings.Join(values, ","), "must not repeat")
	}
	return values[0], true, nil
}

func optionalAccount(query url.Values, key string) (*solana.PublicKey, error) {
	raw, ok, err := single(query, key)
	if err != nil || !ok {
		return nil, err
	}
	pk, err := ParseAccount(raw)
	if err != nil {
		return nil, solanapay.NewMalformedURLError(key, raw, err.Error())
	}
	return &pk, nil
}

func references(query url.Values) ([]solana.PublicKey, error) {
	values := query[ParamReference]
	if len(values) == 0 {
		return nil, nil
	}
	refs := make([]solana.PublicKey, 0, len(values))
	for _, raw := range values {
		pk, err := ParseAccount(raw)
		if err != nil {
			return nil, solanapay.NewMalformedURLError(ParamReference, raw, err.Error())
		}
		refs = append(refs, pk)
	}
	return refs, nil
}

func texts(query url.Values) (label, message, memo string, err error) {
	if label, _, err = single(query, ParamLabel); err != nil {
		return
	}
	if message, _, err = single(query, ParamMessage); err != nil {
		return
	}
	memo, _, err = single(query, ParamMemo)
	return
}
