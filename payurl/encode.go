package payurl

import (
	"net/url"
	"strings"

	solana "github.com/gagliardetto/solana-go"

	solanapay "github.com/lmvdz/solana-pay"
)

type param struct {
	key   string
	value string
}

// Encode serializes a payment intent. Absent fields emit no parameter and
// references keep their order.
func Encode(intent solanapay.PaymentIntent) string {
	var params []param

	if intent.Amount != nil {
		params = append(params, param{ParamAmount, solanapay.FormatAmount(*intent.Amount)})
	}
	if intent.SPLToken != nil {
		params = append(params, param{ParamSPLToken, intent.SPLToken.String()})
	}
	params = appendCommon(params, intent.References, intent.Label, intent.Message, intent.Memo)

	return build(intent.Recipient, params)
}

// EncodeMint serializes a mint intent. Each inventory field has its own key.
func EncodeMint(intent solanapay.MintIntent) string {
	params := []param{{ParamInventory, intent.Inventory.String()}}

	if intent.Config != nil {
		params = append(params, param{ParamInventoryConfig, intent.Config.String()})
	}
	if intent.Treasury != nil {
		params = append(params, param{ParamInventoryTreasury, intent.Treasury.String()})
	}
	params = appendCommon(params, intent.References, intent.Label, intent.Message, intent.Memo)

	return build(intent.Recipient, params)
}

func appendCommon(params []param, refs []solana.PublicKey, label, message, memo string) []param {
	for _, ref := range refs {
		params = append(params, param{ParamReference, ref.String()})
	}
	if label != "" {
		params = append(params, param{ParamLabel, label})
	}
	if message != "" {
		params = append(params, param{ParamMessage, message})
	}
	if memo != "" {
		params = append(params, param{ParamMemo, memo})
	}
	return params
}

func build(recipient solana.PublicKey, params []param) string {
	var b strings.Builder
	b.WriteString(Scheme)
	b.WriteByte(':')
	b.WriteString(escape(recipient.String()))

	for i, p := range params {
		if i == 0 {
			b.WriteByte('?')
		} else {
			b.WriteByte('&')
		}
		b.WriteString(p.key)
		b.WriteByte('=')
		b.WriteString(escape(p.value))
	}
	return b.String()
}

// escape percent-encodes a component, spaces included, so that decoders
// that treat '+' literally read the same value.
func escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
