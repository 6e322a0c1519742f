package ledger

import (
	"encoding/binary"

	solana "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"

	"github.com/lmvdz/solana-pay/mechanisms/svm"
)

// EncodeMint lays out a token mint account.
func EncodeMint(decimals uint8, supply uint64, initialized bool, authority *solana.PublicKey) []byte {
	data := make([]byte, svm.MintSize)
	putOptionKey(data[0:36], authority)
	binary.LittleEndian.PutUint64(data[36:44], supply)
	data[44] = decimals
	if initialized {
		data[45] = 1
	}
	putOptionKey(data[46:82], nil)
	return data
}

// EncodeHolding lays out a token holding account.
func EncodeHolding(mint, owner solana.PublicKey, amount uint64, state token.AccountState, delegate *solana.PublicKey, delegated uint64) []byte {
	data := make([]byte, svm.HoldingSize)
	copy(data[0:32], mint[:])
	copy(data[32:64], owner[:])
	binary.LittleEndian.PutUint64(data[64:72], amount)
	putOptionKey(data[72:108], delegate)
	data[108] = byte(state)
	// is_native: none (4 byte tag + u64)
	binary.LittleEndian.PutUint64(data[121:129], delegated)
	putOptionKey(data[129:165], nil)
	return data
}

func putOptionKey(dst []byte, key *solana.PublicKey) {
	if key == nil {
		return
	}
	binary.LittleEndian.PutUint32(dst[0:4], 1)
	copy(dst[4:36], key[:])
}
