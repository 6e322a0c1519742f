package candymachine

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	bin "github.com/gagliardetto/binary"
	solana "github.com/gagliardetto/solana-go"
)

// LayoutVersion identifies the account layout this package decodes.
const LayoutVersion = 2

// WhitelistMode says what happens to the allow-list token on mint.
type WhitelistMode uint8

const (
	WhitelistBurnEveryTime WhitelistMode = iota
	WhitelistNeverBurn
)

// EndSettingType says how EndSettings.Number is interpreted.
type EndSettingType uint8

const (
	EndSettingDate EndSettingType = iota
	EndSettingAmount
)

// Creator is a royalty recipient of minted items.
type Creator struct {
	Address  solana.PublicKey
	Verified bool
	Share    uint8
}

// EndSettings stops minting at a date or item count.
type EndSettings struct {
	EndSettingType EndSettingType
	Number         uint64
}

// HiddenSettings replaces per-item config lines with a single URI.
type HiddenSettings struct {
	Name string
	URI  string
	Hash [32]byte
}

// WhitelistMintSettings gates minting on holding an allow-list token.
type WhitelistMintSettings struct {
	Mode          WhitelistMode
	Mint          solana.PublicKey
	Presale       bool
	DiscountPrice *uint64 `bin:"optional"`
}

// GatekeeperConfig requires a gateway token from a gatekeeper network.
type GatekeeperConfig struct {
	GatekeeperNetwork solana.PublicKey
	ExpireOnUse       bool
}

// Data is the configurable part of a candy machine.
type Data struct {
	UUID                  string
	Price                 uint64
	Symbol                string
	SellerFeeBasisPoints  uint16
	MaxSupply             uint64
	IsMutable             bool
	RetainAuthority       bool
	GoLiveDate            *int64       `bin:"optional"`
	EndSettings           *EndSettings `bin:"optional"`
	Creators              []Creator
	HiddenSettings        *HiddenSettings        `bin:"optional"`
	WhitelistMintSettings *WhitelistMintSettings `bin:"optional"`
	ItemsAvailable        uint64
	Gatekeeper            *GatekeeperConfig `bin:"optional"`
}

// CandyMachine is the on-chain candy machine account, without its
// discriminator and trailing config lines.
type CandyMachine struct {
	Authority     solana.PublicKey
	Wallet        solana.PublicKey
	TokenMint     *solana.PublicKey `bin:"optional"`
	ItemsRedeemed uint64
	Data          Data
}

// CollectionPDA links a candy machine to its collection mint.
type CollectionPDA struct {
	Mint         solana.PublicKey
	CandyMachine solana.PublicKey
}

var (
	candyMachineDiscriminator  = accountDiscriminator("CandyMachine")
	collectionPDADiscriminator = accountDiscriminator("CollectionPDA")
	mintNFTDiscriminator       = instructionDiscriminator("mint_nft")
)

func accountDiscriminator(name string) [8]byte {
	return discriminator("account:" + name)
}

func instructionDiscriminator(name string) [8]byte {
	return discriminator("global:" + name)
}

func discriminator(preimage string) [8]byte {
	sum := sha256.Sum256([]byte(preimage))
	var d [8]byte
	copy(d[:], sum[:8])
	return d
}

// DecodeCandyMachine decodes candy machine account data.
func DecodeCandyMachine(data []byte) (*CandyMachine, error) {
	var cm CandyMachine
	if err := decodeAccount(data, candyMachineDiscriminator, &cm); err != nil {
		return nil, fmt.Errorf("candy machine: %w", err)
	}
	return &cm, nil
}

// DecodeCollectionPDA decodes collection PDA account data.
func DecodeCollectionPDA(data []byte) (*CollectionPDA, error) {
	var pda CollectionPDA
	if err := decodeAccount(data, collectionPDADiscriminator, &pda); err != nil {
		return nil, fmt.Errorf("collection pda: %w", err)
	}
	return &pda, nil
}

// EncodeCandyMachine lays out cm as account data.
func EncodeCandyMachine(cm *CandyMachine) ([]byte, error) {
	return encodeAccount(candyMachineDiscriminator, cm)
}

// EncodeCollectionPDA lays out pda as account data.
func EncodeCollectionPDA(pda *CollectionPDA) ([]byte, error) {
	return encodeAccount(collectionPDADiscriminator, pda)
}

func decodeAccount(data []byte, disc [8]byte, v interface{}) error {
	if len(data) < 8 {
		return fmt.Errorf("account data too short: %d bytes", len(data))
	}
	if !bytes.Equal(data[:8], disc[:]) {
		return fmt.Errorf("unexpected discriminator %x", data[:8])
	}
	if err := bin.NewBorshDecoder(data[8:]).Decode(v); err != nil {
		return fmt.Errorf("failed to decode: %w", err)
	}
	return nil
}

func encodeAccount(disc [8]byte, v interface{}) ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.Write(disc[:])
	if err := bin.NewBorshEncoder(buf).Encode(v); err != nil {
		return nil, fmt.Errorf("failed to encode: %w", err)
	}
	return buf.Bytes(), nil
}
