// Package svm holds the Solana-specific building blocks shared by the
// builder, finder and validator: program identifiers, cluster endpoints,
// typed token account decoding and instruction helpers.
package svm

import (
	"fmt"

	solana "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// Program identifiers
var (
	// MemoProgramID is the SPL memo program (v2).
	MemoProgramID = solana.MustPublicKeyFromBase58("MemoSq4gqABAXKb96qnH8TysNcWxMyWCqXgDLGmfcHr")
	// TokenMetadataProgramID is the Metaplex token metadata program.
	TokenMetadataProgramID = solana.MustPublicKeyFromBase58("metaqbxxUerdq28cj1RbAWkYQm3ybzjb6a8bt518x1s")
)

// Account sizes
const (
	MintSize    = 82
	HoldingSize = 165
)

// Cluster names
const (
	ClusterMainnet  = "mainnet-beta"
	ClusterDevnet   = "devnet"
	ClusterTestnet  = "testnet"
	ClusterLocalnet = "localnet"
)

// NetworkConfig describes one Solana cluster.
type NetworkConfig struct {
	Name   string
	RPCURL string
}

var networkConfigs = map[string]NetworkConfig{
	ClusterMainnet:  {Name: ClusterMainnet, RPCURL: rpc.MainNetBeta_RPC},
	ClusterDevnet:   {Name: ClusterDevnet, RPCURL: rpc.DevNet_RPC},
	ClusterTestnet:  {Name: ClusterTestnet, RPCURL: rpc.TestNet_RPC},
	ClusterLocalnet: {Name: ClusterLocalnet, RPCURL: rpc.LocalNet_RPC},
}

// GetNetworkConfig returns the configuration of a named cluster.
func GetNetworkConfig(cluster string) (*NetworkConfig, error) {
	cfg, ok := networkConfigs[cluster]
	if !ok {
		return nil, fmt.Errorf("unsupported cluster: %s", cluster)
	}
	return &cfg, nil
}

// IsValidNetwork reports whether cluster is a known cluster name.
func IsValidNetwork(cluster string) bool {
	_, ok := networkConfigs[cluster]
	return ok
}

// IsTokenProgram reports whether program is the classic token program or Token-2022.
func IsTokenProgram(program solana.PublicKey) bool {
	return program.Equals(solana.TokenProgramID) || program.Equals(solana.Token2022ProgramID)
}

// ValidateAddress parses a base58 account identifier.
func ValidateAddress(address string) (solana.PublicKey, error) {
	pk, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid address %q: %w", address, err)
	}
	return pk, nil
}
