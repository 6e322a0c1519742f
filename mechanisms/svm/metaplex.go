package svm

import (
	"fmt"

	solana "github.com/gagliardetto/solana-go"
)

// MetadataAddress derives the token metadata account of mint.
func MetadataAddress(mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{[]byte("metadata"), TokenMetadataProgramID[:], mint[:]},
		TokenMetadataProgramID,
	)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive metadata address: %w", err)
	}
	return addr, nil
}

// MasterEditionAddress derives the master edition account of mint.
func MasterEditionAddress(mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{[]byte("metadata"), TokenMetadataProgramID[:], mint[:], []byte("edition")},
		TokenMetadataProgramID,
	)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive master edition address: %w", err)
	}
	return addr, nil
}

// CollectionAuthorityRecordAddress derives the record delegating collection
// authority over mint to authority.
func CollectionAuthorityRecordAddress(mint, authority solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress(
		[][]byte{
			[]byte("metadata"),
			TokenMetadataProgramID[:],
			mint[:],
			[]byte("collection_authority"),
			authority[:],
		},
		TokenMetadataProgramID,
	)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive collection authority record: %w", err)
	}
	return addr, nil
}
