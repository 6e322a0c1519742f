package builder

import (
	"context"
	"crypto/ed25519"
	"encoding/binary"
	"testing"

	solana "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	solanapay "github.com/lmvdz/solana-pay"
	"github.com/lmvdz/solana-pay/mechanisms/svm"
	"github.com/lmvdz/solana-pay/test/mocks/ledger"
)

const sol = 1_000_000_000

// seededKeys returns a deterministic key generator.
func seededKeys() solanapay.KeyGenerator {
	var n byte
	return solanapay.KeyGeneratorFunc(func() (solana.PrivateKey, error) {
		n++
		seed := make([]byte, ed25519.SeedSize)
		seed[0] = n
		return solana.PrivateKey(ed25519.NewKeyFromSeed(seed)), nil
	})
}

func amountPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

type paymentFixture struct {
	ledger    *ledger.Ledger
	payer     solana.PublicKey
	recipient solana.PublicKey
	mint      solana.PublicKey
}

func newPaymentFixture() *paymentFixture {
	f := &paymentFixture{
		ledger:    ledger.New(),
		payer:     solana.NewWallet().PublicKey(),
		recipient: solana.NewWallet().PublicKey(),
		mint:      solana.NewWallet().PublicKey(),
	}
	f.ledger.SetSystemAccount(f.payer, 10*sol)
	f.ledger.SetSystemAccount(f.recipient, 1*sol)
	f.ledger.SetMint(f.mint, 6, 1_000_000_000)
	f.ledger.SetHolding(f.payer, f.mint, 5_000_000, token.Initialized)
	f.ledger.SetHolding(f.recipient, f.mint, 0, token.Initialized)
	return f
}

func lamportsOf(t *testing.T, ix solana.Instruction) uint64 {
	t.Helper()
	data, err := ix.Data()
	require.NoError(t, err)
	require.Len(t, data, 12)
	require.Equal(t, uint32(2), binary.LittleEndian.Uint32(data[:4]))
	return binary.LittleEndian.Uint64(data[4:])
}

func TestBuildPayment_Native(t *testing.T) {
	f := newPaymentFixture()
	b := New(f.ledger)

	built, err := b.BuildPayment(context.Background(), f.payer, solanapay.PaymentIntent{
		Recipient: f.recipient,
		Amount:    amountPtr("1.5"),
	})
	require.NoError(t, err)

	require.Len(t, built.Instructions, 1)
	ix := built.Instructions[0]
	assert.Equal(t, solana.SystemProgramID, ix.ProgramID())
	assert.Equal(t, uint64(1_500_000_000), lamportsOf(t, ix))
	assert.Equal(t, []solana.PublicKey{f.payer}, built.Signers)
	assert.False(t, built.HasCleanup())
	assert.Empty(t, built.EphemeralSigners)
}

func TestBuildPayment_DecimalFloor(t *testing.T) {
	f := newPaymentFixture()
	b := New(f.ledger)

	built, err := b.BuildPayment(context.Background(), f.payer, solanapay.PaymentIntent{
		Recipient: f.recipient,
		Amount:    amountPtr("9.999999999"),
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(9_999_999_999), lamportsOf(t, built.Instructions[0]))
}

func TestBuildPayment_ScaleExceededBeforeLedgerRead(t *testing.T) {
	f := newPaymentFixture()
	f.ledger.SetError("GetAccount", assert.AnError)
	b := New(f.ledger)

	_, err := b.BuildPayment(context.Background(), f.payer, solanapay.PaymentIntent{
		Recipient: f.recipient,
		Amount:    amountPtr("9.9999999991"),
	})
	assert.ErrorIs(t, err, solanapay.ErrInvalidAmount)
}

func TestBuildPayment_ReferencesAndMemo(t *testing.T) {
	f := newPaymentFixture()
	b := New(f.ledger)
	r1 := solana.NewWallet().PublicKey()
	r2 := solana.NewWallet().PublicKey()

	built, err := b.BuildPayment(context.Background(), f.payer, solanapay.PaymentIntent{
		Recipient:  f.recipient,
		Amount:     amountPtr("0.1"),
		References: []solana.PublicKey{r1, r2},
		Memo:       "order-42",
	})
	require.NoError(t, err)
	require.Len(t, built.Instructions, 2)

	memo := built.Instructions[0]
	assert.Equal(t, svm.MemoProgramID, memo.ProgramID())
	data, err := memo.Data()
	require.NoError(t, err)
	assert.Equal(t, []byte("order-42"), data)

	accounts := built.Instructions[1].Accounts()
	require.Len(t, accounts, 4)
	assert.Equal(t, r1, accounts[2].PublicKey)
	assert.Equal(t, r2, accounts[3].PublicKey)
	for _, ref := range accounts[2:] {
		assert.False(t, ref.IsSigner)
		assert.False(t, ref.IsWritable)
	}
}

func TestBuildPayment_NativeErrors(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(f *paymentFixture)
		amount  string
		wantErr error
	}{
		{
			name:    "missing amount",
			setup:   func(f *paymentFixture) {},
			wantErr: solanapay.ErrInvalidAmount,
		},
		{
			name:    "payer missing",
			setup:   func(f *paymentFixture) { f.ledger.RemoveAccount(f.payer) },
			amount:  "1",
			wantErr: solanapay.ErrAccountNotFound,
		},
		{
			name:    "recipient missing",
			setup:   func(f *paymentFixture) { f.ledger.RemoveAccount(f.recipient) },
			amount:  "1",
			wantErr: solanapay.ErrAccountNotFound,
		},
		{
			name: "recipient not a system account",
			setup: func(f *paymentFixture) {
				f.ledger.SetAccount(solanapay.AccountInfo{Address: f.recipient, Owner: solana.TokenProgramID, Lamports: 1})
			},
			amount:  "1",
			wantErr: solanapay.ErrInvalidAccount,
		},
		{
			name: "recipient executable",
			setup: func(f *paymentFixture) {
				f.ledger.SetAccount(solanapay.AccountInfo{Address: f.recipient, Owner: solana.SystemProgramID, Executable: true})
			},
			amount:  "1",
			wantErr: solanapay.ErrInvalidAccount,
		},
		{
			name:    "insufficient funds",
			setup:   func(f *paymentFixture) {},
			amount:  "10.000000001",
			wantErr: solanapay.ErrInsufficientFunds,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newPaymentFixture()
			tt.setup(f)
			intent := solanapay.PaymentIntent{Recipient: f.recipient}
			if tt.amount != "" {
				intent.Amount = amountPtr(tt.amount)
			}

			_, err := New(f.ledger).BuildPayment(context.Background(), f.payer, intent)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestBuildPayment_Token(t *testing.T) {
	f := newPaymentFixture()
	b := New(f.ledger)

	built, err := b.BuildPayment(context.Background(), f.payer, solanapay.PaymentIntent{
		Recipient:  f.recipient,
		Amount:     amountPtr("1.25"),
		SPLToken:   &f.mint,
		References: []solana.PublicKey{f.mint},
	})
	require.NoError(t, err)
	require.Len(t, built.Instructions, 1)

	ix := built.Instructions[0]
	assert.Equal(t, solana.TokenProgramID, ix.ProgramID())

	data, err := ix.Data()
	require.NoError(t, err)
	require.Len(t, data, 10)
	assert.Equal(t, token.Instruction_TransferChecked, data[0])
	assert.Equal(t, uint64(1_250_000), binary.LittleEndian.Uint64(data[1:9]))
	assert.Equal(t, uint8(6), data[9])

	source, _ := svm.HoldingAddress(f.payer, f.mint)
	dest, _ := svm.HoldingAddress(f.recipient, f.mint)
	accounts := ix.Accounts()
	require.Len(t, accounts, 5)
	assert.Equal(t, source, accounts[0].PublicKey)
	assert.Equal(t, f.mint, accounts[1].PublicKey)
	assert.Equal(t, dest, accounts[2].PublicKey)
	assert.Equal(t, f.payer, accounts[3].PublicKey)
	assert.True(t, accounts[3].IsSigner)
	assert.Equal(t, f.mint, accounts[4].PublicKey)
}

func TestBuildPayment_TokenErrors(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(f *paymentFixture)
		amount  string
		wantErr error
	}{
		{
			name:    "mint missing",
			setup:   func(f *paymentFixture) { f.ledger.RemoveAccount(f.mint) },
			amount:  "1",
			wantErr: solanapay.ErrAccountNotFound,
		},
		{
			name: "mint not initialized",
			setup: func(f *paymentFixture) {
				f.ledger.SetAccount(solanapay.AccountInfo{
					Address: f.mint, Owner: solana.TokenProgramID,
					Data: ledger.EncodeMint(6, 0, false, nil),
				})
			},
			amount:  "1",
			wantErr: solanapay.ErrInvalidAccount,
		},
		{
			name:    "scale exceeds mint decimals",
			setup:   func(f *paymentFixture) {},
			amount:  "0.0000001",
			wantErr: solanapay.ErrInvalidAmount,
		},
		{
			name: "payer holding missing",
			setup: func(f *paymentFixture) {
				ata, _ := svm.HoldingAddress(f.payer, f.mint)
				f.ledger.RemoveAccount(ata)
			},
			amount:  "1",
			wantErr: solanapay.ErrAccountNotFound,
		},
		{
			name:    "recipient holding frozen",
			setup:   func(f *paymentFixture) { f.ledger.SetHolding(f.recipient, f.mint, 0, token.Frozen) },
			amount:  "1",
			wantErr: solanapay.ErrInvalidAccount,
		},
		{
			name:    "recipient holding uninitialized",
			setup:   func(f *paymentFixture) { f.ledger.SetHolding(f.recipient, f.mint, 0, token.Uninitialized) },
			amount:  "1",
			wantErr: solanapay.ErrInvalidAccount,
		},
		{
			name:    "insufficient token balance",
			setup:   func(f *paymentFixture) {},
			amount:  "5.000001",
			wantErr: solanapay.ErrInsufficientFunds,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newPaymentFixture()
			tt.setup(f)

			_, err := New(f.ledger).BuildPayment(context.Background(), f.payer, solanapay.PaymentIntent{
				Recipient: f.recipient,
				Amount:    amountPtr(tt.amount),
				SPLToken:  &f.mint,
			})
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
