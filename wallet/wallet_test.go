package wallet_test

import (
	"context"
	"testing"
	"time"

	solana "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	solanapay "github.com/lmvdz/solana-pay"
	"github.com/lmvdz/solana-pay/mechanisms/candymachine"
	"github.com/lmvdz/solana-pay/payurl"
	svmsigner "github.com/lmvdz/solana-pay/signers/svm"
	"github.com/lmvdz/solana-pay/test/mocks/ledger"
	"github.com/lmvdz/solana-pay/wallet"
)

const sol = 1_000_000_000

type fixture struct {
	ledger *ledger.Ledger
	payer  solana.PrivateKey
	signer *svmsigner.ClientSigner
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{ledger: ledger.New(), payer: solana.NewWallet().PrivateKey}
	f.ledger.SetSystemAccount(f.payer.PublicKey(), 20*sol)

	signer, err := svmsigner.NewClientSignerFromKey(f.payer)
	require.NoError(t, err)
	f.signer = signer
	return f
}

func (f *fixture) payerWallet(opts ...wallet.Option) *wallet.Payer {
	opts = append([]wallet.Option{wallet.WithPollInterval(time.Millisecond)}, opts...)
	return wallet.New(f.ledger, f.ledger, f.signer, opts...)
}

func TestPay_Native(t *testing.T) {
	f := newFixture(t)
	recipient := solana.NewWallet().PublicKey()
	f.ledger.SetSystemAccount(recipient, sol)
	reference := solana.NewWallet().PublicKey()

	amount := decimal.RequireFromString("1.5")
	url := payurl.Encode(solanapay.PaymentIntent{
		Recipient:  recipient,
		Amount:     &amount,
		References: []solana.PublicKey{reference},
		Memo:       "order-42",
	})

	result, err := f.payerWallet().Pay(context.Background(), url)
	require.NoError(t, err)
	assert.Equal(t, payurl.KindPayment, result.Kind)
	assert.Nil(t, result.Cleanup)

	assert.Equal(t, uint64(sol+sol*3/2), f.ledger.Account(recipient).Lamports)
	sent := f.ledger.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, result.Signature, sent[0].Signatures[0])
	assert.Contains(t, sent[0].Message.AccountKeys, reference)
}

func TestPay_PriorityFee(t *testing.T) {
	f := newFixture(t)
	recipient := solana.NewWallet().PublicKey()
	f.ledger.SetSystemAccount(recipient, sol)

	amount := decimal.RequireFromString("0.1")
	_, err := f.payerWallet(wallet.WithPriorityFee(1000)).PayIntent(context.Background(), solanapay.PaymentIntent{
		Recipient: recipient,
		Amount:    &amount,
	})
	require.NoError(t, err)

	tx := f.ledger.Sent()[0]
	first := tx.Message.Instructions[0]
	assert.Equal(t, solana.ComputeBudget, tx.Message.AccountKeys[first.ProgramIDIndex])
}

func TestPay_Errors(t *testing.T) {
	f := newFixture(t)
	recipient := solana.NewWallet().PublicKey()
	f.ledger.SetSystemAccount(recipient, sol)
	p := f.payerWallet()

	_, err := p.Pay(context.Background(), "bitcoin:abc")
	assert.ErrorIs(t, err, solanapay.ErrMalformedURL)

	amount := decimal.RequireFromString("100")
	_, err = p.PayIntent(context.Background(), solanapay.PaymentIntent{Recipient: recipient, Amount: &amount})
	assert.ErrorIs(t, err, solanapay.ErrInsufficientFunds)
	assert.Empty(t, f.ledger.Sent())
}

func TestPay_ConfirmTimeout(t *testing.T) {
	f := newFixture(t)
	f.ledger.Confirmation = solanapay.CommitmentProcessed
	recipient := solana.NewWallet().PublicKey()
	f.ledger.SetSystemAccount(recipient, sol)

	amount := decimal.RequireFromString("1")
	p := f.payerWallet(
		wallet.WithCommitment(solanapay.CommitmentConfirmed),
		wallet.WithConfirmTimeout(20*time.Millisecond),
	)
	_, err := p.PayIntent(context.Background(), solanapay.PaymentIntent{Recipient: recipient, Amount: &amount})
	assert.ErrorIs(t, err, solanapay.ErrUnconfirmed)
	assert.True(t, solanapay.IsTransient(err))
}

// mintFixture stores a burn-gated candy machine and executes its mint
// instruction as a no-op success (or failure when failMint is set).
type mintFixture struct {
	*fixture
	machine  solana.PublicKey
	gateMint solana.PublicKey
	holding  solana.PublicKey
	failMint bool
}

func newMintFixture(t *testing.T) *mintFixture {
	t.Helper()
	f := &mintFixture{
		fixture:  newFixture(t),
		machine:  solana.NewWallet().PublicKey(),
		gateMint: solana.NewWallet().PublicKey(),
	}

	cm := &candymachine.CandyMachine{
		Authority: solana.NewWallet().PublicKey(),
		Wallet:    solana.NewWallet().PublicKey(),
		Data: candymachine.Data{
			UUID:           "drop01",
			Price:          sol / 10,
			Symbol:         "DROP",
			ItemsAvailable: 5,
			WhitelistMintSettings: &candymachine.WhitelistMintSettings{
				Mode: candymachine.WhitelistBurnEveryTime,
				Mint: f.gateMint,
			},
		},
	}
	data, err := candymachine.EncodeCandyMachine(cm)
	require.NoError(t, err)
	f.ledger.SetAccount(solanapay.AccountInfo{Address: f.machine, Owner: candymachine.ProgramID, Lamports: 1, Data: data})
	f.ledger.SetMint(f.gateMint, 0, 100)
	f.holding = f.ledger.SetHolding(f.payer.PublicKey(), f.gateMint, 1, token.Initialized)

	f.ledger.Execute = func(l *ledger.Ledger, tx *solana.Transaction) (*solanapay.TransactionMeta, error) {
		for _, key := range tx.Message.AccountKeys {
			if key.Equals(candymachine.ProgramID) {
				n := len(tx.Message.AccountKeys)
				meta := &solanapay.TransactionMeta{
					Fee:          ledger.FeePerSignature * uint64(tx.Message.Header.NumRequiredSignatures),
					PreBalances:  make([]uint64, n),
					PostBalances: make([]uint64, n),
				}
				if f.failMint {
					meta.Err = "custom program error: 0x1771"
				}
				return meta, nil
			}
		}
		return l.ExecuteTransaction(tx)
	}
	return f
}

func (f *mintFixture) url() string {
	return payurl.EncodeMint(solanapay.MintIntent{Recipient: f.payer.PublicKey(), Inventory: f.machine})
}

func TestPay_MintWithCleanup(t *testing.T) {
	f := newMintFixture(t)
	p := f.payerWallet(wallet.WithInventoryProgram(candymachine.New(f.ledger)))

	result, err := p.Pay(context.Background(), f.url())
	require.NoError(t, err)
	assert.Equal(t, payurl.KindMint, result.Kind)
	require.NotNil(t, result.Cleanup)

	sent := f.ledger.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, result.Signature, sent[0].Signatures[0])
	assert.Equal(t, *result.Cleanup, sent[1].Signatures[0])

	// The mint key and burn authority co-signed the primary transaction.
	assert.Equal(t, uint8(3), sent[0].Message.Header.NumRequiredSignatures)
	assert.Equal(t, uint8(1), sent[1].Message.Header.NumRequiredSignatures)
	assert.Contains(t, sent[1].Message.AccountKeys, f.holding)
}

func TestPay_MintFailureSkipsCleanup(t *testing.T) {
	f := newMintFixture(t)
	f.failMint = true
	p := f.payerWallet(wallet.WithInventoryProgram(candymachine.New(f.ledger)))

	_, err := p.Pay(context.Background(), f.url())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "0x1771")
	assert.Len(t, f.ledger.Sent(), 1)
}

func TestPay_MintRequiresInventoryProgram(t *testing.T) {
	f := newMintFixture(t)
	_, err := f.payerWallet().Pay(context.Background(), f.url())
	assert.Error(t, err)
	assert.Empty(t, f.ledger.Sent())
}
