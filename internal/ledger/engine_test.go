package ledger

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var created = time.Date(2025, 11, 24, 9, 30, 0, 0, time.UTC)

func ugx(amount int64) Money { return Money{Currency: "UGX", Amount: amount} }

func record(typ TransactionType, status TransactionStatus, nominal, payerFee, payeeFee int64) TransactionRecord {
	return TransactionRecord{
		Reference:      "REF-TEST01",
		Type:           typ,
		Status:         status,
		NominalAmount:  ugx(nominal),
		PayerFee:       ugx(payerFee),
		PayeeFee:       ugx(payeeFee),
		PayerAccountID: "221000000001",
		PayeeAccountID: "251000000002",
		PaymentMethod:  "Mobile Money",
		CreatedAt:      created,
	}
}

func amounts(entries []JournalEntry) []int64 {
	out := make([]int64, len(entries))
	for i, e := range entries {
		out[i] = e.Amount.Amount
	}
	return out
}

func TestWithdrawalJournal(t *testing.T) {
	d, err := Derive(record(Withdrawal, StatusApproved, 5000, 10, 50))
	require.NoError(t, err)

	assert.Equal(t, ugx(5010), d.GrossAmount)
	assert.Equal(t, ugx(4950), d.NetAmount)
	require.Len(t, d.Journal, 3)

	assert.Equal(t, Debit, d.Journal[0].Direction)
	assert.Equal(t, "221000000001", d.Journal[0].Account)
	assert.Equal(t, Credit, d.Journal[1].Direction)
	assert.Equal(t, "251000000002", d.Journal[1].Account)
	assert.Equal(t, RoleInternalFeeAccount, d.Journal[2].AccountRole)
	assert.Equal(t, []int64{5010, 4950, 60}, amounts(d.Journal))
	assert.NoError(t, CheckBalanced(d.Journal))
}

func TestFundsInJournal(t *testing.T) {
	d, err := Derive(record(FundsIn, StatusApproved, 1000, 12, 10))
	require.NoError(t, err)

	assert.Equal(t, ugx(1012), d.GrossAmount)
	assert.Equal(t, ugx(990), d.NetAmount)
	require.Len(t, d.Journal, 5)
	assert.Equal(t, []int64{1012, 1000, 12, 990, 990}, amounts(d.Journal))

	roles := []AccountRole{RolePayerWallet, RoleIntermediateOVA, RoleProviderFeeAccount, RoleIntermediateOVA, RolePayeeWallet}
	dirs := []Direction{Debit, Credit, Credit, Debit, Credit}
	for i, e := range d.Journal {
		assert.Equal(t, roles[i], e.AccountRole, "entry %d", i+1)
		assert.Equal(t, dirs[i], e.Direction, "entry %d", i+1)
		assert.Equal(t, i+1, e.Sequence)
		assert.Equal(t, "COMPLETED", e.Status)
	}
	assert.NoError(t, CheckBalanced(d.Journal))

	// external legs carry no balance
	assert.Nil(t, d.Journal[0].OpeningBalance)
	assert.Nil(t, d.Journal[2].ClosingBalance)
	// OVA continues its running balance across both legs
	require.NotNil(t, d.Journal[1].ClosingBalance)
	assert.Equal(t, ugx(1000), *d.Journal[1].ClosingBalance)
	assert.Equal(t, ugx(1000), *d.Journal[3].OpeningBalance)
	assert.Equal(t, ugx(10), *d.Journal[3].ClosingBalance)
	assert.Equal(t, ugx(990), *d.Journal[4].ClosingBalance)
}

func TestPaymentWithPayeeFeeOnly(t *testing.T) {
	d, err := Derive(record(Payment, StatusApproved, 500000, 0, 5000))
	require.NoError(t, err)

	assert.Equal(t, ugx(500000), d.GrossAmount)
	assert.Equal(t, ugx(495000), d.NetAmount)
	assert.Equal(t, []int64{500000, 495000, 5000}, amounts(d.Journal))
	assert.Equal(t, ugx(0), d.Payer.Fee)
	assert.Equal(t, ugx(495000), d.Payee.Total)
}

func TestNoFeesOmitsFeeLeg(t *testing.T) {
	d, err := Derive(record(MerchantPayment, StatusApproved, 2000, 0, 0))
	require.NoError(t, err)
	assert.Len(t, d.Journal, 2)

	d, err = Derive(record(WalletTopUp, StatusApproved, 2000, 0, 0))
	require.NoError(t, err)
	assert.Len(t, d.Journal, 4)
	assert.NoError(t, CheckBalanced(d.Journal))
}

func TestOpeningBalancesFromSnapshot(t *testing.T) {
	eng := NewEngine(DefaultChart())
	rec := record(FundsIn, StatusApproved, 1000, 12, 10)
	snap := BalanceSnapshot{
		eng.Chart().OVA:    ugx(1_000_000),
		rec.PayeeAccountID: Money{Currency: "KES", Amount: 777},
	}
	d, err := eng.Derive(rec, snap)
	require.NoError(t, err)

	assert.Equal(t, ugx(1_000_000), *d.Journal[1].OpeningBalance)
	assert.Equal(t, ugx(1_000_010), *d.Journal[3].ClosingBalance)
	// foreign-currency snapshot is ignored
	assert.Equal(t, ugx(0), *d.Journal[4].OpeningBalance)
	assert.Equal(t, ugx(990), *d.Journal[4].ClosingBalance)
	assert.Equal(t, ugx(1_000_000), snap[eng.Chart().OVA], "snapshot must not be mutated")
}

func TestFailedTransactionsNeverCreditPayee(t *testing.T) {
	for _, typ := range TransactionTypes {
		for _, status := range []TransactionStatus{StatusFailed, StatusDeclined, StatusExpired} {
			rec := record(typ, status, 10000, 10, 50)
			d, err := Derive(rec)
			require.NoError(t, err, "%s/%s", typ, status)
			require.NoError(t, CheckBalanced(d.Journal), "%s/%s", typ, status)

			var payerNet int64
			for _, e := range d.Journal {
				assert.NotEqual(t, RolePayeeWallet, e.AccountRole, "%s/%s credits payee", typ, status)
				assert.NotEqual(t, LegFee, e.Leg)
				assert.Equal(t, string(status), e.Status)
				if e.Account == rec.PayerAccountID {
					if e.Direction == Debit {
						payerNet -= e.Amount.Amount
					} else {
						payerNet += e.Amount.Amount
					}
				}
			}
			assert.Zero(t, payerNet, "%s/%s leaves payer out of pocket", typ, status)
			assert.Equal(t, LegReversal, d.Journal[len(d.Journal)-1].Leg)
		}
	}
}

func TestFailedSimpleFlowRestoresPayerBalance(t *testing.T) {
	rec := record(Payment, StatusFailed, 10000, 10, 0)
	d, err := NewEngine(DefaultChart()).Derive(rec, BalanceSnapshot{rec.PayerAccountID: ugx(50000)})
	require.NoError(t, err)
	require.Len(t, d.Journal, 2)
	assert.Equal(t, ugx(39990), *d.Journal[0].ClosingBalance)
	assert.Equal(t, ugx(50000), *d.Journal[1].ClosingBalance)
}

func TestBalanceAndIdentityAcrossGrid(t *testing.T) {
	fees := [][2]int64{{0, 0}, {10, 0}, {0, 50}, {12, 10}, {250, 999}, {1, 1000}}
	for _, typ := range TransactionTypes {
		for _, status := range TransactionStatuses {
			for _, f := range fees {
				rec := record(typ, status, 1000, f[0], f[1])
				d, err := Derive(rec)
				require.NoError(t, err)

				assert.Equal(t, int64(1000+f[0]), d.GrossAmount.Amount)
				assert.Equal(t, int64(1000-f[1]), d.NetAmount.Amount)
				assert.NoError(t, CheckBalanced(d.Journal), "%s/%s fees=%v", typ, status, f)
				assert.GreaterOrEqual(t, len(d.Journal), 2)
				assert.LessOrEqual(t, len(d.Journal), 5)

				for _, m := range []Money{d.GrossAmount, d.NetAmount, d.Payer.Fee, d.Payee.Fee, d.Payer.FixedFee, d.Payee.Total} {
					assert.Equal(t, "UGX", m.Currency)
				}
				for _, e := range d.Journal {
					assert.Equal(t, "UGX", e.Amount.Currency)
					if e.OpeningBalance != nil {
						assert.Equal(t, "UGX", e.OpeningBalance.Currency)
					}
				}
			}
		}
	}
}

func TestCommissionsSplitFees(t *testing.T) {
	for _, typ := range TransactionTypes {
		for _, status := range TransactionStatuses {
			d, err := Derive(record(typ, status, 5000, 120, 80))
			require.NoError(t, err)
			c := d.Commissions
			assert.True(t, c.Client.IsZero(), "%s/%s client earned %v", typ, status, c.Client)
			if !status.settled() {
				assert.Zero(t, c.Total(), "%s/%s earned on an unsettled transaction", typ, status)
				continue
			}
			assert.Equal(t, int64(200), c.Total(), "%s/%s", typ, status)
		}
	}

	d, err := Derive(record(FundsIn, StatusApproved, 5000, 120, 80))
	require.NoError(t, err)
	assert.Equal(t, ugx(120), d.Commissions.Partner)
	assert.Equal(t, ugx(80), d.Commissions.Platform)

	d, err = Derive(record(Withdrawal, StatusApproved, 5000, 120, 80))
	require.NoError(t, err)
	assert.Equal(t, ugx(0), d.Commissions.Partner)
	assert.Equal(t, ugx(200), d.Commissions.Platform)
}

func TestDeriveIsDeterministic(t *testing.T) {
	rec := record(FundsOut, StatusPending, 150000, 10, 25)
	a, err := Derive(rec)
	require.NoError(t, err)
	b, err := Derive(rec)
	require.NoError(t, err)

	ja, err := json.Marshal(a)
	require.NoError(t, err)
	jb, err := json.Marshal(b)
	require.NoError(t, err)
	assert.Equal(t, string(ja), string(jb))
	assert.Equal(t, "REF-TEST01-L1", a.Journal[0].ID)
	assert.Equal(t, created, a.Journal[0].Timestamp)
	assert.Equal(t, "PENDING", a.Journal[0].Status)
}

func TestRejectsInvalidInput(t *testing.T) {
	cases := map[string]TransactionRecord{
		"payee fee above nominal": record(Payment, StatusApproved, 500, 0, 501),
		"negative payer fee":      record(Payment, StatusApproved, 500, -1, 0),
		"zero nominal":            record(Payment, StatusApproved, 0, 0, 0),
		"gross overflow":          record(Withdrawal, StatusApproved, math.MaxInt64, 10, 0),
		"missing currency": func() TransactionRecord {
			r := record(Payment, StatusApproved, 500, 0, 0)
			r.NominalAmount.Currency = ""
			r.PayerFee, r.PayeeFee = Money{}, Money{}
			return r
		}(),
		"fee currency mismatch": func() TransactionRecord {
			r := record(Payment, StatusApproved, 500, 0, 0)
			r.PayeeFee = Money{Currency: "KES", Amount: 5}
			return r
		}(),
	}
	for name, rec := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Derive(rec)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidFee), "got %v", err)
			var fe *InvalidFeeError
			assert.True(t, errors.As(err, &fe))
		})
	}
}

func TestUnknownTypeRejected(t *testing.T) {
	rec := record(ParseTransactionType("Bill Payment"), StatusApproved, 500, 0, 0)
	_, err := Derive(rec)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownTransactionType)
	assert.NotErrorIs(t, err, ErrInvalidFee)
}

func TestZeroFeesMayBeLeftEmpty(t *testing.T) {
	rec := record(Withdrawal, StatusApproved, 700, 0, 0)
	rec.PayerFee, rec.PayeeFee = Money{}, Money{}
	d, err := Derive(rec)
	require.NoError(t, err)
	assert.Equal(t, ugx(0), d.Payer.Fee)
	assert.Equal(t, ugx(700), d.NetAmount)
}

func TestPayeeFeeEqualToNominal(t *testing.T) {
	d, err := Derive(record(FundsIn, StatusApproved, 500, 0, 500))
	require.NoError(t, err)
	assert.Equal(t, ugx(0), d.NetAmount)
	for _, e := range d.Journal {
		assert.NotEqual(t, RolePayeeWallet, e.AccountRole)
	}
	assert.NoError(t, CheckBalanced(d.Journal))
}

func TestParseHelpers(t *testing.T) {
	assert.Equal(t, WalletTopUp, ParseTransactionType("wallet top up"))
	st, err := ParseTransactionStatus("Declined")
	require.NoError(t, err)
	assert.Equal(t, StatusDeclined, st)
	_, err = ParseTransactionStatus("settled")
	assert.Error(t, err)
	assert.Equal(t, "COMPLETED", StatusApproved.Label())
}

func TestMoneyArithmetic(t *testing.T) {
	sum, err := ugx(5).Add(ugx(7))
	require.NoError(t, err)
	assert.Equal(t, ugx(12), sum)

	_, err = ugx(5).Sub(Money{Currency: "KES", Amount: 1})
	assert.ErrorIs(t, err, ErrCurrencyMismatch)
}
