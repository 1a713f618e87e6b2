package ledger

import "fmt"

type journalTemplate func(j *journal, gross, net Money)

// templates maps every journaled transaction type to its flow. A type
// missing here fails with UnknownTransactionTypeError.
var templates = map[TransactionType]journalTemplate{
	Withdrawal:           simpleFlow,
	Payment:              simpleFlow,
	MerchantPayment:      simpleFlow,
	PreFunded:            simpleFlow,
	DeactivationTransfer: simpleFlow,
	FundsIn:              collectFlow,
	WalletTopUp:          collectFlow,
	FundsOut:             collectFlow,
}

// simpleFlow moves value wallet to wallet. Fees on both sides land in the
// internal fee account so that gross = net + fees.
func simpleFlow(j *journal, gross, net Money) {
	rec := j.rec
	j.post(rec.PayerAccountID, RolePayerWallet, LegTransfer, Debit, gross, true)
	if !rec.Status.settled() {
		j.post(rec.PayerAccountID, RolePayerWallet, LegReversal, Credit, gross, true)
		return
	}
	j.post(rec.PayeeAccountID, RolePayeeWallet, LegTransfer, Credit, net, true)
	fees := Money{Currency: gross.Currency, Amount: gross.Amount - net.Amount}
	j.post(j.chart.FeeAccount, RoleInternalFeeAccount, LegFee, Credit, fees, true)
}

// collectFlow collects from an external payer into the OVA, pays the
// provider its fee and disburses net to the payee. The payee-side fee
// stays in the OVA.
func collectFlow(j *journal, gross, net Money) {
	rec := j.rec
	ova := j.chart.OVA
	j.post(rec.PayerAccountID, RolePayerWallet, LegCollection, Debit, gross, false)
	if !rec.Status.settled() {
		j.post(ova, RoleIntermediateOVA, LegCollection, Credit, gross, true)
		j.post(ova, RoleIntermediateOVA, LegReversal, Debit, gross, true)
		j.post(rec.PayerAccountID, RolePayerWallet, LegReversal, Credit, gross, false)
		return
	}
	j.post(ova, RoleIntermediateOVA, LegCollection, Credit, rec.NominalAmount, true)
	j.post(j.chart.ProviderFeeAccount, RoleProviderFeeAccount, LegFee, Credit, rec.PayerFee, false)
	j.post(ova, RoleIntermediateOVA, LegDisbursement, Debit, net, true)
	j.post(rec.PayeeAccountID, RolePayeeWallet, LegDisbursement, Credit, net, true)
}

type journal struct {
	rec      TransactionRecord
	chart    Chart
	status   string
	balances BalanceSnapshot
	running  map[string]Money
	entries  []JournalEntry
}

// post appends one entry. Zero amounts are skipped; they move nothing and
// would only clutter the journal. Tracked accounts carry a running balance
// that continues across entries touching the same account.
func (j *journal) post(account string, role AccountRole, leg Leg, dir Direction, amt Money, tracked bool) {
	if amt.IsZero() {
		return
	}
	seq := len(j.entries) + 1
	e := JournalEntry{
		ID:          fmt.Sprintf("%s-L%d", j.rec.Reference, seq),
		Sequence:    seq,
		Account:     account,
		AccountRole: role,
		Leg:         leg,
		Direction:   dir,
		Amount:      amt,
		Status:      j.status,
		Timestamp:   j.rec.CreatedAt,
	}
	if tracked {
		open, ok := j.running[account]
		if !ok {
			open = j.balances.Opening(account, amt.Currency)
		}
		closing := open
		if dir == Credit {
			closing.Amount += amt.Amount
		} else {
			closing.Amount -= amt.Amount
		}
		j.running[account] = closing
		e.OpeningBalance = &open
		e.ClosingBalance = &closing
	}
	j.entries = append(j.entries, e)
}
