package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"fundsflow.org/internal/fixtures"
	"fundsflow.org/internal/ledger"
	"fundsflow.org/internal/obs"
)

// smoke-ledger derives a batch of generated transactions and checks the
// journal invariants on every one of them.
func main() {
	var (
		n    = flag.Int("n", 1000, "number of transactions to derive")
		seed = flag.Int64("seed", time.Now().UnixNano(), "generator seed")
	)
	flag.Parse()
	log := obs.Logger()

	engine := ledger.NewEngine(ledger.DefaultChart())
	gen := fixtures.New(*seed, time.Now().UTC())

	failures := 0
	for _, rec := range gen.Transactions(*n) {
		if err := check(engine, rec); err != nil {
			failures++
			log.Error().Err(err).Str("reference", rec.Reference).
				Str("type", string(rec.Type)).Str("status", string(rec.Status)).
				Msg("smoke_check_failed")
		}
	}
	if failures > 0 {
		log.Error().Int("failures", failures).Int("checked", *n).Int64("seed", *seed).Msg("ledger smoke test failed")
		os.Exit(1)
	}
	fmt.Printf("ledger smoke test passed: %d transactions, seed %d\n", *n, *seed)
}

func check(engine ledger.Engine, rec ledger.TransactionRecord) error {
	d, err := engine.Derive(rec, nil)
	if err != nil {
		return fmt.Errorf("derive: %w", err)
	}
	if err := ledger.CheckBalanced(d.Journal); err != nil {
		return err
	}
	if d.GrossAmount.Amount != rec.NominalAmount.Amount+rec.PayerFee.Amount {
		return fmt.Errorf("gross %d != nominal %d + payer fee %d", d.GrossAmount.Amount, rec.NominalAmount.Amount, rec.PayerFee.Amount)
	}
	if d.NetAmount.Amount != rec.NominalAmount.Amount-rec.PayeeFee.Amount {
		return fmt.Errorf("net %d != nominal %d - payee fee %d", d.NetAmount.Amount, rec.NominalAmount.Amount, rec.PayeeFee.Amount)
	}
	for _, e := range d.Journal {
		if e.Amount.Currency != rec.NominalAmount.Currency {
			return fmt.Errorf("entry %s in %s, transaction in %s", e.ID, e.Amount.Currency, rec.NominalAmount.Currency)
		}
		if !e.Amount.IsPositive() {
			return fmt.Errorf("entry %s has non-positive amount %d", e.ID, e.Amount.Amount)
		}
		if e.AccountRole == ledger.RolePayeeWallet && e.Direction == ledger.Credit && !settled(rec.Status) {
			return fmt.Errorf("%s transaction credits the payee", rec.Status)
		}
	}
	fees := rec.PayerFee.Amount + rec.PayeeFee.Amount
	if !settled(rec.Status) {
		fees = 0
	}
	if got := d.Commissions.Total(); got != fees {
		return fmt.Errorf("commissions %d != fees %d", got, fees)
	}
	again, err := engine.Derive(rec, nil)
	if err != nil || len(again.Journal) != len(d.Journal) {
		return fmt.Errorf("derivation is not repeatable")
	}
	return nil
}

func settled(s ledger.TransactionStatus) bool {
	switch s {
	case ledger.StatusFailed, ledger.StatusDeclined, ledger.StatusExpired:
		return false
	}
	return true
}
