package pg

import (
	"context"
	"database/sql"
	"errors"

	"fundsflow.org/internal/ledger"
	"fundsflow.org/internal/wallet"
)

const walletColumns = `id, name, account_number, provider, currency, balance, last_reconciliation, type`

func scanWallet(row scanner) (wallet.Wallet, error) {
	var w wallet.Wallet
	var typ string
	err := row.Scan(&w.ID, &w.Name, &w.AccountNumber, &w.Provider, &w.Balance.Currency, &w.Balance.Amount,
		&w.LastReconciliation, &typ)
	w.Type = wallet.Type(typ)
	return w, err
}

func (s *Store) ListWallets(ctx context.Context) ([]wallet.Wallet, error) {
	rows, err := s.db.QueryContext(ctx, `select `+walletColumns+` from wallets order by sort_key asc, id asc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []wallet.Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (s *Store) GetWallet(ctx context.Context, id string) (wallet.Wallet, error) {
	row := s.db.QueryRowContext(ctx, `select `+walletColumns+` from wallets where id=$1 or account_number=$1 limit 1`, id)
	w, err := scanWallet(row)
	if errors.Is(err, sql.ErrNoRows) {
		return wallet.Wallet{}, wallet.ErrNotFound
	}
	return w, err
}

func (s *Store) ListMovements(ctx context.Context, walletID string) ([]wallet.Movement, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, wallet_id, reference, at, description, counterparty, type, debit, credit, status
		from wallet_movements
		where wallet_id=$1
		order by at desc`, walletID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []wallet.Movement
	for rows.Next() {
		var m wallet.Movement
		var status string
		if err := rows.Scan(&m.ID, &m.WalletID, &m.Reference, &m.At, &m.Description, &m.Counterparty,
			&m.Type, &m.Debit, &m.Credit, &status); err != nil {
			return nil, err
		}
		m.Status = wallet.EntryStatus(status)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) ExternalBalances(ctx context.Context) (map[string]ledger.Money, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, currency, external_balance
		from wallets
		where external_balance is not null`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]ledger.Money)
	for rows.Next() {
		var id string
		var m ledger.Money
		if err := rows.Scan(&id, &m.Currency, &m.Amount); err != nil {
			return nil, err
		}
		out[id] = m
	}
	return out, rows.Err()
}

// PutWallets upserts wallets and their external balances in one
// transaction. external is keyed by wallet ID.
func (s *Store) PutWallets(ctx context.Context, ws []wallet.Wallet, external map[string]ledger.Money) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for i, w := range ws {
		var ext sql.NullInt64
		if m, ok := external[w.ID]; ok {
			ext = sql.NullInt64{Int64: m.Amount, Valid: true}
		}
		if _, err := tx.ExecContext(ctx, `
			insert into wallets(id, name, account_number, provider, currency, balance, external_balance,
				last_reconciliation, type, sort_key)
			values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
			on conflict (id) do update set
				name = excluded.name,
				account_number = excluded.account_number,
				provider = excluded.provider,
				currency = excluded.currency,
				balance = excluded.balance,
				external_balance = excluded.external_balance,
				last_reconciliation = excluded.last_reconciliation,
				type = excluded.type`,
			w.ID, w.Name, w.AccountNumber, w.Provider, w.Balance.Currency, w.Balance.Amount, ext,
			w.LastReconciliation, string(w.Type), i); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// AddMovements inserts movements, ignoring IDs already present.
func (s *Store) AddMovements(ctx context.Context, ms ...wallet.Movement) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, m := range ms {
		if _, err := tx.ExecContext(ctx, `
			insert into wallet_movements(id, wallet_id, reference, at, description, counterparty, type, debit, credit, status)
			values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
			on conflict (id) do nothing`,
			m.ID, m.WalletID, m.Reference, m.At, m.Description, m.Counterparty, m.Type, m.Debit, m.Credit,
			string(m.Status)); err != nil {
			return err
		}
	}
	return tx.Commit()
}
