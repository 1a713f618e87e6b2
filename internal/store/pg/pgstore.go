package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"fundsflow.org/internal/ledger"
	"fundsflow.org/internal/wallet"
)

// Store is the Postgres read model for transactions and wallets.
type Store struct {
	db *sql.DB
}

var (
	_ ledger.TransactionRepository = (*Store)(nil)
	_ ledger.BalanceSource         = (*Store)(nil)
	_ wallet.Repository            = (*Store)(nil)
)

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// New wraps an existing handle.
func New(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

const txColumns = `sequence, reference, type, status, currency, nominal_amount, payer_fee, payee_fee,
	payer_account_id, payee_account_id, payment_method, created_at,
	message, remark, location, pos_id, serial_number, school`

type scanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row scanner) (ledger.TransactionRecord, error) {
	var (
		rec                         ledger.TransactionRecord
		typ, status, currency       string
		nominal, payerFee, payeeFee int64
	)
	err := row.Scan(&rec.Sequence, &rec.Reference, &typ, &status, &currency, &nominal, &payerFee, &payeeFee,
		&rec.PayerAccountID, &rec.PayeeAccountID, &rec.PaymentMethod, &rec.CreatedAt,
		&rec.Message, &rec.Remark, &rec.Location, &rec.POSID, &rec.SerialNumber, &rec.School)
	if err != nil {
		return ledger.TransactionRecord{}, err
	}
	rec.Type = ledger.ParseTransactionType(typ)
	st, err := ledger.ParseTransactionStatus(status)
	if err != nil {
		return ledger.TransactionRecord{}, fmt.Errorf("transaction %s: %w", rec.Reference, err)
	}
	rec.Status = st
	rec.NominalAmount = ledger.Money{Currency: currency, Amount: nominal}
	rec.PayerFee = ledger.Money{Currency: currency, Amount: payerFee}
	rec.PayeeFee = ledger.Money{Currency: currency, Amount: payeeFee}
	rec.CreatedAt = rec.CreatedAt.UTC()
	return rec, nil
}

func (s *Store) GetTransaction(ctx context.Context, reference string) (ledger.TransactionRecord, error) {
	row := s.db.QueryRowContext(ctx, `select `+txColumns+` from transactions where reference=$1`, reference)
	rec, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.TransactionRecord{}, ledger.ErrNotFound
	}
	return rec, err
}

func (s *Store) ListTransactions(ctx context.Context, limit int, afterSeq uint64) ([]ledger.TransactionRecord, uint64, error) {
	limit = ledger.PageSize(limit)
	rows, err := s.db.QueryContext(ctx, `select `+txColumns+`
		from transactions
		where sequence > $1
		order by sequence asc
		limit $2`, afterSeq, limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var res []ledger.TransactionRecord
	var last uint64
	for rows.Next() {
		rec, err := scanTransaction(rows)
		if err != nil {
			return nil, 0, err
		}
		res = append(res, rec)
		last = rec.Sequence
	}
	return res, last, rows.Err()
}

// Add inserts records, skipping references that already exist, and returns
// the inserted ones with their sequence numbers.
func (s *Store) Add(ctx context.Context, recs ...ledger.TransactionRecord) ([]ledger.TransactionRecord, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var added []ledger.TransactionRecord
	for _, rec := range recs {
		if rec.Reference == "" {
			return nil, ledger.ErrMissingReference
		}
		var seq uint64
		err := tx.QueryRowContext(ctx, `
			insert into transactions(reference, type, status, currency, nominal_amount, payer_fee, payee_fee,
				payer_account_id, payee_account_id, payment_method, created_at,
				message, remark, location, pos_id, serial_number, school)
			values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
			on conflict (reference) do nothing
			returning sequence`,
			rec.Reference, string(rec.Type), string(rec.Status), rec.NominalAmount.Currency,
			rec.NominalAmount.Amount, rec.PayerFee.Amount, rec.PayeeFee.Amount,
			rec.PayerAccountID, rec.PayeeAccountID, rec.PaymentMethod, rec.CreatedAt,
			rec.Message, rec.Remark, rec.Location, rec.POSID, rec.SerialNumber, rec.School,
		).Scan(&seq)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("insert %s: %w", rec.Reference, err)
		}
		rec.Sequence = seq
		added = append(added, rec)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return added, nil
}

// OpeningBalances reads wallet balances by account number.
func (s *Store) OpeningBalances(ctx context.Context, accounts ...string) (ledger.BalanceSnapshot, error) {
	snap := make(ledger.BalanceSnapshot, len(accounts))
	if len(accounts) == 0 {
		return snap, nil
	}
	placeholders := make([]string, len(accounts))
	args := make([]any, len(accounts))
	for i, a := range accounts {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = a
	}
	rows, err := s.db.QueryContext(ctx, `
		select account_number, currency, balance
		from wallets
		where account_number in (`+strings.Join(placeholders, ",")+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var acc string
		var m ledger.Money
		if err := rows.Scan(&acc, &m.Currency, &m.Amount); err != nil {
			return nil, err
		}
		snap[acc] = m
	}
	return snap, rows.Err()
}
