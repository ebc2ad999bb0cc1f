package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/congo-pay/walletledger/internal/money"
)

const uniqueViolation = "23505"

const walletColumns = `id::text, owner_id::text, currency, balance::text, created_at`

const identityColumns = `id::text, username, email, name, created_at`

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type pgTxKey struct{}

// PostgresStore persists wallets, identities and ledger records in
// PostgreSQL. Amounts travel as decimal strings cast to NUMERIC.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a Postgres-backed store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) q(ctx context.Context) querier {
	if tx, ok := ctx.Value(pgTxKey{}).(pgx.Tx); ok {
		return tx
	}
	return s.db
}

// RunAtomic executes fn inside a database transaction. The transaction is
// committed when fn returns nil and rolled back otherwise.
func (s *PostgresStore) RunAtomic(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(pgTxKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}
	return pgx.BeginTxFunc(ctx, s.db, pgx.TxOptions{}, func(tx pgx.Tx) error {
		return fn(context.WithValue(ctx, pgTxKey{}, tx))
	})
}

// GetWallet fetches a wallet by identifier.
func (s *PostgresStore) GetWallet(ctx context.Context, id string) (Wallet, error) {
	walletID, err := uuid.Parse(id)
	if err != nil {
		return Wallet{}, fmt.Errorf("wallet %s: %w", id, ErrNotFound)
	}
	row := s.q(ctx).QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE id = $1`, walletID)
	return scanWallet(row, id)
}

// GetOwnedWallet fetches a wallet only if ownerID owns it.
func (s *PostgresStore) GetOwnedWallet(ctx context.Context, id, ownerID string) (Wallet, error) {
	walletID, err := uuid.Parse(id)
	if err != nil {
		return Wallet{}, fmt.Errorf("wallet %s: %w", id, ErrNotFound)
	}
	owner, err := uuid.Parse(ownerID)
	if err != nil {
		return Wallet{}, fmt.Errorf("wallet %s: %w", id, ErrNotFound)
	}
	row := s.q(ctx).QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE id = $1 AND owner_id = $2`, walletID, owner)
	return scanWallet(row, id)
}

// WalletsByOwner lists an owner's wallets by creation time.
func (s *PostgresStore) WalletsByOwner(ctx context.Context, ownerID string, order SortOrder) ([]Wallet, error) {
	owner, err := uuid.Parse(ownerID)
	if err != nil {
		return []Wallet{}, nil
	}
	return s.walletsOf(ctx, owner, order)
}

func (s *PostgresStore) walletsOf(ctx context.Context, owner uuid.UUID, order SortOrder) ([]Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE owner_id = $1 ORDER BY created_at DESC, id DESC`
	if order == OldestFirst {
		query = `SELECT ` + walletColumns + ` FROM wallets WHERE owner_id = $1 ORDER BY created_at ASC, id ASC`
	}
	rows, err := s.q(ctx).Query(ctx, query, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	wallets := make([]Wallet, 0)
	for rows.Next() {
		w, err := scanWallet(rows, "")
		if err != nil {
			return nil, err
		}
		wallets = append(wallets, w)
	}
	return wallets, rows.Err()
}

// FindIdentityByHandle resolves a username case-insensitively together with
// its wallets, oldest first.
func (s *PostgresStore) FindIdentityByHandle(ctx context.Context, handle string) (Identity, []Wallet, error) {
	handle = strings.TrimSpace(handle)
	row := s.q(ctx).QueryRow(ctx, `SELECT `+identityColumns+` FROM identities WHERE lower(username) = lower($1)`, handle)
	identity, err := scanIdentity(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Identity{}, nil, fmt.Errorf("identity %q: %w", handle, ErrNotFound)
		}
		return Identity{}, nil, err
	}
	wallets, err := s.walletsOf(ctx, uuid.MustParse(identity.ID), OldestFirst)
	if err != nil {
		return Identity{}, nil, err
	}
	return identity, wallets, nil
}

// AtomicDebit decrements the balance in one conditional UPDATE. Concurrent
// debits of the same row serialize on the row lock and the predicate is
// re-checked against the committed balance.
func (s *PostgresStore) AtomicDebit(ctx context.Context, walletID, ownerID string, amount money.Amount) (bool, error) {
	id, err := uuid.Parse(walletID)
	if err != nil {
		return false, nil
	}
	owner, err := uuid.Parse(ownerID)
	if err != nil {
		return false, nil
	}
	tag, err := s.q(ctx).Exec(ctx, `UPDATE wallets SET balance = balance - $3::numeric
        WHERE id = $1 AND owner_id = $2 AND balance >= $3::numeric`, id, owner, amount.String())
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// CreditWallet increments a balance unconditionally and returns the row.
func (s *PostgresStore) CreditWallet(ctx context.Context, walletID string, amount money.Amount) (Wallet, error) {
	id, err := uuid.Parse(walletID)
	if err != nil {
		return Wallet{}, fmt.Errorf("wallet %s: %w", walletID, ErrNotFound)
	}
	row := s.q(ctx).QueryRow(ctx, `UPDATE wallets SET balance = balance + $2::numeric
        WHERE id = $1 RETURNING `+walletColumns, id, amount.String())
	return scanWallet(row, walletID)
}

// InsertTransaction appends a ledger record.
func (s *PostgresStore) InsertTransaction(ctx context.Context, tx Transaction) (Transaction, error) {
	id, err := uuid.Parse(tx.ID)
	if err != nil {
		return Transaction{}, fmt.Errorf("transaction id %q: %w", tx.ID, err)
	}
	to, err := uuid.Parse(tx.ToWalletID)
	if err != nil {
		return Transaction{}, fmt.Errorf("wallet %s: %w", tx.ToWalletID, ErrNotFound)
	}
	var from any
	if tx.FromWalletID != "" {
		fromID, err := uuid.Parse(tx.FromWalletID)
		if err != nil {
			return Transaction{}, fmt.Errorf("wallet %s: %w", tx.FromWalletID, ErrNotFound)
		}
		from = fromID
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}

	_, err = s.q(ctx).Exec(ctx, `INSERT INTO transactions (id, type, amount, currency, from_wallet_id, to_wallet_id, created_at)
        VALUES ($1, $2, $3::numeric, $4, $5, $6, $7)`,
		id, string(tx.Type), tx.Amount.String(), tx.Currency, from, to, tx.CreatedAt.UTC())
	if err != nil {
		return Transaction{}, err
	}
	return tx, nil
}

// QueryTransactions returns records newest first.
func (s *PostgresStore) QueryTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error) {
	query := `SELECT id::text, type, amount::text, currency, COALESCE(from_wallet_id::text, ''), to_wallet_id::text, created_at
        FROM transactions`
	args := []any{}
	if filter.WalletID != "" {
		walletID, err := uuid.Parse(filter.WalletID)
		if err != nil {
			return []Transaction{}, nil
		}
		args = append(args, walletID)
		query += ` WHERE from_wallet_id = $1 OR to_wallet_id = $1`
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := s.q(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	txs := make([]Transaction, 0)
	for rows.Next() {
		var (
			tx     Transaction
			kind   string
			amount string
		)
		if err := rows.Scan(&tx.ID, &kind, &amount, &tx.Currency, &tx.FromWalletID, &tx.ToWalletID, &tx.CreatedAt); err != nil {
			return nil, err
		}
		tx.Type = TransactionType(kind)
		if tx.Amount, err = money.Parse(amount); err != nil {
			return nil, err
		}
		tx.CreatedAt = tx.CreatedAt.UTC()
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

// CreateIdentity inserts an identity; duplicate usernames or emails map to ErrConflict.
func (s *PostgresStore) CreateIdentity(ctx context.Context, identity Identity) (Identity, error) {
	id, err := uuid.Parse(identity.ID)
	if err != nil {
		return Identity{}, err
	}
	if identity.CreatedAt.IsZero() {
		identity.CreatedAt = time.Now().UTC()
	}
	_, err = s.q(ctx).Exec(ctx, `INSERT INTO identities (id, username, email, name, created_at)
        VALUES ($1, $2, $3, $4, $5)`, id, identity.Username, identity.Email, identity.Name, identity.CreatedAt.UTC())
	if err != nil {
		return Identity{}, mapUniqueViolation(err, identity.Username)
	}
	return identity, nil
}

// CreateWallet inserts a wallet for an existing identity.
func (s *PostgresStore) CreateWallet(ctx context.Context, w Wallet) (Wallet, error) {
	id, err := uuid.Parse(w.ID)
	if err != nil {
		return Wallet{}, err
	}
	owner, err := uuid.Parse(w.OwnerID)
	if err != nil {
		return Wallet{}, fmt.Errorf("owner %s: %w", w.OwnerID, ErrNotFound)
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now().UTC()
	}
	_, err = s.q(ctx).Exec(ctx, `INSERT INTO wallets (id, owner_id, currency, balance, created_at)
        VALUES ($1, $2, $3, $4::numeric, $5)`, id, owner, w.Currency, w.Balance.String(), w.CreatedAt.UTC())
	if err != nil {
		return Wallet{}, mapUniqueViolation(err, w.ID)
	}
	return w, nil
}

// FindIdentityByID fetches an identity by identifier.
func (s *PostgresStore) FindIdentityByID(ctx context.Context, id string) (Identity, error) {
	identityID, err := uuid.Parse(id)
	if err != nil {
		return Identity{}, fmt.Errorf("identity %s: %w", id, ErrNotFound)
	}
	identity, err := scanIdentity(s.q(ctx).QueryRow(ctx, `SELECT `+identityColumns+` FROM identities WHERE id = $1`, identityID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Identity{}, fmt.Errorf("identity %s: %w", id, ErrNotFound)
		}
		return Identity{}, err
	}
	return identity, nil
}

// RankUserTransactions orders the user's records by signed amount, computed
// in SQL so LIMIT applies after ranking.
func (s *PostgresStore) RankUserTransactions(ctx context.Context, q UserTransactionQuery) ([]OwnedTransaction, error) {
	userID, err := uuid.Parse(q.UserID)
	if err != nil {
		return []OwnedTransaction{}, nil
	}
	query := `
        SELECT t.id::text, t.type, t.amount::text, t.currency,
               COALESCE(t.from_wallet_id::text, ''), t.to_wallet_id::text, t.created_at,
               fi.id::text, fi.username, fi.email, fi.name,
               ti.id::text, ti.username, ti.email, ti.name
        FROM transactions t
        LEFT JOIN wallets fw ON fw.id = t.from_wallet_id
        LEFT JOIN identities fi ON fi.id = fw.owner_id
        LEFT JOIN wallets tw ON tw.id = t.to_wallet_id
        LEFT JOIN identities ti ON ti.id = tw.owner_id
        WHERE (fw.owner_id = $1 OR tw.owner_id = $1)
          AND ($2::timestamptz IS NULL OR t.created_at >= $2::timestamptz)
          AND ($3::timestamptz IS NULL OR t.created_at <= $3::timestamptz)
        ORDER BY CASE WHEN fw.owner_id = $1 THEN -t.amount ELSE t.amount END DESC, t.created_at DESC
        LIMIT $4`
	rows, err := s.q(ctx).Query(ctx, query, userID, timeBound(q.Range.Start), timeBound(q.Range.End), q.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]OwnedTransaction, 0)
	for rows.Next() {
		var (
			t                                     OwnedTransaction
			kind, amount                          string
			fromID, fromUser, fromEmail, fromName *string
			toID, toUser, toEmail, toName         *string
		)
		if err := rows.Scan(&t.ID, &kind, &amount, &t.Currency, &t.FromWalletID, &t.ToWalletID, &t.CreatedAt,
			&fromID, &fromUser, &fromEmail, &fromName,
			&toID, &toUser, &toEmail, &toName); err != nil {
			return nil, err
		}
		t.Type = TransactionType(kind)
		if t.Amount, err = money.Parse(amount); err != nil {
			return nil, err
		}
		t.CreatedAt = t.CreatedAt.UTC()
		t.FromOwner = joinedIdentity(fromID, fromUser, fromEmail, fromName)
		t.ToOwner = joinedIdentity(toID, toUser, toEmail, toName)
		out = append(out, t)
	}
	return out, rows.Err()
}

// OutboundVolumeByWallet sums TRANSFER amounts per source wallet, largest first.
func (s *PostgresStore) OutboundVolumeByWallet(ctx context.Context, rng DateRange, limit int) ([]WalletVolume, error) {
	rows, err := s.q(ctx).Query(ctx, `
        SELECT from_wallet_id::text, SUM(amount)::text
        FROM transactions
        WHERE type = 'TRANSFER' AND from_wallet_id IS NOT NULL
          AND ($1::timestamptz IS NULL OR created_at >= $1::timestamptz)
          AND ($2::timestamptz IS NULL OR created_at <= $2::timestamptz)
        GROUP BY from_wallet_id
        ORDER BY SUM(amount) DESC, from_wallet_id
        LIMIT $3`, timeBound(rng.Start), timeBound(rng.End), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]WalletVolume, 0)
	for rows.Next() {
		var (
			v     WalletVolume
			total string
		)
		if err := rows.Scan(&v.WalletID, &total); err != nil {
			return nil, err
		}
		if v.Total, err = money.Parse(total); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// WalletOwners resolves wallets to their owning identities in one query.
func (s *PostgresStore) WalletOwners(ctx context.Context, walletIDs []string) (map[string]Identity, error) {
	ids := make([]uuid.UUID, 0, len(walletIDs))
	for _, raw := range walletIDs {
		if id, err := uuid.Parse(raw); err == nil {
			ids = append(ids, id)
		}
	}
	out := make(map[string]Identity, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := s.q(ctx).Query(ctx, `
        SELECT w.id::text, i.id::text, i.username, i.email, i.name, i.created_at
        FROM wallets w
        INNER JOIN identities i ON i.id = w.owner_id
        WHERE w.id = ANY($1::uuid[])`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			walletID string
			identity Identity
		)
		if err := rows.Scan(&walletID, &identity.ID, &identity.Username, &identity.Email, &identity.Name, &identity.CreatedAt); err != nil {
			return nil, err
		}
		identity.CreatedAt = identity.CreatedAt.UTC()
		out[walletID] = identity
	}
	return out, rows.Err()
}

func scanWallet(row pgx.Row, id string) (Wallet, error) {
	var (
		w       Wallet
		balance string
	)
	if err := row.Scan(&w.ID, &w.OwnerID, &w.Currency, &balance, &w.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Wallet{}, fmt.Errorf("wallet %s: %w", id, ErrNotFound)
		}
		return Wallet{}, err
	}
	parsed, err := money.Parse(balance)
	if err != nil {
		return Wallet{}, err
	}
	w.Balance = parsed
	w.CreatedAt = w.CreatedAt.UTC()
	return w, nil
}

func scanIdentity(row pgx.Row) (Identity, error) {
	var identity Identity
	if err := row.Scan(&identity.ID, &identity.Username, &identity.Email, &identity.Name, &identity.CreatedAt); err != nil {
		return Identity{}, err
	}
	identity.CreatedAt = identity.CreatedAt.UTC()
	return identity, nil
}

func joinedIdentity(id, username, email, name *string) *Identity {
	if id == nil {
		return nil
	}
	identity := &Identity{ID: *id}
	if username != nil {
		identity.Username = *username
	}
	if email != nil {
		identity.Email = *email
	}
	if name != nil {
		identity.Name = *name
	}
	return identity
}

func timeBound(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

func mapUniqueViolation(err error, subject string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %w", subject, ErrConflict)
	}
	return err
}
