package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/elonfeng/notepulse/pkg/source"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

func init() {
	sqlx.BindDriver("libsql", sqlx.QUESTION)
}

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// StorageError wraps any failure of the underlying database.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

// User is an application account.
type User struct {
	OwnerID        string    `db:"owner_id" json:"owner_id"`
	Email          string    `db:"email" json:"email"`
	CredentialHash string    `db:"credential_hash" json:"-"`
	PasswordHash   string    `db:"password_hash" json:"-"`
	IsApproved     bool      `db:"is_approved" json:"is_approved"`
	SkipBilling    bool      `db:"skip_billing" json:"skip_billing"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// Store is the persistence interface.
type Store interface {
	UpsertObservations(ctx context.Context, rows []source.Observation) error
	ListObservations(ctx context.Context, owner string) ([]source.Observation, error)
	CountObservations(ctx context.Context, owner string) (int, error)
	TitleIndex(ctx context.Context, owner string) (map[string]int64, error)
	ObservedDates(ctx context.Context, owner string) ([]string, error)
	DeleteOwner(ctx context.Context, owner string) error
	ExportOwner(ctx context.Context, owner string, w io.Writer) error

	CreateUser(ctx context.Context, u *User) error
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	SetApproved(ctx context.Context, owner string, approved bool) error
	ListUsers(ctx context.Context) ([]User, error)

	Close() error
}

// Dialect selects the SQL flavour of a backend.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// SQLStore implements Store on SQLite, libSQL or Postgres.
type SQLStore struct {
	db      *sqlx.DB
	dialect Dialect
}

// Open connects to dsn and runs migrations. postgres:// and postgresql://
// URLs use Postgres, libsql:// URLs use libSQL, anything else is a SQLite
// file path.
func Open(dsn string) (*SQLStore, error) {
	driver, conn, dialect := resolveDSN(dsn)

	db, err := sqlx.Open(driver, conn)
	if err != nil {
		return nil, storageErr("open "+driver, err)
	}
	if dialect == DialectSQLite && driver == "sqlite" {
		// One writer at a time keeps SQLite free of busy errors.
		db.SetMaxOpenConns(1)
	}

	schema := sqliteSchema
	if dialect == DialectPostgres {
		schema = postgresSchema
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, storageErr("run migrations", err)
		}
	}

	return &SQLStore{db: db, dialect: dialect}, nil
}

// New opens a SQLite database file.
func New(path string) (*SQLStore, error) {
	return Open(path)
}

func resolveDSN(dsn string) (driver, conn string, dialect Dialect) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return "pgx", dsn, DialectPostgres
	case strings.HasPrefix(dsn, "libsql://"):
		return "libsql", dsn, DialectSQLite
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return "sqlite", dsn + sep + "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", DialectSQLite
}

// Dialect reports which SQL flavour the store speaks.
func (s *SQLStore) Dialect() Dialect { return s.dialect }

func (s *SQLStore) Close() error {
	return s.db.Close()
}

const upsertObservation = `
	INSERT INTO article_stats (owner_id, observed_on, item_id, title, views, likes, comments)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (owner_id, observed_on, item_id) DO NOTHING`

// UpsertObservations inserts rows in one transaction, silently skipping any
// (owner, date, item) triple that is already stored.
func (s *SQLStore) UpsertObservations(ctx context.Context, rows []source.Observation) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return storageErr("begin upsert", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, tx.Rebind(upsertObservation))
	if err != nil {
		return storageErr("prepare upsert", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, r.OwnerID, r.ObservedOn, r.ItemID, r.Title, r.Views, r.Likes, r.Comments); err != nil {
			return storageErr(fmt.Sprintf("upsert %s/%s/%d", r.OwnerID, r.ObservedOn, r.ItemID), err)
		}
	}

	return storageErr("commit upsert", tx.Commit())
}

func (s *SQLStore) ListObservations(ctx context.Context, owner string) ([]source.Observation, error) {
	var rows []source.Observation
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`
		SELECT owner_id, observed_on, item_id, title, views, likes, comments
		FROM article_stats WHERE owner_id = ?
		ORDER BY observed_on`), owner)
	if err != nil {
		return nil, storageErr("list observations", err)
	}
	return rows, nil
}

func (s *SQLStore) CountObservations(ctx context.Context, owner string) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, s.db.Rebind("SELECT COUNT(*) FROM article_stats WHERE owner_id = ?"), owner)
	if err != nil {
		return 0, storageErr("count observations", err)
	}
	return n, nil
}

// TitleIndex maps each title the owner has stored to its item id. When a
// title appears under several ids the most recently observed one wins.
func (s *SQLStore) TitleIndex(ctx context.Context, owner string) (map[string]int64, error) {
	rows, err := s.db.QueryxContext(ctx, s.db.Rebind(`
		SELECT title, item_id FROM article_stats
		WHERE owner_id = ? ORDER BY observed_on DESC`), owner)
	if err != nil {
		return nil, storageErr("title index", err)
	}
	defer rows.Close()

	index := make(map[string]int64)
	for rows.Next() {
		var title string
		var id int64
		if err := rows.Scan(&title, &id); err != nil {
			return nil, storageErr("title index", err)
		}
		if _, seen := index[title]; !seen {
			index[title] = id
		}
	}
	return index, storageErr("title index", rows.Err())
}

func (s *SQLStore) ObservedDates(ctx context.Context, owner string) ([]string, error) {
	var dates []string
	err := s.db.SelectContext(ctx, &dates, s.db.Rebind(`
		SELECT DISTINCT observed_on FROM article_stats
		WHERE owner_id = ? ORDER BY observed_on`), owner)
	if err != nil {
		return nil, storageErr("observed dates", err)
	}
	return dates, nil
}

// DeleteOwner removes the owner's observations and account together.
func (s *SQLStore) DeleteOwner(ctx context.Context, owner string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return storageErr("begin delete owner", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM article_stats WHERE owner_id = ?"), owner); err != nil {
		return storageErr("delete observations", err)
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM app_users WHERE owner_id = ?"), owner); err != nil {
		return storageErr("delete account", err)
	}
	return storageErr("commit delete owner", tx.Commit())
}

func (s *SQLStore) CreateUser(ctx context.Context, u *User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO app_users (owner_id, email, credential_hash, password_hash, is_approved, skip_billing, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		u.OwnerID, u.Email, u.CredentialHash, u.PasswordHash, u.IsApproved, u.SkipBilling, u.CreatedAt)
	if err != nil {
		return storageErr("create user "+u.Email, err)
	}
	return nil
}

func (s *SQLStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	var u User
	err := s.db.GetContext(ctx, &u, s.db.Rebind(`
		SELECT owner_id, email, credential_hash, password_hash, is_approved, skip_billing, created_at
		FROM app_users WHERE email = ?`), email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storageErr("get user "+email, err)
	}
	return &u, nil
}

func (s *SQLStore) SetApproved(ctx context.Context, owner string, approved bool) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind("UPDATE app_users SET is_approved = ? WHERE owner_id = ?"), approved, owner)
	if err != nil {
		return storageErr("set approved "+owner, err)
	}
	return nil
}

func (s *SQLStore) ListUsers(ctx context.Context) ([]User, error) {
	var users []User
	err := s.db.SelectContext(ctx, &users, `
		SELECT owner_id, email, credential_hash, password_hash, is_approved, skip_billing, created_at
		FROM app_users ORDER BY created_at DESC`)
	if err != nil {
		return nil, storageErr("list users", err)
	}
	return users, nil
}
