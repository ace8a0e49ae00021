// Package sqlite keeps device parameters and note ledger in SQLite database.
// Notes table is append-only.
package sqlite

import (
	"database/sql"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/AlexTransit/kiosk/internal/store"
	"github.com/google/uuid"
	"github.com/juju/errors"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

const FileName = "kiosk.db"

const (
	noteKindPayment = "payment"
	noteKindChange  = "change"
)

type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ store.Store = &Store{}

// Open creates or opens database file under root directory.
func Open(root string) (*Store, error) {
	return New(filepath.Join(root, FileName))
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, errors.Annotatef(err, "open database=%s", dbPath)
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, errors.Annotatef(err, "migrate database=%s", dbPath)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS device_params (
		device TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (device, key)
	);

	CREATE TABLE IF NOT EXISTS notes (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		ref TEXT NOT NULL,
		type TEXT NOT NULL,
		nominal TEXT NOT NULL,
		currency_id INTEGER NOT NULL,
		serial TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_notes_kind_ref ON notes(kind, ref);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) GetDeviceParam(device, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var value string
	err := s.db.QueryRow(`SELECT value FROM device_params WHERE device = ? AND key = ?`, device, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Annotatef(err, "get device=%s key=%s", device, key)
	}
	return value, true, nil
}

func (s *Store) SetDeviceParam(device, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`
		INSERT INTO device_params (device, key, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(device, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		device, key, value, time.Now().UTC().Format(time.RFC3339Nano))
	return errors.Annotatef(err, "set device=%s key=%s", device, key)
}

func (s *Store) AddPaymentNote(paymentID int64, notes []store.Note) error {
	return s.addNotes(noteKindPayment, formatPaymentRef(paymentID), notes)
}

func (s *Store) AddChangeNote(ref string, notes []store.Note) error {
	return s.addNotes(noteKindChange, ref, notes)
}

func (s *Store) PaymentNotes(paymentID int64) ([]store.Note, error) {
	return s.notes(noteKindPayment, formatPaymentRef(paymentID))
}

func (s *Store) ChangeNotes(ref string) ([]store.Note, error) {
	return s.notes(noteKindChange, ref)
}

func formatPaymentRef(id int64) string { return strconv.FormatInt(id, 10) }

func (s *Store) addNotes(kind, ref string, notes []store.Note) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.Begin()
	if err != nil {
		return errors.Annotate(err, "begin")
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, n := range notes {
		_, err = tx.Exec(`
			INSERT INTO notes (id, kind, ref, type, nominal, currency_id, serial, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			uuid.NewString(), kind, ref, string(n.Type), n.Nominal.String(), n.CurrencyID, n.Serial, now)
		if err != nil {
			return errors.Annotatef(err, "add %s note ref=%s", kind, ref)
		}
	}
	return errors.Annotate(tx.Commit(), "commit")
}

func (s *Store) notes(kind, ref string) ([]store.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.Query(`
		SELECT type, nominal, currency_id, serial FROM notes
		WHERE kind = ? AND ref = ? ORDER BY rowid`, kind, ref)
	if err != nil {
		return nil, errors.Annotatef(err, "query %s notes ref=%s", kind, ref)
	}
	defer rows.Close()

	var result []store.Note
	for rows.Next() {
		var n store.Note
		var typ, nominal string
		if err := rows.Scan(&typ, &nominal, &n.CurrencyID, &n.Serial); err != nil {
			return nil, errors.Annotate(err, "scan note")
		}
		n.Type = store.NoteType(typ)
		if n.Nominal, err = decimal.NewFromString(nominal); err != nil {
			return nil, errors.Annotatef(err, "note nominal=%q", nominal)
		}
		result = append(result, n)
	}
	return result, rows.Err()
}
