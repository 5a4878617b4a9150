// Copyright (c) 2025 listcompare contributors.
// Licensed under the GNU Affero General Public License v3.0.

// Package store implements the Encrypted Store: bootstrap of an
// encrypted relational database (SQLCipher via
// github.com/mutecomm/go-sqlcipher/v4), idempotent schema migrations,
// and detection/recovery of a corrupt or unkeyed database file.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mutecomm/go-sqlcipher/v4"

	"github.com/weixin07/listcompare/internal/apperr"
	"github.com/weixin07/listcompare/internal/secretmaterial"
	"github.com/weixin07/listcompare/internal/vault"
)

// plaintextMagic is the header every unencrypted SQLite file begins with.
const plaintextMagic = "SQLite format 3\x00"

const (
	cipherPageSize      = 4096
	cipherKDFIterations = 64000
	cipherHMACAlgorithm = "HMAC_SHA512"
	cipherKDFAlgorithm  = "PBKDF2_HMAC_SHA512"
	dbKeyAccount        = "sqlcipher-db-key"
)

// Store wraps a single *sql.DB whose pool is capped at one open
// connection. WithConn and WithTx hold the Store mutex for the duration
// of one statement or transaction; statements issued through DB() do not
// take that mutex.
type Store struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

// Bootstrap is the outcome of a successful bootstrap call.
type Bootstrap struct {
	Store        *Store
	KeyLifecycle vault.Lifecycle
	Recovered    bool
}

// Open wraps an already-migrated connection; used internally and by
// tests that want to inspect a Store without going through Bootstrap.
func Open(db *sql.DB, path string) *Store {
	return &Store{db: db, path: path}
}

// DB exposes the underlying *sql.DB for packages that need to compose
// ad-hoc queries. Statements run through it bypass the Store mutex; the
// projects, comparison, places and ingest packages all query through it,
// so their statements are serialized only by the one-connection pool.
func (s *Store) DB() *sql.DB { return s.db }

// WithConn serializes fn behind the store mutex. Use for a single
// statement or a read-only sequence of statements.
func (s *Store) WithConn(fn func(*sql.DB) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.db)
}

// WithTx runs fn inside a transaction, serialized behind the store
// mutex, committing on success and rolling back on error or panic.
func (s *Store) WithTx(fn func(*sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return apperr.Database(err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return apperr.Database(err)
	}
	return nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Bootstrap ensures dir exists, acquires the database key from v, opens
// (creating if needed) an encrypted SQLite database at dir/filename,
// applies cipher parameters and migrations, then verifies encryption is
// actually in force. On a recoverable failure class it deletes the file
// and its WAL/SHM companions, rotates the key if it had been Retrieved,
// and retries exactly once.
func Bootstrap(dir, filename string, v *vault.Vault) (*Bootstrap, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, apperr.Path("failed to create application data directory", err)
	}

	material, lifecycle, err := v.Ensure(dbKeyAccount)
	if err != nil {
		return nil, err
	}

	path := filepath.Join(dir, filename)
	st, err := establish(path, material)
	if err == nil {
		return &Bootstrap{Store: st, KeyLifecycle: lifecycle, Recovered: false}, nil
	}

	if !shouldAttemptRecovery(err, path) {
		return nil, err
	}

	if rmErr := removeDatabaseFiles(path); rmErr != nil {
		return nil, apperr.IO(rmErr)
	}

	if lifecycle == vault.Retrieved {
		material, lifecycle, err = v.Rotate(dbKeyAccount)
		if err != nil {
			return nil, err
		}
	}

	st, err = establish(path, material)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRecoveryFailed, err)
	}
	return &Bootstrap{Store: st, KeyLifecycle: lifecycle, Recovered: true}, nil
}

// establish opens the encrypted database, applies cipher pragmas, runs
// migrations, and verifies the resulting file is not a plaintext SQLite
// file.
func establish(path string, key *secretmaterial.Material) (*Store, error) {
	dsn := buildDSN(path, string(key.Reveal()))
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, apperr.Database(err)
	}
	db.SetMaxOpenConns(1) // SQLCipher connections are not safely sharable across goroutines

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, apperr.Database(err)
	}

	if _, err := db.Exec(`PRAGMA cipher_memory_security = ON`); err != nil {
		// Not every SQLCipher build supports this pragma; a failure here
		// is not fatal. The error is discarded and no warning is recorded.
		_ = err
	}

	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		db.Close()
		return nil, apperr.Database(err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode = WAL`); err != nil {
		db.Close()
		return nil, apperr.Database(err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, apperr.Database(err)
	}

	if err := assertEncrypted(path); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, path: path}, nil
}

// buildDSN constructs the go-sqlcipher/v4 DSN, encoding cipher
// parameters as query pragmas per the driver's "_pragma_*" convention.
func buildDSN(path, key string) string {
	return fmt.Sprintf(
		"%s?_pragma_key=%s&_pragma_cipher_page_size=%d&_pragma_kdf_iter=%d&_pragma_cipher_hmac_algorithm=%s&_pragma_cipher_kdf_algorithm=%s",
		path, key, cipherPageSize, cipherKDFIterations, cipherHMACAlgorithm, cipherKDFAlgorithm,
	)
}

// assertEncrypted reads the first 16 bytes of path and fails if they
// equal the plaintext SQLite magic header.
func assertEncrypted(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return apperr.IO(err)
	}
	defer f.Close()

	header := make([]byte, len(plaintextMagic))
	n, err := f.Read(header)
	if err != nil && n == 0 {
		// An empty/zero-byte file has no header to compare; treat as encrypted
		// (nothing plaintext to detect).
		return nil
	}
	if n == len(plaintextMagic) && string(header) == plaintextMagic {
		return apperr.New(apperr.KindConfig, "database header is plaintext, encryption is not in force", ErrPlaintextHeader)
	}
	return nil
}

// shouldAttemptRecovery classifies err into the recoverable class:
// NotADatabase/IO failures, or a message mentioning "encrypted" or
// "database disk image is malformed" — and only when the file exists.
func shouldAttemptRecovery(err error, path string) bool {
	if _, statErr := os.Stat(path); statErr != nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "not a database") ||
		strings.Contains(msg, "encrypted") ||
		strings.Contains(msg, "database disk image is malformed") {
		return true
	}
	var pathErr *os.PathError
	return errors.As(err, &pathErr)
}

func removeDatabaseFiles(path string) error {
	for _, suffix := range []string{"", "-wal", "-shm"} {
		if err := os.Remove(path + suffix); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
