// Package storage persists the video catalog, subjects, experiments and
// the per-video scores of each session in sqlite.
package storage

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadyFinalized = errors.New("experiment already finalized")
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

type Store struct {
	db              *sql.DB
	requireApproval bool
	log             logrus.FieldLogger
}

type Option func(*Store)

// RequireApproval makes VideoIsKnownAndApproved accept only videos whose
// status is "approved". Without it any video that is not rejected passes.
func RequireApproval(on bool) Option {
	return func(s *Store) { s.requireApproval = on }
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Store) { s.log = l }
}

// Open opens the database at path. The schema is not touched; call
// MigrateUp before use.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// sqlite has one writer; a single connection also keeps :memory: alive.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	s := &Store{db: db, log: logrus.StandardLogger()}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }
