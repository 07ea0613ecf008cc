// Package store implements the relational persistence layer for Resources,
// Endpoints (Roadms), and Connections. All access runs through an explicit,
// per-call Session value: callers open one, do their work, and close it on
// every exit path. A Session wraps one *sql.Tx and is single-use; reopening
// it is an error.
package store

import (
	"context"
	"database/sql"

	"github.com/opennaas/roadm-am/internal/domainerr"
)

// Store is the entry point for all persistence operations. It holds the
// raw *sql.DB handle; individual operations always run inside a Session.
type Store struct {
	db *sql.DB
}

// New creates a Store backed by db. db should already have foreign keys
// enabled and the schema migrated (see internal/platform).
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Session is a single-use, single-threaded unit of atomicity: a composite
// Store operation runs all of its reads and writes inside one Session so a
// caller's failure rolls back everything together.
type Session struct {
	tx     *sql.Tx
	opened bool
}

// NewSession allocates an unopened Session. Call Open before using it.
func (s *Store) NewSession() *Session {
	return &Session{}
}

// Open acquires a transaction for this session. Calling Open twice on the
// same Session is an error.
func (sess *Session) Open(ctx context.Context, s *Store) error {
	if sess.opened || sess.tx != nil {
		return domainerr.ONS("opening session", errAlreadyOpen)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domainerr.ONS("opening session", err)
	}
	sess.tx = tx
	sess.opened = true
	return nil
}

// Close releases the session on any exit path. If Commit was not already
// called, the transaction is rolled back. Close is safe to call multiple
// times and safe to defer immediately after Open.
func (sess *Session) Close() error {
	if !sess.opened {
		return nil
	}
	err := sess.tx.Rollback()
	sess.opened = false
	if err != nil && err != sql.ErrTxDone {
		return domainerr.ONS("closing session", err)
	}
	return nil
}

// Commit finalizes the session's writes. After Commit, a deferred Close is
// a no-op.
func (sess *Session) Commit() error {
	if !sess.opened {
		return domainerr.ONS("committing session", errNotOpen)
	}
	err := sess.tx.Commit()
	sess.opened = false
	if err != nil {
		return domainerr.ONS("committing session", err)
	}
	return nil
}

var (
	errAlreadyOpen = sessionError("session already open")
	errNotOpen     = sessionError("session not open")
)

type sessionError string

func (e sessionError) Error() string { return string(e) }

// OpenSession is a convenience helper: it allocates and opens a Session in
// one call.
func (s *Store) OpenSession(ctx context.Context) (*Session, error) {
	sess := s.NewSession()
	if err := sess.Open(ctx, s); err != nil {
		return nil, err
	}
	return sess, nil
}
