package inmemdb

import (
	"context"
	"time"

	"github.com/nooracademy/noor/core/account"
)

var NowFunc = time.Now // mockable

// pendingStore keeps pending registrations in memory; expired entries are dropped when read.
type pendingStore struct {
	db *pendingTable
}

var _ account.PendingStore = (*pendingStore)(nil) // interface compliance check

func NewPendingStore(db *DB) *pendingStore {
	return &pendingStore{db: db.pending}
}

// get must be called with the lock held.
func (s *pendingStore) get(email string) (*pendingEntry, bool) {
	entry, ok := s.db.table[email]
	if !ok {
		return nil, false
	}
	if !NowFunc().Before(entry.expiresAt) {
		delete(s.db.table, email)
		return nil, false
	}
	return entry, true
}

func (s *pendingStore) CreatePending(_ context.Context, pr account.PendingRegistration, retention time.Duration) error {
	s.db.Lock()
	defer s.db.Unlock()

	if _, ok := s.get(pr.Email); ok {
		return account.ErrVerificationPending
	}
	s.db.table[pr.Email] = &pendingEntry{record: pr, expiresAt: NowFunc().Add(retention)}
	return nil
}

func (s *pendingStore) GetPending(_ context.Context, email string) (account.PendingRegistration, error) {
	s.db.Lock()
	defer s.db.Unlock()

	if entry, ok := s.get(email); ok {
		return entry.record, nil
	}
	return account.PendingRegistration{}, account.ErrNoPendingRegistration
}

func (s *pendingStore) UpdatePending(_ context.Context, pr account.PendingRegistration) error {
	s.db.Lock()
	defer s.db.Unlock()

	entry, ok := s.get(pr.Email)
	if !ok {
		return account.ErrNoPendingRegistration
	}
	entry.record = pr
	return nil
}

func (s *pendingStore) DeletePending(_ context.Context, email string) error {
	s.db.Lock()
	defer s.db.Unlock()
	delete(s.db.table, email)
	return nil
}
