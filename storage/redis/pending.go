package redisstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/nooracademy/noor/core/account"
)

// pendingStore stores one JSON record per email; Redis expires it after the retention window.
type pendingStore struct {
	client redis.UniversalClient
	prefix string
}

var _ account.PendingStore = (*pendingStore)(nil) // interface compliance check

func NewPendingStore(client redis.UniversalClient, prefix string) *pendingStore {
	return &pendingStore{client: client, prefix: prefix}
}

func (s *pendingStore) key(email string) string {
	return key(s.prefix, "pending", email)
}

func (s *pendingStore) CreatePending(ctx context.Context, pr account.PendingRegistration, retention time.Duration) error {
	data, err := json.Marshal(pr)
	if err != nil {
		return errors.Wrap(err, "encoding pending registration")
	}
	ok, err := s.client.SetNX(ctx, s.key(pr.Email), data, retention).Result()
	if err != nil {
		return wrapErr(err, "storing pending registration")
	}
	if !ok {
		return account.ErrVerificationPending
	}
	return nil
}

func (s *pendingStore) GetPending(ctx context.Context, email string) (account.PendingRegistration, error) {
	data, err := s.client.Get(ctx, s.key(email)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return account.PendingRegistration{}, account.ErrNoPendingRegistration
		}
		return account.PendingRegistration{}, wrapErr(err, "reading pending registration")
	}

	var pr account.PendingRegistration
	if err = json.Unmarshal(data, &pr); err != nil {
		return account.PendingRegistration{}, errors.Wrap(err, "decoding pending registration")
	}
	return pr, nil
}

func (s *pendingStore) UpdatePending(ctx context.Context, pr account.PendingRegistration) error {
	data, err := json.Marshal(pr)
	if err != nil {
		return errors.Wrap(err, "encoding pending registration")
	}
	err = s.client.SetArgs(ctx, s.key(pr.Email), data, redis.SetArgs{Mode: "XX", KeepTTL: true}).Err()
	if err != nil {
		if err == redis.Nil {
			return account.ErrNoPendingRegistration
		}
		return wrapErr(err, "storing pending registration")
	}
	return nil
}

func (s *pendingStore) DeletePending(ctx context.Context, email string) error {
	if err := s.client.Del(ctx, s.key(email)).Err(); err != nil {
		return wrapErr(err, "deleting pending registration")
	}
	return nil
}
