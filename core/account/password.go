package account

import (
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
)

type BcryptHasher struct {
	Cost int
}

var _ PasswordHasher = (*BcryptHasher)(nil) // interface compliance check

func NewBcryptHasher(cost ...int) *BcryptHasher {
	c := bcrypt.DefaultCost
	if len(cost) > 0 {
		c = cost[0]
	}
	return &BcryptHasher{Cost: c}
}

func (h BcryptHasher) Hash(pwd string) ([]byte, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), h.Cost)
	if err != nil {
		return nil, errors.Wrap(err, "hashing password")
	}
	return hash, nil
}

func (h BcryptHasher) Compare(hash []byte, pwd string) error {
	return bcrypt.CompareHashAndPassword(hash, []byte(pwd))
}
