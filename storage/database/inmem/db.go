package inmemdb

import (
	"sync"
	"time"

	"github.com/nooracademy/noor/core/account"
)

type (
	DB struct {
		account      *accountTable
		refreshToken *refreshTokenTable
		pending      *pendingTable
	}

	accountTable struct {
		sync.RWMutex
		table map[string]*account.Account
	}

	refreshTokenTable struct {
		sync.RWMutex
		table map[string]*account.RefreshToken
	}

	pendingEntry struct {
		record    account.PendingRegistration
		expiresAt time.Time
	}

	pendingTable struct {
		sync.Mutex
		table map[string]*pendingEntry
	}
)

func Open() *DB {
	return &DB{
		account:      &accountTable{table: make(map[string]*account.Account)},
		refreshToken: &refreshTokenTable{table: make(map[string]*account.RefreshToken)},
		pending:      &pendingTable{table: make(map[string]*pendingEntry)},
	}
}
