package state

import (
	"errors"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"predictchain/core/types"
	"predictchain/storage"
)

// Manager provides the ledger's state surface: balance-bearing accounts plus
// the market records persisted by the native market module. Values are RLP
// encoded and stored under keccak-derived keys so record addresses never
// collide across prefixes.
type Manager struct {
	db storage.Database
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

var (
	accountPrefix = []byte("account:")
	marketPrefix  = []byte("market-record:")
	ticketsPrefix = []byte("ticket-record:")
)

func prefixedKey(prefix, suffix []byte) []byte {
	buf := make([]byte, len(prefix)+len(suffix))
	copy(buf, prefix)
	copy(buf[len(prefix):], suffix)
	return ethcrypto.Keccak256(buf)
}

func accountKey(addr []byte) []byte {
	return prefixedKey(accountPrefix, addr)
}

// GetAccount loads the account stored at the given address. Missing accounts
// resolve to a zero-balance account rather than an error.
func (m *Manager) GetAccount(addr []byte) (*types.Account, error) {
	data, err := m.db.Get(accountKey(addr))
	if errors.Is(err, storage.ErrNotFound) {
		return &types.Account{Balance: big.NewInt(0)}, nil
	}
	if err != nil {
		return nil, err
	}
	account := new(types.Account)
	if err := rlp.DecodeBytes(data, account); err != nil {
		return nil, err
	}
	if account.Balance == nil {
		account.Balance = big.NewInt(0)
	}
	return account, nil
}

// PutAccount persists the account at the given address.
func (m *Manager) PutAccount(addr []byte, account *types.Account) error {
	if account == nil {
		return errors.New("state: nil account")
	}
	stored := *account
	if stored.Balance == nil {
		stored.Balance = big.NewInt(0)
	}
	if stored.Balance.Sign() < 0 {
		return errors.New("state: negative account balance")
	}
	encoded, err := rlp.EncodeToBytes(&stored)
	if err != nil {
		return err
	}
	return m.db.Put(accountKey(addr), encoded)
}
