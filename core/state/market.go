package state

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"predictchain/native/market"
	"predictchain/storage"
)

func marketKey(addr [20]byte) []byte {
	return prefixedKey(marketPrefix, addr[:])
}

func ticketsKey(addr [20]byte) []byte {
	return prefixedKey(ticketsPrefix, addr[:])
}

// MarketPut validates and persists a market record at its derived address.
// The encoded record must fit the fixed allocation declared for markets.
func (m *Manager) MarketPut(mk *market.Market) error {
	sanitized, err := market.SanitizeMarket(mk)
	if err != nil {
		return err
	}
	encoded, err := rlp.EncodeToBytes(sanitized)
	if err != nil {
		return err
	}
	if len(encoded) > market.MarketMaxSize {
		return fmt.Errorf("state: market record %d bytes exceeds reserved %d", len(encoded), market.MarketMaxSize)
	}
	return m.db.Put(marketKey(market.MarketAddress(sanitized.Key)), encoded)
}

// MarketGet loads the market record stored at the given derived address.
func (m *Manager) MarketGet(addr [20]byte) (*market.Market, bool) {
	data, err := m.db.Get(marketKey(addr))
	if errors.Is(err, storage.ErrNotFound) || err != nil {
		return nil, false
	}
	record := new(market.Market)
	if err := rlp.DecodeBytes(data, record); err != nil {
		return nil, false
	}
	return record, true
}

// UserTicketsPut validates and persists a per-user ticket record at its
// derived address.
func (m *Manager) UserTicketsPut(u *market.UserTickets) error {
	sanitized, err := market.SanitizeUserTickets(u)
	if err != nil {
		return err
	}
	encoded, err := rlp.EncodeToBytes(sanitized)
	if err != nil {
		return err
	}
	if len(encoded) > market.UserTicketsMaxSize {
		return fmt.Errorf("state: ticket record %d bytes exceeds reserved %d", len(encoded), market.UserTicketsMaxSize)
	}
	addr := market.TicketRecordAddress(sanitized.Market, sanitized.User)
	return m.db.Put(ticketsKey(addr), encoded)
}

// UserTicketsGet loads the ticket record stored at the given derived address.
func (m *Manager) UserTicketsGet(addr [20]byte) (*market.UserTickets, bool) {
	data, err := m.db.Get(ticketsKey(addr))
	if errors.Is(err, storage.ErrNotFound) || err != nil {
		return nil, false
	}
	record := new(market.UserTickets)
	if err := rlp.DecodeBytes(data, record); err != nil {
		return nil, false
	}
	return record, true
}
