package market

import ethcrypto "github.com/ethereum/go-ethereum/crypto"

// Storage addresses are pure functions of a domain tag and the market key.
// Whoever can recompute the correct derivation inputs may authorize a
// transfer out of the custody address; no signing key exists for it. Every
// operation recomputes these addresses instead of trusting caller input.
const (
	marketSeed  = "market_data"
	custodySeed = "treasury_account"
	ticketsSeed = "user_tickets"
)

func derive(seed string, parts ...[]byte) [20]byte {
	buf := []byte(seed)
	for _, p := range parts {
		buf = append(buf, p...)
	}
	hash := ethcrypto.Keccak256(buf)
	var addr [20]byte
	copy(addr[:], hash[12:])
	return addr
}

// MarketAddress returns the storage address of the market record for the
// given market key.
func MarketAddress(key [20]byte) [20]byte {
	return derive(marketSeed, key[:])
}

// CustodyAddress returns the address of the fund-holding sub-account for the
// given market key.
func CustodyAddress(key [20]byte) [20]byte {
	return derive(custodySeed, key[:])
}

// TicketRecordAddress returns the storage address of the per-user ticket
// record, derived from the market record address and the user address.
func TicketRecordAddress(marketAddr, user [20]byte) [20]byte {
	return derive(ticketsSeed, marketAddr[:], user[:])
}
