package types

import "math/big"

// Account is the ledger's balance-bearing record. Market custody
// sub-accounts are plain accounts at derived addresses with no owning key;
// control over them is established by recomputing the derivation, never by a
// stored credential.
type Account struct {
	Nonce   uint64   `json:"nonce"`
	Balance *big.Int `json:"balance"`
}
