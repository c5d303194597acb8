package market

import "errors"

// Every operation fails fast on the first violated precondition and surfaces
// one of these sentinels verbatim; the caller treats any error as
// operation-not-applied.
var (
	// Authorization
	ErrUnauthorized     = errors.New("market: caller is not the market authority")
	ErrUnauthorizedUser = errors.New("market: user does not match ticket record")
	ErrInvalidTreasury  = errors.New("market: protocol treasury mismatch")

	// Validation
	ErrTitleTooLong       = errors.New("market: title too long")
	ErrDescriptionTooLong = errors.New("market: description too long")
	ErrSideLabelTooLong   = errors.New("market: side label too long")
	ErrCategoryTooLong    = errors.New("market: category too long")
	ErrEncryptorTooLong   = errors.New("market: encryptor too long")
	ErrEncodedVoteTooLong = errors.New("market: encoded vote too long")
	ErrInvalidTicketPrice = errors.New("market: ticket price must be > 0")
	ErrInvalidDuration    = errors.New("market: duration must be > 0")
	ErrInvalidTicketCount = errors.New("market: ticket count must be > 0")
	ErrInvalidWinningSide = errors.New("market: invalid winning side")
	ErrInvalidClaimAmount = errors.New("market: claim amount must be > 0")

	// Lifecycle
	ErrMarketNotFound     = errors.New("market: not found")
	ErrMarketActive       = errors.New("market: cannot reinitialize an active market")
	ErrMarketClosed       = errors.New("market: closed for ticket purchases")
	ErrMarketFinalized    = errors.New("market: already finalized")
	ErrMarketNotEnded     = errors.New("market: has not ended yet")
	ErrMarketNotFinalized = errors.New("market: not finalized yet")
	ErrAlreadyClaimed     = errors.New("market: reward already claimed")
	ErrTicketsNotFound    = errors.New("market: ticket record not found")

	// Accounting
	ErrOverflow            = errors.New("market: arithmetic overflow")
	ErrInconsistentTotals  = errors.New("market: reported totals inconsistent with accumulated totals")
	ErrInsufficientFunds   = errors.New("market: insufficient balance")
	ErrInsufficientCustody = errors.New("market: custody balance would drop below retention floor")

	// Capacity
	ErrTicketCapExceeded   = errors.New("market: per-user ticket cap exceeded")
	ErrPurchaseHistoryFull = errors.New("market: purchase history full")

	// Address
	ErrCustodyMismatch = errors.New("market: custody address does not match derivation")
)
