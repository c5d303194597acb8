package market

import "fmt"

// WinningSide tags the outcome a finalized market settled on. Zero denotes a
// tie; ties pay out without a protocol fee.
type WinningSide uint8

const (
	SideTie WinningSide = 0
	SideA   WinningSide = 1
	SideB   WinningSide = 2
)

// Valid reports whether the side tag is within the supported range.
func (s WinningSide) Valid() bool {
	switch s {
	case SideTie, SideA, SideB:
		return true
	default:
		return false
	}
}

// Maximum byte lengths for the variable-length fields. The ledger requires a
// fixed allocation declared at record creation, so these bounds are enforced
// on every write, not just at initialization.
const (
	MaxTitleLen        = 64
	MaxDescriptionLen  = 512
	MaxSideLabelLen    = 32
	MaxCategoryLen     = 32
	MaxEncryptorLen    = 64
	MaxEncodedVoteLen  = 256
	MaxPurchaseRecords = 32
)

// AbsoluteTicketCap is the flat per-user floor: a buyer may always hold up to
// this many tickets regardless of pool size. Past 4x this value the dynamic
// 25%-of-pool limit takes over.
const AbsoluteTicketCap uint64 = 100

// TreasuryFeeBps is the protocol fee skimmed from winning claims, in basis
// points.
const TreasuryFeeBps uint64 = 500

// Worst-case RLP-encoded record sizes. Every uint64 encodes to at most nine
// bytes, a 20-byte address to 21, and strings and struct framing carry at
// most a three-byte header below 64 KiB. The persistence layer refuses to
// write a record whose encoding exceeds its reserved size, so any record
// that passes sanitization must fit within these bounds.
const (
	rlpWord   = 9  // uint64 with header
	rlpAddr   = 21 // 20-byte address with header
	rlpFlag   = 1  // bool or in-range enum
	rlpHeader = 3  // list or long-string framing below 64 KiB

	PurchaseRecordSize = rlpHeader + // record framing
		rlpHeader + MaxEncodedVoteLen + // encoded vote
		rlpWord + // ticket count
		rlpWord // purchase timestamp

	MarketMaxSize = rlpHeader + // record framing
		rlpAddr + // market key
		rlpHeader + MaxTitleLen +
		rlpHeader + MaxDescriptionLen +
		rlpHeader + MaxSideLabelLen +
		rlpHeader + MaxSideLabelLen +
		rlpHeader + MaxCategoryLen +
		rlpWord + // ticket price
		rlpWord + // duration
		rlpWord + // creation time
		rlpHeader + MaxEncryptorLen +
		rlpAddr + // treasury
		rlpAddr + // creator
		rlpAddr + // authority
		rlpWord + // total tickets
		rlpWord + // total amount
		rlpFlag + // finalized
		rlpFlag + // revealed
		rlpFlag + // winning side
		rlpWord + rlpWord + rlpWord + rlpWord // per-side breakdowns

	UserTicketsMaxSize = rlpHeader + // record framing
		rlpAddr + // market record address
		rlpAddr + // user
		rlpWord + // total tickets
		rlpWord + // total amount
		rlpHeader + MaxPurchaseRecords*PurchaseRecordSize + // history
		rlpFlag // claimed
)

// Market is one prediction question with two mutually exclusive outcomes and
// a fixed betting window. Metadata fields are immutable after creation; the
// accounting fields grow monotonically with purchases until finalization
// freezes the record.
type Market struct {
	Key          [20]byte
	Title        string
	Description  string
	SideA        string
	SideB        string
	Category     string
	TicketPrice  uint64
	Duration     uint64
	CreationTime uint64
	Encryptor    string
	Treasury     [20]byte
	Creator      [20]byte
	Authority    [20]byte
	TotalTickets uint64
	TotalAmount  uint64
	Finalized    bool
	Revealed     bool
	WinningSide  WinningSide
	TicketsSideA uint64
	TicketsSideB uint64
	AmountSideA  uint64
	AmountSideB  uint64
}

// Clone returns a copy of the market so callers can safely mutate it without
// affecting the stored instance.
func (m *Market) Clone() *Market {
	if m == nil {
		return nil
	}
	clone := *m
	return &clone
}

// PurchaseRecord captures one accepted ticket purchase. The encoded vote is
// opaque ballot material; the ledger never decodes or hashes it.
type PurchaseRecord struct {
	EncodedVote string
	TicketCount uint64
	PurchasedAt uint64
}

// UserTickets tracks one user's cumulative position in one market, with an
// append-only, bounded history of purchases.
type UserTickets struct {
	Market       [20]byte
	User         [20]byte
	TotalTickets uint64
	TotalAmount  uint64
	Purchases    []PurchaseRecord
	Claimed      bool
}

// Clone returns a deep copy of the ticket record.
func (u *UserTickets) Clone() *UserTickets {
	if u == nil {
		return nil
	}
	clone := *u
	clone.Purchases = append([]PurchaseRecord(nil), u.Purchases...)
	return &clone
}

// SanitizeMarket validates a market record against the declared field bounds
// and returns a clone. The function does not mutate the original value.
func SanitizeMarket(m *Market) (*Market, error) {
	if m == nil {
		return nil, fmt.Errorf("nil market")
	}
	if len(m.Title) > MaxTitleLen {
		return nil, ErrTitleTooLong
	}
	if len(m.Description) > MaxDescriptionLen {
		return nil, ErrDescriptionTooLong
	}
	if len(m.SideA) > MaxSideLabelLen || len(m.SideB) > MaxSideLabelLen {
		return nil, ErrSideLabelTooLong
	}
	if len(m.Category) > MaxCategoryLen {
		return nil, ErrCategoryTooLong
	}
	if len(m.Encryptor) > MaxEncryptorLen {
		return nil, ErrEncryptorTooLong
	}
	if m.TicketPrice == 0 {
		return nil, ErrInvalidTicketPrice
	}
	if m.Duration == 0 {
		return nil, ErrInvalidDuration
	}
	if !m.WinningSide.Valid() {
		return nil, ErrInvalidWinningSide
	}
	return m.Clone(), nil
}

// SanitizeUserTickets validates a ticket record against the purchase-history
// bound and the per-record vote length, returning a clone.
func SanitizeUserTickets(u *UserTickets) (*UserTickets, error) {
	if u == nil {
		return nil, fmt.Errorf("nil ticket record")
	}
	if len(u.Purchases) > MaxPurchaseRecords {
		return nil, ErrPurchaseHistoryFull
	}
	var sum uint64
	for _, p := range u.Purchases {
		if len(p.EncodedVote) > MaxEncodedVoteLen {
			return nil, ErrEncodedVoteTooLong
		}
		if p.TicketCount == 0 {
			return nil, ErrInvalidTicketCount
		}
		sum += p.TicketCount
	}
	if sum != u.TotalTickets {
		return nil, fmt.Errorf("ticket record total %d does not match purchase sum %d", u.TotalTickets, sum)
	}
	return u.Clone(), nil
}
