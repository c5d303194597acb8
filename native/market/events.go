package market

import (
	"encoding/hex"
	"strconv"

	"predictchain/core/types"
)

const (
	EventTypeMarketCreated    = "market.created"
	EventTypeTicketsPurchased = "market.tickets_purchased"
	EventTypeMarketFinalized  = "market.finalized"
	EventTypeRewardClaimed    = "market.reward_claimed"
)

// NewCreatedEvent returns the canonical event payload for a newly initialized
// market.
func NewCreatedEvent(m *Market) *types.Event {
	attrs := baseAttributes(m)
	if m != nil {
		attrs["creator"] = hex.EncodeToString(m.Creator[:])
		attrs["ticketPrice"] = strconv.FormatUint(m.TicketPrice, 10)
		attrs["duration"] = strconv.FormatUint(m.Duration, 10)
		attrs["category"] = m.Category
	}
	return &types.Event{Type: EventTypeMarketCreated, Attributes: attrs}
}

// NewPurchaseEvent returns the canonical event payload emitted when a ticket
// purchase is accepted.
func NewPurchaseEvent(m *Market, u *UserTickets, count, totalPrice uint64) *types.Event {
	attrs := baseAttributes(m)
	if u != nil {
		attrs["user"] = hex.EncodeToString(u.User[:])
		attrs["userTickets"] = strconv.FormatUint(u.TotalTickets, 10)
	}
	attrs["count"] = strconv.FormatUint(count, 10)
	attrs["amount"] = strconv.FormatUint(totalPrice, 10)
	return &types.Event{Type: EventTypeTicketsPurchased, Attributes: attrs}
}

// NewFinalizedEvent returns the canonical event payload for the one-way
// finalization transition.
func NewFinalizedEvent(m *Market) *types.Event {
	attrs := baseAttributes(m)
	if m != nil {
		attrs["winningSide"] = strconv.FormatUint(uint64(m.WinningSide), 10)
		attrs["ticketsSideA"] = strconv.FormatUint(m.TicketsSideA, 10)
		attrs["ticketsSideB"] = strconv.FormatUint(m.TicketsSideB, 10)
		attrs["amountSideA"] = strconv.FormatUint(m.AmountSideA, 10)
		attrs["amountSideB"] = strconv.FormatUint(m.AmountSideB, 10)
	}
	return &types.Event{Type: EventTypeMarketFinalized, Attributes: attrs}
}

// NewClaimEvent returns the canonical event payload for a settled reward
// claim.
func NewClaimEvent(m *Market, u *UserTickets, userAmount, fee uint64) *types.Event {
	attrs := baseAttributes(m)
	if u != nil {
		attrs["user"] = hex.EncodeToString(u.User[:])
	}
	attrs["userAmount"] = strconv.FormatUint(userAmount, 10)
	attrs["fee"] = strconv.FormatUint(fee, 10)
	return &types.Event{Type: EventTypeRewardClaimed, Attributes: attrs}
}

func baseAttributes(m *Market) map[string]string {
	attrs := make(map[string]string)
	if m == nil {
		return attrs
	}
	attrs["marketKey"] = hex.EncodeToString(m.Key[:])
	attrs["totalTickets"] = strconv.FormatUint(m.TotalTickets, 10)
	attrs["totalAmount"] = strconv.FormatUint(m.TotalAmount, 10)
	return attrs
}
