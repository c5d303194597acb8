package market

import (
	"errors"
	"math/big"
	"time"

	"predictchain/core/events"
	"predictchain/core/types"
)

var errNilState = errors.New("market engine: state not configured")

type engineState interface {
	MarketPut(*Market) error
	MarketGet(addr [20]byte) (*Market, bool)
	UserTicketsPut(*UserTickets) error
	UserTicketsGet(addr [20]byte) (*UserTickets, bool)
	GetAccount(addr []byte) (*types.Account, error)
	PutAccount(addr []byte, account *types.Account) error
}

type marketEvent struct {
	evt *types.Event
}

func (e marketEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e marketEvent) Event() *types.Event { return e.evt }

// Engine wires the prediction-market lifecycle logic with external state and
// event emitters. Each exported method is one ledger operation: all checks
// run before any mutation, so a returned error means nothing was applied.
type Engine struct {
	state    engineState
	emitter  events.Emitter
	owner    [20]byte
	treasury [20]byte
	reserve  uint64
	nowFn    func() int64
}

// NewEngine creates a market engine with a no-op emitter. Callers can
// override the emitter via SetEmitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetProgramOwner configures the fixed authority address written into every
// market at initialization. The creator never becomes the authority.
func (e *Engine) SetProgramOwner(addr [20]byte) { e.owner = addr }

// SetProtocolTreasury configures the address that receives the claim fee on
// non-tie outcomes.
func (e *Engine) SetProtocolTreasury(addr [20]byte) { e.treasury = addr }

// SetCustodyReserve configures the ledger's minimum-retention floor: a claim
// may never leave the custody sub-account below this balance.
func (e *Engine) SetCustodyReserve(amount uint64) { e.reserve = amount }

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(marketEvent{evt: event})
}

func (e *Engine) now() uint64 {
	if e == nil || e.nowFn == nil {
		return uint64(time.Now().Unix())
	}
	return uint64(e.nowFn())
}

func checkedAdd(a, b uint64) (uint64, error) {
	sum := a + b
	if sum < a {
		return 0, ErrOverflow
	}
	return sum, nil
}

func checkedMul(a, b uint64) (uint64, error) {
	if a == 0 || b == 0 {
		return 0, nil
	}
	product := a * b
	if product/a != b {
		return 0, ErrOverflow
	}
	return product, nil
}

func ensureAccount(acc *types.Account) *types.Account {
	if acc == nil {
		return &types.Account{Balance: big.NewInt(0)}
	}
	if acc.Balance == nil {
		acc.Balance = big.NewInt(0)
	}
	return acc
}

// transfer moves value between two ledger accounts. Debits from a custody
// address are authorized upstream by derivation equality, never here.
func (e *Engine) transfer(from, to [20]byte, amount uint64) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	if amount == 0 {
		return nil
	}
	amt := new(big.Int).SetUint64(amount)
	fromAcc, err := e.state.GetAccount(from[:])
	if err != nil {
		return err
	}
	toAcc, err := e.state.GetAccount(to[:])
	if err != nil {
		return err
	}
	fromAcc = ensureAccount(fromAcc)
	toAcc = ensureAccount(toAcc)
	if fromAcc.Balance.Cmp(amt) < 0 {
		return ErrInsufficientFunds
	}
	fromAcc.Balance = new(big.Int).Sub(fromAcc.Balance, amt)
	toAcc.Balance = new(big.Int).Add(toAcc.Balance, amt)
	if err := e.state.PutAccount(from[:], fromAcc); err != nil {
		return err
	}
	return e.state.PutAccount(to[:], toAcc)
}

// InitializeParams carries the immutable metadata for a new market.
type InitializeParams struct {
	Title       string
	Description string
	SideA       string
	SideB       string
	Category    string
	TicketPrice uint64
	Duration    uint64
	Treasury    [20]byte
}

// InitializeMarket allocates the market record and an empty custody
// sub-account for the given market key. The authority is always the fixed
// program owner, not the caller. Reinitializing a market that has sold
// tickets or is finalized is rejected; before the first purchase a repeat
// initialization overwrites the record.
func (e *Engine) InitializeMarket(caller, key [20]byte, params InitializeParams) (*Market, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if len(params.Title) > MaxTitleLen {
		return nil, ErrTitleTooLong
	}
	if len(params.Description) > MaxDescriptionLen {
		return nil, ErrDescriptionTooLong
	}
	if len(params.SideA) > MaxSideLabelLen || len(params.SideB) > MaxSideLabelLen {
		return nil, ErrSideLabelTooLong
	}
	if len(params.Category) > MaxCategoryLen {
		return nil, ErrCategoryTooLong
	}
	if params.TicketPrice == 0 {
		return nil, ErrInvalidTicketPrice
	}
	if params.Duration == 0 {
		return nil, ErrInvalidDuration
	}
	addr := MarketAddress(key)
	if existing, ok := e.state.MarketGet(addr); ok {
		if existing.TotalTickets > 0 || existing.Finalized {
			return nil, ErrMarketActive
		}
	}
	m := &Market{
		Key:          key,
		Title:        params.Title,
		Description:  params.Description,
		SideA:        params.SideA,
		SideB:        params.SideB,
		Category:     params.Category,
		TicketPrice:  params.TicketPrice,
		Duration:     params.Duration,
		CreationTime: e.now(),
		Treasury:     params.Treasury,
		Creator:      caller,
		Authority:    e.owner,
	}
	// Allocate the custody sub-account at its derived address. No funds move.
	custody := CustodyAddress(key)
	custodyAcc, err := e.state.GetAccount(custody[:])
	if err != nil {
		return nil, err
	}
	if err := e.state.PutAccount(custody[:], ensureAccount(custodyAcc)); err != nil {
		return nil, err
	}
	if err := e.state.MarketPut(m); err != nil {
		return nil, err
	}
	e.emit(NewCreatedEvent(m))
	return m.Clone(), nil
}

// PurchaseReceipt reports an accepted purchase: the updated ticket record and
// the value moved into custody.
type PurchaseReceipt struct {
	Record     *UserTickets
	TotalPrice uint64
}

// BuyTickets validates the purchase, moves the total price from the buyer to
// the market's custody sub-account and updates market and per-user totals.
// The per-user ceiling is the larger of the flat absolute cap or 25% of the
// pool size after this purchase.
func (e *Engine) BuyTickets(buyer, key [20]byte, encodedVote string, count uint64) (*PurchaseReceipt, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	marketAddr := MarketAddress(key)
	m, ok := e.state.MarketGet(marketAddr)
	if !ok {
		return nil, ErrMarketNotFound
	}
	now := e.now()
	endTime, err := checkedAdd(m.CreationTime, m.Duration)
	if err != nil {
		return nil, err
	}
	if now > endTime {
		return nil, ErrMarketClosed
	}
	if m.Finalized {
		return nil, ErrMarketFinalized
	}
	if count == 0 {
		return nil, ErrInvalidTicketCount
	}
	if len(encodedVote) > MaxEncodedVoteLen {
		return nil, ErrEncodedVoteTooLong
	}
	totalPrice, err := checkedMul(m.TicketPrice, count)
	if err != nil {
		return nil, err
	}
	newMarketTickets, err := checkedAdd(m.TotalTickets, count)
	if err != nil {
		return nil, err
	}
	ticketAddr := TicketRecordAddress(marketAddr, buyer)
	record, ok := e.state.UserTicketsGet(ticketAddr)
	if !ok {
		record = &UserTickets{Market: marketAddr, User: buyer}
	}
	newUserTickets, err := checkedAdd(record.TotalTickets, count)
	if err != nil {
		return nil, err
	}
	dynamicLimit := newMarketTickets / 4
	allowed := AbsoluteTicketCap
	if dynamicLimit > allowed {
		allowed = dynamicLimit
	}
	if newUserTickets > allowed {
		return nil, ErrTicketCapExceeded
	}
	if len(record.Purchases) >= MaxPurchaseRecords {
		return nil, ErrPurchaseHistoryFull
	}
	newMarketAmount, err := checkedAdd(m.TotalAmount, totalPrice)
	if err != nil {
		return nil, err
	}
	newUserAmount, err := checkedAdd(record.TotalAmount, totalPrice)
	if err != nil {
		return nil, err
	}
	custody := CustodyAddress(key)
	if err := e.transfer(buyer, custody, totalPrice); err != nil {
		return nil, err
	}
	m.TotalTickets = newMarketTickets
	m.TotalAmount = newMarketAmount
	record.TotalTickets = newUserTickets
	record.TotalAmount = newUserAmount
	record.Purchases = append(record.Purchases, PurchaseRecord{
		EncodedVote: encodedVote,
		TicketCount: count,
		PurchasedAt: now,
	})
	if err := e.state.MarketPut(m); err != nil {
		return nil, err
	}
	if err := e.state.UserTicketsPut(record); err != nil {
		return nil, err
	}
	e.emit(NewPurchaseEvent(m, record, count, totalPrice))
	return &PurchaseReceipt{Record: record.Clone(), TotalPrice: totalPrice}, nil
}

// FinalizeParams carries the authority-reported outcome of a closed market.
// The breakdown is trusted input; the reconciliation against the accumulated
// totals is the only guard.
type FinalizeParams struct {
	TicketsSideA uint64
	TicketsSideB uint64
	AmountSideA  uint64
	AmountSideB  uint64
	WinningSide  WinningSide
	Encryptor    string
}

// FinalizeMarket freezes the market outcome. Authority-only, one-shot, and
// only after the betting window has closed.
func (e *Engine) FinalizeMarket(caller, key [20]byte, params FinalizeParams) (*Market, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	marketAddr := MarketAddress(key)
	m, ok := e.state.MarketGet(marketAddr)
	if !ok {
		return nil, ErrMarketNotFound
	}
	if caller != m.Authority {
		return nil, ErrUnauthorized
	}
	if m.Finalized {
		return nil, ErrMarketFinalized
	}
	endTime, err := checkedAdd(m.CreationTime, m.Duration)
	if err != nil {
		return nil, err
	}
	if e.now() < endTime {
		return nil, ErrMarketNotEnded
	}
	if !params.WinningSide.Valid() {
		return nil, ErrInvalidWinningSide
	}
	sumTickets, err := checkedAdd(params.TicketsSideA, params.TicketsSideB)
	if err != nil {
		return nil, err
	}
	if sumTickets != m.TotalTickets {
		return nil, ErrInconsistentTotals
	}
	sumAmounts, err := checkedAdd(params.AmountSideA, params.AmountSideB)
	if err != nil {
		return nil, err
	}
	if sumAmounts != m.TotalAmount {
		return nil, ErrInconsistentTotals
	}
	if len(params.Encryptor) > MaxEncryptorLen {
		return nil, ErrEncryptorTooLong
	}
	m.Encryptor = params.Encryptor
	m.TicketsSideA = params.TicketsSideA
	m.TicketsSideB = params.TicketsSideB
	m.AmountSideA = params.AmountSideA
	m.AmountSideB = params.AmountSideB
	m.WinningSide = params.WinningSide
	m.Finalized = true
	m.Revealed = true
	if err := e.state.MarketPut(m); err != nil {
		return nil, err
	}
	e.emit(NewFinalizedEvent(m))
	return m.Clone(), nil
}

// ClaimReceipt reports the settled amounts of a successful reward claim.
type ClaimReceipt struct {
	User       [20]byte
	UserAmount uint64
	Fee        uint64
}

// ClaimReward releases a caller-specified payout from the custody
// sub-account to the user, skimming the protocol fee on non-tie outcomes.
// The custody address is re-derived and equality-checked before the debit;
// that check is the sole authorization of fund movement out of custody.
func (e *Engine) ClaimReward(caller, key, user, custody, projectTreasury [20]byte, claimAmount uint64) (*ClaimReceipt, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	marketAddr := MarketAddress(key)
	m, ok := e.state.MarketGet(marketAddr)
	if !ok {
		return nil, ErrMarketNotFound
	}
	if caller != m.Authority {
		return nil, ErrUnauthorized
	}
	ticketAddr := TicketRecordAddress(marketAddr, user)
	record, ok := e.state.UserTicketsGet(ticketAddr)
	if !ok {
		return nil, ErrTicketsNotFound
	}
	if user != record.User {
		return nil, ErrUnauthorizedUser
	}
	if !m.Finalized {
		return nil, ErrMarketNotFinalized
	}
	if record.Claimed {
		return nil, ErrAlreadyClaimed
	}
	if claimAmount == 0 {
		return nil, ErrInvalidClaimAmount
	}
	if projectTreasury != e.treasury {
		return nil, ErrInvalidTreasury
	}
	custodyAcc, err := e.state.GetAccount(custody[:])
	if err != nil {
		return nil, err
	}
	custodyAcc = ensureAccount(custodyAcc)
	remaining := new(big.Int).Sub(custodyAcc.Balance, new(big.Int).SetUint64(claimAmount))
	if remaining.Cmp(new(big.Int).SetUint64(e.reserve)) < 0 {
		return nil, ErrInsufficientCustody
	}
	var fee, userAmount uint64
	if m.WinningSide == SideTie {
		fee, userAmount = 0, claimAmount
	} else {
		// Widen through big.Int so the bps multiply cannot overflow before
		// narrowing back to u64.
		wide := new(big.Int).Mul(new(big.Int).SetUint64(claimAmount), new(big.Int).SetUint64(TreasuryFeeBps))
		wide.Div(wide, big.NewInt(10_000))
		fee = wide.Uint64()
		userAmount = claimAmount - fee
	}
	if expected := CustodyAddress(key); custody != expected {
		return nil, ErrCustodyMismatch
	}
	if err := e.transfer(custody, user, userAmount); err != nil {
		return nil, err
	}
	if fee > 0 {
		if err := e.transfer(custody, projectTreasury, fee); err != nil {
			return nil, err
		}
	}
	record.Claimed = true
	if err := e.state.UserTicketsPut(record); err != nil {
		return nil, err
	}
	e.emit(NewClaimEvent(m, record, userAmount, fee))
	return &ClaimReceipt{User: user, UserAmount: userAmount, Fee: fee}, nil
}
