package state

import (
	"bytes"
	"math"
	"math/big"
	"reflect"
	"testing"

	"predictchain/native/market"
	"predictchain/storage"
)

func testAddress(fill byte) [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return addr
}

func storedMarket() *market.Market {
	return &market.Market{
		Key:          testAddress(0x02),
		Title:        "Will it rain tomorrow",
		Description:  "Settles against the official forecast",
		SideA:        "Yes",
		SideB:        "No",
		Category:     "weather",
		TicketPrice:  10,
		Duration:     100,
		CreationTime: 1_700_000_000,
		Treasury:     testAddress(0xB0),
		Creator:      testAddress(0x01),
		Authority:    testAddress(0xA0),
		TotalTickets: 5,
		TotalAmount:  50,
	}
}

func TestMarketRoundTrip(t *testing.T) {
	manager := NewManager(storage.NewMemDB())
	original := storedMarket()

	if err := manager.MarketPut(original); err != nil {
		t.Fatalf("put: %v", err)
	}
	loaded, ok := manager.MarketGet(market.MarketAddress(original.Key))
	if !ok {
		t.Fatalf("stored market not found")
	}
	if !reflect.DeepEqual(original, loaded) {
		t.Fatalf("round trip mismatch:\n put %+v\n got %+v", original, loaded)
	}

	if _, ok := manager.MarketGet(market.MarketAddress(testAddress(0x99))); ok {
		t.Fatalf("unknown market must be absent")
	}
}

func TestMaxSizeRecordsFit(t *testing.T) {
	manager := NewManager(storage.NewMemDB())

	// Every bounded field at its documented maximum and every counter at its
	// widest encoding must still fit the reserved record sizes.
	maxMarket := &market.Market{
		Key:          testAddress(0x02),
		Title:        string(bytes.Repeat([]byte{'t'}, market.MaxTitleLen)),
		Description:  string(bytes.Repeat([]byte{'d'}, market.MaxDescriptionLen)),
		SideA:        string(bytes.Repeat([]byte{'a'}, market.MaxSideLabelLen)),
		SideB:        string(bytes.Repeat([]byte{'b'}, market.MaxSideLabelLen)),
		Category:     string(bytes.Repeat([]byte{'c'}, market.MaxCategoryLen)),
		TicketPrice:  math.MaxUint64,
		Duration:     math.MaxUint64,
		CreationTime: math.MaxUint64,
		Encryptor:    string(bytes.Repeat([]byte{'e'}, market.MaxEncryptorLen)),
		Treasury:     testAddress(0xB0),
		Creator:      testAddress(0x01),
		Authority:    testAddress(0xA0),
		TotalTickets: math.MaxUint64,
		TotalAmount:  math.MaxUint64,
		Finalized:    true,
		Revealed:     true,
		WinningSide:  market.SideB,
		TicketsSideA: math.MaxUint64,
		TicketsSideB: math.MaxUint64,
		AmountSideA:  math.MaxUint64,
		AmountSideB:  math.MaxUint64,
	}
	if err := manager.MarketPut(maxMarket); err != nil {
		t.Fatalf("maximal market rejected: %v", err)
	}
	if _, ok := manager.MarketGet(market.MarketAddress(maxMarket.Key)); !ok {
		t.Fatalf("maximal market not found after put")
	}

	const perPurchase = uint64(1) << 58
	purchases := make([]market.PurchaseRecord, market.MaxPurchaseRecords)
	for i := range purchases {
		purchases[i] = market.PurchaseRecord{
			EncodedVote: string(bytes.Repeat([]byte{'v'}, market.MaxEncodedVoteLen)),
			TicketCount: perPurchase,
			PurchasedAt: math.MaxUint64,
		}
	}
	maxRecord := &market.UserTickets{
		Market:       market.MarketAddress(maxMarket.Key),
		User:         testAddress(0x03),
		TotalTickets: perPurchase * market.MaxPurchaseRecords,
		TotalAmount:  math.MaxUint64,
		Purchases:    purchases,
		Claimed:      true,
	}
	if err := manager.UserTicketsPut(maxRecord); err != nil {
		t.Fatalf("maximal ticket record rejected: %v", err)
	}
	loaded, ok := manager.UserTicketsGet(market.TicketRecordAddress(maxRecord.Market, maxRecord.User))
	if !ok {
		t.Fatalf("maximal ticket record not found after put")
	}
	if !reflect.DeepEqual(maxRecord, loaded) {
		t.Fatalf("maximal record round trip mismatch")
	}
}

func TestMarketPutRejectsInvalidRecords(t *testing.T) {
	manager := NewManager(storage.NewMemDB())

	m := storedMarket()
	m.Title = string(bytes.Repeat([]byte{'x'}, market.MaxTitleLen+1))
	if err := manager.MarketPut(m); err == nil {
		t.Fatalf("oversized title must be rejected")
	}

	m = storedMarket()
	m.TicketPrice = 0
	if err := manager.MarketPut(m); err == nil {
		t.Fatalf("zero ticket price must be rejected")
	}

	if _, ok := manager.MarketGet(market.MarketAddress(storedMarket().Key)); ok {
		t.Fatalf("rejected records must not be persisted")
	}
}

func TestUserTicketsRoundTrip(t *testing.T) {
	manager := NewManager(storage.NewMemDB())
	marketAddr := market.MarketAddress(testAddress(0x02))
	user := testAddress(0x03)
	record := &market.UserTickets{
		Market:       marketAddr,
		User:         user,
		TotalTickets: 3,
		TotalAmount:  30,
		Purchases: []market.PurchaseRecord{
			{EncodedVote: "a", TicketCount: 1, PurchasedAt: 1_700_000_000},
			{EncodedVote: "b", TicketCount: 2, PurchasedAt: 1_700_000_050},
		},
	}

	if err := manager.UserTicketsPut(record); err != nil {
		t.Fatalf("put: %v", err)
	}
	loaded, ok := manager.UserTicketsGet(market.TicketRecordAddress(marketAddr, user))
	if !ok {
		t.Fatalf("stored ticket record not found")
	}
	if !reflect.DeepEqual(record, loaded) {
		t.Fatalf("round trip mismatch:\n put %+v\n got %+v", record, loaded)
	}

	if _, ok := manager.UserTicketsGet(market.TicketRecordAddress(marketAddr, testAddress(0x99))); ok {
		t.Fatalf("unknown ticket record must be absent")
	}
}

func TestUserTicketsPutRejectsInconsistentTotals(t *testing.T) {
	manager := NewManager(storage.NewMemDB())
	record := &market.UserTickets{
		Market:       market.MarketAddress(testAddress(0x02)),
		User:         testAddress(0x03),
		TotalTickets: 5,
		Purchases:    []market.PurchaseRecord{{EncodedVote: "a", TicketCount: 1}},
	}
	if err := manager.UserTicketsPut(record); err == nil {
		t.Fatalf("total/history mismatch must be rejected")
	}
}

func TestAccountRoundTrip(t *testing.T) {
	manager := NewManager(storage.NewMemDB())
	addr := testAddress(0x03)

	// Missing accounts resolve to a zero balance, never an error.
	acc, err := manager.GetAccount(addr[:])
	if err != nil {
		t.Fatalf("get missing: %v", err)
	}
	if acc.Balance.Sign() != 0 {
		t.Fatalf("missing account balance %s", acc.Balance)
	}

	acc.Balance = big.NewInt(1234)
	acc.Nonce = 7
	if err := manager.PutAccount(addr[:], acc); err != nil {
		t.Fatalf("put: %v", err)
	}
	loaded, err := manager.GetAccount(addr[:])
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if loaded.Nonce != 7 || loaded.Balance.Cmp(big.NewInt(1234)) != 0 {
		t.Fatalf("round trip mismatch: %+v", loaded)
	}
}

func TestPutAccountRejectsNegativeBalance(t *testing.T) {
	manager := NewManager(storage.NewMemDB())
	addr := testAddress(0x03)
	acc, _ := manager.GetAccount(addr[:])
	acc.Balance = big.NewInt(-1)
	if err := manager.PutAccount(addr[:], acc); err == nil {
		t.Fatalf("negative balance must be rejected")
	}
}
