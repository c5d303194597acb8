package rpc

import (
	"bytes"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"predictchain/core/state"
	"predictchain/core/types"
	"predictchain/crypto"
	"predictchain/native/market"
	"predictchain/storage"
)

const testBaseTime int64 = 1_700_000_000

type testFixture struct {
	server  *Server
	manager *state.Manager
	clock   *int64
}

func newTestFixture(t *testing.T, owner, treasury [20]byte) *testFixture {
	t.Helper()
	manager := state.NewManager(storage.NewMemDB())
	engine := market.NewEngine()
	engine.SetState(manager)
	engine.SetProgramOwner(owner)
	engine.SetProtocolTreasury(treasury)
	clock := testBaseTime
	engine.SetNowFunc(func() int64 { return clock })
	return &testFixture{
		server:  NewServer(engine, manager),
		manager: manager,
		clock:   &clock,
	}
}

func (f *testFixture) fund(t *testing.T, addr [20]byte, amount uint64) {
	t.Helper()
	acc := &types.Account{Balance: new(big.Int).SetUint64(amount)}
	if err := f.manager.PutAccount(addr[:], acc); err != nil {
		t.Fatalf("fund account: %v", err)
	}
}

type testResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
}

func (f *testFixture) call(t *testing.T, method string, params interface{}, headers map[string]string) *testResponse {
	t.Helper()
	reqParams := []json.RawMessage{}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			t.Fatalf("marshal params: %v", err)
		}
		reqParams = append(reqParams, raw)
	}
	body, err := json.Marshal(RPCRequest{JSONRPC: jsonRPCVersion, Method: method, Params: reqParams, ID: 1})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	httpReq := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}
	recorder := httptest.NewRecorder()
	f.server.handle(recorder, httpReq)

	resp := &testResponse{}
	if err := json.Unmarshal(recorder.Body.Bytes(), resp); err != nil {
		t.Fatalf("decode response %q: %v", recorder.Body.String(), err)
	}
	return resp
}

func testAddr(fill byte) [20]byte {
	var addr [20]byte
	copy(addr[:], bytes.Repeat([]byte{fill}, 20))
	return addr
}

func encode(addr [20]byte) string {
	return crypto.NewAddress(crypto.PMPrefix, addr[:]).String()
}

func TestServerMarketLifecycle(t *testing.T) {
	owner := testAddr(0xA0)
	treasury := testAddr(0xB0)
	creator := testAddr(0x01)
	key := testAddr(0x02)
	user := testAddr(0x03)

	f := newTestFixture(t, owner, treasury)
	f.fund(t, user, 10_000)

	resp := f.call(t, "market_initialize", marketInitializeParams{
		Caller:      encode(creator),
		MarketKey:   encode(key),
		Title:       "Will it rain tomorrow",
		Description: "Settles against the official forecast",
		SideA:       "Yes",
		SideB:       "No",
		Category:    "weather",
		TicketPrice: 10,
		Duration:    100,
		Treasury:    encode(treasury),
	}, nil)
	if resp.Error != nil {
		t.Fatalf("initialize: %+v", resp.Error)
	}
	var created marketJSON
	if err := json.Unmarshal(resp.Result, &created); err != nil {
		t.Fatalf("decode market: %v", err)
	}
	if created.Authority != encode(owner) {
		t.Fatalf("authority %s", created.Authority)
	}
	if created.Creator != encode(creator) {
		t.Fatalf("creator %s", created.Creator)
	}
	if created.Custody == "" || created.Custody == created.Key {
		t.Fatalf("custody %s", created.Custody)
	}

	resp = f.call(t, "market_buyTickets", marketBuyParams{
		Buyer:       encode(user),
		MarketKey:   encode(key),
		EncodedVote: "sealed-ballot",
		Count:       5,
	}, nil)
	if resp.Error != nil {
		t.Fatalf("buy: %+v", resp.Error)
	}
	var tickets userTicketsJSON
	if err := json.Unmarshal(resp.Result, &tickets); err != nil {
		t.Fatalf("decode tickets: %v", err)
	}
	if tickets.TotalTickets != 5 || tickets.TotalAmount != 50 {
		t.Fatalf("ticket totals %d/%d", tickets.TotalTickets, tickets.TotalAmount)
	}
	if len(tickets.Purchases) != 1 || tickets.Purchases[0].EncodedVote != "sealed-ballot" {
		t.Fatalf("purchase history %+v", tickets.Purchases)
	}

	resp = f.call(t, "market_custodyBalance", marketKeyParams{MarketKey: encode(key)}, nil)
	if resp.Error != nil {
		t.Fatalf("custody balance: %+v", resp.Error)
	}
	var balance custodyBalanceJSON
	if err := json.Unmarshal(resp.Result, &balance); err != nil {
		t.Fatalf("decode balance: %v", err)
	}
	if balance.Balance != "50" {
		t.Fatalf("custody balance %s", balance.Balance)
	}

	*f.clock = testBaseTime + 101
	resp = f.call(t, "market_finalize", marketFinalizeParams{
		Caller:       encode(owner),
		MarketKey:    encode(key),
		TicketsSideA: 3,
		TicketsSideB: 2,
		AmountSideA:  30,
		AmountSideB:  20,
		WinningSide:  1,
	}, nil)
	if resp.Error != nil {
		t.Fatalf("finalize: %+v", resp.Error)
	}
	var finalized marketJSON
	if err := json.Unmarshal(resp.Result, &finalized); err != nil {
		t.Fatalf("decode finalized: %v", err)
	}
	if !finalized.Finalized || !finalized.Revealed || finalized.WinningSide != 1 {
		t.Fatalf("finalized market %+v", finalized)
	}

	resp = f.call(t, "market_claimReward", marketClaimParams{
		Caller:    encode(owner),
		MarketKey: encode(key),
		User:      encode(user),
		Treasury:  encode(treasury),
		Amount:    30,
	}, nil)
	if resp.Error != nil {
		t.Fatalf("claim: %+v", resp.Error)
	}
	var receipt claimResultJSON
	if err := json.Unmarshal(resp.Result, &receipt); err != nil {
		t.Fatalf("decode receipt: %v", err)
	}
	if receipt.Fee != 1 || receipt.UserAmount != 29 {
		t.Fatalf("receipt split %d/%d", receipt.UserAmount, receipt.Fee)
	}

	resp = f.call(t, "market_getUserTickets", marketUserParams{
		MarketKey: encode(key),
		User:      encode(user),
	}, nil)
	if resp.Error != nil {
		t.Fatalf("get tickets: %+v", resp.Error)
	}
	if err := json.Unmarshal(resp.Result, &tickets); err != nil {
		t.Fatalf("decode tickets: %v", err)
	}
	if !tickets.Claimed {
		t.Fatalf("claimed flag not reflected")
	}
}

func TestServerErrorMapping(t *testing.T) {
	owner := testAddr(0xA0)
	treasury := testAddr(0xB0)
	key := testAddr(0x02)
	f := newTestFixture(t, owner, treasury)

	resp := f.call(t, "market_get", marketKeyParams{MarketKey: encode(key)}, nil)
	if resp.Error == nil || resp.Error.Code != codeMarketNotFound {
		t.Fatalf("expected not_found, got %+v", resp.Error)
	}

	resp = f.call(t, "market_initialize", marketInitializeParams{
		Caller:    encode(testAddr(0x01)),
		MarketKey: encode(key),
		Title:     "t", SideA: "a", SideB: "b",
		TicketPrice: 0, Duration: 100,
		Treasury: encode(treasury),
	}, nil)
	if resp.Error == nil || resp.Error.Code != codeMarketInvalidParams {
		t.Fatalf("expected invalid_params, got %+v", resp.Error)
	}

	resp = f.call(t, "market_initialize", marketInitializeParams{
		Caller:    "not-an-address",
		MarketKey: encode(key),
	}, nil)
	if resp.Error == nil || resp.Error.Code != codeMarketInvalidParams {
		t.Fatalf("expected invalid_params for bad address, got %+v", resp.Error)
	}

	resp = f.call(t, "market_initialize", marketInitializeParams{
		Caller:    encode(testAddr(0x01)),
		MarketKey: encode(key),
		Title:     "t", SideA: "a", SideB: "b",
		TicketPrice: 10, Duration: 100,
		Treasury: encode(treasury),
	}, nil)
	if resp.Error != nil {
		t.Fatalf("initialize: %+v", resp.Error)
	}

	// Finalizing as a non-authority caller maps to forbidden.
	*f.clock = testBaseTime + 101
	resp = f.call(t, "market_finalize", marketFinalizeParams{
		Caller:    encode(testAddr(0x01)),
		MarketKey: encode(key),
	}, nil)
	if resp.Error == nil || resp.Error.Code != codeMarketForbidden {
		t.Fatalf("expected forbidden, got %+v", resp.Error)
	}

	// Claiming before finalization maps to conflict.
	*f.clock = testBaseTime
	user := testAddr(0x03)
	f.fund(t, user, 1_000)
	resp = f.call(t, "market_buyTickets", marketBuyParams{
		Buyer: encode(user), MarketKey: encode(key), EncodedVote: "v", Count: 1,
	}, nil)
	if resp.Error != nil {
		t.Fatalf("buy: %+v", resp.Error)
	}
	resp = f.call(t, "market_claimReward", marketClaimParams{
		Caller: encode(owner), MarketKey: encode(key),
		User: encode(user), Treasury: encode(treasury), Amount: 10,
	}, nil)
	if resp.Error == nil || resp.Error.Code != codeMarketConflict {
		t.Fatalf("expected conflict, got %+v", resp.Error)
	}

	resp = f.call(t, "market_unknown", marketKeyParams{MarketKey: encode(key)}, nil)
	if resp.Error == nil || resp.Error.Code != codeMethodNotFound {
		t.Fatalf("expected method not found, got %+v", resp.Error)
	}
}

func TestServerBearerAuth(t *testing.T) {
	owner := testAddr(0xA0)
	treasury := testAddr(0xB0)
	key := testAddr(0x02)

	t.Setenv("PREDICT_RPC_TOKEN", "secret-token")
	f := newTestFixture(t, owner, treasury)

	params := marketInitializeParams{
		Caller:    encode(testAddr(0x01)),
		MarketKey: encode(key),
		Title:     "t", SideA: "a", SideB: "b",
		TicketPrice: 10, Duration: 100,
		Treasury: encode(treasury),
	}

	resp := f.call(t, "market_initialize", params, nil)
	if resp.Error == nil || resp.Error.Code != codeUnauthorized {
		t.Fatalf("expected unauthorized without token, got %+v", resp.Error)
	}

	resp = f.call(t, "market_initialize", params, map[string]string{
		"Authorization": "Bearer wrong-token",
	})
	if resp.Error == nil || resp.Error.Code != codeUnauthorized {
		t.Fatalf("expected unauthorized with wrong token, got %+v", resp.Error)
	}

	resp = f.call(t, "market_initialize", params, map[string]string{
		"Authorization": "Bearer secret-token",
	})
	if resp.Error != nil {
		t.Fatalf("expected success with token, got %+v", resp.Error)
	}

	// Read-only queries stay open even when a token is configured.
	resp = f.call(t, "market_get", marketKeyParams{MarketKey: encode(key)}, nil)
	if resp.Error != nil {
		t.Fatalf("read-only query must not require auth: %+v", resp.Error)
	}
}
