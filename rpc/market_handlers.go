package rpc

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"predictchain/crypto"
	"predictchain/native/market"
	"predictchain/observability/metrics"
)

const (
	codeMarketInvalidParams = -32061
	codeMarketNotFound      = -32062
	codeMarketForbidden     = -32063
	codeMarketConflict      = -32064
	codeMarketInternal      = -32065
)

type marketInitializeParams struct {
	Caller      string `json:"caller"`
	MarketKey   string `json:"marketKey"`
	Title       string `json:"title"`
	Description string `json:"description"`
	SideA       string `json:"sideA"`
	SideB       string `json:"sideB"`
	Category    string `json:"category"`
	TicketPrice uint64 `json:"ticketPrice"`
	Duration    uint64 `json:"duration"`
	Treasury    string `json:"treasury"`
}

type marketBuyParams struct {
	Buyer       string `json:"buyer"`
	MarketKey   string `json:"marketKey"`
	EncodedVote string `json:"encodedVote"`
	Count       uint64 `json:"count"`
}

type marketFinalizeParams struct {
	Caller       string `json:"caller"`
	MarketKey    string `json:"marketKey"`
	TicketsSideA uint64 `json:"ticketsSideA"`
	TicketsSideB uint64 `json:"ticketsSideB"`
	AmountSideA  uint64 `json:"amountSideA"`
	AmountSideB  uint64 `json:"amountSideB"`
	WinningSide  uint8  `json:"winningSide"`
	Encryptor    string `json:"encryptor"`
}

type marketClaimParams struct {
	Caller    string `json:"caller"`
	MarketKey string `json:"marketKey"`
	User      string `json:"user"`
	Custody   string `json:"custody,omitempty"`
	Treasury  string `json:"treasury"`
	Amount    uint64 `json:"amount"`
}

type marketKeyParams struct {
	MarketKey string `json:"marketKey"`
}

type marketUserParams struct {
	MarketKey string `json:"marketKey"`
	User      string `json:"user"`
}

type marketJSON struct {
	Key          string `json:"key"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	SideA        string `json:"sideA"`
	SideB        string `json:"sideB"`
	Category     string `json:"category"`
	TicketPrice  uint64 `json:"ticketPrice"`
	Duration     uint64 `json:"duration"`
	CreationTime uint64 `json:"creationTime"`
	Encryptor    string `json:"encryptor,omitempty"`
	Treasury     string `json:"treasury"`
	Creator      string `json:"creator"`
	Authority    string `json:"authority"`
	TotalTickets uint64 `json:"totalTickets"`
	TotalAmount  uint64 `json:"totalAmount"`
	Finalized    bool   `json:"finalized"`
	Revealed     bool   `json:"revealed"`
	WinningSide  uint8  `json:"winningSide"`
	TicketsSideA uint64 `json:"ticketsSideA"`
	TicketsSideB uint64 `json:"ticketsSideB"`
	AmountSideA  uint64 `json:"amountSideA"`
	AmountSideB  uint64 `json:"amountSideB"`
	Custody      string `json:"custody"`
}

type purchaseJSON struct {
	EncodedVote string `json:"encodedVote"`
	TicketCount uint64 `json:"ticketCount"`
	PurchasedAt uint64 `json:"purchasedAt"`
}

type userTicketsJSON struct {
	Market       string         `json:"market"`
	User         string         `json:"user"`
	TotalTickets uint64         `json:"totalTickets"`
	TotalAmount  uint64         `json:"totalAmount"`
	Purchases    []purchaseJSON `json:"purchases"`
	Claimed      bool           `json:"claimed"`
}

type claimResultJSON struct {
	User       string `json:"user"`
	UserAmount uint64 `json:"userAmount"`
	Fee        uint64 `json:"fee"`
}

func parseAddress(value string) ([20]byte, error) {
	var out [20]byte
	addr, err := crypto.DecodeAddress(value)
	if err != nil {
		return out, err
	}
	copy(out[:], addr.Bytes())
	return out, nil
}

func formatAddress(addr [20]byte) string {
	return crypto.NewAddress(crypto.PMPrefix, addr[:]).String()
}

func decodeSingleParam(w http.ResponseWriter, req *RPCRequest, dst interface{}) bool {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", "exactly one parameter object expected")
		return false
	}
	if err := json.Unmarshal(req.Params[0], dst); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return false
	}
	return true
}

func writeMarketError(w http.ResponseWriter, id interface{}, err error) {
	switch {
	case errors.Is(err, market.ErrMarketNotFound), errors.Is(err, market.ErrTicketsNotFound):
		writeError(w, http.StatusNotFound, id, codeMarketNotFound, "not_found", err.Error())
	case errors.Is(err, market.ErrUnauthorized),
		errors.Is(err, market.ErrUnauthorizedUser),
		errors.Is(err, market.ErrInvalidTreasury):
		writeError(w, http.StatusForbidden, id, codeMarketForbidden, "forbidden", err.Error())
	case errors.Is(err, market.ErrTitleTooLong),
		errors.Is(err, market.ErrDescriptionTooLong),
		errors.Is(err, market.ErrSideLabelTooLong),
		errors.Is(err, market.ErrCategoryTooLong),
		errors.Is(err, market.ErrEncryptorTooLong),
		errors.Is(err, market.ErrEncodedVoteTooLong),
		errors.Is(err, market.ErrInvalidTicketPrice),
		errors.Is(err, market.ErrInvalidDuration),
		errors.Is(err, market.ErrInvalidTicketCount),
		errors.Is(err, market.ErrInvalidWinningSide),
		errors.Is(err, market.ErrInvalidClaimAmount):
		writeError(w, http.StatusBadRequest, id, codeMarketInvalidParams, "invalid_params", err.Error())
	case errors.Is(err, market.ErrMarketActive),
		errors.Is(err, market.ErrMarketClosed),
		errors.Is(err, market.ErrMarketFinalized),
		errors.Is(err, market.ErrMarketNotEnded),
		errors.Is(err, market.ErrMarketNotFinalized),
		errors.Is(err, market.ErrAlreadyClaimed),
		errors.Is(err, market.ErrOverflow),
		errors.Is(err, market.ErrInconsistentTotals),
		errors.Is(err, market.ErrInsufficientFunds),
		errors.Is(err, market.ErrInsufficientCustody),
		errors.Is(err, market.ErrTicketCapExceeded),
		errors.Is(err, market.ErrPurchaseHistoryFull),
		errors.Is(err, market.ErrCustodyMismatch):
		writeError(w, http.StatusConflict, id, codeMarketConflict, "conflict", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, id, codeMarketInternal, "internal_error", err.Error())
	}
}

func formatMarketJSON(m *market.Market) marketJSON {
	return marketJSON{
		Key:          formatAddress(m.Key),
		Title:        m.Title,
		Description:  m.Description,
		SideA:        m.SideA,
		SideB:        m.SideB,
		Category:     m.Category,
		TicketPrice:  m.TicketPrice,
		Duration:     m.Duration,
		CreationTime: m.CreationTime,
		Encryptor:    m.Encryptor,
		Treasury:     formatAddress(m.Treasury),
		Creator:      formatAddress(m.Creator),
		Authority:    formatAddress(m.Authority),
		TotalTickets: m.TotalTickets,
		TotalAmount:  m.TotalAmount,
		Finalized:    m.Finalized,
		Revealed:     m.Revealed,
		WinningSide:  uint8(m.WinningSide),
		TicketsSideA: m.TicketsSideA,
		TicketsSideB: m.TicketsSideB,
		AmountSideA:  m.AmountSideA,
		AmountSideB:  m.AmountSideB,
		Custody:      formatAddress(market.CustodyAddress(m.Key)),
	}
}

func formatUserTicketsJSON(u *market.UserTickets) userTicketsJSON {
	purchases := make([]purchaseJSON, 0, len(u.Purchases))
	for _, p := range u.Purchases {
		purchases = append(purchases, purchaseJSON{
			EncodedVote: p.EncodedVote,
			TicketCount: p.TicketCount,
			PurchasedAt: p.PurchasedAt,
		})
	}
	return userTicketsJSON{
		Market:       formatAddress(u.Market),
		User:         formatAddress(u.User),
		TotalTickets: u.TotalTickets,
		TotalAmount:  u.TotalAmount,
		Purchases:    purchases,
		Claimed:      u.Claimed,
	}
}

func (s *Server) handleMarketInitialize(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params marketInitializeParams
	if !decodeSingleParam(w, req, &params) {
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	key, err := parseAddress(params.MarketKey)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	treasury, err := parseAddress(params.Treasury)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	s.mu.Lock()
	m, err := s.engine.InitializeMarket(caller, key, market.InitializeParams{
		Title:       params.Title,
		Description: params.Description,
		SideA:       params.SideA,
		SideB:       params.SideB,
		Category:    params.Category,
		TicketPrice: params.TicketPrice,
		Duration:    params.Duration,
		Treasury:    treasury,
	})
	s.mu.Unlock()
	if err != nil {
		writeMarketError(w, req.ID, err)
		return
	}
	metrics.Market().ObserveCreated()
	writeResult(w, req.ID, formatMarketJSON(m))
}

func (s *Server) handleMarketBuyTickets(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params marketBuyParams
	if !decodeSingleParam(w, req, &params) {
		return
	}
	buyer, err := parseAddress(params.Buyer)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	key, err := parseAddress(params.MarketKey)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	s.mu.Lock()
	receipt, err := s.engine.BuyTickets(buyer, key, params.EncodedVote, params.Count)
	s.mu.Unlock()
	if err != nil {
		writeMarketError(w, req.ID, err)
		return
	}
	metrics.Market().ObservePurchase(params.Count, receipt.TotalPrice)
	writeResult(w, req.ID, formatUserTicketsJSON(receipt.Record))
}

func (s *Server) handleMarketFinalize(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params marketFinalizeParams
	if !decodeSingleParam(w, req, &params) {
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	key, err := parseAddress(params.MarketKey)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	s.mu.Lock()
	m, err := s.engine.FinalizeMarket(caller, key, market.FinalizeParams{
		TicketsSideA: params.TicketsSideA,
		TicketsSideB: params.TicketsSideB,
		AmountSideA:  params.AmountSideA,
		AmountSideB:  params.AmountSideB,
		WinningSide:  market.WinningSide(params.WinningSide),
		Encryptor:    params.Encryptor,
	})
	s.mu.Unlock()
	if err != nil {
		writeMarketError(w, req.ID, err)
		return
	}
	metrics.Market().ObserveFinalized(strconv.Itoa(int(m.WinningSide)))
	writeResult(w, req.ID, formatMarketJSON(m))
}

func (s *Server) handleMarketClaimReward(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params marketClaimParams
	if !decodeSingleParam(w, req, &params) {
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	key, err := parseAddress(params.MarketKey)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	user, err := parseAddress(params.User)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	treasury, err := parseAddress(params.Treasury)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	custody := market.CustodyAddress(key)
	if params.Custody != "" {
		custody, err = parseAddress(params.Custody)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
			return
		}
	}
	s.mu.Lock()
	receipt, err := s.engine.ClaimReward(caller, key, user, custody, treasury, params.Amount)
	s.mu.Unlock()
	if err != nil {
		writeMarketError(w, req.ID, err)
		return
	}
	metrics.Market().ObserveClaim(receipt.UserAmount, receipt.Fee)
	writeResult(w, req.ID, claimResultJSON{
		User:       formatAddress(receipt.User),
		UserAmount: receipt.UserAmount,
		Fee:        receipt.Fee,
	})
}

func (s *Server) handleMarketGet(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params marketKeyParams
	if !decodeSingleParam(w, req, &params) {
		return
	}
	key, err := parseAddress(params.MarketKey)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	m, ok := s.state.MarketGet(market.MarketAddress(key))
	if !ok {
		writeMarketError(w, req.ID, market.ErrMarketNotFound)
		return
	}
	writeResult(w, req.ID, formatMarketJSON(m))
}

func (s *Server) handleMarketGetUserTickets(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params marketUserParams
	if !decodeSingleParam(w, req, &params) {
		return
	}
	key, err := parseAddress(params.MarketKey)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	user, err := parseAddress(params.User)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	marketAddr := market.MarketAddress(key)
	record, ok := s.state.UserTicketsGet(market.TicketRecordAddress(marketAddr, user))
	if !ok {
		writeMarketError(w, req.ID, market.ErrTicketsNotFound)
		return
	}
	writeResult(w, req.ID, formatUserTicketsJSON(record))
}

type custodyBalanceJSON struct {
	Custody string `json:"custody"`
	Balance string `json:"balance"`
}

func (s *Server) handleMarketCustodyBalance(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params marketKeyParams
	if !decodeSingleParam(w, req, &params) {
		return
	}
	key, err := parseAddress(params.MarketKey)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	custody := market.CustodyAddress(key)
	account, err := s.state.GetAccount(custody[:])
	if err != nil {
		writeMarketError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, custodyBalanceJSON{
		Custody: formatAddress(custody),
		Balance: account.Balance.String(),
	})
}
