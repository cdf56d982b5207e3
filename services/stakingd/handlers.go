package stakingd

import (
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"nftstake/core/router"
	"nftstake/core/types"
	"nftstake/crypto"
	"nftstake/gateway/middleware"
	"nftstake/native/bank"
	"nftstake/native/staking"
)

type stakeRequest struct {
	Item    string `json:"item" validate:"required,address"`
	Lock    uint8  `json:"lock" validate:"lock"`
	Value   string `json:"value" validate:"amount"`
	QueryID uint64 `json:"queryId"`
}

type claimRequest struct {
	Item       string `json:"item" validate:"required,address"`
	ReturnItem bool   `json:"returnItem"`
	Fee        string `json:"fee" validate:"required,amount"`
	QueryID    uint64 `json:"queryId"`
}

type depositRequest struct {
	Amount  string `json:"amount" validate:"required,amount"`
	QueryID uint64 `json:"queryId"`
}

type messageRequest struct {
	To     string `json:"to" validate:"required,address"`
	Value  string `json:"value" validate:"amount"`
	Bounce bool   `json:"bounce"`
	Body   string `json:"body" validate:"required,hexadecimal"`
}

type withdrawRequest struct {
	Amount  string `json:"amount" validate:"required,amount"`
	QueryID uint64 `json:"queryId"`
}

type catalogItem struct {
	Item   string `json:"item" validate:"required,address"`
	Rarity uint16 `json:"rarity"`
}

type addItemsRequest struct {
	Items   []catalogItem `json:"items" validate:"required,min=1,max=256,dive"`
	QueryID uint64        `json:"queryId"`
}

type removeItemsRequest struct {
	Items   []string `json:"items" validate:"required,min=1,max=256,dive,required,address"`
	QueryID uint64   `json:"queryId"`
}

type rarityRow struct {
	ID           uint16 `json:"id"`
	CommonReward string `json:"commonReward" validate:"required,amount"`
	BoostReward  string `json:"boostReward" validate:"required,amount"`
}

type addRarityRequest struct {
	Rarities []rarityRow `json:"rarities" validate:"required,min=1,max=256,dive"`
	QueryID  uint64      `json:"queryId"`
}

type removeRarityRequest struct {
	IDs     []uint16 `json:"ids" validate:"required,min=1,max=256"`
	QueryID uint64   `json:"queryId"`
}

type validUntilRequest struct {
	ValidUntil int64  `json:"validUntil" validate:"gte=0"`
	QueryID    uint64 `json:"queryId"`
}

type mintItemRequest struct {
	Item  string `json:"item" validate:"required,address"`
	Owner string `json:"owner" validate:"required,account"`
}

type mintTokensRequest struct {
	To     string `json:"to" validate:"required,account"`
	Amount string `json:"amount" validate:"required,amount"`
}

// decode reads and validates a JSON request body. It writes the error
// response itself and reports whether the handler may continue.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := s.validate.ValidateStruct(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "validation failed", "fields": FormatValidationError(err)})
		return false
	}
	return true
}

func caller(r *http.Request) [20]byte {
	p, _ := middleware.PrincipalFrom(r.Context())
	if p == nil {
		return [20]byte{}
	}
	return p.Address
}

func (s *Server) respond(w http.ResponseWriter, trace *router.Trace, err error) {
	if err != nil {
		writeIngressError(w, err)
		return
	}
	writeReceipt(w, trace)
}

func (s *Server) handleStake(w http.ResponseWriter, r *http.Request) {
	var req stakeRequest
	if !s.decode(w, r, &req) {
		return
	}
	trace, err := s.backend.Stake(r.Context(), caller(r), mustAddress(req.Item), staking.LockOption(req.Lock), parseAmount(req.Value), req.QueryID)
	s.respond(w, trace, err)
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if !s.decode(w, r, &req) {
		return
	}
	trace, err := s.backend.Claim(r.Context(), caller(r), mustAddress(req.Item), req.ReturnItem, parseAmount(req.Fee), req.QueryID)
	s.respond(w, trace, err)
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if !s.decode(w, r, &req) {
		return
	}
	trace, err := s.backend.FundReserve(r.Context(), caller(r), parseAmount(req.Amount), req.QueryID)
	s.respond(w, trace, err)
}

// handleMessage delivers a pre-encoded message body, as produced by
// stakectl encode, from the caller to any actor.
func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if !s.decode(w, r, &req) {
		return
	}
	raw, err := hex.DecodeString(strings.TrimPrefix(req.Body, "0x"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "body must be hex")
		return
	}
	queryID, body, err := staking.DecodeMessage(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	trace, err := s.backend.Submit(r.Context(), caller(r), mustAddress(req.To), parseAmount(req.Value), queryID, body, req.Bounce)
	s.respond(w, trace, err)
}

func (s *Server) submitAdmin(w http.ResponseWriter, r *http.Request, queryID uint64, body types.Message) {
	cfg, err := s.backend.Config()
	if err != nil {
		writeIngressError(w, err)
		return
	}
	trace, err := s.backend.Submit(r.Context(), caller(r), cfg.Address, nil, queryID, body, true)
	s.respond(w, trace, err)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req withdrawRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.submitAdmin(w, r, req.QueryID, &staking.AdminWithdraw{Amount: parseAmount(req.Amount)})
}

func (s *Server) handleAddItems(w http.ResponseWriter, r *http.Request) {
	var req addItemsRequest
	if !s.decode(w, r, &req) {
		return
	}
	msg := &staking.AdminAddItems{Items: make([]staking.CatalogEntry, 0, len(req.Items))}
	for _, item := range req.Items {
		msg.Items = append(msg.Items, staking.CatalogEntry{Item: mustAddress(item.Item), Rarity: item.Rarity})
	}
	s.submitAdmin(w, r, req.QueryID, msg)
}

func (s *Server) handleRemoveItems(w http.ResponseWriter, r *http.Request) {
	var req removeItemsRequest
	if !s.decode(w, r, &req) {
		return
	}
	msg := &staking.AdminRemoveItems{Items: make([][20]byte, 0, len(req.Items))}
	for _, item := range req.Items {
		msg.Items = append(msg.Items, mustAddress(item))
	}
	s.submitAdmin(w, r, req.QueryID, msg)
}

func (s *Server) handleAddRarity(w http.ResponseWriter, r *http.Request) {
	var req addRarityRequest
	if !s.decode(w, r, &req) {
		return
	}
	msg := &staking.AdminAddRarity{Rarities: make([]staking.RarityEntry, 0, len(req.Rarities))}
	for _, row := range req.Rarities {
		msg.Rarities = append(msg.Rarities, staking.RarityEntry{
			ID:     row.ID,
			Reward: &staking.Reward{CommonReward: parseAmount(row.CommonReward), BoostReward: parseAmount(row.BoostReward)},
		})
	}
	s.submitAdmin(w, r, req.QueryID, msg)
}

func (s *Server) handleRemoveRarity(w http.ResponseWriter, r *http.Request) {
	var req removeRarityRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.submitAdmin(w, r, req.QueryID, &staking.AdminRemoveRarity{IDs: req.IDs})
}

func (s *Server) handleValidUntil(w http.ResponseWriter, r *http.Request) {
	var req validUntilRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.submitAdmin(w, r, req.QueryID, &staking.AdminChangeValidUntil{ValidUntil: req.ValidUntil})
}

func (s *Server) handleMintItem(w http.ResponseWriter, r *http.Request) {
	var req mintItemRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.backend.MintItem(mustAddress(req.Item), mustAddress(req.Owner)); err != nil {
		writeIngressError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"item": itemString(mustAddress(req.Item)), "owner": req.Owner})
}

func (s *Server) handleMintTokens(w http.ResponseWriter, r *http.Request) {
	var req mintTokensRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.backend.MintTokens(caller(r), mustAddress(req.To), parseAmount(req.Amount)); err != nil {
		writeIngressError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"to": req.To, "amount": req.Amount})
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeError(w, http.StatusNotFound, "audit log disabled")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := s.audit.RecentAuditLog(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if entries == nil {
		entries = []AuditEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}

// --- queries ---

func pathAddress(w http.ResponseWriter, r *http.Request, param string) ([20]byte, bool) {
	raw := chi.URLParam(r, param)
	addr, err := crypto.ParseRaw(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid "+param+" address")
		return [20]byte{}, false
	}
	return addr, true
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.backend.Snapshot()
	if err != nil {
		writeIngressError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshotFrom(snap))
}

func (s *Server) handleItems(w http.ResponseWriter, r *http.Request) {
	snap, err := s.backend.Snapshot()
	if err != nil {
		writeIngressError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": snapshotFrom(snap).Items})
}

func (s *Server) handleStakedItems(w http.ResponseWriter, r *http.Request) {
	snap, err := s.backend.Snapshot()
	if err != nil {
		writeIngressError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"stakedItems": snapshotFrom(snap).StakedItems})
}

func (s *Server) handleHelper(w http.ResponseWriter, r *http.Request) {
	item, ok := pathAddress(w, r, "item")
	if !ok {
		return
	}
	helper, err := s.backend.Helper(item)
	if err != nil {
		writeIngressError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, helperFrom(helper))
}

func (s *Server) handleEstimate(w http.ResponseWriter, r *http.Request) {
	item, ok := pathAddress(w, r, "item")
	if !ok {
		return
	}
	elapsed := int64(0)
	if raw := r.URL.Query().Get("elapsed"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || v < 0 {
			writeError(w, http.StatusBadRequest, "elapsed must be a non-negative number of seconds")
			return
		}
		elapsed = v
	}
	if est, ok := s.cache.Get(item, elapsed); ok {
		writeJSON(w, http.StatusOK, estimateFrom(est))
		return
	}
	est, err := s.backend.EstimatedReward(item, elapsed)
	if err != nil {
		writeIngressError(w, err)
		return
	}
	s.cache.Set(item, elapsed, est)
	writeJSON(w, http.StatusOK, estimateFrom(est))
}

func (s *Server) handleOwner(w http.ResponseWriter, r *http.Request) {
	item, ok := pathAddress(w, r, "item")
	if !ok {
		return
	}
	owner, err := s.backend.OwnerOf(item)
	if err != nil {
		writeIngressError(w, err)
		return
	}
	helper, err := s.backend.HelperAddressOf(item)
	if err != nil {
		writeIngressError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"item":   itemString(item),
		"owner":  accountString(owner),
		"helper": accountString(helper),
	})
}

func (s *Server) handleUserStaked(w http.ResponseWriter, r *http.Request) {
	user, ok := pathAddress(w, r, "user")
	if !ok {
		return
	}
	items, err := s.backend.ItemsStakedBy(user)
	if err != nil {
		writeIngressError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"user": accountString(user), "items": itemStrings(items)})
}

func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	account, ok := pathAddress(w, r, "account")
	if !ok {
		return
	}
	tokens, err := s.backend.Balance(bank.AssetToken, account)
	if err != nil {
		writeIngressError(w, err)
		return
	}
	native, err := s.backend.Balance(bank.AssetNative, account)
	if err != nil {
		writeIngressError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"account": accountString(account),
		"tokens":  amountString(tokens),
		"native":  amountString(native),
	})
}

func (s *Server) handleAccountItems(w http.ResponseWriter, r *http.Request) {
	account, ok := pathAddress(w, r, "account")
	if !ok {
		return
	}
	items, err := s.backend.ItemsOwnedBy(account)
	if err != nil {
		writeIngressError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"account": accountString(account), "items": itemStrings(items)})
}

func itemStrings(items [][20]byte) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, itemString(item))
	}
	return out
}
