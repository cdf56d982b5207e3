package stakingd

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"

	"nftstake/core"
	"nftstake/core/events"
	"nftstake/crypto"
	"nftstake/gateway/middleware"
	"nftstake/native/staking"
	"nftstake/storage"
)

var (
	masterAddr = [20]byte{0xa0}
	adminAddr  = [20]byte{0xad}
	walletAddr = [20]byte{0xb0}
	minterAddr = [20]byte{0xb1}
	alice      = [20]byte{0x01}
	item1      = [20]byte{0xe1}
	item2      = [20]byte{0xe2}
)

const (
	unit       = 1_000_000_000
	testSecret = "stakingd-test-secret"
	week       = 7 * 24 * time.Hour
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

type harness struct {
	t           *testing.T
	node        *core.Node
	clock       *clock
	server      *Server
	audit       *AuditStore
	broadcaster *events.Broadcaster
}

func newHarness(t *testing.T, auth middleware.AuthConfig, withAudit bool) *harness {
	t.Helper()
	node, err := core.NewNode(storage.NewMemDB(), staking.DefaultParams())
	require.NoError(t, err)
	node.SetMetrics(nil)
	c := &clock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	node.SetNowFunc(c.Now)
	broadcaster := events.NewBroadcaster(64)
	node.SetEmitter(events.MultiEmitter{broadcaster, eventCounter{}})
	_, err = node.InitGenesis(&core.Genesis{
		Config: staking.Config{
			Address:     masterAddr,
			TokenMinter: minterAddr,
			TokenWallet: walletAddr,
			Admin:       adminAddr,
			ValidUntil:  time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC).Unix(),
		},
		Items:    []staking.CatalogEntry{{Item: item1, Rarity: 1}, {Item: item2, Rarity: 1}},
		Rarities: []staking.RarityEntry{{ID: 1, Reward: &staking.Reward{CommonReward: big.NewInt(unit), BoostReward: big.NewInt(0)}}},
		Reserve:  big.NewInt(100 * unit),
		Accounts: []core.GenesisAccount{
			{Address: alice, Native: big.NewInt(10 * unit), Items: [][20]byte{item1, item2}},
			{Address: adminAddr, Native: big.NewInt(10 * unit)},
		},
	})
	require.NoError(t, err)
	t.Cleanup(node.Close)

	h := &harness{t: t, node: node, clock: c, broadcaster: broadcaster}
	if withAudit {
		audit, err := NewAuditStore(filepath.Join(t.TempDir(), "audit.db"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = audit.Close() })
		h.audit = audit
	}
	h.server = NewServer(node, ServerOptions{
		Auth:        middleware.NewAuthenticator(auth, nil),
		Audit:       h.audit,
		Broadcaster: broadcaster,
		CacheTTL:    time.Minute,
		EventBuffer: 16,
	})
	return h
}

func account(addr [20]byte) string { return accountString(addr) }

func item(addr [20]byte) string { return itemString(addr) }

func (h *harness) do(method, path string, body interface{}, header map[string]string) *httptest.ResponseRecorder {
	h.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(h.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.server.ServeHTTP(rec, req)
	return rec
}

func as(addr [20]byte) map[string]string {
	return map[string]string{middleware.SenderHeader: account(addr)}
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst), rec.Body.String())
}

func (h *harness) stake(it [20]byte) receiptView {
	h.t.Helper()
	rec := h.do(http.MethodPost, "/v1/stakes", map[string]interface{}{
		"item":  item(it),
		"lock":  7,
		"value": staking.DefaultStakeFee.String(),
	}, as(alice))
	require.Equal(h.t, http.StatusOK, rec.Code, rec.Body.String())
	var receipt receiptView
	decodeBody(h.t, rec, &receipt)
	return receipt
}

func TestStakeAndClaimOverHTTP(t *testing.T) {
	h := newHarness(t, middleware.AuthConfig{}, false)

	receipt := h.stake(item1)
	require.True(t, receipt.Success)
	require.NotEmpty(t, receipt.Hops)

	rec := h.do(http.MethodGet, "/v1/users/"+account(alice)+"/staked", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var staked struct {
		Items []string `json:"items"`
	}
	decodeBody(t, rec, &staked)
	require.Equal(t, []string{item(item1)}, staked.Items)

	h.clock.now = h.clock.now.Add(week)
	rec = h.do(http.MethodPost, "/v1/claims", map[string]interface{}{
		"item": item(item1),
		"fee":  staking.DefaultMinClaimFee.String(),
	}, as(alice))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decodeBody(t, rec, &receipt)
	require.True(t, receipt.Success)

	var eventTypes []string
	for _, evt := range receipt.Events {
		eventTypes = append(eventTypes, evt.Type)
	}
	require.Contains(t, eventTypes, staking.EventTypeClaimPaid)

	rec = h.do(http.MethodGet, "/v1/accounts/"+account(alice)+"/balances", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var balances map[string]string
	decodeBody(t, rec, &balances)
	require.Equal(t, "1000000000", balances["tokens"])
}

func TestFailedClaimMapsExitCodeToStatus(t *testing.T) {
	h := newHarness(t, middleware.AuthConfig{}, false)
	h.stake(item1)

	rec := h.do(http.MethodPost, "/v1/claims", map[string]interface{}{
		"item": item(item1),
		"fee":  staking.DefaultMinClaimFee.String(),
	}, as(alice))
	require.Equal(t, http.StatusConflict, rec.Code)
	var receipt receiptView
	decodeBody(t, rec, &receipt)
	require.False(t, receipt.Success)
	require.Equal(t, staking.CodeLockNotElapsed, receipt.ExitCode)

	h.clock.now = h.clock.now.Add(week)
	rec = h.do(http.MethodPost, "/v1/claims", map[string]interface{}{
		"item": item(item1),
		"fee":  "1",
	}, as(alice))
	require.Equal(t, http.StatusPaymentRequired, rec.Code)

	// No helper has been deployed for item2.
	rec = h.do(http.MethodPost, "/v1/claims", map[string]interface{}{
		"item": item(item2),
		"fee":  staking.DefaultMinClaimFee.String(),
	}, as(alice))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRequestValidation(t *testing.T) {
	h := newHarness(t, middleware.AuthConfig{}, false)

	rec := h.do(http.MethodPost, "/v1/stakes", map[string]interface{}{
		"item":  item(item1),
		"lock":  5,
		"value": "-1",
	}, as(alice))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body struct {
		Fields map[string]string `json:"fields"`
	}
	decodeBody(t, rec, &body)
	require.Contains(t, body.Fields, "lock")
	require.Contains(t, body.Fields, "value")

	rec = h.do(http.MethodPost, "/v1/stakes", map[string]interface{}{
		"item":  item(item1),
		"lock":  7,
		"extra": true,
	}, as(alice))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(http.MethodPost, "/v1/stakes", map[string]interface{}{"item": item(item1), "lock": 7}, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.do(http.MethodGet, "/v1/items/not-an-address/estimate", nil, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminOperationsCheckSender(t *testing.T) {
	h := newHarness(t, middleware.AuthConfig{}, false)

	rec := h.do(http.MethodPost, "/v1/admin/withdraw", map[string]interface{}{"amount": "1000"}, as(alice))
	require.Equal(t, http.StatusForbidden, rec.Code)
	var receipt receiptView
	decodeBody(t, rec, &receipt)
	require.Equal(t, staking.CodeUnauthorized, receipt.ExitCode)

	rec = h.do(http.MethodPost, "/v1/admin/withdraw", map[string]interface{}{"amount": "1000"}, as(adminAddr))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.do(http.MethodPost, "/v1/admin/rarity", map[string]interface{}{
		"rarities": []map[string]interface{}{{"id": 2, "commonReward": "5", "boostReward": "1"}},
	}, as(adminAddr))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.do(http.MethodGet, "/v1/master", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var snap snapshotView
	decodeBody(t, rec, &snap)
	require.Len(t, snap.Rarity, 2)
	require.Len(t, snap.Items, 2)
	require.Equal(t, account(masterAddr), snap.Config.Address)
	require.Equal(t, "99999999000", snap.Reserve)
}

func TestJWTProtectsMutations(t *testing.T) {
	h := newHarness(t, middleware.AuthConfig{Enabled: true, HMACSecret: testSecret, Issuer: "stakectl"}, false)

	rec := h.do(http.MethodPost, "/v1/stakes", map[string]interface{}{"item": item(item1), "lock": 7}, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	token, err := middleware.IssueToken(testSecret, crypto.FromRaw(crypto.AccountPrefix, alice), nil, "stakectl", "", time.Hour)
	require.NoError(t, err)
	bearer := map[string]string{"Authorization": "Bearer " + token}

	rec = h.do(http.MethodPost, "/v1/stakes", map[string]interface{}{
		"item":  item(item1),
		"lock":  14,
		"value": staking.DefaultStakeFee.String(),
	}, bearer)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.do(http.MethodPost, "/v1/admin/withdraw", map[string]interface{}{"amount": "1"}, bearer)
	require.Equal(t, http.StatusForbidden, rec.Code)

	wrong, err := middleware.IssueToken("other-secret", crypto.FromRaw(crypto.AccountPrefix, alice), nil, "stakectl", "", time.Hour)
	require.NoError(t, err)
	rec = h.do(http.MethodPost, "/v1/claims", map[string]interface{}{"item": item(item1), "fee": "1"},
		map[string]string{"Authorization": "Bearer " + wrong})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestIdempotencyKeyReplaysResponse(t *testing.T) {
	h := newHarness(t, middleware.AuthConfig{}, true)
	header := as(alice)
	header[middleware.IdempotencyHeader] = "stake-1"
	body := map[string]interface{}{
		"item":  item(item1),
		"lock":  7,
		"value": staking.DefaultStakeFee.String(),
	}

	first := h.do(http.MethodPost, "/v1/stakes", body, header)
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())

	second := h.do(http.MethodPost, "/v1/stakes", body, header)
	require.Equal(t, http.StatusOK, second.Code)
	require.Equal(t, "true", second.Header().Get("Idempotent-Replay"))
	require.JSONEq(t, first.Body.String(), second.Body.String())

	staked, err := h.node.ItemsStakedBy(alice)
	require.NoError(t, err)
	require.Len(t, staked, 1)

	body["item"] = item(item2)
	conflict := h.do(http.MethodPost, "/v1/stakes", body, header)
	require.Equal(t, http.StatusConflict, conflict.Code)

	rec := h.do(http.MethodGet, "/v1/admin/audit?limit=10", nil, as(adminAddr))
	require.Equal(t, http.StatusOK, rec.Code)
	var audit struct {
		Entries []AuditEntry `json:"entries"`
	}
	decodeBody(t, rec, &audit)
	require.Len(t, audit.Entries, 1)
	require.Equal(t, "/v1/stakes", audit.Entries[0].Path)
	require.Equal(t, account(alice), audit.Entries[0].Caller)
}

func TestEstimateCacheIsClearedByMutations(t *testing.T) {
	h := newHarness(t, middleware.AuthConfig{}, false)
	path := "/v1/items/" + item(item1) + "/estimate?elapsed=1209600"

	rec := h.do(http.MethodGet, path, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var est estimateView
	decodeBody(t, rec, &est)
	require.False(t, est.Staked)
	require.Equal(t, int64(2), est.Periods)
	require.Equal(t, "2000000000", est.Total)

	h.stake(item1)

	rec = h.do(http.MethodGet, path, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &est)
	require.True(t, est.Staked)

	rec = h.do(http.MethodGet, "/v1/items/"+item(item1)+"/helper", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var helper helperView
	decodeBody(t, rec, &helper)
	require.Equal(t, account(alice), helper.Staker)
	require.Equal(t, uint8(staking.Lock7Days), helper.Lock)
	require.Equal(t, h.clock.now.Add(week).Unix(), helper.UnlocksAt)

	rec = h.do(http.MethodGet, "/v1/items/"+item(item1)+"/owner", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var owner map[string]string
	decodeBody(t, rec, &owner)
	require.Equal(t, owner["helper"], owner["owner"])
}

func TestMessagesFromItemAddressesAreRejected(t *testing.T) {
	h := newHarness(t, middleware.AuthConfig{}, false)
	raw, err := staking.EncodeMessage(1, &staking.OwnershipAssigned{PrevOwner: adminAddr, Payload: []byte{7}})
	require.NoError(t, err)

	rec := h.do(http.MethodPost, "/v1/messages", map[string]interface{}{
		"to":    account(masterAddr),
		"body":  hex.EncodeToString(raw),
		"value": "50000000",
	}, as(item1))
	require.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())

	owner, err := h.node.OwnerOf(item1)
	require.NoError(t, err)
	require.Equal(t, alice, owner)
	staked, err := h.node.ItemsStakedBy(adminAddr)
	require.NoError(t, err)
	require.Empty(t, staked)
}

func TestHealthz(t *testing.T) {
	h := newHarness(t, middleware.AuthConfig{}, false)
	rec := h.do(http.MethodGet, "/healthz", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", rec.Body.String())
}

func TestStatusForExitCode(t *testing.T) {
	cases := map[int]int{
		0:                             http.StatusOK,
		staking.CodeUnauthorized:      http.StatusForbidden,
		staking.CodeNotStaked:         http.StatusNotFound,
		staking.CodeInsufficientFee:   http.StatusPaymentRequired,
		staking.CodeReserveDepleted:   http.StatusConflict,
		staking.ErrUnknownOp.ExitCode(): http.StatusBadRequest,
		1:                             http.StatusUnprocessableEntity,
	}
	for code, status := range cases {
		require.Equal(t, status, statusForExitCode(code), "exit code %d", code)
	}
}

func TestEventStream(t *testing.T) {
	h := newHarness(t, middleware.AuthConfig{}, false)
	srv := httptest.NewServer(h.server)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/events/ws?type=staking.item."
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	h.stake(item1)

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var record events.Record
	require.NoError(t, json.Unmarshal(data, &record))
	require.Equal(t, staking.EventTypeItemStaked, record.Event.Type)
	require.NotZero(t, record.Sequence)
}

func TestLoadConfigDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stakingd.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: \":9000\"\nstorage:\n  backend: memory\ncache:\n  ttl: 2s\n"), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, ":9000", cfg.ListenAddress)
	require.Equal(t, "memory", cfg.Storage.Backend)
	require.Equal(t, 2*time.Second, cfg.Cache.TTL.Duration)
	require.Equal(t, 1024, cfg.Cache.Size)
	require.Equal(t, 10*time.Second, cfg.Timeouts.Shutdown.Duration)

	require.NoError(t, os.WriteFile(path, []byte("listen: \":9000\"\nbogus: 1\n"), 0o600))
	_, err = LoadConfig(path)
	require.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("auth:\n  enabled: true\n"), 0o600))
	_, err = LoadConfig(path)
	require.ErrorContains(t, err, "hmac_secret")

	require.NoError(t, os.WriteFile(path, []byte("storage:\n  backend: redis\n"), 0o600))
	_, err = LoadConfig(path)
	require.ErrorContains(t, err, "storage.backend")
}

func TestOpenNodeWithBoltBackend(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		NodeConfig: filepath.Join(dir, "node.toml"),
		Storage:    StorageConfig{Backend: "bolt", DataDir: filepath.Join(dir, "data")},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	node, err := OpenNode(cfg, logger, events.NoopEmitter{})
	require.NoError(t, err)
	first, err := node.Config()
	require.NoError(t, err)
	node.Close()

	node, err = OpenNode(cfg, logger, events.NoopEmitter{})
	require.NoError(t, err)
	defer node.Close()
	second, err := node.Config()
	require.NoError(t, err)
	require.Equal(t, first.Address, second.Address)

	snap, err := node.Snapshot()
	require.NoError(t, err)
	require.Len(t, snap.Rarity, 1)
}
