package staking

import (
	"bytes"
	"math/big"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"nftstake/core/types"
)

type mockState struct {
	cfg      *Config
	treasury *Treasury
	catalog  map[[20]byte]uint16
	rarity   map[uint16]*Reward
	staked   map[[20]byte][20]byte
	boost    map[[20]byte]*UserBoost
	index    map[[20]byte][20]byte
	helpers  map[[20]byte]*Helper
	owners   map[[20]byte][20]byte
}

func newMockState() *mockState {
	return &mockState{
		catalog: make(map[[20]byte]uint16),
		rarity:  make(map[uint16]*Reward),
		staked:  make(map[[20]byte][20]byte),
		boost:   make(map[[20]byte]*UserBoost),
		index:   make(map[[20]byte][20]byte),
		helpers: make(map[[20]byte]*Helper),
		owners:  make(map[[20]byte][20]byte),
	}
}

func (m *mockState) clone() *mockState {
	out := newMockState()
	if m.cfg != nil {
		cfg := *m.cfg
		out.cfg = &cfg
	}
	out.treasury = m.treasury.Clone()
	for k, v := range m.catalog {
		out.catalog[k] = v
	}
	for k, v := range m.rarity {
		out.rarity[k] = v.Clone()
	}
	for k, v := range m.staked {
		out.staked[k] = v
	}
	for k, v := range m.boost {
		out.boost[k] = v.Clone()
	}
	for k, v := range m.index {
		out.index[k] = v
	}
	for k, v := range m.helpers {
		out.helpers[k] = v.Clone()
	}
	for k, v := range m.owners {
		out.owners[k] = v
	}
	return out
}

func (m *mockState) StakingConfigGet() (*Config, bool, error) {
	if m.cfg == nil {
		return nil, false, nil
	}
	cfg := *m.cfg
	return &cfg, true, nil
}

func (m *mockState) StakingConfigPut(cfg *Config) error {
	clone := *cfg
	m.cfg = &clone
	return nil
}

func (m *mockState) StakingTreasuryGet() (*Treasury, bool, error) {
	if m.treasury == nil {
		return nil, false, nil
	}
	return m.treasury.Clone(), true, nil
}

func (m *mockState) StakingTreasuryPut(t *Treasury) error {
	m.treasury = t.Clone()
	return nil
}

func (m *mockState) StakingCatalogGet(item [20]byte) (uint16, bool, error) {
	r, ok := m.catalog[item]
	return r, ok, nil
}

func (m *mockState) StakingCatalogPut(item [20]byte, rarity uint16) error {
	m.catalog[item] = rarity
	return nil
}

func (m *mockState) StakingCatalogDelete(item [20]byte) error {
	delete(m.catalog, item)
	return nil
}

func (m *mockState) StakingCatalogList() ([]CatalogEntry, error) {
	out := make([]CatalogEntry, 0, len(m.catalog))
	for k, v := range m.catalog {
		out = append(out, CatalogEntry{Item: k, Rarity: v})
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i].Item[:], out[j].Item[:]) < 0 })
	return out, nil
}

func (m *mockState) StakingRarityGet(id uint16) (*Reward, bool, error) {
	r, ok := m.rarity[id]
	if !ok {
		return nil, false, nil
	}
	return r.Clone(), true, nil
}

func (m *mockState) StakingRarityPut(id uint16, reward *Reward) error {
	m.rarity[id] = reward.Clone()
	return nil
}

func (m *mockState) StakingRarityDelete(id uint16) error {
	delete(m.rarity, id)
	return nil
}

func (m *mockState) StakingRarityList() ([]RarityEntry, error) {
	out := make([]RarityEntry, 0, len(m.rarity))
	for k, v := range m.rarity {
		out = append(out, RarityEntry{ID: k, Reward: v.Clone()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *mockState) StakingStakedGet(item [20]byte) ([20]byte, bool, error) {
	s, ok := m.staked[item]
	return s, ok, nil
}

func (m *mockState) StakingStakedPut(item [20]byte, staker [20]byte) error {
	m.staked[item] = staker
	return nil
}

func (m *mockState) StakingStakedDelete(item [20]byte) error {
	delete(m.staked, item)
	return nil
}

func (m *mockState) StakingStakedList() ([]StakedEntry, error) {
	out := make([]StakedEntry, 0, len(m.staked))
	for k, v := range m.staked {
		out = append(out, StakedEntry{Item: k, Staker: v})
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i].Item[:], out[j].Item[:]) < 0 })
	return out, nil
}

func (m *mockState) StakingBoostGet(user [20]byte) (*UserBoost, bool, error) {
	ub, ok := m.boost[user]
	if !ok {
		return nil, false, nil
	}
	return ub.Clone(), true, nil
}

func (m *mockState) StakingBoostPut(user [20]byte, boost *UserBoost) error {
	m.boost[user] = boost.Clone()
	return nil
}

func (m *mockState) StakingBoostList() ([]BoostEntry, error) {
	out := make([]BoostEntry, 0, len(m.boost))
	for k, v := range m.boost {
		out = append(out, BoostEntry{User: k, Boost: v.Clone()})
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i].User[:], out[j].User[:]) < 0 })
	return out, nil
}

func (m *mockState) StakingHelperIndexGet(helper [20]byte) ([20]byte, bool, error) {
	item, ok := m.index[helper]
	return item, ok, nil
}

func (m *mockState) StakingHelperIndexPut(helper [20]byte, item [20]byte) error {
	m.index[helper] = item
	return nil
}

func (m *mockState) NFTOwnerGet(item [20]byte) ([20]byte, bool, error) {
	owner, ok := m.owners[item]
	return owner, ok, nil
}

func (m *mockState) StakingHelperGet(item [20]byte) (*Helper, bool, error) {
	h, ok := m.helpers[item]
	if !ok {
		return nil, false, nil
	}
	return h.Clone(), true, nil
}

func (m *mockState) StakingHelperPut(h *Helper) error {
	m.helpers[h.Item] = h.Clone()
	return nil
}

// harness delivers envelopes between the master and its helpers the way the
// router does: each hop runs against a copy that is kept only on success, and
// a failed bounceable message is returned to its sender.
type harness struct {
	t       *testing.T
	state   *mockState
	master  *Master
	helper  *HelperEngine
	cfg     Config
	effects []types.Effect
	events  []*types.Event
	failed  []error
}

var (
	masterAddr = addr(0xA0)
	adminAddr  = addr(0xAD)
	walletAddr = addr(0xB0)
	minterAddr = addr(0xB1)
	alice      = addr(0x01)
	bob        = addr(0x02)
)

const (
	t0       int64 = 1_700_000_000
	day      int64 = SecondsPerDay
	unit     int64 = 1_000_000_000
	testRarity uint16 = 1
)

func addr(b byte) [20]byte {
	var out [20]byte
	for i := range out {
		out[i] = b
	}
	return out
}

func itemAddr(n byte) [20]byte {
	out := addr(0xE0)
	out[19] = n
	return out
}

func testParams() Params {
	p := DefaultParams()
	p.BoostThreshold = 3
	return p
}

func newHarness(t *testing.T, params Params) *harness {
	t.Helper()
	cfg := Config{
		Address:     masterAddr,
		TokenMinter: minterAddr,
		TokenWallet: walletAddr,
		Admin:       adminAddr,
		ValidUntil:  t0 + 365*day,
	}
	cfg.HelperTemplate[0] = 0x42
	st := newMockState()
	items := make([]CatalogEntry, 0, 5)
	for i := byte(1); i <= 5; i++ {
		items = append(items, CatalogEntry{Item: itemAddr(i), Rarity: testRarity})
	}
	rarities := []RarityEntry{{ID: testRarity, Reward: &Reward{CommonReward: big.NewInt(unit), BoostReward: big.NewInt(10)}}}
	require.NoError(t, Genesis(st, &cfg, items, rarities))
	st.treasury.Reserve = big.NewInt(1_000 * unit)
	h := &harness{
		t:      t,
		state:  st,
		master: NewMaster(params),
		helper: NewHelperEngine(masterAddr, params),
		cfg:    cfg,
	}
	h.master.SetMetrics(nil)
	return h
}

func (h *harness) deliver(env types.Envelope) {
	queue := []types.Envelope{env}
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		tx := h.state.clone()
		var (
			out *types.Outcome
			err error
		)
		if next.To == masterAddr {
			out, err = h.master.Receive(tx, &next)
		} else if item, ok := tx.index[next.To]; ok {
			out, err = h.helper.Receive(tx, item, &next)
		} else {
			continue
		}
		if err != nil {
			h.failed = append(h.failed, err)
			if next.Bounce && !next.Bounced {
				queue = append(queue, next.BounceBack())
			}
			continue
		}
		h.state = tx
		for _, eff := range out.Effects {
			if move, ok := eff.(types.ItemTransfer); ok && h.state.owners[move.Item] == move.From {
				h.state.owners[move.Item] = move.To
			}
		}
		h.effects = append(h.effects, out.Effects...)
		h.events = append(h.events, out.Events...)
		queue = append(queue, out.Messages...)
	}
}

// handOver moves custody of item to the master, as the NFT protocol does
// before it notifies the new owner.
func (h *harness) handOver(item [20]byte) {
	h.state.owners[item] = masterAddr
}

func (h *harness) stake(item, owner [20]byte, lock LockOption, now int64) {
	h.handOver(item)
	h.deliver(types.Envelope{
		QueryID: 1,
		From:    item,
		To:      masterAddr,
		Value:   new(big.Int).Set(DefaultStakeFee),
		Now:     now,
		Body:    &OwnershipAssigned{PrevOwner: owner, Payload: []byte{byte(lock)}},
	})
}

func (h *harness) claim(item, from [20]byte, fee *big.Int, returnItem bool, now int64) {
	h.deliver(types.Envelope{
		QueryID: 2,
		From:    from,
		To:      h.cfg.HelperAddressOf(item),
		Value:   fee,
		Now:     now,
		Bounce:  true,
		Body:    &Claim{ReturnItem: returnItem},
	})
}

func (h *harness) reset() {
	h.effects = nil
	h.events = nil
	h.failed = nil
}

func (h *harness) lastErr() error {
	if len(h.failed) == 0 {
		return nil
	}
	return h.failed[len(h.failed)-1]
}

// paidTo sums token transfers to user since the last reset.
func (h *harness) paidTo(user [20]byte) *big.Int {
	total := big.NewInt(0)
	for _, eff := range h.effects {
		if tt, ok := eff.(types.TokenTransfer); ok && tt.To == user {
			total.Add(total, tt.Amount)
		}
	}
	return total
}

func (h *harness) helperOf(item [20]byte) *Helper {
	rec, ok := h.state.helpers[item]
	require.True(h.t, ok)
	return rec
}

func claimFee() *big.Int { return new(big.Int).Set(DefaultMinClaimFee) }
