package stakingd

import (
	"encoding/hex"
	"fmt"
	"math/big"

	"nftstake/core/router"
	"nftstake/core/types"
	"nftstake/crypto"
	"nftstake/native/staking"
)

func accountString(addr [20]byte) string {
	return crypto.FromRaw(crypto.AccountPrefix, addr).String()
}

func itemString(addr [20]byte) string {
	return crypto.FromRaw(crypto.ItemPrefix, addr).String()
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

type hopView struct {
	Op       string `json:"op"`
	Actor    string `json:"actor"`
	From     string `json:"from"`
	To       string `json:"to"`
	Value    string `json:"value"`
	Bounced  bool   `json:"bounced,omitempty"`
	ExitCode int    `json:"exitCode"`
	Error    string `json:"error,omitempty"`
}

type receiptView struct {
	QueryID  uint64         `json:"queryId"`
	Success  bool           `json:"success"`
	ExitCode int            `json:"exitCode"`
	Error    string         `json:"error,omitempty"`
	Hops     []hopView      `json:"hops"`
	Events   []*types.Event `json:"events"`
}

func receiptFrom(trace *router.Trace) receiptView {
	view := receiptView{QueryID: trace.QueryID, Success: true, Hops: make([]hopView, 0, len(trace.Hops)), Events: trace.Events}
	if view.Events == nil {
		view.Events = []*types.Event{}
	}
	if failed, ok := trace.Failed(); ok {
		view.Success = false
		view.ExitCode = failed.ExitCode
		view.Error = failed.Error
	}
	for _, hop := range trace.Hops {
		view.Hops = append(view.Hops, hopView{
			Op:       fmt.Sprintf("0x%08x", hop.Op),
			Actor:    hop.Actor,
			From:     accountString(hop.Envelope.From),
			To:       accountString(hop.Envelope.To),
			Value:    amountString(hop.Envelope.Value),
			Bounced:  hop.Envelope.Bounced,
			ExitCode: hop.ExitCode,
			Error:    hop.Error,
		})
	}
	return view
}

type rewardView struct {
	CommonReward string `json:"commonReward"`
	BoostReward  string `json:"boostReward"`
}

type catalogView struct {
	Item   string `json:"item"`
	Rarity uint16 `json:"rarity"`
}

type rarityView struct {
	ID uint16 `json:"id"`
	rewardView
}

type segmentView struct {
	ActiveCount  uint16 `json:"activeCount"`
	RateSum      string `json:"rateSum"`
	SegmentStart int64  `json:"segmentStart"`
	AccruedExtra string `json:"accruedExtra"`
}

type userView struct {
	User string      `json:"user"`
	Old  segmentView `json:"old"`
	New  segmentView `json:"new"`
}

type stakedView struct {
	Item   string `json:"item"`
	Staker string `json:"staker"`
}

type configView struct {
	Address        string `json:"address"`
	Admin          string `json:"admin"`
	TokenMinter    string `json:"tokenMinter"`
	TokenWallet    string `json:"tokenWallet"`
	HelperTemplate string `json:"helperTemplate"`
	ValidUntil     int64  `json:"validUntil"`
}

type snapshotView struct {
	Items         []catalogView `json:"items"`
	Rarity        []rarityView  `json:"rarity"`
	Users         []userView    `json:"users"`
	StakedItems   []stakedView  `json:"stakedItems"`
	Config        configView    `json:"config"`
	Reserve       string        `json:"reserve"`
	FeesCollected string        `json:"feesCollected"`
}

func segmentFrom(s staking.BoostSegment) segmentView {
	return segmentView{
		ActiveCount:  s.ActiveCount,
		RateSum:      amountString(s.RateSum),
		SegmentStart: s.SegmentStart,
		AccruedExtra: amountString(s.AccruedExtra),
	}
}

func configFrom(cfg *staking.Config) configView {
	return configView{
		Address:        accountString(cfg.Address),
		Admin:          accountString(cfg.Admin),
		TokenMinter:    accountString(cfg.TokenMinter),
		TokenWallet:    accountString(cfg.TokenWallet),
		HelperTemplate: hex.EncodeToString(cfg.HelperTemplate[:]),
		ValidUntil:     cfg.ValidUntil,
	}
}

func snapshotFrom(snap *staking.Snapshot) snapshotView {
	view := snapshotView{
		Items:       make([]catalogView, 0, len(snap.Items)),
		Rarity:      make([]rarityView, 0, len(snap.Rarity)),
		Users:       make([]userView, 0, len(snap.Users)),
		StakedItems: make([]stakedView, 0, len(snap.StakedItems)),
	}
	for _, item := range snap.Items {
		view.Items = append(view.Items, catalogView{Item: itemString(item.Item), Rarity: item.Rarity})
	}
	for _, r := range snap.Rarity {
		rv := rarityView{ID: r.ID}
		if r.Reward != nil {
			rv.rewardView = rewardView{CommonReward: amountString(r.Reward.CommonReward), BoostReward: amountString(r.Reward.BoostReward)}
		}
		view.Rarity = append(view.Rarity, rv)
	}
	for _, u := range snap.Users {
		uv := userView{User: accountString(u.User)}
		if u.Boost != nil {
			uv.Old = segmentFrom(u.Boost.Old)
			uv.New = segmentFrom(u.Boost.New)
		}
		view.Users = append(view.Users, uv)
	}
	for _, s := range snap.StakedItems {
		view.StakedItems = append(view.StakedItems, stakedView{Item: itemString(s.Item), Staker: accountString(s.Staker)})
	}
	if snap.Config != nil {
		view.Config = configFrom(snap.Config)
	}
	if snap.Treasury != nil {
		view.Reserve = amountString(snap.Treasury.Reserve)
		view.FeesCollected = amountString(snap.Treasury.FeesCollected)
	}
	return view
}

type helperView struct {
	Item         string     `json:"item"`
	Address      string     `json:"address"`
	Status       string     `json:"status"`
	Staker       string     `json:"staker,omitempty"`
	LastStaker   string     `json:"lastStaker,omitempty"`
	StakedAt     int64      `json:"stakedAt"`
	UnlocksAt    int64      `json:"unlocksAt,omitempty"`
	Lock         uint8      `json:"lock"`
	Rarity       rarityView `json:"rarity"`
	ClaimPending bool       `json:"claimPending"`
	Stakes       uint64     `json:"stakes"`
}

func helperFrom(h *staking.Helper) helperView {
	var zero [20]byte
	view := helperView{
		Item:         itemString(h.Item),
		Address:      accountString(h.Address),
		Status:       h.Status.String(),
		StakedAt:     h.StakedAt,
		Lock:         uint8(h.Lock),
		ClaimPending: h.ClaimPending,
		Stakes:       h.Stakes,
		Rarity: rarityView{ID: h.Rarity.ID, rewardView: rewardView{
			CommonReward: amountString(h.Rarity.CommonReward),
			BoostReward:  amountString(h.Rarity.BoostReward),
		}},
	}
	if h.Staker != zero {
		view.Staker = accountString(h.Staker)
	}
	if h.LastStaker != zero {
		view.LastStaker = accountString(h.LastStaker)
	}
	if h.Status == staking.HelperStaked {
		view.UnlocksAt = h.UnlocksAt()
	}
	return view
}

type estimateView struct {
	Item    string `json:"item"`
	Staked  bool   `json:"staked"`
	Periods int64  `json:"periods"`
	Common  string `json:"common"`
	Boost   string `json:"boost"`
	Total   string `json:"total"`
}

func estimateFrom(e *staking.Estimate) estimateView {
	return estimateView{
		Item:    itemString(e.Item),
		Staked:  e.Staked,
		Periods: e.Periods,
		Common:  amountString(e.Common),
		Boost:   amountString(e.Boost),
		Total:   amountString(e.Total),
	}
}
